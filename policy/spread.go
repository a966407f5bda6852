package policy

import (
	"sort"

	"github.com/farmsola/askrouter"
)

// SpreadPolicy prefers the account with the most remaining daily budget,
// spreading a user's load across providers instead of draining the primary
// first. Healthy accounts come before degraded ones; config order breaks
// ties.
type SpreadPolicy struct{}

var _ askrouter.Policy = (*SpreadPolicy)(nil)

// Select orders candidates by health, then remaining budget descending.
func (p *SpreadPolicy) Select(candidates []askrouter.Candidate) []askrouter.Candidate {
	result := make([]askrouter.Candidate, len(candidates))
	copy(result, candidates)

	sort.SliceStable(result, func(i, j int) bool {
		ci, cj := result[i], result[j]

		healthyI := ci.Health == askrouter.Healthy
		healthyJ := cj.Health == askrouter.Healthy
		if healthyI != healthyJ {
			return healthyI
		}

		if ci.Remaining != cj.Remaining {
			return ci.Remaining > cj.Remaining
		}

		return ci.Position < cj.Position
	})

	return result
}
