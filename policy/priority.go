package policy

import (
	"sort"

	"github.com/farmsola/askrouter"
)

// PriorityPolicy tries providers strictly in the configured order. This is
// the behavior the orchestrator defaults to.
type PriorityPolicy struct{}

var _ askrouter.Policy = (*PriorityPolicy)(nil)

// Select orders candidates by their position in the config.
func (p *PriorityPolicy) Select(candidates []askrouter.Candidate) []askrouter.Candidate {
	result := make([]askrouter.Candidate, len(candidates))
	copy(result, candidates)

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Position < result[j].Position
	})

	return result
}
