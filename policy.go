package askrouter

import "sort"

// Policy orders candidates for a request. Returns highest priority first.
type Policy interface {
	Select(candidates []Candidate) []Candidate
}

// Candidate is a provider account eligible to serve a request.
type Candidate struct {
	Provider    Provider
	ID          string // config entry id
	Kind        string
	Model       string
	Auth        Auth
	MaxTokens   int
	Temperature *float64

	Remaining int64 // unreserved request budget for this user today
	Health    HealthState
	Position  int // index in the configured priority order
}

// configOrderPolicy is the default: try providers in configured order.
type configOrderPolicy struct{}

func (configOrderPolicy) Select(candidates []Candidate) []Candidate {
	result := make([]Candidate, len(candidates))
	copy(result, candidates)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Position < result[j].Position
	})
	return result
}
