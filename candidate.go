package askrouter

import "context"

// buildCandidates assembles the eligible provider list for one request.
// Quota-exhausted accounts are dropped here; health is only snapshotted,
// because the cooldown probe decision has to happen at attempt time.
func buildCandidates(
	ctx context.Context,
	cfg Config,
	providers map[string]Provider,
	quota *QuotaTracker,
	health *HealthTracker,
	userID string,
) []Candidate {
	var candidates []Candidate

	for i, pc := range cfg.Providers {
		prov, ok := providers[pc.Kind]
		if !ok {
			continue
		}

		remaining, err := quota.Remaining(ctx, userID, pc.ID)
		if err != nil {
			// Store unreachable: treat the budget as fully consumed.
			remaining = 0
		}
		if remaining <= 0 {
			continue
		}

		candidates = append(candidates, Candidate{
			Provider:    prov,
			ID:          pc.ID,
			Kind:        pc.Kind,
			Model:       pc.Model,
			Auth:        pc.Auth,
			MaxTokens:   pc.MaxTokens,
			Temperature: pc.Temperature,
			Remaining:   remaining,
			Health:      health.State(pc.ID),
			Position:    i,
		})
	}

	return candidates
}

// promotePreferred moves the user's preferred account to the front of the
// ordered list, keeping the rest as failover order.
func promotePreferred(ordered []Candidate, preferred string) []Candidate {
	if preferred == "" {
		return ordered
	}
	for i, c := range ordered {
		if c.ID == preferred && i > 0 {
			out := make([]Candidate, 0, len(ordered))
			out = append(out, c)
			out = append(out, ordered[:i]...)
			out = append(out, ordered[i+1:]...)
			return out
		}
	}
	return ordered
}
