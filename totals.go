package askrouter

import "sync"

// ProviderTotals are lifetime counters for one provider account, kept since
// process start for the usage report. Unlike daily records they never reset.
type ProviderTotals struct {
	Requests int64
	Tokens   int64
}

// Totals tracks lifetime per-provider call and token counts.
type Totals struct {
	mu         sync.Mutex
	byProvider map[string]ProviderTotals
}

// NewTotals creates an empty Totals.
func NewTotals() *Totals {
	return &Totals{byProvider: make(map[string]ProviderTotals)}
}

// Record counts one completed call.
func (t *Totals) Record(provider string, tokens int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pt := t.byProvider[provider]
	pt.Requests++
	pt.Tokens += tokens
	t.byProvider[provider] = pt
}

// Get returns the lifetime counters for a provider.
func (t *Totals) Get(provider string) ProviderTotals {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.byProvider[provider]
}

// Snapshot returns a copy of all counters.
func (t *Totals) Snapshot() map[string]ProviderTotals {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]ProviderTotals, len(t.byProvider))
	for k, v := range t.byProvider {
		out[k] = v
	}
	return out
}
