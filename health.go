package askrouter

import (
	"sync"
	"time"
)

const (
	defaultFailureThreshold = 3
	defaultCooldown         = 30 * time.Second
)

// HealthState describes a provider's operational status, distinct from its
// quota state.
type HealthState int

const (
	Healthy HealthState = iota
	Degraded
	Unavailable
)

func (h HealthState) String() string {
	switch h {
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// HealthTracker tracks per-provider health from call outcomes. Consecutive
// retryable failures reaching the threshold open the breaker; after the
// cooldown exactly one request is admitted as a probe, and its outcome
// closes or re-opens the breaker. Auth failures pin the provider
// unavailable with no automatic recovery.
type HealthTracker struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu        sync.Mutex
	providers map[string]*providerHealth
}

type providerHealth struct {
	state       HealthState
	consecutive int
	lastFailure time.Time
	pinned      bool // auth failure: no automatic recovery
	probing     bool // one post-cooldown probe is in flight
}

// NewHealthTracker creates a tracker. Zero threshold or cooldown select the
// defaults; now may be nil, defaulting to time.Now.
func NewHealthTracker(threshold int, cooldown time.Duration, now func() time.Time) *HealthTracker {
	if threshold <= 0 {
		threshold = defaultFailureThreshold
	}
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	if now == nil {
		now = time.Now
	}
	return &HealthTracker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       now,
		providers: make(map[string]*providerHealth),
	}
}

// Acquire reports whether the router may attempt the provider now. For an
// unavailable provider whose cooldown has elapsed it admits exactly one
// caller as the health probe; concurrent callers keep skipping until that
// probe resolves.
func (h *HealthTracker) Acquire(provider string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	ph, ok := h.providers[provider]
	if !ok {
		return true
	}
	if ph.pinned {
		return false
	}
	if ph.state != Unavailable {
		return true
	}
	if h.now().Sub(ph.lastFailure) < h.cooldown {
		return false
	}
	if ph.probing {
		return false
	}
	ph.probing = true
	return true
}

// Release undoes an Acquire that never led to a provider call (for example
// when the quota reservation failed), so a claimed probe slot is not lost.
func (h *HealthTracker) Release(provider string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ph, ok := h.providers[provider]; ok {
		ph.probing = false
	}
}

// RecordSuccess resets the provider to Healthy.
func (h *HealthTracker) RecordSuccess(provider string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ph := h.getOrCreate(provider)
	ph.state = Healthy
	ph.consecutive = 0
	ph.probing = false
	ph.pinned = false
}

// RecordFailure counts a retryable failure. Reaching the threshold opens the
// breaker with a fresh cooldown. Failures reported while the breaker is
// already open (late results from abandoned calls) do not extend the
// cooldown; a failed probe does re-open it.
func (h *HealthTracker) RecordFailure(provider string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ph := h.getOrCreate(provider)

	if ph.state == Unavailable {
		if ph.probing {
			ph.probing = false
			ph.consecutive++
			ph.lastFailure = h.now()
		}
		return
	}

	ph.consecutive++
	ph.lastFailure = h.now()
	if ph.consecutive >= h.threshold {
		ph.state = Unavailable
	} else {
		ph.state = Degraded
	}
}

// MarkAuthFailed pins the provider unavailable until an operator resets it.
func (h *HealthTracker) MarkAuthFailed(provider string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ph := h.getOrCreate(provider)
	ph.state = Unavailable
	ph.pinned = true
	ph.probing = false
}

// Pinned reports whether the provider was disabled by an auth failure.
func (h *HealthTracker) Pinned(provider string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	ph, ok := h.providers[provider]
	return ok && ph.pinned
}

// State returns the provider's current health state.
func (h *HealthTracker) State(provider string) HealthState {
	h.mu.Lock()
	defer h.mu.Unlock()

	ph, ok := h.providers[provider]
	if !ok {
		return Healthy
	}
	return ph.state
}

// Reset clears all recorded state for the provider. Operator action after
// fixing credentials.
func (h *HealthTracker) Reset(provider string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.providers, provider)
}

func (h *HealthTracker) getOrCreate(provider string) *providerHealth {
	ph, ok := h.providers[provider]
	if !ok {
		ph = &providerHealth{state: Healthy}
		h.providers[provider] = ph
	}
	return ph
}
