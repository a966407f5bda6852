package askrouter

import "time"

// Meter observes routing events for monitoring/logging.
type Meter interface {
	// OnRoute is called when a provider attempt is about to start.
	OnRoute(event RouteEvent)

	// OnResult is called when a provider attempt resolves.
	OnResult(event ResultEvent)

	// OnFallback is called when a request degrades to the rule engine.
	OnFallback(event FallbackEvent)
}

// RouteEvent describes a routing decision.
type RouteEvent struct {
	UserID    string
	Provider  string
	Model     string
	Attempt   int
	Remaining int64
}

// ResultEvent describes the outcome of a provider attempt. A successful
// answer with a non-nil Err means the answer was served but persisting the
// usage record failed.
type ResultEvent struct {
	UserID   string
	Provider string
	Model    string
	Success  bool
	Duration time.Duration
	Usage    Usage
	Err      error
}

// FallbackEvent describes a request answered by the offline rule engine.
type FallbackEvent struct {
	UserID string
	Reason error
}

// noopMeter is the default meter.
type noopMeter struct{}

func (noopMeter) OnRoute(RouteEvent)       {}
func (noopMeter) OnResult(ResultEvent)     {}
func (noopMeter) OnFallback(FallbackEvent) {}
