package askrouter

import (
	"errors"
	"fmt"
)

// Sentinel errors. Provider adapters normalize every upstream failure to one
// of the provider-level sentinels; the router maps those onto health state
// transitions and never lets them escape to the orchestrator's caller.
var (
	ErrRateLimited     = errors.New("askrouter: rate limited by provider")
	ErrAuthFailed      = errors.New("askrouter: authentication failed")
	ErrNetworkTimeout  = errors.New("askrouter: provider call timed out")
	ErrInvalidResponse = errors.New("askrouter: invalid provider response")
	ErrProviderFailed  = errors.New("askrouter: provider failed")

	ErrQuotaExhausted   = errors.New("askrouter: daily quota exhausted")
	ErrStoreUnavailable = errors.New("askrouter: usage store unavailable")
	ErrNoCandidates     = errors.New("askrouter: no providers available")
)

// RouteError wraps an error with routing context.
type RouteError struct {
	Err      error
	Provider string
	Model    string
	Attempts int
}

func (e *RouteError) Error() string {
	return fmt.Sprintf("askrouter: provider=%s model=%s attempts=%d: %v",
		e.Provider, e.Model, e.Attempts, e.Err)
}

func (e *RouteError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the next candidate should be tried after err.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrNetworkTimeout) ||
		errors.Is(err, ErrInvalidResponse) ||
		errors.Is(err, ErrProviderFailed)
}

// IsConfigError returns true if err indicates a misconfigured provider
// account rather than a transient failure. Such providers are pinned
// unavailable until an operator intervenes.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrAuthFailed)
}
