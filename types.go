package askrouter

import "time"

// Request is a single user question handed to the orchestrator.
type Request struct {
	UserID    string
	Prompt    string
	Timestamp time.Time
}

// Result is the unified outcome of a handled request. Either Fallback is
// false and Provider names the account that answered, or Fallback is true
// and the answer came from the offline rule engine (consuming no quota).
type Result struct {
	Answer     string
	Provider   string // config entry id of the answering provider; empty on fallback
	Model      string
	Fallback   bool
	TokensUsed int64
	Attempts   int // provider attempts made before this answer
}

// Usage represents token usage reported by a provider.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// ProviderUsage is one row of the per-user usage report.
type ProviderUsage struct {
	Provider          string
	Day               DayKey
	Requests          int64
	Tokens            int64
	RemainingRequests int64
	Health            HealthState
	LifetimeRequests  int64
	LifetimeTokens    int64
}

// IntPtr returns a pointer to the given int.
func IntPtr(v int) *int { return &v }

// Float64Ptr returns a pointer to the given float64.
func Float64Ptr(v float64) *float64 { return &v }
