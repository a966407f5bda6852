package askrouter

import "context"

// Provider is the interface that generative-AI provider adapters implement.
// An adapter translates one provider's wire protocol into the normalized
// request/response/error model and nothing more: retry and failover policy
// belong to the router.
type Provider interface {
	// Name returns the adapter kind (e.g. "gemini", "openai").
	Name() string

	// Generate submits a prompt and returns the provider's answer.
	// Failures are reported as one of the provider-level sentinel errors,
	// possibly wrapped with detail.
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error)
}

// Auth holds authentication credentials for a provider account.
type Auth struct {
	APIKey string `yaml:"api_key" json:"api_key"`
}

// GenerateRequest is the request sent to a provider adapter.
type GenerateRequest struct {
	Auth   Auth
	Model  string
	System string // optional system/persona prompt
	Prompt string

	MaxTokens   *int
	Temperature *float64
}

// GenerateResponse is the normalized answer from a provider adapter.
type GenerateResponse struct {
	Text         string
	FinishReason string
	Model        string
	Usage        Usage
}
