// Package openai provides an OpenAI-compatible chat completion adapter.
// Works with OpenAI and any endpoint speaking the same wire format.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/farmsola/askrouter"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Provider is the OpenAI chat completion adapter.
type Provider struct {
	name       string
	baseURL    string
	httpClient *http.Client
}

var _ askrouter.Provider = (*Provider)(nil)

// Option configures the provider.
type Option func(*Provider)

// WithBaseURL sets a custom base URL for compatible endpoints.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithName overrides the adapter kind, for compatible third-party endpoints.
func WithName(name string) Option {
	return func(p *Provider) { p.name = name }
}

// New creates a new OpenAI provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		name:       "openai",
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return p.name }

// apiRequest is the chat completion request format.
type apiRequest struct {
	Model       string       `json:"model"`
	Messages    []apiMessage `json:"messages"`
	Temperature *float64     `json:"temperature,omitempty"`
	MaxTokens   *int         `json:"max_tokens,omitempty"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// apiResponse is the chat completion response format.
type apiResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int        `json:"index"`
		Message      apiMessage `json:"message"`
		FinishReason string     `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
}

func (p *Provider) Generate(ctx context.Context, req askrouter.GenerateRequest) (askrouter.GenerateResponse, error) {
	body := buildRequest(req)

	httpResp, err := p.doRequest(ctx, req.Auth, body)
	if err != nil {
		return askrouter.GenerateResponse{}, err
	}
	defer httpResp.Body.Close()

	if err := mapHTTPError(httpResp); err != nil {
		return askrouter.GenerateResponse{}, err
	}

	var resp apiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return askrouter.GenerateResponse{}, fmt.Errorf("%w: decode response: %v", askrouter.ErrInvalidResponse, err)
	}

	if len(resp.Choices) == 0 {
		return askrouter.GenerateResponse{}, fmt.Errorf("%w: empty choices in response", askrouter.ErrInvalidResponse)
	}

	return askrouter.GenerateResponse{
		Text:         strings.TrimSpace(resp.Choices[0].Message.Content),
		FinishReason: resp.Choices[0].FinishReason,
		Model:        resp.Model,
		Usage: askrouter.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func buildRequest(req askrouter.GenerateRequest) apiRequest {
	var msgs []apiMessage
	if req.System != "" {
		msgs = append(msgs, apiMessage{Role: "system", Content: req.System})
	}
	msgs = append(msgs, apiMessage{Role: "user", Content: req.Prompt})

	return apiRequest{
		Model:       req.Model,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
}

func (p *Provider) doRequest(ctx context.Context, auth askrouter.Auth, body apiRequest) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("askrouter: marshal request: %w", err)
	}

	url := p.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("askrouter: create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+auth.APIKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w: %v", askrouter.ErrNetworkTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", askrouter.ErrProviderFailed, err)
	}

	return resp, nil
}

func mapHTTPError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	// Read body for error context, but don't fail if we can't.
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return askrouter.ErrRateLimited
	case http.StatusUnauthorized, http.StatusForbidden:
		return askrouter.ErrAuthFailed
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", askrouter.ErrInvalidResponse, string(body))
	default:
		return fmt.Errorf("%w: status %d", askrouter.ErrProviderFailed, resp.StatusCode)
	}
}
