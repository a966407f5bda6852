// Package mock provides a scriptable provider adapter for testing.
package mock

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/farmsola/askrouter"
)

// Provider is a mock generative-AI provider for testing.
type Provider struct {
	name         string
	latency      time.Duration
	failFirst    int64 // fail the first N calls
	callCount    atomic.Int64
	staticErr    error
	usage        askrouter.Usage
	responseFunc func(askrouter.GenerateRequest) (askrouter.GenerateResponse, error)
}

var _ askrouter.Provider = (*Provider)(nil)

// Option configures a mock Provider.
type Option func(*Provider)

// New creates a mock provider with the given options.
func New(opts ...Option) *Provider {
	p := &Provider{
		name: "mock",
		usage: askrouter.Usage{
			PromptTokens:     10,
			CompletionTokens: 20,
			TotalTokens:      30,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithName sets the adapter kind.
func WithName(name string) Option {
	return func(p *Provider) { p.name = name }
}

// WithLatency adds simulated latency to each call.
func WithLatency(d time.Duration) Option {
	return func(p *Provider) { p.latency = d }
}

// WithError makes the provider always return this error.
func WithError(err error) Option {
	return func(p *Provider) { p.staticErr = err }
}

// WithFailFirst makes the first n calls fail with err, then succeed.
func WithFailFirst(n int, err error) Option {
	return func(p *Provider) {
		p.failFirst = int64(n)
		p.staticErr = err
	}
}

// WithUsage sets the usage returned by the mock.
func WithUsage(u askrouter.Usage) Option {
	return func(p *Provider) { p.usage = u }
}

// WithResponseFunc sets a custom response function.
func WithResponseFunc(fn func(askrouter.GenerateRequest) (askrouter.GenerateResponse, error)) Option {
	return func(p *Provider) { p.responseFunc = fn }
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Generate(ctx context.Context, req askrouter.GenerateRequest) (askrouter.GenerateResponse, error) {
	if p.latency > 0 {
		select {
		case <-time.After(p.latency):
		case <-ctx.Done():
			return askrouter.GenerateResponse{}, ctx.Err()
		}
	}

	count := p.callCount.Add(1)

	if p.staticErr != nil {
		if p.failFirst == 0 || count <= p.failFirst {
			return askrouter.GenerateResponse{}, p.staticErr
		}
	}

	if p.responseFunc != nil {
		return p.responseFunc(req)
	}

	return askrouter.GenerateResponse{
		Text:         "Hello from mock provider",
		FinishReason: "stop",
		Model:        req.Model,
		Usage:        p.usage,
	}, nil
}

// CallCount returns the number of calls made to the provider.
func (p *Provider) CallCount() int64 { return p.callCount.Load() }
