package askrouter

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Orchestrator is the sole public entry point of the core. It coordinates
// quota, health, routing and the offline fallback so that every request
// resolves to an answer: provider-level failures are absorbed and the rule
// engine serves whatever the providers cannot.
type Orchestrator struct {
	cfg      Config
	loc      *time.Location
	router   *Router
	store    UsageStore
	quota    *QuotaTracker
	health   *HealthTracker
	fallback Fallback
	meter    Meter
	prefs    *Preferences
	totals   *Totals
	now      func() time.Time

	policy Policy // set by option before wiring
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithUsageStore sets the usage store backend. Default is an in-process
// store that does not survive restarts; production deployments wire one of
// the usage/ backends.
func WithUsageStore(s UsageStore) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithPolicy sets the candidate ordering policy.
func WithPolicy(p Policy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

// WithMeter sets the routing event observer.
func WithMeter(m Meter) Option {
	return func(o *Orchestrator) { o.meter = m }
}

// WithFallback replaces the built-in rule engine.
func WithFallback(f Fallback) Option {
	return func(o *Orchestrator) { o.fallback = f }
}

// WithClock overrides the wall clock. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an Orchestrator from config and the available provider
// adapters, keyed by adapter kind. An empty adapter list is valid when the
// fallback is enabled (offline mode).
func New(cfg Config, providers []Provider, opts ...Option) (*Orchestrator, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("askrouter: load timezone: %w", err)
	}

	provMap := make(map[string]Provider, len(providers))
	for _, p := range providers {
		provMap[p.Name()] = p
	}

	for i, pc := range cfg.Providers {
		if _, ok := provMap[pc.Kind]; !ok {
			return nil, fmt.Errorf("askrouter: config: providers[%d] (%s): no adapter for kind %q", i, pc.ID, pc.Kind)
		}
	}

	o := &Orchestrator{
		cfg:    cfg,
		loc:    loc,
		prefs:  NewPreferences(),
		totals: NewTotals(),
	}

	for _, opt := range opts {
		opt(o)
	}

	// Apply defaults after options.
	if o.now == nil {
		o.now = time.Now
	}
	if o.store == nil {
		o.store = newMemoryStore()
	}
	if o.meter == nil {
		o.meter = noopMeter{}
	}
	if o.fallback == nil {
		o.fallback = NewRuleAnalyzer()
	}
	if o.policy == nil {
		o.policy = configOrderPolicy{}
	}

	o.quota = NewQuotaTracker(o.store, cfg.limits(), loc, o.now)
	o.health = NewHealthTracker(cfg.FailureThreshold, time.Duration(cfg.Cooldown), o.now)

	o.router = &Router{
		cfg:       cfg,
		providers: provMap,
		policy:    o.policy,
		quota:     o.quota,
		health:    o.health,
		meter:     o.meter,
		totals:    o.totals,
	}

	return o, nil
}

// Handle answers one user question. With the fallback enabled (the default)
// it never returns an error: all provider failures, exhausted quotas and
// store outages degrade to a fallback-sourced answer that consumed no quota.
// The returned error is non-nil only when the fallback has been disabled in
// config and no provider could answer.
func (o *Orchestrator) Handle(ctx context.Context, userID, prompt string) (Result, error) {
	req := Request{UserID: userID, Prompt: prompt, Timestamp: o.now()}

	var routeErr error
	if len(o.cfg.Providers) > 0 {
		res, err := o.router.route(ctx, req, o.prefs.Get(userID))
		if err == nil {
			return res, nil
		}
		routeErr = err
	} else {
		routeErr = ErrNoCandidates
	}

	if o.cfg.DisableFallback {
		return Result{}, routeErr
	}

	o.meter.OnFallback(FallbackEvent{UserID: userID, Reason: routeErr})

	return Result{
		Answer:   o.fallback.Respond(req),
		Fallback: true,
		Attempts: routeAttempts(routeErr),
	}, nil
}

// UsageStats reports today's usage, remaining budget, health state and
// lifetime totals per configured provider, in priority order.
func (o *Orchestrator) UsageStats(ctx context.Context, userID string) ([]ProviderUsage, error) {
	day := DayOf(o.now(), o.loc)

	recs, err := o.store.Get(ctx, userID, day)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	stats := make([]ProviderUsage, 0, len(o.cfg.Providers))
	for _, pc := range o.cfg.Providers {
		rec := recs[pc.ID]
		remaining, rerr := o.quota.Remaining(ctx, userID, pc.ID)
		if rerr != nil {
			remaining = 0
		}
		lifetime := o.totals.Get(pc.ID)

		stats = append(stats, ProviderUsage{
			Provider:          pc.ID,
			Day:               day,
			Requests:          rec.Requests,
			Tokens:            rec.Tokens,
			RemainingRequests: remaining,
			Health:            o.health.State(pc.ID),
			LifetimeRequests:  lifetime.Requests,
			LifetimeTokens:    lifetime.Tokens,
		})
	}
	return stats, nil
}

// SetPreferred pins the provider account tried first for this user.
func (o *Orchestrator) SetPreferred(userID, providerID string) error {
	for _, pc := range o.cfg.Providers {
		if pc.ID == providerID {
			o.prefs.Set(userID, providerID)
			return nil
		}
	}
	return fmt.Errorf("askrouter: unknown provider id %q", providerID)
}

// Preferred returns the user's pinned provider account, if any.
func (o *Orchestrator) Preferred(userID string) string {
	return o.prefs.Get(userID)
}

// ClearPreferred removes the user's pin.
func (o *Orchestrator) ClearPreferred(userID string) {
	o.prefs.Clear(userID)
}

// ResetProvider clears recorded health state for a provider. Operator
// action after rotating credentials for an auth-pinned account.
func (o *Orchestrator) ResetProvider(providerID string) {
	o.health.Reset(providerID)
}

// PurgeHistory deletes usage records older than the configured retention
// and returns the number of records removed.
func (o *Orchestrator) PurgeHistory(ctx context.Context) (int64, error) {
	cutoff := DayOf(o.now().AddDate(0, 0, -o.cfg.RetentionDays), o.loc)
	return o.store.PurgeBefore(ctx, cutoff)
}

func routeAttempts(err error) int {
	var re *RouteError
	if errors.As(err, &re) {
		return re.Attempts
	}
	return 0
}
