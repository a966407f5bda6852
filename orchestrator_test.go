package askrouter_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmsola/askrouter"
	"github.com/farmsola/askrouter/provider/mock"
	"github.com/farmsola/askrouter/usage"
)

// fakeClock is a movable wall clock for the orchestrator under test.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testConfig(providers ...askrouter.ProviderConfig) askrouter.Config {
	return askrouter.Config{
		Timezone:    "UTC",
		CallTimeout: askrouter.Duration(5 * time.Second),
		Providers:   providers,
	}
}

func newOrchestrator(t *testing.T, cfg askrouter.Config, providers []askrouter.Provider, opts ...askrouter.Option) *askrouter.Orchestrator {
	t.Helper()
	o, err := askrouter.New(cfg, providers, opts...)
	require.NoError(t, err)
	return o
}

func TestHandleServesFromProvider(t *testing.T) {
	cfg := testConfig(askrouter.ProviderConfig{
		ID:    "gemini-main",
		Kind:  "mock",
		Model: "gemini-2.0-flash",
	})
	p := mock.New()
	o := newOrchestrator(t, cfg, []askrouter.Provider{p})

	res, err := o.Handle(context.Background(), "user-1", "explain photosynthesis")
	require.NoError(t, err)

	assert.Equal(t, "Hello from mock provider", res.Answer)
	assert.Equal(t, "gemini-main", res.Provider)
	assert.False(t, res.Fallback)
	assert.Equal(t, int64(30), res.TokensUsed)
	assert.Equal(t, 1, res.Attempts)
}

func TestDailyLimitNeverExceeded(t *testing.T) {
	cfg := testConfig(askrouter.ProviderConfig{
		ID:            "gemini-main",
		Kind:          "mock",
		Model:         "gemini-2.0-flash",
		DailyRequests: 5,
	})
	p := mock.New()
	o := newOrchestrator(t, cfg, []askrouter.Provider{p})

	served := 0
	for i := 0; i < 8; i++ {
		res, err := o.Handle(context.Background(), "user-1", fmt.Sprintf("question %d", i))
		require.NoError(t, err)
		if !res.Fallback {
			served++
		}
	}

	assert.Equal(t, 5, served)
	assert.Equal(t, int64(5), p.CallCount())

	stats, err := o.UsageStats(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, int64(5), stats[0].Requests)
	assert.Equal(t, int64(0), stats[0].RemainingRequests)
}

func TestLimitIsPerUser(t *testing.T) {
	cfg := testConfig(askrouter.ProviderConfig{
		ID:            "gemini-main",
		Kind:          "mock",
		Model:         "gemini-2.0-flash",
		DailyRequests: 1,
	})
	o := newOrchestrator(t, cfg, []askrouter.Provider{mock.New()})

	resA, err := o.Handle(context.Background(), "user-a", "hi there")
	require.NoError(t, err)
	resB, err := o.Handle(context.Background(), "user-b", "hi there")
	require.NoError(t, err)

	assert.False(t, resA.Fallback)
	assert.False(t, resB.Fallback)
}

func TestFailedCallDoesNotConsumeQuota(t *testing.T) {
	cfg := testConfig(askrouter.ProviderConfig{
		ID:            "gemini-main",
		Kind:          "mock",
		Model:         "gemini-2.0-flash",
		DailyRequests: 2,
	})
	p := mock.New(mock.WithFailFirst(1, askrouter.ErrProviderFailed))
	o := newOrchestrator(t, cfg, []askrouter.Provider{p})

	// First call fails at the provider and is refunded.
	res, err := o.Handle(context.Background(), "user-1", "question one")
	require.NoError(t, err)
	assert.True(t, res.Fallback)

	// Both budget units are still available.
	for i := 0; i < 2; i++ {
		res, err = o.Handle(context.Background(), "user-1", "question")
		require.NoError(t, err)
		assert.False(t, res.Fallback)
	}

	// Now the budget really is gone.
	res, err = o.Handle(context.Background(), "user-1", "question")
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Equal(t, int64(3), p.CallCount())
}

func TestFailoverToSecondary(t *testing.T) {
	cfg := testConfig(
		askrouter.ProviderConfig{ID: "primary", Kind: "flaky", Model: "gemini-2.0-flash", DailyRequests: 100},
		askrouter.ProviderConfig{ID: "backup", Kind: "stable", Model: "gpt-4o", DailyRequests: 100},
	)
	flaky := mock.New(mock.WithName("flaky"), mock.WithError(askrouter.ErrRateLimited))
	stable := mock.New(mock.WithName("stable"))
	o := newOrchestrator(t, cfg, []askrouter.Provider{flaky, stable})

	res, err := o.Handle(context.Background(), "user-1", "question")
	require.NoError(t, err)

	assert.Equal(t, "backup", res.Provider)
	assert.False(t, res.Fallback)
	assert.Equal(t, 2, res.Attempts)

	// The failed attempt on primary must not have consumed its budget.
	stats, err := o.UsageStats(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, int64(0), stats[0].Requests)
	assert.Equal(t, int64(1), stats[1].Requests)
}

func TestBreakerSkipsAndProbes(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))

	cfg := testConfig(
		askrouter.ProviderConfig{ID: "primary", Kind: "flaky", Model: "gemini-2.0-flash"},
		askrouter.ProviderConfig{ID: "backup", Kind: "stable", Model: "gpt-4o"},
	)
	cfg.FailureThreshold = 2
	cfg.Cooldown = askrouter.Duration(time.Minute)

	flaky := mock.New(mock.WithName("flaky"), mock.WithError(askrouter.ErrProviderFailed))
	stable := mock.New(mock.WithName("stable"))
	o := newOrchestrator(t, cfg, []askrouter.Provider{flaky, stable},
		askrouter.WithClock(clock.Now))

	// Two failures open the breaker.
	for i := 0; i < 2; i++ {
		res, err := o.Handle(context.Background(), "user-1", "question")
		require.NoError(t, err)
		assert.Equal(t, "backup", res.Provider)
	}
	require.Equal(t, int64(2), flaky.CallCount())

	// While open the primary is skipped without a call.
	res, err := o.Handle(context.Background(), "user-1", "question")
	require.NoError(t, err)
	assert.Equal(t, "backup", res.Provider)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, int64(2), flaky.CallCount())

	// After the cooldown one probe is admitted; it fails and re-opens.
	clock.Advance(61 * time.Second)
	res, err = o.Handle(context.Background(), "user-1", "question")
	require.NoError(t, err)
	assert.Equal(t, "backup", res.Provider)
	assert.Equal(t, int64(3), flaky.CallCount())

	// Re-opened: skipped again until the next cooldown elapses.
	res, err = o.Handle(context.Background(), "user-1", "question")
	require.NoError(t, err)
	assert.Equal(t, "backup", res.Provider)
	assert.Equal(t, int64(3), flaky.CallCount())
}

func TestAuthFailurePinsProvider(t *testing.T) {
	cfg := testConfig(
		askrouter.ProviderConfig{ID: "primary", Kind: "flaky", Model: "gemini-2.0-flash"},
	)
	flaky := mock.New(mock.WithName("flaky"), mock.WithError(askrouter.ErrAuthFailed))
	o := newOrchestrator(t, cfg, []askrouter.Provider{flaky})

	res, err := o.Handle(context.Background(), "user-1", "question")
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	require.Equal(t, int64(1), flaky.CallCount())

	// Pinned: no more calls reach the provider, no cooldown recovery.
	res, err = o.Handle(context.Background(), "user-1", "question")
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Equal(t, int64(1), flaky.CallCount())

	stats, err := o.UsageStats(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, askrouter.Unavailable, stats[0].Health)

	// Operator reset re-admits the provider.
	o.ResetProvider("primary")
	_, err = o.Handle(context.Background(), "user-1", "question")
	require.NoError(t, err)
	assert.Equal(t, int64(2), flaky.CallCount())
}

func TestDayBoundaryRestoresBudget(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 3, 10, 23, 0, 0, 0, time.UTC))

	cfg := testConfig(askrouter.ProviderConfig{
		ID:            "gemini-main",
		Kind:          "mock",
		Model:         "gemini-2.0-flash",
		DailyRequests: 2,
	})
	o := newOrchestrator(t, cfg, []askrouter.Provider{mock.New()},
		askrouter.WithClock(clock.Now))

	for i := 0; i < 2; i++ {
		res, err := o.Handle(context.Background(), "user-1", "question")
		require.NoError(t, err)
		assert.False(t, res.Fallback)
	}

	res, err := o.Handle(context.Background(), "user-1", "question")
	require.NoError(t, err)
	assert.True(t, res.Fallback)

	// Crossing midnight restores the full budget.
	clock.Advance(2 * time.Hour)
	res, err = o.Handle(context.Background(), "user-1", "question")
	require.NoError(t, err)
	assert.False(t, res.Fallback)

	stats, err := o.UsageStats(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, askrouter.DayKey("2025-03-11"), stats[0].Day)
	assert.Equal(t, int64(1), stats[0].Requests)
	assert.Equal(t, int64(1), stats[0].RemainingRequests)
}

func TestConcurrentRequestsRespectLimit(t *testing.T) {
	cfg := testConfig(askrouter.ProviderConfig{
		ID:            "gemini-main",
		Kind:          "mock",
		Model:         "gemini-2.0-flash",
		DailyRequests: 10,
	})
	p := mock.New()
	o := newOrchestrator(t, cfg, []askrouter.Provider{p})

	var served atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := o.Handle(context.Background(), "user-1", "question")
			assert.NoError(t, err)
			if !res.Fallback {
				served.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10), served.Load())
	assert.Equal(t, int64(10), p.CallCount())
}

func TestStoreOutageDegradesToFallback(t *testing.T) {
	store := usage.NewMemoryStore()
	cfg := testConfig(askrouter.ProviderConfig{
		ID:            "gemini-main",
		Kind:          "mock",
		Model:         "gemini-2.0-flash",
		DailyRequests: 10,
	})
	p := mock.New()
	o := newOrchestrator(t, cfg, []askrouter.Provider{p},
		askrouter.WithUsageStore(store))

	store.SetFailing(true)
	res, err := o.Handle(context.Background(), "user-1", "question")
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Equal(t, int64(0), p.CallCount())

	store.SetFailing(false)
	res, err = o.Handle(context.Background(), "user-1", "question")
	require.NoError(t, err)
	assert.False(t, res.Fallback)
}

func TestDisableFallbackReturnsError(t *testing.T) {
	cfg := testConfig(askrouter.ProviderConfig{
		ID:    "primary",
		Kind:  "flaky",
		Model: "gemini-2.0-flash",
	})
	cfg.DisableFallback = true

	flaky := mock.New(mock.WithName("flaky"), mock.WithError(askrouter.ErrProviderFailed))
	o := newOrchestrator(t, cfg, []askrouter.Provider{flaky})

	_, err := o.Handle(context.Background(), "user-1", "question")
	require.Error(t, err)

	var re *askrouter.RouteError
	require.ErrorAs(t, err, &re)
	assert.ErrorIs(t, re.Err, askrouter.ErrProviderFailed)
	assert.Equal(t, 1, re.Attempts)
}

func TestOfflineMode(t *testing.T) {
	o := newOrchestrator(t, testConfig(), nil)

	res, err := o.Handle(context.Background(), "user-1", "how much does a 5kw solar panel produce?")
	require.NoError(t, err)

	assert.True(t, res.Fallback)
	assert.Empty(t, res.Provider)
	assert.Contains(t, res.Answer, "5525 kWh")
	assert.Contains(t, res.Answer, "828750 KRW")
}

func TestPreferredProvider(t *testing.T) {
	cfg := testConfig(
		askrouter.ProviderConfig{ID: "primary", Kind: "flaky", Model: "gemini-2.0-flash"},
		askrouter.ProviderConfig{ID: "backup", Kind: "stable", Model: "gpt-4o"},
	)
	flaky := mock.New(mock.WithName("flaky"))
	stable := mock.New(mock.WithName("stable"))
	o := newOrchestrator(t, cfg, []askrouter.Provider{flaky, stable})

	require.NoError(t, o.SetPreferred("user-1", "backup"))
	assert.Equal(t, "backup", o.Preferred("user-1"))

	res, err := o.Handle(context.Background(), "user-1", "question")
	require.NoError(t, err)
	assert.Equal(t, "backup", res.Provider)

	// Other users keep the configured priority.
	res, err = o.Handle(context.Background(), "user-2", "question")
	require.NoError(t, err)
	assert.Equal(t, "primary", res.Provider)

	o.ClearPreferred("user-1")
	res, err = o.Handle(context.Background(), "user-1", "question")
	require.NoError(t, err)
	assert.Equal(t, "primary", res.Provider)

	assert.Error(t, o.SetPreferred("user-1", "no-such-provider"))
}

func TestCallerCancellationStopsFailover(t *testing.T) {
	cfg := testConfig(
		askrouter.ProviderConfig{ID: "primary", Kind: "slow", Model: "gemini-2.0-flash"},
		askrouter.ProviderConfig{ID: "backup", Kind: "stable", Model: "gpt-4o"},
	)
	cfg.DisableFallback = true

	slow := mock.New(mock.WithName("slow"), mock.WithLatency(time.Second))
	stable := mock.New(mock.WithName("stable"))
	o := newOrchestrator(t, cfg, []askrouter.Provider{slow, stable})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := o.Handle(ctx, "user-1", "question")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(0), stable.CallCount())
}

func TestCallerCancellationDoesNotCountAsFailure(t *testing.T) {
	cfg := testConfig(askrouter.ProviderConfig{
		ID:    "primary",
		Kind:  "slow",
		Model: "gemini-2.0-flash",
	})
	cfg.FailureThreshold = 1

	slow := mock.New(mock.WithName("slow"), mock.WithLatency(200*time.Millisecond))
	o := newOrchestrator(t, cfg, []askrouter.Provider{slow})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res, err := o.Handle(ctx, "user-1", "question")
	require.NoError(t, err)
	require.True(t, res.Fallback)

	// The abandoned call is not a provider fault: with threshold one, a
	// recorded failure would have opened the breaker here.
	stats, err := o.UsageStats(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, askrouter.Healthy, stats[0].Health)

	res, err = o.Handle(context.Background(), "user-1", "question")
	require.NoError(t, err)
	assert.False(t, res.Fallback)
	assert.Equal(t, "primary", res.Provider)
}

func TestCallTimeoutFailsOver(t *testing.T) {
	cfg := testConfig(
		askrouter.ProviderConfig{ID: "primary", Kind: "slow", Model: "gemini-2.0-flash"},
		askrouter.ProviderConfig{ID: "backup", Kind: "stable", Model: "gpt-4o"},
	)
	cfg.CallTimeout = askrouter.Duration(50 * time.Millisecond)

	slow := mock.New(mock.WithName("slow"), mock.WithLatency(time.Second))
	stable := mock.New(mock.WithName("stable"))
	o := newOrchestrator(t, cfg, []askrouter.Provider{slow, stable})

	res, err := o.Handle(context.Background(), "user-1", "question")
	require.NoError(t, err)
	assert.Equal(t, "backup", res.Provider)
	assert.False(t, res.Fallback)
}

func TestPurgeHistory(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC))
	store := usage.NewMemoryStore()

	cfg := testConfig(askrouter.ProviderConfig{
		ID:            "gemini-main",
		Kind:          "mock",
		Model:         "gemini-2.0-flash",
		DailyRequests: 10,
	})
	cfg.RetentionDays = 30

	o := newOrchestrator(t, cfg, []askrouter.Provider{mock.New()},
		askrouter.WithUsageStore(store),
		askrouter.WithClock(clock.Now))

	res, err := o.Handle(context.Background(), "user-1", "question")
	require.NoError(t, err)
	require.False(t, res.Fallback)

	// Inside the retention window nothing is purged.
	purged, err := o.PurgeHistory(context.Background())
	require.NoError(t, err)
	assert.Zero(t, purged)

	clock.Advance(40 * 24 * time.Hour)
	purged, err = o.PurgeHistory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}

func TestNewRejectsUnknownAdapterKind(t *testing.T) {
	cfg := testConfig(askrouter.ProviderConfig{
		ID:    "primary",
		Kind:  "no-such-adapter",
		Model: "gemini-2.0-flash",
	})

	_, err := askrouter.New(cfg, []askrouter.Provider{mock.New()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no adapter for kind")
}

func TestLifetimeTotals(t *testing.T) {
	cfg := testConfig(askrouter.ProviderConfig{
		ID:    "gemini-main",
		Kind:  "mock",
		Model: "gemini-2.0-flash",
	})
	o := newOrchestrator(t, cfg, []askrouter.Provider{mock.New()})

	for i := 0; i < 3; i++ {
		_, err := o.Handle(context.Background(), "user-1", "question")
		require.NoError(t, err)
	}

	stats, err := o.UsageStats(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, int64(3), stats[0].LifetimeRequests)
	assert.Equal(t, int64(90), stats[0].LifetimeTokens)
}

func TestRouteErrorUnwraps(t *testing.T) {
	err := &askrouter.RouteError{Err: askrouter.ErrRateLimited, Provider: "primary", Attempts: 2}
	assert.True(t, errors.Is(err, askrouter.ErrRateLimited))
	assert.True(t, askrouter.IsRetryable(err))
	assert.False(t, askrouter.IsConfigError(err))
}
