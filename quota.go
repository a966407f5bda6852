package askrouter

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
)

// QuotaLimit is the per-provider daily policy. Zero DailyRequests means the
// provider is unmetered; zero DailyTokens means no token ceiling.
type QuotaLimit struct {
	DailyRequests int64
	DailyTokens   int64
}

// Reservation is one claimed unit of daily quota. It is held in process
// memory until the provider call resolves: Commit persists it to the usage
// store, Rollback releases it so a failed call never consumes budget.
type Reservation struct {
	ID       string
	UserID   string
	Provider string
	Day      DayKey
	Tokens   int64 // estimated tokens held against the token ceiling
}

// QuotaTracker enforces daily limits per (user, provider). Committed usage
// lives in the UsageStore; in-flight reservations are tracked in process so
// two concurrent requests cannot both claim the last unit. Day boundaries
// come from DayOf over the configured timezone; reset is lazy, keyed state
// for a previous day is simply never consulted again.
type QuotaTracker struct {
	store  UsageStore
	limits map[string]QuotaLimit
	loc    *time.Location
	now    func() time.Time

	mu      sync.Mutex
	slots   map[string]*quotaSlot
	slotDay DayKey
}

// quotaSlot serializes reservations for one (user, day, provider) key.
// Holding only the slot lock across the store read keeps unrelated keys
// fully parallel.
type quotaSlot struct {
	mu             sync.Mutex
	reserved       int64
	reservedTokens int64
}

// NewQuotaTracker creates a tracker over store with the given per-provider
// limits. now may be nil, defaulting to time.Now.
func NewQuotaTracker(store UsageStore, limits map[string]QuotaLimit, loc *time.Location, now func() time.Time) *QuotaTracker {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.UTC
	}
	return &QuotaTracker{
		store:  store,
		limits: limits,
		loc:    loc,
		now:    now,
		slots:  make(map[string]*quotaSlot),
	}
}

func (q *QuotaTracker) slot(userID, provider string, day DayKey) *quotaSlot {
	q.mu.Lock()
	defer q.mu.Unlock()

	// Reservations never outlive the request that made them, so on a day
	// change the previous day's slots are dead weight and can be dropped.
	if q.slotDay != day {
		q.slots = make(map[string]*quotaSlot)
		q.slotDay = day
	}

	key := userID + "|" + provider
	s, ok := q.slots[key]
	if !ok {
		s = &quotaSlot{}
		q.slots[key] = s
	}
	return s
}

// Remaining returns the unreserved request budget for (userID, provider)
// today. Unmetered providers report math.MaxInt64. A store failure returns
// zero remaining together with ErrStoreUnavailable: unknown budget is
// treated as no budget rather than risking unbounded spend.
func (q *QuotaTracker) Remaining(ctx context.Context, userID, provider string) (int64, error) {
	limit := q.limits[provider]
	if limit.DailyRequests <= 0 {
		return math.MaxInt64, nil
	}

	day := DayOf(q.now(), q.loc)
	s := q.slot(userID, provider, day)
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := q.store.Get(ctx, userID, day)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	remaining := limit.DailyRequests - recs[provider].Requests - s.reserved
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}

// Reserve atomically claims one request (and estimatedTokens against the
// token ceiling, if configured) for (userID, provider) today. It returns
// ErrQuotaExhausted when no budget remains and ErrStoreUnavailable when the
// committed count cannot be read.
func (q *QuotaTracker) Reserve(ctx context.Context, userID, provider string, estimatedTokens int64) (Reservation, error) {
	limit := q.limits[provider]
	day := DayOf(q.now(), q.loc)

	s := q.slot(userID, provider, day)
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit.DailyRequests > 0 || limit.DailyTokens > 0 {
		recs, err := q.store.Get(ctx, userID, day)
		if err != nil {
			return Reservation{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		rec := recs[provider]

		if limit.DailyRequests > 0 && rec.Requests+s.reserved >= limit.DailyRequests {
			return Reservation{}, ErrQuotaExhausted
		}
		if limit.DailyTokens > 0 && rec.Tokens+s.reservedTokens+estimatedTokens > limit.DailyTokens {
			return Reservation{}, ErrQuotaExhausted
		}
	}

	s.reserved++
	s.reservedTokens += estimatedTokens

	return Reservation{
		ID:       uuid.New().String(),
		UserID:   userID,
		Provider: provider,
		Day:      day,
		Tokens:   estimatedTokens,
	}, nil
}

// Commit persists the completed call with its actual token usage and then
// releases the reservation. The slot lock is held across the store write:
// until the increment is visible, the reserved unit must keep counting
// against the limit or a concurrent Reserve could slip past it. The answer
// has already been produced when Commit runs, so a store failure is reported
// for logging but must not fail the request; the reservation is released
// either way.
func (q *QuotaTracker) Commit(ctx context.Context, res Reservation, actualTokens int64) (UsageRecord, error) {
	s := q.slot(res.UserID, res.Provider, res.Day)
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := q.store.Increment(ctx, res.UserID, res.Day, res.Provider, actualTokens)
	releaseLocked(s, res)
	if err != nil {
		return UsageRecord{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return rec, nil
}

// Rollback releases the reservation without recording any usage. Used when
// the provider call fails or its result is discarded before commit.
func (q *QuotaTracker) Rollback(res Reservation) {
	q.release(res)
}

func (q *QuotaTracker) release(res Reservation) {
	s := q.slot(res.UserID, res.Provider, res.Day)
	s.mu.Lock()
	defer s.mu.Unlock()

	releaseLocked(s, res)
}

// releaseLocked returns the reserved units. Caller holds s.mu.
func releaseLocked(s *quotaSlot, res Reservation) {
	// A reservation straddling the day boundary may land in a fresh slot;
	// never let the counters go negative.
	if s.reserved > 0 {
		s.reserved--
	}
	if s.reservedTokens >= res.Tokens {
		s.reservedTokens -= res.Tokens
	} else {
		s.reservedTokens = 0
	}
}
