package askrouter

import (
	"context"
	"sync"
)

// UsageRecord is the durable per-(user, day, provider) counter pair.
// Records are created lazily on first use and never mutated except through
// Increment; old days are retained until purged for audit history.
type UsageRecord struct {
	UserID   string
	Day      DayKey
	Provider string
	Requests int64
	Tokens   int64
}

// UsageStore persists usage records. Implementations must make Increment an
// atomic read-modify-write for its key, and must not let increments for
// different keys block each other. Durable implementations reload state on
// process restart. See the usage/ subpackages for backends.
type UsageStore interface {
	// Get returns all records for (userID, day), keyed by provider id.
	// A missing user/day yields an empty map, not an error.
	Get(ctx context.Context, userID string, day DayKey) (map[string]UsageRecord, error)

	// Increment adds one request and tokens to the record, creating it if
	// absent, and returns the updated record.
	Increment(ctx context.Context, userID string, day DayKey, provider string, tokens int64) (UsageRecord, error)

	// PurgeBefore deletes records for days earlier than cutoff and returns
	// the number of records removed.
	PurgeBefore(ctx context.Context, cutoff DayKey) (int64, error)
}

// memoryStore is the default in-process UsageStore used when no backend is
// configured. It does not survive restarts; see usage.NewMemoryStore for the
// exported equivalent and usage/sqlite for the durable default.
type memoryStore struct {
	mu      sync.RWMutex
	records map[string]map[string]UsageRecord // user|day -> provider -> record
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[string]map[string]UsageRecord)}
}

func memoryKey(userID string, day DayKey) string {
	return userID + "|" + string(day)
}

func (s *memoryStore) Get(_ context.Context, userID string, day DayKey) (map[string]UsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]UsageRecord)
	for provider, rec := range s.records[memoryKey(userID, day)] {
		out[provider] = rec
	}
	return out, nil
}

func (s *memoryStore) Increment(_ context.Context, userID string, day DayKey, provider string, tokens int64) (UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memoryKey(userID, day)
	byProvider, ok := s.records[key]
	if !ok {
		byProvider = make(map[string]UsageRecord)
		s.records[key] = byProvider
	}

	rec, ok := byProvider[provider]
	if !ok {
		rec = UsageRecord{UserID: userID, Day: day, Provider: provider}
	}
	rec.Requests++
	rec.Tokens += tokens
	byProvider[provider] = rec
	return rec, nil
}

func (s *memoryStore) PurgeBefore(_ context.Context, cutoff DayKey) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for key, byProvider := range s.records {
		for _, rec := range byProvider {
			if rec.Day.Before(cutoff) {
				purged += int64(len(byProvider))
				delete(s.records, key)
			}
			break
		}
	}
	return purged, nil
}
