// Package usage provides UsageStore backends. The in-memory store here is
// for tests and throwaway deployments; the sqlite, redis and postgres
// subpackages are the durable options.
package usage

import (
	"context"
	"sync"

	"github.com/farmsola/askrouter"
)

// MemoryStore is an in-process UsageStore. It does not survive restarts.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]map[string]askrouter.UsageRecord // user|day -> provider -> record

	failing bool // simulate an unreachable backend
}

var _ askrouter.UsageStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]map[string]askrouter.UsageRecord)}
}

// SetFailing toggles simulated backend unavailability: every call returns
// askrouter.ErrStoreUnavailable while set. Intended for tests.
func (s *MemoryStore) SetFailing(failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = failing
}

func key(userID string, day askrouter.DayKey) string {
	return userID + "|" + string(day)
}

// Get returns all records for (userID, day), keyed by provider id.
func (s *MemoryStore) Get(_ context.Context, userID string, day askrouter.DayKey) (map[string]askrouter.UsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.failing {
		return nil, askrouter.ErrStoreUnavailable
	}

	out := make(map[string]askrouter.UsageRecord)
	for provider, rec := range s.records[key(userID, day)] {
		out[provider] = rec
	}
	return out, nil
}

// Increment atomically adds one request and tokens to the record.
func (s *MemoryStore) Increment(_ context.Context, userID string, day askrouter.DayKey, provider string, tokens int64) (askrouter.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failing {
		return askrouter.UsageRecord{}, askrouter.ErrStoreUnavailable
	}

	k := key(userID, day)
	byProvider, ok := s.records[k]
	if !ok {
		byProvider = make(map[string]askrouter.UsageRecord)
		s.records[k] = byProvider
	}

	rec, ok := byProvider[provider]
	if !ok {
		rec = askrouter.UsageRecord{UserID: userID, Day: day, Provider: provider}
	}
	rec.Requests++
	rec.Tokens += tokens
	byProvider[provider] = rec
	return rec, nil
}

// PurgeBefore deletes records for days earlier than cutoff.
func (s *MemoryStore) PurgeBefore(_ context.Context, cutoff askrouter.DayKey) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failing {
		return 0, askrouter.ErrStoreUnavailable
	}

	var purged int64
	for k, byProvider := range s.records {
		for _, rec := range byProvider {
			if rec.Day.Before(cutoff) {
				purged += int64(len(byProvider))
				delete(s.records, k)
			}
			break
		}
	}
	return purged, nil
}
