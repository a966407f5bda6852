// Package redis provides a Redis-backed UsageStore for deployments where
// several orchestrator processes share one daily budget.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/farmsola/askrouter"
	goredis "github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "askrouter:usage:"

// Store is a Redis-backed UsageStore. Each (user, day) pair maps to one
// hash with per-provider request and token fields, so an increment is a
// pair of HINCRBYs in one pipeline.
type Store struct {
	client    *goredis.Client
	keyPrefix string
	ttl       time.Duration
}

var _ askrouter.UsageStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithKeyPrefix overrides the default "askrouter:usage:" key prefix.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.keyPrefix = prefix }
}

// WithTTL sets an expiry on each (user, day) hash, so Redis reclaims old
// days on its own and PurgeBefore becomes a safety net.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// New creates a Redis-backed store using an existing client.
func New(client *goredis.Client, opts ...Option) *Store {
	s := &Store{
		client:    client,
		keyPrefix: defaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(userID string, day askrouter.DayKey) string {
	return s.keyPrefix + string(day) + ":" + userID
}

// Get returns all records for (userID, day), keyed by provider id.
func (s *Store) Get(ctx context.Context, userID string, day askrouter.DayKey) (map[string]askrouter.UsageRecord, error) {
	fields, err := s.client.HGetAll(ctx, s.key(userID, day)).Result()
	if err != nil {
		return nil, fmt.Errorf("askrouter/redis: get: %w", err)
	}

	out := make(map[string]askrouter.UsageRecord)
	for field, raw := range fields {
		provider, isTokens := strings.CutSuffix(field, ":tokens")
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("askrouter/redis: parse field %q: %w", field, err)
		}

		rec := out[provider]
		rec.UserID = userID
		rec.Day = day
		rec.Provider = provider
		if isTokens {
			rec.Tokens = n
		} else {
			rec.Requests = n
		}
		out[provider] = rec
	}
	return out, nil
}

// Increment atomically adds one request and tokens for the provider.
func (s *Store) Increment(ctx context.Context, userID string, day askrouter.DayKey, provider string, tokens int64) (askrouter.UsageRecord, error) {
	key := s.key(userID, day)

	pipe := s.client.TxPipeline()
	reqCmd := pipe.HIncrBy(ctx, key, provider, 1)
	tokCmd := pipe.HIncrBy(ctx, key, provider+":tokens", tokens)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return askrouter.UsageRecord{}, fmt.Errorf("askrouter/redis: increment: %w", err)
	}

	return askrouter.UsageRecord{
		UserID:   userID,
		Day:      day,
		Provider: provider,
		Requests: reqCmd.Val(),
		Tokens:   tokCmd.Val(),
	}, nil
}

// PurgeBefore deletes hashes for days earlier than cutoff. Key layout puts
// the day before the user id, so the day is recoverable from the key alone.
func (s *Store) PurgeBefore(ctx context.Context, cutoff askrouter.DayKey) (int64, error) {
	var purged int64
	iter := s.client.Scan(ctx, 0, s.keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		rest := strings.TrimPrefix(key, s.keyPrefix)
		day, _, ok := strings.Cut(rest, ":")
		if !ok || !askrouter.DayKey(day).Before(cutoff) {
			continue
		}
		if err := s.client.Del(ctx, key).Err(); err != nil {
			return purged, fmt.Errorf("askrouter/redis: purge %q: %w", key, err)
		}
		purged++
	}
	if err := iter.Err(); err != nil {
		return purged, fmt.Errorf("askrouter/redis: scan: %w", err)
	}
	return purged, nil
}
