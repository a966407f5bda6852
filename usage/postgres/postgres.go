// Package postgres provides a PostgreSQL-backed UsageStore for
// multi-process deployments that already run Postgres.
package postgres

import (
	"context"
	"fmt"

	"github.com/farmsola/askrouter"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultTablePrefix = "askrouter_"

// Store is a PostgreSQL-backed UsageStore.
type Store struct {
	pool        *pgxpool.Pool
	tablePrefix string
}

var _ askrouter.UsageStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithTablePrefix overrides the default "askrouter_" table prefix.
func WithTablePrefix(prefix string) Option {
	return func(s *Store) { s.tablePrefix = prefix }
}

// New creates a Postgres-backed store using an existing pool. Call
// EnsureSchema before first use unless migrations are managed elsewhere.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:        pool,
		tablePrefix: defaultTablePrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) table() string {
	return s.tablePrefix + "usage_records"
}

// EnsureSchema creates the usage table and index if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			user_id  TEXT   NOT NULL,
			day      TEXT   NOT NULL,
			provider TEXT   NOT NULL,
			requests BIGINT NOT NULL DEFAULT 0,
			tokens   BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, day, provider)
		);
		CREATE INDEX IF NOT EXISTS %[1]s_day_idx ON %[1]s (day);
	`, s.table()))
	if err != nil {
		return fmt.Errorf("askrouter/postgres: ensure schema: %w", err)
	}
	return nil
}

// Get returns all records for (userID, day), keyed by provider id.
func (s *Store) Get(ctx context.Context, userID string, day askrouter.DayKey) (map[string]askrouter.UsageRecord, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT provider, requests, tokens FROM %s WHERE user_id = $1 AND day = $2`, s.table()),
		userID, string(day),
	)
	if err != nil {
		return nil, fmt.Errorf("askrouter/postgres: get: %w", err)
	}
	defer rows.Close()

	out := make(map[string]askrouter.UsageRecord)
	for rows.Next() {
		rec := askrouter.UsageRecord{UserID: userID, Day: day}
		if err := rows.Scan(&rec.Provider, &rec.Requests, &rec.Tokens); err != nil {
			return nil, fmt.Errorf("askrouter/postgres: scan: %w", err)
		}
		out[rec.Provider] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("askrouter/postgres: rows: %w", err)
	}
	return out, nil
}

// Increment atomically adds one request and tokens via upsert.
func (s *Store) Increment(ctx context.Context, userID string, day askrouter.DayKey, provider string, tokens int64) (askrouter.UsageRecord, error) {
	rec := askrouter.UsageRecord{UserID: userID, Day: day, Provider: provider}

	err := s.pool.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO %[1]s (user_id, day, provider, requests, tokens)
		VALUES ($1, $2, $3, 1, $4)
		ON CONFLICT (user_id, day, provider)
		DO UPDATE SET requests = %[1]s.requests + 1, tokens = %[1]s.tokens + excluded.tokens
		RETURNING requests, tokens`, s.table()),
		userID, string(day), provider, tokens,
	).Scan(&rec.Requests, &rec.Tokens)
	if err != nil {
		return askrouter.UsageRecord{}, fmt.Errorf("askrouter/postgres: increment: %w", err)
	}
	return rec, nil
}

// PurgeBefore deletes records for days earlier than cutoff.
func (s *Store) PurgeBefore(ctx context.Context, cutoff askrouter.DayKey) (int64, error) {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE day < $1`, s.table()),
		string(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("askrouter/postgres: purge: %w", err)
	}
	return tag.RowsAffected(), nil
}
