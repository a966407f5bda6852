// Package sqlite provides a SQLite-backed UsageStore.
//
// This is the intended durable backend for the single-process deployment:
// usage records survive restarts without requiring an external service.
// Uses the cgo-free modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/farmsola/askrouter"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS usage_records (
	user_id  TEXT NOT NULL,
	day      TEXT NOT NULL,
	provider TEXT NOT NULL,
	requests INTEGER NOT NULL DEFAULT 0,
	tokens   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (user_id, day, provider)
);
CREATE INDEX IF NOT EXISTS idx_usage_day ON usage_records (day);
`

// Store is a SQLite-backed UsageStore.
type Store struct {
	db *sql.DB
}

var _ askrouter.UsageStore = (*Store)(nil)

// Open opens (creating if needed) the database at path and ensures the
// schema. The connection is limited to one writer; SQLite does not benefit
// from multiple write connections and this avoids lock contention.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("askrouter/sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("askrouter/sqlite: enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("askrouter/sqlite: ensure schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns all records for (userID, day), keyed by provider id.
func (s *Store) Get(ctx context.Context, userID string, day askrouter.DayKey) (map[string]askrouter.UsageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT provider, requests, tokens FROM usage_records WHERE user_id = ? AND day = ?`,
		userID, string(day),
	)
	if err != nil {
		return nil, fmt.Errorf("askrouter/sqlite: get: %w", err)
	}
	defer rows.Close()

	out := make(map[string]askrouter.UsageRecord)
	for rows.Next() {
		rec := askrouter.UsageRecord{UserID: userID, Day: day}
		if err := rows.Scan(&rec.Provider, &rec.Requests, &rec.Tokens); err != nil {
			return nil, fmt.Errorf("askrouter/sqlite: scan: %w", err)
		}
		out[rec.Provider] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("askrouter/sqlite: rows: %w", err)
	}
	return out, nil
}

// Increment atomically adds one request and tokens via upsert.
func (s *Store) Increment(ctx context.Context, userID string, day askrouter.DayKey, provider string, tokens int64) (askrouter.UsageRecord, error) {
	rec := askrouter.UsageRecord{UserID: userID, Day: day, Provider: provider}

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO usage_records (user_id, day, provider, requests, tokens)
		 VALUES (?, ?, ?, 1, ?)
		 ON CONFLICT (user_id, day, provider)
		 DO UPDATE SET requests = requests + 1, tokens = tokens + excluded.tokens
		 RETURNING requests, tokens`,
		userID, string(day), provider, tokens,
	).Scan(&rec.Requests, &rec.Tokens)
	if err != nil {
		return askrouter.UsageRecord{}, fmt.Errorf("askrouter/sqlite: increment: %w", err)
	}
	return rec, nil
}

// PurgeBefore deletes records for days earlier than cutoff.
func (s *Store) PurgeBefore(ctx context.Context, cutoff askrouter.DayKey) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM usage_records WHERE day < ?`, string(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("askrouter/sqlite: purge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("askrouter/sqlite: purge rows: %w", err)
	}
	return n, nil
}
