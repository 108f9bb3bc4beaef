// Package sqlstore provides a modernc.org/sqlite-backed read model
// store, following the migrate-on-construct, database/sql-idiomatic
// pattern of the teacher's ecosystem (nugget-thane-ai-agent's
// internal/watchlist and internal/facts stores), generalized to any
// projection that needs a durable last-processed-position marker plus
// an arbitrary table of projected rows.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store opens a sqlite database and tracks, per projector name, the
// last global position and event timestamp it successfully applied.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite database at path and runs
// the projection_cursors migration.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", path, err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS projection_cursors (
			projector       TEXT PRIMARY KEY,
			global_position INTEGER NOT NULL,
			event_timestamp TIMESTAMP NOT NULL
		)
	`)
	return err
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle so projectors can maintain their
// own read-model tables alongside the shared cursor table.
func (s *Store) DB() *sql.DB { return s.db }

// Cursor returns the last committed (global position, event timestamp)
// for name, or (-1, zero time, nil) if the projector has never run.
func (s *Store) Cursor(ctx context.Context, name string) (int64, time.Time, error) {
	var position int64
	var ts time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT global_position, event_timestamp FROM projection_cursors WHERE projector = ?`, name,
	).Scan(&position, &ts)
	if err == sql.ErrNoRows {
		return -1, time.Time{}, nil
	}
	if err != nil {
		return -1, time.Time{}, err
	}
	return position, ts, nil
}

// CommitCursor records the last-processed position for name. It is
// always an upsert: callers are expected to have already checked
// monotonicity via LastEventTimestampGate before calling.
func (s *Store) CommitCursor(ctx context.Context, name string, position int64, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projection_cursors (projector, global_position, event_timestamp)
		VALUES (?, ?, ?)
		ON CONFLICT(projector) DO UPDATE SET
			global_position = excluded.global_position,
			event_timestamp = excluded.event_timestamp
	`, name, position, ts)
	return err
}
