// Package postgres implements eventstore.EventStore against the
// relational schema of spec.md §6, adapted from the teacher's
// pkg/dcb/postgres/store.go: the same pgxpool + SERIALIZABLE
// transaction + batched insert shape, but keyed by
// (stream_id, version) instead of a single cross-stream tag-matched
// position.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"reactor/eventstore"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is a pgx-backed EventStore. maxBatchSize bounds a single
// Append call, mirroring the teacher's 1000-event default.
type Store struct {
	pool         *pgxpool.Pool
	maxBatchSize int
}

// New wraps an existing pool. Run Schema against the target database
// before first use.
func New(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, &eventstore.ValidationError{
			StoreError: eventstore.StoreError{Op: "New", Err: fmt.Errorf("pool cannot be nil")},
			Field:      "pool",
		}
	}
	return &Store{pool: pool, maxBatchSize: 1000}, nil
}

func (s *Store) Append(ctx context.Context, streamID string, expectedVersion *int64, drafts []eventstore.EventDraft) (eventstore.AppendResult, error) {
	if streamID == "" {
		return eventstore.AppendResult{}, &eventstore.ValidationError{
			StoreError: eventstore.StoreError{Op: "Append", Err: fmt.Errorf("stream id must not be empty")},
			Field:      "stream_id",
		}
	}
	if len(drafts) > s.maxBatchSize {
		return eventstore.AppendResult{}, &eventstore.ValidationError{
			StoreError: eventstore.StoreError{Op: "Append", Err: fmt.Errorf("batch size %d exceeds maximum %d", len(drafts), s.maxBatchSize)},
			Field:      "events",
		}
	}
	for i, d := range drafts {
		if d.Type == "" {
			return eventstore.AppendResult{}, &eventstore.ValidationError{
				StoreError: eventstore.StoreError{Op: "Append", Err: fmt.Errorf("event %d has empty type", i)},
				Field:      "type",
			}
		}
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return eventstore.AppendResult{}, classifyConnErr("Append", err)
	}
	defer tx.Rollback(ctx)

	var head int64 = -1
	err = tx.QueryRow(ctx, `SELECT COALESCE(MAX(version), -1) FROM events WHERE stream_id = $1`, streamID).Scan(&head)
	if err != nil {
		return eventstore.AppendResult{}, classifyConnErr("Append", err)
	}

	if expectedVersion == nil {
		if head != -1 {
			return eventstore.AppendResult{}, &eventstore.ConcurrencyError{
				StoreError: eventstore.StoreError{Op: "Append"}, StreamID: streamID, Expected: -1, Actual: head,
			}
		}
	} else if *expectedVersion != head {
		return eventstore.AppendResult{}, &eventstore.ConcurrencyError{
			StoreError: eventstore.StoreError{Op: "Append"}, StreamID: streamID, Expected: *expectedVersion, Actual: head,
		}
	}

	if len(drafts) == 0 {
		if err := tx.Commit(ctx); err != nil {
			return eventstore.AppendResult{}, classifyAppendErr("Append", err, streamID, expectedVersion, head)
		}
		return eventstore.AppendResult{NewVersion: head}, nil
	}

	now := time.Now()
	batch := &pgx.Batch{}
	version := head
	for _, d := range drafts {
		version++
		meta, err := json.Marshal(d.Metadata)
		if err != nil {
			return eventstore.AppendResult{}, &eventstore.StoreError{Op: "Append", Err: err}
		}
		batch.Queue(
			`INSERT INTO events (stream_id, version, event_type, payload, metadata, created_at) VALUES ($1,$2,$3,$4,$5,$6)`,
			streamID, version, d.Type, d.Payload, meta, now,
		)
	}
	br := tx.SendBatch(ctx, batch)
	for i := 0; i < len(drafts); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return eventstore.AppendResult{}, classifyAppendErr("Append", err, streamID, expectedVersion, head)
		}
	}
	if err := br.Close(); err != nil {
		return eventstore.AppendResult{}, classifyAppendErr("Append", err, streamID, expectedVersion, head)
	}

	if err := tx.Commit(ctx); err != nil {
		return eventstore.AppendResult{}, classifyAppendErr("Append", err, streamID, expectedVersion, head)
	}

	return eventstore.AppendResult{NewVersion: version}, nil
}

func (s *Store) AppendBatch(ctx context.Context, appends []eventstore.BatchAppend) ([]eventstore.BatchResult, error) {
	results := make([]eventstore.BatchResult, len(appends))
	for i, a := range appends {
		res, err := s.Append(ctx, a.StreamID, a.ExpectedVersion, a.Events)
		results[i] = eventstore.BatchResult{Index: i, Version: res.NewVersion, Err: err}
	}
	return results, nil
}

func (s *Store) Load(ctx context.Context, streamID string, fromVersion int64) ([]eventstore.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT stream_id, version, event_type, payload, metadata, created_at FROM events
		 WHERE stream_id = $1 AND version >= $2 ORDER BY version ASC`,
		streamID, fromVersion)
	if err != nil {
		return nil, classifyConnErr("Load", err)
	}
	defer rows.Close()

	var out []eventstore.Event
	for rows.Next() {
		var ev eventstore.Event
		var metaBytes []byte
		if err := rows.Scan(&ev.StreamID, &ev.Version, &ev.Type, &ev.Payload, &metaBytes, &ev.CreatedAt); err != nil {
			return nil, &eventstore.CorruptPayloadError{
				StoreError: eventstore.StoreError{Op: "Load", Err: err}, StreamID: streamID,
			}
		}
		if len(metaBytes) > 0 {
			_ = json.Unmarshal(metaBytes, &ev.Metadata)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyConnErr("Load", err)
	}
	return out, nil
}

func (s *Store) SaveSnapshot(ctx context.Context, streamID string, version int64, state []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO snapshots (stream_id, version, state_bytes, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (stream_id) DO UPDATE
		SET version = EXCLUDED.version, state_bytes = EXCLUDED.state_bytes, created_at = EXCLUDED.created_at
		WHERE snapshots.version <= EXCLUDED.version`,
		streamID, version, state, time.Now())
	if err != nil {
		return classifyConnErr("SaveSnapshot", err)
	}
	return nil
}

func (s *Store) LoadSnapshot(ctx context.Context, streamID string) (*eventstore.Snapshot, error) {
	var snap eventstore.Snapshot
	snap.StreamID = streamID
	err := s.pool.QueryRow(ctx,
		`SELECT version, state_bytes, created_at FROM snapshots WHERE stream_id = $1`, streamID,
	).Scan(&snap.Version, &snap.State, &snap.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classifyConnErr("LoadSnapshot", err)
	}
	return &snap, nil
}

func (s *Store) Tail(ctx context.Context, fromPosition int64) (<-chan eventstore.TailEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT stream_id, version, event_type, payload, metadata, created_at, global_position
		 FROM events WHERE global_position > $1 ORDER BY global_position ASC`, fromPosition)
	if err != nil {
		return nil, classifyConnErr("Tail", err)
	}

	ch := make(chan eventstore.TailEvent, 256)
	go func() {
		defer close(ch)
		defer rows.Close()
		for rows.Next() {
			var te eventstore.TailEvent
			var metaBytes []byte
			if err := rows.Scan(&te.StreamID, &te.Version, &te.Type, &te.Payload, &metaBytes, &te.CreatedAt, &te.GlobalPosition); err != nil {
				return
			}
			if len(metaBytes) > 0 {
				_ = json.Unmarshal(metaBytes, &te.Metadata)
			}
			select {
			case ch <- te:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// classifyConnErr wraps a pgx error as TransientError for connection
// and timeout failures, matching spec.md §4.4's "Connection errors are
// classified transient".
func classifyConnErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &eventstore.TransientError{StoreError: eventstore.StoreError{Op: op, Err: err}}
	}
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		// Connection exception / operator intervention classes.
		switch pgErr.SQLState()[:2] {
		case "08", "57":
			return &eventstore.TransientError{StoreError: eventstore.StoreError{Op: op, Err: err}}
		}
	}
	return &eventstore.StoreError{Op: op, Err: err}
}

// classifyAppendErr wraps a pgx error raised during Append's batch
// insert or commit, mapping unique_violation (23505) and
// serialization_failure (40001) to eventstore.ConcurrencyError: a
// second transaction can still lose the (stream_id, version) race
// after the explicit head check above, and SERIALIZABLE isolation
// aborts the loser with 40001 rather than blocking. Actual reflects
// the head observed before the race, not necessarily the winner's
// final version, since the loser never sees that.
func classifyAppendErr(op string, err error, streamID string, expectedVersion *int64, head int64) error {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		switch pgErr.SQLState() {
		case "23505", "40001":
			expected := int64(-1)
			if expectedVersion != nil {
				expected = *expectedVersion
			}
			return &eventstore.ConcurrencyError{
				StoreError: eventstore.StoreError{Op: op, Err: err},
				StreamID:   streamID, Expected: expected, Actual: head,
			}
		}
	}
	return classifyConnErr(op, err)
}
