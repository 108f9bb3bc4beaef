// Package bolt implements eventstore.EventStore on a single bbolt
// file, giving the framework a zero-dependency embedded backend
// alongside the Postgres implementation, per spec.md §1's "specific
// database engines... treated as replaceable implementations".
// go.etcd.io/bbolt is the pack repo cuemby-warren's embedded storage
// dependency (pkg/manager/fsm.go).
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"reactor/eventstore"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketStreams   = []byte("streams")   // one sub-bucket per stream id
	bucketSnapshots = []byte("snapshots") // stream id -> encoded snapshot
	bucketGlobal    = []byte("global")    // global position -> (stream_id, version)
)

// Store persists events in a single bbolt file.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) the bbolt file at path and ensures
// the top-level buckets exist.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, &eventstore.StoreError{Op: "Open", Err: err}
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketStreams, bucketSnapshots, bucketGlobal} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, &eventstore.StoreError{Op: "Open", Err: err}
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

type encodedEvent struct {
	Type      string            `json:"type"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

func versionKey(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func (s *Store) Append(ctx context.Context, streamID string, expectedVersion *int64, drafts []eventstore.EventDraft) (eventstore.AppendResult, error) {
	if streamID == "" {
		return eventstore.AppendResult{}, &eventstore.ValidationError{
			StoreError: eventstore.StoreError{Op: "Append", Err: fmt.Errorf("stream id must not be empty")},
			Field:      "stream_id",
		}
	}

	var result eventstore.AppendResult
	err := s.db.Update(func(tx *bolt.Tx) error {
		streams := tx.Bucket(bucketStreams)
		sb, err := streams.CreateBucketIfNotExists([]byte(streamID))
		if err != nil {
			return err
		}

		head := int64(-1)
		if c := sb.Cursor(); true {
			k, _ := c.Last()
			if k != nil {
				head = int64(binary.BigEndian.Uint64(k))
			}
		}

		if expectedVersion == nil {
			if head != -1 {
				return &eventstore.ConcurrencyError{StoreError: eventstore.StoreError{Op: "Append"}, StreamID: streamID, Expected: -1, Actual: head}
			}
		} else if *expectedVersion != head {
			return &eventstore.ConcurrencyError{StoreError: eventstore.StoreError{Op: "Append"}, StreamID: streamID, Expected: *expectedVersion, Actual: head}
		}

		if len(drafts) == 0 {
			result = eventstore.AppendResult{NewVersion: head}
			return nil
		}

		global := tx.Bucket(bucketGlobal)
		now := time.Now()
		version := head
		for _, d := range drafts {
			version++
			enc := encodedEvent{Type: d.Type, Payload: d.Payload, Metadata: d.Metadata, CreatedAt: now}
			buf, err := json.Marshal(enc)
			if err != nil {
				return err
			}
			if err := sb.Put(versionKey(version), buf); err != nil {
				return err
			}
			pos, _ := global.NextSequence()
			ref, _ := json.Marshal(struct {
				StreamID string
				Version  int64
			}{streamID, version})
			if err := global.Put(versionKey(int64(pos)), ref); err != nil {
				return err
			}
		}
		result = eventstore.AppendResult{NewVersion: version}
		return nil
	})
	if err != nil {
		if eventstore.IsConcurrencyError(err) {
			return eventstore.AppendResult{}, err
		}
		return eventstore.AppendResult{}, &eventstore.StoreError{Op: "Append", Err: err}
	}
	return result, nil
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
	var out []eventstore.Event
	err := s.db.View(func(tx *bolt.Tx) error {
		sb := tx.Bucket(bucketStreams).Bucket([]byte(streamID))
		if sb == nil {
			return nil
		}
		return sb.ForEach(func(k, v []byte) error {
			version := int64(binary.BigEndian.Uint64(k))
			if version < fromVersion {
				return nil
			}
			var enc encodedEvent
			if err := json.Unmarshal(v, &enc); err != nil {
				return &eventstore.CorruptPayloadError{
					StoreError: eventstore.StoreError{Op: "Load", Err: err},
					StreamID:   streamID, Version: version,
				}
			}
			out = append(out, eventstore.Event{
				StreamID: streamID, Version: version, Type: enc.Type,
				Payload: enc.Payload, Metadata: enc.Metadata, CreatedAt: enc.CreatedAt,
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) SaveSnapshot(ctx context.Context, streamID string, version int64, state []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSnapshots)
		existing := b.Get([]byte(streamID))
		if existing != nil {
			var prev struct{ Version int64 }
			if err := json.Unmarshal(existing, &prev); err == nil && prev.Version > version {
				return nil
			}
		}
		buf, err := json.Marshal(struct {
			Version   int64
			State     []byte
			CreatedAt time.Time
		}{version, state, time.Now()})
		if err != nil {
			return err
		}
		return b.Put([]byte(streamID), buf)
	})
}

func (s *Store) LoadSnapshot(ctx context.Context, streamID string) (*eventstore.Snapshot, error) {
	var snap *eventstore.Snapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSnapshots)
		v := b.Get([]byte(streamID))
		if v == nil {
			return nil
		}
		var decoded struct {
			Version   int64
			State     []byte
			CreatedAt time.Time
		}
		if err := json.Unmarshal(v, &decoded); err != nil {
			return err
		}
		snap = &eventstore.Snapshot{StreamID: streamID, Version: decoded.Version, State: decoded.State, CreatedAt: decoded.CreatedAt}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Tail performs a one-shot scan of the global bucket; bbolt has no
// native change feed, so live tailing is not supported by this
// backend (use eventbus for fan-out instead).
func (s *Store) Tail(ctx context.Context, fromPosition int64) (<-chan eventstore.TailEvent, error) {
	ch := make(chan eventstore.TailEvent)
	go func() {
		defer close(ch)
		_ = s.db.View(func(tx *bolt.Tx) error {
			global := tx.Bucket(bucketGlobal)
			return global.ForEach(func(k, v []byte) error {
				pos := int64(binary.BigEndian.Uint64(k))
				if pos <= fromPosition {
					return nil
				}
				var ref struct {
					StreamID string
					Version  int64
				}
				if err := json.Unmarshal(v, &ref); err != nil {
					return err
				}
				events, err := s.Load(ctx, ref.StreamID, ref.Version)
				if err != nil || len(events) == 0 {
					return err
				}
				select {
				case ch <- eventstore.TailEvent{Event: events[0], GlobalPosition: pos}:
				case <-ctx.Done():
					return ctx.Err()
				}
				return nil
			})
		})
	}()
	return ch, nil
}
