// Package memory implements eventstore.EventStore in a process-local
// map, grounded on the shape of other_examples' in-memory event
// stores (cacack-my-family's repository/memory/eventstore.go and
// orange-dot-attenditev2's internal/eventstore/store.go): one
// mutex-guarded map keyed by stream id holding a contiguous event
// slice, plus a snapshots map. Intended for unit tests and local
// development, not for production durability.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"reactor/eventstore"
)

var errEmptyStreamID = errors.New("stream id must not be empty")

type stream struct {
	events []eventstore.Event
}

// Store is an in-process EventStore. The zero value is not usable;
// call New.
type Store struct {
	mu        sync.Mutex
	streams   map[string]*stream
	snapshots map[string]eventstore.Snapshot
	global    int64
	log       []eventstore.TailEvent // all events in actual global append order
	tailSubs  []chan eventstore.TailEvent
}

// New constructs an empty in-memory event store.
func New() *Store {
	return &Store{
		streams:   make(map[string]*stream),
		snapshots: make(map[string]eventstore.Snapshot),
	}
}

func (s *Store) Append(ctx context.Context, streamID string, expectedVersion *int64, drafts []eventstore.EventDraft) (eventstore.AppendResult, error) {
	if streamID == "" {
		return eventstore.AppendResult{}, &eventstore.ValidationError{
			StoreError: eventstore.StoreError{Op: "Append", Err: errEmptyStreamID},
			Field:      "stream_id",
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.streams[streamID]
	head := int64(-1)
	if st != nil && len(st.events) > 0 {
		head = st.events[len(st.events)-1].Version
	}

	if expectedVersion == nil {
		if head != -1 {
			return eventstore.AppendResult{}, &eventstore.ConcurrencyError{
				StoreError: eventstore.StoreError{Op: "Append"},
				StreamID:   streamID, Expected: -1, Actual: head,
			}
		}
	} else if *expectedVersion != head {
		return eventstore.AppendResult{}, &eventstore.ConcurrencyError{
			StoreError: eventstore.StoreError{Op: "Append"},
			StreamID:   streamID, Expected: *expectedVersion, Actual: head,
		}
	}

	if len(drafts) == 0 {
		return eventstore.AppendResult{NewVersion: head}, nil
	}

	if st == nil {
		st = &stream{}
		s.streams[streamID] = st
	}

	now := time.Now()
	newEvents := make([]eventstore.Event, 0, len(drafts))
	for i, d := range drafts {
		ev := eventstore.Event{
			StreamID:  streamID,
			Version:   head + int64(i) + 1,
			Type:      d.Type,
			Payload:   d.Payload,
			Metadata:  d.Metadata,
			CreatedAt: now,
		}
		newEvents = append(newEvents, ev)
	}
	st.events = append(st.events, newEvents...)

	for _, ev := range newEvents {
		s.global++
		te := eventstore.TailEvent{Event: ev, GlobalPosition: s.global}
		s.log = append(s.log, te)
		s.broadcastLocked(te)
	}

	return eventstore.AppendResult{NewVersion: newEvents[len(newEvents)-1].Version}, nil
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
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.streams[streamID]
	if st == nil {
		return nil, nil
	}
	out := make([]eventstore.Event, 0, len(st.events))
	for _, ev := range st.events {
		if ev.Version >= fromVersion {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *Store) SaveSnapshot(ctx context.Context, streamID string, version int64, state []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.snapshots[streamID]
	if ok && existing.Version > version {
		return nil // idempotent: never regress a snapshot
	}
	s.snapshots[streamID] = eventstore.Snapshot{
		StreamID: streamID, Version: version, State: state, CreatedAt: time.Now(),
	}
	return nil
}

func (s *Store) LoadSnapshot(ctx context.Context, streamID string) (*eventstore.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[streamID]
	if !ok {
		return nil, nil
	}
	copied := snap
	return &copied, nil
}

func (s *Store) Tail(ctx context.Context, fromPosition int64) (<-chan eventstore.TailEvent, error) {
	ch := make(chan eventstore.TailEvent, 64)
	s.mu.Lock()
	s.tailSubs = append(s.tailSubs, ch)
	// replay everything already appended after fromPosition before
	// going live, so a catch-up subscriber sees a consistent prefix in
	// actual append order.
	var backlog []eventstore.TailEvent
	for _, te := range s.log {
		if te.GlobalPosition > fromPosition {
			backlog = append(backlog, te)
		}
	}
	s.mu.Unlock()

	go func() {
		for _, ev := range backlog {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.tailSubs {
			if sub == ch {
				s.tailSubs = append(s.tailSubs[:i], s.tailSubs[i+1:]...)
				break
			}
		}
		close(ch)
	}()

	return ch, nil
}

func (s *Store) broadcastLocked(ev eventstore.TailEvent) {
	for _, ch := range s.tailSubs {
		select {
		case ch <- ev:
		default:
			// bounded tail buffer; a slow subscriber falls behind
			// rather than blocking the append path.
		}
	}
}

func (s *Store) headVersionLocked(streamID string) int64 {
	st := s.streams[streamID]
	if st == nil || len(st.events) == 0 {
		return -1
	}
	return st.events[len(st.events)-1].Version
}
