// Package eventstore defines the append-only, per-stream event log
// contract of spec.md §4.4: contiguous per-stream versions, optimistic
// concurrency on append, snapshots, and replay. Concrete backends live
// in the postgres, bolt and memory subpackages.
package eventstore

import "time"

// Event is an immutable record appended to a stream. (stream_id,
// version) is the primary key; events are never mutated or deleted.
type Event struct {
	StreamID  string
	Version   int64
	Type      string
	Payload   []byte
	Metadata  map[string]string
	CreatedAt time.Time
}

// EventDraft is what a caller supplies to Append; the store stamps
// StreamID, Version and CreatedAt.
type EventDraft struct {
	Type     string
	Payload  []byte
	Metadata map[string]string
}

// Snapshot is a point-in-time serialization of an aggregate's state at
// a given stream version. One per stream; a newer save replaces the
// older one.
type Snapshot struct {
	StreamID  string
	Version   int64
	State     []byte
	CreatedAt time.Time
}

// AppendResult carries the stream's new head version after a
// successful append.
type AppendResult struct {
	NewVersion int64
}

// BatchAppend is one (stream, expected version, events) tuple inside a
// call to AppendBatch; each tuple succeeds or fails independently.
type BatchAppend struct {
	StreamID        string
	ExpectedVersion *int64
	Events          []EventDraft
}

// BatchResult pairs a BatchAppend's outcome with its index in the
// request slice.
type BatchResult struct {
	Index   int
	Version int64
	Err     error
}

// TailEvent is an event returned by Tail, additionally carrying the
// store-wide monotonic position used for projection catch-up cursors.
type TailEvent struct {
	Event
	GlobalPosition int64
}
