package eventstore

import "context"

// EventStore is the append-only per-stream log contract of spec.md
// §4.4. expectedVersion nil means "stream must not yet exist"; a
// mismatch between expectedVersion and the stream's current head
// returns *ConcurrencyError without writing anything.
type EventStore interface {
	Append(ctx context.Context, streamID string, expectedVersion *int64, events []EventDraft) (AppendResult, error)

	// AppendBatch appends several streams' events in one call; each
	// BatchAppend succeeds or fails independently (per-append
	// atomicity, no cross-stream atomicity).
	AppendBatch(ctx context.Context, appends []BatchAppend) ([]BatchResult, error)

	// Load returns the ordered events of streamID starting at
	// fromVersion (inclusive), with strictly increasing, contiguous
	// versions.
	Load(ctx context.Context, streamID string, fromVersion int64) ([]Event, error)

	SaveSnapshot(ctx context.Context, streamID string, version int64, state []byte) error
	LoadSnapshot(ctx context.Context, streamID string) (*Snapshot, error)

	// Tail streams events in global append order starting after
	// fromPosition, for projection catch-up.
	Tail(ctx context.Context, fromPosition int64) (<-chan TailEvent, error)
}

// SnapshotThreshold is the spec.md §6 default: snapshot every 100 events.
const SnapshotThreshold = 100
