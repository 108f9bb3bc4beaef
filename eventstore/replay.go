package eventstore

import "context"

// FoldFunc applies one event to a state value, producing the next state.
type FoldFunc[S any] func(state S, event Event) S

// Replay rebuilds state for streamID by loading its snapshot (if any)
// and folding the events after it, tolerating a missing snapshot by
// folding from version 0. This realizes the snapshot/restore law of
// spec.md §8: restore(load_snapshot()) then apply load_events(from =
// snapshot.version+1) equals apply load_events(from=0).
func Replay[S any](ctx context.Context, store EventStore, streamID string, initial S, decode func([]byte) (S, error), fold FoldFunc[S]) (S, int64, error) {
	state := initial
	fromVersion := int64(0)

	snap, err := store.LoadSnapshot(ctx, streamID)
	if err != nil {
		return state, 0, err
	}
	if snap != nil {
		decoded, err := decode(snap.State)
		if err != nil {
			return state, 0, err
		}
		state = decoded
		fromVersion = snap.Version + 1
	}

	events, err := store.Load(ctx, streamID, fromVersion)
	if err != nil {
		return state, 0, err
	}

	version := fromVersion - 1
	for _, ev := range events {
		state = fold(state, ev)
		version = ev.Version
	}
	return state, version, nil
}
