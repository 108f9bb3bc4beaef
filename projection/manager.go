// Package projection drives read models off an eventstore.EventStore's
// Tail feed: each Projector applies events in global order and tracks
// its own last-processed position so restarts resume rather than
// replay from scratch.
package projection

import (
	"context"
	"time"

	"reactor/eventstore"
	"reactor/internal/rlog"
)

// Projector applies one event to a read model. Apply must be
// idempotent under at-least-once delivery: implementations should
// compare the event's timestamp against whatever they last recorded
// and skip stale or duplicate events rather than assume exactly-once.
type Projector interface {
	Name() string
	Apply(ctx context.Context, event eventstore.TailEvent) error
	// LastPosition returns the global position to resume Tail from, or
	// -1 if the projector has never run.
	LastPosition(ctx context.Context) (int64, error)
}

// Manager runs one or more Projectors against a single EventStore's
// Tail feed, restarting each from its own last-committed position.
type Manager struct {
	store      eventstore.EventStore
	projectors []Projector
	log        rlog.Logger
}

// NewManager constructs a Manager over store for the given projectors.
func NewManager(store eventstore.EventStore, projectors ...Projector) *Manager {
	return &Manager{store: store, projectors: projectors, log: rlog.Named("projection")}
}

// Run starts one goroutine per projector and blocks until ctx is
// cancelled or every projector's feed closes.
func (m *Manager) Run(ctx context.Context) error {
	done := make(chan error, len(m.projectors))
	for _, p := range m.projectors {
		p := p
		go func() {
			done <- m.runOne(ctx, p)
		}()
	}
	var firstErr error
	for range m.projectors {
		if err := <-done; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *Manager) runOne(ctx context.Context, p Projector) error {
	log := m.log.With().Str("projector", p.Name()).Logger()

	from, err := p.LastPosition(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to load last position")
		return err
	}

	events, err := m.store.Tail(ctx, from)
	if err != nil {
		log.Error().Err(err).Msg("failed to open tail feed")
		return err
	}

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if err := p.Apply(ctx, event); err != nil {
				log.Error().Err(err).
					Int64("global_position", event.GlobalPosition).
					Str("stream_id", event.StreamID).
					Msg("projector apply failed")
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// LastEventTimestampGate implements the "compare and only advance
// forward" idempotency rule shared by concrete projector
// implementations: CompareAndAdvance reports whether candidate is
// newer than (or equal to, last write wins) the stored marker, and if
// so updates it.
type LastEventTimestampGate struct {
	stored time.Time
}

// CompareAndAdvance reports whether candidate should be applied.
// Equal timestamps are treated as last-write-wins and do advance the
// marker, matching concurrent projector replicas converging on the
// same final value.
func (g *LastEventTimestampGate) CompareAndAdvance(candidate time.Time) bool {
	if candidate.Before(g.stored) {
		return false
	}
	g.stored = candidate
	return true
}
