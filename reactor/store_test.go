package reactor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memstore "reactor/eventstore/memory"
)

type orderState struct {
	placed  bool
	shipped bool
	version int64
}

type orderAction struct {
	place       bool
	ship        bool
	placedAt    *int64
	conflict    bool
}

func orderReduce(s orderState, a orderAction, env *memstore.Store) (orderState, []Effect[orderAction]) {
	if a.place {
		return s, []Effect[orderAction]{
			AppendEvents[orderAction](AppendSpec[orderAction]{
				StreamID:        "order-42",
				ExpectedVersion: nil,
				Events:          []EventDraft{{Type: "PlaceOrder"}},
				OnSuccess: func(v int64) (orderAction, bool) {
					return orderAction{placedAt: &v}, true
				},
				OnConflict: func(expected, actual int64) (orderAction, bool) {
					return orderAction{conflict: true}, true
				},
			}),
		}
	}
	if a.placedAt != nil {
		s.placed = true
		s.version = *a.placedAt
		return s, nil
	}
	if a.conflict {
		return s, nil
	}
	return s, nil
}

func TestStoreSendAppliesEffectAndChains(t *testing.T) {
	store := memstore.New()
	s := NewStore[orderState, orderAction, *memstore.Store](context.Background(), orderState{}, ReducerFunc[orderState, orderAction, *memstore.Store](orderReduce), store, Config[orderAction]{Name: "order", EventStore: store})
	defer s.Shutdown(time.Second)

	h := s.Send(context.Background(), orderAction{place: true})
	require.NoError(t, h.Wait())

	final := s.State()
	assert.True(t, final.placed)
	assert.Equal(t, int64(0), final.version)

	events, err := store.Load(context.Background(), "order-42", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "PlaceOrder", events[0].Type)
}

func TestProjectReadsSnapshot(t *testing.T) {
	store := memstore.New()
	s := NewStore[orderState, orderAction, *memstore.Store](context.Background(), orderState{}, ReducerFunc[orderState, orderAction, *memstore.Store](orderReduce), store, Config[orderAction]{Name: "order", EventStore: store})
	defer s.Shutdown(time.Second)

	h := s.Send(context.Background(), orderAction{place: true})
	require.NoError(t, h.Wait())

	placed := Project(s, func(st orderState) bool { return st.placed })
	assert.True(t, placed)
}

func TestStoreFatalsWithoutEventStore(t *testing.T) {
	s := NewStore[orderState, orderAction, *memstore.Store](context.Background(), orderState{}, ReducerFunc[orderState, orderAction, *memstore.Store](orderReduce), nil, Config[orderAction]{Name: "order"})
	defer s.Shutdown(time.Second)

	h := s.Send(context.Background(), orderAction{place: true})
	err := h.Wait()
	require.Error(t, err)
	var fatal *FatalError
	assert.ErrorAs(t, err, &fatal)
}
