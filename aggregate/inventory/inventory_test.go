package inventory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reactor"
)

type fakeLoader struct {
	available map[string]int
	err       error
	calls     int
}

func (f *fakeLoader) Load(ctx context.Context, scope string) (int, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.available[scope], nil
}

func TestFirstCommandForScopeLoadsThenProcesses(t *testing.T) {
	loader := &fakeLoader{available: map[string]int{"GA": 10}}
	env := Env{Loader: loader}
	s := reactor.NewStore[State, Action, Env](context.Background(), State{}, Reducer, env, reactor.Config[Action]{Name: "inventory"})
	defer s.Shutdown(time.Second)

	h := s.Send(context.Background(), Action{Kind: KindReserveSeats, ReserveSeats: &ReserveSeats{Scope: "GA", Quantity: 2}})
	require.NoError(t, h.Wait())

	final := s.State()
	assert.Equal(t, Ready, final.Workflow)
	assert.Equal(t, "GA", final.LoadedScope)
	assert.True(t, final.Reserved)
	assert.Equal(t, 8, final.Available)
	assert.Equal(t, 1, loader.calls)
}

func TestSecondCommandSameScopeSkipsReload(t *testing.T) {
	loader := &fakeLoader{available: map[string]int{"GA": 10}}
	env := Env{Loader: loader}
	s := reactor.NewStore[State, Action, Env](context.Background(), State{}, Reducer, env, reactor.Config[Action]{Name: "inventory"})
	defer s.Shutdown(time.Second)

	h1 := s.Send(context.Background(), Action{Kind: KindReserveSeats, ReserveSeats: &ReserveSeats{Scope: "GA", Quantity: 2}})
	require.NoError(t, h1.Wait())

	h2 := s.Send(context.Background(), Action{Kind: KindReserveSeats, ReserveSeats: &ReserveSeats{Scope: "GA", Quantity: 3}})
	require.NoError(t, h2.Wait())

	final := s.State()
	assert.Equal(t, 5, final.Available)
	assert.Equal(t, 1, loader.calls, "same-scope command must not trigger a second load")
}

func TestMismatchedScopeTriggersFreshLoad(t *testing.T) {
	loader := &fakeLoader{available: map[string]int{"GA": 10, "VIP": 4}}
	env := Env{Loader: loader}
	s := reactor.NewStore[State, Action, Env](context.Background(), State{}, Reducer, env, reactor.Config[Action]{Name: "inventory"})
	defer s.Shutdown(time.Second)

	h1 := s.Send(context.Background(), Action{Kind: KindReserveSeats, ReserveSeats: &ReserveSeats{Scope: "GA", Quantity: 2}})
	require.NoError(t, h1.Wait())

	h2 := s.Send(context.Background(), Action{Kind: KindReserveSeats, ReserveSeats: &ReserveSeats{Scope: "VIP", Quantity: 1}})
	require.NoError(t, h2.Wait())

	final := s.State()
	assert.Equal(t, "VIP", final.LoadedScope)
	assert.Equal(t, 3, final.Available)
	assert.Equal(t, 2, loader.calls)
}

func TestCommandExceedingAvailabilityIsRejected(t *testing.T) {
	loader := &fakeLoader{available: map[string]int{"GA": 1}}
	env := Env{Loader: loader}
	s := reactor.NewStore[State, Action, Env](context.Background(), State{}, Reducer, env, reactor.Config[Action]{Name: "inventory"})
	defer s.Shutdown(time.Second)

	h := s.Send(context.Background(), Action{Kind: KindReserveSeats, ReserveSeats: &ReserveSeats{Scope: "GA", Quantity: 5}})
	require.NoError(t, h.Wait())

	final := s.State()
	assert.False(t, final.Reserved)
	assert.Equal(t, "insufficient availability", final.RejectedReason)
}

func TestLoadFailureReturnsToIdle(t *testing.T) {
	loader := &fakeLoader{err: errors.New("projection unavailable")}
	env := Env{Loader: loader}
	s := reactor.NewStore[State, Action, Env](context.Background(), State{}, Reducer, env, reactor.Config[Action]{Name: "inventory"})
	defer s.Shutdown(time.Second)

	h := s.Send(context.Background(), Action{Kind: KindReserveSeats, ReserveSeats: &ReserveSeats{Scope: "GA", Quantity: 1}})
	require.NoError(t, h.Wait())

	final := s.State()
	assert.Equal(t, Idle, final.Workflow)
	assert.Equal(t, "projection unavailable", final.RejectedReason)
}
