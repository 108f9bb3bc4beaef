// Package inventory is a worked example of command-time state loading
// (load-then-process): the aggregate does not keep a scope's data
// resident between commands. The first command touching a scope it
// hasn't loaded transitions to LoadingData, issues a Future effect
// that queries the scope's projection, and re-submits the pending
// command as a follow-up action once the data arrives.
package inventory

import (
	"context"

	"reactor"
)

// Workflow is the aggregate's loading state machine.
type Workflow int

const (
	Idle Workflow = iota
	LoadingData
	Ready
)

// State tracks at most one in-flight scope load at a time: a real
// deployment runs one Store per scope (or shards by scope), so this
// single-pending-command shape is sufficient.
type State struct {
	Workflow       Workflow
	LoadedScope    string
	PendingCommand *ReserveSeats
	Available      int

	Reserved       bool
	RejectedReason string
}

type Kind int

const (
	KindReserveSeats Kind = iota
	KindDataLoaded
	KindDataLoadFailed
)

type Action struct {
	Kind Kind

	ReserveSeats   *ReserveSeats
	DataLoaded     *DataLoaded
	DataLoadFailed *DataLoadFailed
}

// ReserveSeats is the command; Scope identifies which section's
// availability must be loaded before it can be processed.
type ReserveSeats struct {
	Scope    string
	Quantity int
}

type DataLoaded struct {
	Scope     string
	Available int
}

type DataLoadFailed struct {
	Scope  string
	Reason string
}

// Loader queries the projection backing a scope's current
// availability. A real deployment wires this to projection/sqlstore;
// tests fake it directly.
type Loader interface {
	Load(ctx context.Context, scope string) (int, error)
}

type Env struct {
	Loader Loader
}

var Reducer = reactor.ReducerFunc[State, Action, Env](reduce)

func reduce(state State, action Action, env Env) (State, []reactor.Effect[Action]) {
	switch action.Kind {
	case KindReserveSeats:
		cmd := action.ReserveSeats
		if state.Workflow == Ready && state.LoadedScope == cmd.Scope {
			return process(state, cmd)
		}
		state.Workflow = LoadingData
		state.PendingCommand = cmd
		return state, []reactor.Effect[Action]{loadEffect(env, cmd.Scope)}

	case KindDataLoaded:
		if state.Workflow != LoadingData {
			return state, nil
		}
		loaded := action.DataLoaded
		state.Available = loaded.Available
		state.LoadedScope = loaded.Scope
		state.Workflow = Ready

		pending := state.PendingCommand
		state.PendingCommand = nil
		if pending == nil || pending.Scope != loaded.Scope {
			return state, nil
		}
		return state, []reactor.Effect[Action]{resubmitEffect(*pending)}

	case KindDataLoadFailed:
		if state.Workflow != LoadingData {
			return state, nil
		}
		state.Workflow = Idle
		state.PendingCommand = nil
		state.RejectedReason = action.DataLoadFailed.Reason
		return state, nil
	}
	return state, nil
}

func process(state State, cmd *ReserveSeats) (State, []reactor.Effect[Action]) {
	if cmd.Quantity > state.Available {
		state.Reserved = false
		state.RejectedReason = "insufficient availability"
		return state, nil
	}
	state.Available -= cmd.Quantity
	state.Reserved = true
	state.RejectedReason = ""
	return state, nil
}

func loadEffect(env Env, scope string) reactor.Effect[Action] {
	return reactor.Future[Action](func(ctx context.Context) (Action, bool, error) {
		available, err := env.Loader.Load(ctx, scope)
		if err != nil {
			return Action{Kind: KindDataLoadFailed, DataLoadFailed: &DataLoadFailed{Scope: scope, Reason: err.Error()}}, true, nil
		}
		return Action{Kind: KindDataLoaded, DataLoaded: &DataLoaded{Scope: scope, Available: available}}, true, nil
	})
}

// resubmitEffect re-enters the pending command as a fresh action once
// its scope's data has loaded, matching spec's "re-submits the stored
// pending command as a follow-up action" rather than processing it
// inline from within the DataLoaded branch.
func resubmitEffect(cmd ReserveSeats) reactor.Effect[Action] {
	return reactor.Future[Action](func(ctx context.Context) (Action, bool, error) {
		return Action{Kind: KindReserveSeats, ReserveSeats: &cmd}, true, nil
	})
}
