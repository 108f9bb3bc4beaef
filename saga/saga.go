// Package saga provides small helpers for writing sagas as ordinary
// reactor.Reducer values: a saga's state is an explicit workflow state
// machine, and its effects dispatch commands to child stores (via
// Future) or schedule timeouts (via Delay) rather than awaiting
// anything directly. See saga/checkout for a worked example.
package saga

import (
	"context"
	"time"

	"reactor"
)

// Dispatch builds a Future effect that calls send and maps its outcome
// to a follow-up action via onDone. It is the shape every "send a
// command to a child store" transition in a saga reducer takes.
func Dispatch[A any](send func(ctx context.Context) error, onDone func(err error) (A, bool)) reactor.Effect[A] {
	return reactor.Future[A](func(ctx context.Context) (A, bool, error) {
		err := send(ctx)
		action, ok := onDone(err)
		return action, ok, nil
	})
}

// Timeout schedules action to re-enter the saga's store after d,
// naming the intent at call sites more clearly than a bare
// reactor.Delay would.
func Timeout[A any](d time.Duration, action A) reactor.Effect[A] {
	return reactor.Delay[A](d, action)
}
