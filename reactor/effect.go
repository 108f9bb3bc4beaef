// Package reactor implements the state-action-effect runtime: a pure
// Reducer maps (state, action, env) to a new state plus a list of
// Effect values, and a Store serializes reducer calls while an
// executor runs the effects those calls return.
package reactor

import (
	"context"
	"time"

	"reactor/internal/resilience"
)

// RetryPolicy is the executor's per-effect retry override; see
// internal/resilience for the exponential-backoff-with-jitter
// implementation shared with the event store and event bus adapters.
type RetryPolicy = resilience.RetryPolicy

// Kind tags the variant carried by an Effect.
type Kind int

const (
	// KindNone is a no-op effect.
	KindNone Kind = iota
	// KindFuture wraps an arbitrary asynchronous computation.
	KindFuture
	// KindDelay schedules an action to re-enter the store after a duration.
	KindDelay
	// KindSequential runs child effects in order, waiting for each to finish.
	KindSequential
	// KindParallel runs child effects concurrently with no ordering guarantee.
	KindParallel
	// KindAppendEvents appends events to a stream in the event store.
	KindAppendEvents
	// KindPublishEvent publishes a message to the event bus.
	KindPublishEvent
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindFuture:
		return "future"
	case KindDelay:
		return "delay"
	case KindSequential:
		return "sequential"
	case KindParallel:
		return "parallel"
	case KindAppendEvents:
		return "append_events"
	case KindPublishEvent:
		return "publish_event"
	default:
		return "unknown"
	}
}

// FutureFunc is an arbitrary asynchronous computation run by the
// executor. It must not mutate store state directly; any follow-up
// is expressed as the returned action.
type FutureFunc[A any] func(ctx context.Context) (A, bool, error)

// AppendSpec describes a KindAppendEvents effect's payload.
type AppendSpec[A any] struct {
	StreamID        string
	ExpectedVersion *int64 // nil means "stream must not yet exist"
	Events          []EventDraft
	OnSuccess       func(newVersion int64) (A, bool)
	OnConflict      func(expected, actual int64) (A, bool)
}

// EventDraft is the event payload a reducer hands to the executor; the
// event store stamps stream id, version and created_at on append.
type EventDraft struct {
	Type     string
	Payload  []byte
	Metadata map[string]string
}

// PublishSpec describes a KindPublishEvent effect's payload.
type PublishSpec[A any] struct {
	Topic     string
	Key       string
	Payload   []byte
	OnSuccess func() (A, bool)
}

// Effect is a value describing a side effect to run after a reducer
// returns. It is never executed by the reducer itself.
type Effect[A any] struct {
	Kind Kind

	Future FutureFunc[A]

	Delay       time.Duration
	DelayAction A
	HasDelay    bool

	Children []Effect[A]
	// Join, when true on a Sequential effect, means the executor waits
	// for each child's follow-up action (if any) before starting the
	// next child, not just for the child's own completion.
	Join bool

	Append  *AppendSpec[A]
	Publish *PublishSpec[A]

	// Retry overrides the executor's default retry policy for this
	// effect. Nil means "use the executor default".
	Retry *RetryPolicy
}

// None is the no-op effect.
func None[A any]() Effect[A] { return Effect[A]{Kind: KindNone} }

// Future wraps an asynchronous computation as an effect.
func Future[A any](f FutureFunc[A]) Effect[A] {
	return Effect[A]{Kind: KindFuture, Future: f}
}

// Delay schedules action to resubmit after d.
func Delay[A any](d time.Duration, action A) Effect[A] {
	return Effect[A]{Kind: KindDelay, Delay: d, DelayAction: action, HasDelay: true}
}

// Sequential runs children in list order, waiting for completion of
// each before starting the next.
func Sequential[A any](children ...Effect[A]) Effect[A] {
	return Effect[A]{Kind: KindSequential, Children: children}
}

// Parallel runs children concurrently; completions are unordered.
func Parallel[A any](children ...Effect[A]) Effect[A] {
	return Effect[A]{Kind: KindParallel, Children: children}
}

// AppendEvents appends events to a stream, subject to optimistic
// concurrency against expectedVersion.
func AppendEvents[A any](spec AppendSpec[A]) Effect[A] {
	return Effect[A]{Kind: KindAppendEvents, Append: &spec}
}

// PublishEvent publishes bytes to a bus topic under key.
func PublishEvent[A any](spec PublishSpec[A]) Effect[A] {
	return Effect[A]{Kind: KindPublishEvent, Publish: &spec}
}

// WithRetry attaches a retry policy override to an effect.
func (e Effect[A]) WithRetry(p RetryPolicy) Effect[A] {
	e.Retry = &p
	return e
}
