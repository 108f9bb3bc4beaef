package reactor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"reactor/eventbus"
	"reactor/eventstore"
	"reactor/internal/config"
	"reactor/internal/ids"
	"reactor/internal/resilience"
	"reactor/internal/rlog"
	"reactor/internal/telemetry"
)

// Handle tracks the recursive fan-in of an action and every follow-up
// action its effects produce. Wait blocks until the whole chain has
// settled; Detach is a no-op by design, since effects run regardless
// of whether anyone waits on them.
type Handle struct {
	wg sync.WaitGroup

	mu  sync.Mutex
	err error
}

// Wait blocks until the action and every action it transitively caused
// has been reduced, returning the first error encountered anywhere in
// the chain (nil if none).
func (h *Handle) Wait() error {
	h.wg.Wait()
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Detach discards the handle without waiting. It exists only for
// symmetry at call sites that built a Handle but don't want to wait;
// it performs no cancellation.
func (h *Handle) Detach() {}

func (h *Handle) fail(err error) {
	if err == nil {
		return
	}
	h.mu.Lock()
	if h.err == nil {
		h.err = err
	}
	h.mu.Unlock()
}

type actionEnvelope[A any] struct {
	action A
	handle *Handle
}

// Config bundles a Store's dependencies beyond its Reducer and initial
// state. EventStore and EventBus may be nil if the reducer never
// returns AppendEvents/PublishEvent effects; a nil dependency used by
// an effect surfaces as a FatalError.
type Config[A any] struct {
	Name          string
	EventStore    eventstore.EventStore
	EventBus      eventbus.EventBus
	DLQ           resilience.Sink
	DefaultRetry  resilience.RetryPolicy
	BreakerConfig resilience.BreakerConfig // zero value falls back to resilience.DefaultBreakerConfig
	EffectBuffer  int                      // action channel buffer, default 256
}

// Store serializes calls to a Reducer: exactly one Reduce call is ever
// in flight, run from a single internal goroutine draining an action
// channel, while the effects a Reduce call returns execute
// concurrently on ordinary goroutines. This gives the reducer the same
// single-writer guarantee a mutex would, without needing one around
// the reducer call itself.
type Store[S any, A any, E any] struct {
	name string

	reducer Reducer[S, A, E]
	env     E

	mu    sync.RWMutex
	state S

	actions chan actionEnvelope[A]

	eventStore eventstore.EventStore
	eventBus   eventbus.EventBus
	dlq        resilience.Sink

	defaultRetry  resilience.RetryPolicy
	breakerConfig resilience.BreakerConfig
	breakersMu    sync.Mutex
	breakers      map[string]*resilience.CircuitBreaker

	log rlog.Logger

	subMu sync.Mutex
	subs  []chan S

	ctx     context.Context
	cancel  context.CancelFunc
	pending sync.WaitGroup // all in-flight effect goroutines, for graceful Shutdown

	fatalMu sync.Mutex
	fatal   error
}

// NewStore constructs a Store and starts its action loop. Callers must
// eventually call Shutdown.
func NewStore[S any, A any, E any](ctx context.Context, initial S, reducer Reducer[S, A, E], env E, cfg Config[A]) *Store[S, A, E] {
	buffer := cfg.EffectBuffer
	if buffer <= 0 {
		buffer = 256
	}
	sctx, cancel := context.WithCancel(ctx)
	dlq := cfg.DLQ
	if dlq == nil {
		dlq = resilience.NewMemorySink()
	}
	retry := cfg.DefaultRetry
	if retry.MaxAttempts == 0 {
		retry = resilience.NewRetryPolicy()
	}
	s := &Store[S, A, E]{
		name:          cfg.Name,
		reducer:       reducer,
		env:           env,
		state:         initial,
		actions:       make(chan actionEnvelope[A], buffer),
		eventStore:    cfg.EventStore,
		eventBus:      cfg.EventBus,
		dlq:           dlq,
		defaultRetry:  retry,
		breakerConfig: cfg.BreakerConfig,
		breakers:      make(map[string]*resilience.CircuitBreaker),
		log:           rlog.Store(cfg.Name),
		ctx:           sctx,
		cancel:        cancel,
	}
	go s.run()
	return s
}

// NewStoreFromConfig builds a Store whose retry policy, circuit
// breaker thresholds and effect buffer size come from a loaded
// internal/config.Config instead of the package defaults, matching
// spec.md §6's environment-driven tuning. base still supplies Name,
// EventStore, EventBus and DLQ; any DefaultRetry, BreakerConfig or
// EffectBuffer set on base is overridden by cfg's values.
func NewStoreFromConfig[S any, A any, E any](ctx context.Context, initial S, reducer Reducer[S, A, E], env E, base Config[A], cfg config.Config) *Store[S, A, E] {
	base.DefaultRetry = resilience.RetryPolicy{
		MaxAttempts:       cfg.Retry.MaxAttempts,
		InitialDelay:      time.Duration(cfg.Retry.InitialDelayMs) * time.Millisecond,
		MaxDelay:          time.Duration(cfg.Retry.MaxDelayMs) * time.Millisecond,
		BackoffMultiplier: cfg.Retry.BackoffMultiplier,
		Classify:          resilience.DefaultClassifier,
	}
	base.BreakerConfig = resilience.BreakerConfig{
		FailureThreshold: cfg.Circuit.FailureThreshold,
		SampleWindow:     cfg.Circuit.SampleWindow,
		OpenTimeout:      time.Duration(cfg.Circuit.OpenTimeoutMs) * time.Millisecond,
	}
	if cfg.EventBus.BufferSize > 0 {
		base.EffectBuffer = cfg.EventBus.BufferSize
	}
	return NewStore(ctx, initial, reducer, env, base)
}

// Send enqueues action for reduction and returns a Handle that settles
// once it and every action it transitively produces have been reduced.
func (s *Store[S, A, E]) Send(ctx context.Context, action A) *Handle {
	h := &Handle{}
	h.wg.Add(1)
	select {
	case s.actions <- actionEnvelope[A]{action: action, handle: h}:
	case <-ctx.Done():
		h.fail(ctx.Err())
		h.wg.Done()
	case <-s.ctx.Done():
		h.fail(fmt.Errorf("reactor: store %q is shutting down", s.name))
		h.wg.Done()
	}
	return h
}

func (s *Store[S, A, E]) sendChained(action A, h *Handle) {
	h.wg.Add(1)
	select {
	case s.actions <- actionEnvelope[A]{action: action, handle: h}:
	case <-s.ctx.Done():
		h.fail(fmt.Errorf("reactor: store %q is shutting down", s.name))
		h.wg.Done()
	}
}

// State returns a copy of the current state snapshot.
func (s *Store[S, A, E]) State() S {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Project runs fn against a snapshot of the store's state. Project is
// a package-level function rather than a method because Go does not
// allow a method to introduce type parameters beyond its receiver's.
func Project[S any, A any, E any, R any](s *Store[S, A, E], fn func(S) R) R {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.state)
}

// Subscribe returns a channel receiving the state after every reduce
// call. The channel is closed on Shutdown; a slow subscriber misses
// intermediate states rather than blocking the store (the channel is
// buffered to 1 and overwritten with the latest state, not queued).
func (s *Store[S, A, E]) Subscribe() <-chan S {
	ch := make(chan S, 1)
	s.subMu.Lock()
	s.subs = append(s.subs, ch)
	s.subMu.Unlock()
	return ch
}

func (s *Store[S, A, E]) notifySubscribers(state S) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- state:
		default:
		}
	}
}

// Err returns the first fatal error the store encountered, if any.
func (s *Store[S, A, E]) Err() error {
	s.fatalMu.Lock()
	defer s.fatalMu.Unlock()
	return s.fatal
}

func (s *Store[S, A, E]) setFatal(err error) {
	s.fatalMu.Lock()
	if s.fatal == nil {
		s.fatal = err
	}
	s.fatalMu.Unlock()
	telemetry.ErrorsTotal.WithLabelValues(s.name, "fatal").Inc()
	s.log.Error().Err(err).Msg("fatal error")
	s.cancel()
}

// Shutdown cancels the action loop and waits, up to grace, for
// in-flight effects to finish.
func (s *Store[S, A, E]) Shutdown(grace time.Duration) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
	}
	s.subMu.Lock()
	for _, ch := range s.subs {
		close(ch)
	}
	s.subs = nil
	s.subMu.Unlock()
	return s.Err()
}

func (s *Store[S, A, E]) run() {
	for {
		select {
		case env := <-s.actions:
			s.reduceOne(env)
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Store[S, A, E]) reduceOne(env actionEnvelope[A]) {
	defer env.handle.wg.Done()

	telemetry.CommandsTotal.WithLabelValues(s.name).Inc()
	_, span := telemetry.Tracer("reactor.store").Start(s.ctx, "reduce")
	start := time.Now()

	s.mu.Lock()
	newState, effects := s.reducer.Reduce(s.state, env.action, s.env)
	s.state = newState
	s.mu.Unlock()

	telemetry.ReducerDuration.WithLabelValues(s.name).Observe(time.Since(start).Seconds())
	span.End()

	s.notifySubscribers(newState)

	for _, eff := range effects {
		s.dispatchEffect(eff, env.handle)
	}
}

func (s *Store[S, A, E]) dispatchEffect(eff Effect[A], h *Handle) {
	h.wg.Add(1)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		defer h.wg.Done()
		s.runEffect(eff, h)
	}()
}

// runEffect executes eff, chaining any produced follow-up action back
// into the store via h. It assumes the caller already accounted for
// this effect's own unit of work in h.wg.
func (s *Store[S, A, E]) runEffect(eff Effect[A], h *Handle) {
	log := rlog.Effect(eff.Kind.String())

	_, span := telemetry.Tracer("reactor.executor").Start(s.ctx, eff.Kind.String())
	start := time.Now()
	defer func() {
		telemetry.EffectDuration.WithLabelValues(s.name, eff.Kind.String()).Observe(time.Since(start).Seconds())
		span.End()
	}()

	switch eff.Kind {
	case KindNone:
		return

	case KindFuture:
		if eff.Future == nil {
			return
		}
		policy := s.defaultRetry
		if eff.Retry != nil {
			policy = *eff.Retry
		}
		var action A
		var ok bool
		err := policy.Do(s.ctx, func(ctx context.Context) error {
			var err error
			action, ok, err = eff.Future(ctx)
			return err
		})
		if err != nil {
			log.Error().Err(err).Msg("future effect failed")
			telemetry.ErrorsTotal.WithLabelValues(s.name, "future").Inc()
			h.fail(&EffectError{Kind: eff.Kind.String(), Err: err})
			return
		}
		if ok {
			s.sendChained(action, h)
		}

	case KindDelay:
		if !eff.HasDelay {
			return
		}
		timer := time.NewTimer(eff.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			s.sendChained(eff.DelayAction, h)
		case <-s.ctx.Done():
		}

	case KindSequential:
		for _, child := range eff.Children {
			if !eff.Join {
				s.runEffect(child, h)
				continue
			}
			sub := &Handle{}
			sub.wg.Add(1)
			func() {
				defer sub.wg.Done()
				s.runEffect(child, sub)
			}()
			if eff.Join {
				if err := sub.Wait(); err != nil {
					h.fail(err)
				}
			}
		}

	case KindParallel:
		var wg sync.WaitGroup
		for _, child := range eff.Children {
			child := child
			wg.Add(1)
			go func() {
				defer wg.Done()
				sub := &Handle{}
				sub.wg.Add(1)
				s.pending.Add(1)
				defer s.pending.Done()
				func() {
					defer sub.wg.Done()
					s.runEffect(child, sub)
				}()
				if err := sub.Wait(); err != nil {
					h.fail(err)
				}
			}()
		}
		wg.Wait()

	case KindAppendEvents:
		s.runAppendEvents(eff, h, log)

	case KindPublishEvent:
		s.runPublishEvent(eff, h, log)
	}
}

func (s *Store[S, A, E]) runAppendEvents(eff Effect[A], h *Handle, log rlog.Logger) {
	spec := eff.Append
	if s.eventStore == nil {
		h.fail(&FatalError{Op: "AppendEvents", Err: fmt.Errorf("no event store configured")})
		return
	}
	policy := s.defaultRetry
	if eff.Retry != nil {
		policy = *eff.Retry
	}
	policy.Classify = classifyStoreErr

	breaker := s.breakerFor("eventstore")
	drafts := make([]eventstore.EventDraft, len(spec.Events))
	for i, d := range spec.Events {
		drafts[i] = eventstore.EventDraft{Type: d.Type, Payload: d.Payload, Metadata: d.Metadata}
	}

	var result eventstore.AppendResult
	err := breaker.Execute(func() error {
		return policy.Do(s.ctx, func(ctx context.Context) error {
			var err error
			result, err = s.eventStore.Append(ctx, spec.StreamID, spec.ExpectedVersion, drafts)
			return err
		})
	})

	if err != nil {
		if ce, ok := eventstore.AsConcurrencyError(err); ok && spec.OnConflict != nil {
			if action, produce := spec.OnConflict(ce.Expected, ce.Actual); produce {
				s.sendChained(action, h)
			}
			return
		}
		log.Error().Err(err).Str("stream_id", spec.StreamID).Msg("append events failed")
		telemetry.ErrorsTotal.WithLabelValues(s.name, "append_events").Inc()
		s.writeDLQ("event_store", spec.StreamID, "", nil, err)
		h.fail(&EffectError{Kind: "append_events", Err: err})
		return
	}
	if spec.OnSuccess != nil {
		if action, produce := spec.OnSuccess(result.NewVersion); produce {
			s.sendChained(action, h)
		}
	}
}

func (s *Store[S, A, E]) runPublishEvent(eff Effect[A], h *Handle, log rlog.Logger) {
	spec := eff.Publish
	if s.eventBus == nil {
		h.fail(&FatalError{Op: "PublishEvent", Err: fmt.Errorf("no event bus configured")})
		return
	}
	policy := s.defaultRetry
	if eff.Retry != nil {
		policy = *eff.Retry
	}
	policy.Classify = classifyBusErr

	breaker := s.breakerFor("eventbus")
	err := breaker.Execute(func() error {
		return policy.Do(s.ctx, func(ctx context.Context) error {
			return s.eventBus.Publish(ctx, spec.Topic, spec.Key, spec.Payload)
		})
	})

	if err != nil {
		log.Error().Err(err).Str("topic", spec.Topic).Msg("publish event failed")
		telemetry.ErrorsTotal.WithLabelValues(s.name, "publish_event").Inc()
		s.writeDLQ("event_bus", spec.Topic, spec.Key, spec.Payload, err)
		h.fail(&EffectError{Kind: "publish_event", Err: err})
		return
	}
	if spec.OnSuccess != nil {
		if action, produce := spec.OnSuccess(); produce {
			s.sendChained(action, h)
		}
	}
}

func (s *Store[S, A, E]) breakerFor(dependency string) *resilience.CircuitBreaker {
	s.breakersMu.Lock()
	defer s.breakersMu.Unlock()
	b, ok := s.breakers[dependency]
	if !ok {
		cfg := s.breakerConfig
		if cfg.FailureThreshold <= 0 {
			cfg = resilience.DefaultBreakerConfig()
		}
		cfg.OnStateChange = func(dep string, _, to resilience.State) {
			telemetry.CircuitState.WithLabelValues(dep).Set(telemetry.CircuitStateValue(to.String()))
		}
		b = resilience.NewCircuitBreaker(dependency, cfg)
		telemetry.CircuitState.WithLabelValues(dependency).Set(telemetry.CircuitStateValue(resilience.StateClosed.String()))
		s.breakers[dependency] = b
	}
	return b
}

func (s *Store[S, A, E]) writeDLQ(source, streamOrTopic, key string, payload []byte, cause error) {
	entry := resilience.DLQEntry{
		ID:            ids.New(),
		Source:        source,
		StreamOrTopic: streamOrTopic,
		Key:           key,
		Payload:       payload,
		FailureReason: cause.Error(),
		AttemptCount:  1,
		FirstSeen:     time.Now(),
		LastSeen:      time.Now(),
	}
	if err := s.dlq.Write(entry); err != nil {
		s.setFatal(&FatalError{Op: "DLQ.Write", Err: err})
	}
}

func classifyStoreErr(err error) resilience.Classification {
	if eventstore.IsValidationError(err) || eventstore.IsConcurrencyError(err) {
		return resilience.Permanent
	}
	return resilience.Transient
}

func classifyBusErr(err error) resilience.Classification {
	if eventbus.IsValidationError(err) {
		return resilience.Permanent
	}
	return resilience.Transient
}
