package resilience

import (
	"errors"
	"sync"
	"time"
)

// State is one of Closed, Open, HalfOpen.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned by Execute while the breaker is Open.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// BreakerConfig configures the sample-window failure-ratio breaker
// from spec.md §4.3.
type BreakerConfig struct {
	FailureThreshold float64       // ratio in [0,1]; default 0.5
	SampleWindow     int           // requests considered; default 10
	OpenTimeout      time.Duration // default 30s
	OnStateChange    func(dependency string, from, to State)
}

// DefaultBreakerConfig returns the spec-mandated defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 0.5,
		SampleWindow:     10,
		OpenTimeout:      30 * time.Second,
	}
}

// CircuitBreaker is one per external dependency (one EventStore
// instance, one EventBus instance), per spec.md §4.3.
type CircuitBreaker struct {
	dependency string
	cfg        BreakerConfig

	mu          sync.Mutex
	state       State
	samples     []bool // true = success, ring buffer of size SampleWindow
	openedAt    time.Time
	halfOpenUse bool
}

// NewCircuitBreaker creates a breaker for the named dependency.
func NewCircuitBreaker(dependency string, cfg BreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 0.5
	}
	if cfg.SampleWindow <= 0 {
		cfg.SampleWindow = 10
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	return &CircuitBreaker{dependency: dependency, cfg: cfg, state: StateClosed}
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Allow reports whether a call may proceed, transitioning Open ->
// HalfOpen once the open timeout has elapsed. It must be paired with
// exactly one call to Report once the call completes (or is skipped).
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.openedAt) < cb.cfg.OpenTimeout {
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
		cb.halfOpenUse = false
		return nil
	case StateHalfOpen:
		if cb.halfOpenUse {
			return ErrCircuitOpen
		}
		cb.halfOpenUse = true
		return nil
	default:
		return nil
	}
}

// Report records the outcome of a call previously admitted by Allow.
func (cb *CircuitBreaker) Report(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		if success {
			cb.transition(StateClosed)
			cb.samples = cb.samples[:0]
		} else {
			cb.transition(StateOpen)
			cb.openedAt = time.Now()
		}
		return
	}

	cb.samples = append(cb.samples, success)
	if len(cb.samples) > cb.cfg.SampleWindow {
		cb.samples = cb.samples[len(cb.samples)-cb.cfg.SampleWindow:]
	}
	if len(cb.samples) < cb.cfg.SampleWindow {
		return
	}

	failures := 0
	for _, ok := range cb.samples {
		if !ok {
			failures++
		}
	}
	if float64(failures)/float64(len(cb.samples)) >= cb.cfg.FailureThreshold {
		cb.transition(StateOpen)
		cb.openedAt = time.Now()
	}
}

// Execute runs fn, short-circuiting with ErrCircuitOpen when Open. A
// CircuitOpen failure does not itself feed back into the breaker's own
// sample window (spec.md §4.3).
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.Allow(); err != nil {
		return err
	}
	err := fn()
	cb.Report(err == nil)
	return err
}

func (cb *CircuitBreaker) transition(to State) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.dependency, from, to)
	}
}
