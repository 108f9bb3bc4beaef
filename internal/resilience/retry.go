// Package resilience provides the retry, circuit-breaker and
// dead-letter helpers shared by the event store and event bus
// adapters, adapted from r3e-network-service_layer's
// infrastructure/resilience package to the retry/circuit-breaker/DLQ
// vocabulary of the effect executor.
package resilience

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Classification tells the retry loop whether an error is worth
// retrying at all.
type Classification int

const (
	// Transient errors (network, timeout, 5xx, broker unavailability,
	// conflicts other than optimistic-concurrency) are retried.
	Transient Classification = iota
	// Permanent errors (schema, auth, validation) are never retried.
	Permanent
)

// Classifier assigns a Classification to an error returned by fn.
type Classifier func(err error) Classification

// DefaultClassifier treats every non-nil error as transient; callers
// with a richer error taxonomy (see eventstore/eventbus errors) should
// supply their own.
func DefaultClassifier(err error) Classification {
	if err == nil {
		return Transient
	}
	return Transient
}

// RetryPolicy configures exponential backoff with jitter. Zero value
// is invalid; use NewRetryPolicy for the spec.md §6 defaults.
type RetryPolicy struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	Classify          Classifier
}

// NewRetryPolicy returns the spec-mandated defaults: 5 attempts,
// 1s initial delay, 32s max delay, 2.0 multiplier, jittered.
func NewRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       5,
		InitialDelay:      time.Second,
		MaxDelay:          32 * time.Second,
		BackoffMultiplier: 2.0,
		Classify:          DefaultClassifier,
	}
}

// ErrRetryExhausted is returned once MaxAttempts transient failures
// have been observed without success.
var ErrRetryExhausted = errors.New("resilience: retry attempts exhausted")

// ErrPermanent wraps an error the classifier marked non-retryable so
// callers can distinguish it from exhaustion.
type ErrPermanent struct{ Err error }

func (e *ErrPermanent) Error() string { return e.Err.Error() }
func (e *ErrPermanent) Unwrap() error { return e.Err }

// Do runs fn under the policy's exponential backoff. A Permanent
// classification short-circuits immediately without consuming further
// attempts; exhausting MaxAttempts on Transient failures returns an
// error that wraps ErrRetryExhausted and includes the last error's
// message.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	classify := p.Classify
	if classify == nil {
		classify = DefaultClassifier
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = p.BackoffMultiplier
	b.MaxElapsedTime = 0 // bounded by MaxAttempts, not wall clock
	bctx := backoff.WithContext(b, ctx)

	attempt := 0
	var lastErr error
	op := func() error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if classify(err) == Permanent {
			return backoff.Permanent(&ErrPermanent{Err: err})
		}
		if attempt >= p.MaxAttempts {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(op, withJitter(bctx))
	if err == nil {
		return nil
	}
	var perm *ErrPermanent
	if errors.As(err, &perm) {
		return perm
	}
	if attempt >= p.MaxAttempts {
		return &retryExhaustedError{last: lastErr, attempts: attempt}
	}
	return err
}

type retryExhaustedError struct {
	last     error
	attempts int
}

func (e *retryExhaustedError) Error() string {
	return ErrRetryExhausted.Error() + ": " + e.last.Error()
}
func (e *retryExhaustedError) Unwrap() error { return ErrRetryExhausted }
func (e *retryExhaustedError) Attempts() int { return e.attempts }
func (e *retryExhaustedError) LastError() error { return e.last }

// withJitter wraps a BackOff so each returned delay is perturbed by up
// to +/-20%, matching spec.md §4.3's "default backoff with jitter".
func withJitter(b backoff.BackOff) backoff.BackOff {
	return &jitterBackOff{inner: b}
}

type jitterBackOff struct{ inner backoff.BackOff }

func (j *jitterBackOff) NextBackOff() time.Duration {
	d := j.inner.NextBackOff()
	if d == backoff.Stop {
		return d
	}
	delta := float64(d) * 0.2
	return d + time.Duration(rand.Float64()*delta*2-delta)
}

func (j *jitterBackOff) Reset() { j.inner.Reset() }
