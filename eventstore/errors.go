package eventstore

import (
	"errors"
	"fmt"
)

// StoreError is the base error shape for event store operations,
// adapted from the teacher's EventStoreError{Op, Err} wrapper.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("eventstore: %s: %v", e.Op, e.Err)
	}
	return "eventstore: " + e.Op
}

func (e *StoreError) Unwrap() error { return e.Err }

// ValidationError signals a malformed request (empty stream id, empty
// event type, batch too large). Never retried.
type ValidationError struct {
	StoreError
	Field string
	Value string
}

// ConcurrencyError signals that expected_version did not match the
// stream's current head. This is a normal control-flow signal, not a
// fault: the reducer decides whether to retry, abort or compensate.
type ConcurrencyError struct {
	StoreError
	StreamID string
	Expected int64
	Actual   int64
}

// NotFoundError signals a stream or snapshot with no events/snapshot.
type NotFoundError struct {
	StoreError
	StreamID string
}

// CorruptPayloadError surfaces the offending (stream_id, version) when
// a stored payload cannot be decoded during load.
type CorruptPayloadError struct {
	StoreError
	StreamID string
	Version  int64
}

// TransientError wraps connection/timeout failures that the caller's
// retry policy should retry.
type TransientError struct {
	StoreError
}

func IsValidationError(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

func IsConcurrencyError(err error) bool {
	var e *ConcurrencyError
	return errors.As(err, &e)
}

func IsNotFoundError(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

func IsTransientError(err error) bool {
	var e *TransientError
	return errors.As(err, &e)
}

func AsConcurrencyError(err error) (*ConcurrencyError, bool) {
	var e *ConcurrencyError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
