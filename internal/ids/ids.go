// Package ids mints identifiers: typed, prefixed ids via
// go.jetify.com/typeid for values that flow into logs and URLs
// (stream ids, saga correlation ids), and plain google/uuid values
// where an opaque UUID is all a caller needs (DLQ entry ids),
// following the teacher's typeid_helpers.go usage.
package ids

import (
	"github.com/google/uuid"
	"go.jetify.com/typeid"
)

// StreamID mints a typed id prefixed with aggregateType, e.g.
// StreamID("order") -> "order_01h2xcejqtf2nbrexx3vqjhp41".
func StreamID(aggregateType string) string {
	return withPrefixOrFallback(aggregateType)
}

// SagaID mints a typed id for a saga instance.
func SagaID(sagaType string) string {
	return withPrefixOrFallback("saga_" + sagaType)
}

func withPrefixOrFallback(prefix string) string {
	tid, err := typeid.WithPrefix(prefix)
	if err != nil {
		tid, _ = typeid.WithPrefix("id")
	}
	return tid.String()
}

// New returns a plain random UUID, used for DLQ entry ids where no
// type prefix is needed.
func New() string {
	return uuid.NewString()
}
