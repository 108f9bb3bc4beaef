// Package eventbus defines the at-least-once pub/sub contract of
// spec.md §4.5: partitioned topics, consumer groups with manually
// committed offsets, and configurable backpressure/auto-offset-reset.
package eventbus

// Message is a delivered bus message; Ack must be called once the
// subscriber has durably handled it (or re-delivery is expected).
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       string
	Payload   []byte
	Ack       func() error
}

// PublishResult is returned per message from PublishBatch.
type PublishResult struct {
	Partition int
	Offset    int64
	Err       error
}

// AutoOffsetReset controls where a new consumer group starts reading.
type AutoOffsetReset int

const (
	Latest AutoOffsetReset = iota
	Earliest
)

// SubscribeOptions configures a subscription, per spec.md §6 defaults.
type SubscribeOptions struct {
	Group           string
	AutoOffsetReset AutoOffsetReset
	BufferSize      int // default 1000
}

// DefaultSubscribeOptions returns the spec-mandated defaults.
func DefaultSubscribeOptions() SubscribeOptions {
	return SubscribeOptions{AutoOffsetReset: Latest, BufferSize: 1000}
}

// DerivedGroup returns a deterministic consumer group id for topics
// when no explicit group id is configured: the topic set, sorted, then
// joined, so two subscriptions over the same topic set collide into
// the same group regardless of argument order (spec.md §9).
func DerivedGroup(topics []string) string {
	sorted := append([]string(nil), topics...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	group := ""
	for i, t := range sorted {
		if i > 0 {
			group += "|"
		}
		group += t
	}
	return group
}
