// Package memory implements eventbus.EventBus as in-process,
// partitioned channels: messages are assigned a partition by hashing
// their key (so per-key ordering is preserved), and each consumer
// group tracks its own committed offset per (topic, partition),
// mirroring Kafka's semantics closely enough to exercise the same
// contract the redisstream and postgres-backed deployments would.
// Grounded on the shape of other_examples' in-memory buses
// (GoCodeAlone-modular's modules/eventbus/memory.go,
// afewell-hh-hh-netbox-plugin's inmemory_event_bus.go) and on the
// teacher's channel-streaming idiom (pkg/dcb/streaming_channel.go).
package memory

import (
	"context"
	"hash/fnv"
	"sync"

	"reactor/eventbus"
	"reactor/internal/resilience"
	"reactor/internal/telemetry"
)

const defaultPartitions = 8

type record struct {
	key     string
	payload []byte
	offset  int64
}

type partition struct {
	mu      sync.Mutex
	records []record
	subs    []*subscriber
}

type topic struct {
	partitions []*partition
}

type subscriber struct {
	group     string
	ch        chan eventbus.Message
	committed map[int]int64 // partition -> last committed offset
	mu        sync.Mutex
}

// Bus is an in-process EventBus.
type Bus struct {
	mu      sync.Mutex
	topics  map[string]*topic
	groups  map[string]map[int]int64 // group -> partition -> committed offset, shared across subscribers in a group
	dlq     resilience.Sink
	breaker *resilience.CircuitBreaker
}

// New constructs an empty in-memory bus.
func New() *Bus {
	return &Bus{
		topics:  make(map[string]*topic),
		groups:  make(map[string]map[int]int64),
		dlq:     resilience.NewMemorySink(),
		breaker: resilience.NewCircuitBreaker("eventbus.memory", resilience.DefaultBreakerConfig()),
	}
}

// DLQ exposes the bus's dead-letter sink for inspection in tests.
func (b *Bus) DLQ() resilience.Sink { return b.dlq }

func (b *Bus) partitionFor(key string) int {
	if key == "" {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % defaultPartitions)
}

func (b *Bus) topicFor(name string) *topic {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[name]
	if !ok {
		t = &topic{partitions: make([]*partition, defaultPartitions)}
		for i := range t.partitions {
			t.partitions[i] = &partition{}
		}
		b.topics[name] = t
	}
	return t
}

func (b *Bus) Publish(ctx context.Context, topicName, key string, payload []byte) error {
	if topicName == "" {
		return &eventbus.ValidationError{BusError: eventbus.BusError{Op: "Publish"}, Field: "topic"}
	}
	return b.breaker.Execute(func() error {
		t := b.topicFor(topicName)
		p := t.partitions[b.partitionFor(key)]

		p.mu.Lock()
		offset := int64(len(p.records))
		rec := record{key: key, payload: payload, offset: offset}
		p.records = append(p.records, rec)
		subs := append([]*subscriber(nil), p.subs...)
		p.mu.Unlock()

		for _, sub := range subs {
			msg := b.toMessage(topicName, b.partitionFor(key), rec, sub)
			select {
			case sub.ch <- msg:
			case <-ctx.Done():
			}
		}
		return nil
	})
}

func (b *Bus) PublishBatch(ctx context.Context, topicName string, messages []eventbus.OutboundMessage) ([]eventbus.PublishResult, error) {
	results := make([]eventbus.PublishResult, len(messages))
	for i, m := range messages {
		err := b.Publish(ctx, topicName, m.Key, m.Payload)
		results[i] = eventbus.PublishResult{Partition: b.partitionFor(m.Key), Err: err}
	}
	return results, nil
}

func (b *Bus) Subscribe(ctx context.Context, topics []string, opts eventbus.SubscribeOptions) (<-chan eventbus.Message, error) {
	if len(topics) == 0 {
		return nil, &eventbus.ValidationError{BusError: eventbus.BusError{Op: "Subscribe"}, Field: "topics"}
	}
	bufferSize := opts.BufferSize
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	group := opts.Group
	if group == "" {
		group = eventbus.DerivedGroup(topics)
	}

	b.mu.Lock()
	committed, ok := b.groups[group]
	if !ok {
		committed = make(map[int]int64)
		b.groups[group] = committed
	}
	b.mu.Unlock()

	sub := &subscriber{group: group, ch: make(chan eventbus.Message, bufferSize), committed: committed}

	for _, name := range topics {
		t := b.topicFor(name)
		for pi, p := range t.partitions {
			p.mu.Lock()
			p.subs = append(p.subs, sub)
			start := int64(0)
			if off, ok := committed[pi]; ok {
				start = off
			} else if opts.AutoOffsetReset == eventbus.Earliest {
				start = 0
			} else {
				start = int64(len(p.records)) // Latest: skip backlog
			}
			backlog := append([]record(nil), p.records[minInt(int(start), len(p.records)):]...)
			p.mu.Unlock()

			go func(topicName string, partitionIndex int, backlog []record) {
				for _, rec := range backlog {
					select {
					case sub.ch <- b.toMessage(topicName, partitionIndex, rec, sub):
					case <-ctx.Done():
						return
					}
				}
			}(name, pi, backlog)
		}
	}

	go func() {
		<-ctx.Done()
		close(sub.ch)
	}()

	return sub.ch, nil
}

func (b *Bus) toMessage(topicName string, partitionIndex int, rec record, sub *subscriber) eventbus.Message {
	return eventbus.Message{
		Topic:     topicName,
		Partition: partitionIndex,
		Offset:    rec.offset,
		Key:       rec.key,
		Payload:   rec.payload,
		Ack: func() error {
			sub.mu.Lock()
			if cur, ok := sub.committed[partitionIndex]; !ok || rec.offset+1 > cur {
				sub.committed[partitionIndex] = rec.offset + 1
			}
			committed := sub.committed[partitionIndex]
			sub.mu.Unlock()

			p := b.topicFor(topicName).partitions[partitionIndex]
			p.mu.Lock()
			backlog := int64(len(p.records)) - committed
			p.mu.Unlock()
			if backlog < 0 {
				backlog = 0
			}
			telemetry.ConsumerLag.WithLabelValues(sub.group, topicName).Set(float64(backlog))
			return nil
		},
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
