// Package redisstream implements eventbus.EventBus on Redis Streams:
// XADD for publish, consumer groups (XGROUP/XREADGROUP) for
// at-least-once delivery with manually committed offsets (XACK),
// mirroring the pool-and-context idiom of the teacher's
// pkg/dcb/postgres/store.go against go-redis/v8 instead of pgx.
package redisstream

import (
	"context"
	"errors"
	"time"

	"reactor/eventbus"
	"reactor/internal/telemetry"

	"github.com/go-redis/redis/v8"
)

const (
	fieldKey     = "key"
	fieldPayload = "payload"
)

// Bus is a Redis Streams-backed EventBus.
type Bus struct {
	client *redis.Client
	// consumerName identifies this process within any consumer group it
	// joins; Redis requires a unique name per group member.
	consumerName string
}

// New wraps an existing client. consumerName should be stable across
// restarts of the same logical consumer (e.g. hostname+pid) so pending
// entries from a crashed process can be claimed back.
func New(client *redis.Client, consumerName string) *Bus {
	return &Bus{client: client, consumerName: consumerName}
}

func (b *Bus) Publish(ctx context.Context, topic, key string, payload []byte) error {
	if topic == "" {
		return &eventbus.ValidationError{BusError: eventbus.BusError{Op: "Publish"}, Field: "topic"}
	}
	_, err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		Values: map[string]interface{}{fieldKey: key, fieldPayload: payload},
	}).Result()
	if err != nil {
		return classifyErr("Publish", err)
	}
	return nil
}

func (b *Bus) PublishBatch(ctx context.Context, topic string, messages []eventbus.OutboundMessage) ([]eventbus.PublishResult, error) {
	pipe := b.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(messages))
	for i, m := range messages {
		cmds[i] = pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: topic,
			Values: map[string]interface{}{fieldKey: m.Key, fieldPayload: m.Payload},
		})
	}
	_, err := pipe.Exec(ctx)
	results := make([]eventbus.PublishResult, len(messages))
	for i, cmd := range cmds {
		if cmd.Err() != nil {
			results[i] = eventbus.PublishResult{Err: classifyErr("PublishBatch", cmd.Err())}
			continue
		}
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		return results, classifyErr("PublishBatch", err)
	}
	return results, nil
}

// Subscribe creates (or joins) a consumer group named opts.Group (or a
// deterministic name derived from topics) for every topic, and streams
// delivered entries until ctx is cancelled. Ack commits the entry via
// XACK; unacked entries remain pending for group-wide reclaim.
func (b *Bus) Subscribe(ctx context.Context, topics []string, opts eventbus.SubscribeOptions) (<-chan eventbus.Message, error) {
	if len(topics) == 0 {
		return nil, &eventbus.ValidationError{BusError: eventbus.BusError{Op: "Subscribe"}, Field: "topics"}
	}
	group := opts.Group
	if group == "" {
		group = eventbus.DerivedGroup(topics)
	}
	bufferSize := opts.BufferSize
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	start := "$"
	if opts.AutoOffsetReset == eventbus.Earliest {
		start = "0"
	}
	for _, topic := range topics {
		err := b.client.XGroupCreateMkStream(ctx, topic, group, start).Err()
		if err != nil && !isBusyGroupErr(err) {
			return nil, classifyErr("Subscribe", err)
		}
	}

	ch := make(chan eventbus.Message, bufferSize)
	go b.consume(ctx, topics, group, ch)
	return ch, nil
}

func (b *Bus) consume(ctx context.Context, topics []string, group string, ch chan<- eventbus.Message) {
	defer close(ch)
	streams := make([]string, 0, len(topics)*2)
	for _, t := range topics {
		streams = append(streams, t)
	}
	for range topics {
		streams = append(streams, ">")
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: b.consumerName,
			Streams:  streams,
			Count:    100,
			Block:    2 * time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range res {
			for _, entry := range stream.Messages {
				msg := b.toMessage(stream.Stream, group, entry)
				select {
				case ch <- msg:
				case <-ctx.Done():
					return
				}
			}
		}

		// XPENDING's summary count (delivered, unacked entries) is the
		// closest cheap proxy Redis Streams offers for consumer lag
		// without walking XINFO GROUPS on every poll.
		for _, t := range topics {
			if summary, err := b.client.XPending(ctx, t, group).Result(); err == nil {
				telemetry.ConsumerLag.WithLabelValues(group, t).Set(float64(summary.Count))
			}
		}
	}
}

func (b *Bus) toMessage(topic, group string, entry redis.XMessage) eventbus.Message {
	key, _ := entry.Values[fieldKey].(string)
	var payload []byte
	if p, ok := entry.Values[fieldPayload].(string); ok {
		payload = []byte(p)
	}
	id := entry.ID
	return eventbus.Message{
		Topic:   topic,
		Key:     key,
		Payload: payload,
		Ack: func() error {
			return b.client.XAck(context.Background(), topic, group, id).Err()
		},
	}
}

func isBusyGroupErr(err error) bool {
	return err != nil && err.Error() == "BUSYGROUP Consumer Group name already exists"
}

func classifyErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &eventbus.TransientError{BusError: eventbus.BusError{Op: op, Err: err}}
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &eventbus.TransientError{BusError: eventbus.BusError{Op: op, Err: err}}
	}
	return &eventbus.BusError{Op: op, Err: err}
}

