package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reactor/eventbus"
)

func TestPublishSubscribeDelivers(t *testing.T) {
	bus := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := bus.Subscribe(ctx, []string{"order-events"}, eventbus.DefaultSubscribeOptions())
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), "order-events", "order-1", []byte("placed")))

	select {
	case msg := <-msgs:
		assert.Equal(t, "order-1", msg.Key)
		assert.Equal(t, []byte("placed"), msg.Payload)
		require.NoError(t, msg.Ack())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestSubscribeEarliestReplaysBacklog(t *testing.T) {
	bus := New()
	require.NoError(t, bus.Publish(context.Background(), "order-events", "order-1", []byte("first")))
	require.NoError(t, bus.Publish(context.Background(), "order-events", "order-1", []byte("second")))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := eventbus.SubscribeOptions{AutoOffsetReset: eventbus.Earliest, BufferSize: 10}
	msgs, err := bus.Subscribe(ctx, []string{"order-events"}, opts)
	require.NoError(t, err)

	first := <-msgs
	second := <-msgs
	assert.Equal(t, []byte("first"), first.Payload)
	assert.Equal(t, []byte("second"), second.Payload)
}

func TestSubscribeLatestSkipsBacklog(t *testing.T) {
	bus := New()
	require.NoError(t, bus.Publish(context.Background(), "order-events", "order-1", []byte("before subscribe")))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := eventbus.SubscribeOptions{AutoOffsetReset: eventbus.Latest, BufferSize: 10}
	msgs, err := bus.Subscribe(ctx, []string{"order-events"}, opts)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), "order-events", "order-1", []byte("after subscribe")))

	select {
	case msg := <-msgs:
		assert.Equal(t, []byte("after subscribe"), msg.Payload)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestPublishRejectsEmptyTopic(t *testing.T) {
	bus := New()
	err := bus.Publish(context.Background(), "", "key", []byte("x"))
	assert.True(t, eventbus.IsValidationError(err))
}

func TestSubscribeRejectsEmptyTopics(t *testing.T) {
	bus := New()
	_, err := bus.Subscribe(context.Background(), nil, eventbus.DefaultSubscribeOptions())
	assert.True(t, eventbus.IsValidationError(err))
}
