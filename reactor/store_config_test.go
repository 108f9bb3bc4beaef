package reactor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	memstore "reactor/eventstore/memory"
	"reactor/internal/config"
)

func TestNewStoreFromConfigAppliesRetryAndBreakerSettings(t *testing.T) {
	cfg := config.Default()
	cfg.Retry.MaxAttempts = 7
	cfg.Retry.InitialDelayMs = 50
	cfg.Retry.MaxDelayMs = 400
	cfg.Retry.BackoffMultiplier = 1.5
	cfg.Circuit.FailureThreshold = 0.25
	cfg.Circuit.SampleWindow = 4
	cfg.Circuit.OpenTimeoutMs = 1000

	store := memstore.New()
	s := NewStoreFromConfig[orderState, orderAction, *memstore.Store](
		context.Background(), orderState{},
		ReducerFunc[orderState, orderAction, *memstore.Store](orderReduce), store,
		Config[orderAction]{Name: "order", EventStore: store}, cfg,
	)
	defer s.Shutdown(time.Second)

	assert.Equal(t, 7, s.defaultRetry.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, s.defaultRetry.InitialDelay)
	assert.Equal(t, 400*time.Millisecond, s.defaultRetry.MaxDelay)
	assert.Equal(t, 1.5, s.defaultRetry.BackoffMultiplier)

	assert.Equal(t, 0.25, s.breakerConfig.FailureThreshold)
	assert.Equal(t, 4, s.breakerConfig.SampleWindow)
	assert.Equal(t, time.Second, s.breakerConfig.OpenTimeout)

	breaker := s.breakerFor("eventstore")
	assert.NotNil(t, breaker)
}
