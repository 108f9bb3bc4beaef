package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCircuitStateValue(t *testing.T) {
	assert.Equal(t, 0.0, CircuitStateValue("closed"))
	assert.Equal(t, 1.0, CircuitStateValue("half_open"))
	assert.Equal(t, 2.0, CircuitStateValue("open"))
	assert.Equal(t, -1.0, CircuitStateValue("bogus"))
}

func TestCollectorsAreRegisteredAndObservable(t *testing.T) {
	CommandsTotal.WithLabelValues("store-a").Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(CommandsTotal.WithLabelValues("store-a")))

	ReducerDuration.WithLabelValues("store-a").Observe(0.05)
	EffectDuration.WithLabelValues("store-a", "append_events").Observe(0.01)
	ErrorsTotal.WithLabelValues("store-a", "append_events").Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(ErrorsTotal.WithLabelValues("store-a", "append_events")))

	CircuitState.WithLabelValues("eventstore").Set(CircuitStateValue("open"))
	assert.Equal(t, 2.0, testutil.ToFloat64(CircuitState.WithLabelValues("eventstore")))

	ConsumerLag.WithLabelValues("checkout-group", "orders").Set(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(ConsumerLag.WithLabelValues("checkout-group", "orders")))
}

func TestHandlerIsNotNil(t *testing.T) {
	h := Handler()
	assert.NotNil(t, h)
}
