package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTracingStdoutShutdownIsIdempotent(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{
		ServiceName:    "reactor-test",
		ServiceVersion: "test",
		UseStdout:      true,
	})
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	assert.NoError(t, shutdown(context.Background()))
	assert.NoError(t, shutdown(context.Background()))
}

func TestTracerStartsAndEndsSpan(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{ServiceName: "reactor-test", UseStdout: false})
	require.NoError(t, err)
	defer shutdown(context.Background())

	ctx, span := Tracer("reactor.store").Start(context.Background(), "reduce")
	assert.NotNil(t, ctx)
	span.End()
}
