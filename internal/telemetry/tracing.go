// Package telemetry wires OpenTelemetry tracing and Prometheus
// metrics around the reducer/effect-executor runtime, following
// wilhg-orch's pkg/otel tracer-provider setup and cuemby-warren's
// pkg/metrics registered-collector pattern.
package telemetry

import (
	"context"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig controls tracer-provider initialization.
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	// UseStdout enables the stdout exporter, suitable for local dev and
	// tests; production deployments would swap in an OTLP exporter.
	UseStdout bool
}

// InitTracing configures a global tracer provider and returns a
// shutdown func to flush and close it.
func InitTracing(ctx context.Context, cfg TracingConfig) (func(context.Context) error, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "reactor"
	}
	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = os.Getenv("REACTOR_VERSION")
	}

	res, err := sdkresource.New(ctx,
		sdkresource.WithFromEnv(),
		sdkresource.WithProcess(),
		sdkresource.WithOS(),
		sdkresource.WithHost(),
		sdkresource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	var tp *sdktrace.TracerProvider
	if cfg.UseStdout {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, err
		}
		tp = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exp,
				sdktrace.WithMaxExportBatchSize(512),
				sdktrace.WithBatchTimeout(200*time.Millisecond),
			),
			sdktrace.WithResource(res),
		)
	} else {
		tp = sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	}

	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Tracer returns the named tracer for span creation; reducer and
// effect-executor call sites use "reactor.store" and "reactor.executor"
// respectively.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
