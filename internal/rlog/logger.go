// Package rlog wraps zerolog with the field vocabulary reactor's
// subsystems log against (store, stream, action/effect kind, circuit
// dependency), mirroring the field-tagging convention of
// r3e-network-service_layer/infrastructure/logging without carrying
// that package's logrus dependency.
package rlog

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a thin, typed wrapper so call sites read as
// rlog.Store("orders").Debug("reduced action") instead of bare
// zerolog field chains.
type Logger struct {
	zerolog.Logger
}

var base = newBase()

func newBase() zerolog.Logger {
	level := zerolog.InfoLevel
	if lv, err := zerolog.ParseLevel(strings.ToLower(os.Getenv("REACTOR_LOG_LEVEL"))); err == nil {
		level = lv
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
}

// Named returns a Logger tagged with a "component" field.
func Named(component string) Logger {
	return Logger{base.With().Str("component", component).Logger()}
}

// Store returns a Logger tagged for a specific store/aggregate name.
func Store(name string) Logger {
	return Logger{base.With().Str("component", "store").Str("store", name).Logger()}
}

// Stream returns a Logger tagged for a specific event stream.
func Stream(streamID string) Logger {
	return Logger{base.With().Str("component", "eventstore").Str("stream_id", streamID).Logger()}
}

// Effect returns a Logger tagged with the kind of effect being executed.
func Effect(kind string) Logger {
	return Logger{base.With().Str("component", "executor").Str("effect_kind", kind).Logger()}
}
