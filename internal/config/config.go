// Package config loads reactor's runtime configuration from
// environment variables, with the defaults named in spec.md §6, and
// optionally merges an on-disk YAML file when REACTOR_CONFIG_FILE is
// set. Environment variables always win over file values. This is a
// typed struct plus a loader, not a CLI: there is no flag parser.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete set of spec.md §6 environment variables.
type Config struct {
	EventStore EventStoreConfig `yaml:"event_store"`
	EventBus   EventBusConfig   `yaml:"event_bus"`
	Retry      RetryConfig      `yaml:"retry"`
	Circuit    CircuitConfig    `yaml:"circuit"`

	SnapshotThresholdEvents int           `yaml:"snapshot_threshold_events"`
	ShutdownGrace           time.Duration `yaml:"-"`
	ShutdownGraceSeconds    int           `yaml:"shutdown_grace_seconds"`
}

type EventStoreConfig struct {
	URL            string `yaml:"url"`
	PoolSize       int    `yaml:"pool_size"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type EventBusConfig struct {
	Brokers         []string `yaml:"brokers"`
	ConsumerGroup   string   `yaml:"consumer_group"`
	BufferSize      int      `yaml:"buffer_size"`
	AutoOffsetReset string   `yaml:"auto_offset_reset"`
}

type RetryConfig struct {
	MaxAttempts       int     `yaml:"max_attempts"`
	InitialDelayMs    int     `yaml:"initial_delay_ms"`
	MaxDelayMs        int     `yaml:"max_delay_ms"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
}

type CircuitConfig struct {
	FailureThreshold float64 `yaml:"failure_threshold"`
	SampleWindow     int     `yaml:"sample_window"`
	OpenTimeoutMs    int     `yaml:"open_timeout_ms"`
}

// Default returns the spec.md §6-mandated defaults.
func Default() Config {
	return Config{
		EventStore: EventStoreConfig{PoolSize: 10, TimeoutSeconds: 30},
		EventBus:   EventBusConfig{BufferSize: 1000, AutoOffsetReset: "latest"},
		Retry: RetryConfig{
			MaxAttempts:       5,
			InitialDelayMs:    1000,
			MaxDelayMs:        32000,
			BackoffMultiplier: 2.0,
		},
		Circuit: CircuitConfig{
			FailureThreshold: 0.5,
			SampleWindow:     10,
			OpenTimeoutMs:    30000,
		},
		SnapshotThresholdEvents: 100,
		ShutdownGrace:           30 * time.Second,
		ShutdownGraceSeconds:    30,
	}
}

// Load builds a Config starting from Default, merging
// REACTOR_CONFIG_FILE (if set) over it, then applying every REACTOR_*
// environment variable over the result.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("REACTOR_CONFIG_FILE"); path != "" {
		if err := mergeFile(&cfg, path); err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
	}

	mergeEnv(&cfg)
	cfg.ShutdownGrace = time.Duration(cfg.ShutdownGraceSeconds) * time.Second
	return cfg, nil
}

func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func mergeEnv(cfg *Config) {
	str(&cfg.EventStore.URL, "REACTOR_EVENT_STORE_URL")
	intVar(&cfg.EventStore.PoolSize, "REACTOR_EVENT_STORE_POOL_SIZE")
	intVar(&cfg.EventStore.TimeoutSeconds, "REACTOR_EVENT_STORE_TIMEOUT_SECONDS")

	if v := os.Getenv("REACTOR_EVENT_BUS_BROKERS"); v != "" {
		cfg.EventBus.Brokers = strings.Split(v, ",")
	}
	str(&cfg.EventBus.ConsumerGroup, "REACTOR_EVENT_BUS_CONSUMER_GROUP")
	intVar(&cfg.EventBus.BufferSize, "REACTOR_EVENT_BUS_BUFFER_SIZE")
	str(&cfg.EventBus.AutoOffsetReset, "REACTOR_EVENT_BUS_AUTO_OFFSET_RESET")

	intVar(&cfg.Retry.MaxAttempts, "REACTOR_RETRY_MAX_ATTEMPTS")
	intVar(&cfg.Retry.InitialDelayMs, "REACTOR_RETRY_INITIAL_DELAY_MS")
	intVar(&cfg.Retry.MaxDelayMs, "REACTOR_RETRY_MAX_DELAY_MS")
	floatVar(&cfg.Retry.BackoffMultiplier, "REACTOR_RETRY_BACKOFF_MULTIPLIER")

	floatVar(&cfg.Circuit.FailureThreshold, "REACTOR_CIRCUIT_FAILURE_THRESHOLD")
	intVar(&cfg.Circuit.SampleWindow, "REACTOR_CIRCUIT_SAMPLE_WINDOW")
	intVar(&cfg.Circuit.OpenTimeoutMs, "REACTOR_CIRCUIT_OPEN_TIMEOUT_MS")

	intVar(&cfg.SnapshotThresholdEvents, "REACTOR_SNAPSHOT_THRESHOLD_EVENTS")
	intVar(&cfg.ShutdownGraceSeconds, "REACTOR_SHUTDOWN_GRACE_SECONDS")
}

func str(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func intVar(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func floatVar(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
