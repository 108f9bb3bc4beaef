package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics are the spec.md §6-mandated collectors: command rate,
// reducer/effect duration histograms, error counters by kind, circuit
// state gauge, and consumer lag per group.
var (
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reactor_commands_total",
			Help: "Total number of actions sent to a store, by store name.",
		},
		[]string{"store"},
	)

	ReducerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reactor_reducer_duration_seconds",
			Help:    "Time spent inside a single Reduce call.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"store"},
	)

	EffectDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reactor_effect_duration_seconds",
			Help:    "Time spent executing an effect, by kind.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"store", "kind"},
	)

	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reactor_errors_total",
			Help: "Total number of errors, by store and error kind.",
		},
		[]string{"store", "kind"},
	)

	CircuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reactor_circuit_state",
			Help: "Circuit breaker state per dependency: 0=closed, 1=half_open, 2=open.",
		},
		[]string{"dependency"},
	)

	ConsumerLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reactor_consumer_lag",
			Help: "Messages behind the topic head, per consumer group.",
		},
		[]string{"group", "topic"},
	)
)

func init() {
	prometheus.MustRegister(
		CommandsTotal,
		ReducerDuration,
		EffectDuration,
		ErrorsTotal,
		CircuitState,
		ConsumerLag,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// CircuitStateValue maps a breaker state name to the gauge encoding
// used by CircuitState.
func CircuitStateValue(state string) float64 {
	switch state {
	case "closed":
		return 0
	case "half_open":
		return 1
	case "open":
		return 2
	default:
		return -1
	}
}
