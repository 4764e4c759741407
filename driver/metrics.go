package driver

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors the driver updates every round
// (spec.md §7, "Circuit breaker & metrics"), in the teacher's
// struct-of-gauges-plus-counters registration style.
type Metrics struct {
	roundsStarted   prometheus.Counter
	roundsCommitted prometheus.Counter
	roundsNoop      prometheus.Counter
	roundsAborted   prometheus.Counter
	roundsFailed    *prometheus.CounterVec

	breakerState prometheus.Gauge

	lastSuccessUnixSeconds prometheus.Gauge

	partitionDurationSeconds prometheus.Histogram
}

// NewMetrics builds and registers a Metrics against reg. Passing a fresh
// prometheus.NewRegistry() keeps tests isolated from the global registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		roundsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tiercompactor_rounds_started_total",
			Help: "Planning rounds started.",
		}),
		roundsCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tiercompactor_rounds_committed_total",
			Help: "Rounds whose compact_and_split action committed successfully.",
		}),
		roundsNoop: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tiercompactor_rounds_noop_total",
			Help: "Rounds where the planner found nothing to do.",
		}),
		roundsAborted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tiercompactor_rounds_aborted_total",
			Help: "Rounds where the planner returned Abort (schema guard).",
		}),
		roundsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tiercompactor_rounds_failed_total",
			Help: "Rounds that failed, labeled by error kind.",
		}, []string{"kind"}),
		breakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tiercompactor_circuit_breaker_state",
			Help: "Circuit breaker state: 0=closed, 1=half-open, 2=open.",
		}),
		lastSuccessUnixSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tiercompactor_last_success_unix_seconds",
			Help: "Unix timestamp of the last partition cycle that ended without a returned error.",
		}),
		partitionDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tiercompactor_partition_round_duration_seconds",
			Help:    "Wall-clock duration of one partition's plan-execute-commit cycle.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.roundsStarted,
		m.roundsCommitted,
		m.roundsNoop,
		m.roundsAborted,
		m.roundsFailed,
		m.breakerState,
		m.lastSuccessUnixSeconds,
		m.partitionDurationSeconds,
	)

	return m
}
