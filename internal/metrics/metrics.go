// Package metrics exposes Prometheus collectors for scheduler runs.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mpz/devops/tools/rds-cluster-scheduler/internal/types"
)

const namespace = "rds_scheduler"

// Metrics records run, outcome and attempt counters on a private registry.
// It implements scheduler.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	runs        *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	outcomes    *prometheus.CounterVec
	attempts    *prometheus.CounterVec
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of scheduler runs by action and final status",
			},
			[]string{"action", "status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of scheduler runs in seconds",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"action"},
		),
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cluster_outcomes_total",
				Help:      "Total number of per-cluster outcomes by action and outcome",
			},
			[]string{"action", "outcome"},
		),
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "action_attempts_total",
				Help:      "Total number of start/stop attempts by action and result",
			},
			[]string{"action", "result"},
		),
	}

	m.registry.MustRegister(
		m.runs,
		m.runDuration,
		m.outcomes,
		m.attempts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RunFinished records a completed or failed run.
func (m *Metrics) RunFinished(action types.Action, status string, duration time.Duration) {
	m.runs.WithLabelValues(action.Verb(), status).Inc()
	m.runDuration.WithLabelValues(action.Verb()).Observe(duration.Seconds())
}

// OutcomeRecorded counts one per-cluster outcome.
func (m *Metrics) OutcomeRecorded(action types.Action, kind types.OutcomeKind) {
	m.outcomes.WithLabelValues(action.Verb(), strings.ToLower(string(kind))).Inc()
}

// AttemptFinished counts one executor attempt.
func (m *Metrics) AttemptFinished(action types.Action, result string) {
	m.attempts.WithLabelValues(action.Verb(), result).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the exposition handler for the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
