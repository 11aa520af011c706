// Package metrics defines the Prometheus collectors exported by codebox.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Execution outcomes used as the "outcome" label
const (
	OutcomeSuccess          = "success"
	OutcomeValidationError  = "validation_error"
	OutcomeCompilationError = "compilation_error"
	OutcomeRuntimeError     = "runtime_error"
	OutcomeServerError      = "server_error"
)

var (
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codebox_executions_total",
			Help: "Total number of code executions",
		},
		[]string{"language", "outcome"},
	)

	PhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codebox_phase_duration_seconds",
			Help:    "Duration of execution phases",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"language", "phase"}, // phase: "compile", "run", "total"
	)

	SandboxesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "codebox_sandboxes_active",
			Help: "Number of sandbox containers currently alive",
		},
	)

	SandboxCreateDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "codebox_sandbox_create_duration_seconds",
			Help:    "Time to create and start a sandbox container",
			Buckets: []float64{0.05, 0.1, 0.2, 0.5, 1, 2, 5},
		},
	)

	CleanupFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codebox_cleanup_failures_total",
			Help: "Failed teardown operations",
		},
		[]string{"resource"}, // resource: "container", "scratch"
	)

	OutputTruncated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codebox_output_truncated_total",
			Help: "Executions whose captured output hit the size ceiling",
		},
		[]string{"language"},
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "codebox_rate_limit_hits_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)
)

// Handler serves the default registry in the Prometheus exposition format
func Handler() http.Handler {
	return promhttp.Handler()
}
