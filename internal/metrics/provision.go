package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stepRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provisioning_step_runs_total",
			Help: "Total number of provisioning step executions by terminal status",
		},
		[]string{"step", "status"},
	)

	stepRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provisioning_step_duration_seconds",
			Help:    "Provisioning step handler duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"step"},
	)
)

// ObserveStepRun records one completed provisioning step execution.
func ObserveStepRun(step, status string, elapsed time.Duration) {
	stepRunsTotal.WithLabelValues(step, status).Inc()
	stepRunDuration.WithLabelValues(step).Observe(elapsed.Seconds())
}
