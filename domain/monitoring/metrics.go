// Package monitoring exports dispatch activity as Prometheus metrics and
// serves the /metrics scrape endpoint.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_jobs_completed_total",
		Help: "Total number of jobs that completed successfully",
	}, []string{"queue"})

	jobsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_jobs_failed_total",
		Help: "Total number of jobs that failed permanently",
	}, []string{"queue"})

	poolErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_pool_errors_total",
		Help: "Total number of pool-level errors (claim or state transitions)",
	}, []string{"queue"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispatch_job_duration_seconds",
		Help:    "Processing duration of completed jobs",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"queue"})

	jobAttempts = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispatch_job_attempts",
		Help:    "Attempt count at which jobs reached a terminal state",
		Buckets: []float64{1, 2, 3, 4, 5, 10},
	}, []string{"queue", "outcome"})
)
