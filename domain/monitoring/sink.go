package monitoring

import (
	"github.com/capstonehub/capstonehub/internal/dispatch"
)

// MetricsSink is a dispatch event sink that records Prometheus metrics
type MetricsSink struct{}

// NewMetricsSink creates the Prometheus event sink
func NewMetricsSink() *MetricsSink {
	return &MetricsSink{}
}

func (s *MetricsSink) JobCompleted(ev dispatch.CompletedEvent) {
	jobsCompleted.WithLabelValues(ev.Queue).Inc()
	jobDuration.WithLabelValues(ev.Queue).Observe(ev.Duration.Seconds())
	jobAttempts.WithLabelValues(ev.Queue, "completed").Observe(float64(ev.Attempt))
}

func (s *MetricsSink) JobFailed(ev dispatch.FailedEvent) {
	jobsFailed.WithLabelValues(ev.Queue).Inc()
	jobAttempts.WithLabelValues(ev.Queue, "failed").Observe(float64(ev.Attempt))
}

func (s *MetricsSink) PoolError(ev dispatch.PoolErrorEvent) {
	poolErrors.WithLabelValues(ev.Queue).Inc()
}
