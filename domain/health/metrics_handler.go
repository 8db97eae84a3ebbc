package health

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/capstonehub/capstonehub/internal/dispatch"
)

// MetricsHandler serves dispatch queue and pool metrics over the API
type MetricsHandler struct {
	broker   dispatch.Broker
	dispatch *dispatch.Controller
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(broker dispatch.Broker, ctrl *dispatch.Controller) *MetricsHandler {
	return &MetricsHandler{
		broker:   broker,
		dispatch: ctrl,
	}
}

// QueueMetrics combines broker stats and pool counters for one queue
type QueueMetrics struct {
	Queue      string `json:"queue"`
	Running    bool   `json:"running"`
	Queued     int64  `json:"queued"`
	Processing int64  `json:"processing"`
	Completed  int64  `json:"completed"`
	Failed     int64  `json:"failed"`
	InFlight   int64  `json:"in_flight"`
	Processed  int64  `json:"processed"`
}

// JobMetricsResponse contains metrics for all dispatch queues
type JobMetricsResponse struct {
	Enabled   bool           `json:"enabled"`
	Queues    []QueueMetrics `json:"queues"`
	Timestamp string         `json:"timestamp"`
}

// JobMetrics handles GET /api/metrics/jobs
func (h *MetricsHandler) JobMetrics(c echo.Context) error {
	ctx := c.Request().Context()

	queues := []QueueMetrics{}
	for _, pool := range h.dispatch.Pools() {
		pm := pool.Metrics()
		qm := QueueMetrics{
			Queue:     pool.Queue(),
			Running:   pool.IsRunning(),
			InFlight:  pm.InFlight,
			Processed: pm.Processed,
		}

		if stats, err := h.broker.Stats(ctx, pool.Queue()); err == nil {
			qm.Queued = stats.Queued
			qm.Processing = stats.Processing
			qm.Completed = stats.Completed
			qm.Failed = stats.Failed
		}

		queues = append(queues, qm)
	}

	return c.JSON(http.StatusOK, JobMetricsResponse{
		Enabled:   h.dispatch.Enabled(),
		Queues:    queues,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
