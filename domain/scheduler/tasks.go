package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	"github.com/capstonehub/capstonehub/internal/dispatch"
	"github.com/capstonehub/capstonehub/pkg/logger"
)

// StaleRecoveryTask returns abandoned processing jobs to their queues. It
// covers jobs orphaned by a crashed worker between the startup recovery and
// the next restart.
type StaleRecoveryTask struct {
	broker     dispatch.Broker
	controller *dispatch.Controller
	threshold  time.Duration
	log        *slog.Logger
}

// NewStaleRecoveryTask creates a new stale recovery task
func NewStaleRecoveryTask(broker dispatch.Broker, ctrl *dispatch.Controller, threshold time.Duration, log *slog.Logger) *StaleRecoveryTask {
	if threshold <= 0 {
		threshold = 10 * time.Minute
	}
	return &StaleRecoveryTask{
		broker:     broker,
		controller: ctrl,
		threshold:  threshold,
		log:        log.With(logger.Scope("scheduler.stale_recovery")),
	}
}

// Run sweeps every pool's queue for stale jobs
func (t *StaleRecoveryTask) Run(ctx context.Context) error {
	if !t.controller.Enabled() {
		return nil
	}

	for _, pool := range t.controller.Pools() {
		recovered, err := t.broker.RecoverStale(ctx, pool.Queue(), t.threshold)
		if err != nil {
			t.log.Warn("stale recovery sweep failed",
				slog.String("queue", pool.Queue()),
				logger.Error(err))
			continue
		}
		if recovered > 0 {
			t.log.Info("recovered stale jobs",
				slog.String("queue", pool.Queue()),
				slog.Int("count", recovered))
		}
	}

	return nil
}

// QueueStatsTask periodically logs per-queue depth and outcome counts
type QueueStatsTask struct {
	broker     dispatch.Broker
	controller *dispatch.Controller
	log        *slog.Logger
}

// NewQueueStatsTask creates a new queue stats task
func NewQueueStatsTask(broker dispatch.Broker, ctrl *dispatch.Controller, log *slog.Logger) *QueueStatsTask {
	return &QueueStatsTask{
		broker:     broker,
		controller: ctrl,
		log:        log.With(logger.Scope("scheduler.queue_stats")),
	}
}

// Run logs stats for every pool's queue
func (t *QueueStatsTask) Run(ctx context.Context) error {
	if !t.controller.Enabled() {
		return nil
	}

	for _, pool := range t.controller.Pools() {
		stats, err := t.broker.Stats(ctx, pool.Queue())
		if err != nil {
			t.log.Warn("failed to read queue stats",
				slog.String("queue", pool.Queue()),
				logger.Error(err))
			continue
		}

		metrics := pool.Metrics()
		t.log.Info("queue stats",
			slog.String("queue", pool.Queue()),
			slog.Int64("queued", stats.Queued),
			slog.Int64("processing", stats.Processing),
			slog.Int64("completed", stats.Completed),
			slog.Int64("failed", stats.Failed),
			slog.Int64("in_flight", metrics.InFlight))
	}

	return nil
}

// JobCleanupTask deletes terminal dispatch job rows past the retention window
type JobCleanupTask struct {
	db        *bun.DB
	retention time.Duration
	log       *slog.Logger
}

// NewJobCleanupTask creates a new terminal-job cleanup task
func NewJobCleanupTask(db *bun.DB, retention time.Duration, log *slog.Logger) *JobCleanupTask {
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &JobCleanupTask{
		db:        db,
		retention: retention,
		log:       log.With(logger.Scope("scheduler.job_cleanup")),
	}
}

// Run deletes completed and failed jobs older than the retention window
func (t *JobCleanupTask) Run(ctx context.Context) error {
	start := time.Now()
	cutoff := time.Now().Add(-t.retention)

	result, err := t.db.ExecContext(ctx, `
		DELETE FROM dispatch_jobs
		WHERE status IN ('completed', 'failed')
		AND updated_at < ?
	`, cutoff)
	if err != nil {
		t.log.Error("failed to clean up terminal jobs", logger.Error(err))
		return err
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected > 0 {
		t.log.Info("cleaned up terminal jobs",
			slog.Int64("count", rowsAffected),
			slog.Duration("duration", time.Since(start)))
	} else {
		t.log.Debug("no terminal jobs to clean up",
			slog.Duration("duration", time.Since(start)))
	}

	return nil
}
