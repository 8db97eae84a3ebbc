package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	"github.com/capstonehub/capstonehub/pkg/logger"
)

// jobRow is the bun model for the dispatch_jobs table
type jobRow struct {
	bun.BaseModel `bun:"table:dispatch_jobs,alias:dj"`

	ID              string          `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	QueueName       string          `bun:"queue_name,notnull"`
	Payload         json.RawMessage `bun:"payload,type:jsonb,notnull"`
	Status          Status          `bun:"status,notnull,default:'queued'"`
	Attempt         int             `bun:"attempt,notnull,default:0"`
	MaxAttempts     int             `bun:"max_attempts,notnull,default:5"`
	Priority        int             `bun:"priority,notnull,default:0"`
	BackoffStrategy string          `bun:"backoff_strategy,notnull,default:'exponential'"`
	BackoffBaseMS   int64           `bun:"backoff_base_ms,notnull,default:5000"`
	BackoffFactor   float64         `bun:"backoff_factor,notnull,default:2"`
	BackoffMaxMS    int64           `bun:"backoff_max_ms,notnull,default:300000"`
	LastError       *string         `bun:"last_error"`
	ScheduledAt     time.Time       `bun:"scheduled_at,notnull,default:now()"`
	StartedAt       *time.Time      `bun:"started_at"`
	CreatedAt       time.Time       `bun:"created_at,notnull,default:now()"`
	UpdatedAt       time.Time       `bun:"updated_at,notnull,default:now()"`
}

func (r *jobRow) toJob() *Job {
	job := &Job{
		ID:          r.ID,
		Queue:       r.QueueName,
		Payload:     r.Payload,
		Attempt:     r.Attempt,
		MaxAttempts: r.MaxAttempts,
		Priority:    r.Priority,
		Backoff: Backoff{
			Strategy:  BackoffStrategy(r.BackoffStrategy),
			BaseDelay: time.Duration(r.BackoffBaseMS) * time.Millisecond,
			Factor:    r.BackoffFactor,
			MaxDelay:  time.Duration(r.BackoffMaxMS) * time.Millisecond,
		},
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.LastError != nil {
		job.LastError = *r.LastError
	}
	return job
}

// PostgresBroker is the durable Broker backed by the dispatch_jobs table.
// Claims use FOR UPDATE SKIP LOCKED so concurrent slots never take the same
// job; retry scheduling and stale recovery use database time throughout so
// worker clocks never matter.
type PostgresBroker struct {
	db  bun.IDB
	log *slog.Logger
}

// NewPostgresBroker creates a broker over the given database handle
func NewPostgresBroker(db bun.IDB, log *slog.Logger) *PostgresBroker {
	return &PostgresBroker{
		db:  db,
		log: log.With(logger.Scope("dispatch.broker")),
	}
}

// Available probes database connectivity
func (b *PostgresBroker) Available(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var one int
	err := b.db.NewRaw(`SELECT 1`).Scan(probeCtx, &one)
	return err == nil
}

func (b *PostgresBroker) Enqueue(ctx context.Context, job *Job) error {
	row := &jobRow{}

	// now() throughout keeps scheduled_at consistent with the dequeue
	// query's clock
	err := b.db.NewRaw(`INSERT INTO dispatch_jobs (
		queue_name, payload, status, attempt, max_attempts, priority,
		backoff_strategy, backoff_base_ms, backoff_factor, backoff_max_ms,
		scheduled_at
	) VALUES (?, ?, 'queued', 0, ?, ?, ?, ?, ?, ?, now())
	RETURNING *`,
		job.Queue,
		string(job.Payload),
		job.MaxAttempts,
		job.Priority,
		string(job.Backoff.Strategy),
		job.Backoff.BaseDelay.Milliseconds(),
		job.Backoff.Factor,
		job.Backoff.MaxDelay.Milliseconds(),
	).Scan(ctx, row)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}

	job.ID = row.ID
	job.Status = row.Status
	job.CreatedAt = row.CreatedAt
	job.UpdatedAt = row.UpdatedAt
	return nil
}

// Dequeue atomically claims up to limit runnable jobs.
//
// The CTE + FOR UPDATE SKIP LOCKED pattern lets any number of worker slots
// claim concurrently without conflicts; attempt is incremented at claim time
// so a processor always sees attempt >= 1.
func (b *PostgresBroker) Dequeue(ctx context.Context, queue string, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 1
	}

	var rows []*jobRow
	err := b.db.NewRaw(`WITH cte AS (
		SELECT id FROM dispatch_jobs
		WHERE queue_name = ? AND status = 'queued' AND scheduled_at <= now()
		ORDER BY priority DESC, created_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT ?
	)
	UPDATE dispatch_jobs j
	SET status = 'processing', attempt = attempt + 1,
		started_at = now(), updated_at = now()
	FROM cte WHERE j.id = cte.id
	RETURNING j.*`, queue, limit).Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("dequeue %q: %w", queue, err)
	}

	jobs := make([]*Job, 0, len(rows))
	for _, row := range rows {
		jobs = append(jobs, row.toJob())
	}
	return jobs, nil
}

func (b *PostgresBroker) Complete(ctx context.Context, job *Job) error {
	_, err := b.db.NewUpdate().
		Model((*jobRow)(nil)).
		Set("status = ?", StatusCompleted).
		Set("last_error = NULL").
		Set("updated_at = now()").
		Where("id = ?", job.ID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

func (b *PostgresBroker) Retry(ctx context.Context, job *Job, delay time.Duration, errMsg string) error {
	_, err := b.db.NewRaw(`UPDATE dispatch_jobs
		SET status = 'queued',
			last_error = ?,
			scheduled_at = now() + (? || ' milliseconds')::interval,
			started_at = NULL,
			updated_at = now()
		WHERE id = ?`,
		truncateError(errMsg),
		fmt.Sprintf("%d", delay.Milliseconds()),
		job.ID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("requeue for retry: %w", err)
	}
	return nil
}

func (b *PostgresBroker) Fail(ctx context.Context, job *Job, errMsg string) error {
	_, err := b.db.NewUpdate().
		Model((*jobRow)(nil)).
		Set("status = ?", StatusFailed).
		Set("last_error = ?", truncateError(errMsg)).
		Set("updated_at = now()").
		Where("id = ?", job.ID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// RecoverStale requeues jobs stuck in processing, typically after a crash or
// a stop timeout abandoned them mid-flight
func (b *PostgresBroker) RecoverStale(ctx context.Context, queue string, olderThan time.Duration) (int, error) {
	result, err := b.db.NewRaw(`UPDATE dispatch_jobs
		SET status = 'queued',
			started_at = NULL,
			scheduled_at = now(),
			updated_at = now()
		WHERE queue_name = ?
			AND status = 'processing'
			AND started_at < now() - (? || ' milliseconds')::interval`,
		queue,
		fmt.Sprintf("%d", olderThan.Milliseconds())).Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("recover stale jobs: %w", err)
	}

	count, _ := result.RowsAffected()
	if count > 0 {
		b.log.Warn("recovered stale jobs",
			slog.String("queue", queue),
			slog.Int64("count", count))
	}

	return int(count), nil
}

func (b *PostgresBroker) Stats(ctx context.Context, queue string) (*Stats, error) {
	stats := &Stats{}
	err := b.db.NewRaw(`SELECT
		COUNT(*) FILTER (WHERE status = 'queued') AS queued,
		COUNT(*) FILTER (WHERE status = 'processing') AS processing,
		COUNT(*) FILTER (WHERE status = 'completed') AS completed,
		COUNT(*) FILTER (WHERE status = 'failed') AS failed
	FROM dispatch_jobs WHERE queue_name = ?`, queue).
		Scan(ctx, &stats.Queued, &stats.Processing, &stats.Completed, &stats.Failed)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	return stats, nil
}
