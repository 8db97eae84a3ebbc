package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/capstonehub/capstonehub/pkg/logger"
)

// Queue is the producer-facing enqueue surface
type Queue interface {
	// Enqueue durably records a job and returns its ID. It returns an
	// error (wrapping ErrBrokerUnavailable where detectable) when the
	// broker cannot record the job; it never drops silently.
	Enqueue(ctx context.Context, queue string, payload any, opts EnqueueOptions) (string, error)
}

// EnqueueOptions tunes a single enqueue call. Zero values fall back to the
// queue defaults.
type EnqueueOptions struct {
	// MaxAttempts overrides the default attempt cap
	MaxAttempts int
	// Backoff overrides the default retry delay policy
	Backoff *Backoff
	// Priority orders dequeue within the queue (higher first)
	Priority int
}

// QueueDefaults are applied to enqueued jobs when options leave them unset
type QueueDefaults struct {
	MaxAttempts int
	Backoff     Backoff
}

type brokerQueue struct {
	broker   Broker
	defaults QueueDefaults
	log      *slog.Logger
}

// NewQueue creates a Queue over the given broker
func NewQueue(broker Broker, defaults QueueDefaults, log *slog.Logger) Queue {
	if defaults.MaxAttempts <= 0 {
		defaults.MaxAttempts = 5
	}
	if defaults.Backoff == (Backoff{}) {
		defaults.Backoff = DefaultBackoff()
	}
	return &brokerQueue{
		broker:   broker,
		defaults: defaults,
		log:      log.With(logger.Scope("dispatch.queue")),
	}
}

func (q *brokerQueue) Enqueue(ctx context.Context, queue string, payload any, opts EnqueueOptions) (string, error) {
	if queue == "" {
		return "", fmt.Errorf("dispatch: queue name is required")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("dispatch: marshal payload: %w", err)
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = q.defaults.MaxAttempts
	}
	backoff := q.defaults.Backoff
	if opts.Backoff != nil {
		backoff = *opts.Backoff
	}

	job := &Job{
		Queue:       queue,
		Payload:     raw,
		MaxAttempts: maxAttempts,
		Priority:    opts.Priority,
		Backoff:     backoff,
		Status:      StatusQueued,
	}

	if err := q.broker.Enqueue(ctx, job); err != nil {
		return "", fmt.Errorf("dispatch: enqueue %q: %w", queue, err)
	}

	q.log.Debug("job enqueued",
		slog.String("job_id", job.ID),
		slog.String("queue", queue),
		slog.Int("max_attempts", maxAttempts))

	return job.ID, nil
}
