package dispatch

import (
	"context"
	"errors"
	"time"
)

// ErrBrokerUnavailable is returned by enqueue when the queue backend cannot
// durably record the job. The caller must handle it; jobs are never silently
// dropped.
var ErrBrokerUnavailable = errors.New("dispatch: broker unavailable")

// Broker is the durable queue backend behind Queue and WorkerPool.
//
// Implementations must be safe for concurrent use. Dequeue claims exclusive
// ownership of the returned jobs (status moves to processing and Attempt is
// incremented); ownership ends with Complete, Retry or Fail. Jobs stuck in
// processing past a staleness threshold are returned to the queue by
// RecoverStale, the broker-side visibility mechanic that reclaims work
// abandoned at shutdown.
type Broker interface {
	// Available reports whether the backend is reachable. Non-blocking
	// beyond a connectivity probe.
	Available(ctx context.Context) bool

	// Enqueue durably records the job and assigns its ID before returning
	Enqueue(ctx context.Context, job *Job) error

	// Dequeue atomically claims up to limit runnable jobs from the queue
	Dequeue(ctx context.Context, queue string, limit int) ([]*Job, error)

	// Complete transitions a claimed job to its completed terminal state
	Complete(ctx context.Context, job *Job) error

	// Retry returns a claimed job to the queue, runnable after delay
	Retry(ctx context.Context, job *Job, delay time.Duration, errMsg string) error

	// Fail transitions a claimed job to its failed terminal state
	Fail(ctx context.Context, job *Job, errMsg string) error

	// RecoverStale requeues jobs processing for longer than olderThan,
	// returning how many were recovered
	RecoverStale(ctx context.Context, queue string, olderThan time.Duration) (int, error)

	// Stats returns job counts by status for one queue
	Stats(ctx context.Context, queue string) (*Stats, error)
}
