package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryBroker is an in-process Broker used by tests and by deployments that
// run without a durable backend. Jobs do not survive a restart.
type MemoryBroker struct {
	mu        sync.Mutex
	jobs      map[string]*Job
	order     map[string][]string // queue -> job IDs in enqueue order
	runAt     map[string]time.Time
	startedAt map[string]time.Time
	completed map[string]int64 // terminal jobs are dropped, counts kept
	failed    map[string]int64
}

// NewMemoryBroker creates an empty in-memory broker
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		jobs:      make(map[string]*Job),
		order:     make(map[string][]string),
		runAt:     make(map[string]time.Time),
		startedAt: make(map[string]time.Time),
		completed: make(map[string]int64),
		failed:    make(map[string]int64),
	}
}

// Available always reports true; the broker lives in-process
func (b *MemoryBroker) Available(ctx context.Context) bool {
	return true
}

func (b *MemoryBroker) Enqueue(ctx context.Context, job *Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	stored := cloneJob(job)
	stored.ID = uuid.NewString()
	stored.Status = StatusQueued
	stored.CreatedAt = now
	stored.UpdatedAt = now

	b.jobs[stored.ID] = stored
	b.order[stored.Queue] = append(b.order[stored.Queue], stored.ID)
	b.runAt[stored.ID] = now

	job.ID = stored.ID
	job.Status = stored.Status
	job.CreatedAt = stored.CreatedAt
	job.UpdatedAt = stored.UpdatedAt
	return nil
}

func (b *MemoryBroker) Dequeue(ctx context.Context, queue string, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 1
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	var claimed []*Job

	for len(claimed) < limit {
		best := b.nextRunnable(queue, now)
		if best == nil {
			break
		}
		best.Status = StatusProcessing
		best.Attempt++
		best.UpdatedAt = now
		b.startedAt[best.ID] = now
		claimed = append(claimed, cloneJob(best))
	}

	return claimed, nil
}

// nextRunnable picks the runnable job with the highest priority, earliest
// enqueue order within equal priority. Caller holds the lock.
func (b *MemoryBroker) nextRunnable(queue string, now time.Time) *Job {
	var best *Job
	for _, id := range b.order[queue] {
		job, ok := b.jobs[id]
		if !ok || job.Status != StatusQueued || b.runAt[id].After(now) {
			continue
		}
		if best == nil || job.Priority > best.Priority {
			best = job
		}
	}
	return best
}

func (b *MemoryBroker) Complete(ctx context.Context, job *Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	stored, ok := b.jobs[job.ID]
	if !ok {
		return fmt.Errorf("memory broker: unknown job %s", job.ID)
	}
	b.completed[stored.Queue]++
	b.remove(stored)
	return nil
}

func (b *MemoryBroker) Retry(ctx context.Context, job *Job, delay time.Duration, errMsg string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	stored, ok := b.jobs[job.ID]
	if !ok {
		return fmt.Errorf("memory broker: unknown job %s", job.ID)
	}
	now := time.Now()
	stored.Status = StatusQueued
	stored.LastError = truncateError(errMsg)
	stored.UpdatedAt = now
	b.runAt[stored.ID] = now.Add(delay)
	delete(b.startedAt, stored.ID)
	return nil
}

func (b *MemoryBroker) Fail(ctx context.Context, job *Job, errMsg string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	stored, ok := b.jobs[job.ID]
	if !ok {
		return fmt.Errorf("memory broker: unknown job %s", job.ID)
	}
	b.failed[stored.Queue]++
	b.remove(stored)
	return nil
}

func (b *MemoryBroker) RecoverStale(ctx context.Context, queue string, olderThan time.Duration) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-olderThan)
	recovered := 0

	for _, id := range b.order[queue] {
		job, ok := b.jobs[id]
		if !ok || job.Status != StatusProcessing {
			continue
		}
		if started, ok := b.startedAt[id]; ok && started.Before(cutoff) {
			job.Status = StatusQueued
			job.UpdatedAt = now
			b.runAt[id] = now
			delete(b.startedAt, id)
			recovered++
		}
	}

	return recovered, nil
}

func (b *MemoryBroker) Stats(ctx context.Context, queue string) (*Stats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := &Stats{
		Completed: b.completed[queue],
		Failed:    b.failed[queue],
	}
	for _, id := range b.order[queue] {
		job, ok := b.jobs[id]
		if !ok {
			continue
		}
		switch job.Status {
		case StatusQueued:
			stats.Queued++
		case StatusProcessing:
			stats.Processing++
		}
	}
	return stats, nil
}

// Job returns a snapshot of a pending job, or nil if it is unknown or has
// reached a terminal state. Used by tests.
func (b *MemoryBroker) Job(id string) *Job {
	b.mu.Lock()
	defer b.mu.Unlock()

	job, ok := b.jobs[id]
	if !ok {
		return nil
	}
	return cloneJob(job)
}

// remove drops a terminal job. Caller holds the lock.
func (b *MemoryBroker) remove(job *Job) {
	delete(b.jobs, job.ID)
	delete(b.runAt, job.ID)
	delete(b.startedAt, job.ID)

	ids := b.order[job.Queue]
	for i, id := range ids {
		if id == job.ID {
			b.order[job.Queue] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
}

func cloneJob(job *Job) *Job {
	c := *job
	if job.Payload != nil {
		c.Payload = append([]byte(nil), job.Payload...)
	}
	return &c
}
