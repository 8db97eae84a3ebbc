package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/capstonehub/capstonehub/pkg/logger"
)

// Processor executes one job's side effect. The pool treats it as an opaque
// unit: a nil return completes the job, any error (or panic) consumes an
// attempt. Processors may block on I/O; the ctx is the pool's processing
// context and is not cancelled by Stop, so in-flight work drains.
type Processor func(ctx context.Context, job *Job) error

// PoolConfig configures a WorkerPool
type PoolConfig struct {
	// Queue is the queue this pool consumes
	Queue string
	// Concurrency is the hard cap on jobs in flight (default: 4)
	Concurrency int
	// PollInterval is how long an idle slot waits before looking for work
	// again (default: 1s)
	PollInterval time.Duration
	// StaleThreshold is how long a job may sit in processing before the
	// startup recovery sweep requeues it (default: 10m)
	StaleThreshold time.Duration
	// RecoverStaleOnStart runs a recovery sweep when the pool starts
	RecoverStaleOnStart bool
}

// DefaultPoolConfig returns a PoolConfig with sensible defaults
func DefaultPoolConfig(queue string) PoolConfig {
	return PoolConfig{
		Queue:               queue,
		Concurrency:         4,
		PollInterval:        time.Second,
		StaleThreshold:      10 * time.Minute,
		RecoverStaleOnStart: true,
	}
}

// WorkerPool consumes one queue with a bounded set of symmetric worker
// slots. Each slot independently claims the next runnable job, runs the
// processor, and acknowledges the outcome before claiming again, so the
// concurrency bound is structural and never exceeded.
type WorkerPool struct {
	broker    Broker
	cfg       PoolConfig
	processor Processor
	log       *slog.Logger

	sinks   []EventSink
	sinksMu sync.Mutex

	stopCh    chan struct{}
	stoppedCh chan struct{}
	running   bool
	mu        sync.Mutex

	inFlight       atomic.Int64
	processedCount atomic.Int64
	successCount   atomic.Int64
	failureCount   atomic.Int64
}

// NewWorkerPool creates a worker pool for one queue
func NewWorkerPool(broker Broker, cfg PoolConfig, processor Processor, log *slog.Logger) *WorkerPool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = 10 * time.Minute
	}

	return &WorkerPool{
		broker:    broker,
		cfg:       cfg,
		processor: processor,
		log:       log.With(logger.Scope("dispatch.pool"), slog.String("queue", cfg.Queue)),
	}
}

// Queue returns the queue name this pool consumes
func (p *WorkerPool) Queue() string {
	return p.cfg.Queue
}

// AddSink registers an event sink. Safe to call before or after Start.
func (p *WorkerPool) AddSink(sink EventSink) {
	p.sinksMu.Lock()
	p.sinks = append(p.sinks, sink)
	p.sinksMu.Unlock()
}

// Start launches the worker slots. Calling Start on a running pool is a
// no-op with a warning; it never produces a duplicate set of workers.
func (p *WorkerPool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		p.log.Warn("worker pool already running, ignoring duplicate start")
		return nil
	}
	p.running = true
	stopCh := make(chan struct{})
	stoppedCh := make(chan struct{})
	p.stopCh = stopCh
	p.stoppedCh = stoppedCh
	p.mu.Unlock()

	if p.cfg.RecoverStaleOnStart {
		if recovered, err := p.broker.RecoverStale(ctx, p.cfg.Queue, p.cfg.StaleThreshold); err != nil {
			p.log.Warn("stale job recovery failed", logger.Error(err))
		} else if recovered > 0 {
			p.log.Info("recovered stale jobs", slog.Int("count", recovered))
		}
	}

	p.log.Info("worker pool starting",
		slog.Int("concurrency", p.cfg.Concurrency),
		slog.Duration("poll_interval", p.cfg.PollInterval))

	// Slots belong to this generation of the pool: they hold their own stop
	// channel and wait group, so a slot abandoned by a timed-out Stop exits
	// when its job finishes instead of rejoining a restarted pool and
	// exceeding the concurrency bound.
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Concurrency; i++ {
		wg.Add(1)
		go p.slot(i, stopCh, &wg)
	}

	go func() {
		wg.Wait()
		close(stoppedCh)
	}()

	return nil
}

// Stop halts intake of new jobs immediately and waits for in-flight jobs to
// reach a terminal state, up to the context deadline. In-flight work left at
// the deadline keeps running to completion but is reported abandoned; the
// broker's staleness recovery will requeue anything that never finishes.
func (p *WorkerPool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	close(p.stopCh)
	stopped := p.stoppedCh
	p.mu.Unlock()

	p.log.Debug("draining worker pool")

	select {
	case <-stopped:
		p.log.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.log.Warn("worker pool stop timeout, abandoning in-flight jobs",
			slog.Int64("in_flight", p.inFlight.Load()))
	}

	return nil
}

// IsRunning returns whether the pool is currently accepting jobs
func (p *WorkerPool) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// PoolMetrics contains cumulative pool counters
type PoolMetrics struct {
	Processed int64 `json:"processed"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	InFlight  int64 `json:"in_flight"`
}

// Metrics returns current pool counters
func (p *WorkerPool) Metrics() PoolMetrics {
	return PoolMetrics{
		Processed: p.processedCount.Load(),
		Succeeded: p.successCount.Load(),
		Failed:    p.failureCount.Load(),
		InFlight:  p.inFlight.Load(),
	}
}

// slot is one worker slot's claim/process loop. Slots are symmetric; an idle
// slot sleeps for the poll interval, a busy slot claims again immediately.
// stopCh is the generation's stop channel captured at Start.
func (p *WorkerPool) slot(id int, stopCh <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	// Processing continues past Stop for drain, so the processor context
	// is independent of the caller's.
	ctx := context.Background()

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		jobs, err := p.broker.Dequeue(ctx, p.cfg.Queue, 1)
		if err != nil {
			p.log.Warn("dequeue failed", slog.Int("slot", id), logger.Error(err))
			p.emitPoolError(err)
			p.idle(stopCh)
			continue
		}

		if len(jobs) == 0 {
			p.idle(stopCh)
			continue
		}

		p.processJob(ctx, jobs[0])
	}
}

// idle waits one poll interval or until the slot's generation stops
func (p *WorkerPool) idle(stopCh <-chan struct{}) {
	select {
	case <-stopCh:
	case <-time.After(p.cfg.PollInterval):
	}
}

// processJob runs the processor for one claimed job and acknowledges the
// outcome. Panics count as failures.
func (p *WorkerPool) processJob(ctx context.Context, job *Job) {
	p.inFlight.Add(1)
	defer p.inFlight.Add(-1)

	start := time.Now()

	err := p.runProcessor(ctx, job)
	if err == nil {
		if ackErr := p.broker.Complete(ctx, job); ackErr != nil {
			p.log.Error("failed to mark job completed",
				slog.String("job_id", job.ID), logger.Error(ackErr))
			p.emitPoolError(ackErr)
			return
		}
		p.processedCount.Add(1)
		p.successCount.Add(1)
		p.emitCompleted(CompletedEvent{
			JobID:    job.ID,
			Queue:    job.Queue,
			Attempt:  job.Attempt,
			Duration: time.Since(start),
		})
		return
	}

	// Uniform retry policy: every failure consumes an attempt, permanent
	// and transient errors alike.
	if job.Attempt >= job.MaxAttempts {
		if ackErr := p.broker.Fail(ctx, job, err.Error()); ackErr != nil {
			p.log.Error("failed to mark job failed",
				slog.String("job_id", job.ID), logger.Error(ackErr))
			p.emitPoolError(ackErr)
			return
		}
		p.processedCount.Add(1)
		p.failureCount.Add(1)
		p.emitFailed(FailedEvent{
			JobID:   job.ID,
			Queue:   job.Queue,
			Attempt: job.Attempt,
			Error:   err.Error(),
		})
		return
	}

	delay := job.Backoff.Delay(job.Attempt)
	if ackErr := p.broker.Retry(ctx, job, delay, err.Error()); ackErr != nil {
		p.log.Error("failed to requeue job for retry",
			slog.String("job_id", job.ID), logger.Error(ackErr))
		p.emitPoolError(ackErr)
		return
	}

	p.log.Debug("job failed, retry scheduled",
		slog.String("job_id", job.ID),
		slog.Int("attempt", job.Attempt),
		slog.Int("max_attempts", job.MaxAttempts),
		slog.Duration("delay", delay),
		logger.Error(err))
}

// runProcessor invokes the processor with panic recovery
func (p *WorkerPool) runProcessor(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panic: %v", r)
		}
	}()
	return p.processor(ctx, job)
}

func (p *WorkerPool) emitCompleted(ev CompletedEvent) {
	p.sinksMu.Lock()
	sinks := append([]EventSink(nil), p.sinks...)
	p.sinksMu.Unlock()
	notify(sinks, p.log, func(s EventSink) { s.JobCompleted(ev) })
}

func (p *WorkerPool) emitFailed(ev FailedEvent) {
	p.sinksMu.Lock()
	sinks := append([]EventSink(nil), p.sinks...)
	p.sinksMu.Unlock()
	notify(sinks, p.log, func(s EventSink) { s.JobFailed(ev) })
}

func (p *WorkerPool) emitPoolError(err error) {
	p.sinksMu.Lock()
	sinks := append([]EventSink(nil), p.sinks...)
	p.sinksMu.Unlock()
	notify(sinks, p.log, func(s EventSink) {
		s.PoolError(PoolErrorEvent{Queue: p.cfg.Queue, Error: err.Error()})
	})
}
