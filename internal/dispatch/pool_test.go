package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testPoolConfig keeps polling tight so tests settle quickly
func testPoolConfig(queue string) PoolConfig {
	return PoolConfig{
		Queue:        queue,
		Concurrency:  2,
		PollInterval: 5 * time.Millisecond,
	}
}

// fastBackoff retries almost immediately so retry tests do not sleep
func fastBackoff() *Backoff {
	return &Backoff{Strategy: BackoffFixed, BaseDelay: time.Millisecond}
}

// recordingSink captures events for assertions
type recordingSink struct {
	mu         sync.Mutex
	completed  []CompletedEvent
	failed     []FailedEvent
	poolErrors []PoolErrorEvent
}

func (s *recordingSink) JobCompleted(ev CompletedEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, ev)
}

func (s *recordingSink) JobFailed(ev FailedEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, ev)
}

func (s *recordingSink) PoolError(ev PoolErrorEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.poolErrors = append(s.poolErrors, ev)
}

func (s *recordingSink) counts() (completed, failed, poolErrors int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.completed), len(s.failed), len(s.poolErrors)
}

// panicSink panics on every delivery; the pool must shrug it off
type panicSink struct{}

func (panicSink) JobCompleted(CompletedEvent) { panic("sink boom") }
func (panicSink) JobFailed(FailedEvent)       { panic("sink boom") }
func (panicSink) PoolError(PoolErrorEvent)    { panic("sink boom") }

func TestPool_SingleJobCompletes(t *testing.T) {
	broker := NewMemoryBroker()
	queue := NewQueue(broker, QueueDefaults{}, testLogger())
	sink := &recordingSink{}

	processed := atomic.Int64{}
	pool := NewWorkerPool(broker, testPoolConfig("email-dispatch"), func(ctx context.Context, job *Job) error {
		processed.Add(1)
		return nil
	}, testLogger())
	pool.AddSink(sink)

	id, err := queue.Enqueue(context.Background(), "email-dispatch",
		map[string]string{"to": "a@test.com", "subject": "Hi", "html": "<p>hi</p>"},
		EnqueueOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop(context.Background())

	assert.Eventually(t, func() bool {
		completed, _, _ := sink.counts()
		return completed == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, int64(1), processed.Load())

	completed, failed, _ := sink.counts()
	assert.Equal(t, 1, completed)
	assert.Zero(t, failed)

	sink.mu.Lock()
	ev := sink.completed[0]
	sink.mu.Unlock()
	assert.Equal(t, id, ev.JobID)
	assert.Equal(t, "email-dispatch", ev.Queue)
	assert.Equal(t, 1, ev.Attempt)

	stats, err := broker.Stats(context.Background(), "email-dispatch")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Completed)
}

func TestPool_RetriesThenFailsPermanently(t *testing.T) {
	broker := NewMemoryBroker()
	queue := NewQueue(broker, QueueDefaults{}, testLogger())
	sink := &recordingSink{}

	attempts := atomic.Int64{}
	pool := NewWorkerPool(broker, testPoolConfig("email-dispatch"), func(ctx context.Context, job *Job) error {
		attempts.Add(1)
		return errors.New("smtp timeout")
	}, testLogger())
	pool.AddSink(sink)

	id, err := queue.Enqueue(context.Background(), "email-dispatch",
		map[string]string{"to": "a@test.com"},
		EnqueueOptions{MaxAttempts: 3, Backoff: fastBackoff()})
	require.NoError(t, err)

	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop(context.Background())

	assert.Eventually(t, func() bool {
		_, failed, _ := sink.counts()
		return failed == 1
	}, 2*time.Second, 5*time.Millisecond)

	// exactly maxAttempts invocations, exactly one terminal event
	assert.Equal(t, int64(3), attempts.Load())

	sink.mu.Lock()
	ev := sink.failed[0]
	sink.mu.Unlock()
	assert.Equal(t, id, ev.JobID)
	assert.Equal(t, 3, ev.Attempt)
	assert.Equal(t, "smtp timeout", ev.Error)

	completed, failed, _ := sink.counts()
	assert.Zero(t, completed)
	assert.Equal(t, 1, failed)
}

func TestPool_AttemptNeverExceedsMaxAttempts(t *testing.T) {
	broker := NewMemoryBroker()
	queue := NewQueue(broker, QueueDefaults{}, testLogger())
	sink := &recordingSink{}

	maxSeen := atomic.Int64{}
	pool := NewWorkerPool(broker, testPoolConfig("q"), func(ctx context.Context, job *Job) error {
		for {
			cur := maxSeen.Load()
			if int64(job.Attempt) <= cur || maxSeen.CompareAndSwap(cur, int64(job.Attempt)) {
				break
			}
		}
		return errors.New("always fails")
	}, testLogger())
	pool.AddSink(sink)

	for i := 0; i < 5; i++ {
		_, err := queue.Enqueue(context.Background(), "q", map[string]int{"n": i},
			EnqueueOptions{MaxAttempts: 2, Backoff: fastBackoff()})
		require.NoError(t, err)
	}

	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop(context.Background())

	assert.Eventually(t, func() bool {
		_, failed, _ := sink.counts()
		return failed == 5
	}, 2*time.Second, 5*time.Millisecond)

	assert.LessOrEqual(t, maxSeen.Load(), int64(2))
}

func TestPool_ConcurrencyBoundIsHardCap(t *testing.T) {
	broker := NewMemoryBroker()
	queue := NewQueue(broker, QueueDefaults{}, testLogger())
	sink := &recordingSink{}

	const concurrency = 2
	const jobs = 8
	const jobDuration = 40 * time.Millisecond

	current := atomic.Int64{}
	peak := atomic.Int64{}

	cfg := testPoolConfig("bulk")
	cfg.Concurrency = concurrency
	pool := NewWorkerPool(broker, cfg, func(ctx context.Context, job *Job) error {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(jobDuration)
		current.Add(-1)
		return nil
	}, testLogger())
	pool.AddSink(sink)

	for i := 0; i < jobs; i++ {
		_, err := queue.Enqueue(context.Background(), "bulk", map[string]int{"n": i}, EnqueueOptions{})
		require.NoError(t, err)
	}

	start := time.Now()
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop(context.Background())

	assert.Eventually(t, func() bool {
		completed, _, _ := sink.counts()
		return completed == jobs
	}, 5*time.Second, 5*time.Millisecond)
	elapsed := time.Since(start)

	assert.LessOrEqual(t, peak.Load(), int64(concurrency))

	// ceil(8/2)*40ms = 160ms lower bound; serial execution would be 320ms
	assert.GreaterOrEqual(t, elapsed, time.Duration(jobs/concurrency)*jobDuration)
	assert.Less(t, elapsed, time.Duration(jobs)*jobDuration)
}

func TestPool_NoConcurrentAttemptsForSameJob(t *testing.T) {
	broker := NewMemoryBroker()
	queue := NewQueue(broker, QueueDefaults{}, testLogger())
	sink := &recordingSink{}

	var mu sync.Mutex
	active := make(map[string]bool)
	violations := atomic.Int64{}

	cfg := testPoolConfig("q")
	cfg.Concurrency = 4
	pool := NewWorkerPool(broker, cfg, func(ctx context.Context, job *Job) error {
		mu.Lock()
		if active[job.ID] {
			violations.Add(1)
		}
		active[job.ID] = true
		mu.Unlock()

		time.Sleep(2 * time.Millisecond)

		mu.Lock()
		active[job.ID] = false
		mu.Unlock()
		return errors.New("retry me")
	}, testLogger())
	pool.AddSink(sink)

	for i := 0; i < 10; i++ {
		_, err := queue.Enqueue(context.Background(), "q", map[string]int{"n": i},
			EnqueueOptions{MaxAttempts: 3, Backoff: fastBackoff()})
		require.NoError(t, err)
	}

	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop(context.Background())

	assert.Eventually(t, func() bool {
		_, failed, _ := sink.counts()
		return failed == 10
	}, 5*time.Second, 5*time.Millisecond)

	assert.Zero(t, violations.Load())
}

func TestPool_StartIsIdempotent(t *testing.T) {
	broker := NewMemoryBroker()
	queue := NewQueue(broker, QueueDefaults{}, testLogger())
	sink := &recordingSink{}

	invocations := atomic.Int64{}
	pool := NewWorkerPool(broker, testPoolConfig("q"), func(ctx context.Context, job *Job) error {
		invocations.Add(1)
		return nil
	}, testLogger())
	pool.AddSink(sink)

	require.NoError(t, pool.Start(context.Background()))
	require.NoError(t, pool.Start(context.Background())) // no-op
	defer pool.Stop(context.Background())

	const jobs = 6
	for i := 0; i < jobs; i++ {
		_, err := queue.Enqueue(context.Background(), "q", map[string]int{"n": i}, EnqueueOptions{})
		require.NoError(t, err)
	}

	assert.Eventually(t, func() bool {
		completed, _, _ := sink.counts()
		return completed == jobs
	}, 2*time.Second, 5*time.Millisecond)

	// a duplicate worker set would process jobs twice
	assert.Equal(t, int64(jobs), invocations.Load())
}

func TestPool_StopDrainsInFlightJobs(t *testing.T) {
	broker := NewMemoryBroker()
	queue := NewQueue(broker, QueueDefaults{}, testLogger())
	sink := &recordingSink{}

	pool := NewWorkerPool(broker, testPoolConfig("slow"), func(ctx context.Context, job *Job) error {
		time.Sleep(100 * time.Millisecond)
		return nil
	}, testLogger())
	pool.AddSink(sink)

	_, err := queue.Enqueue(context.Background(), "slow", map[string]string{}, EnqueueOptions{})
	require.NoError(t, err)

	require.NoError(t, pool.Start(context.Background()))

	require.Eventually(t, func() bool {
		return pool.Metrics().InFlight == 1
	}, time.Second, time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, pool.Stop(stopCtx))

	// stop returned only after the in-flight job reached a terminal state
	completed, _, _ := sink.counts()
	assert.Equal(t, 1, completed)
	assert.False(t, pool.IsRunning())
}

func TestPool_StopTimeoutAbandonsWithoutKilling(t *testing.T) {
	broker := NewMemoryBroker()
	queue := NewQueue(broker, QueueDefaults{}, testLogger())
	sink := &recordingSink{}

	pool := NewWorkerPool(broker, testPoolConfig("slow"), func(ctx context.Context, job *Job) error {
		time.Sleep(300 * time.Millisecond)
		return nil
	}, testLogger())
	pool.AddSink(sink)

	_, err := queue.Enqueue(context.Background(), "slow", map[string]string{}, EnqueueOptions{})
	require.NoError(t, err)

	require.NoError(t, pool.Start(context.Background()))

	require.Eventually(t, func() bool {
		return pool.Metrics().InFlight == 1
	}, time.Second, time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	require.NoError(t, pool.Stop(stopCtx))
	assert.Less(t, time.Since(start), 250*time.Millisecond)

	// the abandoned job is not force-killed; it still completes
	assert.Eventually(t, func() bool {
		completed, _, _ := sink.counts()
		return completed == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestPool_AbandonedSlotDoesNotRejoinRestartedPool(t *testing.T) {
	broker := NewMemoryBroker()
	queue := NewQueue(broker, QueueDefaults{}, testLogger())
	sink := &recordingSink{}

	var active, peak atomic.Int64
	release := make(chan struct{})

	cfg := testPoolConfig("restart")
	cfg.Concurrency = 1
	pool := NewWorkerPool(broker, cfg, func(ctx context.Context, job *Job) error {
		cur := active.Add(1)
		defer active.Add(-1)
		for {
			prev := peak.Load()
			if cur <= prev || peak.CompareAndSwap(prev, cur) {
				break
			}
		}

		var payload struct {
			Hold bool `json:"hold"`
		}
		_ = job.UnmarshalPayload(&payload)
		if payload.Hold {
			<-release
		} else {
			time.Sleep(30 * time.Millisecond)
		}
		return nil
	}, testLogger())
	pool.AddSink(sink)

	_, err := queue.Enqueue(context.Background(), "restart",
		map[string]bool{"hold": true}, EnqueueOptions{})
	require.NoError(t, err)

	require.NoError(t, pool.Start(context.Background()))
	require.Eventually(t, func() bool {
		return pool.Metrics().InFlight == 1
	}, time.Second, time.Millisecond)

	// drain times out while the held job is in flight, abandoning the slot
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.NoError(t, pool.Stop(stopCtx))

	require.NoError(t, pool.Start(context.Background()))

	// finish the abandoned job before offering new work, so any further
	// concurrency can only come from the old slot continuing to claim
	close(release)
	require.Eventually(t, func() bool {
		completed, _, _ := sink.counts()
		return completed == 1
	}, time.Second, time.Millisecond)

	for i := 0; i < 3; i++ {
		_, err := queue.Enqueue(context.Background(), "restart",
			map[string]bool{"hold": false}, EnqueueOptions{})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		completed, _, _ := sink.counts()
		return completed == 4
	}, 2*time.Second, 5*time.Millisecond)

	assert.LessOrEqual(t, peak.Load(), int64(1),
		"slot abandoned at stop timeout must exit, not process alongside the restarted pool")

	stopCtx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	require.NoError(t, pool.Stop(stopCtx2))
}

func TestPool_ProcessorPanicConsumesAttempt(t *testing.T) {
	broker := NewMemoryBroker()
	queue := NewQueue(broker, QueueDefaults{}, testLogger())
	sink := &recordingSink{}

	pool := NewWorkerPool(broker, testPoolConfig("q"), func(ctx context.Context, job *Job) error {
		panic("processor exploded")
	}, testLogger())
	pool.AddSink(sink)

	_, err := queue.Enqueue(context.Background(), "q", map[string]string{},
		EnqueueOptions{MaxAttempts: 2, Backoff: fastBackoff()})
	require.NoError(t, err)

	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop(context.Background())

	assert.Eventually(t, func() bool {
		_, failed, _ := sink.counts()
		return failed == 1
	}, 2*time.Second, 5*time.Millisecond)

	sink.mu.Lock()
	ev := sink.failed[0]
	sink.mu.Unlock()
	assert.Equal(t, 2, ev.Attempt)
	assert.Contains(t, ev.Error, "processor exploded")
}

func TestPool_PanickingSinkDoesNotStallProcessing(t *testing.T) {
	broker := NewMemoryBroker()
	queue := NewQueue(broker, QueueDefaults{}, testLogger())
	good := &recordingSink{}

	pool := NewWorkerPool(broker, testPoolConfig("q"), func(ctx context.Context, job *Job) error {
		return nil
	}, testLogger())
	pool.AddSink(panicSink{})
	pool.AddSink(good)

	const jobs = 4
	for i := 0; i < jobs; i++ {
		_, err := queue.Enqueue(context.Background(), "q", map[string]int{"n": i}, EnqueueOptions{})
		require.NoError(t, err)
	}

	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop(context.Background())

	assert.Eventually(t, func() bool {
		completed, _, _ := good.counts()
		return completed == jobs
	}, 2*time.Second, 5*time.Millisecond)
}

func TestPool_Metrics(t *testing.T) {
	broker := NewMemoryBroker()
	queue := NewQueue(broker, QueueDefaults{}, testLogger())
	sink := &recordingSink{}

	pool := NewWorkerPool(broker, testPoolConfig("q"), func(ctx context.Context, job *Job) error {
		var p map[string]bool
		if err := job.UnmarshalPayload(&p); err != nil {
			return err
		}
		if p["fail"] {
			return errors.New("nope")
		}
		return nil
	}, testLogger())
	pool.AddSink(sink)

	for i := 0; i < 3; i++ {
		_, err := queue.Enqueue(context.Background(), "q", map[string]bool{"fail": false}, EnqueueOptions{})
		require.NoError(t, err)
	}
	_, err := queue.Enqueue(context.Background(), "q", map[string]bool{"fail": true},
		EnqueueOptions{MaxAttempts: 1})
	require.NoError(t, err)

	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop(context.Background())

	assert.Eventually(t, func() bool {
		m := pool.Metrics()
		return m.Processed == 4
	}, 2*time.Second, 5*time.Millisecond)

	m := pool.Metrics()
	assert.Equal(t, int64(3), m.Succeeded)
	assert.Equal(t, int64(1), m.Failed)
	assert.Zero(t, m.InFlight)
}

func TestController_DisabledWhenBrokerUnavailable(t *testing.T) {
	broker := &unavailableBroker{Broker: NewMemoryBroker()}

	pool := NewWorkerPool(broker, testPoolConfig("q"), func(ctx context.Context, job *Job) error {
		return nil
	}, testLogger())

	c := NewController(broker, []*WorkerPool{pool}, nil, testLogger())
	require.NoError(t, c.Start(context.Background()))

	assert.False(t, c.Enabled())
	assert.False(t, pool.IsRunning())

	// stop on a disabled controller is a no-op
	require.NoError(t, c.Stop(context.Background()))
}

func TestController_StartsAndStopsPools(t *testing.T) {
	broker := NewMemoryBroker()

	pool := NewWorkerPool(broker, testPoolConfig("q"), func(ctx context.Context, job *Job) error {
		return nil
	}, testLogger())

	c := NewController(broker, []*WorkerPool{pool}, []EventSink{&recordingSink{}}, testLogger())
	require.NoError(t, c.Start(context.Background()))
	assert.True(t, c.Enabled())
	assert.True(t, pool.IsRunning())

	require.NoError(t, c.Stop(context.Background()))
	assert.False(t, c.Enabled())
	assert.False(t, pool.IsRunning())
}

// unavailableBroker reports a dead backend while delegating everything else
type unavailableBroker struct {
	Broker
}

func (b *unavailableBroker) Available(ctx context.Context) bool { return false }

func TestQueue_EnqueueValidation(t *testing.T) {
	queue := NewQueue(NewMemoryBroker(), QueueDefaults{}, testLogger())

	_, err := queue.Enqueue(context.Background(), "", map[string]string{}, EnqueueOptions{})
	assert.Error(t, err)

	_, err = queue.Enqueue(context.Background(), "q", make(chan int), EnqueueOptions{})
	assert.Error(t, err)
}

func TestQueue_AppliesDefaults(t *testing.T) {
	broker := NewMemoryBroker()
	queue := NewQueue(broker, QueueDefaults{MaxAttempts: 7}, testLogger())

	id, err := queue.Enqueue(context.Background(), "q", map[string]string{"k": "v"}, EnqueueOptions{})
	require.NoError(t, err)

	job := broker.Job(id)
	require.NotNil(t, job)
	assert.Equal(t, 7, job.MaxAttempts)
	assert.Equal(t, StatusQueued, job.Status)
	assert.Equal(t, BackoffExponential, job.Backoff.Strategy)
	assert.Zero(t, job.Attempt)

	var payload map[string]string
	require.NoError(t, job.UnmarshalPayload(&payload))
	assert.Equal(t, "v", payload["k"])
}

func TestQueue_PerJobOverrides(t *testing.T) {
	broker := NewMemoryBroker()
	queue := NewQueue(broker, QueueDefaults{}, testLogger())

	id, err := queue.Enqueue(context.Background(), "q", map[string]string{}, EnqueueOptions{
		MaxAttempts: 2,
		Priority:    9,
		Backoff:     &Backoff{Strategy: BackoffFixed, BaseDelay: time.Minute},
	})
	require.NoError(t, err)

	job := broker.Job(id)
	require.NotNil(t, job)
	assert.Equal(t, 2, job.MaxAttempts)
	assert.Equal(t, 9, job.Priority)
	assert.Equal(t, BackoffFixed, job.Backoff.Strategy)
	assert.Equal(t, time.Minute, job.Backoff.BaseDelay)
}

func TestEnqueueFailsExplicitlyWhenBrokerDown(t *testing.T) {
	queue := NewQueue(&failingBroker{}, QueueDefaults{}, testLogger())

	_, err := queue.Enqueue(context.Background(), "q", map[string]string{}, EnqueueOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBrokerUnavailable)
}

// failingBroker rejects every operation, as a dead Postgres would
type failingBroker struct{}

func (failingBroker) Available(ctx context.Context) bool { return false }
func (failingBroker) Enqueue(ctx context.Context, job *Job) error {
	return fmt.Errorf("%w: connection refused", ErrBrokerUnavailable)
}
func (failingBroker) Dequeue(ctx context.Context, queue string, limit int) ([]*Job, error) {
	return nil, ErrBrokerUnavailable
}
func (failingBroker) Complete(ctx context.Context, job *Job) error { return ErrBrokerUnavailable }
func (failingBroker) Retry(ctx context.Context, job *Job, delay time.Duration, errMsg string) error {
	return ErrBrokerUnavailable
}
func (failingBroker) Fail(ctx context.Context, job *Job, errMsg string) error {
	return ErrBrokerUnavailable
}
func (failingBroker) RecoverStale(ctx context.Context, queue string, olderThan time.Duration) (int, error) {
	return 0, ErrBrokerUnavailable
}
func (failingBroker) Stats(ctx context.Context, queue string) (*Stats, error) {
	return nil, ErrBrokerUnavailable
}
