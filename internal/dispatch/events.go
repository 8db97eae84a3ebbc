package dispatch

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/capstonehub/capstonehub/pkg/logger"
)

// CompletedEvent is emitted when a job reaches StatusCompleted
type CompletedEvent struct {
	JobID    string
	Queue    string
	Attempt  int
	Duration time.Duration
}

// FailedEvent is emitted when a job exhausts its attempts and reaches
// StatusFailed. Attempt carries the terminal attempt count.
type FailedEvent struct {
	JobID   string
	Queue   string
	Attempt int
	Error   string
}

// PoolErrorEvent is emitted on infrastructure-level failures (broker errors
// during claim or acknowledgement), distinct from job-level failures.
type PoolErrorEvent struct {
	Queue string
	Error string
}

// EventSink receives pool lifecycle notifications. Delivery is
// fire-and-forget: sinks run outside the pool's control flow, a slow sink
// never stalls job processing and a panicking sink is isolated.
type EventSink interface {
	JobCompleted(ev CompletedEvent)
	JobFailed(ev FailedEvent)
	PoolError(ev PoolErrorEvent)
}

// LogSink is an EventSink that writes events to the application log
type LogSink struct {
	log *slog.Logger
}

// NewLogSink creates a logging event sink
func NewLogSink(log *slog.Logger) *LogSink {
	return &LogSink{log: log.With(logger.Scope("dispatch.events"))}
}

func (s *LogSink) JobCompleted(ev CompletedEvent) {
	s.log.Debug("job completed",
		slog.String("job_id", ev.JobID),
		slog.String("queue", ev.Queue),
		slog.Int("attempt", ev.Attempt),
		slog.Duration("duration", ev.Duration))
}

func (s *LogSink) JobFailed(ev FailedEvent) {
	s.log.Error("job failed permanently",
		slog.String("job_id", ev.JobID),
		slog.String("queue", ev.Queue),
		slog.Int("attempt", ev.Attempt),
		slog.String("error", ev.Error))
}

func (s *LogSink) PoolError(ev PoolErrorEvent) {
	s.log.Error("pool error",
		slog.String("queue", ev.Queue),
		slog.String("error", ev.Error))
}

// notify invokes fn against every sink, each on its own goroutine with panic
// isolation, so event delivery can never block or crash the pool.
func notify(sinks []EventSink, log *slog.Logger, fn func(EventSink)) {
	for _, sink := range sinks {
		go func(s EventSink) {
			defer func() {
				if r := recover(); r != nil {
					log.Warn("event sink panicked",
						slog.String("panic", fmt.Sprint(r)))
				}
			}()
			fn(s)
		}(sink)
	}
}
