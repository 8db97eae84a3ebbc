package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/capstonehub/capstonehub/pkg/logger"
)

// Controller orchestrates the dispatch subsystem's lifecycle: it probes
// broker availability at boot, starts the registered worker pools, and
// drains them at shutdown.
//
// When the broker is unreachable at boot the controller starts disabled and
// logs once; the host application stays up with the feature off rather than
// retry-storming the connection.
type Controller struct {
	broker Broker
	pools  []*WorkerPool
	log    *slog.Logger

	mu      sync.Mutex
	enabled bool
}

// NewController creates a lifecycle controller over the given pools. Every
// sink is attached to every pool, alongside the default logging sink.
func NewController(broker Broker, pools []*WorkerPool, sinks []EventSink, log *slog.Logger) *Controller {
	scoped := log.With(logger.Scope("dispatch"))

	logSink := NewLogSink(log)
	for _, pool := range pools {
		pool.AddSink(logSink)
		for _, sink := range sinks {
			pool.AddSink(sink)
		}
	}

	return &Controller{
		broker: broker,
		pools:  pools,
		log:    scoped,
	}
}

// Start probes the broker and starts all pools. With the broker unreachable
// it leaves the subsystem disabled and returns nil so the host keeps booting.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.broker.Available(ctx) {
		c.log.Warn("job dispatch disabled: broker unreachable at startup")
		c.enabled = false
		return nil
	}

	for _, pool := range c.pools {
		if err := pool.Start(ctx); err != nil {
			return err
		}
	}

	c.enabled = true
	c.log.Info("job dispatch started", slog.Int("pools", len(c.pools)))
	return nil
}

// Stop drains all pools, bounded by the context deadline
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled {
		return nil
	}
	c.enabled = false

	var errs []error
	for _, pool := range c.pools {
		if err := pool.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	c.log.Info("job dispatch stopped")
	return errors.Join(errs...)
}

// Enabled reports whether the subsystem started successfully
func (c *Controller) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// Pools returns the registered worker pools
func (c *Controller) Pools() []*WorkerPool {
	return c.pools
}
