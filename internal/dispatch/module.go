package dispatch

import (
	"context"
	"log/slog"

	"github.com/uptrace/bun"
	"go.uber.org/fx"

	"github.com/capstonehub/capstonehub/internal/config"
)

// PoolGroup is the fx value group domain modules contribute worker pools to
const PoolGroup = `group:"dispatch.pools"`

// SinkGroup is the fx value group for event sinks attached to every pool
const SinkGroup = `group:"dispatch.sinks"`

// Module wires the dispatch subsystem: broker selection from config, the
// producer Queue, and the lifecycle controller. Domain modules contribute
// their pools via PoolGroup and sinks via SinkGroup.
var Module = fx.Module("dispatch",
	fx.Provide(
		NewBrokerFromConfig,
		NewQueueFromConfig,
		fx.Annotate(
			NewController,
			fx.ParamTags("", PoolGroup, SinkGroup, ""),
		),
	),
	fx.Invoke(registerLifecycle),
)

// NewBrokerFromConfig selects the broker backend from configuration
func NewBrokerFromConfig(cfg *config.Config, db bun.IDB, log *slog.Logger) Broker {
	if cfg.Dispatch.Broker == "memory" {
		log.Info("using in-memory dispatch broker")
		return NewMemoryBroker()
	}
	return NewPostgresBroker(db, log)
}

// NewQueueFromConfig creates the producer queue with configured defaults
func NewQueueFromConfig(cfg *config.Config, broker Broker, log *slog.Logger) Queue {
	return NewQueue(broker, QueueDefaults{
		MaxAttempts: cfg.Dispatch.MaxAttempts,
		Backoff: Backoff{
			Strategy:  BackoffExponential,
			BaseDelay: cfg.Dispatch.BaseRetryDelay,
			Factor:    2,
			MaxDelay:  cfg.Dispatch.MaxRetryDelay,
		},
	}, log)
}

func registerLifecycle(lc fx.Lifecycle, c *Controller) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return c.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return c.Stop(ctx)
		},
	})
}
