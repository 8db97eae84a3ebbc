package scheduler

import (
	"context"
	"log/slog"

	"github.com/uptrace/bun"
	"go.uber.org/fx"

	appconfig "github.com/capstonehub/capstonehub/internal/config"
	"github.com/capstonehub/capstonehub/internal/dispatch"
)

// Module provides scheduled task functionality
var Module = fx.Module("scheduler",
	fx.Provide(
		NewConfig,
		NewScheduler,
	),
	fx.Invoke(
		RegisterTasks,
		RegisterSchedulerLifecycle,
	),
)

// TaskParams contains dependencies for creating scheduled tasks
type TaskParams struct {
	fx.In
	Scheduler  *Scheduler
	Broker     dispatch.Broker
	Controller *dispatch.Controller
	DB         *bun.DB
	Log        *slog.Logger
	Cfg        *Config
	AppCfg     *appconfig.Config
}

// RegisterTasks registers all scheduled tasks
func RegisterTasks(p TaskParams) error {
	if !p.Cfg.Enabled {
		p.Log.Info("scheduler disabled, skipping task registration")
		return nil
	}

	staleTask := NewStaleRecoveryTask(p.Broker, p.Controller, p.AppCfg.Dispatch.StaleThreshold, p.Log)
	if err := p.Scheduler.AddIntervalTask("stale_recovery",
		p.Cfg.StaleRecoveryInterval, staleTask.Run); err != nil {
		p.Log.Error("failed to register stale recovery task",
			slog.String("error", err.Error()))
	}

	statsTask := NewQueueStatsTask(p.Broker, p.Controller, p.Log)
	if err := p.Scheduler.AddIntervalTask("queue_stats",
		p.Cfg.QueueStatsInterval, statsTask.Run); err != nil {
		p.Log.Error("failed to register queue stats task",
			slog.String("error", err.Error()))
	}

	// Terminal-job cleanup only applies to the durable broker
	if p.AppCfg.Dispatch.Broker != "memory" {
		cleanupTask := NewJobCleanupTask(p.DB, p.Cfg.JobRetention, p.Log)
		if err := p.Scheduler.AddCronTask("job_cleanup",
			p.Cfg.JobCleanupSchedule, cleanupTask.Run); err != nil {
			p.Log.Error("failed to register job cleanup task",
				slog.String("error", err.Error()))
		}
	}

	p.Log.Info("registered scheduled tasks",
		slog.Any("tasks", p.Scheduler.ListTasks()))

	return nil
}

// RegisterSchedulerLifecycle registers the scheduler with fx lifecycle
func RegisterSchedulerLifecycle(lc fx.Lifecycle, scheduler *Scheduler, cfg *Config) {
	if !cfg.Enabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return scheduler.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return scheduler.Stop(ctx)
		},
	})
}
