// Package main provides the entry point for the CapstoneHub API server
package main

import (
	"log/slog"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/capstonehub/capstonehub/domain/email"
	"github.com/capstonehub/capstonehub/domain/health"
	"github.com/capstonehub/capstonehub/domain/monitoring"
	"github.com/capstonehub/capstonehub/domain/notifications"
	"github.com/capstonehub/capstonehub/domain/originality"
	"github.com/capstonehub/capstonehub/domain/scheduler"
	"github.com/capstonehub/capstonehub/domain/submissions"
	"github.com/capstonehub/capstonehub/internal/config"
	"github.com/capstonehub/capstonehub/internal/database"
	"github.com/capstonehub/capstonehub/internal/dispatch"
	"github.com/capstonehub/capstonehub/internal/migrate"
	"github.com/capstonehub/capstonehub/internal/server"
	"github.com/capstonehub/capstonehub/pkg/logger"
)

func main() {
	// Load .env files if present (for local development)
	// Order matters: .env.local overrides .env
	// Note: Load() won't overwrite existing vars, Overload() will
	_ = godotenv.Load("../../.env")
	_ = godotenv.Overload("../../.env.local")

	fx.New(
		// Logging
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log}
		}),

		// Infrastructure modules
		logger.Module,
		config.Module,
		database.Module,
		migrate.Module,
		server.Module,

		// Job dispatch (durable queue, worker pools, lifecycle)
		dispatch.Module,

		// Domain modules
		health.Module,
		email.Module,
		originality.Module,
		submissions.Module,
		notifications.Module,
		monitoring.Module,

		// Scheduler module (cron-based scheduled tasks)
		scheduler.Module,
	).Run()
}
