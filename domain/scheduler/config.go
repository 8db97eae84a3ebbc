package scheduler

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds scheduler configuration
type Config struct {
	// Enabled controls whether the scheduler runs
	Enabled bool `env:"SCHEDULER_ENABLED" envDefault:"true"`

	// StaleRecoveryInterval is how often the stale-job recovery sweep runs
	StaleRecoveryInterval time.Duration `env:"STALE_RECOVERY_INTERVAL" envDefault:"5m"`

	// QueueStatsInterval is how often queue stats are written to the log
	QueueStatsInterval time.Duration `env:"QUEUE_STATS_INTERVAL" envDefault:"1m"`

	// JobRetention is how long terminal job rows are kept before cleanup
	JobRetention time.Duration `env:"DISPATCH_JOB_RETENTION" envDefault:"168h"`

	// JobCleanupSchedule is the cron schedule for terminal-job cleanup
	// (seconds-precision cron: "second minute hour day-of-month month day-of-week")
	JobCleanupSchedule string `env:"DISPATCH_JOB_CLEANUP_SCHEDULE" envDefault:"0 0 3 * * *"`
}

// NewConfig parses scheduler configuration from the environment
func NewConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse scheduler config: %w", err)
	}
	return cfg, nil
}
