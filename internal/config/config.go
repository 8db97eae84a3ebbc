package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(NewConfig),
)

// Config holds all application configuration.
// Values are read once at startup; nothing hot-reloads.
type Config struct {
	// Server settings
	ServerPort    int    `env:"SERVER_PORT" envDefault:"4100"`
	ServerAddress string `env:"SERVER_ADDRESS" envDefault:"0.0.0.0"`
	Environment   string `env:"ENVIRONMENT" envDefault:"local"`
	Debug         bool   `env:"DEBUG" envDefault:"false"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`

	// Database settings
	Database DatabaseConfig

	// Job dispatch settings
	Dispatch DispatchConfig

	// Email configuration
	Email EmailConfig

	// Originality provider configuration
	Originality OriginalityConfig

	// Server timeouts
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"60s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host         string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port         int           `env:"POSTGRES_PORT" envDefault:"5432"`
	User         string        `env:"POSTGRES_USER" envDefault:"capstonehub"`
	Password     string        `env:"POSTGRES_PASSWORD" envDefault:""`
	Database     string        `env:"POSTGRES_DB" envDefault:"capstonehub"`
	SSLMode      string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	MaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	MaxIdleTime  time.Duration `env:"DB_MAX_IDLE_TIME" envDefault:"5m"`
	QueryDebug   bool          `env:"DB_QUERY_DEBUG" envDefault:"false"`

	// MigrateOnStart runs pending migrations during application startup
	MigrateOnStart bool `env:"DB_MIGRATE_ON_START" envDefault:"true"`
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode,
	)
}

// DispatchConfig holds job dispatch subsystem settings
type DispatchConfig struct {
	// Broker selects the queue backend: "postgres" or "memory"
	Broker string `env:"DISPATCH_BROKER" envDefault:"postgres"`
	// MaxAttempts is the default per-job attempt cap
	MaxAttempts int `env:"DISPATCH_MAX_ATTEMPTS" envDefault:"5"`
	// BaseRetryDelay is the base delay for retry backoff
	BaseRetryDelay time.Duration `env:"DISPATCH_BASE_RETRY_DELAY" envDefault:"5s"`
	// MaxRetryDelay caps the exponential backoff delay
	MaxRetryDelay time.Duration `env:"DISPATCH_MAX_RETRY_DELAY" envDefault:"5m"`
	// Concurrency bounds in-flight jobs per worker pool
	Concurrency int `env:"DISPATCH_CONCURRENCY" envDefault:"4"`
	// PollInterval is how often idle worker slots look for new jobs
	PollInterval time.Duration `env:"DISPATCH_POLL_INTERVAL" envDefault:"1s"`
	// StaleThreshold is how long a job may sit in 'processing' before the
	// recovery sweep returns it to the queue
	StaleThreshold time.Duration `env:"DISPATCH_STALE_THRESHOLD" envDefault:"10m"`
}

// EmailConfig holds email dispatch configuration
type EmailConfig struct {
	// Enabled determines if email sending is enabled
	Enabled bool `env:"EMAIL_ENABLED" envDefault:"false"`
	// MailgunDomain is the Mailgun domain
	MailgunDomain string `env:"MAILGUN_DOMAIN" envDefault:""`
	// MailgunAPIKey is the Mailgun API key
	MailgunAPIKey string `env:"MAILGUN_API_KEY" envDefault:""`
	// FromEmail is the default sender address
	FromEmail string `env:"EMAIL_FROM_ADDRESS" envDefault:"no-reply@capstonehub.app"`
	// FromName is the default sender name
	FromName string `env:"EMAIL_FROM_NAME" envDefault:"CapstoneHub"`
	// MaxAttempts overrides the dispatch default for the email queue
	MaxAttempts int `env:"EMAIL_MAX_ATTEMPTS" envDefault:"3"`
}

// IsConfigured returns true if Mailgun credentials are set
func (e *EmailConfig) IsConfigured() bool {
	return e.MailgunDomain != "" && e.MailgunAPIKey != ""
}

// OriginalityConfig holds originality-check provider settings
type OriginalityConfig struct {
	// Enabled determines if originality checks run
	Enabled bool `env:"ORIGINALITY_ENABLED" envDefault:"false"`
	// ServiceURL is the provider API base URL
	ServiceURL string `env:"ORIGINALITY_SERVICE_URL" envDefault:""`
	// APIKey authenticates against the provider
	APIKey string `env:"ORIGINALITY_API_KEY" envDefault:""`
	// RequestTimeout bounds a single provider call
	RequestTimeout time.Duration `env:"ORIGINALITY_TIMEOUT" envDefault:"120s"`
	// FlagThreshold is the minimum score (percent) a submission needs to
	// pass without manual review
	FlagThreshold float64 `env:"ORIGINALITY_FLAG_THRESHOLD" envDefault:"60"`
}

// IsConfigured returns true if the provider endpoint is set
func (o *OriginalityConfig) IsConfigured() bool {
	return o.ServiceURL != ""
}

// NewConfig parses configuration from the environment
func NewConfig(log *slog.Logger) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	log.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.ServerPort),
		slog.String("db_host", cfg.Database.Host),
		slog.String("dispatch_broker", cfg.Dispatch.Broker),
	)

	return cfg, nil
}
