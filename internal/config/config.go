package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")
	ErrMissingRedisURL    = errors.New("REDIS_URL is required")
	ErrMissingJWTSecret   = errors.New("JWT_SECRET is required")
	ErrInvalidSyncLimits  = errors.New("invalid sync limits")
)

type Config struct {
	ServerPort      string        `env:"SERVER_PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	DatabaseURL     string        `env:"DATABASE_URL"`
	RedisURL        string        `env:"REDIS_URL"`
	JWTSecret       string        `env:"JWT_SECRET"`
	JWTExpiry       time.Duration `env:"JWT_EXPIRY" envDefault:"24h"`

	Sync      Sync      `envPrefix:"SYNC_"`
	Retention Retention `envPrefix:"RETENTION_"`
	Telemetry Telemetry `envPrefix:"OTEL_"`
	Log       Log       `envPrefix:"LOG_"`
}

// Sync bounds the push and pull request sizes.
type Sync struct {
	MaxPushBatch     int `env:"MAX_PUSH_BATCH" envDefault:"500"`
	DefaultPullLimit int `env:"DEFAULT_PULL_LIMIT" envDefault:"100"`
	MaxPullLimit     int `env:"MAX_PULL_LIMIT" envDefault:"1000"`
}

// Retention controls pruning of the sync log. A zero Interval disables it.
type Retention struct {
	Interval time.Duration `env:"INTERVAL" envDefault:"1h"`
	MaxAge   time.Duration `env:"MAX_AGE" envDefault:"720h"`
}

type Telemetry struct {
	Enabled        bool   `env:"ENABLED" envDefault:"false"`
	Endpoint       string `env:"EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	ServiceName    string `env:"SERVICE_NAME" envDefault:"edgesync"`
	ServiceVersion string `env:"SERVICE_VERSION" envDefault:"dev"`
}

// Log configures the zerolog output. When File is set, logs are written
// there through a rotating writer instead of stdout.
type Log struct {
	Level      string `env:"LEVEL" envDefault:"info"`
	File       string `env:"FILE"`
	MaxSizeMB  int    `env:"MAX_SIZE_MB" envDefault:"100"`
	MaxBackups int    `env:"MAX_BACKUPS" envDefault:"3"`
}

// LoadConfig reads an optional .env file and then the process environment.
func LoadConfig() (*Config, error) {
	// a missing .env is fine, the environment may already be populated
	_ = godotenv.Load()

	return parse()
}

func parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("error parsing env config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	if c.RedisURL == "" {
		return ErrMissingRedisURL
	}
	if c.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	if c.Sync.MaxPushBatch <= 0 || c.Sync.DefaultPullLimit <= 0 || c.Sync.MaxPullLimit < c.Sync.DefaultPullLimit {
		return fmt.Errorf("%w: max_push_batch=%d default_pull_limit=%d max_pull_limit=%d",
			ErrInvalidSyncLimits, c.Sync.MaxPushBatch, c.Sync.DefaultPullLimit, c.Sync.MaxPullLimit)
	}
	return nil
}
