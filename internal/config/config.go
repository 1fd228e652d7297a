package config

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	App struct {
		Name string `envconfig:"APP_NAME" default:"autoescrow"`
		Port int    `envconfig:"PORT" default:"8080"`
	}

	DB struct {
		Host     string `envconfig:"DB_HOST" default:"localhost"`
		Port     int    `envconfig:"DB_PORT" default:"5432"`
		User     string `envconfig:"DB_USER" default:"postgres"`
		Password string `envconfig:"DB_PASSWORD" default:""`
		Name     string `envconfig:"DB_NAME" default:"autoescrow"`
		SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
		Migrate  bool   `envconfig:"DB_MIGRATE" default:"true"`
	}

	Storage struct {
		Driver string `envconfig:"STORAGE_DRIVER" default:"postgres"`
	}

	Server struct {
		Timeout         time.Duration `envconfig:"SERVER_TIMEOUT" default:"30s"`
		ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`
	}

	Auth struct {
		JWTSecret string        `envconfig:"JWT_SECRET" required:"true"`
		TokenTTL  time.Duration `envconfig:"JWT_TTL" default:"24h"`
	}

	CORS struct {
		AllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	}

	Log struct {
		Level  string `envconfig:"LOG_LEVEL" default:"info"`
		Format string `envconfig:"LOG_FORMAT" default:"text"`
	}

	Outbox struct {
		PollInterval time.Duration `envconfig:"OUTBOX_POLL_INTERVAL" default:"1s"`
		BatchSize    int           `envconfig:"OUTBOX_BATCH_SIZE" default:"100"`
		Workers      int           `envconfig:"OUTBOX_WORKERS" default:"4"`
	}

	Notify struct {
		WebhookURL string        `envconfig:"NOTIFY_WEBHOOK_URL"`
		Timeout    time.Duration `envconfig:"NOTIFY_TIMEOUT" default:"10s"`
		RedisURL   string        `envconfig:"REDIS_URL"`
		DedupeTTL  time.Duration `envconfig:"NOTIFY_DEDUPE_TTL" default:"72h"`
	}

	Console struct {
		AdminID string `envconfig:"CONSOLE_ADMIN_ID"`
	}
}

func (c *Config) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name, c.DB.SSLMode)
}

// ConsoleAdmin is the identity the admin console acts as.
func (c *Config) ConsoleAdmin() (uuid.UUID, error) {
	if c.Console.AdminID == "" {
		return uuid.Nil, fmt.Errorf("CONSOLE_ADMIN_ID is not set")
	}

	id, err := uuid.Parse(c.Console.AdminID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parsing CONSOLE_ADMIN_ID: %w", err)
	}

	return id, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver)
	}

	if c.Outbox.Workers <= 0 || c.Outbox.BatchSize <= 0 {
		return fmt.Errorf("OUTBOX_WORKERS and OUTBOX_BATCH_SIZE must be positive")
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}
