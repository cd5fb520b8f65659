package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// ServerEnv configures the HTTP listener.
type ServerEnv struct {
	HTTPPort        string        `envconfig:"HTTP_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"5s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"10s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	JWTSecret       string        `envconfig:"JWT_SECRET" required:"true"`
}

// DatabaseEnv configures the PostgreSQL pool.
type DatabaseEnv struct {
	DatabaseURL   string `envconfig:"DATABASE_URL" required:"true"`
	DBMaxConns    int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns    int32  `envconfig:"DB_MIN_CONNS" default:"5"`
	MigrationsDir string `envconfig:"MIGRATIONS_DIR" default:"migrations"`
}

// QueueEnv selects and configures the notification queue.
type QueueEnv struct {
	// QueueBackend is "memory" or "redis".
	QueueBackend   string        `envconfig:"QUEUE_BACKEND" default:"memory"`
	QueueCapacity  int           `envconfig:"QUEUE_CAPACITY" default:"10000"`
	RedisAddr      string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword  string        `envconfig:"REDIS_PASSWORD"`
	RedisDB        int           `envconfig:"REDIS_DB" default:"0"`
	RedisQueueKey  string        `envconfig:"REDIS_QUEUE_KEY" default:"workitems:notifications"`
	EnqueueTimeout time.Duration `envconfig:"NOTIFY_ENQUEUE_TIMEOUT" default:"2s"`
}

// NotifyEnv configures delivery workers and the mail transport.
type NotifyEnv struct {
	Workers     int             `envconfig:"NOTIFY_WORKERS" default:"4"`
	MaxAttempts int             `envconfig:"NOTIFY_MAX_ATTEMPTS" default:"3"`
	Backoff     []time.Duration `envconfig:"NOTIFY_RETRY_BACKOFF" default:"5s,30s,120s"`
	RateLimit   int             `envconfig:"NOTIFY_RATE_PER_KIND" default:"50"`

	RetryInterval   time.Duration `envconfig:"RETRY_INTERVAL" default:"10s"`
	OverdueInterval time.Duration `envconfig:"OVERDUE_INTERVAL" default:"24h"`
	BatchSize       int           `envconfig:"POLL_BATCH_SIZE" default:"100"`

	// MailTransport is "log", "smtp" or "webhook".
	MailTransport string        `envconfig:"MAIL_TRANSPORT" default:"log"`
	MailTimeout   time.Duration `envconfig:"MAIL_TIMEOUT" default:"10s"`
	MailFrom      string        `envconfig:"MAIL_FROM" default:"noreply@workitems.local"`
	SMTPHost      string        `envconfig:"SMTP_HOST" default:"localhost"`
	SMTPPort      int           `envconfig:"SMTP_PORT" default:"25"`
	SMTPUsername  string        `envconfig:"SMTP_USERNAME"`
	SMTPPassword  string        `envconfig:"SMTP_PASSWORD"`
	WebhookURL    string        `envconfig:"MAIL_WEBHOOK_URL"`
}

// Config holds all runtime configuration loaded from environment variables.
// Only DATABASE_URL and JWT_SECRET are required.
type Config struct {
	ServerEnv
	DatabaseEnv
	QueueEnv
	NotifyEnv
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch c.QueueBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("QUEUE_BACKEND must be memory or redis, got %q", c.QueueBackend)
	}
	switch c.MailTransport {
	case "log", "smtp":
	case "webhook":
		if c.WebhookURL == "" {
			return fmt.Errorf("MAIL_WEBHOOK_URL is required when MAIL_TRANSPORT=webhook")
		}
	default:
		return fmt.Errorf("MAIL_TRANSPORT must be log, smtp or webhook, got %q", c.MailTransport)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("NOTIFY_MAX_ATTEMPTS must be at least 1")
	}
	if len(c.Backoff) == 0 {
		return fmt.Errorf("NOTIFY_RETRY_BACKOFF must list at least one duration")
	}
	return nil
}
