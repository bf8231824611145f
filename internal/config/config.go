package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	SLA          SLAConfig
	Escalation   EscalationConfig
	Directory    DirectoryConfig
	Sequence     SequenceConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level       string
	Development bool
}

// AuthConfig defines bearer-token verification parameters. Tokens are issued
// by the identity provider; the service only verifies them.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// NotificationConfig controls event fan-out.
type NotificationConfig struct {
	EmailFrom      string
	WebhookURL     string
	QueueSize      int
	Workers        int
	RedisChannel   string
	PublishToRedis bool
}

// SLAConfig points at an optional policy override file.
type SLAConfig struct {
	PolicyFile string
}

// EscalationConfig tunes the breach sweep.
type EscalationConfig struct {
	Enabled            bool
	IntervalSeconds    int
	BudgetSeconds      int
	Concurrency        int
	RecomputeDeadlines bool
	SystemActorID      string
}

// DirectoryConfig tunes resilience around Staff Directory reads.
type DirectoryConfig struct {
	RetryAttempts        int
	RetryInitialDelayMs  int
	RetryMaxDelayMs      int
	BreakerFailures      int
	BreakerOpenSeconds   int
	BreakerHalfOpenCalls int
}

// SequenceConfig selects the daily ticket-number counter backend.
type SequenceConfig struct {
	Backend string // postgres, redis or memory
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "helpdesk-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", "dev-secret"),
			Issuer:    getEnv("AUTH_ISSUER", ""),
		},
		Notification: NotificationConfig{
			EmailFrom:      getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			WebhookURL:     getEnv("NOTIFY_WEBHOOK_URL", ""),
			QueueSize:      getEnvAsInt("NOTIFY_QUEUE_SIZE", 1024),
			Workers:        getEnvAsInt("NOTIFY_WORKERS", 2),
			RedisChannel:   getEnv("NOTIFY_REDIS_CHANNEL", "helpdesk:events"),
			PublishToRedis: getEnvAsBool("NOTIFY_PUBLISH_TO_REDIS", false),
		},
		SLA: SLAConfig{
			PolicyFile: os.Getenv("SLA_POLICY_FILE"),
		},
		Escalation: EscalationConfig{
			Enabled:            getEnvAsBool("ESCALATION_SWEEP_ENABLED", true),
			IntervalSeconds:    getEnvAsInt("ESCALATION_SWEEP_INTERVAL_SECONDS", 60),
			BudgetSeconds:      getEnvAsInt("ESCALATION_SWEEP_BUDGET_SECONDS", 30),
			Concurrency:        getEnvAsInt("ESCALATION_SWEEP_CONCURRENCY", 8),
			RecomputeDeadlines: getEnvAsBool("ESCALATION_RECOMPUTE_DEADLINES", true),
			SystemActorID:      getEnv("ESCALATION_SYSTEM_ACTOR", "system"),
		},
		Directory: DirectoryConfig{
			RetryAttempts:        getEnvAsInt("DIRECTORY_RETRY_ATTEMPTS", 3),
			RetryInitialDelayMs:  getEnvAsInt("DIRECTORY_RETRY_INITIAL_DELAY_MS", 50),
			RetryMaxDelayMs:      getEnvAsInt("DIRECTORY_RETRY_MAX_DELAY_MS", 500),
			BreakerFailures:      getEnvAsInt("DIRECTORY_BREAKER_FAILURES", 5),
			BreakerOpenSeconds:   getEnvAsInt("DIRECTORY_BREAKER_OPEN_SECONDS", 30),
			BreakerHalfOpenCalls: getEnvAsInt("DIRECTORY_BREAKER_HALF_OPEN_CALLS", 1),
		},
		Sequence: SequenceConfig{
			Backend: getEnv("TICKET_SEQUENCE_BACKEND", "postgres"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	if c.Escalation.IntervalSeconds <= 0 {
		return fmt.Errorf("ESCALATION_SWEEP_INTERVAL_SECONDS must be positive")
	}
	if c.Escalation.Concurrency <= 0 {
		return fmt.Errorf("ESCALATION_SWEEP_CONCURRENCY must be positive")
	}
	switch c.Sequence.Backend {
	case "postgres", "redis", "memory":
	default:
		return fmt.Errorf("unknown TICKET_SEQUENCE_BACKEND %q", c.Sequence.Backend)
	}
	if c.App.Env == "production" && c.Auth.JWTSecret == "dev-secret" {
		return fmt.Errorf("AUTH_JWT_SECRET must be set in production")
	}
	return nil
}

// Interval returns the sweep period.
func (e EscalationConfig) Interval() time.Duration {
	return time.Duration(e.IntervalSeconds) * time.Second
}

// Budget returns the wall-clock cap for one sweep. Zero means unbounded.
func (e EscalationConfig) Budget() time.Duration {
	if e.BudgetSeconds <= 0 {
		return 0
	}
	return time.Duration(e.BudgetSeconds) * time.Second
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
