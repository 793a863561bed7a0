package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
	StoreDriverMemory   = "memory"
)

// Session backends.
const (
	SessionBackendMemory = "memory"
	SessionBackendRedis  = "redis"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig      `envPrefix:"APP_"`
	HTTP     HTTPConfig     `envPrefix:"HTTP_"`
	Store    StoreConfig    `envPrefix:"STORE_"`
	Postgres PostgresConfig `envPrefix:"POSTGRES_"`
	SQLite   SQLiteConfig   `envPrefix:"SQLITE_"`
	Redis    RedisConfig    `envPrefix:"REDIS_"`
	Session  SessionConfig  `envPrefix:"SESSION_"`
	Logger   LoggerConfig   `envPrefix:"LOG_"`
	Telegram TelegramConfig `envPrefix:"TELEGRAM_"`
}

// AppConfig identifies the running service.
type AppConfig struct {
	Name    string `env:"NAME" envDefault:"support-report-router"`
	Env     string `env:"ENV" envDefault:"development"`
	Version string `env:"VERSION" envDefault:"dev"`
}

// HTTPConfig controls the admin HTTP surface.
type HTTPConfig struct {
	Enabled               bool   `env:"ENABLED" envDefault:"true"`
	Host                  string `env:"HOST" envDefault:"0.0.0.0"`
	Port                  string `env:"PORT" envDefault:"8080"`
	RequestTimeoutSeconds int    `env:"REQUEST_TIMEOUT_SECONDS" envDefault:"30"`
}

// StoreConfig selects the ticket store backend.
type StoreConfig struct {
	Driver string `env:"DRIVER" envDefault:"postgres"`
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string `env:"DSN"`
	MaxConns       int32  `env:"MAX_CONNS" envDefault:"10"`
	MinConns       int32  `env:"MIN_CONNS" envDefault:"2"`
	RunMigrations  bool   `env:"RUN_MIGRATIONS" envDefault:"true"`
	ConnMaxIdleSec int32  `env:"CONN_MAX_IDLE_SECONDS" envDefault:"30"`
	ConnMaxLifeSec int32  `env:"CONN_MAX_LIFE_SECONDS" envDefault:"300"`
}

// SQLiteConfig holds the local database file settings.
type SQLiteConfig struct {
	Path          string `env:"PATH" envDefault:"bug_reports.db"`
	BusyTimeoutMS int    `env:"BUSY_TIMEOUT_MS" envDefault:"5000"`
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string `env:"ADDR" envDefault:"127.0.0.1:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

// SessionConfig selects where awaiting-report flags live.
type SessionConfig struct {
	Backend   string        `env:"BACKEND" envDefault:"memory"`
	KeyPrefix string        `env:"KEY_PREFIX" envDefault:"support:awaiting:"`
	TTL       time.Duration `env:"TTL" envDefault:"0s"`
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level    string `env:"LEVEL" envDefault:"info"`
	Encoding string `env:"ENCODING" envDefault:"json"`
}

// TelegramConfig configures the chat transport and the texts bound to it.
type TelegramConfig struct {
	BotToken           string `env:"BOT_TOKEN"`
	SupportChatID      int64  `env:"SUPPORT_CHAT_ID"`
	Operator           string `env:"OPERATOR"`
	SupportChatLink    string `env:"SUPPORT_CHAT_LINK"`
	IntentLabel        string `env:"INTENT_LABEL" envDefault:"Send a support message"`
	Workers            int    `env:"WORKERS" envDefault:"8"`
	PollTimeoutSeconds int    `env:"POLL_TIMEOUT_SECONDS" envDefault:"30"`
}

// Load reads configuration from the environment, after applying any env files.
// Missing env files are ignored.
func Load(envFiles ...string) (*Config, error) {
	_ = godotenv.Load(envFiles...)

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	cfg.Session.Backend = strings.ToLower(strings.TrimSpace(cfg.Session.Backend))
	return cfg, nil
}

// Validate checks the settings the bot cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Telegram.BotToken) == "" {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN is required"))
	}
	if c.Telegram.SupportChatID == 0 {
		errs = append(errs, errors.New("TELEGRAM_SUPPORT_CHAT_ID is required"))
	}
	if strings.TrimSpace(c.Telegram.IntentLabel) == "" {
		errs = append(errs, errors.New("TELEGRAM_INTENT_LABEL must not be empty"))
	}
	switch c.Store.Driver {
	case StoreDriverPostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required for the postgres store"))
		}
	case StoreDriverSQLite:
		if c.SQLite.Path == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite store"))
		}
	case StoreDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver))
	}
	switch c.Session.Backend {
	case SessionBackendMemory, SessionBackendRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown SESSION_BACKEND %q", c.Session.Backend))
	}
	return errors.Join(errs...)
}

// Addr returns the HTTP bind address.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%s", h.Host, h.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (h HTTPConfig) RequestTimeout() time.Duration {
	if h.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(h.RequestTimeoutSeconds) * time.Second
}

// PollTimeout returns the long-polling timeout in seconds, clamped to Telegram's accepted range.
func (t TelegramConfig) PollTimeout() int {
	switch {
	case t.PollTimeoutSeconds <= 0:
		return 30
	case t.PollTimeoutSeconds > 50:
		return 50
	default:
		return t.PollTimeoutSeconds
	}
}
