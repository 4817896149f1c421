// Package config loads runtime configuration: built-in defaults, then an
// optional TOML file, then a .env file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/efreitasn/predictx/internal/domain"
	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Lock backends.
const (
	LockLocal = "local"
	LockRedis = "redis"
)

// Config holds all runtime configuration for predictx.
type Config struct {
	Port            int           `toml:"port"`
	LogLevel        string        `toml:"log_level"`
	ReadTimeout     time.Duration `toml:"read_timeout"`
	WriteTimeout    time.Duration `toml:"write_timeout"`
	IdleTimeout     time.Duration `toml:"idle_timeout"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`

	StoreBackend    string `toml:"store_backend"`
	DatabaseURL     string `toml:"database_url"`
	DBMaxConns      int    `toml:"db_max_conns"`
	DBMinConns      int    `toml:"db_min_conns"`
	DBRunMigrations bool   `toml:"db_run_migrations"`
	DBTxRetries     int    `toml:"db_tx_retries"`

	LockBackend   string        `toml:"lock_backend"`
	LockTTL       time.Duration `toml:"lock_ttl"`
	LockWait      time.Duration `toml:"lock_wait"`
	RedisAddr     string        `toml:"redis_addr"`
	RedisPassword string        `toml:"redis_password"`
	RedisDB       int           `toml:"redis_db"`

	// DefaultBalance funds new accounts, in dollars.
	DefaultBalance    float64       `toml:"default_balance"`
	SelfTradePolicy   string        `toml:"self_trade_policy"`
	ReconcileInterval time.Duration `toml:"reconcile_interval"`

	WebhookTimeout time.Duration `toml:"webhook_timeout"`
	// NotifyEvents restricts delivered notifications; empty delivers all.
	NotifyEvents []string `toml:"notify_events"`
	// NotifyStream is the Redis stream notifications are appended to;
	// empty disables the stream sender.
	NotifyStream string `toml:"notify_stream"`
	NotifyLog    bool   `toml:"notify_log"`

	BroadcastBuffer int `toml:"broadcast_buffer"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		Port:              8080,
		LogLevel:          "info",
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		StoreBackend:      StoreMemory,
		DBMaxConns:        10,
		DBMinConns:        1,
		DBRunMigrations:   true,
		DBTxRetries:       3,
		LockBackend:       LockLocal,
		LockTTL:           10 * time.Second,
		LockWait:          5 * time.Second,
		RedisAddr:         "localhost:6379",
		DefaultBalance:    100,
		SelfTradePolicy:   "skip",
		ReconcileInterval: time.Minute,
		WebhookTimeout:    5 * time.Second,
		NotifyLog:         true,
		BroadcastBuffer:   256,
	}
}

// Load builds the configuration. path names an optional TOML file; an
// empty path skips it. A .env file in the working directory is loaded when
// present and never overrides variables already set. The result is
// validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	_ = godotenv.Load()

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	return errors.Join(
		envInt(&cfg.Port, "PORT"),
		envStr(&cfg.LogLevel, "LOG_LEVEL"),
		envDuration(&cfg.ReadTimeout, "READ_TIMEOUT"),
		envDuration(&cfg.WriteTimeout, "WRITE_TIMEOUT"),
		envDuration(&cfg.IdleTimeout, "IDLE_TIMEOUT"),
		envDuration(&cfg.ShutdownTimeout, "SHUTDOWN_TIMEOUT"),

		envStr(&cfg.StoreBackend, "STORE_BACKEND"),
		envStr(&cfg.DatabaseURL, "DATABASE_URL"),
		envInt(&cfg.DBMaxConns, "DB_MAX_CONNS"),
		envInt(&cfg.DBMinConns, "DB_MIN_CONNS"),
		envBool(&cfg.DBRunMigrations, "DB_RUN_MIGRATIONS"),
		envInt(&cfg.DBTxRetries, "DB_TX_RETRIES"),

		envStr(&cfg.LockBackend, "LOCK_BACKEND"),
		envDuration(&cfg.LockTTL, "LOCK_TTL"),
		envDuration(&cfg.LockWait, "LOCK_WAIT"),
		envStr(&cfg.RedisAddr, "REDIS_ADDR"),
		envStr(&cfg.RedisPassword, "REDIS_PASSWORD"),
		envInt(&cfg.RedisDB, "REDIS_DB"),

		envFloat(&cfg.DefaultBalance, "DEFAULT_BALANCE"),
		envStr(&cfg.SelfTradePolicy, "SELF_TRADE_POLICY"),
		envDuration(&cfg.ReconcileInterval, "RECONCILE_INTERVAL"),

		envDuration(&cfg.WebhookTimeout, "WEBHOOK_TIMEOUT"),
		envList(&cfg.NotifyEvents, "NOTIFY_EVENTS"),
		envStr(&cfg.NotifyStream, "NOTIFY_STREAM"),
		envBool(&cfg.NotifyLog, "NOTIFY_LOG"),

		envInt(&cfg.BroadcastBuffer, "BROADCAST_BUFFER"),
	)
}

// Validate reports every invalid value at once.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Port < 1 || c.Port > 65535 {
		fail("invalid PORT: %d, must be between 1 and 65535", c.Port)
	}
	if !isValidLogLevel(c.LogLevel) {
		fail("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", c.LogLevel)
	}
	for name, d := range map[string]time.Duration{
		"READ_TIMEOUT":     c.ReadTimeout,
		"WRITE_TIMEOUT":    c.WriteTimeout,
		"IDLE_TIMEOUT":     c.IdleTimeout,
		"SHUTDOWN_TIMEOUT": c.ShutdownTimeout,
		"WEBHOOK_TIMEOUT":  c.WebhookTimeout,
		"LOCK_WAIT":        c.LockWait,
	} {
		if d <= 0 {
			fail("invalid %s: %v, must be positive", name, d)
		}
	}

	switch c.StoreBackend {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			fail("DATABASE_URL is required when STORE_BACKEND=postgres")
		}
		if c.DBMaxConns < 1 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			fail("invalid DB_MAX_CONNS/DB_MIN_CONNS: %d/%d", c.DBMaxConns, c.DBMinConns)
		}
	default:
		fail("invalid STORE_BACKEND: %q, must be one of: memory, postgres", c.StoreBackend)
	}
	if c.DBTxRetries < 0 {
		fail("invalid DB_TX_RETRIES: %d, must be >= 0", c.DBTxRetries)
	}

	switch c.LockBackend {
	case LockLocal:
	case LockRedis:
		if c.RedisAddr == "" {
			fail("REDIS_ADDR is required when LOCK_BACKEND=redis")
		}
		if c.LockTTL <= 0 {
			fail("invalid LOCK_TTL: %v, must be positive", c.LockTTL)
		}
	default:
		fail("invalid LOCK_BACKEND: %q, must be one of: local, redis", c.LockBackend)
	}
	if c.NotifyStream != "" && c.RedisAddr == "" {
		fail("REDIS_ADDR is required when NOTIFY_STREAM is set")
	}

	if c.DefaultBalance < 0 {
		fail("invalid DEFAULT_BALANCE: %v, must be >= 0", c.DefaultBalance)
	} else if _, err := domain.DollarsToCents(c.DefaultBalance); err != nil {
		fail("invalid DEFAULT_BALANCE: %v, must have at most 2 decimal places", c.DefaultBalance)
	}
	if c.SelfTradePolicy != "skip" && c.SelfTradePolicy != "allow" {
		fail("invalid SELF_TRADE_POLICY: %q, must be one of: skip, allow", c.SelfTradePolicy)
	}
	if c.ReconcileInterval < 0 {
		fail("invalid RECONCILE_INTERVAL: %v, must be >= 0", c.ReconcileInterval)
	}
	for _, e := range c.NotifyEvents {
		if !domain.EventKind(e).Valid() {
			fail("invalid NOTIFY_EVENTS entry: %q", e)
		}
	}
	if c.BroadcastBuffer < 1 {
		fail("invalid BROADCAST_BUFFER: %d, must be >= 1", c.BroadcastBuffer)
	}

	return errors.Join(errs...)
}

// DefaultBalanceCents is DefaultBalance in cents. Validate guarantees the
// conversion is exact.
func (c *Config) DefaultBalanceCents() int64 {
	cents, _ := domain.DollarsToCents(c.DefaultBalance)
	return cents
}

func envStr(dst *string, key string) error {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
	return nil
}

func envInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func envFloat(dst *float64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = f
	return nil
}

func envBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = b
	return nil
}

func envDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

func envList(dst *[]string, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
	return nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
