package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// ErrMissingDatabaseURL is returned when no database DSN is configured.
var ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")

// Config holds application configuration.
type Config struct {
	DatabaseURL       string
	RedisURL          string
	ServerPort        string
	UserAgent         string
	Timeout           time.Duration
	UpdateTimeout     time.Duration
	UpdateConcurrency int
	AutoScanThreshold float64
	LockDir           string
	MigrationsPath    string
	LogLevel          string
	LogFormat         string
}

// Default returns a Config with every optional field set.
func Default() Config {
	return Config{
		ServerPort:        "8080",
		UserAgent:         "epgsync/1.0",
		Timeout:           60 * time.Second,
		UpdateTimeout:     10 * time.Second,
		UpdateConcurrency: 8,
		AutoScanThreshold: 0.8,
		LockDir:           os.TempDir(),
		LogLevel:          "info",
		LogFormat:         "console",
	}
}

// Load builds config from environment variables.
// If DATABASE_URL is not set, Load tries to load .env.local and .env from the
// current directory and the executable's directory first.
func Load() (*Config, error) {
	if os.Getenv("DATABASE_URL") == "" {
		loadEnvFiles()
	}
	c := Default()
	c.DatabaseURL = os.Getenv("DATABASE_URL")
	c.RedisURL = os.Getenv("REDIS_URL")
	setString(&c.ServerPort, "SERVER_PORT")
	setString(&c.UserAgent, "FETCHER_USER_AGENT")
	setString(&c.LockDir, "LOCK_DIR")
	setString(&c.MigrationsPath, "MIGRATIONS_PATH")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogFormat, "LOG_FORMAT")
	if err := setDuration(&c.Timeout, "FETCHER_TIMEOUT"); err != nil {
		return nil, err
	}
	if err := setDuration(&c.UpdateTimeout, "UPDATE_TIMEOUT"); err != nil {
		return nil, err
	}
	if s := os.Getenv("UPDATE_CONCURRENCY"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("UPDATE_CONCURRENCY: %w", err)
		}
		c.UpdateConcurrency = n
	}
	if s := os.Getenv("AUTO_SCAN_THRESHOLD"); s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("AUTO_SCAN_THRESHOLD: %w", err)
		}
		c.AutoScanThreshold = f
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks required fields and ranges.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.UpdateTimeout <= 0 {
		return fmt.Errorf("update_timeout must be positive, got %s", c.UpdateTimeout)
	}
	if c.UpdateConcurrency < 1 {
		return fmt.Errorf("update_concurrency must be at least 1, got %d", c.UpdateConcurrency)
	}
	if c.AutoScanThreshold < 0 || c.AutoScanThreshold > 1 {
		return fmt.Errorf("auto_scan_threshold must be within [0,1], got %v", c.AutoScanThreshold)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("log_format: unsupported value %q", c.LogFormat)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
