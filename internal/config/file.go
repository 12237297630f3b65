package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

type fileConfig struct {
	DatabaseURL       string   `yaml:"database_url" toml:"database_url"`
	RedisURL          string   `yaml:"redis_url" toml:"redis_url"`
	ServerPort        string   `yaml:"server_port" toml:"server_port"`
	UserAgent         string   `yaml:"user_agent" toml:"user_agent"`
	Timeout           string   `yaml:"timeout" toml:"timeout"`
	UpdateTimeout     string   `yaml:"update_timeout" toml:"update_timeout"`
	UpdateConcurrency int      `yaml:"update_concurrency" toml:"update_concurrency"`
	AutoScanThreshold *float64 `yaml:"auto_scan_threshold" toml:"auto_scan_threshold"`
	LockDir           string   `yaml:"lock_dir" toml:"lock_dir"`
	MigrationsPath    string   `yaml:"migrations_path" toml:"migrations_path"`
	LogLevel          string   `yaml:"log_level" toml:"log_level"`
	LogFormat         string   `yaml:"log_format" toml:"log_format"`
}

// LoadFromFile loads config from a YAML (.yaml, .yml) or TOML (.toml) file.
// database_url is required.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	c := Default()
	c.DatabaseURL = f.DatabaseURL
	c.RedisURL = f.RedisURL
	setIf(&c.ServerPort, f.ServerPort)
	setIf(&c.UserAgent, f.UserAgent)
	setIf(&c.LockDir, f.LockDir)
	setIf(&c.MigrationsPath, f.MigrationsPath)
	setIf(&c.LogLevel, f.LogLevel)
	setIf(&c.LogFormat, f.LogFormat)
	if f.Timeout != "" {
		d, err := time.ParseDuration(f.Timeout)
		if err != nil {
			return nil, fmt.Errorf("timeout: %w", err)
		}
		c.Timeout = d
	}
	if f.UpdateTimeout != "" {
		d, err := time.ParseDuration(f.UpdateTimeout)
		if err != nil {
			return nil, fmt.Errorf("update_timeout: %w", err)
		}
		c.UpdateTimeout = d
	}
	if f.UpdateConcurrency != 0 {
		c.UpdateConcurrency = f.UpdateConcurrency
	}
	if f.AutoScanThreshold != nil {
		c.AutoScanThreshold = *f.AutoScanThreshold
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
