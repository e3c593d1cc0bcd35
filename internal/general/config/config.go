package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Database struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"database"`
	} `yaml:"database"`

	RabbitMQ struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
	} `yaml:"rabbitmq"`

	Dispatch struct {
		Port int    `yaml:"port"`
		URL  string `yaml:"url"` // base URL clients use to reach the hub
	} `yaml:"dispatch"`

	Channel struct {
		ReconnectMinMS int `yaml:"reconnect_min_ms"`
		ReconnectMaxMS int `yaml:"reconnect_max_ms"`
	} `yaml:"channel"`

	Alert struct {
		IntervalMS int `yaml:"interval_ms"`
		TimeoutSec int `yaml:"timeout_sec"`
	} `yaml:"alert"`

	Navigation struct {
		SampleIntervalSec int     `yaml:"sample_interval_sec"`
		MinMoveMeters     float64 `yaml:"min_move_meters"`
	} `yaml:"navigation"`

	JWT struct {
		SecretKey string `yaml:"secret_key"`
	} `yaml:"jwt"`
}

// LoadFromFile loads config from a YAML file into a Config struct, applies
// defaults, and validates required fields.
func LoadFromFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets safe defaults for some fields.
func applyDefaults(cfg *Config) {
	// Database
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}

	// RabbitMQ
	if cfg.RabbitMQ.Host == "" {
		cfg.RabbitMQ.Host = "localhost"
	}
	if cfg.RabbitMQ.Port == 0 {
		cfg.RabbitMQ.Port = 5672
	}

	// Dispatch hub
	if cfg.Dispatch.Port == 0 {
		cfg.Dispatch.Port = 3000
	}
	if cfg.Dispatch.URL == "" {
		cfg.Dispatch.URL = fmt.Sprintf("http://localhost:%d", cfg.Dispatch.Port)
	}

	// Event channel reconnect backoff
	if cfg.Channel.ReconnectMinMS == 0 {
		cfg.Channel.ReconnectMinMS = 1000
	}
	if cfg.Channel.ReconnectMaxMS == 0 {
		cfg.Channel.ReconnectMaxMS = 30000
	}

	// Alert timer
	if cfg.Alert.IntervalMS == 0 {
		cfg.Alert.IntervalMS = 1500
	}
	if cfg.Alert.TimeoutSec == 0 {
		cfg.Alert.TimeoutSec = 45
	}

	// Navigation sampler
	if cfg.Navigation.SampleIntervalSec == 0 {
		cfg.Navigation.SampleIntervalSec = 5
	}
	if cfg.Navigation.MinMoveMeters == 0 {
		cfg.Navigation.MinMoveMeters = 15
	}

	if cfg.JWT.SecretKey == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			// fallback: time-based bytes
			key = []byte(fmt.Sprintf("%d", time.Now().UnixNano()))
		}
		cfg.JWT.SecretKey = base64.StdEncoding.EncodeToString(key)
	}
}

// validate checks required fields and basic ranges.
func (c *Config) validate() error {
	var problems []string

	// DB
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		problems = append(problems, "database.port must be in 1..65535")
	}
	if c.Database.User == "" {
		problems = append(problems, "database.user is required")
	}
	if c.Database.Password == "" {
		problems = append(problems, "database.password is required")
	}
	if c.Database.Name == "" {
		problems = append(problems, "database.database is required")
	}

	// RabbitMQ
	if c.RabbitMQ.Port <= 0 || c.RabbitMQ.Port > 65535 {
		problems = append(problems, "rabbitmq.port must be in 1..65535")
	}
	if c.RabbitMQ.User == "" {
		problems = append(problems, "rabbitmq.user is required")
	}
	if c.RabbitMQ.Password == "" {
		problems = append(problems, "rabbitmq.password is required")
	}

	// Dispatch hub
	if c.Dispatch.Port <= 0 || c.Dispatch.Port > 65535 {
		problems = append(problems, "dispatch.port must be in 1..65535")
	}

	// Channel backoff
	if c.Channel.ReconnectMinMS < 0 {
		problems = append(problems, "channel.reconnect_min_ms cannot be negative")
	}
	if c.Channel.ReconnectMaxMS < c.Channel.ReconnectMinMS {
		problems = append(problems, "channel.reconnect_max_ms must be >= channel.reconnect_min_ms")
	}

	// Alert timer
	if c.Alert.IntervalMS < 100 {
		problems = append(problems, "alert.interval_ms must be >= 100")
	}
	if c.Alert.TimeoutSec < 1 {
		problems = append(problems, "alert.timeout_sec must be >= 1")
	}

	// Navigation sampler
	if c.Navigation.SampleIntervalSec < 1 {
		problems = append(problems, "navigation.sample_interval_sec must be >= 1")
	}
	if c.Navigation.MinMoveMeters < 0 {
		problems = append(problems, "navigation.min_move_meters cannot be negative")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// AlertInterval returns the configured alert repeat cadence.
func (c *Config) AlertInterval() time.Duration {
	return time.Duration(c.Alert.IntervalMS) * time.Millisecond
}

// AlertTimeout returns the configured alert auto-timeout.
func (c *Config) AlertTimeout() time.Duration {
	return time.Duration(c.Alert.TimeoutSec) * time.Second
}

// SampleInterval returns the configured location sampling interval.
func (c *Config) SampleInterval() time.Duration {
	return time.Duration(c.Navigation.SampleIntervalSec) * time.Second
}
