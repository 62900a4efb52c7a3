package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config holds the clock gateway settings.
type Config struct {
	Port     string      `yaml:"port"`
	LogLevel string      `yaml:"log_level"`
	NATS     NATSConfig  `yaml:"nats"`
	Clock    ClockConfig `yaml:"clock"`
}

// NATSConfig holds JetStream connection and consumer settings.
type NATSConfig struct {
	URL           string        `yaml:"url"`
	StreamName    string        `yaml:"stream_name"`
	ConsumerName  string        `yaml:"consumer_name"`
	MaxDeliver    int           `yaml:"max_deliver"`
	AckWait       time.Duration `yaml:"ack_wait"`
	MaxAckPending int           `yaml:"max_ack_pending"`
	MaxReconnects int           `yaml:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
}

// ClockConfig holds defaults applied to every game clock.
type ClockConfig struct {
	LowTimeMillis             int64 `yaml:"low_time_ms"`
	DefaultMaxOvertimeMinutes int   `yaml:"default_max_overtime_minutes"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:     "8083",
		LogLevel: "info",
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			StreamName:    "CLOCK_EVENTS",
			ConsumerName:  "clock-gateway",
			MaxDeliver:    5,
			AckWait:       30 * time.Second,
			MaxAckPending: 100,
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		},
		Clock: ClockConfig{
			LowTimeMillis:             10000,
			DefaultMaxOvertimeMinutes: 0,
		},
	}
}

// Load builds the configuration from defaults, the YAML file named by
// CLOCK_CONFIG (if set), and finally environment variables.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("CLOCK_CONFIG"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Port = getEnv("GATEWAY_PORT", cfg.Port)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.NATS.URL = getEnv("NATS_URL", cfg.NATS.URL)
	cfg.NATS.StreamName = getEnv("NATS_STREAM", cfg.NATS.StreamName)
	cfg.NATS.ConsumerName = getEnv("NATS_CONSUMER", cfg.NATS.ConsumerName)
	cfg.NATS.MaxDeliver = getEnvAsInt("NATS_MAX_DELIVER", cfg.NATS.MaxDeliver)
	cfg.Clock.LowTimeMillis = int64(getEnvAsInt("CLOCK_LOW_TIME_MS", int(cfg.Clock.LowTimeMillis)))
	cfg.Clock.DefaultMaxOvertimeMinutes = getEnvAsInt("CLOCK_MAX_OVERTIME_MINUTES", cfg.Clock.DefaultMaxOvertimeMinutes)
}

// Validate rejects settings the gateway cannot run with.
func (c Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}
	if c.NATS.URL == "" {
		return fmt.Errorf("nats url is required")
	}
	if c.Clock.DefaultMaxOvertimeMinutes < 0 {
		return fmt.Errorf("default max overtime must not be negative, got %d", c.Clock.DefaultMaxOvertimeMinutes)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return nil
}

// Level returns the configured zerolog level, defaulting to info.
func (c Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
