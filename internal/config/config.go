package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the turfpoints engine
type Config struct {
	// Database configuration
	DatabaseDSN string

	// Notification configuration. RedisURL enables the queue notifier,
	// NotifyWebhookURL the webhook notifier; both empty means notifications
	// are dropped.
	RedisURL         string
	NotifyWebhookURL string

	// Accrual configuration
	HeartbeatInterval time.Duration
	VisitStaleAfter   time.Duration
	WelcomeBalance    int64

	// Scheduler configuration
	ContestInterval time.Duration
	SweepInterval   time.Duration

	// HTTP configuration
	HTTPPort    string
	MetricsPort string

	// Logging configuration
	LogLevel string
}

// Load reads configuration from environment variables and validates it
func Load() (Config, error) {
	cfg := Config{
		DatabaseDSN:      getEnv("DATABASE_DSN", ""),
		RedisURL:         getEnv("REDIS_URL", ""),
		NotifyWebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		HTTPPort:         getEnv("HTTP_PORT", "8080"),
		MetricsPort:      getEnv("METRICS_PORT", "9100"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
	}

	var err error

	heartbeatSeconds, err := parseIntEnv("HEARTBEAT_INTERVAL_SECONDS", 5)
	if err != nil {
		return cfg, fmt.Errorf("invalid HEARTBEAT_INTERVAL_SECONDS: %w", err)
	}
	cfg.HeartbeatInterval = time.Duration(heartbeatSeconds) * time.Second

	staleMinutes, err := parseIntEnv("VISIT_STALE_AFTER_MINUTES", 5)
	if err != nil {
		return cfg, fmt.Errorf("invalid VISIT_STALE_AFTER_MINUTES: %w", err)
	}
	cfg.VisitStaleAfter = time.Duration(staleMinutes) * time.Minute

	contestMinutes, err := parseIntEnv("CONTEST_INTERVAL_MINUTES", 10)
	if err != nil {
		return cfg, fmt.Errorf("invalid CONTEST_INTERVAL_MINUTES: %w", err)
	}
	cfg.ContestInterval = time.Duration(contestMinutes) * time.Minute

	sweepMinutes, err := parseIntEnv("SWEEP_INTERVAL_MINUTES", 1)
	if err != nil {
		return cfg, fmt.Errorf("invalid SWEEP_INTERVAL_MINUTES: %w", err)
	}
	cfg.SweepInterval = time.Duration(sweepMinutes) * time.Minute

	welcomeBalance, err := parseIntEnv("WELCOME_BALANCE", 500)
	if err != nil {
		return cfg, fmt.Errorf("invalid WELCOME_BALANCE: %w", err)
	}
	cfg.WelcomeBalance = int64(welcomeBalance)

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks that the configuration is valid
func (c Config) validate() error {
	if c.DatabaseDSN == "" {
		return fmt.Errorf("DATABASE_DSN is required")
	}

	if c.HeartbeatInterval < time.Second {
		return fmt.Errorf("HEARTBEAT_INTERVAL_SECONDS must be at least 1")
	}

	if c.VisitStaleAfter <= c.HeartbeatInterval {
		return fmt.Errorf("VISIT_STALE_AFTER_MINUTES must exceed the heartbeat interval")
	}

	if c.ContestInterval < time.Minute {
		return fmt.Errorf("CONTEST_INTERVAL_MINUTES must be at least 1")
	}

	if c.SweepInterval < time.Minute {
		return fmt.Errorf("SWEEP_INTERVAL_MINUTES must be at least 1")
	}

	if c.WelcomeBalance < 0 {
		return fmt.Errorf("WELCOME_BALANCE must not be negative")
	}

	validLogLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
		"panic": true,
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("invalid LOG_LEVEL: %s (must be one of: trace, debug, info, warn, error, fatal, panic)", c.LogLevel)
	}

	return nil
}

// getEnv retrieves an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv parses an integer environment variable with a default value
func parseIntEnv(key string, defaultValue int) (int, error) {
	str := os.Getenv(key)
	if str == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(str)
}
