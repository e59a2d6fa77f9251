// Package config validates and loads process configuration from the
// environment, adapted from the teacher's config.ValidateEnv(): required
// variables fail fast with every problem collected at once, optional
// variables fall back to sane defaults, and the final configuration is
// logged with secrets redacted.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds validated environment configuration for the Gomoku
// server.
type Config struct {
	// Listening endpoints; only Port is required, Host and AdminPort
	// default to "0.0.0.0" and "8080"
	Host      string
	Port      string
	AdminPort string

	// Optional variables with defaults
	GoEnv         string
	LogLevel      string
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string

	AllowedOrigins string

	RateLimitWsIP   string
	RateLimitWsUser string

	OTELCollectorAddr string
}

// ValidateEnv validates all required environment variables and returns a
// Config object. Every problem found is collected and returned together
// rather than failing on the first one.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errs []string

	cfg.Host = getEnvOrDefault("GOMOKU_HOST", "0.0.0.0")

	cfg.Port = os.Getenv("GOMOKU_PORT")
	if cfg.Port == "" {
		errs = append(errs, "GOMOKU_PORT is required")
	} else if !isValidPort(cfg.Port) {
		errs = append(errs, fmt.Sprintf("GOMOKU_PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
	}

	cfg.AdminPort = getEnvOrDefault("GOMOKU_ADMIN_PORT", "8080")
	if !isValidPort(cfg.AdminPort) {
		errs = append(errs, fmt.Sprintf("GOMOKU_ADMIN_PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.AdminPort))
	}

	cfg.RedisEnabled = os.Getenv("REDIS_ENABLED") == "true"
	if cfg.RedisEnabled {
		cfg.RedisAddr = os.Getenv("REDIS_ADDR")
		if cfg.RedisAddr == "" {
			cfg.RedisAddr = "localhost:6379"
			slog.Warn("REDIS_ADDR not set, using default", "addr", cfg.RedisAddr)
		} else if !isValidHostPort(cfg.RedisAddr) {
			errs = append(errs, fmt.Sprintf("REDIS_ADDR must be in format 'host:port' (got '%s')", cfg.RedisAddr))
		}
		cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	}

	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.AllowedOrigins = getEnvOrDefault("ALLOWED_ORIGINS", "http://localhost:3000")

	cfg.RateLimitWsIP = getEnvOrDefault("RATE_LIMIT_WS_IP", "100-M")
	cfg.RateLimitWsUser = getEnvOrDefault("RATE_LIMIT_WS_USER", "30-M")

	cfg.OTELCollectorAddr = os.Getenv("OTEL_COLLECTOR_ADDR")

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	logValidatedConfig(cfg)
	return cfg, nil
}

func isValidPort(s string) bool {
	port, err := strconv.Atoi(s)
	return err == nil && port >= 1 && port <= 65535
}

// isValidHostPort checks if a string is in the format "host:port".
func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}
	if parts[0] == "" {
		return false
	}
	return isValidPort(parts[1])
}

func logValidatedConfig(cfg *Config) {
	slog.Info("environment configuration validated",
		"host", cfg.Host,
		"port", cfg.Port,
		"admin_port", cfg.AdminPort,
		"redis_enabled", cfg.RedisEnabled,
		"redis_addr", cfg.RedisAddr,
		"go_env", cfg.GoEnv,
		"log_level", cfg.LogLevel,
		"rate_limit_ws_ip", cfg.RateLimitWsIP,
		"rate_limit_ws_user", cfg.RateLimitWsUser,
	)
}

// getEnvOrDefault returns the value of the environment variable or a
// default value if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
