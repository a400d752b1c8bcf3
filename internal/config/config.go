package config

import (
	"time"
)

// Config represents the complete application configuration. Values come from
// defaults, an optional YAML file, then RECIPEGATE_* environment variables.
type Config struct {
	Server     ServerConfig               `mapstructure:"server"`
	Upstream   UpstreamConfig             `mapstructure:"upstream"`
	RateLimits map[string]RateLimitConfig `mapstructure:"rate_limits"`
	Quota      QuotaConfig                `mapstructure:"quota"`
	Stats      StatsConfig                `mapstructure:"stats"`
	Logging    LoggingConfig              `mapstructure:"logging"`
	Metrics    MetricsConfig              `mapstructure:"metrics"`
	Admin      AdminConfig                `mapstructure:"admin"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// TrustProxy derives the caller identity from X-Forwarded-For / X-Real-IP.
	// Only enable behind a proxy that overwrites those headers.
	TrustProxy bool `mapstructure:"trust_proxy"`
}

// UpstreamConfig points at the recipe API.
type UpstreamConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RateLimitConfig overrides one quota rule. Zero values keep the built-in default.
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
	// Deduct is "success" (default) or "always".
	Deduct string `mapstructure:"deduct"`
}

// QuotaConfig tunes the in-memory limiter.
type QuotaConfig struct {
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	IdleTTL         time.Duration `mapstructure:"idle_ttl"`
}

// StatsConfig enables Redis-backed quota decision counters.
type StatsConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	Prefix        string        `mapstructure:"prefix"`
	TTL           time.Duration `mapstructure:"ttl"`
	// Timeout bounds each Redis round trip made while serving a request.
	Timeout time.Duration `mapstructure:"timeout"`
	// TrackKeys adds per-identity counters.
	TrackKeys bool `mapstructure:"track_keys"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Format is json or console
	Format string `mapstructure:"format"`

	Environment string `mapstructure:"environment"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated exporter port. /metrics on the main listener proxies to it.
	Port int `mapstructure:"port"`
}

// AdminConfig guards the admin signal endpoint. Empty token disables it.
type AdminConfig struct {
	Token string `mapstructure:"token"`
}
