// Package config loads recipegate configuration through viper and decodes it
// into typed structs with mapstructure.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/recipegate/recipegate/internal/quota"
	"github.com/recipegate/recipegate/internal/upstream"
)

// EnvPrefix is prepended to every environment override, e.g. RECIPEGATE_SERVER_PORT.
const EnvPrefix = "RECIPEGATE"

// LegacyAPIKeyEnv is also honored for the upstream credential.
const LegacyAPIKeyEnv = "SPOONACULAR_KEY"

var (
	appConfig *Config
	configMu  sync.RWMutex
)

// SetDefaults registers every known key so AutomaticEnv can override it.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.trust_proxy", false)

	// Upstream defaults
	v.SetDefault("upstream.base_url", upstream.DefaultBaseURL)
	v.SetDefault("upstream.api_key", "")
	v.SetDefault("upstream.timeout", upstream.DefaultTimeout.String())

	for _, rule := range quota.SortedRules(quota.DefaultRules) {
		v.SetDefault("rate_limits."+rule.Name+".requests", rule.Requests)
		v.SetDefault("rate_limits."+rule.Name+".window", rule.Window.String())
		v.SetDefault("rate_limits."+rule.Name+".deduct", string(rule.Deduct))
	}

	v.SetDefault("quota.cleanup_interval", "1m")
	v.SetDefault("quota.idle_ttl", "15m")

	v.SetDefault("stats.enabled", false)
	v.SetDefault("stats.redis_addr", "localhost:6379")
	v.SetDefault("stats.redis_password", "")
	v.SetDefault("stats.redis_db", 0)
	v.SetDefault("stats.prefix", "recipegate:quota")
	v.SetDefault("stats.ttl", "24h")
	v.SetDefault("stats.timeout", "250ms")
	v.SetDefault("stats.track_keys", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.environment", "production")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("admin.token", "")
}

// BindEnv wires RECIPEGATE_* variables (dots become underscores) and the
// credential aliases.
func BindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v.BindEnv("upstream.api_key", EnvPrefix+"_UPSTREAM_API_KEY", EnvPrefix+"_API_KEY", LegacyAPIKeyEnv)
}

// Load decodes the settings held by v into a Config, validates it and stores
// it for GetConfig. Safe to call again on reload.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Upstream.APIKey = strings.TrimSpace(cfg.Upstream.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	setConfig(cfg)
	return cfg, nil
}

// Validate rejects settings the gateway cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Metrics.Enabled && (c.Metrics.Port < 0 || c.Metrics.Port > 65535) {
		errs = append(errs, fmt.Errorf("metrics.port out of range: %d", c.Metrics.Port))
	}

	if u, err := url.Parse(c.Upstream.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("upstream.base_url must be an absolute URL: %q", c.Upstream.BaseURL))
	}
	if c.Upstream.Timeout < 0 {
		errs = append(errs, fmt.Errorf("upstream.timeout must not be negative: %s", c.Upstream.Timeout))
	}

	if _, err := c.Rules(); err != nil {
		errs = append(errs, fmt.Errorf("rate_limits: %w", err))
	}

	if c.Quota.CleanupInterval < 0 || c.Quota.IdleTTL < 0 {
		errs = append(errs, errors.New("quota intervals must not be negative"))
	}

	if c.Stats.Timeout < 0 {
		errs = append(errs, fmt.Errorf("stats.timeout must not be negative: %s", c.Stats.Timeout))
	}
	if c.Stats.Enabled && strings.TrimSpace(c.Stats.RedisAddr) == "" {
		errs = append(errs, errors.New("stats.redis_addr is required when stats.enabled is set"))
	}

	return errors.Join(errs...)
}

// QuotaOverrides converts rate_limits into limiter overrides.
func (c *Config) QuotaOverrides() map[string]quota.Override {
	out := make(map[string]quota.Override, len(c.RateLimits))
	for name, rl := range c.RateLimits {
		out[name] = quota.Override{
			Requests: rl.Requests,
			Window:   rl.Window,
			Deduct:   rl.Deduct,
		}
	}
	return out
}

// Rules returns the effective rule set: built-in defaults plus overrides.
func (c *Config) Rules() (map[string]quota.Rule, error) {
	return quota.MergeRules(quota.DefaultRules, c.QuotaOverrides())
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}
