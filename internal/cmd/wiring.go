package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/recipegate/recipegate/internal/config"
	"github.com/recipegate/recipegate/internal/gateway"
	"github.com/recipegate/recipegate/internal/metrics"
	"github.com/recipegate/recipegate/internal/quota"
	"github.com/recipegate/recipegate/internal/server/handlers"
	"github.com/recipegate/recipegate/internal/upstream"
)

// components holds everything serve constructs from config.
type components struct {
	client  *upstream.Client
	limiter *quota.Limiter
	gateway *gateway.Gateway

	// nil unless stats.enabled
	redis      *redis.Client
	redisStats *quota.RedisStats
}

func buildComponents(cfg *config.Config) (*components, error) {
	rules, err := cfg.Rules()
	if err != nil {
		return nil, err
	}

	client := upstream.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.APIKey)
	if cfg.Upstream.Timeout > 0 {
		client.Timeout = cfg.Upstream.Timeout
	}
	client.UserAgent = fmt.Sprintf("%s/%s", AppName, versionInfo.Version)

	c := &components{client: client}

	stats := quota.MultiStats{metrics.QuotaStats{}}
	if cfg.Stats.Enabled {
		c.redis = newRedisClient(cfg.Stats)
		c.redisStats = quota.NewRedisStats(c.redis,
			quota.WithStatsPrefix(cfg.Stats.Prefix),
			quota.WithStatsTTL(cfg.Stats.TTL),
			quota.WithTrackIdentities(cfg.Stats.TrackKeys),
		)
		stats = append(stats, c.redisStats)
	}

	opts := []quota.Option{quota.WithStats(stats), quota.WithStatsTimeout(cfg.Stats.Timeout)}
	if cfg.Quota.IdleTTL > 0 {
		opts = append(opts, quota.WithIdleTTL(cfg.Quota.IdleTTL))
	}
	c.limiter = quota.New(rules, opts...)
	c.gateway = gateway.New(client, c.limiter)

	return c, nil
}

// registerChecks adds the component health checks to hm.
func (c *components) registerChecks(hm *handlers.HealthManager) {
	hm.RegisterChecker("upstream_credential", handlers.CredentialChecker(c.client.HasCredential))
	if c.redisStats != nil {
		hm.RegisterChecker("quota_stats", handlers.PingChecker(c.redisStats))
	}
}

// startJanitor evicts idle buckets and publishes the bucket gauge until ctx ends.
func (c *components) startJanitor(ctx context.Context, every time.Duration) {
	c.limiter.StartJanitor(ctx, every, metrics.SetActiveBuckets)
}

func (c *components) close() error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Close()
}

func newRedisClient(cfg config.StatsConfig) *redis.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = quota.DefaultStatsTimeout
	}
	return redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		PoolTimeout:  timeout,
		MaxRetries:   1,
	})
}
