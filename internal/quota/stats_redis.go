package quota

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStats writes quota counters to Redis hashes:
//
//	<prefix>:total            field per outcome, never expires
//	<prefix>:rule:<rule>      field per outcome, never expires
//	<prefix>:minute:<stamp>   field "<rule>:<outcome>", expires after ttl
//	<prefix>:identity:<id>    field "<rule>:<outcome>", only with TrackIdentities
type RedisStats struct {
	rdb redis.Cmdable

	prefix    string
	ttl       time.Duration
	trackKeys bool
}

// RedisStatsOption configures RedisStats.
type RedisStatsOption func(*RedisStats)

// WithStatsPrefix sets the key prefix.
func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStats) {
		if p := strings.Trim(prefix, ":"); p != "" {
			s.prefix = p
		}
	}
}

// WithStatsTTL sets the expiry of time-bucketed and per-identity keys.
func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStats) { s.ttl = d }
}

// WithTrackIdentities records per-identity counters. Watch cardinality.
func WithTrackIdentities(track bool) RedisStatsOption {
	return func(s *RedisStats) { s.trackKeys = track }
}

// NewRedisStats creates a Redis-backed StatsStore.
func NewRedisStats(rdb redis.Cmdable, opts ...RedisStatsOption) *RedisStats {
	s := &RedisStats{
		rdb:    rdb,
		prefix: "recipegate:quota",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record implements StatsStore.
func (s *RedisStats) Record(ctx context.Context, ev StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	outcome := string(ev.Outcome)
	ruleField := ev.Rule + ":" + outcome

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", outcome, 1)
	if ev.Rule != "" {
		pipe.HIncrBy(ctx, s.prefix+":rule:"+ev.Rule, outcome, 1)
	}

	minuteKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
	pipe.HIncrBy(ctx, minuteKey, ruleField, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, minuteKey, s.ttl)
	}

	if s.trackKeys {
		if id := strings.TrimSpace(ev.Identity); id != "" {
			idKey := s.prefix + ":identity:" + id
			pipe.HIncrBy(ctx, idKey, ruleField, 1)
			if s.ttl > 0 {
				pipe.Expire(ctx, idKey, s.ttl)
			}
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Totals reads the cumulative counters back.
func (s *RedisStats) Totals(ctx context.Context) (Counters, error) {
	raw, err := s.rdb.HGetAll(ctx, s.prefix+":total").Result()
	if err != nil {
		return nil, err
	}
	return parseCounters(raw)
}

// RuleTotals reads the cumulative counters for one rule.
func (s *RedisStats) RuleTotals(ctx context.Context, rule string) (Counters, error) {
	raw, err := s.rdb.HGetAll(ctx, s.prefix+":rule:"+rule).Result()
	if err != nil {
		return nil, err
	}
	return parseCounters(raw)
}

// Ping checks connectivity.
func (s *RedisStats) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func parseCounters(raw map[string]string) (Counters, error) {
	out := make(Counters, len(raw))
	for field, value := range raw {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse counter %s: %w", field, err)
		}
		out[Outcome(field)] = n
	}
	return out, nil
}
