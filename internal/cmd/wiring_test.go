package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recipegate/recipegate/internal/config"
	"github.com/recipegate/recipegate/internal/output"
	"github.com/recipegate/recipegate/internal/quota"
	"github.com/recipegate/recipegate/internal/server/handlers"
)

func testConfig(t *testing.T, mutate func(v *viper.Viper)) *config.Config {
	t.Helper()
	v := viper.New()
	config.SetDefaults(v)
	if mutate != nil {
		mutate(v)
	}
	cfg, err := config.Load(v)
	require.NoError(t, err)
	return cfg
}

func TestBuildComponentsWithRedisStats(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.URL.Query().Get("apiKey"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer api.Close()

	mr := miniredis.RunT(t)
	cfg := testConfig(t, func(v *viper.Viper) {
		v.Set("upstream.base_url", api.URL)
		v.Set("upstream.api_key", "k")
		v.Set("upstream.timeout", "2s")
		v.Set("stats.enabled", true)
		v.Set("stats.redis_addr", mr.Addr())
		v.Set("rate_limits.search.requests", 2)
	})

	c, err := buildComponents(cfg)
	require.NoError(t, err)
	defer func() { require.NoError(t, c.close()) }()

	require.NotNil(t, c.redisStats)
	assert.Equal(t, 2*time.Second, c.client.Timeout)

	rule, ok := c.limiter.Rule(quota.RuleSearch)
	require.True(t, ok)
	assert.Equal(t, 2, rule.Requests)

	ctx := context.Background()
	_, _, err = c.gateway.Search(ctx, "203.0.113.5", url.Values{"query": {"soup"}})
	require.NoError(t, err)

	totals, err := c.redisStats.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), totals[quota.OutcomeAllowed])
	assert.Equal(t, int64(1), totals[quota.OutcomeCommitted])

	var buf bytes.Buffer
	require.NoError(t, renderStats(ctx, &buf, cfg, c.redisStats, "json"))

	var rows []output.StatsRow
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
	require.Len(t, rows, 3)
	assert.Equal(t, quota.RuleSearch, rows[1].Rule)
	assert.Equal(t, int64(1), rows[1].Committed)
	assert.Equal(t, output.TotalRow, rows[2].Rule)
}

func TestBuildComponentsWithoutStats(t *testing.T) {
	c, err := buildComponents(testConfig(t, nil))
	require.NoError(t, err)
	assert.Nil(t, c.redis)
	assert.Nil(t, c.redisStats)
	assert.NoError(t, c.close())
	assert.False(t, c.client.HasCredential())
}

func TestRegisterChecks(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, func(v *viper.Viper) {
		v.Set("upstream.api_key", "k")
		v.Set("stats.enabled", true)
		v.Set("stats.redis_addr", mr.Addr())
	})

	c, err := buildComponents(cfg)
	require.NoError(t, err)
	defer c.close() // nolint:errcheck // test cleanup

	hm := handlers.NewHealthManager("test")
	c.registerChecks(hm)

	rec := httptest.NewRecorder()
	hm.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp handlers.HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, handlers.StatusHealthy, resp.Status)
	assert.Contains(t, resp.Checks, "quota_stats")
	assert.Contains(t, resp.Checks, "upstream_credential")
}

func TestJanitorPublishesAndEvicts(t *testing.T) {
	cfg := testConfig(t, func(v *viper.Viper) {
		v.Set("quota.idle_ttl", "1ms")
	})
	c, err := buildComponents(cfg)
	require.NoError(t, err)

	_, err = c.limiter.Admit(context.Background(), "198.51.100.1", quota.RuleIngredients)
	require.NoError(t, err)
	require.Equal(t, 1, c.limiter.Len())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.startJanitor(ctx, 5*time.Millisecond)

	// The open reservation keeps the bucket alive.
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, c.limiter.Len())
}

func TestNewRedisClientIsBounded(t *testing.T) {
	rdb := newRedisClient(config.StatsConfig{RedisAddr: "127.0.0.1:6379"})
	defer rdb.Close() // nolint:errcheck // test cleanup
	opts := rdb.Options()
	assert.Equal(t, quota.DefaultStatsTimeout, opts.DialTimeout)
	assert.Equal(t, quota.DefaultStatsTimeout, opts.ReadTimeout)
	assert.Equal(t, quota.DefaultStatsTimeout, opts.WriteTimeout)
	assert.Equal(t, 1, opts.MaxRetries)

	slow := newRedisClient(config.StatsConfig{RedisAddr: "127.0.0.1:6379", Timeout: time.Second})
	defer slow.Close() // nolint:errcheck // test cleanup
	assert.Equal(t, time.Second, slow.Options().ReadTimeout)
}

func TestRenderRules(t *testing.T) {
	cfg := testConfig(t, func(v *viper.Viper) {
		v.Set("rate_limits.ingredients.deduct", "always")
	})

	var buf bytes.Buffer
	require.NoError(t, renderRules(&buf, cfg, "json"))

	var rows []output.RuleRow
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, quota.RuleIngredients, rows[0].Name)
	assert.Equal(t, "always", rows[0].Deduct)
	assert.Equal(t, "1 per 1 minute", rows[1].Description)

	assert.Error(t, renderRules(&buf, cfg, "csv"))
}

func TestSetOrNot(t *testing.T) {
	assert.Equal(t, "(not set)", setOrNot(""))
	assert.Equal(t, "(set)", setOrNot("secret"))
	assert.Equal(t, "x", valueOr("", "x"))
}
