package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/recipegate/recipegate/internal/errors"
	"github.com/recipegate/recipegate/internal/gateway"
	"github.com/recipegate/recipegate/internal/quota"
	"github.com/recipegate/recipegate/internal/server/handlers"
	"github.com/recipegate/recipegate/internal/upstream"
)

func newTestServer(t *testing.T, cfg Config) (*Server, *quota.Limiter) {
	t.Helper()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	t.Cleanup(api.Close)

	client := upstream.NewClient(api.URL, "k")
	client.HTTPClient = api.Client()
	limiter := quota.New(nil)

	srv := New(cfg, gateway.New(client, limiter))
	return srv, limiter
}

func TestServerUsesStandardErrorHandlers(t *testing.T) {
	srv, _ := newTestServer(t, Config{Host: "127.0.0.1"})

	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)

	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "failure", body.Status)
	assert.Equal(t, http.StatusNotFound, body.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServerMountsGateway(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodGet, "/api/search?query=pasta", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"results":[]}`, rec.Body.String())

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestTrustProxyUsesForwardedAddress(t *testing.T) {
	srv, limiter := newTestServer(t, Config{TrustProxy: true})

	req := httptest.NewRequest(http.MethodGet, "/api/search?query=x", nil)
	req.RemoteAddr = "10.0.0.2:4000"
	req.Header.Set("X-Forwarded-For", "198.51.100.20")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	state, ok := limiter.Snapshot("198.51.100.20", quota.RuleSearch)
	require.True(t, ok)
	assert.Equal(t, 1, state.Used)

	_, ok = limiter.Snapshot("10.0.0.2", quota.RuleSearch)
	assert.False(t, ok)
}

func TestForwardedHeaderIgnoredWithoutTrustProxy(t *testing.T) {
	srv, limiter := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodGet, "/api/search?query=x", nil)
	req.RemoteAddr = "10.0.0.2:4000"
	req.Header.Set("X-Forwarded-For", "198.51.100.20")
	srv.Handler().ServeHTTP(httptest.NewRecorder(), req)

	state, ok := limiter.Snapshot("10.0.0.2", quota.RuleSearch)
	require.True(t, ok)
	assert.Equal(t, 1, state.Used)
}

func TestHealthEndpointsUseRegisteredChecks(t *testing.T) {
	srv, _ := newTestServer(t, Config{Version: "0.1.0"})
	srv.Health().RegisterChecker("upstream_credential", handlers.CredentialChecker(func() bool { return false }))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp handlers.HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, handlers.StatusDegraded, resp.Status)
	assert.Equal(t, "0.1.0", resp.Version)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminEndpointRequiresToken(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/signal", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	srv, _ = newTestServer(t, Config{AdminToken: "s3cret"})
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/signal", nil))
	assert.NotEqual(t, http.StatusNotFound, rec.Code)
	assert.NotEqual(t, http.StatusOK, rec.Code)
}

func TestAddrAndDefaults(t *testing.T) {
	srv, _ := newTestServer(t, Config{Host: "127.0.0.1", Port: 8080})
	assert.Equal(t, "127.0.0.1:8080", srv.Addr())
	assert.Equal(t, 30*time.Second, durationOr(0, 30*time.Second))
	assert.Equal(t, time.Second, durationOr(time.Second, 30*time.Second))
	assert.NoError(t, srv.Shutdown(t.Context()))
}
