package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fulmenhq/gofulmen/telemetry/exporters"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/recipegate/recipegate/internal/errors"
	"github.com/recipegate/recipegate/internal/observability"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func withExporter(t *testing.T, transport http.RoundTripper) {
	t.Helper()

	originalClient := metricsProxyClient
	originalExporter := observability.PrometheusExporter
	t.Cleanup(func() {
		metricsProxyClient = originalClient
		observability.PrometheusExporter = originalExporter
	})

	metricsProxyClient = &http.Client{Transport: transport}
	observability.PrometheusExporter = exporters.NewPrometheusExporter("test", ":9090")
}

func TestMetricsHandlerProxiesPrometheusOutput(t *testing.T) {
	withExporter(t, roundTripFunc(func(req *http.Request) (*http.Response, error) {
		body := "# HELP quota_decisions_total Quota decisions\nquota_decisions_total 1\n"
		resp := &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(body)),
			Header:     make(http.Header),
		}
		resp.Header.Set("Content-Type", "text/plain; version=0.0.4")
		resp.Header.Set("Connection", "close")
		return resp, nil
	}))

	rec := httptest.NewRecorder()
	MetricsHandler(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Empty(t, rec.Header().Get("Connection"))
	assert.Contains(t, rec.Body.String(), "quota_decisions_total")
}

func TestMetricsHandlerExporterDown(t *testing.T) {
	withExporter(t, roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	}))

	rec := httptest.NewRecorder()
	MetricsHandler(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestMetricsHandlerReturnsServiceUnavailableWithoutExporter(t *testing.T) {
	original := observability.PrometheusExporter
	observability.PrometheusExporter = nil
	t.Cleanup(func() { observability.PrometheusExporter = original })

	rec := httptest.NewRecorder()
	MetricsHandler(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	assert.Equal(t, "Service Unavailable: metrics exporter not initialized", resp.Message)
}
