package metrics

import (
	"testing"
	"time"

	"github.com/fulmenhq/gofulmen/telemetry"
	telemetrytesting "github.com/fulmenhq/gofulmen/telemetry/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recipegate/recipegate/internal/observability"
)

func setupTelemetry(t *testing.T) *telemetrytesting.FakeCollector {
	t.Helper()

	collector := telemetrytesting.NewFakeCollector()
	sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: true, Emitter: collector})
	require.NoError(t, err)

	original := observability.TelemetrySystem
	observability.TelemetrySystem = sys
	t.Cleanup(func() { observability.TelemetrySystem = original })

	return collector
}

func TestGatewayMetricsEmitted(t *testing.T) {
	collector := setupTelemetry(t)

	RecordQuotaDecision("search", "denied")
	RecordUpstreamCall("recipes/complexSearch", 200, 15*time.Millisecond)
	RecordParamRejection("fillIngredients")
	SetActiveBuckets(3)

	assert.Greater(t, collector.CountMetricsByName(QuotaDecisionsTotal), 0)
	assert.Greater(t, collector.CountMetricsByName(UpstreamRequestsTotal), 0)
	assert.Greater(t, collector.CountMetricsByName(UpstreamDuration), 0)
	assert.Greater(t, collector.CountMetricsByName(ParamRejectionsTotal), 0)
	assert.Greater(t, collector.CountMetricsByName(QuotaBucketsActive), 0)
}

func TestErrorMetricsEmitted(t *testing.T) {
	collector := setupTelemetry(t)

	RecordError("RATE_LIMITED", 429)
	RecordErrorByEndpoint("/api/search", "RATE_LIMITED")
	RecordPanic()

	assert.Greater(t, collector.CountMetricsByName(ErrorsTotalName), 0)
	assert.Greater(t, collector.CountMetricsByName(ErrorsByEndpointName), 0)
	assert.Greater(t, collector.CountMetricsByName(PanicsTotalName), 0)
}

func TestRecordersAreNoopsWithoutTelemetry(t *testing.T) {
	original := observability.TelemetrySystem
	observability.TelemetrySystem = nil
	t.Cleanup(func() { observability.TelemetrySystem = original })

	RecordQuotaDecision("search", "allowed")
	RecordUpstreamCall("recipes/complexSearch", 0, time.Second)
	RecordHealthCheck("redis", true, time.Millisecond)
	SetServerStartTime(time.Now().Unix())
}

func TestEndpointLabel(t *testing.T) {
	assert.Equal(t, "/api/search", EndpointLabel("/api/search"))
	assert.Equal(t, "/health/*", EndpointLabel("/health/ready"))
	assert.Equal(t, "/unknown", EndpointLabel("/api/users/123"))
}
