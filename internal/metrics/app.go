package metrics

import (
	"strconv"
	"time"

	"github.com/recipegate/recipegate/internal/observability"
)

// Gateway metric names, Prometheus style.
const (
	QuotaDecisionsTotal   = "quota_decisions_total"
	QuotaBucketsActive    = "quota_buckets_active"
	UpstreamRequestsTotal = "upstream_requests_total"
	UpstreamDuration      = "upstream_request_duration_ms"
	ParamRejectionsTotal  = "param_rejections_total"

	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"

	ServerStartTime = "app_server_start_time_seconds"
)

// RecordQuotaDecision counts one limiter outcome for rule
// (allowed, denied, committed, rolled_back).
func RecordQuotaDecision(rule, outcome string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(QuotaDecisionsTotal, 1, map[string]string{
		"rule":    rule,
		"outcome": outcome,
	})
}

// SetActiveBuckets reports how many quota buckets are tracked.
func SetActiveBuckets(count int) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Gauge(QuotaBucketsActive, float64(count), nil)
}

// RecordUpstreamCall records one call to the recipe API. status is the HTTP
// status received, or 0 when the call failed before a reply.
func RecordUpstreamCall(endpoint string, status int, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}

	labels := map[string]string{
		"endpoint": endpoint,
		"status":   strconv.Itoa(status),
	}
	_ = observability.TelemetrySystem.Counter(UpstreamRequestsTotal, 1, labels)
	_ = observability.TelemetrySystem.Histogram(UpstreamDuration, duration, map[string]string{
		"endpoint": endpoint,
	})
}

// RecordParamRejection counts a request refused for a disabled parameter.
func RecordParamRejection(param string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(ParamRejectionsTotal, 1, map[string]string{
		"param": param,
	})
}

// RecordHealthCheck records a health check execution
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	_ = observability.TelemetrySystem.Counter(HealthCheckTotal, 1, map[string]string{
		"check":  checkName,
		"status": status,
	})
	_ = observability.TelemetrySystem.Histogram(HealthCheckDuration, duration, map[string]string{
		"check": checkName,
	})
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Gauge(ServerStartTime, float64(timestamp), nil)
}
