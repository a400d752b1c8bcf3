package metrics

import (
	"strconv"

	"github.com/recipegate/recipegate/internal/observability"
)

// Error metric names
const (
	ErrorsTotalName      = "errors_total"
	PanicsTotalName      = "panics_total"
	ErrorsByEndpointName = "errors_by_endpoint"
)

// RecordError records an error with code and status
func RecordError(errorCode string, httpStatus int) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(ErrorsTotalName, 1, map[string]string{
		"error_code":  errorCode,
		"http_status": strconv.Itoa(httpStatus),
	})
}

// RecordPanic records a panic recovery
func RecordPanic() {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(PanicsTotalName, 1, nil)
}

// RecordErrorByEndpoint records an error by endpoint. Unknown paths are
// collapsed to keep label cardinality bounded.
func RecordErrorByEndpoint(endpoint string, errorCode string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(ErrorsByEndpointName, 1, map[string]string{
		"endpoint":   EndpointLabel(endpoint),
		"error_code": errorCode,
	})
}

// EndpointLabel maps a request path to a bounded metric label.
func EndpointLabel(path string) string {
	switch path {
	case "/api/search", "/api/ingredients", "/version", "/metrics", "/admin/signal", "/":
		return path
	case "/health", "/health/live", "/health/ready", "/health/startup":
		return "/health/*"
	default:
		return "/unknown"
	}
}
