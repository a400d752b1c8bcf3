package errors

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/recipegate/recipegate/internal/metrics"
	"github.com/recipegate/recipegate/internal/observability"
	"github.com/recipegate/recipegate/internal/server/middleware"
	"github.com/recipegate/recipegate/internal/upstream"
)

// Error codes used across the gateway.
const (
	CodeInvalidInput       = "INVALID_INPUT"
	CodeNotFound           = "NOT_FOUND"
	CodeForbidden          = "FORBIDDEN"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternal           = "INTERNAL_ERROR"
	CodeExternalService    = "EXTERNAL_SERVICE_ERROR"
	CodeTimeout            = "TIMEOUT"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeConfigInvalid      = "CONFIG_INVALID"
	CodeUpstreamError      = "UPSTREAM_ERROR"
)

// HTTPErrorResponse is the body written for every envelope.
type HTTPErrorResponse = middleware.FailureResponse

// RawResponder is implemented by errors that carry a complete upstream reply.
// RespondWithError writes such errors verbatim.
type RawResponder interface {
	RawResponse() (statusCode int, contentType string, body []byte)
}

func NewNotFoundError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeNotFound, message)
}

func NewForbiddenError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeForbidden, message)
}

func NewMethodNotAllowedError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeMethodNotAllowed, message)
}

// NewRateLimitedError builds a 429 envelope. Severity is left unset since
// denials are routine.
func NewRateLimitedError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeRateLimited, message)
}

func NewServiceUnavailableError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeServiceUnavailable, message)
}

func NewConfigInvalidError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeConfigInvalid, message)
}

// Wrap helpers attach the request's correlation ID and the wrapped error text.

func WrapInvalidInput(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, CodeInvalidInput, err, message)
}

func WrapInternal(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	envelope, _ := wrap(ctx, CodeInternal, err, message).WithSeverity(errors.SeverityHigh)
	return envelope
}

func WrapExternalService(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	envelope, _ := wrap(ctx, CodeExternalService, err, message).WithSeverity(errors.SeverityMedium)
	return envelope
}

func WrapTimeout(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	envelope, _ := wrap(ctx, CodeTimeout, err, message).WithSeverity(errors.SeverityMedium)
	return envelope
}

func WrapConfigInvalid(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	envelope, _ := wrap(ctx, CodeConfigInvalid, err, message).WithSeverity(errors.SeverityCritical)
	return envelope
}

func wrap(ctx context.Context, code string, err error, message string) *errors.ErrorEnvelope {
	envelope := errors.NewErrorEnvelope(code, message)
	envelope = envelope.WithCorrelationID(extractCorrelationID(ctx))
	return withWrappedError(envelope, err)
}

// extractCorrelationID gets correlation ID from context, falls back to generating new UUID
func extractCorrelationID(ctx context.Context) string {
	if ctx != nil {
		if requestID := middleware.GetRequestID(ctx); requestID != "" {
			return requestID
		}
	}
	return uuid.New().String()
}

// EnsureEnvelope normalizes any error into a gofulmen ErrorEnvelope.
// Upstream transport failures become TIMEOUT or EXTERNAL_SERVICE_ERROR; the
// wrapped text is kept for logs only.
func EnsureEnvelope(err error) *errors.ErrorEnvelope {
	if err == nil {
		env := errors.NewErrorEnvelope(CodeInternal, "unexpected nil error")
		env, _ = env.WithSeverity(errors.SeverityCritical)
		return env
	}

	var envelope *errors.ErrorEnvelope
	if stderrors.As(err, &envelope) && envelope != nil {
		return envelope
	}

	var transportErr *upstream.TransportError
	if stderrors.As(err, &transportErr) {
		if transportErr.Timeout {
			return WrapTimeout(context.Background(), err, "upstream request timed out")
		}
		return WrapExternalService(context.Background(), err, "upstream request failed")
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return WrapTimeout(context.Background(), err, "request timed out")
	}

	env := errors.NewErrorEnvelope(CodeInternal, "unexpected error")
	env, _ = env.WithContext(map[string]interface{}{
		"wrapped_error": err.Error(),
	})
	env, _ = env.WithSeverity(errors.SeverityHigh)
	return env
}

// EnsureCorrelationID attaches a correlation ID to the envelope using the context when available.
func EnsureCorrelationID(envelope *errors.ErrorEnvelope, ctx context.Context) *errors.ErrorEnvelope {
	if envelope == nil {
		return nil
	}

	var correlationID string
	if ctx != nil {
		correlationID = middleware.GetRequestID(ctx)
	}
	if correlationID != "" {
		return envelope.WithCorrelationID(correlationID)
	}
	if envelope.CorrelationID != "" {
		return envelope
	}

	return envelope.WithCorrelationID("fallback-" + errors.GenerateCorrelationID())
}

// HTTPStatusFromEnvelope resolves the HTTP status code corresponding to an error envelope.
func HTTPStatusFromEnvelope(envelope *errors.ErrorEnvelope) int {
	if envelope == nil {
		return http.StatusInternalServerError
	}
	return HTTPStatusFromCode(envelope.Code)
}

// HTTPStatusFromCode resolves the HTTP status code corresponding to an error code.
func HTTPStatusFromCode(code string) int {
	switch code {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden:
		return http.StatusForbidden
	case CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeExternalService:
		return http.StatusBadGateway
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func withWrappedError(envelope *errors.ErrorEnvelope, err error) *errors.ErrorEnvelope {
	if envelope == nil || err == nil {
		return envelope
	}

	updated, updateErr := envelope.WithContext(map[string]interface{}{
		"wrapped_error": err.Error(),
	})
	if updateErr != nil {
		return envelope
	}
	return updated
}

// RespondWithError writes err to w. Upstream replies are relayed verbatim;
// everything else is normalized into an envelope.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	var raw RawResponder
	if stderrors.As(err, &raw) {
		RespondRaw(w, r, raw)
		return
	}
	RespondWithEnvelope(w, r, EnsureEnvelope(err))
}

// RespondRaw relays an upstream reply unchanged.
func RespondRaw(w http.ResponseWriter, r *http.Request, raw RawResponder) {
	if w == nil || raw == nil {
		return
	}

	statusCode, contentType, body := raw.RawResponse()
	if statusCode < 100 || statusCode > 999 {
		statusCode = http.StatusBadGateway
	}

	if observability.ServerLogger != nil {
		fields := []zap.Field{
			zap.Int("upstream_status", statusCode),
			zap.Int("body_size", len(body)),
		}
		if r != nil {
			fields = append(fields,
				zap.String("path", r.URL.Path),
				zap.String("request_id", middleware.GetRequestID(r.Context())),
			)
		}
		observability.ServerLogger.Warn("upstream error relayed", fields...)
	}
	metrics.RecordError(CodeUpstreamError, statusCode)

	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.WriteHeader(statusCode)
	_, _ = w.Write(body)
}

// RespondWithEnvelope finalizes the provided envelope, logging and emitting metrics.
func RespondWithEnvelope(w http.ResponseWriter, r *http.Request, envelope *errors.ErrorEnvelope) {
	if w == nil {
		return
	}
	if envelope == nil {
		envelope = EnsureEnvelope(nil)
	}

	if r != nil {
		envelope = EnsureCorrelationID(envelope, r.Context())
	} else {
		envelope = EnsureCorrelationID(envelope, nil)
	}

	statusCode := HTTPStatusFromEnvelope(envelope)

	logHTTPError(envelope, statusCode)
	emitErrorMetrics(r, envelope, statusCode)

	middleware.WriteFailure(w, statusCode, envelope.Message)
}

func logHTTPError(envelope *errors.ErrorEnvelope, statusCode int) {
	if observability.ServerLogger == nil || envelope == nil {
		return
	}

	fields := []zap.Field{
		zap.String("error_code", envelope.Code),
		zap.Int("http_status", statusCode),
	}

	if envelope.Severity != "" {
		fields = append(fields, zap.String("severity", string(envelope.Severity)))
	}

	for key, value := range envelope.Context {
		fields = append(fields, zap.Any(key, value))
	}

	if envelope.CorrelationID != "" {
		fields = append(fields, zap.String("request_id", envelope.CorrelationID))
	}

	switch envelope.Severity {
	case errors.SeverityCritical, errors.SeverityHigh:
		observability.ServerLogger.Error(envelope.Message, fields...)
	case errors.SeverityMedium:
		observability.ServerLogger.Warn(envelope.Message, fields...)
	default:
		observability.ServerLogger.Info(envelope.Message, fields...)
	}
}

func emitErrorMetrics(r *http.Request, envelope *errors.ErrorEnvelope, statusCode int) {
	if envelope == nil {
		return
	}

	metrics.RecordError(envelope.Code, statusCode)
	if r != nil {
		metrics.RecordErrorByEndpoint(r.URL.Path, envelope.Code)
	}
}
