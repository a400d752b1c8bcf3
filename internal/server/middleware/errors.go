package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/fulmenhq/gofulmen/errors"
	"go.uber.org/zap"

	"github.com/recipegate/recipegate/internal/metrics"
	"github.com/recipegate/recipegate/internal/observability"
)

// FailureStatus is the status field of every error body.
const FailureStatus = "failure"

// FailureResponse is the JSON body written for every translated error.
type FailureResponse struct {
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewFailureResponse builds the body for statusCode, prefixing message with
// the status reason phrase.
func NewFailureResponse(statusCode int, message string) FailureResponse {
	reason := http.StatusText(statusCode)
	switch {
	case message == "":
		message = reason
	case reason != "":
		message = reason + ": " + message
	}
	return FailureResponse{Status: FailureStatus, Code: statusCode, Message: message}
}

// WriteFailure writes a failure body. It lives here so Recovery and the
// errors package share one encoder without an import cycle.
func WriteFailure(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(NewFailureResponse(statusCode, message))
}

// Recovery turns panics into a 500 failure body and logs the stack.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			envelope := errors.NewErrorEnvelope("INTERNAL_ERROR", fmt.Sprintf("panic: %v", rec)).
				WithCorrelationID(GetRequestID(r.Context()))
			envelope, _ = envelope.WithSeverity(errors.SeverityCritical)

			metrics.RecordPanic()
			if observability.ServerLogger != nil {
				observability.ServerLogger.Error(envelope.Message,
					zap.String("error_code", envelope.Code),
					zap.String("path", r.URL.Path),
					zap.String("request_id", envelope.CorrelationID),
					zap.String("stack_trace", string(debug.Stack())),
				)
			}

			WriteFailure(w, http.StatusInternalServerError, "unexpected error")
		}()

		next.ServeHTTP(w, r)
	})
}
