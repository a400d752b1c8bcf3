package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recipegate/recipegate/internal/server/middleware"
	"github.com/recipegate/recipegate/internal/upstream"
)

func decodeFailure(t *testing.T, rec *httptest.ResponseRecorder) HTTPErrorResponse {
	t.Helper()
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestRespondWithEnvelopeShape(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/search", nil)

	RespondWithEnvelope(rec, req, NewForbiddenError("fillIngredients is disabled."))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"status":"failure","code":403,"message":"Forbidden: fillIngredients is disabled."}`, rec.Body.String())
}

func TestRespondWithErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid input", WrapInvalidInput(context.Background(), stderrors.New("unexpected EOF"), "bad form"), http.StatusBadRequest},
		{"not found", NewNotFoundError("no such route"), http.StatusNotFound},
		{"method", NewMethodNotAllowedError("use POST"), http.StatusMethodNotAllowed},
		{"rate limited", NewRateLimitedError("rate limit exceeded"), http.StatusTooManyRequests},
		{"timeout", &upstream.TransportError{Method: "GET", Path: "x", Timeout: true, Err: context.DeadlineExceeded}, http.StatusGatewayTimeout},
		{"transport", &upstream.TransportError{Method: "GET", Path: "x", Err: stderrors.New("connection refused")}, http.StatusBadGateway},
		{"deadline", fmt.Errorf("wait: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"unexpected", stderrors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/search", nil)

			RespondWithError(rec, req, tc.err)

			assert.Equal(t, tc.status, rec.Code)
			body := decodeFailure(t, rec)
			assert.Equal(t, "failure", body.Status)
			assert.Equal(t, tc.status, body.Code)
			assert.Contains(t, body.Message, http.StatusText(tc.status))
		})
	}
}

func TestUnexpectedErrorTextIsNotExposed(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondWithError(rec, httptest.NewRequest(http.MethodGet, "/", nil), stderrors.New("secret detail"))

	body := decodeFailure(t, rec)
	assert.Equal(t, "Internal Server Error: unexpected error", body.Message)
	assert.NotContains(t, rec.Body.String(), "secret detail")
}

func TestRespondWithErrorRelaysUpstreamVerbatim(t *testing.T) {
	upstreamBody := []byte(`{"status":"failure","code":402,"message":"Your daily points limit of 150 has been reached."}`)
	err := fmt.Errorf("search: %w", &upstream.Error{
		StatusCode:  http.StatusPaymentRequired,
		ContentType: "application/json; charset=utf-8",
		Body:        upstreamBody,
	})

	rec := httptest.NewRecorder()
	RespondWithError(rec, httptest.NewRequest(http.MethodGet, "/api/search", nil), err)

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, upstreamBody, rec.Body.Bytes())
}

func TestEnsureCorrelationIDPrefersRequestID(t *testing.T) {
	var captured string
	handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env := EnsureCorrelationID(NewForbiddenError("x"), r.Context())
		captured = env.CorrelationID
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-123")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "req-123", captured)

	env := EnsureCorrelationID(NewForbiddenError("x"), context.Background())
	assert.Contains(t, env.CorrelationID, "fallback-")
}

func TestEnsureEnvelopePassesEnvelopesThrough(t *testing.T) {
	original := NewForbiddenError("addRecipeNutrition is disabled.")
	assert.Same(t, original, EnsureEnvelope(original))

	assert.Equal(t, CodeInternal, EnsureEnvelope(nil).Code)
}

func TestHTTPStatusFromCode(t *testing.T) {
	assert.Equal(t, http.StatusTooManyRequests, HTTPStatusFromCode(CodeRateLimited))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatusFromCode(CodeServiceUnavailable))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusFromCode("SOMETHING_ELSE"))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusFromEnvelope(nil))
}
