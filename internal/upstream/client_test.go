package upstream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientDefaults(t *testing.T) {
	client := NewClient("", "  key  ")
	assert.Equal(t, DefaultBaseURL, client.BaseURL)
	assert.Equal(t, "key", client.APIKey)
	assert.Equal(t, DefaultTimeout, client.Timeout)
	assert.True(t, client.HasCredential())
	assert.False(t, NewClient("", "").HasCredential())
}

func TestGetInjectsCredential(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/recipes/complexSearch", r.URL.Path)
		require.Equal(t, "server-key", r.URL.Query().Get("apiKey"))
		require.Len(t, r.URL.Query()["apiKey"], 1)
		require.Equal(t, "pasta", r.URL.Query().Get("query"))
		require.Equal(t, []string{"a", "b"}, r.URL.Query()["tag"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "server-key")
	client.HTTPClient = server.Client()

	params := url.Values{"query": {"pasta"}, "tag": {"a", "b"}, "apiKey": {"caller-key"}}
	resp, err := client.Get(context.Background(), PathComplexSearch, params)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.ContentType)
	assert.JSONEq(t, `{"results":[]}`, string(resp.Body))

	assert.Equal(t, "caller-key", params.Get("apiKey"), "caller params must not be mutated")
}

func TestPostSendsForm(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/recipes/parseIngredients", r.URL.Path)
		require.Equal(t, "server-key", r.URL.Query().Get("apiKey"))
		require.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		form, err := url.ParseQuery(string(body))
		require.NoError(t, err)
		require.Equal(t, "1 cup flour\n2 eggs", form.Get("ingredientList"))
		require.Empty(t, form.Get("apiKey"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"name":"flour"}]`))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", "server-key")
	client.HTTPClient = server.Client()

	form := url.Values{"ingredientList": {"1 cup flour\n2 eggs"}, "apiKey": {"caller-key"}}
	resp, err := client.Post(context.Background(), PathParseIngredients, form)
	require.NoError(t, err)
	assert.Equal(t, `[{"name":"flour"}]`, string(resp.Body))
}

func TestNon2xxReturnsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"status":"failure","code":402,"message":"Your daily points limit has been reached."}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "server-key")
	client.HTTPClient = server.Client()

	_, err := client.Get(context.Background(), PathComplexSearch, nil)
	require.Error(t, err)

	var upstreamErr *Error
	require.ErrorAs(t, err, &upstreamErr)
	status, contentType, body := upstreamErr.RawResponse()
	assert.Equal(t, http.StatusPaymentRequired, status)
	assert.Equal(t, "application/json", contentType)
	assert.Contains(t, string(body), "daily points limit")
	assert.NotContains(t, err.Error(), "server-key")
}

func TestTimeoutIsReported(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(server.URL, "server-key")
	client.HTTPClient = server.Client()
	client.Timeout = 20 * time.Millisecond

	_, err := client.Get(context.Background(), PathComplexSearch, url.Values{"query": {"soup"}})
	require.Error(t, err)

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.True(t, transportErr.Timeout)
	assert.NotContains(t, err.Error(), "server-key")
	assert.NotContains(t, err.Error(), "apiKey")
}

func TestConnectionFailureIsRedacted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := server.URL
	server.Close()

	client := NewClient(addr, "server-key")
	_, err := client.Get(context.Background(), PathComplexSearch, nil)
	require.Error(t, err)

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.False(t, transportErr.Timeout)
	assert.False(t, strings.Contains(err.Error(), "server-key"))
	assert.False(t, errors.Is(err, context.DeadlineExceeded))
}

func TestOversizedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", MaxBodyBytes+1)))
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	client.HTTPClient = server.Client()

	_, err := client.Get(context.Background(), PathComplexSearch, nil)
	require.ErrorIs(t, err, ErrBodyTooLarge)
}
