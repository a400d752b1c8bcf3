package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the recipe API root.
	DefaultBaseURL = "https://api.spoonacular.com/"

	// PathComplexSearch is the recipe search endpoint.
	PathComplexSearch = "recipes/complexSearch"
	// PathParseIngredients is the ingredient parsing endpoint.
	PathParseIngredients = "recipes/parseIngredients"

	// CredentialParam is the query parameter carrying the API key.
	CredentialParam = "apiKey"

	DefaultTimeout = 10 * time.Second

	// MaxBodyBytes caps how much of an upstream body is buffered.
	MaxBodyBytes = 10 << 20
)

// ErrBodyTooLarge is returned when the upstream body exceeds MaxBodyBytes.
var ErrBodyTooLarge = errors.New("upstream response body too large")

// Client performs authenticated calls to the recipe API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
	UserAgent  string
}

// Response is a successful upstream reply.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// NewClient returns a client with defaults applied.
func NewClient(baseURL, apiKey string) *Client {
	base := strings.TrimSpace(baseURL)
	if base == "" {
		base = DefaultBaseURL
	}

	return &Client{
		BaseURL: base,
		APIKey:  strings.TrimSpace(apiKey),
		Timeout: DefaultTimeout,
	}
}

// HasCredential reports whether an API key is configured.
func (c *Client) HasCredential() bool {
	return c != nil && c.APIKey != ""
}

// Get issues a GET to path with params as the query string.
func (c *Client) Get(ctx context.Context, path string, params url.Values) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, params, nil)
}

// Post issues a form-encoded POST to path.
func (c *Client) Post(ctx context.Context, path string, form url.Values) (*Response, error) {
	if form == nil {
		form = url.Values{}
	}
	return c.do(ctx, http.MethodPost, path, nil, form)
}

func (c *Client) do(ctx context.Context, method, path string, query, form url.Values) (*Response, error) {
	if c == nil {
		return nil, fmt.Errorf("upstream client not configured")
	}

	endpoint, err := c.endpoint(path, query)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, c.Timeout)
	if cancel != nil {
		defer cancel()
	}

	var body io.Reader
	if form != nil {
		payload := cloneValues(form)
		payload.Del(CredentialParam)
		body = strings.NewReader(payload.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", c.redact(err))
	}
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, c.transportError(method, path, err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes+1))
	if err != nil {
		return nil, c.transportError(method, path, err)
	}
	if len(data) > MaxBodyBytes {
		return nil, &TransportError{Method: method, Path: path, Err: ErrBodyTooLarge}
	}

	contentType := resp.Header.Get("Content-Type")
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &Error{StatusCode: resp.StatusCode, ContentType: contentType, Body: data}
	}

	return &Response{StatusCode: resp.StatusCode, ContentType: contentType, Body: data}, nil
}

// endpoint joins the base URL and path and sets the credential, replacing any
// apiKey the caller supplied.
func (c *Client) endpoint(path string, query url.Values) (string, error) {
	base, err := url.Parse(strings.TrimRight(c.BaseURL, "/") + "/")
	if err != nil {
		return "", fmt.Errorf("invalid upstream base url: %w", err)
	}
	ref, err := url.Parse(strings.TrimLeft(path, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid upstream path %q: %w", path, err)
	}

	u := base.ResolveReference(ref)
	values := cloneValues(query)
	values.Set(CredentialParam, c.APIKey)
	u.RawQuery = values.Encode()
	return u.String(), nil
}

func (c *Client) transportError(method, path string, err error) error {
	timeout := errors.Is(err, context.DeadlineExceeded)
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		timeout = timeout || urlErr.Timeout()
	}
	return &TransportError{Method: method, Path: path, Timeout: timeout, Err: c.redact(err)}
}

// redact strips the request URL (which carries the credential) from err.
func (c *Client) redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	if c.APIKey != "" && strings.Contains(err.Error(), c.APIKey) {
		return errors.New(strings.ReplaceAll(err.Error(), c.APIKey, "REDACTED"))
	}
	return err
}

func cloneValues(values url.Values) url.Values {
	out := make(url.Values, len(values))
	for key, vals := range values {
		out[key] = append([]string(nil), vals...)
	}
	return out
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, nil
	}
	return context.WithTimeout(ctx, timeout)
}
