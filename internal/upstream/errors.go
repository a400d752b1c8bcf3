package upstream

import "fmt"

// Error is returned when the recipe API answers with a non-2xx status.
// The gateway relays it to the caller unchanged.
//
// Body is the upstream response body and never contains the API key.
type Error struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

func (e *Error) Error() string {
	if e == nil {
		return "upstream error"
	}
	return fmt.Sprintf("upstream request failed: status %d", e.StatusCode)
}

// RawResponse exposes the upstream reply for verbatim relay.
func (e *Error) RawResponse() (int, string, []byte) {
	return e.StatusCode, e.ContentType, e.Body
}

// TransportError is returned when no upstream reply was received.
// Err has the request URL removed.
type TransportError struct {
	Method  string
	Path    string
	Timeout bool
	Err     error
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("upstream %s %s timed out: %v", e.Method, e.Path, e.Err)
	}
	return fmt.Sprintf("upstream %s %s failed: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
