package ashby

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyMethod indicates a call with no method name after normalization.
var ErrEmptyMethod = errors.New("ashby: empty method name")

// APIError is a failed upstream call: transport failure, non-2xx status, or
// a 200 whose body did not carry success=true. The parsed body is kept for
// diagnostics and the message is surfaced to callers verbatim.
type APIError struct {
	// Method is the normalized RPC method name.
	Method string

	// Status is the HTTP status. Defaults to 400 when the response carried
	// no usable status (e.g. envelope failure on a 200).
	Status int

	// Message is the best available upstream message, chosen in order:
	// errorInfo.message, joined errors[], message, raw body text, generic.
	Message string

	// Body is the parsed response body, if it was a JSON object.
	Body map[string]any

	// Raw is the raw response text, for bodies that did not parse.
	Raw string

	// Err is the underlying transport error, if any.
	Err error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("ashby %s: status %d: %s", e.Method, e.Status, e.Message)
}

// Unwrap returns the underlying transport error for errors.Is/As support.
func (e *APIError) Unwrap() error {
	return e.Err
}

// IsSyncTokenError reports whether err looks like an expired or invalid
// sync token rejection. The upstream has no structured code for this, so
// the match is a case-insensitive substring over message and body text.
func IsSyncTokenError(err error) bool {
	var api *APIError
	if !errors.As(err, &api) {
		return false
	}
	if containsSyncToken(api.Message) || containsSyncToken(api.Raw) {
		return true
	}
	for _, v := range api.Body {
		if s, ok := v.(string); ok && containsSyncToken(s) {
			return true
		}
	}
	return false
}

func containsSyncToken(s string) bool {
	return strings.Contains(strings.ToLower(s), "sync token")
}
