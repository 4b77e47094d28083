// Package errors defines the typed application errors shared by the CLI and
// the relay server, plus the HTTP error envelope emitted to callers.
//
// Every user-visible failure carries a stable machine-readable code. The
// envelope shape is part of the relay's contract with its browser-side
// callers and must stay additive.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Stable error codes.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeWriteBlocked       = "WRITE_BLOCKED"
	CodeUpstream           = "UPSTREAM_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeInternal           = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// AppError is an error with a stable code, an HTTP status, and optional
// structured details for the envelope.
type AppError struct {
	Code    string
	Status  int
	Message string
	Details map[string]any
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail returns e with an extra detail attached.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

// NewValidationError reports bad caller input. Never retried.
func NewValidationError(message string) *AppError {
	return &AppError{Code: CodeValidation, Status: http.StatusBadRequest, Message: message}
}

// NewWriteBlockedError reports a write-safety gate block with its reason.
func NewWriteBlockedError(message, reason string) *AppError {
	e := &AppError{Code: CodeWriteBlocked, Status: http.StatusForbidden, Message: message}
	return e.WithDetail("reason", reason)
}

// NewUpstreamError surfaces an upstream API failure with its status intact.
func NewUpstreamError(status int, message string, err error) *AppError {
	if status == 0 {
		status = http.StatusBadGateway
	}
	return &AppError{Code: CodeUpstream, Status: status, Message: message, Err: err}
}

// NewNotFoundError reports a missing resource or route.
func NewNotFoundError(message string) *AppError {
	return &AppError{Code: CodeNotFound, Status: http.StatusNotFound, Message: message}
}

// NewExternalServiceError reports an unreachable external dependency.
func NewExternalServiceError(message string) *AppError {
	return &AppError{Code: CodeServiceUnavailable, Status: http.StatusServiceUnavailable, Message: message}
}

// WrapInternal wraps an unexpected failure. The context is accepted so call
// sites can thread request-scoped metadata in without reshaping later.
func WrapInternal(ctx context.Context, err error, message string) *AppError {
	_ = ctx
	return &AppError{Code: CodeInternal, Status: http.StatusInternalServerError, Message: message, Err: err}
}

// AsAppError extracts an *AppError from err, or wraps err as INTERNAL_ERROR.
func AsAppError(err error) *AppError {
	var app *AppError
	if errors.As(err, &app) {
		return app
	}
	return &AppError{Code: CodeInternal, Status: http.StatusInternalServerError, Message: err.Error(), Err: err}
}
