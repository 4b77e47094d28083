// Package middleware provides the HTTP middleware shared by all relay
// routes: request correlation and panic recovery.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	apperrors "github.com/3leaps/atsrelay/internal/errors"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// RequestID ensures every request carries a correlation id: inbound ids are
// honored, missing ones are generated. The id is echoed on the response and
// stored both on the request header (for the error envelope) and in the
// context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(apperrors.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(apperrors.RequestIDHeader, id)
		}
		w.Header().Set(apperrors.RequestIDHeader, id)

		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the correlation id stored by RequestID, or "".
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
