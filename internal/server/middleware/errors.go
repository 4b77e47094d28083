package middleware

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	apperrors "github.com/3leaps/atsrelay/internal/errors"
	"github.com/3leaps/atsrelay/internal/observability"
)

// ErrorResponse is the envelope emitted for recovered panics; it is the
// shared error envelope, re-exported so middleware callers can decode it
// without importing the errors package.
type ErrorResponse = apperrors.HTTPErrorResponse

// Recovery converts handler panics into a 500 envelope instead of tearing
// down the connection. The panic value ends up in the message so operators
// can find it without digging through stack dumps.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			observability.ServerLogger.Error("handler panic recovered",
				zap.Any("panic", rec),
				zap.String("path", r.URL.Path),
				zap.String("request_id", GetRequestID(r.Context())))

			err, _ := rec.(error)
			app := apperrors.WrapInternal(r.Context(), err, fmt.Sprintf("panic: %v", rec))
			apperrors.RespondWithError(w, r, app)
		}()

		next.ServeHTTP(w, r)
	})
}

// ErrorHandler is Recovery under the name route setups expect.
func ErrorHandler(next http.Handler) http.Handler {
	return Recovery(next)
}
