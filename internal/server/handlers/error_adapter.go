package handlers

import (
	"net/http"

	apperrors "github.com/3leaps/atsrelay/internal/errors"
)

// httpErrorResponder is the pluggable sink for handler errors. Tests swap it
// to observe errors without decoding envelopes.
var httpErrorResponder = defaultErrorResponder

func defaultErrorResponder(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}

// SetHTTPErrorResponder replaces the error responder. Passing nil restores
// the default.
func SetHTTPErrorResponder(fn func(w http.ResponseWriter, r *http.Request, err error)) {
	if fn == nil {
		httpErrorResponder = defaultErrorResponder
		return
	}
	httpErrorResponder = fn
}

// ResetHTTPErrorResponder restores the default error responder.
func ResetHTTPErrorResponder() {
	httpErrorResponder = defaultErrorResponder
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	httpErrorResponder(w, r, err)
}
