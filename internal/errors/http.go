package errors

import (
	"encoding/json"
	"net/http"
)

// RequestIDHeader is the inbound/outbound correlation header.
const RequestIDHeader = "X-Request-ID"

// HTTPErrorResponse is the JSON envelope for all error responses.
type HTTPErrorResponse struct {
	Error HTTPErrorBody `json:"error"`
}

// HTTPErrorBody carries the code, message, and request correlation data.
type HTTPErrorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// RespondWithError writes err as the standard envelope. The request id is
// taken from the request header (the RequestID middleware sets it).
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	app := AsAppError(err)

	resp := HTTPErrorResponse{
		Error: HTTPErrorBody{
			Code:    app.Code,
			Message: app.Message,
			Details: app.Details,
		},
	}
	if r != nil {
		resp.Error.RequestID = r.Header.Get(RequestIDHeader)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(app.Status)
	_ = json.NewEncoder(w).Encode(resp)
}
