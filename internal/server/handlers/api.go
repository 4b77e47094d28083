package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/3leaps/atsrelay/internal/errors"
	"github.com/3leaps/atsrelay/pkg/ashby"
	"github.com/3leaps/atsrelay/pkg/candidex"
	"github.com/3leaps/atsrelay/pkg/resolve"
	"github.com/3leaps/atsrelay/pkg/upload"
	"github.com/3leaps/atsrelay/pkg/writegate"
)

// API bundles the relay endpoints over the core components.
type API struct {
	Resolver  *resolve.Resolver
	Uploader  *upload.Orchestrator
	Scheduler *candidex.Scheduler
	Log       *zap.Logger
}

// NewAPI creates the endpoint set.
func NewAPI(resolver *resolve.Resolver, uploader *upload.Orchestrator, scheduler *candidex.Scheduler, log *zap.Logger) *API {
	if log == nil {
		log = zap.NewNop()
	}
	return &API{Resolver: resolver, Uploader: uploader, Scheduler: scheduler, Log: log}
}

// audit builds the write-audit context for one request, honoring the
// correlation id the middleware assigned.
func audit(r *http.Request, route string) ashby.AuditContext {
	a := ashby.NewAudit(route)
	if id := r.Header.Get(apperrors.RequestIDHeader); id != "" {
		a.RequestID = id
	}
	return a
}

// resolveRequest is the /api/v1/resolve body.
type resolveRequest struct {
	LinkedInURL    string `json:"linkedInUrl,omitempty"`
	LinkedInHandle string `json:"linkedInHandle,omitempty"`
	ProfileName    string `json:"profileName,omitempty"`
	ForceRefresh   bool   `json:"forceRefresh,omitempty"`
}

// Resolve handles POST /api/v1/resolve.
func (a *API) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, r, apperrors.NewValidationError("invalid JSON request body"))
		return
	}

	result, err := a.Resolver.ByLinkedIn(r.Context(), resolve.Query{
		LinkedInURL:    req.LinkedInURL,
		LinkedInHandle: req.LinkedInHandle,
		ProfileName:    req.ProfileName,
	}, audit(r, "/api/v1/resolve"), resolve.Options{ForceRefresh: req.ForceRefresh})
	if err != nil {
		respondWithError(w, r, translateCoreError(err))
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Upload handles POST /api/v1/upload.
func (a *API) Upload(w http.ResponseWriter, r *http.Request) {
	var req upload.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, r, apperrors.NewValidationError("invalid JSON request body"))
		return
	}

	result, err := a.Uploader.Run(r.Context(), req, audit(r, "/api/v1/upload"))
	if err != nil {
		respondWithError(w, r, translateCoreError(err))
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// IndexStats handles GET /api/v1/index/stats.
func (a *API) IndexStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Scheduler.Store().Metadata(time.Now()))
}

// refreshRequest is the /api/v1/index/refresh body. An empty body means an
// incremental refresh.
type refreshRequest struct {
	ForceFull bool `json:"forceFull,omitempty"`
}

// IndexRefresh handles POST /api/v1/index/refresh. The call blocks until the
// refresh (or the one already in flight) completes.
func (a *API) IndexRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if r.Body != nil {
		// Body is optional; decode errors on an empty body are fine.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	au := audit(r, "/api/v1/index/refresh")
	if _, err := a.Scheduler.Refresh(r.Context(), au, req.ForceFull); err != nil {
		respondWithError(w, r, translateCoreError(err))
		return
	}

	writeJSON(w, http.StatusOK, a.Scheduler.Store().Metadata(time.Now()))
}

// translateCoreError maps core-domain errors onto the HTTP error taxonomy:
// gate blocks become WRITE_BLOCKED, upstream API errors keep their status
// and message, and anything already typed passes through.
func translateCoreError(err error) error {
	var block *writegate.BlockError
	if errors.As(err, &block) {
		return apperrors.NewWriteBlockedError(block.Error(), string(block.Reason))
	}

	var apiErr *ashby.APIError
	if errors.As(err, &apiErr) {
		return apperrors.NewUpstreamError(apiErr.Status, apiErr.Message, apiErr).
			WithDetail("method", apiErr.Method)
	}

	return err
}
