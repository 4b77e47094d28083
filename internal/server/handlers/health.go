// Package handlers implements the relay's HTTP endpoints: health probes,
// version, and the resolve/upload/index API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	apperrors "github.com/3leaps/atsrelay/internal/errors"
)

// checkTimeout bounds each individual health check.
const checkTimeout = 5 * time.Second

// HealthChecker is one named dependency probe.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// HealthResponse is the healthy-path response body.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthManager runs registered checkers and aggregates their status.
type HealthManager struct {
	version string

	mu       sync.RWMutex
	checkers map[string]HealthChecker
}

// NewHealthManager creates a manager reporting the given version.
func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		version:  version,
		checkers: make(map[string]HealthChecker),
	}
}

// RegisterChecker adds a named checker. Re-registering a name replaces it.
func (m *HealthManager) RegisterChecker(name string, c HealthChecker) {
	m.mu.Lock()
	m.checkers[name] = c
	m.mu.Unlock()
}

// runChecks evaluates every checker with a per-check timeout.
func (m *HealthManager) runChecks(ctx context.Context) map[string]string {
	m.mu.RLock()
	checkers := make(map[string]HealthChecker, len(m.checkers))
	for name, c := range m.checkers {
		checkers[name] = c
	}
	m.mu.RUnlock()

	results := make(map[string]string, len(checkers))
	for name, c := range checkers {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.CheckHealth(checkCtx)
		cancel()

		switch {
		case err == nil:
			results[name] = "healthy"
		case errors.Is(err, context.DeadlineExceeded):
			results[name] = "timeout"
		default:
			results[name] = "unhealthy"
		}
	}
	return results
}

// determineOverallStatus folds per-check statuses: any unhealthy check makes
// the whole service unhealthy; timeouts alone only degrade it.
func (m *HealthManager) determineOverallStatus(checks map[string]string) string {
	status := "healthy"
	for _, s := range checks {
		switch s {
		case "unhealthy":
			return "unhealthy"
		case "timeout":
			status = "degraded"
		}
	}
	return status
}

// HealthHandler runs all checks and reports aggregate health. Unhealthy
// results use the standard error envelope with per-check detail.
func (m *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	checks := m.runChecks(r.Context())
	status := m.determineOverallStatus(checks)

	if status == "unhealthy" {
		err := apperrors.NewExternalServiceError("one or more health checks failed").
			WithDetail("checks", checks)
		respondWithError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    status,
		Version:   m.version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	})
}

// LivenessHandler reports process liveness only; it never runs checkers.
func (m *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Version:   m.version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// ReadinessHandler is the full check set under the readiness probe path.
func (m *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	m.HealthHandler(w, r)
}

// StartupHandler mirrors readiness for startup probes.
func (m *HealthManager) StartupHandler(w http.ResponseWriter, r *http.Request) {
	m.HealthHandler(w, r)
}

// globalHealthManager backs the package-level handler functions the router
// binds before any manager exists.
var globalHealthManager *HealthManager

// InitHealthManager installs the global manager.
func InitHealthManager(version string) *HealthManager {
	globalHealthManager = NewHealthManager(version)
	return globalHealthManager
}

// GetHealthManager returns the global manager, or nil before init.
func GetHealthManager() *HealthManager {
	return globalHealthManager
}

// HealthHandler is the global-manager health endpoint.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	if globalHealthManager == nil {
		respondWithError(w, r, apperrors.NewExternalServiceError("health manager not initialized"))
		return
	}
	globalHealthManager.HealthHandler(w, r)
}

// LivenessHandler is the global-manager liveness endpoint.
func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	if globalHealthManager == nil {
		respondWithError(w, r, apperrors.NewExternalServiceError("health manager not initialized"))
		return
	}
	globalHealthManager.LivenessHandler(w, r)
}

// ReadinessHandler is the global-manager readiness endpoint.
func ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if globalHealthManager == nil {
		respondWithError(w, r, apperrors.NewExternalServiceError("health manager not initialized"))
		return
	}
	globalHealthManager.ReadinessHandler(w, r)
}

// StartupHandler is the global-manager startup endpoint.
func StartupHandler(w http.ResponseWriter, r *http.Request) {
	if globalHealthManager == nil {
		respondWithError(w, r, apperrors.NewExternalServiceError("health manager not initialized"))
		return
	}
	globalHealthManager.StartupHandler(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
