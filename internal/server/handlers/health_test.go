package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/3leaps/atsrelay/internal/errors"
)

type stubChecker struct {
	err error
}

func (s stubChecker) CheckHealth(ctx context.Context) error {
	return s.err
}

func TestHealthManager_AllHealthy(t *testing.T) {
	m := NewHealthManager("1.2.3")
	m.RegisterChecker("ashby", stubChecker{})
	m.RegisterChecker("index", stubChecker{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	m.HealthHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "1.2.3", body.Version)
	assert.Equal(t, "healthy", body.Checks["ashby"])
	assert.Equal(t, "healthy", body.Checks["index"])
}

func TestHealthManager_UnhealthyCheckReturnsEnvelope(t *testing.T) {
	m := NewHealthManager("1.2.3")
	m.RegisterChecker("ashby", stubChecker{err: errors.New("connection refused")})
	m.RegisterChecker("index", stubChecker{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	m.HealthHandler(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "SERVICE_UNAVAILABLE", body.Error.Code)

	checks, ok := body.Error.Details["checks"].(map[string]any)
	require.True(t, ok, "details.checks should be an object")
	assert.Equal(t, "unhealthy", checks["ashby"])
	assert.Equal(t, "healthy", checks["index"])
}

func TestHealthManager_NoCheckersIsHealthy(t *testing.T) {
	m := NewHealthManager("dev")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	m.HealthHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthManager_LivenessIgnoresCheckers(t *testing.T) {
	m := NewHealthManager("dev")
	m.RegisterChecker("ashby", stubChecker{err: errors.New("down")})

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	m.LivenessHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Empty(t, body.Checks)
}

func TestDetermineOverallStatus(t *testing.T) {
	m := NewHealthManager("dev")

	tests := []struct {
		name   string
		checks map[string]string
		want   string
	}{
		{"empty", map[string]string{}, "healthy"},
		{"all healthy", map[string]string{"a": "healthy", "b": "healthy"}, "healthy"},
		{"timeout degrades", map[string]string{"a": "healthy", "b": "timeout"}, "degraded"},
		{"unhealthy wins", map[string]string{"a": "timeout", "b": "unhealthy"}, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.determineOverallStatus(tt.checks))
		})
	}
}

func TestRunChecks_TimeoutStatus(t *testing.T) {
	m := NewHealthManager("dev")
	m.RegisterChecker("slow", stubChecker{err: context.DeadlineExceeded})

	checks := m.runChecks(context.Background())
	assert.Equal(t, "timeout", checks["slow"])
}

func TestGlobalHealthManager(t *testing.T) {
	original := globalHealthManager
	t.Cleanup(func() { globalHealthManager = original })

	globalHealthManager = nil
	assert.Nil(t, GetHealthManager())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	HealthHandler(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	m := InitHealthManager("9.9.9")
	require.NotNil(t, m)
	assert.Same(t, m, GetHealthManager())

	rec = httptest.NewRecorder()
	HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	StartupHandler(rec, httptest.NewRequest(http.MethodGet, "/health/startup", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
