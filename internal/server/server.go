// Package server assembles the relay's HTTP surface: health and version
// endpoints plus the resolve/upload/index API when one is wired in.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/3leaps/atsrelay/internal/errors"
	"github.com/3leaps/atsrelay/internal/server/handlers"
	"github.com/3leaps/atsrelay/internal/server/middleware"
)

// Timeouts configures the underlying http.Server.
type Timeouts struct {
	Read     time.Duration
	Write    time.Duration
	Idle     time.Duration
	Shutdown time.Duration
}

// Server is the relay HTTP server.
type Server struct {
	host     string
	port     int
	timeouts Timeouts
	api      *handlers.API
	router   chi.Router
}

// Option customizes a Server.
type Option func(*Server)

// WithAPI mounts the resolve/upload/index endpoints under /api/v1.
func WithAPI(api *handlers.API) Option {
	return func(s *Server) { s.api = api }
}

// WithTimeouts sets the http.Server timeouts.
func WithTimeouts(t Timeouts) Option {
	return func(s *Server) { s.timeouts = t }
}

// New creates a server bound to host:port. With no options only the health
// and version endpoints are served.
func New(host string, port int, opts ...Option) *Server {
	s := &Server{
		host: host,
		port: port,
		timeouts: Timeouts{
			Read:     30 * time.Second,
			Write:    30 * time.Second,
			Idle:     120 * time.Second,
			Shutdown: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.buildRouter()
	return s
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// Handler returns the assembled router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the host:port bind address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.host, s.port)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		apperrors.RespondWithError(w, req, apperrors.NewNotFoundError("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		apperrors.RespondWithError(w, req, &apperrors.AppError{
			Code:    apperrors.CodeMethodNotAllowed,
			Status:  http.StatusMethodNotAllowed,
			Message: "method not allowed for this route",
		})
	})

	r.Get("/health", handlers.HealthHandler)
	r.Get("/health/live", handlers.LivenessHandler)
	r.Get("/health/ready", handlers.ReadinessHandler)
	r.Get("/health/startup", handlers.StartupHandler)
	r.Get("/version", handlers.VersionHandler)

	if s.api != nil {
		r.Route("/api/v1", func(r chi.Router) {
			r.Post("/resolve", s.api.Resolve)
			r.Post("/upload", s.api.Upload)
			r.Get("/index/stats", s.api.IndexStats)
			r.Post("/index/refresh", s.api.IndexRefresh)
		})
	}

	return r
}

// Run serves until ctx is canceled, then shuts down gracefully within the
// configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:         s.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.timeouts.Read,
		WriteTimeout: s.timeouts.Write,
		IdleTimeout:  s.timeouts.Idle,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.timeouts.Shutdown)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
