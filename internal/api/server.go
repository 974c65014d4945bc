package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/orca-mail/orca/internal/config"
	"github.com/orca-mail/orca/internal/dispatch"
	"github.com/orca-mail/orca/internal/job"
	"github.com/orca-mail/orca/internal/metrics"
	"github.com/orca-mail/orca/internal/registry"
)

// Server is the HTTP API server
type Server struct {
	router      *chi.Mux
	httpServer  *http.Server
	store       *job.Store
	registry    *registry.Registry
	senders     dispatch.SenderFactory
	metrics     *metrics.Metrics
	config      *config.Config
	logger      *slog.Logger
	startTime   time.Time
	workerProbe func() bool
}

// NewServer creates a new API server
func NewServer(store *job.Store, reg *registry.Registry, senders dispatch.SenderFactory, m *metrics.Metrics, cfg *config.Config, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		store:     store,
		registry:  reg,
		senders:   senders,
		metrics:   m,
		config:    cfg,
		logger:    logger.With("component", "api"),
		startTime: time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(chimiddleware.Recoverer)
	if s.metrics != nil {
		s.router.Use(s.metrics.HTTPMiddleware)
	}

	// Health check and metrics scrape (no auth required)
	s.router.Get("/api/health", s.handleHealth)
	if s.metrics != nil && s.config.Metrics.Enabled {
		s.router.Method(http.MethodGet, s.config.Metrics.Path, s.metrics.Handler())
	}

	// Authenticated routes
	s.router.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/api/send-email", s.handleSendEmail)
		r.Post("/api/send-email-background", s.handleSendBackground)

		r.Get("/api/email-jobs", s.handleListJobs)
		r.Get("/api/email-jobs/{id}", s.handleGetJob)
		r.Post("/api/email-jobs/{id}/pause", s.handlePauseJob)
		r.Post("/api/email-jobs/{id}/resume", s.handleResumeJob)

		r.Get("/api/user/servers", s.handleUserServers)
		r.Get("/api/server-info", s.handleServerInfo)
		r.Get("/api/worker/health", s.handleWorkerHealth)
	})
}

// Router returns the configured handler, for tests and embedding
func (s *Server) Router() http.Handler {
	return s.router
}

// SetWorkerProbe installs the liveness check backing the worker
// health endpoint
func (s *Server) SetWorkerProbe(probe func() bool) {
	s.workerProbe = probe
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:           s.config.Server.ListenAddr,
		Handler:        s.router,
		MaxHeaderBytes: s.config.Server.MaxHeaderBytes,
		ReadTimeout:    s.config.Server.ReadTimeout,
		WriteTimeout:   s.config.Server.WriteTimeout,
		IdleTimeout:    s.config.Server.IdleTimeout,
	}

	s.logger.Info("starting HTTP API server", "addr", s.config.Server.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
