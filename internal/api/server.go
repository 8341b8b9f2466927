// Package api exposes the CopyPitch HTTP API.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rcdvgn/copypitch/internal/auth"
	"github.com/rcdvgn/copypitch/internal/billing"
	"github.com/rcdvgn/copypitch/internal/config"
	"github.com/rcdvgn/copypitch/internal/metrics"
	"github.com/rcdvgn/copypitch/internal/store"
	"github.com/rcdvgn/copypitch/internal/usage"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	store      *store.Store
	usage      *usage.Checker
	tokens     *auth.Tokens
	billing    *billing.Handler
	metrics    *metrics.Metrics
	config     *config.Config
	logger     *slog.Logger
	startTime  time.Time
}

// NewServer creates a new API server
func NewServer(st *store.Store, checker *usage.Checker, tokens *auth.Tokens, bh *billing.Handler, m *metrics.Metrics, cfg *config.Config, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		store:     st,
		usage:     checker,
		tokens:    tokens,
		billing:   bh,
		metrics:   m,
		config:    cfg,
		logger:    logger,
		startTime: time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)
	if s.metrics != nil {
		s.router.Use(metrics.HTTPMiddleware)
	}

	// Health check (no auth required)
	s.router.Get("/healthz", s.handleHealth)

	if s.metrics != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(
			s.metrics.Registry(),
			promhttp.HandlerOpts{EnableOpenMetrics: true},
		))
	}

	// Account endpoints (no auth required)
	s.router.Post("/auth/register", s.handleRegister)
	s.router.Post("/auth/login", s.handleLogin)

	// Billing webhook, authenticated by signature
	s.router.Post("/webhooks/billing", s.handleBillingWebhook)

	// API v1 routes (auth required)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/me", s.handleMe)

		r.Get("/templates", s.handleListTemplates)
		r.Post("/templates", s.handleCreateTemplate)
		r.Route("/templates/{templateID}", func(r chi.Router) {
			r.Get("/", s.handleGetTemplate)
			r.Delete("/", s.handleDeleteTemplate)
			r.Get("/variables", s.handleGetVariables)
			r.Put("/variables", s.handlePutVariables)
			r.Get("/variants", s.handleListVariants)
			r.Post("/variants", s.handleCreateVariant)
			r.Post("/variants/{variantID}/default", s.handleSetDefaultVariant)
			r.Post("/render", s.handleRender)
		})
		r.Put("/variants/{variantID}/content", s.handleUpdateVariantContent)
	})
}

// Router returns the configured handler, used by tests.
func (s *Server) Router() http.Handler {
	return s.router
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
