package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cwbudde/adaptivexp/internal/pareto"
	"github.com/cwbudde/adaptivexp/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options tunes the HTTP surface.
type Options struct {
	AllowedOrigins []string
	RateLimit      float64 // requests per second per client, <= 0 disables
	RateBurst      int

	// Registry receives the server's metrics. A fresh registry is used when nil.
	Registry *prometheus.Registry
}

// Server represents the HTTP server
type Server struct {
	store       *store.Store
	pareto      *pareto.Engine
	broadcaster *EventBroadcaster
	metrics     *metrics
	registry    *prometheus.Registry
	opts        Options
	addr        string
	server      *http.Server
}

// NewServer creates a new HTTP server around an existing store.
func NewServer(addr string, st *store.Store, opts Options) *Server {
	registry := opts.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	return &Server{
		store:       st,
		pareto:      pareto.NewEngine(st),
		broadcaster: NewEventBroadcaster(),
		metrics:     newMetrics(registry),
		registry:    registry,
		opts:        opts,
		addr:        addr,
	}
}

// Handler returns the routed and wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// UI and operational routes
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	// API routes
	mux.HandleFunc("POST /api/experiments", s.handleCreateExperiment)
	mux.HandleFunc("GET /api/experiments", s.handleListExperiments)
	mux.HandleFunc("GET /api/experiments/{id}", s.handleGetExperiment)
	mux.HandleFunc("DELETE /api/experiments/{id}", s.handleDeleteExperiment)
	mux.HandleFunc("GET /api/experiments/{id}/next_trial", s.handleNextTrial)
	mux.HandleFunc("POST /api/experiments/{id}/complete_trial", s.handleCompleteTrial)
	mux.HandleFunc("GET /api/experiments/{id}/pareto_front", s.handleParetoFront)
	mux.HandleFunc("GET /api/experiments/{id}/events", s.handleEvents)

	var handler http.Handler = mux
	if s.opts.RateLimit > 0 {
		handler = newRateLimiter(s.opts.RateLimit, s.opts.RateBurst).middleware(handler)
	}
	return s.loggingMiddleware(s.corsMiddleware(handler))
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	slog.Info("Starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server")
	s.broadcaster.Close()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
