package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cowave/cowave/pkg/store"
)

// Server ties the registry, handler, and HTTP listener together.
type Server struct {
	config     *Config
	registry   *Registry
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a relay server over the given store. The store's
// lifecycle remains with the caller.
func New(config *Config, st store.Store) *Server {
	config = config.withDefaults()
	logger := slog.Default().With("component", "server")

	metrics := NewMetrics(prometheus.DefaultRegisterer)
	registry := NewRegistry(st, logger.With("component", "registry"), metrics)
	handler := NewHandler(registry, config, logger, metrics)

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/*", handler)

	return &Server{
		config:   config,
		registry: registry,
		httpServer: &http.Server{
			Addr:    config.Addr,
			Handler: r,
		},
		logger: logger,
	}
}

// Registry exposes the room registry, mainly for tests and embedding.
func (s *Server) Registry() *Registry {
	return s.registry
}

// ListenAndServe runs the HTTP listener until Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("listening", "addr", s.config.Addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains the HTTP listener and stops every room actor.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	err := s.httpServer.Shutdown(ctx)
	s.registry.Close()
	return err
}
