// internal/api/server.go
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wakeupmh/pdf-rag/internal/common/config"
	"github.com/wakeupmh/pdf-rag/internal/common/logger"
	"github.com/wakeupmh/pdf-rag/internal/common/validation"
	"github.com/wakeupmh/pdf-rag/internal/models"
)

const defaultMaxBodyBytes = 1 << 20

// Answerer is satisfied by the orchestrator.
type Answerer interface {
	Handle(ctx context.Context, q models.Query) models.Response
}

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

type Server struct {
	cfg        config.ServerConfig
	answerer   Answerer
	validator  *validation.Validator
	logger     logger.Logger
	checks     map[string]ReadinessCheck
	httpServer *http.Server
}

type Option func(*Server)

// WithReadinessCheck adds a dependency to /ready.
func WithReadinessCheck(name string, check ReadinessCheck) Option {
	return func(s *Server) { s.checks[name] = check }
}

func NewServer(cfg config.ServerConfig, answerer Answerer, log logger.Logger, opts ...Option) (*Server, error) {
	validator, err := validation.NewQueryRequestValidator()
	if err != nil {
		return nil, fmt.Errorf("build request validator: %w", err)
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}

	s := &Server{
		cfg:       cfg,
		answerer:  answerer,
		validator: validator,
		logger:    log.With(map[string]interface{}{"component": "api"}),
		checks:    make(map[string]ReadinessCheck),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.Handler(),
		ReadTimeout:  config.GetDuration(cfg.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.WriteTimeout),
	}
	return s, nil
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/docs", s.handleQuery)
	mux.HandleFunc("/query", s.handleQuery)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.Handle("/metrics", promhttp.Handler())

	return requestIDMiddleware(corsMiddleware(loggingMiddleware(s.logger)(mux)))
}

// ListenAndServe blocks until the server stops. http.ErrServerClosed is
// returned after Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("HTTP server listening", map[string]interface{}{"address": s.cfg.Address})
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failures := make(map[string]string)
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			failures[name] = err.Error()
		}
	}

	if len(failures) > 0 {
		s.logger.Warn("readiness check failed", map[string]interface{}{"failures": failures})
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":   "not_ready",
			"failures": failures,
			"time":     time.Now().Format(time.RFC3339),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
