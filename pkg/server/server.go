// Copyright 2026 © The Canvasrelay Authors
// SPDX-License-Identifier: Apache-2.0

// Package server exposes the agent turn and the peripheral proxy, weather,
// transcription and session endpoints over HTTP.
package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"

	"github.com/jllopis/canvasrelay/pkg/agent"
	"github.com/jllopis/canvasrelay/pkg/core"
	"github.com/jllopis/canvasrelay/pkg/errors"
	"github.com/jllopis/canvasrelay/pkg/session"
	"github.com/jllopis/canvasrelay/pkg/tools"
)

const (
	defaultMaxUploadBytes = 25 << 20
	defaultMaxBodyBytes   = 1 << 20
	shutdownTimeout       = 10 * time.Second
)

// Turner runs agent turns.
type Turner interface {
	Turn(ctx context.Context, req agent.TurnRequest) (*agent.TurnResponse, error)
}

// ToolRunner executes a single tool call outside of a turn.
type ToolRunner interface {
	Execute(ctx context.Context, call tools.Call) (tools.Result, error)
}

// Deps are the collaborators behind the endpoints. Only Agent is required;
// endpoints whose dependency is nil answer with a configuration error.
type Deps struct {
	Agent       Turner
	Tools       ToolRunner
	Geocoder    core.Geocoder
	Weather     core.WeatherNow
	Transcriber core.Transcriber
	Sessions    *session.Store
	Health      *core.HealthRegistry
	// MCP, when set, is served on /mcp.
	MCP http.Handler
}

// Server is the HTTP front of the relay.
type Server struct {
	deps           Deps
	staticFs       afero.Fs
	staticDir      string
	maxUploadBytes int64
	registry       *prometheus.Registry
	metrics        *httpMetrics
	logger         *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithStatic serves files under dir of fs on "/". An empty dir disables it.
func WithStatic(fs afero.Fs, dir string) Option {
	return func(s *Server) {
		s.staticFs = fs
		s.staticDir = dir
	}
}

// WithMaxUploadBytes bounds transcription uploads.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

// WithRegistry sets the Prometheus registry served on /metrics.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) { s.registry = reg }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a Server.
func New(deps Deps, opts ...Option) (*Server, error) {
	if deps.Agent == nil {
		return nil, errors.NewConfiguration("server.agent")
	}
	s := &Server{
		deps:           deps,
		maxUploadBytes: defaultMaxUploadBytes,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.deps.Health == nil {
		s.deps.Health = core.NewHealthRegistry()
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	m, err := newHTTPMetrics(s.registry)
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "failed to register http metrics", err)
	}
	s.metrics = m
	return s, nil
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.middleware)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	if s.deps.MCP != nil {
		r.Handle("/mcp", s.deps.MCP)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/agent", s.handleAgent)
		r.Get("/search", s.handleSearch)
		r.Post("/generate", s.handleGenerate)
		r.Post("/refine", s.handleRefine)
		r.Get("/weather", s.handleWeather)
		r.Get("/weather/history", s.handleWeatherHistory)
		r.Post("/transcribe", s.handleTranscribe)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleCreateSession)
			r.Get("/{id}", s.handleGetSession)
			r.Patch("/{id}", s.handleUpdateSession)
			r.Post("/{id}/commands", s.handleEnqueueCommand)
			r.Get("/{id}/commands", s.handleDrainCommands)
		})
	})

	if s.staticFs != nil && s.staticDir != "" {
		r.Handle("/*", http.FileServer(afero.NewHttpFs(s.staticFs).Dir(s.staticDir)))
	}
	return r
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server.listen", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("server.shutdown")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	results, status := s.deps.Health.CheckAll(r.Context())
	code := http.StatusOK
	if status == core.HealthUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"components": results,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	re := errors.AsRelayError(err)
	status := errors.StatusCode(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "server.request.error",
			slog.String("path", r.URL.Path),
			slog.String("code", string(re.Code)),
			slog.String("error", err.Error()),
		)
	}
	writeJSON(w, status, map[string]any{"error": re})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, defaultMaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New(errors.CodeInvalidInput, "invalid JSON body", err).
			WithRecoverable(false)
	}
	return nil
}
