// Package server exposes the assist pipelines over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/szaher/arassist/internal/assist"
	"github.com/szaher/arassist/internal/auth"
	"github.com/szaher/arassist/internal/speech"
	"github.com/szaher/arassist/internal/telemetry"
)

// Server is the arassist HTTP server.
type Server struct {
	mux         *http.ServeMux
	server      *http.Server
	logger      *slog.Logger
	metrics     *telemetry.Metrics
	assist      *assist.Pipeline
	followUp    *assist.FollowUp
	transcriber speech.Transcriber
	apiKey      string
	startTime   time.Time
}

// ServerOption configures the Server.
type ServerOption func(*Server)

// WithAPIKey sets the API key for bearer authentication.
func WithAPIKey(key string) ServerOption {
	return func(s *Server) { s.apiKey = key }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithMetrics sets the metrics collector and mounts /metrics.
func WithMetrics(m *telemetry.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithTranscriber enables voice follow-up questions on /v1/ask.
func WithTranscriber(t speech.Transcriber) ServerOption {
	return func(s *Server) { s.transcriber = t }
}

// NewServer creates the HTTP server around the two pipelines.
func NewServer(assistPipeline *assist.Pipeline, followUp *assist.FollowUp, opts ...ServerOption) *Server {
	s := &Server{
		assist:    assistPipeline,
		followUp:  followUp,
		logger:    slog.Default(),
		metrics:   telemetry.NewMetrics(),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("POST /v1/assist", s.handleAssist)
	mux.HandleFunc("POST /v1/ask", s.handleAsk)

	s.mux = mux
	return s
}

// Handler returns the HTTP handler for use with httptest or custom servers.
func (s *Server) Handler() http.Handler {
	middleware := auth.Middleware(s.apiKey, []string{"/healthz", "/metrics"})
	return s.withCorrelation(middleware(s.mux))
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	s.logger.Info("server starting", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// withCorrelation attaches a correlation ID to every request context,
// taken from X-Correlation-ID when the client supplies one.
func (s *Server) withCorrelation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := telemetry.WithCorrelationID(r.Context(), r.Header.Get("X-Correlation-ID"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"uptime": time.Since(s.startTime).String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error":   code,
		"message": message,
	})
}

// writePipelineError maps pipeline error codes onto HTTP statuses.
func writePipelineError(w http.ResponseWriter, err error) (status int) {
	var pipeErr *assist.Error
	if !errors.As(err, &pipeErr) {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return http.StatusInternalServerError
	}

	switch pipeErr.Code {
	case assist.CodeValidation:
		status = http.StatusBadRequest
	case assist.CodeSessionNotFound:
		status = http.StatusNotFound
	case assist.CodeProvider:
		status = http.StatusBadGateway
	default:
		status = http.StatusInternalServerError
	}
	writeError(w, status, string(pipeErr.Code), pipeErr.Message)
	return status
}
