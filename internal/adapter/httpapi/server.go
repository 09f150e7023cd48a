// Package httpapi exposes the analysis engine over HTTP: the v1 API plus
// health, readiness, and metrics endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agrosight/agrosight/internal/domain"
	"github.com/agrosight/agrosight/internal/orchestrator"
	"github.com/agrosight/agrosight/internal/store"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Engine is the orchestrator surface the API depends on.
type Engine interface {
	Run(ctx context.Context, req orchestrator.Request) (orchestrator.Result, error)
	Summarize(ctx context.Context, req orchestrator.SummaryRequest) (orchestrator.Summary, error)
}

// Server exposes the v1 analysis API with health, readiness, and metrics routes.
type Server struct {
	httpServer *http.Server
	engine     Engine
	fields     store.PolygonStore
	logger     *slog.Logger
	validate   *validator.Validate
}

// NewServer creates the HTTP server and its routes.
func NewServer(addr string, engine Engine, fields store.PolygonStore, ready ReadinessChecker, logger *slog.Logger) *Server {
	s := &Server{
		engine:   engine,
		fields:   fields,
		logger:   logger,
		validate: validator.New(),
	}

	r := chi.NewRouter()
	r.Use(s.requestID)

	r.Route("/v1", func(v1 chi.Router) {
		v1.Post("/analysis", s.handleAnalysis)
		v1.Post("/summary", s.handleSummary)
		v1.Get("/fields", s.handleListFields)
		v1.Get("/fields/{id}", s.handleGetField)
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", handleReady(ready))
	r.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// requestID assigns a correlation ID to every request and echoes it back.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.engine.Run(r.Context(), req)
	if err != nil {
		s.writeRunError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.SummaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	res, err := s.engine.Summarize(r.Context(), req)
	if err != nil {
		s.writeRunError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListFields(w http.ResponseWriter, r *http.Request) {
	fields, err := s.fields.List()
	if err != nil {
		s.logger.Error("list fields failed", "error", err)
		writeError(w, http.StatusInternalServerError, "field registry unavailable")
		return
	}
	writeJSON(w, http.StatusOK, fields)
}

func (s *Server) handleGetField(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := s.fields.Load(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "field not found: "+id)
			return
		}
		s.logger.Error("load field failed", "field_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "field registry unavailable")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// writeRunError maps engine validation failures to client error codes.
func (s *Server) writeRunError(w http.ResponseWriter, r *http.Request, err error) {
	var geomErr *domain.GeometryError
	var modelErr *domain.ModelError
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &geomErr), errors.As(err, &modelErr):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
	s.logger.Warn("analysis rejected", "path", r.URL.Path, "error", err)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response write
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
