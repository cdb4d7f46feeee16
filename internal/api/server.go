// Package api exposes the HTTP interface for the crawl service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"smartcrawl/internal/crawler"
	"smartcrawl/internal/metrics"
	"smartcrawl/internal/runner"
)

// Orchestrator is the crawl entry point the server drives.
type Orchestrator interface {
	Crawl(ctx context.Context, jobID, url string) (crawler.ExtractionResult, error)
}

// Server wires HTTP handlers to the job store and the background runner.
type Server struct {
	router chi.Router
	store  crawler.JobStore
	runner *runner.Runner
	orch   Orchestrator
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(store crawler.JobStore, run *runner.Runner, orch Orchestrator, logger *zap.Logger) *Server {
	s := &Server{
		store:  store,
		runner: run,
		orch:   orch,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(corsMiddleware)

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Post("/crawl", s.submitCrawl)
	r.Get("/status/{job_id}", s.getStatus)

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type crawlRequest struct {
	URL string `json:"url"`
}

// submitCrawl validates the request, creates a pending job and launches the
// crawl in the background. The response returns the job ID immediately.
func (s *Server) submitCrawl(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	url := strings.TrimSpace(req.URL)
	if url == "" {
		s.writeError(w, http.StatusBadRequest, "URL is required")
		return
	}

	job, err := s.store.Create(r.Context())
	if err != nil {
		s.logger.Error("create job failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}
	metrics.ObserveJob(string(job.Status))

	s.runner.Launch(job.ID, func(ctx context.Context) {
		s.runJob(ctx, job.ID, url)
	})

	s.writeJSON(w, http.StatusOK, map[string]string{"jobId": job.ID})
}

// runJob executes one crawl on a background task. Failures are recorded on
// the job record and never re-raised: the submitter already has its
// response.
func (s *Server) runJob(ctx context.Context, jobID, url string) {
	if err := s.store.Transition(ctx, jobID, crawler.JobStatusCrawling, nil, ""); err != nil {
		s.logger.Error("job transition to crawling failed", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	metrics.ObserveJob(string(crawler.JobStatusCrawling))

	result, err := s.orch.Crawl(ctx, jobID, url)
	if err != nil {
		s.logger.Error("job failed", zap.String("job_id", jobID), zap.Error(err))
		if terr := s.store.Transition(ctx, jobID, crawler.JobStatusFailed, nil, err.Error()); terr != nil {
			s.logger.Error("job transition to failed errored", zap.String("job_id", jobID), zap.Error(terr))
		}
		metrics.ObserveJob(string(crawler.JobStatusFailed))
		return
	}

	if terr := s.store.Transition(ctx, jobID, crawler.JobStatusCompleted, &result, ""); terr != nil {
		s.logger.Error("job transition to completed errored", zap.String("job_id", jobID), zap.Error(terr))
		return
	}
	metrics.ObserveJob(string(crawler.JobStatusCompleted))
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.store.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, crawler.ErrJobNotFound) {
			s.writeError(w, http.StatusNotFound, "Job not found")
			return
		}
		s.logger.Error("job lookup failed", zap.String("job_id", jobID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "job lookup failed")
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)
		metrics.ObserveHTTPRequest(r.Method, routePattern(r), ww.status, elapsed)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", elapsed.Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware answers with a permissive CORS posture so a browser UI
// can poll from another origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

type requestIDKey struct{}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
