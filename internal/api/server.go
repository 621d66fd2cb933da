// Package api exposes the HTTP interface for the contact crawler service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leadharvest/contactcrawler/internal/config"
	"github.com/leadharvest/contactcrawler/internal/metrics"
	"github.com/leadharvest/contactcrawler/internal/parsing"
	"github.com/leadharvest/contactcrawler/internal/task"
)

// Server wires HTTP handlers to the task service.
type Server struct {
	router chi.Router
	tasks  *task.Service
	logger *zap.Logger
	cfg    config.Config
}

const defaultListLimit = 50

// NewServer constructs a Server with middleware and routes.
func NewServer(tasks *task.Service, cfg config.Config, logger *zap.Logger) *Server {
	s := &Server{
		tasks:  tasks,
		logger: logger,
		cfg:    cfg,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Route("/tasks", func(r chi.Router) {
			r.Post("/single", s.createSingleSiteTask)
			r.Post("/batch", s.createBatchTask)
			r.Get("/", s.listTasks)
			r.Route("/{task_id}", func(r chi.Router) {
				r.Get("/", s.getTask)
				r.Get("/sites", s.getTaskSites)
				r.Delete("/", s.deleteTask)
			})
		})
	})

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

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type singleTaskRequest struct {
	URL         string `json:"url"`
	SkipSitemap bool   `json:"skip_sitemap"`
	UseAI       bool   `json:"use_ai_validation"`
}

type batchTaskRequest struct {
	Query       string `json:"query"`
	NumResults  int    `json:"num_results"`
	SkipSitemap bool   `json:"skip_sitemap"`
	UseAI       bool   `json:"use_ai_validation"`
}

func (s *Server) createSingleSiteTask(w http.ResponseWriter, r *http.Request) {
	var req singleTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.URL == "" {
		s.writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	created, err := s.tasks.CreateSingleSiteTask(r.Context(), parsing.SingleSiteParams{
		URL:         req.URL,
		SkipSitemap: req.SkipSitemap,
		UseAI:       req.UseAI,
	})
	if err != nil {
		s.writeError(w, createStatus(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, created)
}

func (s *Server) createBatchTask(w http.ResponseWriter, r *http.Request) {
	var req batchTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Query == "" {
		s.writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	created, err := s.tasks.CreateBatchTask(r.Context(), parsing.BatchParams{
		Query:       req.Query,
		NumResults:  req.NumResults,
		SkipSitemap: req.SkipSitemap,
		UseAI:       req.UseAI,
	})
	if err != nil {
		s.writeError(w, createStatus(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, created)
}

// createStatus distinguishes caller mistakes from infrastructure faults.
// Validation in the task service happens before any store or queue call,
// so only persist/enqueue wrap errors indicate a server-side problem.
func createStatus(err error) int {
	msg := err.Error()
	for _, prefix := range []string{"persist task", "enqueue task", "generate task id"} {
		if strings.HasPrefix(msg, prefix) {
			return http.StatusInternalServerError
		}
	}
	return http.StatusBadRequest
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	filter := parsing.TaskFilter{Limit: defaultListLimit}
	if v := r.URL.Query().Get("status"); v != "" {
		status := parsing.TaskStatus(v)
		switch status {
		case parsing.TaskStatusRunning, parsing.TaskStatusCompleted, parsing.TaskStatusFailed:
			filter.Status = status
		default:
			s.writeError(w, http.StatusBadRequest, "unknown status")
			return
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}

	tasks, err := s.tasks.ListTasks(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}
	if tasks == nil {
		tasks = []parsing.Task{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	t, err := s.tasks.GetTask(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, parsing.ErrTaskNotFound) {
			s.writeError(w, http.StatusNotFound, "task not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to fetch task")
		return
	}
	s.writeJSON(w, http.StatusOK, t)
}

func (s *Server) getTaskSites(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	sites, err := s.tasks.GetSites(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, parsing.ErrTaskNotFound) {
			s.writeError(w, http.StatusNotFound, "task not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to fetch sites")
		return
	}
	if sites == nil {
		sites = []parsing.ParsedSite{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"task_id": taskID, "sites": sites})
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	if err := s.tasks.DeleteTask(r.Context(), taskID); err != nil {
		if errors.Is(err, parsing.ErrTaskNotFound) {
			s.writeError(w, http.StatusNotFound, "task not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to delete task")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"task_id": taskID, "status": "deleted"})
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
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

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
