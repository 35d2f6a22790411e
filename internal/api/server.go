// Package api is the HTTP surface: routing, wire serialization, the template
// read-through cache, and the request middleware (principal, request id,
// logging). Handlers stay thin; semantics live in the engine packages.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/sandeepkv93/trackd/internal/cache"
	"github.com/sandeepkv93/trackd/internal/reconcile"
	"github.com/sandeepkv93/trackd/internal/storage"
	"github.com/sandeepkv93/trackd/internal/tags"
)

// principalHeader names the authenticated user; the gateway in front of the
// service is trusted to have verified it.
const principalHeader = "X-Forwarded-User"

const (
	defaultItemsPageSize = 2
	defaultCacheTTL      = 300 * time.Second
)

type Config struct {
	// ItemsPageSize is the sub-item page size on retrieve endpoints.
	ItemsPageSize int
	// CacheTTL bounds template detail cache entries.
	CacheTTL time.Duration
	Logger   *slog.Logger
	Now      func() time.Time
}

type Server struct {
	repo      storage.Repository
	registry  *tags.Registry
	engine    *reconcile.Engine
	templates *templateCache
	logger    *slog.Logger
	pageSize  int
	now       func() time.Time
}

func NewServer(repo storage.Repository, store cache.Cache, cfg Config) *Server {
	if cfg.ItemsPageSize <= 0 {
		cfg.ItemsPageSize = defaultItemsPageSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	registry := tags.NewRegistry(repo, cfg.Now)
	templates := newTemplateCache(store, cfg.CacheTTL, cfg.Logger)
	return &Server{
		repo:      repo,
		registry:  registry,
		engine:    reconcile.NewEngine(repo, registry, templates, cfg.Now),
		templates: templates,
		logger:    cfg.Logger,
		pageSize:  cfg.ItemsPageSize,
		now:       cfg.Now,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/tasks/{$}", s.handleTaskList)
	mux.HandleFunc("POST /api/v1/tasks/{$}", s.handleTaskCreate)
	mux.HandleFunc("GET /api/v1/tasks/tags/{$}", s.handleTagList)
	mux.HandleFunc("POST /api/v1/tasks/tags/{$}", s.handleTagCreate)
	mux.HandleFunc("GET /api/v1/tasks/{id}/{$}", s.handleTaskRetrieve)
	mux.HandleFunc("PUT /api/v1/tasks/{id}/{$}", s.handleTaskUpdate)
	mux.HandleFunc("PATCH /api/v1/tasks/{id}/{$}", s.handleTaskUpdate)
	mux.HandleFunc("DELETE /api/v1/tasks/{id}/{$}", s.handleTaskDelete)
	mux.HandleFunc("GET /api/v1/tasks/{id}/update_status/{$}", s.handleTaskStatusGrouping)
	mux.HandleFunc("POST /api/v1/tasks/{id}/update_status/{$}", s.handleTaskStatusUpdate)
	mux.HandleFunc("POST /api/v1/tasks/{id}/save_as_template/{$}", s.handleTaskSaveAsTemplate)
	mux.HandleFunc("GET /api/v1/tasks/{task_id}/items/{id}/{$}", s.handleTaskItemRetrieve)
	mux.HandleFunc("PUT /api/v1/tasks/{task_id}/items/{id}/{$}", s.handleTaskItemUpdate)
	mux.HandleFunc("PATCH /api/v1/tasks/{task_id}/items/{id}/{$}", s.handleTaskItemUpdate)
	mux.HandleFunc("DELETE /api/v1/tasks/{task_id}/items/{id}/{$}", s.handleTaskItemDelete)

	mux.HandleFunc("GET /api/v1/template/{$}", s.handleTemplateList)
	mux.HandleFunc("POST /api/v1/template/{$}", s.handleTemplateCreate)
	mux.HandleFunc("GET /api/v1/template/{id}/{$}", s.handleTemplateRetrieve)
	mux.HandleFunc("PUT /api/v1/template/{id}/{$}", s.handleTemplateUpdate)
	mux.HandleFunc("PATCH /api/v1/template/{id}/{$}", s.handleTemplateUpdate)
	mux.HandleFunc("DELETE /api/v1/template/{id}/{$}", s.handleTemplateDelete)
	mux.HandleFunc("GET /api/v1/template/{id}/create_from_template/{$}", s.handleTemplateRetrieve)
	mux.HandleFunc("POST /api/v1/template/{id}/create_from_template/{$}", s.handleCreateFromTemplate)
	mux.HandleFunc("GET /api/v1/template/{task_id}/items/{id}/{$}", s.handleTemplateItemRetrieve)
	mux.HandleFunc("PUT /api/v1/template/{task_id}/items/{id}/{$}", s.handleTemplateItemUpdate)
	mux.HandleFunc("PATCH /api/v1/template/{task_id}/items/{id}/{$}", s.handleTemplateItemUpdate)
	mux.HandleFunc("DELETE /api/v1/template/{task_id}/items/{id}/{$}", s.handleTemplateItemDelete)

	return s.logRequests(s.authenticate(mux))
}

type contextKey int

const principalKey contextKey = iota

// principalFrom returns the authenticated principal stored by the
// authenticate middleware.
func principalFrom(ctx context.Context) string {
	principal, _ := ctx.Value(principalKey).(string)
	return principal
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := r.Header.Get(principalHeader)
		if principal == "" {
			s.writeError(w, ErrCodeUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey, principal)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.now()
		requestID := uuid.NewString()
		w.Header().Set("X-Request-Id", requestID)
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		s.logger.Info("request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.status,
			"duration", time.Since(start),
		)
	})
}

// pathID parses a numeric path segment; garbage reads as not-found, same as
// a well-formed id that matches nothing.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id < 1 {
		return 0, storage.ErrNotFound
	}
	return id, nil
}

var errMalformedBody = errors.New("malformed json body")

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

func (s *Server) writeRaw(w http.ResponseWriter, blob []byte) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(blob); err != nil {
		s.logger.Error("write response", "error", err)
	}
}
