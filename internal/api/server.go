// Package api exposes the HTTP interface for the channel index service.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openvideo/channelindex/internal/channel"
	"github.com/openvideo/channelindex/internal/config"
	"github.com/openvideo/channelindex/internal/metrics"
)

const (
	defaultSearchLimit       = 20
	defaultAutocompleteLimit = 10
	readTimeout              = 15 * time.Second
)

// IndexRunner triggers a synchronous indexing run.
type IndexRunner interface {
	Run(ctx context.Context, maxChannels int) (channel.IndexReport, error)
}

// IndexExporter writes the full index to a blob store.
type IndexExporter interface {
	Export(ctx context.Context, object string) (string, error)
}

// Server wires HTTP handlers to the store and the indexer.
type Server struct {
	router   chi.Router
	store    channel.Store
	indexer  IndexRunner
	exporter IndexExporter
	logger   *zap.Logger
	cfg      config.Config
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	store channel.Store,
	runner IndexRunner,
	exporter IndexExporter,
	logger *zap.Logger,
	cfg config.Config,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:    store,
		indexer:  runner,
		exporter: exporter,
		logger:   logger,
		cfg:      cfg,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/", s.indexPage)
	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// Read endpoints run under a request timeout. The cron endpoints do
	// not: an indexing run blocks for its full duration and must not be
	// cancelled by the transport.
	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(readTimeout))
		r.Get("/api/search", s.search)
		r.Get("/api/autocomplete", s.autocomplete)
		r.Get("/api/stats", s.stats)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.cronAuthMiddleware)
		r.Get("/api/cron/index", s.cronIndex)
		r.Get("/api/cron/export", s.cronExport)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

type searchResponse struct {
	Results []channel.Channel `json:"results"`
	Count   int               `json:"count"`
	Query   string            `json:"query"`
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	limit := intParam(r, "limit", defaultSearchLimit)

	// An empty query is a valid request for nothing.
	if query == "" {
		s.writeJSON(w, http.StatusOK, searchResponse{Results: []channel.Channel{}, Query: query})
		return
	}

	results, err := s.store.Search(r.Context(), query, limit)
	if err != nil {
		s.logger.Error("search failed", zap.String("query", query), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	if results == nil {
		results = []channel.Channel{}
	}
	s.writeJSON(w, http.StatusOK, searchResponse{
		Results: results,
		Count:   len(results),
		Query:   query,
	})
}

type autocompleteResponse struct {
	Suggestions []channel.Suggestion `json:"suggestions"`
}

func (s *Server) autocomplete(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	limit := intParam(r, "limit", defaultAutocompleteLimit)

	suggestions, err := s.store.Autocomplete(r.Context(), query, limit)
	if err != nil {
		s.logger.Error("autocomplete failed", zap.String("query", query), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "autocomplete failed")
		return
	}
	if suggestions == nil {
		suggestions = []channel.Suggestion{}
	}
	s.writeJSON(w, http.StatusOK, autocompleteResponse{Suggestions: suggestions})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.logger.Error("stats failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "stats failed")
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

type cronResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	URI     string `json:"uri,omitempty"`
}

func (s *Server) cronIndex(w http.ResponseWriter, r *http.Request) {
	maxChannels := 0
	if raw := r.URL.Query().Get("max"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			maxChannels = n
		}
	}

	// The run deliberately uses a fresh context: a disconnecting client
	// must not cancel a half-finished crawl.
	report, err := s.indexer.Run(context.Background(), maxChannels)
	if err != nil {
		s.logger.Error("indexing run failed", zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, cronResponse{
			Status:  "error",
			Message: err.Error(),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, cronResponse{
		Status: "success",
		Message: fmt.Sprintf("Indexed %d, skipped %d, errored %d of %d channels.",
			report.Indexed, report.Skipped, report.Errored, report.SitemapTotal),
	})
}

func (s *Server) cronExport(w http.ResponseWriter, _ *http.Request) {
	if s.exporter == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, cronResponse{
			Status:  "error",
			Message: "export is not configured",
		})
		return
	}
	uri, err := s.exporter.Export(context.Background(), s.cfg.Export.Object)
	if err != nil {
		s.logger.Error("export failed", zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, cronResponse{
			Status:  "error",
			Message: err.Error(),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, cronResponse{
		Status:  "success",
		Message: "Index exported.",
		URI:     uri,
	})
}

func intParam(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
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

// cronAuthMiddleware gates the privileged endpoints behind a shared secret.
// An empty configured secret disables them entirely.
func (s *Server) cronAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret := s.cfg.Cron.Secret
		if secret == "" {
			s.writeError(w, http.StatusUnauthorized, "not authorized")
			return
		}
		expected := "Bearer " + secret
		got := r.Header.Get("Authorization")
		if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "not authorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}
