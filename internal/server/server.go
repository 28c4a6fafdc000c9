// Package server exposes the search engine over a local HTTP surface:
// GET /health, GET /status, and POST /search.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	dgerrors "github.com/yxanul/demongrep/internal/errors"
	"github.com/yxanul/demongrep/internal/index"
	"github.com/yxanul/demongrep/internal/search"
	"github.com/yxanul/demongrep/internal/store"
)

// Server is the long-lived local HTTP server.
type Server struct {
	port       int
	engine     search.Searcher
	vectors    *store.Store
	files      *index.FileStore // may be nil; file_count is then omitted
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer creates a new HTTP server over the given engine and stores.
func NewServer(port int, engine search.Searcher, vectors *store.Store, files *index.FileStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		port:    port,
		engine:  engine,
		vectors: vectors,
		files:   files,
		logger:  logger.With("component", "server"),
	}
}

// Handler builds the route table. Exposed separately from Start so tests
// can drive it with httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/search", s.handleSearch)
	return s.loggingMiddleware(mux)
}

// Start runs the server until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("HTTP server starting", "port", s.port)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// HealthResponse is the GET /health body.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// StatusResponse is the GET /status body.
type StatusResponse struct {
	ChunkCount int   `json:"chunk_count"`
	FileCount  int   `json:"file_count,omitempty"`
	Dimensions int   `json:"dimensions"`
	Indexed    bool  `json:"indexed"`
	DBSize     int64 `json:"db_size_bytes"`
}

// SearchRequest is the POST /search body.
type SearchRequest struct {
	Query      string `json:"query"`
	Limit      int    `json:"limit,omitempty"`
	PerFile    int    `json:"per_file,omitempty"`
	FilterPath string `json:"filter_path,omitempty"`
	VectorOnly bool   `json:"vector_only,omitempty"`
	Rerank     bool   `json:"rerank,omitempty"`
}

// SearchResultRecord is the wire-stable result record.
type SearchResultRecord struct {
	ID        uint64  `json:"id"`
	Path      string  `json:"path"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	Kind      string  `json:"kind"`
	Content   string  `json:"content"`
	Signature string  `json:"signature,omitempty"`
	Docstring string  `json:"docstring,omitempty"`
	Context   string  `json:"context,omitempty"`
	Hash      string  `json:"hash"`
	Distance  float32 `json:"distance"`
	Score     float32 `json:"score"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}
	s.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}

	stats, err := s.vectors.Stats()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to read store stats")
		return
	}
	dbSize, err := s.vectors.DBSize()
	if err != nil {
		dbSize = 0
	}

	resp := StatusResponse{
		ChunkCount: stats.ChunkCount,
		Dimensions: stats.Dimensions,
		Indexed:    stats.Indexed,
		DBSize:     dbSize,
	}
	if s.files != nil {
		if n, err := s.files.Count(); err == nil {
			resp.FileCount = n
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	opts := search.SearchOptions{
		Limit:      req.Limit,
		PerFile:    req.PerFile,
		FilterPath: search.NormalizeScope(req.FilterPath),
		VectorOnly: req.VectorOnly,
		Rerank:     req.Rerank,
	}

	results, err := s.engine.Search(r.Context(), req.Query, opts)
	if err != nil {
		if dgerrors.Is(err, dgerrors.CodeIndexNotBuilt) {
			s.writeError(w, http.StatusConflict, "index not built; run 'demongrep index' first")
			return
		}
		s.logger.Error("search failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	records := make([]SearchResultRecord, 0, len(results))
	for _, res := range results {
		records = append(records, SearchResultRecord{
			ID:        res.ID,
			Path:      res.Path,
			StartLine: res.StartLine,
			EndLine:   res.EndLine,
			Kind:      res.Kind,
			Content:   res.Content,
			Signature: res.Signature,
			Docstring: res.Docstring,
			Context:   res.Context,
			Hash:      res.Hash,
			Distance:  res.Distance,
			Score:     res.Score,
		})
	}

	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// loggingMiddleware logs each request with its duration.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start))
	})
}
