package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/yxanul/demongrep/internal/async"
	"github.com/yxanul/demongrep/internal/config"
	"github.com/yxanul/demongrep/internal/embed"
	"github.com/yxanul/demongrep/internal/index"
	"github.com/yxanul/demongrep/internal/search"
	"github.com/yxanul/demongrep/internal/store"
	"github.com/yxanul/demongrep/pkg/version"
)

// Server is the MCP server for demongrep.
// It bridges AI clients (Claude Code, Cursor) with the hybrid search engine.
type Server struct {
	mcp      *mcp.Server
	engine   search.Searcher
	vectors  *store.Store
	files    *index.FileStore // May be nil - resource listing is then unavailable
	embedder *embed.Service   // May be nil - reported as static fallback
	config   *config.Config
	logger   *slog.Logger
	rootPath string

	// Background indexing progress (nil if not indexing)
	indexProgress *async.IndexProgress

	mu sync.RWMutex
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// NewServer creates a new MCP server. vectors backs the index_status stats
// and files (when non-nil) backs file:// resources. rootPath is used for
// project detection (go.mod, package.json, pyproject.toml).
func NewServer(engine search.Searcher, vectors *store.Store, files *index.FileStore, embedder *embed.Service, cfg *config.Config, rootPath string) (*Server, error) {
	if engine == nil {
		return nil, errors.New("search engine is required")
	}
	if vectors == nil {
		return nil, errors.New("vector store is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	s := &Server{
		engine:   engine,
		vectors:  vectors,
		files:    files,
		embedder: embedder,
		config:   cfg,
		rootPath: rootPath,
		logger:   slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "demongrep",
			Version: version.Version,
		},
		nil, // ServerOptions - capabilities are inferred from registered tools/resources
	)

	s.registerTools()

	return s, nil
}

// SetIndexProgress sets the index progress tracker for background indexing.
// This enables the server to report indexing progress via index_status and
// return appropriate messages when search is called during indexing.
func (s *Server) SetIndexProgress(progress *async.IndexProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexProgress = progress
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return "demongrep", version.Version
}

// Capabilities returns whether tools and resources are enabled.
func (s *Server) Capabilities() (hasTools, hasResources bool) {
	return true, s.files != nil
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return []ToolInfo{
		{
			Name:        "search",
			Description: searchToolDescription,
		},
		{
			Name:        "index_status",
			Description: indexStatusToolDescription,
		},
	}
}

const (
	searchToolDescription = "Hybrid semantic + keyword search over the indexed codebase. " +
		"Finds functions, types, and documentation by meaning, not just text matching - " +
		"faster and smarter than grep for most search tasks."

	indexStatusToolDescription = "Check if the codebase index is ready and which embedder " +
		"is active. Use before searching to verify the index is complete."
)

// CallTool invokes a tool by name with the given arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case "search":
		return s.handleSearchTool(ctx, args)
	case "index_status":
		return s.handleIndexStatusTool(ctx)
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

// handleSearchTool handles the search tool invocation.
// Returns markdown-formatted results.
func (s *Server) handleSearchTool(ctx context.Context, args map[string]any) (string, error) {
	// Check if indexing is in progress
	s.mu.RLock()
	progress := s.indexProgress
	s.mu.RUnlock()

	if progress != nil && progress.IsIndexing() {
		snap := progress.Snapshot()
		return fmt.Sprintf("## Indexing in Progress\n\n"+
			"**Progress:** %.1f%% (%d/%d files)\n"+
			"**Stage:** %s\n\n"+
			"Search results may be incomplete or unavailable. Please try again in a moment.",
			snap.ProgressPct, snap.FilesProcessed, snap.FilesTotal, snap.Stage), nil
	}

	start := time.Now()
	requestID := generateRequestID()

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return "", NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}
	if strings.TrimSpace(query) == "" {
		return "", NewInvalidParamsError("query cannot be empty or whitespace only")
	}

	limit := clampLimit(0, 10, 1, 50) // default 10
	if l, ok := args["limit"].(float64); ok {
		limit = clampLimit(int(l), 10, 1, 50)
	}

	s.logger.Info("search started",
		slog.String("request_id", requestID),
		slog.String("query", query),
		slog.Int("limit", limit))

	opts := search.SearchOptions{
		Limit: limit,
	}
	if p, ok := args["per_file"].(float64); ok {
		opts.PerFile = int(p)
	}
	if fp, ok := args["filter_path"].(string); ok {
		opts.FilterPath = search.NormalizeScope(fp)
	}
	if vo, ok := args["vector_only"].(bool); ok {
		opts.VectorOnly = vo
	}
	if rr, ok := args["rerank"].(bool); ok {
		opts.Rerank = rr
	}

	results, err := s.engine.Search(ctx, query, opts)
	duration := time.Since(start)

	if err != nil {
		s.logger.Error("search failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return "", MapError(err)
	}

	s.logger.Info("search completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("result_count", len(results)))

	return FormatSearchResults(query, results), nil
}

// handleIndexStatusTool handles the index_status tool invocation.
// Returns index statistics plus embedder capability info: AI clients use
// the fallback flag to adjust how much they trust semantic ordering.
func (s *Server) handleIndexStatusTool(_ context.Context) (*IndexStatusOutput, error) {
	start := time.Now()
	requestID := generateRequestID()

	s.logger.Info("index_status started",
		slog.String("request_id", requestID))

	stats, err := s.vectors.Stats()
	if err != nil {
		return nil, MapError(err)
	}
	dbSize, err := s.vectors.DBSize()
	if err != nil {
		dbSize = 0
	}

	var fileCount int
	if s.files != nil {
		if n, err := s.files.Count(); err == nil {
			fileCount = n
		}
	}

	var model string
	var dimensions int
	isFallback := true
	if s.embedder != nil {
		model = s.embedder.ModelName()
		dimensions = s.embedder.Dimensions()
		isFallback = model == "static"
	}
	quality := "high"
	if isFallback {
		quality = "low"
	}

	detector := NewProjectDetector(s.rootPath, s.logger)
	projectInfo := detector.Detect()

	output := &IndexStatusOutput{
		Project: *projectInfo,
		Stats: IndexStatsOutput{
			FileCount:      fileCount,
			ChunkCount:     stats.ChunkCount,
			IndexSizeBytes: dbSize,
			Indexed:        stats.Indexed,
		},
		Embeddings: EmbeddingInfo{
			Model:            model,
			Dimensions:       dimensions,
			IsFallbackActive: isFallback,
			SemanticQuality:  quality,
		},
	}

	s.mu.RLock()
	progress := s.indexProgress
	s.mu.RUnlock()

	if progress != nil {
		snap := progress.Snapshot()
		output.Indexing = &IndexingProgress{
			Status:         snap.Status,
			Stage:          snap.Stage,
			FilesTotal:     snap.FilesTotal,
			FilesProcessed: snap.FilesProcessed,
			ChunksIndexed:  snap.ChunksIndexed,
			ProgressPct:    snap.ProgressPct,
			ElapsedSeconds: snap.ElapsedSeconds,
			ErrorMessage:   snap.ErrorMessage,
		}
	}

	duration := time.Since(start)
	s.logger.Info("index_status completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.String("project_name", projectInfo.Name),
		slog.String("project_type", projectInfo.Type))

	return output, nil
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	s.logger.Debug("Registering MCP tools")

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search",
		Description: searchToolDescription,
	}, s.mcpSearchHandler)
	s.logger.Debug("Registered tool", slog.String("name", "search"))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_status",
		Description: indexStatusToolDescription,
	}, s.mcpIndexStatusHandler)
	s.logger.Debug("Registered tool", slog.String("name", "index_status"))

	s.logger.Info("MCP tools registered", slog.Int("count", 2))
}

// mcpSearchHandler is the MCP SDK handler for the search tool.
func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	if input.Query == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query parameter is required")
	}

	opts := search.SearchOptions{
		Limit:      10,
		PerFile:    input.PerFile,
		FilterPath: search.NormalizeScope(input.FilterPath),
		VectorOnly: input.VectorOnly,
		Rerank:     input.Rerank,
	}
	if input.Limit > 0 {
		opts.Limit = input.Limit
	}

	results, err := s.engine.Search(ctx, input.Query, opts)
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}

	output := SearchOutput{
		Results: make([]SearchResultOutput, 0, len(results)),
	}
	for _, r := range results {
		output.Results = append(output.Results, ToSearchResultOutput(r))
	}

	return nil, output, nil
}

// mcpIndexStatusHandler is the MCP SDK handler for the index_status tool.
func (s *Server) mcpIndexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	output, err := s.handleIndexStatusTool(ctx)
	if err != nil {
		return nil, nil, MapError(err)
	}
	return nil, output, nil
}

// Serve starts the server with the specified transport.
func (s *Server) Serve(ctx context.Context, transport, addr string) error {
	s.logger.Info("Starting MCP server",
		slog.String("transport", transport),
		slog.String("addr", addr))

	switch transport {
	case "stdio":
		s.logger.Debug("Using stdio transport for JSON-RPC")
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && err != context.Canceled {
			s.logger.Error("MCP server stopped with error",
				slog.String("error", err.Error()))
		} else {
			s.logger.Info("MCP server stopped gracefully")
		}
		return err
	case "sse":
		// SSE transport not yet implemented in SDK
		return fmt.Errorf("SSE transport not yet implemented")
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// Close releases server resources.
func (s *Server) Close() error {
	// The MCP server doesn't have a Close method - it stops when context is canceled
	return nil
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
