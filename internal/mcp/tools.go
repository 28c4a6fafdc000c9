package mcp

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query      string `json:"query" jsonschema:"the search query to execute"`
	Limit      int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	PerFile    int    `json:"per_file,omitempty" jsonschema:"maximum results per source file, 0 for unlimited"`
	FilterPath string `json:"filter_path,omitempty" jsonschema:"restrict results to paths with this prefix"`
	VectorOnly bool   `json:"vector_only,omitempty" jsonschema:"skip full-text fusion and return vector ordering"`
	Rerank     bool   `json:"rerank,omitempty" jsonschema:"rescore top candidates with the cross-encoder"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results" jsonschema:"list of search results"`
}

// SearchResultOutput is the wire-stable result record served to MCP clients.
type SearchResultOutput struct {
	ID        uint64  `json:"id" jsonschema:"store-assigned chunk id"`
	FilePath  string  `json:"file_path" jsonschema:"file path relative to project root"`
	StartLine int     `json:"start_line" jsonschema:"0-based inclusive first line"`
	EndLine   int     `json:"end_line" jsonschema:"0-based inclusive last line"`
	Kind      string  `json:"kind" jsonschema:"fragment kind, e.g. Function, Method, Block"`
	Content   string  `json:"content" jsonschema:"matched content"`
	Signature string  `json:"signature,omitempty" jsonschema:"one-line declaration"`
	Docstring string  `json:"docstring,omitempty" jsonschema:"documentation attached to the definition"`
	Context   string  `json:"context,omitempty" jsonschema:"breadcrumb from file to innermost enclosing definition"`
	Hash      string  `json:"hash" jsonschema:"content hash of the fragment"`
	Distance  float32 `json:"distance" jsonschema:"cosine distance from the query vector"`
	Score     float32 `json:"score" jsonschema:"fused relevance score"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Project    ProjectInfo       `json:"project"`
	Stats      IndexStatsOutput  `json:"stats"`
	Embeddings EmbeddingInfo     `json:"embeddings"`
	Indexing   *IndexingProgress `json:"indexing,omitempty"` // Present during background indexing
}

// IndexingProgress contains information about ongoing background indexing.
type IndexingProgress struct {
	Status         string  `json:"status"`                  // "indexing", "ready", or "error"
	Stage          string  `json:"stage,omitempty"`         // "scanning", "chunking", "embedding", "indexing"
	FilesTotal     int     `json:"files_total"`             // Total files to process
	FilesProcessed int     `json:"files_processed"`         // Files processed so far
	ChunksIndexed  int     `json:"chunks_indexed"`          // Chunks indexed so far
	ProgressPct    float64 `json:"progress_pct"`            // Progress percentage (0-100)
	ElapsedSeconds int     `json:"elapsed_seconds"`         // Time since indexing started
	ErrorMessage   string  `json:"error_message,omitempty"` // Error message if status is "error"
}

// ProjectInfo contains information about the indexed project.
type ProjectInfo struct {
	Name     string `json:"name"`
	RootPath string `json:"root_path"`
	Type     string `json:"type"`
}

// IndexStatsOutput contains statistics about the index.
type IndexStatsOutput struct {
	FileCount      int   `json:"file_count"`
	ChunkCount     int   `json:"chunk_count"`
	IndexSizeBytes int64 `json:"index_size_bytes"`
	Indexed        bool  `json:"indexed"`
}

// EmbeddingInfo contains information about the embedding configuration.
type EmbeddingInfo struct {
	Model            string `json:"model"`              // active model name
	Dimensions       int    `json:"dimensions"`         // embedding dimensionality
	IsFallbackActive bool   `json:"is_fallback_active"` // true if using the static fallback
	SemanticQuality  string `json:"semantic_quality"`   // "high" (model-backed) or "low" (static)
}
