// Package store implements the persistent vector store and full-text
// index: a memory-mapped, transactional store with
// an approximate-nearest-neighbor index and a parallel metadata database
// keyed by a monotonically assigned integer id, plus a BM25 posting index
// over the same ids.
package store

import (
	"context"
	"fmt"
)

// ChunkRecord is the persisted record inside E: a chunk id, its vector, and
// its metadata, joined on search.
type ChunkRecord struct {
	ID        uint64
	Vector    []float32
	Content   string
	Path      string
	StartLine int
	EndLine   int
	Kind      string
	Signature string
	Docstring string
	Context   []string
	Hash      string
}

// Document is a chunk as seen by the full-text index: just the id and the
// content text searched. Signature and docstring are not indexed separately.
type Document struct {
	ID      string
	Content string
}

// BM25Result is a single full-text search hit.
type BM25Result struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

// IndexStats describes a full-text index's size.
type IndexStats struct {
	DocumentCount int
}

// BM25Index is the full-text search contract.
type BM25Index interface {
	Index(ctx context.Context, docs []*Document) error
	Search(ctx context.Context, query string, limit int) ([]*BM25Result, error)
	Delete(ctx context.Context, docIDs []string) error
	AllIDs() ([]string, error)
	Stats() *IndexStats
	Close() error
}

// BM25Config configures the full-text index's analyzer.
type BM25Config struct {
	StopWords []string
}

// DefaultBM25Config returns the default full-text configuration.
func DefaultBM25Config() BM25Config {
	return BM25Config{StopWords: DefaultCodeStopWords}
}

// DefaultCodeStopWords contains programming keywords filtered out of the
// full-text analyzer so queries aren't dominated by boilerplate tokens.
var DefaultCodeStopWords = []string{
	"var", "let", "const", "func", "function", "def", "class",
	"return", "if", "else", "for", "while",
	"data", "result", "value", "item", "key", "err", "ctx", "tmp",
}

// VectorResult is a single ANN search hit prior to metadata join.
type VectorResult struct {
	ID       uint64
	Distance float32
	Score    float32
}

// VectorStoreConfig configures the ANN index.
type VectorStoreConfig struct {
	Dimensions int
	Metric     string // "cos" or "l2"; default "cos"
	M          int    // HNSW max connections per layer
	EfSearch   int    // HNSW query-time search width
}

// DefaultVectorStoreConfig returns sensible defaults for dimensions D.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{Dimensions: dimensions, Metric: "cos", M: 16, EfSearch: 20}
}

// ErrDimensionMismatch is returned by open() when attaching to an existing
// store built with a different embedding dimension.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: store has %d, got %d — run with --force to rebuild", e.Expected, e.Got)
}

// SearchResult is a fully joined result: ANN/full-text score plus the
// chunk's persisted metadata, the shape search_text/search return.
type SearchResult struct {
	ID        uint64
	Score     float32
	Content   string
	Path      string
	StartLine int
	EndLine   int
	Kind      string
	Signature string
	Docstring string
	Context   []string
	Hash      string
}

// Stats summarizes a store for `demongrep stats`.
type Stats struct {
	ChunkCount int
	Indexed    bool
	Dimensions int
}
