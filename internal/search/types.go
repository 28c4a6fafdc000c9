// Package search implements the hybrid retriever and rerank pass
// of retrieval: RRF fusion of vector and full-text candidates, with an
// optional cross-encoder rerank blend.
package search

import (
	"context"
)

// DefaultLimit and DefaultRerankTop are the engine's defaults when a caller
// leaves the corresponding SearchOptions field at its zero value.
const (
	DefaultLimit     = 10
	DefaultRerankTop = 50
)

// DefaultRerankWeight and DefaultRRFWeight are the rerank blend's tunable
// defaults: final = DefaultRerankWeight*rerank_score + DefaultRRFWeight*rrf_score.
const (
	DefaultRerankWeight = 0.575
	DefaultRRFWeight    = 0.425
)

// Weights scales each input list's contribution to the RRF sum. The
// canonical formula gives both lists equal weight (DefaultWeights).
type Weights struct {
	BM25     float64
	Semantic float64
}

// DefaultWeights returns equal weighting for both input lists.
func DefaultWeights() Weights {
	return Weights{BM25: 1, Semantic: 1}
}

// SearchOptions configures a single hybrid search call.
type SearchOptions struct {
	// Limit caps the number of returned results. <= 0 uses DefaultLimit.
	Limit int

	// PerFile caps how many results may come from the same source path.
	// 0 means unlimited.
	PerFile int

	// FilterPath restricts results to paths with this prefix. Empty means
	// no filtering.
	FilterPath string

	// VectorOnly short-circuits full-text search and RRF fusion, returning
	// the vector store's ordering directly.
	VectorOnly bool

	// Rerank enables the cross-encoder rescoring pass over the top
	// RerankTop fused candidates.
	Rerank bool

	// RerankTop is how many top-fused candidates are sent to the
	// reranker. <= 0 uses DefaultRerankTop.
	RerankTop int

	// RRFK overrides the RRF smoothing constant. <= 0 uses
	// DefaultRRFConstant.
	RRFK int

	// RerankWeight and RRFWeight override the rerank blend constants.
	// Both zero uses the package defaults.
	RerankWeight float64
	RRFWeight    float64
}

// resolved returns opts with every zero-valued tunable filled in from its
// default.
func (o SearchOptions) resolved() SearchOptions {
	r := o
	if r.Limit <= 0 {
		r.Limit = DefaultLimit
	}
	if r.RerankTop <= 0 {
		r.RerankTop = DefaultRerankTop
	}
	if r.RRFK <= 0 {
		r.RRFK = DefaultRRFConstant
	}
	if r.RerankWeight == 0 && r.RRFWeight == 0 {
		r.RerankWeight = DefaultRerankWeight
		r.RRFWeight = DefaultRRFWeight
	}
	return r
}

// SearchResult is the wire-stable record a hybrid search returns: a
// chunk's persisted metadata plus its fused/reranked score.
type SearchResult struct {
	ID        uint64
	Path      string
	StartLine int
	EndLine   int
	Kind      string
	Content   string
	Signature string
	Docstring string
	Context   string
	Hash      string
	Distance  float32
	Score     float32
}

// Searcher is the hybrid retriever contract.
type Searcher interface {
	Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error)
}
