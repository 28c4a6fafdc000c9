package search

import (
	"context"
	"sort"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/yxanul/demongrep/internal/embed"
	"github.com/yxanul/demongrep/internal/errors"
	"github.com/yxanul/demongrep/internal/store"
)

// Engine is the hybrid retriever: it fuses the vector
// store's ANN candidates with the full-text index's BM25 candidates via
// RRF, with an optional cross-encoder rerank pass over the fused head.
type Engine struct {
	vectors  *store.Store
	text     store.BM25Index
	embedder *embed.Service
	fusion   *RRFFusion
	reranker Reranker
}

// New builds a hybrid retriever over the given vector store and full-text
// index. reranker may be nil, which disables SearchOptions.Rerank (a
// request with Rerank set but no reranker configured is a no-op: the
// fused ranking is returned unchanged).
func New(vectors *store.Store, text store.BM25Index, embedder *embed.Service, reranker Reranker) *Engine {
	return &Engine{
		vectors:  vectors,
		text:     text,
		embedder: embedder,
		fusion:   NewRRFFusion(),
		reranker: reranker,
	}
}

var _ Searcher = (*Engine)(nil)

// Search embeds the query, fetches candidates from both E and F, fuses
// them by RRF (or short-circuits to vector-only ordering), optionally
// reranks the fused head, and joins the result against each chunk's
// persisted metadata.
func (e *Engine) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	opts = opts.resolved()

	queryVec, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	// Over-fetch before path/per-file filtering and truncation so those
	// passes have enough candidates to work with.
	fetchLimit := opts.Limit
	if opts.Rerank && opts.RerankTop > fetchLimit {
		fetchLimit = opts.RerankTop
	}
	const overfetch = 4

	var ranked []SearchResult
	if opts.VectorOnly {
		vecResults, err := e.vectors.Search(ctx, queryVec, fetchLimit*overfetch)
		if err != nil {
			return nil, err
		}
		ranked = fromVectorResults(vecResults)
	} else {
		// The two candidate fetches are independent reads; run them
		// concurrently.
		var vecResults []*store.SearchResult
		var textResults []*store.BM25Result
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			vecResults, err = e.vectors.Search(gctx, queryVec, fetchLimit*overfetch)
			return err
		})
		g.Go(func() error {
			var err error
			textResults, err = e.text.Search(gctx, query, fetchLimit*overfetch)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}

		vr := make([]*store.VectorResult, len(vecResults))
		for i, r := range vecResults {
			vr[i] = &store.VectorResult{ID: r.ID, Distance: 1 - r.Score, Score: r.Score}
		}

		fusion := e.fusion
		if opts.RRFK != DefaultRRFConstant {
			fusion = NewRRFFusionWithK(opts.RRFK)
		}
		fused := fusion.Fuse(textResults, vr, DefaultWeights())
		ranked, err = e.joinFused(fused, vecResults)
		if err != nil {
			return nil, err
		}
	}

	if opts.Rerank && e.reranker != nil && len(ranked) > 0 {
		ranked, err = e.rerank(ctx, query, ranked, opts)
		if err != nil {
			return nil, err
		}
	}

	ranked = filterByPath(ranked, opts.FilterPath)
	ranked = capPerFile(ranked, opts.PerFile)
	if len(ranked) > opts.Limit {
		ranked = ranked[:opts.Limit]
	}
	return ranked, nil
}

// fromVectorResults joins the store's ANN results with their metadata,
// already score/distance ordered.
func fromVectorResults(results []*store.SearchResult) []SearchResult {
	out := make([]SearchResult, len(results))
	for i, r := range results {
		out[i] = toSearchResult(r, r.Score, 1-r.Score)
	}
	return out
}

// joinFused resolves each fused candidate's id to its persisted metadata.
// Vector-side hits already carry metadata from the initial store.Search
// call; BM25-only hits (present in the text index but not among the
// over-fetched vector candidates) are joined via Store.Get.
func (e *Engine) joinFused(fused []*FusedResult, vecResults []*store.SearchResult) ([]SearchResult, error) {
	byID := make(map[uint64]*store.SearchResult, len(vecResults))
	for _, r := range vecResults {
		byID[r.ID] = r
	}

	out := make([]SearchResult, 0, len(fused))
	for _, f := range fused {
		id, err := strconv.ParseUint(f.ChunkID, 10, 64)
		if err != nil {
			continue
		}
		score := float32(f.RRFScore)
		if v, ok := byID[id]; ok {
			out = append(out, toSearchResult(v, score, 1-v.Score))
			continue
		}
		rec, err := e.vectors.Get(id)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			// Purged from the store after the text index served it.
			continue
		}
		out = append(out, SearchResult{
			ID: rec.ID, Path: rec.Path, StartLine: rec.StartLine, EndLine: rec.EndLine,
			Kind: rec.Kind, Content: rec.Content, Signature: rec.Signature,
			Docstring: rec.Docstring, Context: joinContext(rec.Context), Hash: rec.Hash,
			Score: score,
		})
	}
	return out, nil
}

// rerank rescores the top RerankTop results with the cross-encoder and
// blends the result with the existing fused score, then re-sorts.
func (e *Engine) rerank(ctx context.Context, query string, ranked []SearchResult, opts SearchOptions) ([]SearchResult, error) {
	head := ranked
	tail := []SearchResult(nil)
	if len(ranked) > opts.RerankTop {
		head = ranked[:opts.RerankTop]
		tail = ranked[opts.RerankTop:]
	}

	docs := make([]string, len(head))
	for i, r := range head {
		docs[i] = r.Content
	}
	scores, err := e.reranker.Rerank(ctx, query, docs, 0)
	if err != nil {
		return nil, errors.Embedding("rerank failed", err)
	}

	byIndex := make(map[int]float64, len(scores))
	for _, s := range scores {
		byIndex[s.Index] = s.Score
	}
	for i := range head {
		rerankScore := byIndex[i]
		head[i].Score = float32(opts.RerankWeight*rerankScore + opts.RRFWeight*float64(head[i].Score))
	}

	sort.SliceStable(head, func(i, j int) bool {
		if head[i].Score != head[j].Score {
			return head[i].Score > head[j].Score
		}
		return head[i].ID < head[j].ID
	})

	return append(head, tail...), nil
}

func toSearchResult(r *store.SearchResult, score, distance float32) SearchResult {
	return SearchResult{
		ID: r.ID, Path: r.Path, StartLine: r.StartLine, EndLine: r.EndLine,
		Kind: r.Kind, Content: r.Content, Signature: r.Signature,
		Docstring: r.Docstring, Context: joinContext(r.Context), Hash: r.Hash,
		Distance: distance, Score: score,
	}
}

func joinContext(ctx []string) string {
	if len(ctx) == 0 {
		return ""
	}
	out := ctx[0]
	for _, c := range ctx[1:] {
		out += " > " + c
	}
	return out
}
