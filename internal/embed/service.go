package embed

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/yxanul/demongrep/internal/chunk"
	"github.com/yxanul/demongrep/internal/errors"
)

// FragmentCacheSize bounds the process-wide fragment → vector cache. At
// 768 dims × 4 bytes × 50,000 entries this is ~150MB, generous for a single
// repository's worth of fragments.
const FragmentCacheSize = 50_000

// EmbeddedFragment pairs a chunked fragment with its computed vector.
type EmbeddedFragment struct {
	Fragment *chunk.Fragment
	Vector   []float32
}

// Service is the embedding component (D): it prepares fragment text
// deterministically, batches fragments to the underlying Embedder, and
// caches fragment hash → vector so re-indexing unchanged fragments never
// re-embeds them.
type Service struct {
	embedder  Embedder
	batchSize int

	mu     sync.Mutex
	cache  *lru.Cache[string, []float32]
	hits   int64
	misses int64
}

// NewService wraps embedder with fragment-hash caching and batching. A
// batchSize <= 0 uses DefaultBatchSize, overridden by
// DEMONGREP_EMBED_BATCH_SIZE if set.
func NewService(embedder Embedder, batchSize int) *Service {
	if batchSize <= 0 {
		batchSize = batchSizeFromEnv()
	}
	cache, _ := lru.New[string, []float32](FragmentCacheSize)
	return &Service{embedder: embedder, batchSize: batchSize, cache: cache}
}

func batchSizeFromEnv() int {
	if v := os.Getenv("DEMONGREP_EMBED_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= MinBatchSize && n <= MaxBatchSize {
			return n
		}
	}
	return DefaultBatchSize
}

// Dimensions passes through to the underlying embedder.
func (s *Service) Dimensions() int { return s.embedder.Dimensions() }

// ModelName passes through to the underlying embedder.
func (s *Service) ModelName() string { return s.embedder.ModelName() }

// Close releases the underlying embedder.
func (s *Service) Close() error { return s.embedder.Close() }

// EmbedQuery embeds a raw query string as-is, bypassing fragment
// preparation and the fragment cache (queries aren't fragments).
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, errors.Embedding("embed_query failed", err)
	}
	return vec, nil
}

// EmbedFragments embeds fragments in batch order, skipping any whose hash
// is already cached. Returns one EmbeddedFragment per input, in input
// order. A failure embedding any batch is fatal for the whole call — the
// caller must retry.
func (s *Service) EmbedFragments(ctx context.Context, frags []*chunk.Fragment) ([]EmbeddedFragment, error) {
	out := make([]EmbeddedFragment, len(frags))

	var pendingIdx []int
	var pendingText []string
	// Byte-identical fragments (boilerplate repeated across files, nested
	// definitions re-emitted inside their parent) share one model slot:
	// the first occurrence embeds, the rest copy its vector.
	dupsOf := make(map[string][]int)

	for i, f := range frags {
		if f.Hash == "" {
			f.Finalize()
		}
		s.mu.Lock()
		vec, ok := s.cache.Get(f.Hash)
		s.mu.Unlock()
		if ok {
			s.mu.Lock()
			s.hits++
			s.mu.Unlock()
			out[i] = EmbeddedFragment{Fragment: f, Vector: vec}
			continue
		}
		if _, seen := dupsOf[f.Hash]; seen {
			// Zero model invocations for this fragment, same as a cache hit.
			s.mu.Lock()
			s.hits++
			s.mu.Unlock()
			dupsOf[f.Hash] = append(dupsOf[f.Hash], i)
			continue
		}
		s.mu.Lock()
		s.misses++
		s.mu.Unlock()
		dupsOf[f.Hash] = nil
		pendingIdx = append(pendingIdx, i)
		pendingText = append(pendingText, prepareText(f))
	}

	for start := 0; start < len(pendingIdx); start += s.batchSize {
		end := start + s.batchSize
		if end > len(pendingIdx) {
			end = len(pendingIdx)
		}
		vectors, err := s.embedder.EmbedBatch(ctx, pendingText[start:end])
		if err != nil {
			return nil, errors.Embedding(fmt.Sprintf("embed_fragments batch [%d:%d] failed", start, end), err)
		}
		if len(vectors) != end-start {
			return nil, errors.Embedding("embedder returned mismatched batch size", nil)
		}
		for j, idx := range pendingIdx[start:end] {
			f := frags[idx]
			out[idx] = EmbeddedFragment{Fragment: f, Vector: vectors[j]}
			for _, dup := range dupsOf[f.Hash] {
				out[dup] = EmbeddedFragment{Fragment: frags[dup], Vector: vectors[j]}
			}
			s.mu.Lock()
			s.cache.Add(f.Hash, vectors[j])
			s.mu.Unlock()
		}
	}

	return out, nil
}

// CacheStats returns the fragment cache's size, hits, misses, and hit rate.
func (s *Service) CacheStats() CacheStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := CacheStats{Size: s.cache.Len(), Hits: s.hits, Misses: s.misses}
	if total := s.hits + s.misses; total > 0 {
		stats.HitRate = float64(s.hits) / float64(total)
	}
	return stats
}

// prepareText builds the deterministic embedding input for a fragment: the
// concatenation, in order, of any non-empty context/signature/docstring/code
// sections. Empty sections are omitted entirely, not left as blank lines.
func prepareText(f *chunk.Fragment) string {
	var sb strings.Builder
	if path := f.ContextPath(); path != "" {
		sb.WriteString("Context: ")
		sb.WriteString(path)
		sb.WriteString("\n")
	}
	if f.HasSignature() {
		sb.WriteString("Signature: ")
		sb.WriteString(f.Signature)
		sb.WriteString("\n")
	}
	if f.HasDocstring() {
		sb.WriteString("Documentation: ")
		sb.WriteString(f.Docstring)
		sb.WriteString("\n")
	}
	sb.WriteString("Code:\n")
	sb.WriteString(f.Content)
	return sb.String()
}
