package integration

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yxanul/demongrep/internal/chunk"
	"github.com/yxanul/demongrep/internal/config"
	"github.com/yxanul/demongrep/internal/embed"
	"github.com/yxanul/demongrep/internal/grammar"
	"github.com/yxanul/demongrep/internal/index"
	"github.com/yxanul/demongrep/internal/search"
	"github.com/yxanul/demongrep/internal/store"
)

// Integration tests: the full pipeline from source tree to ranked search
// results, exercising the chunker, embedding service, stores, updater, and
// hybrid engine together.

// stack bundles the whole retrieval pipeline over one temp index dir.
type stack struct {
	root    string
	dataDir string
	svc     *embed.Service
	vectors *store.Store
	text    store.BM25Index
	files   *index.FileStore
	updater *index.Updater
	engine  *search.Engine
}

func newStack(t *testing.T, root string) *stack {
	t.Helper()
	dataDir := t.TempDir()

	svc := embed.NewService(embed.NewStaticEmbedder(embed.StaticDimensions), 0)

	vectors, err := store.Open(filepath.Join(dataDir, "index.db"), svc.Dimensions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = vectors.Close() })

	text, err := store.NewBleveBM25Index(filepath.Join(dataDir, "bm25.bleve"), store.DefaultBM25Config())
	require.NoError(t, err)
	t.Cleanup(func() { _ = text.Close() })

	files, err := index.OpenFileStore(filepath.Join(dataDir, "files.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = files.Close() })

	chunker := chunk.New(grammar.New())
	updater := index.New(root, files, vectors, text, chunker, svc, chunk.DefaultConfig())
	engine := search.New(vectors, text, svc, nil)

	return &stack{
		root: root, dataDir: dataDir, svc: svc,
		vectors: vectors, text: text, files: files,
		updater: updater, engine: engine,
	}
}

func writeSource(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

const authSource = `package auth

// Authenticate validates a token against the session store.
func Authenticate(token string) bool {
	return token != ""
}
`

const mathSource = `package mathutil

// Add returns the sum of two integers.
func Add(a, b int) int {
	return a + b
}

// Multiply returns the product of two integers.
func Multiply(a, b int) int {
	return a * b
}
`

func TestIntegration_IndexAndSearch_FindsResults(t *testing.T) {
	// Given: two source files indexed end to end
	root := t.TempDir()
	writeSource(t, root, "auth/auth.go", authSource)
	writeSource(t, root, "mathutil/math.go", mathSource)

	s := newStack(t, root)
	ctx := context.Background()

	result, err := s.updater.Update(ctx, []string{"auth/auth.go", "mathutil/math.go"})
	require.NoError(t, err)
	require.Equal(t, 2, result.Indexed)
	require.Greater(t, result.Chunks, 0)

	// When: searching for authentication
	results, err := s.engine.Search(ctx, "authenticate token session", search.SearchOptions{Limit: 5})

	// Then: results come back with full metadata
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.NotEmpty(t, r.Path)
		assert.NotEmpty(t, r.Content)
		assert.NotEmpty(t, r.Hash)
		assert.GreaterOrEqual(t, r.EndLine, r.StartLine)
	}
}

func TestIntegration_Reindex_IsIncremental(t *testing.T) {
	// Given: an indexed tree
	root := t.TempDir()
	writeSource(t, root, "auth/auth.go", authSource)
	writeSource(t, root, "mathutil/math.go", mathSource)

	s := newStack(t, root)
	ctx := context.Background()

	_, err := s.updater.Update(ctx, []string{"auth/auth.go", "mathutil/math.go"})
	require.NoError(t, err)

	mathIDs, err := s.updater.ChunkIDsFor("mathutil/math.go")
	require.NoError(t, err)

	misses := s.svc.CacheStats().Misses

	// When: reindexing without any change
	second, err := s.updater.Update(ctx, []string{"auth/auth.go", "mathutil/math.go"})
	require.NoError(t, err)

	// Then: nothing is re-embedded or rewritten
	assert.Equal(t, 0, second.Indexed)
	assert.Equal(t, misses, s.svc.CacheStats().Misses, "unchanged files must not embed again")

	// When: one file changes content
	writeSource(t, root, "auth/auth.go", authSource+"\n// trailing comment\n")
	third, err := s.updater.Update(ctx, []string{"auth/auth.go", "mathutil/math.go"})
	require.NoError(t, err)

	// Then: only the modified file reindexes; the other keeps its ids
	assert.Equal(t, 1, third.Indexed)
	mathIDsAfter, err := s.updater.ChunkIDsFor("mathutil/math.go")
	require.NoError(t, err)
	assert.Equal(t, mathIDs, mathIDsAfter)
}

func TestIntegration_DeletedFile_DisappearsFromSearch(t *testing.T) {
	// Given: an indexed file
	root := t.TempDir()
	writeSource(t, root, "auth/auth.go", authSource)

	s := newStack(t, root)
	ctx := context.Background()

	_, err := s.updater.Update(ctx, []string{"auth/auth.go"})
	require.NoError(t, err)

	oldIDs, err := s.updater.ChunkIDsFor("auth/auth.go")
	require.NoError(t, err)
	require.NotEmpty(t, oldIDs)

	// When: the file is deleted and the updater observes it
	require.NoError(t, os.Remove(filepath.Join(root, "auth/auth.go")))
	_, err = s.updater.Update(ctx, []string{"auth/auth.go"})
	require.NoError(t, err)

	// Then: its chunks are gone from the vector store and full text index
	for _, id := range oldIDs {
		rec, err := s.vectors.Get(id)
		require.NoError(t, err)
		assert.Nil(t, rec, "chunk %d should be deleted", id)
	}
	textIDs, err := s.text.AllIDs()
	require.NoError(t, err)
	for _, id := range oldIDs {
		assert.NotContains(t, textIDs, strconv.FormatUint(id, 10))
	}
	rec, err := s.files.Get("auth/auth.go")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestIntegration_StorePersistsAcrossReopen(t *testing.T) {
	// Given: an indexed tree
	root := t.TempDir()
	writeSource(t, root, "mathutil/math.go", mathSource)

	s := newStack(t, root)
	ctx := context.Background()

	result, err := s.updater.Update(ctx, []string{"mathutil/math.go"})
	require.NoError(t, err)
	chunks := result.Chunks

	statsBefore, err := s.vectors.Stats()
	require.NoError(t, err)
	require.Equal(t, chunks, statsBefore.ChunkCount)

	// When: closing and reopening the vector store
	storePath := filepath.Join(s.dataDir, "index.db")
	require.NoError(t, s.vectors.Close())

	reopened, err := store.Open(storePath, s.svc.Dimensions())
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	// Then: chunk count and searchability survive
	statsAfter, err := reopened.Stats()
	require.NoError(t, err)
	assert.Equal(t, chunks, statsAfter.ChunkCount)
	assert.True(t, statsAfter.Indexed)

	vec, err := s.svc.EmbedQuery(ctx, "product of two integers")
	require.NoError(t, err)
	hits, err := reopened.Search(ctx, vec, 3)
	require.NoError(t, err)
	assert.NotEmpty(t, hits)
}

func TestIntegration_EmptyIndex_ReturnsNoResults(t *testing.T) {
	root := t.TempDir()
	s := newStack(t, root)
	require.NoError(t, s.vectors.BuildIndex(context.Background()))

	results, err := s.engine.Search(context.Background(), "anything", search.SearchOptions{Limit: 5})

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestIntegration_PathFilter_NarrowsResults(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "auth/auth.go", authSource)
	writeSource(t, root, "mathutil/math.go", mathSource)

	s := newStack(t, root)
	ctx := context.Background()

	_, err := s.updater.Update(ctx, []string{"auth/auth.go", "mathutil/math.go"})
	require.NoError(t, err)

	results, err := s.engine.Search(ctx, "integers", search.SearchOptions{
		Limit:      10,
		FilterPath: "mathutil/",
	})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Contains(t, r.Path, "mathutil/")
	}
}

func TestIntegration_ConcurrentSearches_NoRace(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "auth/auth.go", authSource)
	writeSource(t, root, "mathutil/math.go", mathSource)

	s := newStack(t, root)
	ctx := context.Background()

	_, err := s.updater.Update(ctx, []string{"auth/auth.go", "mathutil/math.go"})
	require.NoError(t, err)

	queries := []string{"authenticate", "add integers", "multiply", "token"}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(q string) {
			defer wg.Done()
			_, err := s.engine.Search(ctx, q, search.SearchOptions{Limit: 3})
			assert.NoError(t, err)
		}(queries[i%len(queries)])
	}
	wg.Wait()
}

func TestIntegration_ConfigLoad_AppliesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := config.Load(dir)

	require.NoError(t, err)
	assert.Equal(t, 120, cfg.Chunking.MaxLines)
	assert.Equal(t, 32, cfg.Embedding.BatchSize)
	assert.Equal(t, 20, cfg.Retrieval.RRFK)
	assert.Equal(t, 300, cfg.Watch.DebounceMS)
}

func TestIntegration_ConfigLoad_WithFile_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	configContent := "chunking:\n  max_lines: 80\nretrieval:\n  rrf_k: 40\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".demongrep.yml"), []byte(configContent), 0o644))

	cfg, err := config.Load(dir)

	require.NoError(t, err)
	assert.Equal(t, 80, cfg.Chunking.MaxLines)
	assert.Equal(t, 40, cfg.Retrieval.RRFK)
	// Untouched sections keep their defaults
	assert.Equal(t, 32, cfg.Embedding.BatchSize)
}
