package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yxanul/demongrep/internal/chunk"
)

func TestService_PrepareTextOmitsEmptySections(t *testing.T) {
	f := &chunk.Fragment{Content: "return 1", Context: []string{"File: a.go", "Function: one"}}
	f.Finalize()
	text := prepareText(f)
	assert.Contains(t, text, "Context: File: a.go > Function: one")
	assert.NotContains(t, text, "Signature:")
	assert.NotContains(t, text, "Documentation:")
	assert.Contains(t, text, "Code:\nreturn 1")
}

func TestService_EmbedFragments_CachesByHash(t *testing.T) {
	svc := NewService(NewStaticEmbedder(StaticDimensions), 8)

	f1 := &chunk.Fragment{Content: "func one() {}", Context: []string{"File: a.go"}}
	f2 := &chunk.Fragment{Content: "func one() {}", Context: []string{"File: b.go"}} // same content, different path -> same hash
	f1.Finalize()
	f2.Finalize()
	require.Equal(t, f1.Hash, f2.Hash)

	out, err := svc.EmbedFragments(context.Background(), []*chunk.Fragment{f1, f2})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, out[0].Vector, out[1].Vector)

	stats := svc.CacheStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestService_EmbedQuery(t *testing.T) {
	svc := NewService(NewStaticEmbedder(StaticDimensions), 8)
	vec, err := svc.EmbedQuery(context.Background(), "find the parser")
	require.NoError(t, err)
	assert.Len(t, vec, StaticDimensions)
}

func TestBatchSizeFromEnv_Override(t *testing.T) {
	t.Setenv("DEMONGREP_EMBED_BATCH_SIZE", "64")
	assert.Equal(t, 64, batchSizeFromEnv())

	t.Setenv("DEMONGREP_EMBED_BATCH_SIZE", "not-a-number")
	assert.Equal(t, DefaultBatchSize, batchSizeFromEnv())
}

// countingEmbedder wraps an Embedder and counts texts actually sent to the
// model.
type countingEmbedder struct {
	Embedder
	embedded int
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.embedded += len(texts)
	return c.Embedder.EmbedBatch(ctx, texts)
}

func TestService_EmbedFragments_DuplicatesShareOneModelSlot(t *testing.T) {
	counter := &countingEmbedder{Embedder: NewStaticEmbedder(StaticDimensions)}
	svc := NewService(counter, 8)

	dup := "// Code generated by tool; DO NOT EDIT."
	frags := []*chunk.Fragment{
		{Content: dup, Context: []string{"File: a.go"}},
		{Content: "func real() {}", Context: []string{"File: a.go"}},
		{Content: dup, Context: []string{"File: b.go"}},
		{Content: dup, Context: []string{"File: c.go"}},
	}
	for _, f := range frags {
		f.Finalize()
	}

	out, err := svc.EmbedFragments(context.Background(), frags)
	require.NoError(t, err)
	require.Len(t, out, 4)

	// Two unique contents -> two model invocations, not four.
	assert.Equal(t, 2, counter.embedded)
	assert.Equal(t, out[0].Vector, out[2].Vector)
	assert.Equal(t, out[0].Vector, out[3].Vector)
	for _, ef := range out {
		require.NotNil(t, ef.Vector)
	}
}
