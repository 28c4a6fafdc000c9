package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yxanul/demongrep/internal/grammar"
)

func TestChunk_SingleFunction(t *testing.T) {
	src := "fn add(a: i32, b: i32) -> i32 {\n    a + b\n}\n"
	c := New(grammar.Default())
	defer c.Close()

	frags, err := c.Chunk(context.Background(), grammar.Rust, "math.rs", []byte(src))
	require.NoError(t, err)
	require.Len(t, frags, 1)

	f := frags[0]
	assert.Equal(t, KindFunction, f.Kind)
	assert.Equal(t, 0, f.StartLine)
	assert.Equal(t, 2, f.EndLine)
	assert.Equal(t, "fn add(a: i32, b: i32) -> i32", f.Signature)
	assert.Equal(t, []string{"File: math.rs", "Function: add"}, f.Context)
	assert.NotEmpty(t, f.Hash)
}

func TestChunk_ImportsThenFunction(t *testing.T) {
	src := "use std::fmt;\nuse std::io;\nuse std::fs;\nfn run() {\n    fmt::format(());\n}\n"
	c := New(grammar.Default())
	defer c.Close()

	frags, err := c.Chunk(context.Background(), grammar.Rust, "lib.rs", []byte(src))
	require.NoError(t, err)
	require.Len(t, frags, 2)

	assert.Equal(t, KindBlock, frags[0].Kind)
	assert.Equal(t, 0, frags[0].StartLine)
	assert.Equal(t, 2, frags[0].EndLine)

	assert.Equal(t, KindFunction, frags[1].Kind)
	assert.Equal(t, 3, frags[1].StartLine)
}

func TestChunk_OversizedFunctionSplits(t *testing.T) {
	var b strings.Builder
	b.WriteString("fn big() {\n")
	for i := 0; i < 198; i++ {
		b.WriteString("    let _ = 1;\n")
	}
	b.WriteString("}\n")
	src := b.String() // 200 lines total: rows 0..199

	c := New(grammar.Default())
	defer c.Close()

	cfg := Config{MaxLines: 75, MaxChars: 1 << 20, OverlapLines: 10}
	frags, err := c.ChunkWithConfig(context.Background(), grammar.Rust, "big.rs", []byte(src), cfg)
	require.NoError(t, err)
	require.Len(t, frags, 3)

	assert.Equal(t, 0, frags[0].StartLine)
	assert.Equal(t, 74, frags[0].EndLine)
	assert.Equal(t, 65, frags[1].StartLine)
	assert.Equal(t, 139, frags[1].EndLine)
	assert.Equal(t, 130, frags[2].StartLine)
	assert.Equal(t, 199, frags[2].EndLine)

	for i, f := range frags {
		assert.False(t, f.IsComplete)
		assert.Equal(t, i, f.SplitIndex)
		assert.True(t, strings.HasPrefix(f.Content, "[Part "))
	}
}

func TestChunk_SplitPartsInheritMetadata(t *testing.T) {
	var b strings.Builder
	b.WriteString("/// Crunches a very large batch.\n")
	b.WriteString("fn crunch() {\n")
	for i := 0; i < 118; i++ {
		b.WriteString("    let _ = 1;\n")
	}
	b.WriteString("}\n")
	src := b.String()

	c := New(grammar.Default())
	defer c.Close()

	cfg := Config{MaxLines: 75, MaxChars: 1 << 20, OverlapLines: 10}
	frags, err := c.ChunkWithConfig(context.Background(), grammar.Rust, "crunch.rs", []byte(src), cfg)
	require.NoError(t, err)
	require.Greater(t, len(frags), 1)

	// Every part inherits context, kind, signature, and docstring from the
	// parent definition, not just the first. The doc-comment line lies
	// outside the function node and is covered by its own Block gap
	// fragment, so only the split parts are checked here.
	var parts []*Fragment
	for _, f := range frags {
		if !f.IsComplete {
			parts = append(parts, f)
		}
	}
	require.Greater(t, len(parts), 1)
	for _, f := range parts {
		assert.Equal(t, KindFunction, f.Kind)
		assert.Equal(t, "fn crunch()", f.Signature)
		assert.Equal(t, "Crunches a very large batch.", f.Docstring)
		assert.Equal(t, parts[0].Context, f.Context)
	}
}

func TestChunk_UnsupportedLanguageFallsBackToBlocks(t *testing.T) {
	c := New(grammar.Default())
	defer c.Close()

	src := strings.Repeat("some plain text line\n", 10)
	frags, err := c.Chunk(context.Background(), grammar.Lang("cobol"), "legacy.cbl", []byte(src))
	require.NoError(t, err)
	require.Len(t, frags, 1)
	assert.Equal(t, KindBlock, frags[0].Kind)
}

func TestChunk_EmptyFile(t *testing.T) {
	c := New(grammar.Default())
	defer c.Close()

	frags, err := c.Chunk(context.Background(), grammar.Go, "empty.go", []byte(""))
	require.NoError(t, err)
	assert.Empty(t, frags)
}

func TestFallback_ExactlyMaxLines(t *testing.T) {
	c := New(grammar.Default())
	defer c.Close()

	cfg := Config{MaxLines: 10, MaxChars: 1 << 20, OverlapLines: 2}
	src := strings.Repeat("x\n", 10)
	frags := c.fallback("f.txt", []byte(src), cfg)
	require.Len(t, frags, 1)
	assert.Equal(t, 9, frags[0].EndLine)
}

func TestFallback_MaxLinesPlusOneSharesOverlap(t *testing.T) {
	c := New(grammar.Default())
	defer c.Close()

	cfg := Config{MaxLines: 10, MaxChars: 1 << 20, OverlapLines: 2}
	src := strings.Repeat("x\n", 11)
	frags := c.fallback("f.txt", []byte(src), cfg)
	require.Len(t, frags, 2)
	assert.Equal(t, 0, frags[0].StartLine)
	assert.Equal(t, 9, frags[0].EndLine)
	assert.Equal(t, 8, frags[1].StartLine) // stride = 10-2 = 8
	assert.Equal(t, 10, frags[1].EndLine)
}

func TestFragment_LineCountInclusive(t *testing.T) {
	f := &Fragment{StartLine: 5, EndLine: 5}
	assert.Equal(t, 1, f.LineCount())
	f2 := &Fragment{StartLine: 0, EndLine: 74}
	assert.Equal(t, 75, f2.LineCount())
}

func TestFragment_ContextPath(t *testing.T) {
	f := &Fragment{Context: []string{"File: a.go", "Struct: Foo", "Method: Bar"}}
	assert.Equal(t, "File: a.go > Struct: Foo > Method: Bar", f.ContextPath())
}
