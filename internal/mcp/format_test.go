package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yxanul/demongrep/internal/search"
)

func TestFormatSearchResults_WithResults(t *testing.T) {
	// Given: two results with metadata
	results := []search.SearchResult{
		{
			ID:        1,
			Path:      "internal/auth/middleware.go",
			StartLine: 10,
			EndLine:   42,
			Kind:      "Function",
			Content:   "func AuthMiddleware(next http.Handler) http.Handler {",
			Signature: "func AuthMiddleware(next http.Handler) http.Handler",
			Context:   "File: internal/auth/middleware.go > Function: AuthMiddleware",
			Score:     0.91,
		},
		{
			ID:        2,
			Path:      "docs/auth.md",
			StartLine: 0,
			EndLine:   12,
			Kind:      "Block",
			Content:   "# Authentication\n\nTokens are validated per request.",
			Score:     0.44,
		},
	}

	// When: formatting
	out := FormatSearchResults("auth middleware", results)

	// Then: markdown contains headers, paths, scores, and fenced content
	assert.Contains(t, out, `## Search Results for "auth middleware"`)
	assert.Contains(t, out, "Found 2 results")
	assert.Contains(t, out, "### 1. internal/auth/middleware.go:10-42 (score: 0.91)")
	assert.Contains(t, out, "**Signature:** `func AuthMiddleware(next http.Handler) http.Handler`")
	assert.Contains(t, out, "**Context:** File: internal/auth/middleware.go > Function: AuthMiddleware")
	assert.Contains(t, out, "```go\nfunc AuthMiddleware")
	assert.Contains(t, out, "### 2. docs/auth.md:0-12 (score: 0.44)")
	assert.Contains(t, out, "```markdown\n# Authentication")
}

func TestFormatSearchResults_Empty(t *testing.T) {
	out := FormatSearchResults("nothing", nil)
	assert.Equal(t, `No results found for "nothing"`, out)
}

func TestFormatSearchResults_SingularResultCount(t *testing.T) {
	results := []search.SearchResult{
		{Path: "main.go", Content: "package main"},
	}

	out := FormatSearchResults("main", results)

	assert.Contains(t, out, "Found 1 result\n")
	assert.NotContains(t, out, "Found 1 results")
}

func TestLanguageForPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"a/b/c.go", "go"},
		{"script.py", "python"},
		{"app.ts", "typescript"},
		{"app.tsx", "typescript"},
		{"index.js", "javascript"},
		{"lib.rs", "rust"},
		{"README.md", "markdown"},
		{"Makefile", "text"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, languageForPath(tt.path))
		})
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		name           string
		limit, def     int
		min, max, want int
	}{
		{"zero uses default", 0, 10, 1, 50, 10},
		{"negative uses default", -5, 10, 1, 50, 10},
		{"in range passes through", 25, 10, 1, 50, 25},
		{"above max clamps", 100, 10, 1, 50, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, clampLimit(tt.limit, tt.def, tt.min, tt.max))
		})
	}
}

func TestToSearchResultOutput(t *testing.T) {
	r := search.SearchResult{
		ID:        7,
		Path:      "pkg/x.go",
		StartLine: 3,
		EndLine:   9,
		Kind:      "Method",
		Content:   "func (p *Point) Dist() float64 { ... }",
		Signature: "func (p *Point) Dist() float64",
		Docstring: "Dist returns the distance from origin.",
		Context:   "File: pkg/x.go > Struct: Point > Method: Dist",
		Hash:      "abc123",
		Distance:  0.2,
		Score:     0.8,
	}

	out := ToSearchResultOutput(r)

	assert.Equal(t, uint64(7), out.ID)
	assert.Equal(t, "pkg/x.go", out.FilePath)
	assert.Equal(t, 3, out.StartLine)
	assert.Equal(t, 9, out.EndLine)
	assert.Equal(t, "Method", out.Kind)
	assert.Equal(t, r.Content, out.Content)
	assert.Equal(t, r.Signature, out.Signature)
	assert.Equal(t, r.Docstring, out.Docstring)
	assert.Equal(t, r.Context, out.Context)
	assert.Equal(t, "abc123", out.Hash)
	assert.InDelta(t, 0.2, out.Distance, 1e-6)
	assert.InDelta(t, 0.8, out.Score, 1e-6)
}
