package mcp

import (
	"fmt"
	"strings"

	"github.com/yxanul/demongrep/internal/search"
)

// FormatSearchResults formats search results as markdown.
func FormatSearchResults(query string, results []search.SearchResult) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for \"%s\"", query)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Search Results for \"%s\"\n\n", query))
	sb.WriteString(fmt.Sprintf("Found %d result", len(results)))
	if len(results) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, r := range results {
		formatResult(&sb, i+1, r)
	}

	return sb.String()
}

// formatResult formats a single result.
func formatResult(sb *strings.Builder, num int, r search.SearchResult) {
	// Header with file path, line numbers, score
	fmt.Fprintf(sb, "### %d. %s:%d-%d (score: %.2f)\n",
		num,
		r.Path,
		r.StartLine,
		r.EndLine,
		r.Score,
	)

	if r.Context != "" {
		fmt.Fprintf(sb, "**Context:** %s\n", r.Context)
	}
	if r.Signature != "" {
		fmt.Fprintf(sb, "**Signature:** `%s`\n", r.Signature)
	}
	sb.WriteString("\n")

	// Code block with language hint from the file extension
	lang := languageForPath(r.Path)
	fmt.Fprintf(sb, "```%s\n%s\n```\n\n", lang, r.Content)
}

// languageForPath returns a markdown fence language hint for a path.
func languageForPath(path string) string {
	switch {
	case strings.HasSuffix(path, ".go"):
		return "go"
	case strings.HasSuffix(path, ".py"):
		return "python"
	case strings.HasSuffix(path, ".ts"), strings.HasSuffix(path, ".tsx"):
		return "typescript"
	case strings.HasSuffix(path, ".js"), strings.HasSuffix(path, ".jsx"):
		return "javascript"
	case strings.HasSuffix(path, ".rs"):
		return "rust"
	case strings.HasSuffix(path, ".md"):
		return "markdown"
	default:
		return "text"
	}
}

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}

// ToSearchResultOutput converts a search result to the wire output format.
func ToSearchResultOutput(r search.SearchResult) SearchResultOutput {
	return SearchResultOutput{
		ID:        r.ID,
		FilePath:  r.Path,
		StartLine: r.StartLine,
		EndLine:   r.EndLine,
		Kind:      r.Kind,
		Content:   r.Content,
		Signature: r.Signature,
		Docstring: r.Docstring,
		Context:   r.Context,
		Hash:      r.Hash,
		Distance:  r.Distance,
		Score:     r.Score,
	}
}
