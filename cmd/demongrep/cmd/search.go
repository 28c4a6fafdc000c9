package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yxanul/demongrep/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit      int
	perFile    int
	filterPath string
	vectorOnly bool
	rerank     bool
	rerankTop  int
	rrfK       int
	sync       bool
	jsonOut    bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed codebase",
		Long: `Search the indexed codebase with hybrid retrieval: vector search
and BM25 full-text search fused via Reciprocal Rank Fusion, with an
optional cross-encoder rerank pass.

Examples:
  demongrep search "authentication middleware"
  demongrep search "debounced event batching" --limit 5
  demongrep search "vector insert" --filter-path internal/store
  demongrep search "rank fusion" --rerank
  demongrep search "chunk splitting" --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().IntVar(&opts.perFile, "per-file", 0, "Maximum results per source file (0 = unlimited)")
	cmd.Flags().StringVarP(&opts.filterPath, "filter-path", "p", "", "Restrict results to paths with this prefix")
	cmd.Flags().BoolVar(&opts.vectorOnly, "vector-only", false, "Skip full-text fusion; return vector ordering")
	cmd.Flags().BoolVar(&opts.rerank, "rerank", false, "Rescore top candidates with the cross-encoder")
	cmd.Flags().IntVar(&opts.rerankTop, "rerank-top", 0, "How many fused candidates to rerank (default 50)")
	cmd.Flags().IntVar(&opts.rrfK, "rrf-k", 0, "RRF smoothing constant (default 20)")
	cmd.Flags().BoolVar(&opts.sync, "sync", false, "Run an incremental index pass before searching")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Emit results as JSON")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	root, err := findRoot("")
	if err != nil {
		return err
	}

	ws, err := openWorkspace(ctx, root, workspaceOptions{
		requireIndex: true,
		reranker:     opts.rerank,
	})
	if err != nil {
		return err
	}
	defer func() { _ = ws.Close() }()

	if opts.sync {
		paths, err := scanFiles(ctx, root)
		if err != nil {
			return err
		}
		if _, err := ws.Updater.Update(ctx, paths); err != nil {
			return err
		}
	}

	slog.Info("search_started", slog.String("query", query), slog.Int("limit", opts.limit))

	results, err := ws.Engine.Search(ctx, query, search.SearchOptions{
		Limit:      opts.limit,
		PerFile:    opts.perFile,
		FilterPath: search.NormalizeScope(opts.filterPath),
		VectorOnly: opts.vectorOnly,
		Rerank:     opts.rerank,
		RerankTop:  opts.rerankTop,
		RRFK:       opts.rrfK,
	})
	if err != nil {
		return err
	}

	slog.Info("search_complete", slog.Int("results", len(results)))

	if opts.jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(toRecords(results))
	}

	return printResults(cmd, query, results)
}

// searchRecord is the wire-stable JSON shape for one result.
type searchRecord struct {
	ID        uint64  `json:"id"`
	Path      string  `json:"path"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	Kind      string  `json:"kind"`
	Content   string  `json:"content"`
	Signature string  `json:"signature,omitempty"`
	Docstring string  `json:"docstring,omitempty"`
	Context   string  `json:"context,omitempty"`
	Hash      string  `json:"hash"`
	Distance  float32 `json:"distance"`
	Score     float32 `json:"score"`
}

func toRecords(results []search.SearchResult) []searchRecord {
	records := make([]searchRecord, 0, len(results))
	for _, r := range results {
		records = append(records, searchRecord{
			ID:        r.ID,
			Path:      r.Path,
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
		})
	}
	return records
}

// printResults renders results as indented text with line references.
func printResults(cmd *cobra.Command, query string, results []search.SearchResult) error {
	w := cmd.OutOrStdout()

	if len(results) == 0 {
		_, err := fmt.Fprintf(w, "No results for %q\n", query)
		return err
	}

	for i, r := range results {
		fmt.Fprintf(w, "%d. %s:%d-%d  [%s]  score=%.3f\n", i+1, r.Path, r.StartLine, r.EndLine, r.Kind, r.Score)
		if r.Context != "" {
			fmt.Fprintf(w, "   %s\n", r.Context)
		}
		if r.Signature != "" {
			fmt.Fprintf(w, "   %s\n", r.Signature)
		}
		for _, line := range previewLines(r.Content, 4) {
			fmt.Fprintf(w, "   | %s\n", line)
		}
		fmt.Fprintln(w)
	}
	return nil
}

// previewLines returns up to n lines of content, annotating truncation.
func previewLines(content string, n int) []string {
	lines := strings.Split(content, "\n")
	if len(lines) <= n {
		return lines
	}
	out := make([]string, n+1)
	copy(out, lines[:n])
	out[n] = fmt.Sprintf("... (%d more lines)", len(lines)-n)
	return out
}
