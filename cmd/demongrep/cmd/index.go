package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/yxanul/demongrep/internal/index"
	"github.com/yxanul/demongrep/internal/lifecycle"
	"github.com/yxanul/demongrep/internal/output"
	"github.com/yxanul/demongrep/internal/preflight"
	"github.com/yxanul/demongrep/internal/scanner"
	"github.com/yxanul/demongrep/internal/ui"
)

// indexOptions holds CLI flags for index.
type indexOptions struct {
	force      bool
	dryRun     bool
	model      string
	provider   string
	noTUI      bool
	skipCheck  bool
	rebuildFTS bool
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a source tree for semantic search",
		Long: `Index a source tree: chunk every indexable file into semantic
fragments, embed them, and persist vectors plus a full-text posting
index under <root>/.demongrep.db/.

Reindexing is incremental: unchanged files (by mtime, then content
hash) are skipped. Use --force to discard all state and rebuild.

Examples:
  demongrep index
  demongrep index ./services/api
  demongrep index --force
  demongrep index --dry-run`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pathArg string
			if len(args) > 0 {
				pathArg = args[0]
			}
			return runIndex(cmd.Context(), cmd, pathArg, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.force, "force", "f", false, "Discard all indexed state and rebuild from scratch")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "List files that would be indexed without writing anything")
	cmd.Flags().StringVarP(&opts.model, "model", "m", "", "Embedding model override")
	cmd.Flags().StringVar(&opts.provider, "provider", "", "Embedding provider: ollama or static")
	cmd.Flags().BoolVar(&opts.noTUI, "no-tui", false, "Plain text progress output")
	cmd.Flags().BoolVar(&opts.skipCheck, "skip-check", false, "Skip pre-flight system checks")
	cmd.Flags().BoolVar(&opts.rebuildFTS, "rebuild-fts", false, "Rebuild the full-text index from stored chunks and exit")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, pathArg string, opts indexOptions) error {
	root, err := findRoot(pathArg)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())

	if opts.rebuildFTS {
		ws, err := openWorkspace(ctx, root, workspaceOptions{requireIndex: true})
		if err != nil {
			return err
		}
		defer func() { _ = ws.Close() }()
		if err := ws.Updater.RebuildTextIndex(ctx); err != nil {
			return err
		}
		out.Success("full-text index rebuilt from stored chunks")
		return nil
	}

	// Preflight once per index directory; cached via a marker file.
	dataDir := filepath.Join(root, DataDirName)
	if !opts.skipCheck && preflight.NeedsCheck(dataDir) {
		checker := preflight.New(preflight.WithOutput(io.Discard))
		results := checker.RunAll(ctx, root)
		if checker.HasCriticalFailures(results) {
			checker = preflight.New(preflight.WithVerbose(true), preflight.WithOutput(cmd.ErrOrStderr()))
			checker.PrintResults(results)
			return fmt.Errorf("system check failed")
		}
		if err := preflight.MarkPassed(dataDir); err != nil {
			slog.Warn("failed to write preflight marker", slog.String("error", err.Error()))
		}
	}

	// Discover candidate files before touching the stores so --dry-run
	// stays read-only.
	paths, err := scanFiles(ctx, root)
	if err != nil {
		return err
	}

	if opts.dryRun {
		out.Statusf("", "would index %d files under %s", len(paths), root)
		for _, p := range paths {
			out.Status("", "  "+p)
		}
		return nil
	}

	if err := ensureEmbedder(ctx, cmd, &opts); err != nil {
		return err
	}

	ws, err := openWorkspace(ctx, root, workspaceOptions{
		provider: opts.provider,
		model:    opts.model,
	})
	if err != nil {
		return err
	}
	defer func() { _ = ws.Close() }()

	if opts.force {
		if err := ws.Updater.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear index: %w", err)
		}
	}

	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(opts.noTUI),
		ui.WithNoColor(ui.DetectNoColor()),
		ui.WithProjectDir(root)))
	if err := renderer.Start(ctx); err != nil {
		renderer = ui.NewPlainRenderer(ui.NewConfig(cmd.OutOrStdout(), ui.WithForcePlain(true)))
		_ = renderer.Start(ctx)
	}

	renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageScanning, Current: len(paths), Total: len(paths)})

	start := time.Now()
	ws.Updater.Progress = func(done, total int, fr index.FileResult) {
		renderer.UpdateProgress(ui.ProgressEvent{
			Stage:       ui.StageChunking,
			Current:     done,
			Total:       total,
			CurrentFile: fr.Path,
		})
		if fr.Err != nil {
			renderer.AddError(ui.ErrorEvent{File: fr.Path, Err: fr.Err, IsWarn: true})
		}
	}

	result, err := ws.Updater.Update(ctx, paths)
	if err != nil {
		_ = renderer.Stop()
		return err
	}

	renderer.Complete(ui.CompletionStats{
		Files:    result.Indexed,
		Chunks:   result.Chunks,
		Duration: time.Since(start),
		Errors:   result.Errors,
		Embedder: ui.EmbedderInfo{
			Model:      ws.Service.ModelName(),
			Dimensions: ws.Service.Dimensions(),
		},
	})
	if err := renderer.Stop(); err != nil {
		return err
	}

	cacheStats := ws.Service.CacheStats()
	slog.Info("index_complete",
		slog.Int("files_indexed", result.Indexed),
		slog.Int("files_skipped", result.Skipped),
		slog.Int("chunks", result.Chunks),
		slog.Int("errors", result.Errors),
		slog.Int64("cache_hits", cacheStats.Hits),
		slog.Int64("cache_misses", cacheStats.Misses))

	if result.Errors > 0 {
		out.Statusf("", "%d files failed; rerun with --debug for details", result.Errors)
	}
	return nil
}

// ensureEmbedder makes sure the Ollama backend is up and has the embedding
// model before a potentially long index run. Falls back to the static
// embedder (interactively on a TTY, silently otherwise) when Ollama is not
// installed.
func ensureEmbedder(ctx context.Context, cmd *cobra.Command, opts *indexOptions) error {
	if opts.provider == "static" || os.Getenv("DEMONGREP_EMBEDDER") == "static" {
		return nil
	}

	mgr := lifecycle.NewOllamaManager()
	err := mgr.EnsureReady(ctx, opts.model, lifecycle.EnsureOpts{
		AutoStart:    true,
		AutoPull:     true,
		Stdout:       cmd.ErrOrStderr(),
		Stderr:       cmd.ErrOrStderr(),
		ProgressFunc: lifecycle.CreatePullProgressFunc(cmd.ErrOrStderr()),
	})
	if err == nil {
		return nil
	}

	var notInstalled *lifecycle.NotInstalledError
	if !errors.As(err, &notInstalled) {
		return err
	}

	if lifecycle.IsTTY() {
		choice, perr := lifecycle.PromptNoEmbedder(cmd.ErrOrStderr(), cmd.InOrStdin())
		if perr != nil {
			return perr
		}
		switch choice {
		case lifecycle.ChoiceOfflineMode:
			opts.provider = "static"
			return nil
		case lifecycle.ChoiceShowInstall:
			lifecycle.ShowInstallInstructions(cmd.ErrOrStderr())
			return err
		default:
			return err
		}
	}

	slog.Warn("ollama not installed, falling back to static embeddings")
	opts.provider = "static"
	return nil
}

// scanFiles walks root with the ignore-aware scanner and returns relative
// paths of indexable files.
func scanFiles(ctx context.Context, root string) ([]string, error) {
	s, err := scanner.New()
	if err != nil {
		return nil, err
	}

	results, err := s.Scan(ctx, &scanner.ScanOptions{
		RootDir:          root,
		RespectGitignore: true,
	})
	if err != nil {
		return nil, err
	}

	var paths []string
	for res := range results {
		if res.Error != nil {
			slog.Warn("scan error", slog.String("error", res.Error.Error()))
			continue
		}
		if res.File != nil {
			paths = append(paths, res.File.Path)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no indexable files found under %s", root)
	}
	return paths, nil
}
