package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/yxanul/demongrep/internal/chunk"
	"github.com/yxanul/demongrep/internal/config"
	"github.com/yxanul/demongrep/internal/embed"
	"github.com/yxanul/demongrep/internal/grammar"
	"github.com/yxanul/demongrep/internal/index"
	"github.com/yxanul/demongrep/internal/search"
	"github.com/yxanul/demongrep/internal/store"
)

// DataDirName is the per-project index directory at the project root.
const DataDirName = ".demongrep.db"

// workspace bundles every handle a command needs: the project config, the
// two databases, the full-text index, the embedding service, and the
// engine/updater built over them.
type workspace struct {
	Root    string
	DataDir string
	Config  *config.Config

	Vectors  *store.Store
	Text     store.BM25Index
	Files    *index.FileStore
	Embedder embed.Embedder
	Service  *embed.Service
	Chunker  *chunk.Chunker
	Engine   *search.Engine
	Updater  *index.Updater

	lock *flock.Flock
}

// workspaceOptions tweaks how a workspace is opened.
type workspaceOptions struct {
	// requireIndex refuses to open when no index exists yet (search/stats
	// paths), instead of creating an empty one (index path).
	requireIndex bool

	// provider/model override the config's embedding settings.
	provider string
	model    string

	// reranker enables the cross-encoder client for the rerank pass.
	reranker bool
}

// findRoot locates the project root for the current command, preferring an
// explicit argument over upward discovery from the working directory.
func findRoot(arg string) (string, error) {
	if arg != "" {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return "", err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return "", fmt.Errorf("path does not exist: %s", abs)
		}
		if !info.IsDir() {
			return "", fmt.Errorf("path is not a directory: %s", abs)
		}
		return abs, nil
	}
	root, err := config.FindProjectRoot(".")
	if err != nil {
		return os.Getwd()
	}
	return root, nil
}

// openWorkspace opens (or creates) the index at root and wires the full
// retrieval stack over it.
func openWorkspace(ctx context.Context, root string, opts workspaceOptions) (*workspace, error) {
	dataDir := filepath.Join(root, DataDirName)

	if opts.requireIndex {
		if _, err := os.Stat(filepath.Join(dataDir, "index.db")); os.IsNotExist(err) {
			return nil, fmt.Errorf("no index found at %s - run 'demongrep index' first", dataDir)
		}
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	// One demongrep process per index directory. bbolt locks each database
	// file on its own; this lock covers the whole directory so two writers
	// can't interleave vector and full-text updates.
	lock := flock.New(filepath.Join(dataDir, ".lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock index directory: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("index at %s is in use by another demongrep process", dataDir)
	}

	cfg, err := config.Load(root)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	model := cfg.Embedding.Model
	if opts.model != "" {
		model = opts.model
	}
	provider := embed.ParseProvider(opts.provider)

	embedder, err := embed.NewEmbedder(ctx, provider, model)
	if err != nil && opts.provider == "" {
		// No provider forced: degrade to the static embedder rather than
		// refusing to run. A store built with a different model still
		// fails the dimension check on open, which is the right error.
		slog.Warn("embedder unavailable, falling back to static",
			slog.String("error", err.Error()))
		embedder, err = embed.NewEmbedder(ctx, embed.ProviderStatic, model)
	}
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	ws := &workspace{Root: root, DataDir: dataDir, Config: cfg, Embedder: embedder, lock: lock}
	ws.Service = embed.NewService(embedder, cfg.Embedding.BatchSize)

	ws.Vectors, err = store.Open(filepath.Join(dataDir, "index.db"), ws.Service.Dimensions())
	if err != nil {
		ws.close()
		return nil, err
	}

	ws.Text, err = store.NewBleveBM25Index(filepath.Join(dataDir, "bm25.bleve"), store.DefaultBM25Config())
	if err != nil {
		ws.close()
		return nil, err
	}

	ws.Files, err = index.OpenFileStore(filepath.Join(dataDir, "files.db"))
	if err != nil {
		ws.close()
		return nil, err
	}

	var reranker search.Reranker = &search.NoOpReranker{}
	if opts.reranker {
		if r, err := search.NewHTTPReranker(ctx, search.DefaultHTTPRerankerConfig()); err == nil {
			reranker = r
		}
		// Reranker unavailability is not fatal: the engine falls back to
		// plain RRF ordering through the no-op reranker.
	}

	ws.Chunker = chunk.New(grammar.New())
	ws.Engine = search.New(ws.Vectors, ws.Text, ws.Service, reranker)
	ws.Updater = index.New(root, ws.Files, ws.Vectors, ws.Text, ws.Chunker, ws.Service, chunkConfig(cfg))

	return ws, nil
}

// chunkConfig maps the config file's chunking section onto the chunker's
// sizing knobs.
func chunkConfig(cfg *config.Config) chunk.Config {
	c := chunk.DefaultConfig()
	if cfg.Chunking.MaxLines > 0 {
		c.MaxLines = cfg.Chunking.MaxLines
	}
	if cfg.Chunking.MaxChars > 0 {
		c.MaxChars = cfg.Chunking.MaxChars
	}
	if cfg.Chunking.OverlapLines > 0 {
		c.OverlapLines = cfg.Chunking.OverlapLines
	}
	return c
}

// close releases whatever handles were opened, in reverse order.
func (ws *workspace) close() {
	if ws.Files != nil {
		_ = ws.Files.Close()
	}
	if ws.Text != nil {
		_ = ws.Text.Close()
	}
	if ws.Vectors != nil {
		_ = ws.Vectors.Close()
	}
	if ws.Service != nil {
		_ = ws.Service.Close()
	}
	if ws.lock != nil {
		_ = ws.lock.Unlock()
	}
}

// Close releases all workspace resources.
func (ws *workspace) Close() error {
	ws.close()
	return nil
}
