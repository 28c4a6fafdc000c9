package cmd

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yxanul/demongrep/internal/async"
	"github.com/yxanul/demongrep/internal/index"
	"github.com/yxanul/demongrep/internal/logging"
	"github.com/yxanul/demongrep/internal/mcp"
	"github.com/yxanul/demongrep/internal/server"
)

// serveOptions holds CLI flags for serve.
type serveOptions struct {
	port  int
	stdio bool
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a long-lived local search server",
		Long: `Run a long-lived server over the project index.

By default this is an HTTP server exposing GET /health, GET /status,
and POST /search. With --stdio it instead speaks the Model Context
Protocol over stdin/stdout for AI clients like Claude Code.

Examples:
  demongrep serve --port 7777
  demongrep serve --stdio`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().IntVar(&opts.port, "port", 7777, "HTTP listen port")
	cmd.Flags().BoolVar(&opts.stdio, "stdio", false, "Speak MCP over stdin/stdout instead of HTTP")

	return cmd
}

func runServe(ctx context.Context, opts serveOptions) error {
	if opts.stdio {
		// MCP mode: stdout belongs to JSON-RPC, so logging must go to file
		// only, before anything else writes.
		if cleanup, err := logging.SetupMCPMode(); err == nil {
			defer cleanup()
		}
	}

	root, err := findRoot("")
	if err != nil {
		return err
	}

	ws, err := openWorkspace(ctx, root, workspaceOptions{requireIndex: true})
	if err != nil {
		return err
	}
	defer func() { _ = ws.Close() }()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if opts.stdio {
		srv, err := mcp.NewServer(ws.Engine, ws.Vectors, ws.Files, ws.Service, ws.Config, root)
		if err != nil {
			return err
		}
		if err := srv.RegisterResources(ctx); err != nil {
			slog.Warn("failed to register resources", slog.String("error", err.Error()))
		}

		// Catch up on filesystem changes in the background so the client can
		// connect immediately; searches report progress until the pass ends.
		bg := async.NewBackgroundIndexer(async.IndexerConfig{DataDir: ws.DataDir})
		bg.IndexFunc = func(ctx context.Context, progress *async.IndexProgress) error {
			paths, err := scanFiles(ctx, root)
			if err != nil {
				return err
			}
			progress.SetStage(async.StageChunking, len(paths))
			ws.Updater.Progress = func(done, _ int, _ index.FileResult) {
				progress.UpdateFiles(done)
			}
			defer func() { ws.Updater.Progress = nil }()
			result, err := ws.Updater.Update(ctx, paths)
			if err != nil {
				return err
			}
			progress.UpdateChunks(result.Chunks)
			return nil
		}
		srv.SetIndexProgress(bg.Progress())
		bg.Start(ctx)
		defer bg.Stop()

		return srv.Serve(ctx, "stdio", "")
	}

	httpSrv := server.NewServer(opts.port, ws.Engine, ws.Vectors, ws.Files, slog.Default())
	err = httpSrv.Start(ctx)
	if err == context.Canceled {
		return nil
	}
	return err
}
