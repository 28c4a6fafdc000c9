package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yxanul/demongrep/internal/output"
	"github.com/yxanul/demongrep/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	var initial bool

	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Watch a source tree and keep its index current",
		Long: `Watch the project for filesystem changes and reindex incrementally.

Events are debounced: a burst of writes collapses into one reindex
batch, and the vector index is rebuilt once per batch. Deletions and
renames retract the affected chunks.

Examples:
  demongrep watch
  demongrep watch ./services/api --initial`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pathArg string
			if len(args) > 0 {
				pathArg = args[0]
			}
			return runWatch(cmd.Context(), cmd, pathArg, initial)
		},
	}

	cmd.Flags().BoolVar(&initial, "initial", false, "Run a full incremental index pass before watching")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, pathArg string, initial bool) error {
	root, err := findRoot(pathArg)
	if err != nil {
		return err
	}

	ws, err := openWorkspace(ctx, root, workspaceOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = ws.Close() }()

	out := output.New(cmd.OutOrStdout())

	if initial {
		paths, err := scanFiles(ctx, root)
		if err != nil {
			return err
		}
		result, err := ws.Updater.Update(ctx, paths)
		if err != nil {
			return err
		}
		out.Statusf("", "initial pass: %d indexed, %d unchanged", result.Indexed, len(paths)-result.Indexed)
	}

	wopts := watcher.DefaultOptions()
	if ws.Config.Watch.DebounceMS > 0 {
		wopts.DebounceWindow = time.Duration(ws.Config.Watch.DebounceMS) * time.Millisecond
	}
	hw, err := watcher.NewHybridWatcher(wopts)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	loop := watcher.NewLoop(hw, ws.Updater, root)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out.Statusf("", "watching %s (ctrl-c to stop)", root)
	slog.Info("watch_started", slog.String("root", root))

	err = loop.Run(ctx)
	if err == context.Canceled {
		return nil
	}
	return err
}
