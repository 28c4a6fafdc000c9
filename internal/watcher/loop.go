package watcher

import (
	"context"
	"log/slog"

	"github.com/yxanul/demongrep/internal/index"
)

// source is the subset of HybridWatcher the loop depends on, so tests can
// supply a fake.
type source interface {
	Start(ctx context.Context, path string) error
	Stop() error
	Events() <-chan []FileEvent
	Errors() <-chan error
}

// Loop is the watch loop: it subscribes to debounced
// filesystem events on an indexed root and dispatches each batch to H.
// Creation, modification, and rename-into events become reindex requests;
// deletion and rename-out events become forget requests. At each batch
// boundary it triggers exactly one BuildIndex call.
type Loop struct {
	watcher source
	updater *index.Updater
	root    string
}

// NewLoop wires a HybridWatcher (already configured with a 300ms
// debounce window) to updater.
func NewLoop(w *HybridWatcher, updater *index.Updater, root string) *Loop {
	return &Loop{watcher: w, updater: updater, root: root}
}

// Run starts the underlying watcher and processes batches until ctx is
// cancelled or the event channel closes.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.watcher.Start(ctx, l.root); err != nil {
		return err
	}
	defer l.watcher.Stop()

	events := l.watcher.Events()
	errs := l.watcher.Errors()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-events:
			if !ok {
				return nil
			}
			l.handleBatch(ctx, batch)
		case err, ok := <-errs:
			if !ok {
				continue
			}
			// The watch loop absorbs per-event errors; a single bad
			// notification must not stop the loop.
			slog.Warn("watch loop error", slog.String("error", err.Error()))
		}
	}
}

// handleBatch dispatches every event in a debounced batch, then rebuilds
// the ANN index once regardless of how many files the batch touched.
func (l *Loop) handleBatch(ctx context.Context, batch []FileEvent) {
	var reindex []string
	var forgets []string

	for _, ev := range batch {
		if ev.IsDir {
			continue
		}
		switch ev.Operation {
		case OpDelete:
			forgets = append(forgets, ev.Path)
		case OpRename:
			if ev.OldPath != "" {
				forgets = append(forgets, ev.OldPath)
			}
			reindex = append(reindex, ev.Path)
		default:
			reindex = append(reindex, ev.Path)
		}
	}

	for _, path := range forgets {
		if err := l.updater.Forget(ctx, path); err != nil {
			slog.Warn("failed to forget path", slog.String("path", path), slog.String("error", err.Error()))
		}
	}

	if len(reindex) > 0 {
		result, err := l.updater.Update(ctx, reindex)
		if err != nil {
			slog.Warn("batch update failed", slog.String("error", err.Error()))
		} else if result.Errors > 0 {
			slog.Warn("batch update had per-file errors", slog.Int("errors", result.Errors), slog.Int("indexed", result.Indexed))
		}
		return
	}

	if len(forgets) > 0 {
		if err := l.updater.BuildIndex(ctx); err != nil {
			slog.Warn("build_index after forget failed", slog.String("error", err.Error()))
		}
	}
}
