package searchd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/buildlog"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/fsnotify/fsnotify"
)

// Reloader is what reload triggers drive.
type Reloader interface {
	Reload(ctx context.Context, trigger string) error
}

// Watcher reloads when the artifact directory is replaced. The artifact
// writer renames a complete directory over the old one, so the parent is
// watched rather than the directory itself.
type Watcher struct {
	dir      string
	reloader Reloader
	debounce time.Duration
	logger   *slog.Logger
}

func NewWatcher(dir string, r Reloader, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	return &Watcher{
		dir:      filepath.Clean(dir),
		reloader: r,
		debounce: debounce,
		logger:   slog.Default().With("component", "artifact-watcher", "dir", dir),
	}
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()

	parent := filepath.Dir(w.dir)
	if err := fw.Add(parent); err != nil {
		return fmt.Errorf("watching %s: %w", parent, err)
	}
	w.logger.Info("watching for new artifacts")

	// stopped until an event arrives
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if w.relevant(event) {
				timer.Reset(w.debounce)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		case <-timer.C:
			if err := w.reloader.Reload(ctx, "watch"); err != nil {
				w.logger.Warn("reload after artifact change failed", "error", err)
			}
		}
	}
}

// relevant reports whether event touches the artifact directory itself. The
// writer's temp and backup siblings are ignored.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.dir {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Write)
}

// IndexCompleteHandler reloads on every index-complete event. Events for
// other outputs are ignored when output is set.
func IndexCompleteHandler(r Reloader, output string) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-complete-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[buildlog.Completed](value)
		if err != nil {
			logger.Error("failed to decode index-complete event", "error", err, "key", string(key))
			return nil
		}
		if output != "" && event.Output != "" && filepath.Clean(event.Output) != filepath.Clean(output) {
			logger.Debug("ignoring build for another output", "build_id", event.BuildID, "output", event.Output)
			return nil
		}
		logger.Info("index-complete received",
			"build_id", event.BuildID,
			"generation", event.Generation,
			"entries", event.Entries,
		)
		if err := r.Reload(ctx, "kafka"); err != nil {
			// the message is committed anyway; the next build triggers again
			logger.Warn("reload after index-complete failed", "error", err)
		}
		return nil
	}
}
