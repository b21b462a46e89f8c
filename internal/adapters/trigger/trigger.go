// Package trigger watches the launch loop's trigger directory
// (spec.md §4.8) for new files, using fsnotify where available and
// falling back to polling on a fixed interval (SPEC_FULL.md §11).
package trigger

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher emits candidate trigger file names as they appear in dir.
type Watcher struct {
	logger   *slog.Logger
	dir      string
	poll     time.Duration
	fsw      *fsnotify.Watcher
	fallback bool
}

// New creates a Watcher over dir. When fsnotify cannot be initialized
// (e.g. inotify instance limits exhausted) it logs and falls back to
// polling every poll interval.
func New(logger *slog.Logger, dir string, poll time.Duration) (*Watcher, error) {
	if logger == nil {
		panic("trigger watcher requires logger")
	}
	if poll <= 0 {
		poll = 2 * time.Second
	}

	w := &Watcher{logger: logger, dir: dir, poll: poll}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("fsnotify unavailable, falling back to polling", "error", err)
		w.fallback = true
		return w, nil
	}
	if err := fsw.Add(dir); err != nil {
		logger.Warn("fsnotify add failed, falling back to polling", "dir", dir, "error", err)
		_ = fsw.Close()
		w.fallback = true
		return w, nil
	}
	w.fsw = fsw
	return w, nil
}

// Close releases the underlying fsnotify watcher, if any.
func (w *Watcher) Close() error {
	if w.fsw != nil {
		return w.fsw.Close()
	}
	return nil
}

// Watch sends candidate file names from dir to names as they are
// observed, until ctx is cancelled. It does not de-duplicate names
// already processed; that is the launch loop's responsibility.
func (w *Watcher) Watch(ctx context.Context, names chan<- string) error {
	if w.fallback || w.fsw == nil {
		return w.watchByPolling(ctx, names)
	}
	return w.watchByEvents(ctx, names)
}

func (w *Watcher) watchByEvents(ctx context.Context, names chan<- string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			select {
			case names <- event.Name:
			case <-ctx.Done():
				return ctx.Err()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("fsnotify error", "error", err)
		}
	}
}

func (w *Watcher) watchByPolling(ctx context.Context, names chan<- string) error {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			entries, err := os.ReadDir(w.dir)
			if err != nil {
				w.logger.Warn("poll trigger dir failed", "dir", w.dir, "error", err)
				continue
			}
			for _, entry := range entries {
				select {
				case names <- entry.Name():
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}
