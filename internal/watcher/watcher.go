// Package watcher reports debounced file system changes below a set of
// roots.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"csb/internal/slogutil"
)

// EventType represents the type of file system event
type EventType int

const (
	EventCreate EventType = iota
	EventModify
	EventDelete
	EventRename
)

func (e EventType) String() string {
	switch e {
	case EventCreate:
		return "create"
	case EventModify:
		return "modify"
	case EventDelete:
		return "delete"
	case EventRename:
		return "rename"
	default:
		return "unknown"
	}
}

// Event represents a file system event
type Event struct {
	Type      EventType
	Path      string
	Timestamp time.Time
}

// ChangeHandler receives each debounced batch. It runs on a timer goroutine.
type ChangeHandler func(events []Event)

// Config contains watcher configuration
type Config struct {
	Debounce time.Duration
	// Ignore holds base-name globs ("*.tmp") and directory patterns
	// ("node_modules/**"). Matching directories are not watched.
	Ignore []string
	// Filter, when set, must accept a path for its events to be reported.
	Filter func(path string) bool
}

// Watcher reports changes below its roots.
type Watcher struct {
	cfg     Config
	logger  *slog.Logger
	fsw     *fsnotify.Watcher
	batch   *BatchDebouncer
	watched map[string]bool
}

// New creates a watcher. Call Add for each root, then Run.
func New(cfg Config, logger *slog.Logger, handler ChangeHandler) (*Watcher, error) {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 250 * time.Millisecond
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &Watcher{
		cfg:     cfg,
		logger:  logger,
		fsw:     fsw,
		batch:   NewBatchDebouncer(cfg.Debounce, handler),
		watched: make(map[string]bool),
	}, nil
}

// Add watches root and every directory below it that is not ignored. A
// missing root is skipped.
func (w *Watcher) Add(root string) error {
	root = filepath.Clean(root)
	if _, err := os.Stat(root); os.IsNotExist(err) {
		w.logger.Debug("Skipping missing watch root", "root", root)
		return nil
	}
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !entry.IsDir() {
			return nil
		}
		if path != root && w.IsIgnored(path) {
			return filepath.SkipDir
		}
		if w.watched[path] {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		w.watched[path] = true
		return nil
	})
}

// Watched returns the number of watched directories.
func (w *Watcher) Watched() int {
	return len(w.watched)
}

// Run delivers events until ctx is cancelled or the underlying watcher
// fails. Pending events are dropped on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("Watching for changes",
		"directories", len(w.watched),
		"debounce", w.cfg.Debounce,
	)
	defer w.batch.Cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("file watcher failed: %w", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	path := filepath.Clean(event.Name)
	if w.IsIgnored(path) {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if err := w.Add(path); err != nil {
				w.logger.Warn("Failed to watch new directory", "path", path, "error", err)
			}
			return
		}
	}
	if event.Op&fsnotify.Remove != 0 && w.watched[path] {
		delete(w.watched, path)
	}

	var typ EventType
	switch {
	case event.Op&fsnotify.Create != 0:
		typ = EventCreate
	case event.Op&fsnotify.Write != 0:
		typ = EventModify
	case event.Op&fsnotify.Remove != 0:
		typ = EventDelete
	case event.Op&fsnotify.Rename != 0:
		typ = EventRename
	default:
		return
	}
	if w.cfg.Filter != nil && !w.cfg.Filter(path) {
		return
	}

	w.logger.Debug("File changed", "path", path, "op", typ.String())
	w.batch.Add(Event{Type: typ, Path: path, Timestamp: time.Now()})
}

// IsIgnored reports whether path matches an ignore pattern. Base-name globs
// match the last element; "dir/**" patterns match any path containing a
// dir element.
func (w *Watcher) IsIgnored(path string) bool {
	base := filepath.Base(path)
	elems := strings.Split(filepath.ToSlash(path), "/")
	for _, pattern := range w.cfg.Ignore {
		if dir, ok := strings.CutSuffix(pattern, "/**"); ok {
			for _, e := range elems {
				if e == dir {
					return true
				}
			}
			continue
		}
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}

// Close stops the underlying watcher.
func (w *Watcher) Close() error {
	w.batch.Cancel()
	return w.fsw.Close()
}
