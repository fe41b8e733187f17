package extractor

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/mvp-joe/leantrace/internal/files"
)

// Watcher re-traces source files as they change on disk. Events are
// debounced so a save burst triggers one run.
type Watcher struct {
	opts         Options
	discovery    *files.Discovery
	watcher      *fsnotify.Watcher
	debounceTime time.Duration
	logger       *zap.Logger

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a watcher over opts.RootDir using discovery's patterns
// to filter events.
func NewWatcher(opts Options, discovery *files.Discovery) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	w := &Watcher{
		opts:         opts,
		discovery:    discovery,
		watcher:      fsw,
		debounceTime: 500 * time.Millisecond,
		logger:       logger,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
	if err := w.addDirectoriesRecursively(opts.RootDir); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Start begins watching for file changes.
func (w *Watcher) Start(ctx context.Context) {
	go w.watch(ctx)
}

// Stop stops the watcher and waits for the event loop to drain.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		<-w.doneCh
		w.watcher.Close()
	})
}

// watch is the main event loop with debouncing logic.
func (w *Watcher) watch(ctx context.Context) {
	defer close(w.doneCh)

	var debounceTimer *time.Timer
	retraceCh := make(chan struct{}, 1)
	changed := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case <-w.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.shouldProcessEvent(event) {
				continue
			}

			relPath, _ := filepath.Rel(w.opts.RootDir, event.Name)
			changed[filepath.ToSlash(relPath)] = true

			// New directories get watched as they appear.
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addDirectoriesRecursively(event.Name); err != nil {
						w.logger.Warn("watch new directory failed",
							zap.String("dir", event.Name), zap.Error(err))
					}
				}
			}

			if debounceTimer != nil {
				if !debounceTimer.Stop() {
					select {
					case <-debounceTimer.C:
					default:
					}
				}
			}
			debounceTimer = time.AfterFunc(w.debounceTime, func() {
				select {
				case retraceCh <- struct{}{}:
				default:
				}
			})

		case <-retraceCh:
			w.retrace(ctx, changed)
			changed = make(map[string]bool)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

// retrace runs extraction over the changed batch. Deleted files drop out via
// the manifest prune in Run when full discovery is used; here only surviving
// files are passed.
func (w *Watcher) retrace(ctx context.Context, changed map[string]bool) {
	var relPaths []string
	for relPath := range changed {
		if _, err := os.Stat(filepath.Join(w.opts.RootDir, relPath)); err == nil {
			relPaths = append(relPaths, relPath)
		}
	}
	if len(relPaths) == 0 {
		return
	}

	w.logger.Info("retracing changed files", zap.Int("count", len(relPaths)))
	start := time.Now()
	opts := w.opts
	// The batch is partial; pruning against it would drop every other file's
	// manifest record.
	opts.Prune = false
	summary, err := Run(ctx, opts, relPaths)
	if err != nil {
		w.logger.Error("retrace failed", zap.Error(err))
		return
	}
	w.logger.Info("retrace complete",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("traced", summary.Traced),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed))
}

// shouldProcessEvent checks if an event should trigger retracing.
func (w *Watcher) shouldProcessEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) == 0 {
		return false
	}
	relPath, err := filepath.Rel(w.opts.RootDir, event.Name)
	if err != nil {
		return false
	}
	relPath = filepath.ToSlash(relPath)
	if w.discovery.Ignored(relPath) {
		return false
	}
	return w.discovery.MatchesSource(relPath)
}

// addDirectoriesRecursively adds all non-ignored directories in the tree to
// the watcher.
func (w *Watcher) addDirectoriesRecursively(rootPath string) error {
	return filepath.Walk(rootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			w.logger.Warn("watch walk error", zap.String("path", path), zap.Error(err))
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		relPath, err := filepath.Rel(w.opts.RootDir, path)
		if err != nil {
			return nil
		}
		if relPath != "." && w.discovery.Ignored(filepath.ToSlash(relPath)) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("watch add failed", zap.String("dir", path), zap.Error(err))
		}
		return nil
	})
}
