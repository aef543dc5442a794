// Package watch runs import jobs when their job files change.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses the burst of events an editor save produces.
const DefaultDebounce = 500 * time.Millisecond

// Handler is called with the absolute path of a changed job file.
type Handler func(ctx context.Context, path string)

// Watcher watches directories for job files (.yaml, .yml, .json).
type Watcher struct {
	Dirs     []string
	Debounce time.Duration
	Handle   Handler
	Logger   *slog.Logger

	wg sync.WaitGroup
}

// IsJobFile reports whether path has a job file extension.
func IsJobFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// Run watches until ctx is done, then waits for started handlers to return.
// Each file is debounced separately.
func (w *Watcher) Run(ctx context.Context) error {
	if w.Handle == nil {
		return fmt.Errorf("watch: no handler")
	}
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer watcher.Close()

	for _, dir := range w.Dirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("watch: bad dir %q: %w", dir, err)
		}
		if err := watcher.Add(abs); err != nil {
			return fmt.Errorf("watch: add %q: %w", abs, err)
		}
	}
	logger.Info("watching for job files", "dirs", w.Dirs)

	var mu sync.Mutex
	timers := make(map[string]*time.Timer)
	defer func() {
		mu.Lock()
		for _, t := range timers {
			if t.Stop() {
				w.wg.Done()
			}
		}
		mu.Unlock()
		w.wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !IsJobFile(event.Name) {
				continue
			}
			path, _ := filepath.Abs(event.Name)

			mu.Lock()
			if t, exists := timers[path]; exists && t.Stop() {
				w.wg.Done()
			}
			w.wg.Add(1)
			var timer *time.Timer
			timer = time.AfterFunc(debounce, func() {
				defer w.wg.Done()
				mu.Lock()
				if timers[path] == timer {
					delete(timers, path)
				}
				mu.Unlock()
				if ctx.Err() != nil {
					return
				}
				logger.Info("job file changed", "path", path)
				w.Handle(ctx, path)
			})
			timers[path] = timer
			mu.Unlock()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", "error", err)
		}
	}
}
