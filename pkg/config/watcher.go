package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/openfroyo/assembler/pkg/assembly"
	"github.com/rs/zerolog"
)

// ReloadFunc receives a freshly loaded configuration, or the error that
// prevented loading it.
type ReloadFunc func(ctx context.Context, cfg assembly.Configuration, err error)

// Watcher reloads configuration sources when they change on disk.
type Watcher struct {
	logger   zerolog.Logger
	loader   *Loader
	paths    []string
	debounce time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	timer   *time.Timer
}

// NewWatcher creates a watcher over paths. A zero debounce selects 500ms.
func NewWatcher(logger zerolog.Logger, loader *Loader, paths []string, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{
		logger:   logger.With().Str("component", "config-watcher").Logger(),
		loader:   loader,
		paths:    paths,
		debounce: debounce,
	}
}

// Watch performs an initial load, then calls reloadFn after every burst of
// changes until ctx is done. It returns once watching has started.
func (w *Watcher) Watch(ctx context.Context, reloadFn ReloadFunc) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	for _, path := range w.paths {
		info, err := os.Stat(path)
		if err != nil {
			_ = watcher.Close()
			return fmt.Errorf("failed to stat path %s: %w", path, err)
		}

		if info.IsDir() {
			if err := watchDirectory(watcher, path); err != nil {
				w.logger.Warn().Err(err).Str("path", path).Msg("Failed to watch directory")
			}
			continue
		}
		// Editors replace files on save, so the parent directory is watched.
		if err := watcher.Add(filepath.Dir(path)); err != nil {
			w.logger.Warn().Err(err).Str("path", path).Msg("Failed to watch file")
		}
	}

	w.mu.Lock()
	w.watcher = watcher
	w.mu.Unlock()

	w.reload(ctx, reloadFn)
	go w.processEvents(ctx, watcher, reloadFn)

	w.logger.Info().
		Int("paths", len(w.paths)).
		Dur("debounce", w.debounce).
		Msg("Started watching configuration")

	return nil
}

// Stop stops watching.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	if w.watcher != nil {
		err := w.watcher.Close()
		w.watcher = nil
		return err
	}
	return nil
}

// watchDirectory adds a directory tree to the watcher.
func watchDirectory(watcher *fsnotify.Watcher, dirPath string) error {
	return filepath.WalkDir(dirPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}

func (w *Watcher) processEvents(ctx context.Context, watcher *fsnotify.Watcher, reloadFn ReloadFunc) {
	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if _, supported := FormatOf(event.Name); !supported {
				continue
			}

			w.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Configuration file changed")

			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.timer = time.AfterFunc(w.debounce, func() {
				w.reload(ctx, reloadFn)
			})
			w.mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (w *Watcher) reload(ctx context.Context, reloadFn ReloadFunc) {
	if ctx.Err() != nil {
		return
	}
	cfg, err := w.loader.Load(ctx, w.paths...)
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to reload configuration")
	} else {
		w.logger.Info().Int("components", len(cfg)).Msg("Configuration reloaded")
	}
	reloadFn(ctx, cfg, err)
}
