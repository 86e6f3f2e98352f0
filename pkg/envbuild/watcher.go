package envbuild

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/draky-dev/draky/pkg/hooks"
)

// DefaultDebounce is how long the watcher waits for changes to settle before
// rebuilding.
const DefaultDebounce = 500 * time.Millisecond

// RebuildFunc is called after watched files changed.
type RebuildFunc func(ctx context.Context) error

// Watcher rebuilds the environment when configuration files under the config
// root change.
type Watcher struct {
	root     string
	debounce time.Duration
	logger   zerolog.Logger

	// ignored holds generated files; writing them must not trigger a rebuild.
	ignored map[string]bool

	watcher *fsnotify.Watcher
	mu      sync.Mutex
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithIgnored excludes generated files from triggering rebuilds.
func WithIgnored(paths ...string) WatcherOption {
	return func(w *Watcher) {
		for _, p := range paths {
			w.ignored[filepath.Clean(p)] = true
		}
	}
}

// NewWatcher creates a watcher over the config root of a project.
func NewWatcher(configRoot string, logger zerolog.Logger, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		root:     configRoot,
		debounce: DefaultDebounce,
		ignored:  make(map[string]bool),
		logger:   logger.With().Str("component", "watcher").Logger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Watch blocks until ctx is done, calling rebuild once changes to fragments,
// recipes or hook files have settled. Rebuild errors are logged and watching
// continues.
func (w *Watcher) Watch(ctx context.Context, rebuild RebuildFunc) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()
	w.watcher = watcher

	if err := w.watchDirectory(w.root); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.root, err)
	}

	w.logger.Info().Str("path", w.root).Msg("Watching for configuration changes")

	var (
		timer   *time.Timer
		timerMu sync.Mutex
	)
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.watchDirectory(event.Name); err != nil {
						w.logger.Warn().Err(err).Str("path", event.Name).Msg("Failed to watch directory")
					}
				}
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 || !w.relevant(event.Name) {
				continue
			}

			w.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Configuration file changed")

			timerMu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				w.run(ctx, rebuild)
			})
			timerMu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// run serializes rebuilds so a slow build never overlaps the next one.
func (w *Watcher) run(ctx context.Context, rebuild RebuildFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if ctx.Err() != nil {
		return
	}

	w.logger.Info().Msg("Rebuilding environment")
	if err := rebuild(ctx); err != nil {
		w.logger.Error().Err(err).Msg("Rebuild failed")
	}
}

// watchDirectory adds dir and every directory below it to the watcher.
func (w *Watcher) watchDirectory(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
}

// relevant reports whether a change to path should trigger a rebuild.
func (w *Watcher) relevant(path string) bool {
	if w.ignored[filepath.Clean(path)] {
		return false
	}
	return Relevant(path)
}

// Relevant reports whether a file can affect a build. Fragments, recipes and
// extended files are YAML; hooks are Starlark or WASM.
func Relevant(path string) bool {
	base := filepath.Base(path)
	switch {
	case base == hooks.StarlarkHookFile, base == hooks.WASMHookFile:
		return true
	case strings.HasSuffix(base, ".yml"), strings.HasSuffix(base, ".yaml"):
		return true
	default:
		return false
	}
}
