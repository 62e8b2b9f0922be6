// Package fswatch reloads on-disk artifacts (lexicon, detection rules) when
// they change.
package fswatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"honeyshield/pkg/logger"
)

// DefaultDebounce coalesces the burst of events an editor save produces.
const DefaultDebounce = 500 * time.Millisecond

// Watcher calls a reload function after files under a path change.
type Watcher struct {
	dir      string
	match    func(name string) bool
	debounce time.Duration
	reload   func() error
	logger   *logger.Logger
}

// NewFile watches a single file. The parent directory is watched so that
// atomic replace-on-save is seen.
func NewFile(path string, reload func() error, log *logger.Logger) *Watcher {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	return &Watcher{
		dir:      filepath.Dir(abs),
		match:    func(name string) bool { return sameFile(name, abs) },
		debounce: DefaultDebounce,
		reload:   reload,
		logger:   log.WithComponent("fswatch"),
	}
}

// NewDir watches a directory for files with one of the given extensions.
func NewDir(dir string, exts []string, reload func() error, log *logger.Logger) *Watcher {
	return &Watcher{
		dir: dir,
		match: func(name string) bool {
			ext := strings.ToLower(filepath.Ext(name))
			for _, e := range exts {
				if ext == e {
					return true
				}
			}
			return false
		},
		debounce: DefaultDebounce,
		reload:   reload,
		logger:   log.WithComponent("fswatch"),
	}
}

// WithDebounce overrides the debounce interval.
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	w.debounce = d
	return w
}

func sameFile(name, abs string) bool {
	n, err := filepath.Abs(name)
	if err != nil {
		n = filepath.Clean(name)
	}
	return n == abs
}

// Run blocks until ctx is done. A missing directory is reported as an error
// so callers can decide whether watching is optional.
func (w *Watcher) Run(ctx context.Context) error {
	if _, err := os.Stat(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Info().Str("dir", w.dir).Msg("watching for changes")

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !w.match(event.Name) {
				continue
			}
			w.logger.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("change detected")
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerCh = timer.C

		case <-timerCh:
			timerCh = nil
			if err := w.reload(); err != nil {
				w.logger.Warn().Err(err).Str("dir", w.dir).Msg("reload failed, keeping previous version")
				continue
			}
			w.logger.Info().Str("dir", w.dir).Msg("reloaded after change")

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("watcher error")
		}
	}
}
