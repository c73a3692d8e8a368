package controlfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const DefaultDebounce = 150 * time.Millisecond

type Options struct {
	// Debounce collapses bursts of writes from editors into one reload.
	Debounce time.Duration
	// LoadExisting applies the file once at start if it already exists.
	LoadExisting bool
	Logger       *zap.Logger
}

// Stats tracks watcher activity.
type Stats struct {
	Events        int
	Applied       int
	Errors        int
	LastAppliedAt time.Time
}

// Watcher reloads a control file whenever it changes and hands the decoded
// command to apply. The parent directory is watched so that editors which
// replace the file by rename are still seen.
type Watcher struct {
	path     string
	dir      string
	apply    func(Command) error
	debounce time.Duration
	existing bool
	logger   *zap.Logger

	mu      sync.Mutex
	pending time.Time
	stats   Stats
}

func NewWatcher(path string, apply func(Command) error, opts Options) *Watcher {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	path = filepath.Clean(path)
	return &Watcher{
		path:     path,
		dir:      filepath.Dir(path),
		apply:    apply,
		debounce: opts.Debounce,
		existing: opts.LoadExisting,
		logger:   opts.Logger,
	}
}

// Run watches until ctx is cancelled. It returns nil on cancellation and an
// error if the underlying watcher fails.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return err
	}
	w.logger.Info("watching control file", zap.String("path", w.path))

	if w.existing {
		if _, err := os.Stat(w.path); err == nil {
			w.reload()
		}
	}

	tick := w.debounce / 4
	if tick <= 0 {
		tick = time.Millisecond
	}
	debounceTicker := time.NewTicker(tick)
	defer debounceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("control file event channel closed")
			}
			w.handleEvent(event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("control file error channel closed")
			}
			w.logger.Warn("control file watcher error", zap.Error(err))
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case now := <-debounceTicker.C:
			if w.due(now) {
				w.reload()
			}
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}
	w.mu.Lock()
	w.stats.Events++
	w.pending = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) due(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending.IsZero() || now.Sub(w.pending) < w.debounce {
		return false
	}
	w.pending = time.Time{}
	return true
}

func (w *Watcher) reload() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		if !os.IsNotExist(err) {
			w.fail("read control file", err)
		}
		return
	}
	cmd, err := Parse(data)
	if err != nil {
		w.fail("parse control file", err)
		return
	}
	if cmd.IsEmpty() {
		return
	}
	if err := w.apply(cmd); err != nil {
		w.fail("apply control file", err)
		return
	}
	w.mu.Lock()
	w.stats.Applied++
	w.stats.LastAppliedAt = time.Now()
	w.mu.Unlock()
	w.logger.Debug("control file applied",
		zap.String("preset", cmd.Preset),
		zap.String("mode", cmd.Mode),
		zap.Int("perturb", cmd.Perturb),
	)
}

func (w *Watcher) fail(msg string, err error) {
	w.logger.Warn(msg, zap.String("path", w.path), zap.Error(err))
	w.mu.Lock()
	w.stats.Errors++
	w.mu.Unlock()
}

func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}
