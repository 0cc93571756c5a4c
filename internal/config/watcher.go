package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] polls the config file.
const DefaultWatchInterval = 2 * time.Second

// Watcher polls a config file and hands each valid edit to an apply
// callback as a [ConfigDiff] against the previously applied config. An edit
// that fails to parse or validate is logged and skipped; the last good
// config stays current.
type Watcher struct {
	path     string
	interval time.Duration
	apply    func(ConfigDiff)
	log      *slog.Logger

	mu      sync.Mutex
	current *Config
	modTime time.Time
	sum     [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Values <= 0 are ignored.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatcherLogger sets the logger. Defaults to [slog.Default].
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.log = l }
}

// NewWatcher loads path and returns a watcher for it. apply may be nil.
// Polling starts with [Watcher.Run].
func NewWatcher(path string, apply func(ConfigDiff), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		apply:    apply,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}

	snap, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(snap.data))
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	w.current, w.modTime, w.sum = cfg, snap.modTime, snap.sum
	return w, nil
}

// Current returns the last config that was successfully applied.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run polls until ctx is done. Read and validation errors are logged and do
// not stop the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := w.Check(); err != nil {
				w.log.Warn("config: reload skipped", "path", w.path, "err", err)
			}
		}
	}
}

// Check polls the file once. When its content changed and is valid, the
// diff is passed to apply and Check reports true. A file that was only
// touched is not reloaded.
func (w *Watcher) Check() (bool, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return false, err
	}
	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.modTime)
	w.mu.Unlock()
	if unchanged {
		return false, nil
	}

	snap, err := w.read()
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	if snap.sum == w.sum {
		w.modTime = snap.modTime
		w.mu.Unlock()
		return false, nil
	}
	w.mu.Unlock()

	cfg, err := LoadFromReader(bytes.NewReader(snap.data))
	if err != nil {
		// Remember the bad content so it is reported once, not every poll.
		w.mu.Lock()
		w.modTime, w.sum = snap.modTime, snap.sum
		w.mu.Unlock()
		return false, err
	}

	w.mu.Lock()
	d := Diff(w.current, cfg)
	w.current, w.modTime, w.sum = cfg, snap.modTime, snap.sum
	w.mu.Unlock()

	w.log.Info("config: reloaded", "path", w.path,
		"log_level_changed", d.LogLevelChanged,
		"playback_rate_changed", d.PlaybackRateChanged,
		"restart_required", d.RestartRequired)
	if w.apply != nil {
		w.apply(d)
	}
	return true, nil
}

type snapshot struct {
	data    []byte
	modTime time.Time
	sum     [sha256.Size]byte
}

func (w *Watcher) read() (snapshot, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return snapshot{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return snapshot{}, err
	}
	return snapshot{data: data, modTime: info.ModTime(), sum: sha256.Sum256(data)}, nil
}
