package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/voxchat/pkg/audio"
)

// ErrDriverNotRegistered is returned by Create* methods when no factory has
// been registered under the requested driver name.
var ErrDriverNotRegistered = errors.New("config: driver not registered")

// CaptureFactory builds a microphone driver from the loaded config.
type CaptureFactory func(*Config) (audio.CaptureDevice, error)

// PlaybackFactory builds a speech output driver from the loaded config.
type PlaybackFactory func(*Config) (audio.OutputSink, error)

// Registry maps driver names to their constructor functions. It is safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	capture  map[string]CaptureFactory
	playback map[string]PlaybackFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		capture:  make(map[string]CaptureFactory),
		playback: make(map[string]PlaybackFactory),
	}
}

// RegisterCapture registers a capture driver under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterCapture(name string, f CaptureFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capture[name] = f
}

// RegisterPlayback registers a playback driver under name.
func (r *Registry) RegisterPlayback(name string, f PlaybackFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.playback[name] = f
}

// CreateCapture builds the driver named by cfg.Capture.Driver.
func (r *Registry) CreateCapture(cfg *Config) (audio.CaptureDevice, error) {
	r.mu.RLock()
	f, ok := r.capture[cfg.Capture.Driver]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: capture %q (known: %v)", ErrDriverNotRegistered, cfg.Capture.Driver, r.CaptureDrivers())
	}
	dev, err := f(cfg)
	if err != nil {
		return nil, fmt.Errorf("config: create capture %q: %w", cfg.Capture.Driver, err)
	}
	return dev, nil
}

// CreatePlayback builds the driver named by cfg.Playback.Driver.
func (r *Registry) CreatePlayback(cfg *Config) (audio.OutputSink, error) {
	r.mu.RLock()
	f, ok := r.playback[cfg.Playback.Driver]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: playback %q (known: %v)", ErrDriverNotRegistered, cfg.Playback.Driver, r.PlaybackDrivers())
	}
	sink, err := f(cfg)
	if err != nil {
		return nil, fmt.Errorf("config: create playback %q: %w", cfg.Playback.Driver, err)
	}
	return sink, nil
}

// CaptureDrivers returns the registered capture driver names, sorted.
func (r *Registry) CaptureDrivers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.capture)
}

// PlaybackDrivers returns the registered playback driver names, sorted.
func (r *Registry) PlaybackDrivers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.playback)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
