package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidSegmentCodecs lists the decoder names accepted by audio.segment_codec.
var ValidSegmentCodecs = []string{"auto", "wav", "mp3", "vorbis", "opus", "pcm16"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills in defaults and
// validates the result. An empty document yields the default config.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields of cfg.
func ApplyDefaults(cfg *Config) {
	s := &cfg.Server
	if s.APIURL == "" {
		s.APIURL = DefaultAPIURL
	}
	if s.WSURL == "" {
		s.WSURL = DefaultWSURL
	}
	if s.RequestTimeoutMs == 0 {
		s.RequestTimeoutMs = DefaultRequestTimeoutMs
	}
	if s.LogLevel == "" {
		s.LogLevel = LogInfo
	}
	if s.WireSchema == "" {
		s.WireSchema = "v2"
	}

	a := &cfg.Audio
	if a.ChunkSize == 0 {
		a.ChunkSize = DefaultChunkSize
	}
	if a.SampleRate == 0 {
		a.SampleRate = DefaultSampleRate
	}
	if a.PlaybackRate == 0 {
		a.PlaybackRate = DefaultPlaybackRate
	}
	if a.SegmentCodec == "" {
		a.SegmentCodec = DefaultSegmentCodec
	}
	if a.SegmentSampleRate == 0 {
		a.SegmentSampleRate = DefaultSegmentRate
	}
	if a.OutputSampleRate == 0 {
		a.OutputSampleRate = DefaultOutputRate
	}

	if cfg.Capture.Driver == "" {
		cfg.Capture.Driver = DefaultCaptureDriver
	}
	if cfg.Playback.Driver == "" {
		cfg.Playback.Driver = DefaultPlaybackDriver
	}
	if cfg.Playback.Volume == 0 {
		cfg.Playback.Volume = DefaultVolume
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if err := validateURL("server.api_url", cfg.Server.APIURL, "http", "https"); err != nil {
		errs = append(errs, err)
	}
	if err := validateURL("server.ws_url", cfg.Server.WSURL, "ws", "wss"); err != nil {
		errs = append(errs, err)
	}
	if cfg.Server.RequestTimeoutMs < 0 {
		errs = append(errs, fmt.Errorf("server.request_timeout_ms %d must be positive", cfg.Server.RequestTimeoutMs))
	}
	switch cfg.Server.WireSchema {
	case "", "v1", "v2":
	default:
		errs = append(errs, fmt.Errorf("server.wire_schema %q is invalid; valid values: v1, v2", cfg.Server.WireSchema))
	}

	// Audio
	if cfg.Audio.ChunkSize < 0 {
		errs = append(errs, fmt.Errorf("audio.chunk_size %d must be positive", cfg.Audio.ChunkSize))
	}
	if cfg.Audio.SampleRate < 0 || cfg.Audio.SegmentSampleRate < 0 || cfg.Audio.OutputSampleRate < 0 {
		errs = append(errs, errors.New("audio sample rates must be positive"))
	}
	if cfg.Audio.PlaybackRate != 0 && (cfg.Audio.PlaybackRate < 0.25 || cfg.Audio.PlaybackRate > 4) {
		errs = append(errs, fmt.Errorf("audio.playback_rate %.2f is out of range [0.25, 4]", cfg.Audio.PlaybackRate))
	}
	if cfg.Audio.SegmentCodec != "" && !slices.Contains(ValidSegmentCodecs, cfg.Audio.SegmentCodec) {
		errs = append(errs, fmt.Errorf("audio.segment_codec %q is invalid; valid values: %v", cfg.Audio.SegmentCodec, ValidSegmentCodecs))
	}

	// Playback
	if cfg.Playback.Volume < 0 || cfg.Playback.Volume > 100 {
		errs = append(errs, fmt.Errorf("playback.volume %d is out of range [0, 100]", cfg.Playback.Volume))
	}

	return errors.Join(errs...)
}

func validateURL(field, raw string, schemes ...string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s %q: %w", field, raw, err)
	}
	if !slices.Contains(schemes, u.Scheme) || u.Host == "" {
		return fmt.Errorf("%s %q must be an absolute %v URL", field, raw, schemes)
	}
	return nil
}
