// Package config provides the configuration schema, loader, watcher, and
// audio driver registry for the voxchat client.
package config

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultAPIURL           = "http://localhost:8000/api"
	DefaultWSURL            = "ws://localhost:8000/api/ws"
	DefaultRequestTimeoutMs = 5000
	DefaultChunkSize        = 1024
	DefaultSampleRate       = 16000
	DefaultPlaybackRate     = 1.2
	DefaultSegmentCodec     = "auto"
	DefaultSegmentRate      = 24000
	DefaultOutputRate       = 24000
	DefaultCaptureDriver    = "ffmpeg"
	DefaultPlaybackDriver   = "ffplay"
	DefaultVolume           = 80
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Audio    AudioConfig    `yaml:"audio"`
	Capture  CaptureConfig  `yaml:"capture"`
	Playback PlaybackConfig `yaml:"playback"`
	Status   StatusConfig   `yaml:"status"`
}

// ServerConfig points the client at the voice bot backend.
type ServerConfig struct {
	// APIURL is the base of the REST API (e.g., "http://localhost:8000/api").
	// The session bootstrap call is POST {api_url}/set_username.
	APIURL string `yaml:"api_url"`

	// WSURL is the base of the streaming endpoint. The session id is appended
	// as the final path segment.
	WSURL string `yaml:"ws_url"`

	// RequestTimeoutMs bounds the bootstrap request.
	RequestTimeoutMs int `yaml:"request_timeout_ms"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// WireSchema selects the JSON message layout: "v1" or "v2".
	WireSchema string `yaml:"wire_schema"`
}

// AudioConfig holds frame and segment parameters.
type AudioConfig struct {
	// ChunkSize is the number of samples per outbound frame.
	ChunkSize int `yaml:"chunk_size"`

	// SampleRate is the capture rate in Hz.
	SampleRate int `yaml:"sample_rate"`

	// PlaybackRate speeds up (>1) or slows down (<1) synthesized speech.
	// Hot-reloadable.
	PlaybackRate float64 `yaml:"playback_rate"`

	// SegmentCodec names the decoder for inbound audio segments:
	// auto, wav, mp3, vorbis, opus or pcm16.
	SegmentCodec string `yaml:"segment_codec"`

	// SegmentSampleRate is the rate of headerless segments (opus, pcm16).
	SegmentSampleRate int `yaml:"segment_sample_rate"`

	// OutputSampleRate is the rate segments are rendered at.
	OutputSampleRate int `yaml:"output_sample_rate"`
}

// CaptureConfig selects and tunes the microphone driver.
type CaptureConfig struct {
	// Driver is a name registered in the [Registry] ("ffmpeg", "none").
	Driver string `yaml:"driver"`

	FFmpegPath  string `yaml:"ffmpeg_path"`
	InputFormat string `yaml:"input_format"`
	Device      string `yaml:"device"`

	// EchoCancellation and NoiseSuppression default to true when unset.
	EchoCancellation *bool `yaml:"echo_cancellation"`
	NoiseSuppression *bool `yaml:"noise_suppression"`
}

// PlaybackConfig selects and tunes the speech output driver.
type PlaybackConfig struct {
	// Driver is a name registered in the [Registry] ("ffplay", "speaker", "none").
	Driver string `yaml:"driver"`

	FFplayPath string `yaml:"ffplay_path"`

	// Volume is 1..100; 0 selects the default.
	Volume int `yaml:"volume"`
}

// StatusConfig configures the local health and metrics server.
type StatusConfig struct {
	// ListenAddr is the TCP address for /healthz, /readyz and /metrics.
	// Empty disables the server.
	ListenAddr string `yaml:"listen_addr"`
}

// Enabled reports whether b is nil or true.
func Enabled(b *bool) bool {
	return b == nil || *b
}
