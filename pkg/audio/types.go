package audio

import "time"

// Defaults for the outbound microphone stream.
const (
	// DefaultChunkSize is the number of samples per outbound frame.
	DefaultChunkSize = 1024

	// DefaultSampleRate is the capture sample rate in Hz.
	DefaultSampleRate = 16000

	// DefaultPlaybackRate is the speed multiplier applied to synthesized speech.
	DefaultPlaybackRate = 1.2

	// bytesPerSample is the width of one signed 16-bit PCM sample.
	bytesPerSample = 2
)

// AudioFrame is one fixed-size unit of outbound linear PCM. Frames are built
// by [EncodeFrame] from captured float samples and are immutable afterwards;
// each frame is transmitted once.
type AudioFrame struct {
	// Data holds signed 16-bit little-endian samples.
	Data []byte

	// SampleRate in Hz (16000 by default).
	SampleRate int

	// Channels is always 1 for microphone frames.
	Channels int

	// Timestamp marks the start of the frame relative to the start of capture.
	Timestamp time.Duration
}

// Samples returns the number of samples per channel held by the frame.
func (f AudioFrame) Samples() int {
	if f.Channels <= 0 {
		return 0
	}
	return len(f.Data) / bytesPerSample / f.Channels
}

// Segment is one inbound unit of synthesized speech as received from the
// network. The payload is opaque until a codec decodes it; it is not
// necessarily aligned to any frame size.
type Segment struct {
	// ID identifies the segment in logs and metrics.
	ID string

	// Data is the encoded payload exactly as received.
	Data []byte

	// Received is when the segment arrived.
	Received time.Time
}

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// PCM is decoded signed 16-bit little-endian audio together with its format.
type PCM struct {
	Data   []byte
	Format Format
}

// Duration returns the playback length of p at its native sample rate.
func (p PCM) Duration() time.Duration {
	if p.Format.SampleRate <= 0 || p.Format.Channels <= 0 {
		return 0
	}
	frames := len(p.Data) / bytesPerSample / p.Format.Channels
	return time.Duration(frames) * time.Second / time.Duration(p.Format.SampleRate)
}

// BlockDuration returns how long it takes to capture chunkSize samples at
// sampleRate, e.g. 64 ms for 1024 samples at 16 kHz.
func BlockDuration(chunkSize, sampleRate int) time.Duration {
	if chunkSize <= 0 || sampleRate <= 0 {
		return 0
	}
	return time.Duration(chunkSize) * time.Second / time.Duration(sampleRate)
}
