// Package audio defines the audio primitives of voxchat: outbound PCM frames,
// inbound speech segments, the float → int16 frame encoder, and the host I/O
// abstractions the capture and playback pipelines are built on.
//
// The two device-facing abstractions are:
//
//   - [CaptureDevice]: opens an exclusive microphone [InputStream] that
//     delivers fixed-size blocks of float samples.
//   - [OutputSink]: renders decoded PCM to the speakers.
//
// Concrete bindings live in sub-packages (audio/ffmpeg, audio/speaker) and
// test doubles in audio/mock. Keeping the interfaces narrow lets the capture
// and playback state machines run in unit tests without audio hardware.
//
// [Floor] is the single coordinator that keeps capture and playback mutually
// exclusive.
package audio

import "context"

// CaptureOptions configures the microphone stream requested from a
// [CaptureDevice].
type CaptureOptions struct {
	// SampleRate is the capture rate in Hz.
	SampleRate int

	// ChunkSize is the number of samples per block returned by
	// [InputStream.ReadBlock].
	ChunkSize int

	// EchoCancellation asks the device to suppress speaker output picked up
	// by the microphone. Devices that cannot provide it log a warning.
	EchoCancellation bool

	// NoiseSuppression asks the device to attenuate stationary background noise.
	NoiseSuppression bool
}

// CaptureDevice acquires microphone input.
type CaptureDevice interface {
	// Open acquires an exclusive mono input stream. It returns an error when
	// the device is absent or access is denied. ctx bounds the acquisition
	// only; the stream stays open until [InputStream.Close].
	Open(ctx context.Context, opts CaptureOptions) (InputStream, error)
}

// InputStream is an open microphone stream.
type InputStream interface {
	// ReadBlock fills block with exactly len(block) samples, blocking until
	// they have been captured. Partially captured blocks are never returned:
	// if the stream is closed mid-block, ReadBlock returns an error and the
	// partial data is discarded.
	ReadBlock(block []float32) error

	// Close releases the device. Safe to call more than once.
	Close() error
}

// OutputSink renders PCM to an audio output.
//
// Play blocks until p has been handed to the output in a way that the next
// call can follow without an audible gap, or until ctx is done. Calls are
// made sequentially from one goroutine.
type OutputSink interface {
	// Format returns the PCM format the sink expects.
	Format() Format

	// Play renders p, which is already in [OutputSink.Format].
	Play(ctx context.Context, p PCM) error

	// Close releases the output device.
	Close() error
}
