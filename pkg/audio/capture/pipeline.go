// Package capture streams microphone audio to the server as fixed-size PCM
// frames.
//
// A [Pipeline] acquires an [audio.InputStream], reads full blocks of float
// samples from it, encodes each block with [audio.EncodeFrame] and hands the
// frame to a [FrameSender]. Frames are only forwarded while the sender is
// connected and the shared [audio.Floor] permits capture; otherwise they are
// dropped, never queued.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/voxchat/internal/observe"
	"github.com/MrWong99/voxchat/pkg/audio"
)

// Sentinel errors returned by [Pipeline.Start].
var (
	// ErrDeviceUnavailable wraps a failure to acquire the microphone.
	ErrDeviceUnavailable = errors.New("capture: device unavailable")

	// ErrAlreadyRecording is returned when Start is called while recording.
	ErrAlreadyRecording = errors.New("capture: already recording")
)

// FrameSender is the outbound half of the streaming session.
type FrameSender interface {
	// Connected reports whether frames can currently be sent.
	Connected() bool

	// SendFrame transmits one encoded frame.
	SendFrame(frame audio.AudioFrame) error
}

// Option configures a [Pipeline] during construction.
type Option func(*Pipeline)

// WithChunkSize sets the number of samples per frame. Default: [audio.DefaultChunkSize].
func WithChunkSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.opts.ChunkSize = n
		}
	}
}

// WithSampleRate sets the capture rate in Hz. Default: [audio.DefaultSampleRate].
func WithSampleRate(hz int) Option {
	return func(p *Pipeline) {
		if hz > 0 {
			p.opts.SampleRate = hz
		}
	}
}

// WithProcessing toggles the echo cancellation and noise suppression requested
// from the device. Both are on by default.
func WithProcessing(echoCancellation, noiseSuppression bool) Option {
	return func(p *Pipeline) {
		p.opts.EchoCancellation = echoCancellation
		p.opts.NoiseSuppression = noiseSuppression
	}
}

// WithErrorHandler registers fn to be called when recording stops because the
// input stream failed. fn runs on the capture goroutine.
func WithErrorHandler(fn func(error)) Option {
	return func(p *Pipeline) {
		p.onError = fn
	}
}

// WithMetrics sets the metrics recorder. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		p.log = l
	}
}

// Pipeline is the microphone capture pipeline. All exported methods are safe
// for concurrent use.
type Pipeline struct {
	dev     audio.CaptureDevice
	sender  FrameSender
	floor   *audio.Floor
	opts    audio.CaptureOptions
	onError func(error)
	metrics *observe.Metrics
	log     *slog.Logger

	mu      sync.Mutex
	stream  audio.InputStream
	stopped chan struct{} // closed when the current read loop returns
	stopReq chan struct{} // closed by Stop to tell the read loop to exit quietly

	peak atomic.Uint64 // math.Float64bits of the last frame's peak level
	rms  atomic.Uint64 // math.Float64bits of the last frame's RMS level
}

// New creates an idle [Pipeline]. floor is shared with the playback queue.
func New(dev audio.CaptureDevice, sender FrameSender, floor *audio.Floor, opts ...Option) *Pipeline {
	p := &Pipeline{
		dev:    dev,
		sender: sender,
		floor:  floor,
		opts: audio.CaptureOptions{
			SampleRate:       audio.DefaultSampleRate,
			ChunkSize:        audio.DefaultChunkSize,
			EchoCancellation: true,
			NoiseSuppression: true,
		},
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	if p.log == nil {
		p.log = slog.Default()
	}
	return p
}

// Start acquires the microphone and begins streaming frames. It returns
// [ErrAlreadyRecording] if recording is already in progress and wraps
// [ErrDeviceUnavailable] if the device cannot be opened; in both cases the
// recording state is unchanged.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream != nil {
		return ErrAlreadyRecording
	}
	stream, err := p.dev.Open(ctx, p.opts)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	p.stream = stream
	p.stopped = make(chan struct{})
	p.stopReq = make(chan struct{})
	go p.readLoop(stream, p.stopReq, p.stopped)

	p.log.Info("capture: recording started", "sample_rate", p.opts.SampleRate, "chunk_size", p.opts.ChunkSize)
	return nil
}

// Stop releases the microphone. A partially captured block is discarded.
// Stopping when not recording is a no-op.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	stream, stopReq, stopped := p.stream, p.stopReq, p.stopped
	p.stream = nil
	p.mu.Unlock()

	if stream == nil {
		return nil
	}
	close(stopReq)
	err := stream.Close()
	<-stopped
	p.peak.Store(0)
	p.rms.Store(0)

	p.log.Info("capture: recording stopped")
	if err != nil {
		return fmt.Errorf("capture: close stream: %w", err)
	}
	return nil
}

// Recording reports whether the microphone is currently open.
func (p *Pipeline) Recording() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stream != nil
}

// Level returns the peak and RMS level (0..1) of the most recent frame, or
// zeros when not recording.
func (p *Pipeline) Level() (peak, rms float64) {
	return math.Float64frombits(p.peak.Load()), math.Float64frombits(p.rms.Load())
}

// readLoop pulls blocks from stream until it fails or Stop is called.
func (p *Pipeline) readLoop(stream audio.InputStream, stopReq, stopped chan struct{}) {
	defer close(stopped)

	ctx := context.Background()
	chunk := p.opts.ChunkSize
	block := make([]float32, chunk)
	blockDur := audio.BlockDuration(chunk, p.opts.SampleRate)
	var ts time.Duration

	for {
		if err := stream.ReadBlock(block); err != nil {
			select {
			case <-stopReq:
				return
			default:
			}
			p.fail(stream, err)
			return
		}
		// A block that completed while Stop was closing the stream is not sent.
		select {
		case <-stopReq:
			return
		default:
		}

		data, err := audio.EncodeFrame(block, chunk)
		if err != nil {
			// Unreachable: block is always chunk samples long.
			p.log.Error("capture: encode frame", "err", err)
			continue
		}
		frame := audio.AudioFrame{Data: data, SampleRate: p.opts.SampleRate, Channels: 1, Timestamp: ts}
		ts += blockDur

		peak, rms := audio.Level(data)
		p.peak.Store(math.Float64bits(peak))
		p.rms.Store(math.Float64bits(rms))

		p.forward(ctx, frame)
	}
}

// forward sends frame if the floor and the connection allow it.
func (p *Pipeline) forward(ctx context.Context, frame audio.AudioFrame) {
	switch {
	case !p.floor.CanCapture():
		p.metrics.RecordFrameDropped(ctx, observe.DropPlayback)
	case !p.sender.Connected():
		p.metrics.RecordFrameDropped(ctx, observe.DropDisconnected)
	default:
		if err := p.sender.SendFrame(frame); err != nil {
			p.log.Debug("capture: frame not sent", "err", err)
			p.metrics.RecordFrameDropped(ctx, observe.DropSendError)
			return
		}
		p.metrics.RecordFrameSent(ctx)
	}
}

// fail ends recording after a stream error and reports it.
func (p *Pipeline) fail(stream audio.InputStream, err error) {
	p.mu.Lock()
	if p.stream == stream {
		p.stream = nil
	}
	p.mu.Unlock()

	_ = stream.Close()
	p.peak.Store(0)
	p.rms.Store(0)

	err = fmt.Errorf("capture: read: %w", err)
	p.log.Error("capture: recording aborted", "err", err)
	if p.onError != nil {
		p.onError(err)
	}
}
