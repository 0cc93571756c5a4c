// Package mock provides in-memory implementations of [audio.CaptureDevice],
// [audio.InputStream], and [audio.OutputSink] for use in unit tests.
//
// All mocks are safe for concurrent use. They record every call so that tests
// can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	stream := mock.NewStream()
//	dev := &mock.Device{OpenResult: stream}
//	sink := &mock.Sink{}
//	stream.Push(make([]float32, 1024)) // deliver one captured block
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/MrWong99/voxchat/pkg/audio"
)

// ErrStreamClosed is returned by [Stream.ReadBlock] after Close.
var ErrStreamClosed = errors.New("mock: stream closed")

// ─── Device ───────────────────────────────────────────────────────────────────

// Device is a mock implementation of [audio.CaptureDevice].
type Device struct {
	mu sync.Mutex

	// OpenResult is the stream returned by Open.
	OpenResult audio.InputStream

	// OpenError is returned by Open when non-nil.
	OpenError error

	// OpenCalls records the options of every Open invocation.
	OpenCalls []audio.CaptureOptions
}

// Open implements [audio.CaptureDevice].
func (d *Device) Open(_ context.Context, opts audio.CaptureOptions) (audio.InputStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.OpenCalls = append(d.OpenCalls, opts)
	if d.OpenError != nil {
		return nil, d.OpenError
	}
	return d.OpenResult, nil
}

// CallCountOpen returns how many times Open was called.
func (d *Device) CallCountOpen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.OpenCalls)
}

// ─── Stream ───────────────────────────────────────────────────────────────────

// Stream is a mock [audio.InputStream]. Blocks pushed with [Stream.Push] are
// returned by ReadBlock in order.
type Stream struct {
	blocks chan []float32
	closed chan struct{}
	once   sync.Once

	mu         sync.Mutex
	closeCalls int
	reads      int
}

// NewStream returns an open Stream with room for 64 pending blocks.
func NewStream() *Stream {
	return &Stream{
		blocks: make(chan []float32, 64),
		closed: make(chan struct{}),
	}
}

// Push queues one captured block. It does not block unless 64 blocks are
// already pending.
func (s *Stream) Push(block []float32) {
	s.blocks <- block
}

// ReadBlock implements [audio.InputStream]. It copies the next pushed block
// into block. Pushed blocks shorter than block are zero-padded.
func (s *Stream) ReadBlock(block []float32) error {
	select {
	case <-s.closed:
		return ErrStreamClosed
	case b := <-s.blocks:
		n := copy(block, b)
		clear(block[n:])
		s.mu.Lock()
		s.reads++
		s.mu.Unlock()
		return nil
	}
}

// Close implements [audio.InputStream].
func (s *Stream) Close() error {
	s.mu.Lock()
	s.closeCalls++
	s.mu.Unlock()
	s.once.Do(func() { close(s.closed) })
	return nil
}

// CallCountClose returns how many times Close was called.
func (s *Stream) CallCountClose() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}

// Reads returns how many blocks have been read.
func (s *Stream) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// ─── Sink ─────────────────────────────────────────────────────────────────────

// Sink is a mock implementation of [audio.OutputSink].
type Sink struct {
	mu sync.Mutex

	// FormatResult is returned by Format. Defaults to 24 kHz mono when zero.
	FormatResult audio.Format

	// PlayError is returned by every Play call when non-nil.
	PlayError error

	// Gate, when non-nil, makes each Play call wait for one value (or for
	// the channel to be closed) before returning. Tests use it to hold a
	// segment "on air".
	Gate chan struct{}

	// Started receives a value each time Play begins, if non-nil. Sends are
	// non-blocking.
	Started chan audio.PCM

	played     []audio.PCM
	closeCalls int
}

// Format implements [audio.OutputSink].
func (s *Sink) Format() audio.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FormatResult == (audio.Format{}) {
		return audio.Format{SampleRate: 24000, Channels: 1}
	}
	return s.FormatResult
}

// Play implements [audio.OutputSink]. The PCM is recorded before the gate is
// awaited, so tests observe a segment as soon as it starts.
func (s *Sink) Play(ctx context.Context, p audio.PCM) error {
	s.mu.Lock()
	s.played = append(s.played, p)
	gate, started, err := s.Gate, s.Started, s.PlayError
	s.mu.Unlock()

	if started != nil {
		select {
		case started <- p:
		default:
		}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// Close implements [audio.OutputSink].
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	return nil
}

// Played returns a copy of every PCM buffer passed to Play, in order.
func (s *Sink) Played() []audio.PCM {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audio.PCM, len(s.played))
	copy(out, s.played)
	return out
}

// CallCountClose returns how many times Close was called.
func (s *Sink) CallCountClose() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}
