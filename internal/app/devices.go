package app

import (
	"context"
	"errors"

	"github.com/MrWong99/voxchat/pkg/audio"
	"github.com/MrWong99/voxchat/pkg/audio/codec"
)

// ErrNoCaptureDevice is returned by [NoCapture].
var ErrNoCaptureDevice = errors.New("app: no capture device configured")

// NoCapture is the capture driver used when capture is disabled.
type NoCapture struct{}

// Open implements [audio.CaptureDevice].
func (NoCapture) Open(context.Context, audio.CaptureOptions) (audio.InputStream, error) {
	return nil, ErrNoCaptureDevice
}

// DiscardSink is the playback driver used when playback is disabled. It
// holds each segment for its real duration so turn timing is preserved.
type DiscardSink struct {
	format audio.Format
	head   audio.Playhead
}

// NewDiscardSink returns a sink reporting format.
func NewDiscardSink(format audio.Format) *DiscardSink {
	if format.SampleRate <= 0 {
		format.SampleRate = codec.DefaultSampleRate
	}
	if format.Channels <= 0 {
		format.Channels = 1
	}
	return &DiscardSink{format: format}
}

// Format implements [audio.OutputSink].
func (s *DiscardSink) Format() audio.Format { return s.format }

// Play implements [audio.OutputSink].
func (s *DiscardSink) Play(ctx context.Context, p audio.PCM) error {
	return s.head.Wait(ctx, p.Duration())
}

// Close implements [audio.OutputSink].
func (s *DiscardSink) Close() error { return nil }

// Compile-time interface assertions.
var (
	_ audio.CaptureDevice = NoCapture{}
	_ audio.OutputSink    = (*DiscardSink)(nil)
)
