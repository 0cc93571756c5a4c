// Package speaker renders PCM on the host's default output device through
// the beep speaker, which drives the platform audio API in-process.
package speaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"

	"github.com/MrWong99/voxchat/pkg/audio"
)

// DefaultBuffer is the speaker buffer length. Larger buffers hide decode time
// between segments at the cost of latency.
const DefaultBuffer = 100 * time.Millisecond

// output is the part of the beep speaker package the sink drives.
type output interface {
	Init(sr beep.SampleRate, bufferSize int) error
	Play(s ...beep.Streamer)
	Clear()
}

type hostOutput struct{}

func (hostOutput) Init(sr beep.SampleRate, n int) error { return speaker.Init(sr, n) }
func (hostOutput) Play(s ...beep.Streamer)              { speaker.Play(s...) }
func (hostOutput) Clear()                               { speaker.Clear() }

// Sink is an [audio.OutputSink] backed by the process-wide beep speaker.
// Only one Sink should exist per process.
type Sink struct {
	format audio.Format
	buffer time.Duration
	volume float64
	out    output

	initOnce sync.Once
	initErr  error
}

// Compile-time interface assertion.
var _ audio.OutputSink = (*Sink)(nil)

// New returns a mono sink at sampleRate. volume scales samples linearly and
// is clamped to 0..1; buffer <= 0 selects [DefaultBuffer]. The device is
// opened on the first Play.
func New(sampleRate int, volume float64, buffer time.Duration) *Sink {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Sink{
		format: audio.Format{SampleRate: sampleRate, Channels: 1},
		buffer: buffer,
		volume: min(max(volume, 0), 1),
		out:    hostOutput{},
	}
}

// Format implements [audio.OutputSink].
func (s *Sink) Format() audio.Format { return s.format }

// Play implements [audio.OutputSink]. It returns once the speaker has pulled
// the last sample of p into its buffer, so the next segment is queued before
// the current one falls silent.
func (s *Sink) Play(ctx context.Context, p audio.PCM) error {
	s.initOnce.Do(func() {
		sr := beep.SampleRate(s.format.SampleRate)
		if err := s.out.Init(sr, sr.N(s.buffer)); err != nil {
			s.initErr = fmt.Errorf("speaker: init: %w", err)
		}
	})
	if s.initErr != nil {
		return s.initErr
	}
	if len(p.Data) == 0 {
		return nil
	}

	done := make(chan struct{})
	s.out.Play(beep.Seq(newStreamer(p.Data, s.volume), beep.Callback(func() { close(done) })))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.out.Clear()
		return ctx.Err()
	}
}

// Close implements [audio.OutputSink].
func (s *Sink) Close() error {
	if s.initErr == nil {
		s.out.Clear()
	}
	return nil
}

// pcmStreamer adapts mono int16 PCM to a beep.Streamer.
type pcmStreamer struct {
	samples []int16
	gain    float64
	pos     int
}

func newStreamer(data []byte, gain float64) *pcmStreamer {
	return &pcmStreamer{samples: audio.BytesToInt16s(data), gain: gain}
}

// Stream implements beep.Streamer.
func (p *pcmStreamer) Stream(out [][2]float64) (int, bool) {
	if p.pos >= len(p.samples) {
		return 0, false
	}
	n := 0
	for n < len(out) && p.pos < len(p.samples) {
		v := float64(p.samples[p.pos]) / 32768 * p.gain
		out[n] = [2]float64{v, v}
		n++
		p.pos++
	}
	return n, true
}

// Err implements beep.Streamer.
func (p *pcmStreamer) Err() error { return nil }
