package codec

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/vorbis"
	"github.com/gopxl/beep/wav"

	"github.com/MrWong99/voxchat/pkg/audio"
)

// streamBufFrames is the number of stereo frames pulled from a beep streamer
// per Stream call.
const streamBufFrames = 512

// WAV decodes RIFF/WAVE segments.
type WAV struct{}

// Decode implements [Decoder].
func (WAV) Decode(data []byte) (audio.PCM, error) {
	s, format, err := wav.Decode(bytes.NewReader(data))
	if err != nil {
		return audio.PCM{}, fmt.Errorf("%w: wav: %w", ErrDecode, err)
	}
	return drain(s, format)
}

// MP3 decodes MPEG-1/2 layer III segments.
type MP3 struct{}

// Decode implements [Decoder].
func (MP3) Decode(data []byte) (audio.PCM, error) {
	s, format, err := mp3.Decode(io.NopCloser(bytes.NewReader(data)))
	if err != nil {
		return audio.PCM{}, fmt.Errorf("%w: mp3: %w", ErrDecode, err)
	}
	return drain(s, format)
}

// Vorbis decodes Ogg Vorbis segments.
type Vorbis struct{}

// Decode implements [Decoder].
func (Vorbis) Decode(data []byte) (audio.PCM, error) {
	s, format, err := vorbis.Decode(io.NopCloser(bytes.NewReader(data)))
	if err != nil {
		return audio.PCM{}, fmt.Errorf("%w: vorbis: %w", ErrDecode, err)
	}
	return drain(s, format)
}

// drain reads s to the end and returns its audio as mono int16 PCM at the
// stream's native sample rate. s is closed before returning.
func drain(s beep.StreamSeekCloser, format beep.Format) (audio.PCM, error) {
	defer s.Close()

	out := make([]int16, 0, max(s.Len(), 0))
	buf := make([][2]float64, streamBufFrames)
	for {
		n, ok := s.Stream(buf)
		for _, f := range buf[:n] {
			v := f[0]
			if format.NumChannels > 1 {
				v = (f[0] + f[1]) / 2
			}
			out = append(out, toInt16(v))
		}
		if !ok {
			break
		}
	}
	if err := s.Err(); err != nil {
		return audio.PCM{}, fmt.Errorf("%w: stream: %w", ErrDecode, err)
	}
	if len(out) == 0 {
		return audio.PCM{}, fmt.Errorf("%w: segment has no samples", ErrDecode)
	}
	return audio.PCM{
		Data:   audio.Int16sToBytes(out),
		Format: audio.Format{SampleRate: int(format.SampleRate), Channels: 1},
	}, nil
}

func toInt16(v float64) int16 {
	if math.IsNaN(v) {
		return 0
	}
	v = math.Max(-1, math.Min(1, v))
	return int16(math.Round(v * math.MaxInt16))
}
