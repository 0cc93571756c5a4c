// Package codec decodes inbound speech segments into linear PCM.
//
// The server sends each synthesized-speech unit as one opaque binary message.
// Depending on the backend that message is a complete container file (WAV,
// MP3, Ogg Vorbis), a single Opus packet, or raw 16-bit PCM. A [Decoder] turns
// one such message into an [audio.PCM] buffer at the segment's native rate;
// resampling to the output device happens later in the playback queue.
//
// Use [New] to build a decoder by name. The "auto" decoder sniffs the leading
// bytes of every segment and dispatches to the matching container decoder.
package codec

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/MrWong99/voxchat/pkg/audio"
)

// ErrDecode is returned (wrapped) for any segment that cannot be decoded.
var ErrDecode = errors.New("codec: decode failed")

// Decoder names accepted by [New].
const (
	NameAuto   = "auto"
	NameWAV    = "wav"
	NameMP3    = "mp3"
	NameVorbis = "vorbis"
	NameOpus   = "opus"
	NamePCM16  = "pcm16"
)

// DefaultSampleRate is assumed for headerless segments (opus, pcm16) when no
// rate is configured.
const DefaultSampleRate = 24000

// Decoder converts one encoded segment into PCM.
//
// Implementations may keep state across calls (Opus does) and are safe for
// concurrent use.
type Decoder interface {
	Decode(data []byte) (audio.PCM, error)
}

// New returns the decoder registered under name. sampleRate is only used by
// headerless formats; zero selects [DefaultSampleRate].
func New(name string, sampleRate int) (Decoder, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	switch name {
	case NameAuto, "":
		return &Auto{Fallback: PCM16{SampleRate: sampleRate}}, nil
	case NameWAV:
		return WAV{}, nil
	case NameMP3:
		return MP3{}, nil
	case NameVorbis:
		return Vorbis{}, nil
	case NameOpus:
		return NewOpus(sampleRate)
	case NamePCM16:
		return PCM16{SampleRate: sampleRate}, nil
	default:
		return nil, fmt.Errorf("codec: unknown decoder %q", name)
	}
}

// Sniff identifies the container format of data from its magic bytes. It
// returns the decoder name, or "" if the format is not recognised.
func Sniff(data []byte) string {
	switch {
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return NameWAV
	case bytes.HasPrefix(data, []byte("OggS")):
		return NameVorbis
	case bytes.HasPrefix(data, []byte("ID3")):
		return NameMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		// MPEG audio frame sync.
		return NameMP3
	default:
		return ""
	}
}

// Auto sniffs every segment and dispatches to the matching decoder.
// Unrecognised payloads go to Fallback, or fail with [ErrDecode] when
// Fallback is nil.
type Auto struct {
	Fallback Decoder
}

// Decode implements [Decoder].
func (a *Auto) Decode(data []byte) (audio.PCM, error) {
	switch Sniff(data) {
	case NameWAV:
		return WAV{}.Decode(data)
	case NameMP3:
		return MP3{}.Decode(data)
	case NameVorbis:
		return Vorbis{}.Decode(data)
	}
	if a.Fallback == nil {
		return audio.PCM{}, fmt.Errorf("%w: unrecognised segment format", ErrDecode)
	}
	return a.Fallback.Decode(data)
}
