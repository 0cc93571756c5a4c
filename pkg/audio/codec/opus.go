package codec

import (
	"fmt"
	"sync"

	"layeh.com/gopus"

	"github.com/MrWong99/voxchat/pkg/audio"
)

// opusMaxFrameMs is the longest frame an Opus packet can carry.
const opusMaxFrameMs = 120

// Opus decodes segments that each hold a single mono Opus packet. The decoder
// keeps state across packets, so one Opus value should serve one stream.
type Opus struct {
	mu         sync.Mutex
	dec        *gopus.Decoder
	sampleRate int
}

// NewOpus creates a mono Opus decoder at sampleRate, which must be one of
// 8000, 12000, 16000, 24000 or 48000.
func NewOpus(sampleRate int) (*Opus, error) {
	dec, err := gopus.NewDecoder(sampleRate, 1)
	if err != nil {
		return nil, fmt.Errorf("codec: create opus decoder: %w", err)
	}
	return &Opus{dec: dec, sampleRate: sampleRate}, nil
}

// Decode implements [Decoder].
func (o *Opus) Decode(data []byte) (audio.PCM, error) {
	if len(data) == 0 {
		return audio.PCM{}, fmt.Errorf("%w: opus: empty packet", ErrDecode)
	}
	o.mu.Lock()
	pcm, err := o.dec.Decode(data, o.sampleRate*opusMaxFrameMs/1000, false)
	o.mu.Unlock()
	if err != nil {
		return audio.PCM{}, fmt.Errorf("%w: opus: %w", ErrDecode, err)
	}
	return audio.PCM{
		Data:   audio.Int16sToBytes(pcm),
		Format: audio.Format{SampleRate: o.sampleRate, Channels: 1},
	}, nil
}

// PCM16 passes raw signed 16-bit little-endian mono samples through.
type PCM16 struct {
	SampleRate int
}

// Decode implements [Decoder].
func (p PCM16) Decode(data []byte) (audio.PCM, error) {
	if len(data) == 0 || len(data)%2 != 0 {
		return audio.PCM{}, fmt.Errorf("%w: pcm16: %d bytes is not a whole number of samples", ErrDecode, len(data))
	}
	return audio.PCM{
		Data:   data,
		Format: audio.Format{SampleRate: p.SampleRate, Channels: 1},
	}, nil
}
