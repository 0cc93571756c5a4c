package codec_test

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"layeh.com/gopus"

	"github.com/MrWong99/voxchat/pkg/audio"
	"github.com/MrWong99/voxchat/pkg/audio/codec"
)

// buildWAV returns a canonical 44-byte-header PCM WAV file.
func buildWAV(sampleRate, channels int, samples []int16) []byte {
	dataLen := len(samples) * 2
	b := make([]byte, 44+dataLen)
	copy(b[0:], "RIFF")
	binary.LittleEndian.PutUint32(b[4:], uint32(36+dataLen))
	copy(b[8:], "WAVE")
	copy(b[12:], "fmt ")
	binary.LittleEndian.PutUint32(b[16:], 16)
	binary.LittleEndian.PutUint16(b[20:], 1) // PCM
	binary.LittleEndian.PutUint16(b[22:], uint16(channels))
	binary.LittleEndian.PutUint32(b[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(b[28:], uint32(sampleRate*channels*2))
	binary.LittleEndian.PutUint16(b[32:], uint16(channels*2))
	binary.LittleEndian.PutUint16(b[34:], 16)
	copy(b[36:], "data")
	binary.LittleEndian.PutUint32(b[40:], uint32(dataLen))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[44+i*2:], uint16(s))
	}
	return b
}

func sine(n, rate int, freq float64) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(10000 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func TestSniff(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"wav", buildWAV(16000, 1, []int16{0}), codec.NameWAV},
		{"ogg", []byte("OggS\x00\x02"), codec.NameVorbis},
		{"id3", []byte("ID3\x04\x00"), codec.NameMP3},
		{"mpeg sync", []byte{0xFF, 0xFB, 0x90, 0x00}, codec.NameMP3},
		{"riff but not wave", []byte("RIFF\x00\x00\x00\x00AVI "), ""},
		{"raw", []byte{0x01, 0x02, 0x03, 0x04}, ""},
		{"empty", nil, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := codec.Sniff(tc.data); got != tc.want {
				t.Errorf("Sniff = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestWAV_Decode(t *testing.T) {
	in := sine(1600, 16000, 440)
	pcm, err := codec.WAV{}.Decode(buildWAV(16000, 1, in))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if pcm.Format != (audio.Format{SampleRate: 16000, Channels: 1}) {
		t.Errorf("format = %v, want 16000Hz mono", pcm.Format)
	}
	got := audio.BytesToInt16s(pcm.Data)
	if len(got) != len(in) {
		t.Fatalf("samples = %d, want %d", len(got), len(in))
	}
	for i := range in {
		if d := int(got[i]) - int(in[i]); d < -1 || d > 1 {
			t.Fatalf("sample %d: got %d, want %d (±1)", i, got[i], in[i])
		}
	}
}

func TestWAV_DecodeStereoDownmixes(t *testing.T) {
	// L=8000, R=0 for every frame.
	in := make([]int16, 200)
	for i := 0; i < len(in); i += 2 {
		in[i] = 8000
	}
	pcm, err := codec.WAV{}.Decode(buildWAV(22050, 2, in))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if pcm.Format.Channels != 1 || pcm.Format.SampleRate != 22050 {
		t.Errorf("format = %v, want 22050Hz mono", pcm.Format)
	}
	got := audio.BytesToInt16s(pcm.Data)
	if len(got) != 100 {
		t.Fatalf("frames = %d, want 100", len(got))
	}
	if d := int(got[0]) - 4000; d < -1 || d > 1 {
		t.Errorf("downmixed sample = %d, want ~4000", got[0])
	}
}

func TestDecoders_RejectGarbage(t *testing.T) {
	garbage := []byte("definitely not audio")
	for _, name := range []string{codec.NameWAV, codec.NameMP3, codec.NameVorbis} {
		t.Run(name, func(t *testing.T) {
			dec, err := codec.New(name, 0)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if _, err := dec.Decode(garbage); !errors.Is(err, codec.ErrDecode) {
				t.Errorf("err = %v, want ErrDecode", err)
			}
		})
	}
}

func TestAuto(t *testing.T) {
	dec, err := codec.New(codec.NameAuto, 24000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	pcm, err := dec.Decode(buildWAV(16000, 1, sine(160, 16000, 300)))
	if err != nil {
		t.Fatalf("wav via auto: %v", err)
	}
	if pcm.Format.SampleRate != 16000 {
		t.Errorf("wav via auto: rate = %d, want 16000", pcm.Format.SampleRate)
	}

	pcm, err = dec.Decode([]byte{1, 0, 2, 0})
	if err != nil {
		t.Fatalf("raw via auto: %v", err)
	}
	if pcm.Format.SampleRate != 24000 || len(pcm.Data) != 4 {
		t.Errorf("raw via auto: got %v with %d bytes", pcm.Format, len(pcm.Data))
	}

	if _, err := dec.Decode([]byte{1, 2, 3}); !errors.Is(err, codec.ErrDecode) {
		t.Errorf("odd-length raw: err = %v, want ErrDecode", err)
	}

	strict := &codec.Auto{}
	if _, err := strict.Decode([]byte{1, 0}); !errors.Is(err, codec.ErrDecode) {
		t.Errorf("auto without fallback: err = %v, want ErrDecode", err)
	}
}

func TestOpus_RoundTrip(t *testing.T) {
	const rate, frame = 24000, 480 // 20 ms

	enc, err := gopus.NewEncoder(rate, 1, gopus.Voip)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	dec, err := codec.New(codec.NameOpus, rate)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := range 5 {
		packet, err := enc.Encode(sine(frame, rate, 220), frame, 4000)
		if err != nil {
			t.Fatalf("packet %d: Encode: %v", i, err)
		}
		pcm, err := dec.Decode(packet)
		if err != nil {
			t.Fatalf("packet %d: Decode: %v", i, err)
		}
		if got := len(pcm.Data) / 2; got != frame {
			t.Errorf("packet %d: samples = %d, want %d", i, got, frame)
		}
		if pcm.Format != (audio.Format{SampleRate: rate, Channels: 1}) {
			t.Errorf("packet %d: format = %v", i, pcm.Format)
		}
	}

	if _, err := dec.Decode(nil); !errors.Is(err, codec.ErrDecode) {
		t.Errorf("empty packet: err = %v, want ErrDecode", err)
	}
}

func TestNew_Unknown(t *testing.T) {
	if _, err := codec.New("flac", 0); err == nil {
		t.Fatal("expected error for unknown decoder")
	}
	if _, err := codec.New(codec.NameOpus, 44100); err == nil {
		t.Fatal("expected error for unsupported opus rate")
	}
}
