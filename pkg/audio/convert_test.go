package audio_test

import (
	"encoding/binary"
	"testing"

	"github.com/MrWong99/voxchat/pkg/audio"
)

// samplesToBytes converts a slice of int16 samples to little-endian byte representation.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// bytesToSamples converts a little-endian byte slice to int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func assertSamples(t *testing.T, got, want []int16) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestMonoToStereo(t *testing.T) {
	stereo := audio.MonoToStereo(samplesToBytes([]int16{100, 200, 300}))
	assertSamples(t, bytesToSamples(stereo), []int16{100, 100, 200, 200, 300, 300})
}

func TestDownmixToMono(t *testing.T) {
	// Two stereo frames: L=100,R=200 and L=-100,R=-200
	mono := audio.DownmixToMono(samplesToBytes([]int16{100, 200, -100, -200}), 2)
	assertSamples(t, bytesToSamples(mono), []int16{150, -150})
}

func TestDownmixToMono_NoOverflow(t *testing.T) {
	mono := audio.DownmixToMono(samplesToBytes([]int16{32767, 32767, -32768, -32768}), 2)
	assertSamples(t, bytesToSamples(mono), []int16{32767, -32768})
}

func TestResampleMono16_SameRate(t *testing.T) {
	in := samplesToBytes([]int16{1, 2, 3})
	out := audio.ResampleMono16(in, 16000, 16000)
	if &out[0] != &in[0] {
		t.Error("expected input slice to be returned unchanged")
	}
}

func TestResampleMono16_Upsample(t *testing.T) {
	out := bytesToSamples(audio.ResampleMono16(samplesToBytes([]int16{0, 100}), 8000, 16000))
	assertSamples(t, out, []int16{0, 50, 100, 100})
}

func TestResampleMono16_Downsample(t *testing.T) {
	out := bytesToSamples(audio.ResampleMono16(samplesToBytes([]int16{0, 10, 20, 30}), 16000, 8000))
	assertSamples(t, out, []int16{0, 20})
}

func TestResampleMono16_ZeroRate(t *testing.T) {
	in := samplesToBytes([]int16{1, 2})
	if got := audio.ResampleMono16(in, 0, 16000); len(got) != len(in) {
		t.Errorf("zero src rate: got %d bytes, want %d", len(got), len(in))
	}
	if got := audio.ResampleMono16(in, 16000, 0); len(got) != len(in) {
		t.Errorf("zero dst rate: got %d bytes, want %d", len(got), len(in))
	}
}

func TestConform(t *testing.T) {
	tests := []struct {
		name        string
		in          audio.PCM
		target      audio.Format
		rate        float64
		wantSamples int
		wantFormat  audio.Format
	}{
		{
			name:        "no-op",
			in:          audio.PCM{Data: make([]byte, 2400*2), Format: audio.Format{SampleRate: 24000, Channels: 1}},
			target:      audio.Format{SampleRate: 24000, Channels: 1},
			rate:        1,
			wantSamples: 2400,
			wantFormat:  audio.Format{SampleRate: 24000, Channels: 1},
		},
		{
			name:        "playback rate shortens the signal",
			in:          audio.PCM{Data: make([]byte, 2400*2), Format: audio.Format{SampleRate: 20000, Channels: 1}},
			target:      audio.Format{SampleRate: 20000, Channels: 1},
			rate:        1.2,
			wantSamples: 2000,
			wantFormat:  audio.Format{SampleRate: 20000, Channels: 1},
		},
		{
			name:        "stereo source downmixed and resampled",
			in:          audio.PCM{Data: make([]byte, 4800*2*2), Format: audio.Format{SampleRate: 48000, Channels: 2}},
			target:      audio.Format{SampleRate: 24000, Channels: 1},
			rate:        1,
			wantSamples: 2400,
			wantFormat:  audio.Format{SampleRate: 24000, Channels: 1},
		},
		{
			name:        "mono source upmixed for stereo sink",
			in:          audio.PCM{Data: make([]byte, 100*2), Format: audio.Format{SampleRate: 44100, Channels: 1}},
			target:      audio.Format{SampleRate: 44100, Channels: 2},
			rate:        0,
			wantSamples: 200,
			wantFormat:  audio.Format{SampleRate: 44100, Channels: 2},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out := audio.Conform(tc.in, tc.target, tc.rate)
			if out.Format != tc.wantFormat {
				t.Errorf("format = %v, want %v", out.Format, tc.wantFormat)
			}
			if got := len(out.Data) / 2; got != tc.wantSamples {
				t.Errorf("samples = %d, want %d", got, tc.wantSamples)
			}
		})
	}
}

func TestFormat_String(t *testing.T) {
	cases := map[audio.Format]string{
		{SampleRate: 16000, Channels: 1}: "16000Hz mono",
		{SampleRate: 48000, Channels: 2}: "48000Hz stereo",
		{SampleRate: 8000, Channels: 4}:  "8000Hz 4ch",
	}
	for f, want := range cases {
		if got := f.String(); got != want {
			t.Errorf("%#v.String() = %q, want %q", f, got, want)
		}
	}
}
