package audio

import (
	"fmt"
	"math"
)

// Conform converts decoded PCM into the target format for an output sink.
// Channels are mixed first (so resampling never runs on more channels than
// needed), then the signal is resampled. rate is a playback speed multiplier:
// the source is treated as if it were recorded at SampleRate*rate, so a rate of
// 1.2 plays 20% faster. A rate <= 0 is treated as 1.
func Conform(p PCM, target Format, rate float64) PCM {
	if rate <= 0 {
		rate = 1
	}
	data := p.Data
	channels := p.Format.Channels
	if channels <= 0 {
		channels = 1
	}

	if target.Channels == 1 && channels > 1 {
		data = DownmixToMono(data, channels)
		channels = 1
	}

	srcRate := int(math.Round(float64(p.Format.SampleRate) * rate))
	if srcRate != target.SampleRate {
		if channels == 1 {
			data = ResampleMono16(data, srcRate, target.SampleRate)
		} else {
			data = ResampleMono16(DownmixToMono(data, channels), srcRate, target.SampleRate)
			channels = 1
		}
	}

	if target.Channels == 2 && channels == 1 {
		data = MonoToStereo(data)
		channels = 2
	}
	return PCM{Data: data, Format: Format{SampleRate: target.SampleRate, Channels: channels}}
}

// MonoToStereo duplicates each mono sample into an L+R pair.
func MonoToStereo(pcm []byte) []byte {
	out := make([]byte, (len(pcm)/2)*4)
	for i := 0; i+1 < len(pcm); i += 2 {
		j := i * 2
		out[j], out[j+1] = pcm[i], pcm[i+1]
		out[j+2], out[j+3] = pcm[i], pcm[i+1]
	}
	return out
}

// DownmixToMono averages interleaved channels into a single channel, using
// int32 arithmetic so the sum cannot overflow.
func DownmixToMono(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	samples := BytesToInt16s(pcm)
	frames := len(samples) / channels
	out := make([]int16, frames)
	for i := range frames {
		var sum int32
		for c := range channels {
			sum += int32(samples[i*channels+c])
		}
		out[i] = int16(sum / int32(channels))
	}
	return Int16sToBytes(out)
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate by linear
// interpolation. Equal or invalid rates return the input unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	src := BytesToInt16s(pcm)
	n := int(int64(len(src)) * int64(dstRate) / int64(srcRate))
	if n == 0 {
		return nil
	}

	out := make([]int16, n)
	step := float64(srcRate) / float64(dstRate)
	last := len(src) - 1
	for i := range n {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= last {
			out[i] = src[last]
			continue
		}
		frac := pos - float64(idx)
		out[i] = int16(float64(src[idx])*(1-frac) + float64(src[idx+1])*frac)
	}
	return Int16sToBytes(out)
}

// formatString renders a format for log output, e.g. "16000Hz mono".
func formatString(f Format) string {
	switch f.Channels {
	case 1:
		return fmt.Sprintf("%dHz mono", f.SampleRate)
	case 2:
		return fmt.Sprintf("%dHz stereo", f.SampleRate)
	default:
		return fmt.Sprintf("%dHz %dch", f.SampleRate, f.Channels)
	}
}

// String implements fmt.Stringer.
func (f Format) String() string { return formatString(f) }
