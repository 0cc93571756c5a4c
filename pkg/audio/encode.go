package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrInvalidFrameLength is returned by [EncodeFrame] when the sample block does
// not hold exactly the configured chunk size. It indicates an integration bug.
var ErrInvalidFrameLength = errors.New("audio: invalid frame length")

// maxInt16 is the quantisation scale for float → int16 conversion.
const maxInt16 = 32767

// EncodeFrame quantises a block of float samples in [-1, 1] into signed 16-bit
// little-endian PCM. samples must contain exactly chunkSize values; the result
// is always chunkSize*2 bytes. Out-of-range input is clamped and NaN maps to
// silence, so no value can overflow or wrap.
func EncodeFrame(samples []float32, chunkSize int) ([]byte, error) {
	if chunkSize <= 0 || len(samples) != chunkSize {
		return nil, fmt.Errorf("%w: got %d samples, want %d", ErrInvalidFrameLength, len(samples), chunkSize)
	}
	out := make([]byte, chunkSize*bytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*bytesPerSample:], uint16(quantize(s)))
	}
	return out, nil
}

// quantize maps one float sample onto the int16 range using
// round(clamp(s, -1, 1) * 32767).
func quantize(s float32) int16 {
	v := float64(s)
	switch {
	case math.IsNaN(v):
		return 0
	case v > 1:
		v = 1
	case v < -1:
		v = -1
	}
	return int16(math.Round(v * maxInt16))
}

// DecodeFrame converts signed 16-bit little-endian PCM back into float samples
// using the same scale as [EncodeFrame]. A trailing odd byte is ignored.
func DecodeFrame(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/bytesPerSample)
	for i := range out {
		s := int16(binary.LittleEndian.Uint16(pcm[i*bytesPerSample:]))
		out[i] = float32(s) / maxInt16
	}
	return out
}

// Int16sToBytes converts int16 samples to little-endian bytes.
func Int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*bytesPerSample)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}

// BytesToInt16s converts little-endian bytes to int16 samples.
func BytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/bytesPerSample)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}

// Level reports the peak absolute amplitude and RMS energy of a 16-bit PCM
// buffer, both normalised to [0, 1].
func Level(pcm []byte) (peak, rms float64) {
	n := len(pcm) / bytesPerSample
	if n == 0 {
		return 0, 0
	}
	var sum float64
	for i := range n {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*bytesPerSample:]))) / 32768.0
		sum += s * s
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	return peak, math.Sqrt(sum / float64(n))
}
