// Package ffmpeg binds the audio abstractions to ffmpeg and ffplay
// subprocesses: microphone capture through ffmpeg's platform input devices
// and speaker output through ffplay reading raw PCM from stdin.
package ffmpeg

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"runtime"
	"strconv"
	"sync"

	"github.com/MrWong99/voxchat/pkg/audio"
)

// bytesPerFloat is the width of one f32le sample.
const bytesPerFloat = 4

// DefaultInput returns the ffmpeg input format and device used when none is
// configured for the current platform.
func DefaultInput() (format, device string) {
	switch runtime.GOOS {
	case "darwin":
		// "none:<index>" opens the audio device without a camera.
		return "avfoundation", "none:0"
	case "windows":
		return "dshow", "audio=default"
	default:
		return "pulse", "default"
	}
}

// Device captures microphone audio by running ffmpeg and reading mono 32-bit
// float samples from its stdout.
type Device struct {
	// Path is the ffmpeg executable. Default: "ffmpeg".
	Path string

	// InputFormat is passed as -f before the input (e.g. "pulse", "alsa",
	// "avfoundation"). Empty selects the platform default.
	InputFormat string

	// Input is the device name passed as -i. Empty selects the platform default.
	Input string

	// Log receives warnings about unsupported processing. Default: slog.Default().
	Log *slog.Logger
}

// Compile-time interface assertion.
var _ audio.CaptureDevice = (*Device)(nil)

// Open starts ffmpeg and waits until the first samples arrive or ctx is done,
// so a missing or busy device is reported here rather than on the first read.
func (d *Device) Open(ctx context.Context, opts audio.CaptureOptions) (audio.InputStream, error) {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	if opts.EchoCancellation {
		log.Warn("ffmpeg: echo cancellation is not available, use headphones to avoid feedback")
	}

	path := d.Path
	if path == "" {
		path = "ffmpeg"
	}
	cmd := exec.Command(path, d.args(opts)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: stdout pipe: %w", err)
	}
	stderr := &tailBuffer{max: 2048}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg: start %s: %w", path, err)
	}

	s := &inputStream{cmd: cmd, r: bufio.NewReaderSize(stdout, 64*1024)}

	ready := make(chan error, 1)
	go func() {
		_, err := s.r.Peek(bytesPerFloat)
		ready <- err
	}()
	select {
	case <-ctx.Done():
		_ = s.Close()
		return nil, fmt.Errorf("ffmpeg: open input: %w", ctx.Err())
	case err := <-ready:
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("ffmpeg: no audio from %s %q: %w: %s", d.inputFormat(), d.input(), err, stderr.String())
		}
	}
	return s, nil
}

func (d *Device) inputFormat() string {
	if d.InputFormat != "" {
		return d.InputFormat
	}
	f, _ := DefaultInput()
	return f
}

func (d *Device) input() string {
	if d.Input != "" {
		return d.Input
	}
	_, in := DefaultInput()
	return in
}

// args builds the ffmpeg command line for opts.
func (d *Device) args(opts audio.CaptureOptions) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostdin",
		"-f", d.inputFormat(),
		"-i", d.input(),
		"-ac", "1",
		"-ar", strconv.Itoa(opts.SampleRate),
	}
	if opts.NoiseSuppression {
		args = append(args, "-af", "afftdn")
	}
	return append(args, "-f", "f32le", "-")
}

// inputStream reads f32le samples from a running ffmpeg.
type inputStream struct {
	cmd *exec.Cmd
	r   *bufio.Reader

	buf  []byte
	once sync.Once
}

// ReadBlock implements [audio.InputStream].
func (s *inputStream) ReadBlock(block []float32) error {
	need := len(block) * bytesPerFloat
	if cap(s.buf) < need {
		s.buf = make([]byte, need)
	}
	buf := s.buf[:need]
	if _, err := io.ReadFull(s.r, buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			err = io.EOF
		}
		return fmt.Errorf("ffmpeg: read samples: %w", err)
	}
	for i := range block {
		block[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*bytesPerFloat:]))
	}
	return nil
}

// Close implements [audio.InputStream]. It kills ffmpeg and reaps it.
func (s *inputStream) Close() error {
	s.once.Do(func() {
		if s.cmd != nil && s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
			_ = s.cmd.Wait()
		}
	})
	return nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	b   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.b = append(t.b, p...)
	if over := len(t.b) - t.max; over > 0 {
		t.b = t.b[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.b)
}
