package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/MrWong99/voxchat/pkg/audio"
)

// DefaultVolume is ffplay's startup volume (0-100).
const DefaultVolume = 80

// PlayLead is how long before the end of a segment Play returns.
const PlayLead = 100 * time.Millisecond

// Sink renders PCM by piping it to a long-running ffplay process. ffplay is
// started on the first Play and restarted if it exits. Because consecutive
// writes land in the same stream, back-to-back segments play without a gap.
//
// The pipe and ffplay's packet queue accept audio far faster than it is
// heard, so Play keeps a [audio.Playhead] and blocks until the segment is
// nearly over.
type Sink struct {
	path   string
	format audio.Format
	volume int
	log    *slog.Logger
	head   audio.Playhead

	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

// Compile-time interface assertion.
var _ audio.OutputSink = (*Sink)(nil)

// NewSink returns an ffplay sink that expects PCM in format. An empty path
// selects "ffplay"; volume outside 0-100 selects [DefaultVolume].
func NewSink(path string, format audio.Format, volume int, log *slog.Logger) *Sink {
	if path == "" {
		path = "ffplay"
	}
	if volume < 0 || volume > 100 {
		volume = DefaultVolume
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sink{path: path, format: format, volume: volume, log: log, head: audio.Playhead{Lead: PlayLead}}
}

// Format implements [audio.OutputSink].
func (s *Sink) Format() audio.Format { return s.format }

// Play implements [audio.OutputSink]. It writes p to ffplay and returns
// [PlayLead] before p finishes sounding, or when ctx is done.
func (s *Sink) Play(ctx context.Context, p audio.PCM) error {
	if len(p.Data) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if err := s.startLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	stdin := s.stdin
	s.mu.Unlock()

	if _, err := stdin.Write(p.Data); err != nil {
		s.mu.Lock()
		s.closeLocked()
		s.mu.Unlock()
		return fmt.Errorf("ffplay: write: %w", err)
	}
	if p.Format.SampleRate <= 0 {
		p.Format = s.format
	}
	return s.head.Wait(ctx, p.Duration())
}

// Close implements [audio.OutputSink].
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	return nil
}

func (s *Sink) startLocked() error {
	if s.cmd != nil {
		return nil
	}
	cmd := exec.Command(s.path, s.args()...)
	if runtime.GOOS == "darwin" && os.Getenv("SDL_AUDIODRIVER") == "" {
		// SDL may otherwise pick a silent dummy backend.
		cmd.Env = append(os.Environ(), "SDL_AUDIODRIVER=coreaudio")
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("ffplay: stdin pipe: %w", err)
	}
	cmd.Stdout = io.Discard
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("ffplay: start %s: %w", s.path, err)
	}
	s.cmd, s.stdin = cmd, stdin
	s.head.Reset()
	s.log.Debug("ffplay: started", "pid", cmd.Process.Pid, "format", s.format.String())

	go func(c *exec.Cmd) {
		err := c.Wait()
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.cmd == c {
			s.cmd, s.stdin = nil, nil
			var exitErr *exec.ExitError
			if err != nil && !errors.As(err, &exitErr) {
				s.log.Warn("ffplay: exited", "err", err)
			}
		}
	}(cmd)
	return nil
}

func (s *Sink) closeLocked() {
	if s.stdin != nil {
		_ = s.stdin.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	s.cmd, s.stdin = nil, nil
}

// args builds the ffplay command line.
func (s *Sink) args() []string {
	// ffplay does not accept -ac; the channel count goes through -ch_layout.
	layout := "mono"
	if s.format.Channels == 2 {
		layout = "stereo"
	}
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostats",
		"-nodisp",
		"-autoexit",
		"-volume", strconv.Itoa(s.volume),
		"-f", "s16le",
		"-ch_layout", layout,
		"-ar", strconv.Itoa(s.format.SampleRate),
		"-i", "-",
	}
}
