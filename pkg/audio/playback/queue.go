// Package playback plays synthesized-speech segments in arrival order.
//
// A [Queue] owns a FIFO of encoded segments and a single dispatch goroutine
// that decodes, conforms and renders them back to back on an
// [audio.OutputSink]. The queue is either idle or playing; while playing it
// holds the shared [audio.Floor] so that captured microphone audio is not
// transmitted. The floor is handed back only when the FIFO has drained and
// the server has announced the end of the speech stream.
package playback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/voxchat/internal/observe"
	"github.com/MrWong99/voxchat/pkg/audio"
	"github.com/MrWong99/voxchat/pkg/audio/codec"
)

// State is the playback state of a [Queue].
type State int

const (
	// StateIdle means nothing is queued or playing and the floor is free.
	StateIdle State = iota

	// StatePlaying means the queue holds the floor. The FIFO may be empty
	// while the queue waits for further segments or the end-of-stream signal.
	StatePlaying
)

// String returns the lowercase state name.
func (s State) String() string {
	if s == StatePlaying {
		return "playing"
	}
	return "idle"
}

// defaultQueueCap is the initial capacity of the FIFO.
const defaultQueueCap = 16

// Option configures a [Queue] during construction.
type Option func(*Queue)

// WithRate sets the playback speed multiplier. Values <= 0 are ignored.
func WithRate(rate float64) Option {
	return func(q *Queue) {
		if rate > 0 {
			q.rate = rate
		}
	}
}

// WithMetrics sets the metrics recorder. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(q *Queue) {
		q.metrics = m
	}
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		q.log = l
	}
}

// Queue is the playback queue. All exported methods are safe for concurrent
// use.
type Queue struct {
	sink    audio.OutputSink
	dec     codec.Decoder
	floor   *audio.Floor
	metrics *observe.Metrics
	log     *slog.Logger

	mu        sync.Mutex
	fifo      []audio.Segment
	rendering bool    // a segment has been dequeued and is being decoded or played
	rate      float64 // playback speed multiplier
	closed    bool

	notify  chan struct{} // signalled when a segment is enqueued
	done    chan struct{} // closed by Close to stop the dispatch goroutine
	stopped chan struct{} // closed when the dispatch goroutine has returned
}

// New creates a [Queue] that decodes segments with dec and renders them on
// sink. floor is shared with the capture pipeline. The queue starts a
// background dispatch goroutine immediately; call [Queue.Close] to stop it.
func New(sink audio.OutputSink, dec codec.Decoder, floor *audio.Floor, opts ...Option) *Queue {
	q := &Queue{
		sink:    sink,
		dec:     dec,
		floor:   floor,
		rate:    audio.DefaultPlaybackRate,
		fifo:    make([]audio.Segment, 0, defaultQueueCap),
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	if q.metrics == nil {
		q.metrics = observe.DefaultMetrics()
	}
	if q.log == nil {
		q.log = slog.Default()
	}
	go q.dispatch()
	return q
}

// Enqueue appends seg to the FIFO. If the queue is idle it takes the floor
// and playback of seg begins immediately.
func (q *Queue) Enqueue(seg audio.Segment) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.fifo = append(q.fifo, seg)
	if q.floor.BeginPlayback() {
		q.log.Debug("playback: started", "segment_id", seg.ID)
	}

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// StreamEnded records that the server has finished sending speech for the
// current turn. If the queue is playing with nothing left to render it
// returns to idle at once; otherwise it does so after the last queued
// segment. While idle the signal is kept, and the turn ends once segments
// that arrive later have drained.
func (q *Queue) StreamEnded() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.floor.LatchStreamEnd() {
		return
	}
	if len(q.fifo) == 0 && !q.rendering {
		q.finishLocked()
	}
}

// BeginTurn marks the start of a new conversational turn. A stream-end signal
// left over from a turn that produced no audio is dropped so it cannot end
// the new turn early. It has no effect while the queue is playing.
func (q *Queue) BeginTurn() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.floor.ResetStreamEnd() {
		q.log.Debug("playback: dropped stale stream end")
	}
}

// Clear drops every pending segment. A segment that is already playing runs
// to completion.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.fifo = q.fifo[:0]
}

// SetRate changes the playback speed multiplier for segments that have not
// started yet. Values <= 0 are ignored.
func (q *Queue) SetRate(rate float64) {
	if rate <= 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rate = rate
}

// Rate returns the current playback speed multiplier.
func (q *Queue) Rate() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.rate
}

// State returns whether the queue is idle or playing.
func (q *Queue) State() State {
	if q.floor.Playing() {
		return StatePlaying
	}
	return StateIdle
}

// Pending returns the number of segments waiting to be played, excluding the
// one currently rendering.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.fifo)
}

// Close drops pending segments, waits for the segment in flight to finish,
// stops the dispatch goroutine, and releases the floor. Close is idempotent;
// the sink is not closed.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.stopped
		return nil
	}
	q.closed = true
	q.fifo = q.fifo[:0]
	q.mu.Unlock()

	close(q.done)
	<-q.stopped
	q.floor.EndPlayback()
	return nil
}

// finishLocked returns the queue to idle if the stream-ended latch is set.
// Must be called with q.mu held so that no Enqueue can interleave between the
// emptiness check and the release.
func (q *Queue) finishLocked() {
	if q.floor.Finish() {
		q.log.Debug("playback: turn complete")
	}
}

// dispatch is the background goroutine that plays queued segments back to
// back. It runs until [Queue.Close] is called.
func (q *Queue) dispatch() {
	defer close(q.stopped)

	for {
		select {
		case <-q.done:
			return
		case <-q.notify:
		}

		for {
			seg, rate, ok := q.dequeue()
			if !ok {
				break
			}
			q.play(seg, rate)

			q.mu.Lock()
			q.rendering = false
			if len(q.fifo) == 0 {
				q.finishLocked()
			}
			q.mu.Unlock()
		}
	}
}

// dequeue pops the head of the FIFO and marks it as rendering. Returns
// ok=false if the FIFO is empty or the queue is closing.
func (q *Queue) dequeue() (audio.Segment, float64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.fifo) == 0 || q.closed {
		return audio.Segment{}, 0, false
	}
	seg := q.fifo[0]
	q.fifo[0] = audio.Segment{}
	q.fifo = q.fifo[1:]
	q.rendering = true
	return seg, q.rate, true
}

// play decodes and renders one segment. Failures are logged and counted; the
// caller moves on to the next segment either way.
func (q *Queue) play(seg audio.Segment, rate float64) {
	ctx := context.Background()

	pcm, err := q.dec.Decode(seg.Data)
	if err != nil {
		q.log.Warn("playback: skipping undecodable segment", "segment_id", seg.ID, "bytes", len(seg.Data), "err", err)
		q.metrics.RecordSegmentError(ctx, observe.StageDecode)
		return
	}

	out := audio.Conform(pcm, q.sink.Format(), rate)
	start := time.Now()
	if err := q.sink.Play(ctx, out); err != nil {
		q.log.Warn("playback: output failed", "segment_id", seg.ID, "err", err)
		q.metrics.RecordSegmentError(ctx, observe.StagePlay)
		return
	}
	q.metrics.RecordSegmentPlayed(ctx, out.Duration())
	q.log.Debug("playback: segment rendered", "segment_id", seg.ID, "duration", out.Duration(), "took", time.Since(start))
}
