package audio

import "sync"

// Floor arbitrates the audio channel between the microphone and synthesized
// speech. While playback holds the floor, captured frames must not be
// transmitted so the bot never hears its own voice.
//
// Floor also owns the stream-ended latch: the server announces that it has
// finished sending speech for the current turn, and the turn is complete
// once every queued segment has been played.
//
// All methods are safe for concurrent use; each check-and-set is atomic.
type Floor struct {
	mu      sync.Mutex
	playing bool
	ended   bool
	onIdle  func()
}

// OnRelease registers fn to be invoked after playback releases the floor.
// fn runs outside the lock on the releasing goroutine and must not block.
func (f *Floor) OnRelease(fn func()) {
	f.mu.Lock()
	f.onIdle = fn
	f.mu.Unlock()
}

// BeginPlayback takes the floor for playback. It reports whether the state
// changed (false if playback already held it).
func (f *Floor) BeginPlayback() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.playing {
		return false
	}
	f.playing = true
	return true
}

// EndPlayback releases the floor unconditionally and clears the latch.
func (f *Floor) EndPlayback() {
	f.mu.Lock()
	was := f.playing
	f.playing = false
	f.ended = false
	fn := f.onIdle
	f.mu.Unlock()

	if was && fn != nil {
		fn()
	}
}

// CanCapture reports whether captured audio may be transmitted.
func (f *Floor) CanCapture() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.playing
}

// Playing reports whether playback currently holds the floor.
func (f *Floor) Playing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playing
}

// LatchStreamEnd records that the server finished streaming speech for the
// current turn. The latch is kept even while nothing is playing, since the
// turn's last segment may still be in flight. It reports whether playback
// holds the floor, i.e. whether a [Floor.Finish] may now apply.
func (f *Floor) LatchStreamEnd() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = true
	return f.playing
}

// ResetStreamEnd drops a latch left over from a previous turn that produced
// no audio. It is a no-op while playback holds the floor, so a turn that is
// still draining keeps its latch. It reports whether a latch was dropped.
func (f *Floor) ResetStreamEnd() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.playing || !f.ended {
		return false
	}
	f.ended = false
	return true
}

// StreamEnded reports whether the stream-ended latch is set.
func (f *Floor) StreamEnded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ended
}

// Finish releases the floor if and only if the latch is set, clearing the
// latch in the same step. The playback queue calls it when its FIFO drains.
func (f *Floor) Finish() bool {
	f.mu.Lock()
	if !f.playing || !f.ended {
		f.mu.Unlock()
		return false
	}
	f.playing = false
	f.ended = false
	fn := f.onIdle
	f.mu.Unlock()

	if fn != nil {
		fn()
	}
	return true
}
