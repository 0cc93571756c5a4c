package audio

import (
	"context"
	"sync"
	"time"
)

// Playhead tracks when audio handed to a buffered output will have finished
// sounding. Outputs that accept data faster than real time, such as a pipe to
// an external player, use it to pace [OutputSink.Play] so that it returns
// shortly before the audio actually ends rather than when the bytes are
// buffered.
type Playhead struct {
	// Lead is how long before the scheduled end Wait returns, leaving the
	// caller time to hand over the next segment without a gap.
	Lead time.Duration

	mu  sync.Mutex
	end time.Time
	now func() time.Time
}

// Advance schedules d more audio after whatever is still pending and returns
// the time at which all of it will have been heard. If the output has gone
// quiet, the new audio starts now.
func (h *Playhead) Advance(d time.Duration) time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.clock()
	if h.end.Before(now) {
		h.end = now
	}
	h.end = h.end.Add(d)
	return h.end
}

// Wait advances the playhead by d and blocks until Lead before the new end,
// or until ctx is done.
func (h *Playhead) Wait(ctx context.Context, d time.Duration) error {
	end := h.Advance(d)
	wait := end.Add(-h.Lead).Sub(h.clock())
	if wait <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset forgets pending audio, for example after the output was restarted.
func (h *Playhead) Reset() {
	h.mu.Lock()
	h.end = time.Time{}
	h.mu.Unlock()
}

func (h *Playhead) clock() time.Time {
	if h.now != nil {
		return h.now()
	}
	return time.Now()
}
