package audio_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/voxchat/pkg/audio"
)

func TestFloor_BeginEnd(t *testing.T) {
	var f audio.Floor
	if !f.CanCapture() {
		t.Fatal("fresh floor must allow capture")
	}
	if !f.BeginPlayback() {
		t.Fatal("first BeginPlayback should report a transition")
	}
	if f.BeginPlayback() {
		t.Error("second BeginPlayback should be a no-op")
	}
	if f.CanCapture() {
		t.Error("capture must be blocked while playback holds the floor")
	}
	f.EndPlayback()
	if !f.CanCapture() {
		t.Error("capture must resume after EndPlayback")
	}
}

func TestFloor_FinishRequiresLatch(t *testing.T) {
	var f audio.Floor
	var released atomic.Int32
	f.OnRelease(func() { released.Add(1) })

	f.BeginPlayback()
	if f.Finish() {
		t.Fatal("Finish without latch must not release the floor")
	}
	if !f.LatchStreamEnd() {
		t.Fatal("latch should be kept while playing")
	}
	if !f.StreamEnded() {
		t.Error("StreamEnded should report the latch")
	}
	if !f.Finish() {
		t.Fatal("Finish with latch should release the floor")
	}
	if f.StreamEnded() {
		t.Error("Finish must clear the latch")
	}
	if f.Playing() {
		t.Error("floor still held after Finish")
	}
	if got := released.Load(); got != 1 {
		t.Errorf("release callback invoked %d times, want 1", got)
	}
}

func TestFloor_LatchWhileIdleIsKept(t *testing.T) {
	var f audio.Floor
	if f.LatchStreamEnd() {
		t.Fatal("LatchStreamEnd must report that nothing is playing")
	}
	if !f.StreamEnded() {
		t.Fatal("latch must be kept while idle")
	}
	// The turn's only segment arrives after the end-of-stream signal.
	f.BeginPlayback()
	if !f.Finish() {
		t.Error("segment arriving after the latch must finish the turn once drained")
	}
	if !f.CanCapture() {
		t.Error("capture must resume after the late segment")
	}
}

func TestFloor_ResetStreamEnd(t *testing.T) {
	var f audio.Floor
	f.LatchStreamEnd()
	if !f.ResetStreamEnd() {
		t.Fatal("ResetStreamEnd should drop a latch set while idle")
	}
	f.BeginPlayback()
	if f.Finish() {
		t.Error("a dropped latch must not finish the next turn")
	}

	f.LatchStreamEnd()
	if f.ResetStreamEnd() {
		t.Error("ResetStreamEnd must keep the latch of a turn still playing")
	}
	if !f.Finish() {
		t.Error("turn still playing should finish on its own latch")
	}
}

func TestFloor_ConcurrentCheckAndSet(t *testing.T) {
	var f audio.Floor
	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if f.BeginPlayback() {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if got := wins.Load(); got != 1 {
		t.Errorf("BeginPlayback won %d times, want exactly 1", got)
	}
}
