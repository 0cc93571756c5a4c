package session

import "testing"

func TestNext(t *testing.T) {
	tests := []struct {
		from   State
		event  Event
		want   State
		wantOK bool
	}{
		{StateDisconnected, EventOpen, StateConnecting, true},
		{StateDisconnected, EventDialed, StateDisconnected, false},
		{StateDisconnected, EventClose, StateDisconnected, false},
		{StateDisconnected, EventDropped, StateDisconnected, false},
		{StateConnecting, EventDialed, StateConnected, true},
		{StateConnecting, EventDialFailed, StateDisconnected, true},
		{StateConnecting, EventClose, StateDisconnected, true},
		{StateConnecting, EventOpen, StateConnecting, false},
		{StateConnecting, EventDropped, StateConnecting, false},
		{StateConnected, EventDropped, StateDisconnected, true},
		{StateConnected, EventClose, StateDisconnected, true},
		{StateConnected, EventOpen, StateConnected, false},
		{StateConnected, EventDialed, StateConnected, false},
	}
	for _, tc := range tests {
		t.Run(tc.from.String()+"/"+tc.event.String(), func(t *testing.T) {
			got, ok := Next(tc.from, tc.event)
			if got != tc.want || ok != tc.wantOK {
				t.Errorf("Next(%v, %v) = %v, %v; want %v, %v", tc.from, tc.event, got, ok, tc.want, tc.wantOK)
			}
		})
	}
}

// TestNext_ConnectedOnlyViaConnecting walks every event sequence up to a
// fixed depth and checks that connected is never entered from anything but
// connecting.
func TestNext_ConnectedOnlyViaConnecting(t *testing.T) {
	events := []Event{EventOpen, EventDialed, EventDialFailed, EventDropped, EventClose}

	var walk func(s State, depth int)
	walk = func(s State, depth int) {
		if depth == 0 {
			return
		}
		for _, e := range events {
			next, ok := Next(s, e)
			if ok && next == StateConnected && s != StateConnecting {
				t.Fatalf("entered connected from %v on %v", s, e)
			}
			walk(next, depth-1)
		}
	}
	walk(StateDisconnected, 6)
}

func TestState_String(t *testing.T) {
	if StateConnected.String() != "connected" || State(42).String() != "unknown" {
		t.Error("unexpected state names")
	}
}
