package session

// State is the lifecycle state of a [Session].
type State int

const (
	// StateDisconnected is the initial and terminal state.
	StateDisconnected State = iota

	// StateConnecting means a dial is in flight.
	StateConnecting

	// StateConnected means the connection is open and sends are accepted.
	StateConnected
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Event is a lifecycle input to the state machine.
type Event int

const (
	// EventOpen is a request to open the connection.
	EventOpen Event = iota

	// EventDialed means the dial succeeded.
	EventDialed

	// EventDialFailed means the dial failed.
	EventDialFailed

	// EventDropped means the transport failed while connected.
	EventDropped

	// EventClose is a request to close the connection.
	EventClose
)

// String returns the lowercase event name.
func (e Event) String() string {
	switch e {
	case EventOpen:
		return "open"
	case EventDialed:
		return "dialed"
	case EventDialFailed:
		return "dial_failed"
	case EventDropped:
		return "dropped"
	case EventClose:
		return "close"
	default:
		return "unknown"
	}
}

// Next returns the state reached from s on e. ok is false when e is not
// valid in s, in which case s is returned unchanged. A connection can only
// become connected by passing through connecting, and every connecting state
// leaves through exactly one of dialed, dial_failed or close.
func Next(s State, e Event) (next State, ok bool) {
	switch s {
	case StateDisconnected:
		if e == EventOpen {
			return StateConnecting, true
		}
	case StateConnecting:
		switch e {
		case EventDialed:
			return StateConnected, true
		case EventDialFailed, EventClose:
			return StateDisconnected, true
		}
	case StateConnected:
		switch e {
		case EventDropped, EventClose:
			return StateDisconnected, true
		}
	}
	return s, false
}
