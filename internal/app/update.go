package app

import "github.com/MrWong99/voxchat/internal/transcript"

// UpdateKind classifies an [Update].
type UpdateKind int

const (
	// UpdateConnecting: the streaming session is dialling.
	UpdateConnecting UpdateKind = iota

	// UpdateConnected: the streaming session is up. SessionID is set.
	UpdateConnected

	// UpdateDisconnected: the streaming session is down. Err is set when the
	// connection dropped or could not be established.
	UpdateDisconnected

	// UpdateError: a connection, bootstrap, or device error. Err is set.
	UpdateError

	// UpdateTranscript: the conversation changed. Entries is a snapshot.
	UpdateTranscript

	// UpdateRecording: the microphone started or stopped. Recording is set.
	UpdateRecording

	// UpdateTurnPlayed: the bot's reply finished playing.
	UpdateTurnPlayed
)

// String returns the kind name.
func (k UpdateKind) String() string {
	switch k {
	case UpdateConnecting:
		return "connecting"
	case UpdateConnected:
		return "connected"
	case UpdateDisconnected:
		return "disconnected"
	case UpdateError:
		return "error"
	case UpdateTranscript:
		return "transcript"
	case UpdateRecording:
		return "recording"
	case UpdateTurnPlayed:
		return "turn_played"
	default:
		return "unknown"
	}
}

// Update is one front-end notification.
type Update struct {
	Kind      UpdateKind
	SessionID string
	Err       error
	Recording bool
	Entries   []transcript.Entry
}
