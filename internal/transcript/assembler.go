package transcript

import "github.com/MrWong99/voxchat/pkg/protocol"

// Assembler applies inbound events to a [Log]. It is not safe for concurrent
// use; the client's event loop is its only caller.
type Assembler struct {
	log         *Log
	onStreamEnd func()
}

// NewAssembler returns an Assembler writing to log. onStreamEnd, if non-nil,
// is invoked for every stream-end event; the playback queue hooks in here.
func NewAssembler(log *Log, onStreamEnd func()) *Assembler {
	return &Assembler{log: log, onStreamEnd: onStreamEnd}
}

// Log returns the log being assembled.
func (a *Assembler) Log() *Log { return a.log }

// Apply folds ev into the log and reports whether the log changed. Events
// that arrive out of order degrade gracefully:
//
//   - transcript: replaces the open user entry, or starts one.
//   - transcript_final: opens an empty bot entry after a user entry; no-op
//     otherwise.
//   - response_delta: extends the open bot entry, or starts one.
//   - stream_end: invokes the stream-end hook; the log is untouched.
//
// Audio events are ignored.
func (a *Assembler) Apply(ev protocol.Event) bool {
	switch ev.Kind {
	case protocol.KindTranscript:
		a.log.UpsertLast(RoleUser, ev.Text)
		return true
	case protocol.KindTranscriptFinal:
		if last, ok := a.log.Last(); ok && last.Role == RoleUser {
			a.log.Append(RoleBot, "")
			return true
		}
		return false
	case protocol.KindResponseDelta:
		a.log.AppendDelta(RoleBot, ev.Text)
		return true
	case protocol.KindStreamEnd:
		if a.onStreamEnd != nil {
			a.onStreamEnd()
		}
		return false
	default:
		return false
	}
}
