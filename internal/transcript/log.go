// Package transcript assembles the running conversation log from streamed
// transcript and response events.
//
// The server streams the user's speech as a series of interim transcripts,
// each one superseding the last, followed by an end-of-utterance signal. The
// bot's reply then arrives as incremental text deltas. [Assembler] folds these
// events into a [Log] of alternating user and bot entries; only the last entry
// is ever mutated, and only while further events keep matching its role.
package transcript

import "sync"

// Role identifies who produced an [Entry].
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// Entry is one message in the conversation.
type Entry struct {
	Role    Role
	Content string

	// Sealed entries are never mutated by later events. Typed chat input is
	// sealed because the server does not stream it back.
	Sealed bool
}

// Log is the ordered conversation. Reads may run concurrently with the single
// writer.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
}

// openLast returns the index of the last entry if it is unsealed and has
// role, or -1. Must be called with l.mu held.
func (l *Log) openLast(role Role) int {
	n := len(l.entries)
	if n == 0 {
		return -1
	}
	if e := l.entries[n-1]; e.Role == role && !e.Sealed {
		return n - 1
	}
	return -1
}

// UpsertLast replaces the content of the last entry if it is open and has
// role; otherwise it appends a new entry.
func (l *Log) UpsertLast(role Role, content string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i := l.openLast(role); i >= 0 {
		l.entries[i].Content = content
		return
	}
	l.entries = append(l.entries, Entry{Role: role, Content: content})
}

// AppendDelta appends text to the last entry if it is open and has role;
// otherwise it starts a new entry with text.
func (l *Log) AppendDelta(role Role, text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i := l.openLast(role); i >= 0 {
		l.entries[i].Content += text
		return
	}
	l.entries = append(l.entries, Entry{Role: role, Content: text})
}

// Append adds a new open entry.
func (l *Log) Append(role Role, content string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Entry{Role: role, Content: content})
}

// AppendSealed adds an entry that later events never mutate.
func (l *Log) AppendSealed(role Role, content string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Entry{Role: role, Content: content, Sealed: true})
}

// Last returns the most recent entry.
func (l *Log) Last() (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.entries) == 0 {
		return Entry{}, false
	}
	return l.entries[len(l.entries)-1], true
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Entries returns a copy of the log.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}
