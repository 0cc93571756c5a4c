package transcript_test

import (
	"testing"

	"github.com/MrWong99/voxchat/internal/transcript"
	"github.com/MrWong99/voxchat/pkg/protocol"
)

func stt(s string) protocol.Event { return protocol.Event{Kind: protocol.KindTranscript, Text: s} }
func llm(s string) protocol.Event { return protocol.Event{Kind: protocol.KindResponseDelta, Text: s} }

var (
	sttEnd = protocol.Event{Kind: protocol.KindTranscriptFinal}
	ttsEnd = protocol.Event{Kind: protocol.KindStreamEnd}
)

func assertEntries(t *testing.T, got []transcript.Entry, want []transcript.Entry) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("entries = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i].Role != want[i].Role || got[i].Content != want[i].Content {
			t.Errorf("entry %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestAssembler_FullTurn(t *testing.T) {
	log := &transcript.Log{}
	a := transcript.NewAssembler(log, nil)

	for _, ev := range []protocol.Event{stt("Hel"), stt("Hello"), sttEnd, llm("Hi "), llm("there")} {
		a.Apply(ev)
	}

	assertEntries(t, log.Entries(), []transcript.Entry{
		{Role: transcript.RoleUser, Content: "Hello"},
		{Role: transcript.RoleBot, Content: "Hi there"},
	})
}

func TestAssembler_TwoTurns(t *testing.T) {
	log := &transcript.Log{}
	ended := 0
	a := transcript.NewAssembler(log, func() { ended++ })

	turn := []protocol.Event{stt("one"), sttEnd, llm("A"), ttsEnd, stt("tw"), stt("two"), sttEnd, llm("B"), llm("C"), ttsEnd}
	for _, ev := range turn {
		a.Apply(ev)
	}

	assertEntries(t, log.Entries(), []transcript.Entry{
		{Role: transcript.RoleUser, Content: "one"},
		{Role: transcript.RoleBot, Content: "A"},
		{Role: transcript.RoleUser, Content: "two"},
		{Role: transcript.RoleBot, Content: "BC"},
	})
	if ended != 2 {
		t.Errorf("stream end hook called %d times, want 2", ended)
	}
}

func TestAssembler_OutOfOrder(t *testing.T) {
	tests := []struct {
		name   string
		events []protocol.Event
		want   []transcript.Entry
	}{
		{
			name:   "stt_end on empty log",
			events: []protocol.Event{sttEnd},
			want:   nil,
		},
		{
			name:   "llm without transcript",
			events: []protocol.Event{llm("Hi"), llm("!")},
			want:   []transcript.Entry{{Role: transcript.RoleBot, Content: "Hi!"}},
		},
		{
			name:   "stt_end after bot entry",
			events: []protocol.Event{llm("Hi"), sttEnd},
			want:   []transcript.Entry{{Role: transcript.RoleBot, Content: "Hi"}},
		},
		{
			name:   "llm directly after stt",
			events: []protocol.Event{stt("hey"), llm("yo")},
			want: []transcript.Entry{
				{Role: transcript.RoleUser, Content: "hey"},
				{Role: transcript.RoleBot, Content: "yo"},
			},
		},
		{
			name:   "stt after bot reply starts a new user entry",
			events: []protocol.Event{stt("a"), sttEnd, llm("b"), stt("c")},
			want: []transcript.Entry{
				{Role: transcript.RoleUser, Content: "a"},
				{Role: transcript.RoleBot, Content: "b"},
				{Role: transcript.RoleUser, Content: "c"},
			},
		},
		{
			name:   "audio and stream end leave the log alone",
			events: []protocol.Event{protocol.AudioEvent([]byte{1}), ttsEnd},
			want:   nil,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			log := &transcript.Log{}
			a := transcript.NewAssembler(log, nil)
			for _, ev := range tc.events {
				a.Apply(ev)
			}
			assertEntries(t, log.Entries(), tc.want)
		})
	}
}

func TestAssembler_ReportsChanges(t *testing.T) {
	a := transcript.NewAssembler(&transcript.Log{}, nil)
	if a.Apply(sttEnd) {
		t.Error("stt_end on empty log reported a change")
	}
	if !a.Apply(stt("x")) {
		t.Error("stt did not report a change")
	}
	if a.Apply(ttsEnd) {
		t.Error("tts_end reported a change")
	}
}

func TestAssembler_TypedChatIsSealed(t *testing.T) {
	log := &transcript.Log{}
	a := transcript.NewAssembler(log, nil)

	log.AppendSealed(transcript.RoleUser, "typed question")
	a.Apply(stt("spoken"))
	a.Apply(sttEnd)
	a.Apply(llm("answer"))

	assertEntries(t, log.Entries(), []transcript.Entry{
		{Role: transcript.RoleUser, Content: "typed question"},
		{Role: transcript.RoleUser, Content: "spoken"},
		{Role: transcript.RoleBot, Content: "answer"},
	})
}
