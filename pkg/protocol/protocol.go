// Package protocol defines the messages exchanged with the voice bot backend
// over the streaming connection.
//
// Binary messages carry audio in both directions: PCM frames outbound,
// synthesized-speech segments inbound. Text messages carry JSON control and
// transcript events. The JSON layout changed between backend revisions, so it
// is selected with a [Schema]:
//
//	v2 (default)  inbound {"type":"stt"|"llm"|"system","data":"..."}
//	              outbound {"type":"chat","text":"..."}
//	v1            inbound {"type":"stt"|"llm"|"system","text":"..."} and
//	              {"type":"tts","audio":[...]} with inline segment bytes
//	              outbound {"text":"..."}
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// Kind classifies an inbound [Event].
type Kind string

const (
	// KindTranscript is an interim transcript of the user's speech. Each one
	// supersedes the previous for the same utterance.
	KindTranscript Kind = "transcript"

	// KindTranscriptFinal marks the end of the user's utterance.
	KindTranscriptFinal Kind = "transcript_final"

	// KindResponseDelta is an incremental fragment of the bot's reply.
	KindResponseDelta Kind = "response_delta"

	// KindStreamEnd means the server has sent all speech for the turn.
	KindStreamEnd Kind = "stream_end"

	// KindAudio is one synthesized-speech segment.
	KindAudio Kind = "audio"
)

// Event is one decoded inbound message. Exactly one of Text or Audio is
// meaningful: Audio for [KindAudio], Text otherwise.
type Event struct {
	Kind  Kind
	Text  string
	Audio []byte
}

// AudioEvent wraps a binary message as an audio event.
func AudioEvent(data []byte) Event {
	return Event{Kind: KindAudio, Audio: data}
}

// Wire type and system signal values.
const (
	typeSTT    = "stt"
	typeLLM    = "llm"
	typeSystem = "system"
	typeTTS    = "tts"
	typeChat   = "chat"

	signalSTTEnd = "stt_end"
	signalTTSEnd = "tts_end"
)

// Schema selects the JSON layout of text messages.
type Schema string

const (
	SchemaV1 Schema = "v1"
	SchemaV2 Schema = "v2"
)

// DefaultSchema is used when none is configured.
const DefaultSchema = SchemaV2

// ErrUnknownSchema is returned by [ParseSchema] for unsupported versions.
var ErrUnknownSchema = errors.New("protocol: unknown schema")

// ParseSchema validates a schema name. Empty selects [DefaultSchema].
func ParseSchema(s string) (Schema, error) {
	switch Schema(s) {
	case "":
		return DefaultSchema, nil
	case SchemaV1, SchemaV2:
		return Schema(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSchema, s)
	}
}

// inbound covers the fields of every inbound text message across schemas.
type inbound struct {
	Type  string          `json:"type"`
	Data  string          `json:"data"`
	Text  string          `json:"text"`
	Audio json.RawMessage `json:"audio"`
}

// Decode parses one text message. ok is false for well-formed messages of a
// type the client does not handle; err is non-nil only for malformed JSON.
func (s Schema) Decode(msg []byte) (ev Event, ok bool, err error) {
	var in inbound
	if err := json.Unmarshal(msg, &in); err != nil {
		return Event{}, false, fmt.Errorf("protocol: decode %s message: %w", s, err)
	}

	payload := in.Data
	if s == SchemaV1 {
		payload = in.Text
	}

	switch in.Type {
	case typeSTT:
		return Event{Kind: KindTranscript, Text: payload}, true, nil
	case typeLLM:
		return Event{Kind: KindResponseDelta, Text: payload}, true, nil
	case typeSystem:
		switch payload {
		case signalSTTEnd:
			return Event{Kind: KindTranscriptFinal}, true, nil
		case signalTTSEnd:
			return Event{Kind: KindStreamEnd}, true, nil
		}
		return Event{}, false, nil
	case typeTTS:
		if s != SchemaV1 {
			return Event{}, false, nil
		}
		audio, err := inlineAudio(in.Audio)
		if err != nil {
			return Event{}, false, err
		}
		return AudioEvent(audio), true, nil
	default:
		return Event{}, false, nil
	}
}

// inlineAudio decodes a v1 "audio" field, which older backends sent either as
// a JSON array of byte values or as a base64 string.
func inlineAudio(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 {
		return nil, errors.New("protocol: tts message without audio")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("protocol: decode tts audio: %w", err)
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("protocol: decode tts audio: %w", err)
		}
		return b, nil
	}
	var vals []int
	if err := json.Unmarshal(raw, &vals); err != nil {
		return nil, fmt.Errorf("protocol: decode tts audio: %w", err)
	}
	out := make([]byte, len(vals))
	for i, v := range vals {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("protocol: tts audio byte %d out of range: %d", i, v)
		}
		out[i] = byte(v)
	}
	return out, nil
}

type chatV2 struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type chatV1 struct {
	Text string `json:"text"`
}

// EncodeChat builds the outbound text message for typed chat input.
func (s Schema) EncodeChat(text string) ([]byte, error) {
	var v any = chatV2{Type: typeChat, Text: text}
	if s == SchemaV1 {
		v = chatV1{Text: text}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode chat: %w", err)
	}
	return b, nil
}
