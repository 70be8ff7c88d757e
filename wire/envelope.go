// Package wire defines the control channel's JSON frame shapes: the
// outer envelope, the dynamically-typed data payload, and the closed set
// of typed message variants the router dispatches on.
package wire

import (
	"encoding/json"

	"go.palabra.dev/client/errs"
)

// Envelope is the outer frame shape: {"message_type": "...", "data": ...}.
// Data is kept raw so callers can reinterpret it once the message_type is
// known.
type Envelope struct {
	MessageType string          `json:"message_type"`
	Data        json.RawMessage `json:"data"`
}

// NormalizeData returns Data as an object-shaped json.RawMessage,
// transparently unwrapping the case where the server sent Data as a
// string containing JSON rather than a nested object. It fails with
// errs.MalformedFrame only when neither interpretation parses.
func (e Envelope) NormalizeData() (json.RawMessage, error) {
	trimmed := trimSpace(e.Data)
	if len(trimmed) == 0 {
		return nil, errs.New(errs.MalformedFrame, "wire.Envelope.NormalizeData", nil)
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		return e.Data, nil
	}

	// Data may be a JSON string containing an embedded JSON document.
	var embedded string
	if err := json.Unmarshal(e.Data, &embedded); err != nil {
		return nil, errs.New(errs.MalformedFrame, "wire.Envelope.NormalizeData", err)
	}
	embeddedTrimmed := trimSpace([]byte(embedded))
	if len(embeddedTrimmed) == 0 || (embeddedTrimmed[0] != '{' && embeddedTrimmed[0] != '[') {
		return nil, errs.New(errs.MalformedFrame, "wire.Envelope.NormalizeData", nil)
	}
	return json.RawMessage(embedded), nil
}

func trimSpace(b []byte) []byte {
	start := 0
	for start < len(b) && isJSONSpace(b[start]) {
		start++
	}
	end := len(b)
	for end > start && isJSONSpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isJSONSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// OutboundEnvelope is the shape used when sending: Data is a concrete
// Go value, not raw bytes, so callers never hand-assemble JSON.
type OutboundEnvelope struct {
	MessageType string `json:"message_type"`
	Data        any    `json:"data"`
}

// Recognized outbound/inbound message_type literals.
const (
	TypeSetTask              = "set_task"
	TypeInputAudioData       = "input_audio_data"
	TypeCurrentTask          = "current_task"
	TypePartialTranscription = "partial_transcription"
	TypeFinalTranscription   = "final_transcription"
	TypeOutputAudioData      = "output_audio_data"
	TypeError                = "error"
)

// InputAudioData is the outbound repeating audio frame payload.
type InputAudioData struct {
	Data string `json:"data"` // base64(PCM16LE @ 24kHz mono)
}

// OutputAudioData is the inbound audio frame payload.
type OutputAudioData struct {
	Data string `json:"data"`
}

// CurrentTask reports server-side pipeline status.
type CurrentTask struct {
	Status string `json:"status"`
}

// TranscriptionPayload is the inner "transcription" object carried by
// both partial_transcription and final_transcription messages.
type TranscriptionPayload struct {
	TranscriptionID string `json:"transcription_id"`
	Language        string `json:"language"`
	Text            string `json:"text"`
}

// Transcription wraps TranscriptionPayload in its envelope field name.
type Transcription struct {
	Transcription TranscriptionPayload `json:"transcription"`
}

// ErrorPayload is the inbound error message payload.
type ErrorPayload struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}
