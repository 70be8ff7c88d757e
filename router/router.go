// Package router type-tags inbound control channel envelopes into the
// closed set of wire.Message variants and applies the configured inbound
// filter and transcription dedup rule.
package router

import (
	"encoding/json"
	"sync"

	"go.palabra.dev/client/audiocodec"
	"go.palabra.dev/client/errs"
	"go.palabra.dev/client/lang"
	"go.palabra.dev/client/wire"
)

// Router converts wire.Envelope values into wire.Message values. A zero
// Router accepts every message type. It is safe for concurrent use.
type Router struct {
	allowed map[string]bool // nil or empty set means "accept all"

	mu       sync.Mutex
	lastSeen map[string]string // transcription_id -> text of the last delivered partial
}

// New builds a Router. An empty allowedMessageTypes accepts every
// message_type, per the configuration surface's "empty = accept all" rule.
func New(allowedMessageTypes []string) *Router {
	r := &Router{lastSeen: make(map[string]string)}
	if len(allowedMessageTypes) > 0 {
		r.allowed = make(map[string]bool, len(allowedMessageTypes))
		for _, t := range allowedMessageTypes {
			r.allowed[t] = true
		}
	}
	return r
}

// Route classifies env and returns the resulting Message. ok is false when
// the message was dropped by the inbound filter or suppressed as a
// duplicate partial transcription — callers should not dispatch in that
// case, but it is not an error. err is non-nil only for conditions the
// caller should log and continue past (MalformedFrame, UnknownLanguage);
// these never terminate the session.
func (r *Router) Route(env wire.Envelope) (msg wire.Message, ok bool, err error) {
	if r.allowed != nil && !r.allowed[env.MessageType] {
		return wire.Message{}, false, nil
	}

	switch env.MessageType {
	case wire.TypeCurrentTask:
		var ct wire.CurrentTask
		if err := decode(env, &ct); err != nil {
			return wire.Message{}, false, err
		}
		return wire.Message{Kind: wire.KindTaskStatus, TaskStatus: &ct}, true, nil

	case wire.TypePartialTranscription, wire.TypeFinalTranscription:
		final := env.MessageType == wire.TypeFinalTranscription
		var t wire.Transcription
		if err := decode(env, &t); err != nil {
			return wire.Message{}, false, err
		}
		resolved, err := lang.Resolve(t.Transcription.Language)
		if err != nil {
			return wire.Message{}, false, err
		}
		evt := &wire.TranscriptionEvent{
			TranscriptionID: t.Transcription.TranscriptionID,
			Language:        resolved.Subtag,
			Text:            t.Transcription.Text,
			Final:           final,
		}
		if r.duplicate(evt) {
			return wire.Message{}, false, nil
		}
		kind := wire.KindPartialTranscription
		if final {
			kind = wire.KindFinalTranscription
		}
		return wire.Message{Kind: kind, Transcription: evt}, true, nil

	case wire.TypeOutputAudioData:
		var a wire.OutputAudioData
		if err := decode(env, &a); err != nil {
			return wire.Message{}, false, err
		}
		pcm, err := audiocodec.DecodeBase64(a.Data)
		if err != nil {
			return wire.Message{}, false, err
		}
		return wire.Message{Kind: wire.KindAudio, Audio: pcm}, true, nil

	case wire.TypeError:
		var e wire.ErrorPayload
		if err := decode(env, &e); err != nil {
			return wire.Message{}, false, err
		}
		return wire.Message{Kind: wire.KindError, Error: &e}, true, nil

	default:
		return wire.Message{Kind: wire.KindGeneric, Generic: &wire.Generic{
			MessageType: env.MessageType,
			Payload:     append([]byte(nil), env.Data...),
		}}, true, nil
	}
}

// duplicate reports whether evt repeats the previous partial delivered for
// the same transcription_id with identical content, per the
// transcription_id+content dedup key. Finals are never suppressed: they
// close out a stream and must always reach the handler.
func (r *Router) duplicate(evt *wire.TranscriptionEvent) bool {
	if evt.Final {
		r.mu.Lock()
		delete(r.lastSeen, evt.TranscriptionID)
		r.mu.Unlock()
		return false
	}
	sig := evt.Text
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastSeen == nil {
		r.lastSeen = make(map[string]string)
	}
	if r.lastSeen[evt.TranscriptionID] == sig {
		return true
	}
	r.lastSeen[evt.TranscriptionID] = sig
	return false
}

func decode(env wire.Envelope, out any) error {
	data, err := env.NormalizeData()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errs.New(errs.MalformedFrame, "router.Route", err)
	}
	return nil
}
