package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.palabra.dev/client/audiocodec"
	"go.palabra.dev/client/wire"
)

// OutputPipeline turns inbound audio and transcription messages into Sink
// writes and handler callbacks. Sink errors are logged and never
// terminate the pipeline: a session can still be valuable with partial
// playback. The wire protocol carries no per-target tag on audio frames,
// so every configured sink receives the same decoded frame.
type OutputPipeline struct {
	sinks   []Sink
	onEvent func(wire.TranscriptionEvent)

	mu             sync.Mutex
	chunksReceived int
	audioReceived  bool
	lastAudioAt    time.Time
}

// NewOutputPipeline builds an OutputPipeline fanning audio out to every
// sink in sinks and delivering transcription events to onEvent. onEvent
// may be nil.
func NewOutputPipeline(sinks []Sink, onEvent func(wire.TranscriptionEvent)) *OutputPipeline {
	return &OutputPipeline{sinks: sinks, onEvent: onEvent}
}

// Handle processes one routed message. It is safe to call from the
// control channel's delivery goroutine directly.
func (p *OutputPipeline) Handle(ctx context.Context, msg wire.Message) {
	switch msg.Kind {
	case wire.KindAudio:
		p.handleAudio(ctx, msg.Audio)
	case wire.KindPartialTranscription, wire.KindFinalTranscription:
		if p.onEvent != nil && msg.Transcription != nil {
			p.onEvent(*msg.Transcription)
		}
	}
}

func (p *OutputPipeline) handleAudio(ctx context.Context, pcm24 []byte) {
	up, err := audiocodec.UpsampleTo48kHz(pcm24)
	if err != nil {
		slog.Warn("upsample failed, skipping frame", "error", err)
		return
	}
	for _, sink := range p.sinks {
		if err := sink.Write(ctx, up); err != nil {
			slog.Warn("sink write failed", "error", err)
		}
	}

	p.mu.Lock()
	p.chunksReceived++
	p.audioReceived = true
	p.lastAudioAt = time.Now()
	p.mu.Unlock()
}

// AudioReceived reports whether at least one audio frame has been
// decoded and handed to the sinks, whether or not the writes succeeded.
func (p *OutputPipeline) AudioReceived() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.audioReceived
}

// ChunksReceived returns the running count of audio frames handed to the
// sinks, failed writes included.
func (p *OutputPipeline) ChunksReceived() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chunksReceived
}

// Quiescent reports whether at least window has elapsed since the last
// audio frame was received, used as part of completion detection.
func (p *OutputPipeline) Quiescent(window time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.audioReceived {
		return false
	}
	return time.Since(p.lastAudioAt) >= window
}
