package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.palabra.dev/client/audiocodec"
	"go.palabra.dev/client/errs"
	"go.palabra.dev/client/wire"
)

const (
	// pace is the sleep between non-empty pull iterations, keeping the
	// client from overrunning the server.
	pace = 50 * time.Millisecond
	// idleWait bounds how long a "no data yet" read waits before
	// re-polling the source, so the loop never spins.
	idleWait = 10 * time.Millisecond
)

// InputPipeline continuously pulls audio from a Source, downsamples it to
// the wire rate, and sends it as input_audio_data frames.
type InputPipeline struct {
	source Source
	send   Sender

	mu      sync.Mutex
	drained bool
}

// NewInputPipeline builds an InputPipeline reading from source and
// sending through send.
func NewInputPipeline(source Source, send Sender) *InputPipeline {
	return &InputPipeline{source: source, send: send}
}

// Drained reports whether the pipeline has observed end-of-stream.
func (p *InputPipeline) Drained() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.drained
}

// Run pulls and sends audio until the Source reaches end-of-stream, ctx
// is cancelled, or two consecutive send failures occur. A nil return
// means the pipeline drained normally (including the single-read-error
// case, which breaks the loop without treating it as fatal).
func (p *InputPipeline) Run(ctx context.Context) error {
	const op = "pipeline.InputPipeline.Run"

	for {
		select {
		case <-ctx.Done():
			return errs.New(errs.Cancelled, op, ctx.Err())
		default:
		}

		chunk, err := p.source.Read(ctx)
		if errors.Is(err, io.EOF) {
			p.mu.Lock()
			p.drained = true
			p.mu.Unlock()
			return nil
		}
		if err != nil {
			slog.Error("input source read failed", "error", err)
			return nil
		}
		if len(chunk) == 0 {
			select {
			case <-ctx.Done():
				return errs.New(errs.Cancelled, op, ctx.Err())
			case <-time.After(idleWait):
			}
			continue
		}

		down, err := audiocodec.DownsampleTo24kHz(chunk)
		if err != nil {
			slog.Warn("downsample failed, skipping frame", "error", err)
			continue
		}
		env := wire.OutboundEnvelope{
			MessageType: wire.TypeInputAudioData,
			Data:        wire.InputAudioData{Data: audiocodec.EncodeBase64(down)},
		}

		if err := p.send.Send(ctx, env); err != nil {
			slog.Warn("send failed, retrying once", "error", err)
			if err := p.send.Send(ctx, env); err != nil {
				return errs.New(errs.Transport, op, err)
			}
		}

		time.Sleep(pace)
	}
}
