// Package pipeline streams audio between caller-supplied Source/Sink
// handles and the control channel: InputPipeline pulls, resamples, and
// sends; OutputPipeline receives, resamples, and writes.
package pipeline

import "context"

// Source is a caller-supplied producer of PCM16LE mono audio at 48 kHz.
// Read returns (nil, io.EOF) at end-of-stream, (nil, nil) or ([]byte{},
// nil) when no data is available yet but the stream continues, and
// (data, nil) for a non-empty chunk.
type Source interface {
	Read(ctx context.Context) ([]byte, error)
	Ready() bool
	Close() error
}

// Sink is a caller-supplied consumer of PCM16LE mono audio at 48 kHz.
type Sink interface {
	Write(ctx context.Context, pcm []byte) error
	Ready() bool
	Close() error
}

// Sender is the subset of control.Channel's surface InputPipeline needs,
// kept as an interface so this package never imports control directly.
type Sender interface {
	Send(ctx context.Context, v any) error
}
