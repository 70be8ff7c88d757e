package pipeline

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"go.palabra.dev/client/audiocodec"
	"go.palabra.dev/client/wire"
)

type fakeSource struct {
	mu     sync.Mutex
	chunks [][]byte
	idx    int
}

func (s *fakeSource) Read(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idx >= len(s.chunks) {
		return nil, io.EOF
	}
	c := s.chunks[s.idx]
	s.idx++
	return c, nil
}
func (s *fakeSource) Ready() bool { return true }
func (s *fakeSource) Close() error { return nil }

type recordingSender struct {
	mu   sync.Mutex
	sent []wire.OutboundEnvelope
	fail int // number of remaining Send calls to fail
}

func (r *recordingSender) Send(ctx context.Context, v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail > 0 {
		r.fail--
		return errors.New("boom")
	}
	env := v.(wire.OutboundEnvelope)
	r.sent = append(r.sent, env)
	return nil
}

func TestInputPipelineSendsDownsampledFrames(t *testing.T) {
	src := &fakeSource{chunks: [][]byte{make([]byte, 96)}}
	sender := &recordingSender{}
	p := NewInputPipeline(src, sender)

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !p.Drained() {
		t.Fatal("expected Drained() after EOF")
	}
	if len(sender.sent) != 1 {
		t.Fatalf("got %d sent frames, want 1", len(sender.sent))
	}
	env := sender.sent[0]
	if env.MessageType != wire.TypeInputAudioData {
		t.Fatalf("got message_type %q", env.MessageType)
	}
	payload := env.Data.(wire.InputAudioData)
	decoded, err := audiocodec.DecodeBase64(payload.Data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != 48 {
		t.Fatalf("got %d downsampled bytes, want 48", len(decoded))
	}
}

func TestInputPipelineSkipsEmptyReadsWithoutEnding(t *testing.T) {
	src := &fakeSource{chunks: [][]byte{{}, {}, make([]byte, 4)}}
	sender := &recordingSender{}
	p := NewInputPipeline(src, sender)

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run never completed")
	}
	if len(sender.sent) != 1 {
		t.Fatalf("got %d sent frames, want 1", len(sender.sent))
	}
}

func TestInputPipelineSecondSendFailureTerminates(t *testing.T) {
	src := &fakeSource{chunks: [][]byte{make([]byte, 4), make([]byte, 4)}}
	sender := &recordingSender{fail: 2}
	p := NewInputPipeline(src, sender)

	err := p.Run(context.Background())
	if err == nil {
		t.Fatal("expected TransportFailed error")
	}
}

func TestInputPipelineCancellation(t *testing.T) {
	src := &fakeSource{chunks: [][]byte{{}, {}, {}, {}, {}}}
	sender := &recordingSender{}
	p := NewInputPipeline(src, sender)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Run(ctx); err == nil {
		t.Fatal("expected cancellation error")
	}
}
