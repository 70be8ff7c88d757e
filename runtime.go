package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"go.palabra.dev/client/control"
	"go.palabra.dev/client/errs"
	"go.palabra.dev/client/pipeline"
	"go.palabra.dev/client/router"
	"go.palabra.dev/client/session"
	"go.palabra.dev/client/wire"
)

// Defaults for the timed phases of the start/completion sequence. The
// post-set_task delay is load-bearing against the remote service's
// provisioning step but otherwise undocumented, so it stays a knob rather
// than a constant.
const (
	DefaultConnectTimeout    = 10 * time.Second
	DefaultPostSetTaskDelay  = 3 * time.Second
	quiescenceWindow         = 2 * time.Second
	absoluteCompletionWait   = 30 * time.Second
	completionPollInterval   = 250 * time.Millisecond
	completionLogInterval    = 5 * time.Second
	trailingDrain            = 1 * time.Second
	normalCloseGraceSeconds  = 3.0
	cancelCloseGraceSeconds  = 5.0
)

// Runtime is the sole orchestrator of a translation session: it owns the
// session handshake, the control channel, both pipelines, and every
// handle's lifecycle.
type Runtime struct {
	sessionClient    *session.Client
	connectTimeout   time.Duration
	postSetTaskDelay time.Duration
	onTranscription  func(wire.TranscriptionEvent)

	mu     sync.Mutex
	cancel context.CancelFunc
	active bool
}

// RuntimeOption configures a Runtime at construction time.
type RuntimeOption func(*Runtime)

// WithConnectTimeout overrides the 10 s upper bound on opening the
// control channel.
func WithConnectTimeout(d time.Duration) RuntimeOption {
	return func(r *Runtime) { r.connectTimeout = d }
}

// WithPostSetTaskDelay overrides the delay after set_task is sent, before
// the pipelines start. Keep this configurable: it compensates for
// server-side provisioning whose exact timing isn't contractual.
func WithPostSetTaskDelay(d time.Duration) RuntimeOption {
	return func(r *Runtime) { r.postSetTaskDelay = d }
}

// WithTranscriptionHandler registers the callback invoked for every
// partial/final transcription event the session receives.
func WithTranscriptionHandler(f func(wire.TranscriptionEvent)) RuntimeOption {
	return func(r *Runtime) { r.onTranscription = f }
}

// NewRuntime builds a Runtime ready to run sessions.
func NewRuntime(opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		sessionClient:    session.New(0),
		connectTimeout:   DefaultConnectTimeout,
		postSetTaskDelay: DefaultPostSetTaskDelay,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle is returned by RunAsync: a live session the caller can wait on
// or cancel.
type Handle struct {
	done    chan error
	runtime *Runtime
}

// Wait blocks until the session completes and returns its outcome.
func (h *Handle) Wait() error { return <-h.done }

// Cancel requests the session stop; see Runtime.Cancel.
func (h *Handle) Cancel() { h.runtime.Cancel() }

// Run executes one session to completion, blocking until it ends.
func (r *Runtime) Run(cred session.Credentials, cfg *SessionConfiguration) error {
	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	defer cancel()
	return r.run(ctx, cred, cfg)
}

// RunAsync starts a session without blocking and returns a Handle.
func (r *Runtime) RunAsync(cred session.Credentials, cfg *SessionConfiguration) *Handle {
	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	h := &Handle{done: make(chan error, 1), runtime: r}
	go func() {
		defer cancel()
		h.done <- r.run(ctx, cred, cfg)
	}()
	return h
}

// RunWithTimeout races Run against d, cancelling the session and
// returning errs.Timeout if the deadline elapses first.
func (r *Runtime) RunWithTimeout(cred session.Credentials, cfg *SessionConfiguration, d time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	defer cancel()

	err := r.run(ctx, cred, cfg)
	if ctx.Err() == context.DeadlineExceeded {
		return errs.New(errs.Timeout, "client.Runtime.RunWithTimeout", ctx.Err())
	}
	return err
}

// Cancel requests the active session stop. It is idempotent,
// non-blocking, and safe to call from any goroutine, before Run starts or
// after it completes. Each Run, RunAsync or RunWithTimeout installs a
// fresh cancel function, so a Cancel made while no session is running has
// no effect on a session started afterwards.
func (r *Runtime) Cancel() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (r *Runtime) run(ctx context.Context, cred session.Credentials, cfg *SessionConfiguration) error {
	const op = "client.Runtime.Run"

	if err := cfg.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	r.active = true
	r.mu.Unlock()

	var ch *control.Channel
	defer func() {
		r.mu.Lock()
		r.active = false
		r.mu.Unlock()

		grace := normalCloseGraceSeconds
		if ctx.Err() != nil {
			grace = cancelCloseGraceSeconds
		}
		if ch != nil {
			if err := ch.Close(grace); err != nil {
				slog.Warn("control channel close failed", "error", err)
			}
		}
		if cfg.Source.Source != nil {
			if err := cfg.Source.Source.Close(); err != nil {
				slog.Warn("source close failed", "error", err)
			}
		}
		for _, t := range cfg.Targets {
			if t.Sink == nil {
				continue
			}
			if err := t.Sink.Close(); err != nil {
				slog.Warn("sink close failed", "error", err)
			}
		}
	}()

	attemptID := uuid.New().String()
	slog.Info("session starting", "attempt_id", attemptID, "source_lang", cfg.Source.Language)

	creds, err := r.sessionClient.CreateSession(ctx, cred, cfg.SubscriberCount)
	if err != nil {
		return err
	}
	// credentials are held only locally for the remainder of this
	// function and dropped on return; no field on Runtime retains them.

	ch = control.New(creds.ControlURL, creds.PublisherToken)
	connectCtx, cancelConnect := context.WithTimeout(ctx, r.connectTimeout)
	err = ch.Connect(connectCtx)
	cancelConnect()
	if err != nil {
		return err
	}

	// The push handler is wired up before set_task is even sent: readLoop
	// starts consuming frames the instant Connect returns, and a frame
	// that arrives with no handler registered is never redelivered (it
	// only sits in the unread Recv queue). Registering late would race
	// a server that replies faster than postSetTaskDelay.
	rtr := router.New(cfg.AllowedMessageTypes)
	sinks := make([]pipeline.Sink, len(cfg.Targets))
	for i, t := range cfg.Targets {
		sinks[i] = t.Sink
	}
	outPipe := pipeline.NewOutputPipeline(sinks, r.onTranscription)
	inPipe := pipeline.NewInputPipeline(cfg.Source.Source, ch)

	ch.SetHandler(func(env wire.Envelope) {
		msg, ok, rerr := rtr.Route(env)
		if rerr != nil {
			slog.Warn("inbound frame rejected", "error", rerr)
			return
		}
		if !ok {
			return
		}
		if msg.Kind == wire.KindError {
			slog.Error("server reported error", "error", msg.Error.Error, "details", msg.Error.Details)
			return
		}
		outPipe.Handle(ctx, msg)
	})

	setTask := buildSetTaskPayload(cfg)
	if err := ch.Send(ctx, wire.OutboundEnvelope{MessageType: wire.TypeSetTask, Data: setTask}); err != nil {
		return err
	}

	select {
	case <-time.After(r.postSetTaskDelay):
	case <-ctx.Done():
		return errs.New(errs.Cancelled, op, ctx.Err())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return inPipe.Run(gctx) })
	if err := g.Wait(); err != nil {
		return err
	}

	r.awaitCompletion(ctx, outPipe)

	select {
	case <-time.After(trailingDrain):
	case <-ctx.Done():
	}

	return nil
}

// awaitCompletion polls for output quiescence after the input has
// drained: "any output audio received and 2 s of silence" or a 30 s
// absolute bound, whichever comes first.
func (r *Runtime) awaitCompletion(ctx context.Context, out *pipeline.OutputPipeline) {
	deadline := time.Now().Add(absoluteCompletionWait)
	lastLog := time.Now()
	for {
		if out.AudioReceived() && out.Quiescent(quiescenceWindow) {
			return
		}
		if time.Now().After(deadline) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(completionPollInterval):
		}
		if time.Since(lastLog) >= completionLogInterval {
			slog.Info("still waiting for output completion", "chunks_received", out.ChunksReceived())
			lastLog = time.Now()
		}
	}
}

func buildSetTaskPayload(cfg *SessionConfiguration) wire.SetTaskPayload {
	targets := make([]wire.TargetTask, len(cfg.Targets))
	for i, t := range cfg.Targets {
		targets[i] = wire.TargetTask{
			Lang:        t.Language,
			Translation: wire.TranslationTask{SpeechGeneration: t.SpeechGeneration},
		}
	}
	return wire.SetTaskPayload{
		Source: wire.SourceTask{
			Lang:          cfg.Source.Language,
			Transcription: cfg.Source.Transcription,
		},
		Targets: targets,
		InputStream: wire.InputStream{Source: wire.StreamTask{
			Type:       cfg.InputStream.Type,
			Format:     cfg.InputStream.Format,
			SampleRate: cfg.InputStream.SampleRate,
			Channels:   cfg.InputStream.Channels,
		}},
		OutputStream: wire.OutputStream{Target: wire.StreamTask{
			Type:       cfg.OutputStream.Type,
			Format:     cfg.OutputStream.Format,
			SampleRate: cfg.OutputStream.SampleRate,
			Channels:   cfg.OutputStream.Channels,
		}},
		AllowedMessageTypes: cfg.AllowedMessageTypes,
		Silent:              cfg.Silent,
		Debug:               cfg.Debug,
		Timeout:             cfg.Timeout.Seconds(),
	}
}
