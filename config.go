// Package client is the public surface of the translation client: build a
// SessionConfiguration, then hand it to a Runtime.
package client

import (
	"fmt"
	"time"

	"go.palabra.dev/client/errs"
	"go.palabra.dev/client/lang"
	"go.palabra.dev/client/pipeline"
)

// Source is the audio producer a caller supplies for the session's input
// stream. Re-exported from package pipeline so callers never need to
// import it directly.
type Source = pipeline.Source

// Sink is the audio consumer a caller supplies for one session target.
// Re-exported from package pipeline so callers never need to import it
// directly.
type Sink = pipeline.Sink

// Valid input/output stream formats and constraints, per the
// configuration surface's validation rules.
var (
	validInputFormats  = map[string]bool{"opus": true, "pcm_s16le": true, "wav": true}
	validOutputFormats = map[string]bool{"pcm_s16le": true, "zlib_pcm_s16le": true}
)

const (
	minSampleRate = 16000
	maxSampleRate = 48000
)

// StreamSpec describes one side of the wire audio format.
type StreamSpec struct {
	Type       string
	Format     string
	SampleRate int
	Channels   int
}

// SourceSpec is the session's single input: a language, an audio
// producer, and optional ASR tuning passed through verbatim.
type SourceSpec struct {
	Language      string
	Source        Source
	Transcription map[string]any
}

// TargetSpec is one translation output: a language, a sink, and optional
// TTS tuning passed through verbatim.
type TargetSpec struct {
	Language         string
	Sink             Sink
	SpeechGeneration map[string]any
}

// SessionConfiguration is the immutable, fully-resolved configuration a
// Runtime executes. Build one with NewSessionConfiguration and functional
// options; there is deliberately no separate "advanced" builder — every
// caller, simple or advanced, produces the same record.
type SessionConfiguration struct {
	Source  SourceSpec
	Targets []TargetSpec

	InputStream  StreamSpec
	OutputStream StreamSpec

	AllowedMessageTypes []string
	Silent              bool
	Debug               bool
	Timeout             time.Duration

	// SubscriberCount is the only handshake count actually carried over
	// the wire (as subscriber_count); a session always has exactly one
	// publisher, enforced by SessionConfiguration carrying one SourceSpec.
	SubscriberCount int
}

// Option mutates a SessionConfiguration during construction.
type Option func(*SessionConfiguration)

// WithInputStream overrides the default input stream descriptor.
func WithInputStream(s StreamSpec) Option {
	return func(c *SessionConfiguration) { c.InputStream = s }
}

// WithOutputStream overrides the default output stream descriptor.
func WithOutputStream(s StreamSpec) Option {
	return func(c *SessionConfiguration) { c.OutputStream = s }
}

// WithAllowedMessageTypes sets the inbound message filter. An empty list
// (the default) accepts every message_type.
func WithAllowedMessageTypes(types []string) Option {
	return func(c *SessionConfiguration) { c.AllowedMessageTypes = types }
}

// WithSilent toggles reduced logging.
func WithSilent(silent bool) Option {
	return func(c *SessionConfiguration) { c.Silent = silent }
}

// WithDebug toggles verbose logging, including oversized-frame previews.
func WithDebug(debug bool) Option {
	return func(c *SessionConfiguration) { c.Debug = debug }
}

// WithTimeout sets the overall session deadline used by
// Runtime.RunWithTimeout's caller; Run itself is not time-bounded.
func WithTimeout(d time.Duration) Option {
	return func(c *SessionConfiguration) { c.Timeout = d }
}

// WithSubscriberCount overrides the handshake's subscriber_count (default
// 0).
func WithSubscriberCount(subscribers int) Option {
	return func(c *SessionConfiguration) { c.SubscriberCount = subscribers }
}

// defaultStream is the fallback wire descriptor for both directions:
// 24 kHz PCM16LE mono, matching the control channel's fixed wire rate.
var defaultStream = StreamSpec{Type: "pcm_s16le", Format: "pcm_s16le", SampleRate: 24000, Channels: 1}

// NewSessionConfiguration builds a SessionConfiguration from one source
// and one or more targets, applying opts in order.
func NewSessionConfiguration(source SourceSpec, targets []TargetSpec, opts ...Option) *SessionConfiguration {
	c := &SessionConfiguration{
		Source:       source,
		Targets:      targets,
		InputStream:  defaultStream,
		OutputStream: defaultStream,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Validate checks every invariant the session configuration's data model
// requires: a source, at least one target with a distinct sink, closed
// languages, and in-range stream descriptors. It performs no network I/O.
func (c *SessionConfiguration) Validate() error {
	const op = "client.SessionConfiguration.Validate"

	if c.Source.Source == nil {
		return errs.New(errs.InvalidArgument, op, fmt.Errorf("source is required"))
	}
	if _, err := lang.Resolve(c.Source.Language); err != nil {
		return errs.New(errs.InvalidArgument, op, fmt.Errorf("source language: %w", err))
	}
	if len(c.Targets) == 0 {
		return errs.New(errs.InvalidArgument, op, fmt.Errorf("at least one target is required"))
	}

	seenSinks := make(map[Sink]bool, len(c.Targets))
	for i, tgt := range c.Targets {
		if tgt.Sink == nil {
			return errs.New(errs.InvalidArgument, op, fmt.Errorf("target %d: sink is required", i))
		}
		if seenSinks[tgt.Sink] {
			return errs.New(errs.InvalidArgument, op, fmt.Errorf("target %d: sink is reused across targets", i))
		}
		seenSinks[tgt.Sink] = true
		if _, err := lang.Resolve(tgt.Language); err != nil {
			return errs.New(errs.InvalidArgument, op, fmt.Errorf("target %d language: %w", i, err))
		}
	}

	if err := validateStream(c.InputStream, validInputFormats, "input"); err != nil {
		return errs.New(errs.InvalidArgument, op, err)
	}
	if err := validateStream(c.OutputStream, validOutputFormats, "output"); err != nil {
		return errs.New(errs.InvalidArgument, op, err)
	}
	return nil
}

func validateStream(s StreamSpec, formats map[string]bool, side string) error {
	if !formats[s.Format] {
		return fmt.Errorf("%s_stream: unsupported format %q", side, s.Format)
	}
	if s.SampleRate < minSampleRate || s.SampleRate > maxSampleRate {
		return fmt.Errorf("%s_stream: sample_rate %d out of range [%d, %d]", side, s.SampleRate, minSampleRate, maxSampleRate)
	}
	if s.Channels != 1 && s.Channels != 2 {
		return fmt.Errorf("%s_stream: channels %d must be 1 or 2", side, s.Channels)
	}
	return nil
}
