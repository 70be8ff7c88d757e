// Package errs defines the stable error taxonomy shared across the
// session client. Every error the core surfaces to a caller carries one of
// these kinds so callers can branch with errors.Is/errors.As instead of
// matching on message text.
package errs

import "fmt"

// Kind classifies why an operation failed. It is never used on its own as
// an error value — wrap it with New or a sentinel below.
type Kind int

const (
	// InvalidArgument means caller-supplied configuration is malformed:
	// null/empty credentials, missing source, missing targets, unknown
	// language, out-of-range rate.
	InvalidArgument Kind = iota
	// SessionCreation means the HTTP handshake returned ok=false or a
	// non-2xx status.
	SessionCreation
	// Authentication means the server rejected the token or returned
	// 401/403 during channel open.
	Authentication
	// Transport means the control channel failed to open after exhausted
	// reconnects, or a send failed against a closed channel.
	Transport
	// MalformedFrame means a JSON parse, base64 decode, or required-field
	// check failed on an inbound or outbound frame.
	MalformedFrame
	// UnknownLanguage means a language code is not in the closed set.
	UnknownLanguage
	// Backpressure means the outbound queue stayed saturated past its
	// grace period.
	Backpressure
	// Cancelled means the caller requested cancellation. Not an error in
	// telemetry, but surfaced to the caller like one.
	Cancelled
	// Timeout means the overall deadline elapsed before completion.
	Timeout
)

// String implements fmt.Stringer and slog.LogValuer-friendly formatting.
func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid_argument"
	case SessionCreation:
		return "session_creation"
	case Authentication:
		return "authentication"
	case Transport:
		return "transport"
	case MalformedFrame:
		return "malformed_frame"
	case UnknownLanguage:
		return "unknown_language"
	case Backpressure:
		return "backpressure"
	case Cancelled:
		return "cancelled"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by the core. Op names the
// failing operation (e.g. "session.CreateSession", "control.Send") for
// logs; the wrapped Err, if any, carries the lower-level cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, errs.New(errs.Timeout, "", nil)) style sentinel
// comparisons match on Kind alone, ignoring Op and the wrapped cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds an *Error for kind, tagging it with the operation name op.
// err may be nil.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Sentinel values for errors.Is comparisons where no operation name or
// wrapped cause is needed.
var (
	ErrCancelled = &Error{Kind: Cancelled}
	ErrTimeout   = &Error{Kind: Timeout}
)
