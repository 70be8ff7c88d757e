// Package control implements the persistent JSON duplex connection to the
// translation service: dial, keepalive, reconnect, and backpressured send.
package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"go.palabra.dev/client/errs"
	"go.palabra.dev/client/wire"
)

// State is one point in the channel's connection lifecycle.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateReconnecting
	StateClosing
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

const (
	connectionLostTimeout = 60 * time.Second
	reconnectDelay        = 1 * time.Second
	maxReconnectAttempts  = 10
	backpressureWait      = 100 * time.Millisecond
	oversizedLogBytes     = 800
	outboundQueueSize     = 256
	inboundQueueSize      = 256
)

// Channel is a persistent JSON duplex connection, authenticated by a
// token carried as a query parameter. The token is never logged.
//
// Each live socket is one generation: a successful dial (initial connect
// or reconnect) bumps generation and installs a fresh per-generation
// context whose cancellation retires the previous generation's read/write
// loops. A loop that hits an I/O error checks whether its own generation
// is still current before reacting — an error from an already-retired
// generation is expected noise, not a new failure to react to.
type Channel struct {
	rawURL string
	token  string

	mu          sync.Mutex
	state       State
	conn        *websocket.Conn
	generation  int
	connCancel  context.CancelFunc
	keepRunning bool
	attempts    int
	lastErr     error

	outbound chan []byte
	inbound  chan wire.Envelope
	handler  func(wire.Envelope)

	done     chan struct{}
	doneOnce sync.Once
}

// New builds a Channel for controlURL, authenticated with publisherToken.
// Send may be called before Connect: frames wait in the bounded outbound
// queue and are written once Connect succeeds. Recv delivers nothing until
// then.
func New(controlURL, publisherToken string) *Channel {
	return &Channel{
		rawURL:   controlURL,
		token:    publisherToken,
		outbound: make(chan []byte, outboundQueueSize),
		inbound:  make(chan wire.Envelope, inboundQueueSize),
		done:     make(chan struct{}),
	}
}

// SetHandler registers a push handler invoked, in receive order, for every
// inbound frame in addition to delivery via Recv.
func (c *Channel) SetHandler(h func(wire.Envelope)) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// State returns the channel's current lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed once the channel reaches a terminal state (Closed or
// Failed).
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Err returns the terminal error, if the channel ended in Failed.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Channel) dialURL() (string, error) {
	u, err := url.Parse(c.rawURL)
	if err != nil {
		return "", errs.New(errs.InvalidArgument, "control.Channel.Connect", err)
	}
	q := u.Query()
	q.Set("token", c.token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Connect dials the control URL and starts the read/write loops. Callers
// should bound ctx (the runtime uses a 10 s upper bound).
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return errs.New(errs.Transport, "control.Channel.Connect", fmt.Errorf("connect called in state %s", c.state))
	}
	c.state = StateConnecting
	c.mu.Unlock()

	conn, _, err := c.dial(ctx)
	if err != nil {
		c.mu.Lock()
		c.state = StateFailed
		c.lastErr = err
		c.mu.Unlock()
		c.closeDone()
		return err
	}

	c.mu.Lock()
	c.state = StateOpen
	c.keepRunning = true
	c.attempts = 0
	gen, genCtx := c.startGeneration(conn)
	c.mu.Unlock()

	go c.readLoop(gen, conn, genCtx)
	go c.writeLoop(gen, conn, genCtx)
	return nil
}

// startGeneration retires the previous generation (cancelling its context,
// which unblocks any read/write loop still running against the old conn)
// and installs conn as the new current generation. Callers must hold c.mu.
func (c *Channel) startGeneration(conn *websocket.Conn) (gen int, ctx context.Context) {
	if c.connCancel != nil {
		c.connCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.generation++
	c.conn = conn
	c.connCancel = cancel
	return c.generation, ctx
}

// dial performs one connection attempt. terminal is true when the failure
// should never be retried (e.g. an HTTP 4xx handshake rejection), per the
// reconnect policy's "terminal on repeated 4xx" rule.
func (c *Channel) dial(ctx context.Context) (conn *websocket.Conn, terminal bool, err error) {
	addr, err := c.dialURL()
	if err != nil {
		return nil, true, err
	}
	conn, resp, err := websocket.Dial(ctx, addr, nil)
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
			if resp.StatusCode == 401 || resp.StatusCode == 403 {
				return nil, true, errs.New(errs.Authentication, "control.Channel.dial", err)
			}
			return nil, true, errs.New(errs.Transport, "control.Channel.dial", err)
		}
		return nil, false, errs.New(errs.Transport, "control.Channel.dial", err)
	}
	return conn, false, nil
}

// Send enqueues v for delivery. Serialization does not escape non-ASCII
// characters. If the outbound queue is full, Send waits up to 100 ms
// before failing with errs.Backpressure. Send never writes to the
// outbound channel after the channel has closed: it always observes
// c.done instead, so a Send racing Close cannot panic on a closed channel.
func (c *Channel) Send(ctx context.Context, v any) error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	switch state {
	case StateClosing, StateClosed, StateFailed:
		return errs.New(errs.Transport, "control.Channel.Send", fmt.Errorf("channel is %s", state))
	}

	frame, err := encode(v)
	if err != nil {
		return errs.New(errs.MalformedFrame, "control.Channel.Send", err)
	}

	select {
	case c.outbound <- frame:
		return nil
	case <-c.done:
		return errs.New(errs.Transport, "control.Channel.Send", fmt.Errorf("channel closed"))
	default:
	}

	timer := time.NewTimer(backpressureWait)
	defer timer.Stop()
	select {
	case c.outbound <- frame:
		return nil
	case <-c.done:
		return errs.New(errs.Transport, "control.Channel.Send", fmt.Errorf("channel closed"))
	case <-timer.C:
		return errs.New(errs.Backpressure, "control.Channel.Send", nil)
	case <-ctx.Done():
		return errs.New(errs.Cancelled, "control.Channel.Send", ctx.Err())
	}
}

// encode marshals v to JSON without HTML-escaping, so literal non-ASCII
// text and characters like <, >, & survive unmangled.
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	out := buf.Bytes()
	if len(out) > 0 && out[len(out)-1] == '\n' {
		out = out[:len(out)-1]
	}
	return out, nil
}

// Recv blocks for the next inbound envelope, or returns ctx.Err() if ctx
// is cancelled first.
func (c *Channel) Recv(ctx context.Context) (wire.Envelope, error) {
	select {
	case env, ok := <-c.inbound:
		if !ok {
			return wire.Envelope{}, errs.New(errs.Transport, "control.Channel.Recv", fmt.Errorf("channel closed"))
		}
		return env, nil
	case <-ctx.Done():
		return wire.Envelope{}, errs.New(errs.Cancelled, "control.Channel.Recv", ctx.Err())
	}
}

// writeLoop drains c.outbound onto conn for as long as gen is the current
// generation. It exits the instant ctx is cancelled — by a reconnect
// installing a newer generation, or by Close retiring the channel for
// good — rather than waiting for a write to fail against a dead conn.
// Exactly one writeLoop is ever active at a time: a reconnect always
// retires the prior generation's context before starting a new loop.
func (c *Channel) writeLoop(gen int, conn *websocket.Conn, ctx context.Context) {
	for {
		select {
		case frame := <-c.outbound:
			if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
				slog.Warn("control channel write failed", "error", err)
				c.connFailed(gen, err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// readLoop reads frames off conn for as long as gen is the current
// generation. Each read is bounded by connectionLostTimeout layered on
// top of the generation context, so a silently half-open connection with
// no incoming traffic is detected and reconnected rather than blocking
// forever.
func (c *Channel) readLoop(gen int, conn *websocket.Conn, ctx context.Context) {
	for {
		readCtx, cancel := context.WithTimeout(ctx, connectionLostTimeout)
		_, data, err := conn.Read(readCtx)
		cancel()
		if err != nil {
			slog.Warn("control channel read failed", "error", err)
			c.connFailed(gen, err)
			return
		}

		if len(data) > oversizedLogBytes {
			slog.Debug("inbound control frame", "bytes", len(data), "truncated", string(data[:oversizedLogBytes]))
		} else {
			slog.Debug("inbound control frame", "bytes", len(data))
		}

		var env wire.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			slog.Warn("malformed control frame", "error", err)
			continue
		}

		c.mu.Lock()
		handler := c.handler
		c.mu.Unlock()
		if handler != nil {
			handler(env)
		}

		select {
		case c.inbound <- env:
		default:
			slog.Warn("inbound queue full, dropping frame", "message_type", env.MessageType)
		}
	}
}

// connFailed reacts to an I/O error from generation gen. It no-ops when
// gen is no longer the current generation (the error is stale: a sibling
// loop already drove a reconnect, or the channel is closing), when the
// channel isn't meant to keep running, or when a reconnect for this same
// generation is already underway — so two loops failing against the same
// broken conn spawn exactly one reconnectLoop, not two.
func (c *Channel) connFailed(gen int, cause error) {
	c.mu.Lock()
	if gen != c.generation || !c.keepRunning || c.state != StateOpen {
		c.mu.Unlock()
		return
	}
	c.state = StateReconnecting
	c.mu.Unlock()

	go c.reconnectLoop(cause)
}

func (c *Channel) reconnectLoop(cause error) {
	for {
		c.mu.Lock()
		if !c.keepRunning {
			c.mu.Unlock()
			return
		}
		c.attempts++
		attempt := c.attempts
		c.mu.Unlock()

		if attempt > maxReconnectAttempts {
			c.fail(errs.New(errs.Transport, "control.Channel.reconnect", fmt.Errorf("exhausted %d reconnect attempts: %w", maxReconnectAttempts, cause)))
			return
		}

		time.Sleep(reconnectDelay)

		dialCtx, cancel := context.WithTimeout(context.Background(), connectionLostTimeout)
		conn, terminal, err := c.dial(dialCtx)
		cancel()
		if err != nil {
			if terminal {
				c.fail(err)
				return
			}
			continue
		}

		c.mu.Lock()
		if !c.keepRunning {
			c.mu.Unlock()
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}
		c.state = StateOpen
		c.attempts = 0
		gen, genCtx := c.startGeneration(conn)
		c.mu.Unlock()

		go c.readLoop(gen, conn, genCtx)
		go c.writeLoop(gen, conn, genCtx)
		return
	}
}

func (c *Channel) fail(err error) {
	c.mu.Lock()
	c.state = StateFailed
	c.lastErr = err
	c.keepRunning = false
	if c.connCancel != nil {
		c.connCancel()
	}
	c.mu.Unlock()
	c.closeDone()
}

func (c *Channel) closeDone() {
	c.doneOnce.Do(func() { close(c.done) })
}

// Close clears keepRunning, flushes pending sends up to graceSeconds,
// retires the active generation (interrupting any blocked read/write
// loop), issues a protocol-level close, and transitions to Closed
// regardless of how the flush or close-handshake goes. The outbound
// channel is never closed: a concurrent Send observes c.done instead, so
// Close can never race Send into a send-on-closed-channel panic.
func (c *Channel) Close(graceSeconds float64) error {
	c.mu.Lock()
	if c.state == StateClosed || c.state == StateFailed {
		c.mu.Unlock()
		return nil
	}
	c.keepRunning = false
	c.state = StateClosing
	conn := c.conn
	c.mu.Unlock()

	deadline := time.Now().Add(time.Duration(graceSeconds * float64(time.Second)))
	for len(c.outbound) > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	c.mu.Lock()
	c.generation++
	if c.connCancel != nil {
		c.connCancel()
	}
	c.state = StateClosed
	c.mu.Unlock()
	c.closeDone()

	var closeErr error
	if conn != nil {
		closeErr = conn.Close(websocket.StatusNormalClosure, "session complete")
	}
	if closeErr != nil {
		slog.Debug("control channel close handshake error", "error", closeErr)
	}
	return nil
}
