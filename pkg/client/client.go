package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ucm-project/ucm-go/pkg/log"
	"github.com/ucm-project/ucm-go/pkg/transport"
	"github.com/ucm-project/ucm-go/pkg/version"
	"github.com/ucm-project/ucm-go/pkg/wire"
)

// Client errors.
var (
	ErrClosed         = errors.New("client is closed")
	ErrConnectionLost = errors.New("connection lost")
	ErrNoHello        = errors.New("no hello from daemon")
	ErrABIMismatch    = errors.New("abi version mismatch")
)

// StatusError is returned when the daemon answers an operation with a
// non-success status.
type StatusError struct {
	Op     wire.Op
	Status wire.Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Op, e.Status)
}

// IsStatus reports whether err is a *StatusError carrying the given status.
func IsStatus(err error, status wire.Status) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == status
}

// Config holds client configuration.
type Config struct {
	// TLSConfig is the TLS client configuration (required).
	TLSConfig *transport.TLSConfig

	// RequestTimeout bounds each operation when the caller's context
	// carries no deadline (default: 30s).
	RequestTimeout time.Duration

	// HelloTimeout bounds the wait for the daemon's hello frame after
	// the TLS handshake (default: 5s).
	HelloTimeout time.Duration

	// KeepAlive configuration. Zero values select the transport defaults.
	KeepAlive transport.KeepAliveConfig

	// MaxMessageSize is the maximum frame size (default: transport default).
	MaxMessageSize uint32

	// Logger receives protocol frame logging (optional).
	Logger log.Logger

	// OnError is called with transport-level errors such as keep-alive
	// timeouts (optional).
	OnError func(error)
}

// Client is a connection to a UCM daemon.
//
// All methods are safe for concurrent use.
type Client struct {
	conn   *transport.Connection
	config Config

	nextMsgID atomic.Uint32

	// Pending operations awaiting replies, keyed by message id. The
	// mutex also serializes reply delivery against failPending so a
	// closed channel is never sent on.
	pendingMu sync.Mutex
	pending   map[uint32]chan *wire.Reply

	helloMu sync.Mutex
	hello   wire.Hello
	helloOK bool
	helloCh chan struct{}

	// readyCh conflates readiness notices, matching the daemon's
	// empty-to-non-empty edge semantics.
	readyCh chan struct{}

	closed atomic.Bool
}

// Dial connects to a daemon, waits for its hello and returns a client
// ready for operations.
func Dial(ctx context.Context, address string, config Config) (*Client, error) {
	if config.TLSConfig == nil {
		return nil, errors.New("TLSConfig is required")
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 30 * time.Second
	}
	if config.HelloTimeout == 0 {
		config.HelloTimeout = 5 * time.Second
	}

	tlsConf, err := transport.NewClientTLSConfig(config.TLSConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create TLS config: %w", err)
	}

	c := &Client{
		config:  config,
		pending: make(map[uint32]chan *wire.Reply),
		helloCh: make(chan struct{}),
		readyCh: make(chan struct{}, 1),
	}

	connConfig := transport.DefaultConnectionConfig()
	connConfig.TLSConfig = tlsConf
	if config.KeepAlive.PingInterval != 0 {
		connConfig.KeepAlive = config.KeepAlive
	}
	if config.MaxMessageSize != 0 {
		connConfig.MaxMessageSize = config.MaxMessageSize
	}
	connConfig.Logger = config.Logger

	c.conn = transport.NewConnection(connConfig, c)

	if err := c.conn.Connect(ctx, address); err != nil {
		return nil, err
	}

	select {
	case <-c.helloCh:
	case <-ctx.Done():
		c.conn.ForceClose()
		return nil, ctx.Err()
	case <-time.After(config.HelloTimeout):
		c.conn.ForceClose()
		return nil, ErrNoHello
	}

	if abi := c.Hello().ABIVersion; abi != version.ABIVersion {
		c.conn.ForceClose()
		return nil, fmt.Errorf("%w: daemon speaks v%d, client speaks v%d",
			ErrABIMismatch, abi, version.ABIVersion)
	}
	return c, nil
}

// Close closes the connection gracefully and fails all in-flight
// operations. It is safe to call multiple times.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := c.conn.Close()
	c.failPending()
	return err
}

// Hello returns the hello frame received from the daemon.
func (c *Client) Hello() wire.Hello {
	c.helloMu.Lock()
	defer c.helloMu.Unlock()
	return c.hello
}

// SessionToken returns the session token assigned by the daemon.
func (c *Client) SessionToken() string {
	return c.Hello().SessionToken
}

// Ready returns a channel that receives a token each time the daemon
// announces pending events. Notices are conflated; one token may stand
// for several queued events, so drain with GetEvent until it reports
// no more.
func (c *Client) Ready() <-chan struct{} {
	return c.readyCh
}

// State returns the current transport connection state.
func (c *Client) State() transport.ConnectionState {
	return c.conn.State()
}

// LinkRTT reports the round-trip time of the last answered keep-alive
// probe, and false before any probe has completed.
func (c *Client) LinkRTT() (time.Duration, bool) {
	return c.conn.LastRTT()
}

// OnMessage routes incoming frames by envelope kind. It runs on the
// connection's read goroutine.
func (c *Client) OnMessage(data []byte) {
	kind, err := wire.PeekMessageKind(data)
	if err != nil {
		return
	}
	switch kind {
	case wire.KindHello:
		c.handleHello(data)
	case wire.KindReply:
		c.handleReply(data)
	case wire.KindReady:
		select {
		case c.readyCh <- struct{}{}:
		default:
		}
	}
}

// OnStateChange implements transport.ConnectionHandler.
func (c *Client) OnStateChange(oldState, newState transport.ConnectionState) {
	if newState == transport.StateDisconnected {
		c.failPending()
	}
}

// OnError implements transport.ConnectionHandler.
func (c *Client) OnError(err error) {
	if c.config.OnError != nil {
		c.config.OnError(err)
	}
}

func (c *Client) handleHello(data []byte) {
	hello, err := wire.DecodeHello(data)
	if err != nil {
		return
	}
	c.helloMu.Lock()
	first := !c.helloOK
	c.hello = *hello
	c.helloOK = true
	c.helloMu.Unlock()
	if first {
		// Frames logged from here on carry the session token instead
		// of the transport connection id.
		c.conn.SetLogID(hello.SessionToken)
		close(c.helloCh)
	}
}

func (c *Client) handleReply(data []byte) {
	reply, err := wire.DecodeReply(data)
	if err != nil {
		return
	}
	c.pendingMu.Lock()
	if ch, ok := c.pending[reply.MessageID]; ok {
		select {
		case ch <- reply:
		default:
		}
	}
	c.pendingMu.Unlock()
}

// failPending closes every pending reply channel. Waiters observe the
// close and report the connection as lost.
func (c *Client) failPending() {
	c.pendingMu.Lock()
	for _, ch := range c.pending {
		close(ch)
	}
	c.pending = make(map[uint32]chan *wire.Reply)
	c.pendingMu.Unlock()
}

// call submits one command and waits for its correlated reply. A reply
// with a non-success status is returned as a *StatusError.
func (c *Client) call(ctx context.Context, op wire.Op, in, out uint16, cmd any) (*wire.Reply, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	sub, err := wire.BuildSubmission(op, in, out, cmd)
	if err != nil {
		return nil, err
	}
	msgID := c.nextMsgID.Add(1)
	frame, err := wire.EncodeCommand(&wire.Command{MessageID: msgID, Data: sub})
	if err != nil {
		return nil, err
	}

	respCh := make(chan *wire.Reply, 1)
	c.pendingMu.Lock()
	c.pending[msgID] = respCh
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, msgID)
		c.pendingMu.Unlock()
	}()

	if err := c.conn.Send(frame); err != nil {
		return nil, err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.RequestTimeout)
		defer cancel()
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case reply, ok := <-respCh:
		if !ok {
			if c.closed.Load() {
				return nil, ErrClosed
			}
			return nil, ErrConnectionLost
		}
		if reply.Status != wire.StatusSuccess {
			return nil, &StatusError{Op: op, Status: reply.Status}
		}
		return reply, nil
	}
}

// callInto performs call and unmarshals the reply payload into out.
func (c *Client) callInto(ctx context.Context, op wire.Op, in, outSize uint16, cmd, out any) error {
	reply, err := c.call(ctx, op, in, outSize, cmd)
	if err != nil {
		return err
	}
	if err := wire.Unmarshal(reply.Payload, out); err != nil {
		return fmt.Errorf("failed to decode %s reply: %w", op, err)
	}
	return nil
}
