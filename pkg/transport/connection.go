package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/ucm-project/ucm-go/pkg/log"
	"github.com/ucm-project/ucm-go/pkg/wire"
)

// DefaultCloseTimeout bounds how long a graceful close waits for the
// peer's GOAWAY acknowledgment.
const DefaultCloseTimeout = 5 * time.Second

// ConnectionState tracks where a managed connection is in its
// lifecycle.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota // no link
	StateConnecting                          // dial or handshake in progress
	StateConnected                           // traffic flowing
	StateClosing                             // graceful shutdown underway
)

var connStateNames = map[ConnectionState]string{
	StateDisconnected: "DISCONNECTED",
	StateConnecting:   "CONNECTING",
	StateConnected:    "CONNECTED",
	StateClosing:      "CLOSING",
}

// String returns the connection state name.
func (s ConnectionState) String() string {
	if name, ok := connStateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// ConnectionConfig configures a managed connection.
type ConnectionConfig struct {
	// TLSConfig is the fully prepared TLS setup for this endpoint.
	TLSConfig *tls.Config

	// MaxMessageSize caps inbound and outbound frames (default 1 MiB).
	MaxMessageSize uint32

	// KeepAlive tunes the liveness probing.
	KeepAlive KeepAliveConfig

	// CloseTimeout bounds the graceful close handshake
	// (default DefaultCloseTimeout).
	CloseTimeout time.Duration

	// ReadTimeout bounds each read (0 = no timeout). With keep-alive
	// running, pongs keep the link from idling out; the timeout fires
	// only when the peer has gone completely silent.
	ReadTimeout time.Duration

	// WriteTimeout bounds each write (0 = no timeout).
	WriteTimeout time.Duration

	// Logger receives protocol events. Optional.
	Logger log.Logger
}

func (cfg ConnectionConfig) withDefaults() ConnectionConfig {
	if cfg.MaxMessageSize == 0 {
		cfg.MaxMessageSize = DefaultMaxMessageSize
	}
	if cfg.CloseTimeout == 0 {
		cfg.CloseTimeout = DefaultCloseTimeout
	}
	if cfg.KeepAlive.PingInterval == 0 {
		cfg.KeepAlive = DefaultKeepAliveConfig()
	}
	return cfg
}

// DefaultConnectionConfig returns the default connection configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{}.withDefaults()
}

// ConnectionHandler receives a managed connection's traffic and
// lifecycle events.
type ConnectionHandler interface {
	// OnMessage is called for every non-control frame.
	OnMessage(msg []byte)

	// OnStateChange is called for every lifecycle transition.
	OnStateChange(oldState, newState ConnectionState)

	// OnError is called when the connection fails.
	OnError(err error)
}

// Connection is a managed client connection to the daemon: it dials,
// verifies TLS, runs the read loop, answers pings, and monitors
// liveness with its own keep-alive. Messages and state changes are
// delivered through the handler.
type Connection struct {
	config  ConnectionConfig
	handler ConnectionHandler

	conn    net.Conn
	tlsConn *tls.Conn
	framer  *Framer

	keepAlive *KeepAlive

	state   atomic.Int32
	closing atomic.Bool
	lastRTT atomic.Int64

	// closeDone is closed when the read loop exits; graceful close
	// waits on it for the peer's GOAWAY acknowledgment.
	closeDone chan struct{}

	mu      sync.RWMutex
	writeMu sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc

	connID string
	logID  string
}

// NewConnection creates a managed connection in StateDisconnected.
func NewConnection(cfg ConnectionConfig, handler ConnectionHandler) *Connection {
	c := &Connection{
		config:  cfg.withDefaults(),
		handler: handler,
	}
	c.state.Store(int32(StateDisconnected))
	return c
}

// State returns the current connection state.
func (c *Connection) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// ConnID returns the connection identifier assigned at dial time.
func (c *Connection) ConnID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connID
}

// SetLogID rekeys protocol log events for this connection. The client
// calls it once the Hello frame arrives so frames correlate with the
// session token. Must be called from the handler's OnMessage.
func (c *Connection) SetLogID(id string) {
	c.mu.Lock()
	c.logID = id
	framer := c.framer
	c.mu.Unlock()

	if c.config.Logger != nil && framer != nil {
		framer.SetLogger(c.config.Logger, id)
	}
}

// Connect dials address and brings the connection up as the TLS
// client side.
func (c *Connection) Connect(ctx context.Context, address string) error {
	return c.establish(ctx, func() (net.Conn, *tls.Conn, error) {
		raw, err := (&net.Dialer{}).DialContext(ctx, "tcp", address)
		if err != nil {
			return nil, nil, fmt.Errorf("transport: dial %s: %w", address, err)
		}
		return raw, tls.Client(raw, c.config.TLSConfig), nil
	})
}

// Accept adopts an already-accepted TCP connection as the TLS server
// side of a managed connection. Loopback tests and embedded setups use
// it to pair two Connections directly.
func (c *Connection) Accept(ctx context.Context, conn net.Conn) error {
	err := c.establish(ctx, func() (net.Conn, *tls.Conn, error) {
		return conn, tls.Server(conn, c.config.TLSConfig), nil
	})
	if err == ErrAlreadyConnected {
		conn.Close()
	}
	return err
}

// establish runs the shared bring-up: claim the state slot, open the
// link, handshake, verify, then activate.
func (c *Connection) establish(ctx context.Context, open func() (net.Conn, *tls.Conn, error)) error {
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return ErrAlreadyConnected
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.closeDone = make(chan struct{})
	c.closing.Store(false)
	c.announce(StateDisconnected, StateConnecting)

	fail := func(link io.Closer, err error) error {
		if link != nil {
			link.Close()
		}
		c.transition(StateConnecting, StateDisconnected)
		return err
	}

	raw, tlsConn, err := open()
	if err != nil {
		return fail(nil, err)
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return fail(raw, fmt.Errorf("transport: handshake: %w", err))
	}
	if err := VerifyConnection(tlsConn.ConnectionState()); err != nil {
		return fail(tlsConn, err)
	}

	c.activate(raw, tlsConn)
	return nil
}

// activate installs the handshaken connection, then starts keep-alive
// and the read loop.
func (c *Connection) activate(conn net.Conn, tlsConn *tls.Conn) {
	connID := uuid.New().String()
	framer := NewFramerWithMaxSize(tlsConn, c.config.MaxMessageSize)
	if c.config.Logger != nil {
		framer.SetLogger(c.config.Logger, connID)
	}

	c.mu.Lock()
	c.conn = conn
	c.tlsConn = tlsConn
	c.framer = framer
	c.connID = connID
	c.logID = connID
	c.mu.Unlock()

	c.startKeepAlive()
	go c.readLoop()

	c.transition(StateConnecting, StateConnected)
}

// link snapshots the current framer and socket under the lock.
func (c *Connection) link() (*Framer, *tls.Conn) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.framer, c.tlsConn
}

// Send writes one framed message.
func (c *Connection) Send(data []byte) error {
	if c.State() != StateConnected {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	framer, tlsConn := c.link()
	if framer == nil {
		return ErrNotConnected
	}

	if c.config.WriteTimeout > 0 {
		tlsConn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
		defer tlsConn.SetWriteDeadline(time.Time{})
	}
	return framer.WriteFrame(data)
}

// SendControl sends a control message (ping/pong/goaway).
func (c *Connection) SendControl(op wire.ControlOp, seq uint32) error {
	data, err := wire.EncodeControl(&wire.Control{
		Op:       op,
		Sequence: seq,
	})
	if err != nil {
		return fmt.Errorf("transport: encode control: %w", err)
	}

	// Control ops skip the Connected check so the GOAWAY can leave
	// during StateClosing.
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	framer, _ := c.link()
	if framer == nil {
		return ErrNotConnected
	}

	if err := framer.WriteFrame(data); err != nil {
		return err
	}
	c.logControl(op, seq, log.DirectionOut)
	return nil
}

// Close gracefully closes the connection.
func (c *Connection) Close() error {
	return c.CloseWithTimeout(c.config.CloseTimeout)
}

// CloseWithTimeout gracefully closes with a specific timeout. It sends
// a GOAWAY and waits for the peer's acknowledgment (which ends the read
// loop) before tearing the connection down.
func (c *Connection) CloseWithTimeout(timeout time.Duration) error {
	if !c.closing.CompareAndSwap(false, true) {
		return nil
	}

	from := c.State()
	if from == StateDisconnected {
		return nil
	}
	c.transition(from, StateClosing)

	c.SendControl(wire.ControlGoAway, 0)

	var closeErr error
	select {
	case <-c.closeDone:
	case <-time.After(timeout):
		closeErr = ErrCloseTimeout
	}

	c.teardown()
	c.transition(StateClosing, StateDisconnected)
	return closeErr
}

// ForceClose immediately closes the connection without the graceful
// handshake.
func (c *Connection) ForceClose() {
	if !c.closing.CompareAndSwap(false, true) {
		return
	}

	from := c.State()
	c.teardown()

	c.state.Store(int32(StateDisconnected))
	if from != StateDisconnected {
		c.announce(from, StateDisconnected)
	}
}

// teardown stops keep-alive, cancels the read loop, and closes the
// socket. The socket close happens outside the lock since it can
// block.
func (c *Connection) teardown() {
	if c.keepAlive != nil {
		c.keepAlive.Stop()
	}
	if c.cancel != nil {
		c.cancel()
	}

	c.mu.Lock()
	tlsConn := c.tlsConn
	c.conn = nil
	c.tlsConn = nil
	c.framer = nil
	c.mu.Unlock()

	if tlsConn != nil {
		tlsConn.Close()
	}
}

// LocalAddr returns the local network address, or nil when down.
func (c *Connection) LocalAddr() net.Addr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.LocalAddr()
}

// RemoteAddr returns the remote network address, or nil when down.
func (c *Connection) RemoteAddr() net.Addr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.RemoteAddr()
}

// TLSConnectionState reports the negotiated TLS parameters. The bool
// is false when the connection is down.
func (c *Connection) TLSConnectionState() (tls.ConnectionState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.tlsConn == nil {
		return tls.ConnectionState{}, false
	}
	return c.tlsConn.ConnectionState(), true
}

// LastRTT reports the round-trip time of the most recently answered
// keep-alive probe, and false before the first pong arrives.
func (c *Connection) LastRTT() (time.Duration, bool) {
	rtt := c.lastRTT.Load()
	return time.Duration(rtt), rtt != 0
}

func (c *Connection) startKeepAlive() {
	c.keepAlive = NewKeepAlive(
		c.config.KeepAlive,
		func(seq uint32) error {
			return c.SendControl(wire.ControlPing, seq)
		},
		func() {
			c.handler.OnError(fmt.Errorf("keep-alive timeout"))
			c.ForceClose()
		},
	)
	c.keepAlive.OnPong(func(seq uint32, rtt time.Duration) {
		c.lastRTT.Store(int64(rtt))
	})
	c.keepAlive.Start(c.ctx)
}

// readLoop pulls frames off the wire, dispatches control traffic, and
// hands everything else to the handler.
func (c *Connection) readLoop() {
	defer close(c.closeDone)

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		framer, tlsConn := c.link()
		if framer == nil {
			return
		}

		if c.config.ReadTimeout > 0 {
			tlsConn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		}

		data, err := framer.ReadFrame()
		if err != nil {
			if c.State() == StateClosing || c.ctx.Err() != nil {
				return // expected during close
			}
			c.handler.OnError(fmt.Errorf("read error: %w", err))
			c.ForceClose()
			return
		}

		kind, peekErr := wire.PeekMessageKind(data)
		if peekErr == nil && kind == wire.KindControl {
			if ctrl, err := wire.DecodeControl(data); err == nil {
				if c.handleControl(ctrl) {
					return
				}
				continue
			}
		}

		c.handler.OnMessage(data)
	}
}

// handleControl processes control messages. It returns true when the
// read loop should exit.
func (c *Connection) handleControl(msg *wire.Control) bool {
	c.logControl(msg.Op, msg.Sequence, log.DirectionIn)

	switch msg.Op {
	case wire.ControlPing:
		c.SendControl(wire.ControlPong, msg.Sequence)

	case wire.ControlPong:
		if c.keepAlive != nil {
			c.keepAlive.PongReceived(msg.Sequence)
		}

	case wire.ControlGoAway:
		if c.State() == StateClosing {
			// The peer acknowledged our GOAWAY; ending the read
			// loop completes the graceful close.
			return true
		}
		// Peer initiated the close. Acknowledge and tear down.
		c.SendControl(wire.ControlGoAway, 0)
		c.ForceClose()
		return true
	}

	return false
}

// logControl logs a control message event.
func (c *Connection) logControl(op wire.ControlOp, seq uint32, direction log.Direction) {
	if c.config.Logger == nil {
		return
	}

	var msgType log.ControlMsgType
	var seqPtr *uint32
	switch op {
	case wire.ControlPing:
		msgType = log.ControlMsgPing
		seqPtr = &seq
	case wire.ControlPong:
		msgType = log.ControlMsgPong
		seqPtr = &seq
	case wire.ControlGoAway:
		msgType = log.ControlMsgGoAway
	default:
		return
	}

	c.mu.RLock()
	logID := c.logID
	c.mu.RUnlock()

	c.config.Logger.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: logID,
		Direction: direction,
		Layer:     log.LayerTransport,
		Category:  log.CategoryControl,
		LocalRole: log.RoleClient,
		ControlMsg: &log.ControlMsgEvent{
			Type:     msgType,
			Sequence: seqPtr,
		},
	})
}

// announce reports a transition to the handler without touching state.
func (c *Connection) announce(from, to ConnectionState) {
	if c.handler != nil {
		c.handler.OnStateChange(from, to)
	}
}

// transition stores the new state and reports it.
func (c *Connection) transition(from, to ConnectionState) {
	c.state.Store(int32(to))
	c.announce(from, to)
}
