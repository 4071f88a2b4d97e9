package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/ucm-project/ucm-go/pkg/log"
	"github.com/ucm-project/ucm-go/pkg/wire"
)

// ServerConfig configures a UCM daemon listener.
type ServerConfig struct {
	// TLSConfig supplies the daemon certificate and client CA pool.
	TLSConfig *TLSConfig

	// Address to listen on (e.g., ":7471" or "127.0.0.1:7471").
	Address string

	// RequireClientCert rejects clients that present no certificate.
	RequireClientCert bool

	// MaxMessageSize is the maximum message size (default: 1 MiB).
	MaxMessageSize uint32

	// MaxConnections caps concurrent client connections (0 = unlimited).
	MaxConnections int

	// Logger receives protocol log events. Nil disables logging.
	Logger log.Logger

	// OnConnect fires once a client completes the handshake.
	OnConnect func(conn *ServerConn)

	// OnDisconnect fires when a client connection ends.
	OnDisconnect func(conn *ServerConn)

	// OnMessage receives each non-control frame.
	OnMessage func(conn *ServerConn, msg []byte)

	// OnError reports accept and read failures. conn is nil for
	// listener-level errors.
	OnError func(conn *ServerConn, err error)
}

// Server is the daemon's TLS listener. It accepts client connections
// and hands framed messages to the service layer callbacks.
type Server struct {
	config   ServerConfig
	tlsConf  *tls.Config
	listener net.Listener

	conns   map[*ServerConn]struct{}
	connsMu sync.RWMutex

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a new server.
func NewServer(config ServerConfig) (*Server, error) {
	if config.TLSConfig == nil {
		return nil, errors.New("transport: server requires a TLSConfig")
	}
	if config.Address == "" {
		config.Address = fmt.Sprintf(":%d", DefaultPort)
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}

	tlsConf, err := NewServerTLSConfig(config.TLSConfig)
	if err != nil {
		return nil, fmt.Errorf("transport: server TLS setup: %w", err)
	}
	if config.RequireClientCert {
		tlsConf.ClientAuth = tls.RequireAndVerifyClientCert
	}

	return &Server{
		config:  config,
		tlsConf: tlsConf,
		conns:   make(map[*ServerConn]struct{}),
	}, nil
}

// Start begins listening and accepting connections.
func (s *Server) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("transport: server already running")
	}

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		s.running.Store(false)
		return fmt.Errorf("transport: listen %s: %w", s.config.Address, err)
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.listener = listener

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop stops the server and closes all connections. Connected peers
// receive a GOAWAY before their connection is torn down.
func (s *Server) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}

	// Snapshot under the lock, announce outside it: the GOAWAY write
	// carries a deadline and must not stall other connections.
	s.connsMu.Lock()
	conns := make([]*ServerConn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.connsMu.Unlock()

	for _, conn := range conns {
		conn.announceGoAway()
		conn.Close()
	}

	s.wg.Wait()
	return nil
}

// Addr reports the bound listen address, nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// ConnectionCount reports how many clients are connected.
func (s *Server) ConnectionCount() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

func (s *Server) reportError(conn *ServerConn, err error) {
	if s.config.OnError != nil {
		s.config.OnError(conn, err)
	}
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() {
				return
			}
			s.reportError(nil, fmt.Errorf("accept: %w", err))
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// negotiate completes the TLS handshake and checks the negotiated
// parameters against the protocol's requirements.
func (s *Server) negotiate(conn net.Conn) (*tls.Conn, error) {
	tlsConn := tls.Server(conn, s.tlsConf)
	if err := tlsConn.HandshakeContext(s.ctx); err != nil {
		return nil, fmt.Errorf("TLS handshake failed: %w", err)
	}

	state := tlsConn.ConnectionState()
	if err := VerifyConnection(state); err != nil {
		return nil, err
	}
	if s.config.RequireClientCert && len(state.PeerCertificates) == 0 {
		return nil, errors.New("client certificate required but not provided")
	}
	return tlsConn, nil
}

// register adds the connection to the active set, enforcing the cap.
func (s *Server) register(conn *ServerConn) error {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()

	if max := s.config.MaxConnections; max > 0 && len(s.conns) >= max {
		return fmt.Errorf("connection limit reached (%d)", max)
	}
	s.conns[conn] = struct{}{}
	return nil
}

func (s *Server) unregister(conn *ServerConn) {
	s.connsMu.Lock()
	delete(s.conns, conn)
	s.connsMu.Unlock()
}

// handleConnection owns one client connection from handshake to
// disconnect.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	tlsConn, err := s.negotiate(conn)
	if err != nil {
		conn.Close()
		s.reportError(nil, err)
		return
	}

	sconn := s.newServerConn(tlsConn)
	if err := s.register(sconn); err != nil {
		tlsConn.Close()
		s.reportError(nil, err)
		return
	}

	sconn.logState("", "CONNECTED")
	if s.config.OnConnect != nil {
		s.config.OnConnect(sconn)
	}

	sconn.readLoop()

	s.unregister(sconn)
	sconn.logState("CONNECTED", "DISCONNECTED")
	if s.config.OnDisconnect != nil {
		s.config.OnDisconnect(sconn)
	}
}

func (s *Server) newServerConn(tlsConn *tls.Conn) *ServerConn {
	connID := uuid.New().String()
	framer := NewFramerWithMaxSize(tlsConn, s.config.MaxMessageSize)
	if s.config.Logger != nil {
		framer.SetLogger(s.config.Logger, connID)
	}

	return &ServerConn{
		sock:       tlsConn,
		framer:     framer,
		tlsState:   tlsConn.ConnectionState(),
		server:     s,
		done:       make(chan struct{}),
		remoteAddr: tlsConn.RemoteAddr(),
		connID:     connID,
		logID:      connID,
	}
}

// ServerConn represents a client connection to the daemon.
type ServerConn struct {
	sock       *tls.Conn
	framer     *Framer
	tlsState   tls.ConnectionState
	server     *Server
	remoteAddr net.Addr

	connID string // assigned at accept time
	logID  string // correlation id for protocol log events

	done      chan struct{}
	closeOnce sync.Once
	sendMu    sync.Mutex
}

// RemoteAddr reports the client's network address.
func (c *ServerConn) RemoteAddr() net.Addr {
	return c.remoteAddr
}

// ConnID reports the transport-level connection id.
func (c *ServerConn) ConnID() string {
	return c.connID
}

// TLSState exposes the negotiated TLS parameters.
func (c *ServerConn) TLSState() tls.ConnectionState {
	return c.tlsState
}

// SetLogID rekeys protocol log events for this connection. The service
// layer calls it once a session is opened so frames correlate with the
// session token instead of the transport conn id. Must be called from
// OnConnect, before the read loop starts.
func (c *ServerConn) SetLogID(id string) {
	c.logID = id
	if c.server.config.Logger != nil {
		c.framer.SetLogger(c.server.config.Logger, id)
	}
}

// Send sends a message to the client.
func (c *ServerConn) Send(data []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.framer.WriteFrame(data)
}

// Close closes the connection.
func (c *ServerConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.sock.Close()
	})
	return err
}

func (c *ServerConn) closing() bool {
	select {
	case <-c.done:
		return true
	case <-c.server.ctx.Done():
		return true
	default:
		return false
	}
}

// announceGoAway tells the peer the daemon is shutting down. Best
// effort with a short deadline so Stop cannot hang on a stuck peer.
func (c *ServerConn) announceGoAway() {
	msg, err := EncodeGoAway()
	if err != nil {
		return
	}
	c.sendMu.Lock()
	c.sock.SetWriteDeadline(time.Now().Add(time.Second))
	if c.framer.WriteFrame(msg) == nil {
		c.logControl(wire.ControlGoAway, 0, log.DirectionOut)
	}
	c.sock.SetWriteDeadline(time.Time{})
	c.sendMu.Unlock()
}

// readLoop pulls frames off the wire, answers control traffic, and
// hands the rest to the service layer.
func (c *ServerConn) readLoop() {
	for !c.closing() {
		data, err := c.framer.ReadFrame()
		if err != nil {
			if c.server.running.Load() && !c.closing() {
				c.server.reportError(c, err)
			}
			return
		}

		// Peek the envelope kind so control messages are recognized
		// without decoding the whole message.
		kind, peekErr := wire.PeekMessageKind(data)
		if peekErr == nil && kind == wire.KindControl {
			if ctrl, err := wire.DecodeControl(data); err == nil {
				c.handleControl(ctrl)
				continue
			}
		}

		if c.server.config.OnMessage != nil {
			c.server.config.OnMessage(c, data)
		}
	}
}

// reply encodes and sends one control message, logging it on success.
func (c *ServerConn) reply(op wire.ControlOp, seq uint32) {
	msg, err := wire.EncodeControl(&wire.Control{Op: op, Sequence: seq})
	if err != nil {
		return
	}
	if c.Send(msg) == nil {
		c.logControl(op, seq, log.DirectionOut)
	}
}

func (c *ServerConn) handleControl(msg *wire.Control) {
	c.logControl(msg.Op, msg.Sequence, log.DirectionIn)

	switch msg.Op {
	case wire.ControlPing:
		c.reply(wire.ControlPong, msg.Sequence)

	case wire.ControlPong:
		// The daemon never probes; stray pongs are ignored.

	case wire.ControlGoAway:
		// Peer is leaving. Acknowledge and close.
		c.reply(wire.ControlGoAway, 0)
		c.Close()
	}
}

// logState records a connection lifecycle event.
func (c *ServerConn) logState(oldState, newState string) {
	if c.server.config.Logger == nil {
		return
	}

	c.server.config.Logger.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  c.logID,
		Layer:      log.LayerTransport,
		Category:   log.CategoryState,
		LocalRole:  log.RoleDaemon,
		RemoteAddr: c.remoteAddr.String(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			EntityID: c.connID,
			OldState: oldState,
			NewState: newState,
		},
	})
}

// logControl records a control message event.
func (c *ServerConn) logControl(op wire.ControlOp, seq uint32, direction log.Direction) {
	if c.server.config.Logger == nil {
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

	c.server.config.Logger.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  c.logID,
		Direction:  direction,
		Layer:      log.LayerTransport,
		Category:   log.CategoryControl,
		LocalRole:  log.RoleDaemon,
		RemoteAddr: c.remoteAddr.String(),
		ControlMsg: &log.ControlMsgEvent{
			Type:     msgType,
			Sequence: seqPtr,
		},
	})
}

// Control message encoding helpers shared by both endpoints.

// EncodePing encodes a keep-alive probe.
func EncodePing(seq uint32) ([]byte, error) {
	return wire.EncodeControl(&wire.Control{Op: wire.ControlPing, Sequence: seq})
}

// EncodePong encodes a probe response.
func EncodePong(seq uint32) ([]byte, error) {
	return wire.EncodeControl(&wire.Control{Op: wire.ControlPong, Sequence: seq})
}

// EncodeGoAway encodes a shutdown control message.
func EncodeGoAway() ([]byte, error) {
	return wire.EncodeControl(&wire.Control{Op: wire.ControlGoAway})
}

// DecodeControlOp decodes a control message and returns its op and
// sequence number.
func DecodeControlOp(data []byte) (wire.ControlOp, uint32, error) {
	msg, err := wire.DecodeControl(data)
	if err != nil {
		return 0, 0, err
	}
	return msg.Op, msg.Sequence, nil
}
