package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ucm-project/ucm-go/pkg/log"
)

// DefaultConnectTimeout bounds Connect when the caller's context
// carries no deadline of its own.
const DefaultConnectTimeout = 30 * time.Second

// ClientConfig configures a Client.
type ClientConfig struct {
	// TLSConfig holds the client certificate and trust anchors.
	// Required.
	TLSConfig *TLSConfig

	// MaxMessageSize caps inbound and outbound frames (default 1 MiB).
	MaxMessageSize uint32

	// ConnectTimeout bounds the dial plus handshake
	// (default DefaultConnectTimeout).
	ConnectTimeout time.Duration

	// Logger receives frame events for every connection this client
	// opens. Optional.
	Logger log.Logger
}

// Client dials the daemon's TLS listener. One Client can open any
// number of connections; it holds only immutable configuration.
type Client struct {
	cfg ClientConfig
	tls *tls.Config
}

// NewClient validates the configuration and prepares the TLS setup.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.TLSConfig == nil {
		return nil, errors.New("transport: client requires a TLSConfig")
	}
	if cfg.MaxMessageSize == 0 {
		cfg.MaxMessageSize = DefaultMaxMessageSize
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}

	tlsConf, err := NewClientTLSConfig(cfg.TLSConfig)
	if err != nil {
		return nil, fmt.Errorf("transport: client TLS setup: %w", err)
	}
	return &Client{cfg: cfg, tls: tlsConf}, nil
}

// Connect dials address, runs the TLS handshake, and verifies the
// negotiated session. The returned ClientConn is ready for framed
// Send and Receive traffic.
func (c *Client) Connect(ctx context.Context, address string) (*ClientConn, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.ConnectTimeout)
		defer cancel()
	}

	raw, err := (&net.Dialer{}).DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", address, err)
	}

	tlsConn := tls.Client(raw, c.tls)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		raw.Close()
		return nil, fmt.Errorf("transport: handshake with %s: %w", address, err)
	}

	state := tlsConn.ConnectionState()
	if err := VerifyConnection(state); err != nil {
		tlsConn.Close()
		return nil, err
	}

	framer := NewFramerWithMaxSize(tlsConn, c.cfg.MaxMessageSize)
	if c.cfg.Logger != nil {
		framer.SetLogger(c.cfg.Logger, uuid.New().String())
	}

	return &ClientConn{
		conn:   tlsConn,
		framer: framer,
		state:  state,
		done:   make(chan struct{}),
	}, nil
}

// ClientConn is a single framed connection to the daemon. Send and
// Receive each tolerate one concurrent caller per direction.
type ClientConn struct {
	conn   *tls.Conn
	framer *Framer
	state  tls.ConnectionState

	done      chan struct{}
	closeOnce sync.Once

	sendMu sync.Mutex
	recvMu sync.Mutex
}

// TLSState reports the negotiated TLS session parameters.
func (c *ClientConn) TLSState() tls.ConnectionState { return c.state }

// LocalAddr returns the local network address.
func (c *ClientConn) LocalAddr() net.Addr { return c.conn.LocalAddr() }

// RemoteAddr returns the daemon's network address.
func (c *ClientConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Send writes one framed message.
func (c *ClientConn) Send(data []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed() {
		return ErrConnectionClosed
	}
	return c.framer.WriteFrame(data)
}

// Receive reads one framed message. A positive timeout bounds the
// read; zero waits indefinitely.
func (c *ClientConn) Receive(timeout time.Duration) ([]byte, error) {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()

	if c.closed() {
		return nil, ErrConnectionClosed
	}
	if timeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(timeout))
		defer c.conn.SetReadDeadline(time.Time{})
	}
	return c.framer.ReadFrame()
}

// Close tears down the connection. Safe to call more than once.
func (c *ClientConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

func (c *ClientConn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
