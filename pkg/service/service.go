package service

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/ucm-project/ucm-go/pkg/log"
	"github.com/ucm-project/ucm-go/pkg/manager"
	"github.com/ucm-project/ucm-go/pkg/transport"
)

// Config configures a Service.
type Config struct {
	// Manager runs the command set. Required.
	Manager *manager.Manager

	// ListenAddress is the address to listen on (default ":7471").
	ListenAddress string

	// TLSConfig provides the server certificate and optional client CA
	// pool. Required.
	TLSConfig *transport.TLSConfig

	// RequireClientCert enforces mutual TLS.
	RequireClientCert bool

	// MaxConnections caps concurrent client connections (0 = unlimited).
	MaxConnections int

	// MaxMessageSize is the maximum frame size (default: 1 MiB).
	MaxMessageSize uint32

	// Logger is the optional operational logger.
	Logger *slog.Logger

	// ProtocolLogger is the optional structured event logger, shared
	// with the transport and manager layers.
	ProtocolLogger log.Logger
}

// Service accepts client connections and runs one manager session per
// connection.
type Service struct {
	mu     sync.Mutex
	config Config
	state  ServiceState
	server *transport.Server

	sessMu   sync.Mutex
	sessions map[string]*connSession

	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a service.
func New(config Config) (*Service, error) {
	if config.Manager == nil {
		return nil, fmt.Errorf("%w: Manager is required", ErrInvalidConfig)
	}
	if config.TLSConfig == nil {
		return nil, fmt.Errorf("%w: TLSConfig is required", ErrInvalidConfig)
	}
	if config.ListenAddress == "" {
		config.ListenAddress = fmt.Sprintf(":%d", transport.DefaultPort)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Service{
		config:   config,
		state:    StateIdle,
		sessions: make(map[string]*connSession),
		logger:   logger,
	}, nil
}

// State returns the current service state.
func (s *Service) State() ServiceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Addr returns the bound listen address, or nil before Start.
func (s *Service) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return nil
	}
	return s.server.Addr()
}

// SessionCount returns the number of live sessions.
func (s *Service) SessionCount() int {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	return len(s.sessions)
}

// Start begins accepting connections.
func (s *Service) Start(ctx context.Context) error {
	if err := s.claimStart(); err != nil {
		return err
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	server, err := transport.NewServer(transport.ServerConfig{
		TLSConfig:         s.config.TLSConfig,
		Address:           s.config.ListenAddress,
		RequireClientCert: s.config.RequireClientCert,
		MaxMessageSize:    s.config.MaxMessageSize,
		MaxConnections:    s.config.MaxConnections,
		Logger:            s.config.ProtocolLogger,
		OnConnect:         s.handleConnect,
		OnDisconnect:      s.handleDisconnect,
		OnMessage:         s.handleMessage,
		OnError:           s.handleError,
	})
	if err != nil {
		s.setState(StateIdle)
		return err
	}

	if err := server.Start(s.ctx); err != nil {
		s.setState(StateIdle)
		return err
	}

	s.mu.Lock()
	s.server = server
	s.state = StateRunning
	s.mu.Unlock()

	s.logger.Info("service started", "addr", server.Addr().String())
	return nil
}

// Stop stops accepting connections and shuts down every live session.
// The transport server announces a GOAWAY to each peer and runs the
// disconnect callbacks before returning, so the session table is
// drained when Stop comes back.
func (s *Service) Stop() error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.state = StateStopping
	server := s.server
	s.mu.Unlock()

	err := server.Stop()
	if s.cancel != nil {
		s.cancel()
	}

	s.setState(StateStopped)
	s.logger.Info("service stopped")
	return err
}

// claimStart moves an idle or stopped service into StateStarting, so
// two concurrent Start calls cannot both bring the listener up.
func (s *Service) claimStart() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle && s.state != StateStopped {
		return ErrAlreadyStarted
	}
	s.state = StateStarting
	return nil
}

func (s *Service) setState(state ServiceState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// handleConnect opens a manager session for the new connection and
// pushes the hello frame.
func (s *Service) handleConnect(conn *transport.ServerConn) {
	sess, err := s.config.Manager.OpenSession()
	if err != nil {
		s.logger.Warn("session open failed", "remote", conn.RemoteAddr(), "error", err)
		conn.Close()
		return
	}

	// Frames logged from here on carry the session token instead of
	// the transport conn id.
	conn.SetLogID(sess.Token())

	cs := newConnSession(s, conn, sess)
	s.sessMu.Lock()
	s.sessions[conn.ConnID()] = cs
	s.sessMu.Unlock()

	cs.start()
	s.logger.Info("session opened", "session", sess.Token(), "remote", conn.RemoteAddr())
}

// handleDisconnect tears down the connection's session. In-flight
// commands are cancelled and drained before the session closes.
func (s *Service) handleDisconnect(conn *transport.ServerConn) {
	s.sessMu.Lock()
	cs, ok := s.sessions[conn.ConnID()]
	delete(s.sessions, conn.ConnID())
	s.sessMu.Unlock()
	if !ok {
		return
	}

	cs.close()
	s.logger.Info("session closed", "session", cs.sess.Token())
}

// handleMessage routes a frame to the connection's session.
func (s *Service) handleMessage(conn *transport.ServerConn, data []byte) {
	s.sessMu.Lock()
	cs, ok := s.sessions[conn.ConnID()]
	s.sessMu.Unlock()
	if !ok {
		return
	}
	cs.handleFrame(data)
}

func (s *Service) handleError(conn *transport.ServerConn, err error) {
	if conn != nil {
		s.logger.Warn("connection error", "conn", conn.ConnID(), "error", err)
		return
	}
	s.logger.Warn("transport error", "error", err)
}
