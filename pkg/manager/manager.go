package manager

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ucm-project/ucm-go/pkg/engine"
	"github.com/ucm-project/ucm-go/pkg/log"
)

// Defaults for Config limits.
const (
	DefaultMaxContexts = 4096
	DefaultMaxGroups   = 4096
	DefaultMaxBacklog  = 1024
)

// Config configures a Manager. Engine is required; zero limits take
// the defaults above.
type Config struct {
	// Engine is the connection engine commands are forwarded to. The
	// caller keeps ownership; closing the manager leaves it running.
	Engine engine.Engine

	// MaxContexts caps live context handles across all sessions.
	MaxContexts int

	// MaxGroups caps live multicast group handles across all sessions.
	MaxGroups int

	// MaxBacklog caps the listen backlog a client may request.
	MaxBacklog int

	// Logger receives protocol events. Nil disables protocol logging.
	Logger log.Logger

	// Slog receives operational messages. Nil uses slog.Default.
	Slog *slog.Logger
}

// Manager owns the session, context, and group tables and dispatches
// wire commands against them. All methods are safe for concurrent
// use.
type Manager struct {
	cfg  Config
	eng  engine.Engine
	plog log.Logger
	slog *slog.Logger
	reg  *registry

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool

	seq atomic.Uint64
}

// New builds a Manager from cfg.
// Returns an error if cfg names no engine.
func New(cfg Config) (*Manager, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("manager: config needs an engine")
	}
	if cfg.MaxContexts <= 0 {
		cfg.MaxContexts = DefaultMaxContexts
	}
	if cfg.MaxGroups <= 0 {
		cfg.MaxGroups = DefaultMaxGroups
	}
	if cfg.MaxBacklog <= 0 {
		cfg.MaxBacklog = DefaultMaxBacklog
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Discard
	}
	if cfg.Slog == nil {
		cfg.Slog = slog.Default()
	}
	return &Manager{
		cfg:      cfg,
		eng:      cfg.Engine,
		plog:     cfg.Logger,
		slog:     cfg.Slog,
		reg:      newRegistry(cfg.MaxContexts, cfg.MaxGroups),
		sessions: make(map[string]*Session),
	}, nil
}

// OpenSession attaches a new session. The returned session is empty
// and immediately usable.
// Returns ErrSessionClosed after the manager has been closed.
func (m *Manager) OpenSession() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrSessionClosed
	}
	s := &Session{
		mgr:      m,
		seq:      m.seq.Add(1),
		token:    uuid.NewString(),
		queue:    newEventQueue(),
		ready:    make(chan struct{}),
		noticeCh: make(chan struct{}, 1),
		closedCh: make(chan struct{}),
		closer:   newCloseWorker(),
	}
	m.sessions[s.token] = s
	m.logState(s.token, log.StateEntitySession, s.token, "", "OPEN", "session opened")
	return s, nil
}

// Close closes every open session. The engine is left to its owner.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	return nil
}

func (m *Manager) sessionByToken(token string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	return s, ok
}

func (m *Manager) removeSession(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.token)
	m.mu.Unlock()
}

// getContext resolves a handle to a live context owned by sess and
// takes a borrow on it. The caller puts the borrow when done.
// Returns ErrNotFound for dead handles, ErrNotOwner for a foreign
// session, ErrBusy while a removal teardown is pending, and ErrGone
// when the context's references have already drained.
func (m *Manager) getContext(sess *Session, id uint64) (*Context, error) {
	m.reg.mu.Lock()
	defer m.reg.mu.Unlock()
	ctx, ok := m.reg.ctxs.lookup(id)
	if !ok {
		return nil, ErrNotFound
	}
	if ctx.sess.Load() != sess {
		return nil, ErrNotOwner
	}
	if ctx.closing {
		return nil, ErrBusy
	}
	if !ctx.refs.getIfLive() {
		return nil, ErrGone
	}
	return ctx, nil
}

// getContextWithDevice is getContext restricted to contexts bound to
// a device.
// Returns ErrNotOwner when no device is bound yet.
func (m *Manager) getContextWithDevice(sess *Session, id uint64) (*Context, error) {
	ctx, err := m.getContext(sess, id)
	if err != nil {
		return nil, err
	}
	if ctx.conn.Device() == nil {
		ctx.refs.put()
		return nil, ErrNotOwner
	}
	return ctx, nil
}

func handleString(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func (m *Manager) logState(token string, entity log.StateEntity, id, oldState, newState, reason string) {
	m.plog.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: token,
		Direction: log.DirectionOut,
		Layer:     log.LayerManager,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   entity,
			EntityID: id,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}
