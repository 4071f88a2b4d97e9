package connection

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrManagerClosed    = errors.New("connection manager closed")
	ErrAlreadyConnected = errors.New("already connected")
)

// redialTimeout bounds a single redial attempt.
const redialTimeout = 30 * time.Second

// State is the link state as the Manager sees it.
type State uint8

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

var stateNames = map[State]string{
	StateDisconnected: "DISCONNECTED",
	StateConnecting:   "CONNECTING",
	StateConnected:    "CONNECTED",
	StateReconnecting: "RECONNECTING",
	StateClosed:       "CLOSED",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// ConnectFunc establishes the link. For a daemon session this dials,
// waits for the hello, and checks the ABI revision. It returns nil
// once the link is usable.
type ConnectFunc func(ctx context.Context) error

// callbacks is the hook set, snapshotted under the lock before firing
// so a hook registered mid-flight never races the notifier.
type callbacks struct {
	state        func(from, to State)
	connected    func()
	disconnected func()
	reconnecting func(attempt int, delay time.Duration)
}

// Manager supervises one client link. It runs ConnectFunc for the
// initial dial, and after a reported loss redials in the background on
// a backoff curve until the link is up again or the Manager closes.
// A deliberate Disconnect stays down.
type Manager struct {
	connect ConnectFunc
	backoff *Backoff

	mu            sync.RWMutex
	state         State
	autoReconnect bool
	cb            callbacks

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	kick   chan struct{}
}

// NewManager returns a Manager in StateDisconnected with automatic
// reconnection enabled. Call StartReconnectLoop once to arm redialing.
func NewManager(connect ConnectFunc) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		connect:       connect,
		backoff:       NewBackoff(BackoffConfig{}),
		autoReconnect: true,
		ctx:           ctx,
		cancel:        cancel,
		kick:          make(chan struct{}, 1),
	}
}

// State returns the current link state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsConnected reports whether the link is up.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// SetAutoReconnect arms or disarms background redialing after a loss.
func (m *Manager) SetAutoReconnect(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoReconnect = enabled
}

// shift moves to next unconditionally, fires the state hook, and
// returns the hook snapshot for follow-up notifications.
func (m *Manager) shift(next State) callbacks {
	m.mu.Lock()
	from := m.state
	m.state = next
	cb := m.cb
	m.mu.Unlock()
	if cb.state != nil && from != next {
		cb.state(from, next)
	}
	return cb
}

// Connect runs the initial dial. It refuses while connected or after
// Close; a failed dial leaves the Manager disconnected without
// triggering redialing.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateClosed:
		m.mu.Unlock()
		return ErrManagerClosed
	case StateConnected:
		m.mu.Unlock()
		return ErrAlreadyConnected
	}
	from := m.state
	m.state = StateConnecting
	cb := m.cb
	m.mu.Unlock()
	if cb.state != nil {
		cb.state(from, StateConnecting)
	}

	if err := m.connect(ctx); err != nil {
		m.shift(StateDisconnected)
		return err
	}

	m.backoff.Reset()
	cb = m.shift(StateConnected)
	if cb.connected != nil {
		cb.connected()
	}
	return nil
}

// Disconnect records that the caller closed the link on purpose. No
// redialing follows.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	m.state = StateDisconnected
	cb := m.cb
	m.mu.Unlock()

	if cb.state != nil {
		cb.state(StateConnected, StateDisconnected)
	}
	if cb.disconnected != nil {
		cb.disconnected()
	}
}

// NotifyConnectionLost reports an unexpected loss. With automatic
// reconnection armed this starts background redialing.
func (m *Manager) NotifyConnectionLost() {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	next := StateDisconnected
	if m.autoReconnect {
		next = StateReconnecting
	}
	m.state = next
	cb := m.cb
	m.mu.Unlock()

	if cb.state != nil {
		cb.state(StateConnected, next)
	}
	if cb.disconnected != nil {
		cb.disconnected()
	}
	if next == StateReconnecting {
		select {
		case m.kick <- struct{}{}:
		default:
		}
	}
}

// StartReconnectLoop starts the background redial worker. Call once,
// after registering hooks.
func (m *Manager) StartReconnectLoop() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case <-m.ctx.Done():
				return
			case <-m.kick:
				m.redial()
			}
		}
	}()
}

// Close shuts the Manager down and waits for the redial worker.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	from := m.state
	m.state = StateClosed
	cb := m.cb
	m.mu.Unlock()

	if cb.state != nil {
		cb.state(from, StateClosed)
	}
	m.cancel()
	m.wg.Wait()
}

// redial attempts the link until it is up, the Manager closes, or the
// state leaves StateReconnecting (a deliberate Disconnect mid-redial
// stays down).
func (m *Manager) redial() {
	for {
		if m.State() != StateReconnecting {
			return
		}

		delay := m.backoff.Next()
		m.mu.RLock()
		cb := m.cb
		m.mu.RUnlock()
		if cb.reconnecting != nil {
			cb.reconnecting(m.backoff.Attempts(), delay)
		}

		select {
		case <-m.ctx.Done():
			return
		case <-time.After(delay):
		}
		if m.State() != StateReconnecting {
			return
		}

		ctx, cancel := context.WithTimeout(m.ctx, redialTimeout)
		err := m.connect(ctx)
		cancel()
		if err != nil {
			continue
		}

		// Do not resurrect a Manager that closed or deliberately
		// disconnected while the dial was in flight.
		m.mu.Lock()
		if m.state != StateReconnecting {
			m.mu.Unlock()
			return
		}
		m.state = StateConnected
		cb = m.cb
		m.mu.Unlock()

		m.backoff.Reset()
		if cb.state != nil {
			cb.state(StateReconnecting, StateConnected)
		}
		if cb.connected != nil {
			cb.connected()
		}
		return
	}
}

// OnStateChange registers a hook fired on every state transition.
func (m *Manager) OnStateChange(fn func(from, to State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cb.state = fn
}

// OnConnected registers a hook fired when the link comes up.
func (m *Manager) OnConnected(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cb.connected = fn
}

// OnDisconnected registers a hook fired when the link goes down.
func (m *Manager) OnDisconnected(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cb.disconnected = fn
}

// OnReconnecting registers a hook fired before each redial wait.
func (m *Manager) OnReconnecting(fn func(attempt int, delay time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cb.reconnecting = fn
}

// BackoffAttempts reports redial attempts since the last successful
// connect.
func (m *Manager) BackoffAttempts() int {
	return m.backoff.Attempts()
}
