package manager

import (
	"sync"
	"time"

	"github.com/ucm-project/ucm-go/pkg/engine"
)

// fakeEngine and fakeConn implement the engine interfaces for tests.
// Tests drive the event handler synchronously through deliver, so
// every ingest outcome is observable without sleeping.

type fakeEngine struct {
	mu         sync.Mutex
	conns      []*fakeConn
	createErr  error
	numCreated int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{}
}

func (e *fakeEngine) CreateConn(h engine.EventHandler, owner any, space engine.PortSpace, qp engine.QPType) (engine.Conn, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.createErr != nil {
		return nil, e.createErr
	}
	c := &fakeConn{handler: h, owner: owner, space: space, qp: qp}
	e.conns = append(e.conns, c)
	e.numCreated++
	return c, nil
}

func (e *fakeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.conns {
		c.Close()
	}
	return nil
}

func (e *fakeEngine) lastConn() *fakeConn {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.conns) == 0 {
		return nil
	}
	return e.conns[len(e.conns)-1]
}

type fakeConn struct {
	mu      sync.Mutex
	handler engine.EventHandler
	owner   any
	space   engine.PortSpace
	qp      engine.QPType

	device     *engine.Device
	src        engine.Addr
	dst        engine.Addr
	route      engine.RouteInfo
	closed     bool
	closeCalls int

	// error injection, one per operation
	bindErr    error
	resolveErr error
	routeErr   error
	listenErr  error
	connectErr error
	acceptErr  error
	rejectErr  error
	discErr    error
	qpErr      error
	notifyErr  error
	joinErr    error
	leaveErr   error
	optErr     error
	pathErr    error

	// recorded calls
	bound        []engine.Addr
	resolved     [][2]engine.Addr
	backlog      int
	connectParam engine.ConnParam
	connectECE   *engine.ECE
	acceptParam  *engine.ConnParam
	acceptECE    *engine.ECE
	rejectReason uint8
	rejectData   []byte
	disconnects  int
	notified     []uint32
	joined       map[engine.Addr]engine.JoinState
	tags         map[engine.Addr]any
	left         []engine.Addr
	tos          uint8
	reuse        bool
	afonly       bool
	ackTimeout   uint8
	pathRecords  []engine.PathRecord
	qpState      uint32
	attr         engine.QPAttr
}

// deliver pushes one event through the conn's handler the way the
// engine's delivery goroutine would.
func (c *fakeConn) deliver(ev *engine.Event) engine.Disposition {
	return c.handler(c, ev)
}

// spawnChild models an incoming connect request: a child conn that
// inherits the listener's handler and owner.
func (c *fakeConn) spawnChild() *fakeConn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &fakeConn{handler: c.handler, owner: c.owner, space: c.space, qp: c.qp, device: c.device}
}

func (c *fakeConn) Owner() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.owner
}

func (c *fakeConn) SetOwner(owner any) {
	c.mu.Lock()
	c.owner = owner
	c.mu.Unlock()
}

func (c *fakeConn) QPType() engine.QPType { return c.qp }

func (c *fakeConn) Device() *engine.Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.device
}

func (c *fakeConn) setDevice(d *engine.Device) {
	c.mu.Lock()
	c.device = d
	c.mu.Unlock()
}

func (c *fakeConn) BindAddr(addr engine.Addr) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bindErr != nil {
		return c.bindErr
	}
	c.bound = append(c.bound, addr)
	c.src = addr
	return nil
}

func (c *fakeConn) ResolveAddr(src, dst engine.Addr, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resolveErr != nil {
		return c.resolveErr
	}
	c.resolved = append(c.resolved, [2]engine.Addr{src, dst})
	return nil
}

func (c *fakeConn) ResolveRoute(timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.routeErr
}

func (c *fakeConn) Listen(backlog int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listenErr != nil {
		return c.listenErr
	}
	c.backlog = backlog
	return nil
}

func (c *fakeConn) Connect(param engine.ConnParam, ece *engine.ECE) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connectErr != nil {
		return c.connectErr
	}
	c.connectParam = param
	c.connectECE = ece
	return nil
}

func (c *fakeConn) Accept(param *engine.ConnParam, ece *engine.ECE) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.acceptErr != nil {
		return c.acceptErr
	}
	c.acceptParam = param
	c.acceptECE = ece
	return nil
}

func (c *fakeConn) Reject(privateData []byte, reason uint8) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rejectErr != nil {
		return c.rejectErr
	}
	c.rejectData = privateData
	c.rejectReason = reason
	return nil
}

func (c *fakeConn) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.discErr != nil {
		return c.discErr
	}
	c.disconnects++
	return nil
}

func (c *fakeConn) InitQPAttr(qpState uint32) (engine.QPAttr, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.qpErr != nil {
		return engine.QPAttr{}, c.qpErr
	}
	c.qpState = qpState
	return c.attr, nil
}

func (c *fakeConn) Notify(event uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.notifyErr != nil {
		return c.notifyErr
	}
	c.notified = append(c.notified, event)
	return nil
}

func (c *fakeConn) JoinMulticast(addr engine.Addr, state engine.JoinState, tag any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.joinErr != nil {
		return c.joinErr
	}
	if c.joined == nil {
		c.joined = make(map[engine.Addr]engine.JoinState)
		c.tags = make(map[engine.Addr]any)
	}
	c.joined[addr] = state
	c.tags[addr] = tag
	return nil
}

// tagFor returns the tag passed to JoinMulticast for addr, for
// replaying group events.
func (c *fakeConn) tagFor(addr engine.Addr) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tags[addr]
}

func (c *fakeConn) LeaveMulticast(addr engine.Addr) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return engine.ErrClosed
	}
	if c.leaveErr != nil {
		return c.leaveErr
	}
	c.left = append(c.left, addr)
	return nil
}

func (c *fakeConn) SetTOS(tos uint8) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.optErr != nil {
		return c.optErr
	}
	c.tos = tos
	return nil
}

func (c *fakeConn) SetReuseAddr(reuse bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.optErr != nil {
		return c.optErr
	}
	c.reuse = reuse
	return nil
}

func (c *fakeConn) SetAFOnly(afonly bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.optErr != nil {
		return c.optErr
	}
	c.afonly = afonly
	return nil
}

func (c *fakeConn) SetACKTimeout(timeout uint8) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.optErr != nil {
		return c.optErr
	}
	c.ackTimeout = timeout
	return nil
}

func (c *fakeConn) SetPath(records []engine.PathRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pathErr != nil {
		return c.pathErr
	}
	c.pathRecords = records
	return nil
}

func (c *fakeConn) Source() engine.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.src
}

func (c *fakeConn) Dest() engine.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dst
}

func (c *fakeConn) Route() engine.RouteInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.route
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.closeCalls++
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls
}

var _ engine.Engine = (*fakeEngine)(nil)
var _ engine.Conn = (*fakeConn)(nil)
