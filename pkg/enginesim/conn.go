package enginesim

import (
	"net/netip"
	"time"

	"github.com/ucm-project/ucm-go/pkg/engine"
)

// connState tracks where a conn is in the establishment lifecycle.
type connState uint8

const (
	stIdle connState = iota
	stBound
	stAddrResolved
	stRouteResolved
	stListening
	stRequested   // child carrying an undecided connect request
	stConnecting  // initiator waiting for the peer's verdict
	stEstablished
)

// conn is one simulated endpoint. handler, space, qp and qpn are set
// at creation and never change; everything else is guarded by fab.mu.
type conn struct {
	fab     *Fabric
	handler engine.EventHandler
	space   engine.PortSpace
	qp      engine.QPType
	qpn     uint32
	pump    *pump

	owner     any
	st        connState
	device    *engine.Device
	src       engine.Addr
	dst       engine.Addr
	route     engine.RouteInfo
	backlog   int
	peer      *conn
	reqPeer   *conn
	groups    map[engine.Addr]engine.JoinState
	tos       uint8
	reuse     bool
	afonly    bool
	ackTO     uint8
	bind      bindKey
	lkey      bindKey
	hasBind   bool
	hasListen bool
	closed    bool
}

var _ engine.Conn = (*conn)(nil)

func (c *conn) Owner() any {
	c.fab.mu.Lock()
	defer c.fab.mu.Unlock()
	return c.owner
}

func (c *conn) SetOwner(owner any) {
	c.fab.mu.Lock()
	defer c.fab.mu.Unlock()
	c.owner = owner
}

func (c *conn) QPType() engine.QPType {
	return c.qp
}

func (c *conn) Device() *engine.Device {
	c.fab.mu.Lock()
	defer c.fab.mu.Unlock()
	return c.device
}

func (c *conn) Source() engine.Addr {
	c.fab.mu.Lock()
	defer c.fab.mu.Unlock()
	return c.src
}

func (c *conn) Dest() engine.Addr {
	c.fab.mu.Lock()
	defer c.fab.mu.Unlock()
	return c.dst
}

func (c *conn) Route() engine.RouteInfo {
	c.fab.mu.Lock()
	defer c.fab.mu.Unlock()
	return c.route
}

func (c *conn) BindAddr(addr engine.Addr) error {
	if err := c.fab.beforeOp("bind", c); err != nil {
		return err
	}
	f := c.fab
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.closed {
		return engine.ErrClosed
	}
	if c.st != stIdle {
		return engine.ErrInvalidState
	}
	if isIP(addr) && addr.IP.Port() == 0 {
		addr.IP = netip.AddrPortFrom(addr.IP.Addr(), f.nextPortLocked())
	}
	if !addr.IsUnspecified() {
		key := bindKey{space: c.space, addr: addr}
		if !f.claimLocked(key, c) {
			return engine.ErrAddrInUse
		}
		c.bind = key
		c.hasBind = true
	}
	// A concrete address pins the conn to a device right away; a
	// wildcard stays unbound until a request arrives.
	if concreteAddr(addr) {
		dev := f.firstDeviceLocked()
		if dev == nil {
			if c.hasBind {
				f.unclaimLocked(c)
			}
			return engine.ErrAddrNotAvailable
		}
		c.device = dev
	}
	c.src = addr
	c.st = stBound
	return nil
}

func (c *conn) ResolveAddr(src, dst engine.Addr, timeout time.Duration) error {
	if err := c.fab.beforeOp("resolve_addr", c); err != nil {
		return err
	}
	f := c.fab
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.closed {
		return engine.ErrClosed
	}
	if dst.IsUnspecified() {
		return engine.ErrAddrNotAvailable
	}
	if c.st != stIdle && c.st != stBound {
		return engine.ErrInvalidState
	}
	if c.st == stIdle && !src.IsUnspecified() {
		c.src = src
	}
	c.dst = dst
	dev := f.firstDeviceLocked()
	if dev == nil {
		c.emit(&engine.Event{Kind: engine.EventAddrError, Status: statusNoDevice})
		return nil
	}
	c.device = dev
	if !concreteAddr(c.src) {
		c.src = f.synthSourceLocked(dst)
	} else if isIP(c.src) && c.src.IP.Port() == 0 {
		c.src.IP = netip.AddrPortFrom(c.src.IP.Addr(), f.nextPortLocked())
	}
	c.st = stAddrResolved
	c.emit(&engine.Event{Kind: engine.EventAddrResolved})
	return nil
}

func (c *conn) ResolveRoute(timeout time.Duration) error {
	if err := c.fab.beforeOp("resolve_route", c); err != nil {
		return err
	}
	f := c.fab
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.closed {
		return engine.ErrClosed
	}
	if c.device == nil {
		return engine.ErrNoDevice
	}
	if c.st != stAddrResolved && c.st != stRouteResolved {
		return engine.ErrInvalidState
	}
	c.route = synthRoute(c.src, c.dst)
	c.st = stRouteResolved
	c.emit(&engine.Event{Kind: engine.EventRouteResolved})
	return nil
}

func (c *conn) Listen(backlog int) error {
	if err := c.fab.beforeOp("listen", c); err != nil {
		return err
	}
	f := c.fab
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.closed {
		return engine.ErrClosed
	}
	switch c.st {
	case stListening:
		c.backlog = backlog
		return nil
	case stIdle, stBound:
	default:
		return engine.ErrInvalidState
	}
	key := bindKey{space: c.space, addr: c.src}
	if _, ok := f.listeners[key]; ok {
		return engine.ErrAddrInUse
	}
	f.listeners[key] = c
	c.lkey = key
	c.hasListen = true
	c.backlog = backlog
	c.st = stListening
	return nil
}

func (c *conn) Connect(param engine.ConnParam, ece *engine.ECE) error {
	if err := c.fab.beforeOp("connect", c); err != nil {
		return err
	}
	f := c.fab
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.closed {
		return engine.ErrClosed
	}
	if c.st != stRouteResolved {
		return engine.ErrInvalidState
	}
	l := f.findListenerLocked(c.space, c.dst)
	if l == nil || l.closed {
		c.emit(&engine.Event{Kind: engine.EventRejected, Status: rejectNoService})
		return nil
	}

	child := f.newConnLocked(l.handler, l.owner, l.space, l.qp)
	child.device = l.device
	if child.device == nil {
		child.device = c.device
	}
	child.src = c.dst
	child.dst = c.src
	child.route = synthRoute(child.src, child.dst)
	child.st = stRequested
	child.reqPeer = c
	c.reqPeer = child
	c.st = stConnecting

	ev := &engine.Event{Kind: engine.EventConnectRequest}
	if c.qp == engine.QPTypeUD {
		ev.UD = engine.UDParam{
			PrivateData: cloneBytes(param.PrivateData),
			QPNum:       c.qpn,
			QKey:        datagramQKey,
		}
	} else {
		ev.Conn = param
		ev.Conn.PrivateData = cloneBytes(param.PrivateData)
		if ev.Conn.QPNum == 0 {
			ev.Conn.QPNum = c.qpn
		}
	}
	if ece != nil {
		ev.ECE = *ece
	}
	child.emitRequest(ev)
	return nil
}

func (c *conn) Accept(param *engine.ConnParam, ece *engine.ECE) error {
	if err := c.fab.beforeOp("accept", c); err != nil {
		return err
	}
	f := c.fab
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.closed {
		return engine.ErrClosed
	}
	if c.st != stRequested {
		return engine.ErrInvalidState
	}
	init := c.reqPeer
	c.reqPeer = nil
	if init == nil || init.closed {
		c.st = stIdle
		return engine.ErrNotConnected
	}
	init.reqPeer = nil

	var p engine.ConnParam
	if param != nil {
		p = *param
		p.PrivateData = cloneBytes(p.PrivateData)
	}
	if c.qp == engine.QPTypeUD {
		ud := engine.UDParam{PrivateData: p.PrivateData, QPNum: p.QPNum, QKey: datagramQKey}
		if ud.QPNum == 0 {
			ud.QPNum = c.qpn
		}
		c.st = stIdle
		init.st = stRouteResolved
		ev := &engine.Event{Kind: engine.EventEstablished, UD: ud}
		if ece != nil {
			ev.ECE = *ece
		}
		init.emit(ev)
		return nil
	}

	c.st = stEstablished
	c.peer = init
	init.st = stEstablished
	init.peer = c
	ev := &engine.Event{Kind: engine.EventEstablished, Conn: p}
	if ece != nil {
		ev.ECE = *ece
	}
	init.emit(ev)
	c.emit(&engine.Event{Kind: engine.EventEstablished})
	return nil
}

func (c *conn) Reject(privateData []byte, reason uint8) error {
	if err := c.fab.beforeOp("reject", c); err != nil {
		return err
	}
	f := c.fab
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.closed {
		return engine.ErrClosed
	}
	if c.st != stRequested {
		return engine.ErrInvalidState
	}
	init := c.reqPeer
	c.reqPeer = nil
	c.st = stIdle
	if init == nil || init.closed {
		return nil
	}
	init.reqPeer = nil
	init.st = stIdle
	ev := &engine.Event{Kind: engine.EventRejected, Status: int32(reason)}
	if init.qp == engine.QPTypeUD {
		ev.UD = engine.UDParam{PrivateData: cloneBytes(privateData)}
	} else {
		ev.Conn = engine.ConnParam{PrivateData: cloneBytes(privateData)}
	}
	init.emit(ev)
	return nil
}

func (c *conn) Disconnect() error {
	if err := c.fab.beforeOp("disconnect", c); err != nil {
		return err
	}
	f := c.fab
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.closed {
		return engine.ErrClosed
	}
	if c.qp == engine.QPTypeUD {
		return engine.ErrInvalidState
	}
	if c.st != stEstablished || c.peer == nil {
		return engine.ErrNotConnected
	}
	p := c.peer
	c.peer = nil
	p.peer = nil
	c.st = stIdle
	p.st = stIdle
	c.emit(&engine.Event{Kind: engine.EventDisconnected})
	p.emit(&engine.Event{Kind: engine.EventDisconnected})
	return nil
}

func (c *conn) InitQPAttr(qpState uint32) (engine.QPAttr, error) {
	if err := c.fab.beforeOp("init_qp_attr", c); err != nil {
		return engine.QPAttr{}, err
	}
	f := c.fab
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.closed {
		return engine.QPAttr{}, engine.ErrClosed
	}
	if c.device == nil {
		return engine.QPAttr{}, engine.ErrNoDevice
	}
	attr := engine.QPAttr{
		QPState:         qpState,
		PathMTU:         4,
		RQPSN:           c.qpn,
		SQPSN:           c.qpn,
		QPAccessFlags:   0x7,
		MinRnrTimer:     12,
		PortNum:         1,
		Timeout:         14,
		RetryCnt:        7,
		RnrRetry:        7,
		MaxRdAtomic:     1,
		MaxDestRdAtomic: 1,
	}
	if c.qp == engine.QPTypeUD {
		attr.QKey = datagramQKey
	}
	if c.peer != nil {
		attr.DestQPNum = c.peer.qpn
	}
	return attr, nil
}

func (c *conn) Notify(event uint32) error {
	if err := c.fab.beforeOp("notify", c); err != nil {
		return err
	}
	f := c.fab
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.closed {
		return engine.ErrClosed
	}
	return nil
}

func (c *conn) JoinMulticast(addr engine.Addr, state engine.JoinState, tag any) error {
	if err := c.fab.beforeOp("join_multicast", c); err != nil {
		return err
	}
	f := c.fab
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.closed {
		return engine.ErrClosed
	}
	if c.qp != engine.QPTypeUD {
		return engine.ErrInvalidState
	}
	if c.device == nil {
		return engine.ErrNoDevice
	}
	if addr.IsUnspecified() {
		return engine.ErrAddrNotAvailable
	}
	if _, ok := c.groups[addr]; ok {
		return engine.ErrAddrInUse
	}
	c.groups[addr] = state
	ev := &engine.Event{
		Kind: engine.EventMulticastJoin,
		UD:   engine.UDParam{QPNum: c.qpn, QKey: datagramQKey},
		Tag:  tag,
	}
	c.emit(ev)
	return nil
}

func (c *conn) LeaveMulticast(addr engine.Addr) error {
	if err := c.fab.beforeOp("leave_multicast", c); err != nil {
		return err
	}
	f := c.fab
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.closed {
		return engine.ErrClosed
	}
	if _, ok := c.groups[addr]; !ok {
		return engine.ErrInvalidState
	}
	delete(c.groups, addr)
	return nil
}

func (c *conn) SetTOS(tos uint8) error {
	if err := c.fab.beforeOp("set_tos", c); err != nil {
		return err
	}
	f := c.fab
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.closed {
		return engine.ErrClosed
	}
	c.tos = tos
	return nil
}

func (c *conn) SetReuseAddr(reuse bool) error {
	if err := c.fab.beforeOp("set_reuseaddr", c); err != nil {
		return err
	}
	f := c.fab
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.closed {
		return engine.ErrClosed
	}
	// Reuse only matters at claim time, so it can only change before
	// the conn holds a claim.
	if c.st != stIdle {
		return engine.ErrInvalidState
	}
	c.reuse = reuse
	return nil
}

func (c *conn) SetAFOnly(afonly bool) error {
	if err := c.fab.beforeOp("set_afonly", c); err != nil {
		return err
	}
	f := c.fab
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.closed {
		return engine.ErrClosed
	}
	c.afonly = afonly
	return nil
}

func (c *conn) SetACKTimeout(timeout uint8) error {
	if err := c.fab.beforeOp("set_ack_timeout", c); err != nil {
		return err
	}
	f := c.fab
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.closed {
		return engine.ErrClosed
	}
	c.ackTO = timeout
	return nil
}

func (c *conn) SetPath(records []engine.PathRecord) error {
	if err := c.fab.beforeOp("set_path", c); err != nil {
		return err
	}
	f := c.fab
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.closed {
		return engine.ErrClosed
	}
	if c.device == nil {
		return engine.ErrNoDevice
	}
	recs := make([]engine.PathRecord, len(records))
	for i, r := range records {
		recs[i] = append(engine.PathRecord(nil), r...)
	}
	if c.route.Src.IsUnspecified() {
		c.route = synthRoute(c.src, c.dst)
	}
	c.route.Paths = recs
	c.route.NumPaths = uint8(len(recs))
	if c.st == stAddrResolved {
		c.st = stRouteResolved
	}
	return nil
}

// Close destroys the conn. Events already delivered stay delivered;
// anything still queued is discarded, and Close returns only after any
// in-flight handler call has finished.
func (c *conn) Close() error {
	c.destroy(true)
	return nil
}

// destroy tears the conn down. join waits for the conn's pump to
// exit; the pump's own goroutine passes false since it cannot wait on
// itself.
func (c *conn) destroy(join bool) {
	f := c.fab
	f.mu.Lock()
	if c.closed {
		f.mu.Unlock()
		if join {
			c.pump.stop()
		}
		return
	}
	c.closed = true
	f.dropConnLocked(c)

	if p := c.peer; p != nil {
		c.peer = nil
		if !p.closed {
			p.peer = nil
			p.st = stIdle
			p.emit(&engine.Event{Kind: engine.EventDisconnected})
		}
	}
	if rp := c.reqPeer; rp != nil {
		c.reqPeer = nil
		if !rp.closed && rp.reqPeer == c {
			rp.reqPeer = nil
			if rp.st == stConnecting {
				// The request died before a verdict.
				rp.st = stIdle
				rp.emit(&engine.Event{Kind: engine.EventRejected, Status: rejectConsumer})
			}
		}
	}
	f.mu.Unlock()

	if join {
		c.pump.stop()
	} else {
		c.pump.halt()
	}
}

// emit queues ev for delivery on the conn's pump. Called with fab.mu
// held.
func (c *conn) emit(ev *engine.Event) {
	delay := c.fab.cfg.Latency
	c.pump.submit(func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		c.handler(c, ev)
	})
}

// emitRequest is emit for connect requests: a refused request destroys
// the child conn, upholding the handler contract that refusal hands
// the child back to the engine.
func (c *conn) emitRequest(ev *engine.Event) {
	delay := c.fab.cfg.Latency
	c.pump.submit(func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		if c.handler(c, ev) == engine.Refused {
			c.destroy(false)
		}
	})
}
