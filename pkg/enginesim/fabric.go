package enginesim

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/ucm-project/ucm-go/pkg/engine"
)

// Event status codes the fabric reports.
const (
	statusNoDevice  = -19 // no device can reach the destination
	rejectNoService = 8   // nothing listens on the destination service
	rejectConsumer  = 28  // the request's conn went away before a verdict
)

// datagramQKey is the well-known QKey datagram services share.
const datagramQKey = 0x01234567

const (
	defaultPkey   = 0xffff
	pathRecordLen = 64
	guidBase      = 0x0002c90300000000
	ephemeralBase = 0xc000
)

// DeviceConfig names one simulated device. A zero GUID picks a stable
// one derived from the device's ordinal.
type DeviceConfig struct {
	Name string `yaml:"name"`
	GUID uint64 `yaml:"guid"`
}

// Hooks intercept fabric verbs.
type Hooks struct {
	// BeforeOp runs before the named verb's own validation. A non-nil
	// return aborts the verb with that error. It is called without any
	// fabric lock held. Verb names are the lowercase operation names:
	// "bind", "resolve_addr", "resolve_route", "listen", "connect",
	// "accept", "reject", "disconnect", "init_qp_attr", "notify",
	// "join_multicast", "leave_multicast", "set_tos", "set_reuseaddr",
	// "set_afonly", "set_ack_timeout", "set_path".
	BeforeOp func(op string, c engine.Conn) error
}

// Config configures a Fabric. An empty device list gets a single
// default device named sim0.
type Config struct {
	// Devices populates the fabric's device table.
	Devices []DeviceConfig

	// Latency delays every event delivery. Zero delivers immediately.
	Latency time.Duration

	// Hooks intercept verbs, mainly for fault injection in tests.
	Hooks Hooks
}

// bindKey is the collision domain for binds and listens: one service
// namespace, one address.
type bindKey struct {
	space engine.PortSpace
	addr  engine.Addr
}

// Fabric is a simulated connection engine. All conns created on the
// same fabric can reach each other.
type Fabric struct {
	cfg Config

	mu        sync.Mutex
	devices   []*engine.Device
	conns     map[*conn]struct{}
	bindings  map[bindKey]map[*conn]struct{}
	listeners map[bindKey]*conn
	devSeq    uint32
	qpn       uint32
	port      uint16
	hosts     uint32
	closed    bool
}

var _ engine.Engine = (*Fabric)(nil)

// New builds a Fabric from cfg.
// Returns an error when the config names the same device twice.
func New(cfg Config) (*Fabric, error) {
	f := &Fabric{
		cfg:       cfg,
		conns:     make(map[*conn]struct{}),
		bindings:  make(map[bindKey]map[*conn]struct{}),
		listeners: make(map[bindKey]*conn),
		qpn:       0x100,
		port:      ephemeralBase,
	}
	for _, dc := range cfg.Devices {
		if _, err := f.AddDevice(dc.Name, dc.GUID); err != nil {
			return nil, err
		}
	}
	if len(f.devices) == 0 {
		f.AddDevice("sim0", 0)
	}
	return f, nil
}

// CreateConn allocates a conn on the fabric.
func (f *Fabric) CreateConn(handler engine.EventHandler, owner any, space engine.PortSpace, qp engine.QPType) (engine.Conn, error) {
	if handler == nil {
		return nil, fmt.Errorf("enginesim: conn needs an event handler")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, engine.ErrClosed
	}
	return f.newConnLocked(handler, owner, space, qp), nil
}

func (f *Fabric) newConnLocked(handler engine.EventHandler, owner any, space engine.PortSpace, qp engine.QPType) *conn {
	f.qpn++
	c := &conn{
		fab:     f,
		handler: handler,
		space:   space,
		qp:      qp,
		qpn:     f.qpn,
		owner:   owner,
		groups:  make(map[engine.Addr]engine.JoinState),
		pump:    newPump(),
	}
	f.conns[c] = struct{}{}
	return c
}

// Close tears down the fabric. Every conn is closed first, so no
// handler runs after Close returns.
func (f *Fabric) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	conns := make([]*conn, 0, len(f.conns))
	for c := range f.conns {
		conns = append(conns, c)
	}
	f.mu.Unlock()

	for _, c := range conns {
		c.destroy(true)
	}
	return nil
}

// AddDevice adds a device to the fabric. A zero guid picks a stable
// one derived from the device's ordinal.
func (f *Fabric) AddDevice(name string, guid uint64) (*engine.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, engine.ErrClosed
	}
	for _, d := range f.devices {
		if d.Name == name {
			return nil, fmt.Errorf("enginesim: duplicate device %q", name)
		}
	}
	if guid == 0 {
		guid = guidBase + uint64(f.devSeq) + 1
	}
	d := &engine.Device{Name: name, GUID: guid, Index: f.devSeq}
	f.devSeq++
	f.devices = append(f.devices, d)
	return d, nil
}

// RemoveDevice pulls a device out of the fabric. Every conn bound to
// it receives a DEVICE_REMOVAL event. Reports whether the device was
// present.
func (f *Fabric) RemoveDevice(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	var dev *engine.Device
	for i, d := range f.devices {
		if d.Name == name {
			dev = d
			f.devices = append(f.devices[:i], f.devices[i+1:]...)
			break
		}
	}
	if dev == nil {
		return false
	}
	for c := range f.conns {
		if c.device == dev && !c.closed {
			c.emit(&engine.Event{Kind: engine.EventDeviceRemoval})
		}
	}
	return true
}

// Devices returns a snapshot of the device table.
func (f *Fabric) Devices() []*engine.Device {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*engine.Device(nil), f.devices...)
}

func (f *Fabric) beforeOp(op string, c engine.Conn) error {
	if f.cfg.Hooks.BeforeOp == nil {
		return nil
	}
	return f.cfg.Hooks.BeforeOp(op, c)
}

func (f *Fabric) firstDeviceLocked() *engine.Device {
	if len(f.devices) == 0 {
		return nil
	}
	return f.devices[0]
}

// claimLocked records a bind. An occupied key is shareable only when
// every current holder and the claimant all set reuse.
func (f *Fabric) claimLocked(key bindKey, c *conn) bool {
	set := f.bindings[key]
	for o := range set {
		if !o.reuse || !c.reuse {
			return false
		}
	}
	if set == nil {
		set = make(map[*conn]struct{})
		f.bindings[key] = set
	}
	set[c] = struct{}{}
	return true
}

func (f *Fabric) unclaimLocked(c *conn) {
	set := f.bindings[c.bind]
	delete(set, c)
	if len(set) == 0 {
		delete(f.bindings, c.bind)
	}
	c.hasBind = false
}

// dropConnLocked unregisters a conn from every fabric table.
func (f *Fabric) dropConnLocked(c *conn) {
	delete(f.conns, c)
	if c.hasBind {
		f.unclaimLocked(c)
	}
	if c.hasListen {
		if f.listeners[c.lkey] == c {
			delete(f.listeners, c.lkey)
		}
		c.hasListen = false
	}
	c.groups = nil
}

// findListenerLocked resolves the conn a connect to dst lands on:
// exact match first, then an IP wildcard on the same port, then an
// any-address listen.
func (f *Fabric) findListenerLocked(space engine.PortSpace, dst engine.Addr) *conn {
	if l, ok := f.listeners[bindKey{space: space, addr: dst}]; ok {
		return l
	}
	if isIP(dst) {
		for key, l := range f.listeners {
			if key.space != space || !isIP(key.addr) || !key.addr.IP.Addr().IsUnspecified() {
				continue
			}
			if key.addr.IP.Port() != dst.IP.Port() {
				continue
			}
			if key.addr.Family == dst.Family {
				return l
			}
			if key.addr.Family == engine.FamilyIPv6 && dst.Family == engine.FamilyIPv4 && !l.afonly {
				return l
			}
		}
	}
	if l, ok := f.listeners[bindKey{space: space}]; ok {
		return l
	}
	return nil
}

func (f *Fabric) nextPortLocked() uint16 {
	if f.port == 0xffff {
		f.port = ephemeralBase
	}
	f.port++
	return f.port
}

// synthSourceLocked fabricates a source address in dst's family.
func (f *Fabric) synthSourceLocked(dst engine.Addr) engine.Addr {
	f.hosts++
	n := f.hosts
	switch dst.Family {
	case engine.FamilyIB:
		var gid [16]byte
		binary.BigEndian.PutUint64(gid[:8], 0xfe80000000000000)
		binary.BigEndian.PutUint64(gid[8:], guidBase+uint64(n))
		pkey := dst.Pkey
		if pkey == 0 {
			pkey = defaultPkey
		}
		return engine.IBAddr(gid, pkey)
	case engine.FamilyIPv6:
		var a [16]byte
		a[0] = 0xfd
		a[1] = 0x2c
		binary.BigEndian.PutUint32(a[12:], n)
		return engine.IPAddr(netip.AddrPortFrom(netip.AddrFrom16(a), f.nextPortLocked()))
	default:
		return engine.IPAddr(netip.AddrPortFrom(netip.AddrFrom4([4]byte{10, 44, byte(n >> 8), byte(n)}), f.nextPortLocked()))
	}
}

// synthRoute fabricates a single-path route between two endpoints.
func synthRoute(src, dst engine.Addr) engine.RouteInfo {
	rs := src
	if rs.Pkey == 0 {
		rs.Pkey = defaultPkey
	}
	rec := make(engine.PathRecord, pathRecordLen)
	d := addrBits(dst)
	s := addrBits(src)
	copy(rec[8:24], d[:])
	copy(rec[24:40], s[:])
	binary.BigEndian.PutUint16(rec[40:42], rs.Pkey)
	return engine.RouteInfo{
		Src:      rs,
		Dst:      dst,
		PortNum:  1,
		NumPaths: 1,
		Paths:    []engine.PathRecord{rec},
	}
}

func addrBits(a engine.Addr) [16]byte {
	switch a.Family {
	case engine.FamilyIB:
		return a.GID
	case engine.FamilyIPv4, engine.FamilyIPv6:
		return a.IP.Addr().As16()
	default:
		return [16]byte{}
	}
}

func isIP(a engine.Addr) bool {
	return a.Family == engine.FamilyIPv4 || a.Family == engine.FamilyIPv6
}

// concreteAddr reports whether a names a specific endpoint rather
// than a wildcard.
func concreteAddr(a engine.Addr) bool {
	switch a.Family {
	case engine.FamilyIPv4, engine.FamilyIPv6:
		return !a.IP.Addr().IsUnspecified()
	case engine.FamilyIB:
		return a.GID != [16]byte{}
	default:
		return false
	}
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return append([]byte(nil), b...)
}
