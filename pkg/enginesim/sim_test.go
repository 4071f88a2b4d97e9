package enginesim

import (
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/ucm-project/ucm-go/pkg/engine"
)

// recorder collects the events a handler sees and lets tests wait for
// them.
type recorder struct {
	mu   sync.Mutex
	seen []recorded
	ch   chan recorded
}

type recorded struct {
	conn engine.Conn
	ev   engine.Event
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan recorded, 64)}
}

func (r *recorder) handle(c engine.Conn, ev *engine.Event) engine.Disposition {
	rec := recorded{conn: c, ev: *ev}
	r.mu.Lock()
	r.seen = append(r.seen, rec)
	r.mu.Unlock()
	r.ch <- rec
	return engine.Delivered
}

func (r *recorder) next(t *testing.T) recorded {
	t.Helper()
	select {
	case rec := <-r.ch:
		return rec
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an engine event")
		return recorded{}
	}
}

func (r *recorder) expect(t *testing.T, kind engine.EventKind) recorded {
	t.Helper()
	rec := r.next(t)
	if rec.ev.Kind != kind {
		t.Fatalf("event kind = %v, want %v", rec.ev.Kind, kind)
	}
	return rec
}

// quiet asserts no event arrives for a short window.
func (r *recorder) quiet(t *testing.T) {
	t.Helper()
	select {
	case rec := <-r.ch:
		t.Fatalf("unexpected %v event", rec.ev.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func newTestFabric(t *testing.T) *Fabric {
	t.Helper()
	f, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func mustConn(t *testing.T, f *Fabric, r *recorder, space engine.PortSpace, qp engine.QPType) engine.Conn {
	t.Helper()
	c, err := f.CreateConn(r.handle, nil, space, qp)
	if err != nil {
		t.Fatalf("CreateConn() error: %v", err)
	}
	return c
}

func ipAddr(s string) engine.Addr {
	return engine.IPAddr(netip.MustParseAddrPort(s))
}

// resolveTo walks a conn to the route-resolved state.
func resolveTo(t *testing.T, r *recorder, c engine.Conn, dst string) {
	t.Helper()
	if err := c.ResolveAddr(engine.Addr{}, ipAddr(dst), time.Second); err != nil {
		t.Fatalf("ResolveAddr() error: %v", err)
	}
	r.expect(t, engine.EventAddrResolved)
	if err := c.ResolveRoute(time.Second); err != nil {
		t.Fatalf("ResolveRoute() error: %v", err)
	}
	r.expect(t, engine.EventRouteResolved)
}

// listenOn binds a conn and puts it in the listening state.
func listenOn(t *testing.T, c engine.Conn, addr string) {
	t.Helper()
	if err := c.BindAddr(ipAddr(addr)); err != nil {
		t.Fatalf("BindAddr(%s) error: %v", addr, err)
	}
	if err := c.Listen(8); err != nil {
		t.Fatalf("Listen() error: %v", err)
	}
}

func connCount(f *Fabric) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
