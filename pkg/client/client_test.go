package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/netip"
	"testing"
	"time"

	"github.com/ucm-project/ucm-go/pkg/engine"
	"github.com/ucm-project/ucm-go/pkg/enginesim"
	"github.com/ucm-project/ucm-go/pkg/manager"
	"github.com/ucm-project/ucm-go/pkg/service"
	"github.com/ucm-project/ucm-go/pkg/transport"
	"github.com/ucm-project/ucm-go/pkg/version"
	"github.com/ucm-project/ucm-go/pkg/wire"
)

func startDaemon(t *testing.T) (*service.Service, string) {
	t.Helper()

	fabric, err := enginesim.New(enginesim.Config{})
	if err != nil {
		t.Fatalf("enginesim.New() error = %v", err)
	}
	mgr, err := manager.New(manager.Config{Engine: fabric})
	if err != nil {
		t.Fatalf("manager.New() error = %v", err)
	}
	cert, err := transport.GenerateSelfSigned()
	if err != nil {
		t.Fatalf("GenerateSelfSigned() error = %v", err)
	}
	svc, err := service.New(service.Config{
		Manager:       mgr,
		ListenAddress: "127.0.0.1:0",
		TLSConfig:     &transport.TLSConfig{Certificate: cert},
	})
	if err != nil {
		t.Fatalf("service.New() error = %v", err)
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		if svc.State() == service.StateRunning {
			svc.Stop()
		}
		mgr.Close()
		fabric.Close()
	})
	return svc, svc.Addr().String()
}

func dialDaemon(t *testing.T, addr string) *Client {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, addr, Config{
		TLSConfig: &transport.TLSConfig{InsecureSkipVerify: true},
	})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// nextEvent collects one event, waiting daemon-side until it arrives.
func nextEvent(t *testing.T, c *Client) *wire.EventReply {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ev, err := c.GetEvent(ctx, false)
	if err != nil {
		t.Fatalf("GetEvent() error = %v", err)
	}
	return ev
}

func testDst() wire.SockAddr {
	return wire.AddrFromNetip(netip.MustParseAddrPort("10.1.0.9:18515"))
}

func TestDialValidation(t *testing.T) {
	_, err := Dial(context.Background(), "127.0.0.1:1", Config{})
	if err == nil {
		t.Fatal("Dial() without TLSConfig should fail")
	}
}

func TestDialHello(t *testing.T) {
	_, addr := startDaemon(t)
	c := dialDaemon(t, addr)

	if c.SessionToken() == "" {
		t.Error("SessionToken() is empty")
	}
	hello := c.Hello()
	if hello.ABIVersion != version.ABIVersion {
		t.Errorf("hello ABIVersion = %d, want %d", hello.ABIVersion, version.ABIVersion)
	}
	if hello.ServerVersion != version.Current {
		t.Errorf("hello ServerVersion = %q, want %q", hello.ServerVersion, version.Current)
	}
	if got := c.State(); got != transport.StateConnected {
		t.Errorf("State() = %v, want %v", got, transport.StateConnected)
	}
}

func TestCreateDestroy(t *testing.T) {
	_, addr := startDaemon(t)
	c := dialDaemon(t, addr)
	ctx := context.Background()

	id1, err := c.CreateID(ctx, 1, wire.PortSpaceTCP, 0)
	if err != nil {
		t.Fatalf("CreateID() error = %v", err)
	}
	id2, err := c.CreateID(ctx, 2, wire.PortSpaceUDP, 0)
	if err != nil {
		t.Fatalf("CreateID() error = %v", err)
	}
	if id1 == id2 {
		t.Errorf("CreateID() returned duplicate id %d", id1)
	}

	events, err := c.DestroyID(ctx, id1)
	if err != nil {
		t.Fatalf("DestroyID() error = %v", err)
	}
	if events != 0 {
		t.Errorf("DestroyID() events = %d, want 0", events)
	}
	if _, err := c.DestroyID(ctx, id1); !IsStatus(err, wire.StatusNotFound) {
		t.Errorf("second DestroyID() error = %v, want NOT_FOUND", err)
	}
}

func TestStatusErrors(t *testing.T) {
	_, addr := startDaemon(t)
	c := dialDaemon(t, addr)
	ctx := context.Background()

	_, err := c.DestroyID(ctx, 4242)
	if !IsStatus(err, wire.StatusNotFound) {
		t.Fatalf("DestroyID(unknown) error = %v, want NOT_FOUND", err)
	}
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error %v is not a *StatusError", err)
	}
	if se.Op != wire.OpDestroyID {
		t.Errorf("StatusError.Op = %v, want %v", se.Op, wire.OpDestroyID)
	}

	if _, err := c.GetEvent(ctx, true); !IsStatus(err, wire.StatusWouldBlock) {
		t.Errorf("GetEvent(nonblock) on empty queue error = %v, want WOULD_BLOCK", err)
	}
}

func TestStatusErrorWrapping(t *testing.T) {
	base := &StatusError{Op: wire.OpConnect, Status: wire.StatusRefused}
	wrapped := fmt.Errorf("dial peer: %w", base)

	if !IsStatus(wrapped, wire.StatusRefused) {
		t.Error("IsStatus() does not see through wrapping")
	}
	if IsStatus(wrapped, wire.StatusNotFound) {
		t.Error("IsStatus() matched the wrong status")
	}
	if IsStatus(errors.New("plain"), wire.StatusRefused) {
		t.Error("IsStatus() matched a non-status error")
	}
}

func TestResolveDeliversEvent(t *testing.T) {
	_, addr := startDaemon(t)
	c := dialDaemon(t, addr)
	ctx := context.Background()

	id, err := c.CreateID(ctx, 7, wire.PortSpaceTCP, 0)
	if err != nil {
		t.Fatalf("CreateID() error = %v", err)
	}
	if err := c.ResolveIP(ctx, id, wire.SockAddr{}, testDst(), 2000); err != nil {
		t.Fatalf("ResolveIP() error = %v", err)
	}

	select {
	case <-c.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("no readiness notice after resolve")
	}

	ev := nextEvent(t, c)
	if ev.Event != uint32(engine.EventAddrResolved) {
		t.Fatalf("event = %d, want ADDR_RESOLVED", ev.Event)
	}
	if ev.UID != 7 {
		t.Errorf("event uid = %d, want 7", ev.UID)
	}
	if ev.ID != id {
		t.Errorf("event id = %d, want %d", ev.ID, id)
	}
}

func TestQueryAfterRoute(t *testing.T) {
	_, addr := startDaemon(t)
	c := dialDaemon(t, addr)
	ctx := context.Background()

	id, err := c.CreateID(ctx, 1, wire.PortSpaceTCP, 0)
	if err != nil {
		t.Fatalf("CreateID() error = %v", err)
	}
	if err := c.ResolveIP(ctx, id, wire.SockAddr{}, testDst(), 2000); err != nil {
		t.Fatalf("ResolveIP() error = %v", err)
	}
	nextEvent(t, c)
	if err := c.ResolveRoute(ctx, id, 2000); err != nil {
		t.Fatalf("ResolveRoute() error = %v", err)
	}
	if ev := nextEvent(t, c); ev.Event != uint32(engine.EventRouteResolved) {
		t.Fatalf("event = %d, want ROUTE_RESOLVED", ev.Event)
	}

	route, err := c.QueryRoute(ctx, id)
	if err != nil {
		t.Fatalf("QueryRoute() error = %v", err)
	}
	if route.NumPaths != 1 || len(route.Paths) != 1 {
		t.Errorf("route paths = %d/%d, want 1/1", route.NumPaths, len(route.Paths))
	}
	if route.NodeGUID == 0 {
		t.Error("route has no node guid")
	}
	if route.DeviceIndex == nil {
		t.Error("route has no device index")
	}

	ai, err := c.QueryAddrInfo(ctx, id)
	if err != nil {
		t.Fatalf("QueryAddrInfo() error = %v", err)
	}
	if ai.NodeGUID != route.NodeGUID {
		t.Errorf("addr info guid = %x, want %x", ai.NodeGUID, route.NodeGUID)
	}

	paths, err := c.QueryPath(ctx, id)
	if err != nil {
		t.Fatalf("QueryPath() error = %v", err)
	}
	if paths.NumPaths != 1 || len(paths.Paths) != 1 {
		t.Errorf("path query = %d/%d records, want 1/1", paths.NumPaths, len(paths.Paths))
	}
}

func TestConnectAcceptAcrossClients(t *testing.T) {
	_, addr := startDaemon(t)
	listener := dialDaemon(t, addr)
	dialer := dialDaemon(t, addr)
	ctx := context.Background()

	lid, err := listener.CreateID(ctx, 100, wire.PortSpaceTCP, 0)
	if err != nil {
		t.Fatalf("CreateID(listener) error = %v", err)
	}
	laddr := wire.AddrFromNetip(netip.MustParseAddrPort("10.44.1.1:7000"))
	if err := listener.BindIP(ctx, lid, laddr); err != nil {
		t.Fatalf("BindIP() error = %v", err)
	}
	if err := listener.Listen(ctx, lid, 0); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	did, err := dialer.CreateID(ctx, 200, wire.PortSpaceTCP, 0)
	if err != nil {
		t.Fatalf("CreateID(dialer) error = %v", err)
	}
	if err := dialer.ResolveIP(ctx, did, wire.SockAddr{}, laddr, 2000); err != nil {
		t.Fatalf("ResolveIP() error = %v", err)
	}
	nextEvent(t, dialer)
	if err := dialer.ResolveRoute(ctx, did, 2000); err != nil {
		t.Fatalf("ResolveRoute() error = %v", err)
	}
	nextEvent(t, dialer)

	param := wire.ConnParam{PrivateData: []byte("hi"), ResponderResources: 4, RetryCount: 3}
	if err := dialer.Connect(ctx, did, param, nil); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	req := nextEvent(t, listener)
	if req.Event != uint32(engine.EventConnectRequest) {
		t.Fatalf("listener event = %d, want CONNECT_REQUEST", req.Event)
	}
	if req.UID != 100 {
		t.Errorf("request uid = %d, want the listener's", req.UID)
	}
	if req.ID == lid {
		t.Error("request named the listener id instead of a child")
	}
	if req.Conn == nil || !bytes.Equal(req.Conn.PrivateData, []byte("hi")) {
		t.Errorf("request param = %+v, want the dialer's private data", req.Conn)
	}

	child := req.ID
	if err := listener.Accept(ctx, child, 300, &wire.ConnParam{PrivateData: []byte("ok")}, nil); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}

	est := nextEvent(t, dialer)
	if est.Event != uint32(engine.EventEstablished) {
		t.Fatalf("dialer event = %d, want ESTABLISHED", est.Event)
	}
	if est.Conn == nil || !bytes.Equal(est.Conn.PrivateData, []byte("ok")) {
		t.Errorf("established param = %+v, want the responder's private data", est.Conn)
	}
	if ev := nextEvent(t, listener); ev.Event != uint32(engine.EventEstablished) || ev.UID != 300 {
		t.Errorf("responder event = %d uid %d, want ESTABLISHED for uid 300", ev.Event, ev.UID)
	}

	if err := dialer.Disconnect(ctx, did); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if ev := nextEvent(t, dialer); ev.Event != uint32(engine.EventDisconnected) {
		t.Errorf("dialer event = %d, want DISCONNECTED", ev.Event)
	}
	if ev := nextEvent(t, listener); ev.Event != uint32(engine.EventDisconnected) {
		t.Errorf("responder event = %d, want DISCONNECTED", ev.Event)
	}
}

func TestRejectFlow(t *testing.T) {
	_, addr := startDaemon(t)
	listener := dialDaemon(t, addr)
	dialer := dialDaemon(t, addr)
	ctx := context.Background()

	lid, err := listener.CreateID(ctx, 1, wire.PortSpaceTCP, 0)
	if err != nil {
		t.Fatalf("CreateID() error = %v", err)
	}
	laddr := wire.AddrFromNetip(netip.MustParseAddrPort("10.44.1.2:7000"))
	if err := listener.BindIP(ctx, lid, laddr); err != nil {
		t.Fatalf("BindIP() error = %v", err)
	}
	if err := listener.Listen(ctx, lid, 0); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	did, err := dialer.CreateID(ctx, 2, wire.PortSpaceTCP, 0)
	if err != nil {
		t.Fatalf("CreateID() error = %v", err)
	}
	if err := dialer.ResolveIP(ctx, did, wire.SockAddr{}, laddr, 2000); err != nil {
		t.Fatalf("ResolveIP() error = %v", err)
	}
	nextEvent(t, dialer)
	if err := dialer.ResolveRoute(ctx, did, 2000); err != nil {
		t.Fatalf("ResolveRoute() error = %v", err)
	}
	nextEvent(t, dialer)
	if err := dialer.Connect(ctx, did, wire.ConnParam{}, nil); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	req := nextEvent(t, listener)
	if err := listener.Reject(ctx, req.ID, wire.RejectConsumerDefined, []byte("no")); err != nil {
		t.Fatalf("Reject() error = %v", err)
	}

	ev := nextEvent(t, dialer)
	if ev.Event != uint32(engine.EventRejected) {
		t.Fatalf("dialer event = %d, want REJECTED", ev.Event)
	}
	if ev.Status != int32(wire.RejectConsumerDefined) {
		t.Errorf("reject status = %d, want %d", ev.Status, wire.RejectConsumerDefined)
	}
	if ev.Conn == nil || !bytes.Equal(ev.Conn.PrivateData, []byte("no")) {
		t.Errorf("reject param = %+v, want the private data", ev.Conn)
	}
}

func TestContextOptions(t *testing.T) {
	_, addr := startDaemon(t)
	c := dialDaemon(t, addr)
	ctx := context.Background()

	id, err := c.CreateID(ctx, 1, wire.PortSpaceTCP, 0)
	if err != nil {
		t.Fatalf("CreateID() error = %v", err)
	}
	if err := c.SetTOS(ctx, id, 96); err != nil {
		t.Errorf("SetTOS() error = %v", err)
	}
	if err := c.SetReuseAddr(ctx, id, true); err != nil {
		t.Errorf("SetReuseAddr() error = %v", err)
	}
	if err := c.SetAFOnly(ctx, id, true); err != nil {
		t.Errorf("SetAFOnly() error = %v", err)
	}
	if err := c.SetACKTimeout(ctx, id, 14); err != nil {
		t.Errorf("SetACKTimeout() error = %v", err)
	}
}

func TestSetIBPath(t *testing.T) {
	_, addr := startDaemon(t)
	c := dialDaemon(t, addr)
	ctx := context.Background()

	id, err := c.CreateID(ctx, 9, wire.PortSpaceIB, 0)
	if err != nil {
		t.Fatalf("CreateID() error = %v", err)
	}
	// The path can only land once resolution has bound a device.
	if err := c.ResolveIP(ctx, id, wire.SockAddr{}, testDst(), 2000); err != nil {
		t.Fatalf("ResolveIP() error = %v", err)
	}
	nextEvent(t, c)

	rec := wire.PathRecord{
		Flags: wire.PathGMP | wire.PathPrimary | wire.PathBidirectional,
		Raw:   make([]byte, rawPathSize),
	}
	if err := c.SetIBPath(ctx, id, []wire.PathRecord{rec}); err != nil {
		t.Fatalf("SetIBPath() error = %v", err)
	}
	if ev := nextEvent(t, c); ev.Event != uint32(engine.EventRouteResolved) {
		t.Errorf("event = %d, want ROUTE_RESOLVED", ev.Event)
	}
}

func TestSetIBPathValidation(t *testing.T) {
	c := &Client{}
	ctx := context.Background()

	if err := c.SetIBPath(ctx, 1, nil); err == nil {
		t.Error("SetIBPath() with no records should fail")
	}
	bad := []wire.PathRecord{{Flags: wire.PathPrimary, Raw: make([]byte, 10)}}
	if err := c.SetIBPath(ctx, 1, bad); err == nil {
		t.Error("SetIBPath() with a short record should fail")
	}
}

func TestMulticastRoundTrip(t *testing.T) {
	_, addr := startDaemon(t)
	c := dialDaemon(t, addr)
	ctx := context.Background()

	id, err := c.CreateID(ctx, 1, wire.PortSpaceUDP, 0)
	if err != nil {
		t.Fatalf("CreateID() error = %v", err)
	}
	if err := c.BindIP(ctx, id, wire.AddrFromNetip(netip.MustParseAddrPort("10.1.0.3:0"))); err != nil {
		t.Fatalf("BindIP() error = %v", err)
	}

	group := wire.AddrFromNetip(netip.MustParseAddrPort("239.0.0.8:4791"))
	mcID, err := c.JoinMulticast(ctx, id, 55, group, wire.JoinFlagFullMember)
	if err != nil {
		t.Fatalf("JoinMulticast() error = %v", err)
	}
	if ev := nextEvent(t, c); ev.Event != uint32(engine.EventMulticastJoin) || ev.UID != 55 {
		t.Errorf("event = %d uid %d, want MULTICAST_JOIN for uid 55", ev.Event, ev.UID)
	}

	events, err := c.LeaveMulticast(ctx, mcID)
	if err != nil {
		t.Fatalf("LeaveMulticast() error = %v", err)
	}
	if events != 1 {
		t.Errorf("LeaveMulticast() events = %d, want 1", events)
	}
}

func TestOpsAfterClose(t *testing.T) {
	_, addr := startDaemon(t)
	c := dialDaemon(t, addr)

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := c.CreateID(context.Background(), 1, wire.PortSpaceTCP, 0); !errors.Is(err, ErrClosed) {
		t.Errorf("CreateID() after close error = %v, want ErrClosed", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestDaemonStopFailsInflight(t *testing.T) {
	svc, addr := startDaemon(t)
	c := dialDaemon(t, addr)

	errCh := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err := c.GetEvent(ctx, false)
		errCh <- err
	}()

	time.Sleep(100 * time.Millisecond)
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	select {
	case err := <-errCh:
		if err == nil {
			t.Error("blocked GetEvent() survived the daemon stopping")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked GetEvent() did not return after the daemon stopped")
	}
}

func TestReplyRouting(t *testing.T) {
	c := &Client{pending: make(map[uint32]chan *wire.Reply)}

	ch := make(chan *wire.Reply, 1)
	c.pending[7] = ch

	frame, err := wire.EncodeReply(&wire.Reply{MessageID: 7, Status: wire.StatusSuccess})
	if err != nil {
		t.Fatalf("EncodeReply() error = %v", err)
	}
	c.OnMessage(frame)

	select {
	case reply := <-ch:
		if reply.MessageID != 7 {
			t.Errorf("routed message id = %d, want 7", reply.MessageID)
		}
	default:
		t.Fatal("reply was not routed to the pending channel")
	}

	// Unknown ids and junk frames are dropped without effect.
	stray, _ := wire.EncodeReply(&wire.Reply{MessageID: 99})
	c.OnMessage(stray)
	c.OnMessage([]byte{0xff, 0x00})
}

func TestFailPendingUnblocksWaiters(t *testing.T) {
	c := &Client{pending: make(map[uint32]chan *wire.Reply)}
	ch := make(chan *wire.Reply, 1)
	c.pending[3] = ch

	c.failPending()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected a closed channel, got a reply")
		}
	default:
		t.Fatal("pending channel was not closed")
	}
	if len(c.pending) != 0 {
		t.Errorf("pending map has %d entries after failPending", len(c.pending))
	}
}

func TestFlagOption(t *testing.T) {
	if got := flagOption(true); !bytes.Equal(got, []byte{0, 0, 0, 1}) {
		t.Errorf("flagOption(true) = %v", got)
	}
	if got := flagOption(false); !bytes.Equal(got, []byte{0, 0, 0, 0}) {
		t.Errorf("flagOption(false) = %v", got)
	}
}
