package service

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/ucm-project/ucm-go/pkg/engine"
	"github.com/ucm-project/ucm-go/pkg/enginesim"
	"github.com/ucm-project/ucm-go/pkg/manager"
	"github.com/ucm-project/ucm-go/pkg/transport"
	"github.com/ucm-project/ucm-go/pkg/version"
	"github.com/ucm-project/ucm-go/pkg/wire"
)

func newTestService(t *testing.T) (*Service, net.Addr) {
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

	svc, err := New(Config{
		Manager:       mgr,
		ListenAddress: "127.0.0.1:0",
		TLSConfig:     &transport.TLSConfig{Certificate: cert},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	t.Cleanup(func() {
		if svc.State() == StateRunning {
			svc.Stop()
		}
		mgr.Close()
		fabric.Close()
	})

	return svc, svc.Addr()
}

func dialService(t *testing.T, addr net.Addr) *transport.ClientConn {
	t.Helper()

	client, err := transport.NewClient(transport.ClientConfig{
		TLSConfig: &transport.TLSConfig{InsecureSkipVerify: true},
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := client.Connect(ctx, addr.String())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readHello consumes the hello frame the service pushes first.
func readHello(t *testing.T, conn *transport.ClientConn) *wire.Hello {
	t.Helper()

	data, err := conn.Receive(2 * time.Second)
	if err != nil {
		t.Fatalf("Receive(hello) error = %v", err)
	}
	hello, err := wire.DecodeHello(data)
	if err != nil {
		t.Fatalf("DecodeHello() error = %v", err)
	}
	return hello
}

// roundTrip sends one command and waits for its correlated reply,
// skipping any Ready frames that arrive in between.
func roundTrip(t *testing.T, conn *transport.ClientConn, msgID uint32, op wire.Op, in, out uint16, cmd any) *wire.Reply {
	t.Helper()

	sub, err := wire.BuildSubmission(op, in, out, cmd)
	if err != nil {
		t.Fatalf("BuildSubmission(%s) error = %v", op, err)
	}
	return sendRaw(t, conn, msgID, sub)
}

func sendRaw(t *testing.T, conn *transport.ClientConn, msgID uint32, sub []byte) *wire.Reply {
	t.Helper()

	frame, err := wire.EncodeCommand(&wire.Command{MessageID: msgID, Data: sub})
	if err != nil {
		t.Fatalf("EncodeCommand() error = %v", err)
	}
	if err := conn.Send(frame); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		data, err := conn.Receive(2 * time.Second)
		if err != nil {
			t.Fatalf("Receive(reply) error = %v", err)
		}
		kind, err := wire.PeekMessageKind(data)
		if err != nil || kind != wire.KindReply {
			continue
		}
		reply, err := wire.DecodeReply(data)
		if err != nil {
			t.Fatalf("DecodeReply() error = %v", err)
		}
		if reply.MessageID != msgID {
			continue
		}
		return reply
	}
	t.Fatalf("no reply for message %d", msgID)
	return nil
}

func TestServiceConfigValidation(t *testing.T) {
	cert, err := transport.GenerateSelfSigned()
	if err != nil {
		t.Fatalf("GenerateSelfSigned() error = %v", err)
	}
	fabric, _ := enginesim.New(enginesim.Config{})
	defer fabric.Close()
	mgr, _ := manager.New(manager.Config{Engine: fabric})
	defer mgr.Close()

	tests := []struct {
		name   string
		config Config
	}{
		{"NoManager", Config{TLSConfig: &transport.TLSConfig{Certificate: cert}}},
		{"NoTLS", Config{Manager: mgr}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.config); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("New() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestServiceLifecycle(t *testing.T) {
	fabric, _ := enginesim.New(enginesim.Config{})
	defer fabric.Close()
	mgr, _ := manager.New(manager.Config{Engine: fabric})
	defer mgr.Close()
	cert, _ := transport.GenerateSelfSigned()

	svc, err := New(Config{
		Manager:       mgr,
		ListenAddress: "127.0.0.1:0",
		TLSConfig:     &transport.TLSConfig{Certificate: cert},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if svc.State() != StateIdle {
		t.Errorf("State() = %v, want IDLE", svc.State())
	}
	if err := svc.Stop(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Stop() before start = %v, want ErrNotStarted", err)
	}

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if svc.State() != StateRunning {
		t.Errorf("State() = %v, want RUNNING", svc.State())
	}
	if svc.Addr() == nil {
		t.Error("Addr() = nil after start")
	}
	if err := svc.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() = %v, want ErrAlreadyStarted", err)
	}

	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if svc.State() != StateStopped {
		t.Errorf("State() = %v, want STOPPED", svc.State())
	}

	// A stopped service can be started again.
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("restart error = %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop() after restart error = %v", err)
	}
}

func TestServiceHello(t *testing.T) {
	svc, addr := newTestService(t)
	conn := dialService(t, addr)

	hello := readHello(t, conn)
	if hello.SessionToken == "" {
		t.Error("hello carries no session token")
	}
	if hello.ABIVersion != version.ABIVersion {
		t.Errorf("ABIVersion = %d, want %d", hello.ABIVersion, version.ABIVersion)
	}
	if hello.ServerVersion != version.Current {
		t.Errorf("ServerVersion = %q, want %q", hello.ServerVersion, version.Current)
	}

	waitForSessions(t, svc, 1)
}

func TestServiceCommandReply(t *testing.T) {
	_, addr := newTestService(t)
	conn := dialService(t, addr)
	readHello(t, conn)

	reply := roundTrip(t, conn, 1, wire.OpCreateID, wire.CreateCmdSize, wire.CreateReplySize,
		&wire.CreateCmd{UID: 7, PortSpace: wire.PortSpaceTCP})
	if reply.Status != wire.StatusSuccess {
		t.Fatalf("CREATE_ID status = %v, want SUCCESS", reply.Status)
	}
	var created wire.CreateReply
	if err := wire.Unmarshal(reply.Payload, &created); err != nil {
		t.Fatalf("decode CreateReply: %v", err)
	}

	reply = roundTrip(t, conn, 2, wire.OpDestroyID, wire.DestroyCmdSize, wire.DestroyReplySize,
		&wire.DestroyCmd{ID: created.ID})
	if reply.Status != wire.StatusSuccess {
		t.Fatalf("DESTROY_ID status = %v, want SUCCESS", reply.Status)
	}
	var destroyed wire.DestroyReply
	if err := wire.Unmarshal(reply.Payload, &destroyed); err != nil {
		t.Fatalf("decode DestroyReply: %v", err)
	}
	if destroyed.EventsReported != 0 {
		t.Errorf("EventsReported = %d, want 0", destroyed.EventsReported)
	}
}

func TestServiceStatusMapping(t *testing.T) {
	_, addr := newTestService(t)
	conn := dialService(t, addr)
	readHello(t, conn)

	// Unknown context id
	reply := roundTrip(t, conn, 1, wire.OpDestroyID, wire.DestroyCmdSize, wire.DestroyReplySize,
		&wire.DestroyCmd{ID: 999})
	if reply.Status != wire.StatusNotFound {
		t.Errorf("DESTROY_ID(999) status = %v, want NOT_FOUND", reply.Status)
	}

	// Submission shorter than a header
	reply = sendRaw(t, conn, 2, []byte{1, 2, 3})
	if reply.Status != wire.StatusInvalidArgument {
		t.Errorf("short submission status = %v, want INVALID_ARGUMENT", reply.Status)
	}
}

func TestServiceIgnoresNonCommandFrames(t *testing.T) {
	_, addr := newTestService(t)
	conn := dialService(t, addr)
	readHello(t, conn)

	// A Ready frame is never expected from a client. The service drops
	// it without killing the connection.
	frame, err := wire.EncodeReady()
	if err != nil {
		t.Fatalf("EncodeReady() error = %v", err)
	}
	if err := conn.Send(frame); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	reply := roundTrip(t, conn, 1, wire.OpCreateID, wire.CreateCmdSize, wire.CreateReplySize,
		&wire.CreateCmd{UID: 1, PortSpace: wire.PortSpaceTCP})
	if reply.Status != wire.StatusSuccess {
		t.Errorf("CREATE_ID after stray frame status = %v, want SUCCESS", reply.Status)
	}
}

func TestServiceReadyNoticeAndEvent(t *testing.T) {
	_, addr := newTestService(t)
	conn := dialService(t, addr)
	readHello(t, conn)

	reply := roundTrip(t, conn, 1, wire.OpCreateID, wire.CreateCmdSize, wire.CreateReplySize,
		&wire.CreateCmd{UID: 42, PortSpace: wire.PortSpaceTCP})
	if reply.Status != wire.StatusSuccess {
		t.Fatalf("CREATE_ID status = %v", reply.Status)
	}
	var created wire.CreateReply
	if err := wire.Unmarshal(reply.Payload, &created); err != nil {
		t.Fatalf("decode CreateReply: %v", err)
	}

	// The simulator posts ADDR_RESOLVED asynchronously and the service
	// pushes a Ready frame on the queue's empty-to-non-empty edge, so
	// the Ready frame can arrive on either side of the resolve reply.
	dst := netip.MustParseAddrPort("10.1.0.9:18515")
	sub, err := wire.BuildSubmission(wire.OpResolveIP, wire.ResolveIPCmdSize, 0,
		&wire.ResolveIPCmd{ID: created.ID, Dst: wire.AddrFromNetip(dst), TimeoutMs: 2000})
	if err != nil {
		t.Fatalf("BuildSubmission() error = %v", err)
	}
	frame, err := wire.EncodeCommand(&wire.Command{MessageID: 2, Data: sub})
	if err != nil {
		t.Fatalf("EncodeCommand() error = %v", err)
	}
	if err := conn.Send(frame); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	var resolved, sawReady bool
	deadline := time.Now().Add(2 * time.Second)
	for (!resolved || !sawReady) && time.Now().Before(deadline) {
		data, err := conn.Receive(2 * time.Second)
		if err != nil {
			t.Fatalf("Receive() error = %v", err)
		}
		kind, err := wire.PeekMessageKind(data)
		if err != nil {
			continue
		}
		switch kind {
		case wire.KindReply:
			r, err := wire.DecodeReply(data)
			if err != nil || r.MessageID != 2 {
				continue
			}
			if r.Status != wire.StatusSuccess {
				t.Fatalf("RESOLVE_IP status = %v", r.Status)
			}
			resolved = true
		case wire.KindReady:
			sawReady = true
		}
	}
	if !resolved {
		t.Fatal("no RESOLVE_IP reply")
	}
	if !sawReady {
		t.Fatal("no Ready frame after resolve")
	}

	reply = roundTrip(t, conn, 3, wire.OpGetEvent, wire.GetEventCmdSize, wire.EventReplyFullSize,
		&wire.GetEventCmd{Nonblock: true})
	if reply.Status != wire.StatusSuccess {
		t.Fatalf("GET_EVENT status = %v", reply.Status)
	}
	var ev wire.EventReply
	if err := wire.Unmarshal(reply.Payload, &ev); err != nil {
		t.Fatalf("decode EventReply: %v", err)
	}
	if ev.UID != 42 {
		t.Errorf("event UID = %d, want 42", ev.UID)
	}
	if ev.Event != uint32(engine.EventAddrResolved) {
		t.Errorf("event kind = %d, want ADDR_RESOLVED", ev.Event)
	}
}

func TestServiceDisconnectClosesSession(t *testing.T) {
	svc, addr := newTestService(t)
	conn := dialService(t, addr)
	readHello(t, conn)

	waitForSessions(t, svc, 1)
	conn.Close()
	waitForSessions(t, svc, 0)
}

func TestServiceBlockedCollectUnblocksOnDisconnect(t *testing.T) {
	svc, addr := newTestService(t)
	conn := dialService(t, addr)
	readHello(t, conn)
	waitForSessions(t, svc, 1)

	// A blocking GET_EVENT with nothing queued parks a worker inside
	// the manager.
	sub, err := wire.BuildSubmission(wire.OpGetEvent, wire.GetEventCmdSize, wire.EventReplyFullSize,
		&wire.GetEventCmd{})
	if err != nil {
		t.Fatalf("BuildSubmission() error = %v", err)
	}
	frame, err := wire.EncodeCommand(&wire.Command{MessageID: 1, Data: sub})
	if err != nil {
		t.Fatalf("EncodeCommand() error = %v", err)
	}
	if err := conn.Send(frame); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	// Disconnecting must cancel the parked worker and close the
	// session without deadlocking.
	conn.Close()
	waitForSessions(t, svc, 0)
}

func TestServiceStopDisconnectsClients(t *testing.T) {
	svc, addr := newTestService(t)
	conn := dialService(t, addr)
	readHello(t, conn)
	waitForSessions(t, svc, 1)

	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if got := svc.SessionCount(); got != 0 {
		t.Errorf("SessionCount() = %d after Stop, want 0", got)
	}

	// The client sees a GOAWAY control frame, then the closed socket.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		data, err := conn.Receive(500 * time.Millisecond)
		if err != nil {
			return // closed, as expected
		}
		if kind, err := wire.PeekMessageKind(data); err == nil && kind == wire.KindControl {
			continue
		}
	}
	t.Error("connection still alive after Stop")
}

func waitForSessions(t *testing.T, svc *Service, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if svc.SessionCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("SessionCount() = %d, want %d", svc.SessionCount(), want)
}
