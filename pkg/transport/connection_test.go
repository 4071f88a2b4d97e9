package transport

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"math/big"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/ucm-project/ucm-go/pkg/log"
)

// testPKI is a throwaway certificate authority with one leaf minted
// for each side of a connection. Ed25519 keeps fixture generation
// cheap enough to run per test.
type testPKI struct {
	caPool     *x509.CertPool
	serverCert tls.Certificate
	clientCert tls.Certificate
}

func newTestPKI(t *testing.T) *testPKI {
	t.Helper()

	caPub, caKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate CA key: %v", err)
	}
	caTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign,
		IsCA:                  true,
		BasicConstraintsValid: true,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTmpl, caTmpl, caPub, caKey)
	if err != nil {
		t.Fatalf("create CA: %v", err)
	}
	caCert, err := x509.ParseCertificate(caDER)
	if err != nil {
		t.Fatalf("parse CA: %v", err)
	}
	pool := x509.NewCertPool()
	pool.AddCert(caCert)

	// mint signs one leaf. The server leaf carries loopback SANs so
	// hostname verification passes against a local listener; the client
	// leaf needs no name at all.
	mint := func(serial int64, loopbackSANs bool) tls.Certificate {
		pub, key, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			t.Fatalf("generate leaf key: %v", err)
		}
		tmpl := &x509.Certificate{
			SerialNumber: big.NewInt(serial),
			NotBefore:    time.Now().Add(-time.Hour),
			NotAfter:     time.Now().Add(24 * time.Hour),
			KeyUsage:     x509.KeyUsageDigitalSignature,
			ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		}
		if loopbackSANs {
			tmpl.DNSNames = []string{"localhost"}
			tmpl.IPAddresses = []net.IP{net.ParseIP("127.0.0.1")}
		}
		der, err := x509.CreateCertificate(rand.Reader, tmpl, caCert, pub, caKey)
		if err != nil {
			t.Fatalf("mint leaf %d: %v", serial, err)
		}
		leaf, err := x509.ParseCertificate(der)
		if err != nil {
			t.Fatalf("parse leaf %d: %v", serial, err)
		}
		return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}
	}

	return &testPKI{
		caPool:     pool,
		serverCert: mint(2, true),
		clientCert: mint(3, false),
	}
}

// mockHandler records everything a Connection reports.
type mockHandler struct {
	mu          sync.Mutex
	messages    [][]byte
	transitions []string // "OLD>NEW"
	errors      []error
	messageCh   chan []byte
}

func newMockHandler() *mockHandler {
	return &mockHandler{messageCh: make(chan []byte, 10)}
}

func (h *mockHandler) OnMessage(msg []byte) {
	select {
	case h.messageCh <- msg:
	default:
	}
	h.mu.Lock()
	h.messages = append(h.messages, msg)
	h.mu.Unlock()
}

func (h *mockHandler) OnStateChange(from, to ConnectionState) {
	h.mu.Lock()
	h.transitions = append(h.transitions, from.String()+">"+to.String())
	h.mu.Unlock()
}

func (h *mockHandler) OnError(err error) {
	h.mu.Lock()
	h.errors = append(h.errors, err)
	h.mu.Unlock()
}

func (h *mockHandler) errorCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.errors)
}

// capturingLogger collects protocol events emitted by a Connection.
type capturingLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (l *capturingLogger) Log(event log.Event) {
	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()
}

func (l *capturingLogger) Events() []log.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]log.Event(nil), l.events...)
}

// connPair is a connected client/server Connection pair over loopback.
type connPair struct {
	client        *Connection
	server        *Connection
	clientHandler *mockHandler
	serverHandler *mockHandler
}

// newConnPair dials a loopback TLS connection and returns both managed
// ends. The configure callback may adjust either config before dialing.
func newConnPair(t *testing.T, ctx context.Context, configure func(client, server *ConnectionConfig)) *connPair {
	t.Helper()

	pki := newTestPKI(t)

	serverTLSConfig, err := NewServerTLSConfig(&TLSConfig{
		Certificate: pki.serverCert,
		ClientCAs:   pki.caPool,
	})
	if err != nil {
		t.Fatalf("failed to create server TLS config: %v", err)
	}

	clientTLSConfig, err := NewClientTLSConfig(&TLSConfig{
		Certificate: pki.clientCert,
		RootCAs:     pki.caPool,
		ServerName:  "localhost",
	})
	if err != nil {
		t.Fatalf("failed to create client TLS config: %v", err)
	}

	connConfig := func(tlsConf *tls.Config) ConnectionConfig {
		cfg := DefaultConnectionConfig()
		cfg.TLSConfig = tlsConf
		cfg.KeepAlive.PingInterval = time.Second
		return cfg
	}
	serverConfig := connConfig(serverTLSConfig)
	clientConfig := connConfig(clientTLSConfig)

	if configure != nil {
		configure(&clientConfig, &serverConfig)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to start listener: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	pair := &connPair{
		clientHandler: newMockHandler(),
		serverHandler: newMockHandler(),
	}
	pair.server = NewConnection(serverConfig, pair.serverHandler)
	pair.client = NewConnection(clientConfig, pair.clientHandler)

	accepted := make(chan error, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			accepted <- err
			return
		}
		accepted <- pair.server.Accept(ctx, conn)
	}()

	if err := pair.client.Connect(ctx, listener.Addr().String()); err != nil {
		t.Fatalf("client connect failed: %v", err)
	}
	if err := <-accepted; err != nil {
		t.Fatalf("server accept failed: %v", err)
	}

	t.Cleanup(func() {
		pair.client.ForceClose()
		pair.server.ForceClose()
	})

	return pair
}

func TestConnectionStateString(t *testing.T) {
	cases := map[ConnectionState]string{
		StateDisconnected:   "DISCONNECTED",
		StateConnecting:     "CONNECTING",
		StateConnected:      "CONNECTED",
		StateClosing:        "CLOSING",
		ConnectionState(99): "UNKNOWN",
	}

	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("ConnectionState(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestConnectionInitialState(t *testing.T) {
	conn := NewConnection(DefaultConnectionConfig(), newMockHandler())
	if got := conn.State(); got != StateDisconnected {
		t.Errorf("NewConnection state = %v, want %v", got, StateDisconnected)
	}
}

func TestDefaultConnectionConfig(t *testing.T) {
	config := DefaultConnectionConfig()

	if config.MaxMessageSize != DefaultMaxMessageSize {
		t.Errorf("MaxMessageSize = %d, want %d", config.MaxMessageSize, DefaultMaxMessageSize)
	}
	if config.CloseTimeout != DefaultCloseTimeout {
		t.Errorf("CloseTimeout = %v, want %v", config.CloseTimeout, DefaultCloseTimeout)
	}
	if config.KeepAlive.PingInterval != DefaultPingInterval {
		t.Errorf("KeepAlive.PingInterval = %v, want %v", config.KeepAlive.PingInterval, DefaultPingInterval)
	}
}

func TestConnectionConnectAccept(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pair := newConnPair(t, ctx, func(client, server *ConnectionConfig) {
		client.KeepAlive.PingInterval = 100 * time.Millisecond
		server.KeepAlive.PingInterval = 100 * time.Millisecond
	})

	if pair.client.State() != StateConnected {
		t.Errorf("client state = %v, want CONNECTED", pair.client.State())
	}
	if pair.server.State() != StateConnected {
		t.Errorf("server state = %v, want CONNECTED", pair.server.State())
	}

	if pair.client.ConnID() == "" {
		t.Error("client ConnID is empty")
	}
}

// awaitMessage waits for the handler to receive exactly want.
func awaitMessage(t *testing.T, h *mockHandler, want string) {
	t.Helper()
	select {
	case msg := <-h.messageCh:
		if string(msg) != want {
			t.Errorf("received %q, want %q", msg, want)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}

func TestConnectionSendReceive(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pair := newConnPair(t, ctx, nil)

	if err := pair.client.Send([]byte("create-id uid=0x1001")); err != nil {
		t.Fatalf("client Send() error = %v", err)
	}
	awaitMessage(t, pair.serverHandler, "create-id uid=0x1001")

	if err := pair.server.Send([]byte("event uid=0x1001 CONNECT_REQUEST")); err != nil {
		t.Fatalf("server Send() error = %v", err)
	}
	awaitMessage(t, pair.clientHandler, "event uid=0x1001 CONNECT_REQUEST")
}

func TestConnectionSendNotConnected(t *testing.T) {
	conn := NewConnection(DefaultConnectionConfig(), newMockHandler())
	if err := conn.Send([]byte("create-id uid=0x1001")); err != ErrNotConnected {
		t.Errorf("Send() on idle connection = %v, want ErrNotConnected", err)
	}
}

func TestConnectionDoubleConnect(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pair := newConnPair(t, ctx, nil)

	// The address is never dialed: the state check fires first.
	if err := pair.client.Connect(ctx, "127.0.0.1:1"); err != ErrAlreadyConnected {
		t.Errorf("Connect() while connected = %v, want ErrAlreadyConnected", err)
	}
}

func TestConnectionAddresses(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pair := newConnPair(t, ctx, nil)

	if pair.client.LocalAddr() == nil {
		t.Error("LocalAddr() = nil on a live connection")
	}
	if pair.client.RemoteAddr() == nil {
		t.Error("RemoteAddr() = nil on a live connection")
	}

	idle := NewConnection(DefaultConnectionConfig(), newMockHandler())
	if addr := idle.LocalAddr(); addr != nil {
		t.Errorf("LocalAddr() = %v on an unconnected Connection, want nil", addr)
	}
	if addr := idle.RemoteAddr(); addr != nil {
		t.Errorf("RemoteAddr() = %v on an unconnected Connection, want nil", addr)
	}
}

func TestConnectionTLSState(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pair := newConnPair(t, ctx, nil)

	state, ok := pair.client.TLSConnectionState()
	if !ok {
		t.Fatal("TLSConnectionState() ok = false on a live connection")
	}
	if state.Version != tls.VersionTLS13 {
		t.Errorf("negotiated version = %x, want %x", state.Version, tls.VersionTLS13)
	}
	if state.NegotiatedProtocol != ALPNProtocol {
		t.Errorf("negotiated ALPN = %q, want %q", state.NegotiatedProtocol, ALPNProtocol)
	}

	idle := NewConnection(DefaultConnectionConfig(), newMockHandler())
	if _, ok := idle.TLSConnectionState(); ok {
		t.Error("TLSConnectionState() ok = true on an unconnected Connection")
	}
}

func TestConnectionForceClose(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pair := newConnPair(t, ctx, nil)

	pair.client.ForceClose()
	if got := pair.client.State(); got != StateDisconnected {
		t.Errorf("State() after ForceClose = %v, want %v", got, StateDisconnected)
	}

	// Repeated ForceClose is a no-op.
	pair.client.ForceClose()
}

func TestConnectionGracefulClose(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pair := newConnPair(t, ctx, nil)

	// Graceful close sends GOAWAY and waits for the acknowledgment.
	if err := pair.client.Close(); err != nil {
		t.Fatalf("graceful close failed: %v", err)
	}

	if pair.client.State() != StateDisconnected {
		t.Errorf("client state after Close = %v, want DISCONNECTED", pair.client.State())
	}

	// The peer acknowledges the GOAWAY and tears down on its side.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if pair.server.State() == StateDisconnected {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if pair.server.State() != StateDisconnected {
		t.Errorf("server state after peer Close = %v, want DISCONNECTED", pair.server.State())
	}

	// Close after close is a no-op.
	if err := pair.client.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
}

func TestConnectionStateChanges(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pair := newConnPair(t, ctx, nil)

	pair.client.ForceClose()
	time.Sleep(50 * time.Millisecond)

	pair.clientHandler.mu.Lock()
	got := append([]string(nil), pair.clientHandler.transitions...)
	pair.clientHandler.mu.Unlock()

	want := []string{
		"DISCONNECTED>CONNECTING",
		"CONNECTING>CONNECTED",
		"CONNECTED>DISCONNECTED",
	}
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestConnectionKeepAliveIntegration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pair := newConnPair(t, ctx, func(client, server *ConnectionConfig) {
		for _, cfg := range []*ConnectionConfig{client, server} {
			cfg.KeepAlive.PingInterval = 50 * time.Millisecond
			cfg.KeepAlive.PongTimeout = 20 * time.Millisecond
			cfg.KeepAlive.MaxMissedPongs = 2
		}
	})

	// Several ping rounds fit in this window; answered pongs keep both
	// ends connected and leave an RTT sample behind.
	time.Sleep(200 * time.Millisecond)

	if pair.client.State() != StateConnected {
		t.Errorf("client state = %v, want CONNECTED", pair.client.State())
	}
	if pair.server.State() != StateConnected {
		t.Errorf("server state = %v, want CONNECTED", pair.server.State())
	}
	if rtt, ok := pair.client.LastRTT(); !ok || rtt <= 0 {
		t.Errorf("client LastRTT() = %v, %v, want a positive sample", rtt, ok)
	}
}

func TestConnectionKeepAliveTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Use very fast keep-alive for testing timeout
	pair := newConnPair(t, ctx, func(client, server *ConnectionConfig) {
		for _, cfg := range []*ConnectionConfig{client, server} {
			cfg.KeepAlive.PingInterval = 20 * time.Millisecond
			cfg.KeepAlive.PongTimeout = 10 * time.Millisecond
			cfg.KeepAlive.MaxMissedPongs = 2
		}
	})

	// Forcibly close the underlying socket to simulate network failure.
	// This bypasses the graceful close so the server side only finds
	// out through its read loop or keep-alive.
	pair.client.mu.Lock()
	if pair.client.tlsConn != nil {
		pair.client.tlsConn.Close()
	}
	pair.client.mu.Unlock()

	// Server should detect the failure and disconnect
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if pair.server.State() == StateDisconnected {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if pair.server.State() != StateDisconnected {
		t.Errorf("server state = %v, want DISCONNECTED after network failure", pair.server.State())
	}

	if pair.serverHandler.errorCount() == 0 {
		t.Error("server handler saw no errors after network failure")
	}
}

func TestConnectionControlLogging(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger := &capturingLogger{}
	pair := newConnPair(t, ctx, func(client, server *ConnectionConfig) {
		client.Logger = logger
		client.KeepAlive.PingInterval = 20 * time.Millisecond
	})

	// The initial ping goes out as soon as the connection activates.
	deadline := time.Now().Add(2 * time.Second)
	var pingEvent *log.Event
	for time.Now().Before(deadline) && pingEvent == nil {
		for _, ev := range logger.Events() {
			if ev.Category == log.CategoryControl && ev.ControlMsg != nil &&
				ev.ControlMsg.Type == log.ControlMsgPing {
				pingEvent = &ev
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
	}

	if pingEvent == nil {
		t.Fatal("no ping control event logged")
	}
	if pingEvent.Direction != log.DirectionOut {
		t.Errorf("ping direction = %v, want out", pingEvent.Direction)
	}
	if pingEvent.LocalRole != log.RoleClient {
		t.Errorf("ping local role = %v, want client", pingEvent.LocalRole)
	}
	if pingEvent.SessionID != pair.client.ConnID() {
		t.Errorf("ping session id = %q, want conn id %q", pingEvent.SessionID, pair.client.ConnID())
	}
}
