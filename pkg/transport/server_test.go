package transport_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"math/big"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ucm-project/ucm-go/pkg/transport"
	"github.com/ucm-project/ucm-go/pkg/wire"
)

// serverFixture is a running Server plus ready-to-dial client TLS
// material signed into the server's trust store.
type serverFixture struct {
	t          *testing.T
	server     *transport.Server
	serverCert []byte
	clientCert []byte
	clientTLS  *tls.Config
}

// startServerFixture generates fresh certificates, applies configure
// to the default server config, and starts the listener. Shutdown is
// registered as a cleanup.
func startServerFixture(t *testing.T, configure func(cfg *transport.ServerConfig)) *serverFixture {
	t.Helper()

	serverCert, serverKey := generateTestCert(t)
	clientCert, clientKey := generateTestCert(t)

	clientCAs := x509.NewCertPool()
	clientCAs.AddCert(parseCert(t, clientCert))

	cfg := transport.ServerConfig{
		TLSConfig: &transport.TLSConfig{
			Certificate: loadCert(serverCert, serverKey),
			ClientCAs:   clientCAs,
		},
		Address: "127.0.0.1:0",
	}
	if configure != nil {
		configure(&cfg)
	}

	server, err := transport.NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := server.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { server.Stop() })

	return &serverFixture{
		t:          t,
		server:     server,
		serverCert: serverCert,
		clientCert: clientCert,
		clientTLS: &tls.Config{
			MinVersion:         tls.VersionTLS13,
			Certificates:       []tls.Certificate{loadCert(clientCert, clientKey)},
			InsecureSkipVerify: true,
			NextProtos:         []string{transport.ALPNProtocol},
		},
	}
}

// dial opens a raw TLS connection to the fixture server.
func (f *serverFixture) dial() *tls.Conn {
	f.t.Helper()

	conn, err := tls.Dial("tcp", f.server.Addr().String(), f.clientTLS)
	if err != nil {
		f.t.Fatalf("tls.Dial() error = %v", err)
	}
	f.t.Cleanup(func() { conn.Close() })
	return conn
}

// waitForConns polls until the server reports want registered
// connections.
func (f *serverFixture) waitForConns(want int) {
	f.t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f.server.ConnectionCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	f.t.Fatalf("ConnectionCount() = %d, want %d", f.server.ConnectionCount(), want)
}

func TestServerRejectsTLS12(t *testing.T) {
	f := startServerFixture(t, nil)

	old := f.clientTLS.Clone()
	old.MinVersion = tls.VersionTLS12
	old.MaxVersion = tls.VersionTLS12

	if conn, err := tls.Dial("tcp", f.server.Addr().String(), old); err == nil {
		conn.Close()
		t.Error("TLS 1.2 dial succeeded, want handshake rejection")
	}

	conn := f.dial()
	if v := conn.ConnectionState().Version; v != tls.VersionTLS13 {
		t.Errorf("negotiated version = %x, want TLS 1.3", v)
	}
}

func TestServerALPNNegotiation(t *testing.T) {
	f := startServerFixture(t, nil)

	conn := f.dial()
	if got := conn.ConnectionState().NegotiatedProtocol; got != transport.ALPNProtocol {
		t.Errorf("negotiated ALPN = %q, want %q", got, transport.ALPNProtocol)
	}

	// A client that never offers the protocol completes the TLS
	// handshake but is closed right after the post-handshake check.
	bare := f.clientTLS.Clone()
	bare.NextProtos = nil

	conn2, err := tls.Dial("tcp", f.server.Addr().String(), bare)
	if err != nil {
		return
	}
	defer conn2.Close()

	conn2.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := conn2.Read(buf); err == nil {
		t.Error("connection without ALPN stayed open, want server close")
	}
}

func TestServerPresentsCertificate(t *testing.T) {
	f := startServerFixture(t, nil)

	var seen *x509.Certificate
	probe := f.clientTLS.Clone()
	probe.VerifyPeerCertificate = func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) > 0 {
			if cert, err := x509.ParseCertificate(rawCerts[0]); err == nil {
				seen = cert
			}
		}
		return nil
	}

	conn, err := tls.Dial("tcp", f.server.Addr().String(), probe)
	if err != nil {
		t.Fatalf("tls.Dial() error = %v", err)
	}
	defer conn.Close()

	if seen == nil {
		t.Fatal("server presented no certificate")
	}
	if want := parseCert(t, f.serverCert); !seen.Equal(want) {
		t.Error("server presented an unexpected certificate")
	}
}

func TestServerRequiresClientCert(t *testing.T) {
	f := startServerFixture(t, func(cfg *transport.ServerConfig) {
		cfg.RequireClientCert = true
	})

	// With a certificate the connection registers normally.
	conn := f.dial()
	f.waitForConns(1)
	conn.Close()
	f.waitForConns(0)

	// Without one the server drops the connection. Under TLS 1.3 the
	// failure may surface at dial time or on the first read.
	anon := f.clientTLS.Clone()
	anon.Certificates = nil

	conn2, err := tls.Dial("tcp", f.server.Addr().String(), anon)
	if err != nil {
		return
	}
	defer conn2.Close()

	conn2.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := conn2.Read(buf); err == nil {
		t.Error("connection without client certificate stayed open, want server close")
	}
}

func TestServerDeliversFrames(t *testing.T) {
	received := make(chan []byte, 1)
	f := startServerFixture(t, func(cfg *transport.ServerConfig) {
		cfg.OnMessage = func(_ *transport.ServerConn, msg []byte) {
			select {
			case received <- msg:
			default:
			}
		}
	})

	conn := f.dial()
	payload := []byte("create-id uid=0x1001")
	if err := transport.NewFramer(conn).WriteFrame(payload); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}

	select {
	case got := <-received:
		if string(got) != string(payload) {
			t.Errorf("delivered frame = %q, want %q", got, payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame delivery")
	}
}

func TestServerConnectionCallbacks(t *testing.T) {
	connected := make(chan string, 1)
	disconnected := make(chan string, 1)
	f := startServerFixture(t, func(cfg *transport.ServerConfig) {
		cfg.OnConnect = func(c *transport.ServerConn) {
			select {
			case connected <- c.ConnID():
			default:
			}
		}
		cfg.OnDisconnect = func(c *transport.ServerConn) {
			select {
			case disconnected <- c.ConnID():
			default:
			}
		}
	})

	conn := f.dial()

	var connID string
	select {
	case connID = <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnConnect")
	}
	if connID == "" {
		t.Error("OnConnect saw an empty connection id")
	}

	conn.Close()
	select {
	case gone := <-disconnected:
		if gone != connID {
			t.Errorf("OnDisconnect conn id = %q, want %q", gone, connID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnDisconnect")
	}
}

func TestServerConcurrentClients(t *testing.T) {
	var connects atomic.Int32
	f := startServerFixture(t, func(cfg *transport.ServerConfig) {
		cfg.OnConnect = func(_ *transport.ServerConn) { connects.Add(1) }
	})

	const clients = 5
	errCh := make(chan error, clients)
	for i := 0; i < clients; i++ {
		go func() {
			conn, err := tls.Dial("tcp", f.server.Addr().String(), f.clientTLS)
			if err == nil {
				t.Cleanup(func() { conn.Close() })
			}
			errCh <- err
		}()
	}
	for i := 0; i < clients; i++ {
		if err := <-errCh; err != nil {
			t.Fatalf("dial %d error = %v", i, err)
		}
	}

	f.waitForConns(clients)
	if got := connects.Load(); got != clients {
		t.Errorf("OnConnect fired %d times, want %d", got, clients)
	}
}

func TestServerConnectionCap(t *testing.T) {
	f := startServerFixture(t, func(cfg *transport.ServerConfig) {
		cfg.MaxConnections = 2
	})

	f.dial()
	f.waitForConns(1)
	f.dial()
	f.waitForConns(2)

	// The connection over the cap completes its handshake but is
	// closed instead of registered.
	over, err := tls.Dial("tcp", f.server.Addr().String(), f.clientTLS)
	if err != nil {
		return
	}
	defer over.Close()

	over.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := over.Read(buf); err == nil {
		t.Error("connection over the cap stayed open, want server close")
	}
	if got := f.server.ConnectionCount(); got != 2 {
		t.Errorf("ConnectionCount() = %d, want 2", got)
	}
}

func TestServerAnswersPing(t *testing.T) {
	f := startServerFixture(t, nil)

	conn := f.dial()
	framer := transport.NewFramer(conn)

	ping, err := transport.EncodePing(42)
	if err != nil {
		t.Fatalf("EncodePing() error = %v", err)
	}
	if err := framer.WriteFrame(ping); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := framer.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}

	op, seq, err := transport.DecodeControlOp(reply)
	if err != nil {
		t.Fatalf("DecodeControlOp() error = %v", err)
	}
	if op != wire.ControlPong {
		t.Errorf("reply op = %v, want pong", op)
	}
	if seq != 42 {
		t.Errorf("reply sequence = %d, want 42", seq)
	}
}

func TestServerGoAwayOnStop(t *testing.T) {
	f := startServerFixture(t, nil)

	conn := f.dial()
	f.waitForConns(1)

	stopDone := make(chan error, 1)
	go func() { stopDone <- f.server.Stop() }()

	// The client sees a GOAWAY frame before the connection drops.
	framer := transport.NewFramer(conn)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	frame, err := framer.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}

	op, _, err := transport.DecodeControlOp(frame)
	if err != nil {
		t.Fatalf("DecodeControlOp() error = %v", err)
	}
	if op != wire.ControlGoAway {
		t.Errorf("frame op = %v, want goaway", op)
	}

	select {
	case err := <-stopDone:
		if err != nil {
			t.Errorf("Stop() = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Stop() did not return")
	}
}

func TestServerDoubleStart(t *testing.T) {
	f := startServerFixture(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := f.server.Start(ctx); err == nil {
		t.Error("second Start() succeeded, want error")
	}
}

func TestServerStopWithoutStart(t *testing.T) {
	serverCert, serverKey := generateTestCert(t)
	clientCert, _ := generateTestCert(t)

	clientCAs := x509.NewCertPool()
	clientCAs.AddCert(parseCert(t, clientCert))

	server, err := transport.NewServer(transport.ServerConfig{
		TLSConfig: &transport.TLSConfig{
			Certificate: loadCert(serverCert, serverKey),
			ClientCAs:   clientCAs,
		},
		Address: "127.0.0.1:0",
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	if err := server.Stop(); err != nil {
		t.Errorf("Stop() before Start() = %v, want nil", err)
	}
}

// generateTestCert issues a self-signed Ed25519 certificate with a
// 127.0.0.1 SAN, usable as both server and client identity.
func generateTestCert(t *testing.T) ([]byte, ed25519.PrivateKey) {
	t.Helper()

	pub, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, pub, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	return der, key
}

// loadCert pairs an issued DER certificate with its signing key.
func loadCert(der []byte, key ed25519.PrivateKey) tls.Certificate {
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

// parseCert re-parses issued DER, for trust pools and comparisons.
func parseCert(t *testing.T, der []byte) *x509.Certificate {
	t.Helper()
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("ParseCertificate: %v", err)
	}
	return cert
}
