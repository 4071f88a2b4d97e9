package transport

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"time"

	"github.com/ucm-project/ucm-go/pkg/version"
)

const (
	// ALPNProtocol is the identifier negotiated for the current
	// transport major version.
	ALPNProtocol = "ucm/1"

	// DefaultPort is the default UCM daemon port.
	DefaultPort = 7471
)

// TLSConfig holds configuration for UCM TLS connections.
type TLSConfig struct {
	// Certificate is the TLS certificate for this endpoint.
	// Required for servers; optional for clients.
	Certificate tls.Certificate

	// RootCAs is the pool of trusted CA certificates clients use to
	// verify the daemon.
	RootCAs *x509.CertPool

	// ClientCAs is the pool of CA certificates the daemon uses to
	// verify client certificates, when it requires them.
	ClientCAs *x509.CertPool

	// ServerName is the expected server name for client connections.
	ServerName string

	// InsecureSkipVerify disables certificate verification. Meant for
	// development setups where the daemon runs with a self-signed
	// certificate.
	InsecureSkipVerify bool
}

// baseTLSConfig carries the settings both endpoints share: TLS 1.3
// only, the supported ALPN set, modern curves, no session resumption.
func baseTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:             tls.VersionTLS13,
		MaxVersion:             tls.VersionTLS13,
		NextProtos:             version.SupportedALPNProtocols(),
		CurvePreferences:       []tls.CurveID{tls.X25519, tls.CurveP256},
		SessionTicketsDisabled: true,
	}
}

// NewServerTLSConfig creates a TLS configuration for the daemon.
func NewServerTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("TLSConfig is required")
	}
	if len(cfg.Certificate.Certificate) == 0 {
		return nil, fmt.Errorf("server certificate is required")
	}

	tlsConfig := baseTLSConfig()
	tlsConfig.Certificates = []tls.Certificate{cfg.Certificate}
	tlsConfig.ClientCAs = cfg.ClientCAs

	// Client certificates stay optional at this layer; the server
	// flips this to RequireAndVerifyClientCert when configured to.
	tlsConfig.ClientAuth = tls.NoClientCert

	return tlsConfig, nil
}

// NewClientTLSConfig creates a TLS configuration for a client connecting
// to the daemon.
func NewClientTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("TLSConfig is required")
	}
	if cfg.RootCAs == nil && !cfg.InsecureSkipVerify {
		return nil, fmt.Errorf("RootCAs or InsecureSkipVerify is required")
	}

	tlsConfig := baseTLSConfig()
	tlsConfig.RootCAs = cfg.RootCAs
	tlsConfig.ServerName = cfg.ServerName
	tlsConfig.InsecureSkipVerify = cfg.InsecureSkipVerify
	if len(cfg.Certificate.Certificate) > 0 {
		tlsConfig.Certificates = []tls.Certificate{cfg.Certificate}
	}

	return tlsConfig, nil
}

// GenerateSelfSigned creates a self-signed certificate for development
// mode. The certificate covers localhost and the loopback addresses;
// clients are expected to connect with InsecureSkipVerify.
func GenerateSelfSigned() (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("generate serial: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   "UCM Daemon (Development)",
			Organization: []string{"UCM"},
		},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("create certificate: %w", err)
	}

	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  key,
	}, nil
}

// VerifyALPN checks that the peer agreed on a protocol revision this
// build speaks. A TLS 1.3 handshake aborts on ALPN mismatch, so in
// practice this catches peers that skipped ALPN entirely.
func VerifyALPN(state tls.ConnectionState) error {
	if state.NegotiatedProtocol != ALPNProtocol {
		return fmt.Errorf("ALPN protocol %q is not %q", state.NegotiatedProtocol, ALPNProtocol)
	}
	return nil
}

// VerifyConnection rejects handshakes that fell below TLS 1.3 or
// negotiated the wrong protocol. Both endpoints run it after every
// handshake, before any frame moves.
func VerifyConnection(state tls.ConnectionState) error {
	if state.Version != tls.VersionTLS13 {
		return fmt.Errorf("TLS version %x is not TLS 1.3 (0x0304)", state.Version)
	}
	return VerifyALPN(state)
}
