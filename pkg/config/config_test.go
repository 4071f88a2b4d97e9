package config

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ucm-project/ucm-go/pkg/transport"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Listen != ":7471" {
		t.Errorf("Server.Listen = %q, want %q", cfg.Server.Listen, ":7471")
	}
	if !cfg.TLS.SelfSigned {
		t.Error("TLS.SelfSigned = false, want true")
	}
	if !cfg.Discovery.Enabled {
		t.Error("Discovery.Enabled = false, want true")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	level, err := cfg.Logging.SlogLevel()
	if err != nil {
		t.Fatalf("SlogLevel() error = %v", err)
	}
	if level != slog.LevelInfo {
		t.Errorf("SlogLevel() = %v, want %v", level, slog.LevelInfo)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	yaml := `
server:
  listen: "127.0.0.1:9471"
tls:
  self_signed: true
limits:
  max_connections: 16
  max_contexts: 128
  max_groups: 64
  max_backlog: 32
engine:
  devices:
    - name: sim0
    - name: sim1
      guid: 0x2c9030011223344
  latency: 5ms
discovery:
  enabled: false
  instance: ucm-lab1
logging:
  level: debug
  protocol_log: /tmp/daemon.ulog
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Listen != "127.0.0.1:9471" {
		t.Errorf("Server.Listen = %q, want 127.0.0.1:9471", cfg.Server.Listen)
	}
	if cfg.Limits.MaxConnections != 16 {
		t.Errorf("Limits.MaxConnections = %d, want 16", cfg.Limits.MaxConnections)
	}
	if cfg.Limits.MaxContexts != 128 {
		t.Errorf("Limits.MaxContexts = %d, want 128", cfg.Limits.MaxContexts)
	}
	if len(cfg.Engine.Devices) != 2 {
		t.Fatalf("len(Engine.Devices) = %d, want 2", len(cfg.Engine.Devices))
	}
	if cfg.Engine.Devices[1].Name != "sim1" {
		t.Errorf("Devices[1].Name = %q, want sim1", cfg.Engine.Devices[1].Name)
	}
	if cfg.Engine.Devices[1].GUID == 0 {
		t.Error("Devices[1].GUID = 0, want nonzero")
	}

	latency, err := cfg.Engine.LatencyDuration()
	if err != nil {
		t.Fatalf("LatencyDuration() error = %v", err)
	}
	if latency != 5*time.Millisecond {
		t.Errorf("latency = %v, want 5ms", latency)
	}

	if cfg.Discovery.Enabled {
		t.Error("Discovery.Enabled = true, want false")
	}
	if cfg.Discovery.Instance != "ucm-lab1" {
		t.Errorf("Discovery.Instance = %q, want ucm-lab1", cfg.Discovery.Instance)
	}

	level, err := cfg.Logging.SlogLevel()
	if err != nil {
		t.Fatalf("SlogLevel() error = %v", err)
	}
	if level != slog.LevelDebug {
		t.Errorf("SlogLevel() = %v, want debug", level)
	}
	if cfg.Logging.ProtocolLog != "/tmp/daemon.ulog" {
		t.Errorf("ProtocolLog = %q", cfg.Logging.ProtocolLog)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	yaml := `
limits:
  max_backlog: 8
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Unset sections keep defaults.
	if cfg.Server.Listen != ":7471" {
		t.Errorf("Server.Listen = %q, want default :7471", cfg.Server.Listen)
	}
	if !cfg.TLS.SelfSigned {
		t.Error("TLS.SelfSigned = false, want default true")
	}
	if cfg.Limits.MaxBacklog != 8 {
		t.Errorf("Limits.MaxBacklog = %d, want 8", cfg.Limits.MaxBacklog)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("Load() on missing file should return error")
	}
}

func TestLoadBadYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("server: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(cfgPath); err == nil {
		t.Fatal("Load() on bad YAML should return error")
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "NoListen",
			mutate: func(c *Config) { c.Server.Listen = "" },
			want:   "listen",
		},
		{
			name:   "CertWithoutKey",
			mutate: func(c *Config) { c.TLS.CertFile = "cert.pem" },
			want:   "together",
		},
		{
			name: "NoTLSMaterial",
			mutate: func(c *Config) {
				c.TLS.SelfSigned = false
			},
			want: "self_signed",
		},
		{
			name: "ClientCertWithoutCA",
			mutate: func(c *Config) {
				c.TLS.RequireClientCert = true
			},
			want: "client_ca_file",
		},
		{
			name:   "NegativeLimit",
			mutate: func(c *Config) { c.Limits.MaxContexts = -1 },
			want:   "negative",
		},
		{
			name:   "BadLatency",
			mutate: func(c *Config) { c.Engine.Latency = "fast" },
			want:   "latency",
		},
		{
			name:   "NegativeLatency",
			mutate: func(c *Config) { c.Engine.Latency = "-5ms" },
			want:   "latency",
		},
		{
			name:   "BadLevel",
			mutate: func(c *Config) { c.Logging.Level = "verbose" },
			want:   "level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
	}

	for _, tt := range tests {
		lc := LoggingConfig{Level: tt.level}
		got, err := lc.SlogLevel()
		if err != nil {
			t.Errorf("SlogLevel(%q) error = %v", tt.level, err)
			continue
		}
		if got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}

	lc := LoggingConfig{Level: "verbose"}
	if _, err := lc.SlogLevel(); err == nil {
		t.Error("SlogLevel(verbose) = nil error, want error")
	}
}

func TestTLSLoadSelfSigned(t *testing.T) {
	tc := TLSConfig{SelfSigned: true}

	got, err := tc.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got.Certificate.Certificate) == 0 {
		t.Error("Load() returned empty certificate")
	}
	if got.ClientCAs != nil {
		t.Error("ClientCAs should be nil without client_ca_file")
	}
}

func TestTLSLoadFromFiles(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")

	cert, err := transport.GenerateSelfSigned()
	if err != nil {
		t.Fatal(err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Certificate[0]})
	keyDER, err := x509.MarshalECPrivateKey(cert.PrivateKey.(*ecdsa.PrivateKey))
	if err != nil {
		t.Fatal(err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	if err := os.WriteFile(certPath, certPEM, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		t.Fatal(err)
	}

	tc := TLSConfig{CertFile: certPath, KeyFile: keyPath}
	got, err := tc.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got.Certificate.Certificate) == 0 {
		t.Error("Load() returned empty certificate")
	}

	// The same PEM serves as a client CA pool.
	caPath := filepath.Join(dir, "ca.pem")
	if err := os.WriteFile(caPath, certPEM, 0o644); err != nil {
		t.Fatal(err)
	}
	tc = TLSConfig{SelfSigned: true, ClientCAFile: caPath, RequireClientCert: true}
	got, err = tc.Load()
	if err != nil {
		t.Fatalf("Load() with CA error = %v", err)
	}
	if got.ClientCAs == nil {
		t.Error("ClientCAs = nil, want pool")
	}
}

func TestTLSLoadMissingFiles(t *testing.T) {
	tc := TLSConfig{CertFile: "/nonexistent/cert.pem", KeyFile: "/nonexistent/key.pem"}
	if _, err := tc.Load(); err == nil {
		t.Error("Load() with missing cert should return error")
	}

	tc = TLSConfig{SelfSigned: true, ClientCAFile: "/nonexistent/ca.pem"}
	if _, err := tc.Load(); err == nil {
		t.Error("Load() with missing CA file should return error")
	}
}
