// Package config loads and validates the daemon's YAML configuration.
package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ucm-project/ucm-go/pkg/enginesim"
	"github.com/ucm-project/ucm-go/pkg/transport"
)

// Config is the daemon configuration. Zero limits select the built-in
// defaults of the package that owns the knob.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	TLS       TLSConfig       `yaml:"tls"`
	Limits    LimitsConfig    `yaml:"limits"`
	Engine    EngineConfig    `yaml:"engine"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig configures the listener.
type ServerConfig struct {
	// Listen is the TCP listen address.
	Listen string `yaml:"listen"`
}

// TLSConfig names the certificate material. Either cert_file/key_file
// or self_signed must be set.
type TLSConfig struct {
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
	SelfSigned bool   `yaml:"self_signed"`

	// ClientCAFile holds the CA pool for mutual TLS.
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

// LimitsConfig caps client-visible resources.
type LimitsConfig struct {
	MaxConnections int    `yaml:"max_connections"`
	MaxContexts    int    `yaml:"max_contexts"`
	MaxGroups      int    `yaml:"max_groups"`
	MaxBacklog     int    `yaml:"max_backlog"`
	MaxMessageSize uint32 `yaml:"max_message_size"`
}

// EngineConfig configures the simulated fabric.
type EngineConfig struct {
	// Devices populates the fabric. Empty gets the single default
	// device.
	Devices []enginesim.DeviceConfig `yaml:"devices"`

	// Latency delays event delivery, as a Go duration string
	// ("5ms"). Empty means immediate delivery.
	Latency string `yaml:"latency"`
}

// DiscoveryConfig configures mDNS advertising.
type DiscoveryConfig struct {
	Enabled bool `yaml:"enabled"`

	// Instance is the advertised instance name. Empty derives one
	// from the hostname.
	Instance string `yaml:"instance"`

	// Interface restricts advertising to one network interface.
	Interface string `yaml:"interface"`
}

// LoggingConfig configures operational and protocol logging.
type LoggingConfig struct {
	// Level is the slog level: debug, info, warn, or error.
	Level string `yaml:"level"`

	// ProtocolLog is the path of the binary protocol log. Empty
	// disables protocol logging.
	ProtocolLog string `yaml:"protocol_log"`
}

// DefaultConfig returns a configuration that brings a daemon up
// without any file: self-signed certificate, default fabric,
// discovery on.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen: fmt.Sprintf(":%d", transport.DefaultPort),
		},
		TLS: TLSConfig{
			SelfSigned: true,
		},
		Discovery: DiscoveryConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML configuration file. Unset fields keep their
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server: listen address is required")
	}

	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return fmt.Errorf("tls: cert_file and key_file must be set together")
	}
	if c.TLS.CertFile == "" && !c.TLS.SelfSigned {
		return fmt.Errorf("tls: cert_file/key_file or self_signed is required")
	}
	if c.TLS.RequireClientCert && c.TLS.ClientCAFile == "" {
		return fmt.Errorf("tls: require_client_cert needs client_ca_file")
	}

	if c.Limits.MaxConnections < 0 || c.Limits.MaxContexts < 0 ||
		c.Limits.MaxGroups < 0 || c.Limits.MaxBacklog < 0 {
		return fmt.Errorf("limits: negative values are not allowed")
	}

	if _, err := c.Engine.LatencyDuration(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	if _, err := c.Logging.SlogLevel(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	return nil
}

// LatencyDuration parses the latency string. Empty means zero.
func (e *EngineConfig) LatencyDuration() (time.Duration, error) {
	if e.Latency == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(e.Latency)
	if err != nil {
		return 0, fmt.Errorf("invalid latency %q", e.Latency)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid latency %q", e.Latency)
	}
	return d, nil
}

// SlogLevel parses the log level. Empty means info.
func (l *LoggingConfig) SlogLevel() (slog.Level, error) {
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", l.Level)
	}
	return lv, nil
}

// Load resolves the certificate material named by the configuration.
func (t *TLSConfig) Load() (*transport.TLSConfig, error) {
	tlsCfg := &transport.TLSConfig{}

	if t.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load certificate: %w", err)
		}
		tlsCfg.Certificate = cert
	} else {
		cert, err := transport.GenerateSelfSigned()
		if err != nil {
			return nil, fmt.Errorf("failed to generate certificate: %w", err)
		}
		tlsCfg.Certificate = cert
	}

	if t.ClientCAFile != "" {
		pemData, err := os.ReadFile(t.ClientCAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read client CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pemData) {
			return nil, fmt.Errorf("no certificates in %s", t.ClientCAFile)
		}
		tlsCfg.ClientCAs = pool
	}

	return tlsCfg, nil
}
