// Command ucm-daemon serves the userspace connection-manager command
// set over TLS.
//
// The daemon runs a simulated fabric engine, a lifecycle manager on
// top of it, and a TLS service that accepts client sessions. It can
// advertise itself over mDNS so shells and tools find it without
// configuration.
//
// Usage:
//
//	ucm-daemon [flags]
//
// Flags:
//
//	-config string        Configuration file path (YAML)
//	-listen string        Listen address (default ":7471")
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-protocol-log string  Write protocol events to this .ulog file
//	-instance string      mDNS instance name (default "ucm-<hostname>")
//	-no-discovery         Disable mDNS advertising
//	-self-signed          Serve with a generated throwaway certificate
//	-version              Print version and exit
//
// Examples:
//
//	# Start with a self-signed certificate on the default port
//	ucm-daemon
//
//	# Start from a config file with protocol logging
//	ucm-daemon -config /etc/ucm/daemon.yaml -protocol-log /var/log/ucm/daemon.ulog
//
//	# Start on another port without advertising
//	ucm-daemon -listen :9471 -no-discovery -log-level debug
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/ucm-project/ucm-go/pkg/config"
	"github.com/ucm-project/ucm-go/pkg/discovery"
	"github.com/ucm-project/ucm-go/pkg/enginesim"
	"github.com/ucm-project/ucm-go/pkg/log"
	"github.com/ucm-project/ucm-go/pkg/manager"
	"github.com/ucm-project/ucm-go/pkg/service"
	"github.com/ucm-project/ucm-go/pkg/version"
)

// Options holds the command line flags.
type Options struct {
	ConfigFile  string
	Listen      string
	LogLevel    string
	ProtocolLog string
	Instance    string
	NoDiscovery bool
	SelfSigned  bool
	Version     bool
}

var opts Options

func init() {
	flag.StringVar(&opts.ConfigFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&opts.Listen, "listen", "", "Listen address (overrides config)")
	flag.StringVar(&opts.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.StringVar(&opts.ProtocolLog, "protocol-log", "", "Write protocol events to this .ulog file")
	flag.StringVar(&opts.Instance, "instance", "", "mDNS instance name")
	flag.BoolVar(&opts.NoDiscovery, "no-discovery", false, "Disable mDNS advertising")
	flag.BoolVar(&opts.SelfSigned, "self-signed", false, "Serve with a generated throwaway certificate even when the config names one")
	flag.BoolVar(&opts.Version, "version", false, "Print version and exit")
}

func main() {
	flag.Parse()

	if opts.Version {
		fmt.Printf("ucm-daemon %s (command set revision %d)\n", version.Current, version.ABIVersion)
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	level, err := cfg.Logging.SlogLevel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(cfg, logger); err != nil {
		logger.Error("daemon failed", "err", err)
		os.Exit(1)
	}
}

// loadConfig builds the effective configuration from defaults, the
// optional config file, and flag overrides, in that order.
func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if opts.ConfigFile != "" {
		var err error
		cfg, err = config.Load(opts.ConfigFile)
		if err != nil {
			return nil, err
		}
	}

	if opts.Listen != "" {
		cfg.Server.Listen = opts.Listen
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if opts.ProtocolLog != "" {
		cfg.Logging.ProtocolLog = opts.ProtocolLog
	}
	if opts.Instance != "" {
		cfg.Discovery.Instance = opts.Instance
	}
	if opts.NoDiscovery {
		cfg.Discovery.Enabled = false
	}
	if opts.SelfSigned {
		cfg.TLS.SelfSigned = true
		cfg.TLS.CertFile = ""
		cfg.TLS.KeyFile = ""
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting ucm-daemon",
		"version", version.Current,
		"revision", version.ABIVersion,
		"listen", cfg.Server.Listen)

	// Protocol event log.
	var plog log.Logger = log.Discard
	if cfg.Logging.ProtocolLog != "" {
		fileLog, err := log.NewFileLogger(cfg.Logging.ProtocolLog)
		if err != nil {
			return fmt.Errorf("failed to open protocol log: %w", err)
		}
		defer fileLog.Close()
		plog = fileLog
		logger.Info("protocol logging enabled", "path", cfg.Logging.ProtocolLog)
	}

	tlsConfig, err := cfg.TLS.Load()
	if err != nil {
		return fmt.Errorf("failed to load TLS material: %w", err)
	}
	if cfg.TLS.SelfSigned && cfg.TLS.CertFile == "" {
		logger.Warn("using a self-signed certificate; clients need -insecure or the daemon certificate as CA")
	}

	latency, err := cfg.Engine.LatencyDuration()
	if err != nil {
		return err
	}
	fabric, err := enginesim.New(enginesim.Config{
		Devices: cfg.Engine.Devices,
		Latency: latency,
	})
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	defer fabric.Close()

	mgr, err := manager.New(manager.Config{
		Engine:      fabric,
		MaxContexts: cfg.Limits.MaxContexts,
		MaxGroups:   cfg.Limits.MaxGroups,
		MaxBacklog:  cfg.Limits.MaxBacklog,
		Logger:      plog,
		Slog:        logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create manager: %w", err)
	}
	defer mgr.Close()

	svc, err := service.New(service.Config{
		Manager:           mgr,
		ListenAddress:     cfg.Server.Listen,
		TLSConfig:         tlsConfig,
		RequireClientCert: cfg.TLS.RequireClientCert,
		MaxConnections:    cfg.Limits.MaxConnections,
		MaxMessageSize:    cfg.Limits.MaxMessageSize,
		Logger:            logger,
		ProtocolLogger:    plog,
	})
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	logger.Info("service started", "addr", svc.Addr().String())

	if cfg.Discovery.Enabled {
		ann := startAdvertising(ctx, cfg, svc.Addr(), logger)
		if ann != nil {
			defer ann.Stop()
		}
	}

	// Wait for shutdown signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	if err := svc.Stop(); err != nil {
		logger.Error("error stopping service", "err", err)
	}
	return nil
}

// startAdvertising keeps the daemon's mDNS record registered. A
// failed first registration is logged and retried in the background,
// so a slow mDNS stack at boot only delays discovery.
func startAdvertising(ctx context.Context, cfg *config.Config, addr net.Addr, logger *slog.Logger) *discovery.Announcer {
	adv, err := discovery.NewMDNSAdvertiser(discovery.AdvertiserConfig{
		Interface: cfg.Discovery.Interface,
	})
	if err != nil {
		logger.Warn("mDNS advertiser unavailable", "err", err)
		return nil
	}

	ann := discovery.NewAnnouncer(adv, discovery.AnnouncerConfig{})
	info := &discovery.DaemonInfo{
		Instance: instanceName(cfg),
		Port:     listenPort(addr),
		ABI:      version.ABIVersion,
		Version:  version.Current,
	}
	if err := ann.Start(ctx, info); err != nil {
		logger.Warn("mDNS registration failed, retrying in background", "err", err)
		return ann
	}

	logger.Info("advertising daemon", "instance", info.Instance, "port", info.Port)
	return ann
}

// instanceName returns the configured mDNS instance name, or one
// derived from the hostname.
func instanceName(cfg *config.Config) string {
	if cfg.Discovery.Instance != "" {
		return cfg.Discovery.Instance
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "ucm-daemon"
	}
	return "ucm-" + host
}

// listenPort extracts the bound TCP port from the service address.
func listenPort(addr net.Addr) uint16 {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return uint16(tcp.Port)
	}
	return discovery.DefaultPort
}
