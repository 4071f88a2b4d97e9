// Command ucm-shell is an interactive client for a UCM daemon.
//
// The shell opens one session against a daemon and exposes the full
// command set as interactive commands: context creation, address and
// route resolution, connection establishment, multicast membership,
// and the event channel. A dropped daemon link redials with backoff
// while the prompt stays usable.
//
// Usage:
//
//	ucm-shell [flags]
//
// Flags:
//
//	-addr string        Daemon address (default "localhost:7471")
//	-discover           Find a daemon via mDNS instead of -addr
//	-insecure           Skip TLS certificate verification
//	-ca string          CA certificate file for daemon verification
//	-timeout duration   Per-operation timeout (default 30s)
//	-version            Print version and exit
//
// Examples:
//
//	# Connect to a local daemon started with a self-signed certificate
//	ucm-shell -insecure
//
//	# Find a daemon on the local network
//	ucm-shell -discover -insecure
//
//	# Connect to a remote daemon with a pinned CA
//	ucm-shell -addr rdma-host:7471 -ca /etc/ucm/ca.pem
//
// Type 'help' at the prompt for the interactive command list.
package main

import (
	"context"
	"crypto/x509"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ucm-project/ucm-go/cmd/ucm-shell/interactive"
	"github.com/ucm-project/ucm-go/pkg/discovery"
	"github.com/ucm-project/ucm-go/pkg/transport"
	"github.com/ucm-project/ucm-go/pkg/version"
)

// Options holds the command line flags.
type Options struct {
	Addr     string
	Discover bool
	Insecure bool
	CAFile   string
	Timeout  time.Duration
	Version  bool
}

var opts Options

func init() {
	flag.StringVar(&opts.Addr, "addr", "localhost:7471", "Daemon address")
	flag.BoolVar(&opts.Discover, "discover", false, "Find a daemon via mDNS instead of -addr")
	flag.BoolVar(&opts.Insecure, "insecure", false, "Skip TLS certificate verification")
	flag.StringVar(&opts.CAFile, "ca", "", "CA certificate file for daemon verification")
	flag.DurationVar(&opts.Timeout, "timeout", 30*time.Second, "Per-operation timeout")
	flag.BoolVar(&opts.Version, "version", false, "Print version and exit")
}

func main() {
	flag.Parse()

	if opts.Version {
		fmt.Printf("ucm-shell %s (command set revision %d)\n", version.Current, version.ABIVersion)
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ucm-shell: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	tlsConfig, err := buildTLSConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr := opts.Addr
	if opts.Discover {
		addr, err = discoverDaemon(ctx)
		if err != nil {
			return err
		}
	}

	sh, err := interactive.New(interactive.Config{
		Addr:           addr,
		TLSConfig:      tlsConfig,
		RequestTimeout: opts.Timeout,
	})
	if err != nil {
		return err
	}
	defer sh.Close()

	if err := sh.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	go sh.Run(ctx, cancel)

	// Wait for shutdown signal or shell exit.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		fmt.Fprintln(sh.Stdout(), "\nExiting...")
	case <-ctx.Done():
	}
	return nil
}

// buildTLSConfig assembles the client TLS material from flags.
func buildTLSConfig() (*transport.TLSConfig, error) {
	cfg := &transport.TLSConfig{
		InsecureSkipVerify: opts.Insecure,
	}
	if opts.CAFile != "" {
		pem, err := os.ReadFile(opts.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates in %s", opts.CAFile)
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

// discoverDaemon browses mDNS and returns the address of the first
// daemon found.
func discoverDaemon(ctx context.Context) (string, error) {
	fmt.Println("Discovering daemons...")

	browser, err := discovery.NewMDNSBrowser(discovery.DefaultBrowserConfig())
	if err != nil {
		return "", err
	}
	defer browser.Stop()

	browseCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	results, err := browser.Browse(browseCtx)
	if err != nil {
		return "", err
	}

	for svc := range results {
		addr := daemonAddr(svc)
		fmt.Printf("Found daemon %q (version %s) at %s\n", svc.Instance, svc.Version, addr)
		return addr, nil
	}
	return "", fmt.Errorf("no daemon found on the local network")
}

// daemonAddr picks a dialable address from a discovered daemon,
// preferring resolved addresses over the mDNS hostname.
func daemonAddr(svc *discovery.DaemonService) string {
	port := strconv.Itoa(int(svc.Port))
	if len(svc.Addresses) > 0 {
		return net.JoinHostPort(svc.Addresses[0], port)
	}
	return net.JoinHostPort(strings.TrimSuffix(svc.Host, "."), port)
}
