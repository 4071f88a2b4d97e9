// Package interactive provides the interactive command loop for
// ucm-shell.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"

	"github.com/ucm-project/ucm-go/pkg/client"
	"github.com/ucm-project/ucm-go/pkg/connection"
	"github.com/ucm-project/ucm-go/pkg/engine"
	"github.com/ucm-project/ucm-go/pkg/transport"
	"github.com/ucm-project/ucm-go/pkg/wire"
)

// Config provides the shell its daemon address and TLS material.
type Config struct {
	// Addr is the daemon address in host:port form.
	Addr string

	// TLSConfig is the client TLS material.
	TLSConfig *transport.TLSConfig

	// RequestTimeout bounds each operation.
	RequestTimeout time.Duration
}

// Shell handles interactive mode for ucm-shell. The daemon link is
// supervised: when it drops, the shell redials with backoff while the
// prompt stays usable.
type Shell struct {
	config Config
	rl     *readline.Instance
	conn   *connection.Manager

	mu     sync.Mutex
	client *client.Client
	uidSeq uint64
}

// New creates a new interactive shell handler.
func New(config Config) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "ucm> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	s := &Shell{
		config: config,
		rl:     rl,
	}
	s.conn = connection.NewManager(s.dial)
	s.conn.OnConnected(func() {
		fmt.Fprintf(rl.Stdout(), "Connected to %s\n", config.Addr)
	})
	s.conn.OnReconnecting(func(attempt int, delay time.Duration) {
		fmt.Fprintf(rl.Stdout(), "Link down, redial attempt %d in %s\n",
			attempt, delay.Round(time.Millisecond))
	})

	return s, nil
}

// Stdout returns a writer that properly coordinates with the readline
// input. Use this for any output while the shell is running.
func (s *Shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Stderr returns a writer that properly coordinates with the readline
// input.
func (s *Shell) Stderr() io.Writer {
	return s.rl.Stderr()
}

// Connect opens the daemon session and starts the redial supervisor.
func (s *Shell) Connect(ctx context.Context) error {
	if err := s.conn.Connect(ctx); err != nil {
		return err
	}
	s.conn.StartReconnectLoop()
	return nil
}

// Close tears down the redial supervisor and the daemon session.
func (s *Shell) Close() error {
	s.conn.Close()

	s.mu.Lock()
	c := s.client
	s.client = nil
	s.mu.Unlock()
	if c != nil {
		return c.Close()
	}
	return nil
}

// dial opens a fresh session. It backs the connection manager, so it
// also runs on every redial.
func (s *Shell) dial(ctx context.Context) error {
	c, err := client.Dial(ctx, s.config.Addr, client.Config{
		TLSConfig:      s.config.TLSConfig,
		RequestTimeout: s.config.RequestTimeout,
		OnError: func(error) {
			s.conn.NotifyConnectionLost()
		},
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	old := s.client
	s.client = c
	s.mu.Unlock()
	if old != nil {
		old.Close()
	}
	return nil
}

// Run starts the interactive command loop.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.rl.Close()

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		cmd, args := strings.ToLower(fields[0]), fields[1:]

		switch cmd {
		case "help", "?":
			s.printHelp()

		case "create", "c":
			s.cmdCreate(ctx, args)

		case "destroy":
			s.cmdDestroy(ctx, args)

		case "bind", "b":
			s.cmdBind(ctx, args)

		case "resolve":
			s.cmdResolve(ctx, args)

		case "route":
			s.cmdRoute(ctx, args)

		case "query":
			s.cmdQuery(ctx, args)

		case "listen", "l":
			s.cmdListen(ctx, args)

		case "connect", "conn":
			s.cmdConnect(ctx, args)

		case "accept":
			s.cmdAccept(ctx, args)

		case "reject":
			s.cmdReject(ctx, args)

		case "disc", "disconnect":
			s.cmdDisconnect(ctx, args)

		case "qpattr":
			s.cmdQPAttr(ctx, args)

		case "opt":
			s.cmdOption(ctx, args)

		case "notify":
			s.cmdNotify(ctx, args)

		case "getevent", "ev":
			s.cmdGetEvent(ctx, args)

		case "watch":
			s.cmdWatch(ctx, args)

		case "join":
			s.cmdJoin(ctx, args)

		case "leave":
			s.cmdLeave(ctx, args)

		case "migrate":
			s.cmdMigrate(ctx, args)

		case "info", "status":
			s.cmdInfo()

		case "discover":
			s.cmdDiscover(ctx, args)

		case "quit", "exit", "q":
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			cancel()
			return

		default:
			fmt.Fprintf(s.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.rl.Stdout(), `
UCM Shell Commands:
  Contexts:
    create [tcp|udp|ipoib|ib] [rc|ud]  - Create a context (default: tcp rc)
    destroy <id>                       - Destroy a context
    bind <id> <ip:port>                - Bind a context to a local address
    resolve <id> <dst> [src] [ms]      - Start address resolution
    route <id> [ms]                    - Start route resolution
    query route|addr|gid|path <id>     - Query resolved state

  Connections:
    listen <id> [backlog]              - Put a bound context into listen
    connect <id> [qpn]                 - Connect a route-resolved context
    accept <id> [qpn]                  - Accept a connection request
    reject <id> [reason]               - Reject a connection request
    disc <id>                          - Disconnect an established context
    qpattr <id> [qp-state]             - Fetch QP attributes for a state
    opt <id> <name> <value>            - Set option: tos, reuseaddr, afonly, acktimeout
    notify <id> [event-code]           - Report a QP event for the context

  Events:
    getevent [-n]                      - Fetch one event (-n: don't block)
    watch [seconds]                    - Stream events as they arrive (default 10s)

  Multicast:
    join <id> <ip:port> [sendonly]     - Join a multicast group
    leave <group-id>                   - Leave a multicast group

  Session:
    migrate <id> <token>               - Adopt a context from another session
    info                               - Show session and link status
    discover [seconds]                 - List daemons on the local network

  General:
    help                               - Show this help
    quit                               - Exit shell

  Addresses are ip:port; a bare :port binds the IPv4 wildcard.
  Ids accept decimal or 0x-prefixed hex.`)
}

// current returns the live client, or nil after printing why no
// command can run right now.
func (s *Shell) current() *client.Client {
	s.mu.Lock()
	c := s.client
	s.mu.Unlock()

	if c == nil || !s.conn.IsConnected() {
		fmt.Fprintf(s.rl.Stdout(), "Not connected (link %s)\n", s.conn.State())
		return nil
	}
	return c
}

// nextUID hands out session-local client tokens for create, accept,
// and join.
func (s *Shell) nextUID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uidSeq++
	return s.uidSeq
}

// opFailed prints an operation error and reports a dead link to the
// redial supervisor.
func (s *Shell) opFailed(err error) {
	fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
	if errors.Is(err, client.ErrConnectionLost) || errors.Is(err, client.ErrClosed) {
		s.conn.NotifyConnectionLost()
	}
}

// parseID parses a context or group handle. Accepts decimal and
// 0x-prefixed hex.
func parseID(arg string) (uint64, error) {
	id, err := strconv.ParseUint(arg, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}

// parseSockAddr parses ip:port into a wire address. A bare :port
// form stands for the IPv4 wildcard.
func parseSockAddr(arg string) (wire.SockAddr, error) {
	if strings.HasPrefix(arg, ":") {
		arg = "0.0.0.0" + arg
	}
	ap, err := netip.ParseAddrPort(arg)
	if err != nil {
		return wire.SockAddr{}, fmt.Errorf("invalid address %q (want ip:port)", arg)
	}
	return wire.AddrFromNetip(ap), nil
}

func parsePortSpace(arg string) (wire.PortSpace, error) {
	switch strings.ToLower(arg) {
	case "tcp":
		return wire.PortSpaceTCP, nil
	case "udp":
		return wire.PortSpaceUDP, nil
	case "ipoib":
		return wire.PortSpaceIPoIB, nil
	case "ib":
		return wire.PortSpaceIB, nil
	default:
		return 0, fmt.Errorf("unknown port space %q (want tcp, udp, ipoib or ib)", arg)
	}
}

func parseQPType(arg string) (uint8, error) {
	switch strings.ToLower(arg) {
	case "rc":
		return uint8(engine.QPTypeRC), nil
	case "ud":
		return uint8(engine.QPTypeUD), nil
	default:
		return 0, fmt.Errorf("unknown QP type %q (want rc or ud)", arg)
	}
}
