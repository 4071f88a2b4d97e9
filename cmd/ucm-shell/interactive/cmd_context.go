package interactive

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ucm-project/ucm-go/pkg/wire"
)

// defaultResolveTimeoutMs is used when a resolve command names no
// timeout.
const defaultResolveTimeoutMs = 2000

// cmdCreate handles the create command.
func (s *Shell) cmdCreate(ctx context.Context, args []string) {
	c := s.current()
	if c == nil {
		return
	}

	space := wire.PortSpaceTCP
	qpType, _ := parseQPType("rc")
	var err error
	if len(args) > 0 {
		space, err = parsePortSpace(args[0])
		if err != nil {
			fmt.Fprintf(s.rl.Stdout(), "%v\n", err)
			return
		}
	}
	if len(args) > 1 {
		qpType, err = parseQPType(args[1])
		if err != nil {
			fmt.Fprintf(s.rl.Stdout(), "%v\n", err)
			return
		}
	}

	uid := s.nextUID()
	id, err := c.CreateID(ctx, uid, space, qpType)
	if err != nil {
		s.opFailed(err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Created context %d (uid %d)\n", id, uid)
}

// cmdDestroy handles the destroy command.
func (s *Shell) cmdDestroy(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: destroy <id>")
		return
	}
	c := s.current()
	if c == nil {
		return
	}

	id, err := parseID(args[0])
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "%v\n", err)
		return
	}

	dropped, err := c.DestroyID(ctx, id)
	if err != nil {
		s.opFailed(err)
		return
	}
	if dropped > 0 {
		fmt.Fprintf(s.rl.Stdout(), "Destroyed context %d (%d undelivered events dropped)\n", id, dropped)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Destroyed context %d\n", id)
}

// cmdBind handles the bind command.
func (s *Shell) cmdBind(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: bind <id> <ip:port>")
		fmt.Fprintln(s.rl.Stdout(), "  Example: bind 1 :7000")
		return
	}
	c := s.current()
	if c == nil {
		return
	}

	id, err := parseID(args[0])
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "%v\n", err)
		return
	}
	addr, err := parseSockAddr(args[1])
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "%v\n", err)
		return
	}

	if err := c.Bind(ctx, id, addr); err != nil {
		s.opFailed(err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Bound context %d to %s\n", id, addr.String())
}

// cmdResolve handles the resolve command. The optional third argument
// is a source address when it looks like one, otherwise the timeout
// in milliseconds.
func (s *Shell) cmdResolve(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: resolve <id> <dst> [src] [timeout-ms]")
		fmt.Fprintln(s.rl.Stdout(), "  Example: resolve 1 10.0.0.9:7000")
		return
	}
	c := s.current()
	if c == nil {
		return
	}

	id, err := parseID(args[0])
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "%v\n", err)
		return
	}
	dst, err := parseSockAddr(args[1])
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "%v\n", err)
		return
	}

	var src wire.SockAddr
	timeoutMs := uint64(defaultResolveTimeoutMs)
	rest := args[2:]
	if len(rest) > 0 {
		if ms, numErr := strconv.ParseUint(rest[0], 10, 32); numErr == nil {
			timeoutMs = ms
		} else {
			src, err = parseSockAddr(rest[0])
			if err != nil {
				fmt.Fprintf(s.rl.Stdout(), "%v\n", err)
				return
			}
			rest = rest[1:]
			if len(rest) > 0 {
				timeoutMs, err = strconv.ParseUint(rest[0], 10, 32)
				if err != nil {
					fmt.Fprintf(s.rl.Stdout(), "invalid timeout %q\n", rest[0])
					return
				}
			}
		}
	}

	if err := c.ResolveAddr(ctx, id, src, dst, uint32(timeoutMs)); err != nil {
		s.opFailed(err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Resolving %s on context %d (wait for ADDR_RESOLVED)\n", dst.String(), id)
}

// cmdRoute handles the route command.
func (s *Shell) cmdRoute(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: route <id> [timeout-ms]")
		return
	}
	c := s.current()
	if c == nil {
		return
	}

	id, err := parseID(args[0])
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "%v\n", err)
		return
	}
	timeoutMs := uint64(defaultResolveTimeoutMs)
	if len(args) > 1 {
		timeoutMs, err = strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			fmt.Fprintf(s.rl.Stdout(), "invalid timeout %q\n", args[1])
			return
		}
	}

	if err := c.ResolveRoute(ctx, id, uint32(timeoutMs)); err != nil {
		s.opFailed(err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Resolving route on context %d (wait for ROUTE_RESOLVED)\n", id)
}

// cmdListen handles the listen command.
func (s *Shell) cmdListen(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: listen <id> [backlog]")
		return
	}
	c := s.current()
	if c == nil {
		return
	}

	id, err := parseID(args[0])
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "%v\n", err)
		return
	}
	backlog := uint64(128)
	if len(args) > 1 {
		backlog, err = strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			fmt.Fprintf(s.rl.Stdout(), "invalid backlog %q\n", args[1])
			return
		}
	}

	if err := c.Listen(ctx, id, uint32(backlog)); err != nil {
		s.opFailed(err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Context %d listening (backlog %d)\n", id, backlog)
}

// cmdMigrate handles the migrate command.
func (s *Shell) cmdMigrate(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: migrate <id> <session-token>")
		fmt.Fprintln(s.rl.Stdout(), "  The token is shown by 'info' in the session that owns the context.")
		return
	}
	c := s.current()
	if c == nil {
		return
	}

	id, err := parseID(args[0])
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "%v\n", err)
		return
	}

	moved, err := c.MigrateID(ctx, id, args[1])
	if err != nil {
		s.opFailed(err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Migrated context %d here (%d queued events moved)\n", id, moved)
}
