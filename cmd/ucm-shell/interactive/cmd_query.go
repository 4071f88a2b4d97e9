package interactive

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/ucm-project/ucm-go/pkg/discovery"
	"github.com/ucm-project/ucm-go/pkg/wire"
)

// cmdQuery handles the query command.
func (s *Shell) cmdQuery(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: query route|addr|gid|path <id>")
		return
	}
	c := s.current()
	if c == nil {
		return
	}

	id, err := parseID(args[1])
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "%v\n", err)
		return
	}
	out := s.rl.Stdout()

	switch strings.ToLower(args[0]) {
	case "route":
		r, err := c.QueryRoute(ctx, id)
		if err != nil {
			s.opFailed(err)
			return
		}
		fmt.Fprintf(out, "Route for context %d:\n", id)
		fmt.Fprintf(out, "  src: %s\n", r.Src.String())
		fmt.Fprintf(out, "  dst: %s\n", r.Dst.String())
		if r.NodeGUID != 0 {
			fmt.Fprintf(out, "  device: guid=%016x port=%d", r.NodeGUID, r.PortNum)
			if r.DeviceIndex != nil {
				fmt.Fprintf(out, " index=%d", *r.DeviceIndex)
			}
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "  paths: %d\n", r.NumPaths)
		for i, p := range r.Paths {
			fmt.Fprintf(out, "    %d: %s\n", i, formatPathRecord(p))
		}

	case "addr":
		a, err := c.QueryAddrInfo(ctx, id)
		if err != nil {
			s.opFailed(err)
			return
		}
		printAddrReply(out, id, a)

	case "gid":
		a, err := c.QueryGID(ctx, id)
		if err != nil {
			s.opFailed(err)
			return
		}
		printAddrReply(out, id, a)

	case "path":
		p, err := c.QueryPath(ctx, id)
		if err != nil {
			s.opFailed(err)
			return
		}
		fmt.Fprintf(out, "Paths for context %d (%d total):\n", id, p.NumPaths)
		for i, rec := range p.Paths {
			fmt.Fprintf(out, "  %d: %s\n", i, formatPathRecord(rec))
		}

	default:
		fmt.Fprintf(out, "Unknown query %q (want route, addr, gid or path)\n", args[0])
	}
}

func printAddrReply(out io.Writer, id uint64, a *wire.AddrReply) {
	fmt.Fprintf(out, "Addresses for context %d:\n", id)
	fmt.Fprintf(out, "  src: %s\n", a.Src.String())
	fmt.Fprintf(out, "  dst: %s\n", a.Dst.String())
	if a.NodeGUID != 0 {
		fmt.Fprintf(out, "  device: guid=%016x port=%d pkey=0x%x", a.NodeGUID, a.PortNum, a.Pkey)
		if a.DeviceIndex != nil {
			fmt.Fprintf(out, " index=%d", *a.DeviceIndex)
		}
		fmt.Fprintln(out)
	}
}

// formatPathRecord renders one path record with its flag names.
func formatPathRecord(p wire.PathRecord) string {
	var names []string
	if p.Flags&wire.PathGMP != 0 {
		names = append(names, "gmp")
	}
	if p.Flags&wire.PathPrimary != 0 {
		names = append(names, "primary")
	}
	if p.Flags&wire.PathInbound != 0 {
		names = append(names, "in")
	}
	if p.Flags&wire.PathOutbound != 0 {
		names = append(names, "out")
	}
	flagStr := strings.Join(names, "|")
	if flagStr == "" {
		flagStr = "none"
	}
	return fmt.Sprintf("flags=%s record=%dB", flagStr, len(p.Raw))
}

// cmdInfo handles the info command.
func (s *Shell) cmdInfo() {
	out := s.rl.Stdout()
	fmt.Fprintln(out, "\nSession")
	fmt.Fprintln(out, "-------------------------------------------")
	fmt.Fprintf(out, "  Daemon:         %s\n", s.config.Addr)
	fmt.Fprintf(out, "  Link:           %s\n", s.conn.State())

	s.mu.Lock()
	c := s.client
	s.mu.Unlock()
	if c != nil && s.conn.IsConnected() {
		h := c.Hello()
		fmt.Fprintf(out, "  Session token:  %s\n", c.SessionToken())
		fmt.Fprintf(out, "  Daemon version: %s (revision %d)\n", h.ServerVersion, h.ABIVersion)
		if rtt, ok := c.LinkRTT(); ok {
			fmt.Fprintf(out, "  Link RTT:       %s\n", rtt.Round(time.Microsecond))
		}
	}
	fmt.Fprintln(out)
}

// cmdDiscover handles the discover command.
func (s *Shell) cmdDiscover(ctx context.Context, args []string) {
	secs := 3
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			fmt.Fprintf(s.rl.Stdout(), "invalid duration %q\n", args[0])
			return
		}
		secs = n
	}

	browser, err := discovery.NewMDNSBrowser(discovery.DefaultBrowserConfig())
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Discovery unavailable: %v\n", err)
		return
	}
	defer browser.Stop()

	browseCtx, cancel := context.WithTimeout(ctx, time.Duration(secs)*time.Second)
	defer cancel()

	results, err := browser.Browse(browseCtx)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Discovery error: %v\n", err)
		return
	}

	fmt.Fprintf(s.rl.Stdout(), "Browsing for %ds...\n", secs)
	found := 0
	for svc := range results {
		found++
		fmt.Fprintf(s.rl.Stdout(), "  %s at %s (version %s, revision %d)\n",
			svc.Instance, serviceAddr(svc), svc.Version, svc.ABI)
	}
	if found == 0 {
		fmt.Fprintln(s.rl.Stdout(), "No daemons found")
	}
}

// serviceAddr picks a dialable address from a discovered daemon.
func serviceAddr(svc *discovery.DaemonService) string {
	port := strconv.Itoa(int(svc.Port))
	if len(svc.Addresses) > 0 {
		return net.JoinHostPort(svc.Addresses[0], port)
	}
	return net.JoinHostPort(strings.TrimSuffix(svc.Host, "."), port)
}
