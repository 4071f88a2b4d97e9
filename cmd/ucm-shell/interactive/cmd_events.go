package interactive

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ucm-project/ucm-go/pkg/client"
	"github.com/ucm-project/ucm-go/pkg/engine"
	"github.com/ucm-project/ucm-go/pkg/wire"
)

// formatEvent renders one event reply on a single line.
func formatEvent(ev *wire.EventReply) string {
	var b strings.Builder
	kind := engine.EventKind(ev.Event)
	fmt.Fprintf(&b, "[%s] ctx=%d uid=%d", kind.String(), ev.ID, ev.UID)
	if ev.Status != 0 {
		fmt.Fprintf(&b, " status=%d", ev.Status)
	}
	if ev.Conn != nil {
		fmt.Fprintf(&b, " qpn=%d", ev.Conn.QPNum)
		if len(ev.Conn.PrivateData) > 0 {
			fmt.Fprintf(&b, " private=%dB", len(ev.Conn.PrivateData))
		}
	}
	if ev.UD != nil {
		fmt.Fprintf(&b, " ud_qpn=%d qkey=0x%x", ev.UD.QPNum, ev.UD.QKey)
	}
	if ev.ECE != nil {
		fmt.Fprintf(&b, " ece_vendor=0x%x", ev.ECE.VendorID)
	}
	if kind == engine.EventConnectRequest {
		b.WriteString(" (new context; accept or reject it)")
	}
	return b.String()
}

// cmdGetEvent handles the getevent command.
func (s *Shell) cmdGetEvent(ctx context.Context, args []string) {
	c := s.current()
	if c == nil {
		return
	}
	nonblock := len(args) > 0 && (args[0] == "-n" || args[0] == "nowait")

	ev, err := c.GetEvent(ctx, nonblock)
	if err != nil {
		switch {
		case client.IsStatus(err, wire.StatusWouldBlock):
			fmt.Fprintln(s.rl.Stdout(), "No events pending")
		case errors.Is(err, context.DeadlineExceeded):
			fmt.Fprintln(s.rl.Stdout(), "No event arrived before the timeout")
		default:
			s.opFailed(err)
		}
		return
	}
	fmt.Fprintln(s.rl.Stdout(), formatEvent(ev))
}

// cmdWatch streams events until the duration elapses.
func (s *Shell) cmdWatch(ctx context.Context, args []string) {
	c := s.current()
	if c == nil {
		return
	}

	secs := 10
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			fmt.Fprintf(s.rl.Stdout(), "invalid duration %q\n", args[0])
			return
		}
		secs = n
	}
	fmt.Fprintf(s.rl.Stdout(), "Watching events for %ds...\n", secs)

	deadline := time.NewTimer(time.Duration(secs) * time.Second)
	defer deadline.Stop()

	count := s.drainEvents(ctx, c)
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			fmt.Fprintf(s.rl.Stdout(), "Watch done (%d events)\n", count)
			return
		case <-c.Ready():
			count += s.drainEvents(ctx, c)
		}
	}
}

// drainEvents fetches queued events without blocking. Ready tokens
// are conflated, so one token may stand for several events.
func (s *Shell) drainEvents(ctx context.Context, c *client.Client) int {
	count := 0
	for {
		ev, err := c.GetEvent(ctx, true)
		if err != nil {
			if !client.IsStatus(err, wire.StatusWouldBlock) {
				s.opFailed(err)
			}
			return count
		}
		fmt.Fprintln(s.rl.Stdout(), formatEvent(ev))
		count++
	}
}

// cmdJoin handles the join command.
func (s *Shell) cmdJoin(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: join <id> <ip:port> [sendonly]")
		fmt.Fprintln(s.rl.Stdout(), "  Example: join 1 239.0.0.1:7000")
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
	flags := wire.JoinFlagFullMember
	if len(args) > 2 && strings.EqualFold(args[2], "sendonly") {
		flags = wire.JoinFlagSendOnlyFullMember
	}

	uid := s.nextUID()
	groupID, err := c.JoinMulticast(ctx, id, uid, addr, flags)
	if err != nil {
		s.opFailed(err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Join started, group %d on context %d (wait for MULTICAST_JOIN)\n", groupID, id)
}

// cmdLeave handles the leave command.
func (s *Shell) cmdLeave(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: leave <group-id>")
		return
	}
	c := s.current()
	if c == nil {
		return
	}

	groupID, err := parseID(args[0])
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "%v\n", err)
		return
	}

	dropped, err := c.LeaveMulticast(ctx, groupID)
	if err != nil {
		s.opFailed(err)
		return
	}
	if dropped > 0 {
		fmt.Fprintf(s.rl.Stdout(), "Left group %d (%d undelivered events dropped)\n", groupID, dropped)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Left group %d\n", groupID)
}
