package interactive

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ucm-project/ucm-go/pkg/wire"
)

// defaultConnParam fills the establishment knobs a debugging session
// rarely cares about.
func defaultConnParam(qpn uint32) wire.ConnParam {
	return wire.ConnParam{
		ResponderResources: 1,
		InitiatorDepth:     1,
		FlowControl:        1,
		RetryCount:         7,
		RnrRetryCount:      7,
		QPNum:              qpn,
		Valid:              true,
	}
}

// idAndQPN parses the shared "<id> [qpn]" argument form of connect
// and accept.
func idAndQPN(args []string) (uint64, uint32, error) {
	id, err := parseID(args[0])
	if err != nil {
		return 0, 0, err
	}
	qpn := uint64(1)
	if len(args) > 1 {
		qpn, err = strconv.ParseUint(args[1], 0, 32)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid qpn %q", args[1])
		}
	}
	return id, uint32(qpn), nil
}

// cmdConnect handles the connect command.
func (s *Shell) cmdConnect(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: connect <id> [qpn]")
		return
	}
	c := s.current()
	if c == nil {
		return
	}

	id, qpn, err := idAndQPN(args)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "%v\n", err)
		return
	}

	if err := c.Connect(ctx, id, defaultConnParam(qpn), nil); err != nil {
		s.opFailed(err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Connect sent on context %d (wait for ESTABLISHED)\n", id)
}

// cmdAccept handles the accept command. The id is the context adopted
// by a CONNECT_REQUEST event.
func (s *Shell) cmdAccept(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: accept <id> [qpn]")
		fmt.Fprintln(s.rl.Stdout(), "  The id comes from a CONNECT_REQUEST event.")
		return
	}
	c := s.current()
	if c == nil {
		return
	}

	id, qpn, err := idAndQPN(args)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "%v\n", err)
		return
	}

	uid := s.nextUID()
	param := defaultConnParam(qpn)
	if err := c.Accept(ctx, id, uid, &param, nil); err != nil {
		s.opFailed(err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Accepted on context %d (uid %d)\n", id, uid)
}

// cmdReject handles the reject command.
func (s *Shell) cmdReject(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: reject <id> [reason]")
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
	reason := wire.RejectConsumerDefined
	if len(args) > 1 {
		r, err := strconv.ParseUint(args[1], 0, 8)
		if err != nil {
			fmt.Fprintf(s.rl.Stdout(), "invalid reason %q\n", args[1])
			return
		}
		reason = wire.RejectReason(r)
	}

	if err := c.Reject(ctx, id, reason, nil); err != nil {
		s.opFailed(err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Rejected connection request on context %d\n", id)
}

// cmdDisconnect handles the disc command.
func (s *Shell) cmdDisconnect(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: disc <id>")
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

	if err := c.Disconnect(ctx, id); err != nil {
		s.opFailed(err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Disconnect sent on context %d (wait for DISCONNECTED)\n", id)
}

// cmdQPAttr handles the qpattr command.
func (s *Shell) cmdQPAttr(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: qpattr <id> [qp-state]")
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
	qpState := uint64(0)
	if len(args) > 1 {
		qpState, err = strconv.ParseUint(args[1], 0, 32)
		if err != nil {
			fmt.Fprintf(s.rl.Stdout(), "invalid qp-state %q\n", args[1])
			return
		}
	}

	attr, err := c.InitQPAttr(ctx, id, uint32(qpState))
	if err != nil {
		s.opFailed(err)
		return
	}

	out := s.rl.Stdout()
	fmt.Fprintf(out, "QP attributes for context %d:\n", id)
	fmt.Fprintf(out, "  qp_state:      %d (current %d)\n", attr.QPState, attr.CurQPState)
	fmt.Fprintf(out, "  path_mtu:      %d\n", attr.PathMTU)
	fmt.Fprintf(out, "  dest_qp_num:   %d\n", attr.DestQPNum)
	fmt.Fprintf(out, "  rq_psn/sq_psn: %d/%d\n", attr.RQPSN, attr.SQPSN)
	fmt.Fprintf(out, "  access_flags:  0x%x\n", attr.QPAccessFlags)
	fmt.Fprintf(out, "  pkey_index:    %d  port: %d\n", attr.PkeyIndex, attr.PortNum)
	fmt.Fprintf(out, "  timeout:       %d  retry: %d  rnr_retry: %d\n",
		attr.Timeout, attr.RetryCnt, attr.RnrRetry)
}

// cmdOption handles the opt command.
func (s *Shell) cmdOption(ctx context.Context, args []string) {
	if len(args) < 3 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: opt <id> <name> <value>")
		fmt.Fprintln(s.rl.Stdout(), "  Names: tos <0-255>, reuseaddr <bool>, afonly <bool>, acktimeout <0-31>")
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
	name := strings.ToLower(args[1])
	value := args[2]

	switch name {
	case "tos":
		v, convErr := strconv.ParseUint(value, 0, 8)
		if convErr != nil {
			fmt.Fprintf(s.rl.Stdout(), "invalid tos %q\n", value)
			return
		}
		err = c.SetTOS(ctx, id, uint8(v))

	case "reuseaddr":
		v, convErr := strconv.ParseBool(value)
		if convErr != nil {
			fmt.Fprintf(s.rl.Stdout(), "invalid bool %q\n", value)
			return
		}
		err = c.SetReuseAddr(ctx, id, v)

	case "afonly":
		v, convErr := strconv.ParseBool(value)
		if convErr != nil {
			fmt.Fprintf(s.rl.Stdout(), "invalid bool %q\n", value)
			return
		}
		err = c.SetAFOnly(ctx, id, v)

	case "acktimeout":
		v, convErr := strconv.ParseUint(value, 0, 8)
		if convErr != nil {
			fmt.Fprintf(s.rl.Stdout(), "invalid acktimeout %q\n", value)
			return
		}
		err = c.SetACKTimeout(ctx, id, uint8(v))

	default:
		fmt.Fprintf(s.rl.Stdout(), "Unknown option: %s\n", name)
		return
	}

	if err != nil {
		s.opFailed(err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Option %s set on context %d\n", name, id)
}

// cmdNotify handles the notify command.
func (s *Shell) cmdNotify(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: notify <id> [event-code]")
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
	event := uint64(0)
	if len(args) > 1 {
		event, err = strconv.ParseUint(args[1], 0, 32)
		if err != nil {
			fmt.Fprintf(s.rl.Stdout(), "invalid event-code %q\n", args[1])
			return
		}
	}

	if err := c.Notify(ctx, id, uint32(event)); err != nil {
		s.opFailed(err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Notified context %d (event %d)\n", id, event)
}
