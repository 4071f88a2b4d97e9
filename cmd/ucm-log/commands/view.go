package commands

import (
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/ucm-project/ucm-go/pkg/engine"
	"github.com/ucm-project/ucm-go/pkg/log"
)

// RunView renders the matching events of a log file in human-readable
// form, one block per event.
func RunView(path string, spec FilterSpec, w io.Writer) error {
	reader, err := openFiltered(path, spec)
	if err != nil {
		return err
	}
	defer reader.Close()

	return eachEvent(reader, func(event log.Event) error {
		renderEvent(w, event)
		return nil
	})
}

// renderEvent prints a header line, indented payload details, and a
// blank separator.
func renderEvent(w io.Writer, event log.Event) {
	fmt.Fprintf(w, "%s [sess:%s] %-3s %s %s\n",
		event.Timestamp.UTC().Format(stampLayout),
		shortToken(event.SessionID),
		event.Direction,
		headerLayer(event),
		payloadLabel(event),
	)

	switch {
	case event.Frame != nil:
		renderFrame(w, event.Frame)
	case event.Command != nil:
		renderCommand(w, event.Command)
	case event.Reply != nil:
		renderReply(w, event.Reply)
	case event.Ingest != nil:
		renderIngest(w, event.Ingest)
	case event.StateChange != nil:
		renderStateChange(w, event.StateChange)
	case event.ControlMsg != nil && event.ControlMsg.Sequence != nil:
		fmt.Fprintf(w, "  Sequence: %d\n", *event.ControlMsg.Sequence)
	case event.Error != nil:
		renderError(w, event.Error)
	}

	fmt.Fprintln(w)
}

// headerLayer collapses control traffic under a CTRL marker; every
// other event shows its capture layer.
func headerLayer(event log.Event) string {
	if event.Category == log.CategoryControl {
		return "CTRL"
	}
	return event.Layer.String()
}

func payloadLabel(event log.Event) string {
	switch {
	case event.Frame != nil:
		return "Frame"
	case event.Command != nil:
		return "Command"
	case event.Reply != nil:
		return "Reply"
	case event.Ingest != nil:
		return "Event"
	case event.StateChange != nil:
		return "State"
	case event.ControlMsg != nil:
		return event.ControlMsg.Type.String()
	case event.Error != nil:
		return "Error"
	}
	return "Unknown"
}

// shortToken abbreviates a session token to its first 8 characters.
func shortToken(token string) string {
	if len(token) > 8 {
		return token[:8]
	}
	return token
}

func renderFrame(w io.Writer, frame *log.FrameEvent) {
	fmt.Fprintf(w, "  Size: %d bytes\n", frame.Size)
	if len(frame.Data) == 0 {
		return
	}
	suffix := ""
	if frame.Truncated {
		suffix = " (truncated)"
	}
	fmt.Fprintf(w, "  Data: %s%s\n", hex.EncodeToString(frame.Data), suffix)
}

func renderCommand(w io.Writer, cmd *log.CommandEvent) {
	fmt.Fprintf(w, "  Op: %s (%d)\n", cmd.Op, uint32(cmd.Op))
	fmt.Fprintf(w, "  MessageID: %d\n", cmd.MessageID)
	if cmd.ContextID != nil {
		fmt.Fprintf(w, "  Context: %d\n", *cmd.ContextID)
	}
	if cmd.In > 0 || cmd.Out > 0 {
		fmt.Fprintf(w, "  Declared: in=%d out=%d\n", cmd.In, cmd.Out)
	}
}

func renderReply(w io.Writer, reply *log.ReplyEvent) {
	fmt.Fprintf(w, "  Op: %s (%d)\n", reply.Op, uint32(reply.Op))
	fmt.Fprintf(w, "  MessageID: %d\n", reply.MessageID)
	fmt.Fprintf(w, "  Status: %s (%d)\n", reply.Status, int32(reply.Status))
	if reply.Consumed > 0 {
		fmt.Fprintf(w, "  Consumed: %d\n", reply.Consumed)
	}
	if reply.ProcessingTime != nil {
		fmt.Fprintf(w, "  Duration: %s\n", formatDuration(*reply.ProcessingTime))
	}
}

func renderIngest(w io.Writer, ing *log.IngestEvent) {
	fmt.Fprintf(w, "  Kind: %s (%d)\n", engine.EventKind(ing.Kind), ing.Kind)
	if ing.Status != 0 {
		fmt.Fprintf(w, "  Status: %d\n", ing.Status)
	}
	fmt.Fprintf(w, "  Context: %d\n", ing.ContextID)
	if ing.GroupID != nil {
		fmt.Fprintf(w, "  Group: %d\n", *ing.GroupID)
	}
	fmt.Fprintf(w, "  Disposition: %s\n", engine.Disposition(ing.Disposition))
}

func renderStateChange(w io.Writer, sc *log.StateChangeEvent) {
	if sc.EntityID != "" {
		fmt.Fprintf(w, "  Entity: %s %s\n", sc.Entity, sc.EntityID)
	} else {
		fmt.Fprintf(w, "  Entity: %s\n", sc.Entity)
	}
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func renderError(w io.Writer, e *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", e.Layer)
	fmt.Fprintf(w, "  Message: %s\n", e.Message)
	if e.Code != nil {
		fmt.Fprintf(w, "  Code: %d\n", *e.Code)
	}
	if e.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", e.Context)
	}
}

// formatDuration keeps sub-second durations readable without the unit
// switching time.Duration.String does.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	case d < time.Second:
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	default:
		return fmt.Sprintf("%.3fs", d.Seconds())
	}
}
