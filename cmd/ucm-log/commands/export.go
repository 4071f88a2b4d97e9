package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/ucm-project/ucm-go/pkg/engine"
	"github.com/ucm-project/ucm-go/pkg/log"
)

// RunExport streams a log file out as JSONL or CSV, to output or to
// stdout when output is empty.
func RunExport(path, format, output string) error {
	var export func(*log.Reader, io.Writer) error
	switch format {
	case "jsonl":
		export = exportJSONL
	case "csv":
		export = exportCSV
	default:
		return fmt.Errorf("unknown format %q (jsonl, csv)", format)
	}

	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer reader.Close()

	w := io.Writer(os.Stdout)
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}

	return export(reader, w)
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	return eachEvent(reader, func(event log.Event) error {
		if err := encoder.Encode(event); err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
		return nil
	})
}

var csvHeader = []string{
	"timestamp", "session_id", "direction", "layer", "category",
	"remote_addr", "type", "op", "message_id", "status",
}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return eachEvent(reader, func(event log.Event) error {
		if err := cw.Write(csvRow(event)); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
		return nil
	})
}

// csvRow flattens an event into the export columns. The op column
// carries the opcode for commands and replies and the event kind for
// engine events.
func csvRow(event log.Event) []string {
	kind, op, msgID, status := "unknown", "", "", ""
	switch {
	case event.Frame != nil:
		kind = "frame"
	case event.Command != nil:
		kind = "command"
		op = event.Command.Op.String()
		msgID = strconv.Itoa(int(event.Command.MessageID))
	case event.Reply != nil:
		kind = "reply"
		op = event.Reply.Op.String()
		msgID = strconv.Itoa(int(event.Reply.MessageID))
		status = strconv.Itoa(int(event.Reply.Status))
	case event.Ingest != nil:
		kind = "event"
		op = engine.EventKind(event.Ingest.Kind).String()
		status = strconv.Itoa(int(event.Ingest.Status))
	case event.StateChange != nil:
		kind = "state"
	case event.ControlMsg != nil:
		kind = event.ControlMsg.Type.String()
	case event.Error != nil:
		kind = "error"
	}

	return []string{
		event.Timestamp.UTC().Format(stampLayout),
		event.SessionID,
		event.Direction.String(),
		event.Layer.String(),
		event.Category.String(),
		event.RemoteAddr,
		kind,
		op,
		msgID,
		status,
	}
}
