// Command ucm-log is a tool for viewing and analyzing UCM protocol log files.
//
// Log files are created by running ucm-daemon with the -protocol-log flag.
// Each file carries a CBOR event stream covering frames, commands, replies,
// engine event deliveries, state changes, and errors.
//
// Usage:
//
//	ucm-log <command> [flags] <file.ulog>
//
// Commands:
//
//	view     render events in human-readable form
//	export   convert the log to JSONL or CSV
//	filter   write matching events to a new log file
//	stats    summarize sessions, opcodes, and deliveries
//
// Examples:
//
//	# View all events
//	ucm-log view daemon.ulog
//
//	# View only wire-layer commands
//	ucm-log view -layer wire -category command daemon.ulog
//
//	# View everything one session did to context 3
//	ucm-log view -session 6e0f3a1c -ctx 3 daemon.ulog
//
//	# Export to JSONL
//	ucm-log export -format jsonl daemon.ulog
//
//	# Keep only GET_EVENT traffic in a new file
//	ucm-log filter -op GET_EVENT -o events.ulog daemon.ulog
//
//	# Show statistics
//	ucm-log stats daemon.ulog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ucm-project/ucm-go/cmd/ucm-log/commands"
)

const usage = `ucm-log - UCM protocol log analyzer

Usage:
  ucm-log <command> [flags] <file.ulog>

Commands:
  view     render events in human-readable form
  export   convert the log to JSONL or CSV
  filter   write matching events to a new log file
  stats    summarize sessions, opcodes, and deliveries

Use "ucm-log <command> -help" for more information about a command.
`

var subcommands = map[string]func(args []string){
	"view":   runView,
	"export": runExport,
	"filter": runFilter,
	"stats":  runStats,
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch {
	case subcommands[cmd] != nil:
		subcommands[cmd](args)
	case cmd == "help" || cmd == "-h" || cmd == "-help" || cmd == "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func runView(args []string) {
	fs := newFlagSet("view", "render events in human-readable form", "[flags] <file.ulog>")
	spec := filterFlags(fs)
	path := logPath(fs, args)

	if err := commands.RunView(path, spec(), os.Stdout); err != nil {
		fail(err)
	}
}

func runExport(args []string) {
	fs := newFlagSet("export", "convert the log to JSONL or CSV", "[flags] <file.ulog>")
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	path := logPath(fs, args)

	if err := commands.RunExport(path, *format, *output); err != nil {
		fail(err)
	}
}

func runFilter(args []string) {
	fs := newFlagSet("filter", "write matching events to a new log file", "[flags] -o <out.ulog> <file.ulog>")
	output := fs.String("o", "", "Output file (required)")
	spec := filterFlags(fs)
	path := logPath(fs, args)

	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	if err := commands.RunFilter(path, *output, spec(), os.Stdout); err != nil {
		fail(err)
	}
}

func runStats(args []string) {
	fs := newFlagSet("stats", "summarize sessions, opcodes, and deliveries", "<file.ulog>")
	path := logPath(fs, args)

	if err := commands.RunStats(path, os.Stdout); err != nil {
		fail(err)
	}
}

// newFlagSet builds a flag set whose usage text follows the common
// subcommand shape.
func newFlagSet(name, summary, operands string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "ucm-log %s - %s\n\nUsage:\n  ucm-log %s %s\n\nFlags:\n", name, summary, name, operands)
		fs.PrintDefaults()
	}
	return fs
}

// filterFlags registers the shared filtering flags on fs and returns a
// function that gathers their values after parsing.
func filterFlags(fs *flag.FlagSet) func() commands.FilterSpec {
	session := fs.String("session", "", "Filter by session token")
	layer := fs.String("layer", "", "Filter by layer (transport, wire, manager, service)")
	direction := fs.String("direction", "", "Filter by direction (in, out)")
	category := fs.String("category", "", "Filter by category (command, reply, event, state, control, error, frame)")
	op := fs.String("op", "", "Filter by opcode (name like CREATE_ID, or number)")
	ctx := fs.String("ctx", "", "Filter by context id")
	timeStart := fs.String("time-start", "", "Drop events before this RFC3339 time")
	timeEnd := fs.String("time-end", "", "Drop events at or after this RFC3339 time")

	return func() commands.FilterSpec {
		return commands.FilterSpec{
			Session:   *session,
			Layer:     *layer,
			Direction: *direction,
			Category:  *category,
			Op:        *op,
			Context:   *ctx,
			TimeStart: *timeStart,
			TimeEnd:   *timeEnd,
		}
	}
}

// logPath parses args and returns the required trailing file operand.
func logPath(fs *flag.FlagSet, args []string) string {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: missing log file operand")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
