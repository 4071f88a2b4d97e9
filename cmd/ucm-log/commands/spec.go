// Package commands implements the ucm-log subcommands.
package commands

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ucm-project/ucm-go/pkg/log"
	"github.com/ucm-project/ucm-go/pkg/wire"
)

// FilterSpec carries filter criteria exactly as the command line
// provides them. Build resolves the names into a reader filter.
type FilterSpec struct {
	Session   string
	Layer     string
	Direction string
	Category  string
	Op        string
	Context   string
	TimeStart string
	TimeEnd   string
}

// Build validates the criteria and assembles the log.Filter they
// describe. Empty fields stay unset and match everything.
func (s FilterSpec) Build() (log.Filter, error) {
	filter := log.Filter{SessionID: s.Session}
	var err error
	if filter.Layer, err = optional(s.Layer, parseLayer); err != nil {
		return log.Filter{}, err
	}
	if filter.Direction, err = optional(s.Direction, parseDirection); err != nil {
		return log.Filter{}, err
	}
	if filter.Category, err = optional(s.Category, parseCategory); err != nil {
		return log.Filter{}, err
	}
	if filter.Op, err = optional(s.Op, parseOp); err != nil {
		return log.Filter{}, err
	}
	if filter.ContextID, err = optional(s.Context, parseContextID); err != nil {
		return log.Filter{}, err
	}
	if filter.TimeStart, err = optional(s.TimeStart, parseStamp); err != nil {
		return log.Filter{}, err
	}
	if filter.TimeEnd, err = optional(s.TimeEnd, parseStamp); err != nil {
		return log.Filter{}, err
	}
	return filter, nil
}

// optional parses a flag value when one was given.
func optional[T any](raw string, parse func(string) (T, error)) (*T, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := parse(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

var (
	layerFlags = map[string]log.Layer{
		"transport": log.LayerTransport,
		"wire":      log.LayerWire,
		"manager":   log.LayerManager,
		"service":   log.LayerService,
	}
	directionFlags = map[string]log.Direction{
		"in":  log.DirectionIn,
		"out": log.DirectionOut,
	}
	categoryFlags = map[string]log.Category{
		"command": log.CategoryCommand,
		"reply":   log.CategoryReply,
		"event":   log.CategoryEvent,
		"state":   log.CategoryState,
		"control": log.CategoryControl,
		"error":   log.CategoryError,
		"frame":   log.CategoryFrame,
	}
)

func parseLayer(s string) (log.Layer, error) {
	if l, ok := layerFlags[strings.ToLower(s)]; ok {
		return l, nil
	}
	return 0, fmt.Errorf("unknown layer %q (transport, wire, manager, service)", s)
}

func parseDirection(s string) (log.Direction, error) {
	if d, ok := directionFlags[strings.ToLower(s)]; ok {
		return d, nil
	}
	return 0, fmt.Errorf("unknown direction %q (in, out)", s)
}

func parseCategory(s string) (log.Category, error) {
	if c, ok := categoryFlags[strings.ToLower(s)]; ok {
		return c, nil
	}
	return 0, fmt.Errorf("unknown category %q (command, reply, event, state, control, error, frame)", s)
}

// parseOp accepts an opcode name like CREATE_ID or a numeric value.
func parseOp(s string) (wire.Op, error) {
	if n, err := strconv.ParseUint(s, 0, 32); err == nil {
		op := wire.Op(n)
		if !op.Valid() {
			return 0, fmt.Errorf("opcode %d out of range", n)
		}
		return op, nil
	}
	name := strings.ToUpper(s)
	for op := wire.Op(0); op < wire.NumOps; op++ {
		if op.String() == name {
			return op, nil
		}
	}
	return 0, fmt.Errorf("unknown opcode %q", s)
}

func parseContextID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid context id %q", s)
	}
	return id, nil
}

func parseStamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q (want RFC3339)", s)
	}
	return t, nil
}

// stampLayout renders timestamps with microsecond precision in UTC,
// both in view output and in CSV exports.
const stampLayout = "2006-01-02T15:04:05.000000Z"

// openFiltered opens path with the built filter applied.
func openFiltered(path string, spec FilterSpec) (*log.Reader, error) {
	filter, err := spec.Build()
	if err != nil {
		return nil, err
	}
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	return reader, nil
}

// eachEvent applies fn to every remaining event the reader yields.
func eachEvent(reader *log.Reader, fn func(log.Event) error) error {
	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read event: %w", err)
		}
		if err := fn(event); err != nil {
			return err
		}
	}
}
