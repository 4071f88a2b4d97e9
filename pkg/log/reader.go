package log

import (
	"fmt"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/ucm-project/ucm-go/pkg/wire"
)

// Filter specifies criteria for filtering log events.
// Empty/nil fields match all events for that criterion.
type Filter struct {
	// SessionID filters by exact session token match.
	SessionID string

	// Direction filters by message direction.
	Direction *Direction

	// Layer filters by capture layer.
	Layer *Layer

	// Category filters by event category.
	Category *Category

	// Op filters command and reply events by opcode.
	Op *wire.Op

	// ContextID filters command and ingest events by context handle.
	ContextID *uint64

	// TimeStart drops events before this instant.
	TimeStart *time.Time

	// TimeEnd drops events at or after this instant.
	TimeEnd *time.Time
}

// matches reports whether the event satisfies every set criterion.
func (f *Filter) matches(event Event) bool {
	switch {
	case f.SessionID != "" && event.SessionID != f.SessionID:
		return false
	case f.Direction != nil && event.Direction != *f.Direction:
		return false
	case f.Layer != nil && event.Layer != *f.Layer:
		return false
	case f.Category != nil && event.Category != *f.Category:
		return false
	case f.Op != nil && !f.matchesOp(event):
		return false
	case f.ContextID != nil && !f.matchesContext(event):
		return false
	case f.TimeStart != nil && event.Timestamp.Before(*f.TimeStart):
		return false
	case f.TimeEnd != nil && !event.Timestamp.Before(*f.TimeEnd):
		return false
	}
	return true
}

func (f *Filter) matchesOp(event Event) bool {
	switch {
	case event.Command != nil:
		return event.Command.Op == *f.Op
	case event.Reply != nil:
		return event.Reply.Op == *f.Op
	default:
		return false
	}
}

func (f *Filter) matchesContext(event Event) bool {
	switch {
	case event.Command != nil:
		return event.Command.ContextID != nil && *event.Command.ContextID == *f.ContextID
	case event.Ingest != nil:
		return event.Ingest.ContextID == *f.ContextID
	default:
		return false
	}
}

// Reader streams events out of a ulog file, skipping those the filter
// rejects. It decodes one event at a time, so arbitrarily large
// captures read in constant memory.
type Reader struct {
	f      *os.File
	dec    *cbor.Decoder
	filter Filter
}

// NewReader opens path and returns every event in it.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens path and returns only events the filter
// accepts.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("log: open %s: %w", path, err)
	}
	return &Reader{f: f, dec: decMode.NewDecoder(f), filter: filter}, nil
}

// Next returns the next matching event, or io.EOF at end of file.
func (r *Reader) Next() (Event, error) {
	for {
		var event Event
		if err := r.dec.Decode(&event); err != nil {
			return Event{}, err
		}
		if r.filter.matches(event) {
			return event, nil
		}
	}
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.f.Close()
}
