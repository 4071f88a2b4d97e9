package commands

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/ucm-project/ucm-go/pkg/engine"
	"github.com/ucm-project/ucm-go/pkg/log"
	"github.com/ucm-project/ucm-go/pkg/wire"
)

// Stats aggregates what a capture file contains.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Sessions          map[string]*SessionStats
	Ops               map[wire.Op]*OpStats
	Deliveries        map[engine.Disposition]int
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// SessionStats holds per-session totals.
type SessionStats struct {
	FirstSeen  time.Time
	LastSeen   time.Time
	Events     int
	RemoteAddr string
}

// OpStats holds per-opcode command and reply counts.
type OpStats struct {
	Commands     int
	Replies      int
	Failures     int
	TotalTime    time.Duration
	TimedReplies int
}

// RunStats reads the whole log file and prints a summary on w.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer reader.Close()

	stats := newStats()
	err = eachEvent(reader, func(event log.Event) error {
		stats.observe(event)
		return nil
	})
	if err != nil {
		return err
	}

	stats.render(w)
	return nil
}

func newStats() *Stats {
	return &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Sessions:          make(map[string]*SessionStats),
		Ops:               make(map[wire.Op]*OpStats),
		Deliveries:        make(map[engine.Disposition]int),
	}
}

// observe folds one event into the totals.
func (s *Stats) observe(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	s.session(event).observe(event)

	switch {
	case event.Command != nil:
		s.opStats(event.Command.Op).Commands++
	case event.Reply != nil:
		s.opStats(event.Reply.Op).observeReply(event.Reply)
	case event.Ingest != nil:
		s.Deliveries[engine.Disposition(event.Ingest.Disposition)]++
	case event.Error != nil:
		s.Errors++
	}
}

// session returns the per-session bucket, creating it on first use.
func (s *Stats) session(event log.Event) *SessionStats {
	sess, ok := s.Sessions[event.SessionID]
	if !ok {
		sess = &SessionStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
		s.Sessions[event.SessionID] = sess
	}
	return sess
}

// opStats returns the per-opcode bucket, creating it on first use.
func (s *Stats) opStats(op wire.Op) *OpStats {
	st, ok := s.Ops[op]
	if !ok {
		st = &OpStats{}
		s.Ops[op] = st
	}
	return st
}

func (ss *SessionStats) observe(event log.Event) {
	ss.Events++
	if event.Timestamp.After(ss.LastSeen) {
		ss.LastSeen = event.Timestamp
	}
	if event.RemoteAddr != "" && ss.RemoteAddr == "" {
		ss.RemoteAddr = event.RemoteAddr
	}
}

func (st *OpStats) observeReply(reply *log.ReplyEvent) {
	st.Replies++
	if reply.Status != wire.StatusSuccess {
		st.Failures++
	}
	if reply.ProcessingTime != nil {
		st.TotalTime += *reply.ProcessingTime
		st.TimedReplies++
	}
}

// render prints the summary sections in a stable order so diffs of two
// captures line up.
func (s *Stats) render(w io.Writer) {
	fmt.Fprintln(w, "=== UCM Protocol Log Statistics ===")
	fmt.Fprintln(w)

	if s.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			s.TimeRange.Start.Format(time.RFC3339),
			s.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", s.TimeRange.End.Sub(s.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", s.TotalEvents)
	fmt.Fprintln(w)

	countSection(w, "Events by Layer",
		[]log.Layer{log.LayerTransport, log.LayerWire, log.LayerManager, log.LayerService},
		s.EventsByLayer, log.Layer.String)
	countSection(w, "Events by Category",
		[]log.Category{log.CategoryCommand, log.CategoryReply, log.CategoryEvent, log.CategoryState, log.CategoryControl, log.CategoryError, log.CategoryFrame},
		s.EventsByCategory, log.Category.String)
	countSection(w, "Events by Direction",
		[]log.Direction{log.DirectionIn, log.DirectionOut},
		s.EventsByDirection, log.Direction.String)

	if len(s.Ops) > 0 {
		s.renderOps(w)
	}
	if len(s.Deliveries) > 0 {
		countSection(w, "Engine Events",
			[]engine.Disposition{engine.Delivered, engine.Refused, engine.Dropped},
			s.Deliveries, engine.Disposition.String)
	}

	s.renderSessions(w)

	if s.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", s.Errors)
	}
}

// countSection prints the non-zero rows of one counter in the given
// order, followed by a blank line.
func countSection[K comparable](w io.Writer, title string, order []K, counts map[K]int, label func(K) string) {
	fmt.Fprintf(w, "%s:\n", title)
	for _, k := range order {
		if n := counts[k]; n > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", label(k)+":", n)
		}
	}
	fmt.Fprintln(w)
}

func (s *Stats) renderOps(w io.Writer) {
	fmt.Fprintln(w, "Commands:")
	for _, op := range slices.Sorted(maps.Keys(s.Ops)) {
		st := s.Ops[op]
		line := fmt.Sprintf("  %-14s %d sent, %d replied", op.String(), st.Commands, st.Replies)
		if st.Failures > 0 {
			line += fmt.Sprintf(", %d failed", st.Failures)
		}
		if st.TimedReplies > 0 {
			line += fmt.Sprintf(", mean %s", formatDuration(st.TotalTime/time.Duration(st.TimedReplies)))
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w)
}

// renderSessions lists sessions in the order they first appeared.
func (s *Stats) renderSessions(w io.Writer) {
	fmt.Fprintf(w, "Sessions: %d\n", len(s.Sessions))
	if len(s.Sessions) == 0 {
		return
	}

	ids := slices.SortedFunc(maps.Keys(s.Sessions), func(a, b string) int {
		return s.Sessions[a].FirstSeen.Compare(s.Sessions[b].FirstSeen)
	})

	fmt.Fprintln(w)
	for _, id := range ids {
		ss := s.Sessions[id]
		duration := ss.LastSeen.Sub(ss.FirstSeen).Round(time.Millisecond)
		fmt.Fprintf(w, "  [%s] %d events, duration %s\n", shortToken(id), ss.Events, duration)
		if ss.RemoteAddr != "" {
			fmt.Fprintf(w, "           Remote: %s\n", ss.RemoteAddr)
		}
	}
}
