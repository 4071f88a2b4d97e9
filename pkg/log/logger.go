package log

// Logger receives protocol events as the stack produces them.
// Implementations must tolerate concurrent calls. Log is on the hot
// path of every command and frame, so implementations should hand the
// event off quickly rather than do slow work inline.
type Logger interface {
	Log(event Event)
}

// Discard is a Logger that drops every event. Packages that take an
// optional Logger substitute Discard for nil so call sites never have
// to nil-check.
var Discard Logger = discardLogger{}

type discardLogger struct{}

func (discardLogger) Log(Event) {}

// Tee returns a Logger that forwards each event to every logger in
// order. A Tee of zero loggers is equivalent to Discard. The usual
// pairing is a FileLogger for capture plus a SlogAdapter for the
// console.
func Tee(loggers ...Logger) Logger {
	// Copy so the caller's slice cannot change the fan-out later.
	t := make(tee, len(loggers))
	copy(t, loggers)
	return t
}

type tee []Logger

func (t tee) Log(event Event) {
	for _, l := range t {
		l.Log(event)
	}
}
