package log

import (
	"fmt"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// FileLogger appends events to a ulog file. Writes are serialized
// under a mutex, so one FileLogger can serve every layer of a daemon
// at once. Encoding errors are swallowed: capture must never take the
// protocol down with it.
type FileLogger struct {
	mu  sync.Mutex
	enc *cbor.Encoder
	f   *os.File
}

// NewFileLogger opens path for appending, creating it if needed.
// Reopening an existing file continues the event stream, which is what
// lets a daemon restart keep logging into the same capture.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("log: open %s: %w", path, err)
	}
	return &FileLogger{f: f, enc: encMode.NewEncoder(f)}, nil
}

// Log appends the event. Safe for concurrent use; a no-op after Close.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.enc == nil {
		return
	}
	_ = l.enc.Encode(event)
}

// Close closes the underlying file. Further Log calls are dropped.
// Close is idempotent.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.enc == nil {
		return nil
	}
	l.enc = nil
	return l.f.Close()
}

var _ Logger = (*FileLogger)(nil)
