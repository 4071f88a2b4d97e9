package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ucm-project/ucm-go/pkg/log"
)

const (
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4

	// DefaultMaxMessageSize is the default maximum message size (1 MiB).
	// Large enough for any command plus its path records and private
	// data; anything bigger is a protocol violation.
	DefaultMaxMessageSize = 1 << 20

	// MinMessageSize is the minimum valid message size.
	MinMessageSize = 1

	// MaxLogFrameDataSize is the maximum frame data size to include in
	// log events (4 KB). Larger frames are truncated.
	MaxLogFrameDataSize = 4096
)

// checkLength validates a payload length against the configured cap.
func checkLength(n, max uint32) error {
	if n == 0 {
		return ErrMessageEmpty
	}
	if n > max {
		return fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, n, max)
	}
	return nil
}

// frameEvent builds the protocol log event for one frame. Data beyond
// MaxLogFrameDataSize is cut and marked truncated.
func frameEvent(id string, data []byte, direction log.Direction) log.Event {
	// Size records the full frame; Data carries at most MaxLogFrameDataSize
	// bytes of it so one giant payload cannot swamp the log sink.
	frame := &log.FrameEvent{Size: LengthPrefixSize + len(data), Data: data}
	if len(data) > MaxLogFrameDataSize {
		frame.Data = data[:MaxLogFrameDataSize]
		frame.Truncated = true
	}

	return log.Event{
		Timestamp: time.Now(),
		SessionID: id,
		Direction: direction,
		Layer:     log.LayerTransport,
		Category:  log.CategoryFrame,
		Frame:     frame,
	}
}

// FrameWriter writes length-prefixed frames to an underlying writer.
type FrameWriter struct {
	w   io.Writer
	max uint32
	mu  sync.Mutex

	logger log.Logger
	logID  string
}

// NewFrameWriter creates a frame writer with the default size cap.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return NewFrameWriterWithMaxSize(w, DefaultMaxMessageSize)
}

// NewFrameWriterWithMaxSize creates a frame writer with a custom cap.
func NewFrameWriterWithMaxSize(w io.Writer, maxSize uint32) *FrameWriter {
	return &FrameWriter{w: w, max: maxSize}
}

// SetLogger configures logging for this writer. The id keys the emitted
// events: the daemon uses the transport conn id until a session is
// opened, then rekeys to the session token. Pass a nil logger to
// disable logging.
func (fw *FrameWriter) SetLogger(logger log.Logger, id string) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.logger = logger
	fw.logID = id
}

// WriteFrame writes one length-prefixed frame. Safe for concurrent use;
// each frame reaches the wire intact.
func (fw *FrameWriter) WriteFrame(data []byte) error {
	if err := checkLength(uint32(len(data)), fw.max); err != nil {
		return err
	}

	// Assemble prefix and payload into one buffer so the frame goes
	// out in a single write.
	frame := make([]byte, LengthPrefixSize+len(data))
	binary.BigEndian.PutUint32(frame, uint32(len(data)))
	copy(frame[LengthPrefixSize:], data)

	fw.mu.Lock()
	defer fw.mu.Unlock()

	if _, err := fw.w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	if fw.logger != nil {
		fw.logger.Log(frameEvent(fw.logID, data, log.DirectionOut))
	}
	return nil
}

// FrameReader reads length-prefixed frames from an underlying reader.
type FrameReader struct {
	r      io.Reader
	max    uint32
	prefix [LengthPrefixSize]byte

	logger log.Logger
	logID  string
}

// NewFrameReader creates a frame reader with the default size cap.
func NewFrameReader(r io.Reader) *FrameReader {
	return NewFrameReaderWithMaxSize(r, DefaultMaxMessageSize)
}

// NewFrameReaderWithMaxSize creates a frame reader with a custom cap.
func NewFrameReaderWithMaxSize(r io.Reader, maxSize uint32) *FrameReader {
	return &FrameReader{r: r, max: maxSize}
}

// SetLogger configures logging for this reader. Not safe to call
// concurrently with ReadFrame; set it before reading starts or from the
// read goroutine itself. Pass a nil logger to disable logging.
func (fr *FrameReader) SetLogger(logger log.Logger, id string) {
	fr.logger = logger
	fr.logID = id
}

// readLength pulls the next length prefix off the wire. A clean EOF at
// a frame boundary comes back as io.EOF; anything partial is
// ErrFrameTruncated.
func (fr *FrameReader) readLength() (uint32, error) {
	if _, err := io.ReadFull(fr.r, fr.prefix[:]); err != nil {
		switch {
		case err == io.EOF:
			return 0, io.EOF
		case errors.Is(err, io.ErrUnexpectedEOF):
			return 0, ErrFrameTruncated
		default:
			return 0, fmt.Errorf("read length prefix: %w", err)
		}
	}
	return binary.BigEndian.Uint32(fr.prefix[:]), nil
}

// ReadFrame reads one frame and returns its payload without the prefix.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	length, err := fr.readLength()
	if err != nil {
		return nil, err
	}
	if err := checkLength(length, fr.max); err != nil {
		return nil, err
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrFrameTruncated
		}
		return nil, fmt.Errorf("read payload: %w", err)
	}

	if fr.logger != nil {
		fr.logger.Log(frameEvent(fr.logID, payload, log.DirectionIn))
	}
	return payload, nil
}

// Framer combines frame reading and writing.
type Framer struct {
	*FrameReader
	*FrameWriter
}

// NewFramer creates a framer for bidirectional communication.
func NewFramer(rw io.ReadWriter) *Framer {
	return NewFramerWithMaxSize(rw, DefaultMaxMessageSize)
}

// NewFramerWithMaxSize creates a framer with a custom size cap.
func NewFramerWithMaxSize(rw io.ReadWriter, maxSize uint32) *Framer {
	return &Framer{
		FrameReader: NewFrameReaderWithMaxSize(rw, maxSize),
		FrameWriter: NewFrameWriterWithMaxSize(rw, maxSize),
	}
}

// SetLogger configures logging for both halves. The reader side
// constraint applies: call before reading starts or from the read
// goroutine.
func (f *Framer) SetLogger(logger log.Logger, id string) {
	f.FrameReader.SetLogger(logger, id)
	f.FrameWriter.SetLogger(logger, id)
}

// FrameSize returns the total frame size including the length prefix.
func FrameSize(payloadSize int) int {
	return LengthPrefixSize + payloadSize
}
