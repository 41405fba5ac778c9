package realtime

import (
	"io"

	"github.com/goccy/go-json"
)

// FrameWriter delivers one message to a client, returning an error once the client is gone.
type FrameWriter interface {
	WriteFrame(Message) error
}

// FlushWriter is satisfied by *bufio.Writer, which is what fasthttp hands to stream writers.
type FlushWriter interface {
	io.Writer
	Flush() error
}

// SSEWriter encodes messages as Server-Sent Events "data:" frames.
type SSEWriter struct {
	w FlushWriter
}

func NewSSEWriter(w FlushWriter) *SSEWriter { return &SSEWriter{w: w} }

func (s *SSEWriter) WriteFrame(m Message) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := s.w.Write(b); err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("\n\n")); err != nil {
		return err
	}
	return s.w.Flush()
}
