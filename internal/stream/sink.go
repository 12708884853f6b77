package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/miradorstack/mirador-insights/internal/metrics"
)

// ErrSinkClosed is returned by Send once the sink's writer has stopped.
var ErrSinkClosed = errors.New("stream sink closed")

// DefaultSinkBuffer is the per-subscriber frame queue length.
const DefaultSinkBuffer = 64

// QueueSink decouples the broadcaster from a slow connection: Send only
// enqueues, and Serve drains the queue into the connection. A full queue
// drops the frame. Once a write fails or Serve returns, Send reports
// ErrSinkClosed so the broadcaster evicts the subscriber.
type QueueSink struct {
	frames chan Frame
	done   chan struct{}
	write  func(Frame) error

	once sync.Once
	mu   sync.Mutex
	err  error
}

// NewQueueSink constructs a sink that writes frames with write.
func NewQueueSink(buffer int, write func(Frame) error) *QueueSink {
	if buffer <= 0 {
		buffer = DefaultSinkBuffer
	}
	return &QueueSink{
		frames: make(chan Frame, buffer),
		done:   make(chan struct{}),
		write:  write,
	}
}

// Send enqueues f without blocking.
func (s *QueueSink) Send(f Frame) error {
	select {
	case <-s.done:
		return ErrSinkClosed
	default:
	}
	select {
	case s.frames <- f:
	default:
		metrics.IncDroppedFrames()
	}
	return nil
}

// Serve writes queued frames until ctx is done or a write fails.
func (s *QueueSink) Serve(ctx context.Context) error {
	defer s.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return s.Err()
		case f := <-s.frames:
			if err := s.write(f); err != nil {
				s.mu.Lock()
				s.err = err
				s.mu.Unlock()
				return err
			}
		}
	}
}

// Close stops the sink. It is safe to call more than once.
func (s *QueueSink) Close() {
	s.once.Do(func() { close(s.done) })
}

// Err returns the write error that stopped the sink, if any.
func (s *QueueSink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// EncodeSSE renders f in text/event-stream format.
func EncodeSSE(f Frame) []byte {
	var buf bytes.Buffer
	if f.Event == "" && f.Comment != "" {
		buf.WriteString(": ")
		buf.WriteString(f.Comment)
		buf.WriteString("\n\n")
		return buf.Bytes()
	}
	if f.Event != "" {
		buf.WriteString("event: ")
		buf.WriteString(f.Event)
		buf.WriteByte('\n')
	}
	for _, line := range bytes.Split(f.Data, []byte("\n")) {
		buf.WriteString("data: ")
		buf.Write(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	return buf.Bytes()
}

// SSEWriter returns a write function for NewQueueSink that emits SSE frames
// to w, flushing after each one when flush is non-nil.
func SSEWriter(w io.Writer, flush func()) func(Frame) error {
	return func(f Frame) error {
		if _, err := w.Write(EncodeSSE(f)); err != nil {
			return err
		}
		if flush != nil {
			flush()
		}
		return nil
	}
}
