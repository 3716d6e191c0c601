package wasi

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrWriteNotPermitted is the cause attached when a write exceeds the
// budget last reported by CheckWrite.
var ErrWriteNotPermitted = errors.New("write exceeds permitted length")

// InputStream is a non-blocking byte source. Read returns an empty slice
// when no data is available yet; callers subscribe and wait before retrying.
type InputStream interface {
	Resource
	Readiness
	Read(length uint64) ([]byte, error)
}

// OutputStream is a non-blocking byte sink following the
// check-write / write / flush protocol.
type OutputStream interface {
	Resource
	Readiness
	CheckWrite() (uint64, error)
	Write(data []byte) error
	Flush() error
}

// StreamError represents a WASI stream error.
type StreamError struct {
	Cause           error  // Underlying failure, if any
	Closed          bool   // Stream is closed
	LastOpFailed    bool   // Previous operation failed
	LastOpFailedErr uint32 // Handle of the error resource describing the failure
}

func (e *StreamError) Error() string {
	if e.Closed {
		return "stream closed"
	}
	if e.Cause != nil {
		return "stream error: " + e.Cause.Error()
	}
	return "stream error"
}

func (e *StreamError) Unwrap() error { return e.Cause }

func closedErr() error { return &StreamError{Closed: true} }

func failedErr(cause error) error { return &StreamError{LastOpFailed: true, Cause: cause} }

// ErrorResource holds an error message that can be retrieved via ToDebugString.
type ErrorResource struct {
	msg string
}

func NewErrorResource(msg string) *ErrorResource {
	return &ErrorResource{msg: msg}
}

func (e *ErrorResource) Type() ResourceType    { return ResourceError }
func (e *ErrorResource) Drop()                 {}
func (e *ErrorResource) ToDebugString() string { return e.msg }

// BytesInputStream serves a fixed byte slice. It is always ready.
type BytesInputStream struct {
	AlwaysReady
	data   []byte
	offset int
	mu     sync.Mutex
}

func NewBytesInputStream(data []byte) *BytesInputStream {
	return &BytesInputStream{data: data}
}

func (s *BytesInputStream) Type() ResourceType { return ResourceInputStream }
func (s *BytesInputStream) Drop()              {}

func (s *BytesInputStream) Read(length uint64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	remaining := len(s.data) - s.offset
	if remaining == 0 {
		return nil, closedErr()
	}
	toRead := remaining
	if length < uint64(remaining) {
		toRead = int(length)
	}
	result := s.data[s.offset : s.offset+toRead]
	s.offset += toRead
	return result, nil
}

// PipeInputStream pumps an io.Reader into a bounded buffer on a background
// goroutine. The pump starts on first use so an unused stdin is never consumed.
// Dropping the stream does not close the reader; its owner does.
type PipeInputStream struct {
	reader  io.Reader
	notify  *Notifier
	space   *sync.Cond
	err     error
	buf     []byte
	limit   int
	mu      sync.Mutex
	start   sync.Once
	dropped bool
}

// NewPipeInputStream creates a stream buffering at most limit bytes ahead of
// the reader. A non-positive limit selects DefaultBufferSize.
func NewPipeInputStream(r io.Reader, limit int) *PipeInputStream {
	if limit <= 0 {
		limit = DefaultBufferSize
	}
	s := &PipeInputStream{reader: r, limit: limit, notify: NewNotifier()}
	s.space = sync.NewCond(&s.mu)
	return s
}

func (s *PipeInputStream) Type() ResourceType { return ResourceInputStream }

func (s *PipeInputStream) Drop() {
	s.mu.Lock()
	s.dropped = true
	s.buf = nil
	s.space.Broadcast()
	s.mu.Unlock()
	s.notify.Notify()
}

func (s *PipeInputStream) pump() {
	chunk := make([]byte, 4096)
	for {
		s.mu.Lock()
		for len(s.buf) >= s.limit && !s.dropped {
			s.space.Wait()
		}
		dropped := s.dropped
		room := s.limit - len(s.buf)
		s.mu.Unlock()
		if dropped {
			return
		}
		if room > len(chunk) {
			room = len(chunk)
		}

		n, err := s.reader.Read(chunk[:room])

		s.mu.Lock()
		if s.dropped {
			s.mu.Unlock()
			return
		}
		s.buf = append(s.buf, chunk[:n]...)
		if err != nil {
			s.err = err
		}
		s.mu.Unlock()
		s.notify.Notify()
		if err != nil {
			return
		}
	}
}

func (s *PipeInputStream) ensureStarted() {
	s.start.Do(func() {
		if s.reader == nil {
			s.mu.Lock()
			s.err = io.EOF
			s.mu.Unlock()
			return
		}
		go s.pump()
	})
}

func (s *PipeInputStream) Read(length uint64) ([]byte, error) {
	s.ensureStarted()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dropped {
		return nil, closedErr()
	}
	if len(s.buf) == 0 {
		switch {
		case s.err == nil:
			return []byte{}, nil
		case errors.Is(s.err, io.EOF):
			return nil, closedErr()
		default:
			return nil, failedErr(s.err)
		}
	}
	if length > MaxAllocationSize {
		length = MaxAllocationSize
	}
	n := len(s.buf)
	if length < uint64(n) {
		n = int(length)
	}
	out := make([]byte, n)
	copy(out, s.buf)
	s.buf = s.buf[n:]
	if len(s.buf) == 0 {
		s.buf = nil
	}
	s.space.Signal()
	return out, nil
}

func (s *PipeInputStream) Ready() bool {
	s.ensureStarted()
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf) > 0 || s.err != nil || s.dropped
}

func (s *PipeInputStream) Signal() <-chan struct{} {
	s.ensureStarted()
	return s.notify.Wait()
}

// BufferOutputStream captures everything written to it. It is always ready.
type BufferOutputStream struct {
	AlwaysReady
	buf    *bytes.Buffer
	mu     sync.Mutex
	closed bool
}

// NewBufferOutputStream captures into dst, or into a private buffer when dst is nil.
func NewBufferOutputStream(dst *bytes.Buffer) *BufferOutputStream {
	if dst == nil {
		dst = &bytes.Buffer{}
	}
	return &BufferOutputStream{buf: dst}
}

func (s *BufferOutputStream) Type() ResourceType { return ResourceOutputStream }
func (s *BufferOutputStream) Drop()              {}

// Close makes later operations report a closed stream.
func (s *BufferOutputStream) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *BufferOutputStream) CheckWrite() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, closedErr()
	}
	return DefaultBufferSize, nil
}

func (s *BufferOutputStream) Write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return closedErr()
	}
	if len(data) > DefaultBufferSize {
		return failedErr(ErrWriteNotPermitted)
	}
	s.buf.Write(data)
	return nil
}

func (s *BufferOutputStream) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return closedErr()
	}
	return nil
}

// Bytes returns a copy of everything written so far.
func (s *BufferOutputStream) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.Clone(s.buf.Bytes())
}

// PipeOutputStream drains into an io.Writer on a background goroutine.
// CheckWrite reports 0 while a flush is in flight or the buffer is full.
type PipeOutputStream struct {
	writer   io.Writer
	notify   *Notifier
	work     *sync.Cond
	err      error
	pending  []byte
	inflight int
	limit    int
	mu       sync.Mutex
	start    sync.Once
	flushing bool
	closed   bool
}

// NewPipeOutputStream creates a stream that accepts at most limit unflushed
// bytes. A non-positive limit selects DefaultBufferSize.
func NewPipeOutputStream(w io.Writer, limit int) *PipeOutputStream {
	if limit <= 0 {
		limit = DefaultBufferSize
	}
	s := &PipeOutputStream{writer: w, limit: limit, notify: NewNotifier()}
	s.work = sync.NewCond(&s.mu)
	return s
}

func (s *PipeOutputStream) Type() ResourceType { return ResourceOutputStream }

// Drop stops accepting writes. Bytes already accepted are still delivered.
func (s *PipeOutputStream) Drop() {
	s.mu.Lock()
	s.closed = true
	s.work.Broadcast()
	s.mu.Unlock()
	s.notify.Notify()
}

// CloseWithError fails every later operation with err.
func (s *PipeOutputStream) CloseWithError(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.pending = nil
	s.work.Broadcast()
	s.mu.Unlock()
	s.notify.Notify()
}

func (s *PipeOutputStream) drain() {
	s.mu.Lock()
	for {
		for len(s.pending) == 0 && !s.closed && s.err == nil {
			s.work.Wait()
		}
		if len(s.pending) == 0 || s.err != nil {
			s.mu.Unlock()
			return
		}
		chunk := s.pending
		s.pending = nil
		s.inflight = len(chunk)
		s.mu.Unlock()

		_, err := s.writer.Write(chunk)

		s.mu.Lock()
		s.inflight = 0
		if err != nil && s.err == nil {
			s.err = err
			s.pending = nil
		}
		if len(s.pending) == 0 {
			s.flushing = false
		}
		s.notify.Notify()
	}
}

func (s *PipeOutputStream) ensureStarted() {
	s.start.Do(func() { go s.drain() })
}

// available must be called with mu held.
func (s *PipeOutputStream) available() int {
	if s.flushing {
		return 0
	}
	avail := s.limit - len(s.pending) - s.inflight
	if avail < 0 {
		return 0
	}
	return avail
}

// state must be called with mu held.
func (s *PipeOutputStream) state() error {
	if s.err != nil {
		return failedErr(s.err)
	}
	if s.closed {
		return closedErr()
	}
	return nil
}

func (s *PipeOutputStream) CheckWrite() (uint64, error) {
	s.ensureStarted()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.state(); err != nil {
		return 0, err
	}
	return uint64(s.available()), nil
}

func (s *PipeOutputStream) Write(data []byte) error {
	s.ensureStarted()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.state(); err != nil {
		return err
	}
	if len(data) > s.available() {
		return failedErr(fmt.Errorf("%w: %d bytes, %d permitted", ErrWriteNotPermitted, len(data), s.available()))
	}
	s.pending = append(s.pending, data...)
	s.work.Signal()
	return nil
}

func (s *PipeOutputStream) Flush() error {
	s.ensureStarted()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.state(); err != nil {
		return err
	}
	if len(s.pending) > 0 || s.inflight > 0 {
		s.flushing = true
		s.work.Signal()
	}
	return nil
}

func (s *PipeOutputStream) Ready() bool {
	s.ensureStarted()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err != nil || s.closed || s.available() > 0
}

func (s *PipeOutputStream) Signal() <-chan struct{} {
	s.ensureStarted()
	return s.notify.Wait()
}
