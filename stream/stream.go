package stream

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/wippyai/wasync/errors"
	"github.com/wippyai/wasync/executor"
	"github.com/wippyai/wasync/wasi"
	"github.com/wippyai/wasync/wasi/host"
)

// Reader reads bytes, suspending the calling task until data is available.
// At end of stream it returns io.EOF.
type Reader interface {
	Read(ctx context.Context, p []byte) (int, error)
}

// Writer writes all of p or returns an error.
type Writer interface {
	Write(ctx context.Context, p []byte) (int, error)
}

// Flusher pushes buffered bytes through to the host.
type Flusher interface {
	Flush(ctx context.Context) error
}

// ReadWriter groups Reader and Writer.
type ReadWriter interface {
	Reader
	Writer
}

// InputStream reads a host input stream. Its subscription is created on
// first wait and owned by the stream, so Close drops it first.
type InputStream struct {
	h      *host.WASIHost
	handle uint32
	sub    uint32
	closed bool
}

// NewInputStream takes ownership of an input stream handle.
func NewInputStream(h *host.WASIHost, handle uint32) *InputStream {
	return &InputStream{h: h, handle: handle}
}

func (s *InputStream) Handle() uint32 { return s.handle }

func (s *InputStream) subscription(ctx context.Context) (uint32, error) {
	if s.sub == 0 {
		sub, err := s.h.IO.Streams.MethodInputStreamSubscribe(ctx, s.handle)
		if err != nil {
			return 0, err
		}
		s.sub = sub
	}
	return s.sub, nil
}

// Readable waits until a read would not come back empty.
func (s *InputStream) Readable(ctx context.Context) error {
	if s.closed {
		return errors.Closed(errors.PhaseStream, "readable")
	}
	sub, err := s.subscription(ctx)
	if err != nil {
		return err
	}
	return executor.WaitPollable(ctx, sub)
}

// Read reads up to len(p) bytes, waiting while the stream has nothing yet.
func (s *InputStream) Read(ctx context.Context, p []byte) (int, error) {
	if s.closed {
		return 0, errors.Closed(errors.PhaseStream, "read")
	}
	if len(p) == 0 {
		return 0, nil
	}
	for {
		data, se := s.h.IO.Streams.MethodInputStreamRead(ctx, s.handle, uint64(len(p)))
		if se != nil {
			return 0, Failure(ctx, s.h, "read", se, io.EOF)
		}
		if len(data) == 0 {
			if err := s.Readable(ctx); err != nil {
				return 0, err
			}
			if s.closed {
				return 0, errors.Closed(errors.PhaseStream, "read")
			}
			continue
		}
		n := copy(p, data)
		Logger().Debug("read from stream", zap.Uint32("stream", s.handle), zap.Int("bytes", n))
		return n, nil
	}
}

// Close drops the subscription, then the stream.
func (s *InputStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	ctx := context.Background()
	var errs []error
	if s.sub != 0 {
		errs = append(errs, s.h.IO.Poll.ResourceDropPollable(ctx, s.sub))
		s.sub = 0
	}
	errs = append(errs, s.h.IO.Streams.ResourceDropInputStream(ctx, s.handle))
	return errors.Join(errs...)
}

// OutputStream writes a host output stream using the check-write protocol.
type OutputStream struct {
	h         *host.WASIHost
	closedErr error
	handle    uint32
	sub       uint32
	closed    bool
}

// NewOutputStream takes ownership of an output stream handle.
func NewOutputStream(h *host.WASIHost, handle uint32) *OutputStream {
	return &OutputStream{h: h, handle: handle, closedErr: io.ErrClosedPipe}
}

// WithClosedError sets the error reported once the host closes the stream.
func (s *OutputStream) WithClosedError(err error) *OutputStream {
	s.closedErr = err
	return s
}

func (s *OutputStream) Handle() uint32 { return s.handle }

func (s *OutputStream) subscription(ctx context.Context) (uint32, error) {
	if s.sub == 0 {
		sub, err := s.h.IO.Streams.MethodOutputStreamSubscribe(ctx, s.handle)
		if err != nil {
			return 0, err
		}
		s.sub = sub
	}
	return s.sub, nil
}

// Writable waits until the stream accepts more bytes or its flush is done.
func (s *OutputStream) Writable(ctx context.Context) error {
	if s.closed {
		return errors.Closed(errors.PhaseStream, "writable")
	}
	sub, err := s.subscription(ctx)
	if err != nil {
		return err
	}
	return executor.WaitPollable(ctx, sub)
}

// Write hands all of p to the host in chunks the host permits, then flushes
// and waits for the flush to complete.
func (s *OutputStream) Write(ctx context.Context, p []byte) (int, error) {
	if s.closed {
		return 0, errors.Closed(errors.PhaseStream, "write")
	}
	written := 0
	for written < len(p) {
		permit, se := s.h.IO.Streams.MethodOutputStreamCheckWrite(ctx, s.handle)
		if se != nil {
			return written, Failure(ctx, s.h, "check-write", se, s.closedErr)
		}
		if permit == 0 {
			if err := s.Writable(ctx); err != nil {
				return written, err
			}
			if s.closed {
				return written, errors.Closed(errors.PhaseStream, "write")
			}
			continue
		}
		chunk := p[written:]
		if uint64(len(chunk)) > permit {
			chunk = chunk[:permit]
		}
		if se := s.h.IO.Streams.MethodOutputStreamWrite(ctx, s.handle, chunk); se != nil {
			return written, Failure(ctx, s.h, "write", se, s.closedErr)
		}
		written += len(chunk)
	}
	if err := s.Flush(ctx); err != nil {
		return written, err
	}
	Logger().Debug("wrote to stream", zap.Uint32("stream", s.handle), zap.Int("bytes", written))
	return written, nil
}

// Flush starts a flush and waits for it to finish.
func (s *OutputStream) Flush(ctx context.Context) error {
	if s.closed {
		return errors.Closed(errors.PhaseStream, "flush")
	}
	if se := s.h.IO.Streams.MethodOutputStreamFlush(ctx, s.handle); se != nil {
		return Failure(ctx, s.h, "flush", se, s.closedErr)
	}
	return s.Writable(ctx)
}

// Close drops the subscription, then the stream.
func (s *OutputStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	ctx := context.Background()
	var errs []error
	if s.sub != 0 {
		errs = append(errs, s.h.IO.Poll.ResourceDropPollable(ctx, s.sub))
		s.sub = 0
	}
	errs = append(errs, s.h.IO.Streams.ResourceDropOutputStream(ctx, s.handle))
	return errors.Join(errs...)
}

// Failure converts a host stream error. A closed stream becomes closedErr;
// a failed operation carries the host's debug string, and its error resource
// is released.
func Failure(ctx context.Context, h *host.WASIHost, op string, se *wasi.StreamError, closedErr error) error {
	if se.Closed {
		return closedErr
	}
	msg := "unknown error"
	if se.LastOpFailedErr != 0 {
		msg = h.IO.Error.MethodErrorToDebugString(ctx, se.LastOpFailedErr)
		_ = h.IO.Error.ResourceDropError(ctx, se.LastOpFailedErr)
	}
	return errors.New(errors.PhaseStream, errors.KindIO).
		Op(op).
		Detail("%s", msg).
		Cause(se.Cause).
		Build()
}
