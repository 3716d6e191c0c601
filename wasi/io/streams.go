package io

import (
	"context"

	"github.com/wippyai/wasync/errors"
	"github.com/wippyai/wasync/wasi"
)

// blockingChunk is the largest write the blocking helpers issue at once.
const blockingChunk = 4096

type StreamsHost struct {
	resources *wasi.ResourceTable
}

func NewStreamsHost(resources *wasi.ResourceTable) *StreamsHost {
	return &StreamsHost{resources: resources}
}

func (h *StreamsHost) Namespace() string {
	return "wasi:io/streams@0.2.8"
}

func (h *StreamsHost) input(handle uint32) (wasi.InputStream, *wasi.StreamError) {
	r, ok := h.resources.Get(handle)
	if !ok {
		return nil, h.failed(errors.InvalidHandle(errors.PhaseStream, "input-stream", handle))
	}
	s, ok := r.(wasi.InputStream)
	if !ok {
		return nil, h.failed(errors.InvalidHandle(errors.PhaseStream, "input-stream", handle))
	}
	return s, nil
}

func (h *StreamsHost) output(handle uint32) (wasi.OutputStream, *wasi.StreamError) {
	r, ok := h.resources.Get(handle)
	if !ok {
		return nil, h.failed(errors.InvalidHandle(errors.PhaseStream, "output-stream", handle))
	}
	s, ok := r.(wasi.OutputStream)
	if !ok {
		return nil, h.failed(errors.InvalidHandle(errors.PhaseStream, "output-stream", handle))
	}
	return s, nil
}

// failed builds a last-operation-failed error whose details live in an
// error resource the guest can inspect and must drop.
func (h *StreamsHost) failed(cause error) *wasi.StreamError {
	msg := "stream error"
	if cause != nil {
		msg = cause.Error()
	}
	return &wasi.StreamError{
		LastOpFailed:    true,
		LastOpFailedErr: h.resources.Add(wasi.NewErrorResource(msg)),
		Cause:           cause,
	}
}

// streamError normalizes any error from a stream implementation.
func (h *StreamsHost) streamError(err error) *wasi.StreamError {
	if err == nil {
		return nil
	}
	var se *wasi.StreamError
	if errors.As(err, &se) {
		if se.Closed {
			return se
		}
		if se.LastOpFailedErr != 0 {
			return se
		}
		return h.failed(se.Cause)
	}
	return h.failed(err)
}

func (h *StreamsHost) MethodInputStreamRead(_ context.Context, self uint32, length uint64) ([]byte, *wasi.StreamError) {
	stream, serr := h.input(self)
	if serr != nil {
		return nil, serr
	}
	data, err := stream.Read(length)
	if err != nil {
		return nil, h.streamError(err)
	}
	return data, nil
}

func (h *StreamsHost) MethodInputStreamBlockingRead(ctx context.Context, self uint32, length uint64) ([]byte, *wasi.StreamError) {
	stream, serr := h.input(self)
	if serr != nil {
		return nil, serr
	}
	for {
		data, err := stream.Read(length)
		if err != nil {
			return nil, h.streamError(err)
		}
		if len(data) > 0 || length == 0 {
			return data, nil
		}
		if err := wasi.Wait(ctx, stream); err != nil {
			return nil, h.failed(err)
		}
	}
}

func (h *StreamsHost) MethodInputStreamSkip(ctx context.Context, self uint32, length uint64) (uint64, *wasi.StreamError) {
	data, serr := h.MethodInputStreamRead(ctx, self, length)
	if serr != nil {
		return 0, serr
	}
	return uint64(len(data)), nil
}

func (h *StreamsHost) MethodInputStreamBlockingSkip(ctx context.Context, self uint32, length uint64) (uint64, *wasi.StreamError) {
	data, serr := h.MethodInputStreamBlockingRead(ctx, self, length)
	if serr != nil {
		return 0, serr
	}
	return uint64(len(data)), nil
}

// MethodInputStreamSubscribe returns a pollable owned by the stream. The
// stream cannot be dropped until the pollable is.
func (h *StreamsHost) MethodInputStreamSubscribe(_ context.Context, self uint32) (uint32, error) {
	return h.subscribe(self, wasi.ResourceInputStream)
}

func (h *StreamsHost) subscribe(self uint32, typ wasi.ResourceType) (uint32, error) {
	r, ok := h.resources.GetTyped(self, typ)
	if !ok {
		return 0, errors.InvalidHandle(errors.PhaseStream, "subscribe", self)
	}
	source, ok := r.(wasi.Readiness)
	if !ok {
		return 0, errors.Unsupported(errors.PhaseStream, "subscribe on "+typ.String())
	}
	handle, err := h.resources.AddChild(self, wasi.NewStreamPollable(source))
	if err != nil {
		return 0, errors.WrapOp(errors.PhaseStream, errors.KindInvalidHandle, "subscribe", "", err)
	}
	return handle, nil
}

func (h *StreamsHost) MethodOutputStreamCheckWrite(_ context.Context, self uint32) (uint64, *wasi.StreamError) {
	stream, serr := h.output(self)
	if serr != nil {
		return 0, serr
	}
	n, err := stream.CheckWrite()
	if err != nil {
		return 0, h.streamError(err)
	}
	return n, nil
}

func (h *StreamsHost) MethodOutputStreamWrite(_ context.Context, self uint32, contents []byte) *wasi.StreamError {
	stream, serr := h.output(self)
	if serr != nil {
		return serr
	}
	return h.streamError(stream.Write(contents))
}

func (h *StreamsHost) MethodOutputStreamFlush(_ context.Context, self uint32) *wasi.StreamError {
	stream, serr := h.output(self)
	if serr != nil {
		return serr
	}
	return h.streamError(stream.Flush())
}

func (h *StreamsHost) MethodOutputStreamBlockingFlush(ctx context.Context, self uint32) *wasi.StreamError {
	stream, serr := h.output(self)
	if serr != nil {
		return serr
	}
	return h.blockingFlush(ctx, stream)
}

func (h *StreamsHost) blockingFlush(ctx context.Context, stream wasi.OutputStream) *wasi.StreamError {
	if err := stream.Flush(); err != nil {
		return h.streamError(err)
	}
	if err := wasi.Wait(ctx, stream); err != nil {
		return h.failed(err)
	}
	_, err := stream.CheckWrite()
	return h.streamError(err)
}

func (h *StreamsHost) blockingWrite(ctx context.Context, stream wasi.OutputStream, contents []byte) *wasi.StreamError {
	for len(contents) > 0 {
		if err := wasi.Wait(ctx, stream); err != nil {
			return h.failed(err)
		}
		n, err := stream.CheckWrite()
		if err != nil {
			return h.streamError(err)
		}
		if n == 0 {
			continue
		}
		chunk := min(uint64(len(contents)), n, blockingChunk)
		if err := stream.Write(contents[:chunk]); err != nil {
			return h.streamError(err)
		}
		contents = contents[chunk:]
	}
	return h.blockingFlush(ctx, stream)
}

func (h *StreamsHost) MethodOutputStreamBlockingWriteAndFlush(ctx context.Context, self uint32, contents []byte) *wasi.StreamError {
	stream, serr := h.output(self)
	if serr != nil {
		return serr
	}
	return h.blockingWrite(ctx, stream, contents)
}

func (h *StreamsHost) MethodOutputStreamSubscribe(_ context.Context, self uint32) (uint32, error) {
	return h.subscribe(self, wasi.ResourceOutputStream)
}

func (h *StreamsHost) MethodOutputStreamWriteZeroes(ctx context.Context, self uint32, length uint64) *wasi.StreamError {
	if length > wasi.MaxAllocationSize {
		return h.failed(errors.OutOfBounds(errors.PhaseStream, "write-zeroes", int64(length), wasi.MaxAllocationSize))
	}
	return h.MethodOutputStreamWrite(ctx, self, make([]byte, length))
}

func (h *StreamsHost) MethodOutputStreamBlockingWriteZeroesAndFlush(ctx context.Context, self uint32, length uint64) *wasi.StreamError {
	if length > wasi.MaxAllocationSize {
		return h.failed(errors.OutOfBounds(errors.PhaseStream, "write-zeroes", int64(length), wasi.MaxAllocationSize))
	}
	return h.MethodOutputStreamBlockingWriteAndFlush(ctx, self, make([]byte, length))
}

// MethodOutputStreamSplice moves up to length bytes without blocking, bounded
// by what the destination currently permits.
func (h *StreamsHost) MethodOutputStreamSplice(_ context.Context, self uint32, src uint32, length uint64) (uint64, *wasi.StreamError) {
	dst, serr := h.output(self)
	if serr != nil {
		return 0, serr
	}
	in, serr := h.input(src)
	if serr != nil {
		return 0, serr
	}
	permit, err := dst.CheckWrite()
	if err != nil {
		return 0, h.streamError(err)
	}
	length = min(length, permit)
	if length == 0 {
		return 0, nil
	}
	data, err := in.Read(length)
	if err != nil {
		return 0, h.streamError(err)
	}
	if err := dst.Write(data); err != nil {
		return 0, h.streamError(err)
	}
	return uint64(len(data)), nil
}

func (h *StreamsHost) MethodOutputStreamBlockingSplice(ctx context.Context, self uint32, src uint32, length uint64) (uint64, *wasi.StreamError) {
	in, serr := h.input(src)
	if serr != nil {
		return 0, serr
	}
	dst, serr := h.output(self)
	if serr != nil {
		return 0, serr
	}
	if err := wasi.Wait(ctx, in); err != nil {
		return 0, h.failed(err)
	}
	if err := wasi.Wait(ctx, dst); err != nil {
		return 0, h.failed(err)
	}
	return h.MethodOutputStreamSplice(ctx, self, src, length)
}

// ResourceDropInputStream is refused while a subscription is live.
func (h *StreamsHost) ResourceDropInputStream(_ context.Context, self uint32) error {
	return wasi.DropError(errors.PhaseStream, "drop-input-stream", self, h.resources.Remove(self))
}

// ResourceDropOutputStream is refused while a subscription is live.
func (h *StreamsHost) ResourceDropOutputStream(_ context.Context, self uint32) error {
	return wasi.DropError(errors.PhaseStream, "drop-output-stream", self, h.resources.Remove(self))
}

func (h *StreamsHost) Register() map[string]any {
	return map[string]any{
		"[method]input-stream.read":          h.MethodInputStreamRead,
		"[method]input-stream.blocking-read": h.MethodInputStreamBlockingRead,
		"[method]input-stream.skip":          h.MethodInputStreamSkip,
		"[method]input-stream.blocking-skip": h.MethodInputStreamBlockingSkip,
		"[method]input-stream.subscribe":     h.MethodInputStreamSubscribe,
		// Output stream methods
		"[method]output-stream.check-write":                     h.MethodOutputStreamCheckWrite,
		"[method]output-stream.write":                           h.MethodOutputStreamWrite,
		"[method]output-stream.blocking-write-and-flush":        h.MethodOutputStreamBlockingWriteAndFlush,
		"[method]output-stream.flush":                           h.MethodOutputStreamFlush,
		"[method]output-stream.blocking-flush":                  h.MethodOutputStreamBlockingFlush,
		"[method]output-stream.subscribe":                       h.MethodOutputStreamSubscribe,
		"[method]output-stream.write-zeroes":                    h.MethodOutputStreamWriteZeroes,
		"[method]output-stream.blocking-write-zeroes-and-flush": h.MethodOutputStreamBlockingWriteZeroesAndFlush,
		"[method]output-stream.splice":                          h.MethodOutputStreamSplice,
		"[method]output-stream.blocking-splice":                 h.MethodOutputStreamBlockingSplice,
		// Resource destructors
		"[resource-drop]input-stream":  h.ResourceDropInputStream,
		"[resource-drop]output-stream": h.ResourceDropOutputStream,
	}
}
