package stream

import (
	"context"
	"io"
)

// Combined reads from one side and writes to the other.
type Combined struct {
	Reader Reader
	Writer Writer
}

func Combine(r Reader, w Writer) *Combined {
	return &Combined{Reader: r, Writer: w}
}

func (c *Combined) Read(ctx context.Context, p []byte) (int, error) {
	return c.Reader.Read(ctx, p)
}

func (c *Combined) Write(ctx context.Context, p []byte) (int, error) {
	return c.Writer.Write(ctx, p)
}

// Flush flushes the writer side if it buffers.
func (c *Combined) Flush(ctx context.Context) error {
	if f, ok := c.Writer.(Flusher); ok {
		return f.Flush(ctx)
	}
	return nil
}

// Copy copies src to dst until end of stream and returns the number of
// bytes copied.
func Copy(ctx context.Context, dst Writer, src Reader) (int64, error) {
	br, ok := src.(*BufReader)
	if !ok {
		br = NewBufReader(src)
	}
	var total int64
	for {
		buf, err := br.FillBuf(ctx)
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
		n, err := dst.Write(ctx, buf)
		br.Consume(n)
		total += int64(n)
		if err != nil {
			return total, err
		}
		if n < len(buf) {
			return total, io.ErrShortWrite
		}
	}
}

// NewReader adapts r to io.Reader, binding every read to ctx.
func NewReader(ctx context.Context, r Reader) io.Reader {
	return &ioReader{ctx: ctx, r: r}
}

// NewWriter adapts w to io.Writer, binding every write to ctx.
func NewWriter(ctx context.Context, w Writer) io.Writer {
	return &ioWriter{ctx: ctx, w: w}
}

type ioReader struct {
	ctx context.Context
	r   Reader
}

func (a *ioReader) Read(p []byte) (int, error) { return a.r.Read(a.ctx, p) }

type ioWriter struct {
	ctx context.Context
	w   Writer
}

func (a *ioWriter) Write(p []byte) (int, error) { return a.w.Write(a.ctx, p) }
