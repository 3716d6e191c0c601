package stream

import (
	"bytes"
	"context"
	"io"
	"iter"
	"strings"
)

// DefaultBufferSize is the buffer size of BufReader and BufWriter.
const DefaultBufferSize = 8192

// BufReader buffers a Reader and splits it into lines.
type BufReader struct {
	inner Reader
	buf   []byte
	pos   int
	cap   int
	err   error
}

func NewBufReader(r Reader) *BufReader {
	return NewBufReaderSize(r, DefaultBufferSize)
}

func NewBufReaderSize(r Reader, size int) *BufReader {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &BufReader{inner: r, buf: make([]byte, size)}
}

// Inner returns the wrapped reader.
func (b *BufReader) Inner() Reader { return b.inner }

// Buffered returns the number of bytes that can be read without waiting.
func (b *BufReader) Buffered() int { return b.cap - b.pos }

// FillBuf returns the buffered bytes, reading from the inner reader when
// the buffer is empty. At end of stream it returns io.EOF.
func (b *BufReader) FillBuf(ctx context.Context) ([]byte, error) {
	if b.pos >= b.cap {
		if b.err != nil {
			return nil, b.err
		}
		n, err := b.inner.Read(ctx, b.buf)
		b.pos, b.cap = 0, n
		if n == 0 && err != nil {
			if err == io.EOF {
				b.err = err
			}
			return nil, err
		}
		// an error alongside data is reported once the data is consumed
		b.err = err
	}
	return b.buf[b.pos:b.cap], nil
}

// Consume marks n buffered bytes as read.
func (b *BufReader) Consume(n int) {
	b.pos = min(b.pos+n, b.cap)
}

func (b *BufReader) Read(ctx context.Context, p []byte) (int, error) {
	avail, err := b.FillBuf(ctx)
	if err != nil {
		return 0, err
	}
	n := copy(p, avail)
	b.Consume(n)
	return n, nil
}

// ReadLine reads through the next newline and returns the line including it.
// Invalid UTF-8 is replaced. The last line may lack a newline; after it,
// ReadLine returns "" and io.EOF.
func (b *BufReader) ReadLine(ctx context.Context) (string, error) {
	var line []byte
	for {
		avail, err := b.FillBuf(ctx)
		if err == io.EOF {
			if len(line) == 0 {
				return "", io.EOF
			}
			break
		}
		if err != nil {
			return "", err
		}
		if i := bytes.IndexByte(avail, '\n'); i >= 0 {
			line = append(line, avail[:i+1]...)
			b.Consume(i + 1)
			break
		}
		line = append(line, avail...)
		b.Consume(len(avail))
	}
	return strings.ToValidUTF8(string(line), "�"), nil
}

// ReadLineString reads the next line without its line ending.
// ok is false at end of stream.
func (b *BufReader) ReadLineString(ctx context.Context) (line string, ok bool, err error) {
	line, err = b.ReadLine(ctx)
	if err == io.EOF {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, true, nil
}

// Lines iterates over lines without their line endings. Iteration stops at
// end of stream or after yielding an error.
func (b *BufReader) Lines(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for {
			line, ok, err := b.ReadLineString(ctx)
			if err != nil {
				yield("", err)
				return
			}
			if !ok || !yield(line, nil) {
				return
			}
		}
	}
}

// BufWriter buffers writes to a Writer.
type BufWriter struct {
	inner Writer
	buf   []byte
	n     int
}

func NewBufWriter(w Writer) *BufWriter {
	return NewBufWriterSize(w, DefaultBufferSize)
}

func NewBufWriterSize(w Writer, size int) *BufWriter {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &BufWriter{inner: w, buf: make([]byte, size)}
}

// Inner returns the wrapped writer.
func (b *BufWriter) Inner() Writer { return b.inner }

// Buffered returns the number of bytes waiting for Flush.
func (b *BufWriter) Buffered() int { return b.n }

// Capacity returns the size of the buffer.
func (b *BufWriter) Capacity() int { return len(b.buf) }

// Write buffers p. When p does not fit the buffer is flushed first, and a p
// at least as large as the buffer goes straight to the inner writer.
func (b *BufWriter) Write(ctx context.Context, p []byte) (int, error) {
	if b.n+len(p) > len(b.buf) {
		if err := b.flushBuffer(ctx); err != nil {
			return 0, err
		}
		if len(p) >= len(b.buf) {
			return b.inner.Write(ctx, p)
		}
	}
	n := copy(b.buf[b.n:], p)
	b.n += n
	return n, nil
}

func (b *BufWriter) WriteString(ctx context.Context, s string) (int, error) {
	return b.Write(ctx, []byte(s))
}

// Flush writes out the buffer.
func (b *BufWriter) Flush(ctx context.Context) error {
	return b.flushBuffer(ctx)
}

func (b *BufWriter) flushBuffer(ctx context.Context) error {
	if b.n == 0 {
		return nil
	}
	n, err := b.inner.Write(ctx, b.buf[:b.n])
	if n > 0 && n < b.n {
		copy(b.buf, b.buf[n:b.n])
	}
	b.n -= n
	if err == nil && b.n > 0 {
		err = io.ErrShortWrite
	}
	return err
}
