package stream

import (
	"bytes"
	"context"
	stdio "io"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/wippyai/wasync/errors"
	"github.com/wippyai/wasync/executor"
	"github.com/wippyai/wasync/wasi"
	"github.com/wippyai/wasync/wasi/host"
)

func runTask(t *testing.T, h *host.WASIHost, fn func(ctx context.Context) error) {
	t.Helper()
	err := executor.New(h).Run(context.Background(), func(s *executor.Spawner) {
		s.Spawn("test", fn)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestCopy_EchoesStdinToStdout(t *testing.T) {
	w := wasi.New().WithStdin([]byte("hello\nworld\n"))
	h := host.New(w)
	defer h.Close()

	runTask(t, h, func(ctx context.Context) error {
		out := Stdout(h)
		n, err := Copy(ctx, out, Stdin(h))
		if err != nil {
			return err
		}
		if n != 12 {
			t.Errorf("copied %d bytes", n)
		}
		return out.Flush(ctx)
	})

	if got := string(w.Stdout()); got != "hello\nworld\n" {
		t.Fatalf("stdout = %q", got)
	}
}

func TestBufReader_Lines(t *testing.T) {
	h := host.New(wasi.New().WithStdin([]byte("a\r\nb\n\nc")))
	defer h.Close()

	var lines []string
	runTask(t, h, func(ctx context.Context) error {
		for line, err := range Stdin(h).Lines(ctx) {
			if err != nil {
				return err
			}
			lines = append(lines, line)
		}
		return nil
	})

	if want := []string{"a", "b", "", "c"}; !slices.Equal(lines, want) {
		t.Fatalf("lines = %q, want %q", lines, want)
	}
}

func TestBufReader_ReadLine(t *testing.T) {
	h := host.New(wasi.New().WithStdin([]byte("ok\nbad\xff\ntail")))
	defer h.Close()

	runTask(t, h, func(ctx context.Context) error {
		r := NewBufReaderSize(NewInputStream(h, h.Stdio.GetStdin(ctx)), 4)
		for _, want := range []string{"ok\n", "bad�\n", "tail"} {
			got, err := r.ReadLine(ctx)
			if err != nil {
				return err
			}
			if got != want {
				t.Errorf("ReadLine = %q, want %q", got, want)
			}
		}
		if _, err := r.ReadLine(ctx); err != stdio.EOF {
			t.Errorf("expected EOF, got %v", err)
		}
		if _, ok, err := r.ReadLineString(ctx); ok || err != nil {
			t.Errorf("ReadLineString at EOF = %v, %v", ok, err)
		}
		return nil
	})
}

func TestInputStream_WaitsForPipe(t *testing.T) {
	h := host.New(wasi.New())
	defer h.Close()

	pr, pw := stdio.Pipe()
	handle := h.Resources.Add(wasi.NewPipeInputStream(pr, 0))
	go func() {
		time.Sleep(10 * time.Millisecond)
		_, _ = pw.Write([]byte("late"))
		_ = pw.Close()
	}()

	runTask(t, h, func(ctx context.Context) error {
		in := NewInputStream(h, handle)
		data, err := stdio.ReadAll(NewReader(ctx, in))
		if err != nil {
			return err
		}
		if string(data) != "late" {
			t.Errorf("read %q", data)
		}
		if in.sub == 0 {
			t.Error("an empty read should have subscribed")
		}
		before := h.Resources.Len()
		if err := in.Close(); err != nil {
			return err
		}
		if got := before - h.Resources.Len(); got != 2 {
			t.Errorf("Close dropped %d resources, want 2", got)
		}
		if _, err := in.Read(ctx, make([]byte, 1)); err == nil {
			t.Error("read after Close should fail")
		}
		return nil
	})
}

func TestOutputStream_LoopsOverSmallPermits(t *testing.T) {
	h := host.New(wasi.New())
	defer h.Close()

	var dst bytes.Buffer
	handle := h.Resources.Add(wasi.NewPipeOutputStream(&dst, 8))
	payload := strings.Repeat("0123456789", 10)

	runTask(t, h, func(ctx context.Context) error {
		out := NewOutputStream(h, handle)
		defer out.Close()
		n, err := NewWriter(ctx, out).Write([]byte(payload))
		if err != nil {
			return err
		}
		if n != len(payload) {
			t.Errorf("wrote %d of %d", n, len(payload))
		}
		return nil
	})

	if dst.String() != payload {
		t.Fatalf("destination got %q", dst.String())
	}
}

func TestOutputStream_Errors(t *testing.T) {
	h := host.New(wasi.New())
	defer h.Close()

	closed := wasi.NewBufferOutputStream(nil)
	closed.Close()
	closedHandle := h.Resources.Add(closed)

	failing := wasi.NewPipeOutputStream(stdio.Discard, 0)
	failing.CloseWithError(errors.Sentinel("disk on fire"))
	failingHandle := h.Resources.Add(failing)

	full := wasi.NewPipeOutputStream(stdio.Discard, 0)
	full.CloseWithError(errors.Sentinel("quota at 100% (5%d used)"))
	fullHandle := h.Resources.Add(full)

	runTask(t, h, func(ctx context.Context) error {
		if _, err := NewOutputStream(h, closedHandle).Write(ctx, []byte("x")); err != stdio.ErrClosedPipe {
			t.Errorf("closed stream: %v", err)
		}

		before := h.Resources.Len()
		_, err := NewOutputStream(h, failingHandle).Write(ctx, []byte("x"))
		ioErr := &errors.Error{Phase: errors.PhaseStream, Kind: errors.KindIO}
		if !errors.Is(err, ioErr) || !strings.Contains(err.Error(), "disk on fire") {
			t.Errorf("failed stream: %v", err)
		}
		if h.Resources.Len() != before {
			t.Error("error resource should be dropped after reading it")
		}

		_, err = NewOutputStream(h, fullHandle).Write(ctx, []byte("x"))
		if err == nil || !strings.Contains(err.Error(), "quota at 100% (5%d used)") {
			t.Errorf("host message should be kept verbatim: %v", err)
		}
		return nil
	})
}

type chunkRecorder struct {
	writes [][]byte
}

func (c *chunkRecorder) Write(_ context.Context, p []byte) (int, error) {
	c.writes = append(c.writes, bytes.Clone(p))
	return len(p), nil
}

func TestBufWriter(t *testing.T) {
	ctx := context.Background()
	rec := &chunkRecorder{}
	w := NewBufWriterSize(rec, 4)

	if w.Capacity() != 4 {
		t.Fatalf("capacity = %d", w.Capacity())
	}
	_, _ = w.Write(ctx, []byte("ab"))
	if w.Buffered() != 2 || len(rec.writes) != 0 {
		t.Fatalf("small write should stay buffered")
	}
	_, _ = w.Write(ctx, []byte("cde"))
	if len(rec.writes) != 1 || string(rec.writes[0]) != "ab" {
		t.Fatalf("overflow should flush first, got %q", rec.writes)
	}
	_, _ = w.Write(ctx, []byte("0123456789"))
	if len(rec.writes) != 3 || string(rec.writes[2]) != "0123456789" {
		t.Fatalf("large write should bypass the buffer, got %q", rec.writes)
	}
	if err := w.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if w.Buffered() != 0 {
		t.Fatal("flush should empty the buffer")
	}
}

func TestStdio_Combined(t *testing.T) {
	w := wasi.New().WithStdin([]byte("ping"))
	h := host.New(w)
	defer h.Close()

	runTask(t, h, func(ctx context.Context) error {
		rw := Stdio(h)
		buf := make([]byte, 16)
		n, err := rw.Read(ctx, buf)
		if err != nil {
			return err
		}
		if _, err := rw.Write(ctx, bytes.ToUpper(buf[:n])); err != nil {
			return err
		}
		return rw.Flush(ctx)
	})

	if got := string(w.Stdout()); got != "PING" {
		t.Fatalf("stdout = %q", got)
	}
}
