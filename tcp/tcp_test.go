package tcp

import (
	"context"
	"io"
	"net"
	"net/netip"
	"syscall"
	"testing"
	"time"

	"github.com/wippyai/wasync/errors"
	"github.com/wippyai/wasync/executor"
	"github.com/wippyai/wasync/stream"
	"github.com/wippyai/wasync/wasi"
	"github.com/wippyai/wasync/wasi/host"
)

var loopback = netip.MustParseAddrPort("127.0.0.1:0")

func newHost(t *testing.T) *host.WASIHost {
	t.Helper()
	h := host.New(wasi.New())
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func runTask(t *testing.T, h *host.WASIHost, fn func(ctx context.Context) error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := executor.New(h).Run(ctx, func(s *executor.Spawner) {
		s.Spawn("test", fn)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func readAll(ctx context.Context, r stream.Reader) (string, error) {
	b, err := io.ReadAll(stream.NewReader(ctx, r))
	return string(b), err
}

func TestEcho(t *testing.T) {
	h := newHost(t)

	runTask(t, h, func(ctx context.Context) error {
		stack := NewStack(h)
		l, err := stack.Bind(ctx, loopback)
		if err != nil {
			return err
		}
		defer l.Close()
		if l.Addr().Port() == 0 {
			t.Errorf("listener address %v has no port", l.Addr())
		}

		err = executor.Spawn(ctx, "client", func(ctx context.Context) error {
			c, err := stack.Dial(ctx, l.Addr())
			if err != nil {
				return err
			}
			defer c.Close()
			if !c.LocalAddr().IsValid() {
				t.Error("dialed connection has no local address")
			}
			if c.RemoteAddr() != l.Addr() {
				t.Errorf("remote = %v, want %v", c.RemoteAddr(), l.Addr())
			}

			r, w := c.Split()
			if _, err := w.Write(ctx, []byte("ping")); err != nil {
				return err
			}
			if err := c.Shutdown(ctx, CloseWrite); err != nil {
				return err
			}
			got, err := readAll(ctx, r)
			if err != nil {
				return err
			}
			if got != "ping" {
				t.Errorf("echoed %q", got)
			}
			return nil
		})
		if err != nil {
			return err
		}

		conn, peer, err := l.Accept(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()
		if peer != conn.RemoteAddr() {
			t.Errorf("peer %v != remote %v", peer, conn.RemoteAddr())
		}
		n, err := stream.Copy(ctx, conn, conn)
		if err != nil {
			return err
		}
		if n != 4 {
			t.Errorf("copied %d bytes", n)
		}
		return nil
	})

	if n := h.Resources.Len(); n != 0 {
		t.Fatalf("%d resources leaked", n)
	}
}

func TestAccept_HostClient(t *testing.T) {
	h := newHost(t)

	runTask(t, h, func(ctx context.Context) error {
		l, err := NewStack(h).Bind(ctx, loopback)
		if err != nil {
			return err
		}
		defer l.Close()

		go func() {
			nc, err := net.Dial("tcp", l.Addr().String())
			if err != nil {
				t.Errorf("dial: %v", err)
				return
			}
			defer nc.Close()
			_, _ = nc.Write([]byte("hello\nworld\n"))
		}()

		conn, _, err := l.Accept(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()

		if err := conn.Readable(ctx); err != nil {
			return err
		}
		var lines []string
		for line, err := range stream.NewBufReader(conn).Lines(ctx) {
			if err != nil {
				return err
			}
			lines = append(lines, line)
		}
		if len(lines) != 2 || lines[0] != "hello" || lines[1] != "world" {
			t.Errorf("lines = %q", lines)
		}
		return nil
	})
}

func TestDial_Refused(t *testing.T) {
	nl, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := nl.Addr().(*net.TCPAddr).AddrPort()
	_ = nl.Close()

	h := newHost(t)
	runTask(t, h, func(ctx context.Context) error {
		_, err := NewStack(h).Dial(ctx, addr)
		if !errors.Is(err, syscall.ECONNREFUSED) {
			t.Errorf("expected ECONNREFUSED, got %v", err)
		}
		return nil
	})

	if n := h.Resources.Len(); n != 0 {
		t.Fatalf("%d resources leaked", n)
	}
}

func TestBind_Errors(t *testing.T) {
	nl, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer nl.Close()
	taken := nl.Addr().(*net.TCPAddr).AddrPort()

	h := newHost(t)
	runTask(t, h, func(ctx context.Context) error {
		stack := NewStack(h)
		if _, err := stack.Bind(ctx, taken); !errors.Is(err, syscall.EADDRINUSE) {
			t.Errorf("expected EADDRINUSE, got %v", err)
		}
		want := &errors.Error{Phase: errors.PhaseNetwork, Kind: errors.KindInvalidInput}
		if _, err := stack.Bind(ctx, netip.AddrPort{}); !errors.Is(err, want) {
			t.Errorf("expected invalid input, got %v", err)
		}
		return nil
	})

	if n := h.Resources.Len(); n != 0 {
		t.Fatalf("%d resources leaked", n)
	}
}

func TestBind_IPv6(t *testing.T) {
	probe, err := net.Listen("tcp6", "[::1]:0")
	if err != nil {
		t.Skip("no IPv6 loopback")
	}
	_ = probe.Close()

	h := newHost(t)
	runTask(t, h, func(ctx context.Context) error {
		l, err := NewStack(h).Bind(ctx, netip.MustParseAddrPort("[::1]:0"))
		if err != nil {
			return err
		}
		defer l.Close()
		if !l.Addr().Addr().Is6() || l.Addr().Port() == 0 {
			t.Errorf("addr = %v", l.Addr())
		}
		return nil
	})
}

func TestConn_AbortAndClosed(t *testing.T) {
	h := newHost(t)

	runTask(t, h, func(ctx context.Context) error {
		stack := NewStack(h)
		l, err := stack.Bind(ctx, loopback)
		if err != nil {
			return err
		}
		defer l.Close()

		err = executor.Spawn(ctx, "client", func(ctx context.Context) error {
			c, err := stack.Dial(ctx, l.Addr())
			if err != nil {
				return err
			}
			if err := c.Abort(); err != nil {
				return err
			}
			want := &errors.Error{Phase: errors.PhaseNetwork, Kind: errors.KindClosed}
			if _, err := c.Write(ctx, []byte("x")); !errors.Is(err, want) {
				t.Errorf("write after abort = %v", err)
			}
			return c.Close()
		})
		if err != nil {
			return err
		}

		conn, _, err := l.Accept(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()
		// a reset peer may surface as an I/O error instead of EOF
		if got, _ := readAll(ctx, conn); got != "" {
			t.Errorf("read %q after peer abort", got)
		}
		return nil
	})

	if n := h.Resources.Len(); n != 0 {
		t.Fatalf("%d resources leaked", n)
	}
}

func TestListener_AcceptAfterClose(t *testing.T) {
	h := newHost(t)
	runTask(t, h, func(ctx context.Context) error {
		l, err := NewStack(h).Bind(ctx, loopback)
		if err != nil {
			return err
		}
		if err := l.Close(); err != nil {
			return err
		}
		if _, _, err := l.Accept(ctx); err == nil {
			t.Error("accept on a closed listener should fail")
		}
		return nil
	})
}
