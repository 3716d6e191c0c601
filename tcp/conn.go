package tcp

import (
	"context"
	"net/netip"

	"go.uber.org/zap"

	"github.com/wippyai/wasync/errors"
	"github.com/wippyai/wasync/stream"
	"github.com/wippyai/wasync/wasi/sockets"
)

// Close selects which direction Shutdown closes.
type Close uint8

const (
	CloseRead Close = iota
	CloseWrite
	CloseBoth
)

func (c Close) shutdownType() sockets.ShutdownType {
	switch c {
	case CloseRead:
		return sockets.ShutdownReceive
	case CloseWrite:
		return sockets.ShutdownSend
	default:
		return sockets.ShutdownBoth
	}
}

// Conn is a connected socket with its input and output streams. The streams
// are children of the socket, so Close releases them first.
type Conn struct {
	sock   *socket
	in     *stream.InputStream
	out    *stream.OutputStream
	local  netip.AddrPort
	remote netip.AddrPort
	closed bool
}

func newConn(ctx context.Context, sock *socket, in, out uint32) *Conn {
	c := &Conn{
		sock: sock,
		in:   stream.NewInputStream(sock.h, in),
		out:  stream.NewOutputStream(sock.h, out).WithClosedError(errReset),
	}
	c.local, _ = sock.h.TCP.MethodTCPSocketLocalAddress(ctx, sock.handle)
	c.remote, _ = sock.h.TCP.MethodTCPSocketRemoteAddress(ctx, sock.handle)
	return c
}

func (c *Conn) LocalAddr() netip.AddrPort  { return c.local }
func (c *Conn) RemoteAddr() netip.AddrPort { return c.remote }

// Read returns io.EOF once the peer has shut down its side.
func (c *Conn) Read(ctx context.Context, p []byte) (int, error) {
	if c.closed {
		return 0, errors.Closed(errors.PhaseNetwork, "read")
	}
	return c.in.Read(ctx, p)
}

// Readable waits until a read would not block.
func (c *Conn) Readable(ctx context.Context) error {
	if c.closed {
		return errors.Closed(errors.PhaseNetwork, "readable")
	}
	return c.in.Readable(ctx)
}

// Write sends all of p and waits until it has been handed to the network.
func (c *Conn) Write(ctx context.Context, p []byte) (int, error) {
	if c.closed {
		return 0, errors.Closed(errors.PhaseNetwork, "write")
	}
	return c.out.Write(ctx, p)
}

func (c *Conn) Flush(ctx context.Context) error {
	if c.closed {
		return errors.Closed(errors.PhaseNetwork, "flush")
	}
	return c.out.Flush(ctx)
}

// Shutdown closes one or both directions of the connection.
func (c *Conn) Shutdown(ctx context.Context, how Close) error {
	if c.closed {
		return errors.Closed(errors.PhaseNetwork, "shutdown")
	}
	if ne := c.sock.h.TCP.MethodTCPSocketShutdown(ctx, c.sock.handle, how.shutdownType()); ne != nil {
		return netError("shutdown", c.remote, ne)
	}
	return nil
}

// Split returns the read and write halves. They stay owned by the Conn.
func (c *Conn) Split() (*Reader, *Writer) {
	return &Reader{in: c.in}, &Writer{out: c.out}
}

// Abort releases the connection without shutting it down first.
func (c *Conn) Abort() error {
	if c.closed {
		return nil
	}
	Logger().Debug("aborting connection", zap.Stringer("peer", c.remote))
	return c.release()
}

// Close shuts down both directions and releases the streams and the socket.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	// the peer may already be gone; shutdown failures do not stop the release
	_ = c.Shutdown(context.Background(), CloseBoth)
	Logger().Debug("closing connection", zap.Stringer("peer", c.remote))
	return c.release()
}

func (c *Conn) release() error {
	c.closed = true
	return errors.Join(c.in.Close(), c.out.Close(), c.sock.release())
}
