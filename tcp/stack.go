package tcp

import (
	"context"
	"net/netip"

	"go.uber.org/zap"

	"github.com/wippyai/wasync/errors"
	"github.com/wippyai/wasync/stream"
	"github.com/wippyai/wasync/wasi"
	"github.com/wippyai/wasync/wasi/host"
	"github.com/wippyai/wasync/wasi/sockets"
)

// Stack opens sockets on the host's instance network.
type Stack struct {
	h *host.WASIHost
}

func NewStack(h *host.WASIHost) *Stack {
	return &Stack{h: h}
}

func familyOf(addr netip.AddrPort) uint8 {
	if addr.Addr().Is4() {
		return wasi.AddressFamilyIPv4
	}
	return wasi.AddressFamilyIPv6
}

func (s *Stack) create(ctx context.Context, op string, addr netip.AddrPort) (*socket, error) {
	if !addr.IsValid() {
		return nil, errors.New(errors.PhaseNetwork, errors.KindInvalidInput).
			Op(op).
			Detail("invalid address").
			Build()
	}
	handle, ne := s.h.TCPCreate.CreateTCPSocket(ctx, familyOf(addr))
	if ne != nil {
		return nil, netError(op, addr, ne)
	}
	return &socket{h: s.h, handle: handle}, nil
}

// withNetwork runs fn with a network handle that is dropped afterwards.
func (s *Stack) withNetwork(ctx context.Context, fn func(network uint32) *sockets.NetworkError) *sockets.NetworkError {
	network := s.h.Network.InstanceNetwork(ctx)
	defer func() { _ = s.h.Network.ResourceDropNetwork(ctx, network) }()
	return fn(network)
}

// Bind creates a socket, binds it to addr and starts listening. Port 0
// picks a free port; Listener.Addr reports it.
func (s *Stack) Bind(ctx context.Context, addr netip.AddrPort) (_ *Listener, err error) {
	addr = netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port())
	sock, err := s.create(ctx, "bind", addr)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = sock.release()
		}
	}()

	ne := s.withNetwork(ctx, func(network uint32) *sockets.NetworkError {
		return s.h.TCP.MethodTCPSocketStartBind(ctx, sock.handle, network, addr)
	})
	if ne != nil {
		return nil, netError("bind", addr, ne)
	}
	if err := sock.wait(ctx); err != nil {
		return nil, err
	}
	if ne := s.h.TCP.MethodTCPSocketFinishBind(ctx, sock.handle); ne != nil {
		return nil, netError("bind", addr, ne)
	}

	if ne := s.h.TCP.MethodTCPSocketStartListen(ctx, sock.handle); ne != nil {
		return nil, netError("listen", addr, ne)
	}
	for {
		if err := sock.wait(ctx); err != nil {
			return nil, err
		}
		ne := s.h.TCP.MethodTCPSocketFinishListen(ctx, sock.handle)
		if ne == nil {
			break
		}
		if ne.Code != sockets.NetworkErrorWouldBlock {
			return nil, netError("listen", addr, ne)
		}
	}

	l := &Listener{sock: sock}
	l.addr, _ = s.h.TCP.MethodTCPSocketLocalAddress(ctx, sock.handle)
	Logger().Debug("listening", zap.Stringer("addr", l.addr))
	return l, nil
}

// Dial connects to addr.
func (s *Stack) Dial(ctx context.Context, addr netip.AddrPort) (_ *Conn, err error) {
	addr = netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port())
	sock, err := s.create(ctx, "dial", addr)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = sock.release()
		}
	}()

	ne := s.withNetwork(ctx, func(network uint32) *sockets.NetworkError {
		return s.h.TCP.MethodTCPSocketStartConnect(ctx, sock.handle, network, addr)
	})
	if ne != nil {
		return nil, netError("dial", addr, ne)
	}
	for {
		if err := sock.wait(ctx); err != nil {
			return nil, err
		}
		in, out, ne := s.h.TCP.MethodTCPSocketFinishConnect(ctx, sock.handle)
		if ne == nil {
			Logger().Debug("connected", zap.Stringer("addr", addr))
			return newConn(ctx, sock, in, out), nil
		}
		if ne.Code != sockets.NetworkErrorWouldBlock {
			return nil, netError("dial", addr, ne)
		}
	}
}

// Listener accepts connections on a bound, listening socket.
type Listener struct {
	sock   *socket
	addr   netip.AddrPort
	closed bool
}

// Addr returns the local address, including the port picked for port 0.
func (l *Listener) Addr() netip.AddrPort { return l.addr }

// Accept waits for the next connection and returns it with the peer address.
func (l *Listener) Accept(ctx context.Context) (*Conn, netip.AddrPort, error) {
	if l.closed {
		return nil, netip.AddrPort{}, errors.Closed(errors.PhaseNetwork, "accept")
	}
	for {
		handle, in, out, ne := l.sock.h.TCP.MethodTCPSocketAccept(ctx, l.sock.handle)
		if ne == nil {
			c := newConn(ctx, &socket{h: l.sock.h, handle: handle}, in, out)
			Logger().Debug("accepted", zap.Stringer("peer", c.remote))
			return c, c.remote, nil
		}
		if ne.Code != sockets.NetworkErrorWouldBlock {
			return nil, netip.AddrPort{}, netError("accept", l.addr, ne)
		}
		if err := l.sock.wait(ctx); err != nil {
			return nil, netip.AddrPort{}, err
		}
	}
}

// Close stops listening. Connections already accepted stay open.
func (l *Listener) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	return l.sock.release()
}

// Reader is the read half of a split connection.
type Reader struct {
	in *stream.InputStream
}

func (r *Reader) Read(ctx context.Context, p []byte) (int, error) { return r.in.Read(ctx, p) }

// Readable waits until a read would not block.
func (r *Reader) Readable(ctx context.Context) error { return r.in.Readable(ctx) }

// Writer is the write half of a split connection.
type Writer struct {
	out *stream.OutputStream
}

func (w *Writer) Write(ctx context.Context, p []byte) (int, error) { return w.out.Write(ctx, p) }
func (w *Writer) Flush(ctx context.Context) error                  { return w.out.Flush(ctx) }
