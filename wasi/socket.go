package wasi

import (
	"context"
	"net"
	"net/netip"
	"sync"
)

// NetworkResource represents a network instance for socket creation.
type NetworkResource struct{}

func NewNetworkResource() *NetworkResource {
	return &NetworkResource{}
}

func (n *NetworkResource) Type() ResourceType { return ResourceNetwork }
func (n *NetworkResource) Drop()              {}

// TCPState represents the state of a TCP socket
type TCPState uint8

const (
	TCPStateUnbound TCPState = iota
	TCPStateBindInProgress
	TCPStateBound
	TCPStateListenInProgress
	TCPStateListening
	TCPStateConnectInProgress
	TCPStateConnected
	TCPStateClosed
)

var tcpStateNames = [...]string{
	TCPStateUnbound:           "unbound",
	TCPStateBindInProgress:    "bind-in-progress",
	TCPStateBound:             "bound",
	TCPStateListenInProgress:  "listen-in-progress",
	TCPStateListening:         "listening",
	TCPStateConnectInProgress: "connect-in-progress",
	TCPStateConnected:         "connected",
	TCPStateClosed:            "closed",
}

func (s TCPState) String() string {
	if int(s) < len(tcpStateNames) {
		return tcpStateNames[s]
	}
	return "unknown"
}

const (
	AddressFamilyIPv4 uint8 = 0
	AddressFamilyIPv6 uint8 = 1
)

// DefaultListenBacklog bounds the number of accepted connections queued
// before the guest calls accept.
const DefaultListenBacklog = 128

// TCPSocketResource represents a TCP socket with full connection lifecycle.
// Listening and connecting run on background goroutines; their progress is
// observed through Ready and Signal, which back the socket's pollable.
type TCPSocketResource struct {
	listener   net.Listener
	conn       net.Conn
	pendingErr error
	acceptErr  error
	notify     *Notifier
	queueCond  *sync.Cond
	queue      []net.Conn
	localAddr  netip.AddrPort
	remoteAddr netip.AddrPort
	backlog    int
	mu         sync.Mutex
	state      TCPState
	family     uint8
}

func NewTCPSocketResource(family uint8) *TCPSocketResource {
	s := &TCPSocketResource{
		family:  family,
		state:   TCPStateUnbound,
		backlog: DefaultListenBacklog,
		notify:  NewNotifier(),
	}
	s.queueCond = sync.NewCond(&s.mu)
	return s
}

// NewConnectedTCPSocket wraps an accepted or dialed connection.
func NewConnectedTCPSocket(family uint8, conn net.Conn) *TCPSocketResource {
	s := NewTCPSocketResource(family)
	s.conn = conn
	s.state = TCPStateConnected
	s.localAddr = addrPortOf(conn.LocalAddr())
	s.remoteAddr = addrPortOf(conn.RemoteAddr())
	return s
}

func addrPortOf(a net.Addr) netip.AddrPort {
	var ap netip.AddrPort
	if tcp, ok := a.(*net.TCPAddr); ok {
		ap = tcp.AddrPort()
	} else {
		ap, _ = netip.ParseAddrPort(a.String())
	}
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

func (s *TCPSocketResource) Type() ResourceType { return ResourceTCPSocket }

func (s *TCPSocketResource) Drop() {
	s.mu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
	for _, c := range s.queue {
		_ = c.Close()
	}
	s.queue = nil
	s.state = TCPStateClosed
	s.queueCond.Broadcast()
	s.mu.Unlock()
	s.notify.Notify()
}

func (s *TCPSocketResource) Family() uint8 { return s.family }

func (s *TCPSocketResource) State() TCPState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *TCPSocketResource) SetState(state TCPState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.notify.Notify()
}

func (s *TCPSocketResource) LocalAddr() netip.AddrPort {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localAddr
}

func (s *TCPSocketResource) SetLocalAddr(ap netip.AddrPort) {
	s.mu.Lock()
	s.localAddr = ap
	s.mu.Unlock()
}

func (s *TCPSocketResource) RemoteAddr() netip.AddrPort {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteAddr
}

func (s *TCPSocketResource) SetRemoteAddr(ap netip.AddrPort) {
	s.mu.Lock()
	s.remoteAddr = ap
	s.mu.Unlock()
}

func (s *TCPSocketResource) Conn() net.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *TCPSocketResource) ListenBacklogSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backlog
}

func (s *TCPSocketResource) SetListenBacklogSize(n int) {
	if n <= 0 {
		n = 1
	}
	s.mu.Lock()
	s.backlog = n
	s.mu.Unlock()
}

// TakePendingError returns and clears the error of a finished background step.
func (s *TCPSocketResource) TakePendingError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.pendingErr
	s.pendingErr = nil
	return err
}

// StartListen opens the listener on a background goroutine and then keeps
// accepting into a queue bounded by the backlog size.
func (s *TCPSocketResource) StartListen(ctx context.Context) {
	s.mu.Lock()
	s.state = TCPStateListenInProgress
	addr := s.localAddr
	s.mu.Unlock()

	go func() {
		network := "tcp4"
		if s.family == AddressFamilyIPv6 {
			network = "tcp6"
		}
		lc := net.ListenConfig{}
		l, err := lc.Listen(context.WithoutCancel(ctx), network, addr.String())

		s.mu.Lock()
		if s.state != TCPStateListenInProgress {
			s.mu.Unlock()
			if l != nil {
				_ = l.Close()
			}
			return
		}
		if err != nil {
			s.pendingErr = err
		} else {
			s.listener = l
			s.localAddr = addrPortOf(l.Addr())
		}
		s.mu.Unlock()
		s.notify.Notify()

		if err == nil {
			s.acceptLoop(l)
		}
	}()
}

func (s *TCPSocketResource) acceptLoop(l net.Listener) {
	for {
		s.mu.Lock()
		for len(s.queue) >= s.backlog && s.state != TCPStateClosed {
			s.queueCond.Wait()
		}
		closed := s.state == TCPStateClosed
		s.mu.Unlock()
		if closed {
			return
		}

		c, err := l.Accept()

		s.mu.Lock()
		if s.state == TCPStateClosed {
			s.mu.Unlock()
			if c != nil {
				_ = c.Close()
			}
			return
		}
		if err != nil {
			s.acceptErr = err
		} else {
			s.queue = append(s.queue, c)
		}
		s.mu.Unlock()
		s.notify.Notify()
		if err != nil {
			return
		}
	}
}

// FinishListen completes StartListen. ok is false while the listener is still opening.
func (s *TCPSocketResource) FinishListen() (ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingErr != nil {
		err = s.pendingErr
		s.pendingErr = nil
		s.state = TCPStateBound
		return false, err
	}
	if s.listener == nil {
		return false, nil
	}
	s.state = TCPStateListening
	return true, nil
}

// Accept dequeues an accepted connection without blocking.
// It returns (nil, nil) when none is waiting.
func (s *TCPSocketResource) Accept() (net.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil, s.acceptErr
	}
	c := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	s.queueCond.Signal()
	return c, nil
}

// StartConnect dials on a background goroutine.
func (s *TCPSocketResource) StartConnect(ctx context.Context, remote netip.AddrPort) {
	s.mu.Lock()
	s.state = TCPStateConnectInProgress
	s.remoteAddr = remote
	local := s.localAddr
	s.mu.Unlock()

	go func() {
		dialer := net.Dialer{}
		if local.IsValid() {
			dialer.LocalAddr = net.TCPAddrFromAddrPort(local)
		}
		c, err := dialer.DialContext(context.WithoutCancel(ctx), "tcp", remote.String())

		s.mu.Lock()
		if s.state != TCPStateConnectInProgress {
			s.mu.Unlock()
			if c != nil {
				_ = c.Close()
			}
			return
		}
		if err != nil {
			s.pendingErr = err
		} else {
			s.conn = c
			s.localAddr = addrPortOf(c.LocalAddr())
		}
		s.mu.Unlock()
		s.notify.Notify()
	}()
}

// FinishConnect completes StartConnect. ok is false while the dial is running.
func (s *TCPSocketResource) FinishConnect() (ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingErr != nil {
		err = s.pendingErr
		s.pendingErr = nil
		s.state = TCPStateClosed
		return false, err
	}
	if s.conn == nil {
		return false, nil
	}
	s.state = TCPStateConnected
	return true, nil
}

// Ready reports whether the next step of the socket's current operation can run.
func (s *TCPSocketResource) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case TCPStateListenInProgress:
		return s.listener != nil || s.pendingErr != nil
	case TCPStateListening:
		return len(s.queue) > 0 || s.acceptErr != nil
	case TCPStateConnectInProgress:
		return s.conn != nil || s.pendingErr != nil
	default:
		return true
	}
}

func (s *TCPSocketResource) Signal() <-chan struct{} { return s.notify.Wait() }
