package sockets

import (
	"context"
	"net"
	"net/netip"
	"sync"

	"github.com/wippyai/wasync/errors"
	"github.com/wippyai/wasync/wasi"
)

// ShutdownType mirrors wasi:sockets/tcp shutdown-type.
type ShutdownType uint8

const (
	ShutdownReceive ShutdownType = iota
	ShutdownSend
	ShutdownBoth
)

// TCPHost implements wasi:sockets/tcp@0.2.8
type TCPHost struct {
	resources *wasi.ResourceTable
	mu        sync.Mutex
}

// NewTCPHost creates a new TCP host
func NewTCPHost(resources *wasi.ResourceTable) *TCPHost {
	return &TCPHost{resources: resources}
}

// Namespace returns the WASI namespace
func (h *TCPHost) Namespace() string {
	return "wasi:sockets/tcp@0.2.8"
}

// getSocket retrieves and validates a TCP socket resource
func (h *TCPHost) getSocket(handle uint32) (*wasi.TCPSocketResource, *NetworkError) {
	r, ok := h.resources.Get(handle)
	if !ok {
		return nil, &NetworkError{Code: NetworkErrorInvalidArgument}
	}
	socket, ok := r.(*wasi.TCPSocketResource)
	if !ok {
		return nil, &NetworkError{Code: NetworkErrorInvalidArgument}
	}
	return socket, nil
}

func (h *TCPHost) checkNetwork(handle uint32) *NetworkError {
	if _, ok := h.resources.GetTyped(handle, wasi.ResourceNetwork); !ok {
		return &NetworkError{Code: NetworkErrorInvalidArgument}
	}
	return nil
}

func familyMatches(socket *wasi.TCPSocketResource, addr netip.AddrPort) bool {
	if socket.Family() == wasi.AddressFamilyIPv6 {
		return addr.Addr().Is6()
	}
	return addr.Addr().Is4()
}

// [method]tcp-socket.start-bind
func (h *TCPHost) MethodTCPSocketStartBind(_ context.Context, self uint32, network uint32, localAddress netip.AddrPort) *NetworkError {
	h.mu.Lock()
	defer h.mu.Unlock()

	socket, err := h.getSocket(self)
	if err != nil {
		return err
	}
	if err := h.checkNetwork(network); err != nil {
		return err
	}
	if socket.State() != wasi.TCPStateUnbound {
		return &NetworkError{Code: NetworkErrorInvalidState}
	}
	if !localAddress.IsValid() || !familyMatches(socket, localAddress) {
		return &NetworkError{Code: NetworkErrorInvalidArgument}
	}

	socket.SetLocalAddr(localAddress)
	socket.SetState(wasi.TCPStateBindInProgress)
	return nil
}

// [method]tcp-socket.finish-bind
func (h *TCPHost) MethodTCPSocketFinishBind(_ context.Context, self uint32) *NetworkError {
	h.mu.Lock()
	defer h.mu.Unlock()

	socket, err := h.getSocket(self)
	if err != nil {
		return err
	}
	if socket.State() != wasi.TCPStateBindInProgress {
		return &NetworkError{Code: NetworkErrorNotInProgress}
	}
	socket.SetState(wasi.TCPStateBound)
	return nil
}

// [method]tcp-socket.start-listen
func (h *TCPHost) MethodTCPSocketStartListen(ctx context.Context, self uint32) *NetworkError {
	h.mu.Lock()
	defer h.mu.Unlock()

	socket, err := h.getSocket(self)
	if err != nil {
		return err
	}
	if socket.State() != wasi.TCPStateBound {
		return &NetworkError{Code: NetworkErrorInvalidState}
	}
	socket.StartListen(ctx)
	return nil
}

// [method]tcp-socket.finish-listen
func (h *TCPHost) MethodTCPSocketFinishListen(_ context.Context, self uint32) *NetworkError {
	h.mu.Lock()
	defer h.mu.Unlock()

	socket, err := h.getSocket(self)
	if err != nil {
		return err
	}
	if socket.State() != wasi.TCPStateListenInProgress {
		return &NetworkError{Code: NetworkErrorNotInProgress}
	}
	ok, listenErr := socket.FinishListen()
	if listenErr != nil {
		return mapNetError(listenErr)
	}
	if !ok {
		return &NetworkError{Code: NetworkErrorWouldBlock}
	}
	return nil
}

// [method]tcp-socket.accept
// Returns the connected socket and its input and output streams, which are
// owned by the new socket.
func (h *TCPHost) MethodTCPSocketAccept(_ context.Context, self uint32) (uint32, uint32, uint32, *NetworkError) {
	socket, err := h.getSocket(self)
	if err != nil {
		return 0, 0, 0, err
	}
	if socket.State() != wasi.TCPStateListening {
		return 0, 0, 0, &NetworkError{Code: NetworkErrorInvalidState}
	}

	conn, acceptErr := socket.Accept()
	if acceptErr != nil {
		return 0, 0, 0, mapNetError(acceptErr)
	}
	if conn == nil {
		return 0, 0, 0, &NetworkError{Code: NetworkErrorWouldBlock}
	}

	accepted := wasi.NewConnectedTCPSocket(socket.Family(), conn)
	handle := h.resources.Add(accepted)
	in, out, err := h.addStreams(handle, conn)
	if err != nil {
		_ = h.resources.RemoveTree(handle)
		return 0, 0, 0, err
	}
	return handle, in, out, nil
}

func (h *TCPHost) addStreams(socket uint32, conn net.Conn) (uint32, uint32, *NetworkError) {
	in, err := h.resources.AddChild(socket, wasi.NewPipeInputStream(conn, wasi.DefaultBufferSize))
	if err != nil {
		return 0, 0, &NetworkError{Code: NetworkErrorInvalidState, Cause: err}
	}
	out, err := h.resources.AddChild(socket, wasi.NewPipeOutputStream(conn, wasi.DefaultBufferSize))
	if err != nil {
		return 0, 0, &NetworkError{Code: NetworkErrorInvalidState, Cause: err}
	}
	return in, out, nil
}

// [method]tcp-socket.start-connect
func (h *TCPHost) MethodTCPSocketStartConnect(ctx context.Context, self uint32, network uint32, remoteAddress netip.AddrPort) *NetworkError {
	h.mu.Lock()
	defer h.mu.Unlock()

	socket, err := h.getSocket(self)
	if err != nil {
		return err
	}
	if err := h.checkNetwork(network); err != nil {
		return err
	}
	state := socket.State()
	if state != wasi.TCPStateUnbound && state != wasi.TCPStateBound {
		return &NetworkError{Code: NetworkErrorInvalidState}
	}
	if !remoteAddress.IsValid() || remoteAddress.Port() == 0 || remoteAddress.Addr().IsUnspecified() ||
		!familyMatches(socket, remoteAddress) {
		return &NetworkError{Code: NetworkErrorInvalidArgument}
	}

	socket.StartConnect(ctx, remoteAddress)
	return nil
}

// [method]tcp-socket.finish-connect
func (h *TCPHost) MethodTCPSocketFinishConnect(_ context.Context, self uint32) (uint32, uint32, *NetworkError) {
	h.mu.Lock()
	defer h.mu.Unlock()

	socket, err := h.getSocket(self)
	if err != nil {
		return 0, 0, err
	}
	if socket.State() != wasi.TCPStateConnectInProgress {
		return 0, 0, &NetworkError{Code: NetworkErrorNotInProgress}
	}
	ok, connectErr := socket.FinishConnect()
	if connectErr != nil {
		return 0, 0, mapNetError(connectErr)
	}
	if !ok {
		return 0, 0, &NetworkError{Code: NetworkErrorWouldBlock}
	}
	return h.addStreams(self, socket.Conn())
}

// [method]tcp-socket.shutdown
func (h *TCPHost) MethodTCPSocketShutdown(_ context.Context, self uint32, shutdownType ShutdownType) *NetworkError {
	socket, err := h.getSocket(self)
	if err != nil {
		return err
	}
	if socket.State() != wasi.TCPStateConnected {
		return &NetworkError{Code: NetworkErrorInvalidState}
	}

	tcpConn, ok := socket.Conn().(*net.TCPConn)
	if !ok {
		return &NetworkError{Code: NetworkErrorNotSupported}
	}

	var shutdownErr error
	switch shutdownType {
	case ShutdownReceive:
		shutdownErr = tcpConn.CloseRead()
	case ShutdownSend:
		shutdownErr = tcpConn.CloseWrite()
	case ShutdownBoth:
		shutdownErr = tcpConn.CloseRead()
		if shutdownErr == nil {
			shutdownErr = tcpConn.CloseWrite()
		}
	default:
		return &NetworkError{Code: NetworkErrorInvalidArgument}
	}
	return mapNetError(shutdownErr)
}

// [method]tcp-socket.address-family
func (h *TCPHost) MethodTCPSocketAddressFamily(_ context.Context, self uint32) (uint8, *NetworkError) {
	socket, err := h.getSocket(self)
	if err != nil {
		return 0, err
	}
	return socket.Family(), nil
}

// [method]tcp-socket.local-address
func (h *TCPHost) MethodTCPSocketLocalAddress(_ context.Context, self uint32) (netip.AddrPort, *NetworkError) {
	socket, err := h.getSocket(self)
	if err != nil {
		return netip.AddrPort{}, err
	}
	switch socket.State() {
	case wasi.TCPStateUnbound, wasi.TCPStateBindInProgress, wasi.TCPStateClosed:
		return netip.AddrPort{}, &NetworkError{Code: NetworkErrorInvalidState}
	}
	return socket.LocalAddr(), nil
}

// [method]tcp-socket.remote-address
func (h *TCPHost) MethodTCPSocketRemoteAddress(_ context.Context, self uint32) (netip.AddrPort, *NetworkError) {
	socket, err := h.getSocket(self)
	if err != nil {
		return netip.AddrPort{}, err
	}
	if socket.State() != wasi.TCPStateConnected {
		return netip.AddrPort{}, &NetworkError{Code: NetworkErrorInvalidState}
	}
	return socket.RemoteAddr(), nil
}

// [method]tcp-socket.is-listening
func (h *TCPHost) MethodTCPSocketIsListening(_ context.Context, self uint32) bool {
	socket, err := h.getSocket(self)
	if err != nil {
		return false
	}
	return socket.State() == wasi.TCPStateListening
}

// [method]tcp-socket.subscribe
// The pollable is owned by the socket and tracks whichever step is in
// progress: bind, listen, connect or a pending accept.
func (h *TCPHost) MethodTCPSocketSubscribe(_ context.Context, self uint32) (uint32, error) {
	socket, nerr := h.getSocket(self)
	if nerr != nil {
		return 0, errors.InvalidHandle(errors.PhaseNetwork, "subscribe", self)
	}
	handle, err := h.resources.AddChild(self, wasi.NewStreamPollable(socket))
	if err != nil {
		return 0, errors.WrapOp(errors.PhaseNetwork, errors.KindInvalidHandle, "subscribe", "", err)
	}
	return handle, nil
}

// [method]tcp-socket.listen-backlog-size
func (h *TCPHost) MethodTCPSocketListenBacklogSize(_ context.Context, self uint32) (uint64, *NetworkError) {
	socket, err := h.getSocket(self)
	if err != nil {
		return 0, err
	}
	return uint64(socket.ListenBacklogSize()), nil
}

// [method]tcp-socket.set-listen-backlog-size
func (h *TCPHost) MethodTCPSocketSetListenBacklogSize(_ context.Context, self uint32, value uint64) *NetworkError {
	socket, err := h.getSocket(self)
	if err != nil {
		return err
	}
	if value == 0 {
		return &NetworkError{Code: NetworkErrorInvalidArgument}
	}
	switch socket.State() {
	case wasi.TCPStateUnbound, wasi.TCPStateBound:
	default:
		return &NetworkError{Code: NetworkErrorInvalidState}
	}
	socket.SetListenBacklogSize(int(min(value, 1<<16)))
	return nil
}

// [resource-drop]tcp-socket
// Refused while the socket's streams or subscriptions are live.
func (h *TCPHost) ResourceDropTCPSocket(_ context.Context, self uint32) error {
	return wasi.DropError(errors.PhaseNetwork, "drop-tcp-socket", self, h.resources.Remove(self))
}

func (h *TCPHost) Register() map[string]any {
	return map[string]any{
		"[method]tcp-socket.start-bind":              h.MethodTCPSocketStartBind,
		"[method]tcp-socket.finish-bind":             h.MethodTCPSocketFinishBind,
		"[method]tcp-socket.start-listen":            h.MethodTCPSocketStartListen,
		"[method]tcp-socket.finish-listen":           h.MethodTCPSocketFinishListen,
		"[method]tcp-socket.accept":                  h.MethodTCPSocketAccept,
		"[method]tcp-socket.start-connect":           h.MethodTCPSocketStartConnect,
		"[method]tcp-socket.finish-connect":          h.MethodTCPSocketFinishConnect,
		"[method]tcp-socket.shutdown":                h.MethodTCPSocketShutdown,
		"[method]tcp-socket.address-family":          h.MethodTCPSocketAddressFamily,
		"[method]tcp-socket.local-address":           h.MethodTCPSocketLocalAddress,
		"[method]tcp-socket.remote-address":          h.MethodTCPSocketRemoteAddress,
		"[method]tcp-socket.is-listening":            h.MethodTCPSocketIsListening,
		"[method]tcp-socket.subscribe":               h.MethodTCPSocketSubscribe,
		"[method]tcp-socket.listen-backlog-size":     h.MethodTCPSocketListenBacklogSize,
		"[method]tcp-socket.set-listen-backlog-size": h.MethodTCPSocketSetListenBacklogSize,
		"[resource-drop]tcp-socket":                  h.ResourceDropTCPSocket,
	}
}
