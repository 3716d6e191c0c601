package sockets

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"syscall"
	"testing"
	"time"

	"github.com/wippyai/wasync/wasi"
)

type fixture struct {
	resources *wasi.ResourceTable
	tcp       *TCPHost
	create    *TCPCreateSocketHost
	network   uint32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	resources := wasi.NewResourceTable()
	t.Cleanup(resources.Clear)
	return &fixture{
		resources: resources,
		tcp:       NewTCPHost(resources),
		create:    NewTCPCreateSocketHost(resources),
		network:   NewInstanceNetworkHost(resources).InstanceNetwork(context.Background()),
	}
}

func (f *fixture) wait(t *testing.T, socket uint32) {
	t.Helper()
	sub, err := f.tcp.MethodTCPSocketSubscribe(context.Background(), socket)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	r, _ := f.resources.Get(sub)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.(wasi.Pollable).Block(ctx); err != nil {
		t.Fatalf("block: %v", err)
	}
	if err := f.resources.Remove(sub); err != nil {
		t.Fatalf("drop subscription: %v", err)
	}
}

func (f *fixture) listen(t *testing.T) (uint32, netip.AddrPort) {
	t.Helper()
	ctx := context.Background()
	sock, nerr := f.create.CreateTCPSocket(ctx, wasi.AddressFamilyIPv4)
	if nerr != nil {
		t.Fatalf("create: %v", nerr)
	}
	if nerr := f.tcp.MethodTCPSocketStartBind(ctx, sock, f.network, netip.MustParseAddrPort("127.0.0.1:0")); nerr != nil {
		t.Fatalf("start-bind: %v", nerr)
	}
	if nerr := f.tcp.MethodTCPSocketFinishBind(ctx, sock); nerr != nil {
		t.Fatalf("finish-bind: %v", nerr)
	}
	if nerr := f.tcp.MethodTCPSocketStartListen(ctx, sock); nerr != nil {
		t.Fatalf("start-listen: %v", nerr)
	}
	for {
		nerr := f.tcp.MethodTCPSocketFinishListen(ctx, sock)
		if nerr == nil {
			break
		}
		if nerr.Code != NetworkErrorWouldBlock {
			t.Fatalf("finish-listen: %v", nerr)
		}
		f.wait(t, sock)
	}
	addr, nerr := f.tcp.MethodTCPSocketLocalAddress(ctx, sock)
	if nerr != nil || addr.Port() == 0 {
		t.Fatalf("local-address: %v %v", addr, nerr)
	}
	return sock, addr
}

func TestTCPHost_ListenAcceptEcho(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	listener, addr := f.listen(t)

	if !f.tcp.MethodTCPSocketIsListening(ctx, listener) {
		t.Fatal("expected listening")
	}

	client, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	var conn, in, out uint32
	for {
		var nerr *NetworkError
		conn, in, out, nerr = f.tcp.MethodTCPSocketAccept(ctx, listener)
		if nerr == nil {
			break
		}
		if nerr.Code != NetworkErrorWouldBlock {
			t.Fatalf("accept: %v", nerr)
		}
		f.wait(t, listener)
	}

	for _, h := range []uint32{in, out} {
		if parent, _ := f.resources.Parent(h); parent != conn {
			t.Fatalf("stream %d parent = %d, want %d", h, parent, conn)
		}
	}
	remote, nerr := f.tcp.MethodTCPSocketRemoteAddress(ctx, conn)
	if nerr != nil || remote.String() != client.LocalAddr().String() {
		t.Fatalf("remote-address: %v %v", remote, nerr)
	}

	if _, err := client.Write([]byte("ping")); err != nil {
		t.Fatalf("client write: %v", err)
	}

	r, _ := f.resources.Get(in)
	input := r.(wasi.InputStream)
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := wasi.Wait(wctx, input); err != nil {
		t.Fatalf("wait input: %v", err)
	}
	data, err := input.Read(16)
	if err != nil || string(data) != "ping" {
		t.Fatalf("read: %q %v", data, err)
	}

	w, _ := f.resources.Get(out)
	output := w.(wasi.OutputStream)
	if err := output.Write([]byte("pong")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := output.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	buf := make([]byte, 4)
	_ = client.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := client.Read(buf); err != nil || string(buf) != "pong" {
		t.Fatalf("client read: %q %v", buf, err)
	}

	if nerr := f.tcp.MethodTCPSocketShutdown(ctx, conn, ShutdownSend); nerr != nil {
		t.Fatalf("shutdown: %v", nerr)
	}
	if n, err := client.Read(buf); n != 0 || err == nil {
		t.Fatalf("expected EOF after shutdown, got %d %v", n, err)
	}

	if err := f.tcp.ResourceDropTCPSocket(ctx, conn); err == nil {
		t.Fatal("socket with live streams must not be dropped")
	}
	if err := f.resources.RemoveTree(conn); err != nil {
		t.Fatalf("remove tree: %v", err)
	}
}

func TestTCPHost_Connect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	sock, _ := f.create.CreateTCPSocket(ctx, wasi.AddressFamilyIPv4)
	remote := netip.MustParseAddrPort(ln.Addr().String())
	if nerr := f.tcp.MethodTCPSocketStartConnect(ctx, sock, f.network, remote); nerr != nil {
		t.Fatalf("start-connect: %v", nerr)
	}

	var in, out uint32
	for {
		var nerr *NetworkError
		in, out, nerr = f.tcp.MethodTCPSocketFinishConnect(ctx, sock)
		if nerr == nil {
			break
		}
		if nerr.Code != NetworkErrorWouldBlock {
			t.Fatalf("finish-connect: %v", nerr)
		}
		f.wait(t, sock)
	}
	if in == 0 || out == 0 {
		t.Fatal("expected stream handles")
	}

	select {
	case c := <-accepted:
		c.Close()
	case <-time.After(5 * time.Second):
		t.Fatal("server never accepted")
	}

	got, nerr := f.tcp.MethodTCPSocketRemoteAddress(ctx, sock)
	if nerr != nil || got != remote {
		t.Fatalf("remote-address: %v %v", got, nerr)
	}
}

func TestTCPHost_ConnectRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	remote := netip.MustParseAddrPort(ln.Addr().String())
	ln.Close()

	sock, _ := f.create.CreateTCPSocket(ctx, wasi.AddressFamilyIPv4)
	if nerr := f.tcp.MethodTCPSocketStartConnect(ctx, sock, f.network, remote); nerr != nil {
		t.Fatalf("start-connect: %v", nerr)
	}
	for {
		_, _, nerr := f.tcp.MethodTCPSocketFinishConnect(ctx, sock)
		if nerr == nil {
			t.Fatal("expected connection to be refused")
		}
		if nerr.Code == NetworkErrorWouldBlock {
			f.wait(t, sock)
			continue
		}
		if nerr.Code != NetworkErrorConnectionRefused {
			t.Fatalf("expected connection-refused, got %v", nerr)
		}
		if !errors.Is(nerr, syscall.ECONNREFUSED) {
			t.Fatal("network error should match ECONNREFUSED")
		}
		break
	}
}

func TestTCPHost_InvalidStates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sock, _ := f.create.CreateTCPSocket(ctx, wasi.AddressFamilyIPv4)

	tests := []struct {
		name string
		err  *NetworkError
		code NetworkErrorCode
	}{
		{"listen unbound", f.tcp.MethodTCPSocketStartListen(ctx, sock), NetworkErrorInvalidState},
		{"finish bind not started", f.tcp.MethodTCPSocketFinishBind(ctx, sock), NetworkErrorNotInProgress},
		{"finish listen not started", f.tcp.MethodTCPSocketFinishListen(ctx, sock), NetworkErrorNotInProgress},
		{"bind wrong family", f.tcp.MethodTCPSocketStartBind(ctx, sock, f.network, netip.MustParseAddrPort("[::1]:0")), NetworkErrorInvalidArgument},
		{"bind bad network", f.tcp.MethodTCPSocketStartBind(ctx, sock, 9999, netip.MustParseAddrPort("127.0.0.1:0")), NetworkErrorInvalidArgument},
		{"connect port zero", f.tcp.MethodTCPSocketStartConnect(ctx, sock, f.network, netip.MustParseAddrPort("127.0.0.1:0")), NetworkErrorInvalidArgument},
		{"shutdown unconnected", f.tcp.MethodTCPSocketShutdown(ctx, sock, ShutdownBoth), NetworkErrorInvalidState},
	}
	for _, tt := range tests {
		if tt.err == nil || tt.err.Code != tt.code {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.code, tt.err)
		}
	}

	if _, nerr := f.tcp.MethodTCPSocketLocalAddress(ctx, sock); nerr == nil || nerr.Code != NetworkErrorInvalidState {
		t.Errorf("local-address on unbound socket: %v", nerr)
	}
	if _, _, _, nerr := f.tcp.MethodTCPSocketAccept(ctx, sock); nerr == nil || nerr.Code != NetworkErrorInvalidState {
		t.Errorf("accept on unbound socket: %v", nerr)
	}
	if _, nerr := f.create.CreateTCPSocket(ctx, 7); nerr == nil || nerr.Code != NetworkErrorNotSupported {
		t.Errorf("unknown family: %v", nerr)
	}
}

func TestTCPHost_Backlog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sock, _ := f.create.CreateTCPSocket(ctx, wasi.AddressFamilyIPv6)

	if n, _ := f.tcp.MethodTCPSocketListenBacklogSize(ctx, sock); n != wasi.DefaultListenBacklog {
		t.Errorf("default backlog = %d", n)
	}
	if nerr := f.tcp.MethodTCPSocketSetListenBacklogSize(ctx, sock, 4); nerr != nil {
		t.Fatalf("set backlog: %v", nerr)
	}
	if n, _ := f.tcp.MethodTCPSocketListenBacklogSize(ctx, sock); n != 4 {
		t.Errorf("backlog = %d, want 4", n)
	}
	if nerr := f.tcp.MethodTCPSocketSetListenBacklogSize(ctx, sock, 0); nerr == nil {
		t.Error("zero backlog should be rejected")
	}
	if fam, _ := f.tcp.MethodTCPSocketAddressFamily(ctx, sock); fam != wasi.AddressFamilyIPv6 {
		t.Errorf("family = %d", fam)
	}
}

func TestMapNetError(t *testing.T) {
	tests := []struct {
		err  error
		code NetworkErrorCode
	}{
		{&net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, NetworkErrorConnectionRefused},
		{&net.OpError{Op: "listen", Err: syscall.EADDRINUSE}, NetworkErrorAddressInUse},
		{&net.AddrError{Err: "bad", Addr: "x"}, NetworkErrorInvalidArgument},
		{&net.DNSError{IsNotFound: true}, NetworkErrorNameUnresolvable},
		{net.ErrClosed, NetworkErrorInvalidState},
		{errors.New("other"), NetworkErrorUnknown},
	}
	for _, tt := range tests {
		got := mapNetError(tt.err)
		if got.Code != tt.code {
			t.Errorf("mapNetError(%v) = %v, want %v", tt.err, got.Code, tt.code)
		}
		if !errors.Is(got, tt.err) {
			t.Errorf("mapped error should wrap %v", tt.err)
		}
	}
	if mapNetError(nil) != nil {
		t.Error("nil should map to nil")
	}
}
