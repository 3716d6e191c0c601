package sockets

import (
	"context"

	"github.com/wippyai/wasync/wasi"
)

type TCPCreateSocketHost struct {
	resources *wasi.ResourceTable
}

func NewTCPCreateSocketHost(resources *wasi.ResourceTable) *TCPCreateSocketHost {
	return &TCPCreateSocketHost{resources: resources}
}

func (h *TCPCreateSocketHost) Namespace() string {
	return "wasi:sockets/tcp-create-socket@0.2.8"
}

func (h *TCPCreateSocketHost) CreateTCPSocket(_ context.Context, addressFamily uint8) (uint32, *NetworkError) {
	if addressFamily != wasi.AddressFamilyIPv4 && addressFamily != wasi.AddressFamilyIPv6 {
		return 0, &NetworkError{Code: NetworkErrorNotSupported}
	}
	return h.resources.Add(wasi.NewTCPSocketResource(addressFamily)), nil
}

func (h *TCPCreateSocketHost) Register() map[string]any {
	return map[string]any{
		"create-tcp-socket": h.CreateTCPSocket,
	}
}
