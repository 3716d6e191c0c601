package sockets

import (
	"context"
	"syscall"

	"github.com/wippyai/wasync/errors"
	"github.com/wippyai/wasync/wasi"
)

type InstanceNetworkHost struct {
	resources *wasi.ResourceTable
}

func NewInstanceNetworkHost(resources *wasi.ResourceTable) *InstanceNetworkHost {
	return &InstanceNetworkHost{resources: resources}
}

func (h *InstanceNetworkHost) Namespace() string {
	return "wasi:sockets/instance-network@0.2.8"
}

func (h *InstanceNetworkHost) InstanceNetwork(_ context.Context) uint32 {
	return h.resources.Add(wasi.NewNetworkResource())
}

func (h *InstanceNetworkHost) ResourceDropNetwork(_ context.Context, self uint32) error {
	return wasi.DropError(errors.PhaseNetwork, "drop-network", self, h.resources.Remove(self))
}

func (h *InstanceNetworkHost) Register() map[string]any {
	return map[string]any{
		"instance-network":       h.InstanceNetwork,
		"[resource-drop]network": h.ResourceDropNetwork,
	}
}

type NetworkError struct {
	Cause error
	Code  NetworkErrorCode
}

type NetworkErrorCode uint8

const (
	NetworkErrorUnknown NetworkErrorCode = iota
	NetworkErrorAccessDenied
	NetworkErrorNotSupported
	NetworkErrorInvalidArgument
	NetworkErrorOutOfMemory
	NetworkErrorTimeout
	NetworkErrorConcurrencyConflict
	NetworkErrorNotInProgress
	NetworkErrorWouldBlock
	NetworkErrorInvalidState
	NetworkErrorNewSocketLimit
	NetworkErrorAddressNotBindable
	NetworkErrorAddressInUse
	NetworkErrorRemoteUnreachable
	NetworkErrorConnectionRefused
	NetworkErrorConnectionReset
	NetworkErrorConnectionAborted
	NetworkErrorDatagramTooLarge
	NetworkErrorNameUnresolvable
	NetworkErrorTemporaryResolverFailure
	NetworkErrorPermanentResolverFailure
)

var networkErrorNames = [...]string{
	NetworkErrorUnknown:                  "unknown",
	NetworkErrorAccessDenied:             "access-denied",
	NetworkErrorNotSupported:             "not-supported",
	NetworkErrorInvalidArgument:          "invalid-argument",
	NetworkErrorOutOfMemory:              "out-of-memory",
	NetworkErrorTimeout:                  "timeout",
	NetworkErrorConcurrencyConflict:      "concurrency-conflict",
	NetworkErrorNotInProgress:            "not-in-progress",
	NetworkErrorWouldBlock:               "would-block",
	NetworkErrorInvalidState:             "invalid-state",
	NetworkErrorNewSocketLimit:           "new-socket-limit",
	NetworkErrorAddressNotBindable:       "address-not-bindable",
	NetworkErrorAddressInUse:             "address-in-use",
	NetworkErrorRemoteUnreachable:        "remote-unreachable",
	NetworkErrorConnectionRefused:        "connection-refused",
	NetworkErrorConnectionReset:          "connection-reset",
	NetworkErrorConnectionAborted:        "connection-aborted",
	NetworkErrorDatagramTooLarge:         "datagram-too-large",
	NetworkErrorNameUnresolvable:         "name-unresolvable",
	NetworkErrorTemporaryResolverFailure: "temporary-resolver-failure",
	NetworkErrorPermanentResolverFailure: "permanent-resolver-failure",
}

func (c NetworkErrorCode) String() string {
	if int(c) < len(networkErrorNames) {
		return networkErrorNames[c]
	}
	return "unknown"
}

func (e *NetworkError) Error() string {
	if e.Cause != nil {
		return "network error: " + e.Code.String() + ": " + e.Cause.Error()
	}
	return "network error: " + e.Code.String()
}

func (e *NetworkError) Unwrap() error { return e.Cause }

// codeErrno pairs codes with the errno a host socket would report.
var codeErrno = map[NetworkErrorCode]syscall.Errno{
	NetworkErrorAccessDenied:       syscall.EACCES,
	NetworkErrorAddressInUse:       syscall.EADDRINUSE,
	NetworkErrorAddressNotBindable: syscall.EADDRNOTAVAIL,
	NetworkErrorConnectionRefused:  syscall.ECONNREFUSED,
	NetworkErrorConnectionReset:    syscall.ECONNRESET,
	NetworkErrorConnectionAborted:  syscall.ECONNABORTED,
	NetworkErrorRemoteUnreachable:  syscall.EHOSTUNREACH,
	NetworkErrorTimeout:            syscall.ETIMEDOUT,
	NetworkErrorInvalidArgument:    syscall.EINVAL,
	NetworkErrorWouldBlock:         syscall.EWOULDBLOCK,
	NetworkErrorNotSupported:       syscall.EOPNOTSUPP,
}

// Is matches the errno equivalent of the code, so callers can test for
// syscall.ECONNREFUSED and friends without knowing about WASI codes.
func (e *NetworkError) Is(target error) bool {
	errno, ok := target.(syscall.Errno)
	if !ok {
		return false
	}
	want, ok := codeErrno[e.Code]
	return ok && want == errno
}
