package tcp

import (
	"net/netip"
	"syscall"

	"github.com/wippyai/wasync/errors"
	"github.com/wippyai/wasync/wasi/sockets"
)

// errReset is reported by writes once the peer has gone away.
var errReset = &errors.Error{
	Phase:  errors.PhaseNetwork,
	Kind:   errors.KindClosed,
	Op:     "write",
	Detail: "connection reset",
	Cause:  syscall.ECONNRESET,
}

// netError wraps a host network error. The cause keeps the host code, which
// matches its syscall errno under errors.Is.
func netError(op string, addr netip.AddrPort, ne *sockets.NetworkError) error {
	b := errors.New(errors.PhaseNetwork, kindOf(ne.Code)).Op(op).Cause(ne)
	if addr.IsValid() {
		b.Path(addr.String())
	}
	return b.Build()
}

func kindOf(code sockets.NetworkErrorCode) errors.Kind {
	switch code {
	case sockets.NetworkErrorAccessDenied:
		return errors.KindPermission
	case sockets.NetworkErrorNotSupported:
		return errors.KindUnsupported
	case sockets.NetworkErrorInvalidArgument:
		return errors.KindInvalidInput
	case sockets.NetworkErrorTimeout:
		return errors.KindTimeout
	case sockets.NetworkErrorWouldBlock:
		return errors.KindWouldBlock
	case sockets.NetworkErrorInvalidState, sockets.NetworkErrorNotInProgress:
		return errors.KindInvalidState
	case sockets.NetworkErrorAddressInUse, sockets.NetworkErrorConcurrencyConflict:
		return errors.KindExists
	case sockets.NetworkErrorAddressNotBindable, sockets.NetworkErrorNameUnresolvable:
		return errors.KindNotFound
	default:
		return errors.KindIO
	}
}
