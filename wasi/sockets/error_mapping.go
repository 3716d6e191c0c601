package sockets

import (
	"errors"
	"net"
	"os"
	"syscall"
)

// mapNetError converts Go net package errors to WASI network error codes.
func mapNetError(err error) *NetworkError {
	if err == nil {
		return nil
	}
	ne := classify(err)
	ne.Cause = err
	return ne
}

func classify(err error) *NetworkError {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return mapErrno(errno)
	}

	var addrErr *net.AddrError
	if errors.As(err, &addrErr) {
		return &NetworkError{Code: NetworkErrorInvalidArgument}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTemporary {
			return &NetworkError{Code: NetworkErrorTemporaryResolverFailure}
		}
		if dnsErr.IsNotFound {
			return &NetworkError{Code: NetworkErrorNameUnresolvable}
		}
		return &NetworkError{Code: NetworkErrorPermanentResolverFailure}
	}

	if os.IsTimeout(err) {
		return &NetworkError{Code: NetworkErrorTimeout}
	}
	if os.IsPermission(err) {
		return &NetworkError{Code: NetworkErrorAccessDenied}
	}
	if errors.Is(err, net.ErrClosed) {
		return &NetworkError{Code: NetworkErrorInvalidState}
	}
	return &NetworkError{Code: NetworkErrorUnknown}
}

// mapErrno converts syscall.Errno to WASI network error codes.
func mapErrno(errno syscall.Errno) *NetworkError {
	switch errno {
	case syscall.EACCES, syscall.EPERM:
		return &NetworkError{Code: NetworkErrorAccessDenied}
	case syscall.EADDRINUSE:
		return &NetworkError{Code: NetworkErrorAddressInUse}
	case syscall.EADDRNOTAVAIL:
		return &NetworkError{Code: NetworkErrorAddressNotBindable}
	case syscall.ECONNREFUSED:
		return &NetworkError{Code: NetworkErrorConnectionRefused}
	case syscall.ECONNRESET, syscall.EPIPE:
		return &NetworkError{Code: NetworkErrorConnectionReset}
	case syscall.ECONNABORTED:
		return &NetworkError{Code: NetworkErrorConnectionAborted}
	case syscall.EHOSTUNREACH, syscall.ENETUNREACH:
		return &NetworkError{Code: NetworkErrorRemoteUnreachable}
	case syscall.ETIMEDOUT:
		return &NetworkError{Code: NetworkErrorTimeout}
	case syscall.EINVAL:
		return &NetworkError{Code: NetworkErrorInvalidArgument}
	case syscall.ENOMEM, syscall.ENOBUFS:
		return &NetworkError{Code: NetworkErrorOutOfMemory}
	case syscall.EWOULDBLOCK, syscall.EINPROGRESS:
		return &NetworkError{Code: NetworkErrorWouldBlock}
	case syscall.EALREADY:
		return &NetworkError{Code: NetworkErrorConcurrencyConflict}
	case syscall.ENOTSOCK, syscall.ENOTCONN, syscall.EISCONN:
		return &NetworkError{Code: NetworkErrorInvalidState}
	case syscall.EMSGSIZE:
		return &NetworkError{Code: NetworkErrorDatagramTooLarge}
	case syscall.EMFILE, syscall.ENFILE:
		return &NetworkError{Code: NetworkErrorNewSocketLimit}
	default:
		return &NetworkError{Code: NetworkErrorUnknown}
	}
}
