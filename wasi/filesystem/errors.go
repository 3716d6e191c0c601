package filesystem

import (
	"errors"
	"io/fs"
	"os"
	"syscall"
)

type Error struct {
	Code ErrorCode
}

type ErrorCode uint8

const (
	ErrorAccess ErrorCode = iota
	ErrorWouldBlock
	ErrorAlready
	ErrorBadDescriptor
	ErrorBusy
	ErrorDeadlock
	ErrorQuota
	ErrorExist
	ErrorFileTooLarge
	ErrorIllegalByteSequence
	ErrorInProgress
	ErrorInterrupted
	ErrorInvalid
	ErrorIo
	ErrorIsDirectory
	ErrorLoop
	ErrorTooManyLinks
	ErrorMessageSize
	ErrorNameTooLong
	ErrorNoDevice
	ErrorNoEntry
	ErrorNoLock
	ErrorInsufficientMemory
	ErrorInsufficientSpace
	ErrorNotDirectory
	ErrorNotEmpty
	ErrorNotRecoverable
	ErrorUnsupported
	ErrorNoTty
	ErrorNoSuchDevice
	ErrorOverflow
	ErrorNotPermitted
	ErrorPipe
	ErrorReadOnly
	ErrorInvalidSeek
	ErrorTextFileBusy
	ErrorCrossDevice
)

var errorCodeNames = [...]string{
	ErrorAccess:              "access",
	ErrorWouldBlock:          "would-block",
	ErrorAlready:             "already",
	ErrorBadDescriptor:       "bad-descriptor",
	ErrorBusy:                "busy",
	ErrorDeadlock:            "deadlock",
	ErrorQuota:               "quota",
	ErrorExist:               "exist",
	ErrorFileTooLarge:        "file-too-large",
	ErrorIllegalByteSequence: "illegal-byte-sequence",
	ErrorInProgress:          "in-progress",
	ErrorInterrupted:         "interrupted",
	ErrorInvalid:             "invalid",
	ErrorIo:                  "io",
	ErrorIsDirectory:         "is-directory",
	ErrorLoop:                "loop",
	ErrorTooManyLinks:        "too-many-links",
	ErrorMessageSize:         "message-size",
	ErrorNameTooLong:         "name-too-long",
	ErrorNoDevice:            "no-device",
	ErrorNoEntry:             "no-entry",
	ErrorNoLock:              "no-lock",
	ErrorInsufficientMemory:  "insufficient-memory",
	ErrorInsufficientSpace:   "insufficient-space",
	ErrorNotDirectory:        "not-directory",
	ErrorNotEmpty:            "not-empty",
	ErrorNotRecoverable:      "not-recoverable",
	ErrorUnsupported:         "unsupported",
	ErrorNoTty:               "no-tty",
	ErrorNoSuchDevice:        "no-such-device",
	ErrorOverflow:            "overflow",
	ErrorNotPermitted:        "not-permitted",
	ErrorPipe:                "pipe",
	ErrorReadOnly:            "read-only",
	ErrorInvalidSeek:         "invalid-seek",
	ErrorTextFileBusy:        "text-file-busy",
	ErrorCrossDevice:         "cross-device",
}

func (c ErrorCode) String() string {
	if int(c) < len(errorCodeNames) {
		return errorCodeNames[c]
	}
	return "unknown"
}

func (e *Error) Error() string {
	return "filesystem error: " + e.Code.String()
}

// Is lets callers test host errors against the io/fs sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case fs.ErrNotExist:
		return e.Code == ErrorNoEntry
	case fs.ErrExist:
		return e.Code == ErrorExist
	case fs.ErrPermission:
		return e.Code == ErrorAccess || e.Code == ErrorNotPermitted || e.Code == ErrorReadOnly
	case fs.ErrInvalid:
		return e.Code == ErrorInvalid || e.Code == ErrorInvalidSeek || e.Code == ErrorBadDescriptor
	case fs.ErrClosed:
		return e.Code == ErrorBadDescriptor
	}
	return false
}

func mapOSError(err error) *Error {
	if err == nil {
		return nil
	}
	if os.IsNotExist(err) {
		return &Error{Code: ErrorNoEntry}
	}
	if os.IsPermission(err) {
		return &Error{Code: ErrorAccess}
	}
	if os.IsExist(err) {
		return &Error{Code: ErrorExist}
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return mapErrno(errno)
	}
	return &Error{Code: ErrorIo}
}

func mapErrno(errno syscall.Errno) *Error {
	switch errno {
	case syscall.EACCES:
		return &Error{Code: ErrorAccess}
	case syscall.EPERM:
		return &Error{Code: ErrorNotPermitted}
	case syscall.ENOENT:
		return &Error{Code: ErrorNoEntry}
	case syscall.EEXIST:
		return &Error{Code: ErrorExist}
	case syscall.ENOTDIR:
		return &Error{Code: ErrorNotDirectory}
	case syscall.EISDIR:
		return &Error{Code: ErrorIsDirectory}
	case syscall.ENOTEMPTY:
		return &Error{Code: ErrorNotEmpty}
	case syscall.ENAMETOOLONG:
		return &Error{Code: ErrorNameTooLong}
	case syscall.ENOSPC:
		return &Error{Code: ErrorInsufficientSpace}
	case syscall.EROFS:
		return &Error{Code: ErrorReadOnly}
	case syscall.EXDEV:
		return &Error{Code: ErrorCrossDevice}
	case syscall.ELOOP:
		return &Error{Code: ErrorLoop}
	case syscall.EMLINK:
		return &Error{Code: ErrorTooManyLinks}
	case syscall.EBUSY:
		return &Error{Code: ErrorBusy}
	case syscall.EINVAL:
		return &Error{Code: ErrorInvalid}
	case syscall.EBADF:
		return &Error{Code: ErrorBadDescriptor}
	case syscall.EPIPE:
		return &Error{Code: ErrorPipe}
	case syscall.EFBIG:
		return &Error{Code: ErrorFileTooLarge}
	default:
		return &Error{Code: ErrorIo}
	}
}
