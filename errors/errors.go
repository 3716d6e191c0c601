package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Phase indicates which layer produced the error
type Phase string

const (
	PhaseResource   Phase = "resource"   // handle table
	PhasePoll       Phase = "poll"       // pollable readiness
	PhaseStream     Phase = "stream"     // input/output streams
	PhaseFilesystem Phase = "filesystem" // descriptors and preopens
	PhaseNetwork    Phase = "network"    // sockets
	PhaseClock      Phase = "clock"      // timers
	PhaseExecutor   Phase = "executor"   // task scheduling
	PhaseLoad       Phase = "load"       // guest module loading
	PhaseHost       Phase = "host"       // host function registration
	PhaseRuntime    Phase = "runtime"    // guest execution
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidHandle  Kind = "invalid_handle"
	KindHasChildren    Kind = "has_children"
	KindBorrowed       Kind = "borrowed"
	KindClosed         Kind = "closed"
	KindWouldBlock     Kind = "would_block"
	KindInvalidState   Kind = "invalid_state"
	KindInvalidInput   Kind = "invalid_input"
	KindInvalidUTF8    Kind = "invalid_utf8"
	KindNotFound       Kind = "not_found"
	KindExists         Kind = "exists"
	KindPermission     Kind = "permission"
	KindUnsupported    Kind = "unsupported"
	KindOutOfBounds    Kind = "out_of_bounds"
	KindCancelled      Kind = "cancelled"
	KindTimeout        Kind = "timeout"
	KindIO             Kind = "io"
	KindNotInitialized Kind = "not_initialized"
	KindRegistration   Kind = "registration"
	KindInstantiation  Kind = "instantiation"
	KindPanic          Kind = "panic"
)

// Error is the structured error type used throughout the runtime
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Op     string
	Path   string
	Detail string
	Handle uint32
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
	}
	if e.Handle != 0 {
		fmt.Fprintf(&b, " (handle %d)", e.Handle)
	}
	if e.Path != "" {
		b.WriteString(" at ")
		b.WriteString(e.Path)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Op sets the operation name
func (b *Builder) Op(op string) *Builder {
	b.err.Op = op
	return b
}

// Path sets the filesystem path or address involved
func (b *Builder) Path(path string) *Builder {
	b.err.Path = path
	return b
}

// Handle sets the resource handle involved
func (b *Builder) Handle(h uint32) *Builder {
	b.err.Handle = h
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// InvalidHandle creates an error for a handle that is not live in the table
func InvalidHandle(phase Phase, op string, h uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidHandle,
		Op:     op,
		Handle: h,
	}
}

// HasChildren creates an error for a drop refused because children are live
func HasChildren(phase Phase, op string, h uint32, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindHasChildren,
		Op:     op,
		Handle: h,
		Detail: "resource still owns live child resources",
		Cause:  cause,
	}
}

// Closed creates an error for an operation on a closed resource
func Closed(phase Phase, op string) *Error {
	return &Error{
		Phase: phase,
		Kind:  KindClosed,
		Op:    op,
	}
}

// WouldBlock creates an error for a non-blocking operation that cannot make progress
func WouldBlock(phase Phase, op string) *Error {
	return &Error{
		Phase: phase,
		Kind:  KindWouldBlock,
		Op:    op,
	}
}

// InvalidState creates an error for an operation attempted in the wrong state
func InvalidState(phase Phase, op, state string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidState,
		Op:     op,
		Detail: fmt.Sprintf("not allowed in state %s", state),
	}
}

// InvalidUTF8 creates an invalid UTF-8 error
func InvalidUTF8(phase Phase, path string, data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	off := 0
	for off < len(data) {
		r, size := utf8.DecodeRune(data[off:])
		if r == utf8.RuneError && size <= 1 {
			break
		}
		off += size
	}
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidUTF8,
		Path:   path,
		Value:  off,
		Detail: fmt.Sprintf("invalid UTF-8 sequence at offset %d: %x", off, preview),
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, op string, value, limit int64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Op:     op,
		Detail: fmt.Sprintf("%d out of bounds (limit %d)", value, limit),
		Value:  value,
	}
}

// Cancelled wraps a context error for an operation that was abandoned
func Cancelled(phase Phase, op string, cause error) *Error {
	return &Error{
		Phase: phase,
		Kind:  KindCancelled,
		Op:    op,
		Cause: cause,
	}
}

// Panic creates an error from a recovered panic value
func Panic(phase Phase, op string, v any) *Error {
	var cause error
	if err, ok := v.(error); ok {
		cause = err
	}
	return &Error{
		Phase:  phase,
		Kind:   KindPanic,
		Op:     op,
		Value:  v,
		Detail: fmt.Sprintf("panic: %v", v),
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// WrapOp wraps an existing error with the operation and path that produced it
func WrapOp(phase Phase, kind Kind, op, path string, cause error) *Error {
	return &Error{
		Phase: phase,
		Kind:  kind,
		Op:    op,
		Path:  path,
		Cause: cause,
	}
}

// NotInitialized creates a not-initialized error
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Registration creates a registration error
func Registration(phase Phase, namespace, name string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindRegistration,
		Detail: fmt.Sprintf("register %s#%s", namespace, name),
		Cause:  cause,
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// Load creates a module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindIO,
		Detail: detail,
		Cause:  cause,
	}
}

// MultiError collects independent failures, such as several tasks failing in one run.
type MultiError struct {
	Errors []error
}

// Append adds err unless it is nil.
func (m *MultiError) Append(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// ErrorOrNil returns nil when nothing was collected.
func (m *MultiError) ErrorOrNil() error {
	if m == nil || len(m.Errors) == 0 {
		return nil
	}
	return m
}

func (m *MultiError) Error() string {
	switch len(m.Errors) {
	case 0:
		return "no errors"
	case 1:
		return m.Errors[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d errors occurred:", len(m.Errors))
	for _, err := range m.Errors {
		b.WriteString("\n  * ")
		b.WriteString(err.Error())
	}
	return b.String()
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool { return stderrors.As(err, target) }

// Join returns an error that wraps the given errors, nil if all are nil.
func Join(errs ...error) error { return stderrors.Join(errs...) }

// Sentinel creates a plain error value for package-level sentinels.
func Sentinel(msg string) error { return stderrors.New(msg) }
