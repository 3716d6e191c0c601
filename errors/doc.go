// Package errors provides structured error types for the wasync runtime.
//
// Errors are categorized by Phase (which layer failed) and Kind (error category).
// The Error type carries the operation, the handle or path involved, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseStream, errors.KindClosed).
//		Op("write").
//		Handle(h).
//		Detail("peer went away").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.InvalidHandle(errors.PhasePoll, "poll", h)
//	err := errors.WrapOp(errors.PhaseFilesystem, errors.KindNotFound, "open", path, fs.ErrNotExist)
//
// All errors implement the standard error interface and support errors.Is/As.
// Is matches on phase and kind; Unwrap exposes the cause, so sentinels such as
// io.EOF or fs.ErrNotExist remain matchable through a wrapped *Error.
package errors
