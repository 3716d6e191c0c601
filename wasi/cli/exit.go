package cli

import (
	"context"
	"fmt"
)

// ExitError carries the status a program asked to exit with.
type ExitError struct {
	Code uint32
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// ExitHost turns exit requests into an *ExitError the caller returns,
// leaving the decision to end the process to whoever started the runtime.
type ExitHost struct{}

func NewExitHost() *ExitHost {
	return &ExitHost{}
}

func (h *ExitHost) Namespace() string {
	return "wasi:cli/exit@0.2.8"
}

// Exit maps a result to status 0 or 1.
func (h *ExitHost) Exit(_ context.Context, ok bool) error {
	if ok {
		return &ExitError{Code: 0}
	}
	return &ExitError{Code: 1}
}

func (h *ExitHost) ExitWithCode(_ context.Context, code uint8) error {
	return &ExitError{Code: uint32(code)}
}

func (h *ExitHost) Register() map[string]any {
	return map[string]any{
		"exit":           h.Exit,
		"exit-with-code": h.ExitWithCode,
	}
}
