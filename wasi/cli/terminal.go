package cli

import (
	"context"
	"os"
	"sync/atomic"

	"golang.org/x/term"

	"github.com/wippyai/wasync/wasi"
)

var (
	stdinIsTerminal  int32 = -1 // -1 = unchecked, 0 = no, 1 = yes
	stdoutIsTerminal int32 = -1
	stderrIsTerminal int32 = -1
)

func isTerminal(fd int, cached *int32) bool {
	if v := atomic.LoadInt32(cached); v >= 0 {
		return v == 1
	}
	result := term.IsTerminal(fd)
	if result {
		atomic.StoreInt32(cached, 1)
	} else {
		atomic.StoreInt32(cached, 0)
	}
	return result
}

// TerminalInput marks stdin as attached to a terminal.
type TerminalInput struct{}

func (TerminalInput) Type() wasi.ResourceType { return wasi.ResourceTerminalInput }
func (TerminalInput) Drop()                   {}

// TerminalOutput marks stdout or stderr as attached to a terminal.
type TerminalOutput struct{}

func (TerminalOutput) Type() wasi.ResourceType { return wasi.ResourceTerminalOutput }
func (TerminalOutput) Drop()                   {}

// TerminalHost reports whether the process's own stdio is a terminal.
// When stdio is captured or piped instead of inherited, nothing is a terminal.
type TerminalHost struct {
	resources *wasi.ResourceTable
	inherited bool
}

func NewTerminalHost(resources *wasi.ResourceTable, inherited bool) *TerminalHost {
	return &TerminalHost{resources: resources, inherited: inherited}
}

func (h *TerminalHost) Namespace() string {
	return "wasi:cli/terminal-stdin@0.2.8"
}

func (h *TerminalHost) GetTerminalStdin(_ context.Context) *uint32 {
	if !h.inherited || !isTerminal(int(os.Stdin.Fd()), &stdinIsTerminal) {
		return nil
	}
	handle := h.resources.Add(TerminalInput{})
	return &handle
}

func (h *TerminalHost) GetTerminalStdout(_ context.Context) *uint32 {
	if !h.inherited || !isTerminal(int(os.Stdout.Fd()), &stdoutIsTerminal) {
		return nil
	}
	handle := h.resources.Add(TerminalOutput{})
	return &handle
}

func (h *TerminalHost) GetTerminalStderr(_ context.Context) *uint32 {
	if !h.inherited || !isTerminal(int(os.Stderr.Fd()), &stderrIsTerminal) {
		return nil
	}
	handle := h.resources.Add(TerminalOutput{})
	return &handle
}

func (h *TerminalHost) ResourceDropTerminalInput(_ context.Context, self uint32) {
	_ = h.resources.Remove(self)
}

func (h *TerminalHost) ResourceDropTerminalOutput(_ context.Context, self uint32) {
	_ = h.resources.Remove(self)
}

func (h *TerminalHost) Register() map[string]any {
	return map[string]any{
		"get-terminal-stdin":             h.GetTerminalStdin,
		"get-terminal-stdout":            h.GetTerminalStdout,
		"get-terminal-stderr":            h.GetTerminalStderr,
		"[resource-drop]terminal-input":  h.ResourceDropTerminalInput,
		"[resource-drop]terminal-output": h.ResourceDropTerminalOutput,
	}
}
