package cli

import (
	"context"

	"github.com/wippyai/wasync/wasi"
)

// StdioHost hands out stdio stream handles. Every call returns a fresh handle
// onto the same underlying stream; dropping one does not close the stream.
type StdioHost struct {
	resources *wasi.ResourceTable
	stdin     wasi.InputStream
	stdout    wasi.OutputStream
	stderr    wasi.OutputStream
}

func NewStdioHost(resources *wasi.ResourceTable,
	stdin wasi.InputStream,
	stdout wasi.OutputStream,
	stderr wasi.OutputStream) *StdioHost {
	return &StdioHost{
		resources: resources,
		stdin:     stdin,
		stdout:    stdout,
		stderr:    stderr,
	}
}

func (h *StdioHost) Namespace() string {
	return "wasi:cli/stdin@0.2.8"
}

func (h *StdioHost) GetStdin(_ context.Context) uint32 {
	return h.resources.Add(wasi.SharedInputStream{InputStream: h.stdin})
}

func (h *StdioHost) GetStdout(_ context.Context) uint32 {
	return h.resources.Add(wasi.SharedOutputStream{OutputStream: h.stdout})
}

func (h *StdioHost) GetStderr(_ context.Context) uint32 {
	return h.resources.Add(wasi.SharedOutputStream{OutputStream: h.stderr})
}

func (h *StdioHost) Register() map[string]any {
	return map[string]any{
		"get-stdin":  h.GetStdin,
		"get-stdout": h.GetStdout,
		"get-stderr": h.GetStderr,
	}
}
