package stream

import (
	"context"

	"github.com/wippyai/wasync/wasi/host"
)

// Stdin returns buffered standard input. Every call owns a fresh handle.
func Stdin(h *host.WASIHost) *BufReader {
	return NewBufReader(NewInputStream(h, h.Stdio.GetStdin(context.Background())))
}

// Stdout returns buffered standard output. Call Flush to push out a
// partial buffer.
func Stdout(h *host.WASIHost) *BufWriter {
	return NewBufWriter(NewOutputStream(h, h.Stdio.GetStdout(context.Background())))
}

// Stderr returns buffered standard error.
func Stderr(h *host.WASIHost) *BufWriter {
	return NewBufWriter(NewOutputStream(h, h.Stdio.GetStderr(context.Background())))
}

// Stdio combines Stdin and Stdout.
func Stdio(h *host.WASIHost) *Combined {
	return Combine(Stdin(h), Stdout(h))
}
