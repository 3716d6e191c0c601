package wasi

import (
	"io"
	"maps"
	"os"
)

// WASI configures a WASI environment. Use builder methods to set up.
type WASI struct {
	resources *ResourceTable
	stdin     InputStream
	stdout    OutputStream
	stderr    OutputStream
	env       map[string]string
	preopens  map[string]string
	cwd       string
	args      []string
	inherited bool
}

// New creates a new WASI instance with empty stdin and captured stdout/stderr.
func New() *WASI {
	w := &WASI{
		resources: NewResourceTable(),
		stdin:     NewBytesInputStream(nil),
		stdout:    NewBufferOutputStream(nil),
		stderr:    NewBufferOutputStream(nil),
		env:       make(map[string]string),
		args:      nil,
		cwd:       "/",
		preopens:  make(map[string]string),
	}
	return w
}

// WithEnv sets environment variables
func (w *WASI) WithEnv(env map[string]string) *WASI {
	w.env = maps.Clone(env)
	return w
}

// WithArgs sets command-line arguments
func (w *WASI) WithArgs(args []string) *WASI {
	w.args = args
	return w
}

// WithCwd sets the current working directory
func (w *WASI) WithCwd(cwd string) *WASI {
	w.cwd = cwd
	return w
}

// WithPreopens maps guest paths to host directories
func (w *WASI) WithPreopens(preopens map[string]string) *WASI {
	w.preopens = maps.Clone(preopens)
	return w
}

// WithStdin sets stdin data
func (w *WASI) WithStdin(data []byte) *WASI {
	w.stdin = NewBytesInputStream(data)
	return w
}

// WithStdinReader streams stdin from r
func (w *WASI) WithStdinReader(r io.Reader) *WASI {
	w.stdin = NewPipeInputStream(r, 0)
	return w
}

// WithStdout streams stdout to dst
func (w *WASI) WithStdout(dst io.Writer) *WASI {
	w.stdout = NewPipeOutputStream(dst, 0)
	return w
}

// WithStderr streams stderr to dst
func (w *WASI) WithStderr(dst io.Writer) *WASI {
	w.stderr = NewPipeOutputStream(dst, 0)
	return w
}

// WithInheritedStdio connects stdio to the host process's own streams.
func (w *WASI) WithInheritedStdio() *WASI {
	w.WithStdinReader(os.Stdin).WithStdout(os.Stdout).WithStderr(os.Stderr)
	w.inherited = true
	return w
}

// InheritsStdio reports whether stdio is the host process's own.
func (w *WASI) InheritsStdio() bool {
	return w.inherited
}

// Stdout returns captured stdout, nil when stdout is streamed elsewhere.
func (w *WASI) Stdout() []byte {
	if b, ok := w.stdout.(*BufferOutputStream); ok {
		return b.Bytes()
	}
	return nil
}

// Stderr returns captured stderr, nil when stderr is streamed elsewhere.
func (w *WASI) Stderr() []byte {
	if b, ok := w.stderr.(*BufferOutputStream); ok {
		return b.Bytes()
	}
	return nil
}

// Resources returns the resource table
func (w *WASI) Resources() *ResourceTable {
	return w.resources
}

// Env returns environment variables
func (w *WASI) Env() map[string]string {
	return w.env
}

// Args returns command-line arguments
func (w *WASI) Args() []string {
	return w.args
}

// Cwd returns current working directory
func (w *WASI) Cwd() string {
	return w.cwd
}

// Preopens returns preopened directories
func (w *WASI) Preopens() map[string]string {
	return w.preopens
}

// StdinStream returns the stdin stream
func (w *WASI) StdinStream() InputStream {
	return w.stdin
}

// StdoutStream returns the stdout stream
func (w *WASI) StdoutStream() OutputStream {
	return w.stdout
}

// StderrStream returns the stderr stream
func (w *WASI) StderrStream() OutputStream {
	return w.stderr
}

// Close drops every resource, children before parents, then retires the
// stdio streams.
func (w *WASI) Close() error {
	err := w.resources.Close()
	w.stdin.Drop()
	w.stdout.Drop()
	w.stderr.Drop()
	return err
}

// SharedInputStream hands out a process-wide stream under a guest handle.
// Dropping the handle leaves the underlying stream open.
type SharedInputStream struct {
	InputStream
}

func (SharedInputStream) Drop() {}

// SharedOutputStream is the output counterpart of SharedInputStream.
type SharedOutputStream struct {
	OutputStream
}

func (SharedOutputStream) Drop() {}
