// Package wasi models a WASI preview2 host: handles, pollables and streams.
//
// A guest never touches host objects directly. It holds integer handles into a
// ResourceTable and calls non-blocking methods on them; when a method cannot
// make progress the guest subscribes to a pollable and waits.
//
// # Quick Start
//
//	w := wasi.New().
//	    WithEnv(map[string]string{"HOME": "/home/user"}).
//	    WithArgs([]string{"program", "--verbose"}).
//	    WithStdinReader(os.Stdin).
//	    WithStdout(os.Stdout).
//	    WithPreopens(map[string]string{"/data": "./data"})
//	defer w.Close()
//
// # Ownership
//
// Resources derived from another resource are registered as its children
// with AddChild: a subscription pollable belongs to its stream, the streams of
// a connected socket belong to the socket, a read-via-stream belongs to its
// descriptor. The table refuses to remove a parent while children are live,
// and Close tears everything down children first.
//
// # Readiness
//
// Every Pollable exposes Ready and a Signal channel that is closed whenever
// readiness may have changed. Notifier implements that broadcast. Stream
// pollables delegate to the stream they watch, so a PipeInputStream becomes
// ready as soon as its background pump has buffered data.
//
// # Implemented Interfaces
//
// Sub-packages provide the host side of the WASI interfaces:
//
//   - io: poll, input-stream, output-stream, error
//   - cli: stdin/stdout/stderr, environment, terminal detection
//   - clocks: monotonic and wall clocks with timer subscriptions
//   - filesystem: preopens and descriptors
//   - sockets: instance network and TCP
//   - host: all of the above over one table
//
// # Thread Safety
//
// Resources are safe for concurrent use: background pumps fill and drain
// streams while the guest polls them.
package wasi
