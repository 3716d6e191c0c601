// Package sockets implements WASI socket interfaces.
//
// Implements:
//   - wasi:sockets/instance-network@0.2.8 - Network handle
//   - wasi:sockets/tcp-create-socket@0.2.8 - TCP socket creation
//   - wasi:sockets/tcp@0.2.8 - Bind, listen, accept, connect, shutdown
//
// Listening and connecting are two-phase: start-* launches the work on a
// background goroutine and finish-* reports would-block until it is done.
// The socket's subscription becomes ready whenever the next finish-* or
// accept can make progress. Streams and subscriptions are owned by the socket.
package sockets
