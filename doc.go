// Package wasync is a cooperative async runtime driven by WASI pollables.
//
// Every blocking operation is expressed the way a WASI guest sees it: a
// non-blocking host call that returns a handle, a pollable subscribed from
// that handle, and a suspension until the pollable is ready. One executor
// multiplexes any number of tasks over a single host poll, and at most one
// task runs at a time.
//
// # Architecture Overview
//
//	wasync/              Root package: Config, Runtime
//	├── executor/        Cooperative executor, WaitPollable, Yield, BlockOn
//	├── stream/          Async readers and writers over stream handles, stdio
//	├── file/            Async filesystem on top of preopens
//	├── tcp/             Async TCP listeners and connections
//	├── clock/           Timers
//	├── logging/         zap logger writing to the async stderr stream
//	├── engine/          wazero runner for WASI preview1 guests
//	├── resource/        Handle table with parent/child ownership
//	├── errors/          Structured error types
//	└── wasi/            Host model: pollables, streams, descriptors, sockets
//
// # Quick Start
//
//	rt := wasync.New(wasync.Config{InheritStdio: true})
//	defer rt.Close()
//
//	err := rt.Run(ctx, func(ctx context.Context) error {
//	    out := stream.Stdout(rt.Host())
//	    if _, err := stream.Copy(ctx, out, stream.Stdin(rt.Host())); err != nil {
//	        return err
//	    }
//	    return out.Flush(ctx)
//	})
//
// Tasks spawn more tasks with executor.Spawn. Run returns once every task
// has finished and no pollable is still awaited.
//
// # Resource Lifecycle
//
// Subscriptions are children of the stream or socket they watch, and a
// connection's streams are children of its socket. A resource with live
// children cannot be dropped, so the facades always release children first.
// Runtime.Close drops whatever is left, deepest first.
package wasync
