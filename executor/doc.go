// Package executor runs cooperative tasks that suspend on WASI pollables.
//
// One task runs at a time. A task gives up the baton only in WaitPollable,
// Yield, or by returning; when nothing is runnable the executor hands every
// awaited pollable to a single Poll call and resumes the owners of whatever
// is ready.
//
//	exec := executor.New(h)
//	err := exec.Run(ctx, func(s *executor.Spawner) {
//		s.Spawn("reader", func(ctx context.Context) error {
//			return executor.WaitPollable(ctx, sub)
//		})
//	})
//
// BlockOn gives synchronous code, such as a logger sink, a private wait
// context: waits inside it poll only their own handle and never touch the
// executor's registrations.
package executor
