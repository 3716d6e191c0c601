package executor

import (
	"context"
	"sync/atomic"

	"github.com/wippyai/wasync/errors"
)

type task struct {
	ctx     context.Context
	wakeErr error
	fn      func(context.Context) error
	exec    *Executor
	resume  chan error
	name    string
	id      uint64
	handle  uint32
	started bool
	waiting bool
}

// Spawner adds tasks to an executor. It is safe for concurrent use; a spawn
// from outside the executor wakes a blocked poll.
type Spawner struct {
	e *Executor
}

// Spawn queues fn to run as a task. A task spawned before Run starts on the
// next Run.
func (s *Spawner) Spawn(name string, fn func(ctx context.Context) error) {
	s.e.spawn(name, fn)
}

// scope is what a context carries to say where waits go: a task of an
// executor, or a BlockOn call.
type scope interface {
	wait(ctx context.Context, handle uint32) error
	yield(ctx context.Context) error
	contextID() uint64
}

type scopeKey struct{}

func withScope(ctx context.Context, s scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

func scopeOf(ctx context.Context) (scope, bool) {
	s, ok := ctx.Value(scopeKey{}).(scope)
	return s, ok
}

var contextIDs atomic.Uint64

// ContextID returns the wait context ctx belongs to: 0 for executor tasks,
// a unique positive ID inside each BlockOn call. ok is false outside both.
func ContextID(ctx context.Context) (id uint64, ok bool) {
	s, ok := scopeOf(ctx)
	if !ok {
		return 0, false
	}
	return s.contextID(), true
}

// WaitPollable suspends until handle is ready. In an executor task it yields
// the baton; inside BlockOn it blocks on the BlockOn poller directly.
// It returns ctx's error if ctx ends first.
func WaitPollable(ctx context.Context, handle uint32) error {
	s, ok := scopeOf(ctx)
	if !ok {
		return ErrNoExecutor
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.wait(ctx, handle)
}

// Yield lets every other runnable task take a step before the caller resumes.
func Yield(ctx context.Context) error {
	s, ok := scopeOf(ctx)
	if !ok {
		return ErrNoExecutor
	}
	return s.yield(ctx)
}

// Spawn queues fn on the executor running the calling task.
func Spawn(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	s, ok := scopeOf(ctx)
	if !ok {
		return ErrNoExecutor
	}
	t, ok := s.(*task)
	if !ok {
		return errors.Unsupported(errors.PhaseExecutor, "spawn inside BlockOn")
	}
	t.exec.spawn(name, fn)
	return nil
}

func (t *task) contextID() uint64 { return 0 }

func (t *task) wait(ctx context.Context, handle uint32) error {
	e := t.exec
	if e.poller.Ready(handle) {
		return nil
	}

	e.mu.Lock()
	if e.runCtx != nil && e.runCtx.Err() != nil {
		e.mu.Unlock()
		return e.runCtx.Err()
	}
	t.waiting = true
	t.handle = handle
	e.waiting[handle] = append(e.waiting[handle], t)
	e.stats.Running--
	e.stats.Waiting++
	e.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		e.cancelWait(t, handle, ctx.Err())
	})
	err := t.suspend()
	stop()
	return err
}

func (t *task) yield(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e := t.exec
	e.mu.Lock()
	t.wakeErr = nil
	e.runq = append(e.runq, t)
	e.mu.Unlock()
	return t.suspend()
}

// suspend gives the baton back to the executor and waits to be resumed.
func (t *task) suspend() error {
	t.exec.baton <- struct{}{}
	return <-t.resume
}
