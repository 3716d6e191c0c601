package executor

import (
	"context"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/wasync/errors"
)

// Poller is the host side of the pollable bridge.
type Poller interface {
	// Ready reports readiness without blocking.
	Ready(handle uint32) bool
	// Poll blocks until at least one handle is ready and returns the
	// indices of every ready entry.
	Poll(ctx context.Context, handles []uint32) ([]uint32, error)
}

// DropWatcher is implemented by pollers whose handles can be dropped while a
// task waits on them. Handle numbers are recycled, so a waiter left behind
// would end up polling whatever resource takes the number next.
type DropWatcher interface {
	// WatchDrops calls fn with every dropped handle until stop is called.
	// fn may be called from any goroutine.
	WatchDrops(fn func(handle uint32)) (stop func())
}

// ErrNoExecutor is returned by WaitPollable, Yield and Spawn when the context
// belongs to neither an executor task nor a BlockOn call.
var ErrNoExecutor = &errors.Error{
	Phase:  errors.PhaseExecutor,
	Kind:   errors.KindNotInitialized,
	Detail: "no executor in context",
}

// TaskError reports the failure of a single task.
type TaskError struct {
	Err  error
	Task string
}

func (e *TaskError) Error() string { return "task " + e.Task + ": " + e.Err.Error() }
func (e *TaskError) Unwrap() error { return e.Err }

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger for scheduling events.
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// Executor runs tasks cooperatively: exactly one task holds the baton at a
// time and gives it back only inside WaitPollable, Yield or by returning.
// When no task is runnable it polls every pollable the tasks are waiting on
// and resumes the owners of the ready ones.
type Executor struct {
	poller     Poller
	logger     *zap.Logger
	runCtx     context.Context
	pollCancel context.CancelFunc
	waiting    map[uint32][]*task
	baton      chan struct{}
	runq       []*task
	errs       errors.MultiError
	stats      Stats
	nextID     uint64
	mu         sync.Mutex
	running    bool
}

// New creates an executor that suspends tasks on poller's pollables.
func New(poller Poller, opts ...Option) *Executor {
	l := Logger()
	if l == nil {
		l = zap.NewNop()
	}
	e := &Executor{
		poller:  poller,
		logger:  l,
		waiting: make(map[uint32][]*task),
		baton:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Spawner returns a handle for adding tasks to e.
func (e *Executor) Spawner() *Spawner {
	return &Spawner{e: e}
}

// Stats returns a snapshot of the scheduling counters.
func (e *Executor) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Run calls init, then drives tasks until none is runnable and none is
// waiting. Task errors and panics are collected into the returned error.
// If ctx ends, every waiting task is resumed with ctx's error and Run keeps
// stepping until all tasks have returned.
func (e *Executor) Run(ctx context.Context, init func(*Spawner)) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return errors.InvalidState(errors.PhaseExecutor, "run", "running")
	}
	e.running = true
	e.runCtx = ctx
	e.errs = errors.MultiError{}
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.runCtx = nil
		e.mu.Unlock()
	}()

	if w, ok := e.poller.(DropWatcher); ok {
		stop := w.WatchDrops(e.dropped)
		defer stop()
	}

	if init != nil {
		init(e.Spawner())
	}

	cancelled := false
	for {
		if !cancelled && ctx.Err() != nil {
			cancelled = true
			e.logger.Debug("run cancelled, resuming waiters", zap.Error(ctx.Err()))
			e.wakeAll(ctx.Err())
		}

		if t := e.next(); t != nil {
			e.step(t)
			continue
		}

		e.mu.Lock()
		if len(e.runq) > 0 {
			e.mu.Unlock()
			continue
		}
		if len(e.waiting) == 0 {
			e.mu.Unlock()
			break
		}
		e.pollOnce(ctx)
	}

	e.mu.Lock()
	errs := e.errs
	e.errs = errors.MultiError{}
	e.mu.Unlock()

	if ctx.Err() != nil {
		out := errors.MultiError{}
		out.Append(errors.Cancelled(errors.PhaseExecutor, "run", ctx.Err()))
		for _, err := range errs.Errors {
			if !errors.Is(err, ctx.Err()) {
				out.Append(err)
			}
		}
		return out.ErrorOrNil()
	}
	return errs.ErrorOrNil()
}

// pollOnce must be called with mu held; it returns with mu released.
func (e *Executor) pollOnce(ctx context.Context) {
	handles := make([]uint32, 0, len(e.waiting))
	for h := range e.waiting {
		handles = append(handles, h)
	}
	slices.Sort(handles)

	pollCtx, cancel := context.WithCancel(ctx)
	e.pollCancel = cancel
	e.stats.Polls++
	e.mu.Unlock()

	ready, err := e.poller.Poll(pollCtx, handles)

	e.mu.Lock()
	e.pollCancel = nil
	e.mu.Unlock()
	interrupted := pollCtx.Err() != nil
	cancel()

	if err != nil {
		if interrupted {
			// spawn, task cancellation, or run cancellation; the loop sorts it out
			return
		}
		e.logger.Warn("poll failed", zap.Int("handles", len(handles)), zap.Error(err))
		e.wakeAll(errors.Wrap(errors.PhaseExecutor, errors.KindIO, err, "poll"))
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, i := range ready {
		if int(i) >= len(handles) {
			continue
		}
		h := handles[i]
		for _, t := range e.waiting[h] {
			e.resumeLocked(t, nil)
		}
		delete(e.waiting, h)
	}
}

func (e *Executor) next() *task {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.runq) == 0 {
		return nil
	}
	t := e.runq[0]
	e.runq[0] = nil
	e.runq = e.runq[1:]
	return t
}

// step hands the baton to t and waits for it to come back.
func (e *Executor) step(t *task) {
	if !t.started {
		t.started = true
		t.ctx = withScope(e.runCtx, t)
		go e.runTask(t)
	} else {
		t.resume <- t.wakeErr
	}
	<-e.baton
}

func (e *Executor) runTask(t *task) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = errors.Panic(errors.PhaseExecutor, t.name, r)
			e.logger.Error("task panicked", zap.String("task", t.name), zap.Any("panic", r))
		}
		e.finish(t, err)
		e.baton <- struct{}{}
	}()
	err = t.fn(t.ctx)
}

// finish and spawn log after releasing mu: the logger's sink may itself run
// host calls that drop pollables, and dropped takes mu.
func (e *Executor) finish(t *task, err error) {
	e.mu.Lock()
	e.stats.Running--
	if err != nil {
		e.stats.Failed++
		e.errs.Append(&TaskError{Task: t.name, Err: err})
	} else {
		e.stats.Completed++
	}
	e.mu.Unlock()

	if err != nil {
		e.logger.Debug("task failed", zap.String("task", t.name), zap.Error(err))
		return
	}
	e.logger.Debug("task completed", zap.String("task", t.name))
}

func (e *Executor) spawn(name string, fn func(context.Context) error) {
	e.mu.Lock()
	e.nextID++
	t := &task{
		id:     e.nextID,
		name:   name,
		fn:     fn,
		exec:   e,
		resume: make(chan error),
	}
	e.stats.Spawned++
	e.stats.Running++
	e.runq = append(e.runq, t)
	e.interruptLocked()
	e.mu.Unlock()

	e.logger.Debug("task spawned", zap.String("task", name), zap.Uint64("id", t.id))
}

// interruptLocked cuts short an in-flight poll so new work is noticed.
func (e *Executor) interruptLocked() {
	if e.pollCancel != nil {
		e.pollCancel()
	}
}

// resumeLocked moves a waiting task back to the run queue. It reports false
// if the task was already resumed by someone else.
func (e *Executor) resumeLocked(t *task, err error) bool {
	if !t.waiting {
		return false
	}
	t.waiting = false
	t.wakeErr = err
	e.stats.Waiting--
	e.stats.Running++
	e.runq = append(e.runq, t)
	return true
}

func (e *Executor) wakeAll(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	handles := make([]uint32, 0, len(e.waiting))
	for h := range e.waiting {
		handles = append(handles, h)
	}
	slices.Sort(handles)
	for _, h := range handles {
		for _, t := range e.waiting[h] {
			e.resumeLocked(t, err)
		}
		delete(e.waiting, h)
	}
}

// cancelWait unregisters t from handle after its context ended.
func (e *Executor) cancelWait(t *task, handle uint32, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.resumeLocked(t, err) {
		return
	}
	ws := slices.DeleteFunc(e.waiting[handle], func(w *task) bool { return w == t })
	if len(ws) == 0 {
		delete(e.waiting, handle)
	} else {
		e.waiting[handle] = ws
	}
	e.interruptLocked()
}

// dropped resumes every task waiting on handle with a closed error. It must
// not log: it runs inside the resource table's notification.
func (e *Executor) dropped(handle uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ws, ok := e.waiting[handle]
	if !ok {
		return
	}
	delete(e.waiting, handle)
	err := errors.New(errors.PhaseExecutor, errors.KindClosed).
		Op("wait").
		Handle(handle).
		Detail("pollable dropped while waiting").
		Build()
	for _, t := range ws {
		e.resumeLocked(t, err)
	}
	e.interruptLocked()
}
