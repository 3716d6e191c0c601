package executor

import (
	"context"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/wasync/errors"
	"github.com/wippyai/wasync/wasi"
	"github.com/wippyai/wasync/wasi/host"
	wasiio "github.com/wippyai/wasync/wasi/io"
)

type fixture struct {
	table *wasi.ResourceTable
	poll  *wasiio.PollHost
}

func newFixture() *fixture {
	table := wasi.NewResourceTable()
	return &fixture{table: table, poll: wasiio.NewPollHost(table)}
}

func (f *fixture) pollable() (uint32, *wasi.PollableResource) {
	p := wasi.NewPollableResource(false)
	return f.table.Add(p), p
}

func TestRun_Empty(t *testing.T) {
	e := New(newFixture().poll)
	if err := e.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s := e.Stats(); s.Spawned != 0 || s.Polls != 0 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestRun_InterleavesAtWaitPoints(t *testing.T) {
	f := newFixture()
	h1, p1 := f.pollable()
	h2, p2 := f.pollable()

	var (
		mu     sync.Mutex
		events []string
		active atomic.Int32
		peak   atomic.Int32
	)
	record := func(s string) {
		if n := active.Add(1); n > peak.Load() {
			peak.Store(n)
		}
		mu.Lock()
		events = append(events, s)
		mu.Unlock()
		time.Sleep(time.Millisecond)
		active.Add(-1)
	}

	e := New(f.poll)
	err := e.Run(context.Background(), func(s *Spawner) {
		s.Spawn("a", func(ctx context.Context) error {
			record("a1")
			if err := WaitPollable(ctx, h1); err != nil {
				return err
			}
			record("a2")
			p2.SetReady(true)
			return nil
		})
		s.Spawn("b", func(ctx context.Context) error {
			record("b1")
			p1.SetReady(true)
			if err := WaitPollable(ctx, h2); err != nil {
				return err
			}
			record("b2")
			return nil
		})
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{"a1", "b1", "a2", "b2"}
	if !slices.Equal(events, want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	if peak.Load() != 1 {
		t.Fatalf("%d tasks ran at once", peak.Load())
	}
	s := e.Stats()
	if s.Spawned != 2 || s.Completed != 2 || s.Running != 0 || s.Waiting != 0 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestRun_CollectsErrorsAndPanics(t *testing.T) {
	e := New(newFixture().poll)
	boom := errors.Sentinel("boom")

	err := e.Run(context.Background(), func(s *Spawner) {
		s.Spawn("fails", func(context.Context) error { return boom })
		s.Spawn("panics", func(context.Context) error { panic("bad") })
		s.Spawn("ok", func(context.Context) error { return nil })
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom in %v", err)
	}
	panicErr := &errors.Error{Phase: errors.PhaseExecutor, Kind: errors.KindPanic}
	if !errors.Is(err, panicErr) {
		t.Fatalf("expected panic error in %v", err)
	}
	var te *TaskError
	if !errors.As(err, &te) || te.Task != "fails" {
		t.Fatalf("expected TaskError for fails, got %v", te)
	}
	if s := e.Stats(); s.Failed != 2 || s.Completed != 1 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestRun_CancelResumesWaiters(t *testing.T) {
	f := newFixture()
	h, _ := f.pollable()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	var waitErr error
	e := New(f.poll)
	err := e.Run(ctx, func(s *Spawner) {
		s.Spawn("stuck", func(ctx context.Context) error {
			waitErr = WaitPollable(ctx, h)
			return waitErr
		})
	})
	if !errors.Is(waitErr, context.Canceled) {
		t.Fatalf("waiter got %v", waitErr)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v", err)
	}
	if s := e.Stats(); s.Waiting != 0 || s.Running != 0 {
		t.Fatalf("tasks left behind: %+v", s)
	}
}

func TestWaitPollable_TaskContextCancel(t *testing.T) {
	f := newFixture()
	h, _ := f.pollable()

	e := New(f.poll)
	err := e.Run(context.Background(), func(s *Spawner) {
		s.Spawn("timeout", func(ctx context.Context) error {
			wctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
			defer cancel()
			if err := WaitPollable(wctx, h); !errors.Is(err, context.DeadlineExceeded) {
				t.Errorf("expected deadline exceeded, got %v", err)
			}
			return nil
		})
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestSpawner_FromOtherGoroutineWakesPoll(t *testing.T) {
	f := newFixture()
	h, p := f.pollable()

	e := New(f.poll)
	sp := e.Spawner()
	time.AfterFunc(20*time.Millisecond, func() {
		sp.Spawn("release", func(context.Context) error {
			p.SetReady(true)
			return nil
		})
	})

	var order []string
	err := e.Run(context.Background(), func(s *Spawner) {
		s.Spawn("waiter", func(ctx context.Context) error {
			if err := WaitPollable(ctx, h); err != nil {
				return err
			}
			order = append(order, "waiter")
			return nil
		})
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(order) != 1 {
		t.Fatal("waiter never resumed")
	}
	if s := e.Stats(); s.Spawned != 2 || s.Completed != 2 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestYield_RoundRobin(t *testing.T) {
	e := New(newFixture().poll)
	var order []string

	worker := func(name string) func(context.Context) error {
		return func(ctx context.Context) error {
			for range 3 {
				order = append(order, name)
				if err := Yield(ctx); err != nil {
					return err
				}
			}
			return nil
		}
	}
	err := e.Run(context.Background(), func(s *Spawner) {
		s.Spawn("a", worker("a"))
		s.Spawn("b", worker("b"))
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"a", "b", "a", "b", "a", "b"}
	if !slices.Equal(order, want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
}

func TestWaitPollable_SharedHandle(t *testing.T) {
	f := newFixture()
	h, p := f.pollable()

	e := New(f.poll)
	var woke atomic.Int32
	waiter := func(ctx context.Context) error {
		if err := WaitPollable(ctx, h); err != nil {
			return err
		}
		woke.Add(1)
		return nil
	}
	err := e.Run(context.Background(), func(s *Spawner) {
		s.Spawn("w1", waiter)
		s.Spawn("w2", waiter)
		s.Spawn("release", func(ctx context.Context) error {
			if got := e.Stats().Waiting; got != 2 {
				t.Errorf("waiting = %d, want 2", got)
			}
			p.SetReady(true)
			return nil
		})
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if woke.Load() != 2 {
		t.Fatalf("%d waiters resumed, want 2", woke.Load())
	}
	if e.Stats().Polls != 1 {
		t.Fatalf("polls = %d, want 1", e.Stats().Polls)
	}
}

func TestWaitPollable_ReadyAndInvalidHandles(t *testing.T) {
	f := newFixture()
	ready := f.table.Add(wasi.NewPollableResource(true))

	e := New(f.poll)
	err := e.Run(context.Background(), func(s *Spawner) {
		s.Spawn("fast", func(ctx context.Context) error {
			if err := WaitPollable(ctx, ready); err != nil {
				return err
			}
			return WaitPollable(ctx, 9999)
		})
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if e.Stats().Polls != 0 {
		t.Fatal("ready handles must not need a poll")
	}
}

func TestWaitPollable_NoExecutor(t *testing.T) {
	ctx := context.Background()
	if err := WaitPollable(ctx, 1); !errors.Is(err, ErrNoExecutor) {
		t.Fatalf("WaitPollable: %v", err)
	}
	if err := Yield(ctx); !errors.Is(err, ErrNoExecutor) {
		t.Fatalf("Yield: %v", err)
	}
	if err := Spawn(ctx, "x", func(context.Context) error { return nil }); !errors.Is(err, ErrNoExecutor) {
		t.Fatalf("Spawn: %v", err)
	}
	if _, ok := ContextID(ctx); ok {
		t.Fatal("background context has no wait context")
	}
}

func TestSpawn_FromTask(t *testing.T) {
	e := New(newFixture().poll)
	var ran atomic.Bool
	err := e.Run(context.Background(), func(s *Spawner) {
		s.Spawn("parent", func(ctx context.Context) error {
			return Spawn(ctx, "child", func(context.Context) error {
				ran.Store(true)
				return nil
			})
		})
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !ran.Load() {
		t.Fatal("child task never ran")
	}
}

func TestRun_RejectsReentry(t *testing.T) {
	e := New(newFixture().poll)
	err := e.Run(context.Background(), func(s *Spawner) {
		s.Spawn("nested", func(ctx context.Context) error {
			return e.Run(ctx, nil)
		})
	})
	state := &errors.Error{Phase: errors.PhaseExecutor, Kind: errors.KindInvalidState}
	if !errors.Is(err, state) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestBlockOn_UsesOnlyItsOwnPollables(t *testing.T) {
	f := newFixture()
	mainHandle, mainPollable := f.pollable()
	ownHandle, ownPollable := f.pollable()

	e := New(f.poll)
	var mainResumed atomic.Bool
	err := e.Run(context.Background(), func(s *Spawner) {
		s.Spawn("main-waiter", func(ctx context.Context) error {
			if err := WaitPollable(ctx, mainHandle); err != nil {
				return err
			}
			mainResumed.Store(true)
			return nil
		})
		s.Spawn("blocker", func(ctx context.Context) error {
			err := BlockOn(ctx, f.poll, func(ctx context.Context) error {
				id, ok := ContextID(ctx)
				if !ok || id == 0 {
					t.Errorf("BlockOn context id = %d, %v", id, ok)
				}
				time.AfterFunc(10*time.Millisecond, func() { ownPollable.SetReady(true) })
				return WaitPollable(ctx, ownHandle)
			})
			if err != nil {
				return err
			}
			if e.Stats().Waiting != 1 {
				t.Errorf("main context registration lost")
			}
			if mainResumed.Load() {
				t.Errorf("main waiter resumed while BlockOn held the baton")
			}
			mainPollable.SetReady(true)
			return nil
		})
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !mainResumed.Load() {
		t.Fatal("main waiter never resumed")
	}
}

func TestBlockOn_OutsideExecutor(t *testing.T) {
	f := newFixture()
	h, p := f.pollable()

	var ids []uint64
	for range 2 {
		p.SetReady(false)
		err := BlockOn(context.Background(), f.poll, func(ctx context.Context) error {
			id, _ := ContextID(ctx)
			ids = append(ids, id)
			time.AfterFunc(5*time.Millisecond, func() { p.SetReady(true) })
			return WaitPollable(ctx, h)
		})
		if err != nil {
			t.Fatalf("BlockOn: %v", err)
		}
	}
	if ids[0] == ids[1] {
		t.Fatalf("each BlockOn needs a fresh context id, got %v", ids)
	}

	err := BlockOn(context.Background(), f.poll, func(context.Context) error { panic("oops") })
	if !errors.Is(err, &errors.Error{Phase: errors.PhaseExecutor, Kind: errors.KindPanic}) {
		t.Fatalf("expected panic error, got %v", err)
	}
}

func TestWaitPollable_DroppedHandleIsNotInherited(t *testing.T) {
	h := host.New(wasi.New())
	defer h.Close()
	handle := h.Resources.Add(wasi.NewPollableResource(false))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var waitErr error
	e := New(h)
	err := e.Run(ctx, func(s *Spawner) {
		s.Spawn("waiter", func(ctx context.Context) error {
			waitErr = WaitPollable(ctx, handle)
			return nil
		})
		s.Spawn("dropper", func(ctx context.Context) error {
			if err := Yield(ctx); err != nil {
				return err
			}
			if err := h.Resources.Remove(handle); err != nil {
				return err
			}
			// the freed number goes to a pollable that never becomes ready
			h.Resources.Add(wasi.NewPollableResource(false))
			h.Resources.Add(wasi.NewPollableResource(false))
			return nil
		})
	})
	if ctx.Err() != nil {
		t.Fatal("waiter stayed parked on the recycled handle")
	}
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !errors.Is(waitErr, &errors.Error{Phase: errors.PhaseExecutor, Kind: errors.KindClosed}) {
		t.Fatalf("waiter got %v, want closed error", waitErr)
	}
	if s := e.Stats(); s.Waiting != 0 || s.Running != 0 {
		t.Fatalf("tasks left behind: %+v", s)
	}
}

func TestRun_StopsWatchingDropsAfterReturn(t *testing.T) {
	h := host.New(wasi.New())
	defer h.Close()

	e := New(h)
	if err := e.Run(context.Background(), func(s *Spawner) {
		s.Spawn("noop", func(context.Context) error { return nil })
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// a drop after Run must not reach the executor
	handle := h.Resources.Add(wasi.NewPollableResource(false))
	e.mu.Lock()
	err := h.Resources.Remove(handle)
	e.mu.Unlock()
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
}

type writeFunc func([]byte) (int, error)

func (f writeFunc) Write(p []byte) (int, error) { return f(p) }

func TestRun_LogsOutsideSchedulerLock(t *testing.T) {
	f := newFixture()

	var e *Executor
	sink := zapcore.AddSync(writeFunc(func(p []byte) (int, error) {
		// a sink that calls back into the executor, as the async stderr sink does
		_ = e.Stats()
		return len(p), nil
	}))
	logger := zap.New(zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewDevelopmentEncoderConfig()),
		sink,
		zapcore.DebugLevel,
	))
	e = New(f.poll, WithLogger(logger))

	done := make(chan error, 1)
	go func() {
		done <- e.Run(context.Background(), func(s *Spawner) {
			s.Spawn("parent", func(ctx context.Context) error {
				if err := Spawn(ctx, "child", func(context.Context) error { return nil }); err != nil {
					return err
				}
				return errors.Sentinel("parent failed")
			})
		})
	}()

	select {
	case err := <-done:
		if err == nil || !strings.Contains(err.Error(), "parent failed") {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("logging deadlocked against the scheduler lock")
	}
	if s := e.Stats(); s.Completed != 1 || s.Failed != 1 {
		t.Fatalf("unexpected stats %+v", s)
	}
}
