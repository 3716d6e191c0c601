package clock

import (
	"context"
	"testing"
	"time"

	"github.com/wippyai/wasync/errors"
	"github.com/wippyai/wasync/executor"
	"github.com/wippyai/wasync/wasi"
	"github.com/wippyai/wasync/wasi/host"
)

func TestSleep_OrdersTasks(t *testing.T) {
	h := host.New(wasi.New())
	defer h.Close()

	var order []string
	start := Now(h)
	err := executor.New(h).Run(context.Background(), func(s *executor.Spawner) {
		s.Spawn("slow", func(ctx context.Context) error {
			if err := Sleep(ctx, h, 40*time.Millisecond); err != nil {
				return err
			}
			order = append(order, "slow")
			return nil
		})
		s.Spawn("fast", func(ctx context.Context) error {
			if err := Sleep(ctx, h, 10*time.Millisecond); err != nil {
				return err
			}
			order = append(order, "fast")
			return nil
		})
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(order) != 2 || order[0] != "fast" || order[1] != "slow" {
		t.Fatalf("order = %v", order)
	}
	if elapsed := Now(h) - start; elapsed < 40*time.Millisecond {
		t.Fatalf("returned after %v", elapsed)
	}
	if n := h.Resources.Len(); n != 0 {
		t.Fatalf("%d timers leaked", n)
	}
}

func TestSleepUntil(t *testing.T) {
	h := host.New(wasi.New())
	defer h.Close()

	err := executor.BlockOn(context.Background(), h, func(ctx context.Context) error {
		deadline := Now(h) + 15*time.Millisecond
		if err := SleepUntil(ctx, h, deadline); err != nil {
			return err
		}
		if Now(h) < deadline {
			t.Errorf("woke before the deadline")
		}
		return SleepUntil(ctx, h, 0)
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestSleep_Cancelled(t *testing.T) {
	h := host.New(wasi.New())
	defer h.Close()

	err := executor.New(h).Run(context.Background(), func(s *executor.Spawner) {
		s.Spawn("sleeper", func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
			defer cancel()
			err := Sleep(ctx, h, time.Hour)
			if !errors.Is(err, context.DeadlineExceeded) {
				t.Errorf("expected deadline exceeded, got %v", err)
			}
			return nil
		})
	})
	if err != nil {
		t.Fatal(err)
	}
	if n := h.Resources.Len(); n != 0 {
		t.Fatalf("%d timers leaked", n)
	}
}

func TestWall(t *testing.T) {
	h := host.New(wasi.New())
	defer h.Close()
	if d := time.Since(Wall(h)); d < 0 || d > time.Minute {
		t.Fatalf("wall clock off by %v", d)
	}
}
