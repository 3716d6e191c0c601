package io

import (
	"context"
	"reflect"

	"github.com/wippyai/wasync/errors"
	"github.com/wippyai/wasync/wasi"
)

type PollHost struct {
	resources *wasi.ResourceTable
}

func NewPollHost(resources *wasi.ResourceTable) *PollHost {
	return &PollHost{resources: resources}
}

func (h *PollHost) Namespace() string {
	return "wasi:io/poll@0.2.8"
}

// Poll blocks until at least one pollable is ready and returns the indices
// of every ready entry. Handles that are not live pollables count as ready so
// whoever waits on them can observe the failure.
func (h *PollHost) Poll(ctx context.Context, pollables []uint32) ([]uint32, error) {
	if len(pollables) == 0 {
		return nil, errors.InvalidInput(errors.PhasePoll, "poll list is empty")
	}

	borrowed := make([]uint32, 0, len(pollables))
	for _, handle := range pollables {
		if h.resources.Borrow(handle) {
			borrowed = append(borrowed, handle)
		}
	}
	defer func() {
		for _, handle := range borrowed {
			h.resources.ReturnBorrow(handle)
		}
	}()

	for {
		cases := make([]reflect.SelectCase, 0, len(pollables)+1)
		cases = append(cases, reflect.SelectCase{
			Dir:  reflect.SelectRecv,
			Chan: reflect.ValueOf(ctx.Done()),
		})

		// Signals are taken before readiness is checked so a change between
		// the check and the select still wakes us.
		var ready []uint32
		for i, handle := range pollables {
			p, ok := h.pollable(handle)
			if !ok {
				ready = append(ready, uint32(i))
				continue
			}
			sig := p.Signal()
			if p.Ready() {
				ready = append(ready, uint32(i))
				continue
			}
			cases = append(cases, reflect.SelectCase{
				Dir:  reflect.SelectRecv,
				Chan: reflect.ValueOf(sig),
			})
		}
		if len(ready) > 0 {
			return ready, nil
		}

		chosen, _, _ := reflect.Select(cases)
		if chosen == 0 {
			return nil, errors.Cancelled(errors.PhasePoll, "poll", ctx.Err())
		}
	}
}

// Ready reports readiness without blocking; invalid handles are ready.
func (h *PollHost) Ready(handle uint32) bool {
	p, ok := h.pollable(handle)
	if !ok {
		return true
	}
	return p.Ready()
}

func (h *PollHost) pollable(handle uint32) (wasi.Pollable, bool) {
	r, ok := h.resources.Get(handle)
	if !ok {
		return nil, false
	}
	p, ok := r.(wasi.Pollable)
	return p, ok
}

func (h *PollHost) MethodPollableReady(_ context.Context, self uint32) bool {
	return h.Ready(self)
}

func (h *PollHost) MethodPollableBlock(ctx context.Context, self uint32) error {
	p, ok := h.pollable(self)
	if !ok {
		return errors.InvalidHandle(errors.PhasePoll, "block", self)
	}
	if !h.resources.Borrow(self) {
		return errors.InvalidHandle(errors.PhasePoll, "block", self)
	}
	defer h.resources.ReturnBorrow(self)
	return p.Block(ctx)
}

func (h *PollHost) ResourceDropPollable(_ context.Context, self uint32) error {
	return wasi.DropError(errors.PhasePoll, "drop-pollable", self, h.resources.Remove(self))
}

func (h *PollHost) Register() map[string]any {
	return map[string]any{
		"poll":                    h.Poll,
		"[method]pollable.ready":  h.MethodPollableReady,
		"[method]pollable.block":  h.MethodPollableBlock,
		"[resource-drop]pollable": h.ResourceDropPollable,
	}
}
