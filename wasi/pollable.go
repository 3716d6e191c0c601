package wasi

import (
	"context"
	"sync"
	"time"
)

// Pollable is the interface for async-ready resources that can be polled.
type Pollable interface {
	Resource
	// Ready returns true if the resource is ready for I/O.
	Ready() bool
	// Block waits until the resource becomes ready or ctx is canceled.
	Block(ctx context.Context) error
	// Signal returns a channel that is closed when readiness may have changed.
	// Callers must re-check Ready after the channel fires.
	Signal() <-chan struct{}
}

// Notifier broadcasts readiness changes by closing a channel.
// Every Notify wakes all current waiters and arms a fresh channel.
type Notifier struct {
	mu sync.Mutex
	ch chan struct{}
}

// NewNotifier creates an armed notifier.
func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan struct{})}
}

// Wait returns the channel the next Notify will close.
func (n *Notifier) Wait() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.ch == nil {
		n.ch = make(chan struct{})
	}
	return n.ch
}

// Notify wakes every waiter.
func (n *Notifier) Notify() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.ch != nil {
		close(n.ch)
	}
	n.ch = make(chan struct{})
}

// Wait blocks until r is ready or ctx ends.
func Wait(ctx context.Context, r Readiness) error {
	return blockOn(ctx, r.Ready, r.Signal)
}

// blockOn waits on readiness using signal channels.
func blockOn(ctx context.Context, ready func() bool, signal func() <-chan struct{}) error {
	for {
		sig := signal()
		if ready() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sig:
		}
	}
}

// PollableResource is a basic pollable that can be manually set ready.
type PollableResource struct {
	notify *Notifier
	mu     sync.Mutex
	ready  bool
}

// NewPollableResource creates a manual pollable in the given state.
func NewPollableResource(ready bool) *PollableResource {
	return &PollableResource{notify: NewNotifier(), ready: ready}
}

func (p *PollableResource) Type() ResourceType { return ResourcePollable }
func (p *PollableResource) Drop()              {}

func (p *PollableResource) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

// SetReady changes readiness and wakes waiters.
func (p *PollableResource) SetReady(r bool) {
	p.mu.Lock()
	p.ready = r
	p.mu.Unlock()
	p.notifier().Notify()
}

func (p *PollableResource) Signal() <-chan struct{} { return p.notifier().Wait() }

func (p *PollableResource) Block(ctx context.Context) error {
	return blockOn(ctx, p.Ready, p.Signal)
}

func (p *PollableResource) notifier() *Notifier {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.notify == nil {
		p.notify = NewNotifier()
	}
	return p.notify
}

// TimerPollable implements a time-based pollable that becomes ready at a deadline
type TimerPollable struct {
	deadline time.Time
	fired    chan struct{}
	timer    *time.Timer
	once     sync.Once
}

// NewTimerPollable creates a pollable that becomes ready at the specified deadline
func NewTimerPollable(deadline time.Time) *TimerPollable {
	p := &TimerPollable{deadline: deadline, fired: make(chan struct{})}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		p.fire()
		return p
	}
	p.timer = time.AfterFunc(remaining, p.fire)
	return p
}

func (p *TimerPollable) fire() { p.once.Do(func() { close(p.fired) }) }

func (p *TimerPollable) Type() ResourceType { return ResourcePollable }

func (p *TimerPollable) Drop() {
	if p.timer != nil {
		p.timer.Stop()
	}
}

// Deadline returns when the timer fires.
func (p *TimerPollable) Deadline() time.Time { return p.deadline }

func (p *TimerPollable) Ready() bool {
	select {
	case <-p.fired:
		return true
	default:
		return false
	}
}

func (p *TimerPollable) Signal() <-chan struct{} { return p.fired }

func (p *TimerPollable) Block(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.fired:
		return nil
	}
}

// Readiness is implemented by resources whose state a pollable can observe.
type Readiness interface {
	Ready() bool
	Signal() <-chan struct{}
}

// StreamPollable is the pollable handed out by subscribe. It is owned by the
// stream or socket it watches and delegates readiness to it.
type StreamPollable struct {
	source Readiness
}

// NewStreamPollable creates a pollable that watches source.
func NewStreamPollable(source Readiness) *StreamPollable {
	return &StreamPollable{source: source}
}

func (p *StreamPollable) Type() ResourceType      { return ResourcePollable }
func (p *StreamPollable) Drop()                   {}
func (p *StreamPollable) Ready() bool             { return p.source.Ready() }
func (p *StreamPollable) Signal() <-chan struct{} { return p.source.Signal() }
func (p *StreamPollable) Block(ctx context.Context) error {
	return blockOn(ctx, p.source.Ready, p.source.Signal)
}

// closedSignal is returned by resources that are permanently ready.
var closedSignal = func() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// AlwaysReady is a Readiness that never blocks.
type AlwaysReady struct{}

func (AlwaysReady) Ready() bool             { return true }
func (AlwaysReady) Signal() <-chan struct{} { return closedSignal }
