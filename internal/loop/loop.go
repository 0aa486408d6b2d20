// Package loop runs every state transition of a payment session on a single
// goroutine. Other goroutines (network calls, socket readers, timers) only
// ever hand work to the loop through Post.
package loop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var ErrStopped = errors.New("event loop stopped")

type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	stopped bool
	done    chan struct{}
}

func New() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Post enqueues fn. It reports false once the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Call runs fn on the loop and waits for it. It must not be used from inside
// the loop itself.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrStopped
	}

	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes posted work in order until ctx is cancelled or Stop is called.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)

	for {
		for {
			l.mu.Lock()
			if l.stopped {
				l.mu.Unlock()
				return nil
			}
			if len(l.queue) == 0 {
				l.mu.Unlock()
				break
			}
			fn := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			l.mu.Unlock()

			fn()
		}

		select {
		case <-ctx.Done():
			l.Stop()
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Stop discards pending work and makes further Posts fail.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.queue = nil
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Handle is a delayed task scheduled with AfterFunc.
type Handle struct {
	timer     *time.Timer
	cancelled atomic.Bool
}

// Cancel prevents the task from running if it has not run yet.
func (h *Handle) Cancel() {
	if h == nil {
		return
	}
	h.cancelled.Store(true)
	h.timer.Stop()
}

// AfterFunc runs fn on the loop after d. A cancelled handle never runs, even
// if its timer already fired and the task is waiting in the queue.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *Handle {
	h := &Handle{}
	h.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			if h.cancelled.Load() {
				return
			}
			fn()
		})
	})
	return h
}

// Slot holds at most one pending delayed task. Scheduling replaces the
// previous task instead of stacking a second one.
type Slot struct {
	h *Handle
}

func (s *Slot) Schedule(l *Loop, d time.Duration, fn func()) {
	s.Cancel()
	var h *Handle
	h = l.AfterFunc(d, func() {
		if s.h == h {
			s.h = nil
		}
		fn()
	})
	s.h = h
}

func (s *Slot) Cancel() {
	s.h.Cancel()
	s.h = nil
}

// Pending reports whether a task is scheduled and has not run.
func (s *Slot) Pending() bool {
	return s.h != nil
}
