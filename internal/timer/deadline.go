package timer

import (
	"math"
	"time"

	"booth-kiosk/internal/loop"
)

const (
	DefaultInterval = time.Second
	// UrgentThreshold is the remaining time under which the countdown is shown as urgent.
	UrgentThreshold = 60
)

// Deadline is a whole-second countdown driven by the event loop. All methods
// must be called on the loop.
type Deadline struct {
	loop     *loop.Loop
	interval time.Duration
	onExpire func()
	onTick   func(remaining int)

	remaining int
	active    bool
	ticker    loop.Slot
}

type Option func(*Deadline)

// WithInterval overrides the tick interval.
func WithInterval(d time.Duration) Option {
	return func(dl *Deadline) { dl.interval = d }
}

// OnTick registers a callback invoked after every decrement.
func OnTick(fn func(remaining int)) Option {
	return func(dl *Deadline) { dl.onTick = fn }
}

func NewDeadline(l *loop.Loop, onExpire func(), opts ...Option) *Deadline {
	d := &Deadline{
		loop:     l,
		interval: DefaultInterval,
		onExpire: onExpire,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start (re)starts the countdown. A non-positive duration expires immediately.
func (d *Deadline) Start(seconds int) {
	d.ticker.Cancel()
	d.remaining = seconds
	d.active = true

	if seconds <= 0 {
		d.expire()
		return
	}
	d.schedule()
}

// StartUntil starts the countdown from the time left until expiresAt.
func (d *Deadline) StartUntil(expiresAt, now time.Time) {
	d.Start(SecondsUntil(expiresAt, now))
}

// Tick decrements the countdown by one. It is a no-op once stopped.
func (d *Deadline) Tick() {
	if !d.active {
		return
	}

	d.remaining--
	if d.onTick != nil {
		d.onTick(d.remaining)
	}

	if d.remaining <= 0 {
		d.expire()
		return
	}
	d.schedule()
}

func (d *Deadline) Stop() {
	d.ticker.Cancel()
	d.active = false
}

func (d *Deadline) Remaining() int {
	return d.remaining
}

func (d *Deadline) Active() bool {
	return d.active
}

// Urgent reports whether the countdown is running under the urgent threshold.
func (d *Deadline) Urgent() bool {
	return d.active && d.remaining < UrgentThreshold
}

func (d *Deadline) schedule() {
	d.ticker.Schedule(d.loop, d.interval, d.Tick)
}

func (d *Deadline) expire() {
	d.remaining = 0
	d.Stop()
	if d.onExpire != nil {
		d.onExpire()
	}
}

// SecondsUntil returns the whole seconds left until expiresAt, never negative.
func SecondsUntil(expiresAt, now time.Time) int {
	left := expiresAt.Sub(now).Seconds()
	if left <= 0 {
		return 0
	}
	return int(math.Floor(left))
}
