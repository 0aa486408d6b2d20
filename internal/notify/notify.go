package notify

import (
	"time"

	"booth-kiosk/internal/loop"
)

const DefaultDuration = 3000 * time.Millisecond

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

type Notification struct {
	ID      uint64
	Level   Level
	Message string
}

// Presenter draws and hides notifications. It is called on the event loop.
type Presenter interface {
	Show(n Notification)
	Dismiss(id uint64)
}

// Notifier shows one notification at a time. A newer notification replaces
// the current one and restarts the auto-dismiss timer. Methods must be called
// on the loop.
type Notifier struct {
	loop      *loop.Loop
	presenter Presenter
	duration  time.Duration

	seq     uint64
	current *Notification
	dismiss loop.Slot
}

func New(l *loop.Loop, p Presenter, d time.Duration) *Notifier {
	if d <= 0 {
		d = DefaultDuration
	}
	return &Notifier{loop: l, presenter: p, duration: d}
}

func (n *Notifier) Info(msg string)    { n.show(LevelInfo, msg) }
func (n *Notifier) Success(msg string) { n.show(LevelSuccess, msg) }
func (n *Notifier) Error(msg string)   { n.show(LevelError, msg) }

// Current returns the notification on screen, if any.
func (n *Notifier) Current() (Notification, bool) {
	if n.current == nil {
		return Notification{}, false
	}
	return *n.current, true
}

// Close hides the current notification immediately.
func (n *Notifier) Close() {
	n.dismiss.Cancel()
	n.hide()
}

func (n *Notifier) show(level Level, msg string) {
	n.dismiss.Cancel()
	n.hide()

	n.seq++
	note := Notification{ID: n.seq, Level: level, Message: msg}
	n.current = &note
	if n.presenter != nil {
		n.presenter.Show(note)
	}

	n.dismiss.Schedule(n.loop, n.duration, n.hide)
}

func (n *Notifier) hide() {
	if n.current == nil {
		return
	}
	id := n.current.ID
	n.current = nil
	if n.presenter != nil {
		n.presenter.Dismiss(id)
	}
}
