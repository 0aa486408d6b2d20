package main

import (
	"fmt"
	"io"

	"booth-kiosk/internal/channel"
	"booth-kiosk/internal/notify"
	"booth-kiosk/internal/payment"
	"booth-kiosk/internal/session"
)

// terminal stands in for the kiosk screen: notifications, navigation and
// the payment view are written as lines. It is only used from the loop.
type terminal struct {
	out  io.Writer
	last session.View
	seen bool
}

func newTerminal(out io.Writer) *terminal {
	return &terminal{out: out}
}

func (t *terminal) Show(n notify.Notification) {
	fmt.Fprintf(t.out, "[%s] %s\n", n.Level, n.Message)
}

func (t *terminal) Dismiss(uint64) {}

func (t *terminal) ToProducts() {
	fmt.Fprintln(t.out, "-> back to products")
}

func (t *terminal) ToConfirmation(orderID string) {
	fmt.Fprintf(t.out, "-> confirmation for order %s\n", orderID)
}

func (t *terminal) render(v session.View) {
	prev, seen := t.last, t.seen
	t.last, t.seen = v, true

	if seen && v.State == prev.State && v.ChannelState == prev.ChannelState &&
		v.RequestID == prev.RequestID && v.Error == prev.Error {
		if v.IsActive && v.RemainingSeconds != prev.RemainingSeconds && countdownMark(v) {
			fmt.Fprintf(t.out, "  %s left\n", clock(v.RemainingSeconds))
		}
		return
	}

	fmt.Fprintf(t.out, "state: %s", v.State)
	if v.ChannelState != "" && v.ChannelState != channel.StateDisconnected {
		fmt.Fprintf(t.out, " (channel %s)", v.ChannelState)
	}
	fmt.Fprintln(t.out)

	if v.RequestID != "" && v.RequestID != prev.RequestID {
		if v.SelectedMethod == payment.MethodCodeScan {
			fmt.Fprintf(t.out, "scan this code: %s\n", v.RequestCode)
		}
		for i, line := range v.Instructions {
			fmt.Fprintf(t.out, "  %d. %s\n", i+1, line)
		}
		fmt.Fprintf(t.out, "  expires in %s\n", clock(v.RemainingSeconds))
	}
	if v.Error != "" && v.Error != prev.Error {
		fmt.Fprintf(t.out, "error: %s\n", v.Error)
	}
	if v.ChannelState == channel.StateFailed && prev.ChannelState != channel.StateFailed {
		fmt.Fprintln(t.out, "connection lost; press Ctrl+C to cancel the order")
	}
}

// countdownMark picks the seconds worth printing: every 30s, every 10s once urgent.
func countdownMark(v session.View) bool {
	if v.Urgent {
		return v.RemainingSeconds%10 == 0
	}
	return v.RemainingSeconds%30 == 0
}

func clock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
