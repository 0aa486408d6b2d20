package session

import (
	"context"
	"time"

	"booth-kiosk/internal/cart"
	"booth-kiosk/internal/channel"
	"booth-kiosk/internal/journal"
	"booth-kiosk/internal/loop"
	"booth-kiosk/internal/metrics"
	"booth-kiosk/internal/payment"
)

// State is where the payment session currently is.
type State string

const (
	StateNoRequest        State = "NO_REQUEST"
	StateAwaitingResult   State = "AWAITING_METHOD_RESULT"
	StateActive           State = "ACTIVE"
	StateCreateFailed     State = "CREATE_FAILED"
	StateSubmittingCancel State = "SUBMITTING_CANCEL"
	StateCompleted        State = "COMPLETED"
	StateCancelled        State = "CANCELLED"
	StateExpired          State = "EXPIRED"
	StateFailed           State = "FAILED"
)

func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateCancelled, StateExpired, StateFailed:
		return true
	}
	return false
}

// Messages shown through the notifier.
const (
	MsgCompleted     = "Payment received. Thank you!"
	MsgFailed        = "Payment failed. Please try again."
	MsgExpired       = "Payment time ran out. The order has been cancelled."
	MsgCancelled     = "Order cancelled."
	MsgCancelFailed  = "We could not reach the server, but the order was cleared here."
	MsgChannelFailed = "Lost connection to the payment server. Tap to reconnect."
)

const (
	defaultCallTimeout = 15 * time.Second
	// defaultTTL applies when the server omits an expiry.
	defaultTTL = 3 * time.Minute
)

// Backend is the part of the order/payment API the session calls.
type Backend interface {
	CreateQRPayment(ctx context.Context, orderID string) (*payment.Request, error)
	CreateStudentPayment(ctx context.Context, orderID, studentID string) (*payment.Request, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// Navigator moves the kiosk between screens.
type Navigator interface {
	ToProducts()
	ToConfirmation(orderID string)
}

type Notifier interface {
	Info(msg string)
	Success(msg string)
	Error(msg string)
}

// Channel is the push connection the session steers. Implementations are
// driven from the loop only.
type Channel interface {
	Connect(requestID string)
	Disconnect()
	Reconnect()
	State() channel.State
}

// ChannelFactory builds the session's channel. The callbacks run on l.
type ChannelFactory func(l *loop.Loop, onEvent func(channel.Event), onState func(channel.State)) (Channel, error)

// Recorder receives terminal outcomes. journal.Repository satisfies it.
type Recorder interface {
	Record(ctx context.Context, e journal.Entry) error
}

// Deps is everything one session needs. Loop, Backend, Navigator, Notifier,
// Cart and Channel are required.
type Deps struct {
	Loop      *loop.Loop
	Backend   Backend
	Navigator Navigator
	Notifier  Notifier
	Cart      cart.Store
	Channel   ChannelFactory

	Journal      Recorder
	Metrics      *metrics.Registry
	CallTimeout  time.Duration
	TickInterval time.Duration
	Now          func() time.Time
	// OnChange is called on the loop after every visible change.
	OnChange func(View)
}

// View is the read-only picture of the session offered to the UI.
type View struct {
	OrderID          string
	Total            int64
	RequestID        string
	RequestCode      string
	RemainingSeconds int
	IsActive         bool
	Urgent           bool
	Status           payment.Status
	SelectedMethod   payment.Method
	Identifier       string
	State            State
	Error            string
	ErrorCode        string
	ChannelState     channel.State
	Instructions     []string
}
