// Package session coordinates one payment attempt for one order. It creates
// payment requests, follows the push channel and the deadline, and turns the
// outcome into notifications, navigation and order cancellation.
package session

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"booth-kiosk/internal/api"
	"booth-kiosk/internal/channel"
	"booth-kiosk/internal/journal"
	"booth-kiosk/internal/logger"
	"booth-kiosk/internal/loop"
	"booth-kiosk/internal/metrics"
	"booth-kiosk/internal/order"
	"booth-kiosk/internal/payment"
	"booth-kiosk/internal/timer"

	"go.uber.org/zap"
)

// Coordinator owns the payment request, the push channel and the deadline for
// one order. Exported methods are safe from any goroutine; everything else
// runs on the loop.
type Coordinator struct {
	deps     Deps
	order    *order.Order
	deadline *timer.Deadline
	channel  Channel
	log      *zap.Logger
	started  *metrics.Timer
	done     chan struct{}
	writes   sync.WaitGroup
	// chosen is the last method asked for through SelectMethod, readable off the loop.
	chosen atomic.Value

	state      State
	method     payment.Method
	pending    payment.Method // method whose creation call is in flight
	request    *payment.Request
	identifier string
	errMsg     string
	errCode    string
	chanState  channel.State

	// gen is bumped whenever in-flight work must be ignored on arrival.
	gen       uint64
	alive     bool
	finishing bool
}

// PushChannel builds sessions on a websocket channel.Manager.
func PushChannel(baseURL string, opts ...channel.Option) ChannelFactory {
	return func(l *loop.Loop, onEvent func(channel.Event), onState func(channel.State)) (Channel, error) {
		all := append(append([]channel.Option{}, opts...), channel.OnEvent(onEvent), channel.OnState(onState))
		m, err := channel.New(l, baseURL, all...)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}

func New(deps Deps, ord *order.Order) (*Coordinator, error) {
	if ord == nil || ord.ID == "" {
		return nil, ErrMissingOrder
	}
	if deps.Loop == nil || deps.Backend == nil || deps.Navigator == nil ||
		deps.Notifier == nil || deps.Cart == nil || deps.Channel == nil {
		return nil, ErrMissingDeps
	}
	if deps.CallTimeout <= 0 {
		deps.CallTimeout = defaultCallTimeout
	}
	if deps.TickInterval <= 0 {
		deps.TickInterval = timer.DefaultInterval
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewRegistry()
	}

	c := &Coordinator{
		deps:      deps,
		order:     ord,
		log:       logger.L().With(zap.String("order_id", ord.ID)),
		started:   metrics.StartTimer(),
		done:      make(chan struct{}),
		state:     StateNoRequest,
		chanState: channel.StateDisconnected,
		alive:     true,
	}
	c.deadline = timer.NewDeadline(deps.Loop, c.onDeadline,
		timer.WithInterval(deps.TickInterval),
		timer.OnTick(func(int) { c.changed() }),
	)

	ch, err := deps.Channel(deps.Loop, c.onEvent, c.onChannelState)
	if err != nil {
		return nil, err
	}
	c.channel = ch
	return c, nil
}

// ----------------- Commands -----------------

// SelectMethod switches the payment method. Code-scan creates a request at
// once; the student id method waits for SubmitIdentifier.
func (c *Coordinator) SelectMethod(m payment.Method) error {
	if !m.Valid() {
		return ErrUnknownMethod
	}
	c.chosen.Store(m)
	return c.post(func() { c.selectMethod(m) })
}

// SetIdentifier records what the customer has typed so far.
func (c *Coordinator) SetIdentifier(code string) error {
	return c.post(func() {
		if !c.alive {
			return
		}
		c.identifier = code
		c.changed()
	})
}

// SubmitIdentifier validates code locally and, if it is well formed, asks the
// backend for a student id payment. Invalid codes never leave the kiosk.
// It returns ErrWrongMethod unless the student id method was selected.
func (c *Coordinator) SubmitIdentifier(code string) error {
	if m, _ := c.chosen.Load().(payment.Method); m != payment.MethodIdentifier {
		return ErrWrongMethod
	}
	if _, err := payment.ParseStudentID(code); err != nil {
		return err
	}
	return c.post(func() { c.submitIdentifier(code) })
}

// Cancel cancels the order from any state and clears the kiosk.
func (c *Coordinator) Cancel() error {
	return c.post(c.cancel)
}

// Retry starts over after a failed creation call or a FAILED payment.
func (c *Coordinator) Retry() error {
	return c.post(c.retry)
}

// Reconnect asks the push channel for one more attempt after it gave up.
func (c *Coordinator) Reconnect() error {
	return c.post(func() {
		if c.alive && c.state == StateActive {
			c.channel.Reconnect()
		}
	})
}

// Exit leaves the payment screen. In-flight calls are abandoned and their
// results ignored.
func (c *Coordinator) Exit() error {
	return c.post(c.exit)
}

func (c *Coordinator) Snapshot(ctx context.Context) (View, error) {
	var v View
	err := c.deps.Loop.Call(ctx, func() { v = c.view() })
	return v, err
}

// Done is closed once the session has let go of the screen.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Flush waits for outcome writes to the journal still in flight.
func (c *Coordinator) Flush(ctx context.Context) error {
	flushed := make(chan struct{})
	go func() {
		c.writes.Wait()
		close(flushed)
	}()

	select {
	case <-flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) post(fn func()) error {
	if !c.deps.Loop.Post(fn) {
		return ErrClosed
	}
	return nil
}

// ----------------- Transitions -----------------

func (c *Coordinator) selectMethod(m payment.Method) {
	if !c.alive || c.finishing {
		return
	}
	switch c.state {
	case StateSubmittingCancel, StateCompleted, StateCancelled, StateExpired:
		return
	}
	if m == c.method && (c.pending == m || c.state == StateActive) {
		return
	}

	c.discard()
	c.method = m
	c.identifier = ""
	c.clearError()

	if m == payment.MethodCodeScan {
		c.create("")
	} else {
		c.setState(StateNoRequest)
	}
	c.changed()
}

func (c *Coordinator) submitIdentifier(code string) {
	if !c.alive || c.finishing {
		return
	}
	if c.method != payment.MethodIdentifier {
		c.log.Warn("student id submitted without selecting the method")
		return
	}
	if c.pending == payment.MethodIdentifier {
		return
	}

	c.discard()
	c.identifier = code
	c.clearError()
	c.create(code)
	c.changed()
}

func (c *Coordinator) retry() {
	if !c.alive || c.finishing {
		return
	}
	if c.state != StateCreateFailed && c.state != StateFailed {
		return
	}

	c.discard()
	c.clearError()
	if c.method == payment.MethodCodeScan {
		c.create("")
	} else {
		c.identifier = ""
		c.setState(StateNoRequest)
	}
	c.changed()
}

func (c *Coordinator) cancel() {
	if !c.alive || c.finishing {
		return
	}
	c.log.Info("customer cancelled", zap.String("state", string(c.state)))
	c.finish(StateCancelled)
}

func (c *Coordinator) exit() {
	if !c.alive {
		return
	}
	c.log.Info("leaving payment screen", zap.String("state", string(c.state)))
	c.close()
	c.changed()
}

// discard drops the current request and anything still in flight for it.
func (c *Coordinator) discard() {
	c.gen++
	c.pending = ""
	c.request = nil
	c.deadline.Stop()
	c.channel.Disconnect()
}

func (c *Coordinator) create(studentID string) {
	c.gen++
	gen, method, orderID := c.gen, c.method, c.order.ID
	c.pending = method
	c.setState(StateAwaitingResult)
	c.deps.Metrics.Counter(metrics.CreateRequests).Inc()

	go func() {
		ctx, cancel := c.callContext()
		defer cancel()

		var (
			req *payment.Request
			err error
		)
		if method == payment.MethodIdentifier {
			req, err = c.deps.Backend.CreateStudentPayment(ctx, orderID, studentID)
		} else {
			req, err = c.deps.Backend.CreateQRPayment(ctx, orderID)
		}
		c.deps.Loop.Post(func() { c.created(gen, req, err) })
	}()
}

func (c *Coordinator) created(gen uint64, req *payment.Request, err error) {
	if !c.alive || gen != c.gen {
		c.log.Debug("ignoring stale payment request result")
		return
	}
	c.pending = ""
	if err == nil && req == nil {
		err = api.ErrMissingRequestID
	}
	if err != nil {
		c.createFailed(err)
		return
	}

	if req.ExpiresAt.IsZero() {
		req.ExpiresAt = c.deps.Now().Add(defaultTTL)
	}
	c.request = req
	c.setState(StateActive)
	c.log.Info("payment request created",
		zap.String("payment_request_id", req.ID),
		zap.String("method", string(req.Method)),
		zap.Time("expires_at", req.ExpiresAt),
	)

	c.channel.Connect(req.ID)
	c.deadline.StartUntil(req.ExpiresAt, c.deps.Now())
	c.changed()
}

func (c *Coordinator) createFailed(err error) {
	code := api.CodeOf(err)
	c.errCode = code
	c.errMsg = payment.MessageFor(code)
	c.deps.Metrics.Counter(metrics.CreateFailures).Inc()
	c.log.Warn("payment request failed", zap.String("code", code), zap.Error(err))
	c.setState(StateCreateFailed)

	if payment.OrderLevel(code) {
		c.deps.Notifier.Error(c.errMsg)
		c.close()
		c.deps.Navigator.ToProducts()
	}
	c.changed()
}

func (c *Coordinator) onEvent(ev channel.Event) {
	if !c.alive || c.finishing || c.state != StateActive {
		return
	}
	if c.request == nil || ev.RequestID != c.request.ID {
		return
	}

	switch ev.Status {
	case payment.StatusCompleted:
		c.complete(ev.Message)
	case payment.StatusFailed:
		c.fail(ev.Message)
	case payment.StatusExpired:
		c.expire(ev.Message)
	case payment.StatusCancelled:
		c.log.Info("order cancelled by the server")
		c.finish(StateCancelled)
	}
}

func (c *Coordinator) complete(msg string) {
	c.request.Status = payment.StatusCompleted
	c.setState(StateCompleted)
	c.outcome(payment.StatusCompleted)
	c.deps.Notifier.Success(orDefault(msg, MsgCompleted))

	// The confirmation screen owns the cart from here on.
	c.close()
	c.deps.Navigator.ToConfirmation(c.order.ID)
	c.changed()
}

func (c *Coordinator) fail(msg string) {
	c.request.Status = payment.StatusFailed
	c.setState(StateFailed)
	c.outcome(payment.StatusFailed)
	c.deadline.Stop()
	c.channel.Disconnect()
	c.deps.Notifier.Error(orDefault(msg, MsgFailed))
	c.changed()
}

func (c *Coordinator) expire(msg string) {
	c.request.Status = payment.StatusExpired
	c.setState(StateExpired)
	c.outcome(payment.StatusExpired)
	c.deps.Notifier.Error(orDefault(msg, MsgExpired))
	c.finish(StateExpired)
}

func (c *Coordinator) onDeadline() {
	if !c.alive || c.finishing || c.state != StateActive {
		return
	}
	c.log.Info("payment deadline reached")
	c.finish(StateCancelled)
}

func (c *Coordinator) onChannelState(s channel.State) {
	c.chanState = s
	if s == channel.StateFailed && c.alive && c.state == StateActive {
		c.deps.Notifier.Error(MsgChannelFailed)
	}
	c.changed()
}

// finish cancels the order, then clears the cart and returns to the product
// list. It runs at most once per session; a deadline tick, an EXPIRED frame
// and a cancel tap arriving together cancel once.
func (c *Coordinator) finish(final State) {
	c.finishing = true
	c.gen++
	c.pending = ""
	c.deadline.Stop()
	c.channel.Disconnect()
	if final != StateExpired {
		c.setState(StateSubmittingCancel)
	}
	c.deps.Metrics.Counter(metrics.Cancellations).Inc()
	c.changed()

	gen, orderID := c.gen, c.order.ID
	go func() {
		ctx, cancel := c.callContext()
		defer cancel()

		err := c.deps.Backend.CancelOrder(ctx, orderID)
		c.deps.Loop.Post(func() { c.cancelled(gen, final, err) })
	}()
}

func (c *Coordinator) cancelled(gen uint64, final State, err error) {
	if !c.alive || gen != c.gen {
		return
	}

	if err != nil {
		c.log.Warn("order cancellation failed", zap.Error(err))
		c.deps.Notifier.Error(MsgCancelFailed)
	} else if final == StateCancelled {
		c.deps.Notifier.Info(MsgCancelled)
	}

	if final == StateCancelled {
		if c.request != nil {
			c.request.Status = payment.StatusCancelled
		}
		c.setState(StateCancelled)
		c.outcome(payment.StatusCancelled)
	}

	c.deps.Cart.Clear()
	c.request = nil
	c.method = payment.MethodNone
	c.chosen.Store(payment.MethodNone)
	c.identifier = ""
	c.close()
	c.deps.Navigator.ToProducts()
	c.changed()
}

// close tears the session down. Nothing that was in flight will be applied.
func (c *Coordinator) close() {
	c.alive = false
	c.gen++
	c.pending = ""
	c.deadline.Stop()
	c.channel.Disconnect()

	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

// ----------------- Helpers -----------------

func (c *Coordinator) outcome(status payment.Status) {
	c.deps.Metrics.Counter(metrics.OutcomePrefix + strings.ToLower(string(status))).Inc()

	entry := journal.Entry{
		OrderID:    c.order.ID,
		Method:     c.method,
		Status:     status,
		Amount:     c.order.Total(),
		RecordedAt: c.deps.Now(),
	}
	if c.request != nil {
		entry.RequestID = c.request.ID
	}
	c.log.Info("payment outcome",
		zap.String("status", string(status)),
		zap.String("payment_request_id", entry.RequestID),
		zap.Duration("elapsed", c.started.Duration()),
	)

	if c.deps.Journal == nil {
		return
	}
	c.writes.Add(1)
	go func() {
		defer c.writes.Done()
		ctx, cancel := c.callContext()
		defer cancel()
		if err := c.deps.Journal.Record(ctx, entry); err != nil {
			logger.FromCtx(ctx).Warn("failed to journal payment outcome", zap.Error(err))
		}
	}()
}

func (c *Coordinator) callContext() (context.Context, context.CancelFunc) {
	ctx := logger.WithOrderID(context.Background(), c.order.ID)
	return context.WithTimeout(ctx, c.deps.CallTimeout)
}

func (c *Coordinator) setState(s State) {
	if c.state == s {
		return
	}
	c.log.Debug("session state changed",
		zap.String("from", string(c.state)),
		zap.String("to", string(s)),
	)
	c.state = s
}

func (c *Coordinator) clearError() {
	c.errMsg = ""
	c.errCode = ""
}

func (c *Coordinator) changed() {
	if c.deps.OnChange != nil {
		c.deps.OnChange(c.view())
	}
}

func (c *Coordinator) view() View {
	v := View{
		OrderID:        c.order.ID,
		Total:          c.order.Total(),
		IsActive:       c.state == StateActive,
		Urgent:         c.deadline.Urgent(),
		SelectedMethod: c.method,
		Identifier:     c.identifier,
		State:          c.state,
		Error:          c.errMsg,
		ErrorCode:      c.errCode,
		ChannelState:   c.chanState,
	}
	if c.request != nil {
		v.RequestID = c.request.ID
		v.RequestCode = c.request.Token
		v.Status = c.request.Status
		v.RemainingSeconds = c.deadline.Remaining()
	}
	if c.method.Valid() {
		v.Instructions = payment.InstructionsFor(c.method, c.order.Total())
	}
	return v
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
