// Package channel keeps the push connection for the active payment request.
// A Manager owns at most one websocket at a time, keyed by request id, and
// reconnects on unclean closes with a bounded, growing delay.
package channel

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"booth-kiosk/internal/auth"
	"booth-kiosk/internal/logger"
	"booth-kiosk/internal/loop"
	"booth-kiosk/internal/metrics"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultDialTimeout = 10 * time.Second
	closeGrace         = time.Second
)

// Dialer opens websocket connections. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Manager must only be driven from its event loop. Callbacks also run there.
type Manager struct {
	loop        *loop.Loop
	base        *url.URL
	dialer      Dialer
	dialTimeout time.Duration
	policy      Policy
	tokens      auth.TokenSource
	metrics     *metrics.Registry
	onEvent     func(Event)
	onState     func(State)

	requestID string
	state     State
	attempts  int
	gen       uint64
	conn      *websocket.Conn
	retry     loop.Slot
}

type Option func(*Manager)

func WithPolicy(p Policy) Option {
	return func(m *Manager) { m.policy = p }
}

func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

func WithDialTimeout(d time.Duration) Option {
	return func(m *Manager) { m.dialTimeout = d }
}

func WithTokenSource(src auth.TokenSource) Option {
	return func(m *Manager) { m.tokens = src }
}

func WithMetrics(r *metrics.Registry) Option {
	return func(m *Manager) { m.metrics = r }
}

// OnEvent registers the receiver of decoded status frames.
func OnEvent(fn func(Event)) Option {
	return func(m *Manager) { m.onEvent = fn }
}

// OnState registers a callback for connection state changes.
func OnState(fn func(State)) Option {
	return func(m *Manager) { m.onState = fn }
}

func New(l *loop.Loop, baseURL string, opts ...Option) (*Manager, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	if _, err := SocketURL(base, "probe"); err != nil {
		return nil, err
	}

	m := &Manager{
		loop:        l,
		base:        base,
		dialer:      websocket.DefaultDialer,
		dialTimeout: defaultDialTimeout,
		policy:      DefaultPolicy(),
		metrics:     metrics.NewRegistry(),
		state:       StateDisconnected,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Manager) State() State {
	return m.state
}

func (m *Manager) RequestID() string {
	return m.requestID
}

// Attempts is the number of automatic reconnects since the last successful open.
func (m *Manager) Attempts() int {
	return m.attempts
}

func (m *Manager) ReconnectPending() bool {
	return m.retry.Pending()
}

// Connect points the manager at requestID. An empty id disconnects. Calling
// it again for the request already connecting or connected does nothing.
func (m *Manager) Connect(requestID string) {
	if requestID == "" {
		m.Disconnect()
		return
	}
	if requestID == m.requestID && (m.state == StateConnecting || m.state == StateConnected) {
		return
	}
	if requestID != m.requestID {
		m.drop()
		m.attempts = 0
		m.requestID = requestID
	}
	m.open()
}

// Disconnect closes the connection cleanly. No reconnection follows.
func (m *Manager) Disconnect() {
	m.drop()
	m.requestID = ""
	m.attempts = 0
	m.setState(StateDisconnected)
}

// Reconnect is the manual retry offered once automatic attempts are exhausted.
// It resets the attempt counter.
func (m *Manager) Reconnect() {
	if m.requestID == "" || m.state == StateConnecting || m.state == StateConnected {
		return
	}
	m.attempts = 0
	m.open()
}

func (m *Manager) log() *zap.Logger {
	return logger.L().With(zap.String("payment_request_id", m.requestID))
}

// drop invalidates everything in flight for the current connection.
func (m *Manager) drop() {
	m.retry.Cancel()
	m.gen++
	if m.conn != nil {
		conn := m.conn
		m.conn = nil
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGrace),
		)
		conn.Close()
	}
}

func (m *Manager) open() {
	m.drop()

	target, err := SocketURL(m.base, m.requestID)
	if err != nil {
		m.log().Error("invalid push channel URL", zap.Error(err))
		m.setState(StateFailed)
		return
	}

	header := http.Header{}
	if m.tokens != nil {
		if tok, err := m.tokens.Token(); err == nil {
			header.Set("Authorization", "Bearer "+tok)
		}
	}

	gen := m.gen
	m.setState(StateConnecting)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.dialTimeout)
		conn, _, err := m.dialer.DialContext(ctx, target, header)
		cancel()

		if !m.loop.Post(func() { m.opened(gen, conn, err) }) && conn != nil {
			conn.Close()
		}
	}()
}

func (m *Manager) opened(gen uint64, conn *websocket.Conn, err error) {
	if gen != m.gen {
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		m.log().Warn("push channel dial failed", zap.Error(err), zap.Int("attempts", m.attempts))
		m.fault()
		return
	}

	m.conn = conn
	m.attempts = 0
	m.metrics.Counter(metrics.ChannelConnects).Inc()
	m.log().Info("push channel connected")
	m.setState(StateConnected)

	go m.read(gen, conn)
}

func (m *Manager) read(gen uint64, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.loop.Post(func() { m.closed(gen, err) })
			return
		}
		if !m.loop.Post(func() { m.frame(gen, data) }) {
			conn.Close()
			return
		}
	}
}

func (m *Manager) frame(gen uint64, data []byte) {
	if gen != m.gen {
		return
	}

	ev, err := Decode(data)
	if err != nil {
		m.log().Warn("dropping connection after bad frame", zap.Error(err))
		m.fault()
		return
	}

	ev.RequestID = m.requestID
	if m.onEvent != nil {
		m.onEvent(ev)
	}
}

func (m *Manager) closed(gen uint64, err error) {
	if gen != m.gen {
		return
	}
	m.log().Warn("push channel closed", zap.Error(err))
	m.fault()
}

// fault handles any unclean close: dial failure, read error or bad frame.
func (m *Manager) fault() {
	m.drop()
	m.metrics.Counter(metrics.ChannelFaults).Inc()

	if m.attempts >= m.policy.MaxAttempts {
		m.metrics.Counter(metrics.ChannelFailed).Inc()
		m.log().Error("push channel gave up", zap.Int("attempts", m.attempts))
		m.setState(StateFailed)
		return
	}

	delay := m.policy.Delay(m.attempts)
	m.attempts++
	m.metrics.Counter(metrics.ChannelReconnects).Inc()
	m.log().Info("push channel reconnect scheduled",
		zap.Duration("delay", delay),
		zap.Int("attempt", m.attempts),
	)

	m.setState(StateDisconnected)
	m.retry.Schedule(m.loop, delay, m.open)
}

func (m *Manager) setState(s State) {
	if m.state == s {
		return
	}
	m.state = s
	if m.onState != nil {
		m.onState(s)
	}
}
