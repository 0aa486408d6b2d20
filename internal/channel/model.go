package channel

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"booth-kiosk/internal/payment"
)

var (
	ErrMalformedFrame = errors.New("malformed push frame")
	ErrUnsupportedURL = errors.New("unsupported push channel base URL")
)

type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
	StateFailed       State = "FAILED"
)

// Event is a payment status update pushed by the server.
type Event struct {
	RequestID string
	Status    payment.Status
	Message   string
}

type frame struct {
	Status  *string `json:"status"`
	Message string  `json:"message"`
}

// Decode parses one inbound frame. Frames must be a single JSON object with a
// known status.
func Decode(data []byte) (Event, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if f.Status == nil {
		return Event{}, fmt.Errorf("%w: missing status", ErrMalformedFrame)
	}
	st, ok := payment.ParseStatus(*f.Status)
	if !ok {
		return Event{}, fmt.Errorf("%w: unknown status %q", ErrMalformedFrame, *f.Status)
	}
	return Event{Status: st, Message: f.Message}, nil
}

// Policy bounds automatic reconnection.
type Policy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:   3000 * time.Millisecond,
		MaxDelay:    10000 * time.Millisecond,
		MaxAttempts: 3,
	}
}

// Delay is the wait before the reconnect that follows `attempts` earlier ones.
func (p Policy) Delay(attempts int) time.Duration {
	d := p.BaseDelay * time.Duration(attempts+1)
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// SocketURL maps the API base URL onto the push endpoint for requestID.
func SocketURL(base *url.URL, requestID string) (string, error) {
	u := *base
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedURL, base.String())
	}

	escaped := strings.TrimRight(u.EscapedPath(), "/") + "/ws/payment-requests/" + url.PathEscape(requestID)
	path, err := url.PathUnescape(escaped)
	if err != nil {
		return "", err
	}
	u.Path = path
	u.RawPath = escaped
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
