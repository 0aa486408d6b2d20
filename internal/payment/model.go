package payment

import "time"

// Method is how the customer pays at the booth.
type Method string

const (
	MethodNone       Method = ""
	MethodCodeScan   Method = "code-scan"
	MethodIdentifier Method = "identifier"
)

func (m Method) Valid() bool {
	return m == MethodCodeScan || m == MethodIdentifier
}

// Status is the payment request status reported by the server.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusExpired   Status = "EXPIRED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether no further transition is possible for the request.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// ParseStatus accepts the statuses a push frame may carry.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusPending, StatusCompleted, StatusFailed, StatusExpired, StatusCancelled:
		return st, true
	}
	return "", false
}

// Request is a payment request created for an order.
type Request struct {
	ID        string
	OrderID   string
	Method    Method
	Token     string // QR payload or the submitted identifier
	Status    Status
	ExpiresAt time.Time
}
