package journal

import (
	"time"

	"booth-kiosk/internal/payment"

	"github.com/google/uuid"
)

// Entry is one terminal payment outcome, kept for end-of-day reconciliation.
type Entry struct {
	ID         uuid.UUID
	OrderID    string
	RequestID  string
	Method     payment.Method
	Status     payment.Status
	Amount     int64
	RecordedAt time.Time
}
