package payment

import "errors"

// Server error codes returned by the order/payment backend.
const (
	CodeOrderNotFound   = "ORDER_NOT_FOUND"
	CodeOrderNotPending = "ORDER_NOT_PENDING"
	CodeUserNotFound    = "USER_NOT_FOUND"
	CodeBoothNotFound   = "BOOTH_NOT_FOUND"
)

const GenericMessage = "Payment could not be started. Please try again."

var messages = map[string]string{
	CodeOrderNotFound:   "This order no longer exists. Please start a new order.",
	CodeOrderNotPending: "This order can no longer be paid. Please start a new order.",
	CodeUserNotFound:    "No student was found for that ID. Please check and try again.",
	CodeBoothNotFound:   "This booth is not registered. Please ask staff for help.",
}

// MessageFor maps a server error code to the text shown to the customer.
func MessageFor(code string) string {
	if msg, ok := messages[code]; ok {
		return msg
	}
	return GenericMessage
}

// OrderLevel reports whether the code invalidates the order itself, in which
// case the customer must go back to product selection instead of retrying.
func OrderLevel(code string) bool {
	return code == CodeOrderNotFound || code == CodeOrderNotPending
}

var (
	// -- Identifier validation --
	ErrIdentifierLength = errors.New("student id must be exactly 4 digits")
	ErrIdentifierDigits = errors.New("student id must contain only digits")
	ErrInvalidGrade     = errors.New("grade must be between 1 and 9")
	ErrInvalidRoom      = errors.New("room must be between 1 and 9")
	ErrInvalidNumber    = errors.New("number must be between 1 and 99")
)
