package api

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidBaseURL   = errors.New("invalid API base URL")
	ErrMissingRequestID = errors.New("backend returned no payment request id")
)

// Error is a non-2xx answer from the order/payment backend.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend error %d: %s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("backend error %d", e.StatusCode)
}

// CodeOf extracts the backend error code from err, or "" if err is not a
// backend error.
func CodeOf(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}
