package session

import "errors"

var (
	ErrClosed        = errors.New("payment session is closed")
	ErrMissingDeps   = errors.New("payment session dependencies are incomplete")
	ErrMissingOrder  = errors.New("payment session needs an order")
	ErrUnknownMethod = errors.New("unknown payment method")
	ErrWrongMethod   = errors.New("student id payment is not selected")
)
