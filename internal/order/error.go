package order

import "errors"

var (
	ErrEmptyCart       = errors.New("cart is empty")
	ErrInvalidQuantity = errors.New("order line quantity must be at least 1")
	ErrMissingOrderID  = errors.New("backend returned no order id")
)
