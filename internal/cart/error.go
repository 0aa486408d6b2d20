package cart

import "errors"

var (
	// -- Stock --
	ErrUnknownStock      = errors.New("stock unknown for product")
	ErrInsufficientStock = errors.New("insufficient stock")
)
