package journal

import "errors"

var (
	ErrMissingOrderID = errors.New("journal entry has no order id")
	ErrNonTerminal    = errors.New("only terminal outcomes are journaled")
)
