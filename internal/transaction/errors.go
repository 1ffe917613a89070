package transaction

import "errors"

var (
	ErrNotFound          = errors.New("transaction not found")
	ErrDuplicateID       = errors.New("transaction id already exists")
	ErrAlreadyFinal      = errors.New("transaction already in a terminal state")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrExceedsRemainder  = errors.New("amount exceeds remaining balance of related transaction")
)
