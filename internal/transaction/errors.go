package transaction

import "errors"

var (
	ErrNotFound           = errors.New("transaction not found")
	ErrInvalidTransaction = errors.New("invalid transaction")

	ErrInvalidTransition  = errors.New("invalid transition")
	ErrUnauthorizedActor  = errors.New("unauthorized actor")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrAlreadyTerminal    = errors.New("transaction already terminal")
)
