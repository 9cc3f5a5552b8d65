package ledger

import "errors"

// Sentinel kinds for ledger errors.
var (
	ErrTokenNotFound   = errors.New("ghost token not found")
	ErrAlreadyMinted   = errors.New("device already has a ghost")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInjectedFailure = errors.New("injected ledger failure")
)
