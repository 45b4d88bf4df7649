package domain

import "errors"

// Sentinel errors for the core business rules. Callers match them with
// errors.Is; wrapped variants carry operation context.
var (
	// ErrValidation marks malformed identifiers or out-of-range parameters,
	// rejected before any mutation.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a missing strategy, account or position.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized marks an owner mismatch on a strategy.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInsufficientBalance rejects a buy whose cost exceeds cash balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientQuantity rejects a sell larger than the held quantity.
	ErrInsufficientQuantity = errors.New("insufficient quantity")

	// ErrNoPosition rejects a sell with no open position for the symbol.
	ErrNoPosition = errors.New("no open position")

	// ErrUpstream wraps price source or persistence failures. The cause is
	// preserved so callers can distinguish transient from permanent faults.
	ErrUpstream = errors.New("upstream failure")
)
