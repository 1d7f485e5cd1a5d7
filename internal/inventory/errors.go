package inventory

import "errors"

var (
	// ErrNotFound means the ticket type does not exist.
	ErrNotFound = errors.New("ticket type not found")

	// ErrOutOfWindow means now is outside the type's sale window.
	ErrOutOfWindow = errors.New("ticket type is not on sale")

	// ErrInvalidQuantity means the requested quantity is non-positive or
	// violates the type's per-order bounds.
	ErrInvalidQuantity = errors.New("invalid quantity for ticket type")

	// ErrInsufficientInventory means the conditional increment lost: selling
	// the requested quantity would exceed capacity.
	ErrInsufficientInventory = errors.New("insufficient inventory")

	// ErrFrozen means the type was halted after an invariant violation and
	// needs manual reconciliation before selling resumes.
	ErrFrozen = errors.New("ticket type is frozen pending reconciliation")

	// ErrInvariantViolation means a release would have driven sold negative.
	// This is a bug in a caller's release discipline, never a user error.
	ErrInvariantViolation = errors.New("inventory invariant violation")
)
