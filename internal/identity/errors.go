package identity

import (
	"errors"
	"fmt"
)

var (
	ErrCapacityExceeded = errors.New("dependent limit reached")
	ErrInvalidCode      = errors.New("invalid code")
	ErrNotFound         = errors.New("dependent not found for this account")
	ErrStorageCorrupt   = errors.New("stored session is unreadable")
	ErrNoSession        = errors.New("no active session")
	ErrNotGuardian      = errors.New("only a guardian account can do this")

	ErrEntitlementRequired = errors.New("premium entitlement required")
)

// ValidationError is a field-level rejection the user can correct and resubmit.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
