package shared

import "errors"

var (
	// ErrValidation indicates malformed input, rejected before any ledger interaction.
	ErrValidation = errors.New("validation failed")
	// ErrInsufficientStock indicates an append would drive a balance negative.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidStateTransition indicates a workflow entity does not permit the requested transition.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrNotFound indicates a referenced location, variant or workflow entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a concurrent mutation was detected on the same balance key.
	ErrConflict = errors.New("concurrent modification conflict")
	// ErrInvalidCredentials indicates a failed API client authentication.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// UserSafeMessage returns a message safe to surface to API consumers.
func UserSafeMessage(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return err.Error()
	case errors.Is(err, ErrInsufficientStock):
		return err.Error()
	case errors.Is(err, ErrInvalidStateTransition):
		return err.Error()
	case errors.Is(err, ErrNotFound):
		return "resource not found"
	case errors.Is(err, ErrConflict):
		return "operation conflicted with a concurrent change, please retry"
	default:
		return "internal error"
	}
}
