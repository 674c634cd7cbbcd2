package apperr

import "errors"

// Sentinel errors shared across services and handlers. Services wrap these
// with fmt.Errorf("...: %w", ...) and handlers map them to HTTP status codes
// via errors.Is.
var (
	// ErrValidation means a required submission field is missing or malformed.
	// Nothing is persisted when it is returned.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidAction means a decision action was outside {approved, rejected}.
	ErrInvalidAction = errors.New("invalid action")

	// ErrNotFound means the referenced expense does not exist.
	ErrNotFound = errors.New("expense not found")

	// ErrForbidden means the acting user is not allowed to decide the expense.
	ErrForbidden = errors.New("not authorized to approve this expense")

	// ErrConflict means the expense already left pending; terminal decisions
	// are final and a second decision never changes them.
	ErrConflict = errors.New("expense has already been decided")
)
