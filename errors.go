package famledger

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("famledger: not found")
	ErrAlreadyExists = errors.New("famledger: already exists")
	ErrInvalidInput  = errors.New("famledger: invalid input")
	ErrForbidden     = errors.New("famledger: forbidden")
	ErrInternal      = errors.New("famledger: internal error")

	// Entity lookups
	ErrUserNotFound        = errors.New("famledger: user not found")
	ErrAccountNotFound     = errors.New("famledger: account not found")
	ErrTransactionNotFound = errors.New("famledger: transaction not found")
	ErrRecurringNotFound   = errors.New("famledger: recurring definition not found")

	// Transaction lifecycle
	ErrAlreadyApproved = errors.New("famledger: transaction already approved")
	ErrAlreadyRejected = errors.New("famledger: transaction already rejected")
	ErrAlreadyDeleted  = errors.New("famledger: transaction already deleted")
	ErrUnsupportedType = errors.New("famledger: transaction type has no defined balance effect")

	// Recurring definitions
	ErrInvalidDistribution   = errors.New("famledger: distribution percentages must add up to 100")
	ErrActiveAllowanceExists = errors.New("famledger: user already has an active allowance")

	// Family links
	ErrLastParent      = errors.New("famledger: cannot remove a child's last parent")
	ErrParentRequired  = errors.New("famledger: parent role required")
	ErrUserOwnsAccount = errors.New("famledger: user still owns accounts")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("famledger: validation failed for %s: %s", e.Field, e.Message)
}

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "famledger: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("famledger: %d errors occurred", len(e.Errors))
}

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error {
	return e.Errors
}

// ErrOrNil returns e when it holds errors and nil otherwise.
func (e *MultiError) ErrOrNil() error {
	if e == nil || !e.HasErrors() {
		return nil
	}
	return *e
}

// ErrorKind classifies an error for callers that map errors to responses.
type ErrorKind string

const (
	KindUnknown    ErrorKind = "unknown"
	KindNotFound   ErrorKind = "not_found"
	KindValidation ErrorKind = "validation"
	KindConflict   ErrorKind = "conflict"
	KindForbidden  ErrorKind = "forbidden"
	KindInternal   ErrorKind = "internal"
)

// KindOf returns the kind of err. Forbidden and NotFound are checked before
// Internal so a wrapped lookup failure keeps its specific kind.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case IsForbidden(err):
		return KindForbidden
	case IsNotFound(err):
		return KindNotFound
	case IsValidation(err):
		return KindValidation
	case IsConflict(err):
		return KindConflict
	case IsInternal(err):
		return KindInternal
	default:
		return KindUnknown
	}
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrTransactionNotFound) ||
		errors.Is(err, ErrRecurringNotFound)
}

// IsValidation returns true if the error reports invalid input.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrUnsupportedType) ||
		errors.Is(err, ErrInvalidDistribution)
}

// IsConflict returns true if the request clashes with current state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrAlreadyApproved) ||
		errors.Is(err, ErrAlreadyRejected) ||
		errors.Is(err, ErrAlreadyDeleted) ||
		errors.Is(err, ErrActiveAllowanceExists) ||
		errors.Is(err, ErrLastParent) ||
		errors.Is(err, ErrUserOwnsAccount)
}

// IsForbidden returns true if a role or ownership check failed.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrParentRequired)
}

// IsInternal returns true if the error is a storage or other internal failure.
func IsInternal(err error) bool {
	return errors.Is(err, ErrInternal)
}

// invalid builds a ValidationError.
func invalid(field, format string, args ...any) error {
	return ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// internal wraps a storage failure as ErrInternal. Errors that already carry
// a kind pass through untouched.
func internal(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindUnknown {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrInternal, op, err)
}
