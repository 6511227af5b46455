package shared

import (
	"errors"
	"fmt"
)

// Sentinels matched by the typed errors below through errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrConflict          = errors.New("conflict")
	ErrTransaction       = errors.New("transaction failed")
)

// ValidationError reports malformed or missing input. It is raised before any write.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError builds a ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError reports a missing referenced record.
type NotFoundError struct {
	Entity string
	ID     string
}

// NewNotFoundError builds a NotFoundError for entity with the given id.
func NewNotFoundError(entity string, id fmt.Stringer) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id.String()}
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Entity)
	}
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// Is matches ErrNotFound.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InsufficientStockError reports an outward or sale quantity larger than what is on hand.
type InsufficientStockError struct {
	ItemID    string
	ItemName  string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	name := e.ItemName
	if name == "" {
		name = e.ItemID
	}
	return fmt.Sprintf("insufficient stock for %s. Available: %d, Required: %d", name, e.Available, e.Requested)
}

// Is matches ErrInsufficientStock.
func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// ConflictError reports a duplicate document number or a state clash.
type ConflictError struct {
	Entity  string
	Key     string
	Message string
}

func (e *ConflictError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s already exists: %s", e.Entity, e.Key)
}

// Is matches ErrConflict.
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// TransactionError wraps a backing-store failure inside a unit of work. The unit of work is
// always rolled back when one is returned.
type TransactionError struct {
	Op  string
	Err error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }

// Is matches ErrTransaction.
func (e *TransactionError) Is(target error) bool { return target == ErrTransaction }

// IsDomainError reports whether err belongs to the domain taxonomy and must pass through a
// unit of work untouched.
func IsDomainError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrTransaction)
}

// WrapTx converts a store error raised inside a unit of work into a TransactionError.
func WrapTx(op string, err error) error {
	if err == nil || IsDomainError(err) {
		return err
	}
	return &TransactionError{Op: op, Err: err}
}

// UserSafeMessage returns a message safe to expose to API clients.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrTransaction) {
		return "the operation could not be completed, no changes were saved"
	}
	if IsDomainError(err) {
		return err.Error()
	}
	return "internal error"
}
