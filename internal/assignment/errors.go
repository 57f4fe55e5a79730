package assignment

import (
	"errors"
	"fmt"
)

var (
	ErrValidation            = errors.New("invalid input data")
	ErrNoAmbulanceAvailable  = errors.New("no ambulances available")
	ErrInsufficientPersonnel = errors.New("insufficient personnel")
	ErrStorage               = errors.New("assignment could not be recorded")
)

// Stable error categories exposed to callers.
const (
	CategoryValidation            = "validation_error"
	CategoryNoAmbulance           = "no_ambulance_available"
	CategoryInsufficientPersonnel = "insufficient_personnel"
	CategoryStorage               = "storage_error"
	CategoryInternal              = "internal_error"
)

// Error ties a pipeline failure to the step that produced it and a stable category.
type Error struct {
	Op       string
	Category string
	Fields   map[string]string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// InsufficientPersonnelError reports a crew that could not reach the minimum size.
type InsufficientPersonnelError struct {
	Severity          int
	Required          int
	Assigned          int
	FallbackAttempted bool
}

func (e *InsufficientPersonnelError) Error() string {
	return fmt.Sprintf("severity %d requires %d paramedics, only %d available", e.Severity, e.Required, e.Assigned)
}

func (e *InsufficientPersonnelError) Is(target error) bool {
	return target == ErrInsufficientPersonnel
}

// Category maps any error returned by the package to its stable category string.
func Category(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.Category != "" {
		return ae.Category
	}
	switch {
	case errors.Is(err, ErrValidation):
		return CategoryValidation
	case errors.Is(err, ErrNoAmbulanceAvailable):
		return CategoryNoAmbulance
	case errors.Is(err, ErrInsufficientPersonnel):
		return CategoryInsufficientPersonnel
	case errors.Is(err, ErrStorage):
		return CategoryStorage
	default:
		return CategoryInternal
	}
}

// Message returns the caller-facing message for an error. It never includes
// storage or driver details.
func Message(err error) string {
	switch Category(err) {
	case CategoryValidation:
		return "Invalid input data"
	case CategoryNoAmbulance:
		return "No ambulances available"
	case CategoryInsufficientPersonnel:
		return "Insufficient personnel"
	case CategoryStorage:
		return "Assignment could not be recorded"
	default:
		return "Internal error"
	}
}

func validationError(op string, fields map[string]string, err error) error {
	return &Error{Op: op, Category: CategoryValidation, Fields: fields, Err: fmt.Errorf("%w: %w", ErrValidation, err)}
}
