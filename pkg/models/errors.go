package models

import "fmt"

// ValidationError represents an error due to invalid or malformed input.
// Supports errors.As.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

// NewValidationError creates a new ValidationError with the given message.
func NewValidationError(msg string) error {
	return &ValidationError{msg: msg}
}

// TransformationError wraps failures converting stored rows into models,
// e.g. a malformed uuid or an unknown role in the users table.
type TransformationError struct {
	msg string
}

func (e *TransformationError) Error() string {
	return e.msg
}

// NewTransformationError creates a new TransformationError.
func NewTransformationError(msg string) error {
	return &TransformationError{msg: msg}
}

// DatabaseError wraps errors related to database or SQL interactions.
// Only returned from internal stores. Supports errors.As and errors.Unwrap.
type DatabaseError struct {
	err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database error: %v", e.err)
}

func (e *DatabaseError) Unwrap() error {
	return e.err
}

// NewDatabaseError creates a new DatabaseError.
func NewDatabaseError(err error) error {
	return &DatabaseError{err: err}
}

// NotFoundError is returned when a lookup matches no record.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Key)
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resource, key string) error {
	return &NotFoundError{Resource: resource, Key: key}
}
