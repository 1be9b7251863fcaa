// Package ovndb provides OVN database error types.
//
// Errors returned by the topology store are typed so that callers can branch
// on them after wrapping. Every Is* helper unwraps with errors.As.
package ovndb

import (
	"errors"
	"fmt"
)

// ConnectionError represents an OVN database connection error
type ConnectionError struct {
	// Address is the database address that failed to connect
	Address string

	// Cause is the underlying error
	Cause error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to OVN NB DB at %s: %v", e.Address, e.Cause)
}

func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// TransactionError represents a failed NB transaction
type TransactionError struct {
	// Operation names the logical operation the transaction belonged to
	Operation string

	// Cause is the underlying error
	Cause error

	// Details provides additional context
	Details string
}

func (e *TransactionError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("OVN transaction failed for %s: %v (%s)", e.Operation, e.Cause, e.Details)
	}
	return fmt.Sprintf("OVN transaction failed for %s: %v", e.Operation, e.Cause)
}

func (e *TransactionError) Unwrap() error {
	return e.Cause
}

// ObjectNotFoundError represents an error when an OVN object is not found
type ObjectNotFoundError struct {
	// ObjectType is the NB table name (e.g., "Logical_Switch")
	ObjectType string

	// ObjectName is the name or identifier of the object
	ObjectName string
}

func (e *ObjectNotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.ObjectType, e.ObjectName)
}

// ValidationError represents a row that was rejected before being sent
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s=%v: %s", e.Field, e.Value, e.Message)
}

// NewConnectionError creates a new ConnectionError
func NewConnectionError(address string, cause error) *ConnectionError {
	return &ConnectionError{Address: address, Cause: cause}
}

// NewTransactionError creates a new TransactionError
func NewTransactionError(operation string, cause error, details string) *TransactionError {
	return &TransactionError{
		Operation: operation,
		Cause:     cause,
		Details:   details,
	}
}

// NewObjectNotFoundError creates a new ObjectNotFoundError
func NewObjectNotFoundError(objectType, objectName string) *ObjectNotFoundError {
	return &ObjectNotFoundError{
		ObjectType: objectType,
		ObjectName: objectName,
	}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// IsNotFound checks if an error is, or wraps, an ObjectNotFoundError
func IsNotFound(err error) bool {
	var target *ObjectNotFoundError
	return errors.As(err, &target)
}

// IsConnectionError checks if an error is, or wraps, a ConnectionError
func IsConnectionError(err error) bool {
	var target *ConnectionError
	return errors.As(err, &target)
}

// IsTransactionError checks if an error is, or wraps, a TransactionError
func IsTransactionError(err error) bool {
	var target *TransactionError
	return errors.As(err, &target)
}

// IsValidationError checks if an error is, or wraps, a ValidationError
func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}
