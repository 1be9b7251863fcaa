package ovn

import (
	"errors"
	"fmt"
)

// InvalidInputError rejects a request before any topology change
type InvalidInputError struct {
	Message string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input: %s", e.Message)
}

// MissingDependencyError reports a referenced object that does not exist
type MissingDependencyError struct {
	Kind string
	Name string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("%s %s does not exist", e.Kind, e.Name)
}

// ServiceUnavailableError reports a topology failure that was unwound
type ServiceUnavailableError struct {
	Operation string
	Cause     error
}

func (e *ServiceUnavailableError) Error() string {
	return fmt.Sprintf("service unavailable: %s: %v", e.Operation, e.Cause)
}

func (e *ServiceUnavailableError) Unwrap() error {
	return e.Cause
}

// RouterInterfaceNotFoundError is returned when no router interface port
// matches a remove request
type RouterInterfaceNotFoundError struct {
	RouterID string
	PortID   string
	SubnetID string
}

func (e *RouterInterfaceNotFoundError) Error() string {
	if e.PortID != "" {
		return fmt.Sprintf("router %s has no interface with port %s", e.RouterID, e.PortID)
	}
	return fmt.Sprintf("router %s has no interface on subnet %s", e.RouterID, e.SubnetID)
}

func invalidInputf(format string, args ...interface{}) *InvalidInputError {
	return &InvalidInputError{Message: fmt.Sprintf(format, args...)}
}

// IsInvalidInput checks if an error is an InvalidInputError
func IsInvalidInput(err error) bool {
	var e *InvalidInputError
	return errors.As(err, &e)
}

// IsMissingDependency checks if an error is a MissingDependencyError
func IsMissingDependency(err error) bool {
	var e *MissingDependencyError
	return errors.As(err, &e)
}

// IsServiceUnavailable checks if an error is a ServiceUnavailableError
func IsServiceUnavailable(err error) bool {
	var e *ServiceUnavailableError
	return errors.As(err, &e)
}

// IsRouterInterfaceNotFound checks if an error is a RouterInterfaceNotFoundError
func IsRouterInterfaceNotFound(err error) bool {
	var e *RouterInterfaceNotFoundError
	return errors.As(err, &e)
}
