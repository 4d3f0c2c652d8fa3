package models

import (
	"fmt"
)

// ConfigurationError represents a malformed RuleGroup or MappingRule caught
// at save time. It carries a field-level message and never reaches the
// routing path.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("configuration error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// NewConfigurationError creates a new ConfigurationError
func NewConfigurationError(field, message string) *ConfigurationError {
	return &ConfigurationError{
		Field:   field,
		Message: message,
	}
}

// EvaluationError represents a runtime rule failure such as a bad regex or
// a non-numeric comparison. It is recovered locally as "condition = false"
// and never aborts a lead.
type EvaluationError struct {
	Field   string
	Op      string
	Message string
	Err     error
}

func (e *EvaluationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("evaluation error for field '%s' op '%s': %s (caused by: %v)",
			e.Field, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("evaluation error for field '%s' op '%s': %s", e.Field, e.Op, e.Message)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// DeliveryError represents a destination being unreachable or returning a
// non-2xx response. Recorded per RoutingResult; does not fail sibling
// deliveries.
type DeliveryError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode > 0 {
		if e.Err != nil {
			return fmt.Sprintf("delivery error: HTTP %d - %s (caused by: %v)", e.StatusCode, e.Message, e.Err)
		}
		return fmt.Sprintf("delivery error: HTTP %d - %s", e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("delivery error: %s (caused by: %v)", e.Message, e.Err)
	}
	return fmt.Sprintf("delivery error: %s", e.Message)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// NewDeliveryError creates a new DeliveryError
func NewDeliveryError(statusCode int, message string, err error) *DeliveryError {
	return &DeliveryError{
		StatusCode: statusCode,
		Message:    message,
		Err:        err,
	}
}

// DependencyUnavailableError indicates the dedup index or cap store could
// not be reached. Callers fail closed: the lead is rejected or the campaign
// treated as out of capacity, so business constraints are never silently
// bypassed.
type DependencyUnavailableError struct {
	Dependency string
	Err        error
}

func (e *DependencyUnavailableError) Error() string {
	return fmt.Sprintf("dependency '%s' unavailable: %v", e.Dependency, e.Err)
}

func (e *DependencyUnavailableError) Unwrap() error {
	return e.Err
}

// NewDependencyUnavailableError creates a new DependencyUnavailableError
func NewDependencyUnavailableError(dependency string, err error) *DependencyUnavailableError {
	return &DependencyUnavailableError{
		Dependency: dependency,
		Err:        err,
	}
}
