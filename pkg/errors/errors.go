// Package errors provides custom error types for the neowatch system.
// These errors enable programmatic error checking across the store, the
// mutation path and the HTTP layer, which maps each type to a status code.
package errors

import (
	"errors"
	"fmt"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// Common sentinel errors for the neowatch system
var (
	// ErrNotFound indicates that a requested entity was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates that provided input was invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrAccessDenied indicates that the caller may not perform the operation
	ErrAccessDenied = errors.New("access denied")

	// ErrConflict is reserved for optimistic-concurrency failures
	ErrConflict = errors.New("conflict")

	// ErrTransport indicates an observer connection I/O failure
	ErrTransport = errors.New("transport failure")

	// ErrClosed indicates use of a component after it was shut down
	ErrClosed = errors.New("closed")

	// ErrTimeout indicates that an operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrCanceled indicates that an operation was canceled
	ErrCanceled = errors.New("operation canceled")
)

// NotFoundError represents an error when a resource is not found
type NotFoundError struct {
	Resource string
	ID       string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Resource, e.ID)
}

// Is implements errors.Is support
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ValidationError represents a validation failure
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Is implements errors.Is support
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field string, value any, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// AccessDeniedError is returned by the authorization gate.
// Authenticated distinguishes "who are you" (false) from "not allowed" (true).
type AccessDeniedError struct {
	Subject       string
	Reason        string
	Authenticated bool
	Err           error
}

// Error implements the error interface
func (e *AccessDeniedError) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("access denied for %s: %s", e.Subject, e.Reason)
	}
	return fmt.Sprintf("access denied: %s", e.Reason)
}

// Unwrap implements errors.Unwrap
func (e *AccessDeniedError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *AccessDeniedError) Is(target error) bool {
	return target == ErrAccessDenied
}

// NewAccessDeniedError creates a new AccessDeniedError
func NewAccessDeniedError(subject, reason string, authenticated bool, err error) *AccessDeniedError {
	return &AccessDeniedError{
		Subject:       subject,
		Reason:        reason,
		Authenticated: authenticated,
		Err:           err,
	}
}

// ConflictError represents a write that lost against a concurrent write.
// Nothing raises it while updates are last-write-wins.
type ConflictError struct {
	Resource string
	ID       string
	Message  string
}

// Error implements the error interface
func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s %s: %s", e.Resource, e.ID, e.Message)
}

// Is implements errors.Is support
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// NewConflictError creates a new ConflictError
func NewConflictError(resource, id, message string) *ConflictError {
	return &ConflictError{Resource: resource, ID: id, Message: message}
}

// TransportError represents an I/O failure on one observer connection
type TransportError struct {
	Connection string
	Operation  string // "write", "flush", "ping", "close"
	Err        error
}

// Error implements the error interface
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error on connection %s during %s: %v", e.Connection, e.Operation, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// NewTransportError creates a new TransportError
func NewTransportError(connection, operation string, err error) *TransportError {
	return &TransportError{Connection: connection, Operation: operation, Err: err}
}

// ConfigError represents a configuration error
type ConfigError struct {
	Component string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError
func NewConfigError(component, message string, err error) *ConfigError {
	return &ConfigError{
		Component: component,
		Message:   message,
		Err:       err,
	}
}

// ResourceError represents an error during resource operations
type ResourceError struct {
	Operation string // "create", "update", "delete", "fetch", "open"
	Resource  string // "event", "store", "config"
	ID        string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ResourceError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("failed to %s %s %s: %s", e.Operation, e.Resource, e.ID, e.Message)
	}
	return fmt.Sprintf("failed to %s %s: %s", e.Operation, e.Resource, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ResourceError) Unwrap() error {
	return e.Err
}

// NewResourceError creates a new ResourceError
func NewResourceError(operation, resource, id string, err error) *ResourceError {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &ResourceError{
		Operation: operation,
		Resource:  resource,
		ID:        id,
		Message:   message,
		Err:       err,
	}
}

// Helper functions for error checking

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsAccessDenied checks if an error is an authorization failure
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// IsConflict checks if an error is a conflict error
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsTransport checks if an error is an observer transport failure
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

// IsClosed checks if an error reports use after shutdown
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}

// Helper wrapping functions for common patterns

// WrapValidation wraps an error as a ValidationError
func WrapValidation(field string, err error) error {
	if err == nil {
		return nil
	}
	return &ValidationError{Field: field, Message: err.Error()}
}

// WrapResource wraps an error as a ResourceError
func WrapResource(operation, resource, id string, err error) error {
	if err == nil {
		return nil
	}
	// Typed domain errors pass through so callers can still classify them.
	if IsNotFound(err) || IsValidationError(err) || IsConflict(err) {
		return err
	}
	return NewResourceError(operation, resource, id, err)
}

// As is an alias for the standard library errors.As.
var As = errors.As

// Is is an alias for the standard library errors.Is.
var Is = errors.Is
