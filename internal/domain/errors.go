package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Typed errors below match one of these with errors.Is.
var (
	ErrPermissionDenied       = errors.New("permission denied")
	ErrInvalidTransition      = errors.New("invalid transition")
	ErrCircularDependency     = errors.New("circular dependency")
	ErrDependencyNotFound     = errors.New("dependency not found")
	ErrNotFound               = errors.New("not found")
	ErrValidation             = errors.New("validation failed")
	ErrStorageUnavailable     = errors.New("storage unavailable")
	ErrConcurrentModification = errors.New("concurrent modification")
)

// PermissionDeniedError is returned when a role lacks a capability or
// seniority for an action.
type PermissionDeniedError struct {
	Role       Role
	Capability Capability
	Reason     string
}

func (e *PermissionDeniedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("permission denied: %s", e.Reason)
	}
	if e.Role == "" {
		return fmt.Sprintf("permission %s required", e.Capability)
	}
	return fmt.Sprintf("permission %s required (role %s)", e.Capability, e.Role)
}

func (e *PermissionDeniedError) Is(target error) bool { return target == ErrPermissionDenied }

// InvalidTransitionError reports a refused lifecycle or task status move.
type InvalidTransitionError struct {
	Entity  string
	From    string
	To      string
	Missing []string
	Reason  string
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("invalid %s transition %s -> %s", e.Entity, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if len(e.Missing) > 0 {
		msg += " (missing: " + strings.Join(e.Missing, ", ") + ")"
	}
	return msg
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// CircularDependencyError carries the cycle the rejected edge would close.
type CircularDependencyError struct {
	TaskID      string
	DependsOnID string
	Path        []string
}

func (e *CircularDependencyError) Error() string {
	if e.TaskID == e.DependsOnID {
		return fmt.Sprintf("circular dependency detected: task %s cannot depend on itself", e.TaskID)
	}
	return fmt.Sprintf("circular dependency detected: %s", strings.Join(e.Path, " -> "))
}

func (e *CircularDependencyError) Is(target error) bool { return target == ErrCircularDependency }

type DependencyNotFoundError struct {
	TaskID      string
	DependsOnID string
}

func (e *DependencyNotFoundError) Error() string {
	return fmt.Sprintf("task %s does not depend on %s", e.TaskID, e.DependsOnID)
}

func (e *DependencyNotFoundError) Is(target error) bool { return target == ErrDependencyNotFound }

type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// StorageError wraps a persistence failure. It is the only retryable kind.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorageUnavailable }

// Retryable reports whether the caller may retry the operation unchanged.
func Retryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}

// Invalid is a shorthand for a field-level ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
