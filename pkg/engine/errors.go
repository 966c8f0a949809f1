package engine

import (
	"errors"
	"fmt"
)

// FailureCategory classifies an operation failure for exit-code mapping.
type FailureCategory string

const (
	// FailureGeneric indicates an uncategorized runtime failure.
	// Examples: backend I/O errors, unexpected internal states.
	FailureGeneric FailureCategory = "generic"

	// FailureMalformedInput indicates the invocation payload could not be
	// decoded or violated the resource schema.
	FailureMalformedInput FailureCategory = "malformed-input"

	// FailureInvalidArgument indicates a well-formed payload carrying a value
	// the resource rejects. Examples: unknown resource type, unresolvable
	// role name.
	FailureInvalidArgument FailureCategory = "invalid-argument"

	// FailurePermissionDenied indicates the backend refused the operation for
	// lack of privileges.
	FailurePermissionDenied FailureCategory = "permission-denied"

	// FailureInvalidOperation indicates an operation the resource does not
	// support or forbids for the addressed unit.
	FailureInvalidOperation FailureCategory = "invalid-operation"

	// FailureNotFound indicates the addressed unit does not exist. It is
	// internal to the engine: get and delete absorb it, it never maps to an
	// exit code of its own.
	FailureNotFound FailureCategory = "not-found"
)

// Validate checks if the failure category is valid.
func (c FailureCategory) Validate() error {
	switch c {
	case FailureGeneric, FailureMalformedInput, FailureInvalidArgument,
		FailurePermissionDenied, FailureInvalidOperation, FailureNotFound:
		return nil
	default:
		return fmt.Errorf("invalid failure category: %s", c)
	}
}

// Error represents a categorized failure with context.
type Error struct {
	// Category is the failure classification for exit-code mapping.
	Category FailureCategory `json:"category"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Resource is the resource type that produced the error, if applicable.
	Resource string `json:"resource,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Resource != "" && e.Operation != "" {
		return fmt.Sprintf("[%s] %s (resource=%s, operation=%s)%s",
			e.Category, e.Message, e.Resource, e.Operation, e.unwrapSuffix())
	}
	if e.Resource != "" {
		return fmt.Sprintf("[%s] %s (resource=%s)%s",
			e.Category, e.Message, e.Resource, e.unwrapSuffix())
	}
	return fmt.Sprintf("[%s] %s%s", e.Category, e.Message, e.unwrapSuffix())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) unwrapSuffix() string {
	if e.Err != nil {
		return ": " + e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is. Two errors are equal
// when they carry the same failure category.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Category == t.Category
}

// ErrNotFound is the sentinel a resource returns when the addressed unit does
// not exist. Compare with errors.Is or IsNotFound.
var ErrNotFound = &Error{Category: FailureNotFound, Message: "resource instance not found"}

// NewGenericError creates a new uncategorized error.
func NewGenericError(message string, err error) *Error {
	return &Error{
		Category: FailureGeneric,
		Message:  message,
		Err:      err,
	}
}

// NewMalformedInputError creates a new malformed-input error.
func NewMalformedInputError(message string, err error) *Error {
	return &Error{
		Category: FailureMalformedInput,
		Message:  message,
		Err:      err,
	}
}

// NewInvalidArgumentError creates a new invalid-argument error.
func NewInvalidArgumentError(message string, err error) *Error {
	return &Error{
		Category: FailureInvalidArgument,
		Message:  message,
		Err:      err,
	}
}

// NewPermissionDeniedError creates a new permission-denied error.
func NewPermissionDeniedError(message string, err error) *Error {
	return &Error{
		Category: FailurePermissionDenied,
		Message:  message,
		Err:      err,
	}
}

// NewInvalidOperationError creates a new invalid-operation error.
func NewInvalidOperationError(message string, err error) *Error {
	return &Error{
		Category: FailureInvalidOperation,
		Message:  message,
		Err:      err,
	}
}

// NewNotFoundError creates a new not-found error for a specific unit.
func NewNotFoundError(message string, err error) *Error {
	return &Error{
		Category: FailureNotFound,
		Message:  message,
		Err:      err,
	}
}

// WithResource adds resource type context to an error.
func (e *Error) WithResource(resourceType string) *Error {
	e.Resource = resourceType
	return e
}

// WithOperation adds operation context to an error.
func (e *Error) WithOperation(operation string) *Error {
	e.Operation = operation
	return e
}

// WithDetail adds a detail field to the error context.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// CategoryOf returns the failure category of an error. Errors that carry no
// category classify as generic.
func CategoryOf(err error) FailureCategory {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return FailureGeneric
}

// IsNotFound returns true if the error indicates a missing unit.
func IsNotFound(err error) bool {
	return CategoryOf(err) == FailureNotFound
}

// IsMalformedInput returns true if the error is classified as malformed input.
func IsMalformedInput(err error) bool {
	return CategoryOf(err) == FailureMalformedInput
}

// IsInvalidArgument returns true if the error is classified as an invalid argument.
func IsInvalidArgument(err error) bool {
	return CategoryOf(err) == FailureInvalidArgument
}

// IsPermissionDenied returns true if the error is classified as permission denied.
func IsPermissionDenied(err error) bool {
	return CategoryOf(err) == FailurePermissionDenied
}

// IsInvalidOperation returns true if the error is classified as an invalid operation.
func IsInvalidOperation(err error) bool {
	return CategoryOf(err) == FailureInvalidOperation
}
