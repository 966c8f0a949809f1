package engine

import (
	"errors"
	"fmt"
)

// ExitEntry maps a failure category to a process exit code.
type ExitEntry struct {
	// Code is the process exit code, 1 through 255.
	Code int `json:"code"`

	// Category is the failure category the code covers.
	Category FailureCategory `json:"category"`

	// Description is the human-readable meaning of the code.
	Description string `json:"description"`
}

// ExitTable is the ordered exit-code declaration of a resource type. Code 0
// is reserved for success and never appears in the table. Lookup scans in
// order and takes the first entry whose category matches the failure,
// falling back to the generic entry.
type ExitTable []ExitEntry

// DefaultExitTable returns the table resource types inherit unless they
// declare their own.
func DefaultExitTable() ExitTable {
	return ExitTable{
		{Code: 1, Category: FailureGeneric, Description: "unexpected or uncategorized failure"},
		{Code: 2, Category: FailureMalformedInput, Description: "input payload failed parsing or schema validation"},
		{Code: 3, Category: FailureInvalidArgument, Description: "payload carries a value the resource cannot resolve"},
		{Code: 4, Category: FailurePermissionDenied, Description: "backend refused the operation for lack of privileges"},
		{Code: 5, Category: FailureInvalidOperation, Description: "operation unsupported or forbidden for the unit"},
	}
}

// Validate checks the table entries for usable codes and categories.
func (t ExitTable) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("exit table is empty")
	}
	hasGeneric := false
	for i, e := range t {
		if e.Code < 1 || e.Code > 255 {
			return fmt.Errorf("exit table entry %d: code %d out of range 1-255", i, e.Code)
		}
		if err := e.Category.Validate(); err != nil {
			return fmt.Errorf("exit table entry %d: %w", i, err)
		}
		if e.Category == FailureNotFound {
			return fmt.Errorf("exit table entry %d: not-found is absorbed by the engine and cannot map to a code", i)
		}
		if e.Category == FailureGeneric {
			hasGeneric = true
		}
	}
	if !hasGeneric {
		return fmt.Errorf("exit table needs a generic entry")
	}
	return nil
}

// ExitCodeFor returns the exit code for a failed operation: the first entry
// matching the failure's category, the generic entry otherwise. A nil error
// is success.
func (t ExitTable) ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	category := CategoryOf(err)
	if category == FailureNotFound {
		// Not-found escaping the operations that absorb it is an engine
		// defect, surfaced as a generic failure.
		category = FailureGeneric
	}
	for _, e := range t {
		if e.Category == category {
			return e.Code
		}
	}
	for _, e := range t {
		if e.Category == FailureGeneric {
			return e.Code
		}
	}
	return 1
}

// WrapExit resolves the exit code for err against the table and attaches it
// to the error chain. A nil error passes through.
func (t ExitTable) WrapExit(err error) error {
	if err == nil {
		return nil
	}
	return &ExitError{Code: t.ExitCodeFor(err), Err: err}
}

// ExitError carries the process exit code resolved for a failure.
type ExitError struct {
	// Code is the exit code the process must terminate with.
	Code int

	// Err is the failure the code was resolved from.
	Err error
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the wrapped failure.
func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode extracts the process exit code from an error chain. Errors that
// never passed through a table resolve against the default table; nil is
// success.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var xe *ExitError
	if errors.As(err, &xe) {
		return xe.Code
	}
	return DefaultExitTable().ExitCodeFor(err)
}
