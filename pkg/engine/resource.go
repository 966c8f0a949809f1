package engine

import (
	"context"
	"fmt"
)

// Operation identifies one of the five convergence operations.
type Operation string

const (
	// OperationGet reads the actual state of one unit.
	OperationGet Operation = "get"

	// OperationSet converges one unit to its desired state.
	OperationSet Operation = "set"

	// OperationTest reports whether one unit matches its desired state.
	OperationTest Operation = "test"

	// OperationDelete drives one unit to absence.
	OperationDelete Operation = "delete"

	// OperationExport enumerates every existing unit.
	OperationExport Operation = "export"
)

// Validate checks if the operation is valid.
func (o Operation) Validate() error {
	switch o {
	case OperationGet, OperationSet, OperationTest, OperationDelete, OperationExport:
		return nil
	default:
		return fmt.Errorf("invalid operation: %s", o)
	}
}

// TypeInfo identifies a resource type and declares its runtime contract.
type TypeInfo struct {
	// Name is the resource type name in namespace.kind form.
	Name string `json:"name"`

	// Version is the version of the resource type implementation.
	Version string `json:"version"`

	// Description is the human-readable summary surfaced by list and schema.
	Description string `json:"description,omitempty"`

	// ExitCodes optionally replaces the default exit-code table.
	ExitCodes ExitTable `json:"exitCodes,omitempty"`
}

// ExitTableOrDefault returns the declared exit table, or the default table
// when the type declares none.
func (t TypeInfo) ExitTableOrDefault() ExitTable {
	if len(t.ExitCodes) > 0 {
		return t.ExitCodes
	}
	return DefaultExitTable()
}

// Resource is the base contract every resource type implements. The
// supported operations are advertised statically by implementing the
// capability interfaces below; invoking an operation the type does not
// implement is a contract violation the engine reports as invalid-operation
// before any resource code runs.
type Resource interface {
	// TypeInfo returns the identity and exit-code declaration of the type.
	TypeInfo() TypeInfo

	// Schema returns the immutable property contract of the type.
	Schema() *Schema
}

// GetRequest carries the instance addressing the unit to read.
type GetRequest struct {
	// Desired is the caller-supplied instance. Only identifying properties
	// are guaranteed present.
	Desired *Instance
}

// Getter reads the actual state of the unit addressed by the identifying
// properties of the desired instance. A missing unit is reported as
// ErrNotFound, which the engine absorbs into an absent instance; any other
// failure propagates.
type Getter interface {
	Resource
	Get(ctx context.Context, req *GetRequest) (*Instance, error)
}

// SetRequest carries everything a resource needs to converge one unit.
type SetRequest struct {
	// Desired is the validated desired state.
	Desired *Instance

	// Actual is the pre-change state observed by get. Absent units carry
	// existence false.
	Actual *Instance

	// Diff is the verdict that triggered the set. Changed names the
	// properties to converge; the resource applies only the backend
	// operations they imply.
	Diff *DiffResult
}

// SetResponse reports the outcome of an applied change.
type SetResponse struct {
	// After is the post-change actual state. Required.
	After *Instance

	// RestartRequired lists systems that must restart before the change is
	// fully live.
	RestartRequired []RestartHint
}

// Setter applies desired state to the unit. Set is defined relative to get:
// the engine observes current state, diffs it, and only calls Set when the
// unit is out of desired state, so every Setter is also a Getter.
type Setter interface {
	Getter
	Set(ctx context.Context, req *SetRequest) (*SetResponse, error)
}

// DeleteRequest carries the instance addressing the unit to remove.
type DeleteRequest struct {
	// Desired is the caller-supplied instance. Only identifying properties
	// are guaranteed present.
	Desired *Instance
}

// Deleter drives the addressed unit to absence. Deleting an absent unit is
// success: resources may return ErrNotFound and the engine absorbs it.
type Deleter interface {
	Resource
	Delete(ctx context.Context, req *DeleteRequest) error
}

// Exporter enumerates every existing unit as a full instance. The emit
// callback consumes instances one at a time; returning an error from it
// aborts the enumeration. The sequence is finite and one-shot per
// invocation.
type Exporter interface {
	Resource
	Export(ctx context.Context, emit func(*Instance) error) error
}

// TestRequest carries the desired and observed state for a custom verdict.
type TestRequest struct {
	// Desired is the validated desired state.
	Desired *Instance

	// Actual is the state observed by get. Absent units carry existence
	// false.
	Actual *Instance
}

// TestResponse reports a custom test verdict.
type TestResponse struct {
	// Diff is the resource's verdict. Required.
	Diff *DiffResult
}

// Tester replaces the schema-driven diff with a resource-specific verdict.
// Resources whose drift cannot be derived from observable properties, such
// as write-only credentials or content digests, implement it; everyone else
// relies on Diff.
type Tester interface {
	Getter
	Test(ctx context.Context, req *TestRequest) (*TestResponse, error)
}

// CapabilitiesOf derives the advertised operation set of a resource from the
// capability interfaces it implements, in the fixed get, set, test, delete,
// export order.
func CapabilitiesOf(r Resource) []Operation {
	var caps []Operation
	if _, ok := r.(Getter); ok {
		caps = append(caps, OperationGet)
	}
	if _, ok := r.(Setter); ok {
		caps = append(caps, OperationSet)
	}
	if _, ok := r.(Getter); ok {
		caps = append(caps, OperationTest)
	}
	if _, ok := r.(Deleter); ok {
		caps = append(caps, OperationDelete)
	}
	if _, ok := r.(Exporter); ok {
		caps = append(caps, OperationExport)
	}
	return caps
}

// Supports reports whether the resource advertises the operation.
func Supports(r Resource, op Operation) bool {
	switch op {
	case OperationGet, OperationTest:
		_, ok := r.(Getter)
		return ok
	case OperationSet:
		_, ok := r.(Setter)
		return ok
	case OperationDelete:
		_, ok := r.(Deleter)
		return ok
	case OperationExport:
		_, ok := r.(Exporter)
		return ok
	default:
		return false
	}
}
