// Package engine provides the core types and execution model for the
// converge resource runtime.
//
// # Overview
//
// converge is a declarative convergence runtime: every managed thing is a
// resource type with a typed property schema, and every resource supports up
// to five uniform operations:
//
//   - get: observe the actual state of one addressed instance
//   - set: drive one instance to its desired state
//   - test: report whether one instance is in its desired state
//   - delete: drive one instance to absence
//   - export: enumerate every existing instance of the type
//
// A process invocation runs exactly one operation against exactly one
// resource type and exits. State lives in the systems being managed, never
// in the runtime.
//
// # Core Domain Types
//
// The package defines the fundamental types of the execution model:
//
//   - Schema: the typed property contract of a resource type
//   - PropertySpec: one property with kind, flags, and constraints
//   - Instance: a document conforming to a schema, desired or actual
//   - DiffResult: the convergence verdict with the changed property names
//   - Operation: one of the five uniform operations
//   - Error: a failure with its category for exit-code mapping
//   - ExitTable: the failure-category to exit-code mapping of a type
//
// # Capability Interfaces
//
// Resources implement capabilities by implementing interfaces. Every
// resource provides identity and a schema:
//
//	type Resource interface {
//	    TypeInfo() TypeInfo
//	    Schema() *Schema
//	}
//
// Operations map to capability interfaces: Getter, Setter, Deleter,
// Exporter, and Tester. Setter and Tester embed Getter, because set and
// test are defined relative to observed state. The advertised operation set
// of a type is derived from the interfaces it implements; see
// CapabilitiesOf.
//
// # The Runner
//
// The Runner drives resources through the shared operation pipeline:
// decode and validate the payload, observe actual state through get,
// compute the diff verdict, and only then touch the system. Resources keep
// only the backend-specific read and write logic.
//
//	runner := engine.NewRunner(engine.WithTelemetry(tel))
//	result, err := runner.Set(ctx, resource, payload)
//
// The runner also enforces the protocol-level guarantees: not-found from
// get and delete is absorbed, set on an already-converged instance runs
// nothing, and write-only properties never appear in any returned state.
//
// # Control Properties
//
// Instances carry control metadata alongside domain properties. On the wire
// these use underscore-prefixed keys:
//
//   - _exist: desired or observed existence, defaulting to true
//   - _purge: exact membership for set-valued properties
//   - _inDesiredState: the test verdict, output only
//   - _restartRequired: restart hints from set, output only
//
// In Go the metadata lives in explicit Instance fields; the underscore
// convention exists only in the JSON codec.
//
// # Failure Categories
//
// Failures carry one of six categories: generic, malformed-input,
// invalid-argument, permission-denied, invalid-operation, and not-found.
// The first five map to process exit codes through the type's ExitTable;
// not-found never escapes, because the operations that can encounter it
// absorb it. Use the helper predicates to inspect failures:
//
//	if engine.IsPermissionDenied(err) {
//	    // privilege problem, not drift
//	}
//
// # Schema Documents
//
// A Schema renders itself as a JSON Schema document through Document. The
// document describes the full payload contract, control properties
// included, and is what the schema operation of the command line emits.
//
// # Thread Safety
//
// Schemas are immutable after construction and safe for concurrent use.
// Instances are plain documents owned by one operation; the runner clones
// before annotating, never mutating resource-returned state in place.
package engine
