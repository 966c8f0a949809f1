package engine

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"github.com/openconverge/converge/pkg/telemetry"
)

// Runner executes the five resource operations. It owns everything a
// resource should not have to repeat: payload decoding, schema validation,
// observation through get, the diff verdict, not-found absorption, write-only
// stripping, and instrumentation. Resources implement the capability
// interfaces; the runner drives them.
type Runner struct {
	logger  *telemetry.Logger
	tracer  *telemetry.Tracer
	metrics *telemetry.Metrics
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the runner's logger.
func WithLogger(l *telemetry.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// WithTracer sets the runner's tracer.
func WithTracer(t *telemetry.Tracer) RunnerOption {
	return func(r *Runner) { r.tracer = t }
}

// WithMetrics sets the runner's metrics collector.
func WithMetrics(m *telemetry.Metrics) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// WithTelemetry sets logger, tracer, and metrics from a telemetry instance.
func WithTelemetry(tel *telemetry.Telemetry) RunnerOption {
	return func(r *Runner) {
		r.logger = tel.Logger
		r.tracer = tel.Tracer
		r.metrics = tel.Metrics
	}
}

// NewRunner creates a runner. Without options it logs to stderr and records
// no traces or metrics.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = telemetry.FromContext(context.Background())
	}
	if r.tracer == nil {
		r.tracer, _ = telemetry.NewTracer(telemetry.TracingConfig{Enabled: false}, "converge", "dev", "development")
	}
	if r.metrics == nil {
		r.metrics, _ = telemetry.NewMetrics(telemetry.MetricsConfig{Enabled: false})
	}
	return r
}

// SetResult reports the outcome of a set operation.
type SetResult struct {
	// Before is the actual state observed before any change.
	Before *Instance `json:"beforeState"`

	// After is the actual state after the change. On a no-op it equals
	// Before.
	After *Instance `json:"afterState"`

	// Changed names the properties the diff reported, sorted.
	Changed []string `json:"changedProperties"`

	// NoOp is true when the unit was already in desired state and nothing
	// ran. A no-op set produces no result document.
	NoOp bool `json:"-"`
}

// Get observes the actual state of the instance addressed by the payload.
// A unit that does not exist is reported as an instance with existence false
// carrying the identifying properties, never as a failure.
func (r *Runner) Get(ctx context.Context, res Resource, payload []byte) (result *Instance, err error) {
	ctx, scope := r.begin(ctx, res, OperationGet)
	defer func() { scope.finish(err) }()

	getter, ok := res.(Getter)
	if !ok {
		return nil, unsupportedOperation(res, OperationGet)
	}

	desired, err := DecodeInstance(res.Schema(), payload, DecodeAddress)
	if err != nil {
		return nil, operationError(err, scope.typeName, OperationGet)
	}

	actual, err := r.observe(ctx, getter, res.Schema(), desired)
	if err != nil {
		return nil, operationError(err, scope.typeName, OperationGet)
	}

	if !actual.Exists() {
		scope.log.Debug("Instance does not exist")
	}
	return actual.WithoutWriteOnly(res.Schema()), nil
}

// Test observes the actual state, compares it against the desired state, and
// returns the actual state annotated with the verdict.
func (r *Runner) Test(ctx context.Context, res Resource, payload []byte) (result *Instance, err error) {
	ctx, scope := r.begin(ctx, res, OperationTest)
	defer func() { scope.finish(err) }()

	getter, ok := res.(Getter)
	if !ok {
		return nil, unsupportedOperation(res, OperationTest)
	}

	desired, err := DecodeInstance(res.Schema(), payload, DecodeDesired)
	if err != nil {
		return nil, operationError(err, scope.typeName, OperationTest)
	}

	actual, err := r.observe(ctx, getter, res.Schema(), desired)
	if err != nil {
		return nil, operationError(err, scope.typeName, OperationTest)
	}

	diff, err := r.verdict(ctx, res, desired, actual)
	if err != nil {
		return nil, operationError(err, scope.typeName, OperationTest)
	}

	scope.span.SetAttributes(
		telemetry.AttrInDesiredState.Bool(diff.InDesiredState),
		telemetry.AttrChangedCount.Int(len(diff.Changed)),
	)
	r.metrics.SetInDesiredState(scope.typeName, diff.InDesiredState)
	r.metrics.RecordChangedProperties(scope.typeName, len(diff.Changed))
	if diff.InDesiredState {
		scope.log.Debug("Instance in desired state")
	} else {
		scope.log.WithField("changed_properties", diff.Changed).Info("Instance out of desired state")
	}

	result = actual.WithoutWriteOnly(res.Schema())
	state := diff.InDesiredState
	result.InDesiredState = &state
	return result, nil
}

// Set converges the addressed unit to the desired state. Already-converged
// units are detected through the diff verdict and left untouched; a desired
// state with existence false routes to the resource's delete.
func (r *Runner) Set(ctx context.Context, res Resource, payload []byte) (result *SetResult, err error) {
	ctx, scope := r.begin(ctx, res, OperationSet)
	defer func() { scope.finish(err) }()

	setter, ok := res.(Setter)
	if !ok {
		return nil, unsupportedOperation(res, OperationSet)
	}

	desired, err := DecodeInstance(res.Schema(), payload, DecodeDesired)
	if err != nil {
		return nil, operationError(err, scope.typeName, OperationSet)
	}

	actual, err := r.observe(ctx, setter, res.Schema(), desired)
	if err != nil {
		return nil, operationError(err, scope.typeName, OperationSet)
	}

	diff, err := r.verdict(ctx, res, desired, actual)
	if err != nil {
		return nil, operationError(err, scope.typeName, OperationSet)
	}

	before := actual.WithoutWriteOnly(res.Schema())
	scope.span.SetAttributes(
		telemetry.AttrInDesiredState.Bool(diff.InDesiredState),
		telemetry.AttrChangedCount.Int(len(diff.Changed)),
		telemetry.AttrNoOp.Bool(diff.InDesiredState),
	)

	if diff.InDesiredState {
		scope.log.Debug("Instance already in desired state, nothing to do")
		return &SetResult{Before: before, After: before, Changed: []string{}, NoOp: true}, nil
	}
	r.metrics.RecordChangedProperties(scope.typeName, len(diff.Changed))

	if !desired.Exists() {
		result, err = r.setAbsent(ctx, res, desired, before, diff)
		if err != nil {
			return nil, operationError(err, scope.typeName, OperationSet)
		}
		scope.log.Info("Instance removed")
		return result, nil
	}

	resp, err := setter.Set(ctx, &SetRequest{Desired: desired, Actual: actual, Diff: diff})
	if err != nil {
		return nil, operationError(err, scope.typeName, OperationSet)
	}
	if resp == nil || resp.After == nil {
		return nil, operationError(NewGenericError("set returned no after state", nil), scope.typeName, OperationSet)
	}

	after := resp.After.WithoutWriteOnly(res.Schema())
	if len(resp.RestartRequired) > 0 {
		after.RestartRequired = resp.RestartRequired
		for _, hint := range resp.RestartRequired {
			r.metrics.RecordRestartFlagged(scope.typeName, hint.System)
		}
	}

	scope.log.WithField("changed_properties", diff.Changed).Info("Instance converged")
	return &SetResult{Before: before, After: after, Changed: diff.Changed, NoOp: false}, nil
}

// setAbsent drives a unit to absence on behalf of set when the desired state
// has existence false.
func (r *Runner) setAbsent(ctx context.Context, res Resource, desired, before *Instance, diff *DiffResult) (*SetResult, error) {
	deleter, ok := res.(Deleter)
	if !ok {
		return nil, unsupportedOperation(res, OperationSet)
	}
	if err := deleter.Delete(ctx, &DeleteRequest{Desired: desired}); err != nil && !IsNotFound(err) {
		return nil, err
	}
	after := AbsentInstance(res.Schema(), desired)
	return &SetResult{Before: before, After: after, Changed: diff.Changed, NoOp: false}, nil
}

// Delete removes the addressed unit. Deleting a unit that does not exist is
// success.
func (r *Runner) Delete(ctx context.Context, res Resource, payload []byte) (err error) {
	ctx, scope := r.begin(ctx, res, OperationDelete)
	defer func() { scope.finish(err) }()

	deleter, ok := res.(Deleter)
	if !ok {
		return unsupportedOperation(res, OperationDelete)
	}

	desired, err := DecodeInstance(res.Schema(), payload, DecodeAddress)
	if err != nil {
		return operationError(err, scope.typeName, OperationDelete)
	}

	if err := deleter.Delete(ctx, &DeleteRequest{Desired: desired}); err != nil {
		if IsNotFound(err) {
			scope.log.Debug("Instance already absent")
			return nil
		}
		return operationError(err, scope.typeName, OperationDelete)
	}

	scope.log.Info("Instance deleted")
	return nil
}

// Export enumerates every existing instance of the resource type, passing
// each to emit with write-only properties stripped.
func (r *Runner) Export(ctx context.Context, res Resource, emit func(*Instance) error) (err error) {
	ctx, scope := r.begin(ctx, res, OperationExport)
	defer func() { scope.finish(err) }()

	exporter, ok := res.(Exporter)
	if !ok {
		return unsupportedOperation(res, OperationExport)
	}

	count := 0
	err = exporter.Export(ctx, func(in *Instance) error {
		if in == nil {
			return NewGenericError("export emitted a nil instance", nil)
		}
		count++
		r.metrics.RecordExportedInstance(scope.typeName)
		return emit(in.WithoutWriteOnly(res.Schema()))
	})
	if err != nil {
		return operationError(err, scope.typeName, OperationExport)
	}

	scope.log.WithField("instances", count).Info("Export complete")
	return nil
}

// observe reads the actual state through the getter, absorbing not-found
// into an absent instance carrying the identifying properties.
func (r *Runner) observe(ctx context.Context, getter Getter, s *Schema, desired *Instance) (*Instance, error) {
	actual, err := getter.Get(ctx, &GetRequest{Desired: desired})
	if err != nil {
		if IsNotFound(err) {
			return AbsentInstance(s, desired), nil
		}
		return nil, err
	}
	if actual == nil {
		return AbsentInstance(s, desired), nil
	}
	return actual, nil
}

// verdict computes the convergence verdict, delegating to the resource's own
// test when it implements one.
func (r *Runner) verdict(ctx context.Context, res Resource, desired, actual *Instance) (*DiffResult, error) {
	if tester, ok := res.(Tester); ok {
		resp, err := tester.Test(ctx, &TestRequest{Desired: desired, Actual: actual})
		if err != nil {
			return nil, err
		}
		if resp == nil || resp.Diff == nil {
			return nil, NewGenericError("test returned no verdict", nil)
		}
		return resp.Diff, nil
	}
	return Diff(res.Schema(), desired, actual)
}

// opScope carries the per-operation instrumentation state.
type opScope struct {
	runner   *Runner
	span     trace.Span
	log      *telemetry.Logger
	timer    *telemetry.Timer
	typeName string
	op       Operation
}

// begin opens the operation span and prepares the annotated logger and timer.
func (r *Runner) begin(ctx context.Context, res Resource, op Operation) (context.Context, *opScope) {
	info := res.TypeInfo()
	log := r.logger.WithResourceType(info.Name).WithOperation(string(op))
	ctx, span := r.tracer.StartOperationSpan(ctx, info.Name, string(op))
	return ctx, &opScope{
		runner:   r,
		span:     span,
		log:      log,
		timer:    telemetry.NewTimer(),
		typeName: info.Name,
		op:       op,
	}
}

// finish closes the span and records the operation outcome.
func (s *opScope) finish(err error) {
	status := "success"
	if err != nil {
		status = "failure"
		telemetry.RecordError(s.span, err)
		s.span.SetAttributes(telemetry.AttrErrorCategory.String(string(CategoryOf(err))))
		s.runner.metrics.RecordError(string(CategoryOf(err)))
		s.log.WithError(err).Error("Operation failed")
	} else {
		telemetry.RecordSuccess(s.span)
	}
	s.span.End()
	s.runner.metrics.RecordOperation(s.typeName, string(s.op), status, s.timer.Duration())
}

// unsupportedOperation builds the invalid-operation failure for an operation
// the resource does not implement.
func unsupportedOperation(res Resource, op Operation) error {
	info := res.TypeInfo()
	e := NewInvalidOperationError(fmt.Sprintf("resource type %s does not support %s", info.Name, op), nil)
	e.Resource = info.Name
	e.Operation = string(op)
	return e
}

// operationError attaches resource and operation context to a failure
// without mutating the original error.
func operationError(err error, typeName string, op Operation) error {
	var e *Error
	if errors.As(err, &e) {
		clone := *e
		if clone.Resource == "" {
			clone.Resource = typeName
		}
		if clone.Operation == "" {
			clone.Operation = string(op)
		}
		return &clone
	}
	ne := NewGenericError("operation failed", err)
	ne.Resource = typeName
	ne.Operation = string(op)
	return ne
}
