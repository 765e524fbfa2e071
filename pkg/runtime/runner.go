package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/conduit/internal/metrics"
	"github.com/tombee/conduit/pkg/blueprint"
	"github.com/tombee/conduit/pkg/definition"
	"github.com/tombee/conduit/pkg/errors"
	"github.com/tombee/conduit/pkg/events"
	"github.com/tombee/conduit/pkg/instance"
)

// DefinitionMissingError reports that the definition an instance references
// is no longer available from the resolver. Fatal to the call.
type DefinitionMissingError struct {
	// DefinitionID is the missing definition
	DefinitionID string

	// Version is the pinned version the instance requires
	Version int
}

// Error implements the error interface.
func (e *DefinitionMissingError) Error() string {
	return fmt.Sprintf("workflow definition %s version %d is missing", e.DefinitionID, e.Version)
}

// BlueprintResolver resolves the blueprint an instance references.
// The registry package provides the standard implementation.
type BlueprintResolver interface {
	// GetByInstance returns the blueprint for the definition id and version,
	// or nil if the definition has been removed.
	GetByInstance(ctx context.Context, definitionID string, version int) (*blueprint.Blueprint, error)
}

// operation selects execute-vs-resume dispatch inside the drain loop.
type operation int

const (
	opExecute operation = iota
	opResume
)

// Runner drives the workflow execution loop: it builds the transient
// execution context, dispatches begin/resume/continue on the instance
// status, drains the scheduled queue and publishes lifecycle notifications.
//
// A Runner is safe for concurrent use; each invocation owns its own
// execution context.
type Runner struct {
	provider       ServiceProvider
	mediator       *events.Mediator
	contextManager WorkflowContextManager
	resolver       BlueprintResolver
	factory        *instance.Factory
	logger         *slog.Logger
	metrics        *metrics.Recorder
	tracer         trace.Tracer
}

// NewRunner creates a workflow runner.
func NewRunner(provider ServiceProvider, mediator *events.Mediator) *Runner {
	return &Runner{
		provider: provider,
		mediator: mediator,
		factory:  instance.NewFactory(),
		logger:   slog.Default(),
		tracer:   otel.Tracer("github.com/tombee/conduit/pkg/runtime"),
	}
}

// WithLogger sets a custom logger for the runner.
func (r *Runner) WithLogger(logger *slog.Logger) *Runner {
	r.logger = logger
	return r
}

// WithContextManager sets the workflow-context manager used for the
// blueprint's fidelity policy.
func (r *Runner) WithContextManager(manager WorkflowContextManager) *Runner {
	r.contextManager = manager
	return r
}

// WithResolver sets the blueprint resolver used by Run.
func (r *Runner) WithResolver(resolver BlueprintResolver) *Runner {
	r.resolver = resolver
	return r
}

// WithMetrics sets the metrics recorder.
func (r *Runner) WithMetrics(recorder *metrics.Recorder) *Runner {
	r.metrics = recorder
	return r
}

// WithTracer sets a custom tracer.
func (r *Runner) WithTracer(tracer trace.Tracer) *Runner {
	r.tracer = tracer
	return r
}

// RunOption configures one runner invocation.
type RunOption func(*runOptions)

type runOptions struct {
	activityID    string
	input         interface{}
	correlationID string
	contextID     string
	tenantID      string
}

// WithActivityID targets a specific activity: the start activity on begin,
// or the blocking activity to resume.
func WithActivityID(id string) RunOption {
	return func(o *runOptions) { o.activityID = id }
}

// WithInput supplies the input value for the targeted activity.
func WithInput(input interface{}) RunOption {
	return func(o *runOptions) { o.input = input }
}

// WithCorrelationID ties a new instance to an external business key.
func WithCorrelationID(id string) RunOption {
	return func(o *runOptions) { o.correlationID = id }
}

// WithContextID rehydrates a previously saved workflow context on a new instance.
func WithContextID(id string) RunOption {
	return func(o *runOptions) { o.contextID = id }
}

// WithTenantID scopes a new instance to a tenant.
func WithTenantID(id string) RunOption {
	return func(o *runOptions) { o.tenantID = id }
}

// RunBlueprint starts a fresh instance of the blueprint and runs it.
func (r *Runner) RunBlueprint(ctx context.Context, bp *blueprint.Blueprint, opts ...RunOption) (*instance.WorkflowInstance, error) {
	o := buildOptions(opts)
	inst := r.factory.Instantiate(bp.ID, bp.Version, bp.Variables, instance.Options{
		CorrelationID: o.correlationID,
		ContextID:     o.contextID,
		TenantID:      o.tenantID,
	})
	return r.run(ctx, bp, inst, o)
}

// RunInstance runs an existing instance against the given blueprint.
func (r *Runner) RunInstance(ctx context.Context, bp *blueprint.Blueprint, inst *instance.WorkflowInstance, opts ...RunOption) (*instance.WorkflowInstance, error) {
	return r.run(ctx, bp, inst, buildOptions(opts))
}

// Run runs an existing instance, resolving its blueprint through the
// configured resolver. Fails with DefinitionMissingError when the
// definition has been removed; no notifications are published in that case.
func (r *Runner) Run(ctx context.Context, inst *instance.WorkflowInstance, opts ...RunOption) (*instance.WorkflowInstance, error) {
	if r.resolver == nil {
		return nil, &errors.ConfigError{Key: "resolver", Reason: "no blueprint resolver configured"}
	}
	bp, err := r.resolver.GetByInstance(ctx, inst.WorkflowDefinitionID, inst.Version)
	if err != nil {
		return nil, errors.Wrap(err, "resolving workflow definition")
	}
	if bp == nil {
		return nil, &DefinitionMissingError{DefinitionID: inst.WorkflowDefinitionID, Version: inst.Version}
	}
	return r.run(ctx, bp, inst, buildOptions(opts))
}

func buildOptions(opts []RunOption) runOptions {
	var o runOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// run is the single logical entry point all public Run variants converge on.
func (r *Runner) run(ctx context.Context, bp *blueprint.Blueprint, inst *instance.WorkflowInstance, o runOptions) (*instance.WorkflowInstance, error) {
	ctx, span := r.tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String("workflow.definition_id", bp.ID),
		attribute.Int("workflow.version", bp.Version),
		attribute.String("workflow.instance_id", inst.ID),
	))
	defer span.End()

	logger := r.logger.With(
		slog.String("instance_id", inst.ID),
		slog.String("workflow", bp.ID),
	)

	wfCtx := NewWorkflowExecutionContext(bp, inst)

	scope, err := r.provider.CreateScope(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "acquiring execution scope")
	}
	defer scope.Release()

	if bp.Fidelity() == definition.FidelityBurst {
		if err := loadWorkflowContext(ctx, r.contextManager, wfCtx); err != nil {
			logger.Warn("failed to load workflow context, continuing without it", "error", err)
		}
	}

	initialStatus := inst.Status

	switch inst.Status {
	case instance.StatusIdle:
		err = r.begin(ctx, wfCtx, scope, o.activityID, o.input)
	case instance.StatusRunning:
		err = r.drain(ctx, wfCtx, scope, opExecute)
	case instance.StatusSuspended:
		err = r.resume(ctx, wfCtx, scope, o.activityID, o.input)
	default:
		// Terminal instance: the run is a no-op
	}
	if err != nil {
		return nil, err
	}

	// End-of-loop status resolution: a non-empty blocking set suspends the
	// run, otherwise a run still marked Running has finished.
	if wfCtx.Status() == instance.StatusRunning {
		if len(inst.BlockingActivities) > 0 {
			if err := wfCtx.Suspend(); err != nil {
				return nil, err
			}
		} else {
			if err := wfCtx.Complete(); err != nil {
				return nil, err
			}
		}
	}

	if bp.Fidelity() == definition.FidelityBurst {
		if err := saveWorkflowContext(ctx, r.contextManager, wfCtx); err != nil {
			logger.Warn("failed to save workflow context, retaining previous context id", "error", err)
		}
	}

	wfCtx.Flush()

	r.publish(ctx, logger, WorkflowExecuted{WorkflowExecutionContext: wfCtx})
	r.publishTerminal(ctx, logger, wfCtx, initialStatus)

	span.SetAttributes(attribute.String("workflow.status", string(inst.Status)))
	r.metrics.RunCompleted(string(inst.Status))
	logger.Info("workflow executed", slog.String("status", string(inst.Status)))

	return inst, nil
}

// begin starts an Idle instance: resolve the start activity, consult its
// CanExecute guard and enter the drain loop. A declined guard leaves the
// instance Idle and the run is a silent no-op.
func (r *Runner) begin(ctx context.Context, wfCtx *WorkflowExecutionContext, scope Scope, activityID string, input interface{}) error {
	var actBP *blueprint.ActivityBlueprint
	if activityID != "" {
		actBP = wfCtx.Blueprint.GetActivity(activityID)
		if actBP == nil {
			return &errors.NotFoundError{Resource: "activity", ID: activityID}
		}
	} else {
		actBP = wfCtx.Blueprint.StartActivity()
		if actBP == nil {
			return &errors.ValidationError{
				Field:   "activities",
				Message: "blueprint declares no activities",
			}
		}
	}

	ok, err := r.canExecute(ctx, wfCtx, actBP, input)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	if err := wfCtx.Begin(); err != nil {
		return err
	}
	wfCtx.ScheduleActivity(actBP.ID, input)
	return r.drain(ctx, wfCtx, scope, opExecute)
}

// resume continues a Suspended instance at the named blocking activity.
// Resume semantics apply only to that activity; anything scheduled during
// the burst is a fresh execution.
func (r *Runner) resume(ctx context.Context, wfCtx *WorkflowExecutionContext, scope Scope, activityID string, input interface{}) error {
	if activityID == "" {
		return &errors.ValidationError{
			Field:      "activityId",
			Message:    "resuming a suspended workflow requires an activity id",
			Suggestion: "pass the blocking activity id the external signal targets",
		}
	}
	if !wfCtx.Instance.IsBlockedOn(activityID) {
		return &errors.ValidationError{
			Field:      "activityId",
			Message:    fmt.Sprintf("activity %q is not blocking this workflow", activityID),
			Suggestion: "resume must target an activity in the blocking set",
		}
	}
	actBP := wfCtx.Blueprint.GetActivity(activityID)
	if actBP == nil {
		return &errors.NotFoundError{Resource: "activity", ID: activityID}
	}

	ok, err := r.canExecute(ctx, wfCtx, actBP, input)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	wfCtx.RemoveBlockingActivities(activityID)
	if err := wfCtx.Resume(); err != nil {
		return err
	}
	wfCtx.ScheduleActivity(activityID, input)
	return r.drain(ctx, wfCtx, scope, opResume)
}

// canExecute consults the activity's guard inside its own fresh scope,
// released before the drain loop's scope does any work.
func (r *Runner) canExecute(ctx context.Context, wfCtx *WorkflowExecutionContext, actBP *blueprint.ActivityBlueprint, input interface{}) (bool, error) {
	scope, err := r.provider.CreateScope(ctx)
	if err != nil {
		return false, errors.Wrap(err, "acquiring guard scope")
	}
	defer scope.Release()

	actCtx := NewActivityExecutionContext(wfCtx, scope, actBP, input)
	activity, err := r.instantiate(scope, actCtx)
	if err != nil {
		return false, err
	}
	return activity.CanExecute(ctx, actCtx)
}

// drain is the core scheduling loop. It pops the primary queue until empty,
// dispatching each activity and applying its result; once the primary queue
// drains, post-scheduled activities are promoted and the loop continues
// unless the run left the Running status mid-burst.
func (r *Runner) drain(ctx context.Context, wfCtx *WorkflowExecutionContext, scope Scope, op operation) error {
	fidelity := wfCtx.Blueprint.Fidelity()
	logger := r.logger.With(slog.String("instance_id", wfCtx.Instance.ID))

	for wfCtx.HasScheduledActivities() {
		if ctx.Err() != nil {
			wfCtx.Cancel()
			break
		}

		if fidelity == definition.FidelityActivity {
			if err := loadWorkflowContext(ctx, r.contextManager, wfCtx); err != nil {
				logger.Warn("failed to load workflow context, continuing without it", "error", err)
			}
		}

		scheduled, err := wfCtx.PopScheduledActivity()
		if err != nil {
			return err
		}

		actBP := wfCtx.Blueprint.GetActivity(scheduled.ActivityID)
		if actBP == nil {
			wfCtx.Fault(scheduled.ActivityID, fmt.Errorf("scheduled activity %q not found in blueprint", scheduled.ActivityID))
			break
		}

		actCtx := NewActivityExecutionContext(wfCtx, scope, actBP, scheduled.Input)
		started := time.Now()

		result := r.dispatch(ctx, actCtx, op)

		wfCtx.Instance.CurrentActivity = actBP.ID
		wfCtx.Instance.AppendLog(actBP.ID, "executing")
		r.publish(ctx, logger, ActivityExecuting{WorkflowExecutionContext: wfCtx, ActivityExecutionContext: actCtx})

		if err := result.Apply(ctx, actCtx); err != nil {
			wfCtx.Fault(actBP.ID, err)
		}
		wfCtx.RecordActivityOutput(actBP.ID, actCtx.Output)

		r.publish(ctx, logger, ActivityExecuted{WorkflowExecutionContext: wfCtx, ActivityExecutionContext: actCtx})
		wfCtx.Instance.AppendLog(actBP.ID, "executed")
		r.metrics.ActivityDispatched(time.Since(started))

		if fidelity == definition.FidelityActivity {
			if err := saveWorkflowContext(ctx, r.contextManager, wfCtx); err != nil {
				logger.Warn("failed to save workflow context, retaining previous context id", "error", err)
			}
		}

		// Resume semantics apply only to the first dispatch of the burst
		op = opExecute
		wfCtx.CompletePass()

		if status := wfCtx.Status(); status == instance.StatusFaulted || status == instance.StatusCancelled {
			break
		}

		if !wfCtx.HasScheduledActivities() && wfCtx.HasPostScheduledActivities() {
			wfCtx.SchedulePostActivities()
			if wfCtx.Status() != instance.StatusRunning {
				break
			}
		}
	}

	return nil
}

// dispatch instantiates the activity, resolves its properties and invokes
// the selected operation, spanning the call. Any failure along the way
// becomes a Fault result; the loop itself never raises for activity errors.
func (r *Runner) dispatch(ctx context.Context, actCtx *ActivityExecutionContext, op operation) ActivityResult {
	spanName := "activity.execute"
	if op == opResume {
		spanName = "activity.resume"
	}
	ctx, span := r.tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.String("activity.id", actCtx.ActivityBlueprint.ID),
		attribute.String("activity.type", actCtx.ActivityBlueprint.Type),
	))
	defer span.End()

	activity, err := r.instantiate(actCtx.scope, actCtx)
	if err != nil {
		return Fault(err)
	}

	var result ActivityResult
	if op == opResume {
		result, err = activity.Resume(ctx, actCtx)
	} else {
		result, err = activity.Execute(ctx, actCtx)
	}
	if err != nil {
		return Fault(err)
	}
	if result == nil {
		return Noop()
	}
	return result
}

// instantiate runs the blueprint's factory through the scope and resolves
// every registered property provider into the activity context.
func (r *Runner) instantiate(scope Scope, actCtx *ActivityExecutionContext) (Activity, error) {
	if err := actCtx.resolveProperties(); err != nil {
		return nil, err
	}

	raw, err := actCtx.ActivityBlueprint.Factory(func(typeName string) (interface{}, error) {
		return scope.Resolve(typeName)
	})
	if err != nil {
		return nil, err
	}

	activity, ok := raw.(Activity)
	if !ok {
		return nil, fmt.Errorf("activity type %q does not implement the Activity interface", actCtx.ActivityBlueprint.Type)
	}
	return activity, nil
}

// publish dispatches a notification. Subscriber failures are logged and
// never alter workflow status.
func (r *Runner) publish(ctx context.Context, logger *slog.Logger, n events.Notification) {
	if r.mediator == nil {
		return
	}
	if err := r.mediator.Publish(ctx, n); err != nil {
		logger.Error("notification subscriber failed",
			slog.String("event", n.NotificationName()),
			"error", err,
		)
	}
}

// publishTerminal publishes at most one terminal status notification.
// Idle and Running produce none, and a run that left the instance status
// untouched (a no-op on a terminal instance) produces none either.
func (r *Runner) publishTerminal(ctx context.Context, logger *slog.Logger, wfCtx *WorkflowExecutionContext, initialStatus instance.Status) {
	if wfCtx.Status() == initialStatus && initialStatus != instance.StatusSuspended {
		return
	}
	switch wfCtx.Status() {
	case instance.StatusCancelled:
		r.publish(ctx, logger, WorkflowCancelled{WorkflowExecutionContext: wfCtx})
	case instance.StatusFinished:
		r.publish(ctx, logger, WorkflowCompleted{WorkflowExecutionContext: wfCtx})
	case instance.StatusFaulted:
		r.publish(ctx, logger, WorkflowFaulted{WorkflowExecutionContext: wfCtx})
	case instance.StatusSuspended:
		r.publish(ctx, logger, WorkflowSuspended{WorkflowExecutionContext: wfCtx})
	}
}
