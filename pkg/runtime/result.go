package runtime

import (
	"context"

	"github.com/tombee/conduit/pkg/definition"
)

// ActivityResult is the value an activity dispatch produces. Applying a
// result mutates the workflow execution context: scheduling successors,
// adding blocking entries, or moving the run to a terminal status.
//
// Results are tagged variants, not a type hierarchy; Combined composes.
type ActivityResult interface {
	// Apply mutates the execution context for this result.
	Apply(ctx context.Context, actCtx *ActivityExecutionContext) error
}

// OutcomeResult completes the activity along one or more named outcomes.
// Successors connected to each outcome are appended to the primary queue,
// receiving the completing activity's output as their input.
type OutcomeResult struct {
	// Names are the outcomes to emit, in order
	Names []string
}

// Outcomes completes the activity along the named outcomes.
func Outcomes(names ...string) *OutcomeResult {
	return &OutcomeResult{Names: names}
}

// Done completes the activity along the conventional "Done" outcome.
func Done() *OutcomeResult {
	return Outcomes(definition.DefaultOutcome)
}

// Apply schedules the successors of the completed activity along each
// matching outcome edge, in declaration order.
func (r *OutcomeResult) Apply(ctx context.Context, actCtx *ActivityExecutionContext) error {
	wfCtx := actCtx.WorkflowExecutionContext
	for _, name := range r.Names {
		for _, conn := range wfCtx.Blueprint.OutboundConnections(actCtx.ActivityBlueprint.ID, name) {
			wfCtx.ScheduleActivity(conn.Target.ID, actCtx.Output)
		}
	}
	return nil
}

// SuspendResult halts the activity until an external signal resumes it.
// The current activity joins the blocking set; when the burst ends with a
// non-empty blocking set the whole workflow suspends.
type SuspendResult struct {
	// Tag carries activity-specific resume data (e.g. the awaited signal)
	Tag string
}

// Suspend blocks the current activity until it is resumed.
func Suspend(tag string) *SuspendResult {
	return &SuspendResult{Tag: tag}
}

// Apply adds the current activity to the blocking set.
func (r *SuspendResult) Apply(ctx context.Context, actCtx *ActivityExecutionContext) error {
	actCtx.WorkflowExecutionContext.AddBlockingActivity(actCtx.ActivityBlueprint.ID, r.Tag)
	return nil
}

// CancelResult moves the workflow to the Cancelled status.
type CancelResult struct{}

// Cancel cancels the workflow.
func Cancel() *CancelResult {
	return &CancelResult{}
}

// Apply cancels the run.
func (r *CancelResult) Apply(ctx context.Context, actCtx *ActivityExecutionContext) error {
	actCtx.WorkflowExecutionContext.Cancel()
	return nil
}

// FaultResult records an activity failure and moves the workflow to the
// Faulted status.
type FaultResult struct {
	// Err is the failure
	Err error
}

// Fault faults the workflow with the given error.
func Fault(err error) *FaultResult {
	return &FaultResult{Err: err}
}

// Apply records the fault on the instance and faults the run.
func (r *FaultResult) Apply(ctx context.Context, actCtx *ActivityExecutionContext) error {
	actCtx.WorkflowExecutionContext.Fault(actCtx.ActivityBlueprint.ID, r.Err)
	return nil
}

// CombinedResult applies a sequence of results in order.
type CombinedResult struct {
	// Results are applied first to last
	Results []ActivityResult
}

// Combine composes several results into one.
func Combine(results ...ActivityResult) *CombinedResult {
	return &CombinedResult{Results: results}
}

// Apply applies each inner result in sequence, stopping at the first error.
func (r *CombinedResult) Apply(ctx context.Context, actCtx *ActivityExecutionContext) error {
	for _, result := range r.Results {
		if err := result.Apply(ctx, actCtx); err != nil {
			return err
		}
	}
	return nil
}

// NoopResult leaves the execution context unchanged. Useful for activities
// that only produce side effects through the context directly.
type NoopResult struct{}

// Noop returns a result with no effect.
func Noop() *NoopResult {
	return &NoopResult{}
}

// Apply does nothing.
func (r *NoopResult) Apply(ctx context.Context, actCtx *ActivityExecutionContext) error {
	return nil
}
