package runtime

import (
	"fmt"
	"time"

	"github.com/tombee/conduit/pkg/blueprint"
	"github.com/tombee/conduit/pkg/errors"
	"github.com/tombee/conduit/pkg/instance"
)

// WorkflowExecutionContext is the transient per-run state: it composes a
// workflow instance with its blueprint and adds the primary and
// post-scheduled queues, the loaded workflow-context value and the current
// fault. It lives for exactly one runner invocation and is owned exclusively
// by that invocation; it is not safe for concurrent use.
type WorkflowExecutionContext struct {
	// Blueprint is the executable workflow graph
	Blueprint *blueprint.Blueprint

	// Instance is the durable record this run mutates
	Instance *instance.WorkflowInstance

	// WorkflowContext is the loaded user context value, nil when absent
	WorkflowContext interface{}

	scheduled       []instance.ScheduledActivity
	postScheduled   []instance.ScheduledActivity
	activityOutputs map[string]interface{}
	pendingOutput   interface{}
	fault           *instance.Fault
}

// NewWorkflowExecutionContext builds the transient context for one run,
// hydrating the primary queue from the instance's persisted queue.
func NewWorkflowExecutionContext(bp *blueprint.Blueprint, inst *instance.WorkflowInstance) *WorkflowExecutionContext {
	scheduled := make([]instance.ScheduledActivity, len(inst.ScheduledActivities))
	copy(scheduled, inst.ScheduledActivities)

	if inst.Variables == nil {
		inst.Variables = make(map[string]interface{})
	}

	return &WorkflowExecutionContext{
		Blueprint:       bp,
		Instance:        inst,
		scheduled:       scheduled,
		activityOutputs: make(map[string]interface{}),
	}
}

// Status returns the instance's current status.
func (c *WorkflowExecutionContext) Status() instance.Status {
	return c.Instance.Status
}

// Begin moves the run from Idle to Running.
func (c *WorkflowExecutionContext) Begin() error {
	return c.transition(instance.StatusIdle, instance.StatusRunning)
}

// Resume moves the run from Suspended back to Running.
func (c *WorkflowExecutionContext) Resume() error {
	return c.transition(instance.StatusSuspended, instance.StatusRunning)
}

// Complete moves the run from Running to Finished and publishes the pending
// workflow output onto the instance. Only valid once the scheduled queues
// and blocking set are empty.
func (c *WorkflowExecutionContext) Complete() error {
	if c.HasScheduledActivities() || c.HasPostScheduledActivities() {
		return &errors.ValidationError{
			Field:   "status",
			Message: "cannot complete a workflow with scheduled activities",
		}
	}
	if len(c.Instance.BlockingActivities) > 0 {
		return &errors.ValidationError{
			Field:   "status",
			Message: "cannot complete a workflow with blocking activities",
		}
	}
	if err := c.transition(instance.StatusRunning, instance.StatusFinished); err != nil {
		return err
	}
	if c.pendingOutput != nil {
		c.Instance.Output = c.pendingOutput
	}
	return nil
}

// Suspend moves the run from Running to Suspended. Only valid while the
// blocking set is non-empty.
func (c *WorkflowExecutionContext) Suspend() error {
	if len(c.Instance.BlockingActivities) == 0 {
		return &errors.ValidationError{
			Field:   "status",
			Message: "cannot suspend a workflow with no blocking activities",
		}
	}
	return c.transition(instance.StatusRunning, instance.StatusSuspended)
}

// Cancel moves the run to Cancelled from any non-terminal status.
func (c *WorkflowExecutionContext) Cancel() {
	if c.Instance.Status.IsTerminal() {
		return
	}
	c.Instance.Status = instance.StatusCancelled
}

// Fault records the failure on the instance and moves the run to Faulted.
func (c *WorkflowExecutionContext) Fault(activityID string, err error) {
	message := "unknown failure"
	if err != nil {
		message = err.Error()
	}
	f := instance.Fault{
		ActivityID: activityID,
		Message:    message,
		FaultedAt:  time.Now(),
	}
	c.fault = &f
	c.Instance.Faults = append(c.Instance.Faults, f)
	c.Instance.Status = instance.StatusFaulted
}

// CurrentFault returns the fault recorded during this run, if any.
func (c *WorkflowExecutionContext) CurrentFault() *instance.Fault {
	return c.fault
}

// ScheduleActivity appends an activity to the primary queue. An activity id
// may appear multiple times; re-entry is legal.
func (c *WorkflowExecutionContext) ScheduleActivity(activityID string, input interface{}) {
	c.scheduled = append(c.scheduled, instance.ScheduledActivity{ActivityID: activityID, Input: input})
}

// SchedulePostActivity appends an activity to the post-scheduled queue,
// drained once the primary queue empties.
func (c *WorkflowExecutionContext) SchedulePostActivity(activityID string, input interface{}) {
	c.postScheduled = append(c.postScheduled, instance.ScheduledActivity{ActivityID: activityID, Input: input})
}

// PopScheduledActivity removes and returns the head of the primary queue.
func (c *WorkflowExecutionContext) PopScheduledActivity() (instance.ScheduledActivity, error) {
	if len(c.scheduled) == 0 {
		return instance.ScheduledActivity{}, fmt.Errorf("scheduled queue is empty")
	}
	head := c.scheduled[0]
	c.scheduled = c.scheduled[1:]
	return head, nil
}

// SchedulePostActivities moves all post-scheduled items onto the primary queue.
func (c *WorkflowExecutionContext) SchedulePostActivities() {
	c.scheduled = append(c.scheduled, c.postScheduled...)
	c.postScheduled = nil
}

// HasScheduledActivities reports whether the primary queue is non-empty.
func (c *WorkflowExecutionContext) HasScheduledActivities() bool {
	return len(c.scheduled) > 0
}

// HasPostScheduledActivities reports whether the post-scheduled queue is non-empty.
func (c *WorkflowExecutionContext) HasPostScheduledActivities() bool {
	return len(c.postScheduled) > 0
}

// CompletePass is invoked after each dispatch. It exists as a hook for
// embedding contexts; the base implementation does nothing.
func (c *WorkflowExecutionContext) CompletePass() {}

// AddBlockingActivity adds an entry to the blocking set. Adding the same
// activity twice with the same tag is a no-op.
func (c *WorkflowExecutionContext) AddBlockingActivity(activityID, tag string) {
	for _, b := range c.Instance.BlockingActivities {
		if b.ActivityID == activityID && b.Tag == tag {
			return
		}
	}
	c.Instance.BlockingActivities = append(c.Instance.BlockingActivities, instance.BlockingActivity{
		ActivityID: activityID,
		Tag:        tag,
	})
}

// RemoveBlockingActivities removes every blocking entry for the activity id.
func (c *WorkflowExecutionContext) RemoveBlockingActivities(activityID string) {
	kept := c.Instance.BlockingActivities[:0]
	for _, b := range c.Instance.BlockingActivities {
		if b.ActivityID != activityID {
			kept = append(kept, b)
		}
	}
	c.Instance.BlockingActivities = kept
}

// SetVariable sets an instance variable visible to property expressions.
func (c *WorkflowExecutionContext) SetVariable(name string, value interface{}) {
	c.Instance.Variables[name] = value
}

// GetVariable returns an instance variable and whether it exists.
func (c *WorkflowExecutionContext) GetVariable(name string) (interface{}, bool) {
	v, ok := c.Instance.Variables[name]
	return v, ok
}

// SetWorkflowOutput stages the workflow-level output, published onto the
// instance when the run completes.
func (c *WorkflowExecutionContext) SetWorkflowOutput(value interface{}) {
	c.pendingOutput = value
}

// RecordActivityOutput stores an activity's output for expression access.
func (c *WorkflowExecutionContext) RecordActivityOutput(activityID string, output interface{}) {
	c.activityOutputs[activityID] = output
}

// Flush writes the transient queue back onto the instance so it can be
// persisted, and stamps the update time.
func (c *WorkflowExecutionContext) Flush() {
	c.Instance.ScheduledActivities = c.scheduled
	c.Instance.UpdatedAt = time.Now()
}

// EvalContext builds the expression evaluation environment for the given
// activity dispatch: instance variables, the dispatch input, recorded
// activity outputs and the correlation id.
func (c *WorkflowExecutionContext) EvalContext(input interface{}) map[string]interface{} {
	activities := make(map[string]interface{}, len(c.activityOutputs))
	for id, output := range c.activityOutputs {
		activities[id] = map[string]interface{}{"output": output}
	}
	return map[string]interface{}{
		"variables":     c.Instance.Variables,
		"input":         input,
		"activities":    activities,
		"correlationId": c.Instance.CorrelationID,
	}
}

// transition validates and performs a status transition.
func (c *WorkflowExecutionContext) transition(from, to instance.Status) error {
	if c.Instance.Status != from {
		return &errors.ValidationError{
			Field:      "status",
			Message:    fmt.Sprintf("cannot transition from %s to %s", c.Instance.Status, to),
			Suggestion: fmt.Sprintf("workflow must be %s", from),
		}
	}
	c.Instance.Status = to
	return nil
}
