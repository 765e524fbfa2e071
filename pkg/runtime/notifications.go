package runtime

// Notification names published by the runtime. Subscribers register with
// the mediator under these names.
const (
	NotificationActivityExecuting = "ActivityExecuting"
	NotificationActivityExecuted  = "ActivityExecuted"
	NotificationWorkflowExecuted  = "WorkflowExecuted"
	NotificationWorkflowCancelled = "WorkflowCancelled"
	NotificationWorkflowCompleted = "WorkflowCompleted"
	NotificationWorkflowFaulted   = "WorkflowFaulted"
	NotificationWorkflowSuspended = "WorkflowSuspended"
)

// ActivityExecuting is published immediately before an activity's result is
// applied to the execution context. Subscribers may inspect but must not
// mutate the contexts it carries.
type ActivityExecuting struct {
	WorkflowExecutionContext *WorkflowExecutionContext
	ActivityExecutionContext *ActivityExecutionContext
}

// NotificationName implements events.Notification.
func (ActivityExecuting) NotificationName() string { return NotificationActivityExecuting }

// ActivityExecuted is published after an activity's result has been applied.
// Exactly one ActivityExecuted is published per ActivityExecuting.
type ActivityExecuted struct {
	WorkflowExecutionContext *WorkflowExecutionContext
	ActivityExecutionContext *ActivityExecutionContext
}

// NotificationName implements events.Notification.
func (ActivityExecuted) NotificationName() string { return NotificationActivityExecuted }

// WorkflowExecuted is published once at the end of every run that started,
// before any terminal status notification.
type WorkflowExecuted struct {
	WorkflowExecutionContext *WorkflowExecutionContext
}

// NotificationName implements events.Notification.
func (WorkflowExecuted) NotificationName() string { return NotificationWorkflowExecuted }

// WorkflowCancelled is published when a run ends Cancelled.
type WorkflowCancelled struct {
	WorkflowExecutionContext *WorkflowExecutionContext
}

// NotificationName implements events.Notification.
func (WorkflowCancelled) NotificationName() string { return NotificationWorkflowCancelled }

// WorkflowCompleted is published when a run ends Finished.
type WorkflowCompleted struct {
	WorkflowExecutionContext *WorkflowExecutionContext
}

// NotificationName implements events.Notification.
func (WorkflowCompleted) NotificationName() string { return NotificationWorkflowCompleted }

// WorkflowFaulted is published when a run ends Faulted.
type WorkflowFaulted struct {
	WorkflowExecutionContext *WorkflowExecutionContext
}

// NotificationName implements events.Notification.
func (WorkflowFaulted) NotificationName() string { return NotificationWorkflowFaulted }

// WorkflowSuspended is published when a run ends Suspended.
type WorkflowSuspended struct {
	WorkflowExecutionContext *WorkflowExecutionContext
}

// NotificationName implements events.Notification.
func (WorkflowSuspended) NotificationName() string { return NotificationWorkflowSuspended }
