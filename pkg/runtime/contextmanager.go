package runtime

import (
	"context"

	"github.com/tombee/conduit/pkg/blueprint"
	"github.com/tombee/conduit/pkg/instance"
)

// WorkflowContextManager loads and saves the caller-supplied workflow
// context payload tied to an instance via its contextId. The runner
// cooperates with the blueprint's fidelity policy: burst fidelity loads
// once before the drain loop and saves once after; activity fidelity loads
// and saves around every dispatch.
//
// Implementations must be safe for concurrent use by multiple runner
// invocations.
type WorkflowContextManager interface {
	// LoadContext loads the context value referenced by the instance's
	// contextId. Not called when the contextId is empty.
	LoadContext(ctx context.Context, bp *blueprint.Blueprint, inst *instance.WorkflowInstance) (interface{}, error)

	// SaveContext persists the execution context's workflow-context value
	// and returns the contextId under which it was stored.
	SaveContext(ctx context.Context, wfCtx *WorkflowExecutionContext) (string, error)
}

// loadWorkflowContext loads the workflow context onto the execution context.
// Absent context options, a missing manager or an empty contextId all skip
// the load. A load failure is reported to the caller for logging; the run
// continues with a nil workflow context.
func loadWorkflowContext(ctx context.Context, manager WorkflowContextManager, wfCtx *WorkflowExecutionContext) error {
	if manager == nil || !wfCtx.Blueprint.HasContext() || wfCtx.Instance.ContextID == "" {
		return nil
	}
	value, err := manager.LoadContext(ctx, wfCtx.Blueprint, wfCtx.Instance)
	if err != nil {
		wfCtx.WorkflowContext = nil
		return err
	}
	wfCtx.WorkflowContext = value
	return nil
}

// saveWorkflowContext saves the workflow context and records the returned
// contextId on the instance. A save failure is reported for logging; the
// previous contextId is retained.
func saveWorkflowContext(ctx context.Context, manager WorkflowContextManager, wfCtx *WorkflowExecutionContext) error {
	if manager == nil || !wfCtx.Blueprint.HasContext() {
		return nil
	}
	contextID, err := manager.SaveContext(ctx, wfCtx)
	if err != nil {
		return err
	}
	wfCtx.Instance.ContextID = contextID
	return nil
}
