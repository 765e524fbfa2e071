// Package runtime provides the workflow execution core: the per-run
// execution context, the activity-level scheduler, activity results, the
// context-fidelity policy and the runner that drives a workflow instance
// from start to completion or suspension.
package runtime

import (
	"context"
)

// Activity is implemented by executable activity implementations.
//
// CanExecute guards a dispatch: activities that decline to run (for example
// a signal activity whose signal does not match) return false and the runner
// treats the dispatch as a silent no-op. Execute runs the activity for the
// first time; Resume continues a previously suspended activity. Both return
// an ActivityResult that mutates the execution context when applied.
type Activity interface {
	// CanExecute reports whether the activity is willing to run.
	CanExecute(ctx context.Context, actCtx *ActivityExecutionContext) (bool, error)

	// Execute runs the activity and returns its result.
	Execute(ctx context.Context, actCtx *ActivityExecutionContext) (ActivityResult, error)

	// Resume continues a suspended activity with the resume input.
	Resume(ctx context.Context, actCtx *ActivityExecutionContext) (ActivityResult, error)
}

// ActivityBase provides default behavior for activity implementations:
// always willing to execute, and resuming completes along the default "Done"
// outcome. It provides no Execute; embed it, implement Execute, and override
// what else the activity needs.
type ActivityBase struct{}

// CanExecute reports true by default.
func (ActivityBase) CanExecute(ctx context.Context, actCtx *ActivityExecutionContext) (bool, error) {
	return true, nil
}

// Resume completes with the default outcome by default. Blocking activities
// override this to interpret the resume input.
func (ActivityBase) Resume(ctx context.Context, actCtx *ActivityExecutionContext) (ActivityResult, error) {
	return Done(), nil
}
