// Package activities provides the small built-in activity set the CLI uses
// to run workflow definitions end to end. Hosts embedding the runtime
// register their own catalogs alongside or instead of these.
package activities

import (
	"context"

	"github.com/tombee/conduit/pkg/runtime"
)

// Register adds the built-in activity types to the registry.
func Register(registry *runtime.ActivityRegistry) {
	registry.Register("script", func() runtime.Activity { return &Script{} })
	registry.Register("signal", func() runtime.Activity { return &Signal{} })
	registry.Register("setVariable", func() runtime.Activity { return &SetVariable{} })
}

// Script completes along a configurable outcome and optionally stages an
// output value. Properties:
//   - outcome: the outcome name to emit (default "Done")
//   - output: value stored as the activity's output
type Script struct {
	runtime.ActivityBase
}

// Execute emits the configured outcome.
func (a *Script) Execute(ctx context.Context, actCtx *runtime.ActivityExecutionContext) (runtime.ActivityResult, error) {
	if output, ok := actCtx.Property("output"); ok {
		actCtx.SetOutput(output)
		actCtx.WorkflowExecutionContext.SetWorkflowOutput(output)
	}
	outcome := actCtx.StringPropertyOr("outcome", "")
	if outcome == "" {
		return runtime.Done(), nil
	}
	return runtime.Outcomes(outcome), nil
}

// Signal suspends the workflow until an external signal resumes it.
// Properties:
//   - signal: the signal name this activity waits for
//
// On resume, the activity only proceeds when the resume input equals the
// configured signal name (or no signal is configured); otherwise the
// dispatch is declined and the workflow stays suspended.
type Signal struct {
	runtime.ActivityBase
}

// CanExecute declines a resume whose input does not match the configured
// signal. Initial execution is always allowed.
func (a *Signal) CanExecute(ctx context.Context, actCtx *runtime.ActivityExecutionContext) (bool, error) {
	if !actCtx.WorkflowExecutionContext.Instance.IsBlockedOn(actCtx.ActivityBlueprint.ID) {
		return true, nil
	}
	expected := actCtx.StringPropertyOr("signal", "")
	if expected == "" {
		return true, nil
	}
	received, _ := actCtx.Input.(string)
	return received == expected, nil
}

// Execute suspends the workflow, tagging the blocking entry with the
// awaited signal name.
func (a *Signal) Execute(ctx context.Context, actCtx *runtime.ActivityExecutionContext) (runtime.ActivityResult, error) {
	return runtime.Suspend(actCtx.StringPropertyOr("signal", "")), nil
}

// Resume completes with the signal payload as output.
func (a *Signal) Resume(ctx context.Context, actCtx *runtime.ActivityExecutionContext) (runtime.ActivityResult, error) {
	actCtx.SetOutput(actCtx.Input)
	return runtime.Done(), nil
}

// SetVariable writes a value into the instance variables. Properties:
//   - name: the variable name
//   - value: the value to store
type SetVariable struct {
	runtime.ActivityBase
}

// Execute stores the variable and completes.
func (a *SetVariable) Execute(ctx context.Context, actCtx *runtime.ActivityExecutionContext) (runtime.ActivityResult, error) {
	name, err := actCtx.StringProperty("name")
	if err != nil {
		return nil, err
	}
	value, _ := actCtx.Property("value")
	actCtx.WorkflowExecutionContext.SetVariable(name, value)
	return runtime.Done(), nil
}
