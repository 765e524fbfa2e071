package runtime

import (
	"fmt"

	"github.com/tombee/conduit/pkg/blueprint"
)

// ActivityExecutionContext is the ephemeral per-dispatch state: the
// execution context plus the specific activity blueprint, the dispatch
// input, the resolved properties and the output slot. It is created
// immediately before dispatch and discarded after the result is applied.
type ActivityExecutionContext struct {
	// WorkflowExecutionContext is the owning run context
	WorkflowExecutionContext *WorkflowExecutionContext

	// ActivityBlueprint is the node being dispatched
	ActivityBlueprint *blueprint.ActivityBlueprint

	// Input is the value handed to this dispatch
	Input interface{}

	// Output is the slot the activity writes its result into
	Output interface{}

	// Properties are the resolved property values for this dispatch
	Properties map[string]interface{}

	scope Scope
}

// NewActivityExecutionContext builds the context for one dispatch.
func NewActivityExecutionContext(wfCtx *WorkflowExecutionContext, scope Scope, actBP *blueprint.ActivityBlueprint, input interface{}) *ActivityExecutionContext {
	return &ActivityExecutionContext{
		WorkflowExecutionContext: wfCtx,
		ActivityBlueprint:        actBP,
		Input:                    input,
		Properties:               make(map[string]interface{}),
		scope:                    scope,
	}
}

// Scope returns the dependency-resolution scope for this dispatch.
func (c *ActivityExecutionContext) Scope() Scope {
	return c.scope
}

// SetOutput stores the activity's output value.
func (c *ActivityExecutionContext) SetOutput(value interface{}) {
	c.Output = value
}

// Property returns a resolved property value and whether it exists.
func (c *ActivityExecutionContext) Property(name string) (interface{}, bool) {
	v, ok := c.Properties[name]
	return v, ok
}

// StringProperty returns a resolved property as a string.
// Returns an error if the property is missing or not a string.
func (c *ActivityExecutionContext) StringProperty(name string) (string, error) {
	v, ok := c.Properties[name]
	if !ok {
		return "", fmt.Errorf("property %q not found", name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("property %q is %T, not string", name, v)
	}
	return s, nil
}

// StringPropertyOr returns a resolved string property or the default when
// the property is missing or has the wrong type.
func (c *ActivityExecutionContext) StringPropertyOr(name, defaultVal string) string {
	s, err := c.StringProperty(name)
	if err != nil {
		return defaultVal
	}
	return s
}

// BoolProperty returns a resolved property as a bool.
func (c *ActivityExecutionContext) BoolProperty(name string) (bool, error) {
	v, ok := c.Properties[name]
	if !ok {
		return false, fmt.Errorf("property %q not found", name)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("property %q is %T, not bool", name, v)
	}
	return b, nil
}

// resolveProperties evaluates every property provider on the blueprint and
// stores the results on the context.
func (c *ActivityExecutionContext) resolveProperties() error {
	evalCtx := c.WorkflowExecutionContext.EvalContext(c.Input)
	for name, provider := range c.ActivityBlueprint.Properties {
		value, err := provider.Provide(evalCtx)
		if err != nil {
			return fmt.Errorf("resolving property %q of activity %q: %w", name, c.ActivityBlueprint.ID, err)
		}
		c.Properties[name] = value
	}
	return nil
}
