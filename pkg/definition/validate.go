package definition

import (
	"fmt"

	"github.com/tombee/conduit/pkg/errors"
)

// Validate checks the definition for structural errors: missing ids,
// duplicate activity ids within a scope, and connections naming unknown
// endpoints. Validation recurses into composite activities; each composite
// forms its own scope for id uniqueness and connection resolution.
func (d *WorkflowDefinition) Validate() error {
	if d.ID == "" {
		return &errors.ValidationError{
			Field:      "id",
			Message:    "workflow definition id is required",
			Suggestion: "set a stable id so instances can reference this definition",
		}
	}
	if len(d.Activities) == 0 {
		return &errors.ValidationError{
			Field:      "activities",
			Message:    "workflow must declare at least one activity",
			Suggestion: "add an activities list to the definition",
		}
	}
	if d.ContextOptions != nil {
		switch d.ContextOptions.Fidelity {
		case "", FidelityBurst, FidelityActivity:
		default:
			return &errors.ValidationError{
				Field:      "contextOptions.fidelity",
				Message:    fmt.Sprintf("unknown fidelity %q", d.ContextOptions.Fidelity),
				Suggestion: `use "burst" or "activity"`,
			}
		}
	}

	return validateScope("", d.Activities, d.Connections)
}

// validateScope checks one composite scope: activity ids unique, connection
// endpoints resolvable, properties well-formed. scope is the enclosing
// composite's activity id, empty for the root.
func validateScope(scope string, activities []ActivityDefinition, connections []ConnectionDefinition) error {
	seen := make(map[string]bool, len(activities))
	for i := range activities {
		act := &activities[i]
		if act.ActivityID == "" {
			return &errors.ValidationError{
				Field:      scopedField(scope, "activities"),
				Message:    "activity is missing an activityId",
				Suggestion: "give every activity a unique activityId",
			}
		}
		if act.Type == "" {
			return &errors.ValidationError{
				Field:      scopedField(scope, "activities."+act.ActivityID),
				Message:    "activity is missing a type",
				Suggestion: "set the type to a registered activity implementation",
			}
		}
		if seen[act.ActivityID] {
			return &errors.ValidationError{
				Field:      scopedField(scope, "activities"),
				Message:    fmt.Sprintf("duplicate activity id %q", act.ActivityID),
				Suggestion: "activity ids must be unique within their composite scope",
			}
		}
		seen[act.ActivityID] = true

		for name, prop := range act.Properties {
			switch prop.Syntax {
			case "", "literal", "expr":
			default:
				return &errors.ValidationError{
					Field:      scopedField(scope, "activities."+act.ActivityID+".properties."+name),
					Message:    fmt.Sprintf("unknown property syntax %q", prop.Syntax),
					Suggestion: `use "literal" or "expr"`,
				}
			}
		}

		if act.IsComposite() {
			if err := validateScope(act.ActivityID, act.Activities, act.Connections); err != nil {
				return err
			}
		}
	}

	for _, conn := range connections {
		if conn.Outcome == "" {
			return &errors.ValidationError{
				Field:      scopedField(scope, "connections"),
				Message:    fmt.Sprintf("connection %s -> %s has no outcome", conn.SourceActivityID, conn.TargetActivityID),
				Suggestion: "label every connection with the outcome it listens on",
			}
		}
		if !seen[conn.SourceActivityID] {
			return &errors.ValidationError{
				Field:      scopedField(scope, "connections"),
				Message:    fmt.Sprintf("connection references unknown source activity %q", conn.SourceActivityID),
				Suggestion: "connection endpoints must name activities in the same scope",
			}
		}
		if !seen[conn.TargetActivityID] {
			return &errors.ValidationError{
				Field:      scopedField(scope, "connections"),
				Message:    fmt.Sprintf("connection references unknown target activity %q", conn.TargetActivityID),
				Suggestion: "connection endpoints must name activities in the same scope",
			}
		}
	}

	return nil
}

func scopedField(scope, field string) string {
	if scope == "" {
		return field
	}
	return scope + "." + field
}
