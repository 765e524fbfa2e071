package definition

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tombee/conduit/pkg/errors"
)

// Parse parses a workflow definition from YAML (or JSON, which YAML accepts).
// The parsed definition is validated before being returned.
func Parse(data []byte) (*WorkflowDefinition, error) {
	var def WorkflowDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, &errors.ValidationError{
			Field:      "definition",
			Message:    "failed to parse workflow definition: " + err.Error(),
			Suggestion: "check the YAML syntax of the definition file",
		}
	}

	applyDefaults(&def)

	if err := def.Validate(); err != nil {
		return nil, err
	}

	return &def, nil
}

// ParseFile loads and parses a workflow definition from a file path.
func ParseFile(path string) (*WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading workflow definition %s", path)
	}
	return Parse(data)
}

// applyDefaults fills in optional fields with their documented defaults.
func applyDefaults(def *WorkflowDefinition) {
	if def.Version == 0 {
		def.Version = 1
	}
	if def.ContextOptions != nil && def.ContextOptions.Fidelity == "" {
		def.ContextOptions.Fidelity = FidelityBurst
	}
	for i := range def.Activities {
		applyActivityDefaults(&def.Activities[i])
	}
}

func applyActivityDefaults(act *ActivityDefinition) {
	for name, prop := range act.Properties {
		if prop.Syntax == "" {
			prop.Syntax = "literal"
			act.Properties[name] = prop
		}
	}
	for i := range act.Activities {
		applyActivityDefaults(&act.Activities[i])
	}
}
