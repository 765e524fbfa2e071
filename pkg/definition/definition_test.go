package definition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/conduit/pkg/errors"
)

const linearYAML = `
id: order-flow
version: 2
name: order-flow
isEnabled: true
isPublished: true
variables:
  region: eu-west-1
contextOptions:
  type: OrderContext
activities:
  - activityId: receive
    type: signal
    displayName: Receive order
    properties:
      signal:
        expression: order-received
  - activityId: confirm
    type: script
    properties:
      outcome:
        expression: '"Done"'
        syntax: expr
connections:
  - sourceActivityId: receive
    targetActivityId: confirm
    outcome: Done
`

func TestParseLinearDefinition(t *testing.T) {
	def, err := Parse([]byte(linearYAML))
	require.NoError(t, err)

	assert.Equal(t, "order-flow", def.ID)
	assert.Equal(t, 2, def.Version)
	assert.True(t, def.IsEnabled)
	assert.Equal(t, "eu-west-1", def.Variables["region"])
	require.Len(t, def.Activities, 2)
	require.Len(t, def.Connections, 1)
	assert.Equal(t, "Done", def.Connections[0].Outcome)

	// Fidelity defaults to burst when contextOptions are present
	require.NotNil(t, def.ContextOptions)
	assert.Equal(t, FidelityBurst, def.ContextOptions.Fidelity)

	// Property syntax defaults to literal
	assert.Equal(t, "literal", def.Activities[0].Properties["signal"].Syntax)
	assert.Equal(t, "expr", def.Activities[1].Properties["outcome"].Syntax)
}

func TestParseDefaultsVersion(t *testing.T) {
	def, err := Parse([]byte(`
id: wf
isEnabled: true
activities:
  - activityId: a
    type: script
`))
	require.NoError(t, err)
	assert.Equal(t, 1, def.Version)
}

func TestParseInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("{broken"))
	require.Error(t, err)

	var vErr *errors.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "definition", vErr.Field)
}

func TestValidate(t *testing.T) {
	base := func() *WorkflowDefinition {
		return &WorkflowDefinition{
			ID:      "wf",
			Version: 1,
			Activities: []ActivityDefinition{
				{ActivityID: "a", Type: "script"},
				{ActivityID: "b", Type: "script"},
			},
			Connections: []ConnectionDefinition{
				{SourceActivityID: "a", TargetActivityID: "b", Outcome: "Done"},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*WorkflowDefinition)
		wantMsg string
	}{
		{"valid", func(d *WorkflowDefinition) {}, ""},
		{
			"missing id",
			func(d *WorkflowDefinition) { d.ID = "" },
			"id is required",
		},
		{
			"no activities",
			func(d *WorkflowDefinition) { d.Activities = nil },
			"at least one activity",
		},
		{
			"duplicate activity id",
			func(d *WorkflowDefinition) { d.Activities[1].ActivityID = "a" },
			"duplicate activity id",
		},
		{
			"missing activity type",
			func(d *WorkflowDefinition) { d.Activities[0].Type = "" },
			"missing a type",
		},
		{
			"unknown connection source",
			func(d *WorkflowDefinition) { d.Connections[0].SourceActivityID = "zz" },
			"unknown source activity",
		},
		{
			"unknown connection target",
			func(d *WorkflowDefinition) { d.Connections[0].TargetActivityID = "zz" },
			"unknown target activity",
		},
		{
			"connection without outcome",
			func(d *WorkflowDefinition) { d.Connections[0].Outcome = "" },
			"has no outcome",
		},
		{
			"bad fidelity",
			func(d *WorkflowDefinition) {
				d.ContextOptions = &ContextOptions{Fidelity: "sometimes"}
			},
			"unknown fidelity",
		},
		{
			"bad property syntax",
			func(d *WorkflowDefinition) {
				d.Activities[0].Properties = map[string]PropertyDefinition{
					"p": {Expression: "x", Syntax: "jsonpath"},
				}
			},
			"unknown property syntax",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := base()
			tt.mutate(def)
			err := def.Validate()
			if tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestValidateCompositeScopes(t *testing.T) {
	def := &WorkflowDefinition{
		ID:      "wf",
		Version: 1,
		Activities: []ActivityDefinition{
			{
				ActivityID: "outer",
				Type:       "sequence",
				Activities: []ActivityDefinition{
					{ActivityID: "inner-a", Type: "script"},
					{ActivityID: "inner-b", Type: "script"},
				},
				Connections: []ConnectionDefinition{
					{SourceActivityID: "inner-a", TargetActivityID: "inner-b", Outcome: "Done"},
				},
			},
		},
	}
	require.NoError(t, def.Validate())

	// An outer connection may not reach into the composite scope
	def.Activities = append(def.Activities, ActivityDefinition{ActivityID: "sibling", Type: "script"})
	def.Connections = []ConnectionDefinition{
		{SourceActivityID: "sibling", TargetActivityID: "inner-a", Outcome: "Done"},
	}
	err := def.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown target activity")

	// Nested duplicate ids are caught inside the composite scope
	def.Connections = nil
	def.Activities[0].Activities[1].ActivityID = "inner-a"
	err = def.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate activity id")
}

func TestIsComposite(t *testing.T) {
	leaf := ActivityDefinition{ActivityID: "a", Type: "script"}
	assert.False(t, leaf.IsComposite())

	composite := ActivityDefinition{
		ActivityID: "c",
		Type:       "sequence",
		Activities: []ActivityDefinition{leaf},
	}
	assert.True(t, composite.IsComposite())
}
