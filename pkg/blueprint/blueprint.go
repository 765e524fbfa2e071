// Package blueprint provides the immutable executable form of a workflow.
//
// A blueprint is materialized from a serialized definition: activities are
// indexed by id, connections hold direct references to their endpoint
// blueprints, and every declared property becomes a provider that evaluates
// its expression against the state of the running instance at dispatch time.
// Composite activities carry their own nested activity index and connections;
// the outer graph sees a composite as a single node.
package blueprint

import (
	"github.com/tombee/conduit/pkg/definition"
)

// ResolveFunc produces an activity implementation by type name.
// It is supplied by the runtime's scoped service provider.
type ResolveFunc func(typeName string) (interface{}, error)

// ActivityFactory instantiates the activity implementation for a blueprint
// node. The default factory closes over the declared type name and delegates
// to the resolver; hosts may swap in custom factories for testing.
type ActivityFactory func(resolve ResolveFunc) (interface{}, error)

// ActivityBlueprint is the executable form of one activity node.
type ActivityBlueprint struct {
	// ID is the activity id, unique within its composite scope
	ID string

	// Type names the activity implementation
	Type string

	// Name is the optional machine name from the definition
	Name string

	// DisplayName is the human-facing name from the definition
	DisplayName string

	// PersistWorkflow requests persistence after this activity executes
	PersistWorkflow bool

	// Factory instantiates the activity implementation
	Factory ActivityFactory

	// Properties map property names to their providers
	Properties map[string]*PropertyProvider

	// Activities index the nested nodes of a composite activity by id.
	// Nil for leaf activities.
	Activities map[string]*ActivityBlueprint

	// Connections are the nested edges of a composite activity.
	// Nil for leaf activities.
	Connections []*Connection
}

// IsComposite reports whether this blueprint carries a nested sub-graph.
func (a *ActivityBlueprint) IsComposite() bool {
	return len(a.Activities) > 0
}

// Connection is one outcome-labeled edge with direct endpoint references.
type Connection struct {
	// Source is the activity emitting the outcome
	Source *ActivityBlueprint

	// Target is the activity scheduled when the outcome fires
	Target *ActivityBlueprint

	// Outcome is the named exit channel this edge listens on
	Outcome string
}

// Blueprint is the immutable executable form of a whole workflow.
type Blueprint struct {
	// ID is the workflow definition id
	ID string

	// Version is the definition version this blueprint was materialized from
	Version int

	// Name is the workflow name
	Name string

	// Description is the workflow description
	Description string

	// IsSingleton marks the workflow as single-instance; the runtime does not
	// limit how many instances run
	IsSingleton bool

	// IsEnabled marks the definition as enabled; registry listings skip
	// disabled definitions, and the runner does not check it
	IsEnabled bool

	// IsLatest marks the newest version of the definition
	IsLatest bool

	// IsPublished marks the version as visible to listing
	IsPublished bool

	// IsDisabled is set by settings subscribers at listing time; disabled
	// blueprints are skipped by registry listings
	IsDisabled bool

	// Variables seed instance variables on first run
	Variables map[string]interface{}

	// ContextOptions configure the workflow-context fidelity policy
	ContextOptions *definition.ContextOptions

	// PersistenceBehavior hints when the host should persist instances
	PersistenceBehavior definition.PersistenceBehavior

	// DeleteCompletedInstances flags finished instances for deletion; the
	// runtime and stores do not delete them
	DeleteCompletedInstances bool

	// Activities index the root-scope activity blueprints by id
	Activities map[string]*ActivityBlueprint

	// Connections are the root-scope edges
	Connections []*Connection

	// order preserves the declaration order of root activities
	order []string
}

// GetActivity returns the root-scope activity blueprint with the given id,
// or nil if no such activity exists.
func (b *Blueprint) GetActivity(id string) *ActivityBlueprint {
	return b.Activities[id]
}

// Fidelity returns the effective context fidelity for this blueprint.
// Absent context options mean burst fidelity with no context payload.
func (b *Blueprint) Fidelity() definition.Fidelity {
	if b.ContextOptions == nil || b.ContextOptions.Fidelity == "" {
		return definition.FidelityBurst
	}
	return b.ContextOptions.Fidelity
}

// HasContext reports whether the workflow declares a user context payload.
func (b *Blueprint) HasContext() bool {
	return b.ContextOptions != nil && b.ContextOptions.Type != ""
}

// StartActivity resolves the activity a run should begin with: the first
// declared activity that is never the target of any root connection, falling
// back to the first declared activity.
func (b *Blueprint) StartActivity() *ActivityBlueprint {
	targets := make(map[string]bool, len(b.Connections))
	for _, conn := range b.Connections {
		targets[conn.Target.ID] = true
	}
	for _, id := range b.order {
		if !targets[id] {
			return b.Activities[id]
		}
	}
	if len(b.order) > 0 {
		return b.Activities[b.order[0]]
	}
	return nil
}

// ActivityIDs returns the root-scope activity ids in declaration order.
func (b *Blueprint) ActivityIDs() []string {
	ids := make([]string, len(b.order))
	copy(ids, b.order)
	return ids
}

// OutboundConnections returns the root connections leaving the given
// activity along the named outcome, in declaration order.
func (b *Blueprint) OutboundConnections(activityID, outcome string) []*Connection {
	var conns []*Connection
	for _, conn := range b.Connections {
		if conn.Source.ID == activityID && conn.Outcome == outcome {
			conns = append(conns, conn)
		}
	}
	return conns
}
