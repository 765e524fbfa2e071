package blueprint

import (
	"fmt"

	"github.com/tombee/conduit/pkg/definition"
	"github.com/tombee/conduit/pkg/expression"
)

// UnresolvedConnectionError reports a connection naming an unknown endpoint.
// Materialization fails fatally on this error.
type UnresolvedConnectionError struct {
	// Scope is the enclosing composite activity id, empty for the root
	Scope string

	// ActivityID is the endpoint that could not be resolved
	ActivityID string

	// Outcome is the edge's outcome label
	Outcome string
}

// Error implements the error interface.
func (e *UnresolvedConnectionError) Error() string {
	if e.Scope != "" {
		return fmt.Sprintf("unresolved connection endpoint %q (outcome %q) in composite %q", e.ActivityID, e.Outcome, e.Scope)
	}
	return fmt.Sprintf("unresolved connection endpoint %q (outcome %q)", e.ActivityID, e.Outcome)
}

// DuplicateActivityError reports two activities sharing an id in one scope.
// Materialization fails fatally on this error.
type DuplicateActivityError struct {
	// Scope is the enclosing composite activity id, empty for the root
	Scope string

	// ActivityID is the duplicated id
	ActivityID string
}

// Error implements the error interface.
func (e *DuplicateActivityError) Error() string {
	if e.Scope != "" {
		return fmt.Sprintf("duplicate activity id %q in composite %q", e.ActivityID, e.Scope)
	}
	return fmt.Sprintf("duplicate activity id %q", e.ActivityID)
}

// Materializer converts serialized workflow definitions into executable
// blueprints. Safe for concurrent use; materialization is deterministic.
type Materializer struct {
	eval *expression.Evaluator
}

// NewMaterializer creates a materializer backed by the given evaluator.
// A nil evaluator gets a fresh one.
func NewMaterializer(eval *expression.Evaluator) *Materializer {
	if eval == nil {
		eval = expression.New()
	}
	return &Materializer{eval: eval}
}

// Materialize converts a definition into a blueprint. It is total on
// well-formed input; duplicate ids and dangling connection endpoints are
// fatal. Composite activities are materialized recursively: their nested
// activities and connections live on the composite's own blueprint and are
// invisible to outer-scope connection resolution.
func (m *Materializer) Materialize(def *definition.WorkflowDefinition) (*Blueprint, error) {
	activities, order, err := m.materializeScope("", def.Activities)
	if err != nil {
		return nil, err
	}

	connections, err := wireConnections("", def.Connections, activities)
	if err != nil {
		return nil, err
	}

	vars := make(map[string]interface{}, len(def.Variables))
	for k, v := range def.Variables {
		vars[k] = v
	}

	return &Blueprint{
		ID:                       def.ID,
		Version:                  def.Version,
		Name:                     def.Name,
		Description:              def.Description,
		IsSingleton:              def.IsSingleton,
		IsEnabled:                def.IsEnabled,
		IsLatest:                 def.IsLatest,
		IsPublished:              def.IsPublished,
		Variables:                vars,
		ContextOptions:           def.ContextOptions,
		PersistenceBehavior:      def.PersistenceBehavior,
		DeleteCompletedInstances: def.DeleteCompletedInstances,
		Activities:               activities,
		Connections:              connections,
		order:                    order,
	}, nil
}

// materializeScope builds the activity index for one composite scope,
// recursing into nested composites. Activities are materialized first into
// the by-id index; connections are wired afterwards so they can hold direct
// references into that index.
func (m *Materializer) materializeScope(scope string, defs []definition.ActivityDefinition) (map[string]*ActivityBlueprint, []string, error) {
	activities := make(map[string]*ActivityBlueprint, len(defs))
	order := make([]string, 0, len(defs))

	for i := range defs {
		actDef := &defs[i]
		if _, exists := activities[actDef.ActivityID]; exists {
			return nil, nil, &DuplicateActivityError{Scope: scope, ActivityID: actDef.ActivityID}
		}

		bp := &ActivityBlueprint{
			ID:              actDef.ActivityID,
			Type:            actDef.Type,
			Name:            actDef.Name,
			DisplayName:     actDef.DisplayName,
			PersistWorkflow: actDef.PersistWorkflow,
			Factory:         defaultFactory(actDef.Type),
			Properties:      make(map[string]*PropertyProvider, len(actDef.Properties)),
		}

		for name, prop := range actDef.Properties {
			bp.Properties[name] = newPropertyProvider(name, prop, m.eval)
		}

		if actDef.IsComposite() {
			nested, _, err := m.materializeScope(actDef.ActivityID, actDef.Activities)
			if err != nil {
				return nil, nil, err
			}
			nestedConns, err := wireConnections(actDef.ActivityID, actDef.Connections, nested)
			if err != nil {
				return nil, nil, err
			}
			bp.Activities = nested
			bp.Connections = nestedConns
		}

		activities[actDef.ActivityID] = bp
		order = append(order, actDef.ActivityID)
	}

	return activities, order, nil
}

// wireConnections re-wires serialized connections into records holding
// direct references to the endpoint blueprints of the same scope.
func wireConnections(scope string, defs []definition.ConnectionDefinition, activities map[string]*ActivityBlueprint) ([]*Connection, error) {
	connections := make([]*Connection, 0, len(defs))
	for _, connDef := range defs {
		source, ok := activities[connDef.SourceActivityID]
		if !ok {
			return nil, &UnresolvedConnectionError{Scope: scope, ActivityID: connDef.SourceActivityID, Outcome: connDef.Outcome}
		}
		target, ok := activities[connDef.TargetActivityID]
		if !ok {
			return nil, &UnresolvedConnectionError{Scope: scope, ActivityID: connDef.TargetActivityID, Outcome: connDef.Outcome}
		}
		connections = append(connections, &Connection{
			Source:  source,
			Target:  target,
			Outcome: connDef.Outcome,
		})
	}
	return connections, nil
}

// defaultFactory closes over the declared type name and delegates activity
// instantiation to the runtime's resolver.
func defaultFactory(typeName string) ActivityFactory {
	return func(resolve ResolveFunc) (interface{}, error) {
		return resolve(typeName)
	}
}
