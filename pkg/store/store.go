// Package store provides persistence for workflow instances.
//
// The runtime never persists instances itself; hosts load an instance,
// invoke the runner, and write the mutated instance back through a Store.
// The store is the serialization point between concurrent runs.
package store

import (
	"context"

	"github.com/tombee/conduit/pkg/instance"
)

// Store defines the interface for workflow instance persistence.
// Implementations must be safe for concurrent use.
type Store interface {
	// Create creates a new instance.
	Create(ctx context.Context, inst *instance.WorkflowInstance) error

	// Get retrieves an instance by ID.
	Get(ctx context.Context, id string) (*instance.WorkflowInstance, error)

	// Update updates an existing instance.
	Update(ctx context.Context, inst *instance.WorkflowInstance) error

	// Delete deletes an instance by ID.
	Delete(ctx context.Context, id string) error

	// List returns all instances matching the query.
	List(ctx context.Context, query *Query) ([]*instance.WorkflowInstance, error)

	// CountByDefinition counts instances pinned to a definition version.
	CountByDefinition(ctx context.Context, definitionID string, version int) (int, error)
}

// Query defines query parameters for listing instances.
type Query struct {
	// Status filters by lifecycle status
	Status *instance.Status

	// DefinitionID filters by workflow definition
	DefinitionID string

	// CorrelationID filters by business correlation key
	CorrelationID string

	// Limit caps the number of results (0 = no limit)
	Limit int

	// Offset skips results for pagination
	Offset int
}

// matchesQuery checks if an instance matches the query criteria.
func matchesQuery(inst *instance.WorkflowInstance, query *Query) bool {
	if query == nil {
		return true
	}
	if query.Status != nil && inst.Status != *query.Status {
		return false
	}
	if query.DefinitionID != "" && inst.WorkflowDefinitionID != query.DefinitionID {
		return false
	}
	if query.CorrelationID != "" && inst.CorrelationID != query.CorrelationID {
		return false
	}
	return true
}
