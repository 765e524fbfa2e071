package instance

import (
	"time"

	"github.com/google/uuid"
)

// Factory creates workflow instances for new runs.
type Factory struct{}

// NewFactory creates a new instance factory.
func NewFactory() *Factory {
	return &Factory{}
}

// Options carry the optional identifiers for a new instance.
type Options struct {
	// CorrelationID ties the instance to an external business key
	CorrelationID string

	// ContextID rehydrates a previously saved workflow context
	ContextID string

	// TenantID scopes the instance in multi-tenant hosts
	TenantID string
}

// Instantiate creates a fresh Idle instance for the given definition id and
// version, seeded with the definition's declared variables.
func (f *Factory) Instantiate(definitionID string, version int, variables map[string]interface{}, opts Options) *WorkflowInstance {
	vars := make(map[string]interface{}, len(variables))
	for k, v := range variables {
		vars[k] = v
	}

	now := time.Now()
	return &WorkflowInstance{
		ID:                   uuid.NewString(),
		WorkflowDefinitionID: definitionID,
		Version:              version,
		TenantID:             opts.TenantID,
		CorrelationID:        opts.CorrelationID,
		ContextID:            opts.ContextID,
		Status:               StatusIdle,
		Variables:            vars,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}
