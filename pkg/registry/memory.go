package registry

import (
	"context"
	"sync"

	"github.com/tombee/conduit/pkg/definition"
)

// MemoryProvider is an in-memory workflow provider, suitable for tests and
// hosts that register their definitions in code. Safe for concurrent use.
type MemoryProvider struct {
	mu   sync.RWMutex
	defs []*definition.WorkflowDefinition
}

// NewMemoryProvider creates a provider seeded with the given definitions.
func NewMemoryProvider(defs ...*definition.WorkflowDefinition) *MemoryProvider {
	return &MemoryProvider{defs: defs}
}

// Add registers another definition.
func (p *MemoryProvider) Add(def *definition.WorkflowDefinition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.defs = append(p.defs, def)
}

// List returns the provider's current definitions.
func (p *MemoryProvider) List(ctx context.Context) ([]*definition.WorkflowDefinition, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	defs := make([]*definition.WorkflowDefinition, len(p.defs))
	copy(defs, p.defs)
	return defs, nil
}
