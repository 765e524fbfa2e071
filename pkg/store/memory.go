package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tombee/conduit/pkg/errors"
	"github.com/tombee/conduit/pkg/instance"
)

// MemoryStore is an in-memory implementation of Store.
// It is thread-safe and suitable for testing or single-process hosts.
type MemoryStore struct {
	mu        sync.RWMutex
	instances map[string]*instance.WorkflowInstance
}

// NewMemoryStore creates a new in-memory instance store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		instances: make(map[string]*instance.WorkflowInstance),
	}
}

// Create creates a new instance.
func (s *MemoryStore) Create(ctx context.Context, inst *instance.WorkflowInstance) error {
	if inst == nil {
		return &errors.ValidationError{Field: "instance", Message: "instance cannot be nil"}
	}
	if inst.ID == "" {
		return &errors.ValidationError{Field: "id", Message: "instance ID cannot be empty"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.instances[inst.ID]; exists {
		return &errors.ValidationError{
			Field:      "id",
			Message:    fmt.Sprintf("instance with ID %s already exists", inst.ID),
			Suggestion: "use a unique instance ID or call Update instead",
		}
	}

	now := time.Now()
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = now
	}
	if inst.UpdatedAt.IsZero() {
		inst.UpdatedAt = now
	}
	if inst.Status == "" {
		inst.Status = instance.StatusIdle
	}

	s.instances[inst.ID] = copyInstance(inst)
	return nil
}

// Get retrieves an instance by ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (*instance.WorkflowInstance, error) {
	if id == "" {
		return nil, &errors.ValidationError{Field: "id", Message: "instance ID cannot be empty"}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, exists := s.instances[id]
	if !exists {
		return nil, &errors.NotFoundError{Resource: "instance", ID: id}
	}
	return copyInstance(inst), nil
}

// Update updates an existing instance.
func (s *MemoryStore) Update(ctx context.Context, inst *instance.WorkflowInstance) error {
	if inst == nil {
		return &errors.ValidationError{Field: "instance", Message: "instance cannot be nil"}
	}
	if inst.ID == "" {
		return &errors.ValidationError{Field: "id", Message: "instance ID cannot be empty"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.instances[inst.ID]; !exists {
		return &errors.NotFoundError{Resource: "instance", ID: inst.ID}
	}

	inst.UpdatedAt = time.Now()
	s.instances[inst.ID] = copyInstance(inst)
	return nil
}

// Delete deletes an instance by ID.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return &errors.ValidationError{Field: "id", Message: "instance ID cannot be empty"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.instances[id]; !exists {
		return &errors.NotFoundError{Resource: "instance", ID: id}
	}

	delete(s.instances, id)
	return nil
}

// List returns all instances matching the query, ordered by creation time.
func (s *MemoryStore) List(ctx context.Context, query *Query) ([]*instance.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*instance.WorkflowInstance
	for _, inst := range s.instances {
		if matchesQuery(inst, query) {
			results = append(results, copyInstance(inst))
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.Before(results[j].CreatedAt)
	})

	if query != nil {
		if query.Offset > 0 {
			if query.Offset >= len(results) {
				return []*instance.WorkflowInstance{}, nil
			}
			results = results[query.Offset:]
		}
		if query.Limit > 0 && len(results) > query.Limit {
			results = results[:query.Limit]
		}
	}

	return results, nil
}

// CountByDefinition counts instances pinned to a definition version.
func (s *MemoryStore) CountByDefinition(ctx context.Context, definitionID string, version int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, inst := range s.instances {
		if inst.WorkflowDefinitionID == definitionID && inst.Version == version {
			count++
		}
	}
	return count, nil
}

// copyInstance creates a deep copy of an instance to prevent external
// modification of stored state.
func copyInstance(inst *instance.WorkflowInstance) *instance.WorkflowInstance {
	if inst == nil {
		return nil
	}

	cp := *inst

	if inst.Variables != nil {
		cp.Variables = make(map[string]interface{}, len(inst.Variables))
		for k, v := range inst.Variables {
			cp.Variables[k] = v
		}
	}
	if inst.BlockingActivities != nil {
		cp.BlockingActivities = append([]instance.BlockingActivity(nil), inst.BlockingActivities...)
	}
	if inst.ScheduledActivities != nil {
		cp.ScheduledActivities = append([]instance.ScheduledActivity(nil), inst.ScheduledActivities...)
	}
	if inst.Faults != nil {
		cp.Faults = append([]instance.Fault(nil), inst.Faults...)
	}
	if inst.ExecutionLog != nil {
		cp.ExecutionLog = append([]instance.LogEntry(nil), inst.ExecutionLog...)
	}

	return &cp
}
