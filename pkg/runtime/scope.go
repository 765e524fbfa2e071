package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/tombee/conduit/pkg/errors"
)

// Scope is a dependency-resolution scope. Activities instantiated from one
// scope share scope-local services for the duration of a burst; across
// bursts, scopes are independent. Release must be called on every exit path.
type Scope interface {
	// Resolve produces an activity implementation by type name.
	Resolve(typeName string) (Activity, error)

	// Release disposes the scope. Safe to call more than once.
	Release()
}

// ServiceProvider produces scopes. Implementations must be safe for
// concurrent use by multiple runner invocations.
type ServiceProvider interface {
	// CreateScope acquires a fresh scope.
	CreateScope(ctx context.Context) (Scope, error)
}

// ActivityConstructor builds a fresh activity instance.
type ActivityConstructor func() Activity

// ActivityRegistry is a ServiceProvider backed by a map of activity
// constructors keyed by type name. It is the default provider for hosts
// that register their activity catalog in code.
type ActivityRegistry struct {
	mu           sync.RWMutex
	constructors map[string]ActivityConstructor
}

// NewActivityRegistry creates an empty activity registry.
func NewActivityRegistry() *ActivityRegistry {
	return &ActivityRegistry{
		constructors: make(map[string]ActivityConstructor),
	}
}

// Register adds a constructor for the given activity type name.
// Registering the same name twice replaces the previous constructor.
func (r *ActivityRegistry) Register(typeName string, ctor ActivityConstructor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.constructors[typeName] = ctor
}

// CreateScope acquires a fresh scope over the registry.
func (r *ActivityRegistry) CreateScope(ctx context.Context) (Scope, error) {
	return &registryScope{registry: r}, nil
}

// registryScope resolves activities from the registry. Each Resolve call
// produces a fresh activity instance; the scope itself tracks release so
// tests can assert deterministic cleanup.
type registryScope struct {
	registry *ActivityRegistry
	released bool
	mu       sync.Mutex
}

// Resolve produces a fresh activity for the type name.
func (s *registryScope) Resolve(typeName string) (Activity, error) {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return nil, fmt.Errorf("resolve %q: scope already released", typeName)
	}
	s.mu.Unlock()

	s.registry.mu.RLock()
	ctor, ok := s.registry.constructors[typeName]
	s.registry.mu.RUnlock()

	if !ok {
		return nil, &errors.NotFoundError{Resource: "activity type", ID: typeName}
	}
	return ctor(), nil
}

// Release marks the scope as disposed.
func (s *registryScope) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
}
