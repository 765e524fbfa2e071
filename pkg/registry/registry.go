// Package registry provides workflow definition discovery: providers that
// surface serialized definitions, and a registry that materializes them into
// blueprints for the runtime.
package registry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tombee/conduit/pkg/blueprint"
	"github.com/tombee/conduit/pkg/definition"
	"github.com/tombee/conduit/pkg/events"
)

// WorkflowProvider is a source of workflow definitions. Providers must be
// safe for concurrent use.
type WorkflowProvider interface {
	// List returns the provider's current definitions.
	List(ctx context.Context) ([]*definition.WorkflowDefinition, error)
}

// InstanceCounter reports how many instances reference a definition.
// The instance store implements this; the registry uses it to keep an
// unpublished definition active while stored instances, in any status, still
// reference it.
type InstanceCounter interface {
	// CountByDefinition counts instances pinned to the definition version.
	CountByDefinition(ctx context.Context, definitionID string, version int) (int, error)
}

// NotificationWorkflowSettingsLoaded is published for each blueprint the
// registry materializes at listing time.
const NotificationWorkflowSettingsLoaded = "WorkflowSettingsLoaded"

// WorkflowSettingsLoaded lets subscribers adjust per-workflow settings at
// listing time; setting Blueprint.IsDisabled excludes the blueprint from
// the active list. It does not gate execution of a blueprint the caller
// already holds.
type WorkflowSettingsLoaded struct {
	Blueprint *blueprint.Blueprint
}

// NotificationName implements events.Notification.
func (WorkflowSettingsLoaded) NotificationName() string {
	return NotificationWorkflowSettingsLoaded
}

// Registry materializes definitions from its providers on demand.
// Safe for concurrent use.
type Registry struct {
	mu           sync.RWMutex
	providers    []WorkflowProvider
	materializer *blueprint.Materializer
	mediator     *events.Mediator
	counter      InstanceCounter
	logger       *slog.Logger
}

// NewRegistry creates a registry over the given providers.
func NewRegistry(providers ...WorkflowProvider) *Registry {
	return &Registry{
		providers:    providers,
		materializer: blueprint.NewMaterializer(nil),
		logger:       slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithMediator sets the mediator used to publish WorkflowSettingsLoaded.
func (r *Registry) WithMediator(mediator *events.Mediator) *Registry {
	r.mediator = mediator
	return r
}

// WithInstanceCounter sets the instance counter consulted for unpublished
// definitions.
func (r *Registry) WithInstanceCounter(counter InstanceCounter) *Registry {
	r.counter = counter
	return r
}

// AddProvider registers an additional provider.
func (r *Registry) AddProvider(provider WorkflowProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = append(r.providers, provider)
}

// GetByInstance returns the blueprint matching the definition id and the
// exact version an instance is pinned to, or nil if the definition has been
// removed from every provider.
func (r *Registry) GetByInstance(ctx context.Context, definitionID string, version int) (*blueprint.Blueprint, error) {
	def, err := r.findDefinition(ctx, definitionID, version)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, nil
	}
	return r.materializer.Materialize(def)
}

// ListActive materializes every definition that is currently runnable:
// published and enabled definitions, plus unpublished ones that stored
// instances (in any status) still reference. Blueprints disabled by settings subscribers
// are excluded.
func (r *Registry) ListActive(ctx context.Context) ([]*blueprint.Blueprint, error) {
	defs, err := r.allDefinitions(ctx)
	if err != nil {
		return nil, err
	}

	var active []*blueprint.Blueprint
	for _, def := range defs {
		if !def.IsEnabled {
			continue
		}
		if !def.IsPublished && !r.hasInstances(ctx, def) {
			continue
		}

		bp, err := r.materializer.Materialize(def)
		if err != nil {
			r.logger.Warn("skipping workflow that failed to materialize",
				slog.String("workflow", def.ID), "error", err)
			continue
		}

		if r.mediator != nil {
			if err := r.mediator.Publish(ctx, WorkflowSettingsLoaded{Blueprint: bp}); err != nil {
				r.logger.Error("settings subscriber failed",
					slog.String("workflow", bp.ID), "error", err)
			}
		}
		if bp.IsDisabled {
			continue
		}

		active = append(active, bp)
	}

	return active, nil
}

// hasInstances reports whether any instance still references the definition.
func (r *Registry) hasInstances(ctx context.Context, def *definition.WorkflowDefinition) bool {
	if r.counter == nil {
		return false
	}
	count, err := r.counter.CountByDefinition(ctx, def.ID, def.Version)
	if err != nil {
		r.logger.Warn("failed to count instances for unpublished workflow",
			slog.String("workflow", def.ID), "error", err)
		return false
	}
	return count > 0
}

func (r *Registry) findDefinition(ctx context.Context, definitionID string, version int) (*definition.WorkflowDefinition, error) {
	defs, err := r.allDefinitions(ctx)
	if err != nil {
		return nil, err
	}
	for _, def := range defs {
		if def.ID == definitionID && def.Version == version {
			return def, nil
		}
	}
	return nil, nil
}

func (r *Registry) allDefinitions(ctx context.Context) ([]*definition.WorkflowDefinition, error) {
	r.mu.RLock()
	providers := make([]WorkflowProvider, len(r.providers))
	copy(providers, r.providers)
	r.mu.RUnlock()

	var defs []*definition.WorkflowDefinition
	for _, provider := range providers {
		list, err := provider.List(ctx)
		if err != nil {
			return nil, err
		}
		defs = append(defs, list...)
	}
	return defs, nil
}
