// Package events provides the lifecycle notification bus.
//
// The runtime publishes notifications at well-defined points of a run;
// subscribers are invoked synchronously, in registration order, and may
// inspect (but must not mutate) the execution context a notification
// carries. A failing subscriber never alters workflow state: the mediator
// reports the last error and the publisher decides what to do with it.
package events

import (
	"context"
	"fmt"
	"sync"
)

// Notification is a lifecycle event published during a workflow run.
// Concrete notification types live in the runtime package alongside the
// execution contexts they carry.
type Notification interface {
	// NotificationName returns the stable name of the notification type.
	NotificationName() string
}

// Handler handles one notification.
type Handler func(ctx context.Context, n Notification) error

// Mediator dispatches notifications to registered subscribers.
// Registration is safe for concurrent use; delivery within one run is
// ordered and synchronous.
type Mediator struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	all      []Handler
}

// NewMediator creates a new mediator with no subscribers.
func NewMediator() *Mediator {
	return &Mediator{
		handlers: make(map[string][]Handler),
	}
}

// Subscribe registers a handler for the named notification type.
func (m *Mediator) Subscribe(name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlers[name] = append(m.handlers[name], handler)
}

// SubscribeAll registers a handler invoked for every notification.
// Catch-all handlers run after type-specific handlers.
func (m *Mediator) SubscribeAll(handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.all = append(m.all, handler)
}

// Publish dispatches the notification to all matching subscribers in
// registration order. All subscribers are invoked even if one fails; the
// last error is returned.
func (m *Mediator) Publish(ctx context.Context, n Notification) error {
	if n == nil {
		return fmt.Errorf("notification cannot be nil")
	}

	m.mu.RLock()
	typed := make([]Handler, len(m.handlers[n.NotificationName()]))
	copy(typed, m.handlers[n.NotificationName()])
	all := make([]Handler, len(m.all))
	copy(all, m.all)
	m.mu.RUnlock()

	var lastErr error
	for _, handler := range typed {
		if err := handler(ctx, n); err != nil {
			lastErr = err
		}
	}
	for _, handler := range all {
		if err := handler(ctx, n); err != nil {
			lastErr = err
		}
	}

	return lastErr
}

// HandlerCount returns the number of handlers for a notification name,
// not counting catch-all handlers.
func (m *Mediator) HandlerCount(name string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.handlers[name])
}

// RemoveAllHandlers removes every registered handler.
func (m *Mediator) RemoveAllHandlers() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlers = make(map[string][]Handler)
	m.all = nil
}
