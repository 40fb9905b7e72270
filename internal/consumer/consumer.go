// Package consumer defines the execution contract for scheduled tasks and
// the registry the engine resolves consumer types through.
package consumer

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Consumer performs the domain work for one firing. A nil return means
// success; failure is signaled only through the returned error. Work should
// be as idempotent as possible: firings are at-least-once after a restart
// or a resend. Instances share no mutable state with each other.
type Consumer interface {
	Start(ctx context.Context, properties map[string]any) error
}

// Factory builds a fresh Consumer per firing, keeping executions isolated.
type Factory func() Consumer

// Registry maps consumer-type tags to factories. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register binds a consumer type tag to a factory, replacing any previous
// binding for the same tag.
func (r *Registry) Register(consumerType string, f Factory) {
	r.mu.Lock()
	r.factories[consumerType] = f
	r.mu.Unlock()
}

// Has reports whether the consumer type is registered.
func (r *Registry) Has(consumerType string) bool {
	r.mu.RLock()
	_, ok := r.factories[consumerType]
	r.mu.RUnlock()
	return ok
}

// New builds a fresh consumer for the type tag.
func (r *Registry) New(consumerType string) (Consumer, error) {
	r.mu.RLock()
	f, ok := r.factories[consumerType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no consumer registered for type %q", consumerType)
	}
	return f(), nil
}

// Types returns the registered consumer type tags, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	r.mu.RUnlock()
	sort.Strings(types)
	return types
}
