package task

import (
	"fmt"
	"sort"
	"sync"
)

// Config represents logic-specific configuration (opaque to the orchestrator).
type Config map[string]any

// Factory constructs task logic with the provided configuration.
type Factory func(Config) (Logic, error)

// Registry maintains known logic factories so definitions can refer to task
// behaviour by id.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register installs a logic factory. Returns an error if the ID already exists.
func (r *Registry) Register(id string, factory Factory) error {
	if id == "" {
		return fmt.Errorf("task: logic id is required")
	}
	if factory == nil {
		return fmt.Errorf("task: factory is required for %s", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[id]; exists {
		return fmt.Errorf("task: logic %s already registered", id)
	}
	r.factories[id] = factory
	return nil
}

// MustRegister panics if registration fails.
func (r *Registry) MustRegister(id string, factory Factory) {
	if err := r.Register(id, factory); err != nil {
		panic(err)
	}
}

// Resolve constructs logic by ID.
func (r *Registry) Resolve(id string, cfg Config) (Logic, error) {
	r.mu.RLock()
	factory, ok := r.factories[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("task: unknown logic %s", id)
	}
	logic, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("task: logic %s: %w", id, err)
	}
	if logic == nil {
		return nil, fmt.Errorf("task: logic %s returned nil", id)
	}
	return logic, nil
}

// IDs returns a sorted list of registered logic identifiers.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c Config) Text(key, fallback string) string {
	if v, ok := c[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func (c Config) Int(key string, fallback int) (int, error) {
	raw, ok := c[key]
	if !ok || raw == nil {
		return fallback, nil
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("%s must be a whole number", key)
		}
		return int(v), nil
	default:
		return 0, fmt.Errorf("%s must be a number, got %T", key, raw)
	}
}
