package requirement

import (
	"fmt"
	"sync"
	"sync/atomic"
)

type bucketKey struct {
	kind  Kind
	phase Phase
}

// Generation is one immutable version of a registry. Readers that walk
// requirements across several ticks hold a Generation so a concurrent rebuild
// never tears their view.
type Generation struct {
	version uint64
	buckets map[bucketKey][]Requirement
	byID    map[string]Requirement
	count   int
}

func emptyGeneration(version uint64) *Generation {
	return &Generation{
		version: version,
		buckets: map[bucketKey][]Requirement{},
		byID:    map[string]Requirement{},
	}
}

// Version increases with every published generation.
func (g *Generation) Version() uint64 { return g.version }

// Len reports how many requirements the generation holds.
func (g *Generation) Len() int { return g.count }

// Requirements returns the bucket for kind and phase, Mandatory before
// Recommended, then by weight, then by registration order.
func (g *Generation) Requirements(kind Kind, phase Phase) []Requirement {
	bucket := g.buckets[bucketKey{kind: kind, phase: phase}]
	out := make([]Requirement, len(bucket))
	copy(out, bucket)
	return out
}

// Phase returns every requirement of the phase, walking kinds in
// FulfillmentOrder.
func (g *Generation) Phase(phase Phase) []Requirement {
	var out []Requirement
	for _, kind := range FulfillmentOrder {
		out = append(out, g.buckets[bucketKey{kind: kind, phase: phase}]...)
	}
	return out
}

// Lookup finds a requirement by id.
func (g *Generation) Lookup(id string) (Requirement, bool) {
	r, ok := g.byID[id]
	return r, ok
}

func (g *Generation) next() *Generation {
	clone := emptyGeneration(g.version + 1)
	for key, bucket := range g.buckets {
		clone.buckets[key] = append([]Requirement(nil), bucket...)
	}
	for id, r := range g.byID {
		clone.byID[id] = r
	}
	clone.count = g.count
	return clone
}

func (g *Generation) insert(r Requirement) error {
	if _, exists := g.byID[r.ID]; exists {
		return &ConfigError{ID: r.ID, Reason: "duplicate id"}
	}
	r = r.Clone()
	key := bucketKey{kind: r.Kind(), phase: r.Phase}
	bucket := g.buckets[key]
	// After every existing entry that does not sort strictly after r, which
	// keeps registration order among equals.
	idx := len(bucket)
	for i, existing := range bucket {
		if Less(r, existing) {
			idx = i
			break
		}
	}
	bucket = append(bucket, Requirement{})
	copy(bucket[idx+1:], bucket[idx:])
	bucket[idx] = r
	g.buckets[key] = bucket
	g.byID[r.ID] = r
	g.count++
	return nil
}

// Registry stores a task's requirements. Writers are serialised; readers load
// the current generation without locking.
type Registry struct {
	mu      sync.Mutex
	current atomic.Pointer[Generation]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	r.current.Store(emptyGeneration(0))
	return r
}

// Register validates and adds one requirement.
func (r *Registry) Register(req Requirement) error {
	if err := Validate(req); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.Snapshot().next()
	if err := next.insert(req); err != nil {
		return err
	}
	r.current.Store(next)
	return nil
}

// Clear publishes an empty generation.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current.Store(emptyGeneration(r.Snapshot().version + 1))
}

// Rebuild replaces the contents with reqs in one swap. Every requirement is
// validated first; on any error the current generation stays active.
func (r *Registry) Rebuild(reqs []Requirement) error {
	for _, req := range reqs {
		if err := Validate(req); err != nil {
			return fmt.Errorf("requirement: rebuild: %w", err)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	next := emptyGeneration(r.Snapshot().version + 1)
	for _, req := range reqs {
		if err := next.insert(req); err != nil {
			return fmt.Errorf("requirement: rebuild: %w", err)
		}
	}
	r.current.Store(next)
	return nil
}

// Requirements reads one bucket of the current generation.
func (r *Registry) Requirements(kind Kind, phase Phase) []Requirement {
	return r.Snapshot().Requirements(kind, phase)
}

// Snapshot returns the current generation.
func (r *Registry) Snapshot() *Generation {
	if g := r.current.Load(); g != nil {
		return g
	}
	return emptyGeneration(0)
}
