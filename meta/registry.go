package meta

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Provider resolves mapping descriptors for entity instances and class names.
// The mapper consumes this interface; Registry is the default implementation.
type Provider interface {
	// Describe returns the metadata for the entity's concrete type.
	// Returns ErrNotRegistered if the type has no metadata.
	Describe(entity any) (*Metadata, error)

	// DescribeClass returns the metadata registered under the class name.
	// Returns ErrNotRegistered if no such class exists.
	DescribeClass(class string) (*Metadata, error)
}

// Registry is the default Provider: an in-memory map from entity type (and
// class name) to its Metadata descriptor.
//
// Registration normally happens once at startup; lookups are read-locked, so
// a Registry is safe to share across goroutines.
type Registry struct {
	mu      sync.RWMutex
	byType  map[reflect.Type]*Metadata
	byClass map[string]*Metadata
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byType:  make(map[reflect.Type]*Metadata),
		byClass: make(map[string]*Metadata),
	}
}

// Register validates the descriptor and adds it to the registry, keyed by the
// concrete type produced by md.New and by md.Class. Registering a class name
// or type twice is an error.
func (r *Registry) Register(md *Metadata) error {
	if err := md.Validate(); err != nil {
		return err
	}

	proto := md.New()
	t := reflect.TypeOf(proto)
	if t == nil || t.Kind() != reflect.Pointer {
		return fmt.Errorf("%w: %s: entity factory must return a pointer, got %T",
			ErrInvalidMetadata, md.Class, proto)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byClass[md.Class]; ok {
		return fmt.Errorf("%w: class %q already registered", ErrInvalidMetadata, md.Class)
	}
	if prev, ok := r.byType[t]; ok {
		return fmt.Errorf("%w: type %s already registered as class %q",
			ErrInvalidMetadata, t, prev.Class)
	}

	r.byType[t] = md
	r.byClass[md.Class] = md
	return nil
}

// Describe returns the metadata for the entity's concrete type.
func (r *Registry) Describe(entity any) (*Metadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	md, ok := r.byType[reflect.TypeOf(entity)]
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrNotRegistered, entity)
	}
	return md, nil
}

// DescribeClass returns the metadata registered under the class name.
func (r *Registry) DescribeClass(class string) (*Metadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	md, ok := r.byClass[class]
	if !ok {
		return nil, fmt.Errorf("%w: class %q", ErrNotRegistered, class)
	}
	return md, nil
}

// IsRegistered checks if the entity's concrete type has metadata.
func (r *Registry) IsRegistered(entity any) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byType[reflect.TypeOf(entity)]
	return ok
}

// Classes returns a sorted list of all registered class names.
func (r *Registry) Classes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	classes := make([]string, 0, len(r.byClass))
	for class := range r.byClass {
		classes = append(classes, class)
	}

	sort.Strings(classes)
	return classes
}

// Global registry instance for package-level access.
var (
	globalRegistry     *Registry
	globalRegistryOnce sync.Once
)

// Default returns the global Registry instance, lazily initialized on first
// access. Applications that register all their types in one place can use it
// instead of threading a Registry through constructors.
func Default() *Registry {
	globalRegistryOnce.Do(func() {
		globalRegistry = NewRegistry()
	})
	return globalRegistry
}
