// Package registry tracks the resource types a converge binary serves.
//
// A binary registers its resource implementations once at startup, then the
// command layer resolves the type named on the command line and hands it to
// the engine runner. Unknown type names are invalid-argument failures so
// they map to the documented exit code.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/openconverge/converge/pkg/engine"
)

// Registry is a thread-safe index of resource implementations keyed by
// resource type name.
type Registry struct {
	// mu protects the resource map.
	mu sync.RWMutex

	// resources maps type name to implementation.
	resources map[string]engine.Resource
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		resources: make(map[string]engine.Resource),
	}
}

// Register adds a resource implementation to the registry. The declared
// type info must agree with the schema, and each type name can only be
// registered once.
func (r *Registry) Register(res engine.Resource) error {
	if res == nil {
		return fmt.Errorf("resource is nil")
	}

	s := res.Schema()
	if s == nil {
		return fmt.Errorf("resource has no schema")
	}

	info := res.TypeInfo()
	if info.Name != s.Type() {
		return fmt.Errorf("type info name %s does not match schema type %s", info.Name, s.Type())
	}
	if info.Version != s.Version() {
		return fmt.Errorf("type info version %s does not match schema version %s", info.Version, s.Version())
	}
	if info.ExitCodes != nil {
		if err := info.ExitCodes.Validate(); err != nil {
			return fmt.Errorf("exit table for %s: %w", info.Name, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.resources[info.Name]; exists {
		return fmt.Errorf("resource type %s already registered", info.Name)
	}
	r.resources[info.Name] = res

	return nil
}

// MustRegister registers a resource and panics on failure. Intended for
// wiring done at startup where a bad registration is a programming error.
func (r *Registry) MustRegister(res engine.Resource) {
	if err := r.Register(res); err != nil {
		panic(err)
	}
}

// Get resolves a type name to its registered implementation.
func (r *Registry) Get(name string) (engine.Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res, ok := r.resources[name]
	if !ok {
		return nil, engine.NewInvalidArgumentError(fmt.Sprintf("unknown resource type %s", name), nil)
	}
	return res, nil
}

// List returns the type info of every registered resource, sorted by name.
func (r *Registry) List() []engine.TypeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]engine.TypeInfo, 0, len(r.resources))
	for _, res := range r.resources {
		infos = append(infos, res.TypeInfo())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

	return infos
}

// Len reports how many resource types are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.resources)
}
