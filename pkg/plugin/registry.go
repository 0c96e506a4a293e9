package plugin

import (
	"fmt"
	"sort"
)

// Factory constructs a plugin instance from its serialized parameters.
type Factory func(params Params) (Plugin, error)

// Registry maps plugin type names to factories. It is built explicitly at
// startup; there is no directory scanning or runtime discovery.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register associates a factory with a plugin type name. Registering an
// empty name, a nil factory, or a duplicate name is an error.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" {
		return fmt.Errorf("plugin type name must not be empty")
	}
	if f == nil {
		return fmt.Errorf("plugin type %q: factory must not be nil", name)
	}
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("plugin type %q already registered", name)
	}
	r.factories[name] = f
	return nil
}

// MustRegister is Register, panicking on error. Intended for static
// registration at startup.
func (r *Registry) MustRegister(name string, f Factory) {
	if err := r.Register(name, f); err != nil {
		panic(err)
	}
}

// Create instantiates a plugin of the named type from params.
func (r *Registry) Create(name string, params Params) (Plugin, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("no plugin registered for type %q", name)
	}
	p, err := f(params)
	if err != nil {
		return nil, fmt.Errorf("plugin type %q: %w", name, err)
	}
	if p == nil {
		return nil, fmt.Errorf("plugin type %q: factory returned nil", name)
	}
	return p, nil
}

// Names returns all registered type names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
