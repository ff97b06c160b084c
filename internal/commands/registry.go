package commands

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrIncompleteRegistry is returned when a required command has no binding.
	ErrIncompleteRegistry = errors.New("command registry is incomplete")
	// ErrUnknownBinding is returned when a binding names a command outside the set.
	ErrUnknownBinding = errors.New("binding for unknown command")
)

// Registry maps command names to implementations. It is immutable after
// construction and safe for concurrent use.
type Registry struct {
	funcs map[Name]Func
}

// NewRegistry creates a registry that must bind every known command.
func NewRegistry(bindings map[Name]Func) (*Registry, error) {
	return NewRegistryFor(names, bindings)
}

// NewRegistryFor creates a registry over the given command set. Every name in
// set must be bound and no binding may fall outside it.
func NewRegistryFor(set []Name, bindings map[Name]Func) (*Registry, error) {
	funcs := make(map[Name]Func, len(set))
	for _, name := range set {
		fn, ok := bindings[name]
		if !ok || fn == nil {
			return nil, fmt.Errorf("%w: %q is not bound", ErrIncompleteRegistry, name)
		}
		funcs[name] = fn
	}
	for name := range bindings {
		if !slices.Contains(set, name) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownBinding, name)
		}
	}
	return &Registry{funcs: funcs}, nil
}

// Lookup returns the implementation bound to name.
func (r *Registry) Lookup(name Name) (Func, bool) {
	fn, ok := r.funcs[name]
	return fn, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []Name {
	out := make([]Name, 0, len(r.funcs))
	for name := range r.funcs {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}
