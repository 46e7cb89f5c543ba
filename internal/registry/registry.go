package registry

import (
	"fmt"
	"strings"
)

// UnknownModuleError is returned when a requested module is not registered.
type UnknownModuleError struct {
	Name string
}

func (e *UnknownModuleError) Error() string {
	return fmt.Sprintf("unknown module %q", e.Name)
}

// CyclicDependencyError is returned when the dependency graph contains a
// cycle. Cycle lists the members in discovery order.
type CyclicDependencyError struct {
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("cyclic module dependency: %s", strings.Join(e.Cycle, " -> "))
}

// Registry is the static catalog of analysis modules. Registration order is
// the tie-break for modules with no ordering constraint between them.
type Registry struct {
	byName map[string]*Descriptor
	order  []string
}

func New() *Registry {
	return &Registry{byName: make(map[string]*Descriptor)}
}

// Register adds a descriptor. Duplicate names are a programming error.
func (r *Registry) Register(d *Descriptor) error {
	if d.Name == "" {
		return fmt.Errorf("module descriptor has empty name")
	}
	if _, dup := r.byName[d.Name]; dup {
		return fmt.Errorf("module %q registered twice", d.Name)
	}
	r.byName[d.Name] = d
	r.order = append(r.order, d.Name)
	return nil
}

// MustRegister is Register for package-level init blocks.
func (r *Registry) MustRegister(d *Descriptor) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// Get looks up a descriptor by name.
func (r *Registry) Get(name string) (*Descriptor, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// Names returns all registered module names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// ResolveDependencies expands requested with every transitive dependency and
// returns a topological order: every dependency appears before its
// dependents. Modules with no mutual constraint keep registration order.
func (r *Registry) ResolveDependencies(requested []string) ([]string, error) {
	for _, name := range requested {
		if _, ok := r.byName[name]; !ok {
			return nil, &UnknownModuleError{Name: name}
		}
	}

	// Transitive closure of the requested set.
	needed := make(map[string]bool)
	var expand func(name string, trail []string) error
	expand = func(name string, trail []string) error {
		for i, t := range trail {
			if t == name {
				return &CyclicDependencyError{Cycle: append(trail[i:i:i], append(trail[i:], name)...)}
			}
		}
		if needed[name] {
			return nil
		}
		d, ok := r.byName[name]
		if !ok {
			return &UnknownModuleError{Name: name}
		}
		trail = append(trail, name)
		for _, dep := range d.Dependencies {
			if err := expand(dep, trail); err != nil {
				return err
			}
		}
		needed[name] = true
		return nil
	}
	for _, name := range requested {
		if err := expand(name, nil); err != nil {
			return nil, err
		}
	}

	// Kahn's algorithm seeded in registration order so the result is stable.
	indeg := make(map[string]int, len(needed))
	for name := range needed {
		indeg[name] = 0
	}
	for name := range needed {
		for _, dep := range r.byName[name].Dependencies {
			if needed[dep] {
				indeg[name]++
			}
		}
	}

	var order []string
	ready := func() []string {
		var out []string
		for _, name := range r.order {
			if deg, ok := indeg[name]; ok && deg == 0 {
				out = append(out, name)
			}
		}
		return out
	}

	for len(order) < len(needed) {
		batch := ready()
		if len(batch) == 0 {
			// Unreachable after the expand cycle check, kept as a guard.
			return nil, &CyclicDependencyError{Cycle: remaining(indeg)}
		}
		for _, name := range batch {
			order = append(order, name)
			delete(indeg, name)
			for other := range indeg {
				for _, dep := range r.byName[other].Dependencies {
					if dep == name {
						indeg[other]--
					}
				}
			}
		}
	}
	return order, nil
}

func remaining(indeg map[string]int) []string {
	var out []string
	for name := range indeg {
		out = append(out, name)
	}
	return out
}
