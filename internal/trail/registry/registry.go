// Package registry holds the static per-entity-type attribute tables.
//
// An attribute is tracked if and only if it is registered for its entity
// type: the table is an explicit allow-list, so an unregistered field on a
// snapshot is a visible omission here rather than a silent runtime behavior.
// Registration happens once at startup; lookups afterwards are read-only.
package registry

import "fmt"

// Formatter turns a raw snapshot value into its display string. Nil and
// absent values format to the empty string. Relation-typed formatters return
// the related entity's human-readable label, never its raw identifier.
type Formatter func(value any) (string, error)

// Attribute describes one tracked field: its logical name, the module
// (UI section) label it belongs to, and how to render its values.
type Attribute struct {
	Name   string
	Module string
	Format Formatter
}

// Registry maps entity types to their ordered attribute tables.
type Registry struct {
	entities map[string][]Attribute
	index    map[string]map[string]int
}

func New() *Registry {
	return &Registry{
		entities: make(map[string][]Attribute),
		index:    make(map[string]map[string]int),
	}
}

// Register installs the attribute table for an entity type. Declaration
// order is the canonical enumeration (and therefore diff) order.
func (r *Registry) Register(entityType string, attrs ...Attribute) error {
	if entityType == "" {
		return fmt.Errorf("entity type is required")
	}
	if _, exists := r.entities[entityType]; exists {
		return fmt.Errorf("entity type %q already registered", entityType)
	}
	idx := make(map[string]int, len(attrs))
	for i, a := range attrs {
		if a.Name == "" || a.Format == nil {
			return fmt.Errorf("entity type %q: attribute %d needs a name and formatter", entityType, i)
		}
		if _, dup := idx[a.Name]; dup {
			return fmt.Errorf("entity type %q: duplicate attribute %q", entityType, a.Name)
		}
		idx[a.Name] = i
	}
	r.entities[entityType] = attrs
	r.index[entityType] = idx
	return nil
}

// MustRegister is Register for static startup tables, where a bad table is a
// programming error.
func (r *Registry) MustRegister(entityType string, attrs ...Attribute) {
	if err := r.Register(entityType, attrs...); err != nil {
		panic(err)
	}
}

// Attributes returns the ordered attribute table for an entity type.
// Unknown entity types yield nil: nothing is tracked for them.
func (r *Registry) Attributes(entityType string) []Attribute {
	return r.entities[entityType]
}

// Resolve looks up a single attribute. A false return means "do not track";
// it is never an error.
func (r *Registry) Resolve(entityType, attributeName string) (Attribute, bool) {
	idx, ok := r.index[entityType]
	if !ok {
		return Attribute{}, false
	}
	i, ok := idx[attributeName]
	if !ok {
		return Attribute{}, false
	}
	return r.entities[entityType][i], true
}

// EntityTypes lists the registered entity types, in no particular order.
func (r *Registry) EntityTypes() []string {
	types := make([]string, 0, len(r.entities))
	for t := range r.entities {
		types = append(types, t)
	}
	return types
}
