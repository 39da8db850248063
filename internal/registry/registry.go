// Package registry holds the declarative entity, field, and
// relationship descriptors consulted by the Pipeline Orchestrator,
// in place of the class-based model definitions with inheritance that
// a dynamic-language MDM implementation would use.
package registry

import (
	"fmt"
	"sort"

	"github.com/mdmcore/resolve/internal/logging"
	"github.com/mdmcore/resolve/internal/matching"
)

var log = logging.GetLogger("registry")

// FieldDescriptor declares how a single attribute participates in
// matching, survivorship, and validation.
type FieldDescriptor struct {
	Name             string
	Type             string // "string", "number", "date", "timestamp", "vector"
	Comparator       string
	ComparatorParams map[string]any
	Weight           float64
	MatchThreshold   float64 // per-field fallback; 0 means use engine default
	NullPolicy       matching.NullPolicy
	Preprocessors    []string
	Required         bool
}

// RelationshipDescriptor declares a named relation between entities,
// left for an upstream governance layer to populate; the core never
// interprets RelationType itself.
type RelationshipDescriptor struct {
	Name         string
	RelationType string
	SourceEntity string
	TargetEntity string
}

// EntityDescriptor is the declarative shape of one resolvable entity
// type: its fields, the sources it may be observed from, and any named
// relationships to other entities.
type EntityDescriptor struct {
	Name          string
	Fields        []FieldDescriptor
	Sources       []string
	Relationships []RelationshipDescriptor
}

// FieldByName returns the field descriptor named name, if present.
func (e EntityDescriptor) FieldByName(name string) (FieldDescriptor, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDescriptor{}, false
}

// RequiredFields returns the names of fields marked Required, sorted
// for deterministic iteration.
func (e EntityDescriptor) RequiredFields() []string {
	var out []string
	for _, f := range e.Fields {
		if f.Required {
			out = append(out, f.Name)
		}
	}
	sort.Strings(out)
	return out
}

// Registry holds entity descriptors keyed by entity name. It is built
// once at startup from configuration and is never mutated afterward;
// the orchestrator treats it as read-only, replacing the global
// singleton registries a reflection-based model layer would use.
type Registry struct {
	entities map[string]EntityDescriptor
}

// New builds a Registry from a set of entity descriptors. An error is
// returned if two descriptors share a name or a descriptor fails
// internal validation — this is a configuration error, fatal at
// startup.
func New(entities []EntityDescriptor) (*Registry, error) {
	r := &Registry{entities: make(map[string]EntityDescriptor, len(entities))}
	for _, e := range entities {
		if e.Name == "" {
			return nil, fmt.Errorf("registry: entity descriptor missing name")
		}
		if _, exists := r.entities[e.Name]; exists {
			return nil, fmt.Errorf("registry: duplicate entity descriptor %q", e.Name)
		}
		if err := validateEntity(e); err != nil {
			return nil, fmt.Errorf("registry: entity %q: %w", e.Name, err)
		}
		r.entities[e.Name] = e
	}
	log.Info("registry initialized", "entity_count", len(r.entities))
	return r, nil
}

// Entity looks up a descriptor by name.
func (r *Registry) Entity(name string) (EntityDescriptor, bool) {
	e, ok := r.entities[name]
	return e, ok
}

// EntityNames returns every registered entity name, sorted.
func (r *Registry) EntityNames() []string {
	names := make([]string, 0, len(r.entities))
	for name := range r.entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func validateEntity(e EntityDescriptor) error {
	if len(e.Fields) == 0 {
		return fmt.Errorf("must declare at least one field")
	}
	seen := make(map[string]struct{}, len(e.Fields))
	for _, f := range e.Fields {
		if f.Name == "" {
			return fmt.Errorf("field descriptor missing name")
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("duplicate field %q", f.Name)
		}
		seen[f.Name] = struct{}{}
		if f.Comparator == "" {
			return fmt.Errorf("field %q missing comparator", f.Name)
		}
		if f.Weight < 0 {
			return fmt.Errorf("field %q has negative weight", f.Name)
		}
	}
	for _, rel := range e.Relationships {
		if rel.Name == "" {
			return fmt.Errorf("relationship descriptor missing name")
		}
		if rel.TargetEntity == "" {
			return fmt.Errorf("relationship %q missing target entity", rel.Name)
		}
	}
	return nil
}
