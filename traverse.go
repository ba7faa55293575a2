package neogm

import (
	"fmt"
	"reflect"

	"github.com/graphbound/neogm/meta"
)

// relEdge is one unwrapped relation occurrence: a source entity, a target
// entity, the relationship type, plus the extra properties and force-create
// flag of a Relation wrapper when one was present.
type relEdge struct {
	source     any
	target     any
	relType    string
	properties map[string]any
	force      bool
}

// relationVisitor receives the relation occurrences of one entity.
// Visitors other than add are optional; traversal only computes the removal
// diff and the cardinality-one reconciliation when they are wanted.
type relationVisitor struct {
	// add is invoked for every current target of a traversed relation.
	add func(edge relEdge) error

	// remove is invoked for every member removed from a tracked List since
	// it was built.
	remove func(edge relEdge) error

	// replace is invoked for a cardinality-one relation before add, so stale
	// same-type edges to a different target can be deleted first. Without
	// this step a replaced target would leave two edges for a relation that
	// must have at most one.
	replace func(edge relEdge) error
}

// traverse walks the entity's traversed relations and feeds every occurrence
// to the visitor. Relations with Traversed false are mapping metadata only
// and are skipped entirely.
func (m *Manager) traverse(entity any, v relationVisitor) error {
	md, err := m.describe(entity)
	if err != nil {
		return err
	}

	for _, rd := range md.Relations {
		if !rd.Traversed {
			continue
		}
		value := rd.Get(entity)
		if isNil(value) {
			continue
		}

		switch rd.Cardinality {
		case meta.Many:
			if err := m.traverseMany(entity, rd, value, v); err != nil {
				return err
			}
		case meta.One:
			edge := unwrap(entity, value, rd.Name)
			if isNil(edge.target) {
				continue
			}
			if v.replace != nil {
				if err := v.replace(edge); err != nil {
					return err
				}
			}
			if err := v.add(edge); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: relation %q has invalid cardinality %d", ErrMapping, rd.Name, rd.Cardinality)
		}
	}
	return nil
}

func (m *Manager) traverseMany(entity any, rd meta.RelationDef, value any, v relationVisitor) error {
	var items, removed []any
	switch coll := value.(type) {
	case *List:
		items = coll.Items()
		removed = coll.Removed()
	case []any:
		items = coll
	default:
		return fmt.Errorf("%w: relation %q: unsupported collection type %T (want *neogm.List or []any)",
			ErrMapping, rd.Name, value)
	}

	// Removals run first so that a member deleted and re-added in the same
	// cycle, or a duplicate occurrence surviving one removal, ends the flush
	// with its edge in place rather than deleted after the fact.
	if v.remove != nil {
		for _, member := range removed {
			edge := unwrap(entity, member, rd.Name)
			if isNil(edge.target) {
				continue
			}
			if err := v.remove(edge); err != nil {
				return err
			}
		}
	}

	for _, member := range items {
		edge := unwrap(entity, member, rd.Name)
		if isNil(edge.target) {
			continue
		}
		if err := v.add(edge); err != nil {
			return err
		}
	}
	return nil
}

// unwrap applies the relation unwrap rule: a *Relation contributes its type,
// properties and force-create flag; a bare target synthesizes the relation
// property name as the type.
func unwrap(source, member any, fallbackType string) relEdge {
	if rel, ok := member.(*Relation); ok {
		relType := rel.relType
		if relType == "" {
			relType = fallbackType
		}
		return relEdge{
			source:     source,
			target:     rel.target,
			relType:    relType,
			properties: rel.properties,
			force:      rel.forceCreate,
		}
	}
	return relEdge{source: source, target: member, relType: fallbackType}
}

// isNil reports whether the value is nil, including typed nil pointers boxed
// in a non-nil interface.
func isNil(value any) bool {
	if value == nil {
		return true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
