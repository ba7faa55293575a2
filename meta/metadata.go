package meta

import (
	"errors"
	"fmt"

	"github.com/graphbound/neogm/graph"
)

// Sentinel errors for metadata operations.
var (
	// ErrNotRegistered indicates that no metadata exists for the requested
	// entity type or class name.
	ErrNotRegistered = errors.New("meta: type not registered")

	// ErrInvalidMetadata indicates that a Metadata descriptor is missing a
	// required field or is otherwise malformed.
	ErrInvalidMetadata = errors.New("meta: invalid metadata")
)

// Cardinality describes how many targets a relation property holds.
type Cardinality int

const (
	// One is a single-valued relation property.
	One Cardinality = iota

	// Many is a multi-valued relation property.
	Many
)

// String returns the string representation of the Cardinality.
func (c Cardinality) String() string {
	switch c {
	case One:
		return "one"
	case Many:
		return "many"
	default:
		return fmt.Sprintf("Cardinality(%d)", c)
	}
}

// IDAccessor reads and writes an entity's primary key. The primary key is
// nullable: Get reports false while the entity has never been persisted.
// Once Set has assigned a key the mapper never rewrites it.
type IDAccessor struct {
	Get func(entity any) (int64, bool)
	Set func(entity any, id int64)
}

// Property maps one scalar property between an entity field and a node
// property of the same name.
type Property struct {
	// Name is the node property name.
	Name string

	// Get reads the property value from the entity.
	Get func(entity any) any

	// Set writes a loaded value back onto the entity.
	Set func(entity any, value any)
}

// RelationDef describes one relation-valued property.
type RelationDef struct {
	// Name is the relation property name. It doubles as the relationship
	// type for targets that are not wrapped in a Relation.
	Name string

	// Cardinality is One or Many.
	Cardinality Cardinality

	// Traversed marks the relation as part of the write pipeline. Relations
	// with Traversed false are mapping metadata only and are never flushed.
	Traversed bool

	// Get reads the relation value: a target entity or *neogm.Relation for
	// One, a *neogm.List or []any for Many. A nil value is an empty relation.
	Get func(entity any) any
}

// IndexDef describes one indexed property.
type IndexDef struct {
	// Name is the index name.
	Name string

	// Kind is the index kind, exact or fulltext.
	Kind graph.IndexKind

	// Field is the field name entries are stored under.
	Field string

	// Get reads the indexed value from the entity.
	Get func(entity any) any
}

// Metadata is the mapping descriptor for one entity type.
type Metadata struct {
	// Class is the unique class name stored in the node's class property.
	Class string

	// Labels are attached to newly created nodes of this type.
	Labels []string

	// New constructs an empty entity instance (a non-nil pointer).
	New func() any

	// ID is the primary key accessor.
	ID IDAccessor

	// Properties lists the scalar property mappings.
	Properties []Property

	// Relations lists the relation property definitions.
	Relations []RelationDef

	// Indexes lists the indexed property definitions.
	Indexes []IndexDef

	// Repository optionally constructs a custom repository around the base
	// repository passed in. A nil Repository selects the default. A non-nil
	// Repository that returns nil violates the repository contract and
	// surfaces as a mapping error.
	Repository func(base any) any
}

// Validate checks that the descriptor has all required fields set correctly.
func (m *Metadata) Validate() error {
	if m.Class == "" {
		return fmt.Errorf("%w: class name is required", ErrInvalidMetadata)
	}
	if m.New == nil {
		return fmt.Errorf("%w: %s: entity factory is required", ErrInvalidMetadata, m.Class)
	}
	if m.ID.Get == nil || m.ID.Set == nil {
		return fmt.Errorf("%w: %s: primary key accessor is required", ErrInvalidMetadata, m.Class)
	}
	for _, r := range m.Relations {
		if r.Name == "" {
			return fmt.Errorf("%w: %s: relation without a name", ErrInvalidMetadata, m.Class)
		}
		if r.Get == nil {
			return fmt.Errorf("%w: %s: relation %q without a getter", ErrInvalidMetadata, m.Class, r.Name)
		}
	}
	for _, idx := range m.Indexes {
		if idx.Name == "" || idx.Field == "" {
			return fmt.Errorf("%w: %s: index definitions need a name and a field", ErrInvalidMetadata, m.Class)
		}
		if idx.Get == nil {
			return fmt.Errorf("%w: %s: index %q without a getter", ErrInvalidMetadata, m.Class, idx.Name)
		}
	}
	return nil
}

// IDField builds an IDAccessor for an entity type whose primary key is a
// nullable *int64 field.
//
// Example:
//
//	meta.IDField(func(u *User) **int64 { return &u.ID })
func IDField[E any](field func(*E) **int64) IDAccessor {
	return IDAccessor{
		Get: func(entity any) (int64, bool) {
			p := *field(entity.(*E))
			if p == nil {
				return 0, false
			}
			return *p, true
		},
		Set: func(entity any, id int64) {
			*field(entity.(*E)) = &id
		},
	}
}

// Field builds a scalar Property from typed getter and setter functions.
func Field[E any](name string, get func(*E) any, set func(*E, any)) Property {
	return Property{
		Name: name,
		Get:  func(entity any) any { return get(entity.(*E)) },
		Set:  func(entity, value any) { set(entity.(*E), value) },
	}
}

// Rel builds a RelationDef from a typed getter.
func Rel[E any](name string, card Cardinality, traversed bool, get func(*E) any) RelationDef {
	return RelationDef{
		Name:        name,
		Cardinality: card,
		Traversed:   traversed,
		Get:         func(entity any) any { return get(entity.(*E)) },
	}
}

// Indexed builds an IndexDef from a typed getter.
func Indexed[E any](name string, kind graph.IndexKind, field string, get func(*E) any) IndexDef {
	return IndexDef{
		Name:  name,
		Kind:  kind,
		Field: field,
		Get:   func(entity any) any { return get(entity.(*E)) },
	}
}
