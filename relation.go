package neogm

// Relation is a typed edge wrapper around a relation target. A relation
// property may hold either a bare target entity or a *Relation; a bare target
// is equivalent to a Relation whose type is the property name, with no extra
// properties and no force-create flag.
type Relation struct {
	target      any
	relType     string
	properties  map[string]any
	forceCreate bool
}

// Relate wraps a target entity into a Relation with the given type name.
func Relate(target any, relType string) *Relation {
	return &Relation{target: target, relType: relType}
}

// WithProperty sets one extra edge property and returns the relation for
// chaining.
func (r *Relation) WithProperty(key string, value any) *Relation {
	if r.properties == nil {
		r.properties = make(map[string]any)
	}
	r.properties[key] = value
	return r
}

// WithProperties replaces the extra edge properties and returns the relation
// for chaining.
func (r *Relation) WithProperties(props map[string]any) *Relation {
	r.properties = props
	return r
}

// WithForceCreate sets the force-create flag and returns the relation for
// chaining. A force-created edge bypasses the upsert-by-type-and-target
// deduplication, so flushing it repeatedly creates parallel edges.
func (r *Relation) WithForceCreate(force bool) *Relation {
	r.forceCreate = force
	return r
}

// Target returns the wrapped target entity.
func (r *Relation) Target() any { return r.target }

// Type returns the relationship type name.
func (r *Relation) Type() string { return r.relType }

// Properties returns the extra edge properties, possibly nil.
func (r *Relation) Properties() map[string]any { return r.properties }

// ForceCreate reports whether the force-create flag is set.
func (r *Relation) ForceCreate() bool { return r.forceCreate }

// List is a multi-valued relation collection that tracks removals. Members
// are target entities or *Relation wrappers. A relation property may instead
// hold a plain []any, in which case removals are not diffed and stale edges
// stay on the server until removed by other means.
type List struct {
	items   []any
	removed []any
}

// NewList creates a List with the given initial members. Initial members are
// considered loaded, not added; removing one later lands it on the removal
// diff.
func NewList(items ...any) *List {
	return &List{items: items}
}

// Add appends a member and returns the list for chaining. Re-adding a member
// that was removed earlier drops it from the removal diff, so a member present
// in the list at flush time keeps its edge.
func (l *List) Add(member any) *List {
	want := unwrapTarget(member)
	for i, r := range l.removed {
		if unwrapTarget(r) == want {
			l.removed = append(l.removed[:i], l.removed[i+1:]...)
			break
		}
	}
	l.items = append(l.items, member)
	return l
}

// Remove deletes the first occurrence of the member and records it in the
// removal diff. It reports whether the member was present. Members compare by
// identity, or by wrapped target identity when either side is a *Relation.
func (l *List) Remove(member any) bool {
	want := unwrapTarget(member)
	for i, item := range l.items {
		if unwrapTarget(item) == want {
			l.removed = append(l.removed, item)
			l.items = append(l.items[:i], l.items[i+1:]...)
			return true
		}
	}
	return false
}

// Items returns the current members.
func (l *List) Items() []any { return l.items }

// Removed returns the members removed since the list was built.
func (l *List) Removed() []any { return l.removed }

// Len returns the number of current members.
func (l *List) Len() int { return len(l.items) }

// clearRemoved resets the removal diff once the pending removals have been
// written out.
func (l *List) clearRemoved() { l.removed = nil }

// unwrapTarget strips a Relation wrapper down to its target entity.
func unwrapTarget(member any) any {
	if rel, ok := member.(*Relation); ok {
		return rel.target
	}
	return member
}
