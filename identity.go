package neogm

import "github.com/google/uuid"

// arena hands out a stable opaque handle per entity instance. Handles are
// assigned on first sight and kept in a side table keyed by the entity's
// pointer identity, so they survive for as long as the arena does and never
// collide across distinct instances. Nothing about a handle derives from
// entity content.
type arena struct {
	handles map[any]uuid.UUID
}

func newArena() *arena {
	return &arena{handles: make(map[any]uuid.UUID)}
}

// handle returns the entity's handle, assigning one on first use.
func (a *arena) handle(entity any) uuid.UUID {
	if h, ok := a.handles[entity]; ok {
		return h
	}
	h := uuid.New()
	a.handles[entity] = h
	return h
}

// pendingSet is an insertion-ordered set of entities keyed by arena handle.
// The flush pipeline iterates it front to back while discovery appends to it.
type pendingSet struct {
	arena   *arena
	order   []any
	present map[uuid.UUID]bool
}

func newPendingSet(a *arena) *pendingSet {
	return &pendingSet{
		arena:   a,
		present: make(map[uuid.UUID]bool),
	}
}

// add inserts the entity unless it is already tracked. It reports whether the
// entity was newly added.
func (p *pendingSet) add(entity any) bool {
	h := p.arena.handle(entity)
	if p.present[h] {
		return false
	}
	p.present[h] = true
	p.order = append(p.order, entity)
	return true
}

func (p *pendingSet) has(entity any) bool {
	return p.present[p.arena.handle(entity)]
}

func (p *pendingSet) len() int { return len(p.order) }

// at returns the i-th tracked entity in insertion order.
func (p *pendingSet) at(i int) any { return p.order[i] }

func (p *pendingSet) reset() {
	p.order = nil
	p.present = make(map[uuid.UUID]bool)
}

// identityMap binds store node ids to loaded entity instances, guaranteeing
// one instance per node id for the lifetime of a Manager, until Clear.
type identityMap struct {
	entities map[int64]any
}

func newIdentityMap() *identityMap {
	return &identityMap{entities: make(map[int64]any)}
}

func (m *identityMap) identify(nodeID int64) (any, bool) {
	e, ok := m.entities[nodeID]
	return e, ok
}

func (m *identityMap) remember(nodeID int64, entity any) {
	m.entities[nodeID] = entity
}

func (m *identityMap) reset() {
	m.entities = make(map[int64]any)
}
