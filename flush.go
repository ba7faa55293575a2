package neogm

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/graphbound/neogm/event"
	"github.com/graphbound/neogm/graph"
)

// Flush synchronizes every pending entity with the graph store. The pipeline
// runs a fixed sequence of phases with no branching back:
//
//	discover → write entities → write relations → write indexes → remove entities
//
// Discovery expands the pending set to the transitive closure of entities
// reachable via traversed relations, so persisting one object synchronizes
// its whole reachable graph. Each writing phase runs inside one batch scope.
//
// A phase failure aborts the flush immediately. Phases that already committed
// stay committed; the store's batch API has no cross-phase transaction, so
// the caller observes a partial graph update and must retry or reconcile.
// Regardless of outcome, both pending sets and the per-flush node cache are
// reset; the identity map is untouched.
func (m *Manager) Flush(ctx context.Context) error {
	ctx, span := m.tracer.Start(ctx, "neogm.flush")
	defer span.End()

	start := time.Now()
	persistCount := 0
	removeCount := m.removals.len()

	defer func() {
		m.pending.reset()
		m.removals.reset()
		m.nodes = make(map[uuid.UUID]*graph.Node)
		m.created = nil
	}()

	if err := m.discover(); err != nil {
		return fmt.Errorf("discover: %w", err)
	}
	persistCount = m.pending.len()

	if err := m.inBatch(ctx, "write entities", m.writeEntities); err != nil {
		return err
	}
	if err := m.assignIdentities(ctx); err != nil {
		return fmt.Errorf("write entities: %w", err)
	}
	if err := m.inBatch(ctx, "write relations", m.writeRelations); err != nil {
		return err
	}
	if err := m.inBatch(ctx, "write indexes", m.writeIndexes); err != nil {
		return err
	}
	if err := m.inBatch(ctx, "remove entities", m.removeEntities); err != nil {
		return err
	}

	if m.flushDuration != nil {
		m.flushDuration.Record(ctx, time.Since(start).Seconds())
	}
	if m.entityWrites != nil {
		m.entityWrites.Add(ctx, int64(persistCount))
	}
	m.logger.Debug("flush complete",
		"entities", persistCount,
		"removals", removeCount,
		"elapsed", time.Since(start))
	return nil
}

// inBatch runs one pipeline phase inside a batch scope: open, run, commit if
// the phase wrote anything, discard otherwise.
func (m *Manager) inBatch(ctx context.Context, phase string, fn func(ctx context.Context) error) error {
	ctx, span := m.tracer.Start(ctx, "neogm.flush."+phase)
	defer span.End()

	batch, err := m.client.BeginBatch(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", phase, err)
	}
	if err := fn(ctx); err != nil {
		_ = batch.Discard()
		return fmt.Errorf("%s: %w", phase, err)
	}
	if batch.Size() == 0 {
		if err := batch.Discard(); err != nil {
			return fmt.Errorf("%s: %w", phase, err)
		}
		return nil
	}
	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("%s: %w", phase, err)
	}
	return nil
}

// discover expands the pending set to a fixpoint: every entity reachable from
// a pending entity via traversed relations becomes pending itself. Appending
// while iterating makes newly discovered entities get traversed in the same
// pass.
func (m *Manager) discover() error {
	for i := 0; i < m.pending.len(); i++ {
		entity := m.pending.at(i)
		err := m.traverse(entity, relationVisitor{
			add: func(e relEdge) error {
				if _, err := m.describe(e.target); err != nil {
					return err
				}
				m.pending.add(e.target)
				return nil
			},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// writeEntities creates or updates one node per pending entity. New nodes get
// the class marker and a creation timestamp; every node gets its scalar
// properties synced and a fresh update timestamp. Store-assigned ids are
// handed out to entities after the batch commits (assignIdentities).
func (m *Manager) writeEntities(ctx context.Context) error {
	for i := 0; i < m.pending.len(); i++ {
		entity := m.pending.at(i)
		md, err := m.describe(entity)
		if err != nil {
			return err
		}

		m.notify(ctx, event.Event{Kind: event.PrePersist, Entity: entity})

		var node *graph.Node
		if id, ok := md.ID.Get(entity); ok {
			node, err = m.client.Node(ctx, id)
			if err != nil {
				return fmt.Errorf("entity %s/%d: %w", md.Class, id, err)
			}
		} else {
			node, err = m.client.CreateNode(ctx)
			if err != nil {
				return fmt.Errorf("entity %s: %w", md.Class, err)
			}
			node.Set(graph.PropClass, md.Class)
			node.Set(graph.PropCreated, m.timestamp())
			m.created = append(m.created, entity)
		}

		for _, p := range md.Properties {
			node.Set(p.Name, p.Get(entity))
		}
		node.Set(graph.PropUpdated, m.timestamp())

		if err := m.client.SaveNode(ctx, node); err != nil {
			return fmt.Errorf("entity %s: %w", md.Class, err)
		}
		m.nodes[m.arena.handle(entity)] = node

		m.notify(ctx, event.Event{Kind: event.PostPersist, Entity: entity})
	}
	return nil
}

// assignIdentities runs after the entity batch commits: newly created
// entities receive their store-assigned primary key and declared labels, and
// every written entity lands in the identity map.
func (m *Manager) assignIdentities(ctx context.Context) error {
	for _, entity := range m.created {
		md, err := m.describe(entity)
		if err != nil {
			return err
		}
		node := m.nodes[m.arena.handle(entity)]
		md.ID.Set(entity, node.ID)
		if len(md.Labels) > 0 {
			if err := m.client.AddLabels(ctx, node.ID, md.Labels); err != nil {
				return fmt.Errorf("labels for %s/%d: %w", md.Class, node.ID, err)
			}
		}
	}
	for i := 0; i < m.pending.len(); i++ {
		entity := m.pending.at(i)
		if node, ok := m.nodes[m.arena.handle(entity)]; ok {
			m.identity.remember(node.ID, entity)
		}
	}
	return nil
}

// writeRelations reconciles every pending entity's traversed relations with
// the store: new edges are created, edges to the same target of the same type
// are updated in place, removed members and replaced cardinality-one targets
// have their edges deleted.
func (m *Manager) writeRelations(ctx context.Context) error {
	cache := newRelCache(m.client)
	for i := 0; i < m.pending.len(); i++ {
		entity := m.pending.at(i)
		err := m.traverse(entity, relationVisitor{
			add:     func(e relEdge) error { return m.addRelation(ctx, cache, e) },
			remove:  func(e relEdge) error { return m.removeRelation(ctx, cache, e) },
			replace: func(e relEdge) error { return m.replaceRelation(ctx, cache, e) },
		})
		if err != nil {
			return err
		}
	}
	return m.clearRemovalDiffs()
}

// clearRemovalDiffs resets the removal diff of every tracked list once its
// removals have been written, so a later flush does not delete edges that
// were already reconciled.
func (m *Manager) clearRemovalDiffs() error {
	for i := 0; i < m.pending.len(); i++ {
		entity := m.pending.at(i)
		md, err := m.describe(entity)
		if err != nil {
			return err
		}
		for _, rd := range md.Relations {
			if !rd.Traversed {
				continue
			}
			if list, ok := rd.Get(entity).(*List); ok && list != nil {
				list.clearRemoved()
			}
		}
	}
	return nil
}

// addRelation creates the edge, or updates it in place when an edge of the
// same type to the same target already exists and force-create is off.
func (m *Manager) addRelation(ctx context.Context, cache *relCache, e relEdge) error {
	srcID, err := m.resolveNodeID(e.source)
	if err != nil {
		return err
	}
	dstID, err := m.resolveNodeID(e.target)
	if err != nil {
		return err
	}

	if !e.force {
		rels, err := cache.outgoing(ctx, srcID)
		if err != nil {
			return err
		}
		for _, rel := range rels {
			if rel.Type != e.relType || rel.EndID != dstID {
				continue
			}
			// Upsert: refresh properties and timestamp instead of duplicating.
			m.notify(ctx, event.Event{Kind: event.PreRelationUpdate, Entity: e.source, Target: e.target, RelType: e.relType})
			for k, v := range e.properties {
				rel.Set(k, v)
			}
			rel.Set(graph.PropUpdated, m.timestamp())
			if err := m.client.SaveRelationship(ctx, rel); err != nil {
				return fmt.Errorf("relation %s: %w", e.relType, err)
			}
			cache.invalidate()
			return nil
		}
	}

	m.notify(ctx, event.Event{Kind: event.PreRelationCreate, Entity: e.source, Target: e.target, RelType: e.relType})

	rel, err := m.client.Relate(ctx, srcID, dstID, e.relType)
	if err != nil {
		return fmt.Errorf("relation %s: %w", e.relType, err)
	}
	for k, v := range e.properties {
		rel.Set(k, v)
	}
	ts := m.timestamp()
	rel.Set(graph.PropCreated, ts)
	rel.Set(graph.PropUpdated, ts)
	if err := m.client.SaveRelationship(ctx, rel); err != nil {
		return fmt.Errorf("relation %s: %w", e.relType, err)
	}
	cache.invalidate()

	m.notify(ctx, event.Event{Kind: event.PostRelationCreate, Entity: e.source, Target: e.target, RelType: e.relType})
	return nil
}

// removeRelation deletes the first same-type edge from the source to the
// target. Absence of a match is a no-op, not an error: the member may have
// been added and removed without an intervening flush.
func (m *Manager) removeRelation(ctx context.Context, cache *relCache, e relEdge) error {
	srcID, err := m.resolveNodeID(e.source)
	if err != nil {
		return err
	}
	// Removed members skip discovery, so validate the mapping here; an
	// unmapped value must surface as an error, not pass through silently.
	if _, err := m.describe(e.target); err != nil {
		return err
	}
	dstID, ok := m.nodeIDOf(e.target)
	if !ok {
		return nil // target never persisted, no edge can exist
	}

	rels, err := cache.outgoing(ctx, srcID)
	if err != nil {
		return err
	}
	for _, rel := range rels {
		if rel.Type != e.relType || rel.EndID != dstID {
			continue
		}
		m.notify(ctx, event.Event{Kind: event.PreRelationRemove, Entity: e.source, Target: e.target, RelType: e.relType})
		if err := m.client.DeleteRelationship(ctx, rel.ID); err != nil {
			return fmt.Errorf("relation %s: %w", e.relType, err)
		}
		cache.invalidate()
		m.notify(ctx, event.Event{Kind: event.PostRelationRemove, Entity: e.source, Target: e.target, RelType: e.relType})
		return nil
	}
	return nil
}

// replaceRelation deletes every same-type edge from the source whose target
// differs from the current one. It runs before addRelation for a
// cardinality-one relation, so a stale edge and the new edge never coexist.
func (m *Manager) replaceRelation(ctx context.Context, cache *relCache, e relEdge) error {
	srcID, err := m.resolveNodeID(e.source)
	if err != nil {
		return err
	}
	dstID, err := m.resolveNodeID(e.target)
	if err != nil {
		return err
	}

	rels, err := cache.outgoing(ctx, srcID)
	if err != nil {
		return err
	}
	mutated := false
	for _, rel := range rels {
		if rel.Type != e.relType || rel.EndID == dstID {
			continue
		}
		m.notify(ctx, event.Event{Kind: event.PreRelationRemove, Entity: e.source, RelType: e.relType})
		if err := m.client.DeleteRelationship(ctx, rel.ID); err != nil {
			return fmt.Errorf("relation %s: %w", e.relType, err)
		}
		mutated = true
		m.notify(ctx, event.Event{Kind: event.PostRelationRemove, Entity: e.source, RelType: e.relType})
	}
	if mutated {
		cache.invalidate()
	}
	return nil
}

// writeIndexes adds every pending entity to its declared indexes and to the
// type-named default index keyed by primary key. Each touched index is saved
// once, after all additions.
func (m *Manager) writeIndexes(ctx context.Context) error {
	var touched []graph.Index
	byName := make(map[string]graph.Index)

	index := func(name string, kind graph.IndexKind) (graph.Index, error) {
		if idx, ok := byName[name]; ok {
			return idx, nil
		}
		idx, err := m.client.Index(ctx, name, kind)
		if err != nil {
			return nil, err
		}
		byName[name] = idx
		touched = append(touched, idx)
		return idx, nil
	}

	for i := 0; i < m.pending.len(); i++ {
		entity := m.pending.at(i)
		md, err := m.describe(entity)
		if err != nil {
			return err
		}
		node := m.nodes[m.arena.handle(entity)]

		for _, def := range md.Indexes {
			idx, err := index(def.Name, def.Kind)
			if err != nil {
				return fmt.Errorf("index %s: %w", def.Name, err)
			}
			if err := idx.Add(ctx, node.ID, def.Field, def.Get(entity)); err != nil {
				return fmt.Errorf("index %s: %w", def.Name, err)
			}
		}

		idx, err := index(md.Class, graph.IndexExact)
		if err != nil {
			return fmt.Errorf("index %s: %w", md.Class, err)
		}
		if err := idx.Add(ctx, node.ID, "id", node.ID); err != nil {
			return fmt.Errorf("index %s: %w", md.Class, err)
		}
	}

	for _, idx := range touched {
		if err := idx.Save(ctx); err != nil {
			return fmt.Errorf("index %s: %w", idx.Name(), err)
		}
	}
	return nil
}

// removeEntities deletes every entity marked for removal: default index
// entry, relationships in both directions, then the node itself. Entities
// that were never persisted are dropped silently.
func (m *Manager) removeEntities(ctx context.Context) error {
	for i := 0; i < m.removals.len(); i++ {
		entity := m.removals.at(i)
		md, err := m.describe(entity)
		if err != nil {
			return err
		}

		m.notify(ctx, event.Event{Kind: event.PreRemove, Entity: entity})

		id, ok := md.ID.Get(entity)
		if !ok {
			continue
		}
		if _, err := m.client.Node(ctx, id); err != nil {
			return fmt.Errorf("entity %s/%d: %w", md.Class, id, err)
		}

		idx, err := m.client.Index(ctx, md.Class, graph.IndexExact)
		if err != nil {
			return fmt.Errorf("index %s: %w", md.Class, err)
		}
		if err := idx.Remove(ctx, id); err != nil {
			return fmt.Errorf("index %s: %w", md.Class, err)
		}

		rels, err := m.client.Relationships(ctx, id, graph.Both)
		if err != nil {
			return fmt.Errorf("entity %s/%d: %w", md.Class, id, err)
		}
		for _, rel := range rels {
			if err := m.client.DeleteRelationship(ctx, rel.ID); err != nil {
				return fmt.Errorf("entity %s/%d: %w", md.Class, id, err)
			}
		}

		if err := m.client.DeleteNode(ctx, id); err != nil {
			return fmt.Errorf("entity %s/%d: %w", md.Class, id, err)
		}

		m.notify(ctx, event.Event{Kind: event.PostRemove, Entity: entity})
	}
	return nil
}

// resolveNodeID maps an entity to its node id: the node written for it this
// flush, or its assigned primary key.
func (m *Manager) resolveNodeID(entity any) (int64, error) {
	if id, ok := m.nodeIDOf(entity); ok {
		return id, nil
	}
	return 0, fmt.Errorf("%w: relation endpoint %T has no written node", ErrMapping, entity)
}

// nodeIDOf maps an entity to its node id via the per-flush node cache or the
// assigned primary key. The mapping check runs first: only validated pointer
// entities reach the handle table, so an unhashable value cannot panic here.
func (m *Manager) nodeIDOf(entity any) (int64, bool) {
	md, err := m.describe(entity)
	if err != nil {
		return 0, false
	}
	if node, ok := m.nodes[m.arena.handle(entity)]; ok {
		return node.ID, true
	}
	return md.ID.Get(entity)
}

// relCache caches the outgoing relationships of the most recently queried
// source node, so diffing several relation types on one entity costs one
// round trip. It is scoped to a single relation-write pass and holds exactly
// one source at a time; querying a different source or mutating an edge
// drops the cached list.
type relCache struct {
	client   graph.Client
	sourceID int64
	rels     []*graph.Relationship
	valid    bool
}

func newRelCache(client graph.Client) *relCache {
	return &relCache{client: client}
}

func (c *relCache) outgoing(ctx context.Context, sourceID int64) ([]*graph.Relationship, error) {
	if c.valid && c.sourceID == sourceID {
		return c.rels, nil
	}
	rels, err := c.client.Relationships(ctx, sourceID, graph.Outgoing)
	if err != nil {
		return nil, err
	}
	c.sourceID = sourceID
	c.rels = rels
	c.valid = true
	return rels, nil
}

func (c *relCache) invalidate() { c.valid = false }
