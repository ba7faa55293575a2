// Package neogm is an object/graph mapper: it keeps in-memory domain objects
// (entities) synchronized with nodes and relationships in a graph store,
// tracking which objects are new, dirty or removed and translating that state
// into an ordered, minimal sequence of store operations.
//
// # Core concepts
//
// Entities are plain pointer-to-struct values. How a type maps onto the graph
// (primary key, scalar properties, relations, indexes, labels) is declared
// once in a meta.Registry:
//
//	reg := meta.NewRegistry()
//	_ = reg.Register(&meta.Metadata{
//	    Class: "user",
//	    New:   func() any { return &User{} },
//	    ID:    meta.IDField(func(u *User) **int64 { return &u.ID }),
//	    Properties: []meta.Property{
//	        meta.Field("name", func(u *User) any { return u.Name },
//	            func(u *User, v any) { u.Name, _ = v.(string) }),
//	    },
//	    Relations: []meta.RelationDef{
//	        meta.Rel("follows", meta.Many, true, func(u *User) any { return u.Follows }),
//	    },
//	})
//
// A Manager is the unit of work. Callers mark entities with Persist and
// Remove; one Flush call runs the write pipeline to completion:
//
//	em, _ := neogm.NewManager(neogm.WithClient(store), neogm.WithProvider(reg))
//	_ = em.Persist(alice)
//	_ = em.Flush(ctx)
//
// Flush discovers the transitive closure of entities reachable from the
// pending set via traversed relations, writes nodes, reconciles relations
// (create, in-place update, remove), writes indexes, and performs removals,
// strictly in that order, each phase in one batch scope. Persisting an object
// therefore synchronizes its whole reachable graph, and an entity persisted
// and removed in the same cycle is created and then fully deleted.
//
// Relations hold either bare target entities or neogm.Relation wrappers
// carrying a type name, extra edge properties and a force-create flag.
// Multi-valued relations use neogm.List, which tracks removals so Flush can
// delete the matching edges.
//
// The Manager's identity map guarantees one entity instance per node id until
// Clear, so repeated loads return the same object reference.
//
// # Consistency
//
// The store's batch API has no cross-phase transaction. A failing phase
// aborts the flush, but phases that already committed stay committed: the
// caller observes a partially updated graph and must retry or reconcile.
// This is a known consistency gap, not an error in the caller's usage.
//
// A Manager is not safe for concurrent use; see Manager for details.
package neogm
