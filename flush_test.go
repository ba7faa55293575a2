package neogm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphbound/neogm"
	"github.com/graphbound/neogm/event"
	"github.com/graphbound/neogm/graph"
	"github.com/graphbound/neogm/graph/memstore"
)

func outgoingOfType(t *testing.T, store *memstore.Store, id int64, relType string) []*graph.Relationship {
	t.Helper()
	rels, err := store.Relationships(context.Background(), id, graph.Outgoing)
	require.NoError(t, err)
	var out []*graph.Relationship
	for _, rel := range rels {
		if rel.Type == relType {
			out = append(out, rel)
		}
	}
	return out
}

func TestFlushCreatesNode(t *testing.T) {
	store := memstore.New()
	em := newTestManager(t, store)
	ctx := context.Background()

	a := &author{Name: "Ada", Email: "ada@example.org"}
	require.NoError(t, em.Persist(a))
	require.NoError(t, em.Flush(ctx))

	require.NotNil(t, a.ID, "flush assigns the store identifier")

	node, err := store.Node(ctx, *a.ID)
	require.NoError(t, err)
	assert.Equal(t, "author", node.Class())
	assert.Equal(t, "Ada", node.Get("name"))
	assert.Equal(t, "ada@example.org", node.Get("email"))

	stamp := testTime.Format(graph.TimeFormat)
	assert.Equal(t, stamp, node.Get(graph.PropCreated))
	assert.Equal(t, stamp, node.Get(graph.PropUpdated))

	assert.Equal(t, []string{"Author"}, store.Labels(*a.ID))
}

func TestFlushUpdatesExistingNode(t *testing.T) {
	store := memstore.New()
	em := newTestManager(t, store)
	ctx := context.Background()

	a := &author{Name: "Ada"}
	require.NoError(t, em.Persist(a))
	require.NoError(t, em.Flush(ctx))
	firstID := *a.ID

	a.Name = "Ada Lovelace"
	require.NoError(t, em.Persist(a))
	require.NoError(t, em.Flush(ctx))

	assert.Equal(t, firstID, *a.ID, "the primary key never changes once assigned")
	node, err := store.Node(ctx, firstID)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", node.Get("name"))
	assert.Equal(t, testTime.Format(graph.TimeFormat), node.Get(graph.PropCreated),
		"creation timestamp is written once")
}

func TestFlushTransitivePersist(t *testing.T) {
	store := memstore.New()
	em := newTestManager(t, store)
	ctx := context.Background()

	p1 := &post{Title: "Notes"}
	p2 := &post{Title: "Sketches"}
	a := &author{Name: "Ada", Posts: neogm.NewList(p1, p2)}

	require.NoError(t, em.Persist(a))
	require.NoError(t, em.Flush(ctx))

	require.NotNil(t, p1.ID, "reachable entities are persisted without their own Persist call")
	require.NotNil(t, p2.ID)

	wrote := outgoingOfType(t, store, *a.ID, "wrote")
	require.Len(t, wrote, 2)
	targets := []int64{wrote[0].EndID, wrote[1].EndID}
	assert.ElementsMatch(t, []int64{*p1.ID, *p2.ID}, targets)
}

func TestFlushRelationUpsert(t *testing.T) {
	store := memstore.New()
	em := newTestManager(t, store)
	ctx := context.Background()

	p := &post{Title: "Notes"}
	a := &author{Name: "Ada", Posts: neogm.NewList(p)}

	require.NoError(t, em.Persist(a))
	require.NoError(t, em.Flush(ctx))
	require.NoError(t, em.Persist(a))
	require.NoError(t, em.Flush(ctx))

	wrote := outgoingOfType(t, store, *a.ID, "wrote")
	assert.Len(t, wrote, 1, "re-flushing the same relation updates the edge in place")
}

func TestFlushForceCreate(t *testing.T) {
	store := memstore.New()
	em := newTestManager(t, store)
	ctx := context.Background()

	p := &post{Title: "Notes"}
	a := &author{Name: "Ada", Posts: neogm.NewList(
		neogm.Relate(p, "wrote").WithForceCreate(true),
	)}

	require.NoError(t, em.Persist(a))
	require.NoError(t, em.Flush(ctx))
	require.NoError(t, em.Persist(a))
	require.NoError(t, em.Flush(ctx))

	wrote := outgoingOfType(t, store, *a.ID, "wrote")
	assert.Len(t, wrote, 2, "force-create bypasses the upsert and duplicates the edge")
}

func TestFlushRelationProperties(t *testing.T) {
	store := memstore.New()
	em := newTestManager(t, store)
	ctx := context.Background()

	p := &post{Title: "Notes"}
	a := &author{Name: "Ada", Posts: neogm.NewList(
		neogm.Relate(p, "wrote").WithProperty("year", 1842),
	)}

	require.NoError(t, em.Persist(a))
	require.NoError(t, em.Flush(ctx))

	wrote := outgoingOfType(t, store, *a.ID, "wrote")
	require.Len(t, wrote, 1)
	assert.Equal(t, 1842, wrote[0].Get("year"))

	stamp := testTime.Format(graph.TimeFormat)
	assert.Equal(t, stamp, wrote[0].Get(graph.PropCreated))
	assert.Equal(t, stamp, wrote[0].Get(graph.PropUpdated))
}

func TestFlushCardinalityOneReplacement(t *testing.T) {
	store := memstore.New()
	em := newTestManager(t, store)
	ctx := context.Background()

	turin := &city{Name: "Turin"}
	london := &city{Name: "London"}
	a := &author{Name: "Ada", Home: turin}

	require.NoError(t, em.Persist(a))
	require.NoError(t, em.Flush(ctx))

	a.Home = london
	require.NoError(t, em.Persist(a))
	require.NoError(t, em.Flush(ctx))

	livesIn := outgoingOfType(t, store, *a.ID, "lives_in")
	require.Len(t, livesIn, 1, "replacing a single-valued target must not leave a stale edge")
	assert.Equal(t, *london.ID, livesIn[0].EndID)
}

func TestFlushListRemoval(t *testing.T) {
	store := memstore.New()
	em := newTestManager(t, store)
	ctx := context.Background()

	p1 := &post{Title: "Notes"}
	p2 := &post{Title: "Sketches"}
	a := &author{Name: "Ada", Posts: neogm.NewList(p1, p2)}

	require.NoError(t, em.Persist(a))
	require.NoError(t, em.Flush(ctx))

	require.True(t, a.Posts.Remove(p1))
	require.NoError(t, em.Persist(a))
	require.NoError(t, em.Flush(ctx))

	wrote := outgoingOfType(t, store, *a.ID, "wrote")
	require.Len(t, wrote, 1)
	assert.Equal(t, *p2.ID, wrote[0].EndID)

	_, err := store.Node(ctx, *p1.ID)
	assert.NoError(t, err, "removing a list member deletes the edge, not the target node")
}

func TestFlushListRemoveThenReAdd(t *testing.T) {
	store := memstore.New()
	em := newTestManager(t, store)
	ctx := context.Background()

	p := &post{Title: "Notes"}
	a := &author{Name: "Ada", Posts: neogm.NewList(p)}

	require.NoError(t, em.Persist(a))
	require.NoError(t, em.Flush(ctx))

	require.True(t, a.Posts.Remove(p))
	a.Posts.Add(p)
	require.NoError(t, em.Persist(a))
	require.NoError(t, em.Flush(ctx))

	wrote := outgoingOfType(t, store, *a.ID, "wrote")
	require.Len(t, wrote, 1, "a member present in the list must keep its edge")
	assert.Equal(t, *p.ID, wrote[0].EndID)
}

func TestFlushRemovalDiffClearedAfterFlush(t *testing.T) {
	store := memstore.New()
	em := newTestManager(t, store)
	ctx := context.Background()

	p1 := &post{Title: "Notes"}
	p2 := &post{Title: "Sketches"}
	a := &author{Name: "Ada", Posts: neogm.NewList(p1, p2)}

	require.NoError(t, em.Persist(a))
	require.NoError(t, em.Flush(ctx))

	require.True(t, a.Posts.Remove(p1))
	require.NoError(t, em.Persist(a))
	require.NoError(t, em.Flush(ctx))
	assert.Empty(t, a.Posts.Removed(), "a flushed removal is spent")

	// Re-adding the member after the diff was reconciled must recreate the
	// edge, not replay the stale removal.
	a.Posts.Add(p1)
	require.NoError(t, em.Persist(a))
	require.NoError(t, em.Flush(ctx))

	wrote := outgoingOfType(t, store, *a.ID, "wrote")
	targets := make([]int64, 0, len(wrote))
	for _, rel := range wrote {
		targets = append(targets, rel.EndID)
	}
	assert.ElementsMatch(t, []int64{*p1.ID, *p2.ID}, targets)
}

func TestFlushRemovedMemberUnmappedType(t *testing.T) {
	em := newTestManager(t, memstore.New())

	type scrapbook struct{ Title string }
	stray := &scrapbook{Title: "loose pages"}

	a := &author{Name: "Ada", Posts: neogm.NewList(stray)}
	require.True(t, a.Posts.Remove(stray))

	require.NoError(t, em.Persist(a))
	err := em.Flush(context.Background())
	assert.ErrorIs(t, err, neogm.ErrMapping,
		"an unmapped value in the removal diff must fail the flush, not slip through")
}

func TestFlushRemoveEntity(t *testing.T) {
	store := memstore.New()
	em := newTestManager(t, store)
	ctx := context.Background()

	p := &post{Title: "Notes"}
	a := &author{Name: "Ada", Posts: neogm.NewList(p)}
	require.NoError(t, em.Persist(a))
	require.NoError(t, em.Flush(ctx))

	require.NoError(t, em.Remove(p))
	require.NoError(t, em.Flush(ctx))

	_, err := store.Node(ctx, *p.ID)
	assert.ErrorIs(t, err, graph.ErrNodeNotFound)

	wrote := outgoingOfType(t, store, *a.ID, "wrote")
	assert.Empty(t, wrote, "removal detaches the entity's relationships first")
}

func TestFlushPersistAndRemoveSameCycle(t *testing.T) {
	store := memstore.New()
	em := newTestManager(t, store)
	ctx := context.Background()

	a := &author{Name: "Ada"}
	require.NoError(t, em.Persist(a))
	require.NoError(t, em.Remove(a))
	require.NoError(t, em.Flush(ctx))

	require.NotNil(t, a.ID, "the entity is written before it is removed")
	_, err := store.Node(ctx, *a.ID)
	assert.ErrorIs(t, err, graph.ErrNodeNotFound,
		"persist and remove in one cycle net to an absent node")

	idx, err := store.Index(ctx, "author", graph.IndexExact)
	require.NoError(t, err)
	ids, err := idx.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestFlushRemoveNeverPersisted(t *testing.T) {
	em := newTestManager(t, memstore.New())

	require.NoError(t, em.Remove(&post{Title: "draft"}))
	assert.NoError(t, em.Flush(context.Background()),
		"removing an unpersisted entity is a flush-time no-op")
}

func TestFlushResetsPendingState(t *testing.T) {
	store := memstore.New()
	em := newTestManager(t, store)
	ctx := context.Background()

	a := &author{Name: "Ada"}
	require.NoError(t, em.Persist(a))
	require.NoError(t, em.Flush(ctx))
	require.NoError(t, em.Flush(ctx))

	_, err := store.Node(ctx, *a.ID+1)
	assert.ErrorIs(t, err, graph.ErrNodeNotFound,
		"a second flush with nothing pending writes nothing")
}

func TestFlushEventsOrder(t *testing.T) {
	var kinds []event.Kind
	recorder := event.Func(func(ctx context.Context, ev event.Event) error {
		kinds = append(kinds, ev.Kind)
		return nil
	})

	em := newTestManager(t, memstore.New(), neogm.WithNotifier(recorder))
	ctx := context.Background()

	p := &post{Title: "Notes"}
	a := &author{Name: "Ada", Posts: neogm.NewList(p)}
	require.NoError(t, em.Persist(a))
	require.NoError(t, em.Flush(ctx))

	assert.Equal(t, []event.Kind{
		event.PrePersist, event.PostPersist, // author
		event.PrePersist, event.PostPersist, // post, via discovery
		event.PreRelationCreate, event.PostRelationCreate,
	}, kinds)
}

func TestFlushSurvivesNotifierFailure(t *testing.T) {
	failing := event.Func(func(ctx context.Context, ev event.Event) error {
		return errors.New("observer broke")
	})

	em := newTestManager(t, memstore.New(), neogm.WithNotifier(failing))

	a := &author{Name: "Ada"}
	require.NoError(t, em.Persist(a))
	require.NoError(t, em.Flush(context.Background()),
		"a failing observer must not abort the pipeline")
	assert.NotNil(t, a.ID)
}

func TestFlushWritesDeclaredIndex(t *testing.T) {
	store := memstore.New()
	em := newTestManager(t, store)
	ctx := context.Background()

	a := &author{Name: "Ada", Email: "ada@example.org"}
	require.NoError(t, em.Persist(a))
	require.NoError(t, em.Flush(ctx))

	idx, err := store.Index(ctx, "author_email", graph.IndexExact)
	require.NoError(t, err)
	ids, err := idx.Find(ctx, "email", "ada@example.org")
	require.NoError(t, err)
	assert.Equal(t, []int64{*a.ID}, ids)
}

func TestFlushWritesDefaultIndex(t *testing.T) {
	store := memstore.New()
	em := newTestManager(t, store)
	ctx := context.Background()

	a := &author{Name: "Ada"}
	b := &author{Name: "Grace"}
	require.NoError(t, em.Persist(a))
	require.NoError(t, em.Persist(b))
	require.NoError(t, em.Flush(ctx))

	idx, err := store.Index(ctx, "author", graph.IndexExact)
	require.NoError(t, err)
	ids, err := idx.All(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{*a.ID, *b.ID}, ids)
}

func TestFlushRemoveCleansDefaultIndex(t *testing.T) {
	store := memstore.New()
	em := newTestManager(t, store)
	ctx := context.Background()

	a := &author{Name: "Ada"}
	require.NoError(t, em.Persist(a))
	require.NoError(t, em.Flush(ctx))

	require.NoError(t, em.Remove(a))
	require.NoError(t, em.Flush(ctx))

	idx, err := store.Index(ctx, "author", graph.IndexExact)
	require.NoError(t, err)
	ids, err := idx.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestFlushRelationTypeFallback(t *testing.T) {
	store := memstore.New()
	em := newTestManager(t, store)
	ctx := context.Background()

	p := &post{Title: "Notes"}
	a := &author{Name: "Ada", Posts: neogm.NewList(neogm.Relate(p, ""))}

	require.NoError(t, em.Persist(a))
	require.NoError(t, em.Flush(ctx))

	wrote := outgoingOfType(t, store, *a.ID, "wrote")
	require.Len(t, wrote, 1, "an empty relation type falls back to the property name")
}
