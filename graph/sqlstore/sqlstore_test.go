package sqlstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphbound/neogm/graph"
	"github.com/graphbound/neogm/graph/sqlstore"
)

func newTestStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	store, err := sqlstore.Open(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNodeLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	node, err := store.CreateNode(ctx)
	require.NoError(t, err)
	require.NotZero(t, node.ID)

	node.Set("name", "Ada")
	require.NoError(t, store.SaveNode(ctx, node))

	loaded, err := store.Node(ctx, node.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", loaded.Get("name"))

	require.NoError(t, store.DeleteNode(ctx, node.ID))
	_, err = store.Node(ctx, node.ID)
	assert.ErrorIs(t, err, graph.ErrNodeNotFound)
}

func TestNumbersComeBackAsFloats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	node, err := store.CreateNode(ctx)
	require.NoError(t, err)
	node.Set("year", 1842)
	require.NoError(t, store.SaveNode(ctx, node))

	loaded, err := store.Node(ctx, node.ID)
	require.NoError(t, err)
	assert.Equal(t, float64(1842), loaded.Get("year"), "JSON round-trip widens numbers")
}

func TestLabels(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	node, err := store.CreateNode(ctx)
	require.NoError(t, err)

	require.NoError(t, store.AddLabels(ctx, node.ID, []string{"Person", "Author"}))
	require.NoError(t, store.AddLabels(ctx, node.ID, []string{"Author"}))

	labels, err := store.Labels(ctx, node.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Author", "Person"}, labels)
}

func TestRelationships(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a, err := store.CreateNode(ctx)
	require.NoError(t, err)
	b, err := store.CreateNode(ctx)
	require.NoError(t, err)

	rel, err := store.Relate(ctx, a.ID, b.ID, "wrote")
	require.NoError(t, err)
	rel.Set("note", "first")
	require.NoError(t, store.SaveRelationship(ctx, rel))

	out, err := store.Relationships(ctx, a.ID, graph.Outgoing)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "wrote", out[0].Type)
	assert.Equal(t, "first", out[0].Get("note"))

	both, err := store.Relationships(ctx, b.ID, graph.Both)
	require.NoError(t, err)
	assert.Len(t, both, 1)

	err = store.DeleteNode(ctx, a.ID)
	assert.ErrorIs(t, err, graph.ErrNodeInUse)

	require.NoError(t, store.DeleteRelationship(ctx, rel.ID))
	assert.NoError(t, store.DeleteNode(ctx, a.ID))
}

func TestIndex(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	node, err := store.CreateNode(ctx)
	require.NoError(t, err)

	idx, err := store.Index(ctx, "by_title", graph.IndexFulltext)
	require.NoError(t, err)
	require.NoError(t, idx.Add(ctx, node.ID, "title", "Analytical Engine"))

	ids, err := idx.Find(ctx, "title", "analytical")
	require.NoError(t, err)
	assert.Empty(t, ids, "entries are invisible until Save")

	require.NoError(t, idx.Save(ctx))

	ids, err = idx.Find(ctx, "title", "Engine")
	require.NoError(t, err)
	assert.Equal(t, []int64{node.ID}, ids)

	require.NoError(t, idx.Remove(ctx, node.ID))
	all, err := idx.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestIndexKindMismatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Index(ctx, "by_title", graph.IndexFulltext)
	require.NoError(t, err)

	_, err = store.Index(ctx, "by_title", graph.IndexExact)
	assert.ErrorIs(t, err, graph.ErrIndexKindMismatch)
}

func TestBatchCommitAndRollback(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	batch, err := store.BeginBatch(ctx)
	require.NoError(t, err)

	node, err := store.CreateNode(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Size())
	require.NoError(t, batch.Commit(ctx))

	_, err = store.Node(ctx, node.ID)
	assert.NoError(t, err, "committed writes are durable")

	batch, err = store.BeginBatch(ctx)
	require.NoError(t, err)
	discarded, err := store.CreateNode(ctx)
	require.NoError(t, err)
	require.NoError(t, batch.Discard())

	_, err = store.Node(ctx, discarded.ID)
	assert.ErrorIs(t, err, graph.ErrNodeNotFound, "discarded batches roll back")
}

func TestBatchExclusivity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	batch, err := store.BeginBatch(ctx)
	require.NoError(t, err)

	_, err = store.BeginBatch(ctx)
	assert.ErrorIs(t, err, graph.ErrBatchInFlight)

	require.NoError(t, batch.Discard())
}

func TestQueryUnsupported(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Query(context.Background(), graph.Cypher, "MATCH (n) RETURN n", nil)
	assert.ErrorIs(t, err, graph.ErrUnsupportedDialect)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.db")
	ctx := context.Background()

	store, err := sqlstore.Open(path)
	require.NoError(t, err)
	node, err := store.CreateNode(ctx)
	require.NoError(t, err)
	node.Set("name", "Ada")
	require.NoError(t, store.SaveNode(ctx, node))
	require.NoError(t, store.Close())

	reopened, err := sqlstore.Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.Node(ctx, node.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", loaded.Get("name"))
}
