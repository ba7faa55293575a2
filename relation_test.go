package neogm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphbound/neogm"
)

func TestRelationChaining(t *testing.T) {
	target := &post{Title: "Notes"}

	rel := neogm.Relate(target, "wrote").
		WithProperty("year", 1842).
		WithProperty("draft", false).
		WithForceCreate(true)

	assert.Same(t, target, rel.Target())
	assert.Equal(t, "wrote", rel.Type())
	assert.True(t, rel.ForceCreate())
	assert.Equal(t, map[string]any{"year": 1842, "draft": false}, rel.Properties())
}

func TestRelationWithProperties(t *testing.T) {
	rel := neogm.Relate(&post{}, "wrote").
		WithProperty("dropped", true).
		WithProperties(map[string]any{"kept": 1})

	assert.Equal(t, map[string]any{"kept": 1}, rel.Properties(),
		"WithProperties replaces the whole property map")
}

func TestListAddRemove(t *testing.T) {
	p1 := &post{Title: "one"}
	p2 := &post{Title: "two"}

	list := neogm.NewList(p1).Add(p2)
	assert.Equal(t, 2, list.Len())

	require.True(t, list.Remove(p1))
	assert.Equal(t, []any{p2}, list.Items())
	assert.Equal(t, []any{p1}, list.Removed())

	assert.False(t, list.Remove(p1), "removing an absent member reports false")
	assert.Len(t, list.Removed(), 1)
}

func TestListReAddCancelsRemoval(t *testing.T) {
	p1 := &post{Title: "one"}
	p2 := &post{Title: "two"}
	list := neogm.NewList(p1, p2)

	require.True(t, list.Remove(p1))
	list.Add(p1)

	assert.Equal(t, []any{p2, p1}, list.Items())
	assert.Empty(t, list.Removed(), "re-adding a removed member cancels the pending removal")
}

func TestListReAddByWrapperCancelsRemoval(t *testing.T) {
	p := &post{Title: "one"}
	list := neogm.NewList(p)

	require.True(t, list.Remove(p))
	list.Add(neogm.Relate(p, "wrote"))

	assert.Empty(t, list.Removed(), "a wrapped re-add matches the bare removed member")
	assert.Equal(t, 1, list.Len())
}

func TestListRemoveMatchesWrappedTarget(t *testing.T) {
	p := &post{Title: "one"}
	list := neogm.NewList(neogm.Relate(p, "wrote"))

	require.True(t, list.Remove(p), "a bare target matches its wrapped occurrence")
	assert.Equal(t, 0, list.Len())

	wrapped := list.Removed()[0]
	rel, ok := wrapped.(*neogm.Relation)
	require.True(t, ok, "the removal diff keeps the original wrapper")
	assert.Same(t, p, rel.Target())
}

func TestListRemoveByWrapper(t *testing.T) {
	p := &post{Title: "one"}
	list := neogm.NewList(p)

	require.True(t, list.Remove(neogm.Relate(p, "anything")),
		"a wrapper matches its bare target")
	assert.Equal(t, 0, list.Len())
}
