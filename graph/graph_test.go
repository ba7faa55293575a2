package graph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphbound/neogm/graph"
)

func TestDialectRoundTrip(t *testing.T) {
	tests := []struct {
		dialect graph.Dialect
		name    string
	}{
		{graph.Cypher, "cypher"},
		{graph.Gremlin, "gremlin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.dialect.String())
			parsed, err := graph.ParseDialect(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.dialect, parsed)
		})
	}

	_, err := graph.ParseDialect("sparql")
	assert.Error(t, err)
}

func TestIndexKindRoundTrip(t *testing.T) {
	tests := []struct {
		kind graph.IndexKind
		name string
	}{
		{graph.IndexExact, "exact"},
		{graph.IndexFulltext, "fulltext"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.kind.String())
			parsed, err := graph.ParseIndexKind(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, parsed)
		})
	}

	_, err := graph.ParseIndexKind("spatial")
	assert.Error(t, err)
}

func TestDirectionString(t *testing.T) {
	assert.Equal(t, "outgoing", graph.Outgoing.String())
	assert.Equal(t, "incoming", graph.Incoming.String())
	assert.Equal(t, "both", graph.Both.String())
}

func TestNodeProperties(t *testing.T) {
	node := graph.NewNode(7)
	node.Set("name", "Ada").Set(graph.PropClass, "author")

	assert.Equal(t, int64(7), node.ID)
	assert.Equal(t, "Ada", node.Get("name"))
	assert.Nil(t, node.Get("missing"))
	assert.Equal(t, "author", node.Class())

	assert.Equal(t, "", graph.NewNode(8).Class(), "a node without the marker has no class")
}

func TestRelationshipProperties(t *testing.T) {
	rel := &graph.Relationship{ID: 3, Type: "wrote", StartID: 1, EndID: 2}
	rel.Set("year", 1842)

	assert.Equal(t, 1842, rel.Get("year"))
	assert.Nil(t, rel.Get("missing"))
}

func TestTerms(t *testing.T) {
	tests := []struct {
		name  string
		value any
		kind  graph.IndexKind
		want  []string
	}{
		{name: "exact keeps the whole value", value: "Ada Lovelace", kind: graph.IndexExact, want: []string{"Ada Lovelace"}},
		{name: "exact stringifies numbers", value: 42, kind: graph.IndexExact, want: []string{"42"}},
		{name: "fulltext lowercases and tokenizes", value: "Ada Lovelace", kind: graph.IndexFulltext, want: []string{"ada", "lovelace"}},
		{name: "fulltext collapses whitespace", value: "  spaced \t out ", kind: graph.IndexFulltext, want: []string{"spaced", "out"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, graph.Terms(tt.value, tt.kind))
		})
	}
}

func TestTerm(t *testing.T) {
	assert.Equal(t, "Ada", graph.Term("Ada", graph.IndexExact))
	assert.Equal(t, "ada", graph.Term("Ada", graph.IndexFulltext))
}
