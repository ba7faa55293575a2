package graph

import (
	"context"
	"fmt"
)

// Direction selects which relationships of a node to enumerate.
type Direction int

const (
	// Outgoing enumerates relationships whose start node is the given node.
	Outgoing Direction = iota

	// Incoming enumerates relationships whose end node is the given node.
	Incoming

	// Both enumerates relationships in either direction.
	Both
)

// String returns the string representation of the Direction.
func (d Direction) String() string {
	switch d {
	case Outgoing:
		return "outgoing"
	case Incoming:
		return "incoming"
	case Both:
		return "both"
	default:
		return fmt.Sprintf("Direction(%d)", d)
	}
}

// Dialect identifies a query language understood by a backend.
type Dialect int

const (
	// Cypher is the pattern-match query dialect.
	Cypher Dialect = iota

	// Gremlin is the traversal query dialect.
	Gremlin
)

// String returns the string representation of the Dialect.
func (d Dialect) String() string {
	switch d {
	case Cypher:
		return "cypher"
	case Gremlin:
		return "gremlin"
	default:
		return fmt.Sprintf("Dialect(%d)", d)
	}
}

// ParseDialect parses a string into a Dialect value.
func ParseDialect(s string) (Dialect, error) {
	switch s {
	case "cypher":
		return Cypher, nil
	case "gremlin":
		return Gremlin, nil
	default:
		return 0, fmt.Errorf("invalid query dialect: %s", s)
	}
}

// IndexKind selects how an index matches values.
type IndexKind int

const (
	// IndexExact matches whole values.
	IndexExact IndexKind = iota

	// IndexFulltext matches individual tokens of a text value.
	IndexFulltext
)

// String returns the string representation of the IndexKind.
func (k IndexKind) String() string {
	switch k {
	case IndexExact:
		return "exact"
	case IndexFulltext:
		return "fulltext"
	default:
		return fmt.Sprintf("IndexKind(%d)", k)
	}
}

// ParseIndexKind parses a string into an IndexKind value.
func ParseIndexKind(s string) (IndexKind, error) {
	switch s {
	case "exact":
		return IndexExact, nil
	case "fulltext":
		return IndexFulltext, nil
	default:
		return 0, fmt.Errorf("invalid index kind: %s", s)
	}
}

// Client is the store contract the mapper writes through. Implementations are
// safe for concurrent use, except for the batch scope: at most one batch may
// be in flight per client, and BeginBatch while one is open returns
// ErrBatchInFlight.
type Client interface {
	// CreateNode allocates a new node and returns it with its store-assigned
	// identifier. The returned node carries an empty property map.
	CreateNode(ctx context.Context) (*Node, error)

	// Node fetches a node by identifier.
	// Returns ErrNodeNotFound if no such node exists.
	Node(ctx context.Context, id int64) (*Node, error)

	// SaveNode persists the node's current property map, replacing the stored
	// properties. Returns ErrNodeNotFound if the node does not exist.
	SaveNode(ctx context.Context, node *Node) error

	// AddLabels attaches labels to a node. Duplicate labels are ignored.
	AddLabels(ctx context.Context, id int64, labels []string) error

	// Relate creates a new relationship of the given type between two existing
	// nodes and returns it with its store-assigned identifier.
	// Returns ErrNodeNotFound if either endpoint does not exist.
	Relate(ctx context.Context, fromID, toID int64, relType string) (*Relationship, error)

	// SaveRelationship persists the relationship's current property map.
	// Returns ErrRelationshipNotFound if the relationship does not exist.
	SaveRelationship(ctx context.Context, rel *Relationship) error

	// Relationships enumerates a node's relationships in the given direction.
	// Returns ErrNodeNotFound if the node does not exist.
	Relationships(ctx context.Context, id int64, dir Direction) ([]*Relationship, error)

	// DeleteRelationship removes a relationship by identifier. Deleting an
	// unknown relationship returns ErrRelationshipNotFound.
	DeleteRelationship(ctx context.Context, id int64) error

	// DeleteNode removes a node by identifier. The node must have no
	// remaining relationships.
	DeleteNode(ctx context.Context, id int64) error

	// Index returns the named index, creating it with the given kind on first
	// use. Asking for an existing index with a different kind is an error.
	Index(ctx context.Context, name string, kind IndexKind) (Index, error)

	// BeginBatch opens a batch scope. Returns ErrBatchInFlight if a batch is
	// already open.
	BeginBatch(ctx context.Context) (Batch, error)

	// Query executes a query in the given dialect and returns the result rows.
	// Backends that do not understand the dialect return ErrUnsupportedDialect.
	Query(ctx context.Context, dialect Dialect, text string, params map[string]any) ([][]any, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the client's resources.
	Close() error
}

// Index is a named secondary index over nodes. Entries added through Add are
// visible to Find only after Save.
type Index interface {
	// Name returns the index name.
	Name() string

	// Kind returns the index kind.
	Kind() IndexKind

	// Add stages an index entry for the node under the given field and value.
	Add(ctx context.Context, nodeID int64, field string, value any) error

	// Remove deletes every entry for the node from the index.
	Remove(ctx context.Context, nodeID int64) error

	// Find returns the identifiers of nodes indexed under the field and value.
	// For fulltext indexes the value matches any single stored token.
	Find(ctx context.Context, field string, value any) ([]int64, error)

	// All returns the identifiers of every node present in the index.
	All(ctx context.Context) ([]int64, error)

	// Save flushes staged entries to the store.
	Save(ctx context.Context) error
}

// Batch is an open batch scope. Exactly one of Commit or Discard must be
// called; afterwards the batch is spent and the client accepts a new one.
type Batch interface {
	// Size returns the number of write operations performed inside the scope.
	Size() int

	// Commit closes the scope, making its writes durable where the backend
	// supports atomic batches.
	Commit(ctx context.Context) error

	// Discard closes the scope without committing. Backends without real
	// batch atomicity keep writes already applied.
	Discard() error
}
