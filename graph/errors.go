package graph

import "errors"

// Sentinel errors returned by Client implementations.
// These errors can be used with errors.Is() for error checking.
var (
	// ErrNodeNotFound indicates that the requested node does not exist in the
	// store. Returned by Node, SaveNode, Relate and Relationships.
	ErrNodeNotFound = errors.New("graph: node not found")

	// ErrRelationshipNotFound indicates that the requested relationship does
	// not exist in the store.
	ErrRelationshipNotFound = errors.New("graph: relationship not found")

	// ErrNodeInUse indicates an attempt to delete a node that still has
	// relationships attached.
	ErrNodeInUse = errors.New("graph: node has relationships")

	// ErrBatchInFlight indicates that BeginBatch was called while a batch was
	// already open. Batch scopes are not reentrant.
	ErrBatchInFlight = errors.New("graph: batch already in flight")

	// ErrIndexKindMismatch indicates that an existing index was requested
	// with a different kind than it was created with.
	ErrIndexKindMismatch = errors.New("graph: index exists with different kind")

	// ErrUnsupportedDialect indicates that the backend cannot execute queries
	// in the requested dialect.
	ErrUnsupportedDialect = errors.New("graph: unsupported query dialect")
)
