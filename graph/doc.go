// Package graph defines the store-facing data model and the client contract
// that the mapper writes through: nodes, relationships, indexes, batch scopes
// and query execution.
//
// The mapper itself never talks to a server directly. Every network (or
// in-process) operation goes through the Client interface, which keeps the
// flush pipeline testable and lets callers pick a backend:
//
//   - memstore:   in-memory reference implementation
//   - redistore:  Redis-backed implementation
//   - sqlstore:   SQLite-backed implementation
//
// Batch scopes group the writes of one flush phase. A Client allows at most
// one batch in flight; BeginBatch while a batch is open returns
// ErrBatchInFlight. Whether a batch is atomic depends on the backend (SQLite
// batches are real transactions, Redis batches are grouping markers only).
package graph
