// Package sqlstore provides a SQLite-backed graph.Client using the
// modernc.org/sqlite driver. Nodes and relationships are rows with JSON
// property blobs; indexes are rows of (name, field, term, node id).
//
// Unlike the other backends, batch scopes here are real SQL transactions:
// Commit makes a phase's writes durable atomically and Discard rolls them
// back.
//
// Property values round-trip through JSON, so numeric properties come back
// as float64 regardless of how they were written.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/graphbound/neogm/graph"
)

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	properties TEXT NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS node_labels (
	node_id INTEGER NOT NULL,
	label   TEXT NOT NULL,
	UNIQUE (node_id, label)
);
CREATE TABLE IF NOT EXISTS relationships (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	type       TEXT NOT NULL,
	start_id   INTEGER NOT NULL,
	end_id     INTEGER NOT NULL,
	properties TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_rel_start ON relationships (start_id);
CREATE INDEX IF NOT EXISTS idx_rel_end   ON relationships (end_id);
CREATE TABLE IF NOT EXISTS indexes (
	name TEXT PRIMARY KEY,
	kind TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS index_entries (
	index_name TEXT NOT NULL,
	field      TEXT NOT NULL,
	term       TEXT NOT NULL,
	node_id    INTEGER NOT NULL,
	UNIQUE (index_name, field, term, node_id)
);
CREATE INDEX IF NOT EXISTS idx_entries_lookup ON index_entries (index_name, field, term);
CREATE INDEX IF NOT EXISTS idx_entries_node   ON index_entries (index_name, node_id);
`

// Store is a SQLite-backed graph.Client.
type Store struct {
	db *sql.DB

	mu    sync.Mutex
	tx    *sql.Tx
	batch *batch
}

// Open creates (or opens) the database at path and prepares the schema.
// Use ":memory:" for an in-process throwaway store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database %s: %w", path, err)
	}
	// The driver is not safe for concurrent writers on one connection pool
	// entry; a single connection also keeps :memory: databases alive.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("preparing schema: %w", err)
	}
	return &Store{db: db}, nil
}

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// q returns the open transaction when a batch is in flight, the database
// otherwise.
func (s *Store) q() querier {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// CreateNode implements graph.Client.
func (s *Store) CreateNode(ctx context.Context) (*graph.Node, error) {
	res, err := s.q().ExecContext(ctx, `INSERT INTO nodes (properties) VALUES ('{}')`)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	s.countWrite()
	return graph.NewNode(id), nil
}

// Node implements graph.Client.
func (s *Store) Node(ctx context.Context, id int64) (*graph.Node, error) {
	var data string
	err := s.q().QueryRowContext(ctx, `SELECT properties FROM nodes WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", graph.ErrNodeNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	props := make(map[string]any)
	if err := json.Unmarshal([]byte(data), &props); err != nil {
		return nil, fmt.Errorf("corrupt node %d: %w", id, err)
	}
	return &graph.Node{ID: id, Properties: props}, nil
}

// SaveNode implements graph.Client.
func (s *Store) SaveNode(ctx context.Context, node *graph.Node) error {
	data, err := json.Marshal(node.Properties)
	if err != nil {
		return fmt.Errorf("node %d properties not serializable: %w", node.ID, err)
	}
	res, err := s.q().ExecContext(ctx, `UPDATE nodes SET properties = ? WHERE id = ?`, string(data), node.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", graph.ErrNodeNotFound, node.ID)
	}
	s.countWrite()
	return nil
}

// AddLabels implements graph.Client.
func (s *Store) AddLabels(ctx context.Context, id int64, labels []string) error {
	if err := s.nodeExists(ctx, id); err != nil {
		return err
	}
	for _, label := range labels {
		if _, err := s.q().ExecContext(ctx,
			`INSERT OR IGNORE INTO node_labels (node_id, label) VALUES (?, ?)`, id, label); err != nil {
			return err
		}
	}
	s.countWrite()
	return nil
}

// Labels returns the labels attached to a node. Not part of graph.Client;
// exists so tests can observe label writes.
func (s *Store) Labels(ctx context.Context, id int64) ([]string, error) {
	rows, err := s.q().QueryContext(ctx,
		`SELECT label FROM node_labels WHERE node_id = ? ORDER BY label`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var labels []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, err
		}
		labels = append(labels, l)
	}
	return labels, rows.Err()
}

// Relate implements graph.Client.
func (s *Store) Relate(ctx context.Context, fromID, toID int64, relType string) (*graph.Relationship, error) {
	if err := s.nodeExists(ctx, fromID); err != nil {
		return nil, err
	}
	if err := s.nodeExists(ctx, toID); err != nil {
		return nil, err
	}

	res, err := s.q().ExecContext(ctx,
		`INSERT INTO relationships (type, start_id, end_id, properties) VALUES (?, ?, ?, '{}')`,
		relType, fromID, toID)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	s.countWrite()

	return &graph.Relationship{
		ID:         id,
		Type:       relType,
		StartID:    fromID,
		EndID:      toID,
		Properties: make(map[string]any),
	}, nil
}

// SaveRelationship implements graph.Client.
func (s *Store) SaveRelationship(ctx context.Context, rel *graph.Relationship) error {
	data, err := json.Marshal(rel.Properties)
	if err != nil {
		return fmt.Errorf("relationship %d not serializable: %w", rel.ID, err)
	}
	res, err := s.q().ExecContext(ctx,
		`UPDATE relationships SET properties = ? WHERE id = ?`, string(data), rel.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", graph.ErrRelationshipNotFound, rel.ID)
	}
	s.countWrite()
	return nil
}

// Relationships implements graph.Client.
func (s *Store) Relationships(ctx context.Context, id int64, dir graph.Direction) ([]*graph.Relationship, error) {
	if err := s.nodeExists(ctx, id); err != nil {
		return nil, err
	}

	var where string
	args := []any{id}
	switch dir {
	case graph.Outgoing:
		where = `start_id = ?`
	case graph.Incoming:
		where = `end_id = ?`
	case graph.Both:
		where = `start_id = ? OR end_id = ?`
		args = append(args, id)
	}

	rows, err := s.q().QueryContext(ctx,
		`SELECT id, type, start_id, end_id, properties FROM relationships WHERE `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rels []*graph.Relationship
	for rows.Next() {
		var (
			rel  graph.Relationship
			data string
		)
		if err := rows.Scan(&rel.ID, &rel.Type, &rel.StartID, &rel.EndID, &data); err != nil {
			return nil, err
		}
		rel.Properties = make(map[string]any)
		if err := json.Unmarshal([]byte(data), &rel.Properties); err != nil {
			return nil, fmt.Errorf("corrupt relationship %d: %w", rel.ID, err)
		}
		rels = append(rels, &rel)
	}
	return rels, rows.Err()
}

// DeleteRelationship implements graph.Client.
func (s *Store) DeleteRelationship(ctx context.Context, id int64) error {
	res, err := s.q().ExecContext(ctx, `DELETE FROM relationships WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", graph.ErrRelationshipNotFound, id)
	}
	s.countWrite()
	return nil
}

// DeleteNode implements graph.Client.
func (s *Store) DeleteNode(ctx context.Context, id int64) error {
	if err := s.nodeExists(ctx, id); err != nil {
		return err
	}

	var attached int
	err := s.q().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM relationships WHERE start_id = ? OR end_id = ?`, id, id).Scan(&attached)
	if err != nil {
		return err
	}
	if attached > 0 {
		return fmt.Errorf("%w: %d", graph.ErrNodeInUse, id)
	}

	if _, err := s.q().ExecContext(ctx, `DELETE FROM node_labels WHERE node_id = ?`, id); err != nil {
		return err
	}
	if _, err := s.q().ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id); err != nil {
		return err
	}
	s.countWrite()
	return nil
}

// Index implements graph.Client.
func (s *Store) Index(ctx context.Context, name string, kind graph.IndexKind) (graph.Index, error) {
	if _, err := s.q().ExecContext(ctx,
		`INSERT OR IGNORE INTO indexes (name, kind) VALUES (?, ?)`, name, kind.String()); err != nil {
		return nil, err
	}

	var stored string
	if err := s.q().QueryRowContext(ctx,
		`SELECT kind FROM indexes WHERE name = ?`, name).Scan(&stored); err != nil {
		return nil, err
	}
	if stored != kind.String() {
		return nil, fmt.Errorf("%w: %s is %s", graph.ErrIndexKindMismatch, name, stored)
	}
	return &index{store: s, name: name, kind: kind}, nil
}

// BeginBatch implements graph.Client.
func (s *Store) BeginBatch(ctx context.Context) (graph.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.batch != nil {
		return nil, graph.ErrBatchInFlight
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	s.tx = tx
	s.batch = &batch{store: s}
	return s.batch, nil
}

// Query implements graph.Client. SQLite speaks no graph query dialect.
func (s *Store) Query(ctx context.Context, dialect graph.Dialect, text string, params map[string]any) ([][]any, error) {
	return nil, fmt.Errorf("%w: %s", graph.ErrUnsupportedDialect, dialect)
}

// Ping implements graph.Client.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements graph.Client.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) nodeExists(ctx context.Context, id int64) error {
	var one int
	err := s.q().QueryRowContext(ctx, `SELECT 1 FROM nodes WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %d", graph.ErrNodeNotFound, id)
	}
	return err
}

func (s *Store) countWrite() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batch != nil {
		s.batch.size++
	}
}

type batch struct {
	store *Store
	size  int
	done  bool
}

func (b *batch) Size() int {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	return b.size
}

func (b *batch) Commit(ctx context.Context) error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()

	if b.done {
		return nil
	}
	b.done = true
	tx := b.store.tx
	b.store.tx = nil
	b.store.batch = nil
	return tx.Commit()
}

func (b *batch) Discard() error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()

	if b.done {
		return nil
	}
	b.done = true
	tx := b.store.tx
	b.store.tx = nil
	b.store.batch = nil
	return tx.Rollback()
}

type index struct {
	store *Store
	name  string
	kind  graph.IndexKind

	mu     sync.Mutex
	staged []stagedEntry
}

type stagedEntry struct {
	nodeID int64
	field  string
	value  any
}

func (i *index) Name() string          { return i.name }
func (i *index) Kind() graph.IndexKind { return i.kind }

func (i *index) Add(ctx context.Context, nodeID int64, field string, value any) error {
	i.mu.Lock()
	i.staged = append(i.staged, stagedEntry{nodeID: nodeID, field: field, value: value})
	i.mu.Unlock()
	i.store.countWrite()
	return nil
}

func (i *index) Remove(ctx context.Context, nodeID int64) error {
	if _, err := i.store.q().ExecContext(ctx,
		`DELETE FROM index_entries WHERE index_name = ? AND node_id = ?`, i.name, nodeID); err != nil {
		return err
	}
	i.store.countWrite()
	return nil
}

func (i *index) Find(ctx context.Context, field string, value any) ([]int64, error) {
	return i.ids(ctx,
		`SELECT DISTINCT node_id FROM index_entries
		 WHERE index_name = ? AND field = ? AND term = ? ORDER BY node_id`,
		i.name, field, graph.Term(value, i.kind))
}

func (i *index) All(ctx context.Context) ([]int64, error) {
	return i.ids(ctx,
		`SELECT DISTINCT node_id FROM index_entries WHERE index_name = ? ORDER BY node_id`,
		i.name)
}

func (i *index) Save(ctx context.Context) error {
	i.mu.Lock()
	staged := i.staged
	i.staged = nil
	i.mu.Unlock()

	for _, e := range staged {
		for _, t := range graph.Terms(e.value, i.kind) {
			if _, err := i.store.q().ExecContext(ctx,
				`INSERT OR IGNORE INTO index_entries (index_name, field, term, node_id) VALUES (?, ?, ?, ?)`,
				i.name, e.field, t, e.nodeID); err != nil {
				return err
			}
		}
	}
	if len(staged) > 0 {
		i.store.countWrite()
	}
	return nil
}

func (i *index) ids(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := i.store.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
