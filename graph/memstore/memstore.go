// Package memstore provides an in-memory graph.Client. It is the reference
// implementation of the store contract and the workhorse of the mapper's own
// tests; everything lives in maps guarded by one mutex.
//
// Batch scopes are grouping markers only: writes apply immediately and
// Discard does not roll them back.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/graphbound/neogm/graph"
)

type nodeRecord struct {
	props  map[string]any
	labels []string
}

// Store is an in-memory graph.Client.
type Store struct {
	// QueryHandler, when set, serves Query calls. Without one every dialect
	// is unsupported. Intended for tests that need canned query results.
	QueryHandler func(ctx context.Context, dialect graph.Dialect, text string, params map[string]any) ([][]any, error)

	mu         sync.Mutex
	nextNodeID int64
	nextRelID  int64
	nodes      map[int64]*nodeRecord
	rels       map[int64]*graph.Relationship
	outgoing   map[int64][]int64
	incoming   map[int64][]int64
	indexes    map[string]*index
	batch      *batch
}

// New creates an empty store.
func New() *Store {
	return &Store{
		nodes:    make(map[int64]*nodeRecord),
		rels:     make(map[int64]*graph.Relationship),
		outgoing: make(map[int64][]int64),
		incoming: make(map[int64][]int64),
		indexes:  make(map[string]*index),
	}
}

// CreateNode implements graph.Client.
func (s *Store) CreateNode(ctx context.Context) (*graph.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextNodeID++
	id := s.nextNodeID
	s.nodes[id] = &nodeRecord{props: make(map[string]any)}
	s.countWrite()
	return graph.NewNode(id), nil
}

// Node implements graph.Client.
func (s *Store) Node(ctx context.Context, id int64) (*graph.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", graph.ErrNodeNotFound, id)
	}
	return &graph.Node{ID: id, Properties: copyProps(rec.props)}, nil
}

// SaveNode implements graph.Client.
func (s *Store) SaveNode(ctx context.Context, node *graph.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.nodes[node.ID]
	if !ok {
		return fmt.Errorf("%w: %d", graph.ErrNodeNotFound, node.ID)
	}
	rec.props = copyProps(node.Properties)
	s.countWrite()
	return nil
}

// AddLabels implements graph.Client.
func (s *Store) AddLabels(ctx context.Context, id int64, labels []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %d", graph.ErrNodeNotFound, id)
	}
	for _, label := range labels {
		if !contains(rec.labels, label) {
			rec.labels = append(rec.labels, label)
		}
	}
	s.countWrite()
	return nil
}

// Labels returns the labels attached to a node. Not part of graph.Client;
// exists so tests can observe label writes.
func (s *Store) Labels(id int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.nodes[id]
	if !ok {
		return nil
	}
	out := make([]string, len(rec.labels))
	copy(out, rec.labels)
	return out
}

// Relate implements graph.Client.
func (s *Store) Relate(ctx context.Context, fromID, toID int64, relType string) (*graph.Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[fromID]; !ok {
		return nil, fmt.Errorf("%w: %d", graph.ErrNodeNotFound, fromID)
	}
	if _, ok := s.nodes[toID]; !ok {
		return nil, fmt.Errorf("%w: %d", graph.ErrNodeNotFound, toID)
	}

	s.nextRelID++
	rel := &graph.Relationship{
		ID:         s.nextRelID,
		Type:       relType,
		StartID:    fromID,
		EndID:      toID,
		Properties: make(map[string]any),
	}
	s.rels[rel.ID] = rel
	s.outgoing[fromID] = append(s.outgoing[fromID], rel.ID)
	s.incoming[toID] = append(s.incoming[toID], rel.ID)
	s.countWrite()
	return copyRel(rel), nil
}

// SaveRelationship implements graph.Client.
func (s *Store) SaveRelationship(ctx context.Context, rel *graph.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.rels[rel.ID]
	if !ok {
		return fmt.Errorf("%w: %d", graph.ErrRelationshipNotFound, rel.ID)
	}
	stored.Properties = copyProps(rel.Properties)
	s.countWrite()
	return nil
}

// Relationships implements graph.Client.
func (s *Store) Relationships(ctx context.Context, id int64, dir graph.Direction) ([]*graph.Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[id]; !ok {
		return nil, fmt.Errorf("%w: %d", graph.ErrNodeNotFound, id)
	}

	var ids []int64
	switch dir {
	case graph.Outgoing:
		ids = s.outgoing[id]
	case graph.Incoming:
		ids = s.incoming[id]
	case graph.Both:
		ids = append(append([]int64{}, s.outgoing[id]...), s.incoming[id]...)
	}

	out := make([]*graph.Relationship, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, relID := range ids {
		if seen[relID] {
			continue // self-loop appears in both lists
		}
		seen[relID] = true
		out = append(out, copyRel(s.rels[relID]))
	}
	return out, nil
}

// DeleteRelationship implements graph.Client.
func (s *Store) DeleteRelationship(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rel, ok := s.rels[id]
	if !ok {
		return fmt.Errorf("%w: %d", graph.ErrRelationshipNotFound, id)
	}
	delete(s.rels, id)
	s.outgoing[rel.StartID] = remove(s.outgoing[rel.StartID], id)
	s.incoming[rel.EndID] = remove(s.incoming[rel.EndID], id)
	s.countWrite()
	return nil
}

// DeleteNode implements graph.Client.
func (s *Store) DeleteNode(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[id]; !ok {
		return fmt.Errorf("%w: %d", graph.ErrNodeNotFound, id)
	}
	if len(s.outgoing[id]) > 0 || len(s.incoming[id]) > 0 {
		return fmt.Errorf("%w: %d", graph.ErrNodeInUse, id)
	}
	delete(s.nodes, id)
	delete(s.outgoing, id)
	delete(s.incoming, id)
	s.countWrite()
	return nil
}

// Index implements graph.Client.
func (s *Store) Index(ctx context.Context, name string, kind graph.IndexKind) (graph.Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.indexes[name]
	if !ok {
		idx = &index{
			store:   s,
			name:    name,
			kind:    kind,
			entries: make(map[string]map[int64]bool),
			byNode:  make(map[int64][]string),
		}
		s.indexes[name] = idx
		return idx, nil
	}
	if idx.kind != kind {
		return nil, fmt.Errorf("%w: %s is %s", graph.ErrIndexKindMismatch, name, idx.kind)
	}
	return idx, nil
}

// BeginBatch implements graph.Client.
func (s *Store) BeginBatch(ctx context.Context) (graph.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.batch != nil {
		return nil, graph.ErrBatchInFlight
	}
	s.batch = &batch{store: s}
	return s.batch, nil
}

// Query implements graph.Client. Without a QueryHandler every dialect is
// unsupported.
func (s *Store) Query(ctx context.Context, dialect graph.Dialect, text string, params map[string]any) ([][]any, error) {
	if s.QueryHandler != nil {
		return s.QueryHandler(ctx, dialect, text, params)
	}
	return nil, fmt.Errorf("%w: %s", graph.ErrUnsupportedDialect, dialect)
}

// Ping implements graph.Client.
func (s *Store) Ping(ctx context.Context) error { return nil }

// Close implements graph.Client.
func (s *Store) Close() error { return nil }

// countWrite bumps the open batch's size. Callers hold s.mu.
func (s *Store) countWrite() {
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

func (b *batch) Commit(ctx context.Context) error { return b.close() }

func (b *batch) Discard() error { return b.close() }

func (b *batch) close() error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()

	if b.done {
		return nil
	}
	b.done = true
	b.store.batch = nil
	return nil
}

type index struct {
	store  *Store
	name   string
	kind   graph.IndexKind
	staged []stagedEntry

	// entries maps "field\x00term" to the set of node ids stored under it.
	entries map[string]map[int64]bool
	byNode  map[int64][]string
}

type stagedEntry struct {
	nodeID int64
	field  string
	value  any
}

func (i *index) Name() string          { return i.name }
func (i *index) Kind() graph.IndexKind { return i.kind }

func (i *index) Add(ctx context.Context, nodeID int64, field string, value any) error {
	i.store.mu.Lock()
	defer i.store.mu.Unlock()

	i.staged = append(i.staged, stagedEntry{nodeID: nodeID, field: field, value: value})
	i.store.countWrite()
	return nil
}

func (i *index) Remove(ctx context.Context, nodeID int64) error {
	i.store.mu.Lock()
	defer i.store.mu.Unlock()

	for _, key := range i.byNode[nodeID] {
		delete(i.entries[key], nodeID)
		if len(i.entries[key]) == 0 {
			delete(i.entries, key)
		}
	}
	delete(i.byNode, nodeID)
	i.store.countWrite()
	return nil
}

func (i *index) Find(ctx context.Context, field string, value any) ([]int64, error) {
	i.store.mu.Lock()
	defer i.store.mu.Unlock()

	key := entryKey(field, graph.Term(value, i.kind))
	ids := make([]int64, 0, len(i.entries[key]))
	for id := range i.entries[key] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	return ids, nil
}

func (i *index) All(ctx context.Context) ([]int64, error) {
	i.store.mu.Lock()
	defer i.store.mu.Unlock()

	ids := make([]int64, 0, len(i.byNode))
	for id := range i.byNode {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	return ids, nil
}

func (i *index) Save(ctx context.Context) error {
	i.store.mu.Lock()
	defer i.store.mu.Unlock()

	for _, e := range i.staged {
		for _, t := range graph.Terms(e.value, i.kind) {
			key := entryKey(e.field, t)
			set, ok := i.entries[key]
			if !ok {
				set = make(map[int64]bool)
				i.entries[key] = set
			}
			set[e.nodeID] = true
			if !contains(i.byNode[e.nodeID], key) {
				i.byNode[e.nodeID] = append(i.byNode[e.nodeID], key)
			}
		}
	}
	i.staged = nil
	i.store.countWrite()
	return nil
}

func entryKey(field, term string) string {
	return field + "\x00" + term
}

func copyProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}

func copyRel(rel *graph.Relationship) *graph.Relationship {
	return &graph.Relationship{
		ID:         rel.ID,
		Type:       rel.Type,
		StartID:    rel.StartID,
		EndID:      rel.EndID,
		Properties: copyProps(rel.Properties),
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func remove(list []int64, id int64) []int64 {
	for i, v := range list {
		if v == id {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
