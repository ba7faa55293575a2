// Package redistore provides a Redis-backed graph.Client using go-redis/v9.
//
// Layout: node and relationship records are JSON blobs under
// neogm:node:{id} and neogm:rel:{id}; adjacency lives in neogm:out:{id} and
// neogm:in:{id} sets of relationship ids; identifiers come from the
// neogm:seq:node and neogm:seq:rel counters. Index entries are sets of node
// ids keyed by index name, field and normalized term.
//
// Property values round-trip through JSON, so numeric properties come back
// as float64 regardless of how they were written.
//
// Redis has no multi-key transaction that spans the interleaved reads and
// writes of a flush phase, so batch scopes are grouping markers only: writes
// apply immediately and Discard does not roll them back.
package redistore

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/graphbound/neogm/graph"
)

// Options configures the Redis connection.
type Options struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379").
	URL string

	// TLS configuration for secure connections.
	TLS *tls.Config

	// ConnectTimeout is the maximum time to wait for connection establishment.
	ConnectTimeout time.Duration

	// ReadTimeout is the maximum time to wait for read operations.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait for write operations.
	WriteTimeout time.Duration
}

// Store is a Redis-backed graph.Client.
type Store struct {
	rdb *redis.Client

	mu    sync.Mutex
	batch *batch
}

// Open creates a Redis graph store with the given options and verifies the
// connection.
func Open(opts Options) (*Store, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	redisOpts.TLSConfig = opts.TLS
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	rdb := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{rdb: rdb}, nil
}

// Wrap builds a Store around an existing Redis client. Used by tests that
// run against an in-process server.
func Wrap(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Key layout helpers. Every key the store touches goes through these.

func nodeKey(id int64) string   { return "neogm:node:" + strconv.FormatInt(id, 10) }
func labelsKey(id int64) string { return "neogm:labels:" + strconv.FormatInt(id, 10) }
func relKey(id int64) string    { return "neogm:rel:" + strconv.FormatInt(id, 10) }
func outKey(id int64) string    { return "neogm:out:" + strconv.FormatInt(id, 10) }
func inKey(id int64) string     { return "neogm:in:" + strconv.FormatInt(id, 10) }

func indexMetaKey(name string) string { return "neogm:index:" + name }
func indexNodesKey(name string) string {
	return "neogm:index:" + name + ":nodes"
}
func indexEntryKey(name, field, term string) string {
	return "neogm:index:" + name + ":" + field + ":" + term
}
func indexNodeEntriesKey(name string, id int64) string {
	return "neogm:index:" + name + ":node:" + strconv.FormatInt(id, 10)
}

type relRecord struct {
	Type       string         `json:"type"`
	StartID    int64          `json:"start_id"`
	EndID      int64          `json:"end_id"`
	Properties map[string]any `json:"properties"`
}

// CreateNode implements graph.Client.
func (s *Store) CreateNode(ctx context.Context) (*graph.Node, error) {
	id, err := s.rdb.Incr(ctx, "neogm:seq:node").Result()
	if err != nil {
		return nil, err
	}
	if err := s.rdb.Set(ctx, nodeKey(id), "{}", 0).Err(); err != nil {
		return nil, err
	}
	s.countWrite()
	return graph.NewNode(id), nil
}

// Node implements graph.Client.
func (s *Store) Node(ctx context.Context, id int64) (*graph.Node, error) {
	data, err := s.rdb.Get(ctx, nodeKey(id)).Result()
	if errors.Is(err, redis.Nil) {
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
	if err := s.exists(ctx, nodeKey(node.ID), graph.ErrNodeNotFound, node.ID); err != nil {
		return err
	}
	data, err := json.Marshal(node.Properties)
	if err != nil {
		return fmt.Errorf("node %d properties not serializable: %w", node.ID, err)
	}
	if err := s.rdb.Set(ctx, nodeKey(node.ID), data, 0).Err(); err != nil {
		return err
	}
	s.countWrite()
	return nil
}

// AddLabels implements graph.Client.
func (s *Store) AddLabels(ctx context.Context, id int64, labels []string) error {
	if err := s.exists(ctx, nodeKey(id), graph.ErrNodeNotFound, id); err != nil {
		return err
	}
	if len(labels) == 0 {
		return nil
	}
	members := make([]any, len(labels))
	for i, l := range labels {
		members[i] = l
	}
	if err := s.rdb.SAdd(ctx, labelsKey(id), members...).Err(); err != nil {
		return err
	}
	s.countWrite()
	return nil
}

// Labels returns the labels attached to a node. Not part of graph.Client;
// exists so tests can observe label writes.
func (s *Store) Labels(ctx context.Context, id int64) ([]string, error) {
	return s.rdb.SMembers(ctx, labelsKey(id)).Result()
}

// Relate implements graph.Client.
func (s *Store) Relate(ctx context.Context, fromID, toID int64, relType string) (*graph.Relationship, error) {
	if err := s.exists(ctx, nodeKey(fromID), graph.ErrNodeNotFound, fromID); err != nil {
		return nil, err
	}
	if err := s.exists(ctx, nodeKey(toID), graph.ErrNodeNotFound, toID); err != nil {
		return nil, err
	}

	id, err := s.rdb.Incr(ctx, "neogm:seq:rel").Result()
	if err != nil {
		return nil, err
	}
	rec := relRecord{Type: relType, StartID: fromID, EndID: toID, Properties: map[string]any{}}
	if err := s.putRel(ctx, id, rec); err != nil {
		return nil, err
	}

	pipe := s.rdb.TxPipeline()
	pipe.SAdd(ctx, outKey(fromID), id)
	pipe.SAdd(ctx, inKey(toID), id)
	if _, err := pipe.Exec(ctx); err != nil {
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
	rec, err := s.getRel(ctx, rel.ID)
	if err != nil {
		return err
	}
	rec.Properties = rel.Properties
	if err := s.putRel(ctx, rel.ID, rec); err != nil {
		return err
	}
	s.countWrite()
	return nil
}

// Relationships implements graph.Client.
func (s *Store) Relationships(ctx context.Context, id int64, dir graph.Direction) ([]*graph.Relationship, error) {
	if err := s.exists(ctx, nodeKey(id), graph.ErrNodeNotFound, id); err != nil {
		return nil, err
	}

	var relIDs []string
	switch dir {
	case graph.Outgoing:
		ids, err := s.rdb.SMembers(ctx, outKey(id)).Result()
		if err != nil {
			return nil, err
		}
		relIDs = ids
	case graph.Incoming:
		ids, err := s.rdb.SMembers(ctx, inKey(id)).Result()
		if err != nil {
			return nil, err
		}
		relIDs = ids
	case graph.Both:
		ids, err := s.rdb.SUnion(ctx, outKey(id), inKey(id)).Result()
		if err != nil {
			return nil, err
		}
		relIDs = ids
	}

	rels := make([]*graph.Relationship, 0, len(relIDs))
	for _, raw := range relIDs {
		relID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt adjacency for node %d: %w", id, err)
		}
		rec, err := s.getRel(ctx, relID)
		if err != nil {
			return nil, err
		}
		rels = append(rels, &graph.Relationship{
			ID:         relID,
			Type:       rec.Type,
			StartID:    rec.StartID,
			EndID:      rec.EndID,
			Properties: rec.Properties,
		})
	}
	return rels, nil
}

// DeleteRelationship implements graph.Client.
func (s *Store) DeleteRelationship(ctx context.Context, id int64) error {
	rec, err := s.getRel(ctx, id)
	if err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, relKey(id))
	pipe.SRem(ctx, outKey(rec.StartID), id)
	pipe.SRem(ctx, inKey(rec.EndID), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	s.countWrite()
	return nil
}

// DeleteNode implements graph.Client.
func (s *Store) DeleteNode(ctx context.Context, id int64) error {
	if err := s.exists(ctx, nodeKey(id), graph.ErrNodeNotFound, id); err != nil {
		return err
	}
	out, err := s.rdb.SCard(ctx, outKey(id)).Result()
	if err != nil {
		return err
	}
	in, err := s.rdb.SCard(ctx, inKey(id)).Result()
	if err != nil {
		return err
	}
	if out > 0 || in > 0 {
		return fmt.Errorf("%w: %d", graph.ErrNodeInUse, id)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, nodeKey(id))
	pipe.Del(ctx, labelsKey(id))
	pipe.Del(ctx, outKey(id))
	pipe.Del(ctx, inKey(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	s.countWrite()
	return nil
}

// Index implements graph.Client.
func (s *Store) Index(ctx context.Context, name string, kind graph.IndexKind) (graph.Index, error) {
	created, err := s.rdb.HSetNX(ctx, indexMetaKey(name), "kind", kind.String()).Result()
	if err != nil {
		return nil, err
	}
	if !created {
		stored, err := s.rdb.HGet(ctx, indexMetaKey(name), "kind").Result()
		if err != nil {
			return nil, err
		}
		if stored != kind.String() {
			return nil, fmt.Errorf("%w: %s is %s", graph.ErrIndexKindMismatch, name, stored)
		}
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
	s.batch = &batch{store: s}
	return s.batch, nil
}

// Query implements graph.Client. Redis speaks no graph query dialect.
func (s *Store) Query(ctx context.Context, dialect graph.Dialect, text string, params map[string]any) ([][]any, error) {
	return nil, fmt.Errorf("%w: %s", graph.ErrUnsupportedDialect, dialect)
}

// Ping implements graph.Client.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close implements graph.Client.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) exists(ctx context.Context, key string, sentinel error, id int64) error {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", sentinel, id)
	}
	return nil
}

func (s *Store) getRel(ctx context.Context, id int64) (relRecord, error) {
	data, err := s.rdb.Get(ctx, relKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return relRecord{}, fmt.Errorf("%w: %d", graph.ErrRelationshipNotFound, id)
	}
	if err != nil {
		return relRecord{}, err
	}
	var rec relRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return relRecord{}, fmt.Errorf("corrupt relationship %d: %w", id, err)
	}
	return rec, nil
}

func (s *Store) putRel(ctx context.Context, id int64, rec relRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("relationship %d not serializable: %w", id, err)
	}
	return s.rdb.Set(ctx, relKey(id), data, 0).Err()
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
	entriesKey := indexNodeEntriesKey(i.name, nodeID)
	keys, err := i.store.rdb.SMembers(ctx, entriesKey).Result()
	if err != nil {
		return err
	}

	pipe := i.store.rdb.TxPipeline()
	for _, key := range keys {
		pipe.SRem(ctx, key, nodeID)
	}
	pipe.Del(ctx, entriesKey)
	pipe.SRem(ctx, indexNodesKey(i.name), nodeID)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	i.store.countWrite()
	return nil
}

func (i *index) Find(ctx context.Context, field string, value any) ([]int64, error) {
	key := indexEntryKey(i.name, field, graph.Term(value, i.kind))
	return i.members(ctx, key)
}

func (i *index) All(ctx context.Context) ([]int64, error) {
	return i.members(ctx, indexNodesKey(i.name))
}

func (i *index) Save(ctx context.Context) error {
	i.mu.Lock()
	staged := i.staged
	i.staged = nil
	i.mu.Unlock()

	if len(staged) == 0 {
		return nil
	}

	pipe := i.store.rdb.TxPipeline()
	for _, e := range staged {
		for _, t := range graph.Terms(e.value, i.kind) {
			key := indexEntryKey(i.name, e.field, t)
			pipe.SAdd(ctx, key, e.nodeID)
			pipe.SAdd(ctx, indexNodeEntriesKey(i.name, e.nodeID), key)
		}
		pipe.SAdd(ctx, indexNodesKey(i.name), e.nodeID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	i.store.countWrite()
	return nil
}

func (i *index) members(ctx context.Context, key string) ([]int64, error) {
	raw, err := i.store.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(raw))
	for _, r := range raw {
		id, err := strconv.ParseInt(r, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt index %s: %w", i.name, err)
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	return ids, nil
}
