package neogm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/graphbound/neogm/event"
	"github.com/graphbound/neogm/graph"
	"github.com/graphbound/neogm/meta"
	"github.com/graphbound/neogm/query"
)

// Manager is the entity manager: it tracks which entities are pending
// persistence or removal, owns the identity map, and runs the flush pipeline
// that synchronizes entities with the graph store.
//
// A Manager is not safe for concurrent use. Persist, Remove and Flush mutate
// the pending sets and the per-flush node cache without locking; callers that
// share a Manager across goroutines must serialize access externally.
type Manager struct {
	client   graph.Client
	provider meta.Provider
	notifier event.Notifier
	logger   *slog.Logger
	tracer   trace.Tracer
	runner   *query.Runner
	now      func() time.Time

	flushDuration metric.Float64Histogram
	entityWrites  metric.Int64Counter

	arena    *arena
	identity *identityMap
	pending  *pendingSet
	removals *pendingSet

	// nodes maps entity handles to the node written for them during the
	// current flush; created lists the entities whose node was created this
	// flush and still need their primary key assigned. Both reset at the end
	// of every flush.
	nodes   map[uuid.UUID]*graph.Node
	created []any
}

// NewManager creates an entity manager.
//
// Example:
//
//	em, err := neogm.NewManager(
//	    neogm.WithClient(store),
//	    neogm.WithProvider(registry),
//	    neogm.WithLogger(logger),
//	)
func NewManager(opts ...Option) (*Manager, error) {
	cfg := &managerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.client == nil {
		return nil, fmt.Errorf("%w: a graph client is required", ErrConfiguration)
	}
	if cfg.provider == nil {
		cfg.provider = meta.Default()
	}
	if cfg.notifier == nil {
		cfg.notifier = event.Nop{}
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
	if cfg.tracer == nil {
		cfg.tracer = otel.Tracer("neogm")
	}
	if cfg.meter == nil {
		cfg.meter = otel.Meter("neogm")
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}

	a := newArena()
	m := &Manager{
		client:   cfg.client,
		provider: cfg.provider,
		notifier: cfg.notifier,
		logger:   cfg.logger,
		tracer:   cfg.tracer,
		now:      cfg.now,
		runner: query.NewRunner(cfg.client,
			query.WithNotifier(cfg.notifier),
			query.WithLogger(cfg.logger),
			query.WithTracer(cfg.tracer),
			query.WithMeter(cfg.meter)),
		arena:    a,
		identity: newIdentityMap(),
		pending:  newPendingSet(a),
		removals: newPendingSet(a),
		nodes:    make(map[uuid.UUID]*graph.Node),
	}

	if hist, err := cfg.meter.Float64Histogram("neogm.flush.duration",
		metric.WithDescription("Flush pipeline execution time"),
		metric.WithUnit("s")); err == nil {
		m.flushDuration = hist
	}
	if ctr, err := cfg.meter.Int64Counter("neogm.flush.entities",
		metric.WithDescription("Entities written by the flush pipeline")); err == nil {
		m.entityWrites = ctr
	}

	return m, nil
}

// Persist marks the entity for persistence in the next flush. Duplicate calls
// for the same entity are idempotent. Entities reachable from it via
// traversed relations are picked up by flush discovery; they do not need
// their own Persist call.
func (m *Manager) Persist(entity any) error {
	if _, err := m.describe(entity); err != nil {
		return err
	}
	m.pending.add(entity)
	return nil
}

// Remove marks the entity for removal in the next flush. Removing an entity
// that was never persisted is a no-op at flush time.
func (m *Manager) Remove(entity any) error {
	if _, err := m.describe(entity); err != nil {
		return err
	}
	m.removals.add(entity)
	return nil
}

// Find fetches the node and maps it to an entity of the prototype's type.
// Returns ErrNotFound if the node does not exist or belongs to a different
// class.
func (m *Manager) Find(ctx context.Context, prototype any, id int64) (any, error) {
	md, err := m.describe(prototype)
	if err != nil {
		return nil, err
	}

	node, err := m.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if node.Class() != md.Class {
		return nil, fmt.Errorf("%w: node %d is %q, not %q", ErrNotFound, id, node.Class(), md.Class)
	}
	return m.Load(node)
}

// FindAny fetches the node and maps it to an entity of whatever class the
// node declares. Returns ErrNotFound if the node does not exist.
func (m *Manager) FindAny(ctx context.Context, id int64) (any, error) {
	node, err := m.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.Load(node)
}

// Load maps a fetched node to an entity instance. Load is idempotent through
// the identity map: two loads of the same node id return the same instance
// until Clear. The node must carry a class property for a registered type.
func (m *Manager) Load(node *graph.Node) (any, error) {
	if entity, ok := m.identity.identify(node.ID); ok {
		return entity, nil
	}

	class := node.Class()
	if class == "" {
		return nil, fmt.Errorf("%w: node %d has no class property", ErrMapping, node.ID)
	}
	md, err := m.provider.DescribeClass(class)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMapping, err)
	}

	entity := md.New()
	md.ID.Set(entity, node.ID)
	hydrate(md, entity, node)
	m.identity.remember(node.ID, entity)
	return entity, nil
}

// Reload re-fetches the entity's node and overwrites the entity's scalar
// properties with the stored values. The entity must have been persisted.
func (m *Manager) Reload(ctx context.Context, entity any) (any, error) {
	md, err := m.describe(entity)
	if err != nil {
		return nil, err
	}
	id, ok := md.ID.Get(entity)
	if !ok {
		return nil, fmt.Errorf("%w: cannot reload an entity without a primary key", ErrMapping)
	}

	node, err := m.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	hydrate(md, entity, node)
	m.identity.remember(id, entity)
	return entity, nil
}

// Clear empties the identity map and both pending sets. After Clear the
// manager behaves as freshly constructed; subsequent loads build new entity
// instances.
func (m *Manager) Clear() {
	m.arena = newArena()
	m.identity.reset()
	m.pending = newPendingSet(m.arena)
	m.removals = newPendingSet(m.arena)
	m.nodes = make(map[uuid.UUID]*graph.Node)
	m.created = nil
}

// CreateIndex creates (or returns) a named index of the given kind.
func (m *Manager) CreateIndex(ctx context.Context, name string, kind graph.IndexKind) (graph.Index, error) {
	return m.client.Index(ctx, name, kind)
}

// TraversalQuery runs a Gremlin query through the query wrapper.
func (m *Manager) TraversalQuery(ctx context.Context, text string, params map[string]any) ([][]any, error) {
	return m.runner.Run(ctx, graph.Gremlin, text, params)
}

// PatternQuery runs a Cypher query through the query wrapper.
func (m *Manager) PatternQuery(ctx context.Context, text string, params map[string]any) ([][]any, error) {
	return m.runner.Run(ctx, graph.Cypher, text, params)
}

// Notifier returns the manager's event notifier for observer registration
// pass-through.
func (m *Manager) Notifier() event.Notifier { return m.notifier }

// Client returns the underlying graph client.
func (m *Manager) Client() graph.Client { return m.client }

// describe resolves metadata for an entity, mapping provider and shape
// failures onto ErrMapping.
func (m *Manager) describe(entity any) (*meta.Metadata, error) {
	if entity == nil {
		return nil, fmt.Errorf("%w: nil entity", ErrMapping)
	}
	if reflect.TypeOf(entity).Kind() != reflect.Pointer {
		return nil, fmt.Errorf("%w: entities must be pointers, got %T", ErrMapping, entity)
	}
	md, err := m.provider.Describe(entity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMapping, err)
	}
	return md, nil
}

// fetch loads a node, translating the store's not-found into ErrNotFound.
func (m *Manager) fetch(ctx context.Context, id int64) (*graph.Node, error) {
	node, err := m.client.Node(ctx, id)
	if err != nil {
		if errors.Is(err, graph.ErrNodeNotFound) {
			return nil, fmt.Errorf("%w: node %d", ErrNotFound, id)
		}
		return nil, err
	}
	return node, nil
}

// notify delivers an event, logging and swallowing notifier failures so a
// misbehaving observer cannot abort the pipeline.
func (m *Manager) notify(ctx context.Context, ev event.Event) {
	if err := m.notifier.Notify(ctx, ev); err != nil {
		m.logger.Warn("event notifier failed",
			"event", ev.Kind.String(),
			"error", err)
	}
}

// timestamp renders the current time in the store's timestamp format.
func (m *Manager) timestamp() string {
	return m.now().Format(graph.TimeFormat)
}

// hydrate copies a node's scalar properties onto the entity.
func hydrate(md *meta.Metadata, entity any, node *graph.Node) {
	for _, p := range md.Properties {
		if p.Set == nil {
			continue
		}
		if v, ok := node.Properties[p.Name]; ok {
			p.Set(entity, v)
		}
	}
}
