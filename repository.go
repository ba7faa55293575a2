package neogm

import (
	"context"
	"fmt"

	"github.com/graphbound/neogm/graph"
	"github.com/graphbound/neogm/meta"
)

// EntityRepository is the finder contract for one entity type. The default
// implementation is Repository; a type can substitute its own through
// meta.Metadata.Repository, usually by embedding the base repository and
// adding domain finders.
type EntityRepository interface {
	// Find returns the entity with the given primary key.
	Find(ctx context.Context, id int64) (any, error)

	// FindOneBy returns the first entity indexed under the field and value.
	// Returns ErrNotFound when nothing matches.
	FindOneBy(ctx context.Context, field string, value any) (any, error)

	// FindBy returns every entity indexed under the field and value.
	FindBy(ctx context.Context, field string, value any) ([]any, error)

	// All returns every entity of the type, through its default index.
	All(ctx context.Context) ([]any, error)
}

// Repository is the default EntityRepository, resolving entities through the
// type's declared indexes and its default per-type index.
type Repository struct {
	em *Manager
	md *meta.Metadata
}

// Repository returns the repository for the prototype's entity type: the
// default one, or the custom one built by the type's repository constructor.
// A constructor that returns a value not satisfying EntityRepository violates
// the repository contract and surfaces as a mapping error.
func (m *Manager) Repository(prototype any) (EntityRepository, error) {
	md, err := m.describe(prototype)
	if err != nil {
		return nil, err
	}

	base := &Repository{em: m, md: md}
	if md.Repository == nil {
		return base, nil
	}

	custom := md.Repository(base)
	repo, ok := custom.(EntityRepository)
	if !ok || isNil(custom) {
		return nil, fmt.Errorf("%w: repository constructor for %s does not satisfy the repository contract (got %T)",
			ErrMapping, md.Class, custom)
	}
	return repo, nil
}

// Manager returns the entity manager the repository resolves through.
func (r *Repository) Manager() *Manager { return r.em }

// Find implements EntityRepository.
func (r *Repository) Find(ctx context.Context, id int64) (any, error) {
	return r.em.Find(ctx, r.md.New(), id)
}

// FindOneBy implements EntityRepository.
func (r *Repository) FindOneBy(ctx context.Context, field string, value any) (any, error) {
	entities, err := r.FindBy(ctx, field, value)
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, fmt.Errorf("%w: no %s with %s=%v", ErrNotFound, r.md.Class, field, value)
	}
	return entities[0], nil
}

// FindBy implements EntityRepository.
func (r *Repository) FindBy(ctx context.Context, field string, value any) ([]any, error) {
	def, err := r.indexFor(field)
	if err != nil {
		return nil, err
	}
	idx, err := r.em.client.Index(ctx, def.Name, def.Kind)
	if err != nil {
		return nil, err
	}
	ids, err := idx.Find(ctx, field, value)
	if err != nil {
		return nil, err
	}
	return r.loadAll(ctx, ids)
}

// All implements EntityRepository.
func (r *Repository) All(ctx context.Context) ([]any, error) {
	idx, err := r.em.client.Index(ctx, r.md.Class, graph.IndexExact)
	if err != nil {
		return nil, err
	}
	ids, err := idx.All(ctx)
	if err != nil {
		return nil, err
	}
	return r.loadAll(ctx, ids)
}

// indexFor locates the declared index storing entries under the field.
func (r *Repository) indexFor(field string) (meta.IndexDef, error) {
	for _, def := range r.md.Indexes {
		if def.Field == field {
			return def, nil
		}
	}
	return meta.IndexDef{}, fmt.Errorf("%w: %s declares no index on field %q", ErrMapping, r.md.Class, field)
}

func (r *Repository) loadAll(ctx context.Context, ids []int64) ([]any, error) {
	entities := make([]any, 0, len(ids))
	for _, id := range ids {
		entity, err := r.em.Find(ctx, r.md.New(), id)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	return entities, nil
}
