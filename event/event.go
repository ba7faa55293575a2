// Package event defines the notification hooks emitted by the mapper around
// persist, remove, relation mutation and query execution.
//
// Notifiers are called synchronously at each hook point. A notifier error
// never aborts the operation that triggered it; the mapper logs the error and
// carries on. Observers that need fail-fast semantics should panic or record
// the failure themselves.
package event

import (
	"context"
	"fmt"
	"time"
)

// Kind identifies a notification hook point.
type Kind int

const (
	// PrePersist fires before an entity's node is created or updated.
	PrePersist Kind = iota

	// PostPersist fires after an entity's node has been written.
	PostPersist

	// PreRemove fires before an entity's node is deleted.
	PreRemove

	// PostRemove fires after an entity's node has been deleted.
	PostRemove

	// PreRelationCreate fires before a new relationship is created.
	PreRelationCreate

	// PostRelationCreate fires after a new relationship has been created.
	PostRelationCreate

	// PreRelationUpdate fires before an existing relationship is updated in
	// place instead of duplicated.
	PreRelationUpdate

	// PreRelationRemove fires before a relationship is deleted.
	PreRelationRemove

	// PostRelationRemove fires after a relationship has been deleted.
	PostRelationRemove

	// PreQuery fires before a query is executed.
	PreQuery

	// PostQuery fires after a query has executed; the event carries the
	// elapsed wall-clock time.
	PostQuery
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case PrePersist:
		return "pre_persist"
	case PostPersist:
		return "post_persist"
	case PreRemove:
		return "pre_remove"
	case PostRemove:
		return "post_remove"
	case PreRelationCreate:
		return "pre_relation_create"
	case PostRelationCreate:
		return "post_relation_create"
	case PreRelationUpdate:
		return "pre_relation_update"
	case PreRelationRemove:
		return "pre_relation_remove"
	case PostRelationRemove:
		return "post_relation_remove"
	case PreQuery:
		return "pre_query"
	case PostQuery:
		return "post_query"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// IsValid returns true if the kind is a known hook point.
func (k Kind) IsValid() bool {
	return k >= PrePersist && k <= PostQuery
}

// Event is the payload delivered to notifiers. Fields beyond Kind are
// populated per hook point: Entity for persist/remove hooks, the relation
// fields for relation hooks, Query/Params/Elapsed for query hooks.
type Event struct {
	// Kind is the hook point that fired.
	Kind Kind

	// Entity is the entity being persisted or removed, or the relation's
	// source entity for relation hooks.
	Entity any

	// Target is the relation's target entity for relation hooks.
	Target any

	// RelType is the relationship type for relation hooks.
	RelType string

	// Query is the query text for query hooks.
	Query string

	// Params contains the bound query parameters for query hooks.
	Params map[string]any

	// Elapsed is the query wall-clock time, set on PostQuery only.
	Elapsed time.Duration
}

// Notifier receives events from the mapper. Implementations must be fast;
// they run synchronously on the flushing goroutine.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Nop is a Notifier that ignores every event. It is the default when no
// notifier is configured.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, Event) error { return nil }

// Func adapts a plain function to the Notifier interface.
type Func func(ctx context.Context, ev Event) error

// Notify implements Notifier.
func (f Func) Notify(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Multi fans one event out to several notifiers in order. The first error
// stops the fan-out and is returned.
func Multi(notifiers ...Notifier) Notifier {
	return Func(func(ctx context.Context, ev Event) error {
		for _, n := range notifiers {
			if err := n.Notify(ctx, ev); err != nil {
				return err
			}
		}
		return nil
	})
}
