package event_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphbound/neogm/event"
)

func TestKindString(t *testing.T) {
	tests := []struct {
		kind event.Kind
		want string
	}{
		{event.PrePersist, "pre_persist"},
		{event.PostPersist, "post_persist"},
		{event.PreRemove, "pre_remove"},
		{event.PostRemove, "post_remove"},
		{event.PreRelationCreate, "pre_relation_create"},
		{event.PostRelationCreate, "post_relation_create"},
		{event.PreRelationUpdate, "pre_relation_update"},
		{event.PreRelationRemove, "pre_relation_remove"},
		{event.PostRelationRemove, "post_relation_remove"},
		{event.PreQuery, "pre_query"},
		{event.PostQuery, "post_query"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.String())
			assert.True(t, tt.kind.IsValid())
		})
	}

	assert.False(t, event.Kind(99).IsValid())
	assert.Equal(t, "Kind(99)", event.Kind(99).String())
}

func TestNop(t *testing.T) {
	assert.NoError(t, event.Nop{}.Notify(context.Background(), event.Event{Kind: event.PrePersist}))
}

func TestFunc(t *testing.T) {
	var got event.Event
	n := event.Func(func(ctx context.Context, ev event.Event) error {
		got = ev
		return nil
	})

	require.NoError(t, n.Notify(context.Background(), event.Event{Kind: event.PreQuery, Query: "g.V()"}))
	assert.Equal(t, event.PreQuery, got.Kind)
	assert.Equal(t, "g.V()", got.Query)
}

func TestMultiFanOut(t *testing.T) {
	var calls []string
	record := func(name string) event.Notifier {
		return event.Func(func(ctx context.Context, ev event.Event) error {
			calls = append(calls, name)
			return nil
		})
	}

	n := event.Multi(record("first"), record("second"))
	require.NoError(t, n.Notify(context.Background(), event.Event{Kind: event.PrePersist}))
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestMultiStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	var reached bool

	n := event.Multi(
		event.Func(func(ctx context.Context, ev event.Event) error { return boom }),
		event.Func(func(ctx context.Context, ev event.Event) error {
			reached = true
			return nil
		}),
	)

	err := n.Notify(context.Background(), event.Event{Kind: event.PrePersist})
	assert.ErrorIs(t, err, boom)
	assert.False(t, reached, "the first error stops the fan-out")
}
