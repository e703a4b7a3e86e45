package state_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-stored/pkg/state"
)

func toString(v any) string {
	return fmt.Sprint(v)
}

func TestResolverResolveLayersOverTemplate(t *testing.T) {
	store := state.NewMemoryStore()
	ctx := context.Background()
	_, err := store.Save(ctx, state.Ref{}, map[string]any{
		"dashboard": map[string]any{"activity": map[string]any{"current": 120}},
	}, state.Meta{SnapshotID: "s1"})
	require.NoError(t, err)

	template := map[string]any{
		"dashboard": map[string]any{
			"activity": map[string]any{"current": 0, "total": 500},
			"daily":    map[string]any{},
		},
		"auto_update": true,
	}

	resolved, meta, err := state.Resolver{Store: store}.Resolve(ctx, state.Ref{}, template)
	require.NoError(t, err)
	assert.Equal(t, "s1", meta.SnapshotID)
	assert.Equal(t, map[string]any{
		"dashboard": map[string]any{
			"activity": map[string]any{"current": 120, "total": 500},
			"daily":    map[string]any{},
		},
		"auto_update": true,
	}, resolved)

	resolved["auto_update"] = false
	assert.Equal(t, true, template["auto_update"])
}

func TestResolverResolveMissingTreeUsesTemplate(t *testing.T) {
	resolved, meta, err := state.Resolver{Store: state.NewMemoryStore()}.Resolve(context.Background(), state.Ref{}, map[string]any{"a": 1})
	require.NoError(t, err)
	assert.Empty(t, meta.SnapshotID)
	assert.Equal(t, map[string]any{"a": 1}, resolved)
}

func TestResolverRequiresStore(t *testing.T) {
	_, _, err := state.Resolver{}.Resolve(context.Background(), state.Ref{}, nil)
	require.Error(t, err)
	_, _, err = state.Resolver{}.Mutate(context.Background(), state.Ref{}, state.Meta{}, func(map[string]any) error { return nil })
	require.Error(t, err)
}

func TestResolverMutate(t *testing.T) {
	store := state.NewMemoryStore()
	ctx := context.Background()
	resolver := state.Resolver{Store: store}

	data, meta, err := resolver.Mutate(ctx, state.Ref{}, state.Meta{SnapshotID: "m1"}, func(data map[string]any) error {
		data["count"] = 1
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, data["count"])
	assert.Equal(t, "m1", meta.SnapshotID)

	_, _, err = resolver.Mutate(ctx, state.Ref{}, state.Meta{ETag: `"stale"`}, func(data map[string]any) error {
		data["count"] = 2
		return nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, state.ErrETagMismatch))

	boom := errors.New("boom")
	_, _, err = resolver.Mutate(ctx, state.Ref{}, state.Meta{}, func(map[string]any) error { return boom })
	assert.ErrorIs(t, err, boom)

	loaded, _, _, err := store.Load(ctx, state.Ref{})
	require.NoError(t, err)
	assert.Equal(t, 1, loaded["count"])
}
