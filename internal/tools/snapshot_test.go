package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkavo/arkavo-mcp/internal/state"
	"github.com/arkavo/arkavo-mcp/internal/tool"
)

func TestSnapshot_CreateRestoreCycle(t *testing.T) {
	store := state.NewStore(testLogger())
	store.Set("doc", map[string]any{"v": float64(1)})

	snap := NewSnapshot(store)

	result, err := snap.Execute(context.Background(), map[string]any{
		"action": "create", "name": "before",
	})
	require.NoError(t, err)
	assert.Equal(t, "before", result["created"])

	store.Set("doc", map[string]any{"v": float64(2)})

	result, err = snap.Execute(context.Background(), map[string]any{
		"action": "restore", "name": "before",
	})
	require.NoError(t, err)
	assert.Equal(t, "before", result["restored"])

	value, found := store.Get("doc")
	require.True(t, found)
	assert.Equal(t, map[string]any{"v": float64(1)}, value)
}

func TestSnapshot_DuplicateName(t *testing.T) {
	store := state.NewStore(testLogger())
	snap := NewSnapshot(store)

	_, err := snap.Execute(context.Background(), map[string]any{
		"action": "create", "name": "dup",
	})
	require.NoError(t, err)

	result, err := snap.Execute(context.Background(), map[string]any{
		"action": "create", "name": "dup",
	})
	require.NoError(t, err)

	code, _, ok := tool.ErrorOf(result)
	require.True(t, ok)
	assert.Equal(t, "NameExists", code)
}

func TestSnapshot_RestoreUnknown(t *testing.T) {
	snap := NewSnapshot(state.NewStore(testLogger()))

	result, err := snap.Execute(context.Background(), map[string]any{
		"action": "restore", "name": "missing",
	})
	require.NoError(t, err)

	code, _, ok := tool.ErrorOf(result)
	require.True(t, ok)
	assert.Equal(t, "NotFound", code)
}

func TestSnapshot_List(t *testing.T) {
	store := state.NewStore(testLogger())
	store.Set("a", map[string]any{"x": float64(1)})

	snap := NewSnapshot(store)

	_, err := snap.Execute(context.Background(), map[string]any{"action": "create", "name": "one"})
	require.NoError(t, err)

	result, err := snap.Execute(context.Background(), map[string]any{"action": "list"})
	require.NoError(t, err)

	assert.Equal(t, 1, result["count"])

	list, ok := result["snapshots"].([]any)
	require.True(t, ok)
	require.Len(t, list, 1)

	entry, ok := list[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "one", entry["name"])
	assert.NotEmpty(t, entry["id"])
}

func TestSnapshot_BadAction(t *testing.T) {
	snap := NewSnapshot(state.NewStore(testLogger()))

	result, err := snap.Execute(context.Background(), map[string]any{"action": "clone"})
	require.NoError(t, err)

	code, _, ok := tool.ErrorOf(result)
	require.True(t, ok)
	assert.Equal(t, "InvalidParams", code)
}
