package state

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStore_SetGetDelete(t *testing.T) {
	s := NewStore(testLogger())

	s.Set("u1", map[string]any{"n": float64(1)})

	got, ok := s.Get("u1")
	require.True(t, ok)
	require.Equal(t, map[string]any{"n": float64(1)}, got)

	require.True(t, s.Delete("u1"))
	require.False(t, s.Delete("u1"))

	_, ok = s.Get("u1")
	require.False(t, ok)
}

func TestStore_GetReturnsOwnedCopy(t *testing.T) {
	s := NewStore(testLogger())
	s.Set("k", map[string]any{"a": float64(1)})

	got, ok := s.Get("k")
	require.True(t, ok)

	got.(map[string]any)["a"] = float64(99)

	again, ok := s.Get("k")
	require.True(t, ok)
	require.Equal(t, map[string]any{"a": float64(1)}, again)
}

func TestStore_UpdatePropagatesError(t *testing.T) {
	s := NewStore(testLogger())
	s.Set("k", "before")

	boom := errors.New("boom")

	_, err := s.Update("k", func(any, bool) (any, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)

	got, ok := s.Get("k")
	require.True(t, ok)
	require.Equal(t, "before", got)
}

func TestStore_UpdateConcurrentAppends(t *testing.T) {
	// N concurrent updates each append a unique tag; the final list must
	// contain all tags exactly once.
	const n = 64

	s := NewStore(testLogger())

	var wg sync.WaitGroup

	for i := range n {
		wg.Add(1)

		go func() {
			defer wg.Done()

			tag := fmt.Sprintf("tag-%03d", i)

			_, err := s.Update("list", func(current any, exists bool) (any, error) {
				var items []any
				if exists {
					items = current.([]any)
				}

				return append(items, tag), nil
			})
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	got, ok := s.Get("list")
	require.True(t, ok)

	items := got.([]any)
	require.Len(t, items, n)

	seen := make(map[any]bool, n)
	for _, item := range items {
		require.False(t, seen[item], "duplicate tag %v", item)

		seen[item] = true
	}
}

func TestStore_UpdateIndependentKeys(t *testing.T) {
	// A slow update of one key must not block access to another key.
	s := NewStore(testLogger())
	s.Set("slow", float64(0))
	s.Set("fast", float64(0))

	entered := make(chan struct{})
	release := make(chan struct{})

	done := make(chan struct{})

	go func() {
		defer close(done)

		_, _ = s.Update("slow", func(current any, _ bool) (any, error) {
			close(entered)
			<-release

			return current, nil
		})
	}()

	<-entered

	s.Set("fast", float64(1))

	got, ok := s.Get("fast")
	require.True(t, ok)
	require.Equal(t, float64(1), got)

	close(release)
	<-done
}

func TestStore_QueryFilter(t *testing.T) {
	s := NewStore(testLogger())
	s.Set("a", map[string]any{"kind": "user", "n": float64(1)})
	s.Set("b", map[string]any{"kind": "user", "n": float64(2)})
	s.Set("c", map[string]any{"kind": "group"})
	s.Set("d", "scalar")

	all := s.Query(nil)
	require.Len(t, all, 4)

	users := s.Query(map[string]any{"kind": "user"})
	require.Len(t, users, 2)
	assert.Contains(t, users, "a")
	assert.Contains(t, users, "b")

	one := s.Query(map[string]any{"kind": "user", "n": float64(2)})
	require.Len(t, one, 1)
	assert.Contains(t, one, "b")

	none := s.Query(map[string]any{"kind": "robot"})
	require.Empty(t, none)
}

func TestStore_ApplyActions(t *testing.T) {
	tests := []struct {
		name    string
		initial any
		action  string
		data    any
		want    any
		deleted bool
	}{
		{
			name:   "set creates",
			action: "set",
			data:   map[string]any{"n": float64(1)},
			want:   map[string]any{"n": float64(1)},
		},
		{
			name:    "create overwrites",
			initial: map[string]any{"old": true},
			action:  "create",
			data:    map[string]any{"new": true},
			want:    map[string]any{"new": true},
		},
		{
			name:    "update merges objects",
			initial: map[string]any{"a": float64(1)},
			action:  "update",
			data:    map[string]any{"b": float64(2)},
			want:    map[string]any{"a": float64(1), "b": float64(2)},
		},
		{
			name:    "update replaces non-objects",
			initial: "scalar",
			action:  "update",
			data:    map[string]any{"b": float64(2)},
			want:    map[string]any{"b": float64(2)},
		},
		{
			name:    "update without data is a no-op",
			initial: map[string]any{"a": float64(1)},
			action:  "update",
			want:    map[string]any{"a": float64(1)},
		},
		{
			name:    "delete removes",
			initial: map[string]any{"a": float64(1)},
			action:  "delete",
			deleted: true,
		},
		{
			name:   "delete missing reports false",
			action: "delete",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(testLogger())
			if tt.initial != nil {
				s.Set("e", tt.initial)
			}

			res, err := s.Apply("e", tt.action, tt.data)
			require.NoError(t, err)

			if tt.action == "delete" {
				require.Equal(t, tt.deleted, res.Deleted)

				_, ok := s.Get("e")
				require.False(t, ok)

				return
			}

			require.Equal(t, tt.want, res.Value)
		})
	}
}

func TestStore_ApplyUnknownActionRecordsAudit(t *testing.T) {
	s := NewStore(testLogger())
	s.Set("e", map[string]any{"keep": "me"})

	res, err := s.Apply("e", "poke", map[string]any{"x": float64(1)})
	require.NoError(t, err)

	obj := res.Value.(map[string]any)
	assert.Equal(t, "me", obj["keep"])
	assert.Equal(t, "poke", obj["last_action"])
	assert.Equal(t, map[string]any{"x": float64(1)}, obj["last_action_data"])
	assert.NotEmpty(t, obj["last_action_time"])
}
