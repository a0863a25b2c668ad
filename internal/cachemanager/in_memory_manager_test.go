package cachemanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type commitKey string

type authorInfo struct {
	Name  string
	Email string
}

func TestInMemoryCacheManager_GetSet(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryCacheManager[commitKey, authorInfo]("authors", DefaultExpiration, DefaultCleanupInterval)

	_, ok := cache.Get(ctx, "abc")
	require.False(t, ok)

	want := authorInfo{Name: "Ada", Email: "ada@example.com"}
	cache.Set(ctx, "abc", want, NoExpiration)

	got, ok := cache.Get(ctx, "abc")
	require.True(t, ok)
	require.Equal(t, want, got)
	require.Equal(t, Stats{Hits: 1, Misses: 1}, cache.Stats())
}

func TestInMemoryCacheManager_Expiration(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryCacheManager[string, int]("short", DefaultExpiration, DefaultCleanupInterval)

	cache.Set(ctx, "k", 1, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		_, ok := cache.Get(ctx, "k")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestInMemoryCacheManager_GetMultiple(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryCacheManager[string, string]("titles", DefaultExpiration, DefaultCleanupInterval)
	cache.Set(ctx, "a", "A", NoExpiration)
	cache.Set(ctx, "c", "C", NoExpiration)

	found, missing := cache.GetMultiple(ctx, []string{"a", "b", "c"})
	require.Equal(t, map[string]string{"a": "A", "c": "C"}, found)
	require.Equal(t, []string{"b"}, missing)
}

func TestInMemoryCacheManager_DeleteFlushLen(t *testing.T) {
	ctx := context.Background()
	cache := NewInMemoryCacheManager[string, int]("refs", DefaultExpiration, DefaultCleanupInterval)
	cache.Set(ctx, "a", 1, NoExpiration)
	cache.Set(ctx, "b", 2, NoExpiration)
	cache.Set(ctx, "c", 3, NoExpiration)
	require.Equal(t, 3, cache.Len())

	cache.Delete(ctx, "a", "b")
	require.Equal(t, 1, cache.Len())

	cache.Flush(ctx)
	require.Equal(t, 0, cache.Len())
}
