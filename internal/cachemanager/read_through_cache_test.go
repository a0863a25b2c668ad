package cachemanager

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadThroughCache_LoadsOnce(t *testing.T) {
	ctx := context.Background()
	calls := 0
	rt := NewReadThroughCache[string, int](
		NewInMemoryCacheManager[string, int]("paths", DefaultExpiration, DefaultCleanupInterval),
		func(_ context.Context, key string) (int, error) {
			calls++
			return len(key), nil
		},
		NoExpiration,
		false,
	)

	v, err := rt.Get(ctx, "abcd")
	require.NoError(t, err)
	require.Equal(t, 4, v)

	v, err = rt.Get(ctx, "abcd")
	require.NoError(t, err)
	require.Equal(t, 4, v)
	require.Equal(t, 1, calls)

	rt.Invalidate(ctx, "abcd")
	_, err = rt.Get(ctx, "abcd")
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestReadThroughCache_ErrorsAreNotCached(t *testing.T) {
	ctx := context.Background()
	fail := true
	rt := NewReadThroughCache[string, string](
		NewInMemoryCacheManager[string, string]("meta", DefaultExpiration, DefaultCleanupInterval),
		func(_ context.Context, key string) (string, error) {
			if fail {
				return "", errors.New("object missing")
			}
			return "ok", nil
		},
		NoExpiration,
		false,
	)

	_, err := rt.Get(ctx, "k")
	require.Error(t, err)

	fail = false
	v, err := rt.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "ok", v)
}

func TestReadThroughCache_Bypass(t *testing.T) {
	ctx := context.Background()
	calls := 0
	rt := NewReadThroughCache[string, int](
		NewInMemoryCacheManager[string, int]("bypass", DefaultExpiration, DefaultCleanupInterval),
		func(context.Context, string) (int, error) {
			calls++
			return calls, nil
		},
		NoExpiration,
		true,
	)

	_, _ = rt.Get(ctx, "x")
	_, _ = rt.Get(ctx, "x")
	require.Equal(t, 2, calls)
}
