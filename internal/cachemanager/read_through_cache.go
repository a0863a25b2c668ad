package cachemanager

import (
	"context"
	"time"
)

// Loader computes the value for a key on a cache miss.
type Loader[K comparable, V any] func(ctx context.Context, key K) (V, error)

// ReadThroughCache serves values from cache and falls back to a loader.
// Errors from the loader are returned and never cached.
type ReadThroughCache[K comparable, V any] struct {
	cache  CacheManager[K, V]
	load   Loader[K, V]
	ttl    time.Duration
	bypass bool
}

// NewReadThroughCache wraps cache with load. When bypass is true every call
// goes straight to the loader.
func NewReadThroughCache[K comparable, V any](cache CacheManager[K, V], load Loader[K, V], ttl time.Duration, bypass bool) *ReadThroughCache[K, V] {
	return &ReadThroughCache[K, V]{
		cache:  cache,
		load:   load,
		ttl:    ttl,
		bypass: bypass,
	}
}

// Get returns the cached value for key, loading and storing it on a miss.
func (r *ReadThroughCache[K, V]) Get(ctx context.Context, key K) (V, error) {
	if r.bypass {
		return r.load(ctx, key)
	}

	if value, ok := r.cache.Get(ctx, key); ok {
		return value, nil
	}

	value, err := r.load(ctx, key)
	if err != nil {
		return value, err
	}

	r.cache.Set(ctx, key, value, r.ttl)
	return value, nil
}

// Invalidate drops keys so the next Get reloads them.
func (r *ReadThroughCache[K, V]) Invalidate(ctx context.Context, keys ...K) {
	r.cache.Delete(ctx, keys...)
}

// Reset drops every cached value.
func (r *ReadThroughCache[K, V]) Reset(ctx context.Context) {
	r.cache.Flush(ctx)
}
