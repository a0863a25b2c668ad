package vcs

import (
	"context"

	"github.com/zjrosen/gitfold/internal/cachemanager"
	"github.com/zjrosen/gitfold/internal/log"
)

type mergeBaseResult struct {
	base CommitID
	ok   bool
}

// Cached memoizes backend answers. Commits are immutable, so parents,
// metadata, changed paths, merge-bases and ancestry never expire. Refs
// move; InvalidateRefs drops them.
type Cached struct {
	Backend

	parents   *cachemanager.ReadThroughCache[CommitID, []CommitID]
	metadata  *cachemanager.ReadThroughCache[CommitID, Metadata]
	paths     *cachemanager.ReadThroughCache[CommitID, []string]
	refs      *cachemanager.ReadThroughCache[CommitID, []Ref]
	bases     cachemanager.CacheManager[string, mergeBaseResult]
	ancestors cachemanager.CacheManager[string, bool]
}

var (
	_ Backend        = (*Cached)(nil)
	_ RefInvalidator = (*Cached)(nil)
)

// NewCached wraps b with in-memory caches.
func NewCached(b Backend) *Cached {
	c := &Cached{
		Backend:   b,
		bases:     cachemanager.NewInMemoryCacheManager[string, mergeBaseResult]("merge-base", cachemanager.NoExpiration, cachemanager.DefaultCleanupInterval),
		ancestors: cachemanager.NewInMemoryCacheManager[string, bool]("is-ancestor", cachemanager.NoExpiration, cachemanager.DefaultCleanupInterval),
	}
	c.parents = cachemanager.NewReadThroughCache[CommitID, []CommitID](
		cachemanager.NewInMemoryCacheManager[CommitID, []CommitID]("parents", cachemanager.NoExpiration, cachemanager.DefaultCleanupInterval),
		b.Parents, cachemanager.NoExpiration, false)
	c.metadata = cachemanager.NewReadThroughCache[CommitID, Metadata](
		cachemanager.NewInMemoryCacheManager[CommitID, Metadata]("metadata", cachemanager.NoExpiration, cachemanager.DefaultCleanupInterval),
		b.Metadata, cachemanager.NoExpiration, false)
	c.paths = cachemanager.NewReadThroughCache[CommitID, []string](
		cachemanager.NewInMemoryCacheManager[CommitID, []string]("changed-paths", cachemanager.NoExpiration, cachemanager.DefaultCleanupInterval),
		b.ChangedPaths, cachemanager.NoExpiration, false)
	c.refs = cachemanager.NewReadThroughCache[CommitID, []Ref](
		cachemanager.NewInMemoryCacheManager[CommitID, []Ref]("refs", cachemanager.NoExpiration, cachemanager.DefaultCleanupInterval),
		b.Refs, cachemanager.NoExpiration, false)
	return c
}

// Unwrap returns the decorated backend.
func (c *Cached) Unwrap() Backend { return c.Backend }

func (c *Cached) Parents(ctx context.Context, id CommitID) ([]CommitID, error) {
	return c.parents.Get(ctx, id)
}

func (c *Cached) Metadata(ctx context.Context, id CommitID) (Metadata, error) {
	return c.metadata.Get(ctx, id)
}

func (c *Cached) ChangedPaths(ctx context.Context, id CommitID) ([]string, error) {
	return c.paths.Get(ctx, id)
}

func (c *Cached) Refs(ctx context.Context, id CommitID) ([]Ref, error) {
	return c.refs.Get(ctx, id)
}

func (c *Cached) MergeBase(ctx context.Context, a, b CommitID) (CommitID, bool, error) {
	key := string(a) + ":" + string(b)
	if r, ok := c.bases.Get(ctx, key); ok {
		return r.base, r.ok, nil
	}
	base, ok, err := c.Backend.MergeBase(ctx, a, b)
	if err != nil {
		return "", false, err
	}
	c.bases.Set(ctx, key, mergeBaseResult{base: base, ok: ok}, cachemanager.NoExpiration)
	return base, ok, nil
}

func (c *Cached) IsAncestor(ctx context.Context, ancestor, descendant CommitID) (bool, error) {
	if ancestor == descendant {
		return true, nil
	}
	key := string(ancestor) + ":" + string(descendant)
	if v, ok := c.ancestors.Get(ctx, key); ok {
		return v, nil
	}
	v, err := c.Backend.IsAncestor(ctx, ancestor, descendant)
	if err != nil {
		return false, err
	}
	c.ancestors.Set(ctx, key, v, cachemanager.NoExpiration)
	return v, nil
}

// InvalidateRefs drops every cached ref lookup, including any cache kept
// by the wrapped backend.
func (c *Cached) InvalidateRefs() {
	c.refs.Reset(context.Background())
	if inner, ok := Find[RefInvalidator](c.Backend); ok {
		inner.InvalidateRefs()
	}
	log.Debug(log.CatCache, "refs cache invalidated")
}
