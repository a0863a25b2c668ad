package vcs_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/zjrosen/gitfold/internal/testutil"
	"github.com/zjrosen/gitfold/internal/vcs"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		in   string
		want vcs.Range
	}{
		{"", vcs.Range{Start: "HEAD"}},
		{"main", vcs.Range{Start: "main"}},
		{"v1.0..main", vcs.Range{Start: "main", End: "v1.0"}},
		{"v1.0..", vcs.Range{Start: "HEAD", End: "v1.0"}},
		{"v1.0...main", vcs.Range{Start: "main", End: "v1.0"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			require.Equal(t, tt.want, vcs.ParseRange(tt.in))
		})
	}
	require.Equal(t, "v1.0..main", vcs.Range{Start: "main", End: "v1.0"}.String())
}

func TestMetadataBodyAndSubject(t *testing.T) {
	md := vcs.Metadata{Message: "Merge pull request #12 from ada/fold\n\nFold octopus merges\n\nDetails."}
	require.Equal(t, "Merge pull request #12 from ada/fold", vcs.SubjectOf(md.Message))
	require.Equal(t, "Fold octopus merges\n\nDetails.", md.Body())
	require.Empty(t, vcs.Metadata{Message: "one line"}.Body())
}

func TestRefFromFullName(t *testing.T) {
	ref, ok := vcs.RefFromFullName("refs/remotes/origin/main")
	require.True(t, ok)
	require.Equal(t, vcs.Ref{Name: "origin/main", Kind: vcs.RefRemoteBranch}, ref)

	_, ok = vcs.RefFromFullName("refs/remotes/origin/HEAD")
	require.False(t, ok)
	_, ok = vcs.RefFromFullName("refs/notes/commits")
	require.False(t, ok)

	refs := []vcs.Ref{
		{Name: "origin/main", Kind: vcs.RefRemoteBranch},
		{Name: "v2", Kind: vcs.RefTag},
		{Name: "main", Kind: vcs.RefBranch},
		{Name: "HEAD", Kind: vcs.RefHead},
	}
	vcs.SortRefs(refs)
	require.Equal(t, []string{"HEAD", "main", "v2", "origin/main"}, []string{refs[0].Name, refs[1].Name, refs[2].Name, refs[3].Name})
}

func TestCommitIDShort(t *testing.T) {
	require.Equal(t, "abcdef1", vcs.CommitID("abcdef1234567890").Short())
	require.Equal(t, "abc", vcs.CommitID("abc").Short())
	require.True(t, vcs.CommitID("").IsZero())
}

func TestCached_MemoizesImmutableAnswers(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewBuilder(t).
		WithCommit("base").
		WithLinear("m", 1, "base").
		WithFeatureMerge("merge", "m1", "base", "f", 1).
		Build()
	cached := vcs.NewCached(repo)

	for i := 0; i < 3; i++ {
		_, err := cached.Parents(ctx, repo.ID("merge"))
		require.NoError(t, err)
		_, err = cached.Metadata(ctx, repo.ID("merge"))
		require.NoError(t, err)
		_, _, err = cached.MergeBase(ctx, repo.ID("m1"), repo.ID("f1"))
		require.NoError(t, err)
		_, err = cached.IsAncestor(ctx, repo.ID("base"), repo.ID("merge"))
		require.NoError(t, err)
	}
	require.Equal(t, 1, repo.Calls("Parents"))
	require.Equal(t, 1, repo.Calls("Metadata"))
	require.Equal(t, 1, repo.Calls("MergeBase"))
	require.Equal(t, 1, repo.Calls("IsAncestor"))
}

func TestCached_InvalidateRefs(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewBuilder(t).WithLinear("c", 2, "").WithBranch("topic", "c1").Build()
	cached := vcs.NewCached(repo)

	refs, err := cached.Refs(ctx, repo.ID("c1"))
	require.NoError(t, err)
	require.Len(t, refs, 1)

	repo.MoveBranch("topic", "c2")
	refs, err = cached.Refs(ctx, repo.ID("c1"))
	require.NoError(t, err)
	require.Len(t, refs, 1, "served from cache")

	inv, ok := vcs.Find[vcs.RefInvalidator](vcs.NewSerialized(cached))
	require.True(t, ok)
	inv.InvalidateRefs()

	refs, err = cached.Refs(ctx, repo.ID("c1"))
	require.NoError(t, err)
	require.Empty(t, refs)
}

func TestCached_DoesNotCacheMissingObjects(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewBuilder(t).WithCommit("gone", testutil.Fetchable()).Build()
	cached := vcs.NewCached(repo)

	_, err := cached.Parents(ctx, repo.ID("gone"))
	require.ErrorIs(t, err, vcs.ErrMissingObjectData)

	fetcher, ok := vcs.Find[vcs.Fetcher](cached)
	require.True(t, ok)
	require.NoError(t, fetcher.FetchMissing(ctx, repo.ID("gone")))

	_, err = cached.Parents(ctx, repo.ID("gone"))
	require.NoError(t, err)
}

func TestFind_NotImplemented(t *testing.T) {
	repo := testutil.NewBuilder(t).WithCommit("a").Build()
	_, ok := vcs.Find[interface{ Nope() }](vcs.NewCached(repo))
	require.False(t, ok)
}

func TestTraced_RecordsSpans(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewBuilder(t).WithLinear("c", 2, "").Build()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	traced := vcs.NewTraced(repo, provider.Tracer("test"), "memory")

	_, err := traced.Parents(ctx, repo.ID("c2"))
	require.NoError(t, err)
	_, err = traced.Resolve(ctx, "nope")
	require.ErrorIs(t, err, vcs.ErrNotFound)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	require.Equal(t, "vcs.parents", spans[0].Name())
	require.Equal(t, "vcs.resolve", spans[1].Name())
	require.Len(t, spans[1].Events(), 1, "error recorded as span event")
}
