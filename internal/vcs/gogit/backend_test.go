package gogit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/gitfold/internal/vcs"
)

// fixture builds commits in an in-memory repository. Every commit writes
// one new file so it is never empty.
type fixture struct {
	t     *testing.T
	repo  *git.Repository
	fs    billy.Filesystem
	wt    *git.Worktree
	clock time.Time
	ids   map[string]plumbing.Hash
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fs := memfs.New()
	repo, err := git.Init(memory.NewStorage(), fs)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	return &fixture{
		t:     t,
		repo:  repo,
		fs:    fs,
		wt:    wt,
		clock: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		ids:   map[string]plumbing.Hash{},
	}
}

func (f *fixture) commit(label, path string, parents ...string) vcs.CommitID {
	f.t.Helper()
	file, err := f.fs.Create(path)
	require.NoError(f.t, err)
	_, err = fmt.Fprintf(file, "%s\n", label)
	require.NoError(f.t, err)
	require.NoError(f.t, file.Close())
	_, err = f.wt.Add(path)
	require.NoError(f.t, err)

	var hashes []plumbing.Hash
	for _, p := range parents {
		hashes = append(hashes, f.ids[p])
	}
	f.clock = f.clock.Add(time.Minute)
	sig := &object.Signature{Name: "Grace Hopper", Email: "grace@example.com", When: f.clock}
	h, err := f.wt.Commit(label+"\n\nbody of "+label, &git.CommitOptions{
		Author:    sig,
		Committer: sig,
		Parents:   hashes,
	})
	require.NoError(f.t, err)
	f.ids[label] = h
	return vcs.CommitID(h.String())
}

func (f *fixture) id(label string) vcs.CommitID {
	return vcs.CommitID(f.ids[label].String())
}

// diverged builds: base <- m1 <- m2 (main), base <- f1 <- f2, merge(m2, f2).
func diverged(t *testing.T) *fixture {
	f := newFixture(t)
	f.commit("base", "base.txt")
	f.commit("m1", "src/m1.go", "base")
	f.commit("m2", "src/m2.go", "m1")
	f.commit("f1", "docs/f1.md", "base")
	f.commit("f2", "docs/f2.md", "f1")
	f.commit("merge", "merge.txt", "m2", "f2")
	return f
}

func TestBackend_ResolveAndParents(t *testing.T) {
	ctx := context.Background()
	f := diverged(t)
	b := New(f.repo)

	head, err := b.Resolve(ctx, "HEAD")
	require.NoError(t, err)
	require.Equal(t, f.id("merge"), head)

	parents, err := b.Parents(ctx, head)
	require.NoError(t, err)
	require.Equal(t, []vcs.CommitID{f.id("m2"), f.id("f2")}, parents)

	root, err := b.Parents(ctx, f.id("base"))
	require.NoError(t, err)
	require.Empty(t, root)

	_, err = b.Resolve(ctx, "does-not-exist")
	require.ErrorIs(t, err, vcs.ErrNotFound)
}

func TestBackend_MergeBaseAndAncestry(t *testing.T) {
	ctx := context.Background()
	f := diverged(t)
	b := New(f.repo)

	base, ok, err := b.MergeBase(ctx, f.id("m2"), f.id("f2"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, f.id("base"), base)

	yes, err := b.IsAncestor(ctx, f.id("f1"), f.id("merge"))
	require.NoError(t, err)
	require.True(t, yes)

	no, err := b.IsAncestor(ctx, f.id("f1"), f.id("m2"))
	require.NoError(t, err)
	require.False(t, no)
}

func TestBackend_MetadataAndChangedPaths(t *testing.T) {
	ctx := context.Background()
	f := diverged(t)
	b := New(f.repo)

	md, err := b.Metadata(ctx, f.id("m2"))
	require.NoError(t, err)
	require.Equal(t, "m2", md.Subject)
	require.Equal(t, "body of m2", md.Body())
	require.Equal(t, "Grace Hopper", md.Author.Name)

	paths, err := b.ChangedPaths(ctx, f.id("m2"))
	require.NoError(t, err)
	require.Equal(t, []string{"src/m2.go"}, paths)

	rootPaths, err := b.ChangedPaths(ctx, f.id("base"))
	require.NoError(t, err)
	require.Equal(t, []string{"base.txt"}, rootPaths)
}

func TestBackend_RefsAndInvalidate(t *testing.T) {
	ctx := context.Background()
	f := diverged(t)
	b := New(f.repo)

	_, err := f.repo.CreateTag("v1.0", f.ids["m1"], nil)
	require.NoError(t, err)
	require.NoError(t, f.repo.Storer.SetReference(plumbing.NewHashReference("refs/heads/feature", f.ids["f2"])))

	refs, err := b.Refs(ctx, f.id("f2"))
	require.NoError(t, err)
	require.Equal(t, []vcs.Ref{{Name: "feature", Kind: vcs.RefBranch}}, refs)

	refs, err = b.Refs(ctx, f.id("m1"))
	require.NoError(t, err)
	require.Equal(t, []vcs.Ref{{Name: "v1.0", Kind: vcs.RefTag}}, refs)

	require.NoError(t, f.repo.Storer.SetReference(plumbing.NewHashReference("refs/heads/feature", f.ids["f1"])))
	refs, err = b.Refs(ctx, f.id("f1"))
	require.NoError(t, err)
	require.Empty(t, refs, "stale index until invalidated")

	b.InvalidateRefs()
	refs, err = b.Refs(ctx, f.id("f1"))
	require.NoError(t, err)
	require.Equal(t, []vcs.Ref{{Name: "feature", Kind: vcs.RefBranch}}, refs)
}

func TestBackend_FirstParentCount(t *testing.T) {
	ctx := context.Background()
	f := diverged(t)
	b := New(f.repo)

	n, err := b.FirstParentCount(ctx, vcs.Range{Start: "HEAD"})
	require.NoError(t, err)
	require.Equal(t, 4, n, "merge, m2, m1, base")

	n, err = b.FirstParentCount(ctx, vcs.Range{Start: "HEAD", End: string(f.id("m1"))})
	require.NoError(t, err)
	require.Equal(t, 2, n, "merge, m2")
}

func TestBackend_MissingObject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.commit("a", "a.txt")
	b := New(f.repo)

	ghost := vcs.CommitID(plumbing.NewHash("1111111111111111111111111111111111111111").String())
	_, err := b.Parents(ctx, ghost)
	require.ErrorIs(t, err, vcs.ErrMissingObjectData)
}

func TestOpen_NotARepository(t *testing.T) {
	_, err := Open(t.TempDir())
	require.ErrorIs(t, err, vcs.ErrBackendUnavailable)
}


func TestOpen_RootFromSubdirectory(t *testing.T) {
	dir := t.TempDir()
	_, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	sub := filepath.Join(dir, "pkg", "inner")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	b, err := Open(sub)
	require.NoError(t, err)
	require.Equal(t, dir, b.Root())
}

func TestRoot_Bare(t *testing.T) {
	repo, err := git.PlainInit(t.TempDir(), true)
	require.NoError(t, err)
	require.Empty(t, New(repo).Root())
}
