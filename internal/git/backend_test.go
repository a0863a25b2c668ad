package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/gitfold/internal/vcs"
)

// scratchRepo is a throwaway repository driven through the git binary.
type scratchRepo struct {
	t    *testing.T
	dir  string
	tick int
}

func newScratchRepo(t *testing.T) *scratchRepo {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
	r := &scratchRepo{t: t, dir: t.TempDir()}
	r.git("init", "--quiet", "--initial-branch=main")
	return r
}

func (r *scratchRepo) git(args ...string) string {
	r.t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = r.dir
	date := fmt.Sprintf("2024-01-01T10:%02d:00Z", r.tick)
	cmd.Env = append(os.Environ(),
		"HOME="+r.dir,
		"GIT_CONFIG_NOSYSTEM=1",
		"GIT_AUTHOR_NAME=Ada", "GIT_AUTHOR_EMAIL=ada@example.com", "GIT_AUTHOR_DATE="+date,
		"GIT_COMMITTER_NAME=Ada", "GIT_COMMITTER_EMAIL=ada@example.com", "GIT_COMMITTER_DATE="+date,
	)
	out, err := cmd.CombinedOutput()
	require.NoError(r.t, err, "git %s: %s", strings.Join(args, " "), out)
	return strings.TrimSpace(string(out))
}

func (r *scratchRepo) commit(path, message string) vcs.CommitID {
	r.t.Helper()
	r.tick++
	full := filepath.Join(r.dir, path)
	require.NoError(r.t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(r.t, os.WriteFile(full, []byte(message+"\n"), 0o644))
	r.git("add", path)
	r.git("commit", "--quiet", "-m", message)
	return vcs.CommitID(r.git("rev-parse", "HEAD"))
}

// diverged builds main: base <- m1 <- merge, topic: base <- t1, merge = (m1, t1).
func diverged(t *testing.T) (*scratchRepo, map[string]vcs.CommitID) {
	r := newScratchRepo(t)
	ids := map[string]vcs.CommitID{}
	ids["base"] = r.commit("README.md", "base")
	r.git("checkout", "--quiet", "-b", "topic")
	ids["t1"] = r.commit("docs/guide.md", "t1")
	r.git("checkout", "--quiet", "main")
	ids["m1"] = r.commit("src/main.go", "m1")
	r.tick++
	r.git("merge", "--quiet", "--no-ff", "-m", "Merge branch 'topic'", "topic")
	ids["merge"] = vcs.CommitID(r.git("rev-parse", "HEAD"))
	return r, ids
}

func TestParseGitError(t *testing.T) {
	err := parseGitError("fatal: not a git repository (or any of the parent directories): .git", errors.New("exit 128"))
	require.ErrorIs(t, err, vcs.ErrBackendUnavailable)
	require.ErrorIs(t, err, ErrNotGitRepo)

	err = parseGitError("fatal: ambiguous argument 'nope': unknown revision or path not in the working tree.", errors.New("exit 128"))
	require.ErrorIs(t, err, vcs.ErrNotFound)

	err = parseGitError("fatal: bad object 1111111111111111111111111111111111111111", errors.New("exit 128"))
	require.ErrorIs(t, err, ErrBadObject)
	require.ErrorIs(t, missing("1111111", err), vcs.ErrMissingObjectData)

	err = parseGitError("fatal: something else", errors.New("exit 128"))
	require.ErrorContains(t, err, "git error: fatal: something else")
}

func TestParseHelpers(t *testing.T) {
	require.Equal(t, []vcs.CommitID{"p1", "p2"}, parseParents("c p1 p2"))
	require.Empty(t, parseParents("root"))

	md, err := parseMetadata("Ada\x00ada@example.com\x001700000000\x00Bob\x00bob@example.com\x001700000060\x00Subject line\n\nBody\n\n")
	require.NoError(t, err)
	require.Equal(t, "Subject line", md.Subject)
	require.Equal(t, "Body", md.Body())
	require.Equal(t, int64(1700000060), md.Committer.When.Unix())

	_, err = parseMetadata("too\x00few")
	require.Error(t, err)

	refs := parseRefs("aaa\x00\x00refs/heads/main\ntag\x00ccc\x00refs/tags/v1\nbbb\x00\x00refs/remotes/origin/HEAD")
	require.Equal(t, []vcs.Ref{{Name: "main", Kind: vcs.RefBranch}}, refs["aaa"])
	require.Equal(t, []vcs.Ref{{Name: "v1", Kind: vcs.RefTag}}, refs["ccc"])
	require.Empty(t, refs["bbb"])
}

func TestOpen_NotARepository(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
	dir := t.TempDir()
	t.Setenv("GIT_CEILING_DIRECTORIES", filepath.Dir(dir))
	_, err := Open(context.Background(), dir, "")
	require.ErrorIs(t, err, vcs.ErrBackendUnavailable)
}

func TestBackend_GraphQueries(t *testing.T) {
	ctx := context.Background()
	r, ids := diverged(t)
	b, err := Open(ctx, r.dir, "")
	require.NoError(t, err)

	head, err := b.Resolve(ctx, "HEAD")
	require.NoError(t, err)
	require.Equal(t, ids["merge"], head)

	_, err = b.Resolve(ctx, "no-such-branch")
	require.ErrorIs(t, err, vcs.ErrNotFound)

	parents, err := b.Parents(ctx, ids["merge"])
	require.NoError(t, err)
	require.Equal(t, []vcs.CommitID{ids["m1"], ids["t1"]}, parents)

	root, err := b.Parents(ctx, ids["base"])
	require.NoError(t, err)
	require.Empty(t, root)

	mb, ok, err := b.MergeBase(ctx, ids["m1"], ids["t1"])
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ids["base"], mb)

	yes, err := b.IsAncestor(ctx, ids["t1"], ids["merge"])
	require.NoError(t, err)
	require.True(t, yes)
	no, err := b.IsAncestor(ctx, ids["t1"], ids["m1"])
	require.NoError(t, err)
	require.False(t, no)

	n, err := b.FirstParentCount(ctx, vcs.Range{Start: "HEAD"})
	require.NoError(t, err)
	require.Equal(t, 3, n)
	n, err = b.FirstParentCount(ctx, vcs.Range{Start: "HEAD", End: string(ids["m1"])})
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestBackend_MetadataPathsRefs(t *testing.T) {
	ctx := context.Background()
	r, ids := diverged(t)
	r.git("tag", "-a", "-m", "release", "v1.0", string(ids["m1"]))
	b, err := Open(ctx, r.dir, "")
	require.NoError(t, err)

	md, err := b.Metadata(ctx, ids["merge"])
	require.NoError(t, err)
	require.Equal(t, "Merge branch 'topic'", md.Subject)
	require.Equal(t, "Ada", md.Author.Name)

	paths, err := b.ChangedPaths(ctx, ids["merge"])
	require.NoError(t, err)
	require.Equal(t, []string{"docs/guide.md"}, paths)

	paths, err = b.ChangedPaths(ctx, ids["base"])
	require.NoError(t, err)
	require.Equal(t, []string{"README.md"}, paths)

	refs, err := b.Refs(ctx, ids["m1"])
	require.NoError(t, err)
	require.Equal(t, []vcs.Ref{{Name: "v1.0", Kind: vcs.RefTag}}, refs)

	refs, err = b.Refs(ctx, ids["merge"])
	require.NoError(t, err)
	require.Equal(t, []vcs.Ref{{Name: "HEAD", Kind: vcs.RefHead}, {Name: "main", Kind: vcs.RefBranch}}, refs)

	r.git("branch", "later", string(ids["base"]))
	b.InvalidateRefs()
	refs, err = b.Refs(ctx, ids["base"])
	require.NoError(t, err)
	require.Equal(t, []vcs.Ref{{Name: "later", Kind: vcs.RefBranch}}, refs)
}

func TestBackend_UnknownObjectIsMissing(t *testing.T) {
	ctx := context.Background()
	r, _ := diverged(t)
	b, err := Open(ctx, r.dir, "")
	require.NoError(t, err)

	_, err = b.Parents(ctx, "1111111111111111111111111111111111111111")
	require.ErrorIs(t, err, vcs.ErrMissingObjectData)
	id, ok := vcs.MissingID(err)
	require.True(t, ok)
	require.Equal(t, vcs.CommitID("1111111111111111111111111111111111111111"), id)
}
