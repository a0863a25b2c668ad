package detail

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/gitfold/internal/history"
	"github.com/zjrosen/gitfold/internal/testutil"
	"github.com/zjrosen/gitfold/internal/vcs"
)

func openHistory(t *testing.T, repo *testutil.Repo) *history.Model {
	t.Helper()
	m, err := history.New(context.Background(), repo, vcs.ParseRange(""), history.DefaultConfig())
	require.NoError(t, err)
	_, err = m.GotoLast(context.Background())
	require.NoError(t, err)
	m.GotoFirst()
	return m
}

func TestLoad_Merge(t *testing.T) {
	repo := testutil.NewBuilder(t).
		WithLinear("m", 2, "").
		WithLinear("f", 2, "m1").
		WithCommit("M",
			testutil.Parents("m2", "f2"),
			testutil.Message("Merge pull request #7 from ada/feature\n\nAdd the feature")).
		WithTag("v1.0", "M").
		Build()
	m := openHistory(t, repo)

	info, err := Load(context.Background(), m, 0, history.PlainDecorator{})
	require.NoError(t, err)
	require.Equal(t, repo.ID("M"), info.ID)
	require.Equal(t, history.KindMerge, info.Kind)
	require.Equal(t, history.Folded, info.Fold)
	require.Equal(t, []vcs.CommitID{repo.ID("m2"), repo.ID("f2")}, info.Parents)
	require.Equal(t, "Merge pull request #7 from ada/feature", info.Title)
	require.False(t, info.Rebased, "m2 is not an ancestor of f2")

	names := make([]string, len(info.Refs))
	for i, r := range info.Refs {
		names[i] = r.Name
	}
	require.Contains(t, names, "v1.0")
}

func TestLoad_LinkShowsTargetParents(t *testing.T) {
	repo := testutil.NewBuilder(t).
		WithLinear("m", 2, "").
		WithLinear("f", 2, "m1").
		WithCommit("M", testutil.Parents("m2", "f2")).
		Build()
	m := openHistory(t, repo)
	require.NoError(t, m.Unfold(context.Background(), 0))

	// M, f2, f1, ->m1
	n, err := m.Node(3)
	require.NoError(t, err)
	require.True(t, n.IsLink())

	info, err := Load(context.Background(), m, 3, nil)
	require.NoError(t, err)
	require.Equal(t, repo.ID("m1"), info.ID)
	require.Empty(t, info.Parents, "m1 is a root commit")
	require.Equal(t, "m change 1", info.Metadata.Subject)
}

func TestLoad_OutOfRange(t *testing.T) {
	repo := testutil.NewBuilder(t).WithLinear("c", 2, "").Build()
	m := openHistory(t, repo)

	_, err := Load(context.Background(), m, 5, nil)
	require.ErrorIs(t, err, history.ErrPosition)
}

func TestHeader(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	author := vcs.Signature{Name: "Ada", Email: "ada@example.com", When: now.Add(-2 * time.Hour)}
	info := Info{
		ID:      vcs.CommitID("0123456789abcdef0123456789abcdef01234567"),
		Kind:    history.KindMerge,
		Fold:    history.Unfolded,
		Parents: []vcs.CommitID{"1111111111111111111111111111111111111111", "2222222222222222222222222222222222222222"},
		Metadata: vcs.Metadata{
			Author:    author,
			Committer: vcs.Signature{Name: "Bob", Email: "bob@example.com", When: now.Add(-time.Hour)},
		},
		Refs:    []vcs.Ref{{Name: "main", Kind: vcs.RefBranch}, {Name: "v2", Kind: vcs.RefTag}},
		Modules: []string{"api", "docs"},
		Rebased: true,
	}

	out := ansi.Strip(Header(info, now))
	require.Contains(t, out, "commit     0123456789abcdef0123456789abcdef01234567")
	require.Contains(t, out, "parents    1111111 2222222")
	require.Contains(t, out, "Ada <ada@example.com>  2024-05-10 10:00 +0000 (2 hours ago)")
	require.Contains(t, out, "committer  Bob <bob@example.com>")
	require.Contains(t, out, "refs       main, v2")
	require.Contains(t, out, "modules    api, docs")
	require.Contains(t, out, "merge      merge, unfolded; branch rebased onto first parent")
}

func TestHeader_SameCommitterOmitted(t *testing.T) {
	sig := vcs.Signature{Name: "Ada", Email: "ada@example.com", When: time.Unix(0, 0).UTC()}
	out := ansi.Strip(Header(Info{ID: "abc", Kind: history.KindSimple, Metadata: vcs.Metadata{Author: sig, Committer: sig}}, time.Unix(60, 0)))
	require.NotContains(t, out, "committer")
	require.NotContains(t, out, "merge")
}

func TestHeader_Missing(t *testing.T) {
	out := ansi.Strip(Header(Info{ID: "abc", Missing: true}, time.Now()))
	require.Equal(t, "commit     abc\nstatus     not available in this clone", out)
}

func TestModel_View(t *testing.T) {
	m := New("notty")
	m.now = func() time.Time { return time.Unix(3600, 0) }
	m = m.SetSize(60, 20)
	require.NotEmpty(t, m.View())

	_, ok := m.Info()
	require.False(t, ok)

	m = m.SetInfo(Info{
		ID:   "0123456789abcdef",
		Kind: history.KindSimple,
		Metadata: vcs.Metadata{
			Subject: "Fix the parser",
			Message: "Fix the parser\n\nHandles empty input.",
		},
		Title: "Fix the parser",
	})
	out := ansi.Strip(m.View())
	require.Contains(t, out, "0123456789abcdef")
	require.Contains(t, out, "Fix the parser")
	require.Contains(t, out, "Handles empty input.")

	info, ok := m.Info()
	require.True(t, ok)
	require.Equal(t, vcs.CommitID("0123456789abcdef"), info.ID)
}

func TestModel_ZeroSize(t *testing.T) {
	require.Empty(t, New("").View())
	require.True(t, strings.TrimSpace(New("").SetInfo(Info{ID: "x"}).View()) == "")
}

func TestModel_WrapsLongHeaderLines(t *testing.T) {
	m := New("notty")
	m.now = func() time.Time { return time.Unix(3600, 0) }
	m = m.SetSize(32, 30)

	var refs []vcs.Ref
	for _, name := range []string{"release-1", "release-2", "release-3", "release-4", "release-5", "release-6"} {
		refs = append(refs, vcs.Ref{Name: name, Kind: vcs.RefTag})
	}
	m = m.SetInfo(Info{ID: "0123456789abcdef", Kind: history.KindSimple, Refs: refs})

	out := ansi.Strip(m.View())
	for _, r := range refs {
		require.Contains(t, out, r.Name)
	}
	for _, line := range strings.Split(out, "\n") {
		require.LessOrEqual(t, ansi.StringWidth(line), 32)
	}
}

func TestWrapHeader_KeepsHyphenatedWords(t *testing.T) {
	out := wrapHeader("refs       release-1, release-2, release-3", 30)
	require.Equal(t, "refs       release-1,\nrelease-2, release-3", out)
}

func TestWrapHeader_HardWrapsLongTokens(t *testing.T) {
	out := wrapHeader("author     averyveryverylongname@example.com", 20)
	for _, line := range strings.Split(out, "\n") {
		require.LessOrEqual(t, ansi.StringWidth(line), 20)
	}
	require.Contains(t, strings.ReplaceAll(out, "\n", ""), "averyveryverylongname@example.com")
}
