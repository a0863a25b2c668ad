package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/gitfold/internal/testutil"
	"github.com/zjrosen/gitfold/internal/vcs"
)

type stubDecorator struct{}

func (stubDecorator) Subject(_ vcs.CommitID, md vcs.Metadata) (string, string) {
	return "*", "resolved: " + md.Subject
}

func (stubDecorator) Modules(vcs.CommitID) []string { return []string{"docs", "api"} }

func graphs(t *testing.T, m *Model) []string {
	t.Helper()
	var out []string
	for pos := range m.nodes {
		row, err := m.Row(context.Background(), pos, RowOptions{})
		require.NoError(t, err)
		out = append(out, row.Graph.Text)
	}
	return out
}

func TestRow_GraphGlyphs(t *testing.T) {
	repo := divergedRepo(t)
	m := openModel(t, repo, "", DefaultConfig())
	loadAll(t, m)

	require.Equal(t, []string{"●─┐", "●", "●", "◉"}, graphs(t, m))

	require.NoError(t, m.Unfold(context.Background(), 0))
	require.Equal(t, []string{"●─┬", "│ ●", "│ ●", "│ ●", "│ ⭞", "●", "●", "◉"}, graphs(t, m))
}

func TestRow_ForkPointGlyphs(t *testing.T) {
	repo := testutil.NewBuilder(t).
		WithCommit("base").
		WithCommit("f1", testutil.Parents("base")).
		WithCommit("M", testutil.Parents("base", "f1"), testutil.Subject("Merge pull request #4 from x/y")).
		WithCommit("top", testutil.Parents("M")).
		Build()
	m := openModel(t, repo, "", DefaultConfig())
	loadAll(t, m)

	require.Equal(t, []string{"●", "●─┐", "◉─┘"}, graphs(t, m))

	row, err := m.Row(context.Background(), 2, RowOptions{})
	require.NoError(t, err)
	require.True(t, row.ForkPoint)
	require.Equal(t, HintForkPoint, row.Graph.Hint)
}

func TestRow_ImportMergeGlyph(t *testing.T) {
	repo := testutil.NewBuilder(t).
		WithCommit("base").
		WithCommit("m1", testutil.Parents("base")).
		WithCommit("lib1").
		WithCommit("M", testutil.Parents("m1", "lib1"), testutil.Subject("Update :vendor/lib")).
		Build()
	m := openModel(t, repo, "", DefaultConfig())
	loadAll(t, m)

	require.Equal(t, "●⇤╮", graphs(t, m)[0])
	require.True(t, IsImportSubject("Squashed 'x' Import from upstream"))
	require.False(t, IsImportSubject("Merge branch 'Update'"))
}

func TestRow_Columns(t *testing.T) {
	repo := testutil.NewBuilder(t).
		WithCommit("c1", testutil.Author("Grace Hopper", "grace@example.com")).
		WithCommit("c2", testutil.Parents("c1"), testutil.Subject("feat: add folding")).
		WithBranch("main", "c2").
		WithTag("v1.0.0", "c1").
		Build()
	m := openModel(t, repo, "", DefaultConfig())
	loadAll(t, m)
	ctx := context.Background()

	md, err := repo.Metadata(ctx, repo.ID("c2"))
	require.NoError(t, err)

	row, err := m.Row(ctx, 0, RowOptions{
		DateFormat:  DateRelative,
		Now:         md.Author.When.Add(2 * time.Hour),
		Decorator:   stubDecorator{},
		ShowModules: true,
	})
	require.NoError(t, err)
	require.Equal(t, repo.ID("c2").Short(), row.ID.Text)
	require.Equal(t, "2 hours ago", row.Date.Text)
	require.Equal(t, "*", row.Icon.Text)
	require.Equal(t, "resolved: feat: add folding", row.Subject.Text)
	require.Equal(t, "[docs,api]", row.Modules.Text)
	require.Equal(t, []Column{
		{Hint: HintHead, Text: "‹HEAD›"},
		{Hint: HintBranch, Text: "[main]"},
	}, row.Refs)

	row, err = m.Row(ctx, 1, RowOptions{DateFormat: DateShort})
	require.NoError(t, err)
	require.Equal(t, "Grace Hopper", row.Author.Text)
	require.Equal(t, "2024-01-01", row.Date.Text)
	require.Equal(t, []Column{{Hint: HintTag, Text: "«v1.0.0»"}}, row.Refs)
	require.Empty(t, row.Modules.Text)
	require.Equal(t, "◉ "+repo.ID("c1").Short()+" 2024-01-01 Grace Hopper commit c1 «v1.0.0»", row.String())
}

func TestRow_OutOfRange(t *testing.T) {
	repo := divergedRepo(t)
	m := openModel(t, repo, "", DefaultConfig())

	_, err := m.Row(context.Background(), 0, RowOptions{})
	require.ErrorIs(t, err, ErrPosition)
}

func TestDateFormat_Cycle(t *testing.T) {
	require.Equal(t, DateISO, DateRelative.Next())
	require.Equal(t, DateShort, DateISO.Next())
	require.Equal(t, DateRelative, DateShort.Next())
	require.Equal(t, DateRelative, DateFormat("bogus").Next())

	ts := time.Date(2024, 3, 5, 14, 7, 0, 0, time.UTC)
	require.Equal(t, "2024-03-05 14:07", DateISO.Format(ts, ts))
}

func TestKindOf(t *testing.T) {
	require.Equal(t, KindInitial, KindOf(0))
	require.Equal(t, KindSimple, KindOf(1))
	require.Equal(t, KindMerge, KindOf(2))
	require.Equal(t, KindOctopus, KindOf(5))
	require.True(t, KindOctopus.Foldable())
	require.False(t, KindLink.Foldable())
}
