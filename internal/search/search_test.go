package search

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/gitfold/internal/enrich"
	"github.com/zjrosen/gitfold/internal/history"
	"github.com/zjrosen/gitfold/internal/modules"
	"github.com/zjrosen/gitfold/internal/pubsub"
	"github.com/zjrosen/gitfold/internal/testutil"
	"github.com/zjrosen/gitfold/internal/vcs"
)

type moduleDecorator struct{}

func (moduleDecorator) Subject(_ vcs.CommitID, md vcs.Metadata) (string, string) {
	return "", "title of " + md.Subject
}

func (moduleDecorator) Modules(vcs.CommitID) []string { return []string{"payments"} }

// linearRepo builds c1..cN where ck's subject is "change k".
func linearRepo(t *testing.T, n int, opts map[int][]testutil.CommitOption) *testutil.Repo {
	b := testutil.NewBuilder(t)
	for k := 1; k <= n; k++ {
		o := []testutil.CommitOption{testutil.Subject(fmt.Sprintf("change %d", k))}
		if k > 1 {
			o = append(o, testutil.Parents(fmt.Sprintf("c%d", k-1)))
		}
		o = append(o, opts[k]...)
		b.WithCommit(fmt.Sprintf("c%d", k), o...)
	}
	return b.Build()
}

func openModel(t *testing.T, repo *testutil.Repo, rows int) *history.Model {
	t.Helper()
	m, err := history.New(context.Background(), repo, vcs.ParseRange(""), history.DefaultConfig())
	require.NoError(t, err)
	if rows > 0 {
		_, err = m.Extend(context.Background(), rows)
		require.NoError(t, err)
	}
	return m
}

func extender(m *history.Model) func(int) (int, error) {
	return func(n int) (int, error) { return m.Extend(context.Background(), n) }
}

func TestForward_ExtendsUntilMatch(t *testing.T) {
	repo := linearRepo(t, 50, map[int][]testutil.CommitOption{
		20: {testutil.Subject("fix the needle in the haystack")},
	})
	m := openModel(t, repo, 5)

	cfg := DefaultConfig()
	cfg.BatchSize = 7
	e := NewEngine(repo, nil, cfg)
	defer e.Close()

	task := e.Start(context.Background(), m, Request{Needle: "needle", From: 0})
	first := task.Run()
	require.Equal(t, StatusNeedMore, first.Status)
	require.Equal(t, 5, first.Resume)

	res, err := Drive(task, extender(m))
	require.NoError(t, err)
	require.Equal(t, StatusFound, res.Status)
	require.Equal(t, 30, res.Pos)
	require.False(t, res.Wrapped)
	require.False(t, m.Exhausted(), "search stops extending once it matches")

	pos, err := m.Goto(context.Background(), res.Pos)
	require.NoError(t, err)
	require.Equal(t, 30, m.Cursor())
	require.Equal(t, pos, m.Cursor())
}

func TestForward_WrapsToTop(t *testing.T) {
	repo := linearRepo(t, 12, map[int][]testutil.CommitOption{
		9: {testutil.Subject("rare words")},
	})
	m := openModel(t, repo, 20)
	require.True(t, m.Exhausted())

	e := NewEngine(repo, nil, DefaultConfig())
	defer e.Close()

	res, err := Drive(e.Start(context.Background(), m, Request{Needle: "rare", From: 6}), extender(m))
	require.NoError(t, err)
	require.Equal(t, StatusFound, res.Status)
	require.Equal(t, 3, res.Pos)
	require.True(t, res.Wrapped)
}

func TestForward_NotFound(t *testing.T) {
	repo := linearRepo(t, 8, nil)
	m := openModel(t, repo, 2)

	e := NewEngine(repo, nil, DefaultConfig())
	defer e.Close()

	res, err := Drive(e.Start(context.Background(), m, Request{Needle: "absent", From: 0}), extender(m))
	require.NoError(t, err)
	require.Equal(t, StatusNotFound, res.Status)
	require.ErrorIs(t, res.Err(), ErrNotFound)
	require.Equal(t, 8, res.Scanned)
	require.True(t, m.Exhausted())
}

func TestIncludeCurrent(t *testing.T) {
	repo := linearRepo(t, 6, map[int][]testutil.CommitOption{
		4: {testutil.Subject("only match")},
	})
	m := openModel(t, repo, 10)
	e := NewEngine(repo, nil, DefaultConfig())
	defer e.Close()

	res := e.Start(context.Background(), m, Request{Needle: "only", From: 2, IncludeCurrent: true}).Run()
	require.Equal(t, StatusFound, res.Status)
	require.Equal(t, 2, res.Pos)
	require.False(t, res.Wrapped)

	res = e.Start(context.Background(), m, Request{Needle: "only", From: 2}).Run()
	require.Equal(t, StatusFound, res.Status)
	require.Equal(t, 2, res.Pos, "the current row matches last, after wrapping")
	require.True(t, res.Wrapped)
	require.Equal(t, 6, res.Scanned)
}

func TestBackward_WrapsWithoutExtending(t *testing.T) {
	repo := linearRepo(t, 30, map[int][]testutil.CommitOption{
		27: {testutil.Subject("target")},
		5:  {testutil.Subject("target too, unmaterialized")},
	})
	m := openModel(t, repo, 6)
	e := NewEngine(repo, nil, DefaultConfig())
	defer e.Close()

	res := e.Start(context.Background(), m, Request{Needle: "target", Direction: Backward, From: 1}).Run()
	require.Equal(t, StatusFound, res.Status)
	require.Equal(t, 3, res.Pos)
	require.True(t, res.Wrapped)
	require.Equal(t, 6, m.Len())

	res = e.Start(context.Background(), m, Request{Needle: "unmaterialized", Direction: Backward, From: 4}).Run()
	require.Equal(t, StatusNotFound, res.Status)
	require.Equal(t, 6, m.Len())
}

func TestBackward_FindsAbove(t *testing.T) {
	repo := linearRepo(t, 10, map[int][]testutil.CommitOption{
		8: {testutil.Subject("above")},
	})
	m := openModel(t, repo, 10)
	e := NewEngine(repo, nil, DefaultConfig())
	defer e.Close()

	res := e.Start(context.Background(), m, Request{Needle: "above", Direction: Backward, From: 7}).Run()
	require.Equal(t, StatusFound, res.Status)
	require.Equal(t, 2, res.Pos)
	require.False(t, res.Wrapped)
}

func TestIgnoreCase(t *testing.T) {
	repo := linearRepo(t, 3, map[int][]testutil.CommitOption{
		2: {testutil.Subject("Fix BUG in ÉCOLE module")},
	})
	m := openModel(t, repo, 3)

	e := NewEngine(repo, nil, DefaultConfig())
	defer e.Close()
	res := e.Start(context.Background(), m, Request{Needle: "école", From: 0}).Run()
	require.Equal(t, StatusFound, res.Status)
	require.Equal(t, 1, res.Pos)

	e.SetIgnoreCase(false)
	res = e.Start(context.Background(), m, Request{Needle: "bug", From: 0}).Run()
	require.Equal(t, StatusNotFound, res.Status)
	res = e.Start(context.Background(), m, Request{Needle: "BUG", From: 0}).Run()
	require.Equal(t, StatusFound, res.Status)
}

func TestSearchableFields(t *testing.T) {
	repo := testutil.NewBuilder(t).
		WithCommit("c1", testutil.Author("Grace Hopper", "grace@navy.mil")).
		WithCommit("c2", testutil.Parents("c1"), testutil.Committer("Bot", "ci@build.local")).
		WithCommit("c3", testutil.Parents("c2")).
		WithTag("release-2.1", "c2").
		Build()
	m := openModel(t, repo, 5)
	e := NewEngine(repo, moduleDecorator{}, DefaultConfig())
	defer e.Close()

	cases := []struct {
		needle string
		pos    int
	}{
		{"navy.mil", 2},
		{"grace hopper", 2},
		{"ci@build", 1},
		{"release-2", 1},
		{repo.ID("c1").Short(), 2},
		{"title of commit c2", 1},
		{"payments", 0},
	}
	for _, tc := range cases {
		t.Run(tc.needle, func(t *testing.T) {
			res := e.Start(context.Background(), m, Request{Needle: tc.needle, From: 0, IncludeCurrent: true}).Run()
			require.Equal(t, StatusFound, res.Status)
			require.Equal(t, tc.pos, res.Pos)
		})
	}

	res := e.Start(context.Background(), m, Request{Needle: "HEAD", From: 0, IncludeCurrent: true}).Run()
	require.Equal(t, StatusNotFound, res.Status, "HEAD is not a searchable name")
}

func TestEnrichedFieldsBeyondLoadedRows(t *testing.T) {
	repo := linearRepo(t, 50, map[int][]testutil.CommitOption{
		10: {testutil.Paths("payments/charge.go")},
		15: {testutil.Message("Merge pull request #12 from acme/refunds\n\nRefund partial captures\n")},
	})
	set, err := modules.New([]modules.Definition{{Name: "payments", Path: "payments/"}})
	require.NoError(t, err)
	enricher := enrich.New(repo, enrich.DefaultConfig(), enrich.WithModules(set))
	defer enricher.Close()

	e := NewEngine(repo, enricher, DefaultConfig())
	defer e.Close()

	cases := []struct {
		needle string
		pos    int
	}{
		{"partial captures (#12)", 35},
		{"payments", 40},
	}
	for _, tc := range cases {
		t.Run(tc.needle, func(t *testing.T) {
			m := openModel(t, repo, 0)
			require.Zero(t, m.Len())

			res, err := Drive(e.Start(context.Background(), m, Request{Needle: tc.needle, From: 0, IncludeCurrent: true}), extender(m))
			require.NoError(t, err)
			require.Equal(t, StatusFound, res.Status)
			require.Equal(t, tc.pos, res.Pos)
		})
	}
	require.Zero(t, enricher.Pending(), "search resolves inline without queueing")
}

func TestLinksAreSkipped(t *testing.T) {
	repo := testutil.NewBuilder(t).
		WithCommit("base", testutil.Subject("the base")).
		WithCommit("m1", testutil.Parents("base")).
		WithCommit("f1", testutil.Parents("base")).
		WithCommit("M", testutil.Parents("m1", "f1")).
		Build()
	m := openModel(t, repo, 10)
	require.NoError(t, m.Unfold(context.Background(), 0))
	entries := m.Entries(0, m.Len())
	require.Equal(t, history.KindLink, entries[2].Kind)

	e := NewEngine(repo, nil, DefaultConfig())
	defer e.Close()
	res := e.Start(context.Background(), m, Request{Needle: "the base", From: 0}).Run()
	require.Equal(t, StatusFound, res.Status)
	require.Equal(t, 4, res.Pos)
}

func TestStart_CancelsPreviousSearch(t *testing.T) {
	repo := linearRepo(t, 5, nil)
	m := openModel(t, repo, 5)
	e := NewEngine(repo, nil, DefaultConfig())
	defer e.Close()

	first := e.Start(context.Background(), m, Request{Needle: "change 1", From: 0})
	second := e.Start(context.Background(), m, Request{Needle: "change 2", From: 0})

	require.False(t, e.Current(first.Generation()))
	require.True(t, e.Current(second.Generation()))
	require.Equal(t, StatusCancelled, first.Run().Status)
	require.Equal(t, StatusFound, second.Run().Status)

	last, ok := e.Last()
	require.True(t, ok)
	require.Equal(t, "change 2", last.Needle)

	e.Cancel()
	require.False(t, e.Current(second.Generation()))
}

func TestEmptyNeedle(t *testing.T) {
	repo := linearRepo(t, 2, nil)
	m := openModel(t, repo, 2)
	e := NewEngine(repo, nil, DefaultConfig())
	defer e.Close()

	res := e.Start(context.Background(), m, Request{}).Run()
	require.Equal(t, StatusNotFound, res.Status)
	require.Zero(t, res.Scanned)
}

func TestProgressIsPublished(t *testing.T) {
	repo := linearRepo(t, 25, nil)
	m := openModel(t, repo, 25)

	cfg := DefaultConfig()
	cfg.ProgressEvery = 10
	e := NewEngine(repo, nil, cfg)
	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := e.Broker().Subscribe(ctx)

	task := e.Start(context.Background(), m, Request{Needle: "absent", From: 0})
	res := task.Run()
	require.Equal(t, StatusNotFound, res.Status)

	for _, want := range []int{10, 20} {
		select {
		case ev := <-ch:
			require.Equal(t, pubsub.ProgressEvent, ev.Type)
			require.Equal(t, task.Generation(), ev.Payload.Generation)
			require.Equal(t, want, ev.Payload.Scanned)
		case <-time.After(time.Second):
			t.Fatalf("no progress event for %d rows", want)
		}
	}
}

func TestRun_AfterFinishReturnsSameResult(t *testing.T) {
	repo := linearRepo(t, 4, nil)
	m := openModel(t, repo, 4)
	e := NewEngine(repo, nil, DefaultConfig())
	defer e.Close()

	task := e.Start(context.Background(), m, Request{Needle: "change 2", From: 0})
	first := task.Run()
	require.Equal(t, first, task.Run())
}
