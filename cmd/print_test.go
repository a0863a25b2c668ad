package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/gitfold/internal/config"
	"github.com/zjrosen/gitfold/internal/search"
)

// diskRepo builds: base <- m1 (main), base <- f1 <- f2, merge(m1, f2).
func diskRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	commit := func(msg, file string, parents ...plumbing.Hash) plumbing.Hash {
		t.Helper()
		require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(msg), 0o600))
		_, err := wt.Add(file)
		require.NoError(t, err)
		clock = clock.Add(time.Minute)
		sig := &object.Signature{Name: "Ada Lovelace", Email: "ada@example.com", When: clock}
		h, err := wt.Commit(msg, &git.CommitOptions{Author: sig, Committer: sig, Parents: parents})
		require.NoError(t, err)
		return h
	}

	base := commit("Initial commit", "README.md")
	f1 := commit("feature change 1", "f1.txt", base)
	f2 := commit("feature change 2", "f2.txt", f1)
	m1 := commit("main change 1", "m1.txt", base)
	commit("Merge pull request #7 from acme/feature\n\nAdd the feature\n", "merge.txt", m1, f2)
	return dir
}

func newTestSession(t *testing.T, rng string, paths ...string) *session {
	t.Helper()
	cfg := config.Defaults()
	cfg.Tracing.Enabled = false
	s, err := openSession(context.Background(), sessionOptions{
		Config:  cfg,
		Repo:    diskRepo(t),
		Range:   rng,
		Paths:   paths,
		NoCache: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		s.engine.Close()
		s.enricher.Close()
		s.Close()
	})
	return s
}

func render(t *testing.T, s *session, opts printOptions) []string {
	t.Helper()
	ctx := context.Background()
	var buf bytes.Buffer
	err := writeHistory(ctx, &buf, s.hist, s.engine, resolvingDecorator{ctx: ctx, e: s.enricher}, opts)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
}

func TestWriteHistory_Folded(t *testing.T) {
	s := newTestSession(t, "")
	lines := render(t, s, printOptions{})

	require.Len(t, lines, 3)
	require.Contains(t, lines[0], "Add the feature (#7)", "pull request title resolved before printing")
	require.Contains(t, lines[1], "main change 1")
	require.Contains(t, lines[2], "Initial commit")
	require.NotContains(t, strings.Join(lines, "\n"), "feature change")
}

func TestWriteHistory_UnfoldAll(t *testing.T) {
	s := newTestSession(t, "")
	lines := render(t, s, printOptions{UnfoldAll: true})

	require.Len(t, lines, 6, "merge, f2, f1, link to base, m1, base")
	require.Contains(t, lines[1], "feature change 2")
	require.Contains(t, lines[2], "feature change 1")
	require.Contains(t, lines[4], "main change 1")
}

func TestWriteHistory_Limit(t *testing.T) {
	s := newTestSession(t, "")
	lines := render(t, s, printOptions{Limit: 2})
	require.Len(t, lines, 2)
}

func TestWriteHistory_Find(t *testing.T) {
	s := newTestSession(t, "")
	lines := render(t, s, printOptions{Find: "MAIN change"})

	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "main change 1")
}

func TestWriteHistory_FindMissing(t *testing.T) {
	s := newTestSession(t, "")
	err := writeHistory(context.Background(), &bytes.Buffer{}, s.hist, s.engine, s.enricher, printOptions{Find: "no such text"})
	require.ErrorIs(t, err, search.ErrNotFound)
}

func TestWriteHistory_Range(t *testing.T) {
	s := newTestSession(t, "HEAD~1..HEAD")
	lines := render(t, s, printOptions{})
	require.Len(t, lines, 1)
	require.Contains(t, lines[0], "Add the feature (#7)")
}

func TestOpenSession_NotARepository(t *testing.T) {
	_, err := openSession(context.Background(), sessionOptions{
		Config:  config.Defaults(),
		Repo:    t.TempDir(),
		NoCache: true,
	})
	require.ErrorContains(t, err, "opening repository")
}

func TestOpenSession_StoreAndWatcher(t *testing.T) {
	cfg := config.Defaults()
	cfg.Cache.Dir = t.TempDir()
	s, err := openSession(context.Background(), sessionOptions{
		Config: cfg,
		Repo:   diskRepo(t),
		Watch:  true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		s.engine.Close()
		s.enricher.Close()
		if s.watcher != nil {
			_ = s.watcher.Stop()
		}
		s.Close()
	})

	require.NotNil(t, s.db, "annotation cache opened under the cache dir")
	require.NotNil(t, s.watcher)
	require.NotEmpty(t, s.root)
}

func TestPrintCommand(t *testing.T) {
	dir := diskRepo(t)
	t.Chdir(t.TempDir())
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, config.WriteDefaultConfig(cfgPath))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"print", "--config", cfgPath, "-C", dir, "--no-cache", "-n", "2"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		cfgFile, repoDir, noCache = "", "", false
		printFlags = printOptions{}
	})

	require.NoError(t, rootCmd.Execute())
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "Add the feature (#7)")
}
