package watcher_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/gitfold/internal/watcher"
)

// fakeGitDir lays out the files a ref update touches.
func fakeGitDir(t *testing.T) string {
	t.Helper()
	gitDir := filepath.Join(t.TempDir(), ".git")
	require.NoError(t, os.MkdirAll(filepath.Join(gitDir, "refs", "heads"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(gitDir, "objects"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(gitDir, "HEAD"), []byte("ref: refs/heads/main\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(gitDir, "refs", "heads", "main"), []byte("a\n"), 0o644))
	return gitDir
}

func start(t *testing.T, gitDir string) <-chan struct{} {
	t.Helper()
	w, err := watcher.New(watcher.Config{GitDir: gitDir, Debounce: 50 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })

	onChange, err := w.Start()
	require.NoError(t, err)
	return onChange
}

func expectSignal(t *testing.T, onChange <-chan struct{}) {
	t.Helper()
	select {
	case <-onChange:
	case <-time.After(2 * time.Second):
		t.Fatal("expected notification but got timeout")
	}
}

func expectQuiet(t *testing.T, onChange <-chan struct{}) {
	t.Helper()
	select {
	case <-onChange:
		t.Fatal("unexpected notification")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestWatcher_DebouncesBranchUpdates(t *testing.T) {
	gitDir := fakeGitDir(t)
	onChange := start(t, gitDir)

	ref := filepath.Join(gitDir, "refs", "heads", "main")
	for i := 0; i < 10; i++ {
		require.NoError(t, os.WriteFile(ref, []byte{byte('a' + i), '\n'}, 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	expectSignal(t, onChange)
	expectQuiet(t, onChange)
}

func TestWatcher_HeadAndPackedRefs(t *testing.T) {
	gitDir := fakeGitDir(t)
	onChange := start(t, gitDir)

	require.NoError(t, os.WriteFile(filepath.Join(gitDir, "HEAD"), []byte("ref: refs/heads/topic\n"), 0o644))
	expectSignal(t, onChange)

	require.NoError(t, os.WriteFile(filepath.Join(gitDir, "packed-refs"), []byte("# pack-refs\n"), 0o644))
	expectSignal(t, onChange)
}

func TestWatcher_LockRenameCountsAsUpdate(t *testing.T) {
	gitDir := fakeGitDir(t)
	onChange := start(t, gitDir)

	lock := filepath.Join(gitDir, "refs", "heads", "main.lock")
	require.NoError(t, os.WriteFile(lock, []byte("b\n"), 0o644))
	require.NoError(t, os.Rename(lock, filepath.Join(gitDir, "refs", "heads", "main")))

	expectSignal(t, onChange)
}

func TestWatcher_NewRefDirectoriesAreWatched(t *testing.T) {
	gitDir := fakeGitDir(t)
	onChange := start(t, gitDir)

	remote := filepath.Join(gitDir, "refs", "remotes", "origin")
	require.NoError(t, os.MkdirAll(remote, 0o755))
	expectSignal(t, onChange)

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(remote, "main"), []byte("c\n"), 0o644))
	expectSignal(t, onChange)
}

func TestWatcher_IgnoresIrrelevantFiles(t *testing.T) {
	gitDir := fakeGitDir(t)
	index := filepath.Join(gitDir, "index")
	require.NoError(t, os.WriteFile(index, []byte("initial"), 0o644))
	onChange := start(t, gitDir)

	require.NoError(t, os.WriteFile(index, []byte("staged"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(gitDir, "HEAD.lock"), []byte("x"), 0o644))

	expectQuiet(t, onChange)
}

func TestGitDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	dir, err := watcher.GitDir(root)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, ".git"), dir)

	linked := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(linked, ".git"), []byte("gitdir: ../main/.git/worktrees/x\n"), 0o644))
	dir, err = watcher.GitDir(linked)
	require.NoError(t, err)
	require.Equal(t, filepath.Clean(filepath.Join(linked, "../main/.git/worktrees/x")), dir)

	_, err = watcher.GitDir(t.TempDir())
	require.Error(t, err)
}
