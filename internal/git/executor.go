// Package git implements vcs.Backend by running the git binary. It is the
// fallback for repositories go-git cannot read (partial clones, exotic
// object formats) and the only backend able to fetch missing objects.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/zjrosen/gitfold/internal/log"
	"github.com/zjrosen/gitfold/internal/vcs"
)

// Errors parsed from git stderr.
var (
	// ErrNotGitRepo indicates the directory is not a git repository.
	ErrNotGitRepo = errors.New("not a git repository")

	// ErrBadObject indicates git could not read an object it was asked about.
	ErrBadObject = errors.New("bad object")

	// ErrUnknownRevision indicates a revision that does not resolve.
	ErrUnknownRevision = errors.New("unknown revision")
)

// Executor runs git commands in a working directory.
type Executor struct {
	workDir string
	remote  string
}

// NewExecutor creates an executor for workDir. remote names the remote used
// to fetch missing objects; empty means "origin".
func NewExecutor(workDir, remote string) *Executor {
	if remote == "" {
		remote = "origin"
	}
	return &Executor{workDir: workDir, remote: remote}
}

// runGit executes a git command and returns an error if it fails.
func (e *Executor) runGit(ctx context.Context, args ...string) error {
	_, err := e.runGitOutput(ctx, args...)
	return err
}

// runGitOutput executes a git command and returns trimmed stdout.
func (e *Executor) runGitOutput(ctx context.Context, args ...string) (string, error) {
	out, err := e.runGitRaw(ctx, args...)
	return strings.TrimSpace(out), err
}

// runGitRaw executes a git command and returns stdout untouched.
func (e *Executor) runGitRaw(ctx context.Context, args ...string) (string, error) {
	//nolint:gosec // G204: args come from controlled sources
	cmd := exec.CommandContext(ctx, "git", args...)
	if e.workDir != "" {
		cmd.Dir = e.workDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		stderrStr := strings.TrimSpace(stderr.String())
		if stderrStr != "" {
			return "", parseGitError(stderrStr, err)
		}
		return "", &exitError{args: args, err: err}
	}

	return stdout.String(), nil
}

// exitError is a git failure that printed nothing on stderr, which is how
// quiet plumbing commands answer "no" (merge-base, rev-parse --quiet).
type exitError struct {
	args []string
	err  error
}

func (e *exitError) Error() string {
	return fmt.Sprintf("git %s: %v", strings.Join(e.args, " "), e.err)
}

func (e *exitError) Unwrap() error { return e.err }

// exitCode returns the process exit code of a silent failure, or -1.
func exitCode(err error) int {
	var silent *exitError
	if !errors.As(err, &silent) {
		return -1
	}
	var ee *exec.ExitError
	if errors.As(silent.err, &ee) {
		return ee.ExitCode()
	}
	return -1
}

// parseGitError converts git stderr messages to specific error types.
func parseGitError(stderr string, originalErr error) error {
	stderrLower := strings.ToLower(stderr)

	switch {
	case strings.Contains(stderrLower, "not a git repository"):
		return fmt.Errorf("%w: %w: %s", vcs.ErrBackendUnavailable, ErrNotGitRepo, stderr)

	case strings.Contains(stderrLower, "unknown revision"),
		strings.Contains(stderrLower, "bad revision"),
		strings.Contains(stderrLower, "ambiguous argument"),
		strings.Contains(stderrLower, "needed a single revision"),
		strings.Contains(stderrLower, "not a valid object name"):
		return fmt.Errorf("%w: %w: %s", vcs.ErrNotFound, ErrUnknownRevision, stderr)

	case strings.Contains(stderrLower, "bad object"),
		strings.Contains(stderrLower, "missing"),
		strings.Contains(stderrLower, "could not read"),
		strings.Contains(stderrLower, "unable to read"),
		strings.Contains(stderrLower, "did not receive expected object"),
		strings.Contains(stderrLower, "not our ref"):
		return fmt.Errorf("%w: %s", ErrBadObject, stderr)
	}

	return fmt.Errorf("git error: %s: %w", stderr, originalErr)
}

// missing converts ErrBadObject into the backend contract error for id.
func missing(id vcs.CommitID, err error) error {
	if errors.Is(err, ErrBadObject) {
		return &vcs.MissingObjectError{ID: id, Err: err}
	}
	return err
}

// IsGitRepo checks if the working directory is inside a git repository.
func (e *Executor) IsGitRepo(ctx context.Context) bool {
	return e.runGit(ctx, "rev-parse", "--git-dir") == nil
}

// GitDir returns the absolute path of the .git directory.
func (e *Executor) GitDir(ctx context.Context) (string, error) {
	return e.runGitOutput(ctx, "rev-parse", "--absolute-git-dir")
}

// RepoRoot returns the top-level directory of the working tree.
func (e *Executor) RepoRoot(ctx context.Context) (string, error) {
	return e.runGitOutput(ctx, "rev-parse", "--show-toplevel")
}

// IsShallow reports whether the repository is a shallow clone.
func (e *Executor) IsShallow(ctx context.Context) (bool, error) {
	out, err := e.runGitOutput(ctx, "rev-parse", "--is-shallow-repository")
	if err != nil {
		return false, err
	}
	return out == "true", nil
}

func logFailure(op string, err error, fields ...any) {
	if err == nil || errors.Is(err, vcs.ErrNotFound) || errors.Is(err, context.Canceled) {
		return
	}
	log.ErrorErr(log.CatVCS, "git "+op+" failed", err, fields...)
}
