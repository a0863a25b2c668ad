package git

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/zjrosen/gitfold/internal/log"
	"github.com/zjrosen/gitfold/internal/vcs"
)

// Backend answers vcs.Backend queries with git plumbing commands. Each call
// is its own process, so concurrent use is safe.
type Backend struct {
	exec *Executor

	refsMu sync.Mutex
	refs   map[vcs.CommitID][]vcs.Ref
}

var (
	_ vcs.Backend        = (*Backend)(nil)
	_ vcs.Fetcher        = (*Backend)(nil)
	_ vcs.RefInvalidator = (*Backend)(nil)
)

// Open verifies workDir is a repository and returns a backend for it.
func Open(ctx context.Context, workDir, remote string) (*Backend, error) {
	e := NewExecutor(workDir, remote)
	if _, err := e.GitDir(ctx); err != nil {
		if errors.Is(err, vcs.ErrBackendUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", vcs.ErrBackendUnavailable, workDir, err)
	}
	log.Debug(log.CatVCS, "opened repository", "backend", "cli", "path", workDir)
	return &Backend{exec: e}, nil
}

// Executor exposes the underlying command runner.
func (b *Backend) Executor() *Executor { return b.exec }

func (b *Backend) Resolve(ctx context.Context, rev string) (vcs.CommitID, error) {
	out, err := b.exec.runGitOutput(ctx, "rev-parse", "--verify", "--quiet", "--end-of-options", rev+"^{commit}")
	if err != nil {
		if errors.Is(err, vcs.ErrBackendUnavailable) || errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", fmt.Errorf("revision %q: %w", rev, vcs.ErrNotFound)
	}
	return vcs.CommitID(out), nil
}

func (b *Backend) Parents(ctx context.Context, id vcs.CommitID) ([]vcs.CommitID, error) {
	out, err := b.exec.runGitOutput(ctx, "rev-list", "--parents", "-n", "1", string(id))
	if err != nil {
		logFailure("rev-list --parents", err, "commit", id.Short())
		return nil, missing(id, err)
	}
	return parseParents(out), nil
}

// parseParents reads "<id> <parent>..." as printed by rev-list --parents.
func parseParents(line string) []vcs.CommitID {
	fields := strings.Fields(line)
	if len(fields) <= 1 {
		return []vcs.CommitID{}
	}
	parents := make([]vcs.CommitID, 0, len(fields)-1)
	for _, f := range fields[1:] {
		parents = append(parents, vcs.CommitID(f))
	}
	return parents
}

func (b *Backend) MergeBase(ctx context.Context, a, other vcs.CommitID) (vcs.CommitID, bool, error) {
	out, err := b.exec.runGitOutput(ctx, "merge-base", string(a), string(other))
	if err != nil {
		// Exit status 1 with no output: the histories are disjoint.
		if exitCode(err) == 1 {
			return "", false, nil
		}
		logFailure("merge-base", err, "a", a.Short(), "b", other.Short())
		return "", false, missing(a, err)
	}
	return vcs.CommitID(out), true, nil
}

func (b *Backend) IsAncestor(ctx context.Context, ancestor, descendant vcs.CommitID) (bool, error) {
	if ancestor == descendant {
		return true, nil
	}
	err := b.exec.runGit(ctx, "merge-base", "--is-ancestor", string(ancestor), string(descendant))
	if err == nil {
		return true, nil
	}
	if exitCode(err) == 1 {
		return false, nil
	}
	logFailure("merge-base --is-ancestor", err, "ancestor", ancestor.Short(), "descendant", descendant.Short())
	return false, missing(descendant, err)
}

// metadataFormat separates fields with NUL; the raw body comes last.
// %aN/%aE honor .mailmap.
const metadataFormat = "--format=%aN%x00%aE%x00%at%x00%cN%x00%cE%x00%ct%x00%B"

func (b *Backend) Metadata(ctx context.Context, id vcs.CommitID) (vcs.Metadata, error) {
	out, err := b.exec.runGitRaw(ctx, "show", "-s", "--no-show-signature", metadataFormat, string(id))
	if err != nil {
		logFailure("show", err, "commit", id.Short())
		return vcs.Metadata{}, missing(id, err)
	}
	return parseMetadata(out)
}

func parseMetadata(out string) (vcs.Metadata, error) {
	fields := strings.SplitN(out, "\x00", 7)
	if len(fields) != 7 {
		return vcs.Metadata{}, fmt.Errorf("unexpected show output: %d fields", len(fields))
	}
	authorTS, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return vcs.Metadata{}, fmt.Errorf("parse author time: %w", err)
	}
	committerTS, err := strconv.ParseInt(fields[5], 10, 64)
	if err != nil {
		return vcs.Metadata{}, fmt.Errorf("parse committer time: %w", err)
	}
	message := strings.TrimRight(fields[6], "\n")
	return vcs.Metadata{
		Author:    vcs.Signature{Name: fields[0], Email: fields[1], When: time.Unix(authorTS, 0)},
		Committer: vcs.Signature{Name: fields[3], Email: fields[4], When: time.Unix(committerTS, 0)},
		Subject:   vcs.SubjectOf(message),
		Message:   message,
	}, nil
}

func (b *Backend) ChangedPaths(ctx context.Context, id vcs.CommitID) ([]string, error) {
	parents, err := b.Parents(ctx, id)
	if err != nil {
		return nil, err
	}
	args := []string{"diff-tree", "-r", "-z", "--name-only", "--no-commit-id"}
	if len(parents) == 0 {
		args = append(args, "--root", string(id))
	} else {
		args = append(args, string(parents[0]), string(id))
	}
	out, err := b.exec.runGitRaw(ctx, args...)
	if err != nil {
		logFailure("diff-tree", err, "commit", id.Short())
		return nil, missing(id, err)
	}
	var paths []string
	for _, p := range strings.Split(out, "\x00") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	return paths, nil
}

func (b *Backend) Refs(ctx context.Context, id vcs.CommitID) ([]vcs.Ref, error) {
	b.refsMu.Lock()
	defer b.refsMu.Unlock()

	if b.refs == nil {
		refs, err := b.loadRefs(ctx)
		if err != nil {
			return nil, err
		}
		b.refs = refs
	}
	return append([]vcs.Ref(nil), b.refs[id]...), nil
}

// loadRefs indexes refs by the commit they point at. %(*objectname) is the
// peeled commit of annotated tags.
func (b *Backend) loadRefs(ctx context.Context) (map[vcs.CommitID][]vcs.Ref, error) {
	out, err := b.exec.runGitOutput(ctx, "for-each-ref", "--format=%(objectname)%00%(*objectname)%00%(refname)")
	if err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}
	refs := parseRefs(out)

	if head, err := b.exec.runGitOutput(ctx, "rev-parse", "--verify", "--quiet", "HEAD"); err == nil && head != "" {
		id := vcs.CommitID(head)
		refs[id] = append(refs[id], vcs.Ref{Name: "HEAD", Kind: vcs.RefHead})
	}
	for _, list := range refs {
		vcs.SortRefs(list)
	}
	return refs, nil
}

func parseRefs(out string) map[vcs.CommitID][]vcs.Ref {
	refs := make(map[vcs.CommitID][]vcs.Ref)
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Split(line, "\x00")
		if len(fields) != 3 {
			continue
		}
		ref, ok := vcs.RefFromFullName(fields[2])
		if !ok {
			continue
		}
		target := fields[0]
		if fields[1] != "" {
			target = fields[1]
		}
		id := vcs.CommitID(target)
		refs[id] = append(refs[id], ref)
	}
	return refs
}

// InvalidateRefs forgets the reference index.
func (b *Backend) InvalidateRefs() {
	b.refsMu.Lock()
	b.refs = nil
	b.refsMu.Unlock()
}

func (b *Backend) FirstParentCount(ctx context.Context, r vcs.Range) (int, error) {
	args := []string{"rev-list", "--first-parent", "--count", r.Start}
	if r.End != "" {
		args = append(args, "^"+r.End)
	}
	out, err := b.exec.runGitOutput(ctx, args...)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", r, err)
	}
	n, err := strconv.Atoi(out)
	if err != nil {
		return 0, fmt.Errorf("parse count %q: %w", out, err)
	}
	return n, nil
}

// FetchMissing asks the configured remote for id. Works with servers that
// allow fetching reachable commits by id (the default on major hosts).
func (b *Backend) FetchMissing(ctx context.Context, id vcs.CommitID) error {
	log.Info(log.CatVCS, "fetching missing object", "commit", id.Short(), "remote", b.exec.remote)
	err := b.exec.runGit(ctx, "fetch", "--quiet", "--no-tags", "--no-write-fetch-head", b.exec.remote, string(id))
	if err != nil {
		return fmt.Errorf("fetch %s from %s: %w", id.Short(), b.exec.remote, err)
	}
	return nil
}
