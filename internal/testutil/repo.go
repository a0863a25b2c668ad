package testutil

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/zjrosen/gitfold/internal/vcs"
)

type commit struct {
	id        vcs.CommitID
	parents   []vcs.CommitID
	author    vcs.Signature
	committer vcs.Signature
	message   string
	paths     []string
	missing   bool
	fetchable bool
}

// Repo is an in-memory vcs.Backend. It is safe for concurrent use.
type Repo struct {
	mu           sync.RWMutex
	commits      map[vcs.CommitID]*commit
	labels       map[string]vcs.CommitID
	names        map[vcs.CommitID]string
	refs         map[vcs.CommitID][]vcs.Ref
	refNames     map[string]vcs.CommitID
	head         vcs.CommitID
	mergeBaseErr error
	calls        map[string]int
}

var (
	_ vcs.Backend = (*Repo)(nil)
	_ vcs.Fetcher = (*Repo)(nil)
)

// ID returns the commit id for label. Unknown labels yield "".
func (r *Repo) ID(label string) vcs.CommitID {
	return r.labels[label]
}

// Label returns the label for id, or the short id when unknown.
func (r *Repo) Label(id vcs.CommitID) string {
	if l, ok := r.names[id]; ok {
		return l
	}
	return id.Short()
}

// Labels maps ids to labels, for readable assertions.
func (r *Repo) Labels(ids []vcs.CommitID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = r.Label(id)
	}
	return out
}

// Calls returns how many times the named backend method ran.
func (r *Repo) Calls(method string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.calls[method]
}

// MoveBranch repoints a branch, as a fetch or commit would.
func (r *Repo) MoveBranch(name, label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	to := r.labels[label]
	for id, refs := range r.refs {
		kept := refs[:0]
		for _, ref := range refs {
			if ref.Name != name {
				kept = append(kept, ref)
			}
		}
		r.refs[id] = kept
	}
	r.refs[to] = append(r.refs[to], vcs.Ref{Name: name, Kind: vcs.RefBranch})
	r.refNames[name] = to
}

func (r *Repo) count(method string) {
	r.calls[method]++
}

// lookup returns the commit or the error the backend contract requires.
// Callers hold r.mu.
func (r *Repo) lookup(id vcs.CommitID) (*commit, error) {
	c, ok := r.commits[id]
	if !ok {
		return nil, fmt.Errorf("commit %s: %w", id.Short(), vcs.ErrNotFound)
	}
	if c.missing {
		return nil, &vcs.MissingObjectError{ID: id}
	}
	return c, nil
}

func (r *Repo) Resolve(_ context.Context, rev string) (vcs.CommitID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count("Resolve")

	base, steps := rev, 0
	if i := strings.LastIndex(rev, "~"); i > 0 {
		n, err := strconv.Atoi(rev[i+1:])
		if err != nil {
			return "", fmt.Errorf("revision %q: %w", rev, vcs.ErrNotFound)
		}
		base, steps = rev[:i], n
	}

	id, ok := r.resolveName(base)
	if !ok {
		return "", fmt.Errorf("revision %q: %w", rev, vcs.ErrNotFound)
	}
	for ; steps > 0; steps-- {
		c, err := r.lookup(id)
		if err != nil {
			return "", err
		}
		if len(c.parents) == 0 {
			return "", fmt.Errorf("revision %q: %w", rev, vcs.ErrNotFound)
		}
		id = c.parents[0]
	}
	return id, nil
}

func (r *Repo) resolveName(name string) (vcs.CommitID, bool) {
	if name == "HEAD" {
		return r.head, true
	}
	if id, ok := r.refNames[name]; ok {
		return id, true
	}
	if id, ok := r.labels[name]; ok {
		return id, true
	}
	if _, ok := r.commits[vcs.CommitID(name)]; ok {
		return vcs.CommitID(name), true
	}
	if len(name) >= 4 {
		for id := range r.commits {
			if strings.HasPrefix(string(id), name) {
				return id, true
			}
		}
	}
	return "", false
}

func (r *Repo) Parents(_ context.Context, id vcs.CommitID) ([]vcs.CommitID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count("Parents")

	c, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	return append([]vcs.CommitID(nil), c.parents...), nil
}

// ancestors returns id and every commit reachable from it. Missing
// commits end the traversal along their branch.
func (r *Repo) ancestors(id vcs.CommitID) map[vcs.CommitID]bool {
	seen := map[vcs.CommitID]bool{}
	stack := []vcs.CommitID{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		if c, ok := r.commits[cur]; ok && !c.missing {
			stack = append(stack, c.parents...)
		}
	}
	return seen
}

func (r *Repo) MergeBase(_ context.Context, a, b vcs.CommitID) (vcs.CommitID, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count("MergeBase")

	if r.mergeBaseErr != nil {
		return "", false, r.mergeBaseErr
	}
	if _, err := r.lookup(a); err != nil {
		return "", false, err
	}
	if _, err := r.lookup(b); err != nil {
		return "", false, err
	}

	fromA := r.ancestors(a)
	fromB := r.ancestors(b)
	var common []vcs.CommitID
	for id := range fromA {
		if fromB[id] {
			common = append(common, id)
		}
	}
	if len(common) == 0 {
		return "", false, nil
	}

	// Best common ancestors are those no other common ancestor descends from.
	var best []vcs.CommitID
	for _, c := range common {
		dominated := false
		for _, other := range common {
			if other != c && r.ancestors(other)[c] {
				dominated = true
				break
			}
		}
		if !dominated {
			best = append(best, c)
		}
	}
	sort.Slice(best, func(i, j int) bool {
		ti, tj := r.commits[best[i]].committer.When, r.commits[best[j]].committer.When
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return best[i] < best[j]
	})
	return best[0], true, nil
}

func (r *Repo) IsAncestor(_ context.Context, ancestor, descendant vcs.CommitID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count("IsAncestor")

	if _, err := r.lookup(descendant); err != nil {
		return false, err
	}
	if _, ok := r.commits[ancestor]; !ok {
		return false, fmt.Errorf("commit %s: %w", ancestor.Short(), vcs.ErrNotFound)
	}
	return r.ancestors(descendant)[ancestor], nil
}

func (r *Repo) Metadata(_ context.Context, id vcs.CommitID) (vcs.Metadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count("Metadata")

	c, err := r.lookup(id)
	if err != nil {
		return vcs.Metadata{}, err
	}
	return vcs.Metadata{
		Author:    c.author,
		Committer: c.committer,
		Subject:   vcs.SubjectOf(c.message),
		Message:   c.message,
	}, nil
}

func (r *Repo) ChangedPaths(_ context.Context, id vcs.CommitID) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count("ChangedPaths")

	c, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), c.paths...), nil
}

func (r *Repo) Refs(_ context.Context, id vcs.CommitID) ([]vcs.Ref, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count("Refs")
	return append([]vcs.Ref(nil), r.refs[id]...), nil
}

func (r *Repo) FirstParentCount(ctx context.Context, rng vcs.Range) (int, error) {
	start, err := r.Resolve(ctx, rng.Start)
	if err != nil {
		return 0, err
	}
	var excluded map[vcs.CommitID]bool
	if rng.End != "" {
		end, err := r.Resolve(ctx, rng.End)
		if err != nil {
			return 0, err
		}
		r.mu.RLock()
		excluded = r.ancestors(end)
		r.mu.RUnlock()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.count("FirstParentCount")

	n := 0
	for id := start; id != ""; {
		if excluded[id] {
			break
		}
		n++
		c, ok := r.commits[id]
		if !ok || c.missing || len(c.parents) == 0 {
			break
		}
		id = c.parents[0]
	}
	return n, nil
}

// FetchMissing makes a Fetchable commit available.
func (r *Repo) FetchMissing(_ context.Context, id vcs.CommitID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count("FetchMissing")

	c, ok := r.commits[id]
	if !ok {
		return fmt.Errorf("fetch %s: %w", id.Short(), vcs.ErrNotFound)
	}
	if !c.fetchable {
		return fmt.Errorf("fetch %s: %w", id.Short(), vcs.ErrMissingObjectData)
	}
	c.missing = false
	return nil
}
