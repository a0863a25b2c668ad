// Package gogit implements vcs.Backend with go-git, without shelling out.
// The backend is not safe for concurrent use; wrap it with
// vcs.NewSerialized when sharing it across goroutines.
package gogit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"

	"github.com/zjrosen/gitfold/internal/log"
	"github.com/zjrosen/gitfold/internal/vcs"
)

// Backend reads history from a go-git repository.
type Backend struct {
	repo *git.Repository

	refsMu sync.Mutex
	refs   map[vcs.CommitID][]vcs.Ref
}

var (
	_ vcs.Backend        = (*Backend)(nil)
	_ vcs.RefInvalidator = (*Backend)(nil)
)

// Open opens the repository containing path, searching parent directories.
func Open(path string) (*Backend, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", vcs.ErrBackendUnavailable, path, err)
	}
	log.Debug(log.CatVCS, "opened repository", "backend", "gogit", "path", path)
	return New(repo), nil
}

// New wraps an already opened repository (tests use in-memory storage).
func New(repo *git.Repository) *Backend {
	return &Backend{repo: repo}
}

func hashOf(id vcs.CommitID) plumbing.Hash {
	return plumbing.NewHash(string(id))
}

func idOf(h plumbing.Hash) vcs.CommitID {
	return vcs.CommitID(h.String())
}

// commit loads a commit object. An id that cannot be loaded was handed out
// by this backend, so absence means the object store is incomplete.
func (b *Backend) commit(id vcs.CommitID) (*object.Commit, error) {
	c, err := b.repo.CommitObject(hashOf(id))
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return nil, &vcs.MissingObjectError{ID: id, Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %w", id.Short(), err)
	}
	return c, nil
}

func (b *Backend) Resolve(_ context.Context, rev string) (vcs.CommitID, error) {
	h, err := b.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return "", fmt.Errorf("revision %q: %w", rev, vcs.ErrNotFound)
	}
	// Annotated tags resolve to the tag object; peel to the commit.
	if tag, err := b.repo.TagObject(*h); err == nil {
		c, err := tag.Commit()
		if err != nil {
			return "", fmt.Errorf("revision %q: %w", rev, vcs.ErrNotFound)
		}
		return idOf(c.Hash), nil
	}
	return idOf(*h), nil
}

func (b *Backend) Parents(_ context.Context, id vcs.CommitID) ([]vcs.CommitID, error) {
	c, err := b.commit(id)
	if err != nil {
		return nil, err
	}
	parents := make([]vcs.CommitID, len(c.ParentHashes))
	for i, h := range c.ParentHashes {
		parents[i] = idOf(h)
	}
	return parents, nil
}

func (b *Backend) MergeBase(_ context.Context, a, other vcs.CommitID) (vcs.CommitID, bool, error) {
	ca, err := b.commit(a)
	if err != nil {
		return "", false, err
	}
	cb, err := b.commit(other)
	if err != nil {
		return "", false, err
	}
	bases, err := ca.MergeBase(cb)
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return "", false, &vcs.MissingObjectError{ID: a, Err: err}
	}
	if err != nil {
		return "", false, fmt.Errorf("merge-base %s %s: %w", a.Short(), other.Short(), err)
	}
	if len(bases) == 0 {
		return "", false, nil
	}
	// Several best ancestors can exist with criss-cross merges; prefer the
	// newest for a stable answer.
	sort.Slice(bases, func(i, j int) bool {
		ti, tj := bases[i].Committer.When, bases[j].Committer.When
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return bases[i].Hash.String() < bases[j].Hash.String()
	})
	return idOf(bases[0].Hash), true, nil
}

func (b *Backend) IsAncestor(_ context.Context, ancestor, descendant vcs.CommitID) (bool, error) {
	if ancestor == descendant {
		return true, nil
	}
	ca, err := b.commit(ancestor)
	if err != nil {
		return false, err
	}
	cd, err := b.commit(descendant)
	if err != nil {
		return false, err
	}
	ok, err := ca.IsAncestor(cd)
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return false, &vcs.MissingObjectError{ID: descendant, Err: err}
	}
	if err != nil {
		return false, fmt.Errorf("is-ancestor %s %s: %w", ancestor.Short(), descendant.Short(), err)
	}
	return ok, nil
}

func (b *Backend) Metadata(_ context.Context, id vcs.CommitID) (vcs.Metadata, error) {
	c, err := b.commit(id)
	if err != nil {
		return vcs.Metadata{}, err
	}
	return vcs.Metadata{
		Author:    vcs.Signature{Name: c.Author.Name, Email: c.Author.Email, When: c.Author.When},
		Committer: vcs.Signature{Name: c.Committer.Name, Email: c.Committer.Email, When: c.Committer.When},
		Subject:   vcs.SubjectOf(c.Message),
		Message:   c.Message,
	}, nil
}

func (b *Backend) ChangedPaths(ctx context.Context, id vcs.CommitID) ([]string, error) {
	c, err := b.commit(id)
	if err != nil {
		return nil, err
	}
	tree, err := c.Tree()
	if err != nil {
		return nil, &vcs.MissingObjectError{ID: id, Err: err}
	}

	if c.NumParents() == 0 {
		var paths []string
		err := tree.Files().ForEach(func(f *object.File) error {
			paths = append(paths, f.Name)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("list files of %s: %w", id.Short(), err)
		}
		return paths, nil
	}

	parent, err := c.Parent(0)
	if err != nil {
		return nil, &vcs.MissingObjectError{ID: idOf(c.ParentHashes[0]), Err: err}
	}
	parentTree, err := parent.Tree()
	if err != nil {
		return nil, &vcs.MissingObjectError{ID: idOf(parent.Hash), Err: err}
	}
	changes, err := object.DiffTreeWithOptions(ctx, parentTree, tree, object.DefaultDiffTreeOptions)
	if err != nil {
		return nil, fmt.Errorf("diff %s: %w", id.Short(), err)
	}

	seen := make(map[string]bool, len(changes))
	paths := make([]string, 0, len(changes))
	for _, ch := range changes {
		for _, name := range []string{ch.From.Name, ch.To.Name} {
			if name != "" && !seen[name] {
				seen[name] = true
				paths = append(paths, name)
			}
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func (b *Backend) Refs(_ context.Context, id vcs.CommitID) ([]vcs.Ref, error) {
	b.refsMu.Lock()
	defer b.refsMu.Unlock()

	if b.refs == nil {
		refs, err := b.loadRefs()
		if err != nil {
			return nil, err
		}
		b.refs = refs
	}
	return append([]vcs.Ref(nil), b.refs[id]...), nil
}

// loadRefs indexes every branch, remote branch and tag by target commit.
func (b *Backend) loadRefs() (map[vcs.CommitID][]vcs.Ref, error) {
	out := make(map[vcs.CommitID][]vcs.Ref)

	if head, err := b.repo.Head(); err == nil {
		out[idOf(head.Hash())] = append(out[idOf(head.Hash())], vcs.Ref{Name: "HEAD", Kind: vcs.RefHead})
	}

	iter, err := b.repo.References()
	if err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() != plumbing.HashReference {
			return nil
		}
		r, ok := vcs.RefFromFullName(ref.Name().String())
		if !ok || r.Kind == vcs.RefHead {
			return nil
		}
		target := ref.Hash()
		if r.Kind == vcs.RefTag {
			if tag, err := b.repo.TagObject(target); err == nil {
				if c, err := tag.Commit(); err == nil {
					target = c.Hash
				}
			}
		}
		out[idOf(target)] = append(out[idOf(target)], r)
		return nil
	})
	if err != nil && !errors.Is(err, storer.ErrStop) {
		return nil, fmt.Errorf("iterate references: %w", err)
	}

	for _, refs := range out {
		vcs.SortRefs(refs)
	}
	return out, nil
}

// InvalidateRefs forgets the reference index; the next Refs call reloads it.
func (b *Backend) InvalidateRefs() {
	b.refsMu.Lock()
	b.refs = nil
	b.refsMu.Unlock()
}

func (b *Backend) FirstParentCount(ctx context.Context, r vcs.Range) (int, error) {
	start, err := b.Resolve(ctx, r.Start)
	if err != nil {
		return 0, err
	}
	var end *object.Commit
	if r.End != "" {
		endID, err := b.Resolve(ctx, r.End)
		if err != nil {
			return 0, err
		}
		if end, err = b.commit(endID); err != nil {
			return 0, err
		}
	}

	n := 0
	c, err := b.commit(start)
	for err == nil {
		if end != nil && !c.Committer.When.After(end.Committer.When) {
			if reached, aerr := c.IsAncestor(end); aerr == nil && reached {
				break
			}
		}
		n++
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if c.NumParents() == 0 {
			return n, nil
		}
		c, err = c.Parent(0)
	}
	if err != nil && !errors.Is(err, plumbing.ErrObjectNotFound) && !errors.Is(err, object.ErrParentNotFound) {
		return n, fmt.Errorf("count first-parent history: %w", err)
	}
	return n, nil
}

// Root returns the top-level directory of the working tree, or "" for a
// bare repository.
func (b *Backend) Root() string {
	wt, err := b.repo.Worktree()
	if err != nil {
		return ""
	}
	return wt.Filesystem.Root()
}
