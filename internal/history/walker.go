package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zjrosen/gitfold/internal/log"
	"github.com/zjrosen/gitfold/internal/vcs"
)

// WalkOptions configures a first-parent walk.
type WalkOptions struct {
	// End is the exclusive boundary. Zero walks to the root.
	End vcs.CommitID
	// Guard stops the walk at commits that are ancestors of End even when
	// End itself is never reached along first parents.
	Guard bool
	// Paths limits yielded commits to those touching one of the paths.
	// Skipped commits are still traversed.
	Paths []string
	// Level is assigned to every yielded node.
	Level int
	// Predecessor becomes the ParentRef of the first yielded node.
	Predecessor NodeID
}

// Walker yields commits along first-parent ancestry, one node per call.
// A failed Next keeps the walker at the same commit so the caller can
// repair the repository and call Next again.
type Walker struct {
	backend vcs.Backend
	alloc   func() NodeID
	opts    WalkOptions

	next    vcs.CommitID
	prev    NodeID
	endTime time.Time
	endSeen bool
	done    bool
}

// NewWalker prepares a walk starting at start (inclusive).
func NewWalker(backend vcs.Backend, alloc func() NodeID, start vcs.CommitID, opts WalkOptions) *Walker {
	return &Walker{
		backend: backend,
		alloc:   alloc,
		opts:    opts,
		next:    start,
		prev:    opts.Predecessor,
		done:    start.IsZero(),
	}
}

// Done reports whether the walk is exhausted.
func (w *Walker) Done() bool { return w.done }

// Pending returns the commit the next call to Next will examine.
func (w *Walker) Pending() vcs.CommitID { return w.next }

// Predecessor returns the handle of the last yielded node.
func (w *Walker) Predecessor() NodeID { return w.prev }

// Stop ends the walk.
func (w *Walker) Stop() { w.done = true }

// SetEnd moves the exclusive boundary.
func (w *Walker) SetEnd(end vcs.CommitID) {
	w.opts.End = end
	w.endSeen = false
	w.endTime = time.Time{}
}

// End returns the current boundary.
func (w *Walker) End() vcs.CommitID { return w.opts.End }

// Next returns the next node. ok is false once the walk is exhausted. On
// error the walker does not advance.
func (w *Walker) Next(ctx context.Context) (node *Node, ok bool, err error) {
	for !w.done {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}

		id := w.next
		if id.IsZero() || id == w.opts.End {
			w.done = true
			break
		}

		parents, err := w.backend.Parents(ctx, id)
		if err != nil {
			return nil, false, w.wrap(id, err)
		}

		below, err := w.belowBoundary(ctx, id)
		if err != nil {
			return nil, false, w.wrap(id, err)
		}
		if below {
			w.done = true
			break
		}

		if len(w.opts.Paths) > 0 {
			touched, err := w.backend.ChangedPaths(ctx, id)
			if err != nil {
				return nil, false, w.wrap(id, err)
			}
			if !matchPaths(touched, w.opts.Paths) {
				w.advance(parents)
				continue
			}
		}

		n := newCommitNode(w.alloc(), id, parents, w.opts.Level, w.prev)
		w.prev = n.Handle
		w.advance(parents)
		return n, true, nil
	}
	return nil, false, nil
}

// advance moves to the first parent. Reaching the root or the exclusive
// end marks the walk done right away, so Done is accurate as soon as the
// last node has been yielded.
func (w *Walker) advance(parents []vcs.CommitID) {
	if len(parents) == 0 {
		w.next = ""
		w.done = true
		return
	}
	w.next = parents[0]
	if w.next == w.opts.End {
		w.done = true
	}
}

// belowBoundary reports whether id is already part of the excluded
// history. Only commits not newer than the boundary are checked.
func (w *Walker) belowBoundary(ctx context.Context, id vcs.CommitID) (bool, error) {
	if !w.opts.Guard || w.opts.End.IsZero() {
		return false, nil
	}
	if !w.endSeen {
		md, err := w.backend.Metadata(ctx, w.opts.End)
		if err != nil {
			// Without the boundary's time every commit gets checked.
			log.Debug(log.CatHistory, "boundary metadata unavailable", "end", w.opts.End.Short(), "error", err)
		} else {
			w.endTime = md.Committer.When
		}
		w.endSeen = true
	}
	if !w.endTime.IsZero() {
		md, err := w.backend.Metadata(ctx, id)
		if err != nil {
			return false, err
		}
		if md.Committer.When.After(w.endTime) {
			return false, nil
		}
	}
	below, err := w.backend.IsAncestor(ctx, id, w.opts.End)
	if err != nil {
		if errors.Is(err, vcs.ErrMissingObjectData) || errCanceled(err) {
			return false, err
		}
		log.Warn(log.CatHistory, "ancestry check failed, continuing walk", "commit", id.Short(), "error", err)
		return false, nil
	}
	return below, nil
}

func (w *Walker) wrap(id vcs.CommitID, err error) error {
	if _, ok := vcs.MissingID(err); ok {
		return err
	}
	if errCanceled(err) {
		return err
	}
	return fmt.Errorf("walk %s: %w", id.Short(), err)
}

// matchPaths reports whether any touched path equals or lies below one of
// the filter entries.
func matchPaths(touched, filter []string) bool {
	for _, p := range touched {
		for _, f := range filter {
			f = strings.TrimSuffix(f, "/")
			if f == "" || f == "." || p == f || strings.HasPrefix(p, f+"/") {
				return true
			}
		}
	}
	return false
}
