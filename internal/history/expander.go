package history

import (
	"context"
	"fmt"

	"github.com/zjrosen/gitfold/internal/log"
	"github.com/zjrosen/gitfold/internal/vcs"
)

// Subtree is the result of expanding one merge.
type Subtree struct {
	Nodes []*Node
	// Truncated is set when the size cap stopped a branch walk.
	Truncated bool
	// Unbounded is set when a merge base could not be computed and a
	// branch was walked without a boundary.
	Unbounded bool
}

// Expander computes the commits a merge brought in.
type Expander struct {
	backend  vcs.Backend
	alloc    func() NodeID
	paths    []string
	maxNodes int
}

// NewExpander creates an expander. maxNodes caps each branch walk; zero
// means no cap.
func NewExpander(backend vcs.Backend, alloc func() NodeID, paths []string, maxNodes int) *Expander {
	return &Expander{backend: backend, alloc: alloc, paths: paths, maxNodes: maxNodes}
}

// Expand walks every non-first parent of m down to its merge base with
// m's first parent. Octopus merges produce one branch per extra parent,
// concatenated in parent order. Nodes are one level deeper than m.
//
// A *vcs.MissingObjectError is returned together with the nodes gathered
// before the missing commit.
func (e *Expander) Expand(ctx context.Context, m *Node) (Subtree, error) {
	var out Subtree
	if !m.Kind.Foldable() {
		return out, fmt.Errorf("expand %s: %w", m.ID.Short(), ErrNotFoldable)
	}

	mainline := m.Parents[0]
	for _, tip := range m.Parents[1:] {
		branch, err := e.expandBranch(ctx, m, mainline, tip)
		out.Nodes = append(out.Nodes, branch.Nodes...)
		out.Truncated = out.Truncated || branch.Truncated
		out.Unbounded = out.Unbounded || branch.Unbounded
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

func (e *Expander) expandBranch(ctx context.Context, m *Node, mainline, tip vcs.CommitID) (Subtree, error) {
	var out Subtree

	boundary, ok, err := e.backend.MergeBase(ctx, mainline, tip)
	switch {
	case err != nil && errCanceled(err):
		return out, err
	case err != nil:
		log.Warn(log.CatHistory, "merge base failed, expanding without boundary",
			"merge", m.ID.Short(), "tip", tip.Short(), "error", err)
		boundary = ""
		out.Unbounded = true
	case !ok:
		// Disjoint histories: the branch runs to its root.
		boundary = ""
	}

	walker := NewWalker(e.backend, e.alloc, tip, WalkOptions{
		End:         boundary,
		Guard:       true,
		Paths:       e.paths,
		Level:       m.Level + 1,
		Predecessor: m.Handle,
	})

	for {
		node, ok, err := walker.Next(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			break
		}

		if node.Kind.Foldable() && !walker.End().IsZero() {
			if shifted := e.shiftBoundary(ctx, mainline, node, walker.End()); !shifted.IsZero() {
				walker.SetEnd(shifted)
				node.BoundaryShift = true
			}
		}
		out.Nodes = append(out.Nodes, node)

		end := walker.End()
		if !end.IsZero() && node.FirstParent() == end && mainline != end {
			out.Nodes = append(out.Nodes, newLinkNode(e.alloc(), end, node.Level, node.Handle))
			break
		}

		if e.maxNodes > 0 && len(out.Nodes) >= e.maxNodes {
			log.Info(log.CatHistory, "subtree truncated", "merge", m.ID.Short(), "limit", e.maxNodes)
			out.Truncated = true
			break
		}
	}
	return out, nil
}

// shiftBoundary recomputes the boundary at a nested merge. It returns the
// new boundary, or zero when it is unchanged or cannot be computed.
func (e *Expander) shiftBoundary(ctx context.Context, mainline vcs.CommitID, n *Node, current vcs.CommitID) vcs.CommitID {
	base, ok, err := e.backend.MergeBase(ctx, mainline, n.FirstParent())
	if err != nil {
		log.Debug(log.CatHistory, "boundary recompute failed", "commit", n.ID.Short(), "error", err)
		return ""
	}
	if !ok || base == current {
		return ""
	}
	return base
}
