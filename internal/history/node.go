// Package history linearizes a repository along first-parent ancestry and
// keeps the mutable list of visible commits, with merges that fold and
// unfold their merged-in branches in place.
package history

import (
	"github.com/zjrosen/gitfold/internal/vcs"
)

// Kind classifies a node by parent count, plus the synthetic link kind.
type Kind int

const (
	KindInitial Kind = iota // no parents
	KindSimple              // one parent
	KindMerge               // two parents
	KindOctopus             // more than two parents
	KindLink                // marker for history already shown elsewhere
)

// KindOf classifies a commit by its number of parents.
func KindOf(parents int) Kind {
	switch {
	case parents == 0:
		return KindInitial
	case parents == 1:
		return KindSimple
	case parents == 2:
		return KindMerge
	default:
		return KindOctopus
	}
}

func (k Kind) String() string {
	switch k {
	case KindInitial:
		return "initial"
	case KindSimple:
		return "simple"
	case KindMerge:
		return "merge"
	case KindOctopus:
		return "octopus"
	case KindLink:
		return "link"
	default:
		return "unknown"
	}
}

// Foldable reports whether nodes of this kind carry a fold state.
func (k Kind) Foldable() bool {
	return k == KindMerge || k == KindOctopus
}

// FoldState is the expansion state of a merge node.
type FoldState int

const (
	FoldNone FoldState = iota
	Folded
	Unfolded
)

func (s FoldState) String() string {
	switch s {
	case Folded:
		return "folded"
	case Unfolded:
		return "unfolded"
	default:
		return "none"
	}
}

// NodeID is a stable handle for a node while it is in the model. Zero means
// no node. Handles are never reused within one model.
type NodeID uint64

// lazy is a single-assignment memo slot.
type lazy[T any] struct {
	val T
	set bool
}

func (l *lazy[T]) get() (T, bool) { return l.val, l.set }

// put stores v unless a value is already present, and returns the stored value.
func (l *lazy[T]) put(v T) T {
	if !l.set {
		l.val = v
		l.set = true
	}
	return l.val
}

// Node is one commit at one position of the visible history.
type Node struct {
	Handle NodeID
	ID     vcs.CommitID
	Kind   Kind
	// Level is 0 on the mainline and grows by one per enclosing unfold.
	Level int
	// ParentRef is the node that preceded this one when it was
	// materialized: the previous node of the same walk, or the merge whose
	// unfold produced it.
	ParentRef NodeID
	Parents   []vcs.CommitID
	Fold      FoldState
	// Missing marks a placeholder for a commit whose data is unavailable.
	Missing bool
	// BoundaryShift marks where the merge-base boundary of the enclosing
	// unfold was recomputed.
	BoundaryShift bool

	rebased   lazy[bool]
	forkPoint lazy[bool]
}

// FirstParent returns the first parent or the zero id.
func (n *Node) FirstParent() vcs.CommitID {
	if len(n.Parents) == 0 {
		return ""
	}
	return n.Parents[0]
}

// IsLink reports whether n is a link marker.
func (n *Node) IsLink() bool { return n.Kind == KindLink }

func newCommitNode(handle NodeID, id vcs.CommitID, parents []vcs.CommitID, level int, parentRef NodeID) *Node {
	n := &Node{
		Handle:    handle,
		ID:        id,
		Kind:      KindOf(len(parents)),
		Level:     level,
		ParentRef: parentRef,
		Parents:   parents,
	}
	if n.Kind.Foldable() {
		n.Fold = Folded
	}
	return n
}

func newLinkNode(handle NodeID, target vcs.CommitID, level int, parentRef NodeID) *Node {
	return &Node{
		Handle:    handle,
		ID:        target,
		Kind:      KindLink,
		Level:     level,
		ParentRef: parentRef,
	}
}

func newPlaceholder(handle NodeID, id vcs.CommitID, level int, parentRef NodeID) *Node {
	return &Node{
		Handle:    handle,
		ID:        id,
		Kind:      KindInitial,
		Level:     level,
		ParentRef: parentRef,
		Missing:   true,
	}
}

// Entry is the read-only view of a node handed to background readers.
type Entry struct {
	Handle  NodeID
	ID      vcs.CommitID
	Kind    Kind
	Level   int
	Missing bool
}
