package history

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidFoldState indicates a fold on a folded node, an unfold on
	// an unfolded node, or a merge without a fold state.
	ErrInvalidFoldState = errors.New("invalid fold state")

	// ErrNotFoldable indicates a fold operation on a non-merge node.
	ErrNotFoldable = errors.New("node is not foldable")

	// ErrNotLink indicates link resolution on a node that is not a link.
	ErrNotLink = errors.New("node is not a link")

	// ErrLinkTargetNotFound indicates the history ended without the link
	// target appearing.
	ErrLinkTargetNotFound = errors.New("link target not found")

	// ErrLinkHorizonExceeded indicates link resolution gave up after
	// materializing the configured number of rows.
	ErrLinkHorizonExceeded = errors.New("link resolution horizon exceeded")

	// ErrPosition indicates a position outside the materialized rows.
	ErrPosition = errors.New("position out of range")
)

// StrictAssertions turns fold state violations into panics. Enabled by
// --debug and in tests that want contract violations to fail loudly.
var StrictAssertions = false

func invalidFoldState(pos int, n *Node, op string) error {
	err := fmt.Errorf("%s at row %d (%s, %s): %w", op, pos, n.ID.Short(), n.Fold, ErrInvalidFoldState)
	if StrictAssertions {
		panic(err)
	}
	return err
}

func positionError(pos, n int) error {
	return fmt.Errorf("row %d of %d: %w", pos, n, ErrPosition)
}
