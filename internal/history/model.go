package history

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/gitfold/internal/log"
	"github.com/zjrosen/gitfold/internal/tracing"
	"github.com/zjrosen/gitfold/internal/vcs"
)

// Config tunes the model.
type Config struct {
	PageSize    int      `mapstructure:"page_size"`
	LinkHorizon int      `mapstructure:"link_horizon"`
	MaxSubtree  int      `mapstructure:"max_subtree"`
	Paths       []string `mapstructure:"-"`
}

// DefaultConfig returns the defaults used when no config file sets them.
func DefaultConfig() Config {
	return Config{
		PageSize:    200,
		LinkHorizon: 20000,
		MaxSubtree:  5000,
	}
}

// Model is the visible, ordered list of nodes for one revision range.
//
// All mutating methods must be called from a single goroutine (the UI
// loop). Background readers use Len, Exhausted and Entries, which take a
// read lock; the write lock is held only while nodes are spliced.
type Model struct {
	backend  vcs.Backend
	cfg      Config
	rng      vcs.Range
	start    vcs.CommitID
	end      vcs.CommitID
	tracer   trace.Tracer
	expander *Expander

	mu        sync.RWMutex
	nodes     []*Node
	exhausted bool

	index      map[NodeID]*Node
	lastHandle NodeID
	mainline   *Walker
	mainRows   int

	estimate  atomic.Int64
	estimated chan struct{}
	fetched    map[vcs.CommitID]bool
	cursor     int
}

// New resolves the range and prepares an empty model. No rows are
// materialized until Extend is called.
func New(ctx context.Context, backend vcs.Backend, rng vcs.Range, cfg Config) (*Model, error) {
	def := DefaultConfig()
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.LinkHorizon <= 0 {
		cfg.LinkHorizon = def.LinkHorizon
	}

	start, err := backend.Resolve(ctx, rng.Start)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", rng.Start, err)
	}
	var end vcs.CommitID
	if rng.End != "" {
		end, err = backend.Resolve(ctx, rng.End)
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", rng.End, err)
		}
	}

	m := &Model{
		backend: backend,
		cfg:     cfg,
		rng:     rng,
		start:   start,
		end:     end,
		tracer:  otel.Tracer("github.com/zjrosen/gitfold/internal/history"),
		index:   make(map[NodeID]*Node),
		fetched: make(map[vcs.CommitID]bool),
	}
	m.expander = NewExpander(backend, m.alloc, cfg.Paths, cfg.MaxSubtree)
	m.mainline = NewWalker(backend, m.alloc, start, WalkOptions{
		End:   end,
		Guard: !end.IsZero(),
		Paths: cfg.Paths,
	})

	m.estimated = make(chan struct{})
	if len(cfg.Paths) == 0 {
		go m.countMainline(ctx)
	} else {
		close(m.estimated)
	}

	log.Info(log.CatHistory, "model opened", "range", rng.String(), "start", start.Short())
	return m, nil
}

// countMainline computes the first-parent count off the caller's
// goroutine. Counting walks the whole range, which takes seconds on large
// repositories.
func (m *Model) countMainline(ctx context.Context) {
	defer close(m.estimated)
	n, err := m.backend.FirstParentCount(ctx, m.rng)
	if err != nil {
		log.Warn(log.CatHistory, "first-parent count unavailable", "range", m.rng.String(), "error", err)
		return
	}
	m.estimate.Store(int64(n))
	log.Debug(log.CatHistory, "first-parent count ready", "range", m.rng.String(), "count", n)
}

// Estimated is closed once the first-parent count is known or has failed.
// LineCount falls back to the materialized rows until then.
func (m *Model) Estimated() <-chan struct{} { return m.estimated }

// Range returns the range the model was opened with.
func (m *Model) Range() vcs.Range { return m.rng }

// Backend returns the backend the model reads from.
func (m *Model) Backend() vcs.Backend { return m.backend }

// Config returns the effective configuration.
func (m *Model) Config() Config { return m.cfg }

func (m *Model) alloc() NodeID {
	m.lastHandle++
	return m.lastHandle
}

// Len returns the number of materialized rows.
func (m *Model) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.nodes)
}

// Exhausted reports whether the mainline walk has ended.
func (m *Model) Exhausted() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.exhausted
}

// LineCount is the materialized row count plus the estimated number of
// mainline rows not yet pulled. Exact once the walk is exhausted.
func (m *Model) LineCount() int {
	if m.exhausted {
		return len(m.nodes)
	}
	rest := int(m.estimate.Load()) - m.mainRows
	if rest < 0 {
		rest = 0
	}
	return len(m.nodes) + rest
}

// TotalRowEstimate is the scrollbar total.
func (m *Model) TotalRowEstimate() int { return m.LineCount() }

// Node returns the node at pos.
func (m *Model) Node(pos int) (*Node, error) {
	if pos < 0 || pos >= len(m.nodes) {
		return nil, positionError(pos, len(m.nodes))
	}
	return m.nodes[pos], nil
}

// Entries copies the read-only view of rows [from, to). Safe to call from
// any goroutine.
func (m *Model) Entries(from, to int) []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	from = max(from, 0)
	to = min(to, len(m.nodes))
	if from >= to {
		return nil
	}
	out := make([]Entry, 0, to-from)
	for _, n := range m.nodes[from:to] {
		out = append(out, Entry{Handle: n.Handle, ID: n.ID, Kind: n.Kind, Level: n.Level, Missing: n.Missing})
	}
	return out
}

// Cursor returns the selected row.
func (m *Model) Cursor() int { return m.cursor }

// Extend materializes up to n more mainline rows and returns how many
// were added. It never adds more than n rows. When a commit's data is
// missing and cannot be fetched, a placeholder row ends the history.
func (m *Model) Extend(ctx context.Context, n int) (int, error) {
	if n <= 0 || m.exhausted {
		return 0, nil
	}
	ctx, span := m.tracer.Start(ctx, tracing.SpanPrefixHistory+"extend",
		trace.WithAttributes(attribute.Int(tracing.AttrRowCount, n)))
	defer span.End()

	batch := make([]*Node, 0, min(n, m.cfg.PageSize))
	var walkErr error
	for len(batch) < n {
		node, ok, err := m.mainline.Next(ctx)
		if err != nil {
			if m.repair(ctx, err) {
				continue
			}
			id, missing := vcs.MissingID(err)
			if !missing {
				walkErr = err
				break
			}
			log.Error(log.CatHistory, "history truncated at missing commit", "commit", id.Short(), "error", err)
			batch = append(batch, newPlaceholder(m.alloc(), id, 0, m.mainline.Predecessor()))
			m.mainline.Stop()
			break
		}
		if !ok {
			break
		}
		batch = append(batch, node)
	}

	m.mu.Lock()
	m.spliceLocked(len(m.nodes), 0, batch)
	if m.mainline.Done() {
		m.exhausted = true
	}
	m.mu.Unlock()
	m.mainRows += len(batch)

	if walkErr != nil {
		span.RecordError(walkErr)
		span.SetStatus(codes.Error, walkErr.Error())
		return len(batch), fmt.Errorf("extend: %w", walkErr)
	}
	return len(batch), nil
}

// repair fetches a missing commit once. It reports whether the failed
// operation should be retried.
func (m *Model) repair(ctx context.Context, err error) bool {
	id, ok := vcs.MissingID(err)
	if !ok || m.fetched[id] {
		return false
	}
	m.fetched[id] = true

	fetcher, ok := vcs.Find[vcs.Fetcher](m.backend)
	if !ok {
		return false
	}
	if ferr := fetcher.FetchMissing(ctx, id); ferr != nil {
		log.Warn(log.CatHistory, "fetch of missing commit failed", "commit", id.Short(), "error", ferr)
		return false
	}
	log.Info(log.CatHistory, "fetched missing commit", "commit", id.Short())
	return true
}

// spliceLocked replaces nodes[at:at+remove] with insert. Caller holds mu.
func (m *Model) spliceLocked(at, remove int, insert []*Node) {
	for _, n := range m.nodes[at : at+remove] {
		delete(m.index, n.Handle)
	}
	m.nodes = slices.Replace(m.nodes, at, at+remove, insert...)
	for _, n := range insert {
		m.index[n.Handle] = n
	}
}

func (m *Model) foldable(pos int) (*Node, error) {
	n, err := m.Node(pos)
	if err != nil {
		return nil, err
	}
	if !n.Kind.Foldable() {
		return nil, fmt.Errorf("row %d (%s, %s): %w", pos, n.ID.Short(), n.Kind, ErrNotFoldable)
	}
	return n, nil
}

// ToggleFold unfolds a folded merge or folds an unfolded one.
func (m *Model) ToggleFold(ctx context.Context, pos int) error {
	n, err := m.foldable(pos)
	if err != nil {
		return err
	}
	switch n.Fold {
	case Folded:
		return m.Unfold(ctx, pos)
	case Unfolded:
		return m.Fold(pos)
	default:
		return invalidFoldState(pos, n, "toggle")
	}
}

// Unfold splices the merge's subtree directly below it.
func (m *Model) Unfold(ctx context.Context, pos int) error {
	n, err := m.foldable(pos)
	if err != nil {
		return err
	}
	if n.Fold != Folded {
		return invalidFoldState(pos, n, "unfold")
	}

	ctx, span := m.tracer.Start(ctx, tracing.SpanPrefixHistory+"unfold", trace.WithAttributes(
		attribute.String(tracing.AttrCommitID, n.ID.String()),
		attribute.Int(tracing.AttrLevel, n.Level),
	))
	defer span.End()

	sub, err := m.expander.Expand(ctx, n)
	for err != nil && m.repair(ctx, err) {
		sub, err = m.expander.Expand(ctx, n)
	}
	if err != nil {
		id, missing := vcs.MissingID(err)
		if !missing {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("unfold %s: %w", n.ID.Short(), err)
		}
		pred := n.Handle
		if len(sub.Nodes) > 0 {
			pred = sub.Nodes[len(sub.Nodes)-1].Handle
		}
		log.Error(log.CatHistory, "subtree truncated at missing commit", "merge", n.ID.Short(), "commit", id.Short())
		sub.Nodes = append(sub.Nodes, newPlaceholder(m.alloc(), id, n.Level+1, pred))
	}

	m.mu.Lock()
	n.Fold = Unfolded
	m.spliceLocked(pos+1, 0, sub.Nodes)
	m.mu.Unlock()

	if m.cursor > pos {
		m.cursor += len(sub.Nodes)
	}
	span.SetAttributes(attribute.Int(tracing.AttrRowCount, len(sub.Nodes)))
	log.Debug(log.CatHistory, "unfolded", "merge", n.ID.Short(), "rows", len(sub.Nodes), "truncated", sub.Truncated)
	return nil
}

// Fold removes every following row deeper than the merge, folding nested
// unfolded merges first.
func (m *Model) Fold(pos int) error {
	n, err := m.foldable(pos)
	if err != nil {
		return err
	}
	if n.Fold != Unfolded {
		return invalidFoldState(pos, n, "fold")
	}

	end := m.subtreeEnd(pos)

	m.mu.Lock()
	for i := end - 1; i > pos; i-- {
		if c := m.nodes[i]; c.Kind.Foldable() && c.Fold == Unfolded {
			c.Fold = Folded
		}
	}
	n.Fold = Folded
	m.spliceLocked(pos+1, end-pos-1, nil)
	m.mu.Unlock()

	removed := end - pos - 1
	switch {
	case m.cursor > pos && m.cursor < end:
		m.cursor = pos
	case m.cursor >= end:
		m.cursor -= removed
	}
	log.Debug(log.CatHistory, "folded", "merge", n.ID.Short(), "rows", removed)
	return nil
}

// subtreeEnd returns the index of the first row after pos that is not
// deeper than the row at pos.
func (m *Model) subtreeEnd(pos int) int {
	level := m.nodes[pos].Level
	end := pos + 1
	for end < len(m.nodes) && m.nodes[end].Level > level {
		end++
	}
	return end
}

// Goto moves the cursor to pos, materializing rows as needed, and clamps
// it to the available rows. It returns the resulting cursor.
func (m *Model) Goto(ctx context.Context, pos int) (int, error) {
	pos = max(pos, 0)
	for pos >= len(m.nodes) && !m.exhausted {
		added, err := m.Extend(ctx, max(m.cfg.PageSize, pos-len(m.nodes)+1))
		if err != nil {
			return m.cursor, err
		}
		if added == 0 {
			break
		}
	}
	if len(m.nodes) == 0 {
		m.cursor = 0
		return 0, nil
	}
	m.cursor = min(pos, len(m.nodes)-1)
	return m.cursor, nil
}

// Move shifts the cursor by delta rows.
func (m *Model) Move(ctx context.Context, delta int) (int, error) {
	return m.Goto(ctx, m.cursor+delta)
}

// GotoFirst selects the first row.
func (m *Model) GotoFirst() int {
	m.cursor = 0
	return 0
}

// GotoLast materializes the whole history and selects the last row.
func (m *Model) GotoLast(ctx context.Context) (int, error) {
	for !m.exhausted {
		added, err := m.Extend(ctx, m.cfg.PageSize)
		if err != nil {
			return m.cursor, err
		}
		if added == 0 {
			break
		}
	}
	m.cursor = max(len(m.nodes)-1, 0)
	return m.cursor, nil
}

// ResolveLink finds the first non-link row showing the link's target,
// searching below the link first. The mainline is extended in pages until
// LinkHorizon rows have been scanned. The cursor moves to the target.
func (m *Model) ResolveLink(ctx context.Context, pos int) (int, error) {
	link, err := m.Node(pos)
	if err != nil {
		return 0, err
	}
	if !link.IsLink() {
		return 0, fmt.Errorf("row %d (%s): %w", pos, link.ID.Short(), ErrNotLink)
	}

	matches := func(n *Node) bool { return !n.IsLink() && !n.Missing && n.ID == link.ID }

	scanned := 0
	for i := pos + 1; ; i++ {
		if i >= len(m.nodes) {
			if m.exhausted {
				break
			}
			added, err := m.Extend(ctx, m.cfg.PageSize)
			if err != nil {
				return 0, err
			}
			if added == 0 {
				break
			}
		}
		if matches(m.nodes[i]) {
			m.cursor = i
			return i, nil
		}
		scanned++
		if scanned >= m.cfg.LinkHorizon {
			return 0, fmt.Errorf("link to %s after %d rows: %w", link.ID.Short(), scanned, ErrLinkHorizonExceeded)
		}
	}

	for i := 0; i < pos; i++ {
		if matches(m.nodes[i]) {
			m.cursor = i
			return i, nil
		}
	}
	return 0, fmt.Errorf("link to %s: %w", link.ID.Short(), ErrLinkTargetNotFound)
}

// IsRebased reports whether the merge at pos joined a branch rebased onto
// its first parent.
func (m *Model) IsRebased(ctx context.Context, pos int) (bool, error) {
	n, err := m.Node(pos)
	if err != nil {
		return false, err
	}
	return m.rebased(ctx, n), nil
}

// IsForkPoint reports whether the row at pos is where a rebased branch
// forked off: the first parent of a rebased merge, materialized directly
// after that merge.
func (m *Model) IsForkPoint(ctx context.Context, pos int) (bool, error) {
	n, err := m.Node(pos)
	if err != nil {
		return false, err
	}
	return m.forkPoint(ctx, n), nil
}

func (m *Model) rebased(ctx context.Context, n *Node) bool {
	if v, ok := n.rebased.get(); ok {
		return v
	}
	if !n.Kind.Foldable() || n.Missing {
		return n.rebased.put(false)
	}

	p1, p2 := n.Parents[0], n.Parents[1]
	anc, err := m.backend.IsAncestor(ctx, p1, p2)
	if err == nil {
		return n.rebased.put(anc)
	}
	if errCanceled(err) {
		return false
	}
	log.Warn(log.CatHistory, "ancestry unavailable, using commit time heuristic",
		"merge", n.ID.Short(), "error", err)
	return n.rebased.put(m.rebasedByTime(ctx, p1, p2))
}

// rebasedByTime guesses rebase state when ancestry cannot be queried: a
// branch tip committed after the first parent is treated as rebased. Less
// precise than the ancestry check on clock skew and disjoint histories.
func (m *Model) rebasedByTime(ctx context.Context, p1, p2 vcs.CommitID) bool {
	md1, err := m.backend.Metadata(ctx, p1)
	if err != nil {
		return false
	}
	md2, err := m.backend.Metadata(ctx, p2)
	if err != nil {
		return false
	}
	return md2.Committer.When.After(md1.Committer.When)
}

func (m *Model) forkPoint(ctx context.Context, n *Node) bool {
	if v, ok := n.forkPoint.get(); ok {
		return v
	}
	if n.IsLink() || n.Missing || n.ParentRef == 0 {
		return n.forkPoint.put(false)
	}
	pred, ok := m.index[n.ParentRef]
	if !ok || !pred.Kind.Foldable() || pred.FirstParent() != n.ID {
		return n.forkPoint.put(false)
	}
	v := m.rebased(ctx, pred)
	if ctx.Err() != nil {
		return v
	}
	return n.forkPoint.put(v)
}

// errCanceled reports whether err came from a cancelled context.
func errCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
