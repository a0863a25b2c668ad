package search

import (
	"context"

	"github.com/zjrosen/gitfold/internal/history"
	"github.com/zjrosen/gitfold/internal/log"
	"github.com/zjrosen/gitfold/internal/pubsub"
	"github.com/zjrosen/gitfold/internal/vcs"
)

// Task is one search. Run may be called repeatedly: after StatusNeedMore
// it resumes where it stopped. A task must not run on two goroutines at
// once.
type Task struct {
	engine  *Engine
	ctx     context.Context
	gen     uint64
	src     Source
	req     Request
	matcher *matcher

	next    int
	limit   int
	wrapped bool
	scanned int
	done    *Result
}

// Generation identifies the task within its engine.
func (t *Task) Generation() uint64 { return t.gen }

// Request returns the request the task was started with.
func (t *Task) Request() Request { return t.req }

func (t *Task) begin() {
	if t.req.Direction == Backward {
		t.next = t.req.From - 1
		if t.req.IncludeCurrent {
			t.next = t.req.From
		}
		return
	}
	t.next = t.req.From + 1
	if t.req.IncludeCurrent {
		t.next = t.req.From
	}
	t.next = max(t.next, 0)
}

func (t *Task) result(status Status, pos int) Result {
	return Result{
		Generation: t.gen,
		Request:    t.req,
		Status:     status,
		Pos:        pos,
		Resume:     t.next,
		Scanned:    t.scanned,
		Wrapped:    t.wrapped,
	}
}

func (t *Task) finish(status Status, pos int) Result {
	res := t.result(status, pos)
	if status != StatusNeedMore {
		t.done = &res
		log.Debug(log.CatSearch, "search finished", "gen", t.gen, "status", status, "pos", pos, "scanned", t.scanned)
	}
	return res
}

// Run scans until a match, the end of the search, cancellation, or (for
// forward searches) the end of the materialized rows.
func (t *Task) Run() Result {
	if t.done != nil {
		return *t.done
	}
	if t.req.Needle == "" {
		return t.finish(StatusNotFound, -1)
	}
	if t.req.Direction == Backward {
		return t.runBackward()
	}
	return t.runForward()
}

func (t *Task) runForward() Result {
	for {
		n := t.src.Len()
		end := n
		if t.wrapped {
			end = min(t.limit, n)
		}

		for t.next < end {
			if t.ctx.Err() != nil {
				return t.finish(StatusCancelled, -1)
			}
			to := min(t.next+chunk, end)
			entries := t.src.Entries(t.next, to)
			if len(entries) == 0 {
				break
			}
			for i, e := range entries {
				pos := t.next + i
				if t.ctx.Err() != nil {
					t.next = pos
					return t.finish(StatusCancelled, -1)
				}
				t.tick(pos)
				if t.matches(e) {
					t.next = pos + 1
					return t.finish(StatusFound, pos)
				}
			}
			t.next += len(entries)
		}

		if t.wrapped {
			return t.finish(StatusNotFound, -1)
		}
		if !t.src.Exhausted() {
			return t.finish(StatusNeedMore, -1)
		}
		// Wrap to the top and scan down to where the search started.
		t.wrapped = true
		t.limit = t.req.From + 1
		if t.req.IncludeCurrent {
			t.limit = t.req.From
		}
		t.next = 0
	}
}

func (t *Task) runBackward() Result {
	for {
		stop := 0
		if t.wrapped {
			stop = t.limit
		}

		for t.next >= stop {
			if t.ctx.Err() != nil {
				return t.finish(StatusCancelled, -1)
			}
			from := max(t.next-chunk+1, stop)
			entries := t.src.Entries(from, t.next+1)
			if len(entries) == 0 {
				break
			}
			for i := len(entries) - 1; i >= 0; i-- {
				pos := from + i
				if t.ctx.Err() != nil {
					t.next = pos
					return t.finish(StatusCancelled, -1)
				}
				t.tick(pos)
				if t.matches(entries[i]) {
					t.next = pos - 1
					return t.finish(StatusFound, pos)
				}
			}
			t.next = from - 1
		}

		if t.wrapped {
			return t.finish(StatusNotFound, -1)
		}
		// Wrap to the last materialized row and scan up to where the
		// search started. Backward searches never extend the model.
		t.wrapped = true
		t.limit = t.req.From - 1
		if t.req.IncludeCurrent {
			t.limit = t.req.From
		}
		t.limit = max(t.limit+1, 0)
		t.next = t.src.Len() - 1
	}
}

func (t *Task) tick(pos int) {
	t.scanned++
	every := t.engine.cfg.ProgressEvery
	if every > 0 && t.scanned%every == 0 {
		t.engine.broker.Publish(pubsub.ProgressEvent, Progress{Generation: t.gen, Scanned: t.scanned, Pos: pos})
	}
}

func (t *Task) matches(e history.Entry) bool {
	if e.Kind == history.KindLink {
		return false
	}
	if t.matcher.match(string(e.ID), e.ID.Short()) {
		return true
	}
	if e.Missing {
		return false
	}

	ctx := t.ctx
	b := t.engine.backend
	md, err := b.Metadata(ctx, e.ID)
	if err != nil {
		log.Debug(log.CatSearch, "metadata unavailable", "commit", e.ID.Short(), "error", err)
		return false
	}
	title, mods := t.annotate(e.ID, md)
	if t.matcher.match(
		md.Author.Name, md.Author.Email,
		md.Committer.Name, md.Committer.Email,
		md.Subject, title,
	) {
		return true
	}
	if t.matcher.match(mods...) {
		return true
	}

	refs, err := b.Refs(ctx, e.ID)
	if err != nil {
		return false
	}
	return t.matcher.match(refNames(refs)...)
}

// annotate returns the decorated title and modules of a commit. Resolving
// decorators are asked directly, since rows far below the screen are never
// rendered and so never queued for enrichment.
func (t *Task) annotate(id vcs.CommitID, md vcs.Metadata) (string, []string) {
	dec := t.engine.decorator
	if r, ok := dec.(history.Resolver); ok {
		title, mods, err := r.Annotate(t.ctx, id, md)
		if err != nil {
			log.Debug(log.CatSearch, "annotation unavailable", "commit", id.Short(), "error", err)
		}
		return title, mods
	}
	_, title := dec.Subject(id, md)
	return title, dec.Modules(id)
}

func refNames(refs []vcs.Ref) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		if r.Kind == vcs.RefHead {
			continue
		}
		out = append(out, r.Name)
	}
	return out
}
