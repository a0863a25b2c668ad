// Package testutil builds in-memory commit graphs that implement
// vcs.Backend, so history and search tests can describe repository shapes
// by label instead of shelling out to git.
package testutil

import (
	"crypto/sha1" //nolint:gosec // G505: ids only need to look like git object ids
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/gitfold/internal/vcs"
)

// Epoch is the timestamp of the first commit added without At.
var Epoch = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

// Builder accumulates commits and refs, then builds a Repo.
// Commits must be added after their parents.
type Builder struct {
	t            *testing.T
	commits      []commitData
	known        map[string]bool
	refs         []refData
	head         string
	clock        time.Time
	mergeBaseErr error
}

type refData struct {
	label string
	ref   vcs.Ref
}

// NewBuilder creates an empty builder.
func NewBuilder(t *testing.T) *Builder {
	t.Helper()
	return &Builder{t: t, known: make(map[string]bool), clock: Epoch}
}

// WithCommit adds a commit. Without Parents it is a root commit.
func (b *Builder) WithCommit(label string, opts ...CommitOption) *Builder {
	b.t.Helper()
	require.False(b.t, b.known[label], "duplicate commit label %q", label)

	c := defaultCommit(label)
	for _, opt := range opts {
		opt(&c)
	}
	for _, p := range c.parents {
		require.True(b.t, b.known[p], "commit %q: parent %q must be added first", label, p)
	}
	if !c.timeSet {
		b.clock = b.clock.Add(time.Hour)
		c.author.When = b.clock
		c.committer.When = b.clock
	}

	b.known[label] = true
	b.commits = append(b.commits, c)
	b.head = label
	return b
}

// WithBranch points refs/heads/name at label.
func (b *Builder) WithBranch(name, label string) *Builder {
	b.refs = append(b.refs, refData{label: label, ref: vcs.Ref{Name: name, Kind: vcs.RefBranch}})
	return b
}

// WithTag points refs/tags/name at label.
func (b *Builder) WithTag(name, label string) *Builder {
	b.refs = append(b.refs, refData{label: label, ref: vcs.Ref{Name: name, Kind: vcs.RefTag}})
	return b
}

// WithHead points HEAD at label. Defaults to the last added commit.
func (b *Builder) WithHead(label string) *Builder {
	b.head = label
	return b
}

// WithMergeBaseError makes every MergeBase call fail with err.
func (b *Builder) WithMergeBaseError(err error) *Builder {
	b.mergeBaseErr = err
	return b
}

// Build freezes the accumulated graph.
func (b *Builder) Build() *Repo {
	b.t.Helper()
	require.NotEmpty(b.t, b.commits, "repository needs at least one commit")

	r := &Repo{
		commits:      make(map[vcs.CommitID]*commit, len(b.commits)),
		labels:       make(map[string]vcs.CommitID, len(b.commits)),
		names:        make(map[vcs.CommitID]string, len(b.commits)),
		refs:         make(map[vcs.CommitID][]vcs.Ref),
		refNames:     make(map[string]vcs.CommitID),
		mergeBaseErr: b.mergeBaseErr,
		calls:        make(map[string]int),
	}
	for _, c := range b.commits {
		id := LabelID(c.label)
		r.labels[c.label] = id
		r.names[id] = c.label
	}
	for _, c := range b.commits {
		id := r.labels[c.label]
		parents := make([]vcs.CommitID, len(c.parents))
		for i, p := range c.parents {
			parents[i] = r.labels[p]
		}
		r.commits[id] = &commit{
			id:        id,
			parents:   parents,
			author:    c.author,
			committer: c.committer,
			message:   c.message,
			paths:     c.paths,
			missing:   c.missing,
			fetchable: c.fetchable,
		}
	}
	for _, rd := range b.refs {
		id, ok := r.labels[rd.label]
		require.True(b.t, ok, "ref %q points at unknown commit %q", rd.ref.Name, rd.label)
		r.refs[id] = append(r.refs[id], rd.ref)
		r.refNames[rd.ref.Name] = id
	}
	r.head = r.labels[b.head]
	r.refs[r.head] = append([]vcs.Ref{{Name: "HEAD", Kind: vcs.RefHead}}, r.refs[r.head]...)
	return r
}

// LabelID derives a stable 40-char hex id from a label.
func LabelID(label string) vcs.CommitID {
	sum := sha1.Sum([]byte(label)) //nolint:gosec // G401: not used for security
	return vcs.CommitID(hex.EncodeToString(sum[:]))
}
