// Package vcs defines the version-control backend consumed by the history
// engine, plus decorators that add caching, tracing and serialized access
// around any implementation.
package vcs

import (
	"context"
	"sort"
	"strings"
	"time"
)

// CommitID is a commit object id in hex form.
type CommitID string

// ShortLen is the abbreviated id length used in the viewer.
const ShortLen = 7

// Short returns the abbreviated id.
func (id CommitID) Short() string {
	if len(id) <= ShortLen {
		return string(id)
	}
	return string(id[:ShortLen])
}

// IsZero reports whether id is unset.
func (id CommitID) IsZero() bool { return id == "" }

func (id CommitID) String() string { return string(id) }

// Signature identifies an author or committer at a point in time.
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

// Metadata is the descriptive part of a commit.
type Metadata struct {
	Author    Signature
	Committer Signature
	Subject   string
	Message   string
}

// Body returns the message without the subject line and the blank line
// that follows it.
func (m Metadata) Body() string {
	msg := strings.TrimLeft(m.Message, "\n")
	_, rest, found := strings.Cut(msg, "\n")
	if !found {
		return ""
	}
	return strings.TrimLeft(rest, "\n")
}

// SubjectOf returns the first line of a commit message.
func SubjectOf(message string) string {
	msg := strings.TrimLeft(message, "\n")
	subject, _, _ := strings.Cut(msg, "\n")
	return strings.TrimRight(subject, "\r ")
}

// RefKind classifies a reference name.
type RefKind int

const (
	RefBranch RefKind = iota
	RefRemoteBranch
	RefTag
	RefHead
)

// Ref is a symbolic name pointing at a commit.
type Ref struct {
	Name string
	Kind RefKind
}

// SortRefs orders refs HEAD first, then local branches, tags and remote
// branches, each group by name.
func SortRefs(refs []Ref) {
	rank := func(k RefKind) int {
		switch k {
		case RefHead:
			return 0
		case RefBranch:
			return 1
		case RefTag:
			return 2
		default:
			return 3
		}
	}
	sort.SliceStable(refs, func(i, j int) bool {
		if ri, rj := rank(refs[i].Kind), rank(refs[j].Kind); ri != rj {
			return ri < rj
		}
		return refs[i].Name < refs[j].Name
	})
}

// RefFromFullName classifies a full reference name such as refs/heads/main.
func RefFromFullName(full string) (Ref, bool) {
	switch {
	case full == "HEAD":
		return Ref{Name: "HEAD", Kind: RefHead}, true
	case strings.HasPrefix(full, "refs/heads/"):
		return Ref{Name: strings.TrimPrefix(full, "refs/heads/"), Kind: RefBranch}, true
	case strings.HasPrefix(full, "refs/remotes/"):
		name := strings.TrimPrefix(full, "refs/remotes/")
		if strings.HasSuffix(name, "/HEAD") {
			return Ref{}, false
		}
		return Ref{Name: name, Kind: RefRemoteBranch}, true
	case strings.HasPrefix(full, "refs/tags/"):
		return Ref{Name: strings.TrimPrefix(full, "refs/tags/"), Kind: RefTag}, true
	default:
		return Ref{}, false
	}
}

// Range selects the first-parent history to show: everything reachable
// from Start down to, but excluding, End.
type Range struct {
	Start string
	End   string
}

// ParseRange parses "<rev>" or "<end>..<start>". Empty input means HEAD.
func ParseRange(spec string) Range {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return Range{Start: "HEAD"}
	}
	end, start, found := strings.Cut(spec, "..")
	if !found {
		return Range{Start: spec}
	}
	start = strings.TrimPrefix(start, ".")
	if start == "" {
		start = "HEAD"
	}
	return Range{Start: start, End: end}
}

func (r Range) String() string {
	if r.End == "" {
		return r.Start
	}
	return r.End + ".." + r.Start
}

// Backend is the repository access the history engine needs.
// Implementations return ErrNotFound for unknown revisions and a
// *MissingObjectError when an object is referenced but not stored locally.
type Backend interface {
	Resolve(ctx context.Context, rev string) (CommitID, error)
	// Parents returns parent ids in order; empty for root commits.
	Parents(ctx context.Context, id CommitID) ([]CommitID, error)
	// MergeBase returns the best common ancestor; ok is false for
	// disjoint histories.
	MergeBase(ctx context.Context, a, b CommitID) (base CommitID, ok bool, err error)
	IsAncestor(ctx context.Context, ancestor, descendant CommitID) (bool, error)
	Metadata(ctx context.Context, id CommitID) (Metadata, error)
	// ChangedPaths lists paths changed against the first parent.
	ChangedPaths(ctx context.Context, id CommitID) ([]string, error)
	Refs(ctx context.Context, id CommitID) ([]Ref, error)
	FirstParentCount(ctx context.Context, r Range) (int, error)
}

// Fetcher is implemented by backends that can download objects missing
// from a shallow or partial clone.
type Fetcher interface {
	FetchMissing(ctx context.Context, id CommitID) error
}

// RefInvalidator is implemented by decorators that cache refs.
type RefInvalidator interface {
	InvalidateRefs()
}
