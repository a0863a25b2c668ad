package vcs

import (
	"context"
	"sync"
)

// Serialized funnels every call through one mutex, for backends that do
// not support concurrent reads.
type Serialized struct {
	mu   sync.Mutex
	next Backend
}

var _ Backend = (*Serialized)(nil)

// NewSerialized wraps b.
func NewSerialized(b Backend) *Serialized {
	return &Serialized{next: b}
}

// Unwrap returns the decorated backend.
func (s *Serialized) Unwrap() Backend { return s.next }

func (s *Serialized) Resolve(ctx context.Context, rev string) (CommitID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next.Resolve(ctx, rev)
}

func (s *Serialized) Parents(ctx context.Context, id CommitID) ([]CommitID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next.Parents(ctx, id)
}

func (s *Serialized) MergeBase(ctx context.Context, a, b CommitID) (CommitID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next.MergeBase(ctx, a, b)
}

func (s *Serialized) IsAncestor(ctx context.Context, ancestor, descendant CommitID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next.IsAncestor(ctx, ancestor, descendant)
}

func (s *Serialized) Metadata(ctx context.Context, id CommitID) (Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next.Metadata(ctx, id)
}

func (s *Serialized) ChangedPaths(ctx context.Context, id CommitID) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next.ChangedPaths(ctx, id)
}

func (s *Serialized) Refs(ctx context.Context, id CommitID) ([]Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next.Refs(ctx, id)
}

func (s *Serialized) FirstParentCount(ctx context.Context, r Range) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next.FirstParentCount(ctx, r)
}
