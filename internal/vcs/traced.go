package vcs

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/gitfold/internal/tracing"
)

// Traced records one span per backend call.
type Traced struct {
	next   Backend
	tracer trace.Tracer
	name   string
}

var _ Backend = (*Traced)(nil)

// NewTraced wraps b. name identifies the backend kind in span attributes.
func NewTraced(b Backend, tracer trace.Tracer, name string) *Traced {
	return &Traced{next: b, tracer: tracer, name: name}
}

// Unwrap returns the decorated backend.
func (t *Traced) Unwrap() Backend { return t.next }

func (t *Traced) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String(tracing.AttrBackend, t.name))
	return t.tracer.Start(ctx, tracing.SpanPrefixVCS+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (t *Traced) Resolve(ctx context.Context, rev string) (CommitID, error) {
	ctx, span := t.start(ctx, "resolve", attribute.String(tracing.AttrRevision, rev))
	id, err := t.next.Resolve(ctx, rev)
	finish(span, err)
	return id, err
}

func (t *Traced) Parents(ctx context.Context, id CommitID) ([]CommitID, error) {
	ctx, span := t.start(ctx, "parents", attribute.String(tracing.AttrCommitID, string(id)))
	parents, err := t.next.Parents(ctx, id)
	span.SetAttributes(attribute.Int(tracing.AttrParentCount, len(parents)))
	finish(span, err)
	return parents, err
}

func (t *Traced) MergeBase(ctx context.Context, a, b CommitID) (CommitID, bool, error) {
	ctx, span := t.start(ctx, "merge_base",
		attribute.String(tracing.AttrCommitID, string(a)),
		attribute.String(tracing.AttrOtherCommitID, string(b)))
	base, ok, err := t.next.MergeBase(ctx, a, b)
	span.SetAttributes(attribute.Bool(tracing.AttrFound, ok))
	finish(span, err)
	return base, ok, err
}

func (t *Traced) IsAncestor(ctx context.Context, ancestor, descendant CommitID) (bool, error) {
	ctx, span := t.start(ctx, "is_ancestor",
		attribute.String(tracing.AttrCommitID, string(ancestor)),
		attribute.String(tracing.AttrOtherCommitID, string(descendant)))
	ok, err := t.next.IsAncestor(ctx, ancestor, descendant)
	span.SetAttributes(attribute.Bool(tracing.AttrFound, ok))
	finish(span, err)
	return ok, err
}

func (t *Traced) Metadata(ctx context.Context, id CommitID) (Metadata, error) {
	ctx, span := t.start(ctx, "metadata", attribute.String(tracing.AttrCommitID, string(id)))
	md, err := t.next.Metadata(ctx, id)
	finish(span, err)
	return md, err
}

func (t *Traced) ChangedPaths(ctx context.Context, id CommitID) ([]string, error) {
	ctx, span := t.start(ctx, "changed_paths", attribute.String(tracing.AttrCommitID, string(id)))
	paths, err := t.next.ChangedPaths(ctx, id)
	span.SetAttributes(attribute.Int(tracing.AttrPathCount, len(paths)))
	finish(span, err)
	return paths, err
}

func (t *Traced) Refs(ctx context.Context, id CommitID) ([]Ref, error) {
	ctx, span := t.start(ctx, "refs", attribute.String(tracing.AttrCommitID, string(id)))
	refs, err := t.next.Refs(ctx, id)
	finish(span, err)
	return refs, err
}

func (t *Traced) FirstParentCount(ctx context.Context, r Range) (int, error) {
	ctx, span := t.start(ctx, "first_parent_count", attribute.String(tracing.AttrRevision, r.String()))
	n, err := t.next.FirstParentCount(ctx, r)
	span.SetAttributes(attribute.Int(tracing.AttrRowCount, n))
	finish(span, err)
	return n, err
}
