package tracing

// Span attribute keys.
const (
	AttrSessionID     = "gitfold.session.id"
	AttrBackend       = "vcs.backend"
	AttrRevision      = "vcs.revision"
	AttrCommitID      = "vcs.commit"
	AttrOtherCommitID = "vcs.commit.other"
	AttrParentCount   = "vcs.parent_count"
	AttrPathCount     = "vcs.path_count"
	AttrFound         = "vcs.found"
	AttrRowCount      = "history.rows"
	AttrLevel         = "history.level"
)

// Span name prefixes.
const (
	SpanPrefixVCS     = "vcs."
	SpanPrefixHistory = "history."
)
