package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/zjrosen/gitfold/internal/vcs"
)

// StyleHint tells the renderer how to style a column.
type StyleHint int

const (
	HintGraph StyleHint = iota
	HintForkPoint
	HintID
	HintDate
	HintAuthor
	HintModules
	HintHead
	HintBranch
	HintRemoteBranch
	HintTag
	HintIcon
	HintSubject
	HintLink
	HintMissing
)

// Column is one styled cell of a row.
type Column struct {
	Hint StyleHint
	Text string
}

// Row is the rendered form of one node.
type Row struct {
	Pos       int
	Node      Entry
	Fold      FoldState
	ForkPoint bool
	Graph     Column
	ID        Column
	Date      Column
	Author    Column
	Modules   Column
	Refs      []Column
	Icon      Column
	Subject   Column
}

// Columns returns the non-empty columns in display order.
func (r Row) Columns() []Column {
	cols := []Column{r.Graph, r.ID, r.Date, r.Author}
	if r.Modules.Text != "" {
		cols = append(cols, r.Modules)
	}
	if r.Icon.Text != "" {
		cols = append(cols, r.Icon)
	}
	cols = append(cols, r.Subject)
	cols = append(cols, r.Refs...)
	return cols
}

// String joins the columns with single spaces.
func (r Row) String() string {
	cols := r.Columns()
	parts := make([]string, 0, len(cols))
	for _, c := range cols {
		if c.Text != "" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, " ")
}

// DateFormat selects how the date column is rendered.
type DateFormat string

const (
	DateRelative DateFormat = "relative"
	DateISO      DateFormat = "iso"
	DateShort    DateFormat = "short"
)

// Next cycles relative, iso, short.
func (f DateFormat) Next() DateFormat {
	switch f {
	case DateRelative:
		return DateISO
	case DateISO:
		return DateShort
	default:
		return DateRelative
	}
}

// Format renders t.
func (f DateFormat) Format(t, now time.Time) string {
	switch f {
	case DateISO:
		return t.Format("2006-01-02 15:04")
	case DateShort:
		return t.Format("2006-01-02")
	default:
		return humanize.RelTime(t, now, "ago", "from now")
	}
}

// Decorator supplies the parts of a row that depend on enrichment.
// Implementations must be safe for concurrent use; search calls them from
// its own goroutine.
type Decorator interface {
	// Subject returns the icon and text shown for a commit.
	Subject(id vcs.CommitID, md vcs.Metadata) (icon, text string)
	// Modules returns the module names a commit touches, if known.
	Modules(id vcs.CommitID) []string
}

// Resolver is implemented by decorators that can annotate a commit on the
// calling goroutine. Search uses it so titles and modules match before a
// row has ever been rendered.
type Resolver interface {
	Annotate(ctx context.Context, id vcs.CommitID, md vcs.Metadata) (title string, modules []string, err error)
}

// PlainDecorator shows raw subjects and no modules.
type PlainDecorator struct{}

func (PlainDecorator) Subject(_ vcs.CommitID, md vcs.Metadata) (string, string) {
	return "", md.Subject
}

func (PlainDecorator) Modules(vcs.CommitID) []string { return nil }

// RowOptions controls row rendering.
type RowOptions struct {
	DateFormat  DateFormat
	Now         time.Time
	Decorator   Decorator
	ShowModules bool
}

// Row renders the node at pos.
func (m *Model) Row(ctx context.Context, pos int, opts RowOptions) (Row, error) {
	n, err := m.Node(pos)
	if err != nil {
		return Row{}, err
	}
	if opts.Decorator == nil {
		opts.Decorator = PlainDecorator{}
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	row := Row{
		Pos:  pos,
		Node: Entry{Handle: n.Handle, ID: n.ID, Kind: n.Kind, Level: n.Level, Missing: n.Missing},
		Fold: n.Fold,
		ID:   Column{Hint: HintID, Text: n.ID.Short()},
	}

	if n.Missing {
		row.Graph = Column{Hint: HintMissing, Text: indent(n.Level) + "?"}
		row.Subject = Column{Hint: HintMissing, Text: fmt.Sprintf("<commit %s unavailable>", n.ID.Short())}
		return row, nil
	}

	md, err := m.backend.Metadata(ctx, n.ID)
	if err != nil {
		row.Graph = Column{Hint: HintMissing, Text: indent(n.Level) + "?"}
		row.Subject = Column{Hint: HintMissing, Text: fmt.Sprintf("<commit %s unavailable>", n.ID.Short())}
		return row, err
	}

	row.ForkPoint = m.forkPoint(ctx, n)
	row.Graph = m.graph(pos, n, md, row.ForkPoint)
	row.Date = Column{Hint: HintDate, Text: opts.DateFormat.Format(md.Author.When, opts.Now)}
	row.Author = Column{Hint: HintAuthor, Text: md.Author.Name}

	if n.IsLink() {
		row.Subject = Column{Hint: HintLink, Text: md.Subject}
		return row, nil
	}

	icon, subject := opts.Decorator.Subject(n.ID, md)
	if icon != "" {
		row.Icon = Column{Hint: HintIcon, Text: icon}
	}
	row.Subject = Column{Hint: HintSubject, Text: subject}

	if opts.ShowModules {
		if mods := opts.Decorator.Modules(n.ID); len(mods) > 0 {
			row.Modules = Column{Hint: HintModules, Text: "[" + strings.Join(mods, ",") + "]"}
		}
	}

	refs, err := m.backend.Refs(ctx, n.ID)
	if err != nil {
		return row, err
	}
	for _, r := range refs {
		row.Refs = append(row.Refs, refColumn(r))
	}
	return row, nil
}

func refColumn(r vcs.Ref) Column {
	switch r.Kind {
	case vcs.RefHead:
		return Column{Hint: HintHead, Text: "‹" + r.Name + "›"}
	case vcs.RefTag:
		return Column{Hint: HintTag, Text: "«" + r.Name + "»"}
	case vcs.RefRemoteBranch:
		return Column{Hint: HintRemoteBranch, Text: "[" + r.Name + "]"}
	default:
		return Column{Hint: HintBranch, Text: "[" + r.Name + "]"}
	}
}

func indent(level int) string {
	return strings.Repeat("│ ", level)
}

// graph renders the graph column for the node at pos.
func (m *Model) graph(pos int, n *Node, md vcs.Metadata, forkPoint bool) Column {
	var b strings.Builder
	b.WriteString(indent(n.Level))

	last := pos == len(m.nodes)-1 && m.exhausted
	switch {
	case n.IsLink():
		b.WriteString("⭞")
	case n.Kind == KindInitial || last:
		b.WriteString("◉")
	default:
		b.WriteString("●")
	}

	if n.Kind.Foldable() {
		imported := IsImportSubject(md.Subject)
		switch {
		case n.Fold == Unfolded:
			b.WriteString("─┬")
		case imported && forkPoint:
			b.WriteString("⇤┤")
		case imported:
			b.WriteString("⇤╮")
		case forkPoint:
			b.WriteString("─┤")
		default:
			b.WriteString("─┐")
		}
	} else if forkPoint {
		b.WriteString("─┘")
	}

	hint := HintGraph
	if forkPoint {
		hint = HintForkPoint
	}
	return Column{Hint: hint, Text: b.String()}
}

// IsImportSubject reports whether a merge subject describes a subtree
// import or update.
func IsImportSubject(subject string) bool {
	return strings.HasPrefix(subject, "Update :") || strings.Contains(subject, " Import ")
}
