// Package detail renders the commit detail pane: identity, parents,
// signatures, labels, modules, merge state and the full message.
package detail

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/reflow/wrap"

	"github.com/zjrosen/gitfold/internal/history"
	"github.com/zjrosen/gitfold/internal/log"
	"github.com/zjrosen/gitfold/internal/ui/markdown"
	"github.com/zjrosen/gitfold/internal/ui/styles"
	"github.com/zjrosen/gitfold/internal/vcs"
)

var (
	labelStyle = lipgloss.NewStyle().Foreground(styles.TextMutedColor).Width(11)
	valueStyle = lipgloss.NewStyle().Foreground(styles.TextPrimaryColor)
	paneStyle  = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(styles.BorderDefaultColor).
			PaddingLeft(1)
)

// Info is everything the pane shows about one row.
type Info struct {
	Pos       int
	ID        vcs.CommitID
	Kind      history.Kind
	Fold      history.FoldState
	Parents   []vcs.CommitID
	Metadata  vcs.Metadata
	Refs      []vcs.Ref
	Modules   []string
	Title     string
	Rebased   bool
	ForkPoint bool
	Missing   bool
}

// Load gathers Info for the row at pos.
func Load(ctx context.Context, m *history.Model, pos int, dec history.Decorator) (Info, error) {
	n, err := m.Node(pos)
	if err != nil {
		return Info{}, err
	}
	info := Info{Pos: pos, ID: n.ID, Kind: n.Kind, Fold: n.Fold, Parents: n.Parents, Missing: n.Missing}
	if n.Missing {
		return info, nil
	}
	if dec == nil {
		dec = history.PlainDecorator{}
	}

	backend := m.Backend()
	if n.IsLink() {
		if info.Parents, err = backend.Parents(ctx, n.ID); err != nil {
			return info, err
		}
	}
	if info.Metadata, err = backend.Metadata(ctx, n.ID); err != nil {
		return info, err
	}
	if info.Refs, err = backend.Refs(ctx, n.ID); err != nil {
		return info, err
	}
	_, info.Title = dec.Subject(n.ID, info.Metadata)
	info.Modules = dec.Modules(n.ID)

	if n.Kind.Foldable() {
		if info.Rebased, err = m.IsRebased(ctx, pos); err != nil {
			return info, err
		}
	}
	if info.ForkPoint, err = m.IsForkPoint(ctx, pos); err != nil {
		return info, err
	}
	return info, nil
}

// Header renders the field block above the message.
func Header(info Info, now time.Time) string {
	var b strings.Builder
	field := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(labelStyle.Render(label))
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}

	field("commit", string(info.ID))
	if info.Missing {
		field("status", "not available in this clone")
		return strings.TrimRight(b.String(), "\n")
	}

	parents := make([]string, len(info.Parents))
	for i, p := range info.Parents {
		parents[i] = p.Short()
	}
	field("parents", strings.Join(parents, " "))
	field("author", signature(info.Metadata.Author, now))
	if info.Metadata.Committer != info.Metadata.Author {
		field("committer", signature(info.Metadata.Committer, now))
	}

	refs := make([]string, len(info.Refs))
	for i, r := range info.Refs {
		refs[i] = r.Name
	}
	field("refs", strings.Join(refs, ", "))
	field("modules", strings.Join(info.Modules, ", "))
	field("merge", mergeState(info))
	return strings.TrimRight(b.String(), "\n")
}

func signature(s vcs.Signature, now time.Time) string {
	if s.Name == "" && s.Email == "" {
		return ""
	}
	return fmt.Sprintf("%s <%s>  %s (%s)", s.Name, s.Email,
		s.When.Format("2006-01-02 15:04 -0700"), humanize.RelTime(s.When, now, "ago", "from now"))
}

func mergeState(info Info) string {
	var parts []string
	switch info.Kind {
	case history.KindMerge, history.KindOctopus:
		parts = append(parts, fmt.Sprintf("%s, %s", info.Kind, info.Fold))
		if info.Rebased {
			parts = append(parts, "branch rebased onto first parent")
		}
	case history.KindLink:
		parts = append(parts, "link to a commit shown further down")
	}
	if info.ForkPoint {
		parts = append(parts, "fork point of a rebased branch")
	}
	return strings.Join(parts, "; ")
}

// Model is the scrollable detail pane.
type Model struct {
	viewport viewport.Model
	renderer *markdown.Renderer
	theme    string
	info     Info
	loaded   bool
	width    int
	height   int
	now      func() time.Time
}

// New creates an empty pane using the glamour style theme.
func New(theme string) Model {
	return Model{
		viewport: viewport.New(0, 0),
		theme:    theme,
		now:      time.Now,
	}
}

// SetSize resizes the pane, re-creating the renderer when the wrap width
// changes.
func (m Model) SetSize(width, height int) Model {
	if width == m.width && height == m.height {
		return m
	}
	m.width, m.height = width, height
	m.viewport.Width = max(0, width-paneStyle.GetHorizontalFrameSize())
	m.viewport.Height = max(0, height)
	m.renderer = nil
	return m.refresh()
}

// SetInfo replaces the shown commit and scrolls to the top.
func (m Model) SetInfo(info Info) Model {
	m.info = info
	m.loaded = true
	m = m.refresh()
	m.viewport.GotoTop()
	return m
}

// Info returns the shown commit.
func (m Model) Info() (Info, bool) { return m.info, m.loaded }

// Update scrolls the pane on mouse wheel and viewport keys.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the pane.
func (m Model) View() string {
	if m.width <= 0 || m.height <= 0 {
		return ""
	}
	return paneStyle.Height(m.height).MaxHeight(m.height).Render(m.viewport.View())
}

// wrapHeader breaks header lines on spaces only, so hyphenated ref names
// stay whole, then hard-wraps tokens longer than the pane.
func wrapHeader(s string, width int) string {
	w := wordwrap.NewWriter(width)
	w.Breakpoints = nil
	_, _ = w.Write([]byte(s))
	_ = w.Close()
	return wrap.String(w.String(), width)
}

func (m Model) refresh() Model {
	if !m.loaded || m.viewport.Width <= 0 {
		return m
	}
	if m.renderer == nil {
		r, err := markdown.New(m.theme, m.viewport.Width)
		if err != nil {
			log.ErrorErr(log.CatUI, "markdown renderer failed", err, "theme", m.theme)
		} else {
			m.renderer = r
		}
	}

	content := wrapHeader(Header(m.info, m.now()), m.viewport.Width)
	if !m.info.Missing {
		msg := markdown.CommitMessage(m.info.Title, m.info.Metadata.Body())
		body := msg
		if m.renderer != nil {
			if out, err := m.renderer.Render(msg); err == nil {
				body = out
			} else {
				log.ErrorErr(log.CatUI, "markdown render failed", err, "id", m.info.ID.Short())
			}
		}
		content += "\n\n" + body
	}
	m.viewport.SetContent(content)
	return m
}
