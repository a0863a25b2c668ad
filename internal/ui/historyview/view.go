package historyview

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	zone "github.com/lrstanley/bubblezone"
	"github.com/mattn/go-runewidth"

	"github.com/zjrosen/gitfold/internal/history"
	"github.com/zjrosen/gitfold/internal/log"
	"github.com/zjrosen/gitfold/internal/ui/scrollbar"
	"github.com/zjrosen/gitfold/internal/ui/styles"
)

func (m Model) foldZoneID(pos int) string { return fmt.Sprintf("%sfold:%d", m.zones, pos) }
func (m Model) rowZoneID(pos int) string  { return fmt.Sprintf("%srow:%d", m.zones, pos) }

// View renders the visible rows, the scrollbar and the status line.
func (m Model) View() string {
	if m.width <= 0 || m.height <= 0 {
		return ""
	}
	h := m.listHeight()
	listWidth := max(0, m.width-1)

	opts := history.RowOptions{
		DateFormat:  m.cfg.DateFormat,
		Now:         m.now(),
		Decorator:   m.dec,
		ShowModules: m.cfg.ShowModules,
	}

	lines := make([]string, 0, h)
	cursor := m.hist.Cursor()
	for pos := m.offset; pos < m.offset+h && pos < m.hist.Len(); pos++ {
		row, err := m.hist.Row(m.ctx, pos, opts)
		if err != nil {
			log.Debug(log.CatUI, "row rendered with placeholder", "pos", pos, "error", err)
		}
		lines = append(lines, m.renderRow(row, listWidth, pos == cursor))
	}
	for len(lines) < h {
		lines = append(lines, strings.Repeat(" ", listWidth))
	}

	bar := scrollbar.Render(scrollbar.Config{
		Total:  max(m.hist.TotalRowEstimate(), m.hist.Len()),
		Height: h,
		Offset: m.offset,
	})
	list := lipgloss.JoinHorizontal(lipgloss.Top, strings.Join(lines, "\n"), bar)
	return list + "\n" + m.statusLine()
}

// cells lays a row out as styled cells: graph, id, date, padded author,
// then modules, icon, subject and refs.
func (m Model) cells(row history.Row) []history.Column {
	author, date := row.Author, row.Date
	if !row.Node.Missing {
		author.Text = styles.PadRight(author.Text, m.cfg.AuthorWidth)
		date.Text = styles.PadRight(date.Text, dateWidth(m.cfg.DateFormat))
	}
	cols := []history.Column{row.ID, date, author}
	if row.Modules.Text != "" {
		cols = append(cols, row.Modules)
	}
	if row.Icon.Text != "" {
		cols = append(cols, row.Icon)
	}
	cols = append(cols, row.Subject)
	return append(cols, row.Refs...)
}

func dateWidth(f history.DateFormat) int {
	switch f {
	case history.DateISO:
		return 16
	case history.DateShort:
		return 10
	default:
		return 14
	}
}

// renderRow fits a row into width cells. The graph column is its own
// click zone so a click on a merge glyph toggles it.
func (m Model) renderRow(row history.Row, width int, selected bool) string {
	graph := row.Graph.Text + " "
	graphWidth := runewidth.StringWidth(graph)
	if graphWidth > width {
		graph = styles.TruncateString(graph, width)
		graphWidth = runewidth.StringWidth(graph)
	}

	remaining := width - graphWidth
	var rest []history.Column
	for _, c := range m.cells(row) {
		if remaining <= 0 || c.Text == "" {
			continue
		}
		text := styles.TruncateString(c.Text, remaining)
		rest = append(rest, history.Column{Hint: c.Hint, Text: text})
		remaining -= runewidth.StringWidth(text) + 1
	}

	var restText string
	if selected {
		parts := make([]string, len(rest))
		for i, c := range rest {
			parts[i] = c.Text
		}
		plain := styles.PadRight(strings.Join(parts, " "), width-graphWidth)
		graph = styles.SelectedStyle.Render(graph)
		restText = styles.SelectedStyle.Render(plain)
	} else {
		parts := make([]string, len(rest))
		used := 0
		for i, c := range rest {
			parts[i] = styles.Hint(c.Hint).Render(c.Text)
			used += runewidth.StringWidth(c.Text)
		}
		used += max(0, len(rest)-1)
		graph = styles.Hint(row.Graph.Hint).Render(graph)
		restText = strings.Join(parts, " ") + strings.Repeat(" ", max(0, width-graphWidth-used))
	}

	if row.Fold != history.FoldNone {
		graph = zone.Mark(m.foldZoneID(row.Pos), graph)
	}
	return graph + zone.Mark(m.rowZoneID(row.Pos), restText)
}

func (m Model) statusLine() string {
	if m.prompting {
		return m.prompt.View()
	}

	var parts []string
	parts = append(parts, m.hist.Range().String())

	total := fmt.Sprintf("%d", m.hist.TotalRowEstimate())
	if !m.hist.Exhausted() {
		total = "~" + total
	}
	parts = append(parts, fmt.Sprintf("%d/%s", m.hist.Cursor()+1, total))

	if m.task != nil {
		parts = append(parts, fmt.Sprintf("%s searching %q (%d rows)", m.spinner.View(), m.lastHint, m.scanned))
	}

	line := strings.Join(parts, "  ")
	return styles.StatusBarStyle.Width(m.width).MaxWidth(m.width).Render(line)
}
