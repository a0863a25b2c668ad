// Package help contains the help overlay component.
package help

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/zjrosen/gitfold/internal/history"
	"github.com/zjrosen/gitfold/internal/keys"
	"github.com/zjrosen/gitfold/internal/ui/overlay"
	"github.com/zjrosen/gitfold/internal/ui/styles"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(styles.OverlayTitleColor).
			PaddingLeft(2)

	dividerStyle = lipgloss.NewStyle().
			Foreground(styles.OverlayBorderColor)

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(styles.OverlayTitleColor).
			MarginTop(1)

	keyStyle = lipgloss.NewStyle().
			Foreground(styles.TextSecondaryColor).
			Width(16)

	glyphStyle = lipgloss.NewStyle().
			Foreground(styles.GraphColor).
			Width(6)

	descStyle = lipgloss.NewStyle().
			Foreground(styles.TextDescriptionColor)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(styles.OverlayBorderColor)

	contentStyle = lipgloss.NewStyle().
			Padding(0, 2)

	footerStyle = lipgloss.NewStyle().
			Foreground(styles.TextMutedColor).
			MarginTop(1)
)

// Glyph documents one graph marker.
type Glyph struct {
	Symbol string
	Desc   string
}

// Glyphs lists the graph markers explained in the legend.
func Glyphs() []Glyph {
	return []Glyph{
		{"●", "commit"},
		{"◉", "root or last commit"},
		{"●─┐", "folded merge"},
		{"●─┬", "unfolded merge"},
		{"●─┤", "merge of a rebased branch"},
		{"●⇤╮", "subtree import"},
		{"●─┘", "fork point"},
		{"⭞", "link to a commit shown below"},
		{"?", "commit not available locally"},
	}
}

// Model holds the help view state.
type Model struct {
	keys   keys.KeyMap
	width  int
	height int
}

// New creates a new help view.
func New(km keys.KeyMap) Model {
	return Model{keys: km}
}

// SetSize updates dimensions.
func (m Model) SetSize(width, height int) Model {
	m.width = width
	m.height = height
	return m
}

// View renders the help box centered in an empty screen.
func (m Model) View() string {
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, m.renderContent())
}

// Overlay renders the help box on top of a background view.
func (m Model) Overlay(background string) string {
	return overlay.Place(overlay.Config{
		Width:    m.width,
		Height:   m.height,
		Position: overlay.Center,
	}, m.renderContent(), background)
}

func (m Model) renderContent() string {
	columnStyle := lipgloss.NewStyle().MarginRight(4)
	groups := m.keys.FullHelp()
	titles := []string{"Navigation", "History", "Search", "General"}

	cols := make([]string, 0, len(groups)+1)
	for i, group := range groups {
		var col strings.Builder
		col.WriteString(sectionStyle.Render(titles[i]))
		col.WriteString("\n")
		for _, b := range group {
			col.WriteString(renderBinding(b))
		}
		cols = append(cols, columnStyle.Render(col.String()))
	}

	var legend strings.Builder
	legend.WriteString(sectionStyle.Render("Graph"))
	legend.WriteString("\n")
	for _, g := range Glyphs() {
		legend.WriteString(glyphStyle.Render(g.Symbol) + descStyle.Render(g.Desc) + "\n")
	}

	top := lipgloss.JoinHorizontal(lipgloss.Top, cols[0], cols[1])
	bottom := lipgloss.JoinHorizontal(lipgloss.Top, cols[2], cols[3])
	columns := lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.JoinVertical(lipgloss.Left, top, bottom),
		legend.String(),
	)

	boxWidth := lipgloss.Width(columns) + 4
	body := contentStyle.Render(columns + "\n" + footerStyle.Render(
		"Dates cycle "+strings.Join(dateFormats(), " → ")+"   Press h or Esc to close"))
	divider := dividerStyle.Render(strings.Repeat("─", boxWidth))

	var content strings.Builder
	content.WriteString(titleStyle.Render("Keybindings"))
	content.WriteString("\n")
	content.WriteString(divider)
	content.WriteString("\n")
	content.WriteString(body)

	return boxStyle.Width(boxWidth).Render(content.String())
}

func dateFormats() []string {
	out := []string{string(history.DateRelative)}
	for f := history.DateRelative.Next(); f != history.DateRelative; f = f.Next() {
		out = append(out, string(f))
	}
	return out
}

func renderBinding(b key.Binding) string {
	h := b.Help()
	return keyStyle.Render(h.Key) + descStyle.Render(h.Desc) + "\n"
}
