// Package styles contains Lip Gloss style definitions.
package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/zjrosen/gitfold/internal/history"
)

var (
	// Semantic color names - Text hierarchy
	TextPrimaryColor     = lipgloss.AdaptiveColor{Light: "#303030", Dark: "#CCCCCC"} // Main/primary text
	TextSecondaryColor   = lipgloss.AdaptiveColor{Light: "#555555", Dark: "#BBBBBB"} // Ids, secondary info
	TextMutedColor       = lipgloss.AdaptiveColor{Light: "#999999", Dark: "#696969"} // Hints, help text, footers
	TextDescriptionColor = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#999999"} // Descriptions

	// Semantic color names - Border
	BorderDefaultColor = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#696969"}

	// Semantic color names - Status
	StatusSuccessColor = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	StatusWarningColor = lipgloss.AdaptiveColor{Light: "#FECA57", Dark: "#FECA57"}
	StatusErrorColor   = lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF8787"}

	// Graph and row columns
	GraphColor       = lipgloss.AdaptiveColor{Light: "#1E66F5", Dark: "#89B4FA"}
	ForkPointColor   = lipgloss.AdaptiveColor{Light: "#FE640B", Dark: "#FAB387"}
	IDColor          = lipgloss.AdaptiveColor{Light: "#8839EF", Dark: "#CBA6F7"}
	DateColor        = lipgloss.AdaptiveColor{Light: "#179299", Dark: "#94E2D5"}
	AuthorColor      = lipgloss.AdaptiveColor{Light: "#DF8E1D", Dark: "#F9E2AF"}
	ModulesColor     = lipgloss.AdaptiveColor{Light: "#7287FD", Dark: "#B4BEFE"}
	HeadColor        = lipgloss.AdaptiveColor{Light: "#D20F39", Dark: "#F38BA8"}
	BranchColor      = lipgloss.AdaptiveColor{Light: "#40A02B", Dark: "#A6E3A1"}
	RemoteColor      = lipgloss.AdaptiveColor{Light: "#E64553", Dark: "#EBA0AC"}
	TagColor         = lipgloss.AdaptiveColor{Light: "#DF8E1D", Dark: "#F9E2AF"}
	LinkColor        = lipgloss.AdaptiveColor{Light: "#9CA0B0", Dark: "#6C7086"}
	MatchColor       = lipgloss.AdaptiveColor{Light: "#FECA57", Dark: "#FECA57"}
	SelectionBgColor = lipgloss.AdaptiveColor{Light: "#DCE0E8", Dark: "#313244"}

	// Overlay colors
	OverlayTitleColor  = lipgloss.AdaptiveColor{Light: "#4C4F69", Dark: "#C9C9C9"}
	OverlayBorderColor = lipgloss.AdaptiveColor{Light: "#9CA0B0", Dark: "#8C8C8C"}

	// Toast notification colors
	ToastBorderSuccessColor = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	ToastBorderErrorColor   = lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF8787"}
	ToastBorderInfoColor    = lipgloss.AdaptiveColor{Light: "#54A0FF", Dark: "#54A0FF"}
	ToastBorderWarnColor    = lipgloss.AdaptiveColor{Light: "#FECA57", Dark: "#FECA57"}

	// Selected row
	SelectedStyle = lipgloss.NewStyle().Background(SelectionBgColor).Bold(true)

	// Status bar
	StatusBarStyle = lipgloss.NewStyle().
			Foreground(TextSecondaryColor).
			Padding(0, 1)

	// Search prompt
	PromptStyle = lipgloss.NewStyle().Foreground(MatchColor).Bold(true)

	// Error display
	ErrorStyle = lipgloss.NewStyle().
			Foreground(StatusErrorColor).
			Bold(true).
			Padding(1, 2)

	// Loading spinner color
	SpinnerColor = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#FFF"}

	hintStyles = map[history.StyleHint]lipgloss.Style{
		history.HintGraph:        lipgloss.NewStyle().Foreground(GraphColor),
		history.HintForkPoint:    lipgloss.NewStyle().Foreground(ForkPointColor).Bold(true),
		history.HintID:           lipgloss.NewStyle().Foreground(IDColor),
		history.HintDate:         lipgloss.NewStyle().Foreground(DateColor),
		history.HintAuthor:       lipgloss.NewStyle().Foreground(AuthorColor),
		history.HintModules:      lipgloss.NewStyle().Foreground(ModulesColor).Italic(true),
		history.HintHead:         lipgloss.NewStyle().Foreground(HeadColor).Bold(true),
		history.HintBranch:       lipgloss.NewStyle().Foreground(BranchColor),
		history.HintRemoteBranch: lipgloss.NewStyle().Foreground(RemoteColor),
		history.HintTag:          lipgloss.NewStyle().Foreground(TagColor).Bold(true),
		history.HintIcon:         lipgloss.NewStyle().Foreground(TextSecondaryColor),
		history.HintSubject:      lipgloss.NewStyle().Foreground(TextPrimaryColor),
		history.HintLink:         lipgloss.NewStyle().Foreground(LinkColor).Italic(true),
		history.HintMissing:      lipgloss.NewStyle().Foreground(StatusErrorColor).Italic(true),
	}
)

// Hint returns the style for a row column.
func Hint(h history.StyleHint) lipgloss.Style {
	if s, ok := hintStyles[h]; ok {
		return s
	}
	return lipgloss.NewStyle()
}
