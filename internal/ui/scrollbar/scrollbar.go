// Package scrollbar renders a vertical scrollbar for lists whose total
// length is only estimated, such as a partially loaded history.
package scrollbar

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/zjrosen/gitfold/internal/ui/styles"
)

const (
	thumbChar = "█"
	trackChar = "░"
)

// Config describes the scroll state.
type Config struct {
	// Total is the (estimated) number of rows in the list.
	Total int
	// Height is the number of visible rows.
	Height int
	// Offset is the index of the first visible row.
	Offset int
}

// Thumb returns the start row and height of the thumb within a track of
// Height rows. A list that fits shows no thumb.
func Thumb(cfg Config) (start, height int) {
	if cfg.Total <= 0 || cfg.Height <= 0 || cfg.Total <= cfg.Height {
		return 0, 0
	}

	height = max(1, cfg.Height*cfg.Height/cfg.Total)

	maxOffset := cfg.Total - cfg.Height
	track := cfg.Height - height
	if track <= 0 {
		return 0, height
	}
	offset := max(0, min(cfg.Offset, maxOffset))
	start = track * offset / maxOffset
	return max(0, min(start, cfg.Height-height)), height
}

// Render returns Height lines joined by newlines. A list that fits
// renders as blank cells so the layout width stays fixed.
func Render(cfg Config) string {
	if cfg.Height <= 0 {
		return ""
	}
	lines := make([]string, cfg.Height)
	start, height := Thumb(cfg)
	if height == 0 {
		for i := range lines {
			lines[i] = " "
		}
		return strings.Join(lines, "\n")
	}

	track := lipgloss.NewStyle().Foreground(styles.TextMutedColor)
	thumb := lipgloss.NewStyle().Foreground(styles.TextSecondaryColor)
	for row := range lines {
		if row >= start && row < start+height {
			lines[row] = thumb.Render(thumbChar)
		} else {
			lines[row] = track.Render(trackChar)
		}
	}
	return strings.Join(lines, "\n")
}
