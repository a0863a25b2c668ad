package styles

import (
	"strings"

	"github.com/rivo/uniseg"
)

// TruncateString truncates a string to fit within maxWidth, adding an
// ellipsis if needed. Widths are terminal cells and the cut never splits a
// grapheme cluster, so emoji sequences and combining marks stay whole.
func TruncateString(s string, maxWidth int) string {
	if maxWidth < 1 {
		return ""
	}
	if uniseg.StringWidth(s) <= maxWidth {
		return s
	}
	if maxWidth == 1 {
		return "…"
	}

	var sb strings.Builder
	width, state := 0, -1
	for len(s) > 0 {
		cluster, rest, _, newState := uniseg.StepString(s, state)
		w := uniseg.StringWidth(cluster)
		if width+w > maxWidth-1 {
			break
		}
		sb.WriteString(cluster)
		width += w
		s, state = rest, newState
	}
	return sb.String() + "…"
}

// PadRight pads s with spaces to width cells, truncating when longer.
func PadRight(s string, width int) string {
	s = TruncateString(s, width)
	if w := uniseg.StringWidth(s); w < width {
		s += strings.Repeat(" ", width-w)
	}
	return s
}
