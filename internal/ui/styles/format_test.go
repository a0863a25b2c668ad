package styles

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/gitfold/internal/history"
)

func TestTruncateString(t *testing.T) {
	require.Equal(t, "hello", TruncateString("hello", 10))
	require.Equal(t, "hell…", TruncateString("hello world", 5))
	require.Equal(t, "…", TruncateString("hello", 1))
	require.Empty(t, TruncateString("hello", 0))

	got := TruncateString("日本語のテキスト", 7)
	require.LessOrEqual(t, runewidth.StringWidth(got), 7)
}

func TestPadRight(t *testing.T) {
	require.Equal(t, "ab   ", PadRight("ab", 5))
	require.Equal(t, "abcd…", PadRight("abcdefgh", 5))
	require.Equal(t, 6, runewidth.StringWidth(PadRight("日本", 6)))
}

func TestHint_KnownAndUnknown(t *testing.T) {
	require.True(t, Hint(history.HintHead).GetBold())
	require.False(t, Hint(history.StyleHint(999)).GetBold())
}

func TestTruncateString_KeepsGraphemeClusters(t *testing.T) {
	// "e" followed by a combining acute accent is one cluster.
	got := TruncateString("cafe\u0301 au lait", 5)
	require.Equal(t, "cafe\u0301…", got)

	family := "\U0001F469\u200D\U0001F469\u200D\U0001F467"
	got = TruncateString(family+" family", 3)
	require.Equal(t, family+"…", got)
}

func TestHint_RendersColor(t *testing.T) {
	prev := lipgloss.ColorProfile()
	lipgloss.SetColorProfile(termenv.ANSI256)
	t.Cleanup(func() { lipgloss.SetColorProfile(prev) })

	out := Hint(history.HintHead).Render("HEAD")
	require.Contains(t, out, "\x1b[")
	require.Contains(t, out, "HEAD")
}
