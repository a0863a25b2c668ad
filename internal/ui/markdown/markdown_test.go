package markdown

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommitMessage(t *testing.T) {
	require.Equal(t, "## fix: off \\*by\\* one\n", CommitMessage("fix: off *by* one", ""))

	got := CommitMessage("Add folding", "First line\nsecond line\n\nNew paragraph\n")
	require.Equal(t, "## Add folding\n\nFirst line  \nsecond line\n\nNew paragraph\n", got)
}

func TestRender(t *testing.T) {
	r, err := New("notty", 40)
	require.NoError(t, err)
	require.Equal(t, 40, r.Width())
	require.Equal(t, "notty", r.Theme())

	out, err := r.Render(CommitMessage("Add folding", "Body text"))
	require.NoError(t, err)
	require.Contains(t, out, "Add folding")
	require.Contains(t, out, "Body text")
}
