package modules

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	set, err := New([]Definition{
		{Name: "docs", Path: "docs/"},
		{Name: "api", Path: "./services/api"},
		{Name: "web", Path: "web"},
	})
	require.NoError(t, err)

	require.Equal(t, []string{"api", "docs"}, set.Classify([]string{"docs/intro.md", "services/api/main.go"}))
	require.Equal(t, []string{"web"}, set.Classify([]string{"web"}))
	require.Empty(t, set.Classify([]string{"website/index.html", "README.md"}))
	require.Empty(t, set.Classify(nil))
}

func TestNew_Validation(t *testing.T) {
	_, err := New([]Definition{{Name: "", Path: "x"}})
	require.Error(t, err)

	_, err = New([]Definition{{Name: "x", Path: ""}})
	require.Error(t, err)

	_, err = New([]Definition{{Name: "x", Path: "../outside"}})
	require.Error(t, err)

	_, err = New([]Definition{{Name: "x", Path: "/abs"}})
	require.Error(t, err)
}

func TestNew_DuplicateNameKeepsLast(t *testing.T) {
	set, err := New([]Definition{{Name: "lib", Path: "a"}, {Name: "lib", Path: "b"}})
	require.NoError(t, err)
	require.Equal(t, []Definition{{Name: "lib", Path: "b"}}, set.Definitions())
}

func TestFingerprint(t *testing.T) {
	a, err := New([]Definition{{Name: "a", Path: "x"}, {Name: "b", Path: "y"}})
	require.NoError(t, err)
	b, err := New([]Definition{{Name: "b", Path: "y/"}, {Name: "a", Path: "./x"}})
	require.NoError(t, err)
	c, err := New([]Definition{{Name: "a", Path: "x"}})
	require.NoError(t, err)

	require.Equal(t, a.Fingerprint(), b.Fingerprint())
	require.NotEqual(t, a.Fingerprint(), c.Fingerprint())
	require.Len(t, a.Fingerprint(), 16)
}

const subtrees = `# managed by git-stree
[subtree "vendor-lib"]
	path = vendor/lib
	url = https://example.com/lib.git
	upstream = main
	pull-pre-releases = false

[subtree "tools"]
	url = https://example.com/tools.git
`

func TestParseSubtrees(t *testing.T) {
	defs, err := ParseSubtrees(strings.NewReader(subtrees))
	require.NoError(t, err)
	require.Equal(t, []Definition{
		{Name: "tools", Path: "tools"},
		{Name: "vendor-lib", Path: "vendor/lib"},
	}, defs)
}

func TestParseSubtrees_Malformed(t *testing.T) {
	_, err := ParseSubtrees(strings.NewReader("[subtree \"x\"\npath = y\n"))
	require.Error(t, err)
}

func TestLoad_MergesFileAndConfig(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, SubtreesFile)
	require.NoError(t, os.WriteFile(file, []byte(subtrees), 0o600))

	set, err := Load([]Definition{{Name: "tools", Path: "build/tools"}, {Name: "docs", Path: "docs"}}, file)
	require.NoError(t, err)
	require.Equal(t, []Definition{
		{Name: "docs", Path: "docs"},
		{Name: "tools", Path: "build/tools"},
		{Name: "vendor-lib", Path: "vendor/lib"},
	}, set.Definitions())

	set, err = Load(nil, filepath.Join(dir, "missing"))
	require.NoError(t, err)
	require.Zero(t, set.Len())
}
