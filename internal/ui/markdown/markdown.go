// Package markdown renders commit messages as styled terminal text.
package markdown

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// noMarginStyle removes document margins so the text lines up with the
// header fields of the detail pane.
const noMarginStyle = `{
	"document": {
		"margin": 0,
		"block_prefix": "",
		"block_suffix": ""
	}
}`

// Renderer wraps glamour with a fixed style and wrap width.
type Renderer struct {
	renderer *glamour.TermRenderer
	width    int
	theme    string
}

// New creates a renderer. theme is a glamour standard style name; empty
// selects automatic dark/light detection.
func New(theme string, width int) (*Renderer, error) {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if theme == "" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(theme))
	}
	opts = append(opts, glamour.WithStylesFromJSONBytes([]byte(noMarginStyle)))

	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil, err
	}
	return &Renderer{renderer: r, width: width, theme: theme}, nil
}

// Width returns the configured word wrap width.
func (r *Renderer) Width() int { return r.width }

// Theme returns the style name.
func (r *Renderer) Theme() string { return r.theme }

// Render transforms markdown to styled terminal output.
func (r *Renderer) Render(markdown string) (string, error) {
	out, err := r.renderer.Render(markdown)
	if err != nil {
		return "", err
	}
	return strings.Trim(out, "\n"), nil
}

// CommitMessage turns a commit message into markdown. Git messages are
// plain text, so single newlines are kept as hard breaks and the subject
// becomes a heading.
func CommitMessage(subject, body string) string {
	var b strings.Builder
	b.WriteString("## ")
	b.WriteString(escape(subject))
	b.WriteString("\n")
	body = strings.TrimSpace(body)
	if body == "" {
		return b.String()
	}
	b.WriteString("\n")
	for _, para := range strings.Split(body, "\n\n") {
		lines := strings.Split(strings.TrimRight(para, "\n"), "\n")
		b.WriteString(strings.Join(lines, "  \n"))
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

var escaper = strings.NewReplacer(`\`, `\\`, "#", `\#`, "*", `\*`, "_", `\_`, "`", "\\`")

func escape(s string) string { return escaper.Replace(s) }
