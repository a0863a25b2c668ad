// Package historyview is the scrolling commit list: cursor movement,
// folding, link following and incremental search over a history model.
package historyview

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	zone "github.com/lrstanley/bubblezone"

	"github.com/zjrosen/gitfold/internal/history"
	"github.com/zjrosen/gitfold/internal/keys"
	"github.com/zjrosen/gitfold/internal/log"
	"github.com/zjrosen/gitfold/internal/search"
	"github.com/zjrosen/gitfold/internal/ui/styles"
)

// wheelStep is the number of rows one mouse wheel notch moves.
const wheelStep = 3

// ErrorMsg reports a failed user action. The owner shows it as a toast.
type ErrorMsg struct {
	Err error
}

// NoticeMsg is an informational message for the owner to show.
type NoticeMsg struct {
	Text string
}

// Config holds display settings.
type Config struct {
	DateFormat  history.DateFormat
	AuthorWidth int
	ShowModules bool
}

// Model is the history list component.
type Model struct {
	ctx    context.Context
	hist   *history.Model
	engine *search.Engine
	dec    history.Decorator
	keys   keys.KeyMap
	pkeys  keys.PromptKeyMap
	zones  string

	cfg    Config
	width  int
	height int
	offset int

	prompt    textinput.Model
	prompting bool
	promptDir search.Direction

	spinner  spinner.Model
	task     *search.Task
	scanned  int
	lastHint string

	now func() time.Time
}

// New creates the view. ctx bounds every backend call the view makes.
func New(ctx context.Context, hist *history.Model, engine *search.Engine, dec history.Decorator, cfg Config) Model {
	if dec == nil {
		dec = history.PlainDecorator{}
	}
	if cfg.DateFormat == "" {
		cfg.DateFormat = history.DateRelative
	}
	if cfg.AuthorWidth <= 0 {
		cfg.AuthorWidth = 18
	}

	ti := textinput.New()
	ti.Prompt = "/"
	ti.PromptStyle = styles.PromptStyle
	ti.CharLimit = 256
	ti.Cursor.SetMode(cursor.CursorStatic)

	sp := spinner.New(
		spinner.WithSpinner(spinner.MiniDot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(styles.SpinnerColor)),
	)

	return Model{
		ctx:     ctx,
		hist:    hist,
		engine:  engine,
		dec:     dec,
		keys:    keys.DefaultKeyMap(),
		pkeys:   keys.DefaultPromptKeyMap(),
		zones:   zone.NewPrefix(),
		cfg:     cfg,
		prompt:  ti,
		spinner: sp,
		now:     time.Now,
	}
}

// Init materializes the first page.
func (m Model) Init() tea.Cmd {
	return m.waitForEstimate()
}

// estimateMsg redraws the status line once the row count is known.
type estimateMsg struct{}

func (m Model) waitForEstimate() tea.Cmd {
	ready := m.hist.Estimated()
	return func() tea.Msg {
		select {
		case <-ready:
			return estimateMsg{}
		case <-m.ctx.Done():
			return nil
		}
	}
}

// SetSize resizes the list and pulls enough rows to fill it.
func (m Model) SetSize(width, height int) (Model, tea.Cmd) {
	m.width, m.height = width, height
	m.prompt.Width = max(0, width-4)
	if err := m.fill(); err != nil {
		return m, errorCmd(err)
	}
	m.scrollToCursor()
	return m, nil
}

// Cursor returns the selected row.
func (m Model) Cursor() int { return m.hist.Cursor() }

// History returns the underlying model.
func (m Model) History() *history.Model { return m.hist }

// DateFormat returns the active date format.
func (m Model) DateFormat() history.DateFormat { return m.cfg.DateFormat }

// SetDateFormat changes the date column format.
func (m Model) SetDateFormat(f history.DateFormat) Model {
	m.cfg.DateFormat = f
	return m
}

// Prompting reports whether the search prompt has focus.
func (m Model) Prompting() bool { return m.prompting }

// Searching reports whether a search task is outstanding.
func (m Model) Searching() bool { return m.task != nil }

// HandleProgress records progress published by the search engine.
func (m Model) HandleProgress(p search.Progress) Model {
	if m.task != nil && p.Generation == m.task.Generation() {
		m.scanned = p.Scanned
	}
	return m
}

// Update handles keys, mouse input and search results.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.prompting {
			return m.updatePrompt(msg)
		}
		return m.handleKey(msg)

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case searchResultMsg:
		return m.handleSearchResult(msg)

	case estimateMsg:
		return m, nil

	case spinner.TickMsg:
		if m.task == nil {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		return m.move(-1)
	case key.Matches(msg, m.keys.Down):
		return m.move(1)
	case key.Matches(msg, m.keys.PageUp):
		return m.move(-max(1, m.listHeight()))
	case key.Matches(msg, m.keys.PageDown):
		return m.move(max(1, m.listHeight()))
	case key.Matches(msg, m.keys.First):
		m.hist.GotoFirst()
		m.scrollToCursor()
		return m, nil
	case key.Matches(msg, m.keys.Last):
		if _, err := m.hist.GotoLast(m.ctx); err != nil {
			return m, errorCmd(err)
		}
		m.scrollToCursor()
		return m, nil
	case key.Matches(msg, m.keys.Toggle):
		return m.toggle(m.hist.Cursor())
	case key.Matches(msg, m.keys.FollowLink):
		return m.followLink(m.hist.Cursor())
	case key.Matches(msg, m.keys.SearchForward):
		return m.openPrompt(search.Forward)
	case key.Matches(msg, m.keys.SearchBackward):
		return m.openPrompt(search.Backward)
	case key.Matches(msg, m.keys.Next):
		return m.repeatSearch(false)
	case key.Matches(msg, m.keys.Prev):
		return m.repeatSearch(true)
	case key.Matches(msg, m.keys.Escape):
		m = m.cancelSearch()
		return m, nil
	}
	return m, nil
}

func (m Model) handleMouse(msg tea.MouseMsg) (Model, tea.Cmd) {
	switch msg.Button {
	case tea.MouseButtonWheelUp:
		return m.move(-wheelStep)
	case tea.MouseButtonWheelDown:
		return m.move(wheelStep)
	}
	if msg.Button != tea.MouseButtonLeft || msg.Action != tea.MouseActionRelease {
		return m, nil
	}

	last := min(m.offset+m.listHeight(), m.hist.Len())
	for pos := m.offset; pos < last; pos++ {
		if z := zone.Get(m.foldZoneID(pos)); z != nil && z.InBounds(msg) {
			return m.toggle(pos)
		}
		if z := zone.Get(m.rowZoneID(pos)); z != nil && z.InBounds(msg) {
			if _, err := m.hist.Goto(m.ctx, pos); err != nil {
				return m, errorCmd(err)
			}
			m.scrollToCursor()
			return m, nil
		}
	}
	return m, nil
}

func (m Model) move(delta int) (Model, tea.Cmd) {
	if _, err := m.hist.Move(m.ctx, delta); err != nil {
		return m, errorCmd(err)
	}
	m.scrollToCursor()
	if err := m.fill(); err != nil {
		return m, errorCmd(err)
	}
	return m, nil
}

// toggle folds or unfolds the merge at pos. On a link row it follows the
// link instead. Any running search is cancelled since row positions shift.
func (m Model) toggle(pos int) (Model, tea.Cmd) {
	n, err := m.hist.Node(pos)
	if err != nil {
		return m, errorCmd(err)
	}
	if n.IsLink() {
		return m.followLink(pos)
	}
	if !n.Kind.Foldable() {
		return m, nil
	}

	m = m.cancelSearch()
	if err := m.hist.ToggleFold(m.ctx, pos); err != nil {
		log.ErrorErr(log.CatUI, "toggle fold failed", err, "pos", pos, "id", n.ID.Short())
		return m, errorCmd(err)
	}
	if _, err := m.hist.Goto(m.ctx, pos); err != nil {
		return m, errorCmd(err)
	}
	m.scrollToCursor()
	if err := m.fill(); err != nil {
		return m, errorCmd(err)
	}
	return m, nil
}

func (m Model) followLink(pos int) (Model, tea.Cmd) {
	n, err := m.hist.Node(pos)
	if err != nil {
		return m, errorCmd(err)
	}
	if !n.IsLink() {
		return m, nil
	}
	if _, err := m.hist.ResolveLink(m.ctx, pos); err != nil {
		if errors.Is(err, history.ErrLinkHorizonExceeded) || errors.Is(err, history.ErrLinkTargetNotFound) {
			log.Warn(log.CatUI, "link not resolved", "id", n.ID.Short(), "error", err)
		}
		return m, errorCmd(err)
	}
	m.scrollToCursor()
	return m, nil
}

// fill materializes rows until the visible window is populated.
func (m Model) fill() error {
	want := m.offset + m.listHeight()
	for m.hist.Len() < want && !m.hist.Exhausted() {
		added, err := m.hist.Extend(m.ctx, want-m.hist.Len())
		if err != nil {
			return err
		}
		if added == 0 {
			break
		}
	}
	return nil
}

func (m *Model) scrollToCursor() {
	h := m.listHeight()
	if h <= 0 {
		m.offset = 0
		return
	}
	cur := m.hist.Cursor()
	if cur < m.offset {
		m.offset = cur
	}
	if cur >= m.offset+h {
		m.offset = cur - h + 1
	}
	m.offset = max(0, m.offset)
}

// listHeight is the number of rows available for commits; the last line
// is the status bar or search prompt.
func (m Model) listHeight() int {
	return max(0, m.height-1)
}

func errorCmd(err error) tea.Cmd {
	return func() tea.Msg { return ErrorMsg{Err: err} }
}

func noticeCmd(text string) tea.Cmd {
	return func() tea.Msg { return NoticeMsg{Text: text} }
}
