package historyview

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/zjrosen/gitfold/internal/log"
	"github.com/zjrosen/gitfold/internal/search"
)

// searchResultMsg carries one Run of a search task back to the UI loop.
type searchResultMsg struct {
	task   *search.Task
	result search.Result
}

func runTask(t *search.Task) tea.Cmd {
	return func() tea.Msg {
		return searchResultMsg{task: t, result: t.Run()}
	}
}

func (m Model) openPrompt(dir search.Direction) (Model, tea.Cmd) {
	m.prompting = true
	m.promptDir = dir
	m.prompt.Prompt = "/"
	if dir == search.Backward {
		m.prompt.Prompt = "?"
	}
	m.prompt.SetValue("")
	return m, m.prompt.Focus()
}

func (m Model) updatePrompt(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.pkeys.Submit):
		needle := strings.TrimSpace(m.prompt.Value())
		m.prompting = false
		m.prompt.Blur()
		if needle == "" {
			return m, nil
		}
		return m.startSearch(search.Request{
			Needle:    needle,
			Direction: m.promptDir,
			From:      m.hist.Cursor(),
		})
	case key.Matches(msg, m.pkeys.Cancel):
		m.prompting = false
		m.prompt.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.prompt, cmd = m.prompt.Update(msg)
	return m, cmd
}

// repeatSearch re-runs the last needle from the cursor, in the same
// direction or, when reverse is set, the opposite one.
func (m Model) repeatSearch(reverse bool) (Model, tea.Cmd) {
	req, ok := m.engine.Last()
	if !ok || req.Needle == "" {
		return m, noticeCmd("no previous search")
	}
	req.From = m.hist.Cursor()
	req.IncludeCurrent = false
	if reverse {
		req.Direction = req.Direction.Reverse()
	}
	return m.startSearch(req)
}

func (m Model) startSearch(req search.Request) (Model, tea.Cmd) {
	m.task = m.engine.Start(m.ctx, m.hist, req)
	m.scanned = 0
	m.lastHint = req.Needle
	return m, tea.Batch(runTask(m.task), m.spinner.Tick)
}

func (m Model) cancelSearch() Model {
	if m.task != nil {
		m.engine.Cancel()
		m.task = nil
	}
	return m
}

func (m Model) handleSearchResult(msg searchResultMsg) (Model, tea.Cmd) {
	if msg.task != m.task || !m.engine.Current(msg.task.Generation()) {
		return m, nil
	}
	res := msg.result

	switch res.Status {
	case search.StatusNeedMore:
		added, err := m.hist.Extend(m.ctx, m.engine.BatchSize())
		if err != nil {
			m.task = nil
			return m, errorCmd(fmt.Errorf("search: %w", err))
		}
		if added == 0 && !m.hist.Exhausted() {
			m.task = nil
			return m, errorCmd(fmt.Errorf("search: history did not grow at row %d", res.Resume))
		}
		return m, runTask(msg.task)

	case search.StatusFound:
		m.task = nil
		if _, err := m.hist.Goto(m.ctx, res.Pos); err != nil {
			return m, errorCmd(err)
		}
		m.scrollToCursor()
		if err := m.fill(); err != nil {
			return m, errorCmd(err)
		}
		if res.Wrapped {
			return m, noticeCmd(fmt.Sprintf("search hit %s, continuing", boundary(res.Request.Direction)))
		}
		return m, nil

	case search.StatusNotFound:
		m.task = nil
		log.Debug(log.CatUI, "search found nothing", "needle", res.Request.Needle, "scanned", res.Scanned)
		return m, errorCmd(fmt.Errorf("%q: %w", res.Request.Needle, search.ErrNotFound))

	default:
		m.task = nil
		return m, nil
	}
}

func boundary(dir search.Direction) string {
	if dir == search.Backward {
		return "TOP"
	}
	return "BOTTOM"
}
