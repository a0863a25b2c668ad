// Package app contains the root application model.
package app

import (
	"context"
	"errors"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	zone "github.com/lrstanley/bubblezone"

	"github.com/zjrosen/gitfold/internal/config"
	"github.com/zjrosen/gitfold/internal/enrich"
	"github.com/zjrosen/gitfold/internal/history"
	"github.com/zjrosen/gitfold/internal/keys"
	"github.com/zjrosen/gitfold/internal/log"
	"github.com/zjrosen/gitfold/internal/pubsub"
	"github.com/zjrosen/gitfold/internal/search"
	"github.com/zjrosen/gitfold/internal/ui/detail"
	"github.com/zjrosen/gitfold/internal/ui/help"
	"github.com/zjrosen/gitfold/internal/ui/historyview"
	"github.com/zjrosen/gitfold/internal/ui/logoverlay"
	"github.com/zjrosen/gitfold/internal/ui/toaster"
	"github.com/zjrosen/gitfold/internal/vcs"
	"github.com/zjrosen/gitfold/internal/watcher"
)

// minDetailWidth is the narrowest terminal that still gets a side pane.
const minDetailWidth = 60

var toggleLogs = key.NewBinding(key.WithKeys("ctrl+x"), key.WithHelp("ctrl+x", "toggle logs"))

// refsChangedMsg is sent when the watcher reports moved references.
type refsChangedMsg struct{}

// Options are the services the application runs on.
type Options struct {
	Config     config.Config
	ConfigPath string
	History    *history.Model
	Search     *search.Engine
	// Enricher resolves titles and modules in the background. Optional.
	Enricher *enrich.Enricher
	// Watcher triggers label refreshes. Optional; Init starts it.
	Watcher *watcher.Watcher
	Debug   bool
}

// Model is the root application state.
type Model struct {
	ctx    context.Context
	cancel context.CancelFunc

	cfg        config.Config
	configPath string
	keys       keys.KeyMap
	debugMode  bool

	hist     *history.Model
	engine   *search.Engine
	enricher *enrich.Enricher
	dec      history.Decorator

	list       historyview.Model
	detail     detail.Model
	showDetail bool
	detailKey  detailKey
	help       help.Model
	showHelp   bool
	toaster    toaster.Model
	logOverlay logoverlay.Model

	enrichListener   *pubsub.ContinuousListener[enrich.Result]
	progressListener *pubsub.ContinuousListener[search.Progress]
	logListener      *log.Listener
	watcherHandle    *watcher.Watcher
	refsChanged      <-chan struct{}

	width  int
	height int
}

// detailKey identifies what the detail pane shows; the pane reloads when
// any part changes.
type detailKey struct {
	handle history.NodeID
	pos    int
	fold   history.FoldState
}

// New creates the application model.
func New(opts Options) Model {
	ctx, cancel := context.WithCancel(context.Background())

	var dec history.Decorator = history.PlainDecorator{}
	if opts.Enricher != nil {
		dec = opts.Enricher
	}

	m := Model{
		ctx:           ctx,
		cancel:        cancel,
		cfg:           opts.Config,
		configPath:    opts.ConfigPath,
		keys:          keys.DefaultKeyMap(),
		debugMode:     opts.Debug,
		hist:          opts.History,
		engine:        opts.Search,
		enricher:      opts.Enricher,
		dec:           dec,
		showDetail:    opts.Config.UI.ShowDetail,
		detail:        detail.New(opts.Config.UI.Theme),
		help:          help.New(keys.DefaultKeyMap()),
		toaster:       toaster.New(),
		logOverlay:    logoverlay.New(),
		watcherHandle: opts.Watcher,
		detailKey:     detailKey{pos: -1},
	}
	m.list = historyview.New(ctx, opts.History, opts.Search, dec, historyview.Config{
		DateFormat:  history.DateFormat(opts.Config.UI.DateFormat),
		AuthorWidth: opts.Config.UI.AuthorWidth,
		ShowModules: opts.Config.UI.ShowModules,
	})

	if opts.Enricher != nil {
		m.enrichListener = pubsub.NewContinuousListener(ctx, opts.Enricher.Broker())
	}
	m.progressListener = pubsub.NewContinuousListener(ctx, opts.Search.Broker())
	m.logListener = log.NewListener(ctx)

	if opts.Watcher != nil {
		ch, err := opts.Watcher.Start()
		if err != nil {
			log.Warn(log.CatWatcher, "watcher not started", "error", err)
			_ = opts.Watcher.Stop()
			m.watcherHandle = nil
		} else {
			m.refsChanged = ch
		}
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.list.Init(), m.progressListener.Listen()}
	if m.enricher != nil {
		m.enricher.Start(m.ctx)
		cmds = append(cmds, m.enrichListener.Listen())
	}
	if m.logListener != nil {
		cmds = append(cmds, m.logListener.Listen())
	}
	if m.refsChanged != nil {
		cmds = append(cmds, m.waitForRefs())
	}
	return tea.Batch(cmds...)
}

func (m Model) waitForRefs() tea.Cmd {
	ctx, ch := m.ctx, m.refsChanged
	return func() tea.Msg {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-ch:
			if !ok {
				return nil
			}
			return refsChangedMsg{}
		}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help = m.help.SetSize(msg.Width, msg.Height)
		m.logOverlay = m.logOverlay.SetSize(msg.Width, msg.Height)
		return m.layout()

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		if m.logOverlay.Visible() {
			var cmd tea.Cmd
			m.logOverlay, cmd = m.logOverlay.Update(msg)
			return m, cmd
		}
		if m.showHelp {
			return m, nil
		}
		if m.showDetail && msg.X >= m.listWidth() {
			var cmd tea.Cmd
			m.detail, cmd = m.detail.Update(msg)
			return m, cmd
		}
		return m.updateList(msg)

	case pubsub.Event[enrich.Result]:
		if msg.Payload.ID == m.detailInfoID() {
			m.detailKey = detailKey{pos: -1}
			m = m.syncDetail()
		}
		return m, m.enrichListener.Listen()

	case pubsub.Event[search.Progress]:
		m.list = m.list.HandleProgress(msg.Payload)
		return m, m.progressListener.Listen()

	case pubsub.Event[log.Entry]:
		e := msg.Payload
		m.logOverlay = m.logOverlay.Append(e)
		if e.Level >= log.LevelError && background(e.Category) && !m.toaster.Visible() {
			var cmd tea.Cmd
			m.toaster, cmd = m.toaster.Show(e.Message, toaster.StyleWarn)
			return m, tea.Batch(cmd, m.logListener.Listen())
		}
		return m, m.logListener.Listen()

	case refsChangedMsg:
		if inv, ok := vcs.Find[vcs.RefInvalidator](m.hist.Backend()); ok {
			inv.InvalidateRefs()
		}
		log.Info(log.CatWatcher, "references changed, labels refreshed")
		m.detailKey = detailKey{pos: -1}
		m = m.syncDetail()
		return m, m.waitForRefs()

	case historyview.ErrorMsg:
		return m.toast(errorText(msg.Err), toaster.StyleError)

	case historyview.NoticeMsg:
		return m.toast(msg.Text, toaster.StyleInfo)

	case toaster.DismissMsg:
		m.toaster = m.toaster.Update(msg)
		return m, nil

	case logoverlay.CloseMsg:
		return m, nil
	}

	return m.updateList(msg)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.debugMode && key.Matches(msg, toggleLogs) {
		m.logOverlay = m.logOverlay.Toggle()
		return m, nil
	}
	if m.logOverlay.Visible() {
		var cmd tea.Cmd
		m.logOverlay, cmd = m.logOverlay.Update(msg)
		return m, cmd
	}

	if m.showHelp {
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help), key.Matches(msg, m.keys.Escape):
			m.showHelp = false
		}
		return m, nil
	}

	if m.list.Prompting() {
		return m.updateList(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil
	case key.Matches(msg, m.keys.Detail):
		m.showDetail = !m.showDetail
		m.detailKey = detailKey{pos: -1}
		save := m.savePreferences()
		next, cmd := m.layout()
		return next, tea.Batch(cmd, save)
	case key.Matches(msg, m.keys.DateFormat):
		m.list = m.list.SetDateFormat(m.list.DateFormat().Next())
		return m, m.savePreferences()
	}
	return m.updateList(msg)
}

func (m Model) updateList(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	m = m.syncDetail()
	return m, cmd
}

// layout splits the screen between the list and the detail pane.
func (m Model) layout() (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.list, cmd = m.list.SetSize(m.listWidth(), m.height)
	if m.detailVisible() {
		m.detail = m.detail.SetSize(m.width-m.listWidth(), m.height)
	}
	m = m.syncDetail()
	return m, cmd
}

func (m Model) detailVisible() bool {
	return m.showDetail && m.width >= minDetailWidth
}

func (m Model) listWidth() int {
	if !m.detailVisible() {
		return m.width
	}
	frac := m.cfg.UI.DetailWidth
	if frac <= 0 || frac >= 1 {
		frac = config.Defaults().UI.DetailWidth
	}
	return m.width - int(float64(m.width)*frac)
}

// syncDetail reloads the detail pane when the selected row changed.
func (m Model) syncDetail() Model {
	if !m.detailVisible() || m.hist.Len() == 0 {
		return m
	}
	pos := m.hist.Cursor()
	n, err := m.hist.Node(pos)
	if err != nil {
		return m
	}
	k := detailKey{handle: n.Handle, pos: pos, fold: n.Fold}
	if k == m.detailKey {
		return m
	}
	m.detailKey = k

	info, err := detail.Load(m.ctx, m.hist, pos, m.dec)
	if err != nil {
		log.ErrorErr(log.CatUI, "detail load failed", err, "pos", pos, "id", n.ID.Short())
	}
	m.detail = m.detail.SetInfo(info)
	return m
}

func (m Model) detailInfoID() vcs.CommitID {
	info, ok := m.detail.Info()
	if !ok {
		return ""
	}
	return info.ID
}

func (m Model) toast(text string, style toaster.Style) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.toaster, cmd = m.toaster.Show(text, style)
	return m, cmd
}

func (m Model) savePreferences() tea.Cmd {
	if m.configPath == "" {
		return nil
	}
	prefs := config.Preferences{
		ShowDetail: m.showDetail,
		DateFormat: string(m.list.DateFormat()),
	}
	path := m.configPath
	return func() tea.Msg {
		if err := config.SavePreferences(path, prefs); err != nil {
			log.ErrorErr(log.CatConfig, "saving preferences failed", err, "path", path)
			return historyview.ErrorMsg{Err: err}
		}
		return nil
	}
}

func errorText(err error) string {
	if errors.Is(err, vcs.ErrMissingObjectData) {
		return "commit data not available locally: " + err.Error()
	}
	return err.Error()
}

// background reports whether entries of cat come from work the user did
// not trigger directly, so their errors are not shown any other way.
func background(cat log.Category) bool {
	return cat == log.CatEnrich || cat == log.CatStore || cat == log.CatWatcher
}

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	view := m.list.View()
	if m.detailVisible() {
		view = lipgloss.JoinHorizontal(lipgloss.Top, view, m.detail.View())
	}
	if m.showHelp {
		view = m.help.Overlay(view)
	}
	if m.toaster.Visible() {
		view = m.toaster.Overlay(view, m.width, m.height)
	}
	if m.debugMode && m.logOverlay.Visible() {
		view = m.logOverlay.Overlay(view)
	}
	return zone.Scan(view)
}

// Close releases resources held by the application.
func (m *Model) Close() error {
	m.cancel()
	if m.enricher != nil {
		m.enricher.Close()
	}
	m.engine.Close()
	if m.watcherHandle != nil {
		return m.watcherHandle.Stop()
	}
	return nil
}
