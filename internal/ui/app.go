package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/valibibe/recall/internal/actionqueue"
	"github.com/valibibe/recall/internal/archive"
	"github.com/valibibe/recall/internal/logtail"
	"github.com/valibibe/recall/internal/notes"
	"github.com/valibibe/recall/internal/prefs"
	"github.com/valibibe/recall/internal/state"
)

// View represents the current active view.
type View int

const (
	ViewNotes View = iota
	ViewActivity
)

// Archiver is the archive-with-undo flow as the UI drives it.
type Archiver interface {
	RequestArchive(note notes.Note) error
	Undo(ctx context.Context, noteID string) error
	Replay(ctx context.Context) (actionqueue.Result, error)
	Dismiss(noteID string)
	IsHidden(noteID string) bool
	State(noteID string) archive.State
	Banner() (archive.Banner, bool)
	QueueLen() int
}

// Restorer brings back a note that is already archived on the server.
type Restorer interface {
	Unarchive(ctx context.Context, id string) (*notes.Note, error)
}

// Options configures the UI.
type Options struct {
	Context  context.Context
	Archiver Archiver
	Restorer Restorer
	// Online reports the connectivity monitor's view. Nil means always online.
	Online func() bool
	// SetQuery hands list query changes to the poller.
	SetQuery func(notes.ListQuery)
	// Refresh asks the poller for an immediate refresh.
	Refresh     func()
	Store       *state.Store
	Prefs       prefs.Prefs
	PrefsPath   string
	LogPath     string
	TokenExpiry time.Time
	PollTick    time.Duration
	Failures    <-chan archive.Failure
	Changes     <-chan struct{}
	Now         func() time.Time
}

// InitialQuery is the list query the UI starts with for the given prefs.
func InitialQuery(p prefs.Prefs) notes.ListQuery {
	archived := false
	return notes.ListQuery{
		SortBy:   p.SortBy,
		Order:    p.Order,
		Limit:    p.PageSize,
		Archived: &archived,
	}
}

// Model is the root application state for Bubble Tea.
type Model struct {
	// Configuration
	ctx         context.Context
	archiver    Archiver
	restorer    Restorer
	online      func() bool
	setQuery    func(notes.ListQuery)
	refresh     func()
	store       *state.Store
	prefsPath   string
	logPath     string
	tokenExpiry time.Time
	pollTick    time.Duration
	failures    <-chan archive.Failure
	changes     <-chan struct{}
	now         func() time.Time
	keys        keyMap

	// UI state
	theme       Theme
	currentView View
	width       int
	height      int
	ready       bool
	focusedPane int // 0 = list, 1 = detail
	showHelp    bool
	modal       Modal

	// Data state
	snapshot    state.Snapshot
	lastUpdated time.Time

	// List state
	selectedRow int
	selectedID  string
	archived    bool
	searchTerm  string
	sortBy      string
	order       string
	pageSize    int
	offset      int
	viewMode    string

	detailViewport viewport.Model
	detailID       string

	// Activity state
	activityViewport viewport.Model
	activity         []logtail.Entry
	activityErr      error

	// Snackbar notice for absorbed failures and one-off results.
	notice      string
	noticeError bool
	noticeAt    time.Time
}

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	pollTick := opts.PollTick
	if pollTick <= 0 {
		pollTick = DefaultUIInterval
	}

	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath()
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	p := opts.Prefs
	if p.PageSize <= 0 {
		p = prefs.Default()
	}

	return Model{
		ctx:         ctx,
		archiver:    opts.Archiver,
		restorer:    opts.Restorer,
		online:      opts.Online,
		setQuery:    opts.SetQuery,
		refresh:     opts.Refresh,
		store:       opts.Store,
		prefsPath:   prefsPath,
		logPath:     opts.LogPath,
		tokenExpiry: opts.TokenExpiry,
		pollTick:    pollTick,
		failures:    opts.Failures,
		changes:     opts.Changes,
		now:         now,
		keys:        DefaultKeyMap(),
		theme:       GetTheme(p.Theme),
		currentView: ViewNotes,
		sortBy:      p.SortBy,
		order:       p.Order,
		pageSize:    p.PageSize,
		viewMode:    p.ViewMode,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		tea.EnterAltScreen,
		tickCmd(m.pollTick),
	}
	if m.store != nil {
		cmds = append(cmds, fetchSnapshotCmd(m.store))
	}
	if m.failures != nil {
		cmds = append(cmds, waitForFailure(m.failures))
	}
	if m.changes != nil {
		cmds = append(cmds, waitForChange(m.changes))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.detailViewport = viewport.New(0, 0)
			m.activityViewport = viewport.New(0, 0)
		}
		m.ready = true
		m.resizeViewports()
		m.updateDetailViewport()
		m.updateActivityViewport()
		return m, nil

	case tickMsg:
		return m.handleTick()

	case snapshotMsg:
		m.snapshot = state.Snapshot(msg)
		m.lastUpdated = m.now()
		m.syncSelection()
		m.updateDetailViewport()
		return m, nil

	case changedMsg:
		m.syncSelection()
		m.updateDetailViewport()
		return m, waitForChange(m.changes)

	case failureMsg:
		m.setNotice(describeFailure(archive.Failure(msg)), true)
		return m, waitForFailure(m.failures)

	case actionMsg:
		m.handleActionResult(msg)
		if m.store != nil {
			return m, fetchSnapshotCmd(m.store)
		}
		return m, nil

	case activityMsg:
		m.activity = msg.entries
		m.activityErr = msg.err
		m.updateActivityViewport()
		return m, nil
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}
	if m.modal != nil {
		return m.modal.View(m.theme, m.width, m.height)
	}
	return m.renderMain()
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		// Any key closes help
		m.showHelp = false
		return m, nil
	}

	if m.modal != nil {
		return m.handleModalKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		m.savePrefs()
		m.updateDetailViewport()
		m.updateActivityViewport()
		return m, nil

	case key.Matches(msg, m.keys.Activity):
		if m.currentView == ViewActivity {
			m.currentView = ViewNotes
			return m, nil
		}
		m.currentView = ViewActivity
		return m, loadActivityCmd(m.logPath)

	case key.Matches(msg, m.keys.Escape):
		m.currentView = ViewNotes
		m.focusedPane = 0
		return m, nil

	case key.Matches(msg, m.keys.Undo):
		return m, m.undoCmd()

	case key.Matches(msg, m.keys.Dismiss):
		m.dismissBanner()
		return m, nil

	case key.Matches(msg, m.keys.Replay):
		return m, m.replayCmd()

	case key.Matches(msg, m.keys.Refresh):
		if m.refresh != nil {
			m.refresh()
		}
		return m, nil
	}

	switch m.currentView {
	case ViewNotes:
		return m.handleNotesKey(msg)
	case ViewActivity:
		var cmd tea.Cmd
		m.activityViewport, cmd = m.activityViewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

// handleNotesKey processes keyboard input for the notes view.
func (m Model) handleNotesKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Tab):
		m.focusedPane = 1 - m.focusedPane
		return m, nil

	case key.Matches(msg, m.keys.Archive):
		m.archiveSelected()
		return m, nil

	case key.Matches(msg, m.keys.Restore):
		return m, m.restoreCmd()

	case key.Matches(msg, m.keys.ToggleArchived):
		m.archived = !m.archived
		m.resetPaging()
		m.pushQuery()
		return m, nil

	case key.Matches(msg, m.keys.ToggleView):
		m.viewMode = ternary(m.viewMode == prefs.ViewRow, prefs.ViewCard, prefs.ViewRow)
		m.savePrefs()
		return m, nil

	case key.Matches(msg, m.keys.CycleSort):
		m.sortBy = ternary(m.sortBy == notes.SortNextReviewAt, notes.SortCreatedAt, notes.SortNextReviewAt)
		m.resetPaging()
		m.pushQuery()
		m.savePrefs()
		return m, nil

	case key.Matches(msg, m.keys.ToggleOrder):
		m.order = ternary(m.order == notes.OrderAsc, notes.OrderDesc, notes.OrderAsc)
		m.resetPaging()
		m.pushQuery()
		m.savePrefs()
		return m, nil

	case key.Matches(msg, m.keys.NextPage):
		if int64(m.offset+m.pageSize) < m.snapshot.Total {
			m.offset += m.pageSize
			m.selectedRow, m.selectedID = 0, ""
			m.pushQuery()
		}
		return m, nil

	case key.Matches(msg, m.keys.PrevPage):
		if m.offset > 0 {
			m.offset = max(m.offset-m.pageSize, 0)
			m.selectedRow, m.selectedID = 0, ""
			m.pushQuery()
		}
		return m, nil

	case key.Matches(msg, m.keys.Search):
		m.modal = newSearchModal(m.searchTerm)
		return m, nil
	}

	if m.focusedPane == 1 {
		var cmd tea.Cmd
		m.detailViewport, cmd = m.detailViewport.Update(msg)
		return m, cmd
	}

	count := len(m.visibleNotes())
	if count == 0 {
		return m, nil
	}
	half := max(m.listCapacity()/2, 1)
	switch {
	case key.Matches(msg, m.keys.Down):
		m.selectedRow = min(m.selectedRow+1, count-1)
	case key.Matches(msg, m.keys.Up):
		m.selectedRow = max(m.selectedRow-1, 0)
	case key.Matches(msg, m.keys.Top):
		m.selectedRow = 0
	case key.Matches(msg, m.keys.Bottom):
		m.selectedRow = count - 1
	case key.Matches(msg, m.keys.HalfPageDown):
		m.selectedRow = min(m.selectedRow+half, count-1)
	case key.Matches(msg, m.keys.HalfPageUp):
		m.selectedRow = max(m.selectedRow-half, 0)
	default:
		return m, nil
	}
	m.selectedID = m.visibleNotes()[m.selectedRow].ID
	m.updateDetailViewport()
	return m, nil
}

// handleModalKey routes input to the open modal and applies its result.
func (m Model) handleModalKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	modal, cmd, done := m.modal.Update(msg, m.keys)
	if !done {
		m.modal = modal
		return m, cmd
	}
	m.modal = nil
	if search, ok := modal.(*searchModal); ok && search.submitted {
		term := strings.TrimSpace(search.input.Value())
		if term != m.searchTerm {
			m.searchTerm = term
			m.resetPaging()
			m.pushQuery()
		}
	}
	return m, cmd
}

// handleTick processes the refresh tick.
func (m Model) handleTick() (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	if m.store != nil {
		cmds = append(cmds, fetchSnapshotCmd(m.store))
	}
	if m.currentView == ViewActivity {
		cmds = append(cmds, loadActivityCmd(m.logPath))
	}
	if m.notice != "" && m.now().Sub(m.noticeAt) > FailureDisplay {
		m.notice = ""
	}

	cmds = append(cmds, tickCmd(m.pollTick))
	return m, tea.Batch(cmds...)
}

func (m *Model) archiveSelected() {
	if m.archiver == nil || m.archived {
		return
	}
	note, ok := m.selectedNote()
	if !ok {
		return
	}
	if err := m.archiver.RequestArchive(note); err != nil {
		m.setNotice(err.Error(), true)
		return
	}
	m.syncSelection()
	m.updateDetailViewport()
}

func (m Model) undoCmd() tea.Cmd {
	if m.archiver == nil {
		return nil
	}
	banner, ok := m.archiver.Banner()
	if !ok {
		return nil
	}
	ctx, archiver := m.ctx, m.archiver
	return func() tea.Msg {
		err := archiver.Undo(ctx, banner.NoteID)
		return actionMsg{op: archive.OpUnarchive, noteID: banner.NoteID, title: banner.Title, err: err}
	}
}

func (m *Model) dismissBanner() {
	if m.archiver == nil {
		return
	}
	if banner, ok := m.archiver.Banner(); ok {
		m.archiver.Dismiss(banner.NoteID)
	}
	m.notice = ""
}

func (m Model) replayCmd() tea.Cmd {
	if m.archiver == nil {
		return nil
	}
	ctx, archiver := m.ctx, m.archiver
	return func() tea.Msg {
		res, err := archiver.Replay(ctx)
		return actionMsg{op: archive.OpReplay, result: &res, err: err}
	}
}

func (m Model) restoreCmd() tea.Cmd {
	if m.restorer == nil || !m.archived {
		return nil
	}
	note, ok := m.selectedNote()
	if !ok {
		return nil
	}
	ctx, restorer, refresh := m.ctx, m.restorer, m.refresh
	return func() tea.Msg {
		_, err := restorer.Unarchive(ctx, note.ID)
		if err == nil && refresh != nil {
			refresh()
		}
		return actionMsg{op: archive.OpUnarchive, noteID: note.ID, title: note.Title, err: err}
	}
}

func (m *Model) handleActionResult(msg actionMsg) {
	switch {
	case msg.err != nil && errors.Is(msg.err, archive.ErrNotPending):
		m.setNotice("Nothing to undo", false)
	case msg.err != nil:
		m.setNotice(describeFailure(archive.Failure{NoteID: msg.noteID, Op: msg.op, Err: msg.err}), true)
	case msg.op == archive.OpReplay && msg.result != nil:
		res := msg.result
		m.setNotice(fmt.Sprintf("Replayed %d, dropped %d, %d still queued",
			len(res.Committed), len(res.Abandoned), len(res.Remaining)), false)
	case msg.op == archive.OpUnarchive:
		m.setNotice(fmt.Sprintf("Restored %q", displayTitle(msg.title)), false)
	}
	m.syncSelection()
	m.updateDetailViewport()
}

func (m *Model) setNotice(text string, isError bool) {
	m.notice = text
	m.noticeError = isError
	m.noticeAt = m.now()
}

// query builds the list query for the current view.
func (m Model) query() notes.ListQuery {
	archived := m.archived
	return notes.ListQuery{
		Search:   m.searchTerm,
		SortBy:   m.sortBy,
		Order:    m.order,
		Limit:    m.pageSize,
		Offset:   m.offset,
		Archived: &archived,
	}
}

func (m Model) pushQuery() {
	if m.setQuery != nil {
		m.setQuery(m.query())
	}
}

func (m *Model) resetPaging() {
	m.offset = 0
	m.selectedRow = 0
	m.selectedID = ""
}

func (m Model) savePrefs() {
	if m.prefsPath == "" {
		return
	}
	_ = prefs.Save(m.prefsPath, prefs.Prefs{
		Theme:    m.theme.Name,
		ViewMode: m.viewMode,
		SortBy:   m.sortBy,
		Order:    m.order,
		PageSize: m.pageSize,
	})
}

// visibleNotes returns the notes the list shows. Hidden notes only apply to
// the active list; the archived view shows the server page as is.
func (m Model) visibleNotes() []notes.Note {
	if m.archived || m.archiver == nil {
		return m.snapshot.Visible(nil)
	}
	return m.snapshot.Visible(m.archiver.IsHidden)
}

func (m Model) selectedNote() (notes.Note, bool) {
	items := m.visibleNotes()
	if m.selectedRow < 0 || m.selectedRow >= len(items) {
		return notes.Note{}, false
	}
	return items[m.selectedRow], true
}

// syncSelection keeps the selection on the same note across refreshes and
// moves it to the neighbour when the selected note disappears.
func (m *Model) syncSelection() {
	items := m.visibleNotes()
	if len(items) == 0 {
		m.selectedRow = 0
		m.selectedID = ""
		return
	}
	if m.selectedID != "" {
		for i, n := range items {
			if n.ID == m.selectedID {
				m.selectedRow = i
				return
			}
		}
	}
	m.selectedRow = min(max(m.selectedRow, 0), len(items)-1)
	m.selectedID = items[m.selectedRow].ID
}

func (m Model) isOnline() bool {
	if m.online == nil {
		return true
	}
	return m.online()
}

// renderMain renders the full UI.
func (m Model) renderMain() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderCommandBar())
	b.WriteString("\n")
	b.WriteString(m.renderContent())
	b.WriteString("\n")
	b.WriteString(m.renderSnackbar())

	return b.String()
}

// renderContent renders the main content area based on current view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewActivity:
		return m.renderActivity()
	default:
		return m.renderNotes()
	}
}

func (m Model) contentHeight() int {
	return max(m.height-chromeRows, 3)
}

// Messages

type tickMsg time.Time

type snapshotMsg state.Snapshot

type changedMsg struct{}

type failureMsg archive.Failure

type actionMsg struct {
	op     string
	noteID string
	title  string
	result *actionqueue.Result
	err    error
}

type activityMsg struct {
	entries []logtail.Entry
	err     error
}

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchSnapshotCmd(store *state.Store) tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(store.Snapshot())
	}
}

func waitForFailure(ch <-chan archive.Failure) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		f, ok := <-ch
		if !ok {
			return nil
		}
		return failureMsg(f)
	}
}

func waitForChange(ch <-chan struct{}) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return changedMsg{}
	}
}

func loadActivityCmd(path string) tea.Cmd {
	return func() tea.Msg {
		entries, err := logtail.ReadEntries(path, ActivityTailLines)
		return activityMsg{entries: entries, err: err}
	}
}

// Run starts the Bubble Tea program.
func Run(opts Options) error {
	m := New(opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(m.ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && m.ctx.Err() != nil {
		return nil
	}
	return err
}
