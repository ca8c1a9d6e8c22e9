package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunedeck/internal/analysis"
	"github.com/desertthunder/tunedeck/internal/formatter"
	"github.com/desertthunder/tunedeck/internal/library"
	"github.com/desertthunder/tunedeck/internal/listview"
	"github.com/desertthunder/tunedeck/internal/models"
	"github.com/desertthunder/tunedeck/internal/notify"
	"github.com/desertthunder/tunedeck/internal/querycache"
	"github.com/desertthunder/tunedeck/internal/shared"
	"github.com/desertthunder/tunedeck/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	PlaylistListView ViewState = iota
	DetailView
)

const feedSize = 6

// sortKeys are cycled by the sort key; "" is the backend default order.
var sortKeys = []string{"", "name", "track_count", "last_synced_at"}

// Notices is the live notification source. [notify.Channel] implements it.
// Messages are expected in the model's cache under [notify.NotificationKey]
// before they are delivered to subscribers.
type Notices interface {
	Subscribe() (<-chan models.Message, func())
	IDsQuery() querycache.Query
}

// Deps are the collaborators of the TUI.
type Deps struct {
	Queries *library.Queries
	Engine  *tasks.Engine
	Notices Notices // optional
	List    *listview.State
	Logger  *log.Logger
}

// Model represents the TUI application state.
type Model struct {
	ctx     context.Context
	view    ViewState
	queries *library.Queries
	cache   *querycache.Cache
	engine  *tasks.Engine
	state   *listview.State
	logger  *log.Logger
	width   int
	height  int

	playlistList list.Model
	trackList    list.Model
	search       textinput.Model
	searching    bool

	listKey       querycache.Key
	detail        *models.PlaylistDetail
	summary       *analysis.Summary
	detailID      string
	detailLoading bool
	detailStale   bool
	listStale     bool

	source Notices
	feed   []models.Notification
	status string
	err    error

	notices       <-chan models.Message
	cancelNotices func()
	events        <-chan querycache.Event
	cancelEvents  func()

	help help.Model
	keys keyMap
}

// NewModel creates a new TUI model and subscribes to notifications and cache events.
// Call [Model.Close] when the program exits.
func NewModel(ctx context.Context, d Deps) *Model {
	if d.Logger == nil {
		d.Logger = shared.NewLogger(io.Discard)
	}
	if d.List == nil {
		d.List = listview.New(listview.DefaultPageSize)
	}

	playlists := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	playlists.Title = "Playlists"
	playlists.SetFilteringEnabled(false)
	playlists.SetShowHelp(false)
	playlists.DisableQuitKeybindings()

	tracks := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	tracks.SetFilteringEnabled(false)
	tracks.SetShowHelp(false)
	tracks.DisableQuitKeybindings()

	search := textinput.New()
	search.Placeholder = "search playlists"
	search.Prompt = "/ "

	m := &Model{
		ctx:           ctx,
		view:          PlaylistListView,
		queries:       d.Queries,
		cache:         d.Queries.Cache(),
		engine:        d.Engine,
		state:         d.List,
		logger:        d.Logger,
		playlistList:  playlists,
		trackList:     tracks,
		search:        search,
		cancelNotices: func() {},
		help:          help.New(),
		keys:          newKeyMap(),
	}

	m.events, m.cancelEvents = m.cache.Subscribe(querycache.NewKey("browser", string(library.Playlists)))
	if d.Notices != nil {
		m.source = d.Notices
		m.notices, m.cancelNotices = d.Notices.Subscribe()
	}
	return m
}

// Close releases the model's subscriptions.
func (m *Model) Close() {
	m.cancelEvents()
	m.cancelNotices()
}

// Init fetches the first page and starts listening for live updates.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.fetchPlaylists(), m.waitForNotification(), m.waitForCacheEvent())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.playlistList.SetSize(msg.Width-4, max(msg.Height-8-feedSize, 4))
		m.trackList.SetSize(msg.Width-4, max(msg.Height-18-feedSize, 4))
		return m, nil

	case tea.KeyMsg:
		if m.searching {
			return m.handleSearchKeys(msg)
		}
		switch m.view {
		case PlaylistListView:
			return m.handlePlaylistListKeys(msg)
		case DetailView:
			return m.handleDetailKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateLists(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgPlaylistsFetched:
		res := msg.data.(playlistsResult)
		m.state.SetLoading(false)
		var refetch tea.Cmd
		if m.listStale {
			refetch = m.fetchPlaylists()
		}
		if res.err != nil {
			m.err = res.err
			return m, refetch
		}
		m.err = nil
		m.state.SetTotal(res.page.Total)
		m.playlistList.Title = m.listTitle()
		return m, tea.Batch(m.playlistList.SetItems(playlistItems(res.page.Items)), refetch)

	case MsgDetailFetched:
		res := msg.data.(detailResult)
		if res.id != m.detailID {
			return m, nil
		}
		m.detailLoading = false
		var refetch tea.Cmd
		if m.detailStale {
			refetch = m.fetchDetail(res.id)
		}
		if res.err != nil {
			m.err = res.err
			return m, refetch
		}
		m.err = nil
		m.detail = res.detail
		m.summary = res.summary
		m.trackList.Title = fmt.Sprintf("Tracks in '%s'", res.detail.Name)
		m.view = DetailView
		return m, tea.Batch(m.trackList.SetItems(trackItems(res.detail.Tracks)), refetch)

	case MsgTaskTriggered:
		res := msg.data.(taskResult)
		if res.err != nil {
			m.err = res.err
			return m, nil
		}
		m.err = nil
		m.status = fmt.Sprintf("%s requested for %s (task %s)", res.op, res.outcome.PlaylistID, res.outcome.TaskID)
		return m, nil

	case MsgNotification:
		return m, tea.Batch(m.handleNotification(msg.data.(models.Message)), m.waitForNotification())

	case MsgNotificationsClosed:
		m.notices = nil
		m.status = "live updates disconnected"
		return m, nil

	case MsgCacheEvent:
		return m, tea.Batch(m.handleCacheEvent(msg.data.(querycache.Event)), m.waitForCacheEvent())
	}
	return m, nil
}

// handleNotification reloads the feed. A finished task refreshes the visible
// page; the playlist entries themselves are invalidated by the notification
// channel.
func (m *Model) handleNotification(msg models.Message) tea.Cmd {
	m.loadFeed()

	n := msg.Notification
	if n.TaskStatus == models.StatusSuccess && m.listKey != nil {
		m.cache.Invalidate(m.listKey)
	}
	return nil
}

// loadFeed rebuilds the feed from the cached id list, newest first, showing
// each notification once in its latest state.
func (m *Model) loadFeed() {
	if m.source == nil {
		return
	}

	ids, err := querycache.FetchAs[[]string](m.ctx, m.cache, m.source.IDsQuery())
	if err != nil {
		m.logger.Debug("notification ids unavailable", "error", err)
		return
	}

	seen := make(map[string]bool, feedSize)
	feed := make([]models.Notification, 0, feedSize)
	for i := len(ids) - 1; i >= 0 && len(feed) < feedSize; i-- {
		if seen[ids[i]] {
			continue
		}
		seen[ids[i]] = true

		msg, ok := querycache.GetAs[models.Message](m.cache, notify.NotificationKey(ids[i]))
		if !ok || msg.Notification == nil {
			continue
		}
		feed = append(feed, *msg.Notification)
	}
	m.feed = feed
}

// handleCacheEvent refetches whatever is on screen when its entry is
// invalidated. An invalidation that arrives while that view is loading is
// replayed once the load finishes.
func (m *Model) handleCacheEvent(ev querycache.Event) tea.Cmd {
	switch ev.Kind {
	case querycache.EventInvalidated:
		if m.detailID != "" && ev.Key.HasPrefix(library.PlaylistKey(m.detailID)) {
			if m.detailLoading {
				m.detailStale = true
				return nil
			}
			return m.fetchDetail(m.detailID)
		}
		if m.listKey != nil && ev.Key.Equal(m.listKey) {
			if m.state.Loading() {
				m.listStale = true
				return nil
			}
			return m.fetchPlaylists()
		}
	case querycache.EventReset:
		return m.fetchPlaylists()
	}
	return nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	var body string
	switch m.view {
	case DetailView:
		body = m.renderDetail()
	default:
		body = m.renderPlaylistList()
	}
	return fmt.Sprintf("%s\n%s\n%s", body, m.renderStatus(), m.renderFeed())
}

func (m *Model) handlePlaylistListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.enter):
		if pl, ok := m.selectedPlaylist(); ok {
			m.detail, m.summary = nil, nil
			return m, m.fetchDetail(pl.ID)
		}
		return m, nil
	case key.Matches(msg, m.keys.nextPage):
		if m.state.NextPage() {
			return m, m.fetchPlaylists()
		}
		return m, nil
	case key.Matches(msg, m.keys.prevPage):
		if m.state.PrevPage() {
			return m, m.fetchPlaylists()
		}
		return m, nil
	case key.Matches(msg, m.keys.search):
		m.searching = true
		m.search.SetValue(m.filterValue("search"))
		return m, m.search.Focus()
	case key.Matches(msg, m.keys.sort):
		m.cycleSort()
		return m, m.fetchPlaylists()
	case key.Matches(msg, m.keys.order):
		sortKey, dir := m.state.Sort()
		if sortKey == "" {
			return m, nil
		}
		m.state.SetSort(sortKey, toggleDirection(dir))
		return m, m.fetchPlaylists()
	case key.Matches(msg, m.keys.owned):
		m.toggleFilter("owned")
		return m, m.fetchPlaylists()
	case key.Matches(msg, m.keys.analyzed):
		m.toggleFilter("analyzed")
		return m, m.fetchPlaylists()
	case key.Matches(msg, m.keys.refresh):
		if m.listKey != nil {
			m.cache.Invalidate(m.listKey)
		}
		return m, nil
	case key.Matches(msg, m.keys.sync):
		if pl, ok := m.selectedPlaylist(); ok {
			return m, m.trigger(pl.ID, models.OperationSync)
		}
		return m, nil
	case key.Matches(msg, m.keys.analyze):
		if pl, ok := m.selectedPlaylist(); ok {
			return m, m.trigger(pl.ID, models.OperationAnalyze)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.playlistList, cmd = m.playlistList.Update(msg)
	return m, cmd
}

func (m *Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = PlaylistListView
		m.detailID = ""
		m.detail, m.summary = nil, nil
		return m, nil
	case key.Matches(msg, m.keys.refresh):
		m.cache.Invalidate(library.PlaylistKey(m.detailID))
		return m, nil
	case key.Matches(msg, m.keys.sync):
		return m, m.trigger(m.detailID, models.OperationSync)
	case key.Matches(msg, m.keys.analyze):
		return m, m.trigger(m.detailID, models.OperationAnalyze)
	}

	var cmd tea.Cmd
	m.trackList, cmd = m.trackList.Update(msg)
	return m, cmd
}

func (m *Model) handleSearchKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.searching = false
		m.search.Blur()
		m.state.SetString("search", strings.TrimSpace(m.search.Value()))
		return m, m.fetchPlaylists()
	case tea.KeyEsc:
		m.searching = false
		m.search.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	return m, cmd
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case PlaylistListView:
		m.playlistList, cmd = m.playlistList.Update(msg)
	case DetailView:
		m.trackList, cmd = m.trackList.Update(msg)
	}
	return m, cmd
}

func (m *Model) selectedPlaylist() (models.Playlist, bool) {
	if item, ok := m.playlistList.SelectedItem().(playlistItem); ok {
		return item.playlist, true
	}
	return models.Playlist{}, false
}

func (m *Model) filterValue(name string) string {
	v, _ := m.state.Filter(name)
	return v
}

func (m *Model) toggleFilter(name string) {
	if _, ok := m.state.Filter(name); ok {
		m.state.ClearFilter(name)
		return
	}
	m.state.SetBool(name, true)
}

func (m *Model) cycleSort() {
	current, dir := m.state.Sort()
	next := sortKeys[0]
	for i, k := range sortKeys {
		if k == current {
			next = sortKeys[(i+1)%len(sortKeys)]
			break
		}
	}
	if dir == "" {
		dir = listview.Asc
	}
	m.state.SetSort(next, dir)
}

func toggleDirection(d listview.Direction) listview.Direction {
	if d == listview.Desc {
		return listview.Asc
	}
	return listview.Desc
}

// fetchPlaylists snapshots the list parameters here so the command goroutine
// never touches the list state.
func (m *Model) fetchPlaylists() tea.Cmd {
	query := m.queries.PlaylistsQuery(m.state)
	m.listKey = query.Key
	m.state.SetLoading(true)
	m.listStale = false
	ctx, cache := m.ctx, m.cache

	return func() tea.Msg {
		page, err := querycache.FetchAs[*models.Page[models.Playlist]](ctx, cache, query)
		return playlistsFetchedMsg(page, err)
	}
}

// fetchDetail loads the playlist and, when available, its analysis.
// A missing analysis is not an error.
func (m *Model) fetchDetail(id string) tea.Cmd {
	m.detailID = id
	m.detailLoading = true
	m.detailStale = false
	ctx, queries, logger := m.ctx, m.queries, m.logger

	return func() tea.Msg {
		detail, err := queries.FetchPlaylist(ctx, id)
		if err != nil {
			return detailFetchedMsg(id, nil, nil, err)
		}

		var summary *analysis.Summary
		if detail.Analyzed {
			a, err := queries.FetchAnalysis(ctx, id)
			if err == nil {
				summary, err = analysis.Summarize(a, analysis.DefaultBuckets)
			}
			if err != nil {
				logger.Warn("analysis unavailable", "playlist_id", id, "error", err)
			}
		}
		return detailFetchedMsg(id, detail, summary, nil)
	}
}

func (m *Model) trigger(id string, op models.Operation) tea.Cmd {
	if id == "" {
		return nil
	}
	m.status = fmt.Sprintf("requesting %s for %s...", op, id)
	ctx, engine := m.ctx, m.engine

	return func() tea.Msg {
		outcome, err := engine.Run(ctx, nil, id, op, tasks.RunOpts{})
		return taskTriggeredMsg(op, outcome, err)
	}
}

func (m *Model) waitForNotification() tea.Cmd {
	notices := m.notices
	if notices == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-notices
		if !ok {
			return notificationsClosedMsg()
		}
		return notificationMsg(msg)
	}
}

func (m *Model) waitForCacheEvent() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return cacheEventMsg(ev)
	}
}

func (m *Model) listTitle() string {
	title := fmt.Sprintf("Playlists • page %d/%d • %d total", m.state.Page(), m.state.PageCount(), m.state.Total())
	var flags []string
	if v := m.filterValue("search"); v != "" {
		flags = append(flags, fmt.Sprintf("search=%q", v))
	}
	for _, name := range []string{"owned", "analyzed"} {
		if _, ok := m.state.Filter(name); ok {
			flags = append(flags, name)
		}
	}
	if sortKey, dir := m.state.Sort(); sortKey != "" {
		flags = append(flags, fmt.Sprintf("sort=%s %s", sortKey, dir))
	}
	if len(flags) > 0 {
		title += " • " + strings.Join(flags, ", ")
	}
	return title
}

func (m *Model) renderPlaylistList() string {
	helpKeys := []key.Binding{
		m.keys.enter, m.keys.nextPage, m.keys.prevPage, m.keys.search, m.keys.sort,
		m.keys.owned, m.keys.analyzed, m.keys.sync, m.keys.analyze, m.keys.quit,
	}
	helpView := m.help.ShortHelpView(helpKeys)

	out := m.playlistList.View()
	if m.searching {
		out = fmt.Sprintf("%s\n%s", out, m.search.View())
	}
	return fmt.Sprintf("%s\n\n%s", out, helpView)
}

func (m *Model) renderDetail() string {
	if m.detail == nil {
		return styles.help.Render("Loading playlist...")
	}

	title := styles.title.Render(m.detail.Name)
	info := fmt.Sprintf("%d tracks • %s", len(m.detail.Tracks), shared.VisibilityString(m.detail.Public))
	if m.detail.Owner != "" {
		info += " • " + m.detail.Owner
	}

	helpKeys := []key.Binding{m.keys.sync, m.keys.analyze, m.keys.refresh, m.keys.back, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	return fmt.Sprintf("%s\n%s\n\n%s\n%s\n\n%s", title, info, m.renderStats(), m.trackList.View(), helpView)
}

func (m *Model) renderStats() string {
	if m.summary == nil || m.summary.Tracks == 0 {
		return styles.panel.Render(styles.help.Render("Not analyzed yet. Press a to analyze."))
	}

	var sb strings.Builder
	for _, st := range m.summary.Features {
		fmt.Fprintf(&sb, "%-17s %8.3f  %s\n", st.Feature, st.Mean, formatter.Sparkline(st.Histogram))
	}
	fmt.Fprintf(&sb, "%-17s %7.0f%%", "major key", m.summary.MajorRatio*100)
	return styles.panel.Render(sb.String())
}

func (m *Model) renderStatus() string {
	switch {
	case m.err != nil && errors.Is(m.err, shared.ErrNotAuthenticated):
		return styles.err.Render("Not logged in. Run `tunedeck login` first.")
	case m.err != nil:
		return styles.err.Render(fmt.Sprintf("Error: %v", m.err))
	case m.state.Loading() || m.detailLoading:
		return styles.help.Render("Loading...")
	case m.status != "":
		return styles.ok.Render(m.status)
	}
	return ""
}

func (m *Model) renderFeed() string {
	if len(m.feed) == 0 {
		return styles.help.Render("No task notifications yet.")
	}

	lines := make([]string, 0, len(m.feed))
	for _, n := range m.feed {
		line := fmt.Sprintf("%s %s", styles.status(n.TaskStatus), n.TaskID)
		if t := n.Extras.TaskType(); t != "" {
			line += " " + t
		}
		if id := n.Extras.PlaylistID(); id != "" {
			line += " → " + id
		}
		lines = append(lines, line)
	}
	return styles.panel.Render(strings.Join(lines, "\n"))
}
