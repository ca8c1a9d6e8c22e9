package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tunedeck/internal/analysis"
	"github.com/desertthunder/tunedeck/internal/models"
	"github.com/desertthunder/tunedeck/internal/querycache"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgPlaylistsFetched MsgKind = iota
	MsgDetailFetched
	MsgTaskTriggered
	MsgNotification
	MsgNotificationsClosed
	MsgCacheEvent
)

type playlistsResult struct {
	page *models.Page[models.Playlist]
	err  error
}

type detailResult struct {
	id      string
	detail  *models.PlaylistDetail
	summary *analysis.Summary
	err     error
}

type taskResult struct {
	op      models.Operation
	outcome *models.TaskOutcome
	err     error
}

// playlistsFetchedMsg is the constructor for [MsgPlaylistsFetched]
func playlistsFetchedMsg(page *models.Page[models.Playlist], err error) Msg {
	return Msg{kind: MsgPlaylistsFetched, data: playlistsResult{page, err}}
}

// detailFetchedMsg is the constructor for [MsgDetailFetched]
func detailFetchedMsg(id string, detail *models.PlaylistDetail, summary *analysis.Summary, err error) Msg {
	return Msg{kind: MsgDetailFetched, data: detailResult{id, detail, summary, err}}
}

// taskTriggeredMsg is the constructor for [MsgTaskTriggered]
func taskTriggeredMsg(op models.Operation, outcome *models.TaskOutcome, err error) Msg {
	return Msg{kind: MsgTaskTriggered, data: taskResult{op, outcome, err}}
}

// notificationMsg is the constructor for [MsgNotification]
func notificationMsg(m models.Message) Msg {
	return Msg{kind: MsgNotification, data: m}
}

// notificationsClosedMsg is the constructor for [MsgNotificationsClosed]
func notificationsClosedMsg() Msg {
	return Msg{kind: MsgNotificationsClosed}
}

// cacheEventMsg is the constructor for [MsgCacheEvent]
func cacheEventMsg(ev querycache.Event) Msg {
	return Msg{kind: MsgCacheEvent, data: ev}
}
