// Package ui implements an interactive terminal browser using bubbletea's Elm architecture.
//
// The TUI has two views:
//  1. [PlaylistListView] : server-paginated playlists with search, sort and filters
//  2. [DetailView] : a playlist's tracks and, once analyzed, its audio feature stats
//
// The (view) [Model] implements the standard Init/Update/View pattern and receives work results
// through the Msg union type. Every fetch goes through the query cache, and the model subscribes
// to cache events so an invalidated page or playlist is refetched while it is on screen.
// Task notifications arrive from the live channel, show up in a short feed and trigger those
// invalidations when a task finishes.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, n/p, q) with contextual help
// displayed via charmbracelet/bubbles/help.
package ui
