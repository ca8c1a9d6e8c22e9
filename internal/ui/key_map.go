package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	up       key.Binding
	down     key.Binding
	enter    key.Binding
	back     key.Binding
	nextPage key.Binding
	prevPage key.Binding
	search   key.Binding
	sort     key.Binding
	order    key.Binding
	owned    key.Binding
	analyzed key.Binding
	sync     key.Binding
	analyze  key.Binding
	refresh  key.Binding
	quit     key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		enter:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
		back:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		nextPage: key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "next page")),
		prevPage: key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "prev page")),
		search:   key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
		sort:     key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "sort")),
		order:    key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "asc/desc")),
		owned:    key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "owned")),
		analyzed: key.NewBinding(key.WithKeys("z"), key.WithHelp("z", "analyzed")),
		sync:     key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "sync")),
		analyze:  key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "analyze")),
		refresh:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down, k.enter, k.back},
		{k.nextPage, k.prevPage, k.search, k.sort, k.order},
		{k.owned, k.analyzed, k.sync, k.analyze, k.refresh, k.quit},
	}
}
