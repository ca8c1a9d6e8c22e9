package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/tunedeck/internal/models"
)

// Theme names the colors of the interface. Each color has a light and a dark
// terminal variant.
type Theme struct {
	Accent  lipgloss.AdaptiveColor
	Success lipgloss.AdaptiveColor
	Failure lipgloss.AdaptiveColor
	Pending lipgloss.AdaptiveColor
	Muted   lipgloss.AdaptiveColor
}

// DefaultTheme is the purple accent theme.
var DefaultTheme = Theme{
	Accent:  lipgloss.AdaptiveColor{Light: "#5A3FC0", Dark: "#7D56F4"},
	Success: lipgloss.AdaptiveColor{Light: "#02804F", Dark: "#04B575"},
	Failure: lipgloss.AdaptiveColor{Light: "#C00000", Dark: "#FF4040"},
	Pending: lipgloss.AdaptiveColor{Light: "#B36B00", Dark: "#FFA500"},
	Muted:   lipgloss.AdaptiveColor{Light: "#8A8A8A", Dark: "#626262"},
}

var styles = NewPalette(DefaultTheme)

// Palette is the set of styles rendered by the views.
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
	panel lipgloss.Style
}

func NewPalette(t Theme) *Palette {
	return &Palette{
		title: lipgloss.NewStyle().Foreground(t.Accent).Bold(true).MarginBottom(1),
		ok:    lipgloss.NewStyle().Foreground(t.Success).Bold(true),
		err:   lipgloss.NewStyle().Foreground(t.Failure).Bold(true),
		warn:  lipgloss.NewStyle().Foreground(t.Pending),
		help:  lipgloss.NewStyle().Foreground(t.Muted).Italic(true),
		panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(t.Muted).
			Padding(0, 1),
	}
}

// status colors a task status the way the feed shows it.
func (p *Palette) status(s string) string {
	switch s {
	case models.StatusSuccess:
		return p.ok.Render(s)
	case models.StatusFailure, models.StatusRevoked:
		return p.err.Render(s)
	case models.StatusStarted, models.StatusRetry:
		return p.warn.Render(s)
	default:
		return p.help.Render(s)
	}
}
