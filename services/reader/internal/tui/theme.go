package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/example/pagemark/services/reader/internal/prefs"
)

type palette struct {
	Paper  string
	Ink    string
	Muted  string
	Border string
	Accent string
	Danger string
	Ok     string
}

var palettes = map[prefs.Theme]palette{
	prefs.ThemeLight: {Paper: "#FAFAFA", Ink: "#1F2328", Muted: "#6E7781", Border: "#D0D7DE", Accent: "#0969DA", Danger: "#CF222E", Ok: "#1A7F37"},
	prefs.ThemeDark:  {Paper: "#0D1117", Ink: "#E6EDF3", Muted: "#8B949E", Border: "#30363D", Accent: "#58A6FF", Danger: "#F85149", Ok: "#3FB950"},
	prefs.ThemeSepia: {Paper: "#F4ECD8", Ink: "#5B4636", Muted: "#8A7560", Border: "#C8B79E", Accent: "#9C5B2E", Danger: "#A8322D", Ok: "#5C7A29"},
}

type styles struct {
	Page   lipgloss.Style
	Title  lipgloss.Style
	Status lipgloss.Style
	Muted  lipgloss.Style
	Accent lipgloss.Style
	Error  lipgloss.Style
	Ok     lipgloss.Style
}

func stylesFor(t prefs.Theme) styles {
	p, ok := palettes[t]
	if !ok {
		p = palettes[prefs.ThemeLight]
	}
	return styles{
		Page: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(p.Border)).
			Background(lipgloss.Color(p.Paper)).
			Foreground(lipgloss.Color(p.Ink)).
			Align(lipgloss.Center, lipgloss.Center),
		Title: lipgloss.NewStyle().
			Foreground(lipgloss.Color(p.Accent)).
			Bold(true),
		Status: lipgloss.NewStyle().
			Foreground(lipgloss.Color(p.Ink)),
		Muted: lipgloss.NewStyle().
			Foreground(lipgloss.Color(p.Muted)),
		Accent: lipgloss.NewStyle().
			Foreground(lipgloss.Color(p.Accent)),
		Error: lipgloss.NewStyle().
			Foreground(lipgloss.Color(p.Danger)).
			Bold(true),
		Ok: lipgloss.NewStyle().
			Foreground(lipgloss.Color(p.Ok)),
	}
}
