package tui

import "github.com/charmbracelet/lipgloss"

type styles struct {
	Title   lipgloss.Style
	Status  lipgloss.Style
	Help    lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	Error   lipgloss.Style
	Notice  lipgloss.Style
	Spinner lipgloss.Style
	Frame   lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#A0522D")),
		Status:  lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Help:    lipgloss.NewStyle().Foreground(lipgloss.Color("#666666")),
		Label:   lipgloss.NewStyle().Bold(true),
		Value:   lipgloss.NewStyle().Foreground(lipgloss.Color("#2E8B57")),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("#CC3333")),
		Notice:  lipgloss.NewStyle().Foreground(lipgloss.Color("#CC9900")),
		Spinner: lipgloss.NewStyle().Foreground(lipgloss.Color("#A0522D")),
		Frame:   lipgloss.NewStyle().Padding(1, 2),
	}
}
