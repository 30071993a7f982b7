package commands

import "github.com/charmbracelet/lipgloss"

// Terminal styles shared by all commands.
var (
	partialStyle = lipgloss.NewStyle().Faint(true)
	finalStyle   = lipgloss.NewStyle().Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	labelStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff9f"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6e7681"))
)
