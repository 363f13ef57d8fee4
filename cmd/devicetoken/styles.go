package main

import "github.com/charmbracelet/lipgloss"

var (
	colorTitle   = lipgloss.Color("#22C55E")
	colorAccent  = lipgloss.Color("#06B6D4")
	colorWarning = lipgloss.Color("#EAB308")
	colorError   = lipgloss.Color("#EF4444")
	colorMuted   = lipgloss.Color("#6B7280")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorTitle)
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	keyStyle     = lipgloss.NewStyle().Foreground(colorWarning)
	labelStyle   = lipgloss.NewStyle().Foreground(colorAccent)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	errorStyle   = lipgloss.NewStyle().Foreground(colorError)
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(colorTitle)

	codeStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#7C3AED")).
			Padding(0, 1)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorWarning).
			Padding(0, 2)

	tokenLabelStyle = lipgloss.NewStyle().Bold(true).Underline(true).Foreground(colorTitle)
)
