package tui

import "github.com/charmbracelet/lipgloss"

// Colors and reusable styles for the session list.
var (
	colorNormal  = lipgloss.Color("#22c55e")
	colorWarning = lipgloss.Color("#d97706")
	colorError   = lipgloss.Color("#dc2626")
	colorBright  = lipgloss.Color("#f9fafb")
	colorDimmed  = lipgloss.Color("#6b7280")
	colorBorder  = lipgloss.Color("#4b5563")
	colorCurrent = lipgloss.Color("#3b82f6")

	styleTitle = lipgloss.NewStyle().Bold(true).Foreground(colorBright)

	styleSelected = lipgloss.NewStyle().Bold(true).Foreground(colorBright)
	styleRow      = lipgloss.NewStyle()
	styleCurrent  = lipgloss.NewStyle().Foreground(colorCurrent)
	styleDimmed   = lipgloss.NewStyle().Foreground(colorDimmed)

	styleHelp = lipgloss.NewStyle().Foreground(colorDimmed)

	styleErrorBox = lipgloss.NewStyle().
			Padding(1, 2).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(colorError)
)
