package ui

import "github.com/charmbracelet/lipgloss"

var (
	// Color palette
	colorPrimary = lipgloss.Color("#00BFFF")
	colorWarning = lipgloss.Color("#FFD93D")
	colorMuted   = lipgloss.Color("#6C757D")
	colorBorder  = lipgloss.Color("#4A90E2")
	colorHigh    = lipgloss.Color("#87CEEB")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().
			Padding(0, 1)

	highStyle = cellStyle.
			Foreground(colorHigh)

	borderStyle = lipgloss.NewStyle().
			Foreground(colorBorder)

	warningStyle = lipgloss.NewStyle().
			Foreground(colorWarning)

	mutedStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorMuted)
)
