package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	navStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(7)

	selectedLabelStyle = labelStyle.
				Bold(true).
				Foreground(lipgloss.Color("212"))

	videoBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")) // blue

	audioBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("78")) // green

	failedBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red
)
