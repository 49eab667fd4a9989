package tui

import "github.com/charmbracelet/lipgloss"

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("252")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("240"))

	rowStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	selectedRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57"))

	upStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))  // green
	downStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")) // red
	flatStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")) // grey

	statusStyle = lipgloss.NewStyle().Faint(true)
)
