package monitor

import "github.com/charmbracelet/lipgloss"

var (
	primaryColor = lipgloss.Color("#A78BFA") // Purple
	mutedColor   = lipgloss.Color("#9CA3AF") // Gray
	accentColor  = lipgloss.Color("#10B981") // Green
	warningColor = lipgloss.Color("#F59E0B") // Amber
	borderColor  = lipgloss.Color("#6B7280") // Gray
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	statusStyle  = lipgloss.NewStyle().Foreground(mutedColor)
	timeStyle    = lipgloss.NewStyle().Foreground(mutedColor)
	nameStyle    = lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	droppedStyle = lipgloss.NewStyle().Foreground(warningColor)
	contentStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(borderColor)
	helpStyle    = lipgloss.NewStyle().Foreground(mutedColor).Italic(true)
)
