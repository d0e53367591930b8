// Package cli renders styled terminal output for the txnflow commands.
package cli

import (
	"github.com/charmbracelet/lipgloss"
)

const (
	colorAccent = lipgloss.Color("#5FAFFF")
	colorOK     = lipgloss.Color("#4ECDC4")
	colorWarn   = lipgloss.Color("#FFE66D")
	colorFail   = lipgloss.Color("#FF6B6B")
	colorMuted  = lipgloss.Color("#666666")
	colorBorder = lipgloss.Color("#333")
)

const (
	iconOK       = "✓"
	iconFail     = "✗"
	iconWarn     = "⚠️"
	iconPipeline = "🔁"
	iconChart    = "📊"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	okStyle    = lipgloss.NewStyle().Foreground(colorOK)
	warnStyle  = lipgloss.NewStyle().Foreground(colorWarn)
	failStyle  = lipgloss.NewStyle().Foreground(colorFail)
	mutedStyle = lipgloss.NewStyle().Foreground(colorMuted)
	boldStyle  = lipgloss.NewStyle().Bold(true)

	// Dashboard panels and tables.
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 2)
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(colorBorder)
	cellStyle = lipgloss.NewStyle().PaddingRight(2)
)

// FormatSuccess formats a success message with icon.
func FormatSuccess(message string) string {
	return okStyle.Render(iconOK + " " + message)
}

// FormatError formats an error message with icon.
func FormatError(message string) string {
	return failStyle.Render(iconFail + " " + message)
}

// FormatWarning formats a warning message with icon.
func FormatWarning(message string) string {
	return warnStyle.Render(iconWarn + " " + message)
}

// FormatTitle formats a section title followed by a blank line.
func FormatTitle(title string) string {
	return titleStyle.MarginBottom(1).Render(iconPipeline + " " + title)
}

// FormatPrompt formats a question awaiting input.
func FormatPrompt(prompt string) string {
	return titleStyle.Render(prompt + " → ")
}

func renderPanel(title, content string) string {
	return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render(title), content))
}
