package cmd

import (
	"strings"

	"github.com/charmbracelet/lipgloss/v2"
)

const maxWidth = 80

var (
	stone      = lipgloss.Color("#7a7a7a")
	granite    = lipgloss.Color("#5f5f5f")
	silver     = lipgloss.Color("#c5c5c5")
	fern       = lipgloss.Color("#6a8e5f")
	terracotta = lipgloss.Color("#c95e52")
	sky        = lipgloss.Color("#669cd6")
	sand       = lipgloss.Color("#d7c08d")
)

type cliStyles struct {
	Title   lipgloss.Style
	Subtle  lipgloss.Style
	Text    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
}

var styles = cliStyles{
	Title:   lipgloss.NewStyle().Foreground(sky).Bold(true),
	Subtle:  lipgloss.NewStyle().Foreground(stone),
	Text:    lipgloss.NewStyle().Foreground(silver),
	Muted:   lipgloss.NewStyle().Foreground(granite),
	Success: lipgloss.NewStyle().Foreground(fern),
	Error:   lipgloss.NewStyle().Foreground(terracotta),
	Warning: lipgloss.NewStyle().Foreground(sand),
}

// section renders a title followed by a rule up to width.
func section(title string, width int) string {
	rendered := styles.Title.Render(title)
	rest := width - lipgloss.Width(rendered) - 1
	if rest <= 0 {
		return rendered
	}
	return rendered + " " + styles.Muted.Render(strings.Repeat("─", rest))
}

// status renders an enabled or failed state.
func status(ok bool, yes, no string) string {
	if ok {
		return styles.Success.Render(yes)
	}
	return styles.Error.Render(no)
}
