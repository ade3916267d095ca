package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/wysstartgo/anycode/internal/tui/theme"
)

// RenderStatusBar renders the bottom status bar: key hints on the left and
// right-aligned session facts.
func RenderStatusBar(width int, hints string, facts ...string) string {
	t := theme.Active

	style := lipgloss.NewStyle().
		Foreground(t.TextMuted).
		Width(width)

	left := " " + hints
	right := strings.Join(facts, " · ")
	if right != "" {
		right += " "
	}

	padding := max(width-lipgloss.Width(left)-lipgloss.Width(right), 1)
	return style.Render(left + strings.Repeat(" ", padding) + right)
}

// RenderBadge renders a short coloured label such as an engine name.
func RenderBadge(label string, color lipgloss.Color) string {
	return lipgloss.NewStyle().
		Foreground(color).
		Bold(true).
		Render("[" + label + "]")
}
