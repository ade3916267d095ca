package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/wysstartgo/anycode/internal/model"
	"github.com/wysstartgo/anycode/internal/tui/theme"
)

// styles are built from theme.Active on every render so the configured
// theme applies to reports as well as the viewer.
type styles struct {
	title    lipgloss.Style
	header   lipgloss.Style
	value    lipgloss.Style
	muted    lipgloss.Style
	dim      lipgloss.Style
	border   lipgloss.Color
	cost     lipgloss.Style
	token    lipgloss.Style
	warn     lipgloss.Style
	fail     lipgloss.Style
	tool     lipgloss.Style
	thinking lipgloss.Style
	group    lipgloss.Style
}

func palette() styles {
	t := theme.Active
	fg := func(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }
	return styles{
		title:    fg(t.TextPrimary).Bold(true).Align(lipgloss.Center),
		header:   fg(t.Accent).Bold(true),
		value:    fg(t.TextPrimary),
		muted:    fg(t.TextMuted),
		dim:      fg(t.TextDim),
		border:   t.Border,
		cost:     fg(t.Green),
		token:    fg(t.Blue),
		warn:     fg(t.Orange),
		fail:     fg(t.Red),
		tool:     fg(t.Orange),
		thinking: fg(t.TextDim).Italic(true),
		group:    fg(t.Magenta).Bold(true),
	}
}

func (s styles) kind(k model.Kind) lipgloss.Style {
	if !k.Valid() {
		return s.header
	}
	return lipgloss.NewStyle().Bold(true).Foreground(theme.Active.Kind(k))
}
