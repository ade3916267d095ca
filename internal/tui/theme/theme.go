// Package theme holds the colour palettes of the session viewer.
package theme

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/wysstartgo/anycode/internal/model"
)

// Theme maps the viewer's colour roles to one palette.
type Theme struct {
	Name        string
	Border      lipgloss.Color // Subtle borders
	TextDim     lipgloss.Color // Lowest contrast text (hints, disabled)
	TextMuted   lipgloss.Color // Secondary text (labels, metadata)
	TextPrimary lipgloss.Color // Primary content text
	Accent      lipgloss.Color // Primary accent (links, active states)
	Green       lipgloss.Color
	Orange      lipgloss.Color
	Red         lipgloss.Color
	Blue        lipgloss.Color
	Yellow      lipgloss.Color
	Magenta     lipgloss.Color
}

// Active is the currently selected theme.
var Active = FlexokiDark

// FlexokiDark is the default theme - warm, paper-inspired dark theme.
var FlexokiDark = Theme{
	Name:        "flexoki-dark",
	Border:      lipgloss.Color("#403E3C"),
	TextDim:     lipgloss.Color("#575653"),
	TextMuted:   lipgloss.Color("#878580"),
	TextPrimary: lipgloss.Color("#FFFCF0"),
	Accent:      lipgloss.Color("#3AA99F"),
	Green:       lipgloss.Color("#879A39"),
	Orange:      lipgloss.Color("#DA702C"),
	Red:         lipgloss.Color("#D14D41"),
	Blue:        lipgloss.Color("#4385BE"),
	Yellow:      lipgloss.Color("#D0A215"),
	Magenta:     lipgloss.Color("#CE5D97"),
}

// CatppuccinMocha is a warm pastel theme with soft, soothing colors.
var CatppuccinMocha = Theme{
	Name:        "catppuccin-mocha",
	Border:      lipgloss.Color("#585B70"),
	TextDim:     lipgloss.Color("#6C7086"),
	TextMuted:   lipgloss.Color("#A6ADC8"),
	TextPrimary: lipgloss.Color("#CDD6F4"),
	Accent:      lipgloss.Color("#89B4FA"),
	Green:       lipgloss.Color("#A6E3A1"),
	Orange:      lipgloss.Color("#FAB387"),
	Red:         lipgloss.Color("#F38BA8"),
	Blue:        lipgloss.Color("#89B4FA"),
	Yellow:      lipgloss.Color("#F9E2AF"),
	Magenta:     lipgloss.Color("#F5C2E7"),
}

// TokyoNight is a cool blue/purple theme inspired by Tokyo city lights.
var TokyoNight = Theme{
	Name:        "tokyo-night",
	Border:      lipgloss.Color("#565F89"),
	TextDim:     lipgloss.Color("#565F89"),
	TextMuted:   lipgloss.Color("#A9B1D6"),
	TextPrimary: lipgloss.Color("#C0CAF5"),
	Accent:      lipgloss.Color("#7AA2F7"),
	Green:       lipgloss.Color("#9ECE6A"),
	Orange:      lipgloss.Color("#FF9E64"),
	Red:         lipgloss.Color("#F7768E"),
	Blue:        lipgloss.Color("#7AA2F7"),
	Yellow:      lipgloss.Color("#E0AF68"),
	Magenta:     lipgloss.Color("#BB9AF7"),
}

// Terminal uses ANSI 16 colors only - maximum compatibility.
var Terminal = Theme{
	Name:        "terminal",
	Border:      lipgloss.Color("8"),
	TextDim:     lipgloss.Color("8"),
	TextMuted:   lipgloss.Color("7"),
	TextPrimary: lipgloss.Color("15"),
	Accent:      lipgloss.Color("6"),
	Green:       lipgloss.Color("2"),
	Orange:      lipgloss.Color("3"),
	Red:         lipgloss.Color("1"),
	Blue:        lipgloss.Color("4"),
	Yellow:      lipgloss.Color("3"),
	Magenta:     lipgloss.Color("5"),
}

// All available themes.
var All = []Theme{FlexokiDark, CatppuccinMocha, TokyoNight, Terminal}

// ByName returns a theme by its name, defaulting to FlexokiDark.
func ByName(name string) Theme {
	for _, t := range All {
		if t.Name == name {
			return t
		}
	}
	return FlexokiDark
}

// SetActive sets the active theme by name.
func SetActive(name string) {
	Active = ByName(name)
}

// Engine returns the colour used to tag sessions of e.
func (t Theme) Engine(e model.Engine) lipgloss.Color {
	switch e {
	case model.EngineCodex:
		return t.Green
	case model.EngineGemini:
		return t.Blue
	}
	return t.Orange
}

// Kind returns the header colour for messages of kind k.
func (t Theme) Kind(k model.Kind) lipgloss.Color {
	switch k {
	case model.KindUser:
		return t.Blue
	case model.KindAssistant:
		return t.Accent
	case model.KindSystem:
		return t.Yellow
	case model.KindResult:
		return t.Green
	case model.KindThinking:
		return t.Magenta
	case model.KindToolUse:
		return t.Orange
	}
	return t.TextMuted
}
