package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/wysstartgo/anycode/internal/config"
	"github.com/wysstartgo/anycode/internal/model"
	"github.com/wysstartgo/anycode/internal/tui/theme"
)

// SetupValues are the fields the setup form edits.
type SetupValues struct {
	Engines          []string
	ClaudeDir        string
	CodexDir         string
	GeminiDir        string
	Days             int
	IncludeSubagents bool
	Theme            string
	DaemonAddr       string
}

var daysOptions = []struct {
	label string
	value int
}{
	{"7 days", 7},
	{"30 days", 30},
	{"90 days", 90},
}

// SetupValuesFrom seeds the form from cfg.
func SetupValuesFrom(cfg config.Config) SetupValues {
	engines := cfg.General.Engines
	if len(engines) == 0 {
		for _, e := range model.Engines {
			engines = append(engines, string(e))
		}
	}
	return SetupValues{
		Engines:          engines,
		ClaudeDir:        cfg.Sources.ClaudeDir,
		CodexDir:         cfg.Sources.CodexDir,
		GeminiDir:        cfg.Sources.GeminiDir,
		Days:             cfg.General.DefaultDays,
		IncludeSubagents: cfg.General.IncludeSubagents,
		Theme:            cfg.Appearance.Theme,
		DaemonAddr:       cfg.Daemon.Addr,
	}
}

// Apply writes v into cfg. Blank directories keep the engine default.
func (v SetupValues) Apply(cfg *config.Config) {
	cfg.General.Engines = nil
	if len(v.Engines) < len(model.Engines) {
		cfg.General.Engines = append([]string(nil), v.Engines...)
	}
	cfg.Sources.ClaudeDir = strings.TrimSpace(v.ClaudeDir)
	cfg.Sources.CodexDir = strings.TrimSpace(v.CodexDir)
	cfg.Sources.GeminiDir = strings.TrimSpace(v.GeminiDir)
	if v.Days > 0 {
		cfg.General.DefaultDays = v.Days
	}
	cfg.General.IncludeSubagents = v.IncludeSubagents
	if v.Theme != "" {
		cfg.Appearance.Theme = v.Theme
	}
	if addr := strings.TrimSpace(v.DaemonAddr); addr != "" {
		cfg.Daemon.Addr = addr
	}
}

// NewSetupForm builds the setup wizard. found holds the number of sessions
// discovered per engine and is shown in the engine picker.
func NewSetupForm(found map[model.Engine]int, v *SetupValues) *huh.Form {
	engineOpts := make([]huh.Option[string], 0, len(model.Engines))
	for _, e := range model.Engines {
		label := fmt.Sprintf("%s (%d sessions)", e, found[e])
		engineOpts = append(engineOpts, huh.NewOption(label, string(e)))
	}

	dayOpts := make([]huh.Option[int], 0, len(daysOptions))
	for _, d := range daysOptions {
		dayOpts = append(dayOpts, huh.NewOption(d.label, d.value))
	}

	themeOpts := make([]huh.Option[string], 0, len(theme.All))
	for _, t := range theme.All {
		themeOpts = append(themeOpts, huh.NewOption(t.Name, t.Name))
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Welcome to anycode").
				Description("Usage, cost and live transcripts for Claude Code, Codex and Gemini sessions."),
			huh.NewMultiSelect[string]().
				Title("Engines to report on").
				Options(engineOpts...).
				Validate(func(s []string) error {
					if len(s) == 0 {
						return fmt.Errorf("pick at least one engine")
					}
					return nil
				}).
				Value(&v.Engines),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Claude data directory").
				Placeholder("~/.claude").
				Value(&v.ClaudeDir),
			huh.NewInput().
				Title("Codex data directory").
				Placeholder("~/.codex").
				Value(&v.CodexDir),
			huh.NewInput().
				Title("Gemini data directory").
				Placeholder("~/.gemini").
				Value(&v.GeminiDir),
		),
		huh.NewGroup(
			huh.NewSelect[int]().
				Title("Default time range").
				Options(dayOpts...).
				Value(&v.Days),
			huh.NewConfirm().
				Title("Include sub-agent sessions?").
				Value(&v.IncludeSubagents),
			huh.NewSelect[string]().
				Title("Color theme").
				Options(themeOpts...).
				Value(&v.Theme),
			huh.NewInput().
				Title("Daemon address").
				Placeholder("127.0.0.1:8787").
				Value(&v.DaemonAddr),
		),
	)
}
