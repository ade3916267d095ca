package tui

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wysstartgo/anycode/internal/config"
	"github.com/wysstartgo/anycode/internal/model"
)

func TestSetupValues_RoundTrip(t *testing.T) {
	cfg := config.DefaultConfig()
	v := SetupValuesFrom(cfg)
	assert.Equal(t, []string{"claude", "codex", "gemini"}, v.Engines)
	assert.Equal(t, 30, v.Days)

	v.Engines = []string{"codex"}
	v.CodexDir = "  /data/codex "
	v.Days = 7
	v.Theme = "tokyo-night"
	v.IncludeSubagents = false
	v.Apply(&cfg)

	assert.Equal(t, []string{"codex"}, cfg.General.Engines)
	assert.Equal(t, "/data/codex", cfg.Sources.CodexDir)
	assert.Equal(t, 7, cfg.General.DefaultDays)
	assert.Equal(t, "tokyo-night", cfg.Appearance.Theme)
	assert.False(t, cfg.General.IncludeSubagents)
	assert.Equal(t, "127.0.0.1:8787", cfg.Daemon.Addr)
}

func TestSetupValues_AllEnginesClearsFilter(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.General.Engines = []string{"claude"}
	v := SetupValuesFrom(cfg)
	v.Engines = []string{"claude", "codex", "gemini"}
	v.Apply(&cfg)
	assert.Nil(t, cfg.General.Engines)
}

func TestNewSetupForm(t *testing.T) {
	v := SetupValuesFrom(config.DefaultConfig())
	form := NewSetupForm(map[model.Engine]int{model.EngineClaude: 3}, &v)
	assert.NotNil(t, form)
}
