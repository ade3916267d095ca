package theme

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wysstartgo/anycode/internal/model"
)

func TestByName(t *testing.T) {
	assert.Equal(t, "tokyo-night", ByName("tokyo-night").Name)
	assert.Equal(t, FlexokiDark.Name, ByName("nope").Name)

	SetActive("terminal")
	defer SetActive(FlexokiDark.Name)
	assert.Equal(t, Terminal.Name, Active.Name)
}

func TestColours(t *testing.T) {
	th := FlexokiDark
	assert.Equal(t, th.Orange, th.Engine(model.EngineClaude))
	assert.Equal(t, th.Green, th.Engine(model.EngineCodex))
	assert.Equal(t, th.Blue, th.Engine(model.EngineGemini))
	assert.Equal(t, th.Accent, th.Kind(model.KindAssistant))
	assert.Equal(t, th.TextMuted, th.Kind(model.Kind("other")))
}
