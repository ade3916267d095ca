package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wysstartgo/anycode/internal/model"
)

func TestSessionRefEngineFlag(t *testing.T) {
	defer func(prev []string) { flagEngines = prev }(flagEngines)

	flagEngines = nil
	ref, err := sessionRef("abc")
	require.NoError(t, err)
	assert.Equal(t, model.SessionRef{SessionID: "abc"}, ref)

	flagEngines = []string{"codex"}
	ref, err = sessionRef("abc")
	require.NoError(t, err)
	assert.Equal(t, model.EngineCodex, ref.Engine)

	flagEngines = []string{"codex", "gemini"}
	ref, err = sessionRef("abc")
	require.NoError(t, err)
	assert.Empty(t, ref.Engine)

	flagEngines = []string{"cursor"}
	_, err = sessionRef("abc")
	assert.Error(t, err)
}

func TestFilterProcs(t *testing.T) {
	now := time.Now()
	procs := []model.Process{
		{SessionID: "a", Engine: model.EngineClaude, LastActivity: now},
		{SessionID: "b", Engine: model.EngineCodex, LastActivity: now},
	}

	got := filterProcs(procs, []model.Engine{model.EngineCodex})
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].SessionID)
	assert.Len(t, procs, 2)
}
