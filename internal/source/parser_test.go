package source

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wysstartgo/anycode/internal/model"
)

// parseLines writes lines as a session log for engine and parses it.
func parseLines(t *testing.T, engine model.Engine, lines ...string) ParseResult {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.jsonl")
	body := strings.Join(lines, "\n")
	if len(lines) > 0 {
		body += "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	res := ParseFile(DiscoveredFile{
		Path:      path,
		Engine:    engine,
		SessionID: "s1",
		Project:   "demo",
	})
	require.NoError(t, res.Err)
	return res
}

func userLine(ts, text string) string {
	return `{"type":"user","timestamp":"` + ts + `","message":{"role":"user","content":"` + text + `"}}`
}

func TestParseFile_Prompts(t *testing.T) {
	res := parseLines(t, model.EngineClaude,
		`{"type":"user","timestamp":"2025-06-01T10:00:00Z","cwd":"/tmp/proj","message":{"role":"user","content":"hi"}}`,
		userLine("2025-06-01T10:05:00Z", "next"),
		userLine("2025-06-01T10:10:00Z", "again"),
		`{"type":"user","timestamp":"2025-06-01T10:11:00Z","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"t1","content":"ok"}]}}`,
	)

	assert.Equal(t, 3, res.Stats.UserMessages, "tool results are not prompts")
	assert.Equal(t, "/tmp/proj", res.Stats.ProjectPath)
	assert.Equal(t, "demo", res.Stats.Project)
}

func TestParseFile_StreamedSnapshotsBillOnce(t *testing.T) {
	res := parseLines(t, model.EngineClaude,
		`{"type":"assistant","timestamp":"2025-06-01T10:00:00Z","message":{"id":"msg1","model":"claude-sonnet-4-6-20250514","usage":{"input_tokens":100,"output_tokens":50}}}`,
		`{"type":"assistant","timestamp":"2025-06-01T10:00:01Z","message":{"id":"msg1","model":"claude-sonnet-4-6-20250514","usage":{"input_tokens":200,"output_tokens":80}}}`,
	)

	s := res.Stats
	assert.Equal(t, 1, s.APICalls)
	assert.EqualValues(t, 200, s.InputTokens)
	assert.EqualValues(t, 80, s.OutputTokens)
	assert.Equal(t, 1, res.Ledger.Count)
	require.Contains(t, s.Models, "claude-sonnet-4-6")
	assert.Equal(t, 1, s.Models["claude-sonnet-4-6"].APICalls)
}

func TestParseFile_Duration(t *testing.T) {
	t.Run("span", func(t *testing.T) {
		res := parseLines(t, model.EngineClaude,
			userLine("2025-06-01T08:00:00Z", "a"),
			userLine("2025-06-01T12:00:00Z", "b"),
			userLine("2025-06-01T10:00:00Z", "c"),
		)
		assert.True(t, res.Stats.StartTime.Equal(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)))
		assert.True(t, res.Stats.EndTime.Equal(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)))
		assert.EqualValues(t, 4*3600, res.Stats.DurationSecs)
	})

	t.Run("turn timings win", func(t *testing.T) {
		res := parseLines(t, model.EngineClaude,
			userLine("2025-06-01T08:00:00Z", "a"),
			`{"type":"system","subtype":"turn_duration","timestamp":"2025-06-01T10:00:00Z","durationMs":5000}`,
			`{"type":"system","subtype":"turn_duration","timestamp":"2025-06-01T10:01:00Z","durationMs": 3000}`,
		)
		assert.EqualValues(t, 8, res.Stats.DurationSecs)
	})
}

func TestParseFile_EmptyAndMalformed(t *testing.T) {
	empty := parseLines(t, model.EngineClaude)
	assert.Zero(t, empty.Stats.UserMessages)
	assert.Zero(t, empty.Stats.APICalls)
	assert.Zero(t, empty.Stats.DurationSecs)

	res := parseLines(t, model.EngineClaude,
		`not json at all`,
		userLine("2025-06-01T10:00:00Z", "hello"),
		`{"type":"assistant","broken json`,
	)
	assert.Equal(t, 1, res.Stats.UserMessages)
	assert.Equal(t, 1, res.ParseErrors)
}

func TestParseFile_CacheHitRate(t *testing.T) {
	res := parseLines(t, model.EngineClaude,
		`{"type":"assistant","timestamp":"2025-06-01T10:00:00Z","message":{"id":"msg1","model":"claude-sonnet-4-6","usage":{"input_tokens":100,"output_tokens":50,"cache_read_input_tokens":500,"cache_creation_input_tokens":400}}}`,
	)

	s := res.Stats
	assert.EqualValues(t, 500, s.CacheReadTokens)
	assert.EqualValues(t, 400, s.CacheCreationTokens)
	assert.InDelta(t, 0.5, s.CacheHitRate, 1e-9)
}

func TestParseFile_Codex(t *testing.T) {
	res := parseLines(t, model.EngineCodex,
		`{"timestamp":"2025-09-01T10:00:00Z","type":"session_meta","payload":{"id":"0199a","cwd":"/work/api"}}`,
		`{"timestamp":"2025-09-01T10:00:01Z","type":"turn_context","payload":{"model":"gpt-5-codex"}}`,
		`{"timestamp":"2025-09-01T10:00:02Z","type":"response_item","payload":{"type":"message","role":"user","content":[{"type":"input_text","text":"fix the bug"}]}}`,
		`{"timestamp":"2025-09-01T10:00:05Z","type":"event_msg","payload":{"type":"token_count","info":{"total_token_usage":{"input_tokens":1000,"output_tokens":100,"total_tokens":1100},"last_token_usage":{"input_tokens":1000,"output_tokens":100,"total_tokens":1100}}}}`,
	)

	s := res.Stats
	assert.Equal(t, model.EngineCodex, s.Engine)
	assert.Equal(t, 1, s.APICalls)
	assert.EqualValues(t, 1000, s.InputTokens)
	assert.EqualValues(t, 100, s.OutputTokens)
	assert.Equal(t, 1, s.UserMessages)
	assert.Equal(t, "/work/api", s.ProjectPath)
	assert.Positive(t, s.EstimatedCost)
}

func TestFieldHelpers(t *testing.T) {
	line := []byte(`{"cwd": "/a/b","durationMs":  1250,"name":"x"}`)

	assert.Equal(t, "/a/b", stringField(line, "cwd"))
	assert.Equal(t, "x", stringField(line, "name"))
	assert.Empty(t, stringField(line, "missing"))
	assert.Empty(t, stringField(line, "durationMs"), "numbers are not strings")

	ms, ok := intField(line, "durationMs")
	require.True(t, ok)
	assert.EqualValues(t, 1250, ms)

	_, ok = intField(line, "cwd")
	assert.False(t, ok)
}
