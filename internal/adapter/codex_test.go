package adapter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wysstartgo/anycode/internal/model"
)

func adaptAll(t *testing.T, c *Codex, lines ...string) []model.Message {
	t.Helper()
	var out []model.Message
	for _, l := range lines {
		msg, err := c.Adapt([]byte(l))
		require.NoError(t, err, l)
		if msg != nil {
			out = append(out, *msg)
		}
	}
	return out
}

func TestCodex_RolloutConversation(t *testing.T) {
	c := NewCodex()
	msgs := adaptAll(t, c,
		`{"timestamp":"2025-09-01T10:00:00Z","type":"session_meta","payload":{"id":"sess-1","cwd":"/tmp"}}`,
		`{"timestamp":"2025-09-01T10:00:00Z","type":"turn_context","payload":{"cwd":"/tmp","model":"gpt-5-codex"}}`,
		`{"timestamp":"2025-09-01T10:00:01Z","type":"response_item","payload":{"type":"message","role":"user","content":[{"type":"input_text","text":"<environment_context>cwd</environment_context>"}]}}`,
		`{"timestamp":"2025-09-01T10:00:02Z","type":"response_item","payload":{"type":"message","role":"user","content":[{"type":"input_text","text":"list files"}]}}`,
		`{"timestamp":"2025-09-01T10:00:03Z","type":"response_item","payload":{"type":"reasoning","summary":[{"type":"summary_text","text":"need ls"}]}}`,
		`{"timestamp":"2025-09-01T10:00:04Z","type":"response_item","payload":{"type":"function_call","name":"shell","arguments":"{\"command\":[\"ls\"]}","call_id":"call_1"}}`,
		`{"timestamp":"2025-09-01T10:00:05Z","type":"response_item","payload":{"type":"function_call_output","call_id":"call_1","output":"{\"output\":\"a.go\\n\",\"metadata\":{\"exit_code\":0}}"}}`,
		`{"timestamp":"2025-09-01T10:00:06Z","type":"event_msg","payload":{"type":"agent_message","message":"a.go"}}`,
		`{"timestamp":"2025-09-01T10:00:06Z","type":"response_item","payload":{"type":"message","role":"assistant","content":[{"type":"output_text","text":"a.go"}]}}`,
	)

	require.Len(t, msgs, 6)
	assert.Equal(t, "sess-1", c.SessionID())

	assert.Equal(t, model.KindSystem, msgs[0].Kind)
	assert.Equal(t, model.SubtypeContext, msgs[0].Subtype)
	assert.Equal(t, model.KindUser, msgs[1].Kind)
	assert.Equal(t, model.BlockThinking, msgs[2].Blocks()[0].Type)

	use := msgs[3].ToolUses()
	require.Len(t, use, 1)
	assert.Equal(t, "call_1", use[0].ID)
	assert.Equal(t, []any{"ls"}, use[0].Input["command"])

	res := msgs[4].Blocks()[0]
	assert.Equal(t, model.KindUser, msgs[4].Kind)
	assert.Equal(t, "a.go\n", res.Content)
	assert.False(t, res.IsError)

	assert.Equal(t, model.KindAssistant, msgs[5].Kind)
	for _, m := range msgs {
		assert.Equal(t, "gpt-5-codex", m.Model)
		assert.Equal(t, model.EngineCodex, m.Engine)
	}
}

func TestCodex_TokenCount(t *testing.T) {
	c := NewCodex()
	msgs := adaptAll(t, c,
		`{"timestamp":"2025-09-01T10:00:00Z","type":"event_msg","payload":{"type":"token_count","info":{"total_token_usage":{"input_tokens":1000,"cached_input_tokens":400,"output_tokens":50},"last_token_usage":{"input_tokens":1000,"cached_input_tokens":400,"output_tokens":50}},"rate_limits":{"primary":{"used_percent":12.5,"window_minutes":300,"resets_at":1756725600}}}}`,
		// Repeated snapshot with an unchanged cumulative total.
		`{"timestamp":"2025-09-01T10:00:01Z","type":"event_msg","payload":{"type":"token_count","info":{"total_token_usage":{"input_tokens":1000,"cached_input_tokens":400,"output_tokens":50},"last_token_usage":{"input_tokens":1000,"cached_input_tokens":400,"output_tokens":50}}}}`,
		// Cumulative-only snapshot.
		`{"timestamp":"2025-09-01T10:00:02Z","type":"event_msg","payload":{"type":"token_count","info":{"total_token_usage":{"input_tokens":3000,"output_tokens":90}}}}`,
		`{"timestamp":"2025-09-01T10:00:03Z","type":"event_msg","payload":{"type":"token_count","info":null}}`,
	)

	require.Len(t, msgs, 2)
	assert.Equal(t, model.SubtypeTurnUsage, msgs[0].Subtype)
	assert.Equal(t, model.TokenUsage{InputTokens: 600, OutputTokens: 50, CacheReadTokens: 400}, *msgs[0].Usage)
	assert.Equal(t, model.SubtypeThreadUsageUpdated, msgs[1].Subtype)

	rl := c.RateLimits()
	require.NotNil(t, rl)
	require.NotNil(t, rl.Primary)
	assert.InDelta(t, 12.5, rl.Primary.UsedPercent, 0.001)
	assert.Equal(t, int64(300), rl.Primary.WindowMinutes)
	assert.Nil(t, rl.Secondary)
}

func TestCodex_Reset(t *testing.T) {
	c := NewCodex()
	adaptAll(t, c,
		`{"type":"turn_context","payload":{"model":"gpt-5"}}`,
		`{"type":"event_msg","payload":{"type":"token_count","info":{"total_token_usage":{"input_tokens":5,"output_tokens":5}},"rate_limits":{"primary":{"used_percent":1}}}}`,
	)
	c.Reset()
	assert.Nil(t, c.RateLimits())
	assert.Empty(t, c.SessionID())

	msgs := adaptAll(t, c,
		`{"type":"event_msg","payload":{"type":"token_count","info":{"total_token_usage":{"input_tokens":5,"output_tokens":5}}}}`,
	)
	require.Len(t, msgs, 1, "after Reset the same cumulative total is new again")
	assert.Empty(t, msgs[0].Model)
}

func TestCodex_ExecEvents(t *testing.T) {
	c := NewCodex()
	msgs := adaptAll(t, c,
		`{"type":"thread.started","thread_id":"th-9"}`,
		`{"type":"turn.started"}`,
		`{"type":"item.completed","item":{"id":"item_0","type":"reasoning","text":"thinking"}}`,
		`{"type":"item.completed","item":{"id":"item_1","type":"command_execution","command":"go test","aggregated_output":"FAIL","exit_code":1,"status":"failed"}}`,
		`{"type":"item.completed","item":{"id":"item_2","type":"agent_message","text":"tests fail"}}`,
		`{"type":"turn.completed","usage":{"input_tokens":200,"cached_input_tokens":50,"output_tokens":10}}`,
		`{"type":"turn.failed","error":{"message":"quota"}}`,
	)
	assert.Equal(t, "th-9", c.SessionID())
	require.Len(t, msgs, 5)

	cmd := msgs[1].Blocks()
	require.Len(t, cmd, 2)
	assert.Equal(t, model.BlockToolUse, cmd[0].Type)
	assert.True(t, cmd[1].IsError)

	assert.Equal(t, model.SubtypeTurnUsage, msgs[3].Subtype)
	assert.Equal(t, int64(150), msgs[3].Usage.InputTokens)
	assert.Equal(t, model.SubtypeError, msgs[4].Subtype)
}

func TestCodex_Malformed(t *testing.T) {
	c := NewCodex()
	_, err := c.Adapt([]byte(`{"type":"event_msg","payload":`))
	require.Error(t, err)
	_, err = c.Adapt([]byte(`{"type":"event_msg","payload":"oops"}`))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "event_msg"))
}
