package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wysstartgo/anycode/internal/billing"
	"github.com/wysstartgo/anycode/internal/model"
)

const fixBugSession = `{
  "sessionId": "g-1",
  "projectHash": "abc",
  "messages": [
    {"id": "m1", "type": "user", "timestamp": "2025-06-01T10:00:00Z", "content": "fix bug"},
    {"id": "m2", "type": "gemini", "timestamp": "2025-06-01T10:00:05Z", "model": "gemini-2.5-pro",
     "content": "Fixed it",
     "toolCalls": [{"id": "c1", "name": "readFile", "args": {"path": "main.go"}, "resultDisplay": "ok", "status": "success"}],
     "tokens": {"prompt": 100, "candidates": 20, "cached": 0}}
  ]
}`

func TestGemini_ToolCallTurn(t *testing.T) {
	s, err := DecodeGeminiSession([]byte(fixBugSession))
	require.NoError(t, err)

	msgs := Gemini(s)
	require.Len(t, msgs, 5)

	assert.Equal(t, model.KindUser, msgs[0].Kind)
	assert.Equal(t, "fix bug", msgs[0].Blocks()[0].Text)

	assert.Equal(t, model.KindAssistant, msgs[1].Kind)
	uses := msgs[1].ToolUses()
	require.Len(t, uses, 1)
	assert.Equal(t, "readFile", uses[0].Name)
	assert.Equal(t, "c1", uses[0].ID)

	assert.Equal(t, model.KindUser, msgs[2].Kind)
	res := msgs[2].Blocks()[0]
	assert.Equal(t, model.BlockToolResult, res.Type)
	assert.Equal(t, "c1", res.ToolUseID)
	assert.Equal(t, "ok", res.Content)

	assert.Equal(t, model.KindAssistant, msgs[3].Kind)
	assert.True(t, msgs[3].HasText())
	assert.Equal(t, "Fixed it", msgs[3].Blocks()[0].Text)

	assert.Equal(t, model.KindResult, msgs[4].Kind)
	require.NotNil(t, msgs[4].Usage)
	assert.Equal(t, model.TokenUsage{InputTokens: 100, OutputTokens: 20}, *msgs[4].Usage)
	assert.Equal(t, "gemini-2.5-pro", msgs[4].Model)

	for _, m := range msgs {
		assert.Equal(t, model.EngineGemini, m.Engine)
	}
}

func TestGemini_PrefersFunctionResponse(t *testing.T) {
	s, err := DecodeGeminiSession([]byte(`{"sessionId":"g","messages":[
	  {"id":"m","type":"gemini","toolCalls":[{"id":"c","name":"run",
	    "result":[{"functionResponse":{"id":"c","name":"run","response":{"output":"structured"}}}],
	    "resultDisplay":"summary","status":"error"}]}]}`))
	require.NoError(t, err)

	msgs := Gemini(s)
	require.Len(t, msgs, 2)
	res := msgs[1].Blocks()[0]
	assert.Equal(t, "structured", res.Content)
	assert.True(t, res.IsError)
}

func TestGemini_ThoughtsAndNoUsage(t *testing.T) {
	s, err := DecodeGeminiSession([]byte(`{"sessionId":"g","messages":[
	  {"id":"m","type":"gemini","content":"done","thoughts":[{"subject":"Plan","description":"look around"}],
	   "tokens":{"input":0,"output":0}}]}`))
	require.NoError(t, err)

	msgs := Gemini(s)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.BlockThinking, msgs[0].Blocks()[0].Type)
	assert.Equal(t, "Plan: look around", msgs[0].Blocks()[0].Thinking)
	assert.Equal(t, "done", msgs[1].Blocks()[0].Text)
}

func TestGemini_DeterministicIDs(t *testing.T) {
	s, err := DecodeGeminiSession([]byte(fixBugSession))
	require.NoError(t, err)
	assert.Equal(t, Gemini(s), Gemini(s))
}

func TestGemini_NilAndUnknownTypes(t *testing.T) {
	assert.Nil(t, Gemini(nil))
	s := &GeminiSession{Messages: []GeminiMessage{{ID: "x", Type: "mystery"}}}
	assert.Empty(t, Gemini(s))
}

func TestGemini_TurnsWithoutIDsBillSeparately(t *testing.T) {
	s, err := DecodeGeminiSession([]byte(`{
  "sessionId": "g-2",
  "messages": [
    {"type": "gemini", "timestamp": "2025-06-01T10:00:05Z", "model": "gemini-2.5-pro",
     "content": "one", "tokens": {"prompt": 100, "candidates": 10}},
    {"type": "gemini", "timestamp": "2025-06-01T10:01:05Z", "model": "gemini-2.5-pro",
     "content": "two", "tokens": {"prompt": 200, "candidates": 20}}
  ]
}`))
	require.NoError(t, err)

	msgs := Gemini(s)
	for _, m := range msgs {
		if m.Kind == model.KindResult {
			assert.Empty(t, m.ID)
		}
	}

	l := billing.New().Aggregate(msgs)
	assert.Equal(t, 2, l.Count)
	assert.EqualValues(t, 330, l.Totals.TotalTokens)
}
