package adapter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/wysstartgo/anycode/internal/model"
	"github.com/wysstartgo/anycode/internal/usage"
)

// GeminiSession is the session detail Gemini CLI writes under
// ~/.gemini/tmp/<project>/chats.
type GeminiSession struct {
	SessionID   string          `json:"sessionId"`
	ProjectHash string          `json:"projectHash,omitempty"`
	StartTime   string          `json:"startTime,omitempty"`
	LastUpdated string          `json:"lastUpdated,omitempty"`
	Messages    []GeminiMessage `json:"messages"`
}

// GeminiMessage is one user or model turn.
type GeminiMessage struct {
	ID        string           `json:"id"`
	Timestamp string           `json:"timestamp,omitempty"`
	Type      string           `json:"type"`
	Content   json.RawMessage  `json:"content,omitempty"`
	Thoughts  []GeminiThought  `json:"thoughts,omitempty"`
	ToolCalls []GeminiToolCall `json:"toolCalls,omitempty"`
	Tokens    json.RawMessage  `json:"tokens,omitempty"`
	Model     string           `json:"model,omitempty"`
}

// GeminiThought is one reasoning summary attached to a model turn.
type GeminiThought struct {
	Subject     string `json:"subject,omitempty"`
	Description string `json:"description,omitempty"`
}

// GeminiToolCall is one tool invocation inside a model turn.
type GeminiToolCall struct {
	ID            string                 `json:"id"`
	Name          string                 `json:"name"`
	Args          map[string]any         `json:"args,omitempty"`
	Result        []GeminiFunctionResult `json:"result,omitempty"`
	ResultDisplay json.RawMessage        `json:"resultDisplay,omitempty"`
	Status        string                 `json:"status,omitempty"`
}

// GeminiFunctionResult wraps the structured response returned to the model.
type GeminiFunctionResult struct {
	FunctionResponse *struct {
		ID       string         `json:"id,omitempty"`
		Name     string         `json:"name,omitempty"`
		Response map[string]any `json:"response,omitempty"`
	} `json:"functionResponse,omitempty"`
}

// DecodeGeminiSession parses a Gemini session detail file.
func DecodeGeminiSession(data []byte) (*GeminiSession, error) {
	var s GeminiSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding gemini session: %w", err)
	}
	return &s, nil
}

// geminiNamespace seeds the ids synthesized for derived messages, so the same
// session always yields the same ids.
var geminiNamespace = uuid.MustParse("5b0c7b9e-3f7e-4d8a-9c55-2f1c3f6a0e41")

// Gemini flattens a session detail into canonical messages. For every model
// turn it emits, in order: a thinking message when thoughts are present; per
// tool call an assistant tool_use message followed by a user tool_result
// message; the assistant narrative; and a result message when the turn
// carries usage.
func Gemini(s *GeminiSession) []model.Message {
	if s == nil {
		return nil
	}
	var out []model.Message
	for i := range s.Messages {
		out = append(out, geminiTurn(s.SessionID, &s.Messages[i])...)
	}
	return out
}

func geminiTurn(sessionID string, m *GeminiMessage) []model.Message {
	base := model.Message{Engine: model.EngineGemini, Model: m.Model, Timestamp: m.Timestamp}
	text := geminiText(m.Content)

	switch m.Type {
	case "user":
		msg := base
		msg.Kind = model.KindUser
		msg.ID = m.ID
		msg.Content = []model.ContentBlock{model.TextBlock(text)}
		return []model.Message{msg}
	case "gemini", "model", "assistant":
	case "error", "warning", "info":
		msg := base
		msg.Kind = model.KindSystem
		msg.ID = m.ID
		msg.Subtype = m.Type
		msg.Content = []model.ContentBlock{model.TextBlock(text)}
		return []model.Message{msg}
	default:
		return nil
	}

	derive := func(parts ...string) string {
		return uuid.NewSHA1(geminiNamespace, []byte(sessionID+"/"+m.ID+"/"+strings.Join(parts, "/"))).String()
	}

	var out []model.Message
	if thinking := geminiThoughts(m.Thoughts); thinking != "" {
		msg := base
		msg.Kind = model.KindAssistant
		msg.UUID = derive("thinking")
		msg.Content = []model.ContentBlock{{Type: model.BlockThinking, Thinking: thinking}}
		out = append(out, msg)
	}

	for i, tc := range m.ToolCalls {
		callID := tc.ID
		if callID == "" {
			callID = derive("call", fmt.Sprint(i))
		}
		use := base
		use.Kind = model.KindAssistant
		use.UUID = derive("tool_use", callID)
		use.Content = []model.ContentBlock{{Type: model.BlockToolUse, ID: callID, Name: tc.Name, Input: tc.Args}}

		result := base
		result.Kind = model.KindUser
		result.Model = ""
		result.UUID = derive("tool_result", callID)
		result.Content = []model.ContentBlock{{
			Type:      model.BlockToolResult,
			ToolUseID: callID,
			Content:   geminiToolOutput(&tc),
			IsError:   strings.EqualFold(tc.Status, "error") || strings.EqualFold(tc.Status, "cancelled"),
		}}
		out = append(out, use, result)
	}

	if strings.TrimSpace(text) != "" {
		msg := base
		msg.Kind = model.KindAssistant
		msg.ID = m.ID
		msg.Content = []model.ContentBlock{model.TextBlock(text)}
		out = append(out, msg)
	}

	if u := usage.Normalize(m.Tokens); u != nil {
		res := base
		res.Kind = model.KindResult
		// Turns without an id fall back to timestamp or position keys.
		if m.ID != "" {
			res.ID = m.ID + ":usage"
		}
		res.Usage = u
		out = append(out, res)
	}
	return out
}

// geminiText accepts a plain string or a list of {text} parts.
func geminiText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "")
}

func geminiThoughts(thoughts []GeminiThought) string {
	lines := make([]string, 0, len(thoughts))
	for _, t := range thoughts {
		switch {
		case t.Subject != "" && t.Description != "":
			lines = append(lines, t.Subject+": "+t.Description)
		case t.Subject != "":
			lines = append(lines, t.Subject)
		case t.Description != "":
			lines = append(lines, t.Description)
		}
	}
	return strings.Join(lines, "\n")
}

// geminiToolOutput prefers the structured function response over the
// display summary.
func geminiToolOutput(tc *GeminiToolCall) string {
	for _, r := range tc.Result {
		if r.FunctionResponse == nil || r.FunctionResponse.Response == nil {
			continue
		}
		resp := r.FunctionResponse.Response
		for _, key := range []string{"output", "error"} {
			if v, ok := resp[key]; ok && v != nil {
				return stringify(v)
			}
		}
	}
	if len(tc.ResultDisplay) == 0 || string(tc.ResultDisplay) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(tc.ResultDisplay, &s); err == nil {
		return s
	}
	return string(tc.ResultDisplay)
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
