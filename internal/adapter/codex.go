package adapter

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wysstartgo/anycode/internal/model"
	"github.com/wysstartgo/anycode/internal/usage"
)

// Rollout line types written to ~/.codex/sessions.
const (
	codexSessionMeta  = "session_meta"
	codexTurnContext  = "turn_context"
	codexResponseItem = "response_item"
	codexEventMsg     = "event_msg"
)

// codexLine is one rollout record, or one `codex exec --json` event.
type codexLine struct {
	Timestamp string          `json:"timestamp,omitempty"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`

	// exec --json events
	ThreadID string          `json:"thread_id,omitempty"`
	Item     *codexExecItem  `json:"item,omitempty"`
	Usage    json.RawMessage `json:"usage,omitempty"`
	Error    *codexError     `json:"error,omitempty"`
	Message  string          `json:"message,omitempty"`
}

type codexError struct {
	Message string `json:"message"`
}

type codexExecItem struct {
	ID               string `json:"id"`
	Type             string `json:"type"`
	Text             string `json:"text,omitempty"`
	Command          string `json:"command,omitempty"`
	AggregatedOutput string `json:"aggregated_output,omitempty"`
	ExitCode         *int   `json:"exit_code,omitempty"`
	Server           string `json:"server,omitempty"`
	Tool             string `json:"tool,omitempty"`
	Query            string `json:"query,omitempty"`
	Message          string `json:"message,omitempty"`
}

type codexPayload struct {
	Type string `json:"type"`

	// session_meta
	ID string `json:"id,omitempty"`

	// turn_context
	Model string `json:"model,omitempty"`

	// response_item
	Role      string             `json:"role,omitempty"`
	Content   []codexContentPart `json:"content,omitempty"`
	Summary   []codexContentPart `json:"summary,omitempty"`
	Name      string             `json:"name,omitempty"`
	Arguments string             `json:"arguments,omitempty"`
	Input     string             `json:"input,omitempty"`
	CallID    string             `json:"call_id,omitempty"`
	Output    json.RawMessage    `json:"output,omitempty"`
	Action    map[string]any     `json:"action,omitempty"`

	// event_msg
	Info       *codexTokenInfo  `json:"info,omitempty"`
	RateLimits *codexRateLimits `json:"rate_limits,omitempty"`
	Message    string           `json:"message,omitempty"`
	Reason     string           `json:"reason,omitempty"`
}

type codexContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type codexTokenInfo struct {
	TotalTokenUsage json.RawMessage `json:"total_token_usage,omitempty"`
	LastTokenUsage  json.RawMessage `json:"last_token_usage,omitempty"`
}

type codexRateLimits struct {
	Primary   *codexRateBucket `json:"primary,omitempty"`
	Secondary *codexRateBucket `json:"secondary,omitempty"`
}

type codexRateBucket struct {
	UsedPercent     float64 `json:"used_percent"`
	WindowMinutes   int64   `json:"window_minutes"`
	ResetsAt        int64   `json:"resets_at,omitempty"`
	ResetsInSeconds int64   `json:"resets_in_seconds,omitempty"`
}

// Codex converts Codex rollout records and exec events into canonical
// messages. It is stateful across a call sequence: the current model and the
// last cumulative token total carry from one record to the next. Use Reset
// between independent session loads.
type Codex struct {
	mu         sync.Mutex
	sessionID  string
	model      string
	lastTotal  int64
	rateLimits *model.RateLimits
}

// NewCodex returns a Codex adapter in its initial state.
func NewCodex() *Codex {
	return &Codex{}
}

// Reset clears all carried state.
func (c *Codex) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = ""
	c.model = ""
	c.lastTotal = 0
	c.rateLimits = nil
}

// SessionID returns the session id announced by session_meta or thread.started.
func (c *Codex) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// RateLimits returns the most recent rate-limit snapshot, or nil.
func (c *Codex) RateLimits() *model.RateLimits {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rateLimits == nil {
		return nil
	}
	rl := *c.rateLimits
	return &rl
}

// Adapt converts one record. A nil message with a nil error means the record
// carries no canonical content.
func (c *Codex) Adapt(line []byte) (*model.Message, error) {
	var rec codexLine
	if err := json.Unmarshal(line, &rec); err != nil {
		return nil, fmt.Errorf("decoding codex record: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch rec.Type {
	case codexSessionMeta, codexTurnContext, codexResponseItem, codexEventMsg:
		var p codexPayload
		if len(rec.Payload) > 0 {
			if err := json.Unmarshal(rec.Payload, &p); err != nil {
				return nil, fmt.Errorf("decoding codex %s payload: %w", rec.Type, err)
			}
		}
		return c.rollout(rec, &p), nil
	}
	return c.exec(&rec), nil
}

func (c *Codex) rollout(rec codexLine, p *codexPayload) *model.Message {
	switch rec.Type {
	case codexSessionMeta:
		if p.ID != "" {
			c.sessionID = p.ID
		}
		return nil
	case codexTurnContext:
		if p.Model != "" {
			c.model = p.Model
		}
		return nil
	case codexEventMsg:
		return c.event(rec.Timestamp, p)
	}

	msg := c.newMessage(rec.Timestamp)
	switch p.Type {
	case "message":
		text := joinParts(p.Content)
		switch {
		case p.Role == "assistant":
			msg.Kind = model.KindAssistant
		case p.Role == "user" && !isCodexContext(text):
			msg.Kind = model.KindUser
		default:
			msg.Kind = model.KindSystem
			msg.Subtype = model.SubtypeContext
		}
		if strings.TrimSpace(text) == "" {
			return nil
		}
		msg.Content = []model.ContentBlock{model.TextBlock(text)}

	case "reasoning":
		text := joinParts(p.Summary)
		if text == "" {
			text = joinParts(p.Content)
		}
		if text == "" {
			return nil
		}
		msg.Kind = model.KindAssistant
		msg.Content = []model.ContentBlock{{Type: model.BlockThinking, Thinking: text}}

	case "function_call", "custom_tool_call", "local_shell_call", "web_search_call":
		msg.Kind = model.KindAssistant
		msg.Content = []model.ContentBlock{{
			Type:  model.BlockToolUse,
			ID:    p.CallID,
			Name:  codexToolName(p),
			Input: codexToolInput(p),
		}}

	case "function_call_output", "custom_tool_call_output":
		out, isErr := codexOutput(p.Output)
		msg.Kind = model.KindUser
		msg.Content = []model.ContentBlock{{
			Type:      model.BlockToolResult,
			ToolUseID: p.CallID,
			Content:   out,
			IsError:   isErr,
		}}

	default:
		return nil
	}
	return msg
}

func (c *Codex) event(ts string, p *codexPayload) *model.Message {
	switch p.Type {
	case "token_count":
		if p.RateLimits != nil {
			c.rateLimits = convertRateLimits(p.RateLimits, ts)
		}
		if p.Info == nil {
			return nil
		}
		// Codex repeats the previous token_count when a turn produced no new
		// usage; an unchanged cumulative total is a duplicate.
		total := usage.Normalize(codexUsage(p.Info.TotalTokenUsage))
		if total != nil {
			if total.Total() == c.lastTotal {
				return nil
			}
			c.lastTotal = total.Total()
		}
		msg := c.newMessage(ts)
		msg.Kind = model.KindSystem
		if last := usage.Normalize(codexUsage(p.Info.LastTokenUsage)); last != nil {
			msg.Subtype = model.SubtypeTurnUsage
			msg.Usage = last
			return msg
		}
		if total == nil {
			return nil
		}
		msg.Subtype = model.SubtypeThreadUsageUpdated
		msg.Usage = total
		return msg

	case "error", "stream_error":
		return c.errorMessage(ts, p.Message)
	case "turn_aborted":
		return c.errorMessage(ts, "turn aborted: "+p.Reason)
	}
	// agent_message, user_message and agent_reasoning mirror response items.
	return nil
}

func (c *Codex) exec(rec *codexLine) *model.Message {
	switch rec.Type {
	case "thread.started":
		if rec.ThreadID != "" {
			c.sessionID = rec.ThreadID
		}
		return nil
	case "turn.completed":
		u := usage.Normalize(codexUsage(rec.Usage))
		if u == nil {
			return nil
		}
		msg := c.newMessage(rec.Timestamp)
		msg.Kind = model.KindSystem
		msg.Subtype = model.SubtypeTurnUsage
		msg.Usage = u
		return msg
	case "turn.failed":
		if rec.Error != nil {
			return c.errorMessage(rec.Timestamp, rec.Error.Message)
		}
		return c.errorMessage(rec.Timestamp, "turn failed")
	case "error":
		return c.errorMessage(rec.Timestamp, rec.Message)
	case "item.completed":
		if rec.Item == nil {
			return nil
		}
		return c.execItem(rec.Timestamp, rec.Item)
	}
	return nil
}

func (c *Codex) execItem(ts string, it *codexExecItem) *model.Message {
	msg := c.newMessage(ts)
	msg.ID = it.ID
	msg.Kind = model.KindAssistant
	switch it.Type {
	case "agent_message":
		msg.Content = []model.ContentBlock{model.TextBlock(it.Text)}
	case "reasoning":
		msg.Content = []model.ContentBlock{{Type: model.BlockThinking, Thinking: it.Text}}
	case "command_execution":
		result := model.ContentBlock{Type: model.BlockToolResult, ToolUseID: it.ID, Content: it.AggregatedOutput}
		if it.ExitCode != nil && *it.ExitCode != 0 {
			result.IsError = true
		}
		msg.Content = []model.ContentBlock{
			{Type: model.BlockToolUse, ID: it.ID, Name: "shell", Input: map[string]any{"command": it.Command}},
			result,
		}
	case "mcp_tool_call":
		msg.Content = []model.ContentBlock{{Type: model.BlockToolUse, ID: it.ID, Name: it.Server + "." + it.Tool}}
	case "web_search":
		msg.Content = []model.ContentBlock{{Type: model.BlockToolUse, ID: it.ID, Name: "web_search", Input: map[string]any{"query": it.Query}}}
	case "file_change":
		msg.Content = []model.ContentBlock{{Type: model.BlockToolUse, ID: it.ID, Name: "apply_patch"}}
	case "error":
		return c.errorMessage(ts, it.Message)
	default:
		return nil
	}
	return msg
}

func (c *Codex) newMessage(ts string) *model.Message {
	return &model.Message{Engine: model.EngineCodex, Model: c.model, Timestamp: ts}
}

func (c *Codex) errorMessage(ts, text string) *model.Message {
	msg := c.newMessage(ts)
	msg.Kind = model.KindSystem
	msg.Subtype = model.SubtypeError
	msg.Content = []model.ContentBlock{model.TextBlock(text)}
	return msg
}

// codexUsage rewrites Codex counters into canonical names. Codex reports
// input_tokens inclusive of cached_input_tokens.
func codexUsage(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var u struct {
		InputTokens       any `json:"input_tokens"`
		CachedInputTokens any `json:"cached_input_tokens"`
		OutputTokens      any `json:"output_tokens"`
	}
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil
	}
	in, _ := usage.Coerce(u.InputTokens)
	cached, _ := usage.Coerce(u.CachedInputTokens)
	out, _ := usage.Coerce(u.OutputTokens)
	if cached > in {
		cached = in
	}
	return map[string]any{
		"input_tokens":      in - cached,
		"output_tokens":     out,
		"cache_read_tokens": cached,
	}
}

func convertRateLimits(rl *codexRateLimits, ts string) *model.RateLimits {
	now := time.Now()
	if t, ok := model.ParseTimestamp(ts); ok {
		now = t
	}
	conv := func(b *codexRateBucket) *model.RateLimitWindow {
		if b == nil {
			return nil
		}
		w := &model.RateLimitWindow{UsedPercent: b.UsedPercent, WindowMinutes: b.WindowMinutes}
		switch {
		case b.ResetsAt > 0:
			w.ResetsAt = time.Unix(b.ResetsAt, 0).UTC()
		case b.ResetsInSeconds > 0:
			w.ResetsAt = now.Add(time.Duration(b.ResetsInSeconds) * time.Second).UTC()
		}
		return w
	}
	return &model.RateLimits{Primary: conv(rl.Primary), Secondary: conv(rl.Secondary), UpdatedAt: ts}
}

func codexToolName(p *codexPayload) string {
	switch p.Type {
	case "local_shell_call":
		return "shell"
	case "web_search_call":
		return "web_search"
	}
	return p.Name
}

func codexToolInput(p *codexPayload) map[string]any {
	switch {
	case p.Arguments != "":
		var args map[string]any
		if err := json.Unmarshal([]byte(p.Arguments), &args); err == nil {
			return args
		}
		return map[string]any{"arguments": p.Arguments}
	case p.Input != "":
		return map[string]any{"input": p.Input}
	case len(p.Action) > 0:
		return p.Action
	}
	return nil
}

// codexOutput unwraps function_call_output, which is either a plain string
// or a JSON-encoded {output, metadata:{exit_code}} object.
func codexOutput(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return string(raw), false
	}
	var wrapped struct {
		Output   string `json:"output"`
		Metadata struct {
			ExitCode int `json:"exit_code"`
		} `json:"metadata"`
	}
	if strings.HasPrefix(strings.TrimSpace(s), "{") && json.Unmarshal([]byte(s), &wrapped) == nil {
		return wrapped.Output, wrapped.Metadata.ExitCode != 0
	}
	return s, false
}

func joinParts(parts []codexContentPart) string {
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// isCodexContext reports whether a user-role message is injected context
// rather than something the user typed.
func isCodexContext(text string) bool {
	t := strings.TrimSpace(text)
	return strings.HasPrefix(t, "<environment_context>") ||
		strings.HasPrefix(t, "<user_instructions>") ||
		strings.HasPrefix(t, "# AGENTS.md instructions")
}
