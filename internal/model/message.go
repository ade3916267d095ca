package model

import "strings"

// Kind is the canonical message tag. The set is closed; see Valid.
type Kind string

const (
	KindUser      Kind = "user"
	KindAssistant Kind = "assistant"
	KindSystem    Kind = "system"
	KindResult    Kind = "result"
	KindThinking  Kind = "thinking"
	KindToolUse   Kind = "tool_use"
)

// Valid reports whether k belongs to the closed kind set.
func (k Kind) Valid() bool {
	switch k {
	case KindUser, KindAssistant, KindSystem, KindResult, KindThinking, KindToolUse:
		return true
	}
	return false
}

// Engine identifies the CLI backend that produced a record.
type Engine string

const (
	EngineClaude Engine = "claude"
	EngineCodex  Engine = "codex"
	EngineGemini Engine = "gemini"
)

// Engines lists every supported engine in display order.
var Engines = []Engine{EngineClaude, EngineCodex, EngineGemini}

// ParseEngine maps a user-supplied name to an Engine. Unknown names return false.
func ParseEngine(s string) (Engine, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "claude", "claude-code", "claude_code":
		return EngineClaude, true
	case "codex":
		return EngineCodex, true
	case "gemini", "gemini-cli", "gemini_cli":
		return EngineGemini, true
	}
	return "", false
}

// Live reports whether sessions of this engine run as attachable processes.
// Gemini sessions are written once per batch run and cannot be attached to.
func (e Engine) Live() bool {
	return e == EngineClaude || e == EngineCodex
}

// System message subtypes produced by the adapters.
const (
	SubtypeCommandOutput      = "command-output"
	SubtypeCommandError       = "command-error"
	SubtypeCommandMeta        = "command-meta"
	SubtypeTurnUsage          = "turn_usage"
	SubtypeThreadUsageUpdated = "thread_token_usage_updated"
	SubtypeError              = "error"
	SubtypeContext            = "context"
)

// BlockType tags a content block.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockThinking   BlockType = "thinking"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// ContentBlock is one element of a message body.
type ContentBlock struct {
	Type BlockType `json:"type"`

	Text     string `json:"text,omitempty"`
	Thinking string `json:"thinking,omitempty"`

	// tool_use
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

// TextBlock returns a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// Body is the nested message envelope some engines wrap around content.
type Body struct {
	ID      string         `json:"id,omitempty"`
	Role    string         `json:"role,omitempty"`
	Model   string         `json:"model,omitempty"`
	Content []ContentBlock `json:"content,omitempty"`
	Usage   *TokenUsage    `json:"usage,omitempty"`
}

// Message is the engine-agnostic unit every downstream component consumes.
type Message struct {
	Kind      Kind           `json:"type"`
	Subtype   string         `json:"subtype,omitempty"`
	Engine    Engine         `json:"engine,omitempty"`
	Model     string         `json:"model,omitempty"`
	ID        string         `json:"id,omitempty"`
	UUID      string         `json:"uuid,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
	Content   []ContentBlock `json:"content,omitempty"`
	Message   *Body          `json:"message,omitempty"`
	Usage     *TokenUsage    `json:"usage,omitempty"`

	ParentToolUseID string `json:"parent_tool_use_id,omitempty"`
	IsSidechain     bool   `json:"isSidechain,omitempty"`
}

// IsSubagent reports whether the message belongs to a sub-agent conversation.
// Either indicator alone is sufficient.
func (m *Message) IsSubagent() bool {
	return m.ParentToolUseID != "" || m.IsSidechain
}

// Blocks returns the message content, preferring the nested body when the
// top-level content is empty.
func (m *Message) Blocks() []ContentBlock {
	if len(m.Content) == 0 && m.Message != nil {
		return m.Message.Content
	}
	return m.Content
}

// TokenUsage returns the nested usage when present, else the top-level usage.
func (m *Message) TokenUsage() *TokenUsage {
	if m.Message != nil && m.Message.Usage != nil {
		return m.Message.Usage
	}
	return m.Usage
}

// ModelName returns the nested model, falling back to the top-level model.
func (m *Message) ModelName() string {
	if m.Message != nil && m.Message.Model != "" {
		return m.Message.Model
	}
	return m.Model
}

// HasText reports whether any text block carries non-whitespace narrative.
func (m *Message) HasText() bool {
	for _, b := range m.Blocks() {
		if b.Type == BlockText && strings.TrimSpace(b.Text) != "" {
			return true
		}
	}
	return false
}

// ToolUses returns the tool_use blocks of the message in order.
func (m *Message) ToolUses() []ContentBlock {
	var out []ContentBlock
	for _, b := range m.Blocks() {
		if b.Type == BlockToolUse {
			out = append(out, b)
		}
	}
	return out
}
