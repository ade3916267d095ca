// Package adapter converts the native history and live records of each engine
// into canonical messages.
package adapter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wysstartgo/anycode/internal/model"
	"github.com/wysstartgo/anycode/internal/usage"
)

// claudeRecord is one line of a Claude session log or stream-json output.
type claudeRecord struct {
	Type            string          `json:"type"`
	Subtype         string          `json:"subtype,omitempty"`
	UUID            string          `json:"uuid,omitempty"`
	ID              string          `json:"id,omitempty"`
	Timestamp       string          `json:"timestamp,omitempty"`
	Model           string          `json:"model,omitempty"`
	IsSidechain     bool            `json:"isSidechain,omitempty"`
	ParentToolUseID string          `json:"parent_tool_use_id,omitempty"`
	Message         *claudeBody     `json:"message,omitempty"`
	Usage           json.RawMessage `json:"usage,omitempty"`
	Metadata        *claudeMetadata `json:"metadata,omitempty"`
	Result          string          `json:"result,omitempty"`
}

type claudeBody struct {
	ID      string          `json:"id,omitempty"`
	Role    string          `json:"role,omitempty"`
	Model   string          `json:"model,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
	Usage   json.RawMessage `json:"usage,omitempty"`
}

type claudeMetadata struct {
	Usage json.RawMessage `json:"usage,omitempty"`
}

type claudeBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     map[string]any  `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// Claude decodes one Claude record. The kind is taken verbatim; callers that
// read persisted history run the result through a KindFilter.
func Claude(line []byte) (model.Message, error) {
	var rec claudeRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return model.Message{}, fmt.Errorf("decoding claude record: %w", err)
	}

	msg := model.Message{
		Kind:            model.Kind(rec.Type),
		Subtype:         rec.Subtype,
		Engine:          model.EngineClaude,
		Model:           rec.Model,
		ID:              rec.ID,
		UUID:            rec.UUID,
		Timestamp:       rec.Timestamp,
		ParentToolUseID: rec.ParentToolUseID,
		IsSidechain:     rec.IsSidechain,
	}

	// Usage may sit at the top level, under the message body, or under
	// provider metadata. All three are normalized.
	msg.Usage = usage.Normalize(rec.Usage)
	if msg.Usage == nil && rec.Metadata != nil {
		msg.Usage = usage.Normalize(rec.Metadata.Usage)
	}

	if rec.Message != nil {
		msg.Message = &model.Body{
			ID:      rec.Message.ID,
			Role:    rec.Message.Role,
			Model:   rec.Message.Model,
			Content: claudeContent(rec.Message.Content),
			Usage:   usage.Normalize(rec.Message.Usage),
		}
	}
	if rec.Type == string(model.KindResult) && rec.Result != "" && len(msg.Blocks()) == 0 {
		msg.Content = []model.ContentBlock{model.TextBlock(rec.Result)}
	}

	Reclassify(&msg)
	return msg, nil
}

// claudeContent accepts either a plain string or an array of blocks.
func claudeContent(raw json.RawMessage) []model.ContentBlock {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return nil
		}
		return []model.ContentBlock{model.TextBlock(s)}
	}
	var blocks []claudeBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil
	}
	out := make([]model.ContentBlock, 0, len(blocks))
	for _, b := range blocks {
		switch model.BlockType(b.Type) {
		case model.BlockText:
			out = append(out, model.TextBlock(b.Text))
		case model.BlockThinking:
			out = append(out, model.ContentBlock{Type: model.BlockThinking, Thinking: b.Thinking})
		case model.BlockToolUse:
			out = append(out, model.ContentBlock{Type: model.BlockToolUse, ID: b.ID, Name: b.Name, Input: b.Input})
		case model.BlockToolResult:
			out = append(out, model.ContentBlock{
				Type:      model.BlockToolResult,
				ToolUseID: b.ToolUseID,
				Content:   toolResultText(b.Content),
				IsError:   b.IsError,
			})
		}
	}
	return out
}

// toolResultText flattens tool_result content, which is either a string or
// a list of text blocks.
func toolResultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []claudeBlock
	if err := json.Unmarshal(raw, &parts); err != nil {
		return string(raw)
	}
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// Slash-command markers written into user records by the Claude CLI.
var (
	stdoutMarkers  = []string{"<local-command-stdout>", "<bash-stdout>"}
	stderrMarkers  = []string{"<local-command-stderr>", "<bash-stderr>"}
	metaMarkers    = []string{"<command-name>", "<command-message>", "<command-args>", "<local-command-caveat>"}
	unknownCommand = []string{"unknown slash command", "unknown command:"}
)

// Reclassify retypes user records that carry slash-command output to system
// records, so they are neither billed nor grouped as conversation turns.
func Reclassify(msg *model.Message) {
	if msg.Kind != model.KindUser {
		return
	}
	text := userText(msg)
	if text == "" {
		return
	}
	lower := strings.ToLower(text)

	var subtype string
	switch {
	case containsAny(lower, stderrMarkers):
		subtype = model.SubtypeCommandError
	case containsAny(lower, stdoutMarkers):
		subtype = model.SubtypeCommandOutput
	case containsAny(lower, metaMarkers):
		subtype = model.SubtypeCommandMeta
	case hasAnyPrefix(strings.TrimSpace(lower), unknownCommand):
		subtype = model.SubtypeCommandError
	default:
		return
	}
	msg.Kind = model.KindSystem
	msg.Subtype = subtype
}

// userText joins the text blocks of a user record. Records that carry tool
// results are never command output.
func userText(msg *model.Message) string {
	var sb strings.Builder
	for _, b := range msg.Blocks() {
		switch b.Type {
		case model.BlockToolResult:
			return ""
		case model.BlockText:
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
