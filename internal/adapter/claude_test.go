package adapter

import (
	"testing"

	"github.com/wysstartgo/anycode/internal/model"
)

func TestClaude_AssistantRecord(t *testing.T) {
	msg, err := Claude([]byte(`{"type":"assistant","uuid":"u1","timestamp":"2025-06-01T10:00:00Z","parent_tool_use_id":"t1","message":{"id":"msg1","role":"assistant","model":"claude-sonnet-4-5","content":[{"type":"thinking","thinking":"hmm"},{"type":"tool_use","id":"tu1","name":"Read","input":{"file_path":"a.go"}}],"usage":{"input_tokens":10,"output_tokens":5,"cache_read_input_tokens":100}}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Kind != model.KindAssistant || msg.Engine != model.EngineClaude {
		t.Fatalf("Kind/Engine = %s/%s", msg.Kind, msg.Engine)
	}
	if !msg.IsSubagent() {
		t.Error("parent_tool_use_id should mark a sub-agent message")
	}
	if got := msg.ModelName(); got != "claude-sonnet-4-5" {
		t.Errorf("ModelName = %q", got)
	}
	u := msg.TokenUsage()
	if u == nil || u.InputTokens != 10 || u.OutputTokens != 5 || u.CacheReadTokens != 100 {
		t.Errorf("TokenUsage = %+v", u)
	}
	if n := len(msg.ToolUses()); n != 1 {
		t.Errorf("ToolUses = %d, want 1", n)
	}
}

func TestClaude_UsageLocations(t *testing.T) {
	tests := []struct {
		name string
		line string
		want int64
	}{
		{"top level", `{"type":"result","usage":{"input_tokens":7,"output_tokens":1}}`, 8},
		{"nested body", `{"type":"assistant","message":{"id":"m","usage":{"input_tokens":2,"output_tokens":2}}}`, 4},
		{"provider metadata", `{"type":"assistant","metadata":{"usage":{"inputTokens":3,"outputTokens":3}}}`, 6},
		{"none", `{"type":"assistant","message":{"id":"m"}}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Claude([]byte(tt.line))
			if err != nil {
				t.Fatal(err)
			}
			var got int64
			if u := msg.TokenUsage(); u != nil {
				got = u.Total()
			}
			if got != tt.want {
				t.Errorf("total = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestClaude_StringContent(t *testing.T) {
	msg, err := Claude([]byte(`{"type":"user","message":{"role":"user","content":"hello there"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if msg.Kind != model.KindUser || !msg.HasText() {
		t.Errorf("got %+v", msg)
	}
}

func TestClaude_ToolResultContentList(t *testing.T) {
	msg, err := Claude([]byte(`{"type":"user","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"t","content":[{"type":"text","text":"a"},{"type":"text","text":"b"}],"is_error":true}]}}`))
	if err != nil {
		t.Fatal(err)
	}
	b := msg.Blocks()
	if len(b) != 1 || b[0].Content != "a\nb" || !b[0].IsError || b[0].ToolUseID != "t" {
		t.Errorf("blocks = %+v", b)
	}
	if msg.Kind != model.KindUser {
		t.Errorf("tool results must stay user records, got %s", msg.Kind)
	}
}

func TestReclassify(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		wantKind    model.Kind
		wantSubtype string
	}{
		{"stdout", "<local-command-stdout>Compacted</local-command-stdout>", model.KindSystem, model.SubtypeCommandOutput},
		{"stderr", "<local-command-stderr>boom</local-command-stderr>", model.KindSystem, model.SubtypeCommandError},
		{"meta", "<command-name>/clear</command-name>\n<command-message>clear</command-message>", model.KindSystem, model.SubtypeCommandMeta},
		{"unknown command", "Unknown slash command: /frob", model.KindSystem, model.SubtypeCommandError},
		{"prose mentioning commands", "why does it say unknown command?", model.KindUser, ""},
		{"plain", "please fix the tests", model.KindUser, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := model.Message{
				Kind:    model.KindUser,
				Message: &model.Body{Role: "user", Content: []model.ContentBlock{model.TextBlock(tt.content)}},
			}
			Reclassify(&msg)
			if msg.Kind != tt.wantKind || msg.Subtype != tt.wantSubtype {
				t.Errorf("got %s/%q, want %s/%q", msg.Kind, msg.Subtype, tt.wantKind, tt.wantSubtype)
			}
		})
	}
}

func TestReclassify_AssistantUntouched(t *testing.T) {
	msg := model.Message{Kind: model.KindAssistant, Content: []model.ContentBlock{model.TextBlock("<local-command-stdout>x")}}
	Reclassify(&msg)
	if msg.Kind != model.KindAssistant {
		t.Errorf("Kind = %s, want assistant", msg.Kind)
	}
}

func TestClaude_Malformed(t *testing.T) {
	if _, err := Claude([]byte(`{"type":"assistant",`)); err == nil {
		t.Error("expected error for truncated record")
	}
}
