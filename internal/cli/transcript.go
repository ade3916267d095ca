package cli

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/samber/lo"

	"github.com/wysstartgo/anycode/internal/grouping"
	"github.com/wysstartgo/anycode/internal/model"
)

// TranscriptOptions controls RenderTranscript.
type TranscriptOptions struct {
	Width int // wrap width; 0 means 100

	// ExpandSubagents prints the messages of each sub-agent group under its
	// header instead of a one-line summary.
	ExpandSubagents bool
	// ExpandAggregates prints every message of a technical run.
	ExpandAggregates bool
}

// transcript accumulates rendered output with the palette fixed for one call.
type transcript struct {
	b     strings.Builder
	st    styles
	width int
}

// RenderTranscript renders a grouped message sequence as terminal text.
func RenderTranscript(res grouping.Result, opts TranscriptOptions) string {
	t := &transcript{st: palette(), width: opts.Width}
	if t.width <= 0 {
		t.width = 100
	}
	for _, n := range res.Nodes {
		switch n.Kind {
		case grouping.NodeMessage:
			t.message(n.Message, 0)
		case grouping.NodeSubagent:
			t.subagent(n.Subagent, res.Resolved(n.Subagent.ID), opts.ExpandSubagents)
		case grouping.NodeAggregate:
			t.aggregate(n.Aggregate, opts.ExpandAggregates)
		}
		t.b.WriteString("\n")
	}
	return t.b.String()
}

// line writes one indented, styled line cut to the body width.
func (t *transcript) line(indent int, style lipgloss.Style, text string) {
	t.b.WriteString(strings.Repeat(" ", indent))
	t.b.WriteString(style.Render(TruncateWidth(text, t.width-indent)))
	t.b.WriteString("\n")
}

func (t *transcript) wrapped(indent int, style lipgloss.Style, text string) {
	for _, para := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		for _, l := range WrapText(para, t.width-indent) {
			t.b.WriteString(strings.Repeat(" ", indent))
			t.b.WriteString(style.Render(l))
			t.b.WriteString("\n")
		}
	}
}

func (t *transcript) message(m *model.Message, indent int) {
	t.b.WriteString(strings.Repeat(" ", indent))
	t.b.WriteString(t.header(m))
	t.b.WriteString("\n")

	body := indent + 2
	for _, blk := range m.Blocks() {
		switch blk.Type {
		case model.BlockText:
			t.wrapped(body, t.st.value, blk.Text)
		case model.BlockThinking:
			t.wrapped(body, t.st.thinking, blk.Thinking)
		case model.BlockToolUse:
			t.line(body, t.st.tool, strings.TrimSpace("⚙ "+blk.Name+" "+summarizeInput(blk.Input)))
		case model.BlockToolResult:
			first, _, _ := strings.Cut(strings.TrimSpace(blk.Content), "\n")
			if blk.IsError {
				t.line(body, t.st.fail, "✗ "+first)
			} else {
				t.line(body, t.st.muted, "↳ "+first)
			}
		}
	}
}

func (t *transcript) header(m *model.Message) string {
	label := string(m.Kind)
	if m.Subtype != "" {
		label += "/" + m.Subtype
	}
	parts := []string{t.st.kind(m.Kind).Render(label)}
	if name := m.ModelName(); name != "" && m.Kind == model.KindAssistant {
		parts = append(parts, t.st.dim.Render(name))
	}
	if ts, ok := model.ParseTimestamp(m.Timestamp); ok {
		parts = append(parts, t.st.dim.Render(ts.Local().Format("15:04:05")))
	}
	if u := m.TokenUsage(); u != nil {
		if total := u.InputTokens + u.OutputTokens; total > 0 {
			parts = append(parts, t.st.token.Render(FormatTokens(total)+" tok"))
		}
	}
	return strings.Join(parts, " ")
}

func (t *transcript) subagent(g *grouping.SubagentGroup, done, expand bool) {
	t.message(&g.TaskMessage, 0)

	kind := g.SubagentType
	if kind == "" {
		kind = "subagent"
	}
	status := t.st.warn.Render("running")
	if done {
		status = t.st.cost.Render("done")
	}
	fmt.Fprintf(&t.b, "  %s %s %s\n",
		t.st.group.Render("◆ "+kind),
		t.st.muted.Render(fmt.Sprintf("%d messages", len(g.Messages))),
		status)

	if expand {
		for i := range g.Messages {
			t.message(&g.Messages[i], 4)
		}
	}
}

func (t *transcript) aggregate(a *grouping.Aggregate, expand bool) {
	if expand {
		for i := range a.Messages {
			t.message(&a.Messages[i], 0)
		}
		return
	}
	if a.Kind == grouping.TechThinking {
		t.line(0, t.st.thinking, fmt.Sprintf("… %d reasoning steps", len(a.Messages)))
		return
	}
	calls := lo.FlatMap(a.Messages, func(m model.Message, _ int) []model.ContentBlock {
		return m.ToolUses()
	})
	names := lo.Uniq(lo.Map(calls, func(c model.ContentBlock, _ int) string { return c.Name }))
	summary := fmt.Sprintf("… %d tool calls", len(calls))
	if len(names) > 0 {
		summary += ": " + strings.Join(names, ", ")
	}
	t.line(0, t.st.tool, summary)
}

// summarizeInput renders a tool input as a short key=value list, preferring
// the keys that usually identify what the call touched.
func summarizeInput(input map[string]any) string {
	if len(input) == 0 {
		return ""
	}
	for _, key := range []string{"command", "file_path", "path", "pattern", "description", "url"} {
		if v, ok := input[key]; ok {
			return fmt.Sprintf("%s=%v", key, v)
		}
	}
	keys := lo.Keys(input)
	sort.Strings(keys)
	return fmt.Sprintf("%s=%v", keys[0], input[keys[0]])
}

// WrapText breaks text into lines no wider than width display cells,
// preferring to break at spaces.
func WrapText(text string, width int) []string {
	text = strings.TrimRight(text, " ")
	if width <= 0 || runewidth.StringWidth(text) <= width {
		return []string{text}
	}

	var out []string
	var line strings.Builder
	lineWidth := 0
	for _, word := range strings.Fields(text) {
		ww := runewidth.StringWidth(word)
		if lineWidth > 0 && lineWidth+1+ww > width {
			out = append(out, line.String())
			line.Reset()
			lineWidth = 0
		}
		// Words wider than a line are split by cell width.
		for ww > width {
			head := runewidth.Truncate(word, width, "")
			if head == "" {
				break
			}
			out = append(out, head)
			word = word[len(head):]
			ww = runewidth.StringWidth(word)
		}
		if lineWidth > 0 {
			line.WriteByte(' ')
			lineWidth++
		}
		line.WriteString(word)
		lineWidth += ww
	}
	if line.Len() > 0 {
		out = append(out, line.String())
	}
	return out
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// VisibleText strips ANSI color codes from s.
func VisibleText(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// VisibleWidth is the display width of s with ANSI color codes removed.
func VisibleWidth(s string) int {
	return runewidth.StringWidth(VisibleText(s))
}

// TruncateWidth cuts s to width display cells, ending with an ellipsis when
// anything was dropped.
func TruncateWidth(s string, width int) string {
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	return runewidth.Truncate(s, width, "…")
}
