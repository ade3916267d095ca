// Package grouping rebuilds the display structure of a canonical message
// sequence: sub-agent conversations nested under the call that spawned them,
// and runs of adjacent tool or reasoning messages compacted into aggregates.
package grouping

import (
	"strings"

	"github.com/wysstartgo/anycode/internal/model"
)

// spawnTools are the tool names that start a sub-agent, compared
// case-insensitively.
var spawnTools = map[string]struct{}{
	"task":  {},
	"agent": {},
}

// IsSpawnTool reports whether name starts a sub-agent.
func IsSpawnTool(name string) bool {
	_, ok := spawnTools[strings.ToLower(name)]
	return ok
}

// NodeKind tags a Node.
type NodeKind int

const (
	NodeMessage NodeKind = iota
	NodeSubagent
	NodeAggregate
)

func (k NodeKind) String() string {
	switch k {
	case NodeSubagent:
		return "subagent"
	case NodeAggregate:
		return "aggregate"
	}
	return "message"
}

// TechKind is the technical subtype shared by every message of an aggregate.
type TechKind string

const (
	TechTool     TechKind = "tool"
	TechThinking TechKind = "thinking"
)

// SubagentGroup is a sub-agent conversation attributed to one spawning call.
type SubagentGroup struct {
	ID           string
	TaskMessage  model.Message
	Messages     []model.Message
	StartIndex   int
	EndIndex     int
	SubagentType string
}

// Aggregate is a maximal run of adjacent technical messages of one kind.
type Aggregate struct {
	Kind       TechKind
	Messages   []model.Message
	StartIndex int
}

// Node is one element of the grouped output. Exactly one of Message,
// Subagent and Aggregate is set, according to Kind.
type Node struct {
	Kind      NodeKind
	Index     int
	Message   *model.Message
	Subagent  *SubagentGroup
	Aggregate *Aggregate
}

// Result is the grouped view of a message sequence.
type Result struct {
	Nodes []Node

	groups   map[string]*SubagentGroup
	resolved map[string]struct{}
}

// Hidden reports whether msg is already represented inside an emitted
// sub-agent group and should not be displayed on its own.
func (r Result) Hidden(msg *model.Message) bool {
	if msg == nil || !msg.IsSubagent() || msg.ParentToolUseID == "" {
		return false
	}
	_, ok := r.groups[msg.ParentToolUseID]
	return ok
}

// Group returns the sub-agent group for a spawning tool_use id.
func (r Result) Group(id string) (*SubagentGroup, bool) {
	g, ok := r.groups[id]
	return g, ok
}

// Resolved reports whether a tool_result for toolUseID appears anywhere in
// the sequence.
func (r Result) Resolved(toolUseID string) bool {
	_, ok := r.resolved[toolUseID]
	return ok
}

type spawn struct {
	id           string
	index        int
	subagentType string
}

// Group builds the display structure of msgs. It is a pure function of the
// full sequence and is recomputed whenever the sequence changes.
func Group(msgs []model.Message) Result {
	res := Result{
		groups:   make(map[string]*SubagentGroup),
		resolved: make(map[string]struct{}),
	}

	// Pass 1: spawn points.
	var spawns []spawn
	spawnIDs := make(map[string]struct{})
	spawnsAt := make(map[int][]string)
	for i := range msgs {
		m := &msgs[i]
		for _, b := range m.Blocks() {
			if b.Type == model.BlockToolResult && b.ToolUseID != "" {
				res.resolved[b.ToolUseID] = struct{}{}
			}
		}
		if m.Kind != model.KindAssistant {
			continue
		}
		for _, b := range m.ToolUses() {
			if b.ID == "" || !IsSpawnTool(b.Name) {
				continue
			}
			if _, dup := spawnIDs[b.ID]; dup {
				continue
			}
			spawnIDs[b.ID] = struct{}{}
			spawns = append(spawns, spawn{id: b.ID, index: i, subagentType: subagentType(b.Input)})
			spawnsAt[i] = append(spawnsAt[i], b.ID)
		}
	}

	// Pass 2: attribute descendants. The scan covers the whole remainder of
	// the sequence since parallel sub-agents interleave.
	attributed := make(map[int]struct{})
	for _, sp := range spawns {
		var g *SubagentGroup
		for j := sp.index + 1; j < len(msgs); j++ {
			if msgs[j].ParentToolUseID != sp.id {
				continue
			}
			if g == nil {
				g = &SubagentGroup{
					ID:           sp.id,
					TaskMessage:  msgs[sp.index],
					StartIndex:   sp.index,
					SubagentType: sp.subagentType,
				}
			}
			g.Messages = append(g.Messages, msgs[j])
			g.EndIndex = j
			attributed[j] = struct{}{}
		}
		if g != nil {
			res.groups[sp.id] = g
		}
	}

	// Pass 3: intermediate sequence.
	nodes := make([]Node, 0, len(msgs))
	for i := range msgs {
		if _, ok := attributed[i]; ok {
			continue
		}
		emitted := false
		for _, id := range spawnsAt[i] {
			if g, ok := res.groups[id]; ok {
				nodes = append(nodes, Node{Kind: NodeSubagent, Index: i, Subagent: g})
				emitted = true
			}
		}
		if !emitted {
			nodes = append(nodes, Node{Kind: NodeMessage, Index: i, Message: &msgs[i]})
		}
	}

	// Pass 4: compact technical runs.
	res.Nodes = compact(nodes)
	return res
}

func compact(nodes []Node) []Node {
	out := make([]Node, 0, len(nodes))
	var open *Aggregate

	flush := func() {
		if open != nil {
			out = append(out, Node{Kind: NodeAggregate, Index: open.StartIndex, Aggregate: open})
			open = nil
		}
	}

	for _, n := range nodes {
		if n.Kind != NodeMessage {
			flush()
			out = append(out, n)
			continue
		}
		kind, ok := Classify(n.Message)
		if !ok || n.Message.IsSubagent() {
			flush()
			out = append(out, n)
			continue
		}
		if open != nil && open.Kind != kind {
			flush()
		}
		if open == nil {
			open = &Aggregate{Kind: kind, StartIndex: n.Index}
		}
		open.Messages = append(open.Messages, *n.Message)
	}
	flush()
	return out
}

// Classify returns the technical kind of msg. ok is false for messages that
// carry narrative text, mix reasoning with tool activity, or carry neither.
func Classify(msg *model.Message) (TechKind, bool) {
	var thinking, tool bool
	for _, b := range msg.Blocks() {
		switch b.Type {
		case model.BlockText:
			if strings.TrimSpace(b.Text) != "" {
				return "", false
			}
		case model.BlockThinking:
			thinking = true
		case model.BlockToolUse, model.BlockToolResult:
			tool = true
		}
	}
	switch {
	case thinking && tool:
		return "", false
	case thinking:
		return TechThinking, true
	case tool:
		return TechTool, true
	}
	return "", false
}

func subagentType(input map[string]any) string {
	for _, key := range []string{"subagent_type", "subagentType", "agent_type"} {
		if s, ok := input[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
