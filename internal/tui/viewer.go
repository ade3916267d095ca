// Package tui provides the live session viewer: a Bubble Tea program fed by
// a session controller, regrouping the transcript on every change.
package tui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wysstartgo/anycode/internal/billing"
	"github.com/wysstartgo/anycode/internal/cli"
	"github.com/wysstartgo/anycode/internal/grouping"
	"github.com/wysstartgo/anycode/internal/model"
	"github.com/wysstartgo/anycode/internal/session"
	"github.com/wysstartgo/anycode/internal/tui/components"
	"github.com/wysstartgo/anycode/internal/tui/theme"
)

// Controls is the part of the session controller the viewer drives.
type Controls interface {
	LoadHistory(ref model.SessionRef)
	Reconnect(ref model.SessionRef)
	Disconnect()
}

const (
	headerHeight = 1
	footerHeight = 1
	halfPage     = 10
)

const keyHints = "[q]uit  [s]ubagents  [a]ggregates  [r]econnect  [G]follow"

var ledger = billing.New(billing.WithEffectiveDates())

// Viewer is the root Bubble Tea model of the watch command.
type Viewer struct {
	ref      model.SessionRef
	controls Controls
	sink     *Sink

	messages []model.Message
	grouped  grouping.Result
	totals   model.Totals
	state    session.State
	lastErr  error
	missing  bool

	spinner spinner.Model
	width   int
	height  int
	lines   []string
	scroll  int
	follow  bool

	expandSubagents  bool
	expandAggregates bool
}

// NewViewer returns a viewer for ref. The controller must deliver into sink.
func NewViewer(ref model.SessionRef, controls Controls, sink *Sink) Viewer {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.Active.Accent)

	return Viewer{
		ref:      ref,
		controls: controls,
		sink:     sink,
		spinner:  sp,
		follow:   true,
	}
}

// Init implements tea.Model.
func (v Viewer) Init() tea.Cmd {
	ref := v.ref
	return tea.Batch(
		v.spinner.Tick,
		v.sink.wait(),
		v.control(func(c Controls) { c.LoadHistory(ref) }),
	)
}

// Update implements tea.Model.
func (v Viewer) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.width = msg.Width
		v.height = msg.Height
		v.layout()
		return v, nil

	case HistoryMsg:
		if v.owns(msg.Ref) {
			v.messages = slices.Clone(msg.History.Messages)
			v.lastErr = nil
			v.missing = false
			v.regroup()
		}
		return v, v.sink.wait()

	case AppendMsg:
		if v.owns(msg.Ref) {
			v.messages = append(v.messages, msg.Message)
			v.regroup()
		}
		return v, v.sink.wait()

	case ErrorMsg:
		if v.owns(msg.Ref) {
			v.lastErr = msg.Err
		}
		return v, v.sink.wait()

	case ResetMsg:
		if v.owns(msg.Ref) {
			v.messages = nil
			v.missing = true
			v.regroup()
		}
		return v, v.sink.wait()

	case StateMsg:
		v.state = msg.State
		return v, v.sink.wait()

	case spinner.TickMsg:
		var cmd tea.Cmd
		v.spinner, cmd = v.spinner.Update(msg)
		return v, cmd

	case tea.KeyMsg:
		return v.handleKey(msg)
	}
	return v, nil
}

func (v Viewer) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q", "esc":
		// Close first: a controller blocked delivering to a full sink must
		// be free to take the disconnect.
		v.sink.Close()
		controls := v.controls
		return v, func() tea.Msg {
			controls.Disconnect()
			return tea.Quit()
		}
	case "j", "down":
		v.scrollBy(1)
	case "k", "up":
		v.scrollBy(-1)
	case "ctrl+d", "pgdown", " ":
		v.scrollBy(halfPage)
	case "ctrl+u", "pgup":
		v.scrollBy(-halfPage)
	case "g", "home":
		v.follow = false
		v.scroll = 0
	case "G", "end":
		v.follow = true
		v.scroll = v.maxScroll()
	case "s":
		v.expandSubagents = !v.expandSubagents
		v.layout()
	case "a":
		v.expandAggregates = !v.expandAggregates
		v.layout()
	case "r":
		ref := v.ref
		return v, v.control(func(c Controls) { c.Reconnect(ref) })
	}
	return v, nil
}

// control runs a controller call as a command. The controller may be
// waiting for Update to drain the sink, so Update never calls it directly.
func (v Viewer) control(call func(Controls)) tea.Cmd {
	controls := v.controls
	return func() tea.Msg {
		call(controls)
		return nil
	}
}

// owns reports whether ref names the session on screen. The project id is
// not compared since the controller may learn it after the request.
func (v Viewer) owns(ref model.SessionRef) bool {
	return ref.SessionID == v.ref.SessionID && ref.Engine == v.ref.Engine
}

func (v *Viewer) regroup() {
	v.grouped = grouping.Group(v.messages)
	v.totals = ledger.Aggregate(v.messages).Totals
	v.layout()
}

func (v *Viewer) layout() {
	out := cli.RenderTranscript(v.grouped, cli.TranscriptOptions{
		Width:            max(v.width-1, 20),
		ExpandSubagents:  v.expandSubagents,
		ExpandAggregates: v.expandAggregates,
	})
	v.lines = strings.Split(strings.TrimRight(out, "\n"), "\n")
	if v.follow {
		v.scroll = v.maxScroll()
	}
	v.scroll = min(v.scroll, v.maxScroll())
}

func (v *Viewer) scrollBy(n int) {
	v.scroll = max(0, min(v.scroll+n, v.maxScroll()))
	v.follow = v.scroll == v.maxScroll()
}

func (v Viewer) bodyHeight() int {
	return max(v.height-headerHeight-footerHeight, 1)
}

func (v Viewer) maxScroll() int {
	return max(len(v.lines)-v.bodyHeight(), 0)
}

// View implements tea.Model.
func (v Viewer) View() string {
	if v.width == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(v.header())
	b.WriteString("\n")

	body := v.bodyHeight()
	var rows []string
	if v.missing && len(v.messages) == 0 {
		rows = append(rows, lipgloss.NewStyle().Foreground(theme.Active.TextMuted).
			Render("  no history yet; waiting for the session to start"))
	} else {
		end := min(v.scroll+body, len(v.lines))
		rows = append(rows, v.lines[min(v.scroll, end):end]...)
	}
	for len(rows) < body {
		rows = append(rows, "")
	}
	b.WriteString(strings.Join(rows, "\n"))
	b.WriteString("\n")

	b.WriteString(components.RenderStatusBar(v.width, keyHints,
		fmt.Sprintf("%d msgs", len(v.messages)),
		cli.FormatTokens(v.totals.TotalTokens)+" tok",
		cli.FormatCost(v.totals.Cost),
	))
	return b.String()
}

func (v Viewer) header() string {
	t := theme.Active
	parts := []string{
		components.RenderBadge(string(v.ref.Engine), t.Engine(v.ref.Engine)),
		lipgloss.NewStyle().Foreground(t.TextPrimary).Bold(true).Render(v.ref.SessionID),
	}

	switch v.state {
	case session.LoadingHistory, session.CheckingActive:
		parts = append(parts, v.spinner.View()+" "+v.state.String())
	case session.Listening:
		parts = append(parts, lipgloss.NewStyle().Foreground(t.Green).Render("● live"))
	default:
		parts = append(parts, lipgloss.NewStyle().Foreground(t.TextMuted).Render(v.state.String()))
	}
	if v.lastErr != nil {
		parts = append(parts, lipgloss.NewStyle().Foreground(t.Red).Render(v.lastErr.Error()))
	}
	return lipgloss.NewStyle().MaxWidth(v.width).Render(strings.Join(parts, " "))
}
