package tui

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wysstartgo/anycode/internal/adapter"
	"github.com/wysstartgo/anycode/internal/model"
	"github.com/wysstartgo/anycode/internal/session"
)

type fakeControls struct {
	mu           sync.Mutex
	loads        []model.SessionRef
	reconnects   int
	disconnected bool
}

func (f *fakeControls) LoadHistory(ref model.SessionRef) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads = append(f.loads, ref)
}

func (f *fakeControls) Reconnect(model.SessionRef) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconnects++
}

func (f *fakeControls) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = true
}

var watched = model.SessionRef{SessionID: "s1", Engine: model.EngineClaude}

func say(kind model.Kind, text string) model.Message {
	return model.Message{Kind: kind, Content: []model.ContentBlock{model.TextBlock(text)}}
}

func newTestViewer(t *testing.T) (Viewer, *fakeControls) {
	t.Helper()
	ctl := &fakeControls{}
	v := NewViewer(watched, ctl, NewSink(8))
	m, _ := v.Update(tea.WindowSizeMsg{Width: 100, Height: 12})
	return m.(Viewer), ctl
}

func step(t *testing.T, v Viewer, msg tea.Msg) Viewer {
	t.Helper()
	m, _ := v.Update(msg)
	return m.(Viewer)
}

func TestViewer_HistoryThenAppend(t *testing.T) {
	v, _ := newTestViewer(t)
	v = step(t, v, HistoryMsg{Ref: watched, History: adapter.History{Messages: []model.Message{
		say(model.KindUser, "hello there"),
	}}})
	assert.Contains(t, v.View(), "hello there")
	assert.Contains(t, v.View(), "1 msgs")

	v = step(t, v, AppendMsg{Ref: watched, Message: say(model.KindAssistant, "general kenobi")})
	out := v.View()
	assert.Contains(t, out, "general kenobi")
	assert.Contains(t, out, "2 msgs")
	assert.Len(t, strings.Split(out, "\n"), 12)
}

func TestViewer_IgnoresOtherSessions(t *testing.T) {
	v, _ := newTestViewer(t)
	other := model.SessionRef{SessionID: "s2", Engine: model.EngineClaude}
	v = step(t, v, AppendMsg{Ref: other, Message: say(model.KindUser, "stray")})
	assert.NotContains(t, v.View(), "stray")

	// A ref that only gained a project id still belongs to the viewer.
	withProject := watched
	withProject.ProjectID = "proj"
	v = step(t, v, AppendMsg{Ref: withProject, Message: say(model.KindUser, "mine")})
	assert.Contains(t, v.View(), "mine")
}

func TestViewer_ResetAndErrors(t *testing.T) {
	v, _ := newTestViewer(t)
	v = step(t, v, ResetMsg{Ref: watched})
	assert.Contains(t, v.View(), "no history yet")

	v = step(t, v, ErrorMsg{Ref: watched, Err: errors.New("stream dropped")})
	assert.Contains(t, v.View(), "stream dropped")

	v = step(t, v, StateMsg{State: session.Listening})
	assert.Contains(t, v.View(), "live")
}

func TestViewer_FollowAndScroll(t *testing.T) {
	v, _ := newTestViewer(t)
	msgs := make([]model.Message, 0, 30)
	for i := range 30 {
		msgs = append(msgs, say(model.KindUser, fmt.Sprintf("line-%02d", i)))
	}
	v = step(t, v, HistoryMsg{Ref: watched, History: adapter.History{Messages: msgs}})
	assert.Contains(t, v.View(), "line-29")
	assert.Equal(t, v.maxScroll(), v.scroll)

	v = step(t, v, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("g")})
	assert.Contains(t, v.View(), "line-00")
	assert.False(t, v.follow)

	// New output does not move a reader who scrolled away.
	v = step(t, v, AppendMsg{Ref: watched, Message: say(model.KindUser, "line-30")})
	assert.Equal(t, 0, v.scroll)

	v = step(t, v, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("G")})
	assert.Contains(t, v.View(), "line-30")
	assert.True(t, v.follow)
}

func TestViewer_Keys(t *testing.T) {
	v, ctl := newTestViewer(t)

	m, cmd := v.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	require.NotNil(t, cmd)
	assert.Zero(t, ctl.reconnects, "reconnect runs as a command, not inside Update")
	assert.Nil(t, cmd())
	assert.Equal(t, 1, ctl.reconnects)

	v = step(t, m.(Viewer), tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	assert.True(t, v.expandSubagents)

	_, cmd = v.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.False(t, ctl.disconnected)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.True(t, ctl.disconnected)
}

func TestViewer_QuitWhileControllerIsDelivering(t *testing.T) {
	v, ctl := newTestViewer(t)
	sink := v.sink

	// Fill the sink so the next delivery blocks, as a busy controller would.
	for range 8 {
		sink.StateChanged(session.Listening)
	}
	delivered := make(chan struct{})
	go func() {
		sink.Error(watched, errors.New("late"))
		close(delivered)
	}()

	_, cmd := v.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("blocked delivery was not released by quit")
	}
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.True(t, ctl.disconnected)
}

func TestSink_DeliversAndCloses(t *testing.T) {
	s := NewSink(1)
	s.StateChanged(session.LoadingHistory)
	assert.Equal(t, StateMsg{State: session.LoadingHistory}, s.wait()())

	done := make(chan struct{})
	go func() {
		s.Reset(watched)
		s.Reset(watched) // blocks until Close
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	s.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("send did not unblock after Close")
	}
	s.Error(watched, errors.New("late"))
}
