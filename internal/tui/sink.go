package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/wysstartgo/anycode/internal/adapter"
	"github.com/wysstartgo/anycode/internal/model"
	"github.com/wysstartgo/anycode/internal/session"
)

// HistoryMsg carries a freshly loaded history.
type HistoryMsg struct {
	Ref     model.SessionRef
	History adapter.History
}

// AppendMsg carries one live message.
type AppendMsg struct {
	Ref     model.SessionRef
	Message model.Message
}

// ErrorMsg reports a load or stream failure.
type ErrorMsg struct {
	Ref model.SessionRef
	Err error
}

// ResetMsg clears the view, e.g. when the session has no history yet.
type ResetMsg struct {
	Ref model.SessionRef
}

// StateMsg reports a controller state transition.
type StateMsg struct {
	State session.State
}

// Sink turns controller callbacks into tea messages. The viewer drains them
// through a channel subscription.
type Sink struct {
	ch   chan tea.Msg
	done chan struct{}
	once sync.Once
}

// NewSink returns a sink with room for buffer undelivered messages.
func NewSink(buffer int) *Sink {
	if buffer <= 0 {
		buffer = 64
	}
	return &Sink{
		ch:   make(chan tea.Msg, buffer),
		done: make(chan struct{}),
	}
}

func (s *Sink) HistoryLoaded(ref model.SessionRef, h adapter.History) {
	s.send(HistoryMsg{Ref: ref, History: h})
}

func (s *Sink) MessageAppended(ref model.SessionRef, msg model.Message) {
	s.send(AppendMsg{Ref: ref, Message: msg})
}

func (s *Sink) Error(ref model.SessionRef, err error) {
	s.send(ErrorMsg{Ref: ref, Err: err})
}

func (s *Sink) Reset(ref model.SessionRef) {
	s.send(ResetMsg{Ref: ref})
}

func (s *Sink) StateChanged(st session.State) {
	s.send(StateMsg{State: st})
}

// Close stops delivery. Pending and later sends are dropped.
func (s *Sink) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *Sink) send(msg tea.Msg) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.ch <- msg:
	case <-s.done:
	}
}

// wait blocks for the next controller message.
func (s *Sink) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-s.ch:
			return msg
		case <-s.done:
			return nil
		}
	}
}
