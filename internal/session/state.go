package session

import (
	"errors"
	"strings"
)

// State is the controller's position in the load/attach lifecycle.
type State int

const (
	Idle State = iota
	LoadingHistory
	HistoryLoaded
	HistoryNotFound
	CheckingActive
	Listening
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case LoadingHistory:
		return "loading-history"
	case HistoryLoaded:
		return "history-loaded"
	case HistoryNotFound:
		return "history-not-found"
	case CheckingActive:
		return "checking-active"
	case Listening:
		return "listening"
	}
	return "unknown"
}

// EventClass names one of the three live event streams of a session.
type EventClass string

const (
	EventOutput   EventClass = "output"
	EventError    EventClass = "error"
	EventComplete EventClass = "complete"
)

// EventClasses lists the classes a listener set subscribes to.
var EventClasses = []EventClass{EventOutput, EventError, EventComplete}

// notFoundPhrases are the error texts history backends use for a missing
// session.
var notFoundPhrases = []string{
	"session not found",
	"no such session",
	"not found",
	"does not exist",
	"no such file or directory",
}

// IsNotFound reports whether err means the session has no history yet.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSessionNotFound) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range notFoundPhrases {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
