package model

import "errors"

// ErrSessionNotFound is returned when no history exists for a session id.
var ErrSessionNotFound = errors.New("session not found")
