package model

import "time"

// RateLimitWindow is one quota window reported by an engine.
type RateLimitWindow struct {
	UsedPercent   float64   `json:"used_percent"`
	WindowMinutes int64     `json:"window_minutes,omitempty"`
	ResetsAt      time.Time `json:"resets_at,omitzero"`
}

// RateLimits is the latest quota snapshot seen in a session.
type RateLimits struct {
	Primary   *RateLimitWindow `json:"primary,omitempty"`
	Secondary *RateLimitWindow `json:"secondary,omitempty"`
	UpdatedAt string           `json:"updated_at,omitempty"`
}

// SessionRef identifies one session of one engine.
type SessionRef struct {
	SessionID string `json:"session_id"`
	ProjectID string `json:"project_id,omitempty"`
	Engine    Engine `json:"engine"`
}

// Process describes a session that is currently running.
type Process struct {
	SessionID    string    `json:"session_id"`
	ProjectID    string    `json:"project_id,omitempty"`
	Engine       Engine    `json:"engine"`
	Path         string    `json:"path,omitempty"`
	LastActivity time.Time `json:"last_activity"`
}
