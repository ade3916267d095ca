// Package model defines the canonical message model and the derived usage
// types shared by every anycode component.
package model

import "time"

// ModelUsage tracks per-model token usage within a session.
type ModelUsage struct { //nolint:revive // renaming would break many call sites
	APICalls            int     `json:"api_calls" yaml:"api_calls"`
	InputTokens         int64   `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens        int64   `json:"output_tokens" yaml:"output_tokens"`
	CacheCreationTokens int64   `json:"cache_creation_tokens" yaml:"cache_creation_tokens"`
	CacheReadTokens     int64   `json:"cache_read_tokens" yaml:"cache_read_tokens"`
	EstimatedCost       float64 `json:"estimated_cost" yaml:"estimated_cost"`
}

// SessionStats summarizes one session log: who ran it where, when, and what
// it consumed. Sub-agent logs get their own SessionStats pointing at the
// parent through ParentSession.
type SessionStats struct {
	SessionID     string
	Engine        Engine
	Project       string
	ProjectPath   string
	FilePath      string
	IsSubagent    bool
	ParentSession string
	StartTime     time.Time
	EndTime       time.Time
	DurationSecs  int64

	UserMessages int
	APICalls     int

	InputTokens         int64
	OutputTokens        int64
	CacheCreationTokens int64
	CacheReadTokens     int64

	Models map[string]*ModelUsage

	EstimatedCost float64
	CacheHitRate  float64
}

// Active reports whether the session did anything billable or was prompted
// at all. Logs that only hold metadata or summaries are not active.
func (s SessionStats) Active() bool {
	return s.APICalls > 0 || s.UserMessages > 0
}

// TotalTokens returns the billed token count (cache reads excluded, as in
// the per-day and per-project rollups).
func (s SessionStats) TotalTokens() int64 {
	return s.InputTokens + s.OutputTokens + s.CacheCreationTokens
}
