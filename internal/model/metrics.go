package model

import "time"

// SummaryStats holds the top-level aggregate across all sessions.
type SummaryStats struct {
	TotalSessions     int   `json:"total_sessions" yaml:"total_sessions"`
	TotalPrompts      int   `json:"total_prompts" yaml:"total_prompts"`
	TotalAPICalls     int   `json:"total_api_calls" yaml:"total_api_calls"`
	TotalDurationSecs int64 `json:"total_duration_secs" yaml:"total_duration_secs"`
	ActiveDays        int   `json:"active_days" yaml:"active_days"`

	InputTokens         int64 `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens        int64 `json:"output_tokens" yaml:"output_tokens"`
	CacheCreationTokens int64 `json:"cache_creation_tokens" yaml:"cache_creation_tokens"`
	CacheReadTokens     int64 `json:"cache_read_tokens" yaml:"cache_read_tokens"`
	TotalBilledTokens   int64 `json:"total_billed_tokens" yaml:"total_billed_tokens"`

	EstimatedCost float64 `json:"estimated_cost" yaml:"estimated_cost"`
	CacheSavings  float64 `json:"cache_savings" yaml:"cache_savings"`
	CacheHitRate  float64 `json:"cache_hit_rate" yaml:"cache_hit_rate"`

	CostPerDay     float64 `json:"cost_per_day" yaml:"cost_per_day"`
	TokensPerDay   int64   `json:"tokens_per_day" yaml:"tokens_per_day"`
	SessionsPerDay float64 `json:"sessions_per_day" yaml:"sessions_per_day"`
	PromptsPerDay  float64 `json:"prompts_per_day" yaml:"prompts_per_day"`
}

// DailyStats holds metrics for a single calendar day.
type DailyStats struct {
	Date                time.Time `json:"date" yaml:"date"`
	Sessions            int       `json:"sessions" yaml:"sessions"`
	Prompts             int       `json:"prompts" yaml:"prompts"`
	APICalls            int       `json:"api_calls" yaml:"api_calls"`
	DurationSecs        int64     `json:"duration_secs" yaml:"duration_secs"`
	InputTokens         int64     `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens        int64     `json:"output_tokens" yaml:"output_tokens"`
	CacheCreationTokens int64     `json:"cache_creation_tokens" yaml:"cache_creation_tokens"`
	CacheReadTokens     int64     `json:"cache_read_tokens" yaml:"cache_read_tokens"`
	EstimatedCost       float64   `json:"estimated_cost" yaml:"estimated_cost"`
}

// ModelStats holds aggregated metrics for a single model.
type ModelStats struct {
	Model               string  `json:"model" yaml:"model"`
	Engine              Engine  `json:"engine" yaml:"engine"`
	APICalls            int     `json:"api_calls" yaml:"api_calls"`
	InputTokens         int64   `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens        int64   `json:"output_tokens" yaml:"output_tokens"`
	CacheCreationTokens int64   `json:"cache_creation_tokens" yaml:"cache_creation_tokens"`
	CacheReadTokens     int64   `json:"cache_read_tokens" yaml:"cache_read_tokens"`
	EstimatedCost       float64 `json:"estimated_cost" yaml:"estimated_cost"`
	SharePercent        float64 `json:"share_percent" yaml:"share_percent"`
}

// EngineStats holds aggregated metrics for one engine.
type EngineStats struct {
	Engine        Engine  `json:"engine" yaml:"engine"`
	Sessions      int     `json:"sessions" yaml:"sessions"`
	APICalls      int     `json:"api_calls" yaml:"api_calls"`
	TotalTokens   int64   `json:"total_tokens" yaml:"total_tokens"`
	EstimatedCost float64 `json:"estimated_cost" yaml:"estimated_cost"`
	SharePercent  float64 `json:"share_percent" yaml:"share_percent"`
}

// ProjectStats holds aggregated metrics for one project across engines.
type ProjectStats struct {
	Project       string   `json:"project" yaml:"project"`
	Engines       []Engine `json:"engines" yaml:"engines"`
	Sessions      int      `json:"sessions" yaml:"sessions"`
	Prompts       int      `json:"prompts" yaml:"prompts"`
	TotalTokens   int64    `json:"total_tokens" yaml:"total_tokens"`
	EstimatedCost float64  `json:"estimated_cost" yaml:"estimated_cost"`
}

// HourlyStats holds prompt and session counts for one hour of the day.
type HourlyStats struct {
	Hour     int   `json:"hour" yaml:"hour"`
	Prompts  int   `json:"prompts" yaml:"prompts"`
	Sessions int   `json:"sessions" yaml:"sessions"`
	Tokens   int64 `json:"tokens" yaml:"tokens"`
}
