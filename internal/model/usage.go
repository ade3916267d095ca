package model

// TokenUsage is the canonical four-category token record.
type TokenUsage struct {
	InputTokens         int64 `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens        int64 `json:"output_tokens" yaml:"output_tokens"`
	CacheReadTokens     int64 `json:"cache_read_tokens,omitempty" yaml:"cache_read_tokens,omitempty"`
	CacheCreationTokens int64 `json:"cache_creation_tokens,omitempty" yaml:"cache_creation_tokens,omitempty"`
}

// Total returns the sum of all four categories.
func (u TokenUsage) Total() int64 {
	return u.InputTokens + u.OutputTokens + u.CacheReadTokens + u.CacheCreationTokens
}

// Add returns the category-wise sum of u and o.
func (u TokenUsage) Add(o TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:         u.InputTokens + o.InputTokens,
		OutputTokens:        u.OutputTokens + o.OutputTokens,
		CacheReadTokens:     u.CacheReadTokens + o.CacheReadTokens,
		CacheCreationTokens: u.CacheCreationTokens + o.CacheCreationTokens,
	}
}
