package model

// BillingEvent is one deduplicated, costed usage record.
type BillingEvent struct {
	Key          string     `json:"key" yaml:"key"`
	Tokens       TokenUsage `json:"tokens" yaml:"tokens"`
	Model        string     `json:"model" yaml:"model"`
	Engine       Engine     `json:"engine" yaml:"engine"`
	Cost         float64    `json:"cost" yaml:"cost"`
	Timestamp    string     `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	TimestampMs  int64      `json:"timestamp_ms,omitempty" yaml:"timestamp_ms,omitempty"`
	HasTimestamp bool       `json:"-" yaml:"-"`
	Source       *Message   `json:"-" yaml:"-"`
}

// Totals are plain sums over a ledger's surviving events.
type Totals struct {
	Cost                float64 `json:"cost" yaml:"cost"`
	InputTokens         int64   `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens        int64   `json:"output_tokens" yaml:"output_tokens"`
	CacheReadTokens     int64   `json:"cache_read_tokens" yaml:"cache_read_tokens"`
	CacheCreationTokens int64   `json:"cache_creation_tokens" yaml:"cache_creation_tokens"`
	TotalTokens         int64   `json:"total_tokens" yaml:"total_tokens"`
}

// Timespan holds the first and last parseable event timestamps in epoch
// milliseconds. Valid is false when no event carried one.
type Timespan struct {
	FirstMs int64 `json:"first_ms,omitempty" yaml:"first_ms,omitempty"`
	LastMs  int64 `json:"last_ms,omitempty" yaml:"last_ms,omitempty"`
	Valid   bool  `json:"valid" yaml:"valid"`
}

// Ledger is the billing view of one canonical message sequence.
type Ledger struct {
	Totals   Totals                 `json:"totals" yaml:"totals"`
	Events   []BillingEvent         `json:"events" yaml:"events"`
	Count    int                    `json:"count" yaml:"count"`
	Timespan Timespan               `json:"timespan" yaml:"timespan"`
	ByModel  map[string]*ModelUsage `json:"by_model,omitempty" yaml:"by_model,omitempty"`
}
