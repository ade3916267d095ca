// Package source discovers and parses the session logs of every supported engine.
package source

import (
	"bytes"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/wysstartgo/anycode/internal/adapter"
	"github.com/wysstartgo/anycode/internal/billing"
	"github.com/wysstartgo/anycode/internal/model"
)

// ParseResult holds the output of parsing a single session file.
type ParseResult struct {
	Stats       model.SessionStats
	Ledger      model.Ledger
	RateLimits  *model.RateLimits
	ParseErrors int
	Err         error
}

var (
	ledger  = billing.New(billing.WithEffectiveDates())
	discard = log.New(io.Discard, "", 0)
)

// ParseFile reads one session log and summarizes it. Records go through the
// engine's adapter and billing through the ledger, so the totals match what a
// live viewer of the same session shows.
func ParseFile(df DiscoveredFile) ParseResult {
	return parseFile(df, adapter.NewDecoder(discard))
}

func parseFile(df DiscoveredFile, dec *adapter.Decoder) ParseResult {
	f, err := os.Open(df.Path)
	if err != nil {
		return ParseResult{Err: err}
	}
	defer func() { _ = f.Close() }()

	engine := df.Engine
	if engine == "" {
		engine = model.EngineClaude
	}
	h, err := dec.DecodeReader(engine, f)
	if err != nil {
		return ParseResult{Err: err}
	}

	var sc sessionScan
	sc.messages(h.Messages)
	sc.lines(h.Raw)
	l := ledger.Aggregate(h.Messages)

	stats := model.SessionStats{
		SessionID:           df.SessionID,
		Engine:              engine,
		Project:             df.Project,
		ProjectPath:         sc.cwd,
		FilePath:            df.Path,
		IsSubagent:          df.IsSubagent,
		ParentSession:       df.ParentSession,
		StartTime:           sc.first,
		EndTime:             sc.last,
		UserMessages:        sc.prompts,
		APICalls:            l.Count,
		InputTokens:         l.Totals.InputTokens,
		OutputTokens:        l.Totals.OutputTokens,
		CacheCreationTokens: l.Totals.CacheCreationTokens,
		CacheReadTokens:     l.Totals.CacheReadTokens,
		EstimatedCost:       l.Totals.Cost,
		Models:              l.ByModel,
		DurationSecs:        sc.durationSecs(),
	}
	if in := stats.InputTokens + stats.CacheCreationTokens + stats.CacheReadTokens; in > 0 {
		stats.CacheHitRate = float64(stats.CacheReadTokens) / float64(in)
	}

	return ParseResult{
		Stats:       stats,
		Ledger:      l,
		RateLimits:  h.RateLimits,
		ParseErrors: h.ParseErrors,
	}
}

// sessionScan accumulates what the ledger does not track: the time span,
// the prompt count, the working directory and reported turn time.
type sessionScan struct {
	first, last time.Time
	prompts     int
	cwd         string
	turnMs      int64
}

func (sc *sessionScan) messages(msgs []model.Message) {
	for i := range msgs {
		msg := &msgs[i]
		if ts, ok := model.ParseTimestamp(msg.Timestamp); ok {
			if sc.first.IsZero() || ts.Before(sc.first) {
				sc.first = ts
			}
			if ts.After(sc.last) {
				sc.last = ts
			}
		}
		if isPrompt(msg) {
			sc.prompts++
		}
	}
}

var turnDuration = []byte(`"turn_duration"`)

func (sc *sessionScan) lines(raw [][]byte) {
	for _, line := range raw {
		if sc.cwd == "" {
			sc.cwd = stringField(line, "cwd")
		}
		if bytes.Contains(line, turnDuration) {
			if ms, ok := intField(line, "durationMs"); ok {
				sc.turnMs += ms
			}
		}
	}
}

// durationSecs prefers the engine's own turn timings and falls back to the
// wall-clock span between the first and last record.
func (sc *sessionScan) durationSecs() int64 {
	if sc.turnMs > 0 {
		return sc.turnMs / 1000
	}
	if sc.first.IsZero() {
		return 0
	}
	return int64(sc.last.Sub(sc.first).Seconds())
}

// isPrompt reports whether msg is a prompt typed by the user, as opposed to
// a tool result or command echo.
func isPrompt(msg *model.Message) bool {
	if msg.Kind != model.KindUser || msg.IsSubagent() {
		return false
	}
	for _, b := range msg.Blocks() {
		if b.Type == model.BlockToolResult {
			return false
		}
	}
	return msg.HasText()
}

// fieldValue returns the bytes following the first `"key":` in line, with
// leading spaces trimmed. It does not decode the line.
func fieldValue(line []byte, key string) ([]byte, bool) {
	pat := make([]byte, 0, len(key)+3)
	pat = append(pat, '"')
	pat = append(pat, key...)
	pat = append(pat, '"', ':')
	idx := bytes.Index(line, pat)
	if idx < 0 {
		return nil, false
	}
	return bytes.TrimLeft(line[idx+len(pat):], " "), true
}

// stringField extracts a short unescaped string value for key.
func stringField(line []byte, key string) string {
	v, ok := fieldValue(line, key)
	if !ok || len(v) == 0 || v[0] != '"' {
		return ""
	}
	end := bytes.IndexByte(v[1:], '"')
	if end < 0 || end > 1024 {
		return ""
	}
	return string(v[1 : 1+end])
}

// intField extracts a non-negative integer value for key.
func intField(line []byte, key string) (int64, bool) {
	v, ok := fieldValue(line, key)
	if !ok {
		return 0, false
	}
	end := 0
	for end < len(v) && v[end] >= '0' && v[end] <= '9' {
		end++
	}
	n, err := strconv.ParseInt(string(v[:end]), 10, 64)
	return n, err == nil
}
