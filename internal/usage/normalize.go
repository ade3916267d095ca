// Package usage converts the token-usage shapes emitted by each engine into
// the canonical four-category record.
package usage

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/wysstartgo/anycode/internal/model"
)

// Field aliases, checked in order. The first parseable field wins.
var (
	inputKeys         = []string{"input_tokens", "inputTokens"}
	outputKeys        = []string{"output_tokens", "outputTokens"}
	cacheReadKeys     = []string{"cache_read_tokens", "cacheReadTokens", "cache_read_input_tokens", "cacheReadInputTokens", "cached_content_token_count", "cachedContentTokenCount", "cached_tokens", "cachedTokens", "cached"}
	cacheCreationKeys = []string{"cache_creation_tokens", "cacheCreationTokens", "cache_creation_input_tokens", "cacheCreationInputTokens"}

	promptKeys     = []string{"prompt_token_count", "promptTokenCount", "prompt_tokens", "promptTokens", "prompt", "input"}
	candidatesKeys = []string{"candidates_token_count", "candidatesTokenCount", "candidates_tokens", "candidatesTokens", "candidates", "output"}
	thoughtsKeys   = []string{"thoughts_token_count", "thoughtsTokenCount", "thoughts_tokens", "thoughtsTokens", "thoughts"}
	toolKeys       = []string{"tool_use_prompt_token_count", "toolUsePromptTokenCount", "tool_token_count", "toolTokenCount", "tool"}

	// wrapperKeys are containers some engines nest the counters under.
	wrapperKeys = []string{"usage", "usageMetadata", "usage_metadata", "tokens"}
)

// Normalize converts raw into a canonical usage record. raw may be a
// model.TokenUsage (or pointer), a decoded JSON object, or undecoded JSON.
// It returns nil when every signal is zero or missing.
func Normalize(raw any) *model.TokenUsage {
	switch v := raw.(type) {
	case nil:
		return nil
	case model.TokenUsage:
		return fromCanonical(v)
	case *model.TokenUsage:
		if v == nil {
			return nil
		}
		return fromCanonical(*v)
	case json.RawMessage:
		return fromJSON(v)
	case []byte:
		return fromJSON(v)
	case map[string]any:
		return fromMap(v)
	}
	return nil
}

// NormalizeMessages rewrites the top-level and nested usage of every message
// in place.
func NormalizeMessages(msgs []model.Message) {
	for i := range msgs {
		m := &msgs[i]
		if m.Usage != nil {
			m.Usage = Normalize(m.Usage)
		}
		if m.Message != nil && m.Message.Usage != nil {
			m.Message.Usage = Normalize(m.Message.Usage)
		}
	}
}

func fromCanonical(u model.TokenUsage) *model.TokenUsage {
	out := model.TokenUsage{
		InputTokens:         max(u.InputTokens, 0),
		OutputTokens:        max(u.OutputTokens, 0),
		CacheReadTokens:     max(u.CacheReadTokens, 0),
		CacheCreationTokens: max(u.CacheCreationTokens, 0),
	}
	if out.Total() == 0 {
		return nil
	}
	return &out
}

func fromJSON(data []byte) *model.TokenUsage {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil
	}
	return fromMap(m)
}

func fromMap(m map[string]any) *model.TokenUsage {
	if u := derive(m); u != nil {
		return u
	}
	for _, k := range wrapperKeys {
		if inner, ok := m[k].(map[string]any); ok {
			if u := derive(inner); u != nil {
				return u
			}
		}
	}
	return nil
}

func derive(m map[string]any) *model.TokenUsage {
	var u model.TokenUsage

	if n, ok := lookup(m, inputKeys); ok {
		u.InputTokens = n
	} else {
		prompt, _ := lookup(m, promptKeys)
		tool, _ := lookup(m, toolKeys)
		u.InputTokens = prompt + tool
	}

	if n, ok := lookup(m, outputKeys); ok {
		u.OutputTokens = n
	} else {
		candidates, _ := lookup(m, candidatesKeys)
		thoughts, _ := lookup(m, thoughtsKeys)
		u.OutputTokens = candidates + thoughts
	}

	// Cached counters are only attached when strictly positive.
	if n, ok := lookup(m, cacheReadKeys); ok && n > 0 {
		u.CacheReadTokens = n
	}
	if n, ok := lookup(m, cacheCreationKeys); ok && n > 0 {
		u.CacheCreationTokens = n
	}

	if u.Total() == 0 {
		return nil
	}
	return &u
}

func lookup(m map[string]any, keys []string) (int64, bool) {
	for _, k := range keys {
		v, present := m[k]
		if !present {
			continue
		}
		if n, ok := Coerce(v); ok {
			return n, true
		}
	}
	return 0, false
}

// maxCount bounds a single counter so sums of counters cannot overflow.
const maxCount = 1 << 53

// Coerce accepts finite non-negative numbers and non-empty numeric strings.
// Everything else is reported as absent.
func Coerce(v any) (int64, bool) {
	var f float64
	switch x := v.(type) {
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		if x < 0 || x > maxCount {
			return 0, false
		}
		return x, true
	case float32:
		f = float64(x)
	case float64:
		f = x
	case json.Number:
		if n, err := x.Int64(); err == nil {
			if n < 0 || n > maxCount {
				return 0, false
			}
			return n, true
		}
		p, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = p
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false
		}
		p, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = p
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f > maxCount {
		return 0, false
	}
	return int64(f), true
}
