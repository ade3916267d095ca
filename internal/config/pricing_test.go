package config

import (
	"math"
	"testing"
	"time"

	"github.com/wysstartgo/anycode/internal/model"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("parse date %q: %v", s, err)
	}
	return d
}

func TestLookupPricingAt_UsesEffectiveDate(t *testing.T) {
	name := "test-model-windowed"
	orig, had := defaultPricingHistory[name]
	if had {
		defer func() { defaultPricingHistory[name] = orig }()
	} else {
		defer delete(defaultPricingHistory, name)
	}

	defaultPricingHistory[name] = []modelPricingVersion{
		{
			EffectiveFrom: mustDate(t, "2025-01-01"),
			Pricing:       ModelPricing{InputPerMTok: 1.0},
		},
		{
			EffectiveFrom: mustDate(t, "2025-07-01"),
			Pricing:       ModelPricing{InputPerMTok: 2.0},
		},
	}

	aprPrice, ok := LookupPricingAt(name, mustDate(t, "2025-04-15"))
	if !ok {
		t.Fatal("LookupPricingAt returned !ok for historical model")
	}
	if aprPrice.InputPerMTok != 1.0 {
		t.Fatalf("April price InputPerMTok = %.2f, want 1.0", aprPrice.InputPerMTok)
	}

	augPrice, ok := LookupPricingAt(name, mustDate(t, "2025-08-15"))
	if !ok {
		t.Fatal("LookupPricingAt returned !ok for historical model in later window")
	}
	if augPrice.InputPerMTok != 2.0 {
		t.Fatalf("August price InputPerMTok = %.2f, want 2.0", augPrice.InputPerMTok)
	}
}

func TestLookupPricingAt_UsesLatestWhenTimeZero(t *testing.T) {
	name := "test-model-latest"
	orig, had := defaultPricingHistory[name]
	if had {
		defer func() { defaultPricingHistory[name] = orig }()
	} else {
		defer delete(defaultPricingHistory, name)
	}

	defaultPricingHistory[name] = []modelPricingVersion{
		{
			EffectiveFrom: mustDate(t, "2025-01-01"),
			Pricing:       ModelPricing{InputPerMTok: 1.0},
		},
		{
			EffectiveFrom: mustDate(t, "2025-09-01"),
			Pricing:       ModelPricing{InputPerMTok: 3.0},
		},
	}

	price, ok := LookupPricingAt(name, time.Time{})
	if !ok {
		t.Fatal("LookupPricingAt returned !ok for model with pricing history")
	}
	if price.InputPerMTok != 3.0 {
		t.Fatalf("zero-time lookup InputPerMTok = %.2f, want 3.0", price.InputPerMTok)
	}
}

func TestLookupPricingAt_DatedChange(t *testing.T) {
	before, ok := LookupPricingAt("gemini-2.5-flash", mustDate(t, "2025-05-01"))
	if !ok {
		t.Fatal("gemini-2.5-flash missing")
	}
	after, _ := LookupPricingAt("gemini-2.5-flash", mustDate(t, "2025-07-01"))
	if before.OutputPerMTok >= after.OutputPerMTok {
		t.Fatalf("preview output price %.2f should be below GA price %.2f", before.OutputPerMTok, after.OutputPerMTok)
	}
}

func TestNormalizeModelName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"claude-opus-4-5-20251101", "claude-opus-4-5"},
		{"claude-sonnet-4-5", "claude-sonnet-4-5"},
		{"models/gemini-2.5-pro", "gemini-2.5-pro"},
		{"gemini-2.5-pro-preview-06-05", "gemini-2.5-pro"},
		{"gemini-2.5-flash-lite", "gemini-2.5-flash-lite"},
		{"GPT-5-Codex", "gpt-5-codex"},
		{"gpt-5.1-codex", "gpt-5"},
		{"mystery-model", "mystery-model"},
	}
	for _, tt := range tests {
		if got := NormalizeModelName(tt.in); got != tt.want {
			t.Errorf("NormalizeModelName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCost(t *testing.T) {
	tokens := model.TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000, CacheReadTokens: 1_000_000, CacheCreationTokens: 1_000_000}

	got := Cost(tokens, "claude-sonnet-4-5-20250929", model.EngineClaude)
	want := 3.00 + 15.00 + 0.30 + 3.75
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("claude cost = %.4f, want %.4f", got, want)
	}

	// Unnamed and unknown models fall back to the engine default.
	if a, b := Cost(tokens, "", model.EngineCodex), Cost(tokens, "gpt-5-codex", model.EngineCodex); a != b {
		t.Errorf("empty model cost %.4f != default model cost %.4f", a, b)
	}
	if a, b := Cost(tokens, "unreleased-model", model.EngineGemini), Cost(tokens, "gemini-2.5-pro", model.EngineGemini); a != b {
		t.Errorf("unknown model cost %.4f != default model cost %.4f", a, b)
	}
	if Cost(model.TokenUsage{}, "gpt-5", model.EngineCodex) != 0 {
		t.Error("zero tokens should cost nothing")
	}
}

func TestPricingOverrides(t *testing.T) {
	defer SetPricingOverrides(nil)

	in := 100.0
	SetPricingOverrides(map[string]ModelPricingOverride{
		"gpt-5":        {InputPerMTok: &in},
		"in-house-llm": {InputPerMTok: &in},
	})

	p, ok := LookupPricingAt("gpt-5", time.Time{})
	if !ok || p.InputPerMTok != 100 || p.OutputPerMTok != 10 {
		t.Errorf("gpt-5 pricing = %+v, ok=%v", p, ok)
	}
	p, ok = LookupPricingAt("in-house-llm", time.Time{})
	if !ok || p.InputPerMTok != 100 {
		t.Errorf("override-only model pricing = %+v, ok=%v", p, ok)
	}
}

func TestPricingFor_FallsBackToEngineDefault(t *testing.T) {
	at := mustDate(t, "2026-01-01")

	got, ok := PricingFor("mystery-model", model.EngineCodex, at)
	if !ok {
		t.Fatal("expected the codex default model to be priced")
	}
	if want := DefaultPricing["gpt-5-codex"]; got != want {
		t.Errorf("PricingFor(unknown, codex) = %+v, want %+v", got, want)
	}

	got, ok = PricingFor("", model.EngineClaude, at)
	if !ok || got != DefaultPricing["claude-sonnet-4-5"] {
		t.Errorf("PricingFor(\"\", claude) = %+v, %v", got, ok)
	}
}

func TestSplit_AddsUpToCost(t *testing.T) {
	p := DefaultPricing["claude-haiku-4-5"]
	u := model.TokenUsage{
		InputTokens:         2_000_000,
		OutputTokens:        1_000_000,
		CacheCreationTokens: 1_000_000,
		CacheReadTokens:     10_000_000,
	}

	in, out, write, read := p.Split(u)
	for _, c := range []struct {
		name      string
		got, want float64
	}{
		{"input", in, 2.00},
		{"output", out, 5.00},
		{"cache write", write, 1.25},
		{"cache read", read, 1.00},
	} {
		if math.Abs(c.got-c.want) > 1e-9 {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if total := costWith(p, u); math.Abs(total-(in+out+write+read)) > 1e-9 {
		t.Errorf("costWith = %v, want sum of parts %v", total, in+out+write+read)
	}
}
