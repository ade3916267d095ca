package config

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wysstartgo/anycode/internal/model"
)

// ModelPricing holds per-million-token prices for a model.
type ModelPricing struct {
	InputPerMTok      float64
	OutputPerMTok     float64
	CacheWritePerMTok float64
	CacheReadPerMTok  float64
}

type modelPricingVersion struct {
	EffectiveFrom time.Time
	Pricing       ModelPricing
}

// DefaultPricing maps model base names to their current pricing.
var DefaultPricing = map[string]ModelPricing{
	// Anthropic
	"claude-opus-4-6":   {InputPerMTok: 5.00, OutputPerMTok: 25.00, CacheWritePerMTok: 6.25, CacheReadPerMTok: 0.50},
	"claude-opus-4-5":   {InputPerMTok: 5.00, OutputPerMTok: 25.00, CacheWritePerMTok: 6.25, CacheReadPerMTok: 0.50},
	"claude-opus-4-1":   {InputPerMTok: 15.00, OutputPerMTok: 75.00, CacheWritePerMTok: 18.75, CacheReadPerMTok: 1.50},
	"claude-opus-4":     {InputPerMTok: 15.00, OutputPerMTok: 75.00, CacheWritePerMTok: 18.75, CacheReadPerMTok: 1.50},
	"claude-sonnet-4-6": {InputPerMTok: 3.00, OutputPerMTok: 15.00, CacheWritePerMTok: 3.75, CacheReadPerMTok: 0.30},
	"claude-sonnet-4-5": {InputPerMTok: 3.00, OutputPerMTok: 15.00, CacheWritePerMTok: 3.75, CacheReadPerMTok: 0.30},
	"claude-sonnet-4":   {InputPerMTok: 3.00, OutputPerMTok: 15.00, CacheWritePerMTok: 3.75, CacheReadPerMTok: 0.30},
	"claude-haiku-4-5":  {InputPerMTok: 1.00, OutputPerMTok: 5.00, CacheWritePerMTok: 1.25, CacheReadPerMTok: 0.10},
	"claude-haiku-3-5":  {InputPerMTok: 0.80, OutputPerMTok: 4.00, CacheWritePerMTok: 1.00, CacheReadPerMTok: 0.08},

	// OpenAI (cached input is billed at the cache-read rate, no write premium)
	"gpt-5":             {InputPerMTok: 1.25, OutputPerMTok: 10.00, CacheReadPerMTok: 0.125},
	"gpt-5-codex":       {InputPerMTok: 1.25, OutputPerMTok: 10.00, CacheReadPerMTok: 0.125},
	"gpt-5-mini":        {InputPerMTok: 0.25, OutputPerMTok: 2.00, CacheReadPerMTok: 0.025},
	"gpt-5-nano":        {InputPerMTok: 0.05, OutputPerMTok: 0.40, CacheReadPerMTok: 0.005},
	"gpt-4.1":           {InputPerMTok: 2.00, OutputPerMTok: 8.00, CacheReadPerMTok: 0.50},
	"o3":                {InputPerMTok: 2.00, OutputPerMTok: 8.00, CacheReadPerMTok: 0.50},
	"o4-mini":           {InputPerMTok: 1.10, OutputPerMTok: 4.40, CacheReadPerMTok: 0.275},
	"codex-mini-latest": {InputPerMTok: 1.50, OutputPerMTok: 6.00, CacheReadPerMTok: 0.375},

	// Google (prompts up to 200K tokens)
	"gemini-3-pro-preview":  {InputPerMTok: 2.00, OutputPerMTok: 12.00, CacheReadPerMTok: 0.20},
	"gemini-2.5-pro":        {InputPerMTok: 1.25, OutputPerMTok: 10.00, CacheReadPerMTok: 0.31},
	"gemini-2.5-flash":      {InputPerMTok: 0.30, OutputPerMTok: 2.50, CacheReadPerMTok: 0.075},
	"gemini-2.5-flash-lite": {InputPerMTok: 0.10, OutputPerMTok: 0.40, CacheReadPerMTok: 0.025},
	"gemini-2.0-flash":      {InputPerMTok: 0.10, OutputPerMTok: 0.40, CacheReadPerMTok: 0.025},
}

// pricingChanges lists superseded prices. The current price from
// DefaultPricing applies from the listed date onward.
var pricingChanges = map[string][]modelPricingVersion{
	"gemini-2.5-flash": {
		{Pricing: ModelPricing{InputPerMTok: 0.15, OutputPerMTok: 0.60, CacheReadPerMTok: 0.0375}},
		{EffectiveFrom: time.Date(2025, 6, 17, 0, 0, 0, 0, time.UTC), Pricing: DefaultPricing["gemini-2.5-flash"]},
	},
}

// defaultPricingHistory stores effective-dated prices for each model.
// Entries must be sorted by EffectiveFrom ascending.
var defaultPricingHistory = makeDefaultPricingHistory(DefaultPricing, pricingChanges)

func makeDefaultPricingHistory(base map[string]ModelPricing, changes map[string][]modelPricingVersion) map[string][]modelPricingVersion {
	history := make(map[string][]modelPricingVersion, len(base))
	for modelName, pricing := range base {
		if versions, ok := changes[modelName]; ok {
			history[modelName] = versions
			continue
		}
		history[modelName] = []modelPricingVersion{{Pricing: pricing}}
	}
	return history
}

// engineDefaults are the models assumed when a record does not name one.
var engineDefaults = map[model.Engine]string{
	model.EngineClaude: "claude-sonnet-4-5",
	model.EngineCodex:  "gpt-5-codex",
	model.EngineGemini: "gemini-2.5-pro",
}

// DefaultModel returns the model assumed for engine when a record names none.
func DefaultModel(engine model.Engine) string {
	if m, ok := engineDefaults[engine]; ok {
		return m
	}
	return engineDefaults[model.EngineClaude]
}

var (
	overridesMu sync.RWMutex
	overrides   map[string]ModelPricingOverride
)

// SetPricingOverrides installs user-defined prices, replacing any previous set.
func SetPricingOverrides(o map[string]ModelPricingOverride) {
	overridesMu.Lock()
	defer overridesMu.Unlock()
	overrides = o
}

func applyOverride(name string, p ModelPricing) (ModelPricing, bool) {
	overridesMu.RLock()
	o, ok := overrides[name]
	overridesMu.RUnlock()
	if !ok {
		return p, false
	}
	if o.InputPerMTok != nil {
		p.InputPerMTok = *o.InputPerMTok
	}
	if o.OutputPerMTok != nil {
		p.OutputPerMTok = *o.OutputPerMTok
	}
	if o.CacheWritePerMTok != nil {
		p.CacheWritePerMTok = *o.CacheWritePerMTok
	}
	if o.CacheReadPerMTok != nil {
		p.CacheReadPerMTok = *o.CacheReadPerMTok
	}
	return p, true
}

func hasPricingModel(name string) bool {
	if _, ok := defaultPricingHistory[name]; ok {
		return true
	}
	if _, ok := DefaultPricing[name]; ok {
		return true
	}
	overridesMu.RLock()
	defer overridesMu.RUnlock()
	_, ok := overrides[name]
	return ok
}

// NormalizeModelName maps a raw model identifier to a pricing table key.
// Date suffixes are stripped ("claude-opus-4-5-20251101" -> "claude-opus-4-5"),
// provider prefixes dropped ("models/gemini-2.5-pro" -> "gemini-2.5-pro"), and
// otherwise the longest known prefix wins ("gemini-2.5-pro-preview-06-05" ->
// "gemini-2.5-pro"). Unknown names are returned unchanged.
func NormalizeModelName(raw string) string {
	name := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if hasPricingModel(name) {
		return name
	}

	parts := strings.Split(name, "-")
	if len(parts) >= 2 {
		last := parts[len(parts)-1]
		if isAllDigits(last) && len(last) >= 8 {
			candidate := strings.Join(parts[:len(parts)-1], "-")
			if hasPricingModel(candidate) {
				return candidate
			}
		}
	}

	if best := longestKnownPrefix(name); best != "" {
		return best
	}
	return raw
}

func longestKnownPrefix(name string) string {
	keys := make([]string, 0, len(DefaultPricing))
	for k := range DefaultPricing {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	for _, k := range keys {
		if strings.HasPrefix(name, k+"-") || strings.HasPrefix(name, k+".") {
			return k
		}
	}
	return ""
}

func isAllDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}

// LookupPricing returns the pricing for a model, normalizing the name first.
// Returns zero pricing and false if the model is unknown.
func LookupPricing(modelName string) (ModelPricing, bool) {
	return LookupPricingAt(modelName, time.Now())
}

// LookupPricingAt returns the pricing for a model at the given timestamp.
// If at is zero, the latest known pricing entry is used. User overrides are
// applied on top of the table.
func LookupPricingAt(modelName string, at time.Time) (ModelPricing, bool) {
	normalized := NormalizeModelName(modelName)
	p, ok := lookupTable(normalized, at)
	p, overridden := applyOverride(normalized, p)
	return p, ok || overridden
}

func lookupTable(normalized string, at time.Time) (ModelPricing, bool) {
	versions, ok := defaultPricingHistory[normalized]
	if !ok || len(versions) == 0 {
		p, fallback := DefaultPricing[normalized]
		return p, fallback
	}

	if at.IsZero() {
		return versions[len(versions)-1].Pricing, true
	}

	at = at.UTC()
	selected := versions[0].Pricing
	for _, v := range versions {
		if v.EffectiveFrom.IsZero() || !at.Before(v.EffectiveFrom.UTC()) {
			selected = v.Pricing
			continue
		}
		break
	}
	return selected, true
}

// CalculateCostAt computes the estimated cost in USD for one usage record at
// a point in time. Unknown models cost nothing.
func CalculateCostAt(modelName string, at time.Time, u model.TokenUsage) float64 {
	pricing, ok := LookupPricingAt(modelName, at)
	if !ok {
		return 0
	}
	return costWith(pricing, u)
}

func costWith(pricing ModelPricing, u model.TokenUsage) float64 {
	in, out, write, read := pricing.Split(u)
	return in + out + write + read
}

// Split prices each token category of u separately, in USD.
func (p ModelPricing) Split(u model.TokenUsage) (input, output, cacheWrite, cacheRead float64) {
	perTok := func(n int64, perM float64) float64 { return float64(n) * perM / 1_000_000 }
	return perTok(u.InputTokens, p.InputPerMTok),
		perTok(u.OutputTokens, p.OutputPerMTok),
		perTok(u.CacheCreationTokens, p.CacheWritePerMTok),
		perTok(u.CacheReadTokens, p.CacheReadPerMTok)
}

// PricingFor resolves the prices in effect at for modelName as reported by
// engine. A model missing from the table is priced as the engine's default
// model; an empty name means the default model.
func PricingFor(modelName string, engine model.Engine, at time.Time) (ModelPricing, bool) {
	if modelName != "" {
		if p, ok := LookupPricingAt(modelName, at); ok {
			return p, true
		}
	}
	return LookupPricingAt(DefaultModel(engine), at)
}

// Cost prices tokens for modelName as reported by engine, using current
// prices.
func Cost(tokens model.TokenUsage, modelName string, engine model.Engine) float64 {
	return CostAt(tokens, modelName, engine, time.Time{})
}

// CostAt is Cost with effective-dated pricing.
func CostAt(tokens model.TokenUsage, modelName string, engine model.Engine, at time.Time) float64 {
	pricing, ok := PricingFor(modelName, engine, at)
	if !ok {
		return 0
	}
	return costWith(pricing, tokens)
}

// CalculateCacheSavings computes how much the cache reads saved vs full input pricing.
func CalculateCacheSavings(modelName string, cacheReadTokens int64) float64 {
	pricing, ok := LookupPricingAt(modelName, time.Time{})
	if !ok {
		return 0
	}
	fullCost := float64(cacheReadTokens) * pricing.InputPerMTok / 1_000_000
	actualCost := float64(cacheReadTokens) * pricing.CacheReadPerMTok / 1_000_000
	return fullCost - actualCost
}
