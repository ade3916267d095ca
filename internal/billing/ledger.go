// Package billing derives a deduplicated, ordered cost ledger from a
// canonical message sequence.
package billing

import (
	"sort"
	"strconv"
	"time"

	"github.com/wysstartgo/anycode/internal/config"
	"github.com/wysstartgo/anycode/internal/model"
	"github.com/wysstartgo/anycode/internal/usage"
)

// PriceFunc prices one usage record.
type PriceFunc func(tokens model.TokenUsage, modelName string, engine model.Engine) float64

// Aggregator builds ledgers with a fixed pricing function.
type Aggregator struct {
	price   PriceFunc
	priceAt func(tokens model.TokenUsage, modelName string, engine model.Engine, at time.Time) float64
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithPricer replaces the default table-driven pricing.
func WithPricer(fn PriceFunc) Option {
	return func(a *Aggregator) {
		if fn != nil {
			a.price = fn
		}
	}
}

// WithEffectiveDates prices timestamped events with the rates in force at
// their timestamp. Events without a timestamp keep the current rates.
func WithEffectiveDates() Option {
	return func(a *Aggregator) {
		a.priceAt = config.CostAt
	}
}

// New returns an Aggregator priced by config.Cost unless overridden.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{price: config.Cost}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate builds a ledger with the default Aggregator.
func Aggregate(msgs []model.Message) model.Ledger {
	return New().Aggregate(msgs)
}

// EngineOf returns the engine of msg, treating untagged messages as Claude.
func EngineOf(msg *model.Message) model.Engine {
	if msg.Engine == "" {
		return model.EngineClaude
	}
	return msg.Engine
}

// Billable reports whether msg is a billing candidate for its engine. Each
// engine reports usage at a different granularity, so each has its own rule.
func Billable(msg *model.Message) bool {
	switch EngineOf(msg) {
	case model.EngineClaude:
		return msg.Kind == model.KindAssistant
	case model.EngineCodex:
		// Cumulative thread totals double-count the per-turn snapshots.
		return msg.Kind == model.KindSystem &&
			msg.TokenUsage() != nil &&
			msg.Subtype != model.SubtypeThreadUsageUpdated
	case model.EngineGemini:
		return msg.Kind == model.KindResult && msg.TokenUsage() != nil
	}
	return false
}

// Key returns the deduplication identity of msg at position idx. Priority:
// nested message id, top-level id, uuid, timestamp, then position. The
// position fallback is not stable across reloads that filter records.
func Key(msg *model.Message, idx int) string {
	switch {
	case msg.Message != nil && msg.Message.ID != "":
		return msg.Message.ID
	case msg.ID != "":
		return msg.ID
	case msg.UUID != "":
		return msg.UUID
	case msg.Timestamp != "":
		return msg.Timestamp
	}
	return "#" + strconv.Itoa(idx)
}

type candidate struct {
	event model.BillingEvent
	pos   int
}

// Aggregate scans msgs and returns the ledger of surviving billing events.
// Totals are summed from the final event set, so the result does not depend
// on how candidates were superseded along the way.
func (a *Aggregator) Aggregate(msgs []model.Message) model.Ledger {
	byKey := make(map[string]int)
	var cands []candidate

	for i := range msgs {
		msg := &msgs[i]
		if !Billable(msg) {
			continue
		}
		tokens := usage.Normalize(msg.TokenUsage())
		if tokens == nil || tokens.Total() == 0 {
			continue
		}

		engine := EngineOf(msg)
		modelName := msg.ModelName()
		if modelName == "" {
			modelName = config.DefaultModel(engine)
		}

		ev := model.BillingEvent{
			Key:       Key(msg, i),
			Tokens:    *tokens,
			Model:     modelName,
			Engine:    engine,
			Timestamp: msg.Timestamp,
			Source:    msg,
		}
		ts, ok := model.ParseTimestamp(msg.Timestamp)
		if ok {
			ev.TimestampMs = ts.UnixMilli()
			ev.HasTimestamp = true
		}
		if ok && a.priceAt != nil {
			ev.Cost = a.priceAt(*tokens, modelName, engine, ts)
		} else {
			ev.Cost = a.price(*tokens, modelName, engine)
		}

		if j, seen := byKey[ev.Key]; seen {
			if supersedes(ev, cands[j].event) {
				cands[j].event = ev
			}
			continue
		}
		byKey[ev.Key] = len(cands)
		cands = append(cands, candidate{event: ev, pos: i})
	}

	sort.SliceStable(cands, func(i, j int) bool {
		x, y := cands[i].event, cands[j].event
		switch {
		case x.HasTimestamp && y.HasTimestamp:
			return x.TimestampMs < y.TimestampMs
		case x.HasTimestamp != y.HasTimestamp:
			return x.HasTimestamp
		}
		return cands[i].pos < cands[j].pos
	})

	ledger := model.Ledger{Events: make([]model.BillingEvent, 0, len(cands))}
	for _, c := range cands {
		ledger.Events = append(ledger.Events, c.event)
	}
	ledger.Count = len(ledger.Events)
	ledger.Totals = Sum(ledger.Events)
	ledger.Timespan = Span(ledger.Events)
	ledger.ByModel = ByModel(ledger.Events)
	return ledger
}

// supersedes reports whether next replaces prev for the same key: more total
// tokens wins; on a tie the later timestamp wins, and without comparable
// timestamps the later-scanned candidate wins.
func supersedes(next, prev model.BillingEvent) bool {
	nt, pt := next.Tokens.Total(), prev.Tokens.Total()
	if nt != pt {
		return nt > pt
	}
	if next.HasTimestamp && prev.HasTimestamp {
		return next.TimestampMs >= prev.TimestampMs
	}
	return true
}

// Sum totals cost and each token category over events.
func Sum(events []model.BillingEvent) model.Totals {
	var t model.Totals
	for _, ev := range events {
		t.Cost += ev.Cost
		t.InputTokens += ev.Tokens.InputTokens
		t.OutputTokens += ev.Tokens.OutputTokens
		t.CacheReadTokens += ev.Tokens.CacheReadTokens
		t.CacheCreationTokens += ev.Tokens.CacheCreationTokens
	}
	t.TotalTokens = t.InputTokens + t.OutputTokens + t.CacheReadTokens + t.CacheCreationTokens
	return t
}

// Span returns the first and last event timestamps.
func Span(events []model.BillingEvent) model.Timespan {
	var span model.Timespan
	for _, ev := range events {
		if !ev.HasTimestamp {
			continue
		}
		if !span.Valid || ev.TimestampMs < span.FirstMs {
			span.FirstMs = ev.TimestampMs
		}
		if !span.Valid || ev.TimestampMs > span.LastMs {
			span.LastMs = ev.TimestampMs
		}
		span.Valid = true
	}
	return span
}

// ByModel rolls events up per normalized model name.
func ByModel(events []model.BillingEvent) map[string]*model.ModelUsage {
	out := make(map[string]*model.ModelUsage)
	for _, ev := range events {
		name := config.NormalizeModelName(ev.Model)
		mu, ok := out[name]
		if !ok {
			mu = &model.ModelUsage{}
			out[name] = mu
		}
		mu.APICalls++
		mu.InputTokens += ev.Tokens.InputTokens
		mu.OutputTokens += ev.Tokens.OutputTokens
		mu.CacheReadTokens += ev.Tokens.CacheReadTokens
		mu.CacheCreationTokens += ev.Tokens.CacheCreationTokens
		mu.EstimatedCost += ev.Cost
	}
	return out
}
