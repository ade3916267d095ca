package pipeline

import (
	"cmp"
	"slices"
	"time"

	"github.com/samber/lo"

	"github.com/wysstartgo/anycode/internal/config"
	"github.com/wysstartgo/anycode/internal/model"
)

// TokenTypeCosts holds aggregate costs split by token type.
type TokenTypeCosts struct {
	InputCost         float64 `json:"input_cost" yaml:"input_cost"`
	OutputCost        float64 `json:"output_cost" yaml:"output_cost"`
	CacheCreationCost float64 `json:"cache_creation_cost" yaml:"cache_creation_cost"`
	CacheReadCost     float64 `json:"cache_read_cost" yaml:"cache_read_cost"`
	CacheCost         float64 `json:"cache_cost" yaml:"cache_cost"`
	TotalCost         float64 `json:"total_cost" yaml:"total_cost"`
}

func (c *TokenTypeCosts) add(input, output, cacheWrite, cacheRead float64) {
	c.InputCost += input
	c.OutputCost += output
	c.CacheCreationCost += cacheWrite
	c.CacheReadCost += cacheRead
	c.CacheCost = c.CacheCreationCost + c.CacheReadCost
	c.TotalCost = c.InputCost + c.OutputCost + c.CacheCost
}

// ModelCostBreakdown holds cost components for one model.
type ModelCostBreakdown struct {
	Model          string `json:"model" yaml:"model"`
	TokenTypeCosts `yaml:",inline"`
}

// AggregateCostBreakdown splits the cost of sessions started in
// [since, until) by token type and by model, most expensive model first.
// Prices are those in effect when each session started.
func AggregateCostBreakdown(sessions []model.SessionStats, since, until time.Time) (TokenTypeCosts, []ModelCostBreakdown) {
	var totals TokenTypeCosts
	byModel := make(map[string]*ModelCostBreakdown)

	for _, s := range FilterByTime(sessions, since, until) {
		for name, mu := range s.Models {
			pricing, ok := config.PricingFor(name, engineOf(s), s.StartTime)
			if !ok {
				continue
			}
			in, out, write, read := pricing.Split(model.TokenUsage{
				InputTokens:         mu.InputTokens,
				OutputTokens:        mu.OutputTokens,
				CacheCreationTokens: mu.CacheCreationTokens,
				CacheReadTokens:     mu.CacheReadTokens,
			})
			totals.add(in, out, write, read)

			row := byModel[name]
			if row == nil {
				row = &ModelCostBreakdown{Model: name}
				byModel[name] = row
			}
			row.add(in, out, write, read)
		}
	}

	rows := lo.Map(lo.Values(byModel), func(r *ModelCostBreakdown, _ int) ModelCostBreakdown { return *r })
	slices.SortFunc(rows, func(a, b ModelCostBreakdown) int {
		return cmp.Or(cmp.Compare(b.TotalCost, a.TotalCost), cmp.Compare(a.Model, b.Model))
	})
	return totals, rows
}
