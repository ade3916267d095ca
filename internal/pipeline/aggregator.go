// Package pipeline loads session statistics from every engine, caches them
// and rolls them up into the report shapes the commands print.
package pipeline

import (
	"cmp"
	"slices"
	"time"

	"github.com/samber/lo"

	"github.com/wysstartgo/anycode/internal/config"
	"github.com/wysstartgo/anycode/internal/model"
)

const dayLayout = "2006-01-02"

func localDay(t time.Time) string { return t.Local().Format(dayLayout) }

// Aggregate rolls the sessions started in [since, until) into one summary.
// Per-day rates divide by days with activity, not by the range length.
func Aggregate(sessions []model.SessionStats, since, until time.Time) model.SummaryStats {
	var st model.SummaryStats
	active := make(map[string]struct{})

	for _, s := range FilterByTime(sessions, since, until) {
		st.TotalSessions++
		st.TotalPrompts += s.UserMessages
		st.TotalAPICalls += s.APICalls
		st.TotalDurationSecs += s.DurationSecs
		st.InputTokens += s.InputTokens
		st.OutputTokens += s.OutputTokens
		st.CacheCreationTokens += s.CacheCreationTokens
		st.CacheReadTokens += s.CacheReadTokens
		st.EstimatedCost += s.EstimatedCost
		for name, mu := range s.Models {
			st.CacheSavings += config.CalculateCacheSavings(name, mu.CacheReadTokens)
		}
		if !s.StartTime.IsZero() {
			active[localDay(s.StartTime)] = struct{}{}
		}
	}

	st.ActiveDays = len(active)
	st.TotalBilledTokens = st.InputTokens + st.OutputTokens + st.CacheCreationTokens
	if prompt := st.InputTokens + st.CacheCreationTokens + st.CacheReadTokens; prompt > 0 {
		st.CacheHitRate = float64(st.CacheReadTokens) / float64(prompt)
	}
	if st.ActiveDays > 0 {
		n := float64(st.ActiveDays)
		st.CostPerDay = st.EstimatedCost / n
		st.TokensPerDay = int64(float64(st.TotalBilledTokens) / n)
		st.SessionsPerDay = float64(st.TotalSessions) / n
		st.PromptsPerDay = float64(st.TotalPrompts) / n
	}
	return st
}

// AggregateDays returns one row per local calendar day, newest first. When
// both bounds are set, days without sessions appear as zero rows.
func AggregateDays(sessions []model.SessionStats, since, until time.Time) []model.DailyStats {
	started := lo.Filter(FilterByTime(sessions, since, until), func(s model.SessionStats, _ int) bool {
		return !s.StartTime.IsZero()
	})
	byDay := lo.GroupBy(started, func(s model.SessionStats) string { return localDay(s.StartTime) })

	if !since.IsZero() && !until.IsZero() {
		for d, end := startOfDay(since), startOfDay(until); !d.After(end); d = d.AddDate(0, 0, 1) {
			if _, ok := byDay[d.Format(dayLayout)]; !ok {
				byDay[d.Format(dayLayout)] = nil
			}
		}
	}

	days := make([]model.DailyStats, 0, len(byDay))
	for key, group := range byDay {
		date, _ := time.ParseInLocation(dayLayout, key, time.Local)
		ds := model.DailyStats{Date: date, Sessions: len(group)}
		for _, s := range group {
			ds.Prompts += s.UserMessages
			ds.APICalls += s.APICalls
			ds.DurationSecs += s.DurationSecs
			ds.InputTokens += s.InputTokens
			ds.OutputTokens += s.OutputTokens
			ds.CacheCreationTokens += s.CacheCreationTokens
			ds.CacheReadTokens += s.CacheReadTokens
			ds.EstimatedCost += s.EstimatedCost
		}
		days = append(days, ds)
	}
	slices.SortFunc(days, func(a, b model.DailyStats) int { return b.Date.Compare(a.Date) })
	return days
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Local().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}

// AggregateModels returns per-model totals, most expensive first. Share is
// the model's fraction of all API calls.
func AggregateModels(sessions []model.SessionStats, since, until time.Time) []model.ModelStats {
	byModel := make(map[string]*model.ModelStats)
	for _, s := range FilterByTime(sessions, since, until) {
		for name, mu := range s.Models {
			ms := byModel[name]
			if ms == nil {
				ms = &model.ModelStats{Model: name, Engine: s.Engine}
				byModel[name] = ms
			}
			ms.APICalls += mu.APICalls
			ms.InputTokens += mu.InputTokens
			ms.OutputTokens += mu.OutputTokens
			ms.CacheCreationTokens += mu.CacheCreationTokens
			ms.CacheReadTokens += mu.CacheReadTokens
			ms.EstimatedCost += mu.EstimatedCost
		}
	}

	calls := lo.SumBy(lo.Values(byModel), func(ms *model.ModelStats) int { return ms.APICalls })
	models := lo.Map(lo.Values(byModel), func(ms *model.ModelStats, _ int) model.ModelStats {
		if calls > 0 {
			ms.SharePercent = float64(ms.APICalls) / float64(calls) * 100
		}
		return *ms
	})
	slices.SortFunc(models, func(a, b model.ModelStats) int {
		return cmp.Or(cmp.Compare(b.EstimatedCost, a.EstimatedCost), cmp.Compare(a.Model, b.Model))
	})
	return models
}

// AggregateEngines returns per-engine totals in the fixed engine order,
// omitting engines without sessions. Share is the fraction of cost.
func AggregateEngines(sessions []model.SessionStats, since, until time.Time) []model.EngineStats {
	filtered := FilterByTime(sessions, since, until)
	byEngine := lo.GroupBy(filtered, engineOf)
	total := lo.SumBy(filtered, func(s model.SessionStats) float64 { return s.EstimatedCost })

	var out []model.EngineStats
	for _, e := range model.Engines {
		group, ok := byEngine[e]
		if !ok {
			continue
		}
		es := model.EngineStats{
			Engine:        e,
			Sessions:      len(group),
			APICalls:      lo.SumBy(group, func(s model.SessionStats) int { return s.APICalls }),
			TotalTokens:   lo.SumBy(group, model.SessionStats.TotalTokens),
			EstimatedCost: lo.SumBy(group, func(s model.SessionStats) float64 { return s.EstimatedCost }),
		}
		if total > 0 {
			es.SharePercent = es.EstimatedCost / total * 100
		}
		out = append(out, es)
	}
	return out
}

// AggregateProjects returns per-project totals, most expensive first. A
// project worked on with several engines lists each of them once.
func AggregateProjects(sessions []model.SessionStats, since, until time.Time) []model.ProjectStats {
	byProject := lo.GroupBy(FilterByTime(sessions, since, until), func(s model.SessionStats) string {
		return s.Project
	})

	projects := make([]model.ProjectStats, 0, len(byProject))
	for name, group := range byProject {
		ps := model.ProjectStats{Project: name, Sessions: len(group)}
		for _, s := range group {
			ps.Prompts += s.UserMessages
			ps.TotalTokens += s.TotalTokens()
			ps.EstimatedCost += s.EstimatedCost
		}
		ps.Engines = lo.Filter(model.Engines, func(e model.Engine, _ int) bool {
			return lo.ContainsBy(group, func(s model.SessionStats) bool { return s.Engine == e })
		})
		projects = append(projects, ps)
	}
	slices.SortFunc(projects, func(a, b model.ProjectStats) int {
		return cmp.Or(cmp.Compare(b.EstimatedCost, a.EstimatedCost), cmp.Compare(a.Project, b.Project))
	})
	return projects
}

// AggregateHourly buckets sessions by the local hour they started in.
func AggregateHourly(sessions []model.SessionStats, since, until time.Time) []model.HourlyStats {
	hours := make([]model.HourlyStats, 24)
	for i := range hours {
		hours[i].Hour = i
	}
	for _, s := range FilterByTime(sessions, since, until) {
		if s.StartTime.IsZero() {
			continue
		}
		h := &hours[s.StartTime.Local().Hour()]
		h.Sessions++
		h.Prompts += s.UserMessages
		h.Tokens += s.InputTokens + s.OutputTokens
	}
	return hours
}
