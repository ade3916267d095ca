package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wysstartgo/anycode/internal/model"
	"github.com/wysstartgo/anycode/internal/source"
	"github.com/wysstartgo/anycode/internal/store"
)

func sess(engine model.Engine, id string, start time.Time, cost float64, models map[string]*model.ModelUsage) model.SessionStats {
	s := model.SessionStats{
		SessionID: id, Engine: engine, Project: "p", StartTime: start,
		UserMessages: 1, APICalls: 1, Models: models, EstimatedCost: cost,
	}
	for _, mu := range models {
		s.InputTokens += mu.InputTokens
		s.OutputTokens += mu.OutputTokens
		s.CacheCreationTokens += mu.CacheCreationTokens
		s.CacheReadTokens += mu.CacheReadTokens
	}
	return s
}

func TestAggregate(t *testing.T) {
	day := time.Date(2025, 6, 2, 12, 0, 0, 0, time.Local)
	sessions := []model.SessionStats{
		sess(model.EngineClaude, "a", day, 2, map[string]*model.ModelUsage{
			"claude-sonnet-4-5": {APICalls: 1, InputTokens: 100, OutputTokens: 10, CacheCreationTokens: 50, CacheReadTokens: 1_000_000, EstimatedCost: 2},
		}),
		sess(model.EngineCodex, "b", day.Add(24*time.Hour), 1, map[string]*model.ModelUsage{
			"gpt-5-codex": {APICalls: 1, InputTokens: 200, OutputTokens: 20, EstimatedCost: 1},
		}),
		sess(model.EngineGemini, "old", day.AddDate(0, -1, 0), 5, nil),
	}

	since := day.Add(-time.Hour)
	until := day.Add(48 * time.Hour)
	stats := Aggregate(sessions, since, until)

	assert.Equal(t, 2, stats.TotalSessions)
	assert.Equal(t, 2, stats.ActiveDays)
	assert.Equal(t, int64(300), stats.InputTokens)
	assert.Equal(t, int64(300+30+50), stats.TotalBilledTokens)
	assert.InDelta(t, 3.0, stats.EstimatedCost, 1e-9)
	assert.InDelta(t, 1.5, stats.CostPerDay, 1e-9)
	// 1M cache reads on sonnet save (3.00 - 0.30) dollars.
	assert.InDelta(t, 2.7, stats.CacheSavings, 1e-9)

	engines := AggregateEngines(sessions, since, until)
	require.Len(t, engines, 2)
	assert.Equal(t, model.EngineClaude, engines[0].Engine)
	assert.Equal(t, model.EngineCodex, engines[1].Engine)
	assert.InDelta(t, 200.0/3, engines[0].SharePercent, 1e-9)

	models := AggregateModels(sessions, since, until)
	require.Len(t, models, 2)
	assert.Equal(t, "claude-sonnet-4-5", models[0].Model)
	assert.Equal(t, model.EngineCodex, models[1].Engine)
	assert.InDelta(t, 50.0, models[1].SharePercent, 1e-9)

	days := AggregateDays(sessions, since, until)
	require.Len(t, days, 3) // two active days plus the zero-filled last day
	assert.True(t, days[0].Date.After(days[1].Date))
}

func TestAggregateProjectsAndHours(t *testing.T) {
	day := time.Date(2025, 6, 2, 9, 30, 0, 0, time.Local)
	usage := func(in int64) map[string]*model.ModelUsage {
		return map[string]*model.ModelUsage{"m": {InputTokens: in}}
	}
	a := sess(model.EngineCodex, "a", day, 1, usage(100))
	b := sess(model.EngineClaude, "b", day.Add(2*time.Hour), 3, usage(50))
	c := sess(model.EngineClaude, "c", day.Add(2*time.Hour), 0.5, usage(10))
	c.Project = "side"

	since := day.Add(-time.Hour)
	until := day.Add(24 * time.Hour)

	projects := AggregateProjects([]model.SessionStats{a, b, c}, since, until)
	require.Len(t, projects, 2)
	assert.Equal(t, "p", projects[0].Project)
	assert.Equal(t, []model.Engine{model.EngineClaude, model.EngineCodex}, projects[0].Engines)
	assert.Equal(t, 2, projects[0].Sessions)
	assert.Equal(t, int64(150), projects[0].TotalTokens)
	assert.InDelta(t, 4.0, projects[0].EstimatedCost, 1e-9)

	hours := AggregateHourly([]model.SessionStats{a, b, c}, since, until)
	require.Len(t, hours, 24)
	assert.Equal(t, 1, hours[9].Sessions)
	assert.Equal(t, 2, hours[11].Prompts)
	assert.Equal(t, int64(60), hours[11].Tokens)
}

func TestFilters(t *testing.T) {
	now := time.Now()
	sessions := []model.SessionStats{
		{SessionID: "a", Engine: model.EngineClaude, Project: "Gitlore", StartTime: now,
			Models: map[string]*model.ModelUsage{"claude-opus-4-6": {}}},
		{SessionID: "b", Engine: model.EngineCodex, Project: "codex", ProjectPath: "/w/gitlore", StartTime: now,
			Models: map[string]*model.ModelUsage{"gpt-5": {}}},
		{SessionID: "c", Project: "other", StartTime: now},
	}

	assert.Len(t, FilterByProject(sessions, "gitlore"), 2)
	assert.Len(t, FilterByModel(sessions, "OPUS"), 1)
	assert.Len(t, FilterByEngine(sessions, model.EngineClaude), 2) // untagged counts as claude
	assert.Len(t, FilterByEngine(sessions), 3)
	assert.Empty(t, FilterByTime(sessions, now.Add(time.Hour), time.Time{}))

	both := Select(sessions, OfProject("gitlore"), OfEngines(model.EngineCodex), UsingModel(""))
	require.Len(t, both, 1)
	assert.Equal(t, "b", both[0].SessionID)
	assert.Len(t, Select(sessions, nil, InRange(time.Time{}, time.Time{})), 3)
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestLoadWithCache(t *testing.T) {
	root := t.TempDir()
	roots := source.Roots{Claude: filepath.Join(root, "claude")}
	writeFile(t, filepath.Join(roots.Claude, "projects", "-w-projects-api", "s1.jsonl"),
		`{"type":"user","timestamp":"2025-06-01T10:00:00Z","message":{"role":"user","content":"go"}}`+"\n"+
			`{"type":"assistant","timestamp":"2025-06-01T10:00:05Z","message":{"id":"m1","model":"claude-haiku-4-5","usage":{"input_tokens":10,"output_tokens":5}}}`+"\n")
	writeFile(t, filepath.Join(roots.Claude, "projects", "-w-projects-api", "s1", "subagents", "agent-x.jsonl"),
		`{"type":"assistant","timestamp":"2025-06-01T10:00:06Z","isSidechain":true,"message":{"id":"m2","model":"claude-haiku-4-5","usage":{"input_tokens":1,"output_tokens":1}}}`+"\n")

	opts := LoadOptions{Roots: roots}
	plain, err := Load(opts, nil)
	require.NoError(t, err)
	require.Len(t, plain.Sessions, 1)
	assert.Equal(t, 1, plain.TotalFiles)

	withSub, err := Load(LoadOptions{Roots: roots, IncludeSubagents: true}, nil)
	require.NoError(t, err)
	assert.Len(t, withSub.Sessions, 2)

	cache, err := store.Open(filepath.Join(t.TempDir(), "metrics.db"))
	require.NoError(t, err)
	defer func() { _ = cache.Close() }()

	var calls int
	first, err := LoadWithCache(opts, cache, func(_, _ int) { calls++ })
	require.NoError(t, err)
	assert.Equal(t, 1, first.Reparsed)
	assert.Equal(t, 1, calls)

	second, err := LoadWithCache(opts, cache, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, second.CacheHits)
	assert.Equal(t, 0, second.Reparsed)
	require.Len(t, second.Sessions, 1)
	assert.Equal(t, plain.Sessions[0].InputTokens, second.Sessions[0].InputTokens)
	assert.Equal(t, model.EngineClaude, second.Sessions[0].Engine)
}

func TestAggregateCostBreakdown(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	sessions := []model.SessionStats{
		sess(model.EngineCodex, "x", start, 0, map[string]*model.ModelUsage{
			"mystery-model": {InputTokens: 1_000_000},
		}),
	}
	totals, rows := AggregateCostBreakdown(sessions, time.Time{}, time.Time{})
	// Unknown models are priced as the engine default (gpt-5-codex).
	assert.InDelta(t, 1.25, totals.TotalCost, 1e-9)
	require.Len(t, rows, 1)
	assert.Equal(t, "mystery-model", rows[0].Model)
}
