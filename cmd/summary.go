package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wysstartgo/anycode/internal/cli"
	"github.com/wysstartgo/anycode/internal/model"
	"github.com/wysstartgo/anycode/internal/pipeline"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Usage and estimated cost across every engine",
	RunE:  report(runSummary),
}

func init() {
	rootCmd.AddCommand(summaryCmd)
}

type summaryReport struct {
	Days     int                 `json:"days" yaml:"days"`
	Summary  model.SummaryStats  `json:"summary" yaml:"summary"`
	Previous model.SummaryStats  `json:"previous" yaml:"previous"`
	Engines  []model.EngineStats `json:"engines" yaml:"engines"`
}

func runSummary(w window) error {
	cur := pipeline.Aggregate(w.sessions, w.since, w.until)
	if cur.TotalSessions == 0 {
		fmt.Println("\n  No sessions in the selected time range.")
		return nil
	}
	prevSince, prevUntil := w.previous()
	rep := summaryReport{
		Days:     flagDays,
		Summary:  cur,
		Previous: pipeline.Aggregate(w.sessions, prevSince, prevUntil),
		Engines:  pipeline.AggregateEngines(w.sessions, w.since, w.until),
	}
	return emit(fmt.Sprintf("USAGE  Last %dd", flagDays), cli.Table{
		Headers: []string{"Metric", "Value"},
		Rows:    summaryRows(rep),
	}, rep)
}

func summaryRows(rep summaryReport) [][]string {
	st := rep.Summary
	sections := [][][]string{
		{
			{"Sessions", cli.FormatNumber(int64(st.TotalSessions))},
			{"Prompts", cli.FormatNumber(int64(st.TotalPrompts))},
			{"Active time", cli.FormatDuration(st.TotalDurationSecs)},
		},
		{
			{"Input", cli.FormatTokens(st.InputTokens)},
			{"Output", cli.FormatTokens(st.OutputTokens)},
			{"Cache write", cli.FormatTokens(st.CacheCreationTokens)},
			{"Cache read", cli.FormatTokens(st.CacheReadTokens)},
			{"Billed tokens", cli.FormatTokens(st.TotalBilledTokens)},
		},
		{
			{"Cost (est)", cli.FormatCost(st.EstimatedCost)},
			{"Cache savings", cli.FormatCost(st.CacheSavings)},
			{"Cache hit rate", cli.FormatPercent(st.CacheHitRate)},
		},
	}
	// A per-engine split only says something when more than one engine ran.
	if len(rep.Engines) > 1 {
		var split [][]string
		for _, e := range rep.Engines {
			split = append(split, []string{
				"  " + string(e.Engine),
				fmt.Sprintf("%s  (%.0f%%)", cli.FormatCost(e.EstimatedCost), e.SharePercent),
			})
		}
		sections = append(sections, split)
	}

	perDay := cli.FormatCost(st.CostPerDay) + "/day"
	if prev := rep.Previous.CostPerDay; prev > 0 {
		perDay += fmt.Sprintf("  (%s vs prev %dd)", cli.FormatDelta(st.CostPerDay, prev), rep.Days)
	}
	sections = append(sections, [][]string{
		{"Cost/day", perDay},
		{"Tokens/day", cli.FormatTokens(st.TokensPerDay)},
		{"Sessions/day", fmt.Sprintf("%.1f", st.SessionsPerDay)},
	})

	var rows [][]string
	for i, sec := range sections {
		if i > 0 {
			rows = append(rows, []string{cli.SeparatorRow})
		}
		rows = append(rows, sec...)
	}
	return rows
}
