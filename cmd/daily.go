package cmd

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/wysstartgo/anycode/internal/cli"
	"github.com/wysstartgo/anycode/internal/model"
	"github.com/wysstartgo/anycode/internal/pipeline"
)

var dailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Daily usage table",
	RunE:  report(runDaily),
}

func init() {
	rootCmd.AddCommand(dailyCmd)
}

func runDaily(w window) error {
	days := pipeline.AggregateDays(w.sessions, w.since, w.until)
	if len(days) == 0 {
		fmt.Println("\n  No data for the selected period.")
		return nil
	}

	rows := lo.Map(days, func(d model.DailyStats, _ int) []string {
		return []string{
			d.Date.Format("Mon 01-02"),
			cli.FormatNumber(int64(d.Sessions)),
			cli.FormatNumber(int64(d.Prompts)),
			cli.FormatNumber(int64(d.APICalls)),
			cli.FormatTokens(d.InputTokens + d.OutputTokens + d.CacheCreationTokens),
			cli.FormatTokens(d.CacheReadTokens),
			cli.FormatCost(d.EstimatedCost),
		}
	})

	err := emit(fmt.Sprintf("DAILY USAGE  Last %dd", flagDays), cli.Table{
		Headers: []string{"Date", "Sessions", "Prompts", "Calls", "Tokens", "Cache Read", "Cost"},
		Rows:    rows,
	}, days)
	if err != nil || !tableOutput() {
		return err
	}

	fmt.Printf("\n  Cost trend  %s\n", cli.RenderSparkline(dailyCosts(days)))
	peak := slices.MaxFunc(days, func(a, b model.DailyStats) int {
		return cmp.Compare(a.EstimatedCost, b.EstimatedCost)
	})
	fmt.Printf("  Peak day    %s  %s\n\n", peak.Date.Format("Mon Jan 2"), cli.FormatCost(peak.EstimatedCost))
	return nil
}

// dailyCosts returns costs oldest first for the trend line; days come
// newest first.
func dailyCosts(days []model.DailyStats) []float64 {
	costs := lo.Map(days, func(d model.DailyStats, _ int) float64 { return d.EstimatedCost })
	slices.Reverse(costs)
	return costs
}
