package cmd

import (
	"fmt"
	"slices"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/wysstartgo/anycode/internal/cli"
	"github.com/wysstartgo/anycode/internal/model"
	"github.com/wysstartgo/anycode/internal/pipeline"
)

var hourlyCmd = &cobra.Command{
	Use:   "hourly",
	Short: "Activity by hour of day",
	RunE:  report(runHourly),
}

func init() {
	rootCmd.AddCommand(hourlyCmd)
}

func runHourly(w window) error {
	hours := pipeline.AggregateHourly(w.sessions, w.since, w.until)
	if !tableOutput() {
		return emit("", cli.Table{
			Headers: []string{"Hour", "Prompts", "Sessions", "Tokens"},
			Rows: lo.Map(hours, func(h model.HourlyStats, _ int) []string {
				return []string{
					fmt.Sprintf("%02d:00", h.Hour),
					cli.FormatNumber(int64(h.Prompts)),
					cli.FormatNumber(int64(h.Sessions)),
					cli.FormatTokens(h.Tokens),
				}
			}),
		}, hours)
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle(fmt.Sprintf("ACTIVITY BY HOUR  Last %dd (local time)", flagDays)))
	fmt.Println()

	peak := slices.MaxFunc(hours, func(a, b model.HourlyStats) int { return a.Prompts - b.Prompts })
	for _, h := range hours {
		fmt.Printf("  %02d:00 │ %6s │ %s\n", h.Hour, cli.FormatNumber(int64(h.Prompts)),
			cli.RenderBar(float64(h.Prompts), float64(peak.Prompts), 40))
	}
	if peak.Prompts > 0 {
		fmt.Printf("\n  Peak: %02d:00 (%s prompts)\n", peak.Hour, cli.FormatNumber(int64(peak.Prompts)))
	}
	fmt.Println()
	return nil
}
