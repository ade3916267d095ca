package cmd

import (
	"fmt"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/wysstartgo/anycode/internal/cli"
	"github.com/wysstartgo/anycode/internal/model"
	"github.com/wysstartgo/anycode/internal/pipeline"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Usage and cost per model",
	RunE:  report(runModels),
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

func runModels(w window) error {
	models := pipeline.AggregateModels(w.sessions, w.since, w.until)
	if len(models) == 0 {
		fmt.Println("\n  No model data in the selected time range.")
		return nil
	}
	return emit(fmt.Sprintf("MODEL USAGE  Last %dd", flagDays), cli.Table{
		Headers: []string{"Model", "Engine", "Calls", "Input", "Output", "Cache Read", "Cost", "Share"},
		Rows: lo.Map(models, func(ms model.ModelStats, _ int) []string {
			return []string{
				shortModel(ms.Model),
				string(ms.Engine),
				cli.FormatNumber(int64(ms.APICalls)),
				cli.FormatTokens(ms.InputTokens),
				cli.FormatTokens(ms.OutputTokens),
				cli.FormatTokens(ms.CacheReadTokens),
				cli.FormatCost(ms.EstimatedCost),
				cli.FormatPercent(ms.SharePercent / 100),
			}
		}),
	}, models)
}
