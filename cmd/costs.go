package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wysstartgo/anycode/internal/billing"
	"github.com/wysstartgo/anycode/internal/cli"
	"github.com/wysstartgo/anycode/internal/model"
	"github.com/wysstartgo/anycode/internal/pipeline"
	"github.com/wysstartgo/anycode/internal/source"
)

var costsCmd = &cobra.Command{
	Use:   "costs [session]",
	Short: "Cost breakdown by token type and model, or one session's billing ledger",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCosts,
}

func init() {
	rootCmd.AddCommand(costsCmd)
}

type costsReport struct {
	Days    int                           `json:"days" yaml:"days"`
	ByType  pipeline.TokenTypeCosts       `json:"by_type" yaml:"by_type"`
	ByModel []pipeline.ModelCostBreakdown `json:"by_model" yaml:"by_model"`
	Savings float64                       `json:"cache_savings" yaml:"cache_savings"`
}

func runCosts(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		return runSessionLedger(cmd.Context(), args[0])
	}
	return report(runCostBreakdown)(cmd, args)
}

func runCostBreakdown(w window) error {
	cur := pipeline.Aggregate(w.sessions, w.since, w.until)
	if cur.TotalSessions == 0 {
		fmt.Println("\n  No sessions in the selected time range.")
		return nil
	}
	byType, byModel := pipeline.AggregateCostBreakdown(w.sessions, w.since, w.until)
	if !tableOutput() {
		return emit("", modelCostTable(byType, byModel), costsReport{
			Days:    flagDays,
			ByType:  byType,
			ByModel: byModel,
			Savings: cur.CacheSavings,
		})
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle(fmt.Sprintf("COST BREAKDOWN  Last %dd", flagDays)))
	fmt.Println()
	fmt.Print(cli.RenderTable(tokenTypeTable(byType)))

	prevSince, prevUntil := w.previous()
	prev := pipeline.Aggregate(w.sessions, prevSince, prevUntil)
	if prev.EstimatedCost > 0 {
		peak := max(cur.EstimatedCost, prev.EstimatedCost)
		fmt.Println("  Period Comparison")
		for _, p := range []struct {
			label string
			cost  float64
		}{{"This", cur.EstimatedCost}, {"Prev", prev.EstimatedCost}} {
			fmt.Printf("  %s %dd  %s  %s\n", p.label, flagDays, cli.RenderBar(p.cost, peak, 30), cli.FormatCost(p.cost))
		}
		fmt.Println()
	}

	fmt.Print(cli.RenderTable(modelCostTable(byType, byModel)))
	fmt.Printf("  Cache Savings: %s saved this period\n\n", cli.FormatCost(cur.CacheSavings))
	return nil
}

func tokenTypeTable(c pipeline.TokenTypeCosts) cli.Table {
	share := func(v float64) string {
		if c.TotalCost <= 0 {
			return ""
		}
		return cli.FormatPercent(v / c.TotalCost)
	}
	return cli.Table{
		Title:   "By Token Type",
		Headers: []string{"Type", "Cost", "Share"},
		Rows: [][]string{
			{"Output", cli.FormatCost(c.OutputCost), share(c.OutputCost)},
			{"Input", cli.FormatCost(c.InputCost), share(c.InputCost)},
			{"Cache Write", cli.FormatCost(c.CacheCreationCost), share(c.CacheCreationCost)},
			{"Cache Read", cli.FormatCost(c.CacheReadCost), share(c.CacheReadCost)},
			{cli.SeparatorRow},
			{"TOTAL", cli.FormatCost(c.TotalCost), ""},
		},
	}
}

func modelCostTable(tokenCosts pipeline.TokenTypeCosts, modelCosts []pipeline.ModelCostBreakdown) cli.Table {
	rows := make([][]string, 0, len(modelCosts)+2)
	for _, mc := range modelCosts {
		rows = append(rows, []string{
			shortModel(mc.Model),
			cli.FormatCost(mc.InputCost),
			cli.FormatCost(mc.OutputCost),
			cli.FormatCost(mc.CacheCost),
			cli.FormatCost(mc.TotalCost),
		})
	}
	rows = append(rows, []string{cli.SeparatorRow})
	rows = append(rows, []string{
		"TOTAL",
		cli.FormatCost(tokenCosts.InputCost),
		cli.FormatCost(tokenCosts.OutputCost),
		cli.FormatCost(tokenCosts.CacheCost),
		cli.FormatCost(tokenCosts.TotalCost),
	})
	return cli.Table{
		Title:   "By Model",
		Headers: []string{"Model", "Input", "Output", "Cache", "Total"},
		Rows:    rows,
	}
}

// runSessionLedger prints the deduplicated billing events of one session.
func runSessionLedger(ctx context.Context, id string) error {
	ref, err := sessionRef(id)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	h, err := source.NewHistoryStore(roots(), cliLogger()).Load(ctx, ref)
	if err != nil {
		return err
	}
	ledger := billing.New(billing.WithEffectiveDates()).Aggregate(h.Messages)

	rows := make([][]string, 0, len(ledger.Events)+2)
	for _, ev := range ledger.Events {
		when := "-"
		if t, ok := model.ParseTimestamp(ev.Timestamp); ok {
			when = t.Local().Format("Jan 02 15:04:05")
		}
		rows = append(rows, []string{
			when,
			shortModel(ev.Model),
			cli.FormatTokens(ev.Tokens.InputTokens),
			cli.FormatTokens(ev.Tokens.OutputTokens),
			cli.FormatTokens(ev.Tokens.CacheCreationTokens),
			cli.FormatTokens(ev.Tokens.CacheReadTokens),
			cli.FormatCost(ev.Cost),
		})
	}
	rows = append(rows, []string{cli.SeparatorRow})
	rows = append(rows, []string{
		"TOTAL",
		fmt.Sprintf("%d events", ledger.Count),
		cli.FormatTokens(ledger.Totals.InputTokens),
		cli.FormatTokens(ledger.Totals.OutputTokens),
		cli.FormatTokens(ledger.Totals.CacheCreationTokens),
		cli.FormatTokens(ledger.Totals.CacheReadTokens),
		cli.FormatCost(ledger.Totals.Cost),
	})

	title := fmt.Sprintf("LEDGER  %s %s", strings.ToUpper(string(ref.Engine)), ref.SessionID)
	return emit(strings.TrimSpace(title), cli.Table{
		Headers: []string{"Time", "Model", "Input", "Output", "Cache Write", "Cache Read", "Cost"},
		Rows:    rows,
	}, ledger)
}

// shortModel drops the vendor prefix Claude model names carry.
func shortModel(name string) string {
	return strings.TrimPrefix(name, "claude-")
}
