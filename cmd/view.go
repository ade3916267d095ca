package cmd

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/wysstartgo/anycode/internal/billing"
	"github.com/wysstartgo/anycode/internal/cli"
	"github.com/wysstartgo/anycode/internal/grouping"
	"github.com/wysstartgo/anycode/internal/model"
	"github.com/wysstartgo/anycode/internal/source"
	"github.com/wysstartgo/anycode/internal/usage"
)

var viewCmd = &cobra.Command{
	Use:   "view <session>",
	Short: "Print a session transcript with sub-agents and tool runs grouped",
	Args:  cobra.ExactArgs(1),
	RunE:  runView,
}

var (
	viewExpand bool
	viewAll    bool
	viewWidth  int
)

func init() {
	viewCmd.Flags().BoolVar(&viewExpand, "expand", false, "Print sub-agent conversations in full")
	viewCmd.Flags().BoolVar(&viewAll, "all", false, "Print every tool and reasoning step instead of a summary line")
	viewCmd.Flags().IntVarP(&viewWidth, "width", "w", 0, "Wrap width (default: terminal width)")
	rootCmd.AddCommand(viewCmd)
}

func runView(cmd *cobra.Command, args []string) error {
	store := source.NewHistoryStore(roots(), cliLogger())
	ref, err := resolveRef(store, args[0])
	if err != nil {
		return err
	}

	h, err := store.Load(cmd.Context(), ref)
	if err != nil {
		return err
	}
	usage.NormalizeMessages(h.Messages)

	width := viewWidth
	if width <= 0 {
		width = terminalWidth(100)
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle(fmt.Sprintf("%s  %s", ref.Engine, ref.SessionID)))
	fmt.Println()
	fmt.Print(cli.RenderTranscript(grouping.Group(h.Messages), cli.TranscriptOptions{
		Width:            width,
		ExpandSubagents:  viewExpand,
		ExpandAggregates: viewAll,
	}))

	ledger := billing.New(billing.WithEffectiveDates()).Aggregate(h.Messages)
	fmt.Printf("  %d messages  %s tokens  %s\n",
		len(h.Messages),
		cli.FormatTokens(ledger.Totals.TotalTokens),
		cli.FormatCost(ledger.Totals.Cost))
	if h.ParseErrors > 0 {
		fmt.Fprintf(os.Stderr, "  %d lines could not be parsed\n", h.ParseErrors)
	}
	return nil
}

// sessionRef builds a reference from a session id argument and the
// --engine flag. Only a single engine narrows the lookup.
func sessionRef(id string) (model.SessionRef, error) {
	ref := model.SessionRef{SessionID: id}
	es, err := engines()
	if err != nil {
		return ref, err
	}
	if len(es) == 1 {
		ref.Engine = es[0]
	}
	return ref, nil
}

// resolveRef expands a session id or unique prefix into the full reference
// of a discovered log. A session without a log yet keeps the id as given
// and defaults to the claude engine so it can still be attached to.
func resolveRef(store *source.HistoryStore, id string) (model.SessionRef, error) {
	ref, err := sessionRef(id)
	if err != nil {
		return ref, err
	}
	df, err := store.Find(ref)
	switch {
	case err == nil:
		return df.Ref(), nil
	case errors.Is(err, model.ErrSessionNotFound):
		if ref.Engine == "" {
			ref.Engine = model.EngineClaude
		}
		return ref, nil
	}
	return ref, err
}

// cliLogger is the logger handed to library code from one-shot commands.
func cliLogger() *log.Logger {
	if flagQuiet {
		return log.New(io.Discard, "", 0)
	}
	return log.New(os.Stderr, "anycode: ", 0)
}
