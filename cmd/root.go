package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wysstartgo/anycode/internal/cli"
	"github.com/wysstartgo/anycode/internal/config"
	"github.com/wysstartgo/anycode/internal/model"
	"github.com/wysstartgo/anycode/internal/pipeline"
	"github.com/wysstartgo/anycode/internal/source"
	"github.com/wysstartgo/anycode/internal/store"
	"github.com/wysstartgo/anycode/internal/tui/theme"
)

var (
	flagDays        int
	flagEngines     []string
	flagProject     string
	flagModel       string
	flagNoCache     bool
	flagClaudeDir   string
	flagCodexDir    string
	flagGeminiDir   string
	flagQuiet       bool
	flagNoSubagents bool
	flagFormat      string
)

// cfg is the loaded config file, available to every command after
// PersistentPreRunE.
var cfg = config.DefaultConfig()

var rootCmd = &cobra.Command{
	Use:   "anycode",
	Short: "Usage, cost and transcripts for AI coding CLIs",
	Long: "Analyze Claude Code, Codex and Gemini CLI sessions: tokens, costs, " +
		"grouped transcripts and live views of running sessions.",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	RunE:              report(runSummary),
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.IntVarP(&flagDays, "days", "n", 30, "Time window in days")
	pf.StringSliceVarP(&flagEngines, "engine", "e", nil, "Limit to engines (claude, codex, gemini)")
	pf.StringVarP(&flagProject, "project", "p", "", "Filter to project (substring match)")
	pf.StringVarP(&flagModel, "model", "m", "", "Filter to model (substring match)")
	pf.BoolVar(&flagNoCache, "no-cache", false, "Skip SQLite cache, reparse everything")
	pf.StringVar(&flagClaudeDir, "claude-dir", "", "Claude data directory (default ~/.claude)")
	pf.StringVar(&flagCodexDir, "codex-dir", "", "Codex data directory (default ~/.codex)")
	pf.StringVar(&flagGeminiDir, "gemini-dir", "", "Gemini data directory (default ~/.gemini)")
	pf.BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress progress output")
	pf.BoolVar(&flagNoSubagents, "no-subagents", false, "Exclude subagent sessions")
	pf.StringVarP(&flagFormat, "format", "f", "table", "Output format: table, plain, csv, markdown, json, yaml")
}

// loadConfig reads the config file and lets it fill in flags the user did
// not set.
func loadConfig(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "  Warning: %v (using defaults)\n", err)
	}
	cfg = loaded
	theme.SetActive(cfg.Appearance.Theme)

	flags := cmd.Flags()
	if !flags.Changed("days") && cfg.General.DefaultDays > 0 {
		flagDays = cfg.General.DefaultDays
	}
	if !flags.Changed("no-subagents") {
		flagNoSubagents = !cfg.General.IncludeSubagents
	}
	if !flags.Changed("engine") && len(cfg.General.Engines) > 0 {
		flagEngines = cfg.General.Engines
	}
	if !isTerminal(os.Stderr) {
		flagQuiet = true
	}
	return nil
}

// roots resolves the engine data directories: flags, then env and config.
func roots() source.Roots {
	r := source.Roots{
		Claude: cfg.ClaudeDir(),
		Codex:  cfg.CodexDir(),
		Gemini: cfg.GeminiDir(),
	}
	if flagClaudeDir != "" {
		r.Claude = flagClaudeDir
	}
	if flagCodexDir != "" {
		r.Codex = flagCodexDir
	}
	if flagGeminiDir != "" {
		r.Gemini = flagGeminiDir
	}
	return r
}

// engines parses --engine. Empty means every engine.
func engines() ([]model.Engine, error) {
	out := make([]model.Engine, 0, len(flagEngines))
	for _, name := range flagEngines {
		e, ok := model.ParseEngine(name)
		if !ok {
			return nil, fmt.Errorf("unknown engine %q", name)
		}
		out = append(out, e)
	}
	return out, nil
}

func loadOptions() (pipeline.LoadOptions, error) {
	es, err := engines()
	if err != nil {
		return pipeline.LoadOptions{}, err
	}
	return pipeline.LoadOptions{
		Roots:            roots(),
		Engines:          es,
		IncludeSubagents: !flagNoSubagents,
	}, nil
}

// loadData is the shared data loading path used by all commands.
// Uses SQLite cache when available for fast subsequent runs.
func loadData() (*pipeline.LoadResult, error) {
	opts, err := loadOptions()
	if err != nil {
		return nil, err
	}

	if !flagQuiet {
		fmt.Fprintf(os.Stderr, "  Scanning sessions...\n")
	}

	progressFn := func(current, total int) {
		if flagQuiet {
			return
		}
		if current%100 == 0 || current == total {
			fmt.Fprintf(os.Stderr, "\r  Parsing %s", cli.RenderProgressBar(current, total, 20))
		}
	}

	// Try cached load unless --no-cache
	if !flagNoCache {
		cache, err := store.Open(pipeline.CachePath())
		if err != nil {
			if !flagQuiet {
				fmt.Fprintf(os.Stderr, "  Cache unavailable, doing full parse\n")
			}
		} else {
			defer cache.Close()

			cr, err := pipeline.LoadWithCache(opts, cache, progressFn)
			if err != nil {
				if !flagQuiet {
					fmt.Fprintf(os.Stderr, "\n  Cache error, falling back to full parse\n")
				}
			} else {
				if !flagQuiet && cr.TotalFiles > 0 {
					if cr.Reparsed == 0 {
						fmt.Fprintf(os.Stderr, "\r  Loaded %s sessions from cache (%d projects)    \n",
							cli.FormatNumber(int64(len(cr.Sessions))),
							cr.ProjectCount,
						)
					} else {
						fmt.Fprintf(os.Stderr, "\r  %s cached + %d reparsed (%d projects)    \n",
							cli.FormatNumber(int64(cr.CacheHits)),
							cr.Reparsed,
							cr.ProjectCount,
						)
					}
				}
				return &cr.LoadResult, nil
			}
		}
	}

	result, err := pipeline.Load(opts, progressFn)
	if err != nil {
		return nil, err
	}

	if !flagQuiet && result.TotalFiles > 0 {
		fmt.Fprintf(os.Stderr, "\r  Parsed %s sessions across %d projects    \n",
			cli.FormatNumber(int64(result.ParsedFiles)),
			result.ProjectCount,
		)
	}

	return result, nil
}

// window is what a report covers: the sessions that pass the global
// filters, of any age, and the --days range to aggregate them over.
type window struct {
	sessions     []model.SessionStats
	since, until time.Time
}

// previous returns the equally long period just before the window.
func (w window) previous() (since, until time.Time) {
	return w.since.Add(-w.until.Sub(w.since)), w.since
}

// report adapts a report body to a cobra RunE. It loads and filters the
// sessions and prints a notice instead of running the body when none exist.
func report(run func(w window) error) func(*cobra.Command, []string) error {
	return func(_ *cobra.Command, _ []string) error {
		result, err := loadData()
		if err != nil {
			return err
		}
		if len(result.Sessions) == 0 {
			fmt.Println("\n  No sessions found.")
			fmt.Println("  Use Claude Code, Codex or Gemini CLI first, then come back!")
			return nil
		}

		es, _ := engines()
		until := time.Now()
		w := window{
			sessions: pipeline.Select(result.Sessions,
				pipeline.OfEngines(es...),
				pipeline.OfProject(flagProject),
				pipeline.UsingModel(flagModel),
			),
			since: until.AddDate(0, 0, -flagDays),
			until: until,
		}
		if err := run(w); err != nil {
			return err
		}
		if result.FileErrors > 0 {
			fmt.Fprintf(os.Stderr, "\n  %d files could not be parsed\n", result.FileErrors)
		}
		return nil
	}
}

// emit writes a report in the --format chosen by the user. The table format
// gets a title box; the others print the bare data.
func emit(title string, t cli.Table, data any) error {
	f, err := cli.ParseFormat(flagFormat)
	if err != nil {
		return err
	}
	if f == cli.FormatTable {
		fmt.Println()
		fmt.Println(cli.RenderTitle(title))
		fmt.Println()
	}
	return cli.Emit(os.Stdout, f, t, data)
}

// tableOutput reports whether --format selects the decorated table output.
func tableOutput() bool {
	f, err := cli.ParseFormat(flagFormat)
	return err == nil && f == cli.FormatTable
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// terminalWidth is the width of stdout, or fallback when it is not a
// terminal.
func terminalWidth(fallback int) int {
	if !isTerminal(os.Stdout) {
		return fallback
	}
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return fallback
}
