// Package cmd implements the anycode CLI commands.
package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wysstartgo/anycode/internal/cli"
	"github.com/wysstartgo/anycode/internal/config"
	"github.com/wysstartgo/anycode/internal/pipeline"
	"github.com/wysstartgo/anycode/internal/store"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(_ *cobra.Command, _ []string) error {
	fmt.Printf("  Config file: %s\n", config.ConfigPath())
	if config.Exists() {
		fmt.Println("  Status: loaded")
	} else {
		fmt.Println("  Status: using defaults (no config file)")
	}
	fmt.Println()

	fmt.Println("  [General]")
	fmt.Printf("    Default days:      %d\n", cfg.General.DefaultDays)
	fmt.Printf("    Include subagents: %v\n", cfg.General.IncludeSubagents)
	if len(cfg.General.Engines) > 0 {
		fmt.Printf("    Engines:           %s\n", strings.Join(cfg.General.Engines, ", "))
	} else {
		fmt.Println("    Engines:           all")
	}
	fmt.Println()

	r := roots()
	fmt.Println("  [Sources]")
	fmt.Printf("    Claude: %s\n", r.Claude)
	fmt.Printf("    Codex:  %s\n", r.Codex)
	fmt.Printf("    Gemini: %s\n", r.Gemini)
	fmt.Println()

	fmt.Println("  [Daemon]")
	fmt.Printf("    Address:          %s\n", cfg.DaemonAddr())
	fmt.Printf("    Refresh interval: %s\n", cfg.Daemon.RefreshEvery())
	fmt.Printf("    Active window:    %s\n", cfg.Daemon.ActiveFor())
	fmt.Printf("    Idle timeout:     %s\n", cfg.Daemon.IdleFor())
	fmt.Println()

	fmt.Println("  [Cache]")
	fmt.Printf("    Path: %s\n", pipeline.CachePath())
	if cache, err := store.Open(pipeline.CachePath()); err == nil {
		files, sessions, err := cache.Count()
		_ = cache.Close()
		if err == nil {
			fmt.Printf("    Holds %s files, %s sessions\n", cli.FormatNumber(int64(files)), cli.FormatNumber(int64(sessions)))
		}
	}
	fmt.Println()

	fmt.Println("  [Appearance]")
	fmt.Printf("    Theme: %s\n", cfg.Appearance.Theme)
	fmt.Println()

	if len(cfg.Pricing.Overrides) > 0 {
		names := make([]string, 0, len(cfg.Pricing.Overrides))
		for name := range cfg.Pricing.Overrides {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Println("  [Pricing]")
		fmt.Printf("    Overrides: %s\n", strings.Join(names, ", "))
		fmt.Println()
	}

	fmt.Println("  Run `anycode setup` to reconfigure.")
	return nil
}
