package cmd

import (
	"fmt"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/wysstartgo/anycode/internal/config"
	"github.com/wysstartgo/anycode/internal/model"
	"github.com/wysstartgo/anycode/internal/source"
	"github.com/wysstartgo/anycode/internal/tui"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "First-time setup wizard",
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(_ *cobra.Command, _ []string) error {
	// A scan error only means fewer logs to report; the wizard still runs.
	files, _ := source.ScanAll(roots())
	found := lo.CountValuesBy(files, func(f source.DiscoveredFile) model.Engine { return f.Engine })

	values := tui.SetupValuesFrom(cfg)
	if err := tui.NewSetupForm(found, &values).Run(); err != nil {
		return fmt.Errorf("setup: %w", err)
	}

	values.Apply(&cfg)
	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\n  Saved to %s\n  Run `anycode setup` again to change it.\n\n", config.ConfigPath())
	return nil
}
