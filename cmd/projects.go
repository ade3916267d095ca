package cmd

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/wysstartgo/anycode/internal/cli"
	"github.com/wysstartgo/anycode/internal/model"
	"github.com/wysstartgo/anycode/internal/pipeline"
)

var projectsLimit int

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Project usage ranking across engines",
	RunE:  report(runProjects),
}

func init() {
	projectsCmd.Flags().IntVarP(&projectsLimit, "limit", "l", 0, "Show only the N most expensive projects")
	rootCmd.AddCommand(projectsCmd)
}

func runProjects(w window) error {
	projects := pipeline.AggregateProjects(w.sessions, w.since, w.until)
	if len(projects) == 0 {
		fmt.Println("\n  No project data in the selected time range.")
		return nil
	}
	if projectsLimit > 0 && len(projects) > projectsLimit {
		projects = projects[:projectsLimit]
	}

	engineList := func(es []model.Engine) string {
		return strings.Join(lo.Map(es, func(e model.Engine, _ int) string { return string(e) }), ",")
	}
	return emit(fmt.Sprintf("PROJECTS  Last %dd", flagDays), cli.Table{
		Headers: []string{"Project", "Engines", "Sessions", "Prompts", "Tokens", "Cost"},
		Rows: lo.Map(projects, func(ps model.ProjectStats, _ int) []string {
			return []string{
				cli.TruncateWidth(ps.Project, 24),
				engineList(ps.Engines),
				cli.FormatNumber(int64(ps.Sessions)),
				cli.FormatNumber(int64(ps.Prompts)),
				cli.FormatTokens(ps.TotalTokens),
				cli.FormatCost(ps.EstimatedCost),
			}
		}),
	}, projects)
}
