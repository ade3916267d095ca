package cmd

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/wysstartgo/anycode/internal/cli"
	"github.com/wysstartgo/anycode/internal/model"
	"github.com/wysstartgo/anycode/internal/pipeline"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Session list with details",
	RunE:  report(runSessions),
}

var sessionsLimit int

func init() {
	sessionsCmd.Flags().IntVarP(&sessionsLimit, "limit", "l", 20, "Number of sessions to show")
	rootCmd.AddCommand(sessionsCmd)
}

type sessionRow struct {
	SessionID  string  `json:"session_id" yaml:"session_id"`
	Engine     string  `json:"engine" yaml:"engine"`
	Project    string  `json:"project" yaml:"project"`
	Subagent   bool    `json:"subagent,omitempty" yaml:"subagent,omitempty"`
	Start      string  `json:"start,omitempty" yaml:"start,omitempty"`
	LastActive string  `json:"last_active,omitempty" yaml:"last_active,omitempty"`
	Duration   int64   `json:"duration_secs" yaml:"duration_secs"`
	Prompts    int     `json:"prompts" yaml:"prompts"`
	Tokens     int64   `json:"tokens" yaml:"tokens"`
	Cost       float64 `json:"cost" yaml:"cost"`
}

func runSessions(w window) error {
	sessions := pipeline.FilterByTime(w.sessions, w.since, w.until)

	if len(sessions) == 0 {
		fmt.Println("\n  No sessions in the selected time range.")
		return nil
	}

	slices.SortFunc(sessions, func(a, b model.SessionStats) int {
		return b.StartTime.Compare(a.StartTime)
	})

	if sessionsLimit > 0 && len(sessions) > sessionsLimit {
		sessions = sessions[:sessionsLimit]
	}

	rows := make([][]string, 0, len(sessions))
	data := make([]sessionRow, 0, len(sessions))
	for _, s := range sessions {
		startStr := ""
		if !s.StartTime.IsZero() {
			startStr = s.StartTime.Local().Format("Jan 02 15:04")
		}

		project := s.Project
		if s.IsSubagent {
			project += " (sub)"
		}

		rows = append(rows, []string{
			cli.TruncateWidth(s.SessionID, 10),
			string(s.Engine),
			startStr,
			cli.FormatAgo(s.EndTime),
			cli.TruncateWidth(project, 18),
			cli.FormatDuration(s.DurationSecs),
			cli.FormatTokens(s.TotalTokens()),
			cli.FormatCost(s.EstimatedCost),
		})

		row := sessionRow{
			SessionID: s.SessionID,
			Engine:    string(s.Engine),
			Project:   s.Project,
			Subagent:  s.IsSubagent,
			Duration:  s.DurationSecs,
			Prompts:   s.UserMessages,
			Tokens:    s.TotalTokens(),
			Cost:      s.EstimatedCost,
		}
		if !s.StartTime.IsZero() {
			row.Start = s.StartTime.Format(time.RFC3339)
		}
		if !s.EndTime.IsZero() {
			row.LastActive = s.EndTime.Format(time.RFC3339)
		}
		data = append(data, row)
	}

	return emit(fmt.Sprintf("SESSIONS  Last %dd (showing %d)", flagDays, len(sessions)), cli.Table{
		Headers: []string{"Session", "Engine", "Start", "Last Active", "Project", "Duration", "Tokens", "Cost"},
		Rows:    rows,
	}, data)
}
