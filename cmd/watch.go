package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/wysstartgo/anycode/internal/cli"
	"github.com/wysstartgo/anycode/internal/live"
	"github.com/wysstartgo/anycode/internal/model"
	"github.com/wysstartgo/anycode/internal/pipeline"
	"github.com/wysstartgo/anycode/internal/session"
	"github.com/wysstartgo/anycode/internal/source"
	"github.com/wysstartgo/anycode/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch <session>",
	Short: "Follow a session live: history first, then its output as it runs",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

var runningCmd = &cobra.Command{
	Use:   "running",
	Short: "List sessions that are running now",
	RunE:  runRunning,
}

var (
	watchDaemon bool
	watchAddr   string
)

func init() {
	for _, c := range []*cobra.Command{watchCmd, runningCmd} {
		c.Flags().BoolVar(&watchDaemon, "daemon", false, "Use the running daemon instead of watching files directly")
		c.Flags().StringVar(&watchAddr, "addr", "", "Daemon address (default from config)")
	}
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(runningCmd)
}

// liveBackend is the transport and running-session source for live views.
type liveBackend interface {
	session.Transport
	session.Attacher
	session.RunningLister
}

func openBackend(logger *log.Logger) (liveBackend, func()) {
	if watchDaemon {
		addr := watchAddr
		if addr == "" {
			addr = cfg.DaemonAddr()
		}
		return live.NewClient(addr, logger), func() {}
	}

	bus := live.NewBus()
	registry := live.NewRegistry(roots(), cfg.Daemon.ActiveFor())
	tailer := live.NewTailer(bus, cfg.Daemon.IdleFor(), logger)
	tracker := live.NewTracker(bus, tailer, registry, logger)
	return tracker, tracker.Close
}

// watchLogger writes to a file next to the cache; the terminal belongs to
// the viewer while it runs.
func watchLogger() (*log.Logger, func()) {
	dir := pipeline.CacheDir()
	if err := os.MkdirAll(dir, 0o755); err == nil {
		f, err := os.OpenFile(filepath.Join(dir, "watch.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err == nil {
			return log.New(f, "", log.LstdFlags), func() { _ = f.Close() }
		}
	}
	return log.New(io.Discard, "", 0), func() {}
}

func runWatch(cmd *cobra.Command, args []string) error {
	logger, closeLog := watchLogger()
	defer closeLog()

	history := source.NewHistoryStore(roots(), logger)
	ref, err := resolveRef(history, args[0])
	if err != nil {
		return err
	}

	backend, closeBackend := openBackend(logger)
	defer closeBackend()

	if isTerminal(os.Stdout) {
		lipgloss.SetColorProfile(termenv.TrueColor)
	}

	sink := tui.NewSink(256)
	defer sink.Close()
	ctl := session.New(history, backend, sink,
		session.WithLogger(logger),
		session.WithRunningLister(backend),
	)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	go func() { _ = ctl.Run(ctx) }()

	p := tea.NewProgram(tui.NewViewer(ref, ctl, sink), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

func runRunning(cmd *cobra.Command, _ []string) error {
	backend, closeBackend := openBackend(cliLogger())
	defer closeBackend()

	procs, err := backend.ListRunning(cmd.Context())
	if err != nil {
		return err
	}
	if es, err := engines(); err == nil && len(es) > 0 {
		procs = filterProcs(procs, es)
	}
	if len(procs) == 0 {
		fmt.Println("\n  No running sessions.")
		return nil
	}
	sort.SliceStable(procs, func(i, j int) bool {
		return procs[i].LastActivity.After(procs[j].LastActivity)
	})

	rows := make([][]string, 0, len(procs))
	for _, p := range procs {
		rows = append(rows, []string{
			p.SessionID,
			string(p.Engine),
			cli.TruncateWidth(p.ProjectID, 24),
			cli.FormatAgo(p.LastActivity),
		})
	}
	return emit(fmt.Sprintf("RUNNING  %d sessions", len(procs)), cli.Table{
		Headers: []string{"Session", "Engine", "Project", "Last Active"},
		Rows:    rows,
	}, procs)
}

func filterProcs(procs []model.Process, es []model.Engine) []model.Process {
	out := procs[:0:0]
	for _, p := range procs {
		for _, e := range es {
			if p.Engine == e {
				out = append(out, p)
				break
			}
		}
	}
	return out
}
