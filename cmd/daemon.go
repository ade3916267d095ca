package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/wysstartgo/anycode/internal/cli"
	"github.com/wysstartgo/anycode/internal/daemon"
	"github.com/wysstartgo/anycode/internal/pipeline"
)

// daemonOpts holds the daemon command's flags.
var daemonOpts struct {
	addr     string
	interval time.Duration
	pidPath  string
	logPath  string
	events   int
	detach   bool
	child    bool // set on the re-executed background process
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run a background daemon serving usage snapshots and live session streams",
	RunE:  runDaemon,
}

func init() {
	o := &daemonOpts
	pf := daemonCmd.PersistentFlags()
	pf.StringVar(&o.addr, "addr", "", "listen address (default from config)")
	pf.DurationVar(&o.interval, "interval", 0, "how often to rescan session logs (default from config)")
	pf.StringVar(&o.pidPath, "pid-file", filepath.Join(pipeline.CacheDir(), "anycoded.pid"), "where the running daemon records its pid")
	pf.StringVar(&o.logPath, "log-file", filepath.Join(pipeline.CacheDir(), "anycoded.log"), "output file of a detached daemon")
	pf.IntVar(&o.events, "events-buffer", daemon.DefaultEventsBuffer, "usage events kept for /v1/events")

	f := daemonCmd.Flags()
	f.BoolVarP(&o.detach, "detach", "d", false, "keep running in the background")
	f.BoolVar(&o.child, "child", false, "")
	_ = f.MarkHidden("child")

	daemonCmd.AddCommand(
		&cobra.Command{Use: "status", Short: "Show daemon process and API status", RunE: runDaemonStatus},
		&cobra.Command{Use: "stop", Short: "Stop the running daemon", RunE: runDaemonStop},
	)
	rootCmd.AddCommand(daemonCmd)
}

func pidFile() daemon.PIDFile {
	return daemon.PIDFile{Path: daemonOpts.pidPath}
}

// resolveDaemonFlags fills --addr and --interval from the config file when
// they were not given.
func resolveDaemonFlags() {
	daemonOpts.addr = lo.CoalesceOrEmpty(daemonOpts.addr, cfg.DaemonAddr())
	if daemonOpts.interval <= 0 {
		daemonOpts.interval = cfg.Daemon.RefreshEvery()
	}
}

func runDaemon(_ *cobra.Command, _ []string) error {
	resolveDaemonFlags()
	switch {
	case daemonOpts.detach && daemonOpts.child:
		return errors.New("--detach and --child are exclusive")
	case daemonOpts.detach:
		return detachDaemon()
	}
	return serveDaemon()
}

// detachDaemon starts this command line again, minus --detach, as a
// background child whose output goes to the log file.
func detachDaemon() error {
	if st, err := pidFile().Read(); err == nil {
		return fmt.Errorf("daemon already running (pid %d)", st.PID)
	}
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating anycode binary: %w", err)
	}
	out, err := openDaemonLog(daemonOpts.logPath)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	child := exec.Command(self, append(childArgs(os.Args[1:]), "--child")...) //nolint:gosec // our own binary
	child.Stdout = out
	child.Stderr = out
	if err := child.Start(); err != nil {
		return fmt.Errorf("starting background daemon: %w", err)
	}
	fmt.Printf("  Daemon started in the background (pid %d)\n", child.Process.Pid)
	fmt.Printf("    status  http://%s/v1/status\n", daemonOpts.addr)
	fmt.Printf("    log     %s\n", daemonOpts.logPath)
	return nil
}

func openDaemonLog(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("daemon log: %w", err)
	}
	//nolint:gosec // path comes from the local user's flags
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("daemon log: %w", err)
	}
	return f, nil
}

func childArgs(args []string) []string {
	return lo.Reject(args, func(a string, _ int) bool {
		return a == "--detach" || strings.HasPrefix(a, "--detach=")
	})
}

func serveDaemon() error {
	pf := pidFile()
	if err := pf.Claim(daemonOpts.addr); err != nil {
		return err
	}
	defer pf.Release()

	es, err := engines()
	if err != nil {
		return err
	}
	svc := daemon.New(daemon.Config{
		Roots:            roots(),
		Engines:          es,
		Days:             flagDays,
		ProjectFilter:    flagProject,
		ModelFilter:      flagModel,
		IncludeSubagents: !flagNoSubagents,
		UseCache:         !flagNoCache,
		Interval:         daemonOpts.interval,
		ActiveWindow:     cfg.Daemon.ActiveFor(),
		IdleTimeout:      cfg.Daemon.IdleFor(),
		Addr:             daemonOpts.addr,
		EventsBuffer:     daemonOpts.events,
		Logger:           log.New(os.Stderr, "", log.LstdFlags),
	})

	fmt.Printf("  anycode daemon on http://%s, rescanning every %s\n", daemonOpts.addr, daemonOpts.interval)
	fmt.Printf("  anycode daemon stop --pid-file %s to end it\n", daemonOpts.pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := svc.Run(ctx); !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runDaemonStatus(_ *cobra.Command, _ []string) error {
	resolveDaemonFlags()
	proc, err := pidFile().Read()
	if errors.Is(err, daemon.ErrNotRunning) {
		fmt.Println("  Daemon: not running")
		return nil
	}
	if err != nil {
		return err
	}
	addr := lo.CoalesceOrEmpty(proc.Addr, daemonOpts.addr)
	fmt.Printf("  Daemon pid %d on http://%s, started %s\n", proc.PID, addr,
		cli.FormatAgo(proc.StartedAt))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := daemon.FetchStatus(ctx, addr)
	if err != nil {
		fmt.Printf("  API: unreachable (%v)\n", err)
		return nil
	}

	lastPoll := "pending"
	if !st.LastPollAt.IsZero() {
		lastPoll = cli.FormatAgo(st.LastPollAt)
	}
	fmt.Printf("  Polls: %d, last %s. Following %d running sessions.\n", st.PollCount, lastPoll, st.Following)
	if st.LastError != "" {
		fmt.Printf("  Last error: %s\n", st.LastError)
	}

	rows := lo.Map(st.ByEngine, func(e daemon.EngineSnapshot, _ int) []string {
		return []string{string(e.Engine), cli.FormatNumber(int64(e.Sessions)),
			cli.FormatTokens(e.Tokens), cli.FormatCost(e.EstimatedCostUSD)}
	})
	rows = append(rows, []string{cli.SeparatorRow}, []string{"total",
		cli.FormatNumber(int64(st.Summary.Sessions)),
		cli.FormatTokens(st.Summary.Tokens), cli.FormatCost(st.Summary.EstimatedCostUSD)})
	fmt.Print(cli.RenderTable(cli.Table{
		Title:   fmt.Sprintf("Last %d days", st.Days),
		Headers: []string{"Engine", "Sessions", "Tokens", "Cost"},
		Rows:    rows,
	}))
	return nil
}

func runDaemonStop(_ *cobra.Command, _ []string) error {
	pid, err := pidFile().Stop(8 * time.Second)
	if err != nil {
		return err
	}
	fmt.Printf("  Stopped daemon (pid %d)\n", pid)
	return nil
}
