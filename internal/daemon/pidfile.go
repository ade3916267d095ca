package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// ErrNotRunning is returned by PIDFile.Read when no daemon holds the file.
var ErrNotRunning = errors.New("daemon is not running")

// ProcessState describes a running daemon. It is stored beside the pid file.
type ProcessState struct {
	PID       int       `json:"pid"`
	Addr      string    `json:"addr"`
	StartedAt time.Time `json:"started_at"`
}

// PIDFile guards against two daemons running at once.
type PIDFile struct {
	Path string
}

func (p PIDFile) statePath() string { return p.Path + ".json" }

// Claim records the current process as the daemon listening on addr.
// A pid file left by a dead process is replaced.
func (p PIDFile) Claim(addr string) error {
	if st, err := p.Read(); err == nil {
		return fmt.Errorf("daemon already running (pid %d)", st.PID)
	} else if !errors.Is(err, ErrNotRunning) {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o750); err != nil {
		return fmt.Errorf("create daemon directory: %w", err)
	}
	pid := os.Getpid()
	if err := os.WriteFile(p.Path, []byte(strconv.Itoa(pid)+"\n"), 0o600); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	data, err := json.MarshalIndent(ProcessState{PID: pid, Addr: addr, StartedAt: time.Now()}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p.statePath(), append(data, '\n'), 0o600)
}

// Release removes the pid and state files.
func (p PIDFile) Release() {
	_ = os.Remove(p.Path)
	_ = os.Remove(p.statePath())
}

// Read returns the state of the live daemon holding the file. Stale files
// are removed and reported as ErrNotRunning.
func (p PIDFile) Read() (ProcessState, error) {
	//nolint:gosec // pid path is configured by the local user
	raw, err := os.ReadFile(p.Path)
	if errors.Is(err, os.ErrNotExist) {
		return ProcessState{}, ErrNotRunning
	}
	if err != nil {
		return ProcessState{}, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || pid <= 0 {
		return ProcessState{}, fmt.Errorf("invalid pid in %s", p.Path)
	}
	if !ProcessAlive(pid) {
		p.Release()
		return ProcessState{}, ErrNotRunning
	}

	st := ProcessState{PID: pid}
	//nolint:gosec // state path is derived from the pid path
	if data, err := os.ReadFile(p.statePath()); err == nil {
		_ = json.Unmarshal(data, &st)
		st.PID = pid
	}
	return st, nil
}

// Stop sends SIGTERM to the daemon and waits up to timeout for it to exit.
func (p PIDFile) Stop(timeout time.Duration) (int, error) {
	st, err := p.Read()
	if err != nil {
		return 0, err
	}
	proc, err := os.FindProcess(st.PID)
	if err != nil {
		return st.PID, fmt.Errorf("find daemon process: %w", err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return st.PID, fmt.Errorf("signal daemon process: %w", err)
	}
	for deadline := time.Now().Add(timeout); time.Now().Before(deadline); time.Sleep(150 * time.Millisecond) {
		if !ProcessAlive(st.PID) {
			p.Release()
			return st.PID, nil
		}
	}
	return st.PID, fmt.Errorf("daemon (pid %d) did not exit in time", st.PID)
}

// ProcessAlive reports whether pid names a live process.
func ProcessAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

// FetchStatus queries a daemon's /v1/status endpoint.
func FetchStatus(ctx context.Context, addr string) (Status, error) {
	var st Status
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/v1/status", nil)
	if err != nil {
		return st, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return st, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return st, fmt.Errorf("status endpoint: HTTP %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return st, fmt.Errorf("decode status: %w", err)
	}
	return st, nil
}
