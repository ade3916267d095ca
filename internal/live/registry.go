package live

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/wysstartgo/anycode/internal/model"
	"github.com/wysstartgo/anycode/internal/source"
)

// Registry treats a session as running while its log keeps being written to.
type Registry struct {
	scan   func() ([]source.DiscoveredFile, error)
	window time.Duration
	now    func() time.Time
}

// NewRegistry returns a registry over the given engine directories. A log
// modified within window counts as a running session.
func NewRegistry(roots source.Roots, window time.Duration) *Registry {
	return &Registry{
		scan: func() ([]source.DiscoveredFile, error) {
			return source.ScanAll(roots, model.EngineClaude, model.EngineCodex)
		},
		window: window,
		now:    time.Now,
	}
}

// ListRunning returns running sessions, most recently active first.
func (r *Registry) ListRunning(ctx context.Context) ([]model.Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	files, err := r.scan()
	if err != nil {
		return nil, err
	}
	cutoff := r.now().Add(-r.window)

	active := lo.Filter(files, func(f source.DiscoveredFile, _ int) bool {
		return f.Engine.Live() && !f.IsSubagent && f.ModTime.After(cutoff)
	})
	procs := lo.Map(active, func(f source.DiscoveredFile, _ int) model.Process {
		return model.Process{
			SessionID:    f.SessionID,
			ProjectID:    f.ProjectDir,
			Engine:       f.Engine,
			Path:         f.Path,
			LastActivity: f.ModTime,
		}
	})
	slices.SortFunc(procs, func(a, b model.Process) int {
		if c := b.LastActivity.Compare(a.LastActivity); c != 0 {
			return c
		}
		return strings.Compare(a.SessionID, b.SessionID)
	})
	return procs, nil
}

// Lookup returns the running process for sessionID.
func (r *Registry) Lookup(ctx context.Context, sessionID string) (model.Process, bool, error) {
	procs, err := r.ListRunning(ctx)
	if err != nil {
		return model.Process{}, false, err
	}
	p, ok := lo.Find(procs, func(p model.Process) bool { return p.SessionID == sessionID })
	return p, ok, nil
}
