package pipeline

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/samber/lo"

	"github.com/wysstartgo/anycode/internal/model"
	"github.com/wysstartgo/anycode/internal/source"
)

// LoadOptions selects which session logs a load covers.
type LoadOptions struct {
	Roots            source.Roots
	Engines          []model.Engine // empty means every engine
	IncludeSubagents bool
}

// LoadResult is the outcome of one load.
type LoadResult struct {
	Sessions     []model.SessionStats
	TotalFiles   int
	ParsedFiles  int
	ParseErrors  int // malformed lines inside otherwise readable files
	FileErrors   int // files that could not be read at all
	ProjectCount int
}

// absorb counts one parse result and keeps its session when it has any
// activity. It reports whether the session was kept.
func (r *LoadResult) absorb(pr source.ParseResult) bool {
	if pr.Err != nil {
		r.FileErrors++
		return false
	}
	r.ParsedFiles++
	r.ParseErrors += pr.ParseErrors
	if !pr.Stats.Active() {
		return false
	}
	r.Sessions = append(r.Sessions, pr.Stats)
	return true
}

// ProgressFunc receives the number of files finished out of total.
type ProgressFunc func(current, total int)

// discover scans the roots and drops sub-agent logs unless asked for.
// all always includes them, for project counting and cache pruning.
func discover(opts LoadOptions) (all, wanted []source.DiscoveredFile, err error) {
	all, err = source.ScanAll(opts.Roots, opts.Engines...)
	if err != nil {
		return nil, nil, fmt.Errorf("scanning session logs: %w", err)
	}
	if opts.IncludeSubagents {
		return all, all, nil
	}
	return all, lo.Reject(all, func(f source.DiscoveredFile, _ int) bool { return f.IsSubagent }), nil
}

// Load discovers and parses every session log of the selected engines.
func Load(opts LoadOptions, progressFn ProgressFunc) (*LoadResult, error) {
	all, wanted, err := discover(opts)
	if err != nil {
		return nil, err
	}
	result := &LoadResult{
		TotalFiles:   len(wanted),
		ProjectCount: source.CountProjects(all),
	}
	for _, pr := range parseAll(wanted, func(n int) {
		if progressFn != nil {
			progressFn(n, len(wanted))
		}
	}) {
		result.absorb(pr)
	}
	return result, nil
}

// parseAll parses files on up to GOMAXPROCS workers. Results keep the
// input order; progress gets the running count of finished files.
func parseAll(files []source.DiscoveredFile, progress func(done int)) []source.ParseResult {
	results := make([]source.ParseResult, len(files))
	if len(files) == 0 {
		return results
	}

	var (
		next atomic.Int64
		done atomic.Int64
		wg   sync.WaitGroup
	)
	workers := min(max(runtime.GOMAXPROCS(0), 1), len(files))
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			for {
				i := int(next.Add(1) - 1)
				if i >= len(files) {
					return
				}
				results[i] = source.ParseFile(files[i])
				progress(int(done.Add(1)))
			}
		}()
	}
	wg.Wait()
	return results
}
