package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/wysstartgo/anycode/internal/model"
	"github.com/wysstartgo/anycode/internal/source"
	"github.com/wysstartgo/anycode/internal/store"
)

// CachedLoadResult is a LoadResult plus how much of it came from the cache.
type CachedLoadResult struct {
	LoadResult
	CacheHits int
	Reparsed  int
	Pruned    int
}

// LoadWithCache behaves like Load but parses only files whose fingerprint
// changed since they were cached. Cached files that no longer exist on disk
// are dropped from the cache.
func LoadWithCache(opts LoadOptions, cache *store.Cache, progressFn ProgressFunc) (*CachedLoadResult, error) {
	files, toProcess, err := discover(opts)
	if err != nil {
		return nil, err
	}
	known, err := cache.Fingerprints()
	if err != nil {
		return nil, fmt.Errorf("reading cache: %w", err)
	}

	result := &CachedLoadResult{
		LoadResult: LoadResult{
			TotalFiles:   len(toProcess),
			ProjectCount: source.CountProjects(files),
		},
	}
	result.Pruned = prune(cache, known, files)

	var stale []source.DiscoveredFile
	var prints []store.Fingerprint
	fresh := make(map[string]struct{})
	for _, f := range toProcess {
		info, err := os.Stat(f.Path)
		if err != nil {
			result.FileErrors++
			continue
		}
		fp := store.FingerprintOf(info)
		if old, ok := known[f.Path]; ok && old == fp {
			fresh[f.Path] = struct{}{}
			continue
		}
		stale = append(stale, f)
		prints = append(prints, fp)
	}
	result.CacheHits = len(fresh)
	result.Reparsed = len(stale)

	if len(fresh) > 0 {
		cached, err := cache.Sessions(fresh)
		if err != nil {
			return nil, fmt.Errorf("loading cached sessions: %w", err)
		}
		result.Sessions = append(result.Sessions, cached...)
		result.ParsedFiles += len(fresh)
	}

	parsed := parseAll(stale, func(n int) {
		if progressFn != nil {
			progressFn(result.CacheHits+n, result.TotalFiles)
		}
	})
	for i, pr := range parsed {
		var kept *model.SessionStats
		if result.absorb(pr) {
			kept = &parsed[i].Stats
		}
		if pr.Err == nil {
			_ = cache.Put(stale[i].Path, stale[i].Engine, prints[i], kept)
		}
	}
	return result, nil
}

// prune forgets cached files that were not discovered and are gone from
// disk. Files outside the current engine selection are left alone.
func prune(cache *store.Cache, known map[string]store.Fingerprint, discovered []source.DiscoveredFile) int {
	seen := make(map[string]struct{}, len(discovered))
	for _, f := range discovered {
		seen[f.Path] = struct{}{}
	}
	var gone []string
	for path := range known {
		if _, ok := seen[path]; ok {
			continue
		}
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			gone = append(gone, path)
		}
	}
	if err := cache.Forget(gone...); err != nil {
		return 0
	}
	return len(gone)
}

// CacheDir returns the anycode cache directory, honoring XDG_CACHE_HOME.
func CacheDir() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "anycode")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cache", "anycode")
}

// CachePath returns the path of the cache database.
func CachePath() string {
	return filepath.Join(CacheDir(), "metrics.db")
}
