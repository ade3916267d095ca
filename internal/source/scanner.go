package source

import (
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/wysstartgo/anycode/internal/model"
)

// ScanAll discovers the session logs of every configured engine. Engines not
// listed in only are skipped; an empty only scans everything.
func ScanAll(roots Roots, only ...model.Engine) ([]DiscoveredFile, error) {
	scans := []struct {
		engine model.Engine
		root   string
		scan   func(string) ([]DiscoveredFile, error)
	}{
		{model.EngineClaude, roots.Claude, ScanDir},
		{model.EngineCodex, roots.Codex, ScanCodex},
		{model.EngineGemini, roots.Gemini, ScanGemini},
	}

	var files []DiscoveredFile
	for _, s := range scans {
		if s.root == "" || (len(only) > 0 && !slices.Contains(only, s.engine)) {
			continue
		}
		found, err := s.scan(s.root)
		if err != nil {
			return files, err
		}
		files = append(files, found...)
	}
	return files, nil
}

// ScanDir discovers Claude Code logs under <claudeDir>/projects. Main
// sessions sit at <project>/<id>.jsonl; sub-agent logs at
// <project>/<parent-id>/subagents/agent-<n>.jsonl.
func ScanDir(claudeDir string) ([]DiscoveredFile, error) {
	projectsDir := filepath.Join(claudeDir, "projects")

	var files []DiscoveredFile
	err := walk(projectsDir, func(path string, info os.FileInfo) {
		id, ok := strings.CutSuffix(info.Name(), ".jsonl")
		if !ok {
			return
		}
		rel, _ := filepath.Rel(projectsDir, path)
		parts := strings.Split(rel, string(filepath.Separator))
		if len(parts) < 2 {
			return
		}

		df := DiscoveredFile{
			Path:       path,
			Engine:     model.EngineClaude,
			Project:    decodeProjectName(parts[0]),
			ProjectDir: parts[0],
			SessionID:  id,
			ModTime:    info.ModTime(),
			Size:       info.Size(),
		}
		if len(parts) >= 4 && parts[2] == "subagents" {
			// agent ids repeat across sessions, so qualify them with the parent
			df.IsSubagent = true
			df.ParentSession = parts[1]
			df.SessionID = parts[1] + "/" + id
		}
		files = append(files, df)
	})
	return files, err
}

var rolloutID = regexp.MustCompile(`([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})\.jsonl$`)

// ScanCodex discovers rollout files under <codexDir>/sessions/YYYY/MM/DD.
// The session id is the UUID that ends the file name.
func ScanCodex(codexDir string) ([]DiscoveredFile, error) {
	sessionsDir := filepath.Join(codexDir, "sessions")

	var files []DiscoveredFile
	err := walk(sessionsDir, func(path string, info os.FileInfo) {
		name := info.Name()
		if !strings.HasPrefix(name, "rollout-") || !strings.HasSuffix(name, ".jsonl") {
			return
		}
		id := strings.TrimSuffix(strings.TrimPrefix(name, "rollout-"), ".jsonl")
		if m := rolloutID.FindStringSubmatch(name); m != nil {
			id = m[1]
		}
		files = append(files, DiscoveredFile{
			Path:      path,
			Engine:    model.EngineCodex,
			Project:   "codex",
			SessionID: id,
			ModTime:   info.ModTime(),
			Size:      info.Size(),
		})
	})
	return files, err
}

// ScanGemini discovers chat logs under <geminiDir>/tmp/<project-hash>/chats.
func ScanGemini(geminiDir string) ([]DiscoveredFile, error) {
	tmpDir := filepath.Join(geminiDir, "tmp")

	var files []DiscoveredFile
	err := walk(tmpDir, func(path string, info os.FileInfo) {
		name := info.Name()
		if !strings.HasPrefix(name, "session-") || filepath.Ext(name) != ".json" {
			return
		}
		rel, _ := filepath.Rel(tmpDir, path)
		parts := strings.Split(rel, string(filepath.Separator))
		if len(parts) != 3 || parts[1] != "chats" {
			return
		}
		hash := parts[0]
		files = append(files, DiscoveredFile{
			Path:       path,
			Engine:     model.EngineGemini,
			Project:    shortHash(hash),
			ProjectDir: hash,
			SessionID:  strings.TrimSuffix(name, ".json"),
			ModTime:    info.ModTime(),
			Size:       info.Size(),
		})
	})
	return files, err
}

// walk visits every regular file below root. A missing root is not an error.
func walk(root string, visit func(path string, info os.FileInfo)) error {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if !info.IsDir() {
		return nil
	}
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // intentionally skip unreadable entries
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return nil //nolint:nilerr // file vanished mid-walk
		}
		visit(path, fi)
		return nil
	})
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}

// projectParents are directory names that usually sit right above a checkout.
var projectParents = map[string]bool{
	"projects": true, "repos": true, "src": true,
	"code": true, "workspace": true, "dev": true,
}

// decodeProjectName turns Claude's encoded project directory, an absolute
// path with "/" replaced by "-", back into a short project name:
//
//	"-Users-me-projects-gitlore"       -> "gitlore"
//	"-Users-me-projects-my-cool-thing" -> "my-cool-thing"
//
// Everything after the last well-known parent directory is the name; without
// one, the last non-empty segment is.
func decodeProjectName(dirName string) string {
	parts := strings.Split(dirName, "-")
	for i := len(parts) - 2; i >= 0; i-- {
		if !projectParents[strings.ToLower(parts[i])] {
			continue
		}
		if name := strings.Join(parts[i+1:], "-"); name != "" {
			return name
		}
	}
	for _, p := range slices.Backward(parts) {
		if p != "" {
			return p
		}
	}
	return dirName
}

// CountProjects returns the number of distinct engine/project pairs in files.
func CountProjects(files []DiscoveredFile) int {
	seen := make(map[string]struct{})
	for _, f := range files {
		seen[string(f.Engine)+"/"+f.Project] = struct{}{}
	}
	return len(seen)
}
