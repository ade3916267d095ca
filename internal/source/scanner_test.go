package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wysstartgo/anycode/internal/model"
)

func touch(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestScanAll(t *testing.T) {
	root := t.TempDir()
	roots := Roots{
		Claude: filepath.Join(root, "claude"),
		Codex:  filepath.Join(root, "codex"),
		Gemini: filepath.Join(root, "gemini"),
	}

	touch(t, filepath.Join(roots.Claude, "projects", "-Users-me-projects-gitlore", "abc.jsonl"), "{}\n")
	touch(t, filepath.Join(roots.Claude, "projects", "-Users-me-projects-gitlore", "abc", "subagents", "agent-1.jsonl"), "{}\n")
	touch(t, filepath.Join(roots.Claude, "projects", "-Users-me-projects-gitlore", "sessions-index.json"), "{}")
	touch(t, filepath.Join(roots.Codex, "sessions", "2025", "09", "01",
		"rollout-2025-09-01T10-00-00-0199a1b2-c3d4-7e5f-8a9b-0c1d2e3f4a5b.jsonl"), "{}\n")
	touch(t, filepath.Join(roots.Codex, "sessions", "2025", "09", "01", "notes.jsonl"), "{}\n")
	touch(t, filepath.Join(roots.Gemini, "tmp", "9f86d081884c7d65", "chats", "session-2025-09-01T10-00-ab12.json"), "{}")
	touch(t, filepath.Join(roots.Gemini, "tmp", "9f86d081884c7d65", "logs.json"), "[]")

	files, err := ScanAll(roots)
	require.NoError(t, err)
	require.Len(t, files, 4)

	byEngine := make(map[model.Engine][]DiscoveredFile)
	for _, f := range files {
		byEngine[f.Engine] = append(byEngine[f.Engine], f)
	}

	require.Len(t, byEngine[model.EngineClaude], 2)
	for _, f := range byEngine[model.EngineClaude] {
		assert.Equal(t, "gitlore", f.Project)
		if f.IsSubagent {
			assert.Equal(t, "abc/agent-1", f.SessionID)
			assert.Equal(t, "abc", f.ParentSession)
		} else {
			assert.Equal(t, "abc", f.SessionID)
		}
	}

	require.Len(t, byEngine[model.EngineCodex], 1)
	assert.Equal(t, "0199a1b2-c3d4-7e5f-8a9b-0c1d2e3f4a5b", byEngine[model.EngineCodex][0].SessionID)

	require.Len(t, byEngine[model.EngineGemini], 1)
	g := byEngine[model.EngineGemini][0]
	assert.Equal(t, "session-2025-09-01T10-00-ab12", g.SessionID)
	assert.Equal(t, "9f86d081884c7d65", g.ProjectDir)
	assert.Equal(t, "9f86d081", g.Project)

	only, err := ScanAll(roots, model.EngineCodex)
	require.NoError(t, err)
	assert.Len(t, only, 1)
	assert.Equal(t, 3, CountProjects(files))
}

func TestScanAll_MissingDirs(t *testing.T) {
	files, err := ScanAll(Roots{Claude: filepath.Join(t.TempDir(), "nope")})
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestDecodeProjectName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"-Users-tayloreernisse-projects-gitlore", "gitlore"},
		{"-Users-tayloreernisse-projects-my-cool-project", "my-cool-project"},
		{"-home-me-src-api", "api"},
		{"-tmp-scratch", "scratch"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, decodeProjectName(tt.in), tt.in)
	}
}
