package source

import (
	"time"

	"github.com/wysstartgo/anycode/internal/model"
)

// DiscoveredFile represents a session log found during directory scanning.
type DiscoveredFile struct {
	Path          string
	Engine        model.Engine
	Project       string // decoded display name (e.g., "gitlore")
	ProjectDir    string // raw directory name, or the Gemini project hash
	SessionID     string // extracted from filename
	IsSubagent    bool
	ParentSession string // for subagents: parent session UUID
	ModTime       time.Time
	Size          int64
}

// Ref returns the session reference for the file.
func (f DiscoveredFile) Ref() model.SessionRef {
	return model.SessionRef{SessionID: f.SessionID, ProjectID: f.ProjectDir, Engine: f.Engine}
}

// Roots holds the data directory of each engine. Empty entries are skipped.
type Roots struct {
	Claude string
	Codex  string
	Gemini string
}
