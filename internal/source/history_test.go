package source

import (
	"bytes"
	"context"
	"errors"
	"log"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wysstartgo/anycode/internal/model"
)

func TestHistoryStore_Load(t *testing.T) {
	root := t.TempDir()
	roots := Roots{Claude: filepath.Join(root, "claude"), Gemini: filepath.Join(root, "gemini")}
	touch(t, filepath.Join(roots.Claude, "projects", "-w-projects-api", "5f0c2d.jsonl"),
		userLine("2025-06-01T10:00:00Z", "hello")+"\n"+
			`{"type":"summary","summary":"x"}`+"\n"+
			`{"type":"assistant","timestamp":"2025-06-01T10:00:02Z","message":{"id":"m1","model":"claude-sonnet-4-5","content":[{"type":"text","text":"hi"}],"usage":{"input_tokens":10,"output_tokens":5}}}`+"\n")
	touch(t, filepath.Join(roots.Gemini, "tmp", "abcdef0123", "chats", "session-1.json"),
		`{"sessionId":"g1","messages":[{"id":"u1","timestamp":"2025-06-01T10:00:00Z","type":"user","content":"hi"}]}`)

	var logs bytes.Buffer
	store := NewHistoryStore(roots, log.New(&logs, "", 0))

	h, err := store.Load(context.Background(), model.SessionRef{SessionID: "5f0c2d", Engine: model.EngineClaude})
	require.NoError(t, err)
	require.Len(t, h.Messages, 2)
	assert.Equal(t, model.KindUser, h.Messages[0].Kind)
	assert.Equal(t, model.KindAssistant, h.Messages[1].Kind)
	assert.Contains(t, logs.String(), `"summary"`)

	// Unambiguous prefixes resolve.
	h, err = store.Load(context.Background(), model.SessionRef{SessionID: "5f0"})
	require.NoError(t, err)
	assert.Len(t, h.Messages, 2)

	h, err = store.Load(context.Background(), model.SessionRef{SessionID: "session-1", Engine: model.EngineGemini})
	require.NoError(t, err)
	require.Len(t, h.Messages, 1)

	res, err := store.Parse(model.SessionRef{SessionID: "5f0c2d"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.APICalls)
	assert.Equal(t, "api", res.Stats.Project)
}

func TestHistoryStore_NotFound(t *testing.T) {
	store := NewHistoryStore(Roots{Claude: t.TempDir()}, nil)
	_, err := store.Load(context.Background(), model.SessionRef{SessionID: "missing"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrSessionNotFound))

	// The engine filter applies before matching.
	root := t.TempDir()
	touch(t, filepath.Join(root, "projects", "-p", "s1.jsonl"), "")
	store = NewHistoryStore(Roots{Claude: root}, nil)
	_, err = store.Load(context.Background(), model.SessionRef{SessionID: "s1", Engine: model.EngineCodex})
	assert.ErrorIs(t, err, model.ErrSessionNotFound)
}

func TestHistoryStore_Cancelled(t *testing.T) {
	store := NewHistoryStore(Roots{Claude: t.TempDir()}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := store.Load(ctx, model.SessionRef{SessionID: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}
