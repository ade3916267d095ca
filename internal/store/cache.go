// Package store caches per-file session statistics in SQLite so unchanged
// logs are not parsed again.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wysstartgo/anycode/internal/model"

	_ "modernc.org/sqlite" // register sqlite driver
)

// Cache is an open cache database.
type Cache struct {
	db *sql.DB
}

// Fingerprint identifies one version of a file on disk.
type Fingerprint struct {
	MtimeNs int64
	Size    int64
}

// FingerprintOf returns the fingerprint of a stat result.
func FingerprintOf(info fs.FileInfo) Fingerprint {
	return Fingerprint{MtimeNs: info.ModTime().UnixNano(), Size: info.Size()}
}

// Open opens the cache at path, creating it and its directory if needed.
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Cache{db: db}, nil
}

func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("reading cache version: %w", err)
	}
	if version == schemaVersion {
		return nil
	}
	if version != 0 {
		if _, err := db.Exec(dropSQL); err != nil {
			return fmt.Errorf("dropping stale cache: %w", err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion))
	return err
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Fingerprints returns the fingerprint of every cached file by path.
func (c *Cache) Fingerprints() (map[string]Fingerprint, error) {
	rows, err := c.db.Query("SELECT path, mtime_ns, size FROM files")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]Fingerprint)
	for rows.Next() {
		var path string
		var fp Fingerprint
		if err := rows.Scan(&path, &fp.MtimeNs, &fp.Size); err != nil {
			return nil, err
		}
		out[path] = fp
	}
	return out, rows.Err()
}

// Put records that the file at path was parsed at fingerprint fp. s is the
// resulting session, or nil when the file held nothing worth keeping.
func (c *Cache) Put(path string, engine model.Engine, fp Fingerprint, s *model.SessionStats) error {
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Replacing the files row cascades to the old sessions row.
	if _, err := tx.Exec("DELETE FROM files WHERE path = ?", path); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO files (path, engine, mtime_ns, size, parsed_ms) VALUES (?, ?, ?, ?, ?)",
		path, string(engine), fp.MtimeNs, fp.Size, time.Now().UnixMilli()); err != nil {
		return err
	}
	if s != nil {
		if err := insertSession(tx, path, s); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func insertSession(tx *sql.Tx, path string, s *model.SessionStats) error {
	models, err := json.Marshal(s.Models)
	if err != nil {
		return fmt.Errorf("encoding models: %w", err)
	}
	_, err = tx.Exec(`INSERT INTO sessions (
		path, engine, session_id, project, project_path, subagent, parent_session,
		started_ms, ended_ms, duration_secs, user_messages, api_calls,
		input_tokens, output_tokens, cache_write_tokens, cache_read_tokens,
		estimated_cost, cache_hit_rate, models
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		path, string(s.Engine), s.SessionID, s.Project, s.ProjectPath, s.IsSubagent, s.ParentSession,
		unixMilli(s.StartTime), unixMilli(s.EndTime), s.DurationSecs, s.UserMessages, s.APICalls,
		s.InputTokens, s.OutputTokens, s.CacheCreationTokens, s.CacheReadTokens,
		s.EstimatedCost, s.CacheHitRate, string(models),
	)
	return err
}

// Sessions returns the cached sessions whose file is in paths. A nil set
// returns every cached session.
func (c *Cache) Sessions(paths map[string]struct{}) ([]model.SessionStats, error) {
	rows, err := c.db.Query(`SELECT
		path, engine, session_id, project, project_path, subagent, parent_session,
		started_ms, ended_ms, duration_secs, user_messages, api_calls,
		input_tokens, output_tokens, cache_write_tokens, cache_read_tokens,
		estimated_cost, cache_hit_rate, models
		FROM sessions`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.SessionStats
	for rows.Next() {
		var (
			s              model.SessionStats
			engine, models string
			started, ended int64
		)
		if err := rows.Scan(
			&s.FilePath, &engine, &s.SessionID, &s.Project, &s.ProjectPath, &s.IsSubagent, &s.ParentSession,
			&started, &ended, &s.DurationSecs, &s.UserMessages, &s.APICalls,
			&s.InputTokens, &s.OutputTokens, &s.CacheCreationTokens, &s.CacheReadTokens,
			&s.EstimatedCost, &s.CacheHitRate, &models,
		); err != nil {
			return nil, err
		}
		if paths != nil {
			if _, ok := paths[s.FilePath]; !ok {
				continue
			}
		}
		s.Engine = model.Engine(engine)
		s.StartTime, s.EndTime = fromMilli(started), fromMilli(ended)
		if err := json.Unmarshal([]byte(models), &s.Models); err != nil {
			return nil, fmt.Errorf("decoding models of %s: %w", s.FilePath, err)
		}
		if s.Models == nil {
			s.Models = make(map[string]*model.ModelUsage)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Forget drops the cached entries of the given files.
func (c *Cache) Forget(paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	args := make([]any, len(paths))
	for i, p := range paths {
		args[i] = p
	}
	marks := strings.TrimSuffix(strings.Repeat("?,", len(paths)), ",")
	_, err := c.db.Exec("DELETE FROM files WHERE path IN ("+marks+")", args...)
	return err
}

// Count returns the number of cached files and sessions.
func (c *Cache) Count() (files, sessions int, err error) {
	err = c.db.QueryRow("SELECT (SELECT COUNT(*) FROM files), (SELECT COUNT(*) FROM sessions)").
		Scan(&files, &sessions)
	return files, sessions, err
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMilli(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
