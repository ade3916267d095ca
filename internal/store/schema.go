package store

// schemaVersion is stored in PRAGMA user_version. A database written with a
// different version is dropped and rebuilt on open.
const schemaVersion = 3

const dropSQL = `
DROP TABLE IF EXISTS session_models;
DROP TABLE IF EXISTS file_tracker;
DROP TABLE IF EXISTS sessions;
DROP TABLE IF EXISTS files;
`

// Every parsed file has a files row; only files that produced a usable
// session also have a sessions row. Times are unix milliseconds, 0 if unset.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS files (
    path       TEXT PRIMARY KEY,
    engine     TEXT NOT NULL,
    mtime_ns   INTEGER NOT NULL,
    size       INTEGER NOT NULL,
    parsed_ms  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
    path               TEXT PRIMARY KEY REFERENCES files(path) ON DELETE CASCADE,
    engine             TEXT NOT NULL,
    session_id         TEXT NOT NULL,
    project            TEXT NOT NULL,
    project_path       TEXT NOT NULL DEFAULT '',
    subagent           INTEGER NOT NULL DEFAULT 0,
    parent_session     TEXT NOT NULL DEFAULT '',
    started_ms         INTEGER NOT NULL DEFAULT 0,
    ended_ms           INTEGER NOT NULL DEFAULT 0,
    duration_secs      INTEGER NOT NULL DEFAULT 0,
    user_messages      INTEGER NOT NULL DEFAULT 0,
    api_calls          INTEGER NOT NULL DEFAULT 0,
    input_tokens       INTEGER NOT NULL DEFAULT 0,
    output_tokens      INTEGER NOT NULL DEFAULT 0,
    cache_write_tokens INTEGER NOT NULL DEFAULT 0,
    cache_read_tokens  INTEGER NOT NULL DEFAULT 0,
    estimated_cost     REAL NOT NULL DEFAULT 0,
    cache_hit_rate     REAL NOT NULL DEFAULT 0,
    models             TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS sessions_by_id ON sessions(engine, session_id);
CREATE INDEX IF NOT EXISTS sessions_by_start ON sessions(started_ms);
`
