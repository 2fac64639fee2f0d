// internal/state/db.go
package state

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// DB is a SQLite database holding every relational table of the relay.
type DB struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the SQLite database at path and migrates it.
// Use ":memory:" for a throwaway database.
func Open(path string) (*DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite: empty path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "sqlite: create data dir")
		}
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "sqlite: open")
	}
	// One writer keeps inserts ordered and avoids SQLITE_BUSY between pool connections.
	db.SetMaxOpenConns(1)

	d := &DB{db: db, now: time.Now}
	if err := d.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return d, nil
}

// SetClock overrides the timestamp source. Tests only.
func (d *DB) SetClock(now func() time.Time) {
	d.now = now
}

// Close releases the underlying database handle.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *DB) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS threads (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS threads_by_chat ON threads(chat_id, created_at_ms);`,
		`CREATE TABLE IF NOT EXISTS prompts (
			id TEXT PRIMARY KEY,
			role TEXT NOT NULL,
			content TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS gifs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			file_id TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS conversations (
			chat_id INTEGER PRIMARY KEY,
			state_json TEXT NOT NULL,
			updated_at_ms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS alarms (
			chat_id INTEGER PRIMARY KEY,
			due_ms INTEGER NOT NULL
		);`,
	}
	for _, st := range stmts {
		if _, err := d.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite: migrate")
		}
	}
	return nil
}

// Threads returns the thread store backed by d.
func (d *DB) Threads() *ThreadStore { return &ThreadStore{d: d} }

// Prompts returns the prompt store backed by d.
func (d *DB) Prompts() *PromptStore { return &PromptStore{d: d} }

// Gifs returns the gif store backed by d.
func (d *DB) Gifs() *GifStore { return &GifStore{d: d} }

// Conversations returns the conversation state store backed by d.
func (d *DB) Conversations() *ConversationStore { return &ConversationStore{d: d} }
