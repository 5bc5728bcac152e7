// Package store is the local persistence for state that outlives a session:
// contact nicknames, mute flags and the send outbox. The conversation mirror
// itself is memory-only and never written here.
package store

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps a SQLite database connection for the app-owned mumble.db.
type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the database at path. The file is private
// to the user and accessed through a single connection; only the daemon that
// holds the session lock writes to it.
func Open(path string) (*DB, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("create db: %w", err)
	}
	_ = f.Close()

	db, err := sql.Open("sqlite3", "file:"+path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{db}, nil
}
