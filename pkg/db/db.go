package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Database is the decision journal store.
type Database struct {
	DB *sql.DB
}

// New opens the journal at path, creating parent directories. ":memory:" is
// accepted for tests and throwaway runs.
func New(path string) (*Database, error) {
	if path == "" {
		return nil, errors.New("db: journal path is empty")
	}
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("db: mkdir for %s: %w", path, err)
		}
		// readers (API, health check) must not fail while the writer holds the lock
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	handle, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("db: open %s: %w", path, err)
	}
	// one connection: the batch writer is the only writer and :memory: is per-connection
	handle.SetMaxOpenConns(1)
	handle.SetConnMaxIdleTime(0)
	handle.SetConnMaxLifetime(0)
	if err := handle.Ping(); err != nil {
		handle.Close()
		return nil, fmt.Errorf("db: ping %s: %w", path, err)
	}
	return &Database{DB: handle}, nil
}

func (d *Database) Queries() *JournalQueries {
	return NewJournalQueries(d.DB)
}

func (d *Database) Close() error {
	if d == nil || d.DB == nil {
		return nil
	}
	return d.DB.Close()
}
