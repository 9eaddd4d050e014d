// Package sqlite implements the storage backend on an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kozaktomas/attendance-engine/internal/database"
	_ "modernc.org/sqlite"
)

// dsnPragmas are applied to every connection.
const dsnPragmas = "_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"

// OpenDB opens the database file at path, creating its directory, and
// applies migrations. The pool is limited to a single connection.
func OpenDB(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		path = "./data/attendance.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}
	return openDSN(ctx, fmt.Sprintf("file:%s?%s", path, dsnPragmas))
}

func openDSN(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Open opens the database at path and returns a Backend over it.
func Open(ctx context.Context, path string) (*database.Backend, error) {
	db, err := OpenDB(ctx, path)
	if err != nil {
		return nil, err
	}
	return NewBackend(db), nil
}

// NewBackend wires every repository onto db. All writes go through one Worker.
func NewBackend(db *sql.DB) *database.Backend {
	writer := NewWorker(db)
	candidates := NewCandidateStore(db, writer)
	logs := NewRecognitionLogStore(db, writer)
	b := &database.Backend{
		Name:       "sqlite",
		Candidates: candidates,
		Sessions:   NewSessionStore(db),
		Attendance: NewAttendanceStore(db, writer),
		LogWriter:  logs,
		LogReader:  logs,
		Assigner:   candidates,
	}
	b.OnClose(db.Close)
	b.OnClose(func() error {
		writer.Close()
		return nil
	})
	return b
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
