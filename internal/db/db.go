// Package db stores tracker telemetry in SQLite: every command sent to the
// servos and every status edge, grouped by daemon session.
package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/servo-cam/server/internal/version"
)

// pragmas are applied to every pooled connection.
var pragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"temp_store(MEMORY)",
	"foreign_keys(ON)",
}

type DB struct {
	*sql.DB
	path    string
	session string
}

func dsn(path string) string {
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	return "file:" + path + "?" + q.Encode()
}

// OpenDB opens the database without touching the schema.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return &DB{DB: sqlDB, path: path}, nil
}

// NewDB opens path, applies pending migrations and starts a new session.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	if err := db.StartSession(time.Now()); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// StartSession stamps subsequent rows with a fresh session id.
func (db *DB) StartSession(at time.Time) error {
	id := uuid.NewString()
	if _, err := db.Exec(
		`INSERT INTO sessions (session_id, started_at, version) VALUES (?, ?, ?)`,
		id, at.UnixMilli(), version.Version,
	); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	db.session = id
	return nil
}

// Session returns the id rows are currently recorded under.
func (db *DB) Session() string { return db.session }

// Path returns the database file path.
func (db *DB) Path() string { return db.path }
