// Package sqlite provides a SQLite-backed storage driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/storage/sqldriver"
)

// schema uses AUTOINCREMENT so seq never reuses a value after a Load.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		caller_id TEXT NOT NULL,
		created_at TEXT NOT NULL,
		last_activity TEXT NOT NULL,
		information_count INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		ended_at TEXT,
		end_reason TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS information (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		session_id TEXT NOT NULL REFERENCES sessions(session_id),
		caller_id TEXT NOT NULL,
		information TEXT NOT NULL,
		category TEXT NOT NULL,
		recorded_at TEXT NOT NULL,
		status TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_information_session ON information(session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_information_category ON information(category)`,
	`CREATE INDEX IF NOT EXISTS idx_information_caller ON information(caller_id)`,
	`CREATE TABLE IF NOT EXISTS call_logs (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		session_id TEXT NOT NULL UNIQUE REFERENCES sessions(session_id),
		caller_id TEXT NOT NULL,
		end_time TEXT NOT NULL,
		reason TEXT NOT NULL,
		duration INTEGER NOT NULL,
		information_shared_count INTEGER NOT NULL
	)`,
}

// Driver implements storage.Driver using SQLite via the shared SQL driver.
type Driver struct {
	*sqldriver.Driver
}

// NewDriver creates a new SQLite-backed store.
// The dbPath can be a file path or ":memory:" for an in-memory database.
func NewDriver(ctx context.Context, dbPath string) (*Driver, error) {
	memory := dbPath == ":memory:"

	// Open the database using the github.com/mattn/go-sqlite3 driver (registered as "sqlite3")
	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to ":memory:" is a separate database.
	if memory {
		db.SetMaxOpenConns(1)
	}

	drv, err := sqldriver.New(ctx, db, sqldriver.Dialect{
		Name:              "sqlite",
		Schema:            schema,
		IsUniqueViolation: isUniqueViolation,
		IsCorrupt:         isCorrupt,
		IntegrityCheck:    "PRAGMA quick_check",
	})
	if err != nil {
		return nil, err
	}

	return &Driver{Driver: drv}, nil
}

// dsn adds the connection parameters: WAL with full sync so a returned commit
// is on disk, foreign keys, and immediate transactions so concurrent writers
// queue on busy_timeout instead of failing on lock upgrade.
func dsn(dbPath string) string {
	params := url.Values{}
	params.Set("_foreign_keys", "on")
	params.Set("_busy_timeout", "5000")
	params.Set("_txlock", "immediate")
	params.Set("_synchronous", "FULL")
	if dbPath != ":memory:" {
		params.Set("_journal_mode", "WAL")
	}

	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return "file:" + strings.TrimPrefix(dbPath, "file:") + sep + params.Encode()
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) &&
		(se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
}

func isCorrupt(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && (se.Code == sqlite3.ErrCorrupt || se.Code == sqlite3.ErrNotADB)
}
