// Package sqlite provides the durable audit log. One row is written per
// terminal pipeline state; rows are the input to replay-based regression
// testing and are never read on the serving path.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/mortar-ai/mortar/internal/core/domain"
	"github.com/mortar-ai/mortar/internal/core/ports/driven"
)

// Ensure AuditLog implements the interface.
var _ driven.AuditLog = (*AuditLog)(nil)

// AuditLog is a SQLite-backed implementation of driven.AuditLog.
type AuditLog struct {
	db   *sql.DB
	path string
}

// NewAuditLog opens (or creates) the audit database under dataDir.
// If dataDir is empty, defaults to ~/.mortar/data.
func NewAuditLog(dataDir string) (*AuditLog, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".mortar", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "audit.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_records (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			request_id    TEXT NOT NULL,
			created_at    DATETIME NOT NULL,
			response_kind TEXT NOT NULL,
			truncated     INTEGER NOT NULL DEFAULT 0,
			record        TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating audit_records table: %w", err)
	}

	return &AuditLog{db: db, path: dbPath}, nil
}

// Path returns the database file path.
func (l *AuditLog) Path() string {
	return l.path
}

// Record writes one audit record.
func (l *AuditLog) Record(ctx context.Context, rec domain.AuditRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshalling audit record: %w", err)
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO audit_records (request_id, created_at, response_kind, truncated, record)
		VALUES (?, ?, ?, ?, ?)
	`, rec.RequestID, rec.Timestamp.UTC(), string(rec.ResponseKind), rec.Truncated, string(payload))
	if err != nil {
		return fmt.Errorf("saving audit record: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (l *AuditLog) Close() error {
	return l.db.Close()
}
