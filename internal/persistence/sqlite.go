package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/spec-kit/report-router/internal/config"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tickets (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    reporter_id   INTEGER NOT NULL,
    reporter_name TEXT    NOT NULL,
    body          TEXT    NOT NULL,
    support_ref   TEXT    NOT NULL UNIQUE,
    status        TEXT    NOT NULL DEFAULT 'open'
                  CHECK (status IN ('open', 'in_progress', 'closed')),
    response      TEXT    NOT NULL DEFAULT '',
    created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    closed_at     TIMESTAMP,
    CONSTRAINT tickets_response_iff_closed
        CHECK ((status = 'closed') = (response <> ''))
);
CREATE INDEX IF NOT EXISTS tickets_status_id_idx ON tickets (status, id);`

// SQLite wraps a single-file database handle.
type SQLite struct {
	DB *sql.DB
}

// NewSQLite opens (creating if needed) the database file and ensures the schema.
func NewSQLite(ctx context.Context, cfg config.SQLiteConfig, logger *zap.Logger) (*SQLite, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite path not provided")
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on", cfg.Path, cfg.BusyTimeoutMS)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// single connection serializes writers
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}

	logger.Info("opened sqlite database", zap.String("path", cfg.Path))
	return &SQLite{DB: db}, nil
}

// Close releases the database handle.
func (s *SQLite) Close() {
	if s != nil && s.DB != nil {
		_ = s.DB.Close()
	}
}

// Ping verifies the database is reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("sqlite database not configured")
	}
	return s.DB.PingContext(ctx)
}
