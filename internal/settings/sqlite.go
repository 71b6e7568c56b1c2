package settings

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	werrors "github.com/p-blackswan/welcome-agent/internal/errors"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS welcome_meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS welcome_groups (
	group_id TEXT PRIMARY KEY,
	enabled INTEGER NOT NULL DEFAULT 0,
	message TEXT,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_welcome_groups_enabled ON welcome_groups(enabled);
`

const metaDefaultMessage = "default_message"

// SQLiteStore keeps the document in two tables: welcome_meta for the
// default message and welcome_groups for per-group rows. Save replaces
// both in one transaction.
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLiteStore opens (or creates) the database at dsn and applies the schema.
func NewSQLiteStore(dsn string, logger zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps :memory: databases shared across calls.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger.With().Str("component", "settings.sqlite").Logger()}
	s.logger.Debug().Str("dsn", dsn).Msg("settings database ready")
	return s, nil
}

func (s *SQLiteStore) Load(ctx context.Context) (Document, error) {
	var doc Document
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM welcome_meta WHERE key = ?`, metaDefaultMessage,
	).Scan(&doc.DefaultMessage)
	if err == sql.ErrNoRows {
		return Document{}, fmt.Errorf("settings database: %w", werrors.ErrNotFound)
	}
	if err != nil {
		return Document{}, fmt.Errorf("reading default message: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT group_id, enabled, message FROM welcome_groups`)
	if err != nil {
		return Document{}, fmt.Errorf("querying groups: %w", err)
	}
	defer rows.Close()

	doc.Groups = map[string]GroupConfig{}
	for rows.Next() {
		var (
			id      string
			enabled bool
			message sql.NullString
		)
		if err := rows.Scan(&id, &enabled, &message); err != nil {
			return Document{}, fmt.Errorf("scanning group: %w", err)
		}
		g := GroupConfig{Enabled: enabled}
		if message.Valid {
			g.Message = StringPtr(message.String)
		}
		doc.Groups[id] = g
	}
	if err := rows.Err(); err != nil {
		return Document{}, fmt.Errorf("iterating groups: %w", err)
	}

	doc.normalize()
	return doc, nil
}

func (s *SQLiteStore) Save(ctx context.Context, doc Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO welcome_meta (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		metaDefaultMessage, doc.DefaultMessage, now,
	); err != nil {
		return fmt.Errorf("saving default message: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM welcome_groups`); err != nil {
		return fmt.Errorf("clearing groups: %w", err)
	}
	for id, g := range doc.Groups {
		var message sql.NullString
		if g.Message != nil {
			message = sql.NullString{String: *g.Message, Valid: true}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO welcome_groups (group_id, enabled, message, updated_at) VALUES (?, ?, ?, ?)`,
			id, g.Enabled, message, now,
		); err != nil {
			return fmt.Errorf("saving group %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
