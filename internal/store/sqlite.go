package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/imap2news/internal/model"
)

// SQLiteStore implements Journal using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ Journal = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// An in-memory database exists per connection.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// RecordTransfer inserts a transfer record and returns its ID.
func (s *SQLiteStore) RecordTransfer(
	ctx context.Context,
	t model.Transfer,
) (string, error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transfers (
			id, mailbox, seq, uid, message_id,
			newsgroups, spool_path, deleted, delivered_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Mailbox, t.Seq, t.UID, t.MessageID,
		t.Newsgroups, t.SpoolPath, boolToInt(t.Deleted), t.DeliveredAt.UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("recording transfer of %s: %w", t.MessageID, err)
	}

	return t.ID, nil
}

// MarkDeleted records that the source message was marked deleted.
func (s *SQLiteStore) MarkDeleted(
	ctx context.Context,
	id string,
	uid uint32,
) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE transfers SET deleted = 1, uid = ? WHERE id = ?",
		uid, id,
	)
	if err != nil {
		return fmt.Errorf("marking transfer %s deleted: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("marking transfer %s deleted: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("transfer %s not found", id)
	}

	return nil
}

// TransfersByMessageID returns deliveries of messageID, newest first.
func (s *SQLiteStore) TransfersByMessageID(
	ctx context.Context,
	messageID string,
) ([]model.Transfer, error) {
	var transfers []model.Transfer
	err := s.db.SelectContext(ctx, &transfers,
		"SELECT * FROM transfers WHERE message_id = ? ORDER BY delivered_at DESC",
		messageID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying transfers of %s: %w", messageID, err)
	}

	return transfers, nil
}

// RecentTransfers returns up to limit deliveries, newest first.
func (s *SQLiteStore) RecentTransfers(
	ctx context.Context,
	limit int,
) ([]model.Transfer, error) {
	if limit < 1 {
		limit = 20
	}

	var transfers []model.Transfer
	err := s.db.SelectContext(ctx, &transfers,
		"SELECT * FROM transfers ORDER BY delivered_at DESC, rowid DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying recent transfers: %w", err)
	}

	return transfers, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
