package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS subscriptions (
    recipient_id INTEGER NOT NULL,
    network      TEXT    NOT NULL,
    PRIMARY KEY (recipient_id, network)
);`

// SQLiteStore keeps subscriptions in an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and migrates) the database at path.
func OpenSQLite(ctx context.Context, path string, busyTimeout time.Duration) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if busyTimeout > 0 {
		_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()))
	}
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Load reads every subscription row.
func (s *SQLiteStore) Load(ctx context.Context) (Subscriptions, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT recipient_id, network FROM subscriptions ORDER BY recipient_id, network`)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	subs := make(Subscriptions)
	for rows.Next() {
		var (
			recipient int64
			network   string
		)
		if err := rows.Scan(&recipient, &network); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs[recipient] = append(subs[recipient], network)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return subs.Normalize(), nil
}

// Save replaces the stored mapping in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, subs Subscriptions) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM subscriptions`); err != nil {
		return fmt.Errorf("clear subscriptions: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO subscriptions(recipient_id, network) VALUES(?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	normalized := subs.Normalize()
	for _, recipient := range normalized.Recipients() {
		for _, network := range normalized[recipient] {
			if _, err := stmt.ExecContext(ctx, recipient, network); err != nil {
				return fmt.Errorf("insert subscription: %w", err)
			}
		}
	}
	return tx.Commit()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ SubscriptionStore = (*SQLiteStore)(nil)
