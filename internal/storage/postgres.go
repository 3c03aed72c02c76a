package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createSubscriptionsSQL = `CREATE TABLE IF NOT EXISTS subscriptions (
        recipient_id BIGINT NOT NULL,
        network      TEXT   NOT NULL,
        created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
        PRIMARY KEY (recipient_id, network)
    );`

	listSubscriptionsSQL = `SELECT recipient_id, network
    FROM subscriptions
    ORDER BY recipient_id, network;`

	deleteSubscriptionsSQL = `DELETE FROM subscriptions;`

	insertSubscriptionSQL = `INSERT INTO subscriptions (recipient_id, network) VALUES ($1, $2);`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// PostgresStore keeps subscriptions in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wires a pgx pool into a store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the subscriptions table when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createSubscriptionsSQL); err != nil {
		return fmt.Errorf("create subscriptions table: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *PostgresStore) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// best effort; the session lock also drops when the connection closes
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *PostgresStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// Load reads every subscription row.
func (s *PostgresStore) Load(ctx context.Context) (Subscriptions, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, listSubscriptionsSQL)
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
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return subs.Normalize(), nil
}

// Save replaces the stored mapping with subs in a single transaction.
func (s *PostgresStore) Save(ctx context.Context, subs Subscriptions) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, deleteSubscriptionsSQL); err != nil {
			return fmt.Errorf("clear subscriptions: %w", err)
		}
		batch := &pgx.Batch{}
		normalized := subs.Normalize()
		for _, recipient := range normalized.Recipients() {
			for _, network := range normalized[recipient] {
				batch.Queue(insertSubscriptionSQL, recipient, network)
			}
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert subscriptions: %w", err)
		}
		return nil
	})
}

var (
	_ SubscriptionStore = (*PostgresStore)(nil)
	_ AdvisoryLocker    = (*PostgresStore)(nil)
)
