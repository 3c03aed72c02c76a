package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"upgrade-alerts/internal/config"
)

// ErrUnknownDriver is returned for an unsupported storage.driver value.
var ErrUnknownDriver = errors.New("storage: unknown driver")

// SubscriptionStore persists the whole subscription mapping.
type SubscriptionStore interface {
	Load(ctx context.Context) (Subscriptions, error)
	Save(ctx context.Context, subs Subscriptions) error
	Close() error
}

// Open initialises the configured subscription backend.
//
// Driver values:
//   - "file": JSON document at storage.path (default)
//   - "sqlite": SQLite database at storage.path
//   - "postgres": PostgreSQL at database.dsn
//   - "memory": nothing persisted
func Open(ctx context.Context, cfg config.StorageConfig, db config.DatabaseConfig, logger zerolog.Logger) (SubscriptionStore, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	logger = logger.With().Str("component", "storage").Str("driver", driver).Logger()

	switch driver {
	case "", "file":
		return NewFileStore(cfg.Path)
	case "sqlite", "sqlite3":
		return OpenSQLite(ctx, cfg.Path, cfg.BusyTimeout)
	case "postgres", "postgresql":
		pool, err := NewPool(ctx, db)
		if err != nil {
			return nil, err
		}
		store := NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, err
		}
		logger.Info().Msg("postgres subscription store ready")
		return store, nil
	case "memory", "none":
		logger.Warn().Msg("subscriptions are kept in memory only")
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
}

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}
