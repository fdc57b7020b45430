// Package postgres provides a PostgreSQL backed finance store.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/platinummonkey/finance/pkg/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS finance_users (
	user_id    TEXT        NOT NULL,
	provider   TEXT        NOT NULL,
	data       JSONB       NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (user_id, provider)
);

CREATE TABLE IF NOT EXISTS finance_plans (
	name       TEXT        PRIMARY KEY,
	kind       TEXT        NOT NULL,
	options    JSONB       NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Store is a storage.Store backed by PostgreSQL
type Store struct {
	*storage.SQLStore
}

// NewStore connects to PostgreSQL, configures the pool and applies the schema
func NewStore(ctx context.Context, config storage.Config) (*Store, error) {
	db, err := sql.Open("postgres", config.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(config.PostgresMaxConns)
	db.SetMaxIdleConns(config.PostgresMinConns)
	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, config.PostgresTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	store, err := NewStoreFromDB(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewStoreFromDB wraps an existing connection and applies the schema
func NewStoreFromDB(ctx context.Context, db *sql.DB) (*Store, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{SQLStore: storage.NewSQLStore(db, "postgresql", storage.DollarPlaceholder)}, nil
}
