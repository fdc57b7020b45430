// Package sqlite provides an embedded SQLite backed finance store for
// single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/platinummonkey/finance/pkg/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS finance_users (
	user_id    TEXT      NOT NULL,
	provider   TEXT      NOT NULL,
	data       TEXT      NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (user_id, provider)
);

CREATE TABLE IF NOT EXISTS finance_plans (
	name       TEXT      PRIMARY KEY,
	kind       TEXT      NOT NULL,
	options    TEXT      NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Store is a storage.Store backed by SQLite
type Store struct {
	*storage.SQLStore
}

// NewStore opens (or creates) the database at path. Use ":memory:" for a
// private in-memory database.
func NewStore(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{SQLStore: storage.NewSQLStore(db, "sqlite", storage.QuestionPlaceholder)}, nil
}
