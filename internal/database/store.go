// Package database persists feeds and posts across restarts.
package database

import (
	"context"
	"fmt"

	"github.com/bryan-buckman/rssagg/internal/model"
)

// Store defines the persistence operations.
// Both SQLite and PostgreSQL backends satisfy this interface.
type Store interface {
	Close() error

	// DatabaseType returns the name of the backend ("SQLite" or "PostgreSQL").
	DatabaseType() string

	// LoadFeeds and LoadPosts return rows in display order, newest first.
	LoadFeeds(ctx context.Context) ([]model.Feed, error)
	LoadPosts(ctx context.Context) ([]model.Post, error)

	// SaveFeeds and SavePosts insert rows given in display order. Rows whose
	// ID already exists are ignored.
	SaveFeeds(ctx context.Context, feeds []model.Feed) error
	SavePosts(ctx context.Context, posts []model.Post) error
}

// Open opens the backend named by driver: sqlite, postgres or memory.
// memory is an SQLite database that lives as long as the process.
func Open(driver, dsn string) (Store, error) {
	switch driver {
	case "sqlite":
		return OpenSQLite(dsn)
	case "memory":
		return OpenSQLite(":memory:")
	case "postgres":
		return OpenPostgres(dsn)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}
}
