package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	_ "modernc.org/sqlite"
)

// OpenSQLite opens or creates an SQLite database at path.
// ":memory:" gives a private in-memory database.
func OpenSQLite(path string) (Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite serializes writers, and each :memory: connection is its own
	// database, so keep a single connection.
	conn.SetMaxOpenConns(1)

	pragmas := []string{"PRAGMA foreign_keys=ON;"}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL;")
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	s, err := newSQLStore(conn, sqlbuilder.SQLite, "SQLite")
	if err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}
