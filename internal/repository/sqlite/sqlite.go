// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY SQLITE?
// The client runs as a short-lived CLI process. Anything that must survive
// between invocations (the provider sign-in, the backend session cookie) lives
// in a single file under the user's config directory. SQLite gives us that
// file with transactions and no server to run.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// modernc.org/sqlite is a pure Go translation of SQLite: no C compiler needed,
// so the CLI cross-compiles like any other Go binary.
package sqlite

import (
	"database/sql"
	"fmt"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the state database and runs migrations.
//
// dbPath examples:
//   - "~/.config/service-review/state.db" → persistent state
//   - ":memory:"                          → in-memory database (tests)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every pooled connection to ":memory:" would be a separate empty
	// database, and a CLI never needs more than one writer anyway.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Two CLI invocations may overlap (e.g. `browse` running while `login`
	// is issued in another terminal).
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the tables if they don't exist. CREATE TABLE IF NOT EXISTS
// is idempotent, so this runs on every open.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS provider_users (
			provider       TEXT PRIMARY KEY,
			uid            TEXT NOT NULL,
			email          TEXT NOT NULL DEFAULT '',
			display_name   TEXT NOT NULL DEFAULT '',
			photo_url      TEXT NOT NULL DEFAULT '',
			email_verified INTEGER NOT NULL DEFAULT 0,
			provider_id    TEXT NOT NULL DEFAULT '',
			id_token       TEXT NOT NULL DEFAULT '',
			refresh_token  TEXT NOT NULL DEFAULT '',
			expires_at     DATETIME NOT NULL,
			updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating provider_users table: %w", err)
	}

	// One row per (origin, name, path), the same identity a browser uses
	// when deciding whether a Set-Cookie replaces an existing cookie.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS cookies (
			origin     TEXT NOT NULL,
			name       TEXT NOT NULL,
			path       TEXT NOT NULL DEFAULT '/',
			value      TEXT NOT NULL,
			domain     TEXT NOT NULL DEFAULT '',
			expires_at DATETIME,
			secure     INTEGER NOT NULL DEFAULT 0,
			http_only  INTEGER NOT NULL DEFAULT 0,
			same_site  INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (origin, name, path)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating cookies table: %w", err)
	}

	return nil
}
