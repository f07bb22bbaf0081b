package database

import (
	"fmt"
	"net/url"

	"github.com/jmoiron/sqlx"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// NewSQLiteDatabase creates a new SQLite database connection.
// path can be a file path or ":memory:" for an in-memory database.
// The schema is not migrated; call Migrate or check with CheckMigrations.
func NewSQLiteDatabase(path string) (*SQLDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return newSQLDatabase(db, sqliteDialect), nil
}

// OpenConnection opens and configures a SQLite database connection.
// This is exported for use in tools and tests that need a properly configured SQLite connection.
//
// Transactions start with BEGIN IMMEDIATE so the first statement of TrackUpload
// already holds the write lock; concurrent writers wait up to the busy timeout.
func OpenConnection(path string) (*sqlx.DB, error) {
	params := url.Values{}
	params.Set("_foreign_keys", "on")
	params.Set("_busy_timeout", "10000")
	params.Set("_txlock", "immediate")

	memory := path == ":memory:"
	if !memory {
		params.Set("_journal_mode", "WAL")
		params.Set("_synchronous", "NORMAL")
	}

	db, err := sqlx.Open("sqlite3", path+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if memory {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}
