package testutil

import (
	"path/filepath"
	"testing"

	"vault-go/internal/database"
)

// NewTestDatabase creates a new in-memory SQLite database with schema applied.
// The database is automatically closed when the test completes.
func NewTestDatabase(t *testing.T) *database.SQLDatabase {
	t.Helper()
	return openMigrated(t, ":memory:")
}

// NewFileTestDatabase creates a migrated SQLite database file in a temp directory.
// Unlike the in-memory variant it accepts several connections, so concurrent
// transactions really contend for the write lock.
func NewFileTestDatabase(t *testing.T) *database.SQLDatabase {
	t.Helper()
	return openMigrated(t, filepath.Join(t.TempDir(), "vault.db"))
}

func openMigrated(t *testing.T, path string) *database.SQLDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})

	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	return db
}
