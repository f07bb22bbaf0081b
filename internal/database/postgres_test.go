package database

import (
	"os"
	"testing"
)

// newPostgresTestDB connects to VAULT_TEST_POSTGRES_DSN and empties the vault tables.
func newPostgresTestDB(t *testing.T) *SQLDatabase {
	t.Helper()

	dsn := os.Getenv("VAULT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("VAULT_TEST_POSTGRES_DSN not set")
	}

	db, err := NewPostgresDatabase(dsn)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})

	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	if _, err := db.db.Exec("TRUNCATE quotas, files, backups RESTART IDENTITY"); err != nil {
		t.Fatalf("failed to truncate tables: %v", err)
	}
	return db
}

func TestPostgres_Stores(t *testing.T) {
	if os.Getenv("VAULT_TEST_POSTGRES_DSN") == "" {
		t.Skip("VAULT_TEST_POSTGRES_DSN not set")
	}
	runStoreTests(t, newPostgresTestDB)
}

func TestPostgres_CheckMigrations(t *testing.T) {
	db := newPostgresTestDB(t)

	if err := db.CheckMigrations(); err != nil {
		t.Errorf("CheckMigrations() error = %v", err)
	}
	if db.Dialect() != "postgres" {
		t.Errorf("Dialect() = %q, want postgres", db.Dialect())
	}
}
