package database

import (
	"os"
	"path/filepath"
	"testing"

	"vault-go/internal/config"
)

func TestNewDatabaseFromConfig(t *testing.T) {
	t.Run("memory database is migrated", func(t *testing.T) {
		cfg := config.DatabaseConfig{Type: "memory"}
		got, err := NewDatabaseFromConfig(cfg)
		if err != nil {
			t.Fatalf("NewDatabaseFromConfig() unexpected error: %v", err)
		}
		defer got.Close()

		if err := got.CheckMigrations(); err != nil {
			t.Errorf("CheckMigrations() error = %v", err)
		}
	})

	t.Run("sqlite database", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "db")
		cfg := config.DatabaseConfig{
			Type:    "sqlite",
			DataDir: dir,
		}
		got, err := NewDatabaseFromConfig(cfg)
		if err != nil {
			t.Fatalf("NewDatabaseFromConfig() unexpected error: %v", err)
		}
		defer got.Close()

		if got.Dialect() != "sqlite" {
			t.Errorf("Dialect() = %q, want sqlite", got.Dialect())
		}
		// The schema is left to "vault db migrate".
		if err := got.CheckMigrations(); err == nil {
			t.Error("CheckMigrations() expected error before migration")
		}
		if _, err := os.Stat(filepath.Join(dir, "vault.db")); err != nil {
			t.Errorf("database file not created: %v", err)
		}
	})

	t.Run("sqlite database without data_dir", func(t *testing.T) {
		cfg := config.DatabaseConfig{Type: "sqlite"}
		got, err := NewDatabaseFromConfig(cfg)

		if err == nil {
			t.Error("NewDatabaseFromConfig() expected error for missing data_dir, got nil")
		}
		if got != nil {
			t.Error("NewDatabaseFromConfig() should return nil on error")
			got.Close()
		}
	})

	t.Run("postgres database without dsn", func(t *testing.T) {
		cfg := config.DatabaseConfig{Type: "postgres"}
		got, err := NewDatabaseFromConfig(cfg)

		if err == nil {
			t.Error("NewDatabaseFromConfig() expected error for missing dsn, got nil")
		}
		if got != nil {
			got.Close()
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		cfg := config.DatabaseConfig{Type: "oracle"}
		got, err := NewDatabaseFromConfig(cfg)

		if err == nil {
			t.Error("NewDatabaseFromConfig() expected error for unknown type, got nil")
		}
		if got != nil {
			got.Close()
		}
	})
}
