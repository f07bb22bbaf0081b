package database

import (
	"fmt"
	"os"
	"path/filepath"

	"vault-go/internal/config"
)

// NewDatabaseFromConfig creates a database based on the database config type.
func NewDatabaseFromConfig(cfg config.DatabaseConfig) (*SQLDatabase, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return NewSQLiteDatabase(filepath.Join(cfg.DataDir, "vault.db"))
	case "memory":
		// A fresh in-memory database always needs the full schema.
		db, err := NewSQLiteDatabase(":memory:")
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrating database: %w", err)
		}
		return db, nil
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("dsn required for postgres database")
		}
		return NewPostgresDatabase(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
