package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"vault-go/internal/database"
	"vault-go/internal/database/migrations"
)

// snapshot is one generated schema file.
type snapshot struct {
	dialect string
	file    string
	build   func() (string, error)
}

func main() {
	snapshots := []snapshot{
		{dialect: migrations.SQLite, file: "schema.sql", build: sqliteSchema},
		// No server is needed: the postgres snapshot is the ordered up scripts.
		{dialect: migrations.Postgres, file: "schema_postgres.sql", build: func() (string, error) {
			return migrations.UpScript(migrations.Postgres)
		}},
	}

	outDir := filepath.Join("internal", "database")
	for _, s := range snapshots {
		body, err := s.build()
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s schema: %v\n", s.dialect, err)
			os.Exit(1)
		}
		outPath := filepath.Join(outDir, s.file)
		if err := os.WriteFile(outPath, []byte(header(s.dialect)+body), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "writing %s: %v\n", outPath, err)
			os.Exit(1)
		}
		fmt.Printf("Generated %s\n", outPath)
	}
}

func header(dialect string) string {
	return fmt.Sprintf(`-- This file is auto-generated from migration files.
-- DO NOT EDIT MANUALLY. Run 'go generate ./internal/database' to regenerate.
-- Source: internal/database/migrations/files/%s/*.sql

`, dialect)
}

// sqliteSchema migrates an in-memory vault database and reads the resulting
// tables and indexes back from sqlite_master.
func sqliteSchema() (string, error) {
	db, err := database.OpenConnection(":memory:")
	if err != nil {
		return "", fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := migrations.MigrateUp(db.DB, migrations.SQLite); err != nil {
		return "", err
	}
	return extractSchema(db.DB)
}

// extractSchema lists the CREATE statements of the vault tables (quotas,
// files, backups) and their indexes, tables first.
func extractSchema(db *sql.DB) (string, error) {
	rows, err := db.Query(`
		SELECT sql || ';'
		FROM sqlite_master
		WHERE type IN ('table', 'index')
		  AND sql IS NOT NULL
		  AND name NOT LIKE 'sqlite_%'
		  AND tbl_name != 'schema_migrations'
		ORDER BY CASE type WHEN 'table' THEN 1 ELSE 2 END, tbl_name, name
	`)
	if err != nil {
		return "", fmt.Errorf("querying sqlite_master: %w", err)
	}
	defer rows.Close()

	var stmts []string
	for rows.Next() {
		var stmt string
		if err := rows.Scan(&stmt); err != nil {
			return "", fmt.Errorf("scanning schema: %w", err)
		}
		stmts = append(stmts, stmt)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("reading schema: %w", err)
	}
	return strings.Join(stmts, "\n\n") + "\n", nil
}
