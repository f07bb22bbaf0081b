package database

import (
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // Postgres driver
	"github.com/jmoiron/sqlx"
)

// NewPostgresDatabase connects to Postgres. The schema is not migrated.
func NewPostgresDatabase(dsn string) (*SQLDatabase, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return newSQLDatabase(db, postgresDialect), nil
}
