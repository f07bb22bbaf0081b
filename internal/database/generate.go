package database

// This file documents code generation for the database package.
//
// To regenerate the schema snapshots (schema.sql for SQLite,
// schema_postgres.sql for PostgreSQL) from the migrations:
//   go generate ./internal/database

//go:generate sh -c "cd ../.. && go run internal/database/tools/generate_schema.go"
