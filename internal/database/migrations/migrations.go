package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	migrateiofs "github.com/golang-migrate/migrate/v4/source/iofs"
)

// Supported dialects. Each has its own directory under files/.
const (
	SQLite   = "sqlite"
	Postgres = "postgres"
)

// ErrNoVersion is returned for a database that has never been migrated.
var ErrNoVersion = errors.New("database has no schema version (needs migration)")

//go:embed files/sqlite/*.sql files/postgres/*.sql
var migrationFiles embed.FS

// CheckDBMigrationStatus verifies that the database schema is up-to-date.
// Returns nil if the database is at the latest version.
// Returns an error describing any version mismatch or migration issues.
func CheckDBMigrationStatus(db *sql.DB, dialect string) error {
	version, dirty, err := Version(db, dialect)
	if err != nil {
		return err
	}

	if dirty {
		return fmt.Errorf("database is in dirty state at version %d (migration failed previously)", version)
	}

	latestVersion, err := LatestVersion(dialect)
	if err != nil {
		return err
	}

	if version < latestVersion {
		return fmt.Errorf("database is at version %d but latest is %d (%d migrations behind)",
			version, latestVersion, latestVersion-version)
	}

	if version > latestVersion {
		return fmt.Errorf("database version %d is ahead of binary version %d (binary needs update)",
			version, latestVersion)
	}

	return nil
}

// Version returns the current schema version of the database.
func Version(db *sql.DB, dialect string) (uint, bool, error) {
	m, err := newMigrate(db, dialect)
	if err != nil {
		return 0, false, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	// Not closing m: it would close the db, which the caller owns.

	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, ErrNoVersion
		}
		return 0, false, fmt.Errorf("failed to get database version: %w", err)
	}
	return version, dirty, nil
}

// LatestVersion returns the highest migration version embedded for the dialect.
func LatestVersion(dialect string) (uint, error) {
	sourceDriver, err := newSource(dialect)
	if err != nil {
		return 0, err
	}
	defer sourceDriver.Close()

	latestVersion, err := getLatestVersion(sourceDriver)
	if err != nil {
		return 0, fmt.Errorf("failed to determine latest version: %w", err)
	}
	return latestVersion, nil
}

// UpScript returns the dialect's up migrations concatenated in version order,
// each preceded by a comment naming its version.
func UpScript(dialect string) (string, error) {
	sourceDriver, err := newSource(dialect)
	if err != nil {
		return "", err
	}
	defer sourceDriver.Close()

	version, err := sourceDriver.First()
	if err != nil {
		return "", fmt.Errorf("reading first migration: %w", err)
	}

	var b strings.Builder
	for {
		r, identifier, err := sourceDriver.ReadUp(version)
		if err != nil {
			return "", fmt.Errorf("reading migration %d: %w", version, err)
		}
		body, err := io.ReadAll(r)
		r.Close()
		if err != nil {
			return "", fmt.Errorf("reading migration %d: %w", version, err)
		}
		fmt.Fprintf(&b, "-- %06d_%s\n\n%s\n", version, identifier, strings.TrimSpace(string(body)))

		next, err := sourceDriver.Next(version)
		if errors.Is(err, iofs.ErrNotExist) {
			return b.String(), nil
		}
		if err != nil {
			return "", fmt.Errorf("reading migration after %d: %w", version, err)
		}
		version = next
		b.WriteString("\n")
	}
}

// MigrateUp runs all pending migrations to bring database to latest version.
func MigrateUp(db *sql.DB, dialect string) error {
	m, err := newMigrate(db, dialect)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}

func newSource(dialect string) (source.Driver, error) {
	switch dialect {
	case SQLite, Postgres:
	default:
		return nil, fmt.Errorf("unknown migration dialect: %s", dialect)
	}
	sourceDriver, err := migrateiofs.New(migrationFiles, "files/"+dialect)
	if err != nil {
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}
	return sourceDriver, nil
}

// newMigrate creates a new migrate instance for the given database.
func newMigrate(db *sql.DB, dialect string) (*migrate.Migrate, error) {
	sourceDriver, err := newSource(dialect)
	if err != nil {
		return nil, err
	}

	var (
		dbDriver   database.Driver
		driverName string
	)
	switch dialect {
	case SQLite:
		driverName = "sqlite3"
		dbDriver, err = sqlite3.WithInstance(db, &sqlite3.Config{})
	case Postgres:
		driverName = "pgx5"
		dbDriver, err = pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	}
	if err != nil {
		sourceDriver.Close()
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, driverName, dbDriver)
	if err != nil {
		sourceDriver.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	return m, nil
}

// getLatestVersion returns the highest version number available in the source.
func getLatestVersion(src source.Driver) (uint, error) {
	version, err := src.First()
	if err != nil {
		return 0, err
	}

	latestVersion := version
	for {
		nextVersion, err := src.Next(latestVersion)
		if err != nil {
			// Next fails once there are no more migrations.
			break
		}
		latestVersion = nextVersion
	}

	return latestVersion, nil
}
