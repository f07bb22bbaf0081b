package migrations

import (
	"database/sql"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestMigrateUp_FreshDatabase(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db, SQLite); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	tables := []string{"quotas", "files", "backups", "schema_migrations"}
	for _, table := range tables {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s was not created: %v", table, err)
		}
	}
}

func TestCheckDBMigrationStatus_FreshDatabase(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	err := CheckDBMigrationStatus(db, SQLite)
	if err == nil {
		t.Fatal("CheckDBMigrationStatus() expected error for fresh database, got nil")
	}

	if err.Error() != "database has no schema version (needs migration)" {
		t.Errorf("CheckDBMigrationStatus() error = %q, want error about needing migration", err.Error())
	}
}

func TestCheckDBMigrationStatus_AfterMigration(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db, SQLite); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	if err := CheckDBMigrationStatus(db, SQLite); err != nil {
		t.Errorf("CheckDBMigrationStatus() after migration returned error: %v", err)
	}
}

func TestMigrateUp_Idempotent(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db, SQLite); err != nil {
		t.Fatalf("First MigrateUp() failed: %v", err)
	}

	if err := MigrateUp(db, SQLite); err != nil {
		t.Errorf("Second MigrateUp() failed: %v (should be idempotent)", err)
	}

	if err := CheckDBMigrationStatus(db, SQLite); err != nil {
		t.Errorf("CheckDBMigrationStatus() after double migration returned error: %v", err)
	}
}

func TestMigrateUp_UnknownDialect(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db, "oracle"); err == nil {
		t.Error("MigrateUp() expected error for unknown dialect, got nil")
	}
}

func TestLatestVersion(t *testing.T) {
	for _, dialect := range []string{SQLite, Postgres} {
		v, err := LatestVersion(dialect)
		if err != nil {
			t.Fatalf("LatestVersion(%s) error = %v", dialect, err)
		}
		if v != 1 {
			t.Errorf("LatestVersion(%s) = %d, want 1", dialect, v)
		}
	}
}

func TestSchema_QuotaAccountUnique(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db, SQLite); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	_, err := db.Exec(`INSERT INTO quotas (account_id, ref_id, quota_bytes, used_bytes, created_at, updated_at)
		VALUES ('acct-1', 'ref-1', 1024, 0, datetime('now'), datetime('now'))`)
	if err != nil {
		t.Fatalf("Failed to insert first quota: %v", err)
	}

	_, err = db.Exec(`INSERT INTO quotas (account_id, ref_id, quota_bytes, used_bytes, created_at, updated_at)
		VALUES ('acct-1', 'ref-2', 2048, 0, datetime('now'), datetime('now'))`)
	if err == nil {
		t.Error("Expected unique constraint violation for duplicate account_id, but insert succeeded")
	}
}

func TestSchema_FileStateCheck(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db, SQLite); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	_, err := db.Exec(`INSERT INTO files (account_id, ref_id, file_path, file_size, state, uploaded_at)
		VALUES ('acct-1', 'ref-1', 'a.txt', 10, 'archived', datetime('now'))`)
	if err == nil {
		t.Error("Expected check constraint violation for unknown state, but insert succeeded")
	}
}

// openTestDB opens an in-memory SQLite database for testing.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	return db
}

func TestUpScript(t *testing.T) {
	for _, dialect := range []string{SQLite, Postgres} {
		script, err := UpScript(dialect)
		if err != nil {
			t.Fatalf("UpScript(%s) error = %v", dialect, err)
		}
		if !strings.HasPrefix(script, "-- 000001_init\n") {
			t.Errorf("UpScript(%s) header = %q", dialect, strings.SplitN(script, "\n", 2)[0])
		}
		for _, table := range []string{"quotas", "files", "backups"} {
			if !strings.Contains(script, "CREATE TABLE "+table) {
				t.Errorf("UpScript(%s) missing table %s", dialect, table)
			}
		}
	}

	if _, err := UpScript("mysql"); err == nil {
		t.Error("UpScript(mysql) expected error")
	}
}

func TestUpScript_AppliesToSQLite(t *testing.T) {
	script, err := UpScript(SQLite)
	if err != nil {
		t.Fatal(err)
	}
	db := openTestDB(t)
	defer db.Close()

	if _, err := db.Exec(script); err != nil {
		t.Fatalf("executing UpScript(sqlite): %v", err)
	}
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM quotas").Scan(&n); err != nil {
		t.Errorf("quotas table not usable: %v", err)
	}
}
