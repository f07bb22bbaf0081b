package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"vault-go/internal/database/migrations"
	"vault-go/internal/model"
	"vault-go/internal/vault"
)

// dialect captures the few statements that differ between SQLite and Postgres.
// Queries are written with ? placeholders and rebound per driver.
type dialect struct {
	name string // migrations dialect

	// lockSuffix is appended to a SELECT to lock the returned rows.
	// SQLite has no row locks; its transactions start with BEGIN IMMEDIATE instead.
	lockSuffix string

	dayExpr   string
	monthExpr string
}

var (
	sqliteDialect = dialect{
		name:      migrations.SQLite,
		dayExpr:   "substr(uploaded_at, 1, 10)",
		monthExpr: "substr(uploaded_at, 1, 7)",
	}
	postgresDialect = dialect{
		name:       migrations.Postgres,
		lockSuffix: " FOR UPDATE",
		dayExpr:    "to_char(uploaded_at AT TIME ZONE 'UTC', 'YYYY-MM-DD')",
		monthExpr:  "to_char(uploaded_at AT TIME ZONE 'UTC', 'YYYY-MM')",
	}
)

const (
	quotaColumns  = "id, account_id, ref_id, quota_bytes, used_bytes, created_at, updated_at"
	fileColumns   = "id, account_id, ref_id, file_path, file_size, file_hash, state, uploaded_at, deleted_at"
	backupColumns = "id, account_id, ref_id, backup_path, backup_size, created_at, expires_at"

	usagePercentExpr = "(used_bytes * 100.0 / NULLIF(quota_bytes, 0))"
)

// queries runs statements against either the pool or an open transaction.
type queries struct {
	ext     sqlx.ExtContext
	dialect dialect
}

func (q *queries) get(dest any, query string, args ...any) error {
	return sqlx.GetContext(context.Background(), q.ext, dest, q.ext.Rebind(query), args...)
}

func (q *queries) selectAll(dest any, query string, args ...any) error {
	return sqlx.SelectContext(context.Background(), q.ext, dest, q.ext.Rebind(query), args...)
}

func (q *queries) exec(query string, args ...any) (sql.Result, error) {
	return q.ext.ExecContext(context.Background(), q.ext.Rebind(query), args...)
}

// Quota operations

func (q *queries) FindQuota(accountID string) (*model.QuotaRecord, error) {
	return q.findQuota(accountID, "")
}

func (q *queries) findQuota(accountID, suffix string) (*model.QuotaRecord, error) {
	var rec model.QuotaRecord
	err := q.get(&rec, "SELECT "+quotaColumns+" FROM quotas WHERE account_id = ?"+suffix, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding quota: %w", err)
	}
	return &rec, nil
}

func (q *queries) UpsertQuota(rec *model.QuotaRecord) (*model.QuotaRecord, error) {
	_, err := q.exec(`
		INSERT INTO quotas (account_id, ref_id, quota_bytes, used_bytes, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?)
		ON CONFLICT (account_id) DO UPDATE SET
			ref_id = excluded.ref_id,
			quota_bytes = excluded.quota_bytes,
			updated_at = excluded.updated_at`,
		rec.AccountID, rec.RefID, rec.QuotaBytes, rec.CreatedAt.UTC(), rec.UpdatedAt.UTC())
	if err != nil {
		return nil, fmt.Errorf("upserting quota: %w", err)
	}

	saved, err := q.FindQuota(rec.AccountID)
	if err != nil {
		return nil, err
	}
	if saved == nil {
		return nil, fmt.Errorf("quota for %s missing after upsert", rec.AccountID)
	}
	return saved, nil
}

func (q *queries) SetUsedBytes(accountID string, used int64, at time.Time) (bool, error) {
	res, err := q.exec("UPDATE quotas SET used_bytes = ?, updated_at = ? WHERE account_id = ?",
		used, at.UTC(), accountID)
	if err != nil {
		return false, fmt.Errorf("setting used bytes: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading affected rows: %w", err)
	}
	return n > 0, nil
}

// File operations

func (q *queries) InsertFile(f *model.FileRecord) (*model.FileRecord, error) {
	var id int64
	err := q.get(&id, `
		INSERT INTO files (account_id, ref_id, file_path, file_size, file_hash, state, uploaded_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		f.AccountID, f.RefID, f.Path, f.Size, f.Hash, string(f.State), f.UploadedAt.UTC(), utcNullTime(f.DeletedAt))
	if err != nil {
		return nil, fmt.Errorf("inserting file: %w", err)
	}
	saved := *f
	saved.ID = id
	return &saved, nil
}

func (q *queries) FindLatestActiveFile(accountID, path string) (*model.FileRecord, error) {
	var rec model.FileRecord
	err := q.get(&rec, "SELECT "+fileColumns+` FROM files
		WHERE account_id = ? AND file_path = ? AND state = ?
		ORDER BY uploaded_at DESC, id DESC
		LIMIT 1`,
		accountID, path, string(model.FileActive))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding active file: %w", err)
	}
	return &rec, nil
}

func (q *queries) MarkFileDeleted(id int64, at time.Time) error {
	_, err := q.exec("UPDATE files SET state = ?, deleted_at = ? WHERE id = ? AND state = ?",
		string(model.FileDeleted), at.UTC(), id, string(model.FileActive))
	if err != nil {
		return fmt.Errorf("marking file deleted: %w", err)
	}
	return nil
}

func (q *queries) ListFiles(accountID string, includeDeleted bool) ([]*model.FileRecord, error) {
	query := "SELECT " + fileColumns + " FROM files WHERE account_id = ?"
	args := []any{accountID}
	if !includeDeleted {
		query += " AND state = ?"
		args = append(args, string(model.FileActive))
	}
	query += " ORDER BY uploaded_at DESC, id DESC"

	var files []*model.FileRecord
	if err := q.selectAll(&files, query, args...); err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	return files, nil
}

func (q *queries) FindActiveFilesByHash(hash string) ([]*model.FileRecord, error) {
	var files []*model.FileRecord
	err := q.selectAll(&files, "SELECT "+fileColumns+` FROM files
		WHERE file_hash = ? AND state = ?
		ORDER BY uploaded_at, id`,
		hash, string(model.FileActive))
	if err != nil {
		return nil, fmt.Errorf("finding files by hash: %w", err)
	}
	return files, nil
}

func (q *queries) CountActiveFiles(accountID string) (int64, error) {
	var n int64
	err := q.get(&n, "SELECT COUNT(*) FROM files WHERE account_id = ? AND state = ?",
		accountID, string(model.FileActive))
	if err != nil {
		return 0, fmt.Errorf("counting files: %w", err)
	}
	return n, nil
}

func (q *queries) PurgeDeletedFiles(cutoff time.Time) (int64, error) {
	res, err := q.exec("DELETE FROM files WHERE state = ? AND deleted_at IS NOT NULL AND deleted_at < ?",
		string(model.FileDeleted), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("purging files: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading affected rows: %w", err)
	}
	return n, nil
}

// Backup operations

func (q *queries) InsertBackup(b *model.BackupRecord) (*model.BackupRecord, error) {
	var id int64
	err := q.get(&id, `
		INSERT INTO backups (account_id, ref_id, backup_path, backup_size, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`,
		b.AccountID, b.RefID, b.Path, b.Size, b.CreatedAt.UTC(), utcNullTime(b.ExpiresAt))
	if err != nil {
		return nil, fmt.Errorf("inserting backup: %w", err)
	}
	saved := *b
	saved.ID = id
	return &saved, nil
}

func (q *queries) FindBackup(id int64) (*model.BackupRecord, error) {
	var rec model.BackupRecord
	if err := q.get(&rec, "SELECT "+backupColumns+" FROM backups WHERE id = ?", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding backup: %w", err)
	}
	return &rec, nil
}

func (q *queries) ListBackups(accountID string) ([]*model.BackupRecord, error) {
	var backups []*model.BackupRecord
	err := q.selectAll(&backups, "SELECT "+backupColumns+` FROM backups
		WHERE account_id = ?
		ORDER BY created_at DESC, id DESC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("listing backups: %w", err)
	}
	return backups, nil
}

func (q *queries) DeleteBackup(id int64) error {
	if _, err := q.exec("DELETE FROM backups WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting backup: %w", err)
	}
	return nil
}

func (q *queries) FindBackupsForCleanup(createdBefore, now time.Time) ([]*model.BackupRecord, error) {
	query := "SELECT " + backupColumns + " FROM backups WHERE (expires_at IS NOT NULL AND expires_at < ?)"
	args := []any{now.UTC()}
	if !createdBefore.IsZero() {
		query += " OR created_at < ?"
		args = append(args, createdBefore.UTC())
	}
	query += " ORDER BY created_at, id"

	var backups []*model.BackupRecord
	if err := q.selectAll(&backups, query, args...); err != nil {
		return nil, fmt.Errorf("finding backups for cleanup: %w", err)
	}
	return backups, nil
}

// Analytics

func (q *queries) PlatformStats() (*model.PlatformStats, error) {
	var stats model.PlatformStats
	err := q.get(&stats, `
		SELECT
			COUNT(*) AS total_accounts,
			CAST(COALESCE(SUM(quota_bytes), 0) AS BIGINT) AS total_quota,
			CAST(COALESCE(SUM(used_bytes), 0) AS BIGINT) AS total_used,
			CAST(COALESCE(AVG(CASE WHEN quota_bytes > 0 THEN `+usagePercentExpr+` ELSE 0 END), 0) AS DOUBLE PRECISION) AS avg_usage_percent
		FROM quotas`)
	if err != nil {
		return nil, fmt.Errorf("reading platform stats: %w", err)
	}
	return &stats, nil
}

func (q *queries) TopAccounts(limit int) ([]*model.QuotaRecord, error) {
	var accounts []*model.QuotaRecord
	err := q.selectAll(&accounts, "SELECT "+quotaColumns+` FROM quotas
		ORDER BY used_bytes DESC, account_id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("reading top accounts: %w", err)
	}
	return accounts, nil
}

func (q *queries) UsageDistribution() ([]*model.UsageTier, error) {
	var tiers []*model.UsageTier
	err := q.selectAll(&tiers, `
		SELECT tier, COUNT(*) AS count FROM (
			SELECT CASE
				WHEN quota_bytes = 0 THEN 'Error'
				WHEN `+usagePercentExpr+` < 25 THEN '0-25%'
				WHEN `+usagePercentExpr+` < 50 THEN '25-50%'
				WHEN `+usagePercentExpr+` < 75 THEN '50-75%'
				WHEN `+usagePercentExpr+` < 90 THEN '75-90%'
				ELSE '90-100%+'
			END AS tier
			FROM quotas
		) tiers
		GROUP BY tier`)
	if err != nil {
		return nil, fmt.Errorf("reading usage distribution: %w", err)
	}
	return tiers, nil
}

func (q *queries) UploadTrends(from, to time.Time, monthly bool) ([]*model.UploadTrend, error) {
	period := q.dialect.dayExpr
	if monthly {
		period = q.dialect.monthExpr
	}

	var trends []*model.UploadTrend
	err := q.selectAll(&trends, `
		SELECT period, CAST(SUM(file_size) AS BIGINT) AS total_bytes, COUNT(*) AS file_count FROM (
			SELECT `+period+` AS period, file_size
			FROM files
			WHERE uploaded_at >= ? AND uploaded_at <= ? AND state = ?
		) uploads
		GROUP BY period
		ORDER BY period`,
		from.UTC(), to.UTC(), string(model.FileActive))
	if err != nil {
		return nil, fmt.Errorf("reading upload trends: %w", err)
	}
	return trends, nil
}

func (q *queries) AccountsAboveUsage(thresholdPercent float64) ([]*model.QuotaRecord, error) {
	var accounts []*model.QuotaRecord
	err := q.selectAll(&accounts, "SELECT "+quotaColumns+` FROM quotas
		WHERE quota_bytes > 0 AND `+usagePercentExpr+` >= ?
		ORDER BY `+usagePercentExpr+` DESC, account_id`, thresholdPercent)
	if err != nil {
		return nil, fmt.Errorf("reading accounts above usage: %w", err)
	}
	return accounts, nil
}

func utcNullTime(t sql.NullTime) sql.NullTime {
	if !t.Valid {
		return t
	}
	return sql.NullTime{Time: t.Time.UTC(), Valid: true}
}

// SQLDatabase implements vault.Database over a sqlx pool.
type SQLDatabase struct {
	*queries
	db *sqlx.DB
}

func newSQLDatabase(db *sqlx.DB, d dialect) *SQLDatabase {
	return &SQLDatabase{
		queries: &queries{ext: db, dialect: d},
		db:      db,
	}
}

// Transact runs fn in a transaction that commits only if fn returns nil.
func (s *SQLDatabase) Transact(fn func(tx vault.Tx) error) error {
	tx, err := s.db.BeginTxx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqlTx{queries: &queries{ext: tx, dialect: s.dialect}}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Migrate applies all pending schema migrations.
func (s *SQLDatabase) Migrate() error {
	return migrations.MigrateUp(s.db.DB, s.dialect.name)
}

// CheckMigrations verifies the schema is at the latest version.
func (s *SQLDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db.DB, s.dialect.name)
}

// SchemaVersion returns the applied and the latest known schema version.
// An unmigrated database reports version 0.
func (s *SQLDatabase) SchemaVersion() (current, latest uint, err error) {
	latest, err = migrations.LatestVersion(s.dialect.name)
	if err != nil {
		return 0, 0, err
	}
	current, _, err = migrations.Version(s.db.DB, s.dialect.name)
	if errors.Is(err, migrations.ErrNoVersion) {
		return 0, latest, nil
	}
	if err != nil {
		return 0, latest, err
	}
	return current, latest, nil
}

// Dialect returns "sqlite" or "postgres".
func (s *SQLDatabase) Dialect() string {
	return s.dialect.name
}

func (s *SQLDatabase) Close() error {
	return s.db.Close()
}

type sqlTx struct {
	*queries
}

func (t *sqlTx) LockQuota(accountID string) (*model.QuotaRecord, error) {
	return t.findQuota(accountID, t.dialect.lockSuffix)
}

// Compile-time checks
var (
	_ vault.Database = (*SQLDatabase)(nil)
	_ vault.Tx       = (*sqlTx)(nil)
)
