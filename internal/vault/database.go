package vault

import (
	"time"

	"vault-go/internal/model"
)

// QuotaStore persists quota records. Lookups return (nil, nil) when no record exists.
type QuotaStore interface {
	// FindQuota returns the quota record for an account without locking it.
	FindQuota(accountID string) (*model.QuotaRecord, error)

	// UpsertQuota inserts the record, or replaces ref id, capacity and updated_at
	// of the existing record for the same account. Used bytes are never touched.
	UpsertQuota(q *model.QuotaRecord) (*model.QuotaRecord, error)

	// SetUsedBytes overwrites the used bytes of an account.
	// Returns false if the account has no quota record.
	SetUsedBytes(accountID string, used int64, at time.Time) (bool, error)
}

// FileStore persists file tracking records.
type FileStore interface {
	InsertFile(f *model.FileRecord) (*model.FileRecord, error)

	// FindLatestActiveFile returns the newest active record at path, or nil.
	FindLatestActiveFile(accountID, path string) (*model.FileRecord, error)

	// MarkFileDeleted moves an active record to the deleted state.
	MarkFileDeleted(id int64, at time.Time) error

	// ListFiles returns the account's records, newest upload first.
	ListFiles(accountID string, includeDeleted bool) ([]*model.FileRecord, error)

	// FindActiveFilesByHash returns active records of every account sharing hash.
	FindActiveFilesByHash(hash string) ([]*model.FileRecord, error)

	CountActiveFiles(accountID string) (int64, error)

	// PurgeDeletedFiles removes deleted records whose deletion time is before cutoff.
	PurgeDeletedFiles(cutoff time.Time) (int64, error)
}

// BackupStore persists the backup inventory.
type BackupStore interface {
	InsertBackup(b *model.BackupRecord) (*model.BackupRecord, error)
	FindBackup(id int64) (*model.BackupRecord, error)

	// ListBackups returns the account's backups, newest first.
	ListBackups(accountID string) ([]*model.BackupRecord, error)

	DeleteBackup(id int64) error

	// FindBackupsForCleanup returns every backup created before createdBefore OR whose
	// expiry lies before now. A zero createdBefore disables the age criterion.
	FindBackupsForCleanup(createdBefore, now time.Time) ([]*model.BackupRecord, error)
}

// AnalyticsStore runs read-only aggregates over the ledgers.
type AnalyticsStore interface {
	PlatformStats() (*model.PlatformStats, error)
	TopAccounts(limit int) ([]*model.QuotaRecord, error)
	UsageDistribution() ([]*model.UsageTier, error)
	UploadTrends(from, to time.Time, monthly bool) ([]*model.UploadTrend, error)
	AccountsAboveUsage(thresholdPercent float64) ([]*model.QuotaRecord, error)
}

// Tx is the view of the database inside a transaction.
type Tx interface {
	QuotaStore
	FileStore

	// LockQuota reads the account's quota record and holds an exclusive lock on it
	// until the transaction commits or rolls back. Returns (nil, nil) if absent.
	LockQuota(accountID string) (*model.QuotaRecord, error)
}

// Database provides the persisted ledgers.
type Database interface {
	QuotaStore
	FileStore
	BackupStore
	AnalyticsStore

	// Transact runs fn inside a single transaction. The transaction commits if fn
	// returns nil and rolls back otherwise; fn's error is returned unchanged.
	Transact(fn func(tx Tx) error) error

	// CheckMigrations verifies the schema is up to date.
	CheckMigrations() error

	Close() error
}
