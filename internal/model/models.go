package model

import (
	"database/sql"
	"time"
)

// QuotaRecord is the persisted storage quota of a single account.
// There is at most one record per AccountID.
type QuotaRecord struct {
	ID         int64     `db:"id"`
	AccountID  string    `db:"account_id"`
	RefID      string    `db:"ref_id"` // regenerated on every allocation
	QuotaBytes int64     `db:"quota_bytes"`
	UsedBytes  int64     `db:"used_bytes"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// FileState is the lifecycle tag of a FileRecord.
// Records only move forward: active -> deleted -> purged (row removed).
type FileState string

const (
	FileActive  FileState = "active"
	FileDeleted FileState = "deleted"
)

// FileRecord tracks a single upload into an account's storage tree.
type FileRecord struct {
	ID         int64          `db:"id"`
	AccountID  string         `db:"account_id"`
	RefID      string         `db:"ref_id"`
	Path       string         `db:"file_path"` // relative to the account's storage root
	Size       int64          `db:"file_size"`
	Hash       sql.NullString `db:"file_hash"` // hex SHA-256, optional
	State      FileState      `db:"state"`
	UploadedAt time.Time      `db:"uploaded_at"`
	DeletedAt  sql.NullTime   `db:"deleted_at"`
}

// Active reports whether the record has not been soft-deleted.
func (f *FileRecord) Active() bool {
	return f.State == FileActive
}

// BackupRecord is the inventory entry for one committed archive.
type BackupRecord struct {
	ID        int64        `db:"id"`
	AccountID string       `db:"account_id"`
	RefID     string       `db:"ref_id"`
	Path      string       `db:"backup_path"` // file name relative to the backup root
	Size      int64        `db:"backup_size"`
	CreatedAt time.Time    `db:"created_at"`
	ExpiresAt sql.NullTime `db:"expires_at"` // NULL = never expires
}

// Expired reports whether the backup has an expiry that lies before now.
func (b *BackupRecord) Expired(now time.Time) bool {
	return b.ExpiresAt.Valid && b.ExpiresAt.Time.Before(now)
}

// PlatformStats is the platform-wide aggregate over all quota records.
type PlatformStats struct {
	TotalAccounts   int64   `db:"total_accounts"`
	TotalQuota      int64   `db:"total_quota"`
	TotalUsed       int64   `db:"total_used"`
	AvgUsagePercent float64 `db:"avg_usage_percent"`
}

// UsageTier is the number of accounts falling into one usage bucket.
type UsageTier struct {
	Tier  string `db:"tier"`
	Count int64  `db:"count"`
}

// UploadTrend aggregates active uploads within one period.
type UploadTrend struct {
	Period     string `db:"period"`
	TotalBytes int64  `db:"total_bytes"`
	FileCount  int64  `db:"file_count"`
}
