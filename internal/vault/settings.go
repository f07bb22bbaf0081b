package vault

// BytesPerMB converts quota megabytes to bytes.
const BytesPerMB int64 = 1024 * 1024

// Settings is the read-only policy the core runs with.
type Settings struct {
	DefaultQuotaMB      int64
	MaxQuotaMB          int64  // <= 0 disables the upper bound
	StoragePath         string // relative to the PathResolver base
	BackupPath          string // relative to the PathResolver base
	BackupRetentionDays int    // <= 0 means backups never expire
	FileTracking        bool
	Compression         bool
}

// DefaultSettings mirrors the stock configuration file.
func DefaultSettings() Settings {
	return Settings{
		DefaultQuotaMB:      1024,
		MaxQuotaMB:          102400,
		StoragePath:         "storage/vault",
		BackupPath:          "storage/vault-backups",
		BackupRetentionDays: 30,
		FileTracking:        true,
		Compression:         true,
	}
}
