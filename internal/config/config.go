package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for vault.
type Config struct {
	BaseDir  string         `toml:"base_dir"`
	LogDir   string         `toml:"log_dir"`
	Vault    VaultConfig    `toml:"vault"`
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
}

// VaultConfig holds the quota and backup policy.
// Relative storage and backup paths are resolved against BaseDir.
type VaultConfig struct {
	DefaultQuotaMB      int64    `toml:"default_quota_mb"`
	MaxQuotaMB          int64    `toml:"max_quota_mb"`
	StoragePath         string   `toml:"storage_path"`
	BackupPath          string   `toml:"backup_path"`
	BackupRetentionDays int      `toml:"backup_retention_days"` // <= 0: never expire
	EnableFileTracking  bool     `toml:"enable_file_tracking"`
	EnableCompression   bool     `toml:"enable_compression"`
	ArchiveFormat       string   `toml:"archive_format"` // "zip" (default) or "tar.zst"
	MaxFileSizeMB       int64    `toml:"max_file_size_mb"`
	AllowedExtensions   []string `toml:"allowed_extensions"` // ["*"] allows everything
}

// DatabaseConfig represents configuration for the ledger database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite", "memory" or "postgres"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
	DSN     string `toml:"dsn,omitempty"`      // only used for type=postgres
}

// ServerConfig configures the HTTP server started by "vault serve".
type ServerConfig struct {
	Addr          string `toml:"addr"`
	AccountHeader string `toml:"account_header"`
}

// NewConfig creates a new Config rooted at baseDir with default policy values.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Vault: VaultConfig{
			DefaultQuotaMB:      1024,
			MaxQuotaMB:          102400,
			StoragePath:         "storage/vault",
			BackupPath:          "storage/vault-backups",
			BackupRetentionDays: 30,
			EnableFileTracking:  true,
			EnableCompression:   true,
			ArchiveFormat:       "zip",
			MaxFileSizeMB:       100,
			AllowedExtensions:   []string{"*"},
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Server: ServerConfig{
			Addr:          "127.0.0.1:8080",
			AccountHeader: "X-Account-ID",
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
