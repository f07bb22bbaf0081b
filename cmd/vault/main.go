package main

import (
	"fmt"
	"log/slog"
	"os"

	"vault-go/internal/app"
	"vault-go/internal/config"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// A missing .env is normal; VAULT_* variables may come from the environment.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("loading .env", "error", err)
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file named by the application defaults.
func loadConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates a VaultApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "backup create").
func newApp(operation string) (*app.VaultApp, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewVaultApp(cfg, operation, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// run wraps a command body so failures are recorded against the operation.
func run(operation string, fn func(a *app.VaultApp, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(operation)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := fn(a, cmd, args); err != nil {
			a.Fail(err)
			return err
		}
		return nil
	}
}

var rootCmd = &cobra.Command{
	Use:          "vault",
	Short:        "Per-account storage quotas and backups",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", cfg.BaseDir)
		fmt.Println("Run \"vault db migrate\" to create the database schema.")
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		v := cfg.Vault
		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:          %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:           %s\n", cfg.LogDir)
		fmt.Printf("Database:          %s\n", cfg.Database.Type)
		fmt.Printf("Storage Path:      %s\n", v.StoragePath)
		fmt.Printf("Backup Path:       %s\n", v.BackupPath)
		fmt.Printf("Default Quota:     %d MB\n", v.DefaultQuotaMB)
		fmt.Printf("Max Quota:         %d MB\n", v.MaxQuotaMB)
		fmt.Printf("Backup Retention:  %d days\n", v.BackupRetentionDays)
		fmt.Printf("File Tracking:     %t\n", v.EnableFileTracking)
		fmt.Printf("Compression:       %t\n", v.EnableCompression)
		fmt.Printf("Archive Format:    %s\n", v.ArchiveFormat)
		fmt.Printf("Max File Size:     %d MB\n", v.MaxFileSizeMB)
		fmt.Printf("Allowed Ext:       %v\n", v.AllowedExtensions)
		fmt.Printf("Server Addr:       %s\n", cfg.Server.Addr)
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the database schema",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		from, to, err := app.MigrateDatabase(cfg.Database)
		if err != nil {
			return err
		}
		if from == to {
			fmt.Printf("Schema already at version %d\n", to)
			return nil
		}
		fmt.Printf("Migrated schema from version %d to %d\n", from, to)
		return nil
	},
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		current, latest, err := app.DatabaseStatus(cfg.Database)
		if err != nil {
			return err
		}
		state := "up to date"
		if current < latest {
			state = fmt.Sprintf("%d migration(s) pending", latest-current)
		}
		fmt.Printf("%s: version %d of %d (%s)\n", cfg.Database.Type, current, latest, state)
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// db subcommands
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbStatusCmd)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
}
