package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"vault-go/internal/app"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage account backups",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create ACCOUNT",
	Short: "Archive an account's storage directory",
	Args:  cobra.ExactArgs(1),
	RunE: run("backup create", func(a *app.VaultApp, cmd *cobra.Command, args []string) error {
		archivePath, err := a.Backups().Create(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Backup created: %s\n", archivePath)
		return nil
	}),
}

var backupListCmd = &cobra.Command{
	Use:   "list ACCOUNT",
	Short: "List an account's backups, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: run("backup list", func(a *app.VaultApp, cmd *cobra.Command, args []string) error {
		backups, err := a.Backups().List(args[0])
		if err != nil {
			return err
		}
		if len(backups) == 0 {
			fmt.Println("No backups.")
			return nil
		}

		for _, b := range backups {
			expires := "never"
			if b.ExpiresAt.Valid {
				expires = humanize.Time(b.ExpiresAt.Time)
			}
			fmt.Printf("#%-5d  %s  %10s  expires %-16s  %s\n",
				b.ID,
				b.CreatedAt.Format("2006-01-02 15:04:05"),
				humanize.IBytes(uint64(b.Size)),
				expires,
				b.Path,
			)
		}
		return nil
	}),
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore (ID | ACCOUNT ARCHIVE)",
	Short: "Restore a backup into the account's storage directory",
	Long: "Restore a recorded backup by id, or extract ARCHIVE into ACCOUNT's storage.\n" +
		"Existing files with the same path are overwritten; usage is recalculated afterwards.",
	Args: cobra.RangeArgs(1, 2),
	RunE: run("backup restore", func(a *app.VaultApp, cmd *cobra.Command, args []string) error {
		if len(args) == 2 {
			if err := a.Backups().Restore(args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("Restored %s into %s\n", args[1], args[0])
			return nil
		}

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("parsing backup id %q: %w", args[0], err)
		}
		if err := a.Backups().RestoreByID(id); err != nil {
			return err
		}
		fmt.Printf("Restored backup #%d\n", id)
		return nil
	}),
}

var backupDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a backup archive and its record",
	Args:  cobra.ExactArgs(1),
	RunE: run("backup delete", func(a *app.VaultApp, cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("parsing backup id %q: %w", args[0], err)
		}

		found, err := a.Backups().Delete(id)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("no backup with id %d", id)
		}
		fmt.Printf("Deleted backup #%d\n", id)
		return nil
	}),
}

var backupCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete expired backups and backups older than --days",
	RunE: run("backup cleanup", func(a *app.VaultApp, cmd *cobra.Command, args []string) error {
		var n int
		var err error
		if cmd.Flags().Changed("days") {
			days, _ := cmd.Flags().GetInt("days")
			n, err = a.Backups().Cleanup(days)
		} else {
			n, err = a.Backups().CleanupExpired()
		}
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d backup(s)\n", n)
		return nil
	}),
}

// wipe command
var wipeCmd = &cobra.Command{
	Use:   "wipe ACCOUNT",
	Short: "Remove every file in an account's storage directory",
	Args:  cobra.ExactArgs(1),
	RunE: run("wipe", func(a *app.VaultApp, cmd *cobra.Command, args []string) error {
		backupFirst, _ := cmd.Flags().GetBool("backup")
		force, _ := cmd.Flags().GetBool("force")
		accountID := args[0]

		if !force {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				return fmt.Errorf("refusing to wipe %s without --force: stdin is not a terminal", accountID)
			}
			fmt.Printf("This deletes every file stored for %s. Type the account id to confirm: ", accountID)
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil {
				return fmt.Errorf("reading confirmation: %w", err)
			}
			if strings.TrimSpace(line) != accountID {
				return fmt.Errorf("confirmation did not match, nothing wiped")
			}
		}

		archivePath, err := a.Wipe(accountID, backupFirst)
		if archivePath != "" {
			fmt.Printf("Backup created: %s\n", archivePath)
		}
		if err != nil {
			return err
		}
		fmt.Printf("Storage of %s wiped\n", accountID)
		return nil
	}),
}

func init() {
	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	backupCmd.AddCommand(backupDeleteCmd)
	backupCmd.AddCommand(backupCleanupCmd)
	backupCleanupCmd.Flags().IntP("days", "d", 0, "Also delete backups created more than this many days ago; 0 deletes all backups (default: retention setting)")

	wipeCmd.Flags().Bool("backup", false, "Archive the storage directory before wiping")
	wipeCmd.Flags().BoolP("force", "f", false, "Skip the confirmation prompt")

	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(wipeCmd)
}
