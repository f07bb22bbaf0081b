package main

import (
	"fmt"

	"vault-go/internal/app"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// files command
var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Inspect tracked files",
}

var filesListCmd = &cobra.Command{
	Use:   "list ACCOUNT",
	Short: "List an account's file records, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: run("files list", func(a *app.VaultApp, cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")

		files, err := a.Tracker().Files(args[0], all)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			fmt.Println("No files tracked.")
			return nil
		}

		for _, f := range files {
			hash := "-"
			if f.Hash.Valid && len(f.Hash.String) >= 12 {
				hash = f.Hash.String[:12]
			}
			fmt.Printf("%-7s  %s  %10s  %s  %s\n",
				f.State,
				f.UploadedAt.Format("2006-01-02 15:04:05"),
				humanize.IBytes(uint64(f.Size)),
				hash,
				f.Path,
			)
		}
		return nil
	}),
}

var filesHashCmd = &cobra.Command{
	Use:   "hash PATH",
	Short: "Print the SHA-256 of a file",
	Args:  cobra.ExactArgs(1),
	RunE: run("files hash", func(a *app.VaultApp, cmd *cobra.Command, args []string) error {
		sum, err := a.HashFile(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s  %s\n", sum, args[0])
		return nil
	}),
}

var filesDuplicatesCmd = &cobra.Command{
	Use:   "duplicates HASH",
	Short: "List active files of any account with the given hash",
	Args:  cobra.ExactArgs(1),
	RunE: run("files duplicates", func(a *app.VaultApp, cmd *cobra.Command, args []string) error {
		files, err := a.Manager().FindDuplicates(args[0])
		if err != nil {
			return err
		}
		if len(files) == 0 {
			fmt.Println("No files with that hash.")
			return nil
		}
		for _, f := range files {
			fmt.Printf("%s  %s  %s\n", f.AccountID, humanize.IBytes(uint64(f.Size)), f.Path)
		}
		return nil
	}),
}

var filesPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove deleted file records older than --days",
	RunE: run("files purge", func(a *app.VaultApp, cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")

		n, err := a.Tracker().PurgeDeleted(days)
		if err != nil {
			return err
		}
		fmt.Printf("Purged %d deleted record(s)\n", n)
		return nil
	}),
}

func init() {
	filesCmd.AddCommand(filesListCmd)
	filesListCmd.Flags().BoolP("all", "a", false, "Include deleted records")
	filesCmd.AddCommand(filesHashCmd)
	filesCmd.AddCommand(filesDuplicatesCmd)
	filesCmd.AddCommand(filesPurgeCmd)
	filesPurgeCmd.Flags().IntP("days", "d", 30, "Minimum age of deleted records in days")

	rootCmd.AddCommand(filesCmd)
}
