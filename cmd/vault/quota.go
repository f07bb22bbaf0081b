package main

import (
	"fmt"
	"strconv"

	"vault-go/internal/app"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// quota command
var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Manage account quotas",
}

var quotaAllocateCmd = &cobra.Command{
	Use:   "allocate ACCOUNT [MB]",
	Short: "Set an account's quota (default quota when MB is omitted)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: run("quota allocate", func(a *app.VaultApp, cmd *cobra.Command, args []string) error {
		accountID := args[0]
		mb := a.Manager().Settings().DefaultQuotaMB
		if len(args) == 2 {
			n, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("parsing quota %q: %w", args[1], err)
			}
			mb = n
		}

		q, err := a.Manager().Allocate(accountID, mb)
		if err != nil {
			return err
		}
		fmt.Printf("Allocated %s to %s (used %s)\n",
			humanize.IBytes(uint64(q.QuotaBytes)), accountID, formatBytes(q.UsedBytes))
		return nil
	}),
}

var quotaUsageCmd = &cobra.Command{
	Use:   "usage ACCOUNT",
	Short: "Show an account's usage",
	Args:  cobra.ExactArgs(1),
	RunE: run("quota usage", func(a *app.VaultApp, cmd *cobra.Command, args []string) error {
		u, err := a.Manager().GetUsage(args[0])
		if err != nil {
			return err
		}
		count, err := a.Tracker().FileCount(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Account:    %s\n", args[0])
		fmt.Printf("Used:       %s (%s bytes)\n", formatBytes(u.Used), humanize.Comma(u.Used))
		fmt.Printf("Quota:      %s\n", humanize.IBytes(uint64(u.Quota)))
		fmt.Printf("Remaining:  %s\n", humanize.IBytes(uint64(u.Remaining)))
		fmt.Printf("Usage:      %.2f%%\n", u.Percentage)
		fmt.Printf("Files:      %d\n", count)
		return nil
	}),
}

var quotaRecalcCmd = &cobra.Command{
	Use:   "recalc ACCOUNT",
	Short: "Recompute usage from the storage directory",
	Args:  cobra.ExactArgs(1),
	RunE: run("quota recalc", func(a *app.VaultApp, cmd *cobra.Command, args []string) error {
		total, err := a.Manager().RecalculateUsage(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Usage of %s recalculated: %s\n", args[0], formatBytes(total))
		return nil
	}),
}

// formatBytes renders a usage figure, which may be negative after drift.
func formatBytes(n int64) string {
	if n < 0 {
		return "-" + humanize.IBytes(uint64(-n))
	}
	return humanize.IBytes(uint64(n))
}

func init() {
	quotaCmd.AddCommand(quotaAllocateCmd)
	quotaCmd.AddCommand(quotaUsageCmd)
	quotaCmd.AddCommand(quotaRecalcCmd)

	rootCmd.AddCommand(quotaCmd)
}
