package main

import (
	"fmt"
	"time"

	"vault-go/internal/app"
	"vault-go/internal/model"
	"vault-go/internal/vault"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Platform-wide storage analytics",
}

var statsOverviewCmd = &cobra.Command{
	Use:   "overview",
	Short: "Show totals across all accounts",
	RunE: run("stats overview", func(a *app.VaultApp, cmd *cobra.Command, args []string) error {
		o, err := a.Analytics().PlatformOverview()
		if err != nil {
			return err
		}
		fmt.Printf("Accounts:       %s\n", humanize.Comma(o.TotalAccounts))
		fmt.Printf("Total Quota:    %s\n", humanize.IBytes(uint64(max(0, o.TotalQuota))))
		fmt.Printf("Total Used:     %s\n", formatBytes(o.TotalUsed))
		fmt.Printf("Free Space:     %s\n", formatBytes(o.FreeSpace))
		fmt.Printf("Average Usage:  %.2f%%\n", o.AvgUsagePercent)
		return nil
	}),
}

var statsTopCmd = &cobra.Command{
	Use:   "top",
	Short: "List the accounts using the most storage",
	RunE: run("stats top", func(a *app.VaultApp, cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		accounts, err := a.Analytics().TopAccounts(limit)
		if err != nil {
			return err
		}
		printAccounts(accounts)
		return nil
	}),
}

var statsDistributionCmd = &cobra.Command{
	Use:   "distribution",
	Short: "Count accounts per usage tier",
	RunE: run("stats distribution", func(a *app.VaultApp, cmd *cobra.Command, args []string) error {
		dist, err := a.Analytics().UsageDistribution()
		if err != nil {
			return err
		}
		for _, tier := range vault.UsageTiers {
			fmt.Printf("%-9s  %d\n", tier, dist[tier])
		}
		return nil
	}),
}

var statsTrendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "Sum uploads per day or month",
	RunE: run("stats trends", func(a *app.VaultApp, cmd *cobra.Command, args []string) error {
		interval, _ := cmd.Flags().GetString("interval")
		fromFlag, _ := cmd.Flags().GetString("from")
		toFlag, _ := cmd.Flags().GetString("to")

		to := time.Now().UTC()
		if toFlag != "" {
			t, err := time.Parse(time.DateOnly, toFlag)
			if err != nil {
				return fmt.Errorf("parsing --to: %w", err)
			}
			to = t.Add(24*time.Hour - time.Nanosecond)
		}
		from := to.AddDate(0, 0, -30)
		if fromFlag != "" {
			f, err := time.Parse(time.DateOnly, fromFlag)
			if err != nil {
				return fmt.Errorf("parsing --from: %w", err)
			}
			from = f
		}

		trends, err := a.Analytics().UploadTrends(from, to, vault.TrendInterval(interval))
		if err != nil {
			return err
		}
		if len(trends) == 0 {
			fmt.Println("No uploads in range.")
			return nil
		}
		for _, t := range trends {
			fmt.Printf("%-10s  %10s  %d file(s)\n", t.Period, humanize.IBytes(uint64(t.TotalBytes)), t.FileCount)
		}
		return nil
	}),
}

var statsAtRiskCmd = &cobra.Command{
	Use:   "at-risk",
	Short: "List accounts at or above --threshold percent usage",
	RunE: run("stats at-risk", func(a *app.VaultApp, cmd *cobra.Command, args []string) error {
		threshold, _ := cmd.Flags().GetFloat64("threshold")

		accounts, err := a.Analytics().AtRiskAccounts(threshold)
		if err != nil {
			return err
		}
		printAccounts(accounts)
		return nil
	}),
}

func printAccounts(accounts []*model.QuotaRecord) {
	if len(accounts) == 0 {
		fmt.Println("No accounts.")
		return
	}
	for _, q := range accounts {
		pct := 0.0
		if q.QuotaBytes > 0 {
			pct = float64(q.UsedBytes) / float64(q.QuotaBytes) * 100
		}
		fmt.Printf("%-24s  %10s / %-10s  %6.2f%%\n",
			q.AccountID, formatBytes(q.UsedBytes), humanize.IBytes(uint64(q.QuotaBytes)), pct)
	}
}

func init() {
	statsCmd.AddCommand(statsOverviewCmd)
	statsCmd.AddCommand(statsTopCmd)
	statsTopCmd.Flags().IntP("limit", "n", 10, "Maximum number of accounts to show")
	statsCmd.AddCommand(statsDistributionCmd)
	statsCmd.AddCommand(statsTrendsCmd)
	statsTrendsCmd.Flags().String("interval", string(vault.TrendDaily), "Grouping: day or month")
	statsTrendsCmd.Flags().String("from", "", "First day, YYYY-MM-DD (default: 30 days before --to)")
	statsTrendsCmd.Flags().String("to", "", "Last day, YYYY-MM-DD (default: today)")
	statsCmd.AddCommand(statsAtRiskCmd)
	statsAtRiskCmd.Flags().Float64("threshold", 90, "Usage percentage")

	rootCmd.AddCommand(statsCmd)
}
