package vault

import (
	"fmt"
	"math"
	"time"

	"vault-go/internal/model"
)

// Usage distribution tiers, in display order.
var UsageTiers = []string{"Error", "0-25%", "25-50%", "50-75%", "75-90%", "90-100%+"}

// Overview is the platform-wide storage summary.
type Overview struct {
	TotalAccounts   int64   `json:"total_accounts"`
	TotalQuota      int64   `json:"total_quota_bytes"`
	TotalUsed       int64   `json:"total_used_bytes"`
	AvgUsagePercent float64 `json:"avg_usage_percent"`
	FreeSpace       int64   `json:"free_space_bytes"`
}

// TrendInterval groups upload trends by calendar period.
type TrendInterval string

const (
	TrendDaily   TrendInterval = "day"
	TrendMonthly TrendInterval = "month"
)

// Analytics runs read-only reports over the ledgers.
type Analytics struct {
	database Database
}

func NewAnalytics(database Database) *Analytics {
	return &Analytics{database: database}
}

func (a *Analytics) PlatformOverview() (*Overview, error) {
	s, err := a.database.PlatformStats()
	if err != nil {
		return nil, fmt.Errorf("reading platform stats: %w", err)
	}
	return &Overview{
		TotalAccounts:   s.TotalAccounts,
		TotalQuota:      s.TotalQuota,
		TotalUsed:       s.TotalUsed,
		AvgUsagePercent: math.Round(s.AvgUsagePercent*100) / 100,
		FreeSpace:       s.TotalQuota - s.TotalUsed,
	}, nil
}

// TopAccounts returns up to limit quota records with the highest usage.
func (a *Analytics) TopAccounts(limit int) ([]*model.QuotaRecord, error) {
	if limit <= 0 {
		return nil, &InvalidArgumentError{Field: "limit", Reason: "must be greater than zero"}
	}
	accounts, err := a.database.TopAccounts(limit)
	if err != nil {
		return nil, fmt.Errorf("reading top accounts: %w", err)
	}
	return accounts, nil
}

// UsageDistribution counts accounts per usage tier. Every tier is present in
// the result, including empty ones.
func (a *Analytics) UsageDistribution() (map[string]int64, error) {
	tiers, err := a.database.UsageDistribution()
	if err != nil {
		return nil, fmt.Errorf("reading usage distribution: %w", err)
	}
	dist := make(map[string]int64, len(UsageTiers))
	for _, t := range UsageTiers {
		dist[t] = 0
	}
	for _, t := range tiers {
		dist[t.Tier] = t.Count
	}
	return dist, nil
}

// UploadTrends sums active uploads between from and to, inclusive, per period.
func (a *Analytics) UploadTrends(from, to time.Time, interval TrendInterval) ([]*model.UploadTrend, error) {
	if interval != TrendDaily && interval != TrendMonthly {
		return nil, &InvalidArgumentError{Field: "interval", Reason: fmt.Sprintf("unknown interval %q", interval)}
	}
	if to.Before(from) {
		return nil, &InvalidArgumentError{Field: "range", Reason: "end is before start"}
	}
	trends, err := a.database.UploadTrends(from.UTC(), to.UTC(), interval == TrendMonthly)
	if err != nil {
		return nil, fmt.Errorf("reading upload trends: %w", err)
	}
	return trends, nil
}

// AtRiskAccounts returns accounts whose usage percentage is at least
// thresholdPercent, highest first.
func (a *Analytics) AtRiskAccounts(thresholdPercent float64) ([]*model.QuotaRecord, error) {
	accounts, err := a.database.AccountsAboveUsage(thresholdPercent)
	if err != nil {
		return nil, fmt.Errorf("reading at-risk accounts: %w", err)
	}
	return accounts, nil
}
