package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// CategorySpend aggregates the monthly-equivalent spend of one category.
type CategorySpend struct {
	Category Category        `json:"category"`
	Total    decimal.Decimal `json:"total"`
	Count    int             `json:"count"`
}

// Summary aggregates spending over the active subscriptions.
type Summary struct {
	TotalSubscriptions  int             `json:"total_subscriptions"`
	ActiveSubscriptions int             `json:"active_subscriptions"`
	MonthlyTotal        decimal.Decimal `json:"monthly_total"`
	AnnualTotal         decimal.Decimal `json:"annual_total"`
	ProjectedAnnual     decimal.Decimal `json:"projected_annual"`
	MonthlyEquivalent   decimal.Decimal `json:"monthly_equivalent"`
	ByCategory          []CategorySpend `json:"by_category"`
	RenewalsNext30Days  int             `json:"renewals_next_30_days"`
	RenewalsAmount      decimal.Decimal `json:"renewals_amount"`
	ExpiringWithin7Days int             `json:"expiring_within_7_days"`
}

// TopCategory returns the category with the highest spend, if any.
func (s Summary) TopCategory() (CategorySpend, bool) {
	if len(s.ByCategory) == 0 {
		return CategorySpend{}, false
	}
	return s.ByCategory[0], true
}

// Summarize computes spending figures. Inactive subscriptions only count
// towards TotalSubscriptions.
func Summarize(subs []*Subscription, now time.Time) Summary {
	sum := Summary{
		TotalSubscriptions: len(subs),
		MonthlyTotal:       decimal.Zero,
		AnnualTotal:        decimal.Zero,
		RenewalsAmount:     decimal.Zero,
		ByCategory:         []CategorySpend{},
	}

	byCategory := make(map[Category]*CategorySpend)
	for _, sub := range subs {
		if !sub.IsActive {
			continue
		}
		sum.ActiveSubscriptions++

		if sub.BillingPeriod == BillingAnnual {
			sum.AnnualTotal = sum.AnnualTotal.Add(sub.Price)
		} else {
			sum.MonthlyTotal = sum.MonthlyTotal.Add(sub.Price)
		}

		cs, ok := byCategory[sub.Category]
		if !ok {
			cs = &CategorySpend{Category: sub.Category, Total: decimal.Zero}
			byCategory[sub.Category] = cs
		}
		cs.Total = cs.Total.Add(sub.MonthlyEquivalent())
		cs.Count++

		days := sub.DaysUntilRenewal(now)
		if days >= 0 && days <= 30 {
			sum.RenewalsNext30Days++
			sum.RenewalsAmount = sum.RenewalsAmount.Add(sub.Price)
		}
		if days >= 0 && days <= 7 {
			sum.ExpiringWithin7Days++
		}
	}

	sum.ProjectedAnnual = sum.MonthlyTotal.Mul(decimal.NewFromInt(12)).Add(sum.AnnualTotal)
	sum.MonthlyEquivalent = sum.MonthlyTotal.Add(sum.AnnualTotal.Div(decimal.NewFromInt(12))).Round(2)

	for _, cs := range byCategory {
		sum.ByCategory = append(sum.ByCategory, *cs)
	}
	sort.Slice(sum.ByCategory, func(i, j int) bool {
		if c := sum.ByCategory[i].Total.Cmp(sum.ByCategory[j].Total); c != 0 {
			return c > 0
		}
		return sum.ByCategory[i].Category < sum.ByCategory[j].Category
	})

	return sum
}

// BackupVersion is written into every backup document.
const BackupVersion = "1.0"

// Backup is the document sent to the chat as a file and offered for download.
type Backup struct {
	Timestamp            time.Time       `json:"timestamp"`
	Version              string          `json:"version"`
	Subscriptions        []*Subscription `json:"subscriptions"`
	TotalSubscriptions   int             `json:"totalSubscriptions"`
	ActiveSubscriptions  int             `json:"activeSubscriptions"`
	TotalMonthlySpending decimal.Decimal `json:"totalMonthlySpending"`
	TotalAnnualSpending  decimal.Decimal `json:"totalAnnualSpending"`
}

// NewBackup builds a backup document for subs taken at now.
func NewBackup(subs []*Subscription, now time.Time) Backup {
	sum := Summarize(subs, now)
	if subs == nil {
		subs = []*Subscription{}
	}
	return Backup{
		Timestamp:            now,
		Version:              BackupVersion,
		Subscriptions:        subs,
		TotalSubscriptions:   sum.TotalSubscriptions,
		ActiveSubscriptions:  sum.ActiveSubscriptions,
		TotalMonthlySpending: sum.MonthlyTotal,
		TotalAnnualSpending:  sum.AnnualTotal,
	}
}
