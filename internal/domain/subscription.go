// Package domain contains the core types shared across subtrack packages.
package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Prices travel as JSON numbers so exported files stay compatible with
	// spreadsheets and older backups.
	decimal.MarshalJSONWithoutQuotes = true
}

// Category groups subscriptions for reporting.
type Category string

// Subscription categories.
const (
	CategoryStreaming    Category = "streaming"
	CategorySoftware     Category = "software"
	CategoryMusic        Category = "music"
	CategoryGames        Category = "games"
	CategoryProductivity Category = "productivity"
	CategoryEducation    Category = "education"
	CategoryHealth       Category = "health"
	CategoryOther        Category = "other"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryStreaming,
	CategorySoftware,
	CategoryMusic,
	CategoryGames,
	CategoryProductivity,
	CategoryEducation,
	CategoryHealth,
	CategoryOther,
}

// IsValid checks if the category is known.
func (c Category) IsValid() bool {
	switch c {
	case CategoryStreaming, CategorySoftware, CategoryMusic, CategoryGames,
		CategoryProductivity, CategoryEducation, CategoryHealth, CategoryOther:
		return true
	}
	return false
}

// Label returns the human readable category name.
func (c Category) Label() string {
	if !c.IsValid() {
		return "Other"
	}
	s := string(c)
	return strings.ToUpper(s[:1]) + s[1:]
}

// BillingPeriod defines how often a subscription is charged.
type BillingPeriod string

// Billing periods.
const (
	BillingMonthly BillingPeriod = "monthly"
	BillingAnnual  BillingPeriod = "annual"
)

// IsValid checks if the billing period is known.
func (p BillingPeriod) IsValid() bool {
	return p == BillingMonthly || p == BillingAnnual
}

// CountdownDays returns the length of one cycle used to draw the renewal countdown.
func (p BillingPeriod) CountdownDays() int {
	if p == BillingAnnual {
		return 365
	}
	return 30
}

// Advance moves t forward by one billing cycle. Month ends are clamped,
// so Jan 31 advances to the last day of February.
func (p BillingPeriod) Advance(t time.Time) time.Time {
	if p == BillingAnnual {
		return addMonths(t, 12)
	}
	return addMonths(t, 1)
}

// Label returns the human readable period name.
func (p BillingPeriod) Label() string {
	if p == BillingAnnual {
		return "annual"
	}
	return "monthly"
}

func addMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// Validation errors.
var (
	ErrNameRequired         = errors.New("name is required")
	ErrNameTooLong          = errors.New("name must be at most 255 characters")
	ErrPriceNotPositive     = errors.New("price must be greater than zero")
	ErrInvalidCategory      = errors.New("invalid category")
	ErrInvalidBillingPeriod = errors.New("invalid billing period")
	ErrRenewalDateRequired  = errors.New("renewal date is required")
)

// Subscription is a recurring charge tracked for a user.
type Subscription struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id,omitempty"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	Currency      string          `json:"currency"`
	RenewalDate   time.Time       `json:"renewal_date"`
	Category      Category        `json:"category"`
	Description   string          `json:"description"`
	IsActive      bool            `json:"is_active"`
	BillingPeriod BillingPeriod   `json:"billing_period"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Validate checks the invariants every stored subscription must hold.
func (s *Subscription) Validate() error {
	name := strings.TrimSpace(s.Name)
	if name == "" {
		return ErrNameRequired
	}
	if len(name) > 255 {
		return ErrNameTooLong
	}
	if !s.Price.IsPositive() {
		return ErrPriceNotPositive
	}
	if !s.Category.IsValid() {
		return ErrInvalidCategory
	}
	if !s.BillingPeriod.IsValid() {
		return ErrInvalidBillingPeriod
	}
	if s.RenewalDate.IsZero() {
		return ErrRenewalDateRequired
	}
	return nil
}

// DaysUntilRenewal returns the number of calendar days between now and the
// renewal date. The renewal date is treated as a calendar date, so a charge
// due later today is 0 and one due tomorrow is 1 regardless of clock time.
// Negative values mean the date has passed.
func (s *Subscription) DaysUntilRenewal(now time.Time) int {
	return DaysBetween(now, s.RenewalDate)
}

// Countdown is the position of today within the current billing cycle.
type Countdown struct {
	TotalDays     int `json:"total_days"`
	RemainingDays int `json:"remaining_days"`
}

// RenewalCountdown returns the days left until renewal out of one cycle.
// Remaining days are clamped to [0, TotalDays]; an overdue renewal shows 0.
func (s *Subscription) RenewalCountdown(now time.Time) Countdown {
	total := s.BillingPeriod.CountdownDays()
	return Countdown{
		TotalDays:     total,
		RemainingDays: max(0, min(s.DaysUntilRenewal(now), total)),
	}
}

// MonthlyEquivalent returns what the subscription costs per month.
func (s *Subscription) MonthlyEquivalent() decimal.Decimal {
	if s.BillingPeriod == BillingAnnual {
		return s.Price.Div(decimal.NewFromInt(12)).Round(2)
	}
	return s.Price
}

// FormattedPrice returns currency and price with two decimals, e.g. "R$ 29.90".
func (s *Subscription) FormattedPrice() string {
	if s.Currency == "" {
		return s.Price.StringFixed(2)
	}
	return s.Currency + " " + s.Price.StringFixed(2)
}

// DaysBetween counts calendar days from the date of from to the date of to.
// Each value keeps its own location, so a date-only value stored at UTC
// midnight is not shifted into the previous day.
func DaysBetween(from, to time.Time) int {
	y1, m1, d1 := from.Date()
	y2, m2, d2 := to.Date()
	a := time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC)
	b := time.Date(y2, m2, d2, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// DateKey formats t as an ISO calendar date.
func DateKey(t time.Time) string {
	return t.Format(time.DateOnly)
}
