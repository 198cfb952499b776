package subscriptions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/subtrack/subtrack/internal/domain"
	"github.com/xuri/excelize/v2"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatXLSX = "xlsx"
)

// ExportFile is a rendered export ready for download.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Export renders all of the user's subscriptions in format.
func (s *Service) Export(ctx context.Context, userID, format string) (*ExportFile, error) {
	subs, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	now := s.localNow()
	sortSubscriptions(subs, SortByRenewalDate, false)

	switch strings.ToLower(format) {
	case "", FormatJSON:
		data, err := json.MarshalIndent(domain.NewBackup(subs, now), "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode export: %w", err)
		}
		return &ExportFile{
			Filename:    exportName(now, FormatJSON),
			ContentType: "application/json",
			Data:        data,
		}, nil
	case FormatXLSX:
		data, err := writeWorkbook(subs, domain.Summarize(subs, now))
		if err != nil {
			return nil, err
		}
		return &ExportFile{
			Filename:    exportName(now, FormatXLSX),
			ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			Data:        data,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func exportName(now time.Time, ext string) string {
	return "subtrack-export-" + domain.DateKey(now) + "." + ext
}

const (
	sheetSubscriptions = "Subscriptions"
	sheetSummary       = "Summary"
)

var workbookHeader = []any{"Name", "Price", "Currency", "Billing", "Renewal date", "Category", "Active", "Description"}

func writeWorkbook(subs []*domain.Subscription, sum domain.Summary) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), sheetSubscriptions); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create style: %w", err)
	}

	if err := f.SetSheetRow(sheetSubscriptions, "A1", &workbookHeader); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	if err := f.SetRowStyle(sheetSubscriptions, 1, 1, bold); err != nil {
		return nil, fmt.Errorf("style header: %w", err)
	}

	for i, sub := range subs {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("cell name: %w", err)
		}
		row := []any{
			sub.Name,
			sub.Price.InexactFloat64(),
			sub.Currency,
			sub.BillingPeriod.Label(),
			sub.RenewalDate.Format(time.DateOnly),
			sub.Category.Label(),
			sub.IsActive,
			sub.Description,
		}
		if err := f.SetSheetRow(sheetSubscriptions, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if _, err := f.NewSheet(sheetSummary); err != nil {
		return nil, fmt.Errorf("create summary sheet: %w", err)
	}
	summary := [][]any{
		{"Total subscriptions", sum.TotalSubscriptions},
		{"Active subscriptions", sum.ActiveSubscriptions},
		{"Monthly total", sum.MonthlyTotal.InexactFloat64()},
		{"Annual total", sum.AnnualTotal.InexactFloat64()},
		{"Projected annual", sum.ProjectedAnnual.InexactFloat64()},
		{"Monthly equivalent", sum.MonthlyEquivalent.InexactFloat64()},
	}
	for i, row := range summary {
		if err := f.SetSheetRow(sheetSummary, fmt.Sprintf("A%d", i+1), &row); err != nil {
			return nil, fmt.Errorf("write summary: %w", err)
		}
	}
	if err := f.SetColStyle(sheetSummary, "A", bold); err != nil {
		return nil, fmt.Errorf("style summary: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// ImportResult reports what an import did.
type ImportResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// importItem accepts both the exported field names and the camelCase names
// of older browser backups.
type importItem struct {
	ID                 string           `json:"id"`
	Name               string           `json:"name"`
	Price              *decimal.Decimal `json:"price"`
	Currency           string           `json:"currency"`
	RenewalDate        string           `json:"renewal_date"`
	RenewalDateCamel   string           `json:"renewalDate"`
	Category           string           `json:"category"`
	Description        string           `json:"description"`
	IsActive           *bool            `json:"is_active"`
	IsActiveCamel      *bool            `json:"isActive"`
	BillingPeriod      string           `json:"billing_period"`
	BillingPeriodCamel string           `json:"billingPeriod"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// toDomain converts an item, returning false when a required field is
// missing or malformed. A missing billing period means monthly.
func (it importItem) toDomain(loc *time.Location) (*domain.Subscription, bool) {
	if it.ID == "" || strings.TrimSpace(it.Name) == "" || it.Price == nil || it.Category == "" {
		return nil, false
	}

	raw := firstNonEmpty(it.RenewalDate, it.RenewalDateCamel)
	if raw == "" {
		return nil, false
	}
	if len(raw) > len(time.DateOnly) {
		raw = raw[:len(time.DateOnly)]
	}
	date, err := domain.ParseDate(raw, loc)
	if err != nil {
		return nil, false
	}

	category, err := domain.ParseCategory(it.Category)
	if err != nil {
		category = domain.CategoryOther
	}

	period := domain.BillingMonthly
	if p := firstNonEmpty(it.BillingPeriod, it.BillingPeriodCamel); p != "" {
		if period, err = domain.ParseBillingPeriod(p); err != nil {
			return nil, false
		}
	}

	active := true
	if it.IsActive != nil {
		active = *it.IsActive
	} else if it.IsActiveCamel != nil {
		active = *it.IsActiveCamel
	}

	return &domain.Subscription{
		ID:            it.ID,
		Name:          it.Name,
		Price:         *it.Price,
		Currency:      it.Currency,
		RenewalDate:   date,
		Category:      category,
		Description:   it.Description,
		IsActive:      active,
		BillingPeriod: period,
	}, true
}

// Import loads subscriptions from a JSON array or a backup document.
// Items whose id matches one of the user's subscriptions update it; the
// rest are created with a new id. Items missing id, name, price, renewal
// date or category are skipped.
func (s *Service) Import(ctx context.Context, userID string, data []byte) (ImportResult, error) {
	items, err := decodeImport(data)
	if err != nil {
		return ImportResult{}, err
	}

	var (
		res   ImportResult
		valid []*domain.Subscription
	)
	for _, it := range items {
		sub, ok := it.toDomain(s.loc)
		if !ok {
			res.Skipped++
			continue
		}
		valid = append(valid, sub)
	}
	if len(valid) == 0 {
		return res, ErrNothingToImport
	}

	for _, sub := range valid {
		_, err := s.Get(ctx, userID, sub.ID)
		switch {
		case err == nil:
			if _, err := s.Update(ctx, userID, sub); err != nil {
				if !isValidationError(err) {
					return res, err
				}
				res.Skipped++
				continue
			}
			res.Updated++
		case errors.Is(err, ErrSubscriptionNotFound):
			if _, err := s.Create(ctx, userID, sub); err != nil {
				if !isValidationError(err) {
					return res, err
				}
				res.Skipped++
				continue
			}
			res.Created++
		default:
			return res, err
		}
	}

	slog.Info("subscriptions imported",
		"user_id", userID,
		"created", res.Created,
		"updated", res.Updated,
		"skipped", res.Skipped,
	)
	return res, nil
}

func decodeImport(data []byte) ([]importItem, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, ErrInvalidImport
	}

	var items []importItem
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidImport, err)
		}
	case '{':
		var backup struct {
			Subscriptions []importItem `json:"subscriptions"`
		}
		if err := json.Unmarshal(trimmed, &backup); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidImport, err)
		}
		items = backup.Subscriptions
	default:
		return nil, ErrInvalidImport
	}
	return items, nil
}

var validationErrors = []error{
	domain.ErrNameRequired,
	domain.ErrNameTooLong,
	domain.ErrPriceNotPositive,
	domain.ErrInvalidCategory,
	domain.ErrInvalidBillingPeriod,
	domain.ErrRenewalDateRequired,
}

func isValidationError(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
