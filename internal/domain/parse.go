package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Parse errors.
var (
	ErrInvalidPrice = errors.New("invalid price")
	ErrInvalidDate  = errors.New("invalid date")
)

const maxPriceDecimals = 2

var currencyTokens = []string{"US$", "R$", "BRL", "USD", "EUR", "GBP", "$", "€", "£"}

// ParsePrice parses a user supplied amount. Both '.' and ',' are accepted as
// decimal separator; when both appear the last one wins and the other is
// treated as a thousands separator. Currency symbols are ignored. Amounts
// with more than two fraction digits are rejected rather than rounded.
func ParsePrice(input string) (decimal.Decimal, error) {
	s := strings.TrimSpace(input)
	for _, tok := range currencyTokens {
		s = strings.ReplaceAll(s, tok, "")
	}
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return decimal.Zero, ErrInvalidPrice
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	case strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	}

	if i := strings.IndexByte(s, '.'); i >= 0 && len(s)-i-1 > maxPriceDecimals {
		return decimal.Zero, ErrInvalidPrice
	}

	price, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidPrice
	}
	if !price.IsPositive() {
		return decimal.Zero, ErrPriceNotPositive
	}
	return price, nil
}

var dateLayouts = []string{"02/01/2006", "2/1/2006", time.DateOnly}

// ParseDate parses DD/MM/YYYY or YYYY-MM-DD in loc. Impossible calendar
// dates such as 31/02 are rejected.
func ParseDate(input string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	s := strings.TrimSpace(input)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrInvalidDate
}

// ParseBillingPeriod accepts menu numbers (1 monthly, 2 annual) and the
// English or Portuguese period names.
func ParseBillingPeriod(input string) (BillingPeriod, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "1", "monthly", "month", "mensal", "mes", "mês":
		return BillingMonthly, nil
	case "2", "annual", "annually", "yearly", "year", "anual", "ano":
		return BillingAnnual, nil
	}
	return "", ErrInvalidBillingPeriod
}

var categoryAliases = map[string]Category{
	"streaming":     CategoryStreaming,
	"software":      CategorySoftware,
	"music":         CategoryMusic,
	"música":        CategoryMusic,
	"musica":        CategoryMusic,
	"games":         CategoryGames,
	"game":          CategoryGames,
	"jogos":         CategoryGames,
	"productivity":  CategoryProductivity,
	"produtividade": CategoryProductivity,
	"education":     CategoryEducation,
	"educação":      CategoryEducation,
	"educacao":      CategoryEducation,
	"health":        CategoryHealth,
	"saúde":         CategoryHealth,
	"saude":         CategoryHealth,
	"other":         CategoryOther,
	"others":        CategoryOther,
	"outros":        CategoryOther,
	"outro":         CategoryOther,
}

// ParseCategory resolves an English or Portuguese category name.
func ParseCategory(input string) (Category, error) {
	if c, ok := categoryAliases[strings.ToLower(strings.TrimSpace(input))]; ok {
		return c, nil
	}
	return "", ErrInvalidCategory
}
