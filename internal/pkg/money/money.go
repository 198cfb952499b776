// Package money formats amounts for chat replies, alerts and reports.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// symbolOverrides keeps the symbols users type in the app where x/text
// narrow symbols differ.
var symbolOverrides = map[string]string{
	"BRL": "R$",
	"USD": "US$",
	"EUR": "€",
	"GBP": "£",
}

var defaultLocaleForCurrency = map[string]language.Tag{
	"BRL": language.BrazilianPortuguese,
	"USD": language.AmericanEnglish,
	"EUR": language.German,
	"GBP": language.BritishEnglish,
}

// Currency formats amounts for one ISO currency.
type Currency struct {
	Code    string
	unit    currency.Unit
	printer *message.Printer
}

// New returns the Currency for an ISO code. Unknown codes fall back to BRL
// number formatting and use the code itself as symbol.
func New(code string) Currency {
	code = strings.ToUpper(strings.TrimSpace(code))

	unit, err := currency.ParseISO(code)
	if err != nil {
		unit = currency.BRL
		if code == "" {
			code = "BRL"
		}
	}

	tag, ok := defaultLocaleForCurrency[code]
	if !ok {
		tag = language.English
	}

	return Currency{
		Code:    code,
		unit:    unit,
		printer: message.NewPrinter(tag),
	}
}

// Symbol returns the display symbol, e.g. "R$".
func (c Currency) Symbol() string {
	if sym, ok := symbolOverrides[c.Code]; ok {
		return sym
	}
	if c.unit.String() != c.Code {
		return c.Code
	}
	return c.printer.Sprint(currency.NarrowSymbol(c.unit))
}

// Number formats amount with two fraction digits in the currency's locale.
func (c Currency) Number(amount decimal.Decimal) string {
	return c.printer.Sprint(number.Decimal(amount.InexactFloat64(),
		number.MinFractionDigits(2),
		number.MaxFractionDigits(2),
	))
}

// Format formats amount with the currency's own symbol, e.g. "R$ 1.299,90".
func (c Currency) Format(amount decimal.Decimal) string {
	return c.FormatWithSymbol(amount, c.Symbol())
}

// FormatWithSymbol formats amount using symbol instead of the currency's
// own, for subscriptions recorded in another currency.
func (c Currency) FormatWithSymbol(amount decimal.Decimal, symbol string) string {
	if symbol == "" {
		symbol = c.Symbol()
	}
	return symbol + " " + c.Number(amount)
}
