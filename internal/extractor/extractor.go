// Package extractor turns a free-form chat message into a candidate
// subscription using a text-generation model.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/subtrack/subtrack/internal/domain"
)

// DefaultTimeout bounds one extraction round trip.
const DefaultTimeout = 30 * time.Second

// LLM completes a single prompt.
type LLM interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config contains extractor settings.
type Config struct {
	Enabled bool          `koanf:"enabled"`
	BaseURL string        `koanf:"base_url"`
	Model   string        `koanf:"model"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`
}

// Extractor implements chat.Extractor.
type Extractor struct {
	llm      LLM
	timeout  time.Duration
	loc      *time.Location
	currency string
	now      func() time.Time
}

// New creates an extractor. currency is the symbol used when the message
// does not name one.
func New(llm LLM, timeout time.Duration, loc *time.Location, currency string) *Extractor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Extractor{
		llm:      llm,
		timeout:  timeout,
		loc:      loc,
		currency: currency,
		now:      time.Now,
	}
}

// reply is the object the model is asked to produce. Price may come back
// as a number or a string.
type reply struct {
	Name          string          `json:"name"`
	Price         json.RawMessage `json:"price"`
	Currency      string          `json:"currency"`
	RenewalDate   string          `json:"renewalDate"`
	Category      string          `json:"category"`
	Description   string          `json:"description"`
	BillingPeriod string          `json:"billingPeriod"`
}

// Extract asks the model for a subscription described in text. It returns
// nil, nil when the reply holds no usable object or lacks a name or a valid
// price. Errors are reserved for model failures.
func (e *Extractor) Extract(ctx context.Context, text string) (*domain.Subscription, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	today := e.now().In(e.loc)
	start := time.Now()
	raw, err := e.llm.Complete(ctx, buildPrompt(text, today))
	extractionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		recordExtraction(outcomeError)
		return nil, fmt.Errorf("complete prompt: %w", err)
	}

	r, ok := decodeReply(raw)
	if !ok {
		recordExtraction(outcomeInsufficient)
		slog.Debug("model reply holds no subscription object", "reply", raw)
		return nil, nil
	}

	sub, ok := e.candidate(r, today)
	if !ok {
		recordExtraction(outcomeInsufficient)
		slog.Debug("extraction lacks name or price", "reply", raw)
		return nil, nil
	}

	recordExtraction(outcomeCandidate)
	return sub, nil
}

func (e *Extractor) candidate(r *reply, today time.Time) (*domain.Subscription, bool) {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return nil, false
	}

	price, err := domain.ParsePrice(priceText(r.Price))
	if err != nil {
		return nil, false
	}

	period, err := domain.ParseBillingPeriod(r.BillingPeriod)
	if err != nil {
		period = domain.BillingMonthly
	}

	date, err := domain.ParseDate(r.RenewalDate, e.loc)
	if err != nil {
		midnight := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, e.loc)
		date = period.Advance(midnight)
	}

	category, err := domain.ParseCategory(r.Category)
	if err != nil {
		category = domain.CategoryOther
	}

	sub := &domain.Subscription{
		Name:          name,
		Price:         price,
		Currency:      e.currencySymbol(r.Currency),
		RenewalDate:   date,
		Category:      category,
		Description:   strings.TrimSpace(r.Description),
		IsActive:      true,
		BillingPeriod: period,
	}
	if err := sub.Validate(); err != nil {
		return nil, false
	}
	return sub, true
}

var currencySymbols = map[string]string{
	"BRL": "R$", "R$": "R$",
	"USD": "US$", "US$": "US$", "$": "US$",
	"EUR": "€", "€": "€",
	"GBP": "£", "£": "£",
}

func (e *Extractor) currencySymbol(s string) string {
	if sym, ok := currencySymbols[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return sym
	}
	return e.currency
}

func priceText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// decodeReply decodes the first JSON object in raw that fits reply.
func decodeReply(raw string) (*reply, bool) {
	for _, obj := range jsonObjects(raw) {
		var r reply
		if err := json.Unmarshal([]byte(obj), &r); err == nil {
			return &r, true
		}
	}
	return nil, false
}

// jsonObjects returns the balanced top-level {...} spans of s in order.
// Braces inside JSON strings are ignored.
func jsonObjects(s string) []string {
	var (
		out     []string
		depth   int
		start   = -1
		inStr   bool
		escaped bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			if depth > 0 {
				inStr = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				out = append(out, s[start:i+1])
			}
		}
	}
	return out
}

func buildPrompt(text string, today time.Time) string {
	categories := make([]string, 0, len(domain.Categories))
	for _, c := range domain.Categories {
		categories = append(categories, string(c))
	}

	var b strings.Builder
	b.WriteString("You extract recurring subscription details from a user message.\n")
	fmt.Fprintf(&b, "Today is %s.\n", today.Format(time.DateOnly))
	b.WriteString("Reply with a single JSON object and nothing else, using these keys:\n")
	b.WriteString(`  "name": service name, string` + "\n")
	b.WriteString(`  "price": amount charged per period, number` + "\n")
	b.WriteString(`  "currency": ISO code such as BRL, USD, EUR or GBP, empty if not stated` + "\n")
	b.WriteString(`  "renewalDate": next charge date as YYYY-MM-DD, empty if not stated` + "\n")
	fmt.Fprintf(&b, "  \"category\": one of %s\n", strings.Join(categories, ", "))
	b.WriteString(`  "description": short free text, may be empty` + "\n")
	b.WriteString(`  "billingPeriod": "monthly" or "annual"` + "\n")
	b.WriteString("Use empty strings for values you cannot find. Do not invent a price.\n\n")
	b.WriteString("Message:\n")
	b.WriteString(text)
	return b.String()
}
