package notifications

import (
	"bytes"
	"embed"
	"fmt"
	"html"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/shopspring/decimal"
	"github.com/subtrack/subtrack/internal/domain"
	"github.com/subtrack/subtrack/internal/pkg/money"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

const displayDate = "02/01/2006"

// Renderer renders notifications from templates.
type Renderer struct {
	templates map[string]*template.Template
	currency  money.Currency
	loc       *time.Location
}

// NewRenderer creates a new renderer and loads all templates. Amounts are
// formatted with currency and dates are shown in loc.
func NewRenderer(currency money.Currency, loc *time.Location) (*Renderer, error) {
	if loc == nil {
		loc = time.UTC
	}

	r := &Renderer{
		templates: make(map[string]*template.Template),
		currency:  currency,
		loc:       loc,
	}

	funcMap := template.FuncMap{
		"title":      titleCase,
		"upper":      strings.ToUpper,
		"escapeHTML": html.EscapeString,
		"price":      r.formatPrice,
		"money":      r.formatMoney,
		"date":       r.formatDate,
		"when":       whenLabel,
	}

	names := []string{
		"telegram_reminder",
		"inbox_reminder",
		"push_reminder",
		"telegram_backup",
	}

	for _, name := range names {
		filename := fmt.Sprintf("templates/%s.tmpl", name)

		content, err := templatesFS.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", filename, err)
		}

		tmpl, err := template.New(name).Funcs(funcMap).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}

		r.templates[name] = tmpl
	}

	return r, nil
}

// Render renders a renewal reminder for the specified channel type.
// Returns subject and body.
func (r *Renderer) Render(channelType domain.ChannelType, payload ReminderPayload) (subject, body string, err error) {
	subject = renderSubject(payload)

	body, err = r.execute(fmt.Sprintf("%s_%s", channelType, MessageTypeReminder), payload)
	if err != nil {
		return "", "", err
	}
	return subject, body, nil
}

// RenderBackup renders the readable summary sent along with a backup file.
func (r *Renderer) RenderBackup(backup domain.Backup) (string, error) {
	var active []*domain.Subscription
	for _, s := range backup.Subscriptions {
		if s.IsActive {
			active = append(active, s)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].RenewalDate.Before(active[j].RenewalDate)
	})

	return r.execute(fmt.Sprintf("%s_%s", domain.ChannelTypeTelegram, MessageTypeBackup), backupPayload{
		Backup: backup,
		Active: active,
	})
}

func (r *Renderer) execute(name string, data any) (string, error) {
	tmpl, ok := r.templates[name]
	if !ok {
		return "", fmt.Errorf("template not found: %s", name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func renderSubject(payload ReminderPayload) string {
	switch payload.DaysUntil {
	case 0:
		return fmt.Sprintf("%s renews today", payload.Name)
	case 1:
		return fmt.Sprintf("%s renews tomorrow", payload.Name)
	}
	return fmt.Sprintf("%s renews in %d days", payload.Name, payload.DaysUntil)
}

// Template functions

var titleCaser = cases.Title(language.English)

func titleCase(s string) string {
	return titleCaser.String(s)
}

func (r *Renderer) formatPrice(amount decimal.Decimal, symbol string) string {
	return r.currency.FormatWithSymbol(amount, symbol)
}

func (r *Renderer) formatMoney(amount decimal.Decimal) string {
	return r.currency.Format(amount)
}

func (r *Renderer) formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(r.loc).Format(displayDate)
}

func whenLabel(days int) string {
	switch days {
	case 0:
		return "today"
	case 1:
		return "tomorrow"
	}
	return fmt.Sprintf("in %d days", days)
}
