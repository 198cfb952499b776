package chat

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/subtrack/subtrack/internal/domain"
	"github.com/subtrack/subtrack/internal/pkg/money"
)

const displayDate = "02/01/2006"

const (
	msgCancelled         = "Operation cancelled."
	msgNothingToCancel   = "There is nothing to cancel."
	msgAbandoned         = "The previous unfinished operation was discarded."
	msgEmptyName         = "The name cannot be empty. What is the subscription name?"
	msgInvalidPrice      = "Invalid price. Send a positive amount such as 29,90."
	msgInvalidDate       = "Invalid date. Use DD/MM/YYYY or YYYY-MM-DD."
	msgInvalidBilling    = "Invalid option. Send 1 for monthly or 2 for annual."
	msgConfirmPrompt     = "Save this subscription? Reply <b>yes</b> to confirm, <b>no</b> to cancel or <b>edit</b> to adjust it step by step."
	msgNotUnderstood     = "I couldn't find a name and a price in that message. Use /add to register the subscription step by step."
	msgExtractorDisabled = "Free-text registration is not configured. Use /add to register the subscription step by step."
	msgExtractorFailed   = "I couldn't interpret your message right now. Try again later or use /add."
	msgStoreFailed       = "Could not reach your subscriptions right now. Please try again later."
	msgSaveFailed        = "Could not save the subscription: %s. Send the answer again or /cancel."
	msgEmptyList         = "You have no subscriptions yet. Use /add to register one."
	msgSearchUsage       = "Usage: /search &lt;term&gt;"
	msgEditUsage         = "Usage: /edit &lt;id&gt;. Use /list to see the ids."
	msgNotFound          = "No subscription matches id <code>%s</code>."
	msgAmbiguousID       = "More than one subscription matches <code>%s</code>. Send more characters of the id."
	msgNoSearchResults   = "No subscriptions match \"%s\"."
	msgNoRenewals        = "No renewals in the next %d days."
	msgCheckDisabled     = "Renewal reminders are not configured."
	msgCheckFailed       = "The renewal check failed. Please try again later."
	msgBackupDisabled    = "Backups are not configured."
	msgBackupFailed      = "Could not create the backup. Please try again later."
	msgNonText           = "Send a text message or /help to see what I can do."
	msgUnrecognized      = "Unrecognized command: %s. Send /help to see the available commands."
)

const helpText = `<b>Subscription tracker</b>

/list - list your subscriptions
/search &lt;term&gt; - search by name or description
/add - register a subscription step by step
/edit &lt;id&gt; - edit a subscription
/renewals - upcoming renewals
/summary - spending summary
/check - check renewals and send reminders now
/backup - send a backup of your data
/cancel - cancel the current operation
/help - show this message

You can also describe a subscription in plain text, e.g. "Netflix 39,90 monthly renews on 10/11".`

// formatter renders user-facing messages.
type formatter struct {
	loc      *time.Location
	currency money.Currency
}

func (f formatter) price(s *domain.Subscription) string {
	return f.currency.FormatWithSymbol(s.Price, s.Currency)
}

func (f formatter) date(t time.Time) string {
	return t.Format(displayDate)
}

func (f formatter) prompt(step Step, st *ConversationState) string {
	var base string
	switch step {
	case StepName:
		base = "What is the subscription name?"
	case StepPrice:
		base = "How much does it cost? (e.g. 29,90)"
	case StepDate:
		base = "When is the next renewal? (DD/MM/YYYY or YYYY-MM-DD)"
	case StepDescription:
		if st.Editing() {
			base = "Add a description."
		} else {
			base = "Add a description, or send <b>skip</b> to leave it empty."
		}
	case StepBilling:
		base = "Billing period?\n1 - monthly\n2 - annual"
	}

	if !st.Editing() {
		return base
	}
	return fmt.Sprintf("%s\nCurrent: <b>%s</b>. Send <b>-</b> or <b>skip</b> to keep it.", base, f.currentValue(step, st.Original))
}

func (f formatter) currentValue(step Step, s *domain.Subscription) string {
	switch step {
	case StepName:
		return html.EscapeString(s.Name)
	case StepPrice:
		return f.price(s)
	case StepDate:
		return f.date(s.RenewalDate)
	case StepDescription:
		if s.Description == "" {
			return "(empty)"
		}
		return html.EscapeString(s.Description)
	case StepBilling:
		return s.BillingPeriod.Label()
	}
	return ""
}

func (f formatter) details(s *domain.Subscription) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Name:</b> %s\n", html.EscapeString(s.Name))
	fmt.Fprintf(&b, "<b>Price:</b> %s\n", f.price(s))
	fmt.Fprintf(&b, "<b>Billing:</b> %s\n", s.BillingPeriod.Label())
	fmt.Fprintf(&b, "<b>Renewal:</b> %s\n", f.date(s.RenewalDate))
	fmt.Fprintf(&b, "<b>Category:</b> %s", s.Category.Label())
	if s.Description != "" {
		fmt.Fprintf(&b, "\n<b>Description:</b> %s", html.EscapeString(s.Description))
	}
	return b.String()
}

func (f formatter) candidate(s *domain.Subscription) string {
	return "I understood:\n" + f.details(s)
}

func (f formatter) created(s *domain.Subscription) string {
	return fmt.Sprintf("✅ Subscription <b>%s</b> added: %s %s, renews on %s.",
		html.EscapeString(s.Name), f.price(s), s.BillingPeriod.Label(), f.date(s.RenewalDate))
}

func (f formatter) updated(s *domain.Subscription) string {
	return "✅ Subscription updated.\n" + f.details(s)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (f formatter) list(title string, subs []*domain.Subscription, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📋 <b>%s</b> (%d)\n", title, len(subs))
	for _, s := range subs {
		fmt.Fprintf(&b, "\n• <b>%s</b> <code>%s</code>", html.EscapeString(s.Name), shortID(s.ID))
		if !s.IsActive {
			b.WriteString(" (inactive)")
		}
		cd := s.RenewalCountdown(now)
		fmt.Fprintf(&b, "\n  %s %s · renews %s (%dd of %dd) · %s",
			f.price(s), s.BillingPeriod.Label(), f.date(s.RenewalDate),
			cd.RemainingDays, cd.TotalDays, s.Category.Label())
	}

	sum := domain.Summarize(subs, now)
	fmt.Fprintf(&b, "\n\nMonthly: %s · Annual projection: %s",
		f.currency.Format(sum.MonthlyTotal), f.currency.Format(sum.ProjectedAnnual))
	return b.String()
}

func (f formatter) summary(sum domain.Summary) string {
	var b strings.Builder
	b.WriteString("📊 <b>Spending summary</b>\n\n")
	fmt.Fprintf(&b, "Active subscriptions: %d of %d\n", sum.ActiveSubscriptions, sum.TotalSubscriptions)
	fmt.Fprintf(&b, "Monthly total: %s\n", f.currency.Format(sum.MonthlyTotal))
	fmt.Fprintf(&b, "Annual total: %s\n", f.currency.Format(sum.AnnualTotal))
	fmt.Fprintf(&b, "Annual projection: %s\n", f.currency.Format(sum.ProjectedAnnual))
	fmt.Fprintf(&b, "Renewals in 30 days: %d (%s)", sum.RenewalsNext30Days, f.currency.Format(sum.RenewalsAmount))

	if len(sum.ByCategory) > 0 {
		b.WriteString("\n\n<b>Per month by category</b>")
		for _, cs := range sum.ByCategory {
			fmt.Fprintf(&b, "\n• %s: %s (%d)", cs.Category.Label(), f.currency.Format(cs.Total), cs.Count)
		}
	}
	return b.String()
}

func daysLabel(days int) string {
	switch days {
	case 0:
		return "today"
	case 1:
		return "tomorrow"
	}
	return fmt.Sprintf("in %d days", days)
}

type renewal struct {
	sub  *domain.Subscription
	days int
}

func (f formatter) renewals(items []renewal, window int) string {
	if len(items) == 0 {
		return fmt.Sprintf(msgNoRenewals, window)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🗓 <b>Renewals in the next %d days</b>\n", window)
	for _, r := range items {
		fmt.Fprintf(&b, "\n• <b>%s</b> %s · %s (%s)",
			html.EscapeString(r.sub.Name), f.price(r.sub), daysLabel(r.days), f.date(r.sub.RenewalDate))
	}
	return b.String()
}
