package notifications

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/subtrack/subtrack/internal/domain"
)

// MessageType defines the kind of message being rendered.
type MessageType string

// Message types.
const (
	MessageTypeReminder MessageType = "reminder"
	MessageTypeBackup   MessageType = "backup"
)

// ReminderPayload contains data for rendering a renewal reminder.
type ReminderPayload struct {
	SubscriptionID string
	Name           string
	Price          decimal.Decimal
	Currency       string
	BillingPeriod  domain.BillingPeriod
	Category       domain.Category
	Description    string
	RenewalDate    time.Time
	DaysUntil      int
}

// NewReminderPayload creates a reminder payload for sub renewing in days.
func NewReminderPayload(sub *domain.Subscription, days int) ReminderPayload {
	return ReminderPayload{
		SubscriptionID: sub.ID,
		Name:           sub.Name,
		Price:          sub.Price,
		Currency:       sub.Currency,
		BillingPeriod:  sub.BillingPeriod,
		Category:       sub.Category,
		Description:    sub.Description,
		RenewalDate:    sub.RenewalDate,
		DaysUntil:      days,
	}
}

// backupPayload is the template data of a backup summary.
type backupPayload struct {
	Backup domain.Backup
	Active []*domain.Subscription
}
